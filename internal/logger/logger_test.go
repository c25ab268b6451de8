package logger_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"casino-engine/internal/logger"
)

func TestNewWritesFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "casino.log")
	log := logger.New(logger.Config{Level: "debug", File: file})

	log.Info("round crashed")
	require.NoError(t, log.Sync())

	data, err := os.ReadFile(file)
	require.NoError(t, err)
	assert.Contains(t, string(data), "round crashed")
}

func TestNewFallsBackToInfo(t *testing.T) {
	log := logger.New(logger.Config{Level: "loud"})
	assert.False(t, log.Core().Enabled(zapcore.DebugLevel))
	assert.True(t, log.Core().Enabled(zapcore.InfoLevel))
}
