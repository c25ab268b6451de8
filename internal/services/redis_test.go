package services_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"casino-engine/internal/config"
	"casino-engine/internal/models"
	"casino-engine/internal/services"
)

func newRedis(t *testing.T) *services.RedisService {
	t.Helper()
	cfg := &config.Config{
		RedisURL:  "localhost:6379",
		RedisPass: "",
		RedisDB:   0,
	}

	redisService, err := services.NewRedisService(cfg)
	if err != nil {
		t.Skipf("Redis not available: %v", err)
	}
	t.Cleanup(func() { redisService.Close() })
	return redisService
}

func TestRedisRateLimit(t *testing.T) {
	redisService := newRedis(t)
	ctx := context.Background()
	userID := int64(999999)

	require.NoError(t, redisService.ClearRateLimit(ctx, userID, "bet"))
	t.Cleanup(func() { redisService.ClearRateLimit(ctx, userID, "bet") })

	for i := 0; i < 5; i++ {
		allowed, err := redisService.CheckRateLimit(ctx, userID, "bet", 5, time.Minute)
		require.NoError(t, err)
		assert.True(t, allowed, "request %d should be allowed", i+1)
	}

	allowed, err := redisService.CheckRateLimit(ctx, userID, "bet", 5, time.Minute)
	require.NoError(t, err)
	assert.False(t, allowed, "6th request should be rate limited")
}

func TestRedisCrashState(t *testing.T) {
	redisService := newRedis(t)
	ctx := context.Background()

	state := &models.CrashState{
		RoundID:        "round_test",
		Status:         models.RoundActive,
		Multiplier:     decimal.RequireFromString("1.42"),
		ServerSeedHash: "hash",
		ActiveBets:     3,
		UpdatedAt:      time.Now().Truncate(time.Millisecond),
	}
	require.NoError(t, redisService.SaveCrashState(ctx, state))

	got, err := redisService.GetCrashState(ctx)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "round_test", got.RoundID)
	assert.True(t, got.Multiplier.Equal(state.Multiplier))
	assert.Equal(t, 3, got.ActiveBets)
}

func TestRedisCrashHistory(t *testing.T) {
	redisService := newRedis(t)
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		require.NoError(t, redisService.PushCrashPoint(ctx, models.RoundSummary{
			RoundID:    "round_hist",
			CrashPoint: decimal.NewFromInt(int64(i)),
		}))
	}

	recent, err := redisService.RecentCrashPoints(ctx, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.True(t, recent[0].CrashPoint.Equal(decimal.NewFromInt(3)), "newest first")
	assert.True(t, recent[1].CrashPoint.Equal(decimal.NewFromInt(2)))
}
