package services

import (
	"github.com/shopspring/decimal"

	"casino-engine/internal/models"
)

// Broadcaster receives crash round events. Implementations must not block.
type Broadcaster interface {
	BroadcastRoundWaiting(state models.CrashState)
	BroadcastRoundUpdate(roundID string, multiplier decimal.Decimal)
	BroadcastRoundCrash(summary models.RoundSummary)
}

type nopBroadcaster struct{}

func (nopBroadcaster) BroadcastRoundWaiting(models.CrashState)      {}
func (nopBroadcaster) BroadcastRoundUpdate(string, decimal.Decimal) {}
func (nopBroadcaster) BroadcastRoundCrash(models.RoundSummary)      {}
