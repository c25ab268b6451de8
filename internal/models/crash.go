package models

import (
	"time"

	"github.com/shopspring/decimal"

	"casino-engine/internal/fair"
)

type RoundStatus string

const (
	RoundWaiting RoundStatus = "waiting"
	RoundActive  RoundStatus = "active"
	RoundCrashed RoundStatus = "crashed"
)

// CrashRound keeps CrashPoint and the server seed hidden until it crashes.
type CrashRound struct {
	ID          int64           `json:"id"`
	RoundID     string          `json:"round_id"`
	Status      RoundStatus     `json:"status"`
	CrashPoint  decimal.Decimal `json:"-"`
	Seeds       fair.Seeds      `json:"-"`
	CreatedAt   time.Time       `json:"created_at"`
	StartedAt   *time.Time      `json:"started_at,omitempty"`
	CrashedAt   *time.Time      `json:"crashed_at,omitempty"`
	NextRoundAt *time.Time      `json:"next_round_at,omitempty"`
}

func (r *CrashRound) IsActive() bool  { return r.Status == RoundActive }
func (r *CrashRound) IsWaiting() bool { return r.Status == RoundWaiting }
func (r *CrashRound) IsCrashed() bool { return r.Status == RoundCrashed }

type BetStatus string

const (
	BetActive    BetStatus = "active"
	BetCashedOut BetStatus = "cashed_out"
	BetLost      BetStatus = "lost"
)

type CrashBet struct {
	ID                int64               `json:"id"`
	UserID            int64               `json:"user_id"`
	RoundID           int64               `json:"round_id"`
	BetAmount         decimal.Decimal     `json:"bet_amount"`
	Status            BetStatus           `json:"status"`
	AutoCashoutTarget decimal.NullDecimal `json:"auto_cashout_target"`
	CashoutMultiplier decimal.NullDecimal `json:"cashout_multiplier"`
	WinAmount         decimal.Decimal     `json:"win_amount"`
	CreatedAt         time.Time           `json:"created_at"`
	SettledAt         *time.Time          `json:"settled_at,omitempty"`
}

// CrashState is the public snapshot of the current round.
type CrashState struct {
	RoundID        string           `json:"round_id,omitempty"`
	Status         RoundStatus      `json:"status,omitempty"`
	Multiplier     decimal.Decimal  `json:"multiplier"`
	ServerSeedHash string           `json:"server_seed_hash,omitempty"`
	NextRoundAt    *time.Time       `json:"next_round_at,omitempty"`
	CrashPoint     *decimal.Decimal `json:"crash_point,omitempty"`
	ActiveBets     int              `json:"active_bets"`
	UpdatedAt      time.Time        `json:"updated_at"`
}

// RoundSummary is a crashed round with its seeds revealed.
type RoundSummary struct {
	RoundID        string          `json:"round_id"`
	CrashPoint     decimal.Decimal `json:"crash_point"`
	ServerSeed     string          `json:"server_seed"`
	ServerSeedHash string          `json:"server_seed_hash"`
	ClientSeed     string          `json:"client_seed"`
	StartedAt      *time.Time      `json:"started_at,omitempty"`
	CrashedAt      *time.Time      `json:"crashed_at,omitempty"`
}

func (r *CrashRound) Summary() RoundSummary {
	return RoundSummary{
		RoundID:        r.RoundID,
		CrashPoint:     r.CrashPoint,
		ServerSeed:     r.Seeds.ServerSeed,
		ServerSeedHash: r.Seeds.ServerSeedHash,
		ClientSeed:     r.Seeds.ClientSeed,
		StartedAt:      r.StartedAt,
		CrashedAt:      r.CrashedAt,
	}
}
