package models

import (
	"github.com/shopspring/decimal"

	"casino-engine/internal/fair"
)

type VerificationData struct {
	Game           GameType    `json:"game"`
	ServerSeedHash string      `json:"server_seed_hash"`
	ServerSeed     string      `json:"server_seed,omitempty"`
	ClientSeed     string      `json:"client_seed,omitempty"`
	Nonce          *int64      `json:"nonce,omitempty"`
	MineCount      int         `json:"mine_count,omitempty"`
	MinePositions  []fair.Cell `json:"mine_positions,omitempty"`
	IsValid        *bool       `json:"is_valid,omitempty"`
}

type MinesCreateRequest struct {
	BetAmount  decimal.Decimal `json:"bet_amount"`
	MineCount  int             `json:"mine_count" binding:"required"`
	ClientSeed string          `json:"client_seed"`
}

type MinesOpenRequest struct {
	Row *int `json:"row" binding:"required"`
	Col *int `json:"col" binding:"required"`
}

type MinesOpenResult struct {
	GameID             int64           `json:"game_id"`
	IsMine             bool            `json:"is_mine"`
	Multiplier         decimal.Decimal `json:"multiplier"`
	State              MinesState      `json:"state"`
	OpenedCells        []fair.Cell     `json:"opened_cells"`
	OpenedCount        int             `json:"opened_count"`
	SafeCellsRemaining int             `json:"safe_cells_remaining"`
	Payout             decimal.Decimal `json:"payout"`
	MinePositions      []fair.Cell     `json:"mine_positions,omitempty"`
	Seeds              *fair.Seeds     `json:"seeds,omitempty"`
}

type PlinkoCreateRequest struct {
	BetAmount  decimal.Decimal `json:"bet_amount"`
	Rows       int             `json:"rows" binding:"required"`
	Risk       RiskLevel       `json:"risk" binding:"required"`
	ClientSeed string          `json:"client_seed"`
}

type PlinkoAutoRequest struct {
	PlinkoCreateRequest
	DropCount int `json:"drop_count" binding:"required"`
}

type PlinkoResult struct {
	Game  *PlinkoGame `json:"game"`
	Seeds fair.Seeds  `json:"seeds"`
}

type DicePlayRequest struct {
	BetAmount      decimal.Decimal `json:"bet_amount"`
	SelectedNumber int             `json:"selected_number" binding:"required"`
	ClientSeed     string          `json:"client_seed"`
}

type SlotsPlayRequest struct {
	BetAmount  decimal.Decimal `json:"bet_amount"`
	ReelsCount int             `json:"reels_count"`
	ClientSeed string          `json:"client_seed"`
}

type CrashBetRequest struct {
	Amount            decimal.Decimal  `json:"amount"`
	AutoCashoutTarget *decimal.Decimal `json:"auto_cashout_target"`
}
