package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type Account struct {
	UserID       int64           `json:"user_id"`
	Balance      decimal.Decimal `json:"balance"`
	TotalWagered decimal.Decimal `json:"total_wagered"`
	TotalWon     decimal.Decimal `json:"total_won"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

type EntryKind string

const (
	EntryDeposit EntryKind = "deposit"
	EntryBet     EntryKind = "bet"
	EntryWin     EntryKind = "win"
	EntryBonus   EntryKind = "bonus"
)

func (k EntryKind) Valid() bool {
	switch k {
	case EntryDeposit, EntryBet, EntryWin, EntryBonus:
		return true
	}
	return false
}

type EntryStatus string

const (
	EntryCompleted EntryStatus = "completed"
	EntryPending   EntryStatus = "pending"
	EntryFailed    EntryStatus = "failed"
)

func (s EntryStatus) Valid() bool {
	switch s {
	case EntryCompleted, EntryPending, EntryFailed:
		return true
	}
	return false
}

// LedgerEntry is immutable once written. BalanceAfter of one entry equals
// BalanceBefore of the next entry for the same user.
type LedgerEntry struct {
	ID            int64           `json:"id"`
	UserID        int64           `json:"user_id"`
	Kind          EntryKind       `json:"kind"`
	Status        EntryStatus     `json:"status"`
	Amount        decimal.Decimal `json:"amount"`
	BalanceBefore decimal.Decimal `json:"balance_before"`
	BalanceAfter  decimal.Decimal `json:"balance_after"`
	Description   string          `json:"description"`
	GameRef       string          `json:"game_ref,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

type HistoryFilter struct {
	Kind   EntryKind
	Status EntryStatus
	Limit  int
}

type Summary struct {
	Balance       decimal.Decimal `json:"balance"`
	TotalWagered  decimal.Decimal `json:"total_wagered"`
	TotalWon      decimal.Decimal `json:"total_won"`
	TotalDeposits decimal.Decimal `json:"total_deposits"`
	TotalBets     decimal.Decimal `json:"total_bets"`
	TotalWins     decimal.Decimal `json:"total_wins"`
	TotalBonuses  decimal.Decimal `json:"total_bonuses"`
	EntryCount    int64           `json:"entry_count"`
	NetProfit     decimal.Decimal `json:"net_profit"`
}

type BalanceResponse struct {
	Balance      decimal.Decimal `json:"balance"`
	TotalWagered decimal.Decimal `json:"total_wagered"`
	TotalWon     decimal.Decimal `json:"total_won"`
}

type DepositRequest struct {
	Amount *decimal.Decimal `json:"amount"`
}

type BonusRequest struct {
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description"`
}
