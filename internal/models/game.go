package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"casino-engine/internal/fair"
)

type GameType = fair.Game

const (
	GameTypeMines  = fair.GameMines
	GameTypePlinko = fair.GamePlinko
	GameTypeDice   = fair.GameDice
	GameTypeSlots  = fair.GameSlots
	GameTypeCrash  = fair.GameCrash
)

// GameRef is the ledger reference for a game record.
func GameRef(game GameType, id int64) string {
	return fmt.Sprintf("%s:%d", game, id)
}

type MinesState string

const (
	MinesActive    MinesState = "active"
	MinesWon       MinesState = "won"
	MinesLost      MinesState = "lost"
	MinesCashedOut MinesState = "cashed_out"
)

type MinesGame struct {
	ID                int64           `json:"id"`
	UserID            int64           `json:"user_id"`
	BetAmount         decimal.Decimal `json:"bet_amount"`
	MineCount         int             `json:"mine_count"`
	State             MinesState      `json:"state"`
	OpenedCells       []fair.Cell     `json:"opened_cells"`
	CurrentMultiplier decimal.Decimal `json:"current_multiplier"`
	Payout            decimal.Decimal `json:"payout"`
	Seeds             fair.Seeds      `json:"-"`
	MinePositions     []fair.Cell     `json:"-"`
	CreatedAt         time.Time       `json:"created_at"`
	EndedAt           *time.Time      `json:"ended_at,omitempty"`
}

func (g *MinesGame) IsActive() bool {
	return g.State == MinesActive
}

func (g *MinesGame) IsEnded() bool {
	return g.State != MinesActive
}

func (g *MinesGame) IsOpened(c fair.Cell) bool {
	for _, o := range g.OpenedCells {
		if o == c {
			return true
		}
	}
	return false
}

func (g *MinesGame) IsMine(c fair.Cell) bool {
	for _, m := range g.MinePositions {
		if m == c {
			return true
		}
	}
	return false
}

func (g *MinesGame) SafeCellsRemaining() int {
	return fair.CellCount - g.MineCount - len(g.OpenedCells)
}

type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

type PlinkoGame struct {
	ID              int64           `json:"id"`
	UserID          int64           `json:"user_id"`
	BetAmount       decimal.Decimal `json:"bet_amount"`
	Rows            int             `json:"rows"`
	Risk            RiskLevel       `json:"risk"`
	Completed       bool            `json:"completed"`
	BallPath        []int           `json:"ball_path,omitempty"`
	BucketIndex     int             `json:"bucket_index"`
	FinalMultiplier decimal.Decimal `json:"final_multiplier"`
	Payout          decimal.Decimal `json:"payout"`
	Seeds           fair.Seeds      `json:"-"`
	CreatedAt       time.Time       `json:"created_at"`
	DroppedAt       *time.Time      `json:"dropped_at,omitempty"`
}

type DiceGame struct {
	ID             int64           `json:"id"`
	UserID         int64           `json:"user_id"`
	BetAmount      decimal.Decimal `json:"bet_amount"`
	SelectedNumber int             `json:"selected_number"`
	RolledNumber   int             `json:"rolled_number"`
	Won            bool            `json:"won"`
	Multiplier     decimal.Decimal `json:"multiplier"`
	Payout         decimal.Decimal `json:"payout"`
	Seeds          fair.Seeds      `json:"seeds"`
	CreatedAt      time.Time       `json:"created_at"`
}

type SlotsGame struct {
	ID                 int64           `json:"id"`
	UserID             int64           `json:"user_id"`
	BetAmount          decimal.Decimal `json:"bet_amount"`
	ReelsCount         int             `json:"reels_count"`
	Reels              []fair.Symbol   `json:"reels"`
	Multiplier         decimal.Decimal `json:"multiplier"`
	WinAmount          decimal.Decimal `json:"win_amount"`
	WinningCombination string          `json:"winning_combination,omitempty"`
	Seeds              fair.Seeds      `json:"seeds"`
	CreatedAt          time.Time       `json:"created_at"`
}
