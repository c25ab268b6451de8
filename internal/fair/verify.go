package fair

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

type Game string

const (
	GameMines  Game = "mines"
	GamePlinko Game = "plinko"
	GameDice   Game = "dice"
	GameSlots  Game = "slots"
	GameCrash  Game = "crash"
)

var (
	ErrUnknownGame   = errors.New("unknown game")
	ErrInvalidParams = errors.New("invalid proof parameters")
)

// PlinkoRowCounts and ReelCounts are the board and reel sizes games are
// played with. Replay rejects anything else.
var (
	PlinkoRowCounts = []int{5, 9, 11, 13, 15}
	ReelCounts      = []int{3, 5}
)

func oneOf(n int, allowed []int) bool {
	for _, a := range allowed {
		if n == a {
			return true
		}
	}
	return false
}

// Proof is everything a player needs to replay one outcome.
type Proof struct {
	Game  Game  `json:"game"`
	Seeds Seeds `json:"seeds"`

	MineCount int `json:"mine_count,omitempty"`
	Rows      int `json:"rows,omitempty"`
	Reels     int `json:"reels,omitempty"`
}

// Replay is the re-derived outcome for a Proof.
type Replay struct {
	Game      Game `json:"game"`
	HashValid bool `json:"hash_valid"`

	MinePositions []Cell           `json:"mine_positions,omitempty"`
	Roll          int              `json:"roll,omitempty"`
	Reels         []Symbol         `json:"reels,omitempty"`
	Path          []int            `json:"path,omitempty"`
	Bucket        *int             `json:"bucket,omitempty"`
	CrashPoint    *decimal.Decimal `json:"crash_point,omitempty"`
}

// Replay re-derives the outcome described by p.
func (p Proof) Replay() (*Replay, error) {
	out := &Replay{
		Game:      p.Game,
		HashValid: VerifyServerSeedHash(p.Seeds.ServerSeed, p.Seeds.ServerSeedHash),
	}

	switch p.Game {
	case GameMines:
		if p.MineCount < MinMines || p.MineCount > MaxMines {
			return nil, fmt.Errorf("%w: mine count %d outside [%d,%d]", ErrInvalidParams, p.MineCount, MinMines, MaxMines)
		}
		cells, err := MinePositions(p.Seeds, p.MineCount)
		if err != nil {
			return nil, err
		}
		out.MinePositions = cells
	case GameDice:
		out.Roll = DiceRoll(p.Seeds)
	case GameSlots:
		if !oneOf(p.Reels, ReelCounts) {
			return nil, fmt.Errorf("%w: reel count %d must be one of %v", ErrInvalidParams, p.Reels, ReelCounts)
		}
		out.Reels = Reels(p.Seeds, p.Reels)
	case GamePlinko:
		if !oneOf(p.Rows, PlinkoRowCounts) {
			return nil, fmt.Errorf("%w: row count %d must be one of %v", ErrInvalidParams, p.Rows, PlinkoRowCounts)
		}
		path, bucket := PlinkoPath(p.Seeds, p.Rows)
		out.Path = path
		out.Bucket = &bucket
	case GameCrash:
		point := CrashPoint(p.Seeds.ServerSeed, p.Seeds.ClientSeed)
		out.CrashPoint = &point
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownGame, p.Game)
	}

	return out, nil
}

// VerifyMinePositions compares claimed against the re-derived mines as sets.
func VerifyMinePositions(s Seeds, mineCount int, claimed []Cell) bool {
	derived, err := MinePositions(s, mineCount)
	if err != nil || len(derived) != len(claimed) {
		return false
	}
	set := make(map[Cell]struct{}, len(derived))
	for _, c := range derived {
		set[c] = struct{}{}
	}
	for _, c := range claimed {
		if _, ok := set[c]; !ok {
			return false
		}
		delete(set, c)
	}
	return len(set) == 0
}

func VerifyDiceRoll(s Seeds, claimed int) bool {
	return DiceRoll(s) == claimed
}

func VerifyReels(s Seeds, claimed []Symbol) bool {
	derived := Reels(s, len(claimed))
	for i := range derived {
		if derived[i] != claimed[i] {
			return false
		}
	}
	return true
}

func VerifyPlinkoPath(s Seeds, claimed []int) bool {
	derived, _ := PlinkoPath(s, len(claimed))
	for i := range derived {
		if derived[i] != claimed[i] {
			return false
		}
	}
	return true
}

func VerifyCrashPoint(serverSeed, clientSeed string, claimed decimal.Decimal) bool {
	return CrashPoint(serverSeed, clientSeed).Equal(claimed)
}
