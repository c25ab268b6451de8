package fair

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/shopspring/decimal"
)

const (
	GridSize  = 5
	CellCount = GridSize * GridSize

	MinMines = 3
	MaxMines = 20

	DiceFaces = 6

	crashHouseEdgePercent = 3
)

var (
	crashMin     = decimal.NewFromInt(1)
	crashMax     = decimal.NewFromInt(10000)
	crashEpsilon = decimal.New(1, -6)
	maxUint64    = decimal.NewFromUint64(math.MaxUint64)
	crashFactor  = decimal.NewFromInt(100).DivRound(decimal.NewFromInt(100-crashHouseEdgePercent), 28)
)

type Cell struct {
	Row int `json:"row"`
	Col int `json:"col"`
}

func (c Cell) Valid() bool {
	return c.Row >= 0 && c.Row < GridSize && c.Col >= 0 && c.Col < GridSize
}

func (c Cell) String() string {
	return fmt.Sprintf("(%d,%d)", c.Row, c.Col)
}

// MinePositions shuffles the row-major grid with Fisher-Yates driven by the
// digest stream and returns the first mineCount cells.
func MinePositions(s Seeds, mineCount int) ([]Cell, error) {
	if mineCount < 1 || mineCount > CellCount {
		return nil, fmt.Errorf("%w: mine count %d outside [1,%d]", ErrInvalidParams, mineCount, CellCount)
	}

	cells := make([]Cell, 0, CellCount)
	for row := 0; row < GridSize; row++ {
		for col := 0; col < GridSize; col++ {
			cells = append(cells, Cell{Row: row, Col: col})
		}
	}

	stream := newByteStream(nonceDigest(s.ServerSeed, s.ClientSeed, s.Nonce))
	for i := len(cells) - 1; i > 0; i-- {
		j := int(binary.BigEndian.Uint16(stream.next(2))) % (i + 1)
		cells[i], cells[j] = cells[j], cells[i]
	}

	out := make([]Cell, mineCount)
	copy(out, cells[:mineCount])
	return out, nil
}

// DiceRoll returns a face in [1,6].
func DiceRoll(s Seeds) int {
	d := nonceDigest(s.ServerSeed, s.ClientSeed, s.Nonce)
	return int(binary.BigEndian.Uint32(d[:4])%DiceFaces) + 1
}

// PlinkoPath returns one left(0)/right(1) choice per row and the bucket the
// ball lands in, which is the number of right turns.
func PlinkoPath(s Seeds, rows int) ([]int, int) {
	stream := newByteStream(nonceDigest(s.ServerSeed, s.ClientSeed, s.Nonce))
	path := make([]int, rows)
	bucket := 0
	for i := range path {
		path[i] = int(stream.next(1)[0] & 1)
		bucket += path[i]
	}
	return path, bucket
}

// CrashPoint maps HMAC(serverSeed, clientSeed) onto [1.00, 10000.00] with a
// 3% house edge, truncated to two decimals. The nonce is not used.
func CrashPoint(serverSeed, clientSeed string) decimal.Decimal {
	d := digest(serverSeed, clientSeed)
	r := decimal.NewFromUint64(binary.BigEndian.Uint64(d[:8])).DivRound(maxUint64, 28)
	if r.IsZero() {
		r = crashEpsilon
	}

	point := crashFactor.DivRound(r, 28)
	if point.LessThan(crashMin) {
		point = crashMin
	}
	if point.GreaterThan(crashMax) {
		point = crashMax
	}
	return point.Truncate(2)
}
