package services

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"casino-engine/internal/fair"
	"casino-engine/internal/metrics"
	"casino-engine/internal/models"
	"casino-engine/internal/storage"
)

const DefaultGamesLimit = 10

var (
	DiceSlotsMaxBet = decimal.NewFromInt(10000)
	CrashMaxBet     = decimal.NewFromInt(1000)
)

// gameEngine is the shared plumbing of every game: one transaction per
// operation, the ledger, and a clock.
type gameEngine struct {
	game   models.GameType
	store  *storage.Store
	ledger *Ledger
	log    *zap.Logger
	now    func() time.Time
}

func newGameEngine(game models.GameType, store *storage.Store, ledger *Ledger, log *zap.Logger) gameEngine {
	return gameEngine{
		game:   game,
		store:  store,
		ledger: ledger,
		log:    log.Named(string(game)),
		now:    time.Now,
	}
}

// SetClock replaces the engine clock.
func (e *gameEngine) SetClock(now func() time.Time) {
	e.now = now
}

func (e *gameEngine) inTx(ctx context.Context, fn func(q *storage.Queries) error) error {
	return e.store.InTx(ctx, fn)
}

// newSeeds returns a fresh server seed for one game.
func (e *gameEngine) newSeeds(clientSeed string, nonce int64) (fair.Seeds, error) {
	return fair.NewSeeds(clientSeed, nonce)
}

func (e *gameEngine) betPlaced(amount decimal.Decimal) {
	metrics.RecordBet(string(e.game), amount)
}

func (e *gameEngine) paidOut(amount decimal.Decimal) {
	metrics.RecordPayout(string(e.game), amount)
}

func (e *gameEngine) limit(n int) int {
	return models.ClampLimit(n, DefaultGamesLimit, MaxHistoryLimit)
}
