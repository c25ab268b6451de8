package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"casino-engine/internal/fair"
	"casino-engine/internal/models"
	"casino-engine/internal/storage"
)

const MaxAutoDrops = 100

// PlinkoRows are the supported board sizes.
var PlinkoRows = fair.PlinkoRowCounts

func mults(vs ...string) []decimal.Decimal {
	out := make([]decimal.Decimal, len(vs))
	for i, v := range vs {
		out[i] = decimal.RequireFromString(v)
	}
	return out
}

// plinkoTable maps risk and row count to one multiplier per bucket.
var plinkoTable = map[models.RiskLevel]map[int][]decimal.Decimal{
	models.RiskLow: {
		5:  mults("1.5", "1.2", "1.0", "0.9", "0.8", "0.9"),
		9:  mults("1.5", "1.3", "1.1", "1.0", "0.9", "0.8", "0.9", "1.0", "1.1", "1.3"),
		11: mults("1.5", "1.3", "1.2", "1.1", "1.0", "0.9", "0.8", "0.9", "1.0", "1.1", "1.2", "1.3"),
		13: mults("1.5", "1.4", "1.3", "1.2", "1.1", "1.0", "0.9", "0.8", "0.9", "1.0", "1.1", "1.2", "1.3", "1.4"),
		15: mults("1.5", "1.4", "1.3", "1.2", "1.1", "1.0", "0.9", "0.8", "0.7", "0.8", "0.9", "1.0", "1.1", "1.2", "1.3", "1.4"),
	},
	models.RiskMedium: {
		5:  mults("5.0", "2.0", "1.2", "0.5", "0.2", "0.5"),
		9:  mults("5.0", "3.0", "1.5", "1.0", "0.7", "0.3", "0.7", "1.0", "1.5", "3.0"),
		11: mults("5.0", "3.5", "2.0", "1.3", "1.0", "0.6", "0.3", "0.6", "1.0", "1.3", "2.0", "3.5"),
		13: mults("5.0", "4.0", "2.5", "1.5", "1.2", "0.8", "0.5", "0.2", "0.5", "0.8", "1.2", "1.5", "2.5", "4.0"),
		15: mults("5.0", "4.0", "3.0", "2.0", "1.5", "1.0", "0.7", "0.4", "0.2", "0.4", "0.7", "1.0", "1.5", "2.0", "3.0", "4.0"),
	},
	models.RiskHigh: {
		5:  mults("25.0", "5.0", "1.0", "0.2", "0.1", "0.2"),
		9:  mults("25.0", "10.0", "3.0", "1.0", "0.5", "0.1", "0.5", "1.0", "3.0", "10.0"),
		11: mults("25.0", "15.0", "5.0", "2.0", "1.0", "0.3", "0.1", "0.3", "1.0", "2.0", "5.0", "15.0"),
		13: mults("25.0", "18.0", "8.0", "3.0", "1.5", "0.7", "0.2", "0.1", "0.2", "0.7", "1.5", "3.0", "8.0", "18.0"),
		15: mults("25.0", "20.0", "10.0", "4.0", "2.0", "1.0", "0.5", "0.2", "0.1", "0.2", "0.5", "1.0", "2.0", "4.0", "10.0", "20.0"),
	},
}

// PlinkoMultiplier looks up the bucket multiplier.
func PlinkoMultiplier(risk models.RiskLevel, rows, bucket int) (decimal.Decimal, error) {
	byRows, ok := plinkoTable[risk]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: unknown risk level %q", models.ErrValidation, risk)
	}
	table, ok := byRows[rows]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: rows must be one of %v", models.ErrValidation, PlinkoRows)
	}
	if bucket < 0 || bucket >= len(table) {
		return decimal.Zero, fmt.Errorf("%w: bucket %d outside board of %d rows", models.ErrValidation, bucket, rows)
	}
	return table[bucket], nil
}

type PlinkoEngine struct {
	gameEngine
}

func NewPlinkoEngine(store *storage.Store, ledger *Ledger, log *zap.Logger) *PlinkoEngine {
	return &PlinkoEngine{gameEngine: newGameEngine(models.GameTypePlinko, store, ledger, log)}
}

func validatePlinko(req *models.PlinkoCreateRequest) error {
	if err := models.ValidateAmount("bet", req.BetAmount, decimal.Zero, models.OpenMax, true); err != nil {
		return err
	}
	risk, err := models.ParseRiskLevel(string(req.Risk))
	if err != nil {
		return err
	}
	req.Risk = risk
	if _, ok := plinkoTable[models.RiskLow][req.Rows]; !ok {
		return fmt.Errorf("%w: rows must be one of %v", models.ErrValidation, PlinkoRows)
	}
	return nil
}

// Create records a board without charging the bet. The server seed hash is
// fixed here so the path is committed before the drop.
func (e *PlinkoEngine) Create(ctx context.Context, userID int64, req models.PlinkoCreateRequest) (*models.PlinkoGame, error) {
	if err := validatePlinko(&req); err != nil {
		return nil, err
	}
	var game *models.PlinkoGame
	err := e.inTx(ctx, func(q *storage.Queries) error {
		var err error
		game, err = e.create(ctx, q, userID, req)
		return err
	})
	if err != nil {
		return nil, err
	}
	return game, nil
}

func (e *PlinkoEngine) create(ctx context.Context, q *storage.Queries, userID int64, req models.PlinkoCreateRequest) (*models.PlinkoGame, error) {
	seeds, err := e.newSeeds(req.ClientSeed, 0)
	if err != nil {
		return nil, err
	}
	game := &models.PlinkoGame{
		UserID:          userID,
		BetAmount:       req.BetAmount,
		Rows:            req.Rows,
		Risk:            req.Risk,
		FinalMultiplier: decimal.Zero,
		Payout:          decimal.Zero,
		Seeds:           seeds,
		CreatedAt:       e.now(),
	}
	if err := q.InsertPlinkoGame(ctx, game); err != nil {
		return nil, err
	}
	return game, nil
}

// Drop charges the bet, derives the path and pays the bucket.
func (e *PlinkoEngine) Drop(ctx context.Context, userID, gameID int64) (*models.PlinkoResult, error) {
	var game *models.PlinkoGame
	err := e.inTx(ctx, func(q *storage.Queries) error {
		var err error
		game, err = q.GetPlinkoGame(ctx, userID, gameID)
		if err != nil {
			return err
		}
		return e.drop(ctx, q, game)
	})
	if err != nil {
		return nil, err
	}
	e.dropped(game)
	return &models.PlinkoResult{Game: game, Seeds: game.Seeds}, nil
}

func (e *PlinkoEngine) drop(ctx context.Context, q *storage.Queries, game *models.PlinkoGame) error {
	if game.Completed {
		return fmt.Errorf("%w: ball already dropped", models.ErrStateConflict)
	}
	ref := models.GameRef(e.game, game.ID)
	if _, err := e.ledger.Debit(ctx, q, game.UserID, game.BetAmount,
		fmt.Sprintf("Plinko bet (%d rows, %s risk)", game.Rows, game.Risk), ref); err != nil {
		return err
	}

	path, bucket := fair.PlinkoPath(game.Seeds, game.Rows)
	mult, err := PlinkoMultiplier(game.Risk, game.Rows, bucket)
	if err != nil {
		return err
	}
	now := e.now()
	game.Completed = true
	game.BallPath = path
	game.BucketIndex = bucket
	game.FinalMultiplier = mult
	game.Payout = models.Payout(game.BetAmount, mult)
	game.DroppedAt = &now

	ok, err := q.CompletePlinkoGame(ctx, game)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: ball already dropped", models.ErrStateConflict)
	}
	_, err = e.ledger.Credit(ctx, q, game.UserID, game.Payout, models.EntryWin,
		fmt.Sprintf("Plinko win (x%s)", mult.StringFixed(1)), ref)
	return err
}

func (e *PlinkoEngine) dropped(game *models.PlinkoGame) {
	e.betPlaced(game.BetAmount)
	e.paidOut(game.Payout)
	e.log.Debug("plinko ball dropped",
		zap.Int64("game_id", game.ID),
		zap.Int("bucket", game.BucketIndex),
		zap.String("multiplier", game.FinalMultiplier.String()))
}

// AutoPlay creates and drops up to DropCount boards, each in its own
// transaction. It stops quietly at the first drop the balance cannot cover.
func (e *PlinkoEngine) AutoPlay(ctx context.Context, userID int64, req models.PlinkoAutoRequest) ([]*models.PlinkoResult, error) {
	if req.DropCount < 1 || req.DropCount > MaxAutoDrops {
		return nil, fmt.Errorf("%w: drop count must be between 1 and %d", models.ErrValidation, MaxAutoDrops)
	}
	if err := validatePlinko(&req.PlinkoCreateRequest); err != nil {
		return nil, err
	}

	results := make([]*models.PlinkoResult, 0, req.DropCount)
	for i := 0; i < req.DropCount; i++ {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		var game *models.PlinkoGame
		err := e.inTx(ctx, func(q *storage.Queries) error {
			var err error
			if game, err = e.create(ctx, q, userID, req.PlinkoCreateRequest); err != nil {
				return err
			}
			return e.drop(ctx, q, game)
		})
		if errors.Is(err, models.ErrInsufficientFunds) {
			e.log.Debug("auto play stopped", zap.Int64("user_id", userID), zap.Int("drops", i))
			break
		}
		if err != nil {
			return results, err
		}
		e.dropped(game)
		results = append(results, &models.PlinkoResult{Game: game, Seeds: game.Seeds})
	}
	return results, nil
}

// Get hides the seeds of a board that has not dropped yet.
func (e *PlinkoEngine) Get(ctx context.Context, userID, gameID int64) (*models.PlinkoResult, error) {
	game, err := e.store.Queries().GetPlinkoGame(ctx, userID, gameID)
	if err != nil {
		return nil, err
	}
	seeds := game.Seeds
	if !game.Completed {
		seeds = seeds.Public()
	}
	return &models.PlinkoResult{Game: game, Seeds: seeds}, nil
}

func (e *PlinkoEngine) List(ctx context.Context, userID int64, limit int) ([]*models.PlinkoGame, error) {
	return e.store.Queries().ListPlinkoGames(ctx, userID, e.limit(limit))
}

// Verify replays a dropped board from its revealed seeds.
func (e *PlinkoEngine) Verify(ctx context.Context, userID, gameID int64) (*models.VerificationData, error) {
	game, err := e.store.Queries().GetPlinkoGame(ctx, userID, gameID)
	if err != nil {
		return nil, err
	}
	data := &models.VerificationData{Game: e.game, ServerSeedHash: game.Seeds.ServerSeedHash}
	if !game.Completed {
		return data, nil
	}
	nonce := game.Seeds.Nonce
	valid := fair.VerifyServerSeedHash(game.Seeds.ServerSeed, game.Seeds.ServerSeedHash) &&
		fair.VerifyPlinkoPath(game.Seeds, game.BallPath)
	data.ServerSeed = game.Seeds.ServerSeed
	data.ClientSeed = game.Seeds.ClientSeed
	data.Nonce = &nonce
	data.IsValid = &valid
	return data, nil
}
