package services

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"casino-engine/internal/fair"
	"casino-engine/internal/models"
	"casino-engine/internal/storage"
)

var DiceWinMultiplier = decimal.RequireFromString("6.00")

type DiceEngine struct {
	gameEngine
}

func NewDiceEngine(store *storage.Store, ledger *Ledger, log *zap.Logger) *DiceEngine {
	return &DiceEngine{gameEngine: newGameEngine(models.GameTypeDice, store, ledger, log)}
}

// Play rolls one die against the selected face and settles immediately.
func (e *DiceEngine) Play(ctx context.Context, userID int64, req models.DicePlayRequest) (*models.DiceGame, error) {
	if err := models.ValidateAmount("bet", req.BetAmount, models.MinBet, DiceSlotsMaxBet, false); err != nil {
		return nil, err
	}
	if req.SelectedNumber < 1 || req.SelectedNumber > fair.DiceFaces {
		return nil, fmt.Errorf("%w: selected number must be between 1 and %d", models.ErrValidation, fair.DiceFaces)
	}
	seeds, err := e.newSeeds(req.ClientSeed, 0)
	if err != nil {
		return nil, err
	}

	rolled := fair.DiceRoll(seeds)
	game := &models.DiceGame{
		UserID:         userID,
		BetAmount:      req.BetAmount,
		SelectedNumber: req.SelectedNumber,
		RolledNumber:   rolled,
		Won:            rolled == req.SelectedNumber,
		Multiplier:     decimal.Zero,
		Payout:         decimal.Zero,
		Seeds:          seeds,
		CreatedAt:      e.now(),
	}
	if game.Won {
		game.Multiplier = DiceWinMultiplier
		game.Payout = models.Payout(game.BetAmount, DiceWinMultiplier)
	}

	err = e.inTx(ctx, func(q *storage.Queries) error {
		if err := q.InsertDiceGame(ctx, game); err != nil {
			return err
		}
		ref := models.GameRef(e.game, game.ID)
		if _, err := e.ledger.Debit(ctx, q, userID, game.BetAmount,
			fmt.Sprintf("Dice bet on %d", game.SelectedNumber), ref); err != nil {
			return err
		}
		_, err := e.ledger.Credit(ctx, q, userID, game.Payout, models.EntryWin,
			fmt.Sprintf("Dice win, rolled %d", game.RolledNumber), ref)
		return err
	})
	if err != nil {
		return nil, err
	}

	e.betPlaced(game.BetAmount)
	e.paidOut(game.Payout)
	e.log.Debug("dice rolled",
		zap.Int64("game_id", game.ID),
		zap.Int("selected", game.SelectedNumber),
		zap.Int("rolled", game.RolledNumber))
	return game, nil
}

func (e *DiceEngine) Get(ctx context.Context, userID, gameID int64) (*models.DiceGame, error) {
	return e.store.Queries().GetDiceGame(ctx, userID, gameID)
}

func (e *DiceEngine) List(ctx context.Context, userID int64, limit int) ([]*models.DiceGame, error) {
	return e.store.Queries().ListDiceGames(ctx, userID, e.limit(limit))
}

func (e *DiceEngine) Verify(ctx context.Context, userID, gameID int64) (*models.VerificationData, error) {
	game, err := e.Get(ctx, userID, gameID)
	if err != nil {
		return nil, err
	}
	return settledVerification(e.game, game.Seeds,
		fair.VerifyDiceRoll(game.Seeds, game.RolledNumber)), nil
}

// settledVerification reveals the seeds of an immediately settled game.
func settledVerification(game models.GameType, seeds fair.Seeds, outcomeValid bool) *models.VerificationData {
	nonce := seeds.Nonce
	valid := outcomeValid && fair.VerifyServerSeedHash(seeds.ServerSeed, seeds.ServerSeedHash)
	return &models.VerificationData{
		Game:           game,
		ServerSeedHash: seeds.ServerSeedHash,
		ServerSeed:     seeds.ServerSeed,
		ClientSeed:     seeds.ClientSeed,
		Nonce:          &nonce,
		IsValid:        &valid,
	}
}
