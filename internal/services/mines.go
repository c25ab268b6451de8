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

type MinesEngine struct {
	gameEngine
}

func NewMinesEngine(store *storage.Store, ledger *Ledger, log *zap.Logger) *MinesEngine {
	return &MinesEngine{gameEngine: newGameEngine(models.GameTypeMines, store, ledger, log)}
}

// MinesMultiplier is the fair-odds payout after opened safe cells with
// mineCount mines: the product of (25-i)/(25-m-i), rounded half-even to cents.
// No extra house edge is applied.
func MinesMultiplier(mineCount, opened int) decimal.Decimal {
	if opened <= 0 {
		return models.One
	}
	m := models.One
	for i := 0; i < opened; i++ {
		num := decimal.NewFromInt(int64(fair.CellCount - i))
		den := decimal.NewFromInt(int64(fair.CellCount - mineCount - i))
		m = m.Mul(num.DivRound(den, 28))
	}
	return m.RoundBank(2)
}

func validateMineCount(n int) error {
	if n < fair.MinMines || n > fair.MaxMines {
		return fmt.Errorf("%w: mine count must be between %d and %d", models.ErrValidation, fair.MinMines, fair.MaxMines)
	}
	return nil
}

func validateCell(c fair.Cell) error {
	if !c.Valid() {
		return fmt.Errorf("%w: cell %s outside the %dx%d grid", models.ErrValidation, c, fair.GridSize, fair.GridSize)
	}
	return nil
}

// Create charges the bet and fixes the mine layout.
func (e *MinesEngine) Create(ctx context.Context, userID int64, req models.MinesCreateRequest) (*models.MinesGame, error) {
	if err := models.ValidateAmount("bet", req.BetAmount, decimal.Zero, models.OpenMax, true); err != nil {
		return nil, err
	}
	if err := validateMineCount(req.MineCount); err != nil {
		return nil, err
	}

	var game *models.MinesGame
	err := e.inTx(ctx, func(q *storage.Queries) error {
		nonce, err := q.CountMinesGames(ctx, userID)
		if err != nil {
			return err
		}
		seeds, err := e.newSeeds(req.ClientSeed, nonce)
		if err != nil {
			return err
		}
		mines, err := fair.MinePositions(seeds, req.MineCount)
		if err != nil {
			return err
		}

		game = &models.MinesGame{
			UserID:            userID,
			BetAmount:         req.BetAmount,
			MineCount:         req.MineCount,
			State:             models.MinesActive,
			OpenedCells:       []fair.Cell{},
			CurrentMultiplier: models.One,
			Payout:            decimal.Zero,
			Seeds:             seeds,
			MinePositions:     mines,
			CreatedAt:         e.now(),
		}
		if err := q.InsertMinesGame(ctx, game); err != nil {
			return err
		}

		_, err = e.ledger.Debit(ctx, q, userID, req.BetAmount,
			fmt.Sprintf("Mines bet (%d mines)", req.MineCount), models.GameRef(e.game, game.ID))
		return err
	})
	if err != nil {
		return nil, err
	}

	e.betPlaced(game.BetAmount)
	e.log.Info("mines game created",
		zap.Int64("game_id", game.ID),
		zap.Int64("user_id", userID),
		zap.Int("mines", game.MineCount),
		zap.String("server_seed_hash", game.Seeds.ServerSeedHash))
	return game, nil
}

// OpenCell reveals one cell. Hitting a mine ends the game and reveals the
// layout and seeds. Opening the last safe cell settles the game as won.
func (e *MinesEngine) OpenCell(ctx context.Context, userID, gameID int64, cell fair.Cell) (*models.MinesOpenResult, error) {
	if err := validateCell(cell); err != nil {
		return nil, err
	}

	var result *models.MinesOpenResult
	err := e.inTx(ctx, func(q *storage.Queries) error {
		game, err := q.GetMinesGame(ctx, userID, gameID)
		if err != nil {
			return err
		}
		if !game.IsActive() {
			return fmt.Errorf("%w: game already finished as %s", models.ErrStateConflict, game.State)
		}
		if game.IsOpened(cell) {
			return fmt.Errorf("%w: cell %s already opened", models.ErrStateConflict, cell)
		}

		now := e.now()
		if game.IsMine(cell) {
			game.State = models.MinesLost
			game.CurrentMultiplier = decimal.Zero
			game.EndedAt = &now
			if err := e.save(ctx, q, game); err != nil {
				return err
			}
			seeds := game.Seeds
			result = openResult(game, true)
			result.MinePositions = game.MinePositions
			result.Seeds = &seeds
			return nil
		}

		game.OpenedCells = append(game.OpenedCells, cell)
		game.CurrentMultiplier = MinesMultiplier(game.MineCount, len(game.OpenedCells))
		if game.SafeCellsRemaining() == 0 {
			if err := e.settle(ctx, q, game, models.MinesWon); err != nil {
				return err
			}
			seeds := game.Seeds
			result = openResult(game, false)
			result.MinePositions = game.MinePositions
			result.Seeds = &seeds
			return nil
		}

		if err := e.save(ctx, q, game); err != nil {
			return err
		}
		result = openResult(game, false)
		return nil
	})
	if err != nil {
		return nil, err
	}

	if result.State != models.MinesActive {
		e.paidOut(result.Payout)
		e.log.Info("mines game finished",
			zap.Int64("game_id", gameID),
			zap.String("state", string(result.State)),
			zap.String("payout", result.Payout.StringFixed(2)))
	}
	return result, nil
}

// Cashout pays bet times the current multiplier. At least one safe cell
// must be open.
func (e *MinesEngine) Cashout(ctx context.Context, userID, gameID int64) (*models.MinesGame, error) {
	var game *models.MinesGame
	err := e.inTx(ctx, func(q *storage.Queries) error {
		var err error
		game, err = q.GetMinesGame(ctx, userID, gameID)
		if err != nil {
			return err
		}
		if !game.IsActive() {
			return fmt.Errorf("%w: game already finished as %s", models.ErrStateConflict, game.State)
		}
		if len(game.OpenedCells) == 0 {
			return fmt.Errorf("%w: open at least one cell before cashing out", models.ErrStateConflict)
		}
		return e.settle(ctx, q, game, models.MinesCashedOut)
	})
	if err != nil {
		return nil, err
	}

	e.paidOut(game.Payout)
	e.log.Info("mines game cashed out",
		zap.Int64("game_id", game.ID),
		zap.String("multiplier", game.CurrentMultiplier.StringFixed(2)),
		zap.String("payout", game.Payout.StringFixed(2)))
	return game, nil
}

func (e *MinesEngine) settle(ctx context.Context, q *storage.Queries, game *models.MinesGame, state models.MinesState) error {
	now := e.now()
	game.State = state
	game.Payout = models.Payout(game.BetAmount, game.CurrentMultiplier)
	game.EndedAt = &now
	if err := e.save(ctx, q, game); err != nil {
		return err
	}
	_, err := e.ledger.Credit(ctx, q, game.UserID, game.Payout, models.EntryWin,
		fmt.Sprintf("Mines win (x%s)", game.CurrentMultiplier.StringFixed(2)), models.GameRef(e.game, game.ID))
	return err
}

func (e *MinesEngine) save(ctx context.Context, q *storage.Queries, game *models.MinesGame) error {
	ok, err := q.UpdateActiveMinesGame(ctx, game)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: game %d is no longer active", models.ErrStateConflict, game.ID)
	}
	return nil
}

func openResult(game *models.MinesGame, isMine bool) *models.MinesOpenResult {
	safeLeft := game.SafeCellsRemaining()
	if safeLeft < 0 {
		safeLeft = 0
	}
	return &models.MinesOpenResult{
		GameID:             game.ID,
		IsMine:             isMine,
		Multiplier:         game.CurrentMultiplier,
		State:              game.State,
		OpenedCells:        game.OpenedCells,
		OpenedCount:        len(game.OpenedCells),
		SafeCellsRemaining: safeLeft,
		Payout:             game.Payout,
	}
}

func (e *MinesEngine) Get(ctx context.Context, userID, gameID int64) (*models.MinesGame, error) {
	return e.store.Queries().GetMinesGame(ctx, userID, gameID)
}

func (e *MinesEngine) List(ctx context.Context, userID int64, limit int) ([]*models.MinesGame, error) {
	return e.store.Queries().ListMinesGames(ctx, userID, e.limit(limit))
}

// Verification always publishes the seed hash. Seeds and the layout are
// released only once the game has ended.
func (e *MinesEngine) Verification(ctx context.Context, userID, gameID int64) (*models.VerificationData, error) {
	game, err := e.Get(ctx, userID, gameID)
	if err != nil {
		return nil, err
	}

	data := &models.VerificationData{
		Game:           e.game,
		ServerSeedHash: game.Seeds.ServerSeedHash,
		MineCount:      game.MineCount,
	}
	if !game.IsEnded() {
		return data, nil
	}

	nonce := game.Seeds.Nonce
	valid := fair.VerifyServerSeedHash(game.Seeds.ServerSeed, game.Seeds.ServerSeedHash) &&
		fair.VerifyMinePositions(game.Seeds, game.MineCount, game.MinePositions)
	data.ServerSeed = game.Seeds.ServerSeed
	data.ClientSeed = game.Seeds.ClientSeed
	data.Nonce = &nonce
	data.MinePositions = game.MinePositions
	data.IsValid = &valid
	return data, nil
}
