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

const DefaultReelsCount = 5

var (
	threeMatch = map[fair.Symbol]decimal.Decimal{
		fair.Cherry: decimal.RequireFromString("4.50"),
		fair.Lemon:  decimal.RequireFromString("6.10"),
		fair.Orange: decimal.RequireFromString("9.00"),
		fair.Star:   decimal.RequireFromString("13.20"),
		fair.Bell:   decimal.RequireFromString("22.50"),
		fair.Seven:  decimal.RequireFromString("45.00"),
		fair.Gift:   decimal.RequireFromString("28.00"),
	}
	twoMatch = map[fair.Symbol]decimal.Decimal{
		fair.Cherry: decimal.RequireFromString("1.12"),
		fair.Lemon:  decimal.RequireFromString("0.92"),
		fair.Orange: decimal.RequireFromString("1.32"),
		fair.Star:   decimal.RequireFromString("1.80"),
		fair.Bell:   decimal.RequireFromString("2.25"),
		fair.Seven:  decimal.RequireFromString("3.30"),
		fair.Gift:   decimal.RequireFromString("1.32"),
	}

	// fiveReel maps a symbol to its payout by effective run length.
	fiveReel = map[fair.Symbol][6]decimal.Decimal{
		fair.Cherry: {2: d2("0.5"), 3: d2("0.8"), 4: d2("2.0"), 5: d2("5.0")},
		fair.Lemon:  {2: d2("0.6"), 3: d2("1.0"), 4: d2("2.5"), 5: d2("7.0")},
		fair.Orange: {2: d2("0.7"), 3: d2("1.2"), 4: d2("3.5"), 5: d2("10.0")},
		fair.Star:   {2: d2("0.8"), 3: d2("1.8"), 4: d2("5.0"), 5: d2("15.0")},
		fair.Bell:   {2: d2("1.0"), 3: d2("2.5"), 4: d2("6.5"), 5: d2("20.0")},
		fair.Seven:  {2: d2("1.2"), 3: d2("3.5"), 4: d2("8.5"), 5: d2("30.0")},
	}

	wildPairBonus = decimal.RequireFromString("1.5")
	wildRunBonus  = decimal.RequireFromString("1.2")
)

func d2(v string) decimal.Decimal { return decimal.RequireFromString(v) }

// EvaluateReels returns the multiplier and a label for the winning line.
// A losing spin returns zero and an empty label.
func EvaluateReels(reels []fair.Symbol) (decimal.Decimal, string) {
	var (
		mult  decimal.Decimal
		combo string
	)
	switch len(reels) {
	case 3:
		mult, combo = evaluateThree(reels)
	case 5:
		mult, combo = evaluateFive(reels)
	default:
		return decimal.Zero, ""
	}
	return mult.RoundBank(2), combo
}

// symbolCounts counts non-wild symbols in first-seen order.
func symbolCounts(reels []fair.Symbol) (order []fair.Symbol, counts map[fair.Symbol]int, wilds int) {
	counts = make(map[fair.Symbol]int)
	for _, s := range reels {
		if s == fair.Wild {
			wilds++
			continue
		}
		if counts[s] == 0 {
			order = append(order, s)
		}
		counts[s]++
	}
	return order, counts, wilds
}

func evaluateThree(reels []fair.Symbol) (decimal.Decimal, string) {
	order, counts, wilds := symbolCounts(reels)
	switch wilds {
	case 3:
		return threeMatch[fair.Wild], fmt.Sprintf("3x %s jackpot", fair.Wild)
	case 2:
		return twoMatch[fair.Wild], fmt.Sprintf("2x %s", fair.Wild)
	}

	var top fair.Symbol
	for _, s := range order {
		if counts[s] > counts[top] {
			top = s
		}
	}
	switch {
	case counts[top] == 3:
		return threeMatch[top], fmt.Sprintf("3x %s", top)
	case counts[top] == 2 && wilds > 0:
		return twoMatch[top].Mul(wildPairBonus), fmt.Sprintf("2x %s + %s bonus", top, fair.Wild)
	case counts[top] == 2:
		return twoMatch[top], fmt.Sprintf("2x %s", top)
	}
	return decimal.Zero, ""
}

func evaluateFive(reels []fair.Symbol) (decimal.Decimal, string) {
	order, counts, wilds := symbolCounts(reels)
	if wilds == len(reels) {
		return fiveReel[fair.Seven][5], fmt.Sprintf("5x %s mega jackpot", fair.Wild)
	}

	var (
		best      = decimal.Zero
		bestSym   fair.Symbol
		bestCount int
	)
	for _, s := range order {
		n := counts[s] + wilds
		if n > 5 {
			n = 5
		}
		if n < 2 {
			continue
		}
		if m := fiveReel[s][n]; m.GreaterThan(best) {
			best, bestSym, bestCount = m, s, n
		}
	}
	if !best.IsPositive() {
		return decimal.Zero, ""
	}
	if wilds == 0 {
		return best, fmt.Sprintf("%dx %s", bestCount, bestSym)
	}
	if best.GreaterThan(models.One) && bestCount >= 3 {
		return best.Mul(wildRunBonus), fmt.Sprintf("%dx %s + %s bonus", bestCount, bestSym, fair.Wild)
	}
	return best, fmt.Sprintf("%dx %s (with %s)", bestCount, bestSym, fair.Wild)
}

type SlotsEngine struct {
	gameEngine
}

func NewSlotsEngine(store *storage.Store, ledger *Ledger, log *zap.Logger) *SlotsEngine {
	return &SlotsEngine{gameEngine: newGameEngine(models.GameTypeSlots, store, ledger, log)}
}

// Play spins the reels and settles immediately.
func (e *SlotsEngine) Play(ctx context.Context, userID int64, req models.SlotsPlayRequest) (*models.SlotsGame, error) {
	if err := models.ValidateAmount("bet", req.BetAmount, models.MinBet, DiceSlotsMaxBet, false); err != nil {
		return nil, err
	}
	if req.ReelsCount == 0 {
		req.ReelsCount = DefaultReelsCount
	}
	if req.ReelsCount != 3 && req.ReelsCount != 5 {
		return nil, fmt.Errorf("%w: reels count must be 3 or 5", models.ErrValidation)
	}
	seeds, err := e.newSeeds(req.ClientSeed, 0)
	if err != nil {
		return nil, err
	}

	reels := fair.Reels(seeds, req.ReelsCount)
	mult, combo := EvaluateReels(reels)
	game := &models.SlotsGame{
		UserID:             userID,
		BetAmount:          req.BetAmount,
		ReelsCount:         req.ReelsCount,
		Reels:              reels,
		Multiplier:         mult,
		WinAmount:          models.Payout(req.BetAmount, mult),
		WinningCombination: combo,
		Seeds:              seeds,
		CreatedAt:          e.now(),
	}

	err = e.inTx(ctx, func(q *storage.Queries) error {
		if err := q.InsertSlotsGame(ctx, game); err != nil {
			return err
		}
		ref := models.GameRef(e.game, game.ID)
		if _, err := e.ledger.Debit(ctx, q, userID, game.BetAmount,
			fmt.Sprintf("Slots bet (%d reels)", game.ReelsCount), ref); err != nil {
			return err
		}
		_, err := e.ledger.Credit(ctx, q, userID, game.WinAmount, models.EntryWin,
			fmt.Sprintf("Slots win (%d reels, x%s)", game.ReelsCount, game.Multiplier.StringFixed(2)), ref)
		return err
	})
	if err != nil {
		return nil, err
	}

	e.betPlaced(game.BetAmount)
	e.paidOut(game.WinAmount)
	e.log.Debug("slots spun",
		zap.Int64("game_id", game.ID),
		zap.Int("reels", game.ReelsCount),
		zap.String("multiplier", game.Multiplier.StringFixed(2)))
	return game, nil
}

func (e *SlotsEngine) Get(ctx context.Context, userID, gameID int64) (*models.SlotsGame, error) {
	return e.store.Queries().GetSlotsGame(ctx, userID, gameID)
}

func (e *SlotsEngine) List(ctx context.Context, userID int64, limit int) ([]*models.SlotsGame, error) {
	return e.store.Queries().ListSlotsGames(ctx, userID, e.limit(limit))
}

func (e *SlotsEngine) Verify(ctx context.Context, userID, gameID int64) (*models.VerificationData, error) {
	game, err := e.Get(ctx, userID, gameID)
	if err != nil {
		return nil, err
	}
	return settledVerification(e.game, game.Seeds, fair.VerifyReels(game.Seeds, game.Reels)), nil
}
