package services

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"casino-engine/internal/fair"
	"casino-engine/internal/metrics"
	"casino-engine/internal/models"
	"casino-engine/internal/storage"
)

const (
	MaxActiveBetsPerRound = 5
	DefaultRoundHistory   = 50

	crashGrowthPerSecond = 1.06
)

var (
	MinAutoCashout = decimal.RequireFromString("1.01")
	MaxAutoCashout = decimal.NewFromInt(10000)
)

type CrashTiming struct {
	Waiting time.Duration
	Pause   time.Duration
}

// CrashEngine runs the shared multiplayer round. Round transitions are
// written only by Advance; bets and cashouts may arrive concurrently and are
// settled by compare-and-set on the bet row.
type CrashEngine struct {
	gameEngine
	timing      CrashTiming
	broadcaster Broadcaster
}

func NewCrashEngine(store *storage.Store, ledger *Ledger, log *zap.Logger, timing CrashTiming) *CrashEngine {
	return &CrashEngine{
		gameEngine:  newGameEngine(models.GameTypeCrash, store, ledger, log),
		timing:      timing,
		broadcaster: nopBroadcaster{},
	}
}

func (e *CrashEngine) SetBroadcaster(b Broadcaster) {
	if b == nil {
		b = nopBroadcaster{}
	}
	e.broadcaster = b
}

// LiveMultiplier is 1.06^elapsed seconds truncated to cents and capped at
// the crash point. Rounds that are not active report 1.00.
func LiveMultiplier(round *models.CrashRound, now time.Time) decimal.Decimal {
	if round == nil || !round.IsActive() || round.StartedAt == nil {
		return models.One
	}
	elapsed := now.Sub(*round.StartedAt).Seconds()
	if elapsed < 0 {
		elapsed = 0
	}
	// The curve is only evaluated below the crash point.
	if elapsed >= math.Log(round.CrashPoint.InexactFloat64())/math.Log(crashGrowthPerSecond) {
		return round.CrashPoint
	}
	f := math.Pow(crashGrowthPerSecond, elapsed)
	if math.IsInf(f, 0) || math.IsNaN(f) {
		return round.CrashPoint
	}
	m := decimal.NewFromFloat(f).Truncate(2)
	if m.GreaterThan(round.CrashPoint) {
		return round.CrashPoint
	}
	return m
}

func (e *CrashEngine) CurrentMultiplier(round *models.CrashRound) decimal.Decimal {
	return LiveMultiplier(round, e.now())
}

// CurrentRound returns the waiting or active round, or nil between rounds.
func (e *CrashEngine) CurrentRound(ctx context.Context) (*models.CrashRound, error) {
	return e.store.Queries().CurrentRound(ctx)
}

// StartNewRound commits a fresh seed pair and opens betting. When a round is
// already current it is returned unchanged.
func (e *CrashEngine) StartNewRound(ctx context.Context) (*models.CrashRound, error) {
	clientSeed, err := fair.GenerateServerSeed()
	if err != nil {
		return nil, err
	}
	seeds, err := fair.NewSeeds(clientSeed, 0)
	if err != nil {
		return nil, err
	}
	now := e.now()
	next := now.Add(e.timing.Waiting)
	round := &models.CrashRound{
		RoundID:     models.NewRoundID(),
		Status:      models.RoundWaiting,
		CrashPoint:  fair.CrashPoint(seeds.ServerSeed, seeds.ClientSeed),
		Seeds:       seeds,
		CreatedAt:   now,
		NextRoundAt: &next,
	}

	created := false
	err = e.inTx(ctx, func(q *storage.Queries) error {
		cur, err := q.CurrentRound(ctx)
		if err != nil {
			return err
		}
		if cur != nil {
			round = cur
			return nil
		}
		created = true
		return q.InsertRound(ctx, round)
	})
	if err != nil {
		return nil, err
	}

	if created {
		e.log.Info("crash round created",
			zap.String("round_id", round.RoundID),
			zap.String("server_seed_hash", round.Seeds.ServerSeedHash),
			zap.Time("next_round_at", next))
		e.broadcaster.BroadcastRoundWaiting(e.snapshot(round, now, 0))
	}
	return round, nil
}

// ActivateRound starts the multiplier of a waiting round.
func (e *CrashEngine) ActivateRound(ctx context.Context, round *models.CrashRound) error {
	now := e.now()
	ok, err := e.store.Queries().ActivateRound(ctx, round.ID, now)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: round %s is not waiting", models.ErrStateConflict, round.RoundID)
	}
	round.Status = models.RoundActive
	round.StartedAt = &now
	e.log.Info("crash round started", zap.String("round_id", round.RoundID))
	return nil
}

// PlaceBet joins the current round while it is waiting or still running.
func (e *CrashEngine) PlaceBet(ctx context.Context, userID int64, req models.CrashBetRequest) (*models.CrashBet, error) {
	if err := models.ValidateAmount("amount", req.Amount, models.MinBet, CrashMaxBet, false); err != nil {
		return nil, err
	}
	var target decimal.NullDecimal
	if req.AutoCashoutTarget != nil {
		if err := models.ValidateAmount("auto cashout target", *req.AutoCashoutTarget, MinAutoCashout, MaxAutoCashout, false); err != nil {
			return nil, err
		}
		target = decimal.NewNullDecimal(*req.AutoCashoutTarget)
	}

	var (
		bet   *models.CrashBet
		round *models.CrashRound
	)
	err := e.inTx(ctx, func(q *storage.Queries) error {
		var err error
		round, err = q.CurrentRound(ctx)
		if err != nil {
			return err
		}
		now := e.now()
		if round == nil {
			return fmt.Errorf("%w: no round is accepting bets", models.ErrStateConflict)
		}
		if round.IsActive() && !LiveMultiplier(round, now).LessThan(round.CrashPoint) {
			return fmt.Errorf("%w: round %s has crashed", models.ErrStateConflict, round.RoundID)
		}

		n, err := q.CountActiveBets(ctx, userID, round.ID)
		if err != nil {
			return err
		}
		if n >= MaxActiveBetsPerRound {
			return fmt.Errorf("%w: at most %d active bets per round", models.ErrStateConflict, MaxActiveBetsPerRound)
		}

		bet = &models.CrashBet{
			UserID:            userID,
			RoundID:           round.ID,
			BetAmount:         req.Amount,
			Status:            models.BetActive,
			AutoCashoutTarget: target,
			WinAmount:         decimal.Zero,
			CreatedAt:         now,
		}
		if err := q.InsertBet(ctx, bet); err != nil {
			return err
		}
		_, err = e.ledger.Debit(ctx, q, userID, req.Amount,
			fmt.Sprintf("Crash bet on %s", round.RoundID), models.GameRef(e.game, bet.ID))
		return err
	})
	if err != nil {
		return nil, err
	}

	e.betPlaced(bet.BetAmount)
	e.log.Info("crash bet placed",
		zap.Int64("bet_id", bet.ID),
		zap.Int64("user_id", userID),
		zap.String("round_id", round.RoundID),
		zap.String("amount", bet.BetAmount.StringFixed(2)))
	return bet, nil
}

// Cashout settles the bet at the live multiplier. It loses to the sweep and
// to the crash if either reached the bet first.
func (e *CrashEngine) Cashout(ctx context.Context, userID, betID int64) (*models.CrashBet, error) {
	var bet *models.CrashBet
	err := e.inTx(ctx, func(q *storage.Queries) error {
		var err error
		bet, err = q.GetBet(ctx, userID, betID)
		if err != nil {
			return err
		}
		if bet.Status != models.BetActive {
			return fmt.Errorf("%w: bet already %s", models.ErrStateConflict, bet.Status)
		}
		round, err := q.GetRound(ctx, bet.RoundID)
		if err != nil {
			return err
		}
		if !round.IsActive() {
			return fmt.Errorf("%w: round %s is %s", models.ErrStateConflict, round.RoundID, round.Status)
		}

		now := e.now()
		m := LiveMultiplier(round, now)
		if !m.LessThan(round.CrashPoint) {
			return fmt.Errorf("%w: round %s has crashed", models.ErrStateConflict, round.RoundID)
		}
		ok, err := e.settle(ctx, q, bet, m, now)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: bet already settled", models.ErrStateConflict)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.paidOut(bet.WinAmount)
	e.log.Info("crash bet cashed out",
		zap.Int64("bet_id", bet.ID),
		zap.String("multiplier", bet.CashoutMultiplier.Decimal.StringFixed(2)),
		zap.String("win", bet.WinAmount.StringFixed(2)))
	return bet, nil
}

// settle moves the bet out of active and credits the win. It reports false
// when another settlement got there first.
func (e *CrashEngine) settle(ctx context.Context, q *storage.Queries, bet *models.CrashBet, mult decimal.Decimal, at time.Time) (bool, error) {
	win := models.Payout(bet.BetAmount, mult)
	ok, err := q.CashOutBet(ctx, bet.ID, mult, win, at)
	if err != nil || !ok {
		return false, err
	}
	bet.Status = models.BetCashedOut
	bet.CashoutMultiplier = decimal.NewNullDecimal(mult)
	bet.WinAmount = win
	bet.SettledAt = &at

	_, err = e.ledger.Credit(ctx, q, bet.UserID, win, models.EntryWin,
		fmt.Sprintf("Crash cashout at x%s", mult.StringFixed(2)), models.GameRef(e.game, bet.ID))
	return err == nil, err
}

// ProcessAutoCashouts settles every active bet whose target has been reached.
// Bets are paid at their target, not at the live multiplier.
func (e *CrashEngine) ProcessAutoCashouts(ctx context.Context, round *models.CrashRound, multiplier decimal.Decimal) (int, error) {
	due, err := e.store.Queries().DueAutoCashouts(ctx, round.ID, multiplier)
	if err != nil {
		return 0, err
	}

	settled := 0
	for _, bet := range due {
		var ok bool
		err := e.inTx(ctx, func(q *storage.Queries) error {
			var err error
			ok, err = e.settle(ctx, q, bet, bet.AutoCashoutTarget.Decimal, e.now())
			return err
		})
		if err != nil {
			return settled, err
		}
		if !ok {
			continue
		}
		settled++
		e.paidOut(bet.WinAmount)
		e.log.Debug("auto cashout",
			zap.Int64("bet_id", bet.ID),
			zap.String("target", bet.AutoCashoutTarget.Decimal.StringFixed(2)),
			zap.String("win", bet.WinAmount.StringFixed(2)))
	}
	return settled, nil
}

// CrashRound ends the round and marks every unsettled bet lost.
func (e *CrashEngine) CrashRound(ctx context.Context, round *models.CrashRound) (int64, error) {
	now := e.now()
	var lost int64
	err := e.inTx(ctx, func(q *storage.Queries) error {
		ok, err := q.CrashRound(ctx, round.ID, now)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: round %s is not active", models.ErrStateConflict, round.RoundID)
		}
		lost, err = q.LoseActiveBets(ctx, round.ID, now)
		return err
	})
	if err != nil {
		return 0, err
	}

	round.Status = models.RoundCrashed
	round.CrashedAt = &now
	metrics.CrashRoundsTotal.Inc()
	metrics.CrashPoint.Observe(round.CrashPoint.InexactFloat64())
	e.log.Info("crash round crashed",
		zap.String("round_id", round.RoundID),
		zap.String("crash_point", round.CrashPoint.StringFixed(2)),
		zap.Int64("lost_bets", lost))
	e.broadcaster.BroadcastRoundCrash(round.Summary())
	return lost, nil
}

// Advance performs whichever round transition is due. It is safe to call at
// any rate; calls with nothing due are no-ops.
func (e *CrashEngine) Advance(ctx context.Context) error {
	round, err := e.CurrentRound(ctx)
	if err != nil {
		return err
	}
	now := e.now()

	if round == nil {
		last, err := e.store.Queries().LastCrashedRound(ctx)
		if err != nil {
			return err
		}
		if last != nil && last.CrashedAt != nil && now.Before(last.CrashedAt.Add(e.timing.Pause)) {
			return nil
		}
		_, err = e.StartNewRound(ctx)
		return err
	}

	switch round.Status {
	case models.RoundWaiting:
		if round.NextRoundAt == nil || !now.Before(*round.NextRoundAt) {
			return e.ActivateRound(ctx, round)
		}
	case models.RoundActive:
		m := LiveMultiplier(round, now)
		if _, err := e.ProcessAutoCashouts(ctx, round, m); err != nil {
			return err
		}
		if m.LessThan(round.CrashPoint) {
			e.broadcaster.BroadcastRoundUpdate(round.RoundID, m)
			return nil
		}
		if _, err := e.CrashRound(ctx, round); err != nil {
			return err
		}
		if e.timing.Pause <= 0 {
			_, err := e.StartNewRound(ctx)
			return err
		}
	}
	return nil
}

// State is the public snapshot of the current round, or of the last crashed
// round between rounds.
func (e *CrashEngine) State(ctx context.Context) (*models.CrashState, error) {
	q := e.store.Queries()
	round, err := q.CurrentRound(ctx)
	if err != nil {
		return nil, err
	}
	if round == nil {
		if round, err = q.LastCrashedRound(ctx); err != nil {
			return nil, err
		}
	}
	now := e.now()
	if round == nil {
		return &models.CrashState{Multiplier: models.One, UpdatedAt: now}, nil
	}

	active := 0
	if !round.IsCrashed() {
		if active, err = q.CountRoundActiveBets(ctx, round.ID); err != nil {
			return nil, err
		}
	}
	state := e.snapshot(round, now, active)
	return &state, nil
}

func (e *CrashEngine) snapshot(round *models.CrashRound, now time.Time, activeBets int) models.CrashState {
	state := models.CrashState{
		RoundID:        round.RoundID,
		Status:         round.Status,
		Multiplier:     LiveMultiplier(round, now),
		ServerSeedHash: round.Seeds.ServerSeedHash,
		NextRoundAt:    round.NextRoundAt,
		ActiveBets:     activeBets,
		UpdatedAt:      now,
	}
	if round.IsCrashed() {
		cp := round.CrashPoint
		state.CrashPoint = &cp
		state.Multiplier = cp
		if round.CrashedAt != nil {
			next := round.CrashedAt.Add(e.timing.Pause)
			state.NextRoundAt = &next
		}
	}
	return state
}

// History lists crashed rounds newest first with their seeds revealed.
func (e *CrashEngine) History(ctx context.Context, limit int) ([]models.RoundSummary, error) {
	rounds, err := e.store.Queries().ListCrashedRounds(ctx, models.ClampLimit(limit, DefaultRoundHistory, MaxHistoryLimit))
	if err != nil {
		return nil, err
	}
	out := make([]models.RoundSummary, 0, len(rounds))
	for _, r := range rounds {
		out = append(out, r.Summary())
	}
	return out, nil
}

// UserBets lists the user's bets in a round. A zero roundID means the
// current round, or the last crashed one between rounds.
func (e *CrashEngine) UserBets(ctx context.Context, userID, roundID int64) ([]*models.CrashBet, error) {
	q := e.store.Queries()
	if roundID == 0 {
		round, err := q.CurrentRound(ctx)
		if err != nil {
			return nil, err
		}
		if round == nil {
			if round, err = q.LastCrashedRound(ctx); err != nil {
				return nil, err
			}
		}
		if round == nil {
			return []*models.CrashBet{}, nil
		}
		roundID = round.ID
	}
	bets, err := q.ListUserRoundBets(ctx, userID, roundID)
	if err != nil {
		return nil, err
	}
	if bets == nil {
		bets = []*models.CrashBet{}
	}
	return bets, nil
}
