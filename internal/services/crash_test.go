package services_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"casino-engine/internal/fair"
	"casino-engine/internal/models"
	"casino-engine/internal/services"
)

type recordingBroadcaster struct {
	mu      sync.Mutex
	waiting []models.CrashState
	updates []decimal.Decimal
	crashes []models.RoundSummary
}

func (b *recordingBroadcaster) BroadcastRoundWaiting(state models.CrashState) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.waiting = append(b.waiting, state)
}

func (b *recordingBroadcaster) BroadcastRoundUpdate(_ string, m decimal.Decimal) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.updates = append(b.updates, m)
}

func (b *recordingBroadcaster) BroadcastRoundCrash(summary models.RoundSummary) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.crashes = append(b.crashes, summary)
}

type crashFixture struct {
	*testEnv
	engine *services.CrashEngine
	events *recordingBroadcaster
	now    time.Time
}

func newCrash(t *testing.T) *crashFixture {
	env := newTestEnv(t)
	f := &crashFixture{
		testEnv: env,
		engine: services.NewCrashEngine(env.store, env.ledger, zap.NewNop(), services.CrashTiming{
			Waiting: 8 * time.Second,
			Pause:   time.Second,
		}),
		events: &recordingBroadcaster{},
		now:    time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC),
	}
	f.engine.SetClock(func() time.Time { return f.now })
	f.engine.SetBroadcaster(f.events)
	return f
}

func (f *crashFixture) advanceClock(d time.Duration) {
	f.now = f.now.Add(d)
}

// insertRound stores a waiting round with a chosen crash point.
func (f *crashFixture) insertRound(t *testing.T, crashPoint string) *models.CrashRound {
	t.Helper()
	seeds, err := fair.NewSeeds("", 0)
	require.NoError(t, err)
	next := f.now.Add(8 * time.Second)
	round := &models.CrashRound{
		RoundID:     models.NewRoundID(),
		Status:      models.RoundWaiting,
		CrashPoint:  dec(crashPoint),
		Seeds:       seeds,
		CreatedAt:   f.now,
		NextRoundAt: &next,
	}
	require.NoError(t, f.store.Queries().InsertRound(context.Background(), round))
	return round
}

func (f *crashFixture) bet(t *testing.T, userID int64, amount, target string) *models.CrashBet {
	t.Helper()
	req := models.CrashBetRequest{Amount: dec(amount)}
	if target != "" {
		v := dec(target)
		req.AutoCashoutTarget = &v
	}
	bet, err := f.engine.PlaceBet(context.Background(), userID, req)
	require.NoError(t, err)
	return bet
}

func (f *crashFixture) getBet(t *testing.T, userID, id int64) *models.CrashBet {
	t.Helper()
	bet, err := f.store.Queries().GetBet(context.Background(), userID, id)
	require.NoError(t, err)
	return bet
}

func TestLiveMultiplier(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	round := &models.CrashRound{Status: models.RoundWaiting, CrashPoint: dec("5.00")}
	assert.Equal(t, "1.00", services.LiveMultiplier(round, start).StringFixed(2))
	assert.Equal(t, "1.00", services.LiveMultiplier(nil, start).StringFixed(2))

	round.Status = models.RoundActive
	round.StartedAt = &start
	assert.Equal(t, "1.00", services.LiveMultiplier(round, start).StringFixed(2))
	assert.Equal(t, "1.33", services.LiveMultiplier(round, start.Add(5*time.Second)).StringFixed(2))
	assert.Equal(t, "2.01", services.LiveMultiplier(round, start.Add(12*time.Second)).StringFixed(2))

	prev := decimal.Zero
	for ms := 0; ms <= 60_000; ms += 100 {
		m := services.LiveMultiplier(round, start.Add(time.Duration(ms)*time.Millisecond))
		assert.False(t, m.LessThan(prev), "multiplier decreased at %dms", ms)
		assert.False(t, m.GreaterThan(round.CrashPoint), "multiplier above crash point at %dms", ms)
		prev = m
	}
	assert.True(t, prev.Equal(round.CrashPoint))

	round.CrashPoint = dec("10000.00")
	for _, d := range []time.Duration{4 * time.Hour, 12_181 * time.Second, 365 * 24 * time.Hour} {
		assert.Equal(t, "10000.00", services.LiveMultiplier(round, start.Add(d)).StringFixed(2), "after %s", d)
	}
}

func TestCrashStartNewRound(t *testing.T) {
	f := newCrash(t)
	ctx := context.Background()

	round, err := f.engine.StartNewRound(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.RoundWaiting, round.Status)
	assert.Equal(t, f.now.Add(8*time.Second), *round.NextRoundAt)
	assert.Equal(t, fair.HashSeed(round.Seeds.ServerSeed), round.Seeds.ServerSeedHash)
	assert.True(t, fair.CrashPoint(round.Seeds.ServerSeed, round.Seeds.ClientSeed).Equal(round.CrashPoint))
	assert.Len(t, round.Seeds.ClientSeed, 64)
	assert.Len(t, f.events.waiting, 1)

	again, err := f.engine.StartNewRound(ctx)
	require.NoError(t, err)
	assert.Equal(t, round.RoundID, again.RoundID, "only one current round")
	assert.Len(t, f.events.waiting, 1)
}

func TestCrashAutoCashoutPaysTarget(t *testing.T) {
	f := newCrash(t)
	ctx := context.Background()
	f.fund(t, 1, "100.00")
	f.insertRound(t, "5.00")

	bet := f.bet(t, 1, "10.00", "2.00")
	assert.Equal(t, "90.00", f.balance(t, 1).StringFixed(2))

	f.advanceClock(8 * time.Second)
	require.NoError(t, f.engine.Advance(ctx))
	round, err := f.engine.CurrentRound(ctx)
	require.NoError(t, err)
	require.True(t, round.IsActive())

	f.advanceClock(12 * time.Second) // live multiplier 2.01
	require.NoError(t, f.engine.Advance(ctx))

	got := f.getBet(t, 1, bet.ID)
	assert.Equal(t, models.BetCashedOut, got.Status)
	assert.Equal(t, "2.00", got.CashoutMultiplier.Decimal.StringFixed(2))
	assert.Equal(t, "20.00", got.WinAmount.StringFixed(2))
	assert.Equal(t, "110.00", f.balance(t, 1).StringFixed(2))
}

func TestCrashAdvanceAfterLongStall(t *testing.T) {
	f := newCrash(t)
	ctx := context.Background()
	f.fund(t, 1, "100.00")
	round := f.insertRound(t, "50.00")
	manual := f.bet(t, 1, "10.00", "")
	auto := f.bet(t, 1, "5.00", "20.00")
	require.NoError(t, f.engine.ActivateRound(ctx, round))

	f.advanceClock(4 * time.Hour)
	assert.Equal(t, "50.00", services.LiveMultiplier(round, f.now).StringFixed(2))
	require.NotPanics(t, func() {
		require.NoError(t, f.engine.Advance(ctx))
	})

	current, err := f.engine.CurrentRound(ctx)
	require.NoError(t, err)
	assert.Nil(t, current)
	state, err := f.engine.State(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.RoundCrashed, state.Status)
	require.NotNil(t, state.CrashPoint)
	assert.Equal(t, "50.00", state.CrashPoint.StringFixed(2))

	assert.Equal(t, models.BetLost, f.getBet(t, 1, manual.ID).Status)
	paid := f.getBet(t, 1, auto.ID)
	assert.Equal(t, models.BetCashedOut, paid.Status)
	assert.Equal(t, "100.00", paid.WinAmount.StringFixed(2))
	assert.Equal(t, "185.00", f.balance(t, 1).StringFixed(2))
}

// A target equal to the crash point is reached and pays. A manual cashout at
// that same multiplier is too late because the round ends there.
func TestCrashCashoutAtCrashPoint(t *testing.T) {
	f := newCrash(t)
	ctx := context.Background()
	f.fund(t, 1, "100.00")
	round := f.insertRound(t, "2.00")
	manual := f.bet(t, 1, "10.00", "")
	auto := f.bet(t, 1, "10.00", "2.00")
	require.NoError(t, f.engine.ActivateRound(ctx, round))

	f.advanceClock(12 * time.Second)
	require.Equal(t, "2.00", services.LiveMultiplier(round, f.now).StringFixed(2))

	_, err := f.engine.Cashout(ctx, 1, manual.ID)
	assert.ErrorIs(t, err, models.ErrStateConflict)

	require.NoError(t, f.engine.Advance(ctx))
	paid := f.getBet(t, 1, auto.ID)
	assert.Equal(t, models.BetCashedOut, paid.Status)
	assert.Equal(t, "2.00", paid.CashoutMultiplier.Decimal.StringFixed(2))
	assert.Equal(t, "20.00", paid.WinAmount.StringFixed(2))
	assert.Equal(t, models.BetLost, f.getBet(t, 1, manual.ID).Status)
	assert.Equal(t, "100.00", f.balance(t, 1).StringFixed(2))
}

func TestCrashManualCashout(t *testing.T) {
	f := newCrash(t)
	ctx := context.Background()
	f.fund(t, 1, "100.00")
	round := f.insertRound(t, "5.00")
	bet := f.bet(t, 1, "10.00", "")

	_, err := f.engine.Cashout(ctx, 1, bet.ID)
	assert.ErrorIs(t, err, models.ErrStateConflict, "round still waiting")

	require.NoError(t, f.engine.ActivateRound(ctx, round))
	f.advanceClock(5 * time.Second)

	_, err = f.engine.Cashout(ctx, 2, bet.ID)
	assert.ErrorIs(t, err, models.ErrNotFound)

	cashed, err := f.engine.Cashout(ctx, 1, bet.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BetCashedOut, cashed.Status)
	assert.Equal(t, "1.33", cashed.CashoutMultiplier.Decimal.StringFixed(2))
	assert.Equal(t, "13.30", cashed.WinAmount.StringFixed(2))
	assert.Equal(t, "103.30", f.balance(t, 1).StringFixed(2))

	_, err = f.engine.Cashout(ctx, 1, bet.ID)
	assert.ErrorIs(t, err, models.ErrStateConflict)
}

func TestCrashRoundLosesOpenBets(t *testing.T) {
	f := newCrash(t)
	ctx := context.Background()
	f.fund(t, 1, "100.00")
	round := f.insertRound(t, "1.50")
	first := f.bet(t, 1, "10.00", "")
	second := f.bet(t, 1, "5.00", "3.00")

	require.NoError(t, f.engine.ActivateRound(ctx, round))
	lost, err := f.engine.CrashRound(ctx, round)
	require.NoError(t, err)
	assert.EqualValues(t, 2, lost)

	for _, id := range []int64{first.ID, second.ID} {
		b := f.getBet(t, 1, id)
		assert.Equal(t, models.BetLost, b.Status)
		assert.NotNil(t, b.SettledAt)
	}
	assert.Equal(t, "85.00", f.balance(t, 1).StringFixed(2))

	_, err = f.engine.Cashout(ctx, 1, first.ID)
	assert.ErrorIs(t, err, models.ErrStateConflict)
	_, err = f.engine.CrashRound(ctx, round)
	assert.ErrorIs(t, err, models.ErrStateConflict)
	require.Len(t, f.events.crashes, 1)
	assert.Equal(t, round.Seeds.ServerSeed, f.events.crashes[0].ServerSeed)
}

func TestCrashSettlementExclusivity(t *testing.T) {
	for i := 0; i < 10; i++ {
		f := newCrash(t)
		ctx := context.Background()
		f.fund(t, 1, "100.00")
		round := f.insertRound(t, "3.00")
		bet := f.bet(t, 1, "10.00", "1.50")
		require.NoError(t, f.engine.ActivateRound(ctx, round))
		f.advanceClock(8 * time.Second) // live multiplier 1.59

		var wg sync.WaitGroup
		wg.Add(3)
		go func() {
			defer wg.Done()
			_, _ = f.engine.Cashout(ctx, 1, bet.ID)
		}()
		go func() {
			defer wg.Done()
			_, _ = f.engine.ProcessAutoCashouts(ctx, round, dec("1.59"))
		}()
		go func() {
			defer wg.Done()
			_, _ = f.engine.CrashRound(ctx, round)
		}()
		wg.Wait()

		got := f.getBet(t, 1, bet.ID)
		require.NotEqual(t, models.BetActive, got.Status)

		wins, err := f.ledger.History(ctx, 1, models.HistoryFilter{Kind: models.EntryWin})
		require.NoError(t, err)
		if got.Status == models.BetCashedOut {
			require.Len(t, wins, 1)
			assert.True(t, got.WinAmount.Equal(wins[0].Amount))
		} else {
			assert.Empty(t, wins)
		}
		assert.True(t, dec("90.00").Add(got.WinAmount).Equal(f.balance(t, 1)))
	}
}

func TestCrashPlaceBetRules(t *testing.T) {
	f := newCrash(t)
	ctx := context.Background()
	f.fund(t, 1, "10000.00")
	f.fund(t, 2, "10.00")

	_, err := f.engine.PlaceBet(ctx, 1, models.CrashBetRequest{Amount: dec("1.00")})
	assert.ErrorIs(t, err, models.ErrStateConflict, "no round yet")

	round := f.insertRound(t, "2.00")

	low := dec("1.00")
	bad := []models.CrashBetRequest{
		{Amount: dec("0.00")},
		{Amount: dec("0.001")},
		{Amount: dec("1000.01")},
		{Amount: dec("1.00"), AutoCashoutTarget: &low},
	}
	for _, req := range bad {
		_, err := f.engine.PlaceBet(ctx, 1, req)
		assert.ErrorIs(t, err, models.ErrValidation)
	}

	for i := 0; i < services.MaxActiveBetsPerRound; i++ {
		f.bet(t, 1, "1.00", "")
	}
	_, err = f.engine.PlaceBet(ctx, 1, models.CrashBetRequest{Amount: dec("1.00")})
	assert.ErrorIs(t, err, models.ErrStateConflict)
	f.bet(t, 2, "0.01", "1.01")

	_, err = f.engine.PlaceBet(ctx, 3, models.CrashBetRequest{Amount: dec("1.00")})
	assert.ErrorIs(t, err, models.ErrInsufficientFunds)

	require.NoError(t, f.engine.ActivateRound(ctx, round))
	f.advanceClock(20 * time.Second) // past the 2.00 crash point
	_, err = f.engine.PlaceBet(ctx, 2, models.CrashBetRequest{Amount: dec("1.00")})
	assert.ErrorIs(t, err, models.ErrStateConflict)
}

func TestCrashAdvanceLifecycle(t *testing.T) {
	f := newCrash(t)
	ctx := context.Background()
	first := f.insertRound(t, "1.50")

	require.NoError(t, f.engine.Advance(ctx))
	round, err := f.engine.CurrentRound(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.RoundWaiting, round.Status, "countdown not over")

	f.advanceClock(8 * time.Second)
	require.NoError(t, f.engine.Advance(ctx))
	round, err = f.engine.CurrentRound(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.RoundActive, round.Status)

	f.advanceClock(5 * time.Second)
	require.NoError(t, f.engine.Advance(ctx))
	state, err := f.engine.State(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.RoundActive, state.Status)
	assert.Equal(t, "1.33", state.Multiplier.StringFixed(2))
	assert.Nil(t, state.CrashPoint)

	f.advanceClock(2 * time.Second) // 1.06^7 reaches the crash point
	require.NoError(t, f.engine.Advance(ctx))
	round, err = f.engine.CurrentRound(ctx)
	require.NoError(t, err)
	assert.Nil(t, round)

	state, err = f.engine.State(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.RoundCrashed, state.Status)
	require.NotNil(t, state.CrashPoint)
	assert.Equal(t, "1.50", state.CrashPoint.StringFixed(2))

	require.NoError(t, f.engine.Advance(ctx))
	round, err = f.engine.CurrentRound(ctx)
	require.NoError(t, err)
	assert.Nil(t, round, "pause before the next round")

	f.advanceClock(time.Second)
	require.NoError(t, f.engine.Advance(ctx))
	round, err = f.engine.CurrentRound(ctx)
	require.NoError(t, err)
	require.NotNil(t, round)
	assert.NotEqual(t, first.RoundID, round.RoundID)
	assert.Equal(t, models.RoundWaiting, round.Status)

	history, err := f.engine.History(ctx, 0)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, first.RoundID, history[0].RoundID)
	assert.True(t, fair.VerifyCrashPoint(history[0].ServerSeed, history[0].ClientSeed,
		fair.CrashPoint(history[0].ServerSeed, history[0].ClientSeed)))
	assert.NotEmpty(t, f.events.updates)
	assert.Len(t, f.events.crashes, 1)
}

func TestCrashNoBetOutlivesItsRound(t *testing.T) {
	f := newCrash(t)
	ctx := context.Background()
	f.fund(t, 1, "100.00")
	f.insertRound(t, "1.20")
	f.bet(t, 1, "1.00", "")
	f.bet(t, 1, "1.00", "5.00")
	f.bet(t, 1, "1.00", "1.10")

	f.advanceClock(8 * time.Second)
	for i := 0; i < 60; i++ {
		require.NoError(t, f.engine.Advance(ctx))
		f.advanceClock(100 * time.Millisecond)
	}

	history, err := f.engine.History(ctx, 10)
	require.NoError(t, err)
	require.NotEmpty(t, history)

	bets, err := f.engine.UserBets(ctx, 1, 1)
	require.NoError(t, err)
	require.Len(t, bets, 3)
	for _, b := range bets {
		assert.NotEqual(t, models.BetActive, b.Status)
	}
	assert.Equal(t, models.BetCashedOut, bets[2].Status)
	assert.Equal(t, "1.10", bets[2].CashoutMultiplier.Decimal.StringFixed(2))
}

func TestCrashStateWithoutRounds(t *testing.T) {
	f := newCrash(t)
	state, err := f.engine.State(context.Background())
	require.NoError(t, err)
	assert.Empty(t, state.RoundID)
	assert.Equal(t, "1.00", state.Multiplier.StringFixed(2))

	bets, err := f.engine.UserBets(context.Background(), 1, 0)
	require.NoError(t, err)
	assert.Empty(t, bets)
}
