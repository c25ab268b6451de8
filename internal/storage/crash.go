package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"casino-engine/internal/models"
)

const roundColumns = `id, round_id, status, crash_point, server_seed, server_seed_hash, client_seed,
	created_at, started_at, crashed_at, next_round_at`

func scanRound(row interface{ Scan(...any) error }) (*models.CrashRound, error) {
	var (
		r                               models.CrashRound
		point, createdAt                int64
		startedAt, crashedAt, nextRound sql.NullInt64
	)
	err := row.Scan(&r.ID, &r.RoundID, &r.Status, &point,
		&r.Seeds.ServerSeed, &r.Seeds.ServerSeedHash, &r.Seeds.ClientSeed,
		&createdAt, &startedAt, &crashedAt, &nextRound)
	if err != nil {
		return nil, err
	}
	r.CrashPoint = models.FromCents(point)
	r.CreatedAt = fromMillis(createdAt)
	r.StartedAt = fromNullMillis(startedAt)
	r.CrashedAt = fromNullMillis(crashedAt)
	r.NextRoundAt = fromNullMillis(nextRound)
	return &r, nil
}

func (q *Queries) InsertRound(ctx context.Context, r *models.CrashRound) error {
	res, err := q.db.ExecContext(ctx, `
INSERT INTO crash_rounds (round_id, status, crash_point, server_seed, server_seed_hash, client_seed,
	created_at, started_at, crashed_at, next_round_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.RoundID, r.Status, models.ToCents(r.CrashPoint),
		r.Seeds.ServerSeed, r.Seeds.ServerSeedHash, r.Seeds.ClientSeed,
		toMillis(r.CreatedAt), nullMillis(r.StartedAt), nullMillis(r.CrashedAt), nullMillis(r.NextRoundAt))
	if err != nil {
		return fmt.Errorf("insert crash round: %w", err)
	}
	if r.ID, err = res.LastInsertId(); err != nil {
		return fmt.Errorf("insert crash round: %w", err)
	}
	return nil
}

func (q *Queries) GetRound(ctx context.Context, id int64) (*models.CrashRound, error) {
	r, err := scanRound(q.db.QueryRowContext(ctx, `SELECT `+roundColumns+` FROM crash_rounds WHERE id = ?`, id))
	if err != nil {
		return nil, notFound(err, "crash round", id)
	}
	return r, nil
}

// CurrentRound returns the latest waiting or active round, or nil.
func (q *Queries) CurrentRound(ctx context.Context) (*models.CrashRound, error) {
	r, err := scanRound(q.db.QueryRowContext(ctx, `
SELECT `+roundColumns+` FROM crash_rounds
WHERE status IN ('waiting', 'active')
ORDER BY id DESC LIMIT 1`))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get current round: %w", err)
	}
	return r, nil
}

// LastCrashedRound returns the most recently crashed round, or nil.
func (q *Queries) LastCrashedRound(ctx context.Context) (*models.CrashRound, error) {
	r, err := scanRound(q.db.QueryRowContext(ctx, `
SELECT `+roundColumns+` FROM crash_rounds
WHERE status = 'crashed'
ORDER BY id DESC LIMIT 1`))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get last crashed round: %w", err)
	}
	return r, nil
}

func (q *Queries) ListCrashedRounds(ctx context.Context, limit int) ([]*models.CrashRound, error) {
	rows, err := q.db.QueryContext(ctx, `
SELECT `+roundColumns+` FROM crash_rounds
WHERE status = 'crashed'
ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list crash rounds: %w", err)
	}
	defer rows.Close()

	var out []*models.CrashRound
	for rows.Next() {
		r, err := scanRound(rows)
		if err != nil {
			return nil, fmt.Errorf("scan crash round: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// ActivateRound moves a waiting round to active.
func (q *Queries) ActivateRound(ctx context.Context, id int64, startedAt time.Time) (bool, error) {
	return q.casRound(ctx, `
UPDATE crash_rounds SET status = 'active', started_at = ?
WHERE id = ? AND status = 'waiting'`, toMillis(startedAt), id)
}

// CrashRound moves an active round to crashed.
func (q *Queries) CrashRound(ctx context.Context, id int64, crashedAt time.Time) (bool, error) {
	return q.casRound(ctx, `
UPDATE crash_rounds SET status = 'crashed', crashed_at = ?
WHERE id = ? AND status = 'active'`, toMillis(crashedAt), id)
}

func (q *Queries) casRound(ctx context.Context, query string, args ...any) (bool, error) {
	res, err := q.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("update crash round: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("update crash round: %w", err)
	}
	return n == 1, nil
}

const betColumns = `id, user_id, round_id, bet_amount, status, auto_cashout_target, cashout_multiplier,
	win_amount, created_at, settled_at`

func nullCents(d decimal.NullDecimal) sql.NullInt64 {
	if !d.Valid {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: models.ToCents(d.Decimal), Valid: true}
}

func fromNullCents(v sql.NullInt64) decimal.NullDecimal {
	if !v.Valid {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(models.FromCents(v.Int64))
}

func scanBet(row interface{ Scan(...any) error }) (*models.CrashBet, error) {
	var (
		b                     models.CrashBet
		amount, win, created  int64
		target, cashout, done sql.NullInt64
	)
	err := row.Scan(&b.ID, &b.UserID, &b.RoundID, &amount, &b.Status, &target, &cashout, &win, &created, &done)
	if err != nil {
		return nil, err
	}
	b.BetAmount = models.FromCents(amount)
	b.AutoCashoutTarget = fromNullCents(target)
	b.CashoutMultiplier = fromNullCents(cashout)
	b.WinAmount = models.FromCents(win)
	b.CreatedAt = fromMillis(created)
	b.SettledAt = fromNullMillis(done)
	return &b, nil
}

func (q *Queries) InsertBet(ctx context.Context, b *models.CrashBet) error {
	res, err := q.db.ExecContext(ctx, `
INSERT INTO crash_bets (user_id, round_id, bet_amount, status, auto_cashout_target, cashout_multiplier,
	win_amount, created_at, settled_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		b.UserID, b.RoundID, models.ToCents(b.BetAmount), b.Status,
		nullCents(b.AutoCashoutTarget), nullCents(b.CashoutMultiplier),
		models.ToCents(b.WinAmount), toMillis(b.CreatedAt), nullMillis(b.SettledAt))
	if err != nil {
		return fmt.Errorf("insert crash bet: %w", err)
	}
	if b.ID, err = res.LastInsertId(); err != nil {
		return fmt.Errorf("insert crash bet: %w", err)
	}
	return nil
}

func (q *Queries) GetBet(ctx context.Context, userID, id int64) (*models.CrashBet, error) {
	b, err := scanBet(q.db.QueryRowContext(ctx,
		`SELECT `+betColumns+` FROM crash_bets WHERE id = ? AND user_id = ?`, id, userID))
	if err != nil {
		return nil, notFound(err, "crash bet", id)
	}
	return b, nil
}

func (q *Queries) CountActiveBets(ctx context.Context, userID, roundID int64) (int, error) {
	var n int
	err := q.db.QueryRowContext(ctx, `
SELECT COUNT(*) FROM crash_bets
WHERE user_id = ? AND round_id = ? AND status = 'active'`, userID, roundID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count active bets: %w", err)
	}
	return n, nil
}

func (q *Queries) CountRoundActiveBets(ctx context.Context, roundID int64) (int, error) {
	var n int
	err := q.db.QueryRowContext(ctx, `
SELECT COUNT(*) FROM crash_bets WHERE round_id = ? AND status = 'active'`, roundID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count round bets: %w", err)
	}
	return n, nil
}

func (q *Queries) ListUserRoundBets(ctx context.Context, userID, roundID int64) ([]*models.CrashBet, error) {
	return q.listBets(ctx, `
SELECT `+betColumns+` FROM crash_bets
WHERE user_id = ? AND round_id = ?
ORDER BY id`, userID, roundID)
}

// DueAutoCashouts lists active bets in the round whose target is at or below multiplier.
func (q *Queries) DueAutoCashouts(ctx context.Context, roundID int64, multiplier decimal.Decimal) ([]*models.CrashBet, error) {
	return q.listBets(ctx, `
SELECT `+betColumns+` FROM crash_bets
WHERE round_id = ? AND status = 'active'
	AND auto_cashout_target IS NOT NULL AND auto_cashout_target <= ?
ORDER BY id`, roundID, models.ToCents(multiplier))
}

func (q *Queries) listBets(ctx context.Context, query string, args ...any) ([]*models.CrashBet, error) {
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list crash bets: %w", err)
	}
	defer rows.Close()

	var out []*models.CrashBet
	for rows.Next() {
		b, err := scanBet(rows)
		if err != nil {
			return nil, fmt.Errorf("scan crash bet: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// CashOutBet settles an active bet as cashed out. It reports false when the
// bet already left the active state.
func (q *Queries) CashOutBet(ctx context.Context, id int64, multiplier, win decimal.Decimal, at time.Time) (bool, error) {
	res, err := q.db.ExecContext(ctx, `
UPDATE crash_bets
SET status = 'cashed_out', cashout_multiplier = ?, win_amount = ?, settled_at = ?
WHERE id = ? AND status = 'active'`,
		models.ToCents(multiplier), models.ToCents(win), toMillis(at), id)
	if err != nil {
		return false, fmt.Errorf("cash out bet: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("cash out bet: %w", err)
	}
	return n == 1, nil
}

// LoseActiveBets marks every remaining active bet in the round lost.
func (q *Queries) LoseActiveBets(ctx context.Context, roundID int64, at time.Time) (int64, error) {
	res, err := q.db.ExecContext(ctx, `
UPDATE crash_bets
SET status = 'lost', win_amount = 0, settled_at = ?
WHERE round_id = ? AND status = 'active'`, toMillis(at), roundID)
	if err != nil {
		return 0, fmt.Errorf("settle lost bets: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("settle lost bets: %w", err)
	}
	return n, nil
}
