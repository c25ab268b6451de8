package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"casino-engine/internal/models"
)

const accountColumns = `user_id, balance, total_wagered, total_won, created_at, updated_at`

func scanAccount(row interface{ Scan(...any) error }) (*models.Account, error) {
	var (
		a                     models.Account
		balance, wagered, won int64
		createdAt, updatedAt  int64
	)
	if err := row.Scan(&a.UserID, &balance, &wagered, &won, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	a.Balance = models.FromCents(balance)
	a.TotalWagered = models.FromCents(wagered)
	a.TotalWon = models.FromCents(won)
	a.CreatedAt = fromMillis(createdAt)
	a.UpdatedAt = fromMillis(updatedAt)
	return &a, nil
}

// GetAccount returns models.ErrNotFound when the user has no account yet.
func (q *Queries) GetAccount(ctx context.Context, userID int64) (*models.Account, error) {
	row := q.db.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE user_id = ?`, userID)
	a, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: account for user %d", models.ErrNotFound, userID)
	}
	if err != nil {
		return nil, fmt.Errorf("get account: %w", err)
	}
	return a, nil
}

// InsertAccount creates a zero-balance account. It reports false when the
// account already existed.
func (q *Queries) InsertAccount(ctx context.Context, a *models.Account) (bool, error) {
	res, err := q.db.ExecContext(ctx, `
INSERT INTO accounts (user_id, balance, total_wagered, total_won, created_at, updated_at)
VALUES (?, 0, 0, 0, ?, ?)
ON CONFLICT (user_id) DO NOTHING`,
		a.UserID, toMillis(a.CreatedAt), toMillis(a.UpdatedAt))
	if err != nil {
		return false, fmt.Errorf("insert account: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert account: %w", err)
	}
	return n == 1, nil
}

func (q *Queries) UpdateAccount(ctx context.Context, a *models.Account) error {
	_, err := q.db.ExecContext(ctx, `
UPDATE accounts
SET balance = ?, total_wagered = ?, total_won = ?, updated_at = ?
WHERE user_id = ?`,
		models.ToCents(a.Balance), models.ToCents(a.TotalWagered), models.ToCents(a.TotalWon),
		toMillis(a.UpdatedAt), a.UserID)
	if err != nil {
		return fmt.Errorf("update account: %w", err)
	}
	return nil
}

const entryColumns = `id, user_id, kind, status, amount, balance_before, balance_after, description, game_ref, created_at`

func scanEntry(row interface{ Scan(...any) error }) (*models.LedgerEntry, error) {
	var (
		e                     models.LedgerEntry
		amount, before, after int64
		createdAt             int64
	)
	if err := row.Scan(&e.ID, &e.UserID, &e.Kind, &e.Status, &amount, &before, &after, &e.Description, &e.GameRef, &createdAt); err != nil {
		return nil, err
	}
	e.Amount = models.FromCents(amount)
	e.BalanceBefore = models.FromCents(before)
	e.BalanceAfter = models.FromCents(after)
	e.CreatedAt = fromMillis(createdAt)
	return &e, nil
}

func (q *Queries) InsertEntry(ctx context.Context, e *models.LedgerEntry) error {
	res, err := q.db.ExecContext(ctx, `
INSERT INTO ledger_entries (user_id, kind, status, amount, balance_before, balance_after, description, game_ref, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.UserID, e.Kind, e.Status,
		models.ToCents(e.Amount), models.ToCents(e.BalanceBefore), models.ToCents(e.BalanceAfter),
		e.Description, e.GameRef, toMillis(e.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert ledger entry: %w", err)
	}
	if e.ID, err = res.LastInsertId(); err != nil {
		return fmt.Errorf("insert ledger entry: %w", err)
	}
	return nil
}

func (q *Queries) GetEntry(ctx context.Context, userID, entryID int64) (*models.LedgerEntry, error) {
	row := q.db.QueryRowContext(ctx, `SELECT `+entryColumns+` FROM ledger_entries WHERE id = ? AND user_id = ?`, entryID, userID)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: ledger entry %d", models.ErrNotFound, entryID)
	}
	if err != nil {
		return nil, fmt.Errorf("get ledger entry: %w", err)
	}
	return e, nil
}

// ListEntries returns the newest entries first.
func (q *Queries) ListEntries(ctx context.Context, userID int64, f models.HistoryFilter) ([]*models.LedgerEntry, error) {
	var (
		where = []string{"user_id = ?"}
		args  = []any{userID}
	)
	if f.Kind != "" {
		where = append(where, "kind = ?")
		args = append(args, f.Kind)
	}
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, f.Status)
	}
	args = append(args, f.Limit)

	rows, err := q.db.QueryContext(ctx, `SELECT `+entryColumns+` FROM ledger_entries WHERE `+
		strings.Join(where, " AND ")+` ORDER BY id DESC LIMIT ?`, args...)
	if err != nil {
		return nil, fmt.Errorf("list ledger entries: %w", err)
	}
	defer rows.Close()

	entries := make([]*models.LedgerEntry, 0, f.Limit)
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan ledger entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ledger entries: %w", err)
	}
	return entries, nil
}

// EntryTotals sums completed entries per kind.
type EntryTotals struct {
	Deposits int64
	Bets     int64
	Wins     int64
	Bonuses  int64
	Count    int64
}

func (q *Queries) SumEntries(ctx context.Context, userID int64) (EntryTotals, error) {
	var t EntryTotals
	err := q.db.QueryRowContext(ctx, `
SELECT
	COALESCE(SUM(CASE WHEN kind = 'deposit' THEN amount END), 0),
	COALESCE(SUM(CASE WHEN kind = 'bet' THEN amount END), 0),
	COALESCE(SUM(CASE WHEN kind = 'win' THEN amount END), 0),
	COALESCE(SUM(CASE WHEN kind = 'bonus' THEN amount END), 0),
	COUNT(*)
FROM ledger_entries
WHERE user_id = ? AND status = 'completed'`, userID).Scan(&t.Deposits, &t.Bets, &t.Wins, &t.Bonuses, &t.Count)
	if err != nil {
		return t, fmt.Errorf("sum ledger entries: %w", err)
	}
	return t, nil
}
