package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"casino-engine/internal/fair"
	"casino-engine/internal/models"
)

func encodeJSON(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func notFound(err error, what string, id int64) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s %d", models.ErrNotFound, what, id)
	}
	return fmt.Errorf("get %s: %w", what, err)
}

// ---- mines ----

const minesColumns = `id, user_id, bet_amount, mine_count, state, opened_cells, current_multiplier, payout,
	server_seed, server_seed_hash, client_seed, nonce, mine_positions, created_at, ended_at`

func scanMines(row interface{ Scan(...any) error }) (*models.MinesGame, error) {
	var (
		g                 models.MinesGame
		bet, mult, payout int64
		opened, mines     string
		createdAt         int64
		endedAt           sql.NullInt64
	)
	err := row.Scan(&g.ID, &g.UserID, &bet, &g.MineCount, &g.State, &opened, &mult, &payout,
		&g.Seeds.ServerSeed, &g.Seeds.ServerSeedHash, &g.Seeds.ClientSeed, &g.Seeds.Nonce,
		&mines, &createdAt, &endedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(opened), &g.OpenedCells); err != nil {
		return nil, fmt.Errorf("decode opened cells: %w", err)
	}
	if err := json.Unmarshal([]byte(mines), &g.MinePositions); err != nil {
		return nil, fmt.Errorf("decode mine positions: %w", err)
	}
	g.BetAmount = models.FromCents(bet)
	g.CurrentMultiplier = models.FromCents(mult)
	g.Payout = models.FromCents(payout)
	g.CreatedAt = fromMillis(createdAt)
	g.EndedAt = fromNullMillis(endedAt)
	return &g, nil
}

func (q *Queries) InsertMinesGame(ctx context.Context, g *models.MinesGame) error {
	if g.OpenedCells == nil {
		g.OpenedCells = []fair.Cell{}
	}
	opened, err := encodeJSON(g.OpenedCells)
	if err != nil {
		return fmt.Errorf("encode opened cells: %w", err)
	}
	mines, err := encodeJSON(g.MinePositions)
	if err != nil {
		return fmt.Errorf("encode mine positions: %w", err)
	}

	res, err := q.db.ExecContext(ctx, `
INSERT INTO mines_games (user_id, bet_amount, mine_count, state, opened_cells, current_multiplier, payout,
	server_seed, server_seed_hash, client_seed, nonce, mine_positions, created_at, ended_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		g.UserID, models.ToCents(g.BetAmount), g.MineCount, g.State, opened,
		models.ToCents(g.CurrentMultiplier), models.ToCents(g.Payout),
		g.Seeds.ServerSeed, g.Seeds.ServerSeedHash, g.Seeds.ClientSeed, g.Seeds.Nonce,
		mines, toMillis(g.CreatedAt), nullMillis(g.EndedAt))
	if err != nil {
		return fmt.Errorf("insert mines game: %w", err)
	}
	if g.ID, err = res.LastInsertId(); err != nil {
		return fmt.Errorf("insert mines game: %w", err)
	}
	return nil
}

func (q *Queries) GetMinesGame(ctx context.Context, userID, id int64) (*models.MinesGame, error) {
	g, err := scanMines(q.db.QueryRowContext(ctx,
		`SELECT `+minesColumns+` FROM mines_games WHERE id = ? AND user_id = ?`, id, userID))
	if err != nil {
		return nil, notFound(err, "mines game", id)
	}
	return g, nil
}

// UpdateActiveMinesGame writes g only while the stored row is still active.
// It reports false when another writer already moved the game on.
func (q *Queries) UpdateActiveMinesGame(ctx context.Context, g *models.MinesGame) (bool, error) {
	opened, err := encodeJSON(g.OpenedCells)
	if err != nil {
		return false, fmt.Errorf("encode opened cells: %w", err)
	}
	res, err := q.db.ExecContext(ctx, `
UPDATE mines_games
SET state = ?, opened_cells = ?, current_multiplier = ?, payout = ?, ended_at = ?
WHERE id = ? AND state = 'active'`,
		g.State, opened, models.ToCents(g.CurrentMultiplier), models.ToCents(g.Payout),
		nullMillis(g.EndedAt), g.ID)
	if err != nil {
		return false, fmt.Errorf("update mines game: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("update mines game: %w", err)
	}
	return n == 1, nil
}

func (q *Queries) CountMinesGames(ctx context.Context, userID int64) (int64, error) {
	var n int64
	if err := q.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM mines_games WHERE user_id = ?`, userID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count mines games: %w", err)
	}
	return n, nil
}

func (q *Queries) ListMinesGames(ctx context.Context, userID int64, limit int) ([]*models.MinesGame, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT `+minesColumns+` FROM mines_games WHERE user_id = ? ORDER BY id DESC LIMIT ?`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list mines games: %w", err)
	}
	defer rows.Close()

	var out []*models.MinesGame
	for rows.Next() {
		g, err := scanMines(rows)
		if err != nil {
			return nil, fmt.Errorf("scan mines game: %w", err)
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

// ---- plinko ----

const plinkoColumns = `id, user_id, bet_amount, row_count, risk, completed, ball_path, bucket_index,
	final_multiplier, payout, server_seed, server_seed_hash, client_seed, nonce, created_at, dropped_at`

func scanPlinko(row interface{ Scan(...any) error }) (*models.PlinkoGame, error) {
	var (
		g                 models.PlinkoGame
		bet, mult, payout int64
		path              string
		createdAt         int64
		droppedAt         sql.NullInt64
	)
	err := row.Scan(&g.ID, &g.UserID, &bet, &g.Rows, &g.Risk, &g.Completed, &path, &g.BucketIndex,
		&mult, &payout, &g.Seeds.ServerSeed, &g.Seeds.ServerSeedHash, &g.Seeds.ClientSeed, &g.Seeds.Nonce,
		&createdAt, &droppedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(path), &g.BallPath); err != nil {
		return nil, fmt.Errorf("decode ball path: %w", err)
	}
	g.BetAmount = models.FromCents(bet)
	g.FinalMultiplier = models.FromCents(mult)
	g.Payout = models.FromCents(payout)
	g.CreatedAt = fromMillis(createdAt)
	g.DroppedAt = fromNullMillis(droppedAt)
	return &g, nil
}

func (q *Queries) InsertPlinkoGame(ctx context.Context, g *models.PlinkoGame) error {
	if g.BallPath == nil {
		g.BallPath = []int{}
	}
	path, err := encodeJSON(g.BallPath)
	if err != nil {
		return fmt.Errorf("encode ball path: %w", err)
	}
	res, err := q.db.ExecContext(ctx, `
INSERT INTO plinko_games (user_id, bet_amount, row_count, risk, completed, ball_path, bucket_index,
	final_multiplier, payout, server_seed, server_seed_hash, client_seed, nonce, created_at, dropped_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		g.UserID, models.ToCents(g.BetAmount), g.Rows, g.Risk, g.Completed, path, g.BucketIndex,
		models.ToCents(g.FinalMultiplier), models.ToCents(g.Payout),
		g.Seeds.ServerSeed, g.Seeds.ServerSeedHash, g.Seeds.ClientSeed, g.Seeds.Nonce,
		toMillis(g.CreatedAt), nullMillis(g.DroppedAt))
	if err != nil {
		return fmt.Errorf("insert plinko game: %w", err)
	}
	if g.ID, err = res.LastInsertId(); err != nil {
		return fmt.Errorf("insert plinko game: %w", err)
	}
	return nil
}

func (q *Queries) GetPlinkoGame(ctx context.Context, userID, id int64) (*models.PlinkoGame, error) {
	g, err := scanPlinko(q.db.QueryRowContext(ctx,
		`SELECT `+plinkoColumns+` FROM plinko_games WHERE id = ? AND user_id = ?`, id, userID))
	if err != nil {
		return nil, notFound(err, "plinko game", id)
	}
	return g, nil
}

// CompletePlinkoGame records the drop result unless the ball was already dropped.
func (q *Queries) CompletePlinkoGame(ctx context.Context, g *models.PlinkoGame) (bool, error) {
	path, err := encodeJSON(g.BallPath)
	if err != nil {
		return false, fmt.Errorf("encode ball path: %w", err)
	}
	res, err := q.db.ExecContext(ctx, `
UPDATE plinko_games
SET completed = 1, ball_path = ?, bucket_index = ?, final_multiplier = ?, payout = ?, dropped_at = ?
WHERE id = ? AND completed = 0`,
		path, g.BucketIndex, models.ToCents(g.FinalMultiplier), models.ToCents(g.Payout),
		nullMillis(g.DroppedAt), g.ID)
	if err != nil {
		return false, fmt.Errorf("complete plinko game: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("complete plinko game: %w", err)
	}
	return n == 1, nil
}

func (q *Queries) ListPlinkoGames(ctx context.Context, userID int64, limit int) ([]*models.PlinkoGame, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT `+plinkoColumns+` FROM plinko_games WHERE user_id = ? ORDER BY id DESC LIMIT ?`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list plinko games: %w", err)
	}
	defer rows.Close()

	var out []*models.PlinkoGame
	for rows.Next() {
		g, err := scanPlinko(rows)
		if err != nil {
			return nil, fmt.Errorf("scan plinko game: %w", err)
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

// ---- dice ----

const diceColumns = `id, user_id, bet_amount, selected_number, rolled_number, won, multiplier, payout,
	server_seed, server_seed_hash, client_seed, nonce, created_at`

func scanDice(row interface{ Scan(...any) error }) (*models.DiceGame, error) {
	var (
		g                 models.DiceGame
		bet, mult, payout int64
		createdAt         int64
	)
	err := row.Scan(&g.ID, &g.UserID, &bet, &g.SelectedNumber, &g.RolledNumber, &g.Won, &mult, &payout,
		&g.Seeds.ServerSeed, &g.Seeds.ServerSeedHash, &g.Seeds.ClientSeed, &g.Seeds.Nonce, &createdAt)
	if err != nil {
		return nil, err
	}
	g.BetAmount = models.FromCents(bet)
	g.Multiplier = models.FromCents(mult)
	g.Payout = models.FromCents(payout)
	g.CreatedAt = fromMillis(createdAt)
	return &g, nil
}

func (q *Queries) InsertDiceGame(ctx context.Context, g *models.DiceGame) error {
	res, err := q.db.ExecContext(ctx, `
INSERT INTO dice_games (user_id, bet_amount, selected_number, rolled_number, won, multiplier, payout,
	server_seed, server_seed_hash, client_seed, nonce, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		g.UserID, models.ToCents(g.BetAmount), g.SelectedNumber, g.RolledNumber, g.Won,
		models.ToCents(g.Multiplier), models.ToCents(g.Payout),
		g.Seeds.ServerSeed, g.Seeds.ServerSeedHash, g.Seeds.ClientSeed, g.Seeds.Nonce, toMillis(g.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert dice game: %w", err)
	}
	if g.ID, err = res.LastInsertId(); err != nil {
		return fmt.Errorf("insert dice game: %w", err)
	}
	return nil
}

func (q *Queries) GetDiceGame(ctx context.Context, userID, id int64) (*models.DiceGame, error) {
	g, err := scanDice(q.db.QueryRowContext(ctx,
		`SELECT `+diceColumns+` FROM dice_games WHERE id = ? AND user_id = ?`, id, userID))
	if err != nil {
		return nil, notFound(err, "dice game", id)
	}
	return g, nil
}

func (q *Queries) ListDiceGames(ctx context.Context, userID int64, limit int) ([]*models.DiceGame, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT `+diceColumns+` FROM dice_games WHERE user_id = ? ORDER BY id DESC LIMIT ?`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list dice games: %w", err)
	}
	defer rows.Close()

	var out []*models.DiceGame
	for rows.Next() {
		g, err := scanDice(rows)
		if err != nil {
			return nil, fmt.Errorf("scan dice game: %w", err)
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

// ---- slots ----

const slotsColumns = `id, user_id, bet_amount, reels_count, reels, multiplier, win_amount, winning_combination,
	server_seed, server_seed_hash, client_seed, nonce, created_at`

func scanSlots(row interface{ Scan(...any) error }) (*models.SlotsGame, error) {
	var (
		g              models.SlotsGame
		bet, mult, win int64
		reels          string
		createdAt      int64
	)
	err := row.Scan(&g.ID, &g.UserID, &bet, &g.ReelsCount, &reels, &mult, &win, &g.WinningCombination,
		&g.Seeds.ServerSeed, &g.Seeds.ServerSeedHash, &g.Seeds.ClientSeed, &g.Seeds.Nonce, &createdAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(reels), &g.Reels); err != nil {
		return nil, fmt.Errorf("decode reels: %w", err)
	}
	g.BetAmount = models.FromCents(bet)
	g.Multiplier = models.FromCents(mult)
	g.WinAmount = models.FromCents(win)
	g.CreatedAt = fromMillis(createdAt)
	return &g, nil
}

func (q *Queries) InsertSlotsGame(ctx context.Context, g *models.SlotsGame) error {
	reels, err := encodeJSON(g.Reels)
	if err != nil {
		return fmt.Errorf("encode reels: %w", err)
	}
	res, err := q.db.ExecContext(ctx, `
INSERT INTO slots_games (user_id, bet_amount, reels_count, reels, multiplier, win_amount, winning_combination,
	server_seed, server_seed_hash, client_seed, nonce, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		g.UserID, models.ToCents(g.BetAmount), g.ReelsCount, reels,
		models.ToCents(g.Multiplier), models.ToCents(g.WinAmount), g.WinningCombination,
		g.Seeds.ServerSeed, g.Seeds.ServerSeedHash, g.Seeds.ClientSeed, g.Seeds.Nonce, toMillis(g.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert slots game: %w", err)
	}
	if g.ID, err = res.LastInsertId(); err != nil {
		return fmt.Errorf("insert slots game: %w", err)
	}
	return nil
}

func (q *Queries) GetSlotsGame(ctx context.Context, userID, id int64) (*models.SlotsGame, error) {
	g, err := scanSlots(q.db.QueryRowContext(ctx,
		`SELECT `+slotsColumns+` FROM slots_games WHERE id = ? AND user_id = ?`, id, userID))
	if err != nil {
		return nil, notFound(err, "slots game", id)
	}
	return g, nil
}

func (q *Queries) ListSlotsGames(ctx context.Context, userID int64, limit int) ([]*models.SlotsGame, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT `+slotsColumns+` FROM slots_games WHERE user_id = ? ORDER BY id DESC LIMIT ?`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list slots games: %w", err)
	}
	defer rows.Close()

	var out []*models.SlotsGame
	for rows.Next() {
		g, err := scanSlots(rows)
		if err != nil {
			return nil, fmt.Errorf("scan slots game: %w", err)
		}
		out = append(out, g)
	}
	return out, rows.Err()
}
