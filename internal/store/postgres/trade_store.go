package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/quantfold/arbdesk/internal/domain"
)

// TradeStore implements domain.TradeStore using PostgreSQL.
type TradeStore struct {
	pool *pgxpool.Pool
}

// NewTradeStore creates a new TradeStore backed by the given connection pool.
func NewTradeStore(pool *pgxpool.Pool) *TradeStore {
	return &TradeStore{pool: pool}
}

const tradeSelectCols = `id, user_id, market_pair, primary_venue, side,
	size_usd, entry_price, status, close_reason, created_at, closed_at`

// Create inserts a new trade row.
func (s *TradeStore) Create(ctx context.Context, t domain.Trade) error {
	const query = `
		INSERT INTO trades (
			id, user_id, market_pair, primary_venue, side,
			size_usd, entry_price, status, close_reason, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err := s.pool.Exec(ctx, query,
		t.ID, t.UserID, t.MarketPair, string(t.PrimaryVenue), string(t.Side),
		t.SizeUSD, t.EntryPrice, string(t.Status), t.CloseReason, t.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: create trade %s: %w", t.ID, err)
	}
	return nil
}

func scanTrade(scanner interface{ Scan(dest ...any) error }) (domain.Trade, error) {
	var t domain.Trade
	var venue, side, status string

	err := scanner.Scan(
		&t.ID, &t.UserID, &t.MarketPair, &venue, &side,
		&t.SizeUSD, &t.EntryPrice, &status, &t.CloseReason, &t.CreatedAt, &t.ClosedAt,
	)
	if err != nil {
		return domain.Trade{}, err
	}

	t.PrimaryVenue = domain.Venue(venue)
	t.Side = domain.Side(side)
	t.Status = domain.TradeStatus(status)
	return t, nil
}

func scanTradeRows(rows pgx.Rows) ([]domain.Trade, error) {
	var trades []domain.Trade
	for rows.Next() {
		t, err := scanTrade(rows)
		if err != nil {
			return nil, err
		}
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

// GetByID retrieves a single trade by ID.
func (s *TradeStore) GetByID(ctx context.Context, id string) (domain.Trade, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+tradeSelectCols+` FROM trades WHERE id = $1`, id)

	t, err := scanTrade(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.Trade{}, domain.ErrNotFound
		}
		return domain.Trade{}, fmt.Errorf("postgres: get trade %s: %w", id, err)
	}
	return t, nil
}

// ListOpen returns all open trades, narrowed to one user when scope names a
// user ID. The system scope (or empty) selects every user.
func (s *TradeStore) ListOpen(ctx context.Context, scope string) ([]domain.Trade, error) {
	query := `SELECT ` + tradeSelectCols + ` FROM trades WHERE status = 'open'`
	args := []any{}

	if scope != "" && scope != domain.ScopeSystem {
		query += ` AND user_id = $1`
		args = append(args, scope)
	}
	query += ` ORDER BY created_at`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list open trades: %w", err)
	}
	defer rows.Close()

	trades, err := scanTradeRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan open trades: %w", err)
	}
	return trades, nil
}

// ListByUser returns a user's trades with pagination.
func (s *TradeStore) ListByUser(ctx context.Context, userID string, opts domain.ListOpts) ([]domain.Trade, error) {
	query := `SELECT ` + tradeSelectCols + ` FROM trades WHERE user_id = $1`
	args := []any{userID}
	argIdx := 2

	if opts.Since != nil {
		query += fmt.Sprintf(" AND created_at >= $%d", argIdx)
		args = append(args, *opts.Since)
		argIdx++
	}
	if opts.Until != nil {
		query += fmt.Sprintf(" AND created_at <= $%d", argIdx)
		args = append(args, *opts.Until)
		argIdx++
	}

	query += " ORDER BY created_at DESC"

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list trades by user: %w", err)
	}
	defer rows.Close()

	trades, err := scanTradeRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan trades by user: %w", err)
	}
	return trades, nil
}

// Close transitions a trade to the given terminal status. The guard clause
// refuses to touch rows already in a terminal status, keeping transitions
// monotonic.
func (s *TradeStore) Close(ctx context.Context, id string, status domain.TradeStatus, reason string) error {
	if !status.Terminal() {
		return fmt.Errorf("postgres: close trade %s: %q is not a terminal status", id, status)
	}

	const query = `
		UPDATE trades
		SET status = $1, close_reason = $2, closed_at = NOW()
		WHERE id = $3 AND status = 'open'`

	tag, err := s.pool.Exec(ctx, query, string(status), reason, id)
	if err != nil {
		return fmt.Errorf("postgres: close trade %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		// Either the trade is unknown or it already reached a terminal state.
		var exists bool
		if err := s.pool.QueryRow(ctx,
			"SELECT EXISTS(SELECT 1 FROM trades WHERE id = $1)", id,
		).Scan(&exists); err != nil {
			return fmt.Errorf("postgres: close trade %s: %w", id, err)
		}
		if !exists {
			return domain.ErrNotFound
		}
		return domain.ErrTradeTerminal
	}
	return nil
}

// CountOpen returns the number of open trades for the given user.
func (s *TradeStore) CountOpen(ctx context.Context, userID string) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM trades WHERE user_id = $1 AND status = 'open'`,
		userID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("postgres: count open trades for %s: %w", userID, err)
	}
	return n, nil
}

// ListClosedBefore returns terminal trades closed before the cutoff, oldest
// first, for the archive exporter.
func (s *TradeStore) ListClosedBefore(ctx context.Context, cutoff time.Time, limit int) ([]domain.Trade, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+tradeSelectCols+` FROM trades
		 WHERE closed_at IS NOT NULL AND closed_at < $1
		 ORDER BY closed_at
		 LIMIT $2`, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list closed trades: %w", err)
	}
	defer rows.Close()

	trades, err := scanTradeRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan closed trades: %w", err)
	}
	return trades, nil
}

// Compile-time interface check.
var _ domain.TradeStore = (*TradeStore)(nil)
