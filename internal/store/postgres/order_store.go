package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/quantfold/arbdesk/internal/domain"
)

// OrderStore implements domain.OrderStore using PostgreSQL.
type OrderStore struct {
	pool *pgxpool.Pool
}

// NewOrderStore creates a new OrderStore backed by the given connection pool.
func NewOrderStore(pool *pgxpool.Pool) *OrderStore {
	return &OrderStore{pool: pool}
}

const orderSelectCols = `id, trade_id, user_id, venue, market_pair, side,
	size, price, filled_size, filled_price, status, external_id, error_msg,
	created_at, updated_at`

// Create inserts a new order row.
func (s *OrderStore) Create(ctx context.Context, o domain.Order) error {
	const query = `
		INSERT INTO orders (
			id, trade_id, user_id, venue, market_pair, side,
			size, price, filled_size, filled_price, status,
			external_id, error_msg, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, NOW())`

	_, err := s.pool.Exec(ctx, query,
		o.ID, o.TradeID, o.UserID, string(o.Venue), o.MarketPair, string(o.Side),
		o.Size, o.Price, o.FilledSize, o.FilledPrice, string(o.Status),
		o.ExternalID, o.ErrorMsg, o.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: create order %s: %w", o.ID, err)
	}
	return nil
}

func scanOrder(scanner interface{ Scan(dest ...any) error }) (domain.Order, error) {
	var o domain.Order
	var venue, side, status string

	err := scanner.Scan(
		&o.ID, &o.TradeID, &o.UserID, &venue, &o.MarketPair, &side,
		&o.Size, &o.Price, &o.FilledSize, &o.FilledPrice, &status,
		&o.ExternalID, &o.ErrorMsg, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return domain.Order{}, err
	}

	o.Venue = domain.Venue(venue)
	o.Side = domain.Side(side)
	o.Status = domain.OrderStatus(status)
	return o, nil
}

// GetByID retrieves a single order by ID.
func (s *OrderStore) GetByID(ctx context.Context, id string) (domain.Order, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+orderSelectCols+` FROM orders WHERE id = $1`, id)

	o, err := scanOrder(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.Order{}, domain.ErrNotFound
		}
		return domain.Order{}, fmt.Errorf("postgres: get order %s: %w", id, err)
	}
	return o, nil
}

// Update replaces the mutable field set wholesale and stamps updated_at.
// Callers supply the complete set of fields they intend to persist.
func (s *OrderStore) Update(ctx context.Context, id string, u domain.OrderUpdate) error {
	const query = `
		UPDATE orders
		SET status = $1, filled_size = $2, filled_price = $3,
		    external_id = $4, error_msg = $5, updated_at = NOW()
		WHERE id = $6`

	tag, err := s.pool.Exec(ctx, query,
		string(u.Status), u.FilledSize, u.FilledPrice, u.ExternalID, u.ErrorMsg, id,
	)
	if err != nil {
		return fmt.Errorf("postgres: update order %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// AttachTrade sets the parent trade reference. The WHERE clause only matches
// rows with no trade yet, so a reference can never be reassigned.
func (s *OrderStore) AttachTrade(ctx context.Context, orderID, tradeID string) error {
	const query = `
		UPDATE orders SET trade_id = $1, updated_at = NOW()
		WHERE id = $2 AND trade_id IS NULL`

	tag, err := s.pool.Exec(ctx, query, tradeID, orderID)
	if err != nil {
		return fmt.Errorf("postgres: attach trade to order %s: %w", orderID, err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := s.pool.QueryRow(ctx,
			"SELECT EXISTS(SELECT 1 FROM orders WHERE id = $1)", orderID,
		).Scan(&exists); err != nil {
			return fmt.Errorf("postgres: attach trade to order %s: %w", orderID, err)
		}
		if !exists {
			return domain.ErrNotFound
		}
		return domain.ErrTradeReassigned
	}
	return nil
}

// ListByTrade returns the leg orders of one trade in placement order.
func (s *OrderStore) ListByTrade(ctx context.Context, tradeID string) ([]domain.Order, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+orderSelectCols+` FROM orders
		 WHERE trade_id = $1 ORDER BY created_at`, tradeID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list orders by trade %s: %w", tradeID, err)
	}
	defer rows.Close()

	var orders []domain.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan order: %w", err)
		}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list orders by trade %s: %w", tradeID, err)
	}
	return orders, nil
}

// Compile-time interface check.
var _ domain.OrderStore = (*OrderStore)(nil)
