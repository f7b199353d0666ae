package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/quantfold/arbdesk/internal/domain"
)

// EmergencyEventStore implements domain.EmergencyEventStore using PostgreSQL.
// Events are append-only: rows are never deleted, only resolved.
type EmergencyEventStore struct {
	pool *pgxpool.Pool
}

func NewEmergencyEventStore(pool *pgxpool.Pool) *EmergencyEventStore {
	return &EmergencyEventStore{pool: pool}
}

const emergencySelectCols = `id, scope, reason, trades_closed, metadata, triggered_at, resolved_at`

// Create appends a new emergency event.
func (s *EmergencyEventStore) Create(ctx context.Context, ev domain.EmergencyEvent) error {
	metadata, err := json.Marshal(ev.Metadata)
	if err != nil {
		return fmt.Errorf("postgres: marshal emergency metadata: %w", err)
	}

	const query = `
		INSERT INTO emergency_events (id, scope, reason, trades_closed, metadata, triggered_at, resolved_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err = s.pool.Exec(ctx, query,
		ev.ID, ev.Scope, ev.Reason, ev.TradesClosed, metadata, ev.TriggeredAt, ev.ResolvedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: create emergency event %s: %w", ev.ID, err)
	}
	return nil
}

func scanEmergencyEvent(scanner interface{ Scan(dest ...any) error }) (domain.EmergencyEvent, error) {
	var ev domain.EmergencyEvent
	var metadata []byte

	err := scanner.Scan(
		&ev.ID, &ev.Scope, &ev.Reason, &ev.TradesClosed, &metadata, &ev.TriggeredAt, &ev.ResolvedAt,
	)
	if err != nil {
		return domain.EmergencyEvent{}, err
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &ev.Metadata); err != nil {
			return domain.EmergencyEvent{}, fmt.Errorf("decode metadata: %w", err)
		}
	}
	return ev, nil
}

// GetByID retrieves a single emergency event.
func (s *EmergencyEventStore) GetByID(ctx context.Context, id string) (domain.EmergencyEvent, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+emergencySelectCols+` FROM emergency_events WHERE id = $1`, id)

	ev, err := scanEmergencyEvent(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.EmergencyEvent{}, domain.ErrNotFound
		}
		return domain.EmergencyEvent{}, fmt.Errorf("postgres: get emergency event %s: %w", id, err)
	}
	return ev, nil
}

// Resolve stamps resolved_at on an unresolved event and returns the updated
// row. Resolving an already-resolved event is a no-op that returns the row
// as it stands.
func (s *EmergencyEventStore) Resolve(ctx context.Context, id string, at time.Time) (domain.EmergencyEvent, error) {
	const query = `
		UPDATE emergency_events SET resolved_at = $1
		WHERE id = $2 AND resolved_at IS NULL`

	if _, err := s.pool.Exec(ctx, query, at, id); err != nil {
		return domain.EmergencyEvent{}, fmt.Errorf("postgres: resolve emergency event %s: %w", id, err)
	}
	return s.GetByID(ctx, id)
}

// ListUnresolved returns active events, narrowed to one scope when non-empty.
// The system scope matches only system-wide events; per-user callers see
// their own events.
func (s *EmergencyEventStore) ListUnresolved(ctx context.Context, scope string) ([]domain.EmergencyEvent, error) {
	query := `SELECT ` + emergencySelectCols + ` FROM emergency_events
		 WHERE resolved_at IS NULL`
	args := []any{}
	if scope != "" {
		query += ` AND scope = $1`
		args = append(args, scope)
	}
	query += ` ORDER BY triggered_at DESC`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list unresolved emergency events: %w", err)
	}
	defer rows.Close()

	return collectEmergencyEvents(rows)
}

// ListResolvedBefore returns resolved events older than the cutoff, used by
// the archiver to page cold events out to blob storage.
func (s *EmergencyEventStore) ListResolvedBefore(ctx context.Context, cutoff time.Time, limit int) ([]domain.EmergencyEvent, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+emergencySelectCols+` FROM emergency_events
		 WHERE resolved_at IS NOT NULL AND resolved_at < $1
		 ORDER BY resolved_at
		 LIMIT $2`, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list resolved emergency events: %w", err)
	}
	defer rows.Close()

	return collectEmergencyEvents(rows)
}

func collectEmergencyEvents(rows pgx.Rows) ([]domain.EmergencyEvent, error) {
	var events []domain.EmergencyEvent
	for rows.Next() {
		ev, err := scanEmergencyEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan emergency event: %w", err)
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate emergency events: %w", err)
	}
	return events, nil
}

var _ domain.EmergencyEventStore = (*EmergencyEventStore)(nil)
