package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/quantfold/arbdesk/internal/domain"
)

const archiveBatchSize = 500

// Archiver periodically exports resolved emergency events and closed trades
// as JSONL objects, keyed by export date. Records stay in the database; the
// export is an operational record, not a migration.
type Archiver struct {
	client   *Client
	trades   domain.TradeStore
	events   domain.EmergencyEventStore
	retainer time.Duration
	interval time.Duration
	logger   *slog.Logger
}

// NewArchiver exports records older than retain, scanning every interval.
func NewArchiver(
	client *Client,
	trades domain.TradeStore,
	events domain.EmergencyEventStore,
	retain, interval time.Duration,
	logger *slog.Logger,
) *Archiver {
	return &Archiver{
		client:   client,
		trades:   trades,
		events:   events,
		retainer: retain,
		interval: interval,
		logger:   logger.With(slog.String("component", "archiver")),
	}
}

// Run exports on the configured interval until the context is cancelled.
func (a *Archiver) Run(ctx context.Context) error {
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := a.ExportOnce(ctx); err != nil {
				a.logger.ErrorContext(ctx, "export failed", slog.String("error", err.Error()))
			}
		}
	}
}

// ExportOnce archives one batch of cold events and trades.
func (a *Archiver) ExportOnce(ctx context.Context) error {
	cutoff := time.Now().UTC().Add(-a.retainer)
	stamp := time.Now().UTC().Format("2006-01-02T15-04-05")

	events, err := a.events.ListResolvedBefore(ctx, cutoff, archiveBatchSize)
	if err != nil {
		return fmt.Errorf("archiver: list resolved events: %w", err)
	}
	if len(events) > 0 {
		key := fmt.Sprintf("emergency-events/%s.jsonl", stamp)
		if err := a.putJSONL(ctx, key, toAny(events)); err != nil {
			return err
		}
		a.logger.InfoContext(ctx, "events archived",
			slog.Int("count", len(events)),
			slog.String("key", key),
		)
	}

	trades, err := a.trades.ListClosedBefore(ctx, cutoff, archiveBatchSize)
	if err != nil {
		return fmt.Errorf("archiver: list closed trades: %w", err)
	}
	if len(trades) > 0 {
		key := fmt.Sprintf("trades/%s.jsonl", stamp)
		if err := a.putJSONL(ctx, key, toAny(trades)); err != nil {
			return err
		}
		a.logger.InfoContext(ctx, "trades archived",
			slog.Int("count", len(trades)),
			slog.String("key", key),
		)
	}

	return nil
}

func (a *Archiver) putJSONL(ctx context.Context, key string, records []any) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return fmt.Errorf("archiver: encode record: %w", err)
		}
	}

	// Large batches go through the multipart uploader.
	if int64(buf.Len()) >= minPartSize {
		return a.client.PutLarge(ctx, key, &buf, minPartSize)
	}
	return a.client.Put(ctx, key, &buf, "application/x-ndjson")
}

func toAny[T any](in []T) []any {
	out := make([]any, len(in))
	for i, v := range in {
		out[i] = v
	}
	return out
}
