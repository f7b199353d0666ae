package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/quantfold/arbdesk/internal/domain"
	"github.com/quantfold/arbdesk/internal/notify"
)

// NoticePusher pushes an emergency notice straight to connections already
// registered on this instance. It is a latency shortcut: cross-instance
// delivery always goes through the signal bus as well.
type NoticePusher interface {
	PushEmergency(notice domain.EmergencyNotice)
}

// EmergencyStopService is the kill switch. Triggering closes every open trade
// in scope, records a durable event, raises a fast-lookup flag, and fans the
// notice out to live connections. Triggering an already-active scope is
// additive: each call closes whatever is open at that moment and appends its
// own event.
type EmergencyStopService struct {
	trades   domain.TradeStore
	events   domain.EmergencyEventStore
	flags    domain.FlagStore
	bus      domain.SignalBus
	audit    domain.AuditStore
	pusher   NoticePusher
	notifier *notify.Notifier
	logger   *slog.Logger
}

func NewEmergencyStopService(
	trades domain.TradeStore,
	events domain.EmergencyEventStore,
	flags domain.FlagStore,
	bus domain.SignalBus,
	audit domain.AuditStore,
	logger *slog.Logger,
) *EmergencyStopService {
	return &EmergencyStopService{
		trades: trades,
		events: events,
		flags:  flags,
		bus:    bus,
		audit:  audit,
		logger: logger.With(slog.String("component", "emergency")),
	}
}

// WithPusher attaches the local connection-registry push. Wired late because
// the registry is constructed after the services.
func (s *EmergencyStopService) WithPusher(p NoticePusher) *EmergencyStopService {
	s.pusher = p
	return s
}

// WithNotifier attaches operator notifications for triggers.
func (s *EmergencyStopService) WithNotifier(n *notify.Notifier) *EmergencyStopService {
	s.notifier = n
	return s
}

func flagKey(scope string) string {
	return "emergency:" + scope
}

// Trigger activates the kill switch. An empty userID selects the system
// scope, closing every open trade; otherwise only the user's trades close.
// Steps are strictly ordered: close trades, record the event, raise the flag,
// publish on the scope-keyed topic, push to local connections.
func (s *EmergencyStopService) Trigger(ctx context.Context, reason, userID string) (domain.EmergencyEvent, error) {
	scope := userID
	if scope == "" {
		scope = domain.ScopeSystem
	}

	open, err := s.trades.ListOpen(ctx, scope)
	if err != nil {
		return domain.EmergencyEvent{}, fmt.Errorf("emergency: list open trades: %w", err)
	}

	closed := make([]string, 0, len(open))
	for _, t := range open {
		err := s.trades.Close(ctx, t.ID, domain.TradeStatusEmergencyClosed, reason)
		if err != nil {
			// A trade that reached a terminal status since the list query is
			// not ours to close anymore.
			if errors.Is(err, domain.ErrTradeTerminal) {
				continue
			}
			return domain.EmergencyEvent{}, fmt.Errorf("emergency: close trade %s: %w", t.ID, err)
		}
		closed = append(closed, t.ID)
	}

	event := domain.EmergencyEvent{
		ID:           uuid.NewString(),
		Scope:        scope,
		Reason:       reason,
		TradesClosed: len(closed),
		Metadata: map[string]any{
			"trade_ids": closed,
		},
		TriggeredAt: time.Now().UTC(),
	}
	if err := s.events.Create(ctx, event); err != nil {
		return domain.EmergencyEvent{}, fmt.Errorf("emergency: record event: %w", err)
	}

	if err := s.flags.Set(ctx, flagKey(scope)); err != nil {
		// The durable event exists; IsActive falls back to it if the flag
		// store lost the write.
		s.logger.ErrorContext(ctx, "flag set failed",
			slog.String("scope", scope),
			slog.String("error", err.Error()),
		)
	}

	notice := domain.EmergencyNotice{
		Scope:          scope,
		Reason:         reason,
		TradesAffected: len(closed),
		Timestamp:      event.TriggeredAt,
	}
	s.publish(ctx, notice)
	if s.pusher != nil {
		s.pusher.PushEmergency(notice)
	}

	s.auditLog(ctx, "emergency_triggered", map[string]any{
		"event_id":      event.ID,
		"scope":         scope,
		"reason":        reason,
		"trades_closed": len(closed),
	})
	if s.notifier != nil {
		if err := s.notifier.Notify(ctx, notify.EventEmergency, "Emergency stop triggered",
			fmt.Sprintf("scope=%s reason=%s trades_closed=%d", scope, reason, len(closed))); err != nil {
			s.logger.WarnContext(ctx, "notify failed", slog.String("error", err.Error()))
		}
	}

	s.logger.WarnContext(ctx, "emergency stop triggered",
		slog.String("event_id", event.ID),
		slog.String("scope", scope),
		slog.String("reason", reason),
		slog.Int("trades_closed", len(closed)),
	)
	return event, nil
}

// IsActive reports whether an emergency stop covers the user. The system flag
// is checked first, then the user flag, then the durable event log; the
// fallback keeps the answer correct when the flag store loses state
// independently of the log.
func (s *EmergencyStopService) IsActive(ctx context.Context, userID string) (bool, error) {
	set, err := s.flags.IsSet(ctx, flagKey(domain.ScopeSystem))
	if err != nil {
		return false, fmt.Errorf("emergency: system flag: %w", err)
	}
	if set {
		return true, nil
	}

	if userID != "" && userID != domain.ScopeSystem {
		set, err = s.flags.IsSet(ctx, flagKey(userID))
		if err != nil {
			return false, fmt.Errorf("emergency: user flag: %w", err)
		}
		if set {
			return true, nil
		}
	}

	unresolved, err := s.events.ListUnresolved(ctx, domain.ScopeSystem)
	if err != nil {
		return false, fmt.Errorf("emergency: unresolved events: %w", err)
	}
	if len(unresolved) > 0 {
		return true, nil
	}
	if userID != "" && userID != domain.ScopeSystem {
		unresolved, err = s.events.ListUnresolved(ctx, userID)
		if err != nil {
			return false, fmt.Errorf("emergency: unresolved events: %w", err)
		}
		if len(unresolved) > 0 {
			return true, nil
		}
	}
	return false, nil
}

// Resolve stamps the event resolved and clears its scope flag.
func (s *EmergencyStopService) Resolve(ctx context.Context, eventID string) (domain.EmergencyEvent, error) {
	event, err := s.events.Resolve(ctx, eventID, time.Now().UTC())
	if err != nil {
		return domain.EmergencyEvent{}, fmt.Errorf("emergency: resolve event %s: %w", eventID, err)
	}

	if err := s.flags.Clear(ctx, flagKey(event.Scope)); err != nil {
		s.logger.ErrorContext(ctx, "flag clear failed",
			slog.String("scope", event.Scope),
			slog.String("error", err.Error()),
		)
	}

	s.auditLog(ctx, "emergency_resolved", map[string]any{
		"event_id": event.ID,
		"scope":    event.Scope,
	})
	s.logger.InfoContext(ctx, "emergency stop resolved",
		slog.String("event_id", event.ID),
		slog.String("scope", event.Scope),
	)
	return event, nil
}

func (s *EmergencyStopService) publish(ctx context.Context, notice domain.EmergencyNotice) {
	payload, err := json.Marshal(notice)
	if err != nil {
		return
	}
	if err := s.bus.Publish(ctx, domain.EmergencyTopic(notice.Scope), payload); err != nil {
		s.logger.ErrorContext(ctx, "emergency publish failed",
			slog.String("scope", notice.Scope),
			slog.String("error", err.Error()),
		)
	}
}

func (s *EmergencyStopService) auditLog(ctx context.Context, event string, detail map[string]any) {
	if err := s.audit.Log(ctx, event, detail); err != nil {
		s.logger.WarnContext(ctx, "audit log failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}

var _ EmergencyChecker = (*EmergencyStopService)(nil)
