package ws

import (
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantfold/arbdesk/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testRegistry() *Registry {
	return NewRegistry(RegistryConfig{
		GuestIdleWindow: 10 * time.Minute,
		SweepInterval:   time.Minute,
	}, testLogger())
}

// drain reads every queued frame off the connection and decodes the envelopes.
func drain(t *testing.T, c *Conn) []Envelope {
	t.Helper()
	var out []Envelope
	for {
		select {
		case frame := <-c.send:
			var env Envelope
			require.NoError(t, json.Unmarshal(frame, &env))
			out = append(out, env)
		default:
			return out
		}
	}
}

func TestRegistry_ConnectionIdentity(t *testing.T) {
	r := testRegistry()

	a := newConn("conn-a", "user-1", domain.TierPro)
	b := newConn("conn-b", "user-1", domain.TierPro)
	guest := newConn("conn-g", "", domain.TierGuest)
	r.Register(a)
	r.Register(b)
	r.Register(guest)

	assert.Equal(t, 3, r.Count())
	assert.Len(t, r.ConnsOfUser("user-1"), 2, "one user may hold several connections")

	got, ok := r.Get("conn-g")
	require.True(t, ok)
	assert.False(t, got.Authenticated())

	r.Unregister("conn-a")
	assert.Equal(t, 2, r.Count())
	assert.Len(t, r.ConnsOfUser("user-1"), 1)

	// Unregistering twice must be safe; both pumps trigger cleanup.
	r.Unregister("conn-a")
}

func TestRegistry_PushAfterUnregisterIsDropped(t *testing.T) {
	r := testRegistry()

	c := newConn("conn-1", "user-1", domain.TierPro)
	r.Register(c)

	// Broadcast snapshots targets before pushing, so a connection can be
	// unregistered between the snapshot and the push. The push must drop the
	// frame instead of writing to the closed send channel.
	r.Unregister("conn-1")
	assert.False(t, c.Push(NewEnvelope(TypeTradeUpdate, nil)))

	delivered := r.Broadcast(nil, NewEnvelope(TypeTradeUpdate, nil))
	assert.Equal(t, 0, delivered)
}

func TestRegistry_BroadcastRacingUnregister(t *testing.T) {
	r := testRegistry()

	for i := 0; i < 8; i++ {
		r.Register(newConn("conn-"+string(rune('a'+i)), "user-1", domain.TierPro))
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 100; i++ {
			r.Broadcast(nil, NewEnvelope(TypeMarketUpdate, nil))
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 8; i++ {
			r.Unregister("conn-" + string(rune('a'+i)))
		}
	}()
	wg.Wait()

	assert.Equal(t, 0, r.Count())
}

func TestRegistry_SweepEvictsOnlyIdleGuests(t *testing.T) {
	r := testRegistry()

	idleGuest := newConn("conn-g", "", domain.TierGuest)
	activeGuest := newConn("conn-g2", "", domain.TierGuest)
	idleUser := newConn("conn-u", "user-1", domain.TierFree)
	r.Register(idleGuest)
	r.Register(activeGuest)
	r.Register(idleUser)

	stale := time.Now().UTC().Add(-time.Hour)
	idleGuest.mu.Lock()
	idleGuest.lastActive = stale
	idleGuest.mu.Unlock()
	idleUser.mu.Lock()
	idleUser.lastActive = stale
	idleUser.mu.Unlock()

	evicted := r.sweep(time.Now().UTC())
	assert.Equal(t, 1, evicted)

	_, ok := r.Get("conn-g")
	assert.False(t, ok)
	_, ok = r.Get("conn-g2")
	assert.True(t, ok)
	_, ok = r.Get("conn-u")
	assert.True(t, ok, "authenticated connections are never swept")
}

func TestChannels_PriceDeliveryIsThrottledPerSymbol(t *testing.T) {
	r := testRegistry()
	ch := NewChannels(r, nil, 500*time.Millisecond, testLogger())

	c := newConn("conn-1", "user-1", domain.TierPro)
	c.subscribe([]string{"BTC"})
	r.Register(c)

	payload, err := json.Marshal(domain.PriceUpdate{Symbol: "BTC", Price: 64000, Timestamp: time.Now().UTC()})
	require.NoError(t, err)

	// Two updates inside one throttle interval collapse to one delivery.
	ch.HandlePrice(payload)
	ch.HandlePrice(payload)
	assert.Len(t, drain(t, c), 1)

	// A different symbol is throttled independently.
	other, err := json.Marshal(domain.PriceUpdate{Symbol: "ETH", Price: 3200, Timestamp: time.Now().UTC()})
	require.NoError(t, err)
	c.subscribe([]string{"ETH"})
	ch.HandlePrice(other)
	assert.Len(t, drain(t, c), 1)
}

func TestChannels_PriceOnlyReachesSubscribers(t *testing.T) {
	r := testRegistry()
	ch := NewChannels(r, nil, 500*time.Millisecond, testLogger())

	sub := newConn("conn-1", "user-1", domain.TierPro)
	sub.subscribe([]string{"BTC"})
	nonsub := newConn("conn-2", "user-2", domain.TierPro)
	r.Register(sub)
	r.Register(nonsub)

	payload, err := json.Marshal(domain.PriceUpdate{Symbol: "BTC", Price: 64000})
	require.NoError(t, err)
	ch.HandlePrice(payload)

	assert.Len(t, drain(t, sub), 1)
	assert.Empty(t, drain(t, nonsub))
}

func TestChannels_WhaleAlertsSkipGuests(t *testing.T) {
	r := testRegistry()
	ch := NewChannels(r, nil, 500*time.Millisecond, testLogger())

	authed := newConn("conn-1", "user-1", domain.TierFree)
	guest := newConn("conn-2", "", domain.TierGuest)
	r.Register(authed)
	r.Register(guest)

	payload, err := json.Marshal(domain.WhaleAlert{Symbol: "BTC", AmountUSD: 2_000_000, Direction: "in"})
	require.NoError(t, err)
	ch.HandleWhale(payload)

	frames := drain(t, authed)
	require.Len(t, frames, 1)
	assert.Equal(t, TypeWhaleAlert, frames[0].Type)
	assert.Empty(t, drain(t, guest))
}

func TestChannels_AgentLogSeverityRouting(t *testing.T) {
	r := testRegistry()
	ch := NewChannels(r, nil, 500*time.Millisecond, testLogger())

	pro := newConn("conn-1", "user-1", domain.TierPro)
	free := newConn("conn-2", "user-2", domain.TierFree)
	guest := newConn("conn-3", "", domain.TierGuest)
	r.Register(pro)
	r.Register(free)
	r.Register(guest)

	info, err := json.Marshal(domain.AgentLog{Severity: "info", Agent: "scanner", Message: "tick"})
	require.NoError(t, err)
	ch.HandleAgentLog(info)
	assert.Len(t, drain(t, pro), 1)
	assert.Len(t, drain(t, free), 1)
	assert.Len(t, drain(t, guest), 1)

	warning, err := json.Marshal(domain.AgentLog{Severity: "warning", Agent: "scanner", Message: "spread collapsed"})
	require.NoError(t, err)
	ch.HandleAgentLog(warning)
	assert.Len(t, drain(t, pro), 1)
	assert.Empty(t, drain(t, free))
	assert.Empty(t, drain(t, guest))
}

func TestChannels_EmergencyScopeRouting(t *testing.T) {
	r := testRegistry()
	ch := NewChannels(r, nil, 500*time.Millisecond, testLogger())

	own := newConn("conn-1", "user-1", domain.TierPro)
	other := newConn("conn-2", "user-2", domain.TierPro)
	guest := newConn("conn-3", "", domain.TierGuest)
	r.Register(own)
	r.Register(other)
	r.Register(guest)

	userScoped, err := json.Marshal(domain.EmergencyNotice{Scope: "user-1", Reason: "manual stop", TradesAffected: 1})
	require.NoError(t, err)
	ch.HandleEmergency(userScoped)
	assert.Len(t, drain(t, own), 1)
	assert.Empty(t, drain(t, other))
	assert.Empty(t, drain(t, guest))

	systemScoped, err := json.Marshal(domain.EmergencyNotice{Scope: domain.ScopeSystem, Reason: "halt", TradesAffected: 7})
	require.NoError(t, err)
	ch.HandleEmergency(systemScoped)
	assert.Len(t, drain(t, own), 1)
	assert.Len(t, drain(t, other), 1)
	assert.Len(t, drain(t, guest), 1)
}

func TestConn_InboundMessageVocabulary(t *testing.T) {
	c := newConn("conn-1", "user-1", domain.TierPro)

	c.handleMessage([]byte(`{"type":"subscribe-symbol","payload":{"symbols":["BTC","ETH"]}}`))
	assert.True(t, c.SubscribedTo("BTC"))
	assert.True(t, c.SubscribedTo("ETH"))

	c.handleMessage([]byte(`{"type":"unsubscribe-symbol","payload":{"symbols":["ETH"]}}`))
	assert.True(t, c.SubscribedTo("BTC"))
	assert.False(t, c.SubscribedTo("ETH"))

	c.handleMessage([]byte(`{"type":"ping"}`))
	frames := drain(t, c)
	require.Len(t, frames, 1)
	assert.Equal(t, TypePong, frames[0].Type)

	c.handleMessage([]byte(`{"type":"subscribe"}`))
	frames = drain(t, c)
	require.Len(t, frames, 1, "unknown types get an error frame")
	assert.Equal(t, TypeError, frames[0].Type)
}

func TestEnvelope_EmergencyPayloadRoundTrip(t *testing.T) {
	triggered := time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC)
	notice := domain.EmergencyNotice{
		Scope:          "user-1",
		Reason:         "flash crash",
		TradesAffected: 3,
		Timestamp:      triggered,
	}

	frame := NewEnvelope(TypeEmergencyStop, notice).Encode()
	require.NotNil(t, frame)

	var decoded struct {
		Type      string                 `json:"type"`
		Payload   domain.EmergencyNotice `json:"payload"`
		Timestamp time.Time              `json:"timestamp"`
	}
	require.NoError(t, json.Unmarshal(frame, &decoded))
	assert.Equal(t, TypeEmergencyStop, decoded.Type)
	assert.Equal(t, "flash crash", decoded.Payload.Reason)
	assert.Equal(t, 3, decoded.Payload.TradesAffected)
	assert.True(t, decoded.Payload.Timestamp.Equal(triggered))
	assert.False(t, decoded.Timestamp.IsZero())
}
