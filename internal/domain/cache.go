package domain

import (
	"context"
	"time"
)

// FlagStore is the shared fast-lookup store for emergency flags. It is backed
// by an external coordination service so that multiple server instances see
// the same flags; it is never a module-level global. Flags carry no automatic
// expiry.
type FlagStore interface {
	Set(ctx context.Context, key string) error
	IsSet(ctx context.Context, key string) (bool, error)
	Clear(ctx context.Context, key string) error
}

// RateLimiter provides distributed rate limiting.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// SignalBus provides cross-instance pub/sub. All fan-out between backend
// events and realtime channels goes through it; the local connection-registry
// push on emergency stop is a latency shortcut only.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
}
