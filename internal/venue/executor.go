// Package venue defines the executor capability implemented by the two
// external trading venues. The set of implementations is closed: dispatch is
// by the domain.Venue enum through a Set holding exactly one executor per
// venue.
package venue

import (
	"context"
	"fmt"

	"github.com/quantfold/arbdesk/internal/domain"
)

// Executor submits one leg order to a single external venue and reports its
// venue-assigned identifier and status, normalized into the shared enum.
type Executor interface {
	Venue() domain.Venue

	// SubmitOrder performs the venue-specific authentication and submission
	// and returns the venue-assigned external order ID.
	SubmitOrder(ctx context.Context, o domain.Order) (string, error)

	// PollOrderStatus reports the current (possibly still pending) status of
	// a previously submitted order.
	PollOrderStatus(ctx context.Context, externalID string) (domain.OrderStatus, error)
}

// Set holds the two venue executors. For selects by the venue enum; there is
// no registration mechanism beyond these two fields.
type Set struct {
	Polymarket Executor
	Kalshi     Executor
}

// For returns the executor for the given venue.
func (s Set) For(v domain.Venue) (Executor, error) {
	switch v {
	case domain.VenuePolymarket:
		return s.Polymarket, nil
	case domain.VenueKalshi:
		return s.Kalshi, nil
	default:
		return nil, fmt.Errorf("venue: unsupported venue %q", v)
	}
}
