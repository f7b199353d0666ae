package venue

import (
	"context"

	"github.com/google/uuid"

	"github.com/quantfold/arbdesk/internal/domain"
)

// PaperExecutor bypasses all outbound venue calls. Submission returns a
// synthetic correlation ID and polling reports an immediate deterministic
// fill, so the coordinator's sequencing can be exercised without live venue
// dependencies.
type PaperExecutor struct {
	venue domain.Venue
}

// NewPaper creates a paper executor standing in for the given venue.
func NewPaper(v domain.Venue) *PaperExecutor {
	return &PaperExecutor{venue: v}
}

// Venue returns the venue this executor stands in for.
func (p *PaperExecutor) Venue() domain.Venue { return p.venue }

// SubmitOrder returns a synthetic external ID without touching the network.
func (p *PaperExecutor) SubmitOrder(ctx context.Context, o domain.Order) (string, error) {
	return "paper-" + uuid.New().String(), nil
}

// PollOrderStatus always reports an immediate fill.
func (p *PaperExecutor) PollOrderStatus(ctx context.Context, externalID string) (domain.OrderStatus, error) {
	return domain.OrderStatusFilled, nil
}

// PaperSet returns a Set with paper executors for both venues.
func PaperSet() Set {
	return Set{
		Polymarket: NewPaper(domain.VenuePolymarket),
		Kalshi:     NewPaper(domain.VenueKalshi),
	}
}

var _ Executor = (*PaperExecutor)(nil)
