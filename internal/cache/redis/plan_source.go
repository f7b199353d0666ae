package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/quantfold/arbdesk/internal/domain"
)

// PlanSource resolves subscription tiers from keys maintained by the billing
// collaborator. A missing key resolves to the guest tier.
type PlanSource struct {
	client *Client
}

func NewPlanSource(c *Client) *PlanSource {
	return &PlanSource{client: c}
}

// TierOf looks up the user's tier under "plan:{userID}".
func (p *PlanSource) TierOf(ctx context.Context, userID string) (domain.PlanTier, error) {
	val, err := p.client.rdb.Get(ctx, "plan:"+userID).Result()
	if err == redis.Nil {
		return domain.TierGuest, nil
	}
	if err != nil {
		return domain.TierGuest, fmt.Errorf("redis: get plan for %s: %w", userID, err)
	}
	return domain.ParseTier(val), nil
}

var _ domain.PlanSource = (*PlanSource)(nil)
