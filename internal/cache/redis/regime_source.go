package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/quantfold/arbdesk/internal/domain"
)

const regimeKey = "risk:regime"

// RegimeSource reads the latest risk regime classification written by the
// external signal source. A missing key reads as calm.
type RegimeSource struct {
	client *Client
}

func NewRegimeSource(c *Client) *RegimeSource {
	return &RegimeSource{client: c}
}

// CurrentRegime returns the latest classification.
func (r *RegimeSource) CurrentRegime(ctx context.Context) (domain.RiskRegime, error) {
	val, err := r.client.rdb.Get(ctx, regimeKey).Result()
	if err == redis.Nil {
		return domain.RegimeCalm, nil
	}
	if err != nil {
		return domain.RegimeCalm, fmt.Errorf("redis: get risk regime: %w", err)
	}

	switch regime := domain.RiskRegime(val); regime {
	case domain.RegimeCalm, domain.RegimeElevated, domain.RegimeCritical:
		return regime, nil
	default:
		return domain.RegimeCalm, fmt.Errorf("redis: unknown risk regime %q", val)
	}
}

var _ domain.RegimeSource = (*RegimeSource)(nil)
