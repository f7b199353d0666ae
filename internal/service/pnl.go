package service

import "github.com/quantfold/arbdesk/internal/domain"

// PnLCalculator computes per-unit profit and loss. Results are pure per-unit
// deltas; callers scale by position size and decide whether to publish.
type PnLCalculator struct{}

func NewPnLCalculator() *PnLCalculator {
	return &PnLCalculator{}
}

// Realized returns the per-unit realized PnL of a closed position.
func (c *PnLCalculator) Realized(entry, exit float64, side domain.Side) float64 {
	if side == domain.SideSell {
		return entry - exit
	}
	return exit - entry
}

// Unrealized returns the per-unit mark-to-market PnL of an open position.
func (c *PnLCalculator) Unrealized(entry, current float64, side domain.Side) float64 {
	return c.Realized(entry, current, side)
}
