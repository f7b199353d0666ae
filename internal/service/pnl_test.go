package service

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/quantfold/arbdesk/internal/domain"
)

func TestPnL_Signs(t *testing.T) {
	calc := NewPnLCalculator()

	assert.InDelta(t, 0.10, calc.Realized(0.50, 0.60, domain.SideBuy), 1e-9)
	assert.InDelta(t, -0.10, calc.Realized(0.50, 0.40, domain.SideBuy), 1e-9)
	assert.InDelta(t, 0.10, calc.Realized(0.50, 0.40, domain.SideSell), 1e-9)
	assert.InDelta(t, -0.10, calc.Realized(0.50, 0.60, domain.SideSell), 1e-9)
}

func TestPnL_UnrealizedMatchesRealizedAtSameMark(t *testing.T) {
	calc := NewPnLCalculator()

	for _, side := range []domain.Side{domain.SideBuy, domain.SideSell} {
		assert.Equal(t, calc.Realized(0.55, 0.61, side), calc.Unrealized(0.55, 0.61, side))
	}
}
