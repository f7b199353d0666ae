package venue

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantfold/arbdesk/internal/domain"
)

func TestSetDispatchesByVenue(t *testing.T) {
	set := PaperSet()

	pm, err := set.For(domain.VenuePolymarket)
	require.NoError(t, err)
	assert.Equal(t, domain.VenuePolymarket, pm.Venue())

	ka, err := set.For(domain.VenueKalshi)
	require.NoError(t, err)
	assert.Equal(t, domain.VenueKalshi, ka.Venue())

	_, err = set.For(domain.Venue("nyse"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported venue")
}

func TestPaperExecutorFillsImmediately(t *testing.T) {
	ctx := context.Background()
	ex := NewPaper(domain.VenuePolymarket)

	externalID, err := ex.SubmitOrder(ctx, domain.Order{ID: "o-1", Size: 100, Price: 0.5})
	require.NoError(t, err)
	assert.Contains(t, externalID, "paper-")

	status, err := ex.PollOrderStatus(ctx, externalID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusFilled, status)
}
