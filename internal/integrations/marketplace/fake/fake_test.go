package fake

import (
	"context"
	"testing"

	"github.com/freshlane/ordertrack/internal/integrations/marketplace"
	"github.com/freshlane/ordertrack/internal/models"
	"github.com/stretchr/testify/require"
)

func TestFakeClient_advancesForward(t *testing.T) {
	c := New()
	ctx := context.Background()

	prev := ""
	for i := 0; i < 6; i++ {
		snap, err := c.GetTracking(ctx, "demo-1")
		require.NoError(t, err)
		require.True(t, models.KnownStatus(snap.Status))
		if prev != "" {
			require.True(t, models.ValidTransition(prev, snap.Status),
				"%s -> %s", prev, snap.Status)
		}
		prev = snap.Status
	}
	require.True(t, models.TerminalStatus(prev))
}

func TestFakeClient_agentOnlyOutForDelivery(t *testing.T) {
	c := New()
	ctx := context.Background()
	for i := 0; i < 6; i++ {
		snap, err := c.GetTracking(ctx, "demo-2")
		require.NoError(t, err)
		if snap.Status == models.OrderStatusOutForDelivery {
			require.NotNil(t, snap.Agent)
			require.NotEmpty(t, snap.Agent.Phone)
		}
	}
}

func TestFakeClient_emptyIDNotFound(t *testing.T) {
	c := New()
	_, err := c.GetTracking(context.Background(), "")
	require.ErrorIs(t, err, marketplace.ErrOrderNotFound)
}

func TestFakeClient_orderTotalsConsistent(t *testing.T) {
	c := New()
	o, err := c.GetOrder(context.Background(), "demo-3")
	require.NoError(t, err)
	require.NoError(t, o.CheckTotals())
}
