package poller

import (
	"testing"
	"time"

	"github.com/freshlane/ordertrack/internal/models"
	"github.com/stretchr/testify/require"
)

type fixedRand struct{ n int }

func (r fixedRand) Intn(n int) int { return r.n }

func TestPlanner_BackoffDelay(t *testing.T) {
	p := DefaultPlanner()
	require.Equal(t, 5*time.Minute, p.BackoffDelay(1))
	require.Equal(t, 15*time.Minute, p.BackoffDelay(2))
	require.Equal(t, 30*time.Minute, p.BackoffDelay(3))
	require.Equal(t, 60*time.Minute, p.BackoffDelay(4))
	require.Equal(t, 60*time.Minute, p.BackoffDelay(100))
}

func TestPlanner_NextCheckDelay_terminal(t *testing.T) {
	p := DefaultPlanner()
	require.Equal(t, 365*24*time.Hour, p.NextCheckDelay(models.OrderStatusDelivered))
	require.Equal(t, 365*24*time.Hour, p.NextCheckDelay(models.OrderStatusCancelled))
}

func TestPlanner_NextCheckDelay_outForDelivery(t *testing.T) {
	p := DefaultPlanner()
	require.Equal(t, 30*time.Second, p.NextCheckDelay(models.OrderStatusOutForDelivery))
}

func TestPlanner_NextCheckDelay_activeRange(t *testing.T) {
	p := NewPlanner(PlannerConfig{
		ActiveMinDelay: 30 * time.Second,
		ActiveMaxDelay: 90 * time.Second,
	}, fixedRand{n: 10})
	require.Equal(t, 40*time.Second, p.NextCheckDelay(models.OrderStatusPlaced))

	fixed := NewPlanner(PlannerConfig{
		ActiveMinDelay: time.Minute,
		ActiveMaxDelay: time.Minute,
	}, nil)
	require.Equal(t, time.Minute, fixed.NextCheckDelay(models.OrderStatusPacked))
}

func TestNewPlanner_fixesInvertedRange(t *testing.T) {
	p := NewPlanner(PlannerConfig{
		ActiveMinDelay: 2 * time.Minute,
		ActiveMaxDelay: 1 * time.Minute,
	}, nil)
	require.Equal(t, 2*time.Minute, p.NextCheckDelay(models.OrderStatusConfirmed))
}
