package watcher

import (
	"testing"
	"time"

	"github.com/freshlane/ordertrack/internal/models"
	"github.com/stretchr/testify/require"
)

func TestProgressSteps(t *testing.T) {
	steps := ProgressSteps(models.OrderStatusPacked)
	require.Len(t, steps, 5)

	require.True(t, steps[0].Reached)
	require.True(t, steps[1].Reached)
	require.True(t, steps[2].Reached)
	require.True(t, steps[2].Current)
	require.False(t, steps[3].Reached)
	require.False(t, steps[4].Reached)
}

func TestProgressSteps_Cancelled(t *testing.T) {
	for _, step := range ProgressSteps(models.OrderStatusCancelled) {
		require.False(t, step.Reached)
		require.False(t, step.Current)
	}
}

func TestETALabel(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	in12 := now.Add(12 * time.Minute)
	require.Equal(t, "in 12 min", ETALabel(&in12, models.OrderStatusPacked, now))

	in95 := now.Add(95 * time.Minute)
	require.Equal(t, "in 1h 35m", ETALabel(&in95, models.OrderStatusPacked, now))

	// Просроченный ETA живого заказа не уходит в отрицательные минуты.
	past := now.Add(-10 * time.Minute)
	require.Equal(t, "Arriving now", ETALabel(&past, models.OrderStatusOutForDelivery, now))

	require.Equal(t, "", ETALabel(&in12, models.OrderStatusDelivered, now))
	require.Equal(t, "", ETALabel(nil, models.OrderStatusPacked, now))
}

func TestView_BeforeFirstData(t *testing.T) {
	s, err := NewSession(&fakeSource{}, "ord-1")
	require.NoError(t, err)

	v := s.View(time.Now())
	require.Equal(t, StateIdle, v.State)
	require.Empty(t, v.Status)
	require.Nil(t, v.Steps)
}

func TestView_OutForDelivery(t *testing.T) {
	s, err := NewSession(&fakeSource{}, "ord-1")
	require.NoError(t, err)

	eta := time.Now().Add(20 * time.Minute)
	s.apply(1, models.TrackingSnapshot{
		OrderID:             "ord-1",
		Status:              models.OrderStatusOutForDelivery,
		EstimatedDeliveryAt: &eta,
		Agent:               &models.DeliveryAgent{Name: "Lena", Phone: "+1 (555) 010-2233"},
	}, nil)

	v := s.View(time.Now())
	require.Equal(t, models.OrderStatusOutForDelivery, v.Status)
	require.Equal(t, "in 20 min", v.ETALabel)
	require.True(t, v.Dispatch.Show)
	require.NotNil(t, v.Dispatch.Agent)
	require.Equal(t, "tel:+15550102233", v.Dispatch.Agent.TelURL)
}

func TestBuildDispatch_PreparingWithoutAgent(t *testing.T) {
	d := BuildDispatch(&models.TrackingSnapshot{Status: models.OrderStatusOutForDelivery})
	require.True(t, d.Show)
	require.True(t, d.Preparing)
	require.Nil(t, d.Agent)
	require.NotEmpty(t, d.SupportTel)
}

func TestBuildDispatch_HiddenOutsideDelivery(t *testing.T) {
	d := BuildDispatch(&models.TrackingSnapshot{
		Status: models.OrderStatusPacked,
		Agent:  &models.DeliveryAgent{Name: "Lena"},
	})
	require.False(t, d.Show)
	require.Nil(t, d.Agent)
}

func TestTelURL(t *testing.T) {
	require.Equal(t, "tel:+18005550199", TelURL("+1-800-555-0199"))
	require.Equal(t, "tel:5550102233", TelURL("555 010 2233"))
}
