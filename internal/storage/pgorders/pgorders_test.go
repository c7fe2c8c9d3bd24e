package pgorders

import (
	"context"
	"testing"
	"time"

	"github.com/freshlane/ordertrack/internal/models"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func TestPGOrders_RepoFlow(t *testing.T) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:15-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "admin",
			"POSTGRES_PASSWORD": "admin",
			"POSTGRES_DB":       "ordertrack_test",
		},
		WaitingFor: wait.ForListeningPort("5432/tcp").WithStartupTimeout(60 * time.Second),
	}
	pgC, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = pgC.Terminate(ctx) })

	host, err := pgC.Host(ctx)
	require.NoError(t, err)
	port, err := pgC.MappedPort(ctx, "5432/tcp")
	require.NoError(t, err)

	dsn := "postgres://admin:admin@" + host + ":" + port.Port() + "/ordertrack_test?sslmode=disable"
	st, err := New(dsn)
	require.NoError(t, err)
	t.Cleanup(st.Close)

	created, err := st.CreateOrGetOrders(ctx, []models.OrderCreateInput{
		{VendorCode: "GROCERY", OrderID: "A1"},
		{VendorCode: "RESTAURANT", OrderID: "B2"},
	})
	require.NoError(t, err)
	require.Len(t, created, 2)
	require.Equal(t, models.OrderStatusPlaced, created[0].Status)

	// Повторная регистрация не ломает существующую строку.
	again, err := st.CreateOrGetOrders(ctx, []models.OrderCreateInput{{VendorCode: "GROCERY", OrderID: "A1"}})
	require.NoError(t, err)
	require.Len(t, again, 1)

	// Делаем ровно один заказ "due" и проверяем ClaimDueOrders + lease.
	_, err = st.db.Exec(ctx, `UPDATE tracked_orders SET next_check_at = now() - interval '1 minute' WHERE order_id = 'A1'`)
	require.NoError(t, err)
	_, err = st.db.Exec(ctx, `UPDATE tracked_orders SET next_check_at = now() + interval '1 hour' WHERE order_id = 'B2'`)
	require.NoError(t, err)

	now := time.Now().UTC()
	due, err := st.ClaimDueOrders(ctx, now, 10, 10*time.Second)
	require.NoError(t, err)
	require.Len(t, due, 1)
	require.Equal(t, "A1", due[0].ID)
	require.True(t, due[0].NextCheckAt.After(now))

	// Прямой переход применяется и пишет таймлайн.
	eta := now.Add(30 * time.Minute)
	applied, err := st.ApplyStatusUpdate(ctx, StatusUpdate{
		OrderID:     "A1",
		CheckedAt:   now,
		Status:      models.OrderStatusConfirmed,
		StatusAt:    now,
		ETA:         &eta,
		Description: "vendor confirmed the order",
		NextCheckAt: now.Add(time.Minute),
	})
	require.NoError(t, err)
	require.True(t, applied)

	applied, err = st.ApplyStatusUpdate(ctx, StatusUpdate{
		OrderID:     "A1",
		CheckedAt:   now,
		Status:      models.OrderStatusPacked,
		StatusAt:    now.Add(time.Minute),
		ETA:         &eta,
		NextCheckAt: now.Add(time.Minute),
	})
	require.NoError(t, err)
	require.True(t, applied)

	// Регресс PACKED -> CONFIRMED не применяется, статус заморожен.
	applied, err = st.ApplyStatusUpdate(ctx, StatusUpdate{
		OrderID:     "A1",
		CheckedAt:   now,
		Status:      models.OrderStatusConfirmed,
		StatusAt:    now.Add(2 * time.Minute),
		NextCheckAt: now.Add(time.Minute),
	})
	require.NoError(t, err)
	require.False(t, applied)

	got, err := st.GetOrderByID(ctx, "A1")
	require.NoError(t, err)
	require.Equal(t, models.OrderStatusPacked, got.Status)
	require.Equal(t, int32(1), got.AnomalyCount)

	// Назначение агента и координаты.
	lat, long := 18.52, 73.85
	require.NoError(t, st.AssignAgent(ctx, "A1", models.DeliveryAgent{
		ID: "ag-7", Name: "Ravi", Phone: "+15550100",
		Vehicle: "bike", VehicleNumber: "MH-12",
		Lat: &lat, Long: &long, Available: true,
	}))

	applied, err = st.ApplyStatusUpdate(ctx, StatusUpdate{
		OrderID:     "A1",
		CheckedAt:   now,
		Status:      models.OrderStatusOutForDelivery,
		StatusAt:    now.Add(3 * time.Minute),
		NextCheckAt: now.Add(time.Minute),
	})
	require.NoError(t, err)
	require.True(t, applied)

	require.NoError(t, st.UpdateAgentLocation(ctx, "ag-7", 18.53, 73.86))
	got, err = st.GetOrderByID(ctx, "A1")
	require.NoError(t, err)
	require.NotNil(t, got.Agent)
	require.InDelta(t, 18.53, *got.Agent.Lat, 1e-9)

	// Таймлайн по возрастанию времени.
	tl, err := st.ListTimeline(ctx, "A1", 10, 0)
	require.NoError(t, err)
	require.Len(t, tl, 3)
	require.True(t, models.SortedTimeline(tl))
	require.Equal(t, models.OrderStatusConfirmed, tl[0].Status)
	require.Equal(t, models.OrderStatusOutForDelivery, tl[2].Status)

	// Сбой опроса копит счётчик, статус не трогает.
	msg := "marketplace http 502"
	applied, err = st.ApplyStatusUpdate(ctx, StatusUpdate{
		OrderID:     "A1",
		CheckedAt:   now,
		Error:       &msg,
		NextCheckAt: now.Add(5 * time.Minute),
	})
	require.NoError(t, err)
	require.False(t, applied)
	got, err = st.GetOrderByID(ctx, "A1")
	require.NoError(t, err)
	require.Equal(t, int32(1), got.CheckFailCount)
	require.Equal(t, models.OrderStatusOutForDelivery, got.Status)

	_, err = st.GetOrderByID(ctx, "nope")
	require.ErrorIs(t, err, ErrNotFound)
	require.ErrorIs(t, st.RefreshOrder(ctx, "nope"), ErrNotFound)
}
