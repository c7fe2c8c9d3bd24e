package fake

import (
	"context"
	"hash/fnv"
	"sync"
	"time"

	"github.com/freshlane/ordertrack/internal/integrations/marketplace"
	"github.com/freshlane/ordertrack/internal/models"
	"github.com/shopspring/decimal"
)

var chain = []string{
	models.OrderStatusPlaced,
	models.OrderStatusConfirmed,
	models.OrderStatusPacked,
	models.OrderStatusOutForDelivery,
	models.OrderStatusDelivered,
}

// FakeClient — заглушка маркетплейса для демо и тестов: каждый повторный
// запрос по одному и тому же заказу продвигает статус на шаг вперёд.
// Часть заказов (детерминированно по id) отменяется на этапе PACKED.
type FakeClient struct {
	mu    sync.Mutex
	steps map[string]int
}

func New() *FakeClient {
	return &FakeClient{steps: map[string]int{}}
}

func (f *FakeClient) GetTracking(ctx context.Context, orderID string) (models.TrackingSnapshot, error) {
	if orderID == "" {
		return models.TrackingSnapshot{}, marketplace.ErrOrderNotFound
	}
	now := time.Now().UTC()

	f.mu.Lock()
	step := f.steps[orderID]
	if step < len(chain)-1 {
		f.steps[orderID] = step + 1
	}
	f.mu.Unlock()

	status := chain[step]
	// ~12% заказов отменяются вместо упаковки.
	if cancelled(orderID) && step >= 2 {
		status = models.OrderStatusCancelled
	}

	snap := models.TrackingSnapshot{
		OrderID:     orderID,
		Status:      status,
		LastUpdated: now,
	}
	if !models.TerminalStatus(status) {
		eta := now.Add(25 * time.Minute)
		snap.EstimatedDeliveryAt = &eta
	}
	if status == models.OrderStatusOutForDelivery {
		snap.Agent = demoAgent(orderID)
	}
	return snap, nil
}

func (f *FakeClient) GetOrder(ctx context.Context, orderID string) (*models.Order, error) {
	snap, err := f.GetTracking(ctx, orderID)
	if err != nil {
		return nil, err
	}

	subtotal := decimal.NewFromInt(120)
	tax := decimal.NewFromInt(12)
	fee := decimal.NewFromInt(30)
	discount := decimal.NewFromInt(0)

	return &models.Order{
		ID:         orderID,
		VendorCode: "GROCERY",
		Items: []models.OrderItem{
			{ProductID: "p1", Name: "Milk", Quantity: 2, UnitPrice: decimal.NewFromInt(30)},
			{ProductID: "p2", Name: "Bread", Quantity: 1, UnitPrice: decimal.NewFromInt(60)},
		},
		Subtotal:    subtotal,
		Tax:         tax,
		DeliveryFee: fee,
		Discount:    discount,
		Total:       subtotal.Add(tax).Add(fee).Sub(discount),
		Address: models.DeliveryAddress{
			Street: "1 Demo St", City: "Pune", State: "MH", Zip: "411001",
		},
		PaymentMethod:       "card",
		PaymentStatus:       "paid",
		Status:              snap.Status,
		EstimatedDeliveryAt: snap.EstimatedDeliveryAt,
		Agent:               snap.Agent,
		CreatedAt:           time.Now().UTC(),
	}, nil
}

func cancelled(orderID string) bool {
	h := fnv.New32a()
	_, _ = h.Write([]byte(orderID))
	return h.Sum32()%8 == 0
}

func demoAgent(orderID string) *models.DeliveryAgent {
	lat, long := 18.52, 73.85
	return &models.DeliveryAgent{
		ID:            "agent-" + orderID,
		Name:          "Demo Agent",
		Phone:         "+15550100",
		Vehicle:       "bike",
		VehicleNumber: "MH-12",
		Lat:           &lat,
		Long:          &long,
		Available:     true,
	}
}
