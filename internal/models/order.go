package models

import (
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// ErrInvalidOrderID: пустой или заведомо кривой id заказа. Отслеживание
// с таким id даже не начинается.
var ErrInvalidOrderID = errors.New("invalid order id")

type Order struct {
	ID         string
	VendorCode string

	Items []OrderItem

	Subtotal    decimal.Decimal
	Tax         decimal.Decimal
	DeliveryFee decimal.Decimal
	Discount    decimal.Decimal
	Total       decimal.Decimal

	Address DeliveryAddress

	PaymentMethod string
	PaymentStatus string

	Status              string
	EstimatedDeliveryAt *time.Time
	Agent               *DeliveryAgent

	CreatedAt time.Time
	UpdatedAt time.Time
}

// TrackedOrder — персистентная проекция заказа в трекинг-сервисе:
// только то, что нужно для опроса и отдачи статуса.
type TrackedOrder struct {
	ID         string
	VendorCode string

	Status              string
	EstimatedDeliveryAt *time.Time
	Agent               *DeliveryAgent

	LastCheckedAt  *time.Time
	NextCheckAt    time.Time
	CheckFailCount int32
	LastError      *string
	AnomalyCount   int32

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Snapshot converts the stored projection to the read-model served to clients.
func (t *TrackedOrder) Snapshot() TrackingSnapshot {
	return TrackingSnapshot{
		OrderID:             t.ID,
		Status:              t.Status,
		EstimatedDeliveryAt: t.EstimatedDeliveryAt,
		Agent:               t.Agent,
		LastUpdated:         t.UpdatedAt,
	}
}

type OrderItem struct {
	ProductID      string
	Name           string
	Quantity       int
	UnitPrice      decimal.Decimal
	Customizations []string
}

type DeliveryAddress struct {
	Street       string
	City         string
	State        string
	Zip          string
	Instructions string
}

type DeliveryAgent struct {
	ID            string
	Name          string
	Phone         string
	Vehicle       string
	VehicleNumber string
	Lat           *float64
	Long          *float64
	Available     bool
}

// TimelineEntry — одна строка истории заказа (status + время + место).
type TimelineEntry struct {
	ID          uint64
	OrderID     string
	Status      string
	Description string
	EventTime   time.Time
	Location    *string
	CreatedAt   time.Time
}

// TrackingSnapshot is the read-model both the marketplace endpoint and the
// tracking API return for one order id.
type TrackingSnapshot struct {
	OrderID             string         `json:"orderId"`
	Status              string         `json:"status"`
	EstimatedDeliveryAt *time.Time     `json:"estimatedDeliveryTime,omitempty"`
	Agent               *DeliveryAgent `json:"deliveryAgent,omitempty"`
	LastUpdated         time.Time      `json:"lastUpdated"`
}

type OrderCreateInput struct {
	VendorCode string
	OrderID    string
}

// CheckTotals проверяет инвариант total == subtotal + tax + deliveryFee - discount.
func (o *Order) CheckTotals() error {
	for _, v := range []struct {
		name string
		d    decimal.Decimal
	}{
		{"subtotal", o.Subtotal},
		{"tax", o.Tax},
		{"deliveryFee", o.DeliveryFee},
		{"discount", o.Discount},
		{"total", o.Total},
	} {
		if v.d.IsNegative() {
			return errors.Errorf("%s is negative", v.name)
		}
	}
	want := o.Subtotal.Add(o.Tax).Add(o.DeliveryFee).Sub(o.Discount)
	if !o.Total.Equal(want) {
		return errors.Errorf("total mismatch: have %s, want %s", o.Total, want)
	}
	return nil
}

// SortedTimeline reports whether entries are non-decreasing by event time.
func SortedTimeline(entries []*TimelineEntry) bool {
	for i := 1; i < len(entries); i++ {
		if entries[i].EventTime.Before(entries[i-1].EventTime) {
			return false
		}
	}
	return true
}
