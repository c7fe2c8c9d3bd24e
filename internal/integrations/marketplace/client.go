package marketplace

import (
	"context"

	"github.com/freshlane/ordertrack/internal/models"
	"github.com/pkg/errors"
)

var (
	// ErrOrderNotFound — бэкенд не знает такой id. Для сессии это терминально.
	ErrOrderNotFound = errors.New("order not found")
	// ErrUnavailable — временный сбой транспорта или бэкенда, можно повторять.
	ErrUnavailable = errors.New("marketplace unavailable")
)

// Client читает состояние заказа из бэкенда маркетплейса.
// Бэкенд — единственный владелец заказа: здесь только чтение снапшотов.
type Client interface {
	GetTracking(ctx context.Context, orderID string) (models.TrackingSnapshot, error)
	GetOrder(ctx context.Context, orderID string) (*models.Order, error)
}
