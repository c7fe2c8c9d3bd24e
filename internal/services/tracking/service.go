package tracking

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/freshlane/ordertrack/internal/broker/events"
	"github.com/freshlane/ordertrack/internal/integrations/marketplace"
	"github.com/freshlane/ordertrack/internal/models"
	"github.com/freshlane/ordertrack/internal/storage/pgorders"
	"github.com/pkg/errors"
)

type Repository interface {
	CreateOrGetOrders(ctx context.Context, items []models.OrderCreateInput) ([]*models.TrackedOrder, error)
	GetOrderByID(ctx context.Context, orderID string) (*models.TrackedOrder, error)
	ListTimeline(ctx context.Context, orderID string, limit, offset int) ([]*models.TimelineEntry, error)
	RefreshOrder(ctx context.Context, orderID string) error
	ApplyStatusUpdate(ctx context.Context, upd pgorders.StatusUpdate) (bool, error)
	AssignAgent(ctx context.Context, orderID string, agent models.DeliveryAgent) error
	UpdateAgentLocation(ctx context.Context, agentID string, lat, long float64) error
}

type BytesCache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

type Service struct {
	repo        Repository
	market      marketplace.Client
	cache       BytesCache
	snapshotTTL time.Duration
}

func New(repo Repository, market marketplace.Client, c BytesCache, snapshotTTL time.Duration) *Service {
	return &Service{repo: repo, market: market, cache: c, snapshotTTL: snapshotTTL}
}

func validOrderID(orderID string) bool {
	return strings.TrimSpace(orderID) != ""
}

// GetTracking возвращает текущий снапшот статуса. Кэш — best effort:
// промах или недоступный Redis просто уводят в БД.
func (s *Service) GetTracking(ctx context.Context, orderID string) (models.TrackingSnapshot, error) {
	if !validOrderID(orderID) {
		return models.TrackingSnapshot{}, models.ErrInvalidOrderID
	}

	key := snapshotKey(orderID)
	if s.cache != nil && s.snapshotTTL > 0 {
		if b, ok, err := s.cache.Get(ctx, key); err == nil && ok {
			var snap models.TrackingSnapshot
			if json.Unmarshal(b, &snap) == nil {
				return snap, nil
			}
		}
	}

	t, err := s.repo.GetOrderByID(ctx, orderID)
	if err != nil {
		return models.TrackingSnapshot{}, err
	}
	snap := t.Snapshot()

	if s.cache != nil && s.snapshotTTL > 0 {
		b, _ := json.Marshal(snap)
		_ = s.cache.Set(ctx, key, b, s.snapshotTTL)
	}
	return snap, nil
}

// GetOrderDetail проксирует полную карточку заказа из маркетплейса.
func (s *Service) GetOrderDetail(ctx context.Context, orderID string) (*models.Order, error) {
	if !validOrderID(orderID) {
		return nil, models.ErrInvalidOrderID
	}
	return s.market.GetOrder(ctx, orderID)
}

func (s *Service) ListTimeline(ctx context.Context, orderID string, limit, offset int) ([]*models.TimelineEntry, error) {
	if !validOrderID(orderID) {
		return nil, models.ErrInvalidOrderID
	}
	return s.repo.ListTimeline(ctx, orderID, limit, offset)
}

func (s *Service) RefreshOrder(ctx context.Context, orderID string) error {
	if !validOrderID(orderID) {
		return models.ErrInvalidOrderID
	}
	return s.repo.RefreshOrder(ctx, orderID)
}

// HandleEvent применяет одно событие из топика. Неизвестные имена и события
// чужих доменов (чат, нотификации, склад) пропускаются без ошибки.
func (s *Service) HandleEvent(ctx context.Context, key, value []byte) error {
	payload, known, err := events.Decode(value)
	if err != nil {
		return err
	}
	if !known {
		slog.Debug("skip unknown event", "key", string(key))
		return nil
	}

	switch p := payload.(type) {
	case *events.NewOrder:
		if !validOrderID(p.OrderID) {
			return errors.New("new_order without orderId")
		}
		_, err := s.repo.CreateOrGetOrders(ctx, []models.OrderCreateInput{{
			VendorCode: p.VendorCode,
			OrderID:    p.OrderID,
		}})
		return err

	case *events.OrderStatusUpdated:
		return s.applyStatusUpdate(ctx, p)

	case *events.OrderAssigned:
		if err := s.repo.AssignAgent(ctx, p.OrderID, p.Agent); err != nil {
			return err
		}
		s.invalidate(ctx, p.OrderID)
		return nil

	case *events.LocationUpdate:
		return s.repo.UpdateAgentLocation(ctx, p.AgentID, p.Lat, p.Long)

	default:
		// Валидное событие каталога, но не про трекинг заказов.
		return nil
	}
}

func (s *Service) applyStatusUpdate(ctx context.Context, p *events.OrderStatusUpdated) error {
	if !validOrderID(p.OrderID) {
		return errors.New("order_status_updated without orderId")
	}

	now := time.Now().UTC()
	checkedAt := p.Timestamp
	if checkedAt.IsZero() {
		checkedAt = now
	}

	// Fallback: если воркер не прислал nextCheckAt, проверим через минуту.
	nextCheck := now.Add(time.Minute)
	if p.NextCheckAt != nil && !p.NextCheckAt.IsZero() {
		nextCheck = *p.NextCheckAt
	}

	upd := pgorders.StatusUpdate{
		OrderID:     p.OrderID,
		CheckedAt:   checkedAt,
		Status:      p.Status,
		StatusAt:    checkedAt,
		ETA:         p.ETA,
		Description: p.Description,
		Location:    p.Location,
		NextCheckAt: nextCheck,
		Error:       p.Error,
	}

	applied, err := s.repo.ApplyStatusUpdate(ctx, upd)
	if err != nil {
		return err
	}
	if !applied && (p.Error == nil || *p.Error == "") {
		// Регресс статуса: аномалия данных, не ошибка пользователя.
		slog.Warn("order status regression ignored",
			"order_id", p.OrderID, "reported_status", p.Status)
	}

	s.invalidate(ctx, p.OrderID)
	return nil
}

// invalidate перечитывает снапшот из БД в кэш; при любой ошибке кэш просто
// протухнет по TTL.
func (s *Service) invalidate(ctx context.Context, orderID string) {
	if s.cache == nil || s.snapshotTTL <= 0 {
		return
	}
	t, err := s.repo.GetOrderByID(ctx, orderID)
	if err != nil {
		return
	}
	b, _ := json.Marshal(t.Snapshot())
	_ = s.cache.Set(ctx, snapshotKey(orderID), b, s.snapshotTTL)
}

func snapshotKey(orderID string) string {
	return fmt.Sprintf("order:%s:tracking", orderID)
}
