package pgorders

import (
	"context"
	"time"

	"github.com/freshlane/ordertrack/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
)

const orderColumns = `
  order_id, vendor_code, status, eta,
  agent_id, agent_name, agent_phone, agent_vehicle, agent_vehicle_number,
  agent_lat, agent_long, agent_available,
  last_checked_at, next_check_at, check_fail_count, last_error, anomaly_count,
  created_at, updated_at`

func scanTrackedOrder(row pgx.Row) (*models.TrackedOrder, error) {
	var t models.TrackedOrder
	var agentID, agentName, agentPhone, agentVehicle, agentVehicleNumber *string
	var agentLat, agentLong *float64
	var agentAvailable bool
	if err := row.Scan(
		&t.ID, &t.VendorCode, &t.Status, &t.EstimatedDeliveryAt,
		&agentID, &agentName, &agentPhone, &agentVehicle, &agentVehicleNumber,
		&agentLat, &agentLong, &agentAvailable,
		&t.LastCheckedAt, &t.NextCheckAt, &t.CheckFailCount, &t.LastError, &t.AnomalyCount,
		&t.CreatedAt, &t.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if agentID != nil {
		t.Agent = &models.DeliveryAgent{
			ID:        *agentID,
			Lat:       agentLat,
			Long:      agentLong,
			Available: agentAvailable,
		}
		if agentName != nil {
			t.Agent.Name = *agentName
		}
		if agentPhone != nil {
			t.Agent.Phone = *agentPhone
		}
		if agentVehicle != nil {
			t.Agent.Vehicle = *agentVehicle
		}
		if agentVehicleNumber != nil {
			t.Agent.VehicleNumber = *agentVehicleNumber
		}
	}
	return &t, nil
}

// CreateOrGetOrders регистрирует заказы в трекинге. Повторная регистрация
// того же id — no-op (события new_order могут дублироваться).
func (s *Storage) CreateOrGetOrders(ctx context.Context, items []models.OrderCreateInput) ([]*models.TrackedOrder, error) {
	now := time.Now().UTC()

	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, errors.Wrap(err, "begin tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	ids := make([]string, 0, len(items))
	for _, it := range items {
		_, err := tx.Exec(ctx, `
INSERT INTO tracked_orders (
  order_id, vendor_code, status, next_check_at, created_at, updated_at
)
VALUES ($1,$2,$3,$4,$5,$5)
ON CONFLICT (order_id) DO NOTHING
`, it.OrderID, it.VendorCode, models.OrderStatusPlaced, now, now)
		if err != nil {
			return nil, errors.Wrap(err, "insert tracked order")
		}
		ids = append(ids, it.OrderID)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, errors.Wrap(err, "commit tx")
	}

	return s.GetOrdersByIDs(ctx, ids)
}

func (s *Storage) GetOrdersByIDs(ctx context.Context, ids []string) ([]*models.TrackedOrder, error) {
	if len(ids) == 0 {
		return []*models.TrackedOrder{}, nil
	}

	rows, err := s.db.Query(ctx, `
SELECT`+orderColumns+`
FROM tracked_orders
WHERE order_id = ANY($1)
`, ids)
	if err != nil {
		return nil, errors.Wrap(err, "select tracked orders")
	}
	defer rows.Close()

	byID := make(map[string]*models.TrackedOrder, len(ids))
	for rows.Next() {
		t, err := scanTrackedOrder(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan tracked order")
		}
		byID[t.ID] = t
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}

	// Ответ в том же порядке, что ids.
	out := make([]*models.TrackedOrder, 0, len(ids))
	for _, id := range ids {
		if t, ok := byID[id]; ok {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s *Storage) GetOrderByID(ctx context.Context, orderID string) (*models.TrackedOrder, error) {
	row := s.db.QueryRow(ctx, `
SELECT`+orderColumns+`
FROM tracked_orders
WHERE order_id = $1
`, orderID)
	t, err := scanTrackedOrder(row)
	if err == pgx.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "select tracked order")
	}
	return t, nil
}

func (s *Storage) RefreshOrder(ctx context.Context, orderID string) error {
	ct, err := s.db.Exec(ctx, `UPDATE tracked_orders SET next_check_at = now(), updated_at = now() WHERE order_id = $1`, orderID)
	if err != nil {
		return errors.Wrap(err, "refresh order")
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ClaimDueOrders выбирает пачку заказов, готовых к опросу, и "бронирует" их,
// чтобы воркеры не обрабатывали один заказ дважды.
// Использует SELECT ... FOR UPDATE SKIP LOCKED.
func (s *Storage) ClaimDueOrders(ctx context.Context, now time.Time, limit int, lease time.Duration) ([]*models.TrackedOrder, error) {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, errors.Wrap(err, "begin tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	rows, err := tx.Query(ctx, `
SELECT`+orderColumns+`
FROM tracked_orders
WHERE next_check_at <= $1
  AND status NOT IN ($2, $3)
ORDER BY next_check_at ASC
LIMIT $4
FOR UPDATE SKIP LOCKED
`, now.UTC(), models.OrderStatusDelivered, models.OrderStatusCancelled, limit)
	if err != nil {
		return nil, errors.Wrap(err, "select due orders")
	}
	defer rows.Close()

	var picked []*models.TrackedOrder
	for rows.Next() {
		t, err := scanTrackedOrder(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan due order")
		}
		picked = append(picked, t)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}

	leaseUntil := now.UTC().Add(lease)
	for _, t := range picked {
		_, err := tx.Exec(ctx, `UPDATE tracked_orders SET next_check_at = $2, updated_at = now() WHERE order_id = $1`, t.ID, leaseUntil)
		if err != nil {
			return nil, errors.Wrap(err, "lease order")
		}
		t.NextCheckAt = leaseUntil
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, errors.Wrap(err, "commit tx")
	}
	return picked, nil
}

func (s *Storage) AssignAgent(ctx context.Context, orderID string, agent models.DeliveryAgent) error {
	ct, err := s.db.Exec(ctx, `
UPDATE tracked_orders
SET
  agent_id = $2, agent_name = $3, agent_phone = $4,
  agent_vehicle = $5, agent_vehicle_number = $6,
  agent_lat = $7, agent_long = $8, agent_available = $9,
  updated_at = now()
WHERE order_id = $1
`, orderID, agent.ID, agent.Name, agent.Phone,
		agent.Vehicle, agent.VehicleNumber,
		agent.Lat, agent.Long, agent.Available)
	if err != nil {
		return errors.Wrap(err, "assign agent")
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateAgentLocation обновляет координаты агента на всех его активных заказах.
func (s *Storage) UpdateAgentLocation(ctx context.Context, agentID string, lat, long float64) error {
	_, err := s.db.Exec(ctx, `
UPDATE tracked_orders
SET agent_lat = $2, agent_long = $3, updated_at = now()
WHERE agent_id = $1
  AND status = $4
`, agentID, lat, long, models.OrderStatusOutForDelivery)
	return errors.Wrap(err, "update agent location")
}
