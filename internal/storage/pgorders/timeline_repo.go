package pgorders

import (
	"context"
	"time"

	"github.com/freshlane/ordertrack/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
)

type StatusUpdate struct {
	OrderID string

	CheckedAt time.Time

	Status      string
	StatusAt    time.Time
	ETA         *time.Time
	Description string
	Location    *string

	NextCheckAt time.Time

	// Error выставляется, когда опрос не удался: статус не меняется,
	// растёт только счётчик сбоев.
	Error *string
}

// ApplyStatusUpdate применяет обновление с защитой от регресса: статус
// меняется только если переход валиден (строго вперёд или отмена из
// допустимого предшественника). Невалидный переход не трогает строку,
// фиксируется в anomaly_count и возвращается applied=false —
// аномалию данных логирует вызывающий, пользователю она не видна.
func (s *Storage) ApplyStatusUpdate(ctx context.Context, upd StatusUpdate) (applied bool, err error) {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return false, errors.Wrap(err, "begin tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if upd.Error != nil && *upd.Error != "" {
		_, err := tx.Exec(ctx, `
UPDATE tracked_orders
SET
  last_checked_at = $2,
  check_fail_count = check_fail_count + 1,
  last_error = $3,
  next_check_at = $4,
  updated_at = now()
WHERE order_id = $1
`, upd.OrderID, upd.CheckedAt.UTC(), *upd.Error, upd.NextCheckAt.UTC())
		if err != nil {
			return false, errors.Wrap(err, "update order (error)")
		}
		if err := tx.Commit(ctx); err != nil {
			return false, errors.Wrap(err, "commit tx")
		}
		return false, nil
	}

	var current string
	err = tx.QueryRow(ctx, `SELECT status FROM tracked_orders WHERE order_id = $1 FOR UPDATE`, upd.OrderID).Scan(&current)
	if err == pgx.ErrNoRows {
		return false, ErrNotFound
	}
	if err != nil {
		return false, errors.Wrap(err, "select current status")
	}

	if !models.ValidTransition(current, upd.Status) {
		_, err := tx.Exec(ctx, `
UPDATE tracked_orders
SET
  last_checked_at = $2,
  check_fail_count = 0,
  last_error = NULL,
  anomaly_count = anomaly_count + 1,
  next_check_at = $3,
  updated_at = now()
WHERE order_id = $1
`, upd.OrderID, upd.CheckedAt.UTC(), upd.NextCheckAt.UTC())
		if err != nil {
			return false, errors.Wrap(err, "update order (anomaly)")
		}
		if err := tx.Commit(ctx); err != nil {
			return false, errors.Wrap(err, "commit tx")
		}
		return false, nil
	}

	_, err = tx.Exec(ctx, `
UPDATE tracked_orders
SET
  status = $3,
  eta = $4,
  last_checked_at = $2,
  check_fail_count = 0,
  last_error = NULL,
  next_check_at = $5,
  updated_at = now()
WHERE order_id = $1
`, upd.OrderID, upd.CheckedAt.UTC(), upd.Status, upd.ETA, upd.NextCheckAt.UTC())
	if err != nil {
		return false, errors.Wrap(err, "update order (ok)")
	}

	if current != upd.Status {
		loc := ""
		if upd.Location != nil {
			loc = *upd.Location
		}
		_, err = tx.Exec(ctx, `
INSERT INTO order_timeline (
  order_id, status, description, event_time, location, created_at
)
VALUES ($1,$2,$3,$4,$5, now())
ON CONFLICT (order_id, status, event_time, location) DO NOTHING
`, upd.OrderID, upd.Status, upd.Description, upd.StatusAt.UTC(), loc)
		if err != nil {
			return false, errors.Wrap(err, "insert timeline entry")
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return false, errors.Wrap(err, "commit tx")
	}
	return true, nil
}

// ListTimeline возвращает историю по возрастанию event_time: таймлайн
// монотонен по контракту, клиент рисует его сверху вниз.
func (s *Storage) ListTimeline(ctx context.Context, orderID string, limit, offset int) ([]*models.TimelineEntry, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := s.db.Query(ctx, `
SELECT
  id, order_id, status, description, event_time, location, created_at
FROM order_timeline
WHERE order_id = $1
ORDER BY event_time ASC, id ASC
LIMIT $2 OFFSET $3
`, orderID, limit, offset)
	if err != nil {
		return nil, errors.Wrap(err, "select timeline")
	}
	defer rows.Close()

	var out []*models.TimelineEntry
	for rows.Next() {
		var e models.TimelineEntry
		var location string
		if err := rows.Scan(
			&e.ID, &e.OrderID, &e.Status, &e.Description,
			&e.EventTime, &location, &e.CreatedAt,
		); err != nil {
			return nil, errors.Wrap(err, "scan timeline entry")
		}
		if location != "" {
			e.Location = &location
		}
		out = append(out, &e)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	return out, nil
}
