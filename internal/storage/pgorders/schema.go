package pgorders

import (
	"context"

	"github.com/pkg/errors"
)

func (s *Storage) initSchema(ctx context.Context) error {
	stmts := []string{
		`
CREATE TABLE IF NOT EXISTS tracked_orders (
  order_id TEXT PRIMARY KEY,
  vendor_code TEXT NOT NULL,
  status TEXT NOT NULL,
  eta TIMESTAMPTZ NULL,
  agent_id TEXT NULL,
  agent_name TEXT NULL,
  agent_phone TEXT NULL,
  agent_vehicle TEXT NULL,
  agent_vehicle_number TEXT NULL,
  agent_lat DOUBLE PRECISION NULL,
  agent_long DOUBLE PRECISION NULL,
  agent_available BOOLEAN NOT NULL DEFAULT FALSE,
  last_checked_at TIMESTAMPTZ NULL,
  next_check_at TIMESTAMPTZ NOT NULL,
  check_fail_count INT NOT NULL DEFAULT 0,
  last_error TEXT NULL,
  anomaly_count INT NOT NULL DEFAULT 0,
  created_at TIMESTAMPTZ NOT NULL,
  updated_at TIMESTAMPTZ NOT NULL
)`,
		`CREATE INDEX IF NOT EXISTS idx_tracked_orders_next_check_at ON tracked_orders(next_check_at)`,
		`CREATE INDEX IF NOT EXISTS idx_tracked_orders_agent_id ON tracked_orders(agent_id)`,
		`
CREATE TABLE IF NOT EXISTS order_timeline (
  id BIGSERIAL PRIMARY KEY,
  order_id TEXT NOT NULL REFERENCES tracked_orders(order_id) ON DELETE CASCADE,
  status TEXT NOT NULL,
  description TEXT NOT NULL DEFAULT '',
  event_time TIMESTAMPTZ NOT NULL,
  location TEXT NOT NULL DEFAULT '',
  created_at TIMESTAMPTZ NOT NULL
)`,
		`CREATE INDEX IF NOT EXISTS idx_order_timeline_order_id_event_time ON order_timeline(order_id, event_time ASC)`,
		// Повторная доставка события из Kafka не должна дублировать строку таймлайна.
		`CREATE UNIQUE INDEX IF NOT EXISTS uq_order_timeline_dedup ON order_timeline(order_id, status, event_time, location)`,
	}

	for _, q := range stmts {
		if _, err := s.db.Exec(ctx, q); err != nil {
			return errors.Wrap(err, "init schema")
		}
	}
	return nil
}
