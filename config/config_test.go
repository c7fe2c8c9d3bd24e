package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	raw := `
database:
  host: localhost
  port: 5432
  username: ordertrack
  password: secret
  name: ordertrack
  ssl_mode: disable
kafka:
  host: localhost
  port: 9092
  order_events_topic_name: orders.events
redis:
  host: localhost
  port: 6379
ordertrack:
  http_addr: ":8080"
  kafka_consumer_group: track-api
  snapshot_ttl_seconds: 600
  worker_poll_interval_seconds: 2
  worker_batch_size: 100
  worker_concurrency: 10
  worker_lease_seconds: 120
  worker_rate_limit_per_minute: 120
  worker_vendor_rate_limits:
    sushi-ya: 30
    greengrocer: 90
  worker_http_addr: ":8082"
  marketplace_base_url: http://localhost:9000
  marketplace_mode: rest
  marketplace_api_key: k
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(raw), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	require.Equal(t, "localhost", cfg.Database.Host)
	require.Equal(t, 5432, cfg.Database.Port)
	require.Equal(t, "orders.events", cfg.Kafka.OrderEventsTopicName)
	require.Equal(t, 6379, cfg.Redis.Port)
	require.Equal(t, ":8080", cfg.OrderTrack.HTTPAddr)
	require.Equal(t, "track-api", cfg.OrderTrack.KafkaConsumerGroup)
	require.Equal(t, 600, cfg.OrderTrack.SnapshotTTLSeconds)
	require.Equal(t, int64(30), cfg.OrderTrack.WorkerVendorRateLimits["sushi-ya"])
	require.Equal(t, "rest", cfg.OrderTrack.MarketplaceMode)
}

func TestLoadConfig_FileMissing(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}
