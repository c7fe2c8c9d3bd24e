package main

import (
	"context"
	"fmt"
	"time"

	"github.com/freshlane/ordertrack/config"
	"github.com/freshlane/ordertrack/internal/broker/kafka"
	"github.com/freshlane/ordertrack/internal/cache/rediscache"
	"github.com/freshlane/ordertrack/internal/integrations/marketplace"
	"github.com/freshlane/ordertrack/internal/integrations/marketplace/fake"
	"github.com/freshlane/ordertrack/internal/integrations/marketplace/resthttp"
	"github.com/freshlane/ordertrack/internal/services/poller"
	"github.com/freshlane/ordertrack/internal/storage/pgorders"
)

type workerFactories struct {
	newStorage           func(cfg *config.Config) (repo poller.Repository, closeFn func(), err error)
	newProducer          func(cfg *config.Config) poller.Producer
	newRateLimiter       func(cfg *config.Config) poller.RateLimiter
	newMarketplaceClient func(cfg *config.Config) marketplace.Client
}

func defaultWorkerFactories() workerFactories {
	return workerFactories{
		newStorage: func(cfg *config.Config) (poller.Repository, func(), error) {
			sslMode := cfg.Database.SSLMode
			if sslMode == "" {
				sslMode = "disable"
			}
			connString := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
				cfg.Database.Username, cfg.Database.Password, cfg.Database.Host, cfg.Database.Port, cfg.Database.DBName, sslMode)
			st, err := pgorders.New(connString)
			if err != nil {
				return nil, nil, err
			}
			return st, st.Close, nil
		},
		newProducer: func(cfg *config.Config) poller.Producer {
			brokers := []string{fmt.Sprintf("%s:%d", cfg.Kafka.Host, cfg.Kafka.Port)}
			return kafka.NewProducer(brokers)
		},
		newRateLimiter: func(cfg *config.Config) poller.RateLimiter {
			redisAddr := fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port)
			return rediscache.NewRateLimiter(redisAddr)
		},
		newMarketplaceClient: func(cfg *config.Config) marketplace.Client {
			// Для демо без живого бэкенда маркетплейса — локальный fake,
			// который сам прогоняет заказ по цепочке статусов.
			if cfg.OrderTrack.MarketplaceBaseURL != "" && cfg.OrderTrack.MarketplaceMode == "rest" {
				return resthttp.New(cfg.OrderTrack.MarketplaceBaseURL, cfg.OrderTrack.MarketplaceAPIKey)
			}
			return fake.New()
		},
	}
}

func plannerConfigFrom(cfg *config.Config) poller.PlannerConfig {
	sec := func(v int) time.Duration { return time.Duration(v) * time.Second }
	return poller.PlannerConfig{
		ActiveMinDelay:      sec(cfg.OrderTrack.WorkerNextCheckActiveMinSeconds),
		ActiveMaxDelay:      sec(cfg.OrderTrack.WorkerNextCheckActiveMaxSeconds),
		OutForDeliveryDelay: sec(cfg.OrderTrack.WorkerNextCheckOutForDeliverySeconds),
		Backoff1:            sec(cfg.OrderTrack.WorkerBackoff1Seconds),
		Backoff2:            sec(cfg.OrderTrack.WorkerBackoff2Seconds),
		Backoff3:            sec(cfg.OrderTrack.WorkerBackoff3Seconds),
		Backoff4:            sec(cfg.OrderTrack.WorkerBackoff4Seconds),
	}
}

func buildPoller(cfg *config.Config, f workerFactories) (*poller.Poller, func(), error) {
	topic := cfg.Kafka.OrderEventsTopicName
	if topic == "" {
		topic = "orders.events"
	}

	pollInterval := time.Duration(cfg.OrderTrack.WorkerPollIntervalSeconds) * time.Second
	if pollInterval <= 0 {
		pollInterval = 2 * time.Second
	}
	batchSize := cfg.OrderTrack.WorkerBatchSize
	if batchSize <= 0 {
		batchSize = 100
	}
	concurrency := cfg.OrderTrack.WorkerConcurrency
	if concurrency <= 0 {
		concurrency = 10
	}
	lease := time.Duration(cfg.OrderTrack.WorkerLeaseSeconds) * time.Second
	if lease <= 0 {
		lease = 120 * time.Second
	}
	rlPerMin := int64(cfg.OrderTrack.WorkerRateLimitPerMinute)
	if rlPerMin <= 0 {
		rlPerMin = 120
	}

	repo, closeFn, err := f.newStorage(cfg)
	if err != nil {
		return nil, nil, err
	}

	p := poller.New(repo, f.newMarketplaceClient(cfg), f.newProducer(cfg), f.newRateLimiter(cfg), topic).
		WithSettings(pollInterval, batchSize, concurrency, lease, rlPerMin).
		WithPlanner(plannerConfigFrom(cfg)).
		WithVendorRateLimits(cfg.OrderTrack.WorkerVendorRateLimits)

	return p, closeFn, nil
}

func RunTrackWorker(ctx context.Context, cfg *config.Config, f workerFactories) error {
	p, closeFn, err := buildPoller(cfg, f)
	if err != nil {
		return err
	}
	if closeFn != nil {
		defer closeFn()
	}
	return p.Run(ctx)
}
