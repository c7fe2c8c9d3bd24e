package poller

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/freshlane/ordertrack/internal/broker/events"
	"github.com/freshlane/ordertrack/internal/integrations/marketplace"
	"github.com/freshlane/ordertrack/internal/models"
	"github.com/pkg/errors"
)

type Repository interface {
	ClaimDueOrders(ctx context.Context, now time.Time, limit int, lease time.Duration) ([]*models.TrackedOrder, error)
}

type Producer interface {
	Publish(ctx context.Context, topic string, key, value []byte) error
}

type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int64, window time.Duration) (bool, int64, error)
}

// Poller опрашивает маркетплейс по заказам, у которых подошёл next_check_at,
// и публикует события каталога в Kafka. Источник правды о заказе — бэкенд,
// воркер только транслирует его состояние в событийный поток.
type Poller struct {
	repo     Repository
	market   marketplace.Client
	producer Producer
	rl       RateLimiter

	topic string

	planner *Planner

	pollInterval       time.Duration
	batchSize          int
	concurrency        int
	lease              time.Duration
	rateLimitPerMinute int64
	vendorRateLimits   map[string]int64

	triggerCh chan struct{}

	startedAtUnixNano   int64
	lastCycleUnixNano   atomic.Int64
	lastTriggerUnixNano atomic.Int64
	totalClaimed        atomic.Int64
	totalProcessed      atomic.Int64
	totalErrors         atomic.Int64
	inFlight            atomic.Int64
	lastErrorMu         sync.Mutex
	lastError           string
}

func New(repo Repository, market marketplace.Client, producer Producer, rl RateLimiter, topic string) *Poller {
	return &Poller{
		repo: repo, market: market, producer: producer, rl: rl, topic: topic,
		planner:            DefaultPlanner(),
		pollInterval:       2 * time.Second,
		batchSize:          100,
		concurrency:        10,
		lease:              120 * time.Second,
		rateLimitPerMinute: 120,
		vendorRateLimits:   map[string]int64{},
		triggerCh:          make(chan struct{}, 1),
		startedAtUnixNano:  time.Now().UTC().UnixNano(),
	}
}

func (p *Poller) WithSettings(pollInterval time.Duration, batchSize, concurrency int, lease time.Duration, rlPerMin int64) *Poller {
	if pollInterval > 0 {
		p.pollInterval = pollInterval
	}
	if batchSize > 0 {
		p.batchSize = batchSize
	}
	if concurrency > 0 {
		p.concurrency = concurrency
	}
	if lease > 0 {
		p.lease = lease
	}
	if rlPerMin > 0 {
		p.rateLimitPerMinute = rlPerMin
	}
	return p
}

func (p *Poller) WithPlanner(cfg PlannerConfig) *Poller {
	p.planner = NewPlanner(cfg, nil)
	return p
}

// WithVendorRateLimits задаёт лимиты опроса на отдельных вендоров
// (ресторанные API обычно жёстче лимитируют, чем продуктовые).
func (p *Poller) WithVendorRateLimits(limits map[string]int64) *Poller {
	for code, lim := range limits {
		if lim > 0 {
			p.vendorRateLimits[code] = lim
		}
	}
	return p
}

// Trigger forces an immediate poll cycle (best-effort, non-blocking).
func (p *Poller) Trigger() {
	p.lastTriggerUnixNano.Store(time.Now().UTC().UnixNano())
	select {
	case p.triggerCh <- struct{}{}:
	default:
	}
}

type Stats struct {
	StartedAt      time.Time  `json:"startedAt"`
	LastCycleAt    *time.Time `json:"lastCycleAt,omitempty"`
	LastTriggerAt  *time.Time `json:"lastTriggerAt,omitempty"`
	TotalClaimed   int64      `json:"totalClaimed"`
	TotalProcessed int64      `json:"totalProcessed"`
	TotalErrors    int64      `json:"totalErrors"`
	InFlight       int64      `json:"inFlight"`
	LastError      string     `json:"lastError,omitempty"`
}

func (p *Poller) Stats() Stats {
	st := Stats{
		StartedAt:      time.Unix(0, p.startedAtUnixNano).UTC(),
		TotalClaimed:   p.totalClaimed.Load(),
		TotalProcessed: p.totalProcessed.Load(),
		TotalErrors:    p.totalErrors.Load(),
		InFlight:       p.inFlight.Load(),
	}
	if n := p.lastCycleUnixNano.Load(); n > 0 {
		t := time.Unix(0, n).UTC()
		st.LastCycleAt = &t
	}
	if n := p.lastTriggerUnixNano.Load(); n > 0 {
		t := time.Unix(0, n).UTC()
		st.LastTriggerAt = &t
	}
	p.lastErrorMu.Lock()
	st.LastError = p.lastError
	p.lastErrorMu.Unlock()
	return st
}

func (p *Poller) Run(ctx context.Context) error {
	t := time.NewTicker(p.pollInterval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			p.runOnce(ctx)
		case <-p.triggerCh:
			p.runOnce(ctx)
		}
	}
}

func (p *Poller) runOnce(ctx context.Context) {
	now := time.Now().UTC()
	p.lastCycleUnixNano.Store(now.UnixNano())

	items, err := p.repo.ClaimDueOrders(ctx, now, p.batchSize, p.lease)
	if err != nil {
		slog.Error("claim due orders", "error", err.Error())
		p.lastErrorMu.Lock()
		p.lastError = err.Error()
		p.lastErrorMu.Unlock()
		return
	}
	p.totalClaimed.Add(int64(len(items)))

	sem := make(chan struct{}, p.concurrency)
	var wg sync.WaitGroup
	for _, tr := range items {
		sem <- struct{}{}
		wg.Add(1)
		trCopy := tr
		p.inFlight.Add(1)
		go func() {
			defer func() {
				p.inFlight.Add(-1)
				<-sem
				wg.Done()
			}()
			if err := p.processOne(ctx, trCopy); err != nil {
				p.totalErrors.Add(1)
				p.lastErrorMu.Lock()
				p.lastError = err.Error()
				p.lastErrorMu.Unlock()
				slog.Error("process order", "order_id", trCopy.ID, "error", err.Error())
			}
			p.totalProcessed.Add(1)
		}()
	}
	wg.Wait()
}

func (p *Poller) processOne(ctx context.Context, tr *models.TrackedOrder) error {
	now := time.Now().UTC()

	if p.rl != nil && p.rateLimitPerMinute > 0 {
		limit := p.rateLimitPerMinute
		if v, ok := p.vendorRateLimits[tr.VendorCode]; ok {
			limit = v
		}

		minuteKey := fmt.Sprintf("rl:vendor:%s:%s", tr.VendorCode, now.Format("200601021504"))
		allowed, n, err := p.rl.Allow(ctx, minuteKey, limit, 70*time.Second)
		if err != nil {
			return err
		}
		if !allowed {
			// Слишком много запросов в минуту: подождём немного, чтобы разгрузить источник.
			slog.Warn("rate limit exceeded", "vendor", tr.VendorCode, "count", n)
			time.Sleep(500 * time.Millisecond)
		}
	}

	snap, err := p.market.GetTracking(ctx, tr.ID)

	upd := events.OrderStatusUpdated{
		OrderID:   tr.ID,
		Timestamp: now,
	}

	switch {
	case errors.Is(err, marketplace.ErrOrderNotFound):
		// Бэкенд больше не знает этот заказ: фиксируем ошибку и опрос
		// откладываем надолго, смысла долбить нет.
		e := err.Error()
		upd.Error = &e
		next := now.Add(p.planner.cfg.TerminalDelay)
		upd.NextCheckAt = &next
	case err != nil:
		e := err.Error()
		upd.Error = &e
		next := now.Add(p.planner.BackoffDelay(tr.CheckFailCount + 1))
		upd.NextCheckAt = &next
	default:
		upd.Status = snap.Status
		upd.ETA = snap.EstimatedDeliveryAt
		if !snap.LastUpdated.IsZero() {
			upd.Timestamp = snap.LastUpdated
		}
		next := now.Add(p.planner.NextCheckDelay(snap.Status))
		upd.NextCheckAt = &next
	}

	key := []byte(tr.ID)
	if err := p.publish(ctx, key, events.EventOrderStatusUpdated, upd); err != nil {
		return err
	}

	// Назначение курьера и его координаты — отдельные события каталога.
	if err == nil && snap.Agent != nil {
		if tr.Agent == nil || tr.Agent.ID != snap.Agent.ID {
			if err := p.publish(ctx, key, events.EventOrderAssigned, events.OrderAssigned{
				OrderID:   tr.ID,
				Agent:     *snap.Agent,
				Timestamp: now,
			}); err != nil {
				return err
			}
		}
		if snap.Agent.Lat != nil && snap.Agent.Long != nil {
			if err := p.publish(ctx, []byte(snap.Agent.ID), events.EventLocationUpdate, events.LocationUpdate{
				AgentID:   snap.Agent.ID,
				Lat:       *snap.Agent.Lat,
				Long:      *snap.Agent.Long,
				Timestamp: now,
			}); err != nil {
				return err
			}
		}
	}

	return nil
}

func (p *Poller) publish(ctx context.Context, key []byte, event string, payload any) error {
	b, err := events.Marshal(event, payload)
	if err != nil {
		return errors.Wrapf(err, "marshal %s", event)
	}

	// Kafka может быть не готова сразу после старта docker compose.
	// Небольшой retry, чтобы не терять цикл опроса.
	var pubErr error
	for i := 0; i < 10; i++ {
		if err := p.producer.Publish(ctx, p.topic, key, b); err == nil {
			return nil
		} else {
			pubErr = err
			time.Sleep(time.Duration(150*(i+1)) * time.Millisecond)
		}
	}
	return pubErr
}
