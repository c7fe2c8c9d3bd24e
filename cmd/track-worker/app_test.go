package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/freshlane/ordertrack/config"
	"github.com/freshlane/ordertrack/internal/integrations/marketplace"
	"github.com/freshlane/ordertrack/internal/integrations/marketplace/fake"
	"github.com/freshlane/ordertrack/internal/integrations/marketplace/resthttp"
	"github.com/freshlane/ordertrack/internal/models"
	"github.com/freshlane/ordertrack/internal/services/poller"
	"github.com/stretchr/testify/require"
)

type fakeRepo struct{}

func (r *fakeRepo) ClaimDueOrders(_ context.Context, _ time.Time, _ int, _ time.Duration) ([]*models.TrackedOrder, error) {
	return []*models.TrackedOrder{}, nil
}

type noopProducer struct{}

func (p noopProducer) Publish(_ context.Context, _ string, _, _ []byte) error { return nil }

func TestDefaultWorkerFactories_SelectMarketplaceClient(t *testing.T) {
	f := defaultWorkerFactories()

	cfgRest := &config.Config{
		OrderTrack: config.OrderTrackConfig{
			MarketplaceBaseURL: "http://localhost:9000",
			MarketplaceMode:    "rest",
			MarketplaceAPIKey:  "k",
		},
	}
	c1 := f.newMarketplaceClient(cfgRest)
	_, ok := c1.(*resthttp.Client)
	require.True(t, ok)

	cfgFallback := &config.Config{
		OrderTrack: config.OrderTrackConfig{
			MarketplaceBaseURL: "http://localhost:9000",
			MarketplaceMode:    "unknown",
		},
	}
	c2 := f.newMarketplaceClient(cfgFallback)
	_, ok = c2.(*fake.FakeClient)
	require.True(t, ok)

	c3 := f.newMarketplaceClient(&config.Config{})
	_, ok = c3.(*fake.FakeClient)
	require.True(t, ok)
}

func TestDefaultWorkerFactories_ProducerAndRateLimiter_NonNil(t *testing.T) {
	f := defaultWorkerFactories()
	cfg := &config.Config{
		Kafka: config.KafkaConfig{Host: "localhost", Port: 9092},
		Redis: config.RedisConfig{Host: "localhost", Port: 6379},
	}
	require.NotNil(t, f.newProducer(cfg))
	require.NotNil(t, f.newRateLimiter(cfg))
}

func TestRunTrackWorker_ContextCanceled(t *testing.T) {
	calledClose := false

	f := workerFactories{
		newStorage: func(_ *config.Config) (repo poller.Repository, closeFn func(), err error) {
			return &fakeRepo{}, func() { calledClose = true }, nil
		},
		newProducer: func(_ *config.Config) poller.Producer {
			return noopProducer{}
		},
		newRateLimiter: func(_ *config.Config) poller.RateLimiter {
			return nil
		},
		newMarketplaceClient: func(_ *config.Config) marketplace.Client {
			return fake.New() // не будет вызываться, т.к. контекст отменён
		},
	}

	cfg := &config.Config{
		Kafka:      config.KafkaConfig{OrderEventsTopicName: "t"},
		OrderTrack: config.OrderTrackConfig{WorkerPollIntervalSeconds: 1},
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := RunTrackWorker(ctx, cfg, f)
	require.ErrorIs(t, err, context.Canceled)
	require.True(t, calledClose)
}

func TestRunWorkerHTTPServer_Endpoints(t *testing.T) {
	dir := t.TempDir()
	sw := filepath.Join(dir, "swagger.json")
	require.NoError(t, os.WriteFile(sw, []byte(`{"swagger":"2.0"}`), 0o600))

	p := poller.New(&fakeRepo{}, fake.New(), noopProducer{}, nil, "t")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	addrCh := make(chan string, 1)
	errCh := make(chan error, 1)
	go func() {
		errCh <- runWorkerHTTPServer(ctx, workerHTTPOpts{
			httpAddr:    "127.0.0.1:0",
			swaggerPath: sw,
			onListen:    func(addr string) { addrCh <- addr },
			poller:      p,
			cfg:         &config.Config{},
		})
	}()

	addr := <-addrCh

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + addr + "/healthz")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		return resp.StatusCode == 200
	}, 2*time.Second, 20*time.Millisecond)

	resp, err := http.Get("http://" + addr + "/stats")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, 200, resp.StatusCode)
	var stats map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&stats))

	trigResp, err := http.Post("http://"+addr+"/trigger", "application/json", nil)
	require.NoError(t, err)
	defer trigResp.Body.Close()
	require.Equal(t, 200, trigResp.StatusCode)

	cancel()
	<-errCh
}
