package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/freshlane/ordertrack/internal/integrations/marketplace"
	"github.com/freshlane/ordertrack/internal/models"
	"github.com/pkg/errors"
)

// apiClient ходит в трекинг-API и реализует watcher.Source.
type apiClient struct {
	baseURL string
	hc      *http.Client
}

func newAPIClient(baseURL string) *apiClient {
	return &apiClient{
		baseURL: baseURL,
		hc:      &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *apiClient) GetTracking(ctx context.Context, orderID string) (models.TrackingSnapshot, error) {
	u := fmt.Sprintf("%s/api/v1/orders/%s/tracking", c.baseURL, url.PathEscape(orderID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return models.TrackingSnapshot{}, errors.Wrap(err, "build request")
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return models.TrackingSnapshot{}, errors.Wrap(err, "tracking api request")
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusBadRequest:
		return models.TrackingSnapshot{}, models.ErrInvalidOrderID
	case http.StatusNotFound:
		return models.TrackingSnapshot{}, marketplace.ErrOrderNotFound
	default:
		return models.TrackingSnapshot{}, errors.Errorf("tracking api: unexpected status %d", resp.StatusCode)
	}

	var snap models.TrackingSnapshot
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		return models.TrackingSnapshot{}, errors.Wrap(err, "decode tracking response")
	}
	return snap, nil
}

// Refresh просит бэкенд опросить заказ вне расписания.
func (c *apiClient) Refresh(ctx context.Context, orderID string) error {
	u := fmt.Sprintf("%s/api/v1/orders/%s/refresh", c.baseURL, url.PathEscape(orderID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, nil)
	if err != nil {
		return errors.Wrap(err, "build request")
	}
	resp, err := c.hc.Do(req)
	if err != nil {
		return errors.Wrap(err, "refresh request")
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		return errors.Errorf("refresh: unexpected status %d", resp.StatusCode)
	}
	return nil
}
