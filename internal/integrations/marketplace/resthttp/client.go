package resthttp

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
	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker"
)

type Client struct {
	baseURL string
	apiKey  string
	httpc   *http.Client
	breaker *gobreaker.CircuitBreaker
}

func New(baseURL, apiKey string) *Client {
	if baseURL == "" {
		baseURL = "http://localhost:9000"
	}
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpc: &http.Client{
			Timeout: 10 * time.Second,
		},
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    "marketplace",
			Timeout: 30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
		}),
	}
}

type agentResp struct {
	ID            string   `json:"id"`
	Name          string   `json:"name"`
	Phone         string   `json:"phone"`
	Vehicle       string   `json:"vehicle"`
	VehicleNumber string   `json:"vehicleNumber"`
	Lat           *float64 `json:"lat,omitempty"`
	Long          *float64 `json:"long,omitempty"`
	Available     bool     `json:"available"`
}

type trackingResp struct {
	OrderID               string     `json:"orderId"`
	Status                string     `json:"status"`
	EstimatedDeliveryTime *time.Time `json:"estimatedDeliveryTime,omitempty"`
	DeliveryAgent         *agentResp `json:"deliveryAgent,omitempty"`
	LastUpdated           time.Time  `json:"lastUpdated"`
}

type itemResp struct {
	ProductID      string          `json:"productId"`
	Name           string          `json:"name"`
	Quantity       int             `json:"quantity"`
	UnitPrice      decimal.Decimal `json:"unitPrice"`
	Customizations []string        `json:"customizations,omitempty"`
}

type addressResp struct {
	Street       string `json:"street"`
	City         string `json:"city"`
	State        string `json:"state"`
	Zip          string `json:"zip"`
	Instructions string `json:"instructions,omitempty"`
}

type orderResp struct {
	OrderID               string          `json:"orderId"`
	VendorCode            string          `json:"vendorCode"`
	Items                 []itemResp      `json:"items"`
	Subtotal              decimal.Decimal `json:"subtotal"`
	Tax                   decimal.Decimal `json:"tax"`
	DeliveryFee           decimal.Decimal `json:"deliveryFee"`
	Discount              decimal.Decimal `json:"discount"`
	Total                 decimal.Decimal `json:"total"`
	DeliveryAddress       addressResp     `json:"deliveryAddress"`
	PaymentMethod         string          `json:"paymentMethod"`
	PaymentStatus         string          `json:"paymentStatus"`
	Status                string          `json:"status"`
	EstimatedDeliveryTime *time.Time      `json:"estimatedDeliveryTime,omitempty"`
	DeliveryAgent         *agentResp      `json:"deliveryAgent,omitempty"`
	CreatedAt             time.Time       `json:"createdAt"`
}

func (c *Client) GetTracking(ctx context.Context, orderID string) (models.TrackingSnapshot, error) {
	var tr trackingResp
	if err := c.getJSON(ctx, fmt.Sprintf("/api/v1/orders/%s/tracking", url.PathEscape(orderID)), &tr); err != nil {
		return models.TrackingSnapshot{}, err
	}
	return models.TrackingSnapshot{
		OrderID:             tr.OrderID,
		Status:              tr.Status,
		EstimatedDeliveryAt: tr.EstimatedDeliveryTime,
		Agent:               toAgent(tr.DeliveryAgent),
		LastUpdated:         tr.LastUpdated,
	}, nil
}

func (c *Client) GetOrder(ctx context.Context, orderID string) (*models.Order, error) {
	var or orderResp
	if err := c.getJSON(ctx, fmt.Sprintf("/api/v1/orders/%s", url.PathEscape(orderID)), &or); err != nil {
		return nil, err
	}

	items := make([]models.OrderItem, 0, len(or.Items))
	for _, it := range or.Items {
		items = append(items, models.OrderItem{
			ProductID:      it.ProductID,
			Name:           it.Name,
			Quantity:       it.Quantity,
			UnitPrice:      it.UnitPrice,
			Customizations: it.Customizations,
		})
	}

	return &models.Order{
		ID:          or.OrderID,
		VendorCode:  or.VendorCode,
		Items:       items,
		Subtotal:    or.Subtotal,
		Tax:         or.Tax,
		DeliveryFee: or.DeliveryFee,
		Discount:    or.Discount,
		Total:       or.Total,
		Address: models.DeliveryAddress{
			Street:       or.DeliveryAddress.Street,
			City:         or.DeliveryAddress.City,
			State:        or.DeliveryAddress.State,
			Zip:          or.DeliveryAddress.Zip,
			Instructions: or.DeliveryAddress.Instructions,
		},
		PaymentMethod:       or.PaymentMethod,
		PaymentStatus:       or.PaymentStatus,
		Status:              or.Status,
		EstimatedDeliveryAt: or.EstimatedDeliveryTime,
		Agent:               toAgent(or.DeliveryAgent),
		CreatedAt:           or.CreatedAt,
	}, nil
}

// getJSON выполняет запрос через circuit breaker: после пяти подряд сбоев
// перестаём дёргать бэкенд на 30 секунд.
func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return errors.Wrap(err, "parse base url")
	}
	u.Path = path
	if c.apiKey != "" {
		q := u.Query()
		q.Set("apiKey", c.apiKey)
		u.RawQuery = q.Encode()
	}

	res, err := c.breaker.Execute(func() (any, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
		if err != nil {
			return nil, errors.Wrap(err, "new request")
		}

		resp, err := c.httpc.Do(req)
		if err != nil {
			return nil, errors.Wrap(marketplace.ErrUnavailable, err.Error())
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusNotFound:
			// Not-found — это ответ бэкенда, а не его недоступность:
			// breaker такие запросы считает успешными.
			return marketplace.ErrOrderNotFound, nil
		case resp.StatusCode == http.StatusTooManyRequests:
			return nil, errors.Wrap(marketplace.ErrUnavailable, "rate limited (429)")
		case resp.StatusCode/100 != 2:
			return nil, errors.Wrapf(marketplace.ErrUnavailable, "marketplace http %d", resp.StatusCode)
		}

		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return nil, errors.Wrap(err, "decode")
		}
		return nil, nil
	})
	if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
		return errors.Wrap(marketplace.ErrUnavailable, err.Error())
	}
	if err != nil {
		return err
	}
	if resErr, ok := res.(error); ok {
		return resErr
	}
	return nil
}

func toAgent(a *agentResp) *models.DeliveryAgent {
	if a == nil {
		return nil
	}
	return &models.DeliveryAgent{
		ID:            a.ID,
		Name:          a.Name,
		Phone:         a.Phone,
		Vehicle:       a.Vehicle,
		VehicleNumber: a.VehicleNumber,
		Lat:           a.Lat,
		Long:          a.Long,
		Available:     a.Available,
	}
}
