package orders_api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/freshlane/ordertrack/internal/integrations/marketplace"
	"github.com/freshlane/ordertrack/internal/models"
	"github.com/freshlane/ordertrack/internal/services/tracking"
	"github.com/freshlane/ordertrack/internal/storage/pgorders"
	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"
)

const (
	defaultTimelineLimit = 50
	maxTimelineLimit     = 500
)

type OrdersAPI struct {
	svc *tracking.Service
}

func New(svc *tracking.Service) *OrdersAPI {
	return &OrdersAPI{svc: svc}
}

func (a *OrdersAPI) Register(r chi.Router) {
	r.Route("/api/v1/orders/{orderID}", func(r chi.Router) {
		r.Get("/", a.getOrder)
		r.Get("/tracking", a.getTracking)
		r.Get("/timeline", a.listTimeline)
		r.Post("/refresh", a.refreshOrder)
	})
}

func (a *OrdersAPI) getOrder(w http.ResponseWriter, r *http.Request) {
	order, err := a.svc.GetOrderDetail(r.Context(), chi.URLParam(r, "orderID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderDTO(order))
}

func (a *OrdersAPI) getTracking(w http.ResponseWriter, r *http.Request) {
	snap, err := a.svc.GetTracking(r.Context(), chi.URLParam(r, "orderID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (a *OrdersAPI) listTimeline(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", defaultTimelineLimit)
	if limit > maxTimelineLimit {
		limit = maxTimelineLimit
	}
	offset := queryInt(r, "offset", 0)

	entries, err := a.svc.ListTimeline(r.Context(), chi.URLParam(r, "orderID"), limit, offset)
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]timelineEntryDTO, 0, len(entries))
	for _, e := range entries {
		out = append(out, timelineEntryDTO{
			Status:      e.Status,
			Description: e.Description,
			EventTime:   e.EventTime,
			Location:    e.Location,
		})
	}
	writeJSON(w, http.StatusOK, timelineDTO{OrderID: chi.URLParam(r, "orderID"), Entries: out})
}

func (a *OrdersAPI) refreshOrder(w http.ResponseWriter, r *http.Request) {
	if err := a.svc.RefreshOrder(r.Context(), chi.URLParam(r, "orderID")); err != nil {
		writeError(w, err)
		return
	}
	// Сам опрос сделает воркер: здесь только выставляем next_check_at=now.
	writeJSON(w, http.StatusAccepted, map[string]bool{"scheduled": true})
}

type timelineDTO struct {
	OrderID string             `json:"orderId"`
	Entries []timelineEntryDTO `json:"entries"`
}

type timelineEntryDTO struct {
	Status      string    `json:"status"`
	Description string    `json:"description,omitempty"`
	EventTime   time.Time `json:"eventTime"`
	Location    *string   `json:"location,omitempty"`
}

func queryInt(r *http.Request, name string, def int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return def
	}
	return v
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, models.ErrInvalidOrderID):
		code = http.StatusBadRequest
	case errors.Is(err, pgorders.ErrNotFound), errors.Is(err, marketplace.ErrOrderNotFound):
		code = http.StatusNotFound
	case errors.Is(err, marketplace.ErrUnavailable):
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]string{"error": err.Error()})
}
