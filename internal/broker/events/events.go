package events

import (
	"encoding/json"
	"time"

	"github.com/freshlane/ordertrack/internal/models"
	"github.com/pkg/errors"
)

// Закрытый словарь имён событий. Форма payload фиксирована для каждого имени
// и согласуется с продюсерами заранее, не в рантайме.
const (
	EventConnect                  = "connect"
	EventDisconnect               = "disconnect"
	EventNewOrder                 = "new_order"
	EventOrderStatusUpdated       = "order_status_updated"
	EventOrderAssigned            = "order_assigned"
	EventTryAtHomeStatusUpdated   = "try_at_home_status_updated"
	EventNewNotification          = "new_notification"
	EventLowStockAlert            = "low_stock_alert"
	EventJoinChat                 = "join_chat"
	EventNewMessage               = "new_message"
	EventTyping                   = "typing"
	EventStopTyping               = "stop_typing"
	EventLocationUpdate           = "location_update"
	EventDeliveryAgentAvailable   = "delivery_agent_available"
	EventDeliveryAgentUnavailable = "delivery_agent_unavailable"
)

// Envelope — то, что реально летит в топик: имя события + сырой payload.
type Envelope struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type NewOrder struct {
	OrderID    string    `json:"orderId"`
	VendorCode string    `json:"vendorCode"`
	Timestamp  time.Time `json:"timestamp"`
}

type OrderStatusUpdated struct {
	OrderID   string     `json:"orderId"`
	Status    string     `json:"status"`
	Timestamp time.Time  `json:"timestamp"`
	ETA       *time.Time `json:"estimatedDeliveryTime,omitempty"`

	Description string  `json:"description,omitempty"`
	Location    *string `json:"location,omitempty"`

	// NextCheckAt — подсказка планировщика воркера, когда опросить заказ
	// в следующий раз. Консьюмер без неё подставляет свой fallback.
	NextCheckAt *time.Time `json:"nextCheckAt,omitempty"`

	// Error заполняется воркером, когда опрос маркетплейса не удался.
	Error *string `json:"error,omitempty"`
}

type OrderAssigned struct {
	OrderID   string               `json:"orderId"`
	Agent     models.DeliveryAgent `json:"agent"`
	Timestamp time.Time            `json:"timestamp"`
}

type TryAtHomeStatusUpdated struct {
	OrderID   string    `json:"orderId"`
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

type NewNotification struct {
	UserID    string    `json:"userId"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	Timestamp time.Time `json:"timestamp"`
}

type LowStockAlert struct {
	VendorCode string    `json:"vendorCode"`
	ProductID  string    `json:"productId"`
	Remaining  int       `json:"remaining"`
	Timestamp  time.Time `json:"timestamp"`
}

type JoinChat struct {
	ChatID string `json:"chatId"`
	UserID string `json:"userId"`
}

type NewMessage struct {
	ChatID    string    `json:"chatId"`
	UserID    string    `json:"userId"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

type Typing struct {
	ChatID string `json:"chatId"`
	UserID string `json:"userId"`
}

type StopTyping struct {
	ChatID string `json:"chatId"`
	UserID string `json:"userId"`
}

type LocationUpdate struct {
	AgentID   string    `json:"agentId"`
	Lat       float64   `json:"lat"`
	Long      float64   `json:"long"`
	Timestamp time.Time `json:"timestamp"`
}

type DeliveryAgentAvailable struct {
	AgentID   string    `json:"agentId"`
	Timestamp time.Time `json:"timestamp"`
}

type DeliveryAgentUnavailable struct {
	AgentID   string    `json:"agentId"`
	Timestamp time.Time `json:"timestamp"`
}

// Marshal заворачивает payload в Envelope.
func Marshal(event string, payload any) ([]byte, error) {
	var raw json.RawMessage
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, errors.Wrap(err, "marshal payload")
		}
		raw = b
	}
	b, err := json.Marshal(Envelope{Event: event, Payload: raw})
	if err != nil {
		return nil, errors.Wrap(err, "marshal envelope")
	}
	return b, nil
}

// Decode распаковывает envelope и payload по имени события.
// Для неизвестных имён возвращает (nil, false, nil): такие события
// пропускаются молча ради прямой совместимости.
func Decode(value []byte) (any, bool, error) {
	var env Envelope
	if err := json.Unmarshal(value, &env); err != nil {
		return nil, false, errors.Wrap(err, "unmarshal envelope")
	}

	var payload any
	switch env.Event {
	case EventConnect, EventDisconnect:
		// Сигнальные события без payload.
		return env.Event, true, nil
	case EventNewOrder:
		payload = &NewOrder{}
	case EventOrderStatusUpdated:
		payload = &OrderStatusUpdated{}
	case EventOrderAssigned:
		payload = &OrderAssigned{}
	case EventTryAtHomeStatusUpdated:
		payload = &TryAtHomeStatusUpdated{}
	case EventNewNotification:
		payload = &NewNotification{}
	case EventLowStockAlert:
		payload = &LowStockAlert{}
	case EventJoinChat:
		payload = &JoinChat{}
	case EventNewMessage:
		payload = &NewMessage{}
	case EventTyping:
		payload = &Typing{}
	case EventStopTyping:
		payload = &StopTyping{}
	case EventLocationUpdate:
		payload = &LocationUpdate{}
	case EventDeliveryAgentAvailable:
		payload = &DeliveryAgentAvailable{}
	case EventDeliveryAgentUnavailable:
		payload = &DeliveryAgentUnavailable{}
	default:
		return nil, false, nil
	}

	if len(env.Payload) > 0 {
		if err := json.Unmarshal(env.Payload, payload); err != nil {
			return nil, false, errors.Wrapf(err, "unmarshal %s payload", env.Event)
		}
	}
	return payload, true, nil
}
