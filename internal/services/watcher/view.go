package watcher

import (
	"fmt"
	"time"

	"github.com/freshlane/ordertrack/internal/models"
)

// Step — одна ступень прогресса на экране отслеживания.
type Step struct {
	Status  string `json:"status"`
	Label   string `json:"label"`
	Reached bool   `json:"reached"`
	Current bool   `json:"current"`
}

// View — всё, что нужно экрану отслеживания для отрисовки одного кадра.
type View struct {
	SessionID string
	OrderID   string
	State     State
	Status    string
	Cancelled bool
	Steps     []Step
	ETALabel  string
	Stale     bool
	Banner    bool
	Agent     *models.DeliveryAgent
	Updated   time.Time
	Dispatch  Dispatch
}

var stepLabels = map[string]string{
	models.OrderStatusPlaced:         "Order placed",
	models.OrderStatusConfirmed:      "Confirmed",
	models.OrderStatusPacked:         "Packed",
	models.OrderStatusOutForDelivery: "Out for delivery",
	models.OrderStatusDelivered:      "Delivered",
}

// ProgressSteps строит пять ступеней маршрута. Отменённый заказ ступеней
// не подсвечивает: вместо них экран показывает плашку отмены.
func ProgressSteps(status string) []Step {
	rank := models.StatusRank(status)
	steps := make([]Step, 0, len(models.ForwardChain))
	for _, st := range models.ForwardChain {
		step := Step{Status: st, Label: stepLabels[st]}
		if rank >= 0 {
			step.Reached = models.StatusRank(st) <= rank
			step.Current = st == status
		}
		steps = append(steps, step)
	}
	return steps
}

// ETALabel превращает ожидаемое время доставки в текст для экрана.
// Обратный отсчёт никогда не уходит в минус: просроченный ETA у живого
// заказа — это "Arriving now", а не отрицательные минуты.
func ETALabel(eta *time.Time, status string, now time.Time) string {
	if models.TerminalStatus(status) || eta == nil {
		return ""
	}
	rem := eta.Sub(now)
	if rem <= 0 {
		return "Arriving now"
	}
	rem = rem.Round(time.Minute)
	if rem < time.Minute {
		return "Arriving now"
	}
	if rem >= time.Hour {
		return fmt.Sprintf("in %dh %dm", int(rem.Hours()), int(rem.Minutes())%60)
	}
	return fmt.Sprintf("in %d min", int(rem.Minutes()))
}

// View собирает кадр из текущего состояния сессии.
func (s *Session) View(now time.Time) View {
	s.mu.Lock()
	defer s.mu.Unlock()

	v := View{
		SessionID: s.id,
		OrderID:   s.orderID,
		State:     s.state,
		Banner:    s.banner,
		Stale:     s.state == StateStale,
	}
	if s.snap == nil {
		return v
	}
	v.Status = s.snap.Status
	v.Cancelled = s.snap.Status == models.OrderStatusCancelled
	v.Steps = ProgressSteps(s.snap.Status)
	v.ETALabel = ETALabel(s.snap.EstimatedDeliveryAt, s.snap.Status, now)
	v.Agent = s.snap.Agent
	v.Updated = s.snap.LastUpdated
	v.Dispatch = BuildDispatch(s.snap)
	return v
}
