package models

// Статусы заказа в порядке движения к доставке.
const (
	OrderStatusPlaced         = "PLACED"
	OrderStatusConfirmed      = "CONFIRMED"
	OrderStatusPacked         = "PACKED"
	OrderStatusOutForDelivery = "OUT_FOR_DELIVERY"
	OrderStatusDelivered      = "DELIVERED"
	OrderStatusCancelled      = "CANCELLED"
)

// ForwardChain — happy-path в порядке движения. CANCELLED в цепочку не входит.
var ForwardChain = []string{
	OrderStatusPlaced,
	OrderStatusConfirmed,
	OrderStatusPacked,
	OrderStatusOutForDelivery,
	OrderStatusDelivered,
}

// statusRank задаёт порядок на happy-path. CANCELLED вне цепочки (rank -1).
var statusRank = map[string]int{
	OrderStatusPlaced:         0,
	OrderStatusConfirmed:      1,
	OrderStatusPacked:         2,
	OrderStatusOutForDelivery: 3,
	OrderStatusDelivered:      4,
}

// StatusRank returns the position of a status on the delivery chain,
// or -1 for CANCELLED and unknown values.
func StatusRank(status string) int {
	if r, ok := statusRank[status]; ok {
		return r
	}
	return -1
}

func KnownStatus(status string) bool {
	if status == OrderStatusCancelled {
		return true
	}
	_, ok := statusRank[status]
	return ok
}

// TerminalStatus: из DELIVERED и CANCELLED переходов больше нет.
func TerminalStatus(status string) bool {
	return status == OrderStatusDelivered || status == OrderStatusCancelled
}

// ValidTransition reports whether a backend-observed change from -> to is
// legal: strictly forward along the chain, or into CANCELLED from
// PLACED/CONFIRMED/PACKED. Equal statuses are a no-op, not a violation.
func ValidTransition(from, to string) bool {
	if from == to {
		return true
	}
	if TerminalStatus(from) {
		return false
	}
	if to == OrderStatusCancelled {
		switch from {
		case OrderStatusPlaced, OrderStatusConfirmed, OrderStatusPacked:
			return true
		}
		return false
	}
	fr, okF := statusRank[from]
	tr, okT := statusRank[to]
	if !okF || !okT {
		return false
	}
	return tr > fr
}

// FurtherAlong выбирает более "продвинутый" из двух статусов: им пользуется
// watcher, чтобы никогда не откатывать прогресс при аномалии данных.
func FurtherAlong(a, b string) string {
	if a == OrderStatusCancelled || b == OrderStatusCancelled {
		return OrderStatusCancelled
	}
	if StatusRank(b) > StatusRank(a) {
		return b
	}
	return a
}
