package watcher

import (
	"strings"

	"github.com/freshlane/ordertrack/internal/models"
)

// SupportPhone — телефон поддержки, доступный с экрана отслеживания
// независимо от того, назначен курьер или нет.
const SupportPhone = "+1-800-555-0199"

// AgentCard — карточка курьера для экрана отслеживания.
type AgentCard struct {
	Name          string `json:"name"`
	Phone         string `json:"phone"`
	TelURL        string `json:"telUrl"`
	Vehicle       string `json:"vehicle,omitempty"`
	VehicleNumber string `json:"vehicleNumber,omitempty"`
}

// Dispatch описывает блок "кто везёт заказ". Показывается только на
// OUT_FOR_DELIVERY; до назначения курьера — плейсхолдер.
type Dispatch struct {
	Show       bool       `json:"show"`
	Preparing  bool       `json:"preparing"`
	Agent      *AgentCard `json:"agent,omitempty"`
	SupportTel string     `json:"supportTel"`
}

func BuildDispatch(snap *models.TrackingSnapshot) Dispatch {
	d := Dispatch{SupportTel: TelURL(SupportPhone)}
	if snap == nil || snap.Status != models.OrderStatusOutForDelivery {
		return d
	}
	d.Show = true
	if snap.Agent == nil || snap.Agent.Name == "" {
		// Статус уже OUT_FOR_DELIVERY, а курьер ещё не пришёл в данных.
		d.Preparing = true
		return d
	}
	d.Agent = &AgentCard{
		Name:          snap.Agent.Name,
		Phone:         snap.Agent.Phone,
		TelURL:        TelURL(snap.Agent.Phone),
		Vehicle:       snap.Agent.Vehicle,
		VehicleNumber: snap.Agent.VehicleNumber,
	}
	return d
}

// TelURL собирает tel:-ссылку, выкидывая всё, кроме цифр и ведущего плюса.
func TelURL(phone string) string {
	var b strings.Builder
	b.WriteString("tel:")
	for i, r := range phone {
		if r >= '0' && r <= '9' || r == '+' && i == 0 {
			b.WriteRune(r)
		}
	}
	return b.String()
}
