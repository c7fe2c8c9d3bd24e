package orders_api

import (
	"time"

	"github.com/freshlane/ordertrack/internal/models"
	"github.com/shopspring/decimal"
)

type orderDTO struct {
	ID         string `json:"id"`
	VendorCode string `json:"vendorCode"`

	Items []orderItemDTO `json:"items"`

	Subtotal    decimal.Decimal `json:"subtotal"`
	Tax         decimal.Decimal `json:"tax"`
	DeliveryFee decimal.Decimal `json:"deliveryFee"`
	Discount    decimal.Decimal `json:"discount"`
	Total       decimal.Decimal `json:"total"`

	Address addressDTO `json:"deliveryAddress"`

	PaymentMethod string `json:"paymentMethod,omitempty"`
	PaymentStatus string `json:"paymentStatus,omitempty"`

	Status              string                `json:"status"`
	EstimatedDeliveryAt *time.Time            `json:"estimatedDeliveryTime,omitempty"`
	Agent               *models.DeliveryAgent `json:"deliveryAgent,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type orderItemDTO struct {
	ProductID      string          `json:"productId"`
	Name           string          `json:"name"`
	Quantity       int             `json:"quantity"`
	UnitPrice      decimal.Decimal `json:"unitPrice"`
	Customizations []string        `json:"customizations,omitempty"`
}

type addressDTO struct {
	Street       string `json:"street"`
	City         string `json:"city"`
	State        string `json:"state"`
	Zip          string `json:"zip"`
	Instructions string `json:"instructions,omitempty"`
}

func toOrderDTO(o *models.Order) orderDTO {
	items := make([]orderItemDTO, 0, len(o.Items))
	for _, it := range o.Items {
		items = append(items, orderItemDTO{
			ProductID:      it.ProductID,
			Name:           it.Name,
			Quantity:       it.Quantity,
			UnitPrice:      it.UnitPrice,
			Customizations: it.Customizations,
		})
	}
	return orderDTO{
		ID:          o.ID,
		VendorCode:  o.VendorCode,
		Items:       items,
		Subtotal:    o.Subtotal,
		Tax:         o.Tax,
		DeliveryFee: o.DeliveryFee,
		Discount:    o.Discount,
		Total:       o.Total,
		Address: addressDTO{
			Street:       o.Address.Street,
			City:         o.Address.City,
			State:        o.Address.State,
			Zip:          o.Address.Zip,
			Instructions: o.Address.Instructions,
		},
		PaymentMethod:       o.PaymentMethod,
		PaymentStatus:       o.PaymentStatus,
		Status:              o.Status,
		EstimatedDeliveryAt: o.EstimatedDeliveryAt,
		Agent:               o.Agent,
		CreatedAt:           o.CreatedAt,
		UpdatedAt:           o.UpdatedAt,
	}
}
