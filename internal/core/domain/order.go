package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const OrderStatusSucceeded OrderStatus = "succeeded"

type Order struct {
	ID              int64
	UserID          string
	Total           decimal.Decimal
	Status          OrderStatus
	ReceiptURL      string
	PaymentIntentID string
	Items           []OrderItem
	CreatedAt       time.Time
}

type OrderItem struct {
	ProductID        int64
	ProductVariantID int64
	Quantity         int
}

// NewOrder builds a succeeded order from the confirmed cart contents.
func NewOrder(userID, paymentIntentID string, items []LineItem) Order {
	orderItems := make([]OrderItem, 0, len(items))
	for _, item := range items {
		orderItems = append(orderItems, OrderItem{
			ProductID:        item.ID,
			ProductVariantID: item.Variant.VariantID,
			Quantity:         item.Variant.Quantity,
		})
	}

	return Order{
		UserID:          userID,
		Total:           ComputeTotal(items),
		Status:          OrderStatusSucceeded,
		PaymentIntentID: paymentIntentID,
		Items:           orderItems,
		CreatedAt:       time.Now(),
	}
}

// OrderConfirmed is published once an order has been persisted.
type OrderConfirmed struct {
	EventID         string          `json:"event_id"`
	OrderID         int64           `json:"order_id"`
	UserID          string          `json:"user_id"`
	Total           decimal.Decimal `json:"total"`
	PaymentIntentID string          `json:"payment_intent_id"`
	ItemCount       int             `json:"item_count"`
	ConfirmedAt     time.Time       `json:"confirmed_at"`
}
