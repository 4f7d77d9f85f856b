package domain

import (
	"strings"

	"github.com/shopspring/decimal"
)

const DefaultCurrency = "usd"

type PaymentLineItem struct {
	Quantity  int             `json:"quantity"`
	ProductID int64           `json:"productId"`
	Title     string          `json:"title"`
	Price     decimal.Decimal `json:"price"`
	Image     string          `json:"image"`
}

// PaymentRequest is what the payment-confirmation collaborator receives.
// Amount is in integer minor currency units.
type PaymentRequest struct {
	Amount    int64             `json:"amount"`
	Currency  string            `json:"currency"`
	LineItems []PaymentLineItem `json:"cart"`
	UserID    string            `json:"userId,omitempty"`

	// IdempotencyKey travels out of band (request header). Every attempt of
	// one checkout carries the same key.
	IdempotencyKey string `json:"-"`
}

type PaymentSuccess struct {
	ClientSecretID string `json:"clientSecretId"`
	User           string `json:"user"`
}

// PaymentResult carries exactly one of Success or Error.
type PaymentResult struct {
	Success *PaymentSuccess `json:"success,omitempty"`
	Error   string          `json:"error,omitempty"`
}

func (r PaymentResult) OK() bool {
	return r.Success != nil && r.Error == ""
}

// PaymentIntentID strips the secret part of a client secret
// ("pi_123_secret_abc" -> "pi_123"). Only the intent id is stored or published.
func PaymentIntentID(clientSecret string) string {
	if i := strings.Index(clientSecret, "_secret"); i > 0 {
		return clientSecret[:i]
	}
	return clientSecret
}

// NewPaymentRequest derives the payment request from the current snapshot.
// The amount is recomputed from the line items, never taken from a cache.
func NewPaymentRequest(state CartState, currency, userID string) PaymentRequest {
	if currency == "" {
		currency = DefaultCurrency
	}

	lineItems := make([]PaymentLineItem, 0, len(state.Cart))
	for _, item := range state.Cart {
		lineItems = append(lineItems, PaymentLineItem{
			Quantity:  item.Variant.Quantity,
			ProductID: item.ID,
			Title:     item.Name,
			Price:     item.Price,
			Image:     item.Image,
		})
	}

	return PaymentRequest{
		Amount:    ToMinorUnits(ComputeTotal(state.Cart)),
		Currency:  currency,
		LineItems: lineItems,
		UserID:    userID,
	}
}
