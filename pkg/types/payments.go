package types

import (
	"time"

	"github.com/shopspring/decimal"
)

type CreateIntentRequest struct {
	AmountMinorUnits int64  `json:"amountMinorUnits" validate:"gt=0"`
	Currency         string `json:"currency" validate:"required,len=3"`
}

type PaymentIntent struct {
	IntentID         string `json:"intentId"`
	ClientSecret     string `json:"clientSecret"`
	AmountMinorUnits int64  `json:"amountMinorUnits"`
	Currency         string `json:"currency"`
}

type PaymentItemInput struct {
	ProductID string          `json:"productId" validate:"required,uuid"`
	Name      string          `json:"name" validate:"required,max=200"`
	Brand     string          `json:"brand" validate:"max=200"`
	Quantity  int             `json:"quantity" validate:"gte=1"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
}

type RecordPaymentRequest struct {
	IntentID         string             `json:"intentId" validate:"required"`
	AmountMinorUnits int64              `json:"amountMinorUnits" validate:"gt=0"`
	Currency         string             `json:"currency" validate:"required,len=3"`
	Method           string             `json:"method" validate:"required,oneof=card"`
	Status           string             `json:"status" validate:"required,oneof=paid"`
	Items            []PaymentItemInput `json:"items" validate:"required,min=1,dive"`
}

type PaymentItem struct {
	ProductID string          `json:"productId"`
	Name      string          `json:"name"`
	Brand     string          `json:"brand"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
	LineTotal decimal.Decimal `json:"lineTotal"`
}

type Payment struct {
	ID               string          `json:"id"`
	UserID           string          `json:"userId"`
	IntentID         string          `json:"intentId"`
	Amount           decimal.Decimal `json:"amount"`
	AmountMinorUnits int64           `json:"amountMinorUnits"`
	Currency         string          `json:"currency"`
	Method           string          `json:"method"`
	Status           string          `json:"status"`
	Items            []PaymentItem   `json:"items"`
	CreatedAt        time.Time       `json:"createdAt"`
}
