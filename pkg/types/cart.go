package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// CartItemInput is one entry of a full-replace cart write.
type CartItemInput struct {
	ProductID string `json:"productId" validate:"required,uuid"`
	Quantity  int    `json:"quantity" validate:"gte=1,lte=999"`
}

type ReplaceCartRequest struct {
	Items []CartItemInput `json:"items" validate:"max=200,dive"`
}

type CartLine struct {
	Product   Medicine        `json:"product"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
}

type Cart struct {
	Items     []CartLine      `json:"items"`
	Total     decimal.Decimal `json:"total"`
	UpdatedAt *time.Time      `json:"updatedAt,omitempty"`
}
