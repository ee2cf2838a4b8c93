package types

import (
	"time"

	"github.com/shopspring/decimal"
)

type CreateInvoiceRequest struct {
	PaymentID string `json:"paymentId" validate:"required,uuid"`
}

type InvoiceCustomer struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

type Invoice struct {
	ID            string          `json:"id"`
	InvoiceNumber string          `json:"invoiceNumber"`
	PaymentID     string          `json:"paymentId"`
	IntentID      string          `json:"intentId"`
	Status        string          `json:"status"`
	Currency      string          `json:"currency"`
	Total         decimal.Decimal `json:"total"`
	IssuedAt      time.Time       `json:"issuedAt"`
	Customer      InvoiceCustomer `json:"customer"`
	Items         []PaymentItem   `json:"items"`
}
