package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/medimart/storefront/pkg/enums"
)

// Invoice is issued at most once per payment.
type Invoice struct {
	ID            uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	InvoiceNumber string              `gorm:"column:invoice_number;not null;uniqueIndex"`
	PaymentID     uuid.UUID           `gorm:"column:payment_id;type:uuid;not null;uniqueIndex"`
	UserID        uuid.UUID           `gorm:"column:user_id;type:uuid;not null;index"`
	TotalCents    int64               `gorm:"column:total_cents;not null"`
	Currency      enums.Currency      `gorm:"column:currency;not null;default:'usd'"`
	Status        enums.InvoiceStatus `gorm:"column:status;not null;default:'paid'"`
	IssuedAt      time.Time           `gorm:"column:issued_at;not null"`
	CreatedAt     time.Time           `gorm:"column:created_at;autoCreateTime"`

	Payment *Payment `gorm:"foreignKey:PaymentID;references:ID"`
	User    *User    `gorm:"foreignKey:UserID;references:ID"`
}
