package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/medimart/storefront/pkg/enums"
)

// Payment records a captured provider payment intent.
type Payment struct {
	ID          uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	UserID      uuid.UUID           `gorm:"column:user_id;type:uuid;not null;index"`
	IntentID    string              `gorm:"column:intent_id;not null;uniqueIndex"`
	AmountCents int64               `gorm:"column:amount_cents;not null"`
	Currency    enums.Currency      `gorm:"column:currency;not null;default:'usd'"`
	Method      enums.PaymentMethod `gorm:"column:method;not null;default:'card'"`
	Status      enums.PaymentStatus `gorm:"column:status;not null;default:'pending'"`
	Items       []PaymentItem       `gorm:"foreignKey:PaymentID;references:ID"`
	CreatedAt   time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

// PaymentItem is an immutable copy of a purchased cart line.
type PaymentItem struct {
	ID             uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	PaymentID      uuid.UUID `gorm:"column:payment_id;type:uuid;not null;index"`
	MedicineID     uuid.UUID `gorm:"column:medicine_id;type:uuid;not null"`
	Name           string    `gorm:"column:name;not null"`
	Brand          string    `gorm:"column:brand;not null"`
	Quantity       int       `gorm:"column:quantity;not null"`
	UnitPriceCents int64     `gorm:"column:unit_price_cents;not null"`
}
