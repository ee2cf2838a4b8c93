package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// Medicine is a catalog entry. Prices are stored in minor units.
type Medicine struct {
	ID          uuid.UUID      `gorm:"column:id;type:uuid;primaryKey"`
	Name        string         `gorm:"column:name;not null"`
	Brand       string         `gorm:"column:brand;not null"`
	Category    string         `gorm:"column:category;not null"`
	Tags        pq.StringArray `gorm:"column:tags;type:text[]"`
	Description *string        `gorm:"column:description"`
	ImageURL    *string        `gorm:"column:image_url"`
	PriceCents  int64          `gorm:"column:price_cents;not null"`
	IsActive    bool           `gorm:"column:is_active;not null;default:true"`
	CreatedAt   time.Time      `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time      `gorm:"column:updated_at;autoUpdateTime"`
}
