package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/medimart/storefront/pkg/enums"
)

// User is the backend user record keyed by the identity provider's id.
type User struct {
	ID         uuid.UUID  `gorm:"column:id;type:uuid;primaryKey"`
	IdentityID uuid.UUID  `gorm:"column:identity_id;type:uuid;not null;uniqueIndex"`
	Username   string     `gorm:"column:username;not null"`
	Email      string     `gorm:"column:email;type:text;not null"`
	PhotoURL   *string    `gorm:"column:photo_url"`
	Role       enums.Role `gorm:"column:role;not null;default:'user'"`
	CreatedAt  time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}
