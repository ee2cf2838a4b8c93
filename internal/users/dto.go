package users

import (
	"strings"

	"github.com/google/uuid"

	"github.com/medimart/storefront/pkg/db/models"
	"github.com/medimart/storefront/pkg/enums"
	"github.com/medimart/storefront/pkg/types"
)

// CreateUserDTO holds the data required by the repo to persist a new user.
type CreateUserDTO struct {
	IdentityID uuid.UUID
	Username   string
	Email      string
	PhotoURL   *string
	Role       enums.Role
}

// FromModel maps the persisted user to its API shape.
func FromModel(u *models.User) *types.User {
	if u == nil {
		return nil
	}
	out := &types.User{
		ID:         u.ID.String(),
		IdentityID: u.IdentityID.String(),
		Username:   u.Username,
		Email:      u.Email,
		Role:       string(u.Role),
		CreatedAt:  u.CreatedAt,
	}
	if u.PhotoURL != nil {
		out.PhotoURL = *u.PhotoURL
	}
	return out
}

func (c CreateUserDTO) ToModel() *models.User {
	role := c.Role
	if role == "" {
		role = enums.RoleUser
	}
	return &models.User{
		ID:         uuid.New(),
		IdentityID: c.IdentityID,
		Username:   strings.TrimSpace(c.Username),
		Email:      strings.ToLower(strings.TrimSpace(c.Email)),
		PhotoURL:   c.PhotoURL,
		Role:       role,
	}
}
