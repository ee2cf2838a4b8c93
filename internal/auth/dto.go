package auth

import (
	"github.com/medimart/storefront/pkg/db/models"
	"github.com/medimart/storefront/pkg/types"
)

// CreateIdentityDTO holds the data required by the repo to persist an identity.
type CreateIdentityDTO struct {
	Email        string
	PasswordHash string
	DisplayName  string
	PhotoURL     *string
}

func (c CreateIdentityDTO) toModel() *models.Identity {
	return &models.Identity{
		Email:        c.Email,
		PasswordHash: c.PasswordHash,
		DisplayName:  c.DisplayName,
		PhotoURL:     c.PhotoURL,
	}
}

// PrincipalFromModel maps an identity to the shape returned to clients.
func PrincipalFromModel(m *models.Identity) types.Principal {
	if m == nil {
		return types.Principal{}
	}
	p := types.Principal{
		ID:          m.ID.String(),
		Email:       m.Email,
		DisplayName: m.DisplayName,
	}
	if m.PhotoURL != nil {
		p.PhotoURL = *m.PhotoURL
	}
	return p
}
