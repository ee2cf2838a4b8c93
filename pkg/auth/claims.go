package auth

import (
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// IdentityTokenPayload captures the data available when minting an identity token.
type IdentityTokenPayload struct {
	IdentityID uuid.UUID
	Email      string
	Name       string
	Picture    string
	// SessionID becomes the jti and keys the refresh session in Redis.
	SessionID string
}

// IdentityTokenClaims is the typed JWT handed to storefront clients. The
// subject is the identity id.
type IdentityTokenClaims struct {
	Email   string `json:"email,omitempty"`
	Name    string `json:"name,omitempty"`
	Picture string `json:"picture,omitempty"`
	jwt.RegisteredClaims
}

// IdentityID parses the subject claim.
func (c *IdentityTokenClaims) IdentityID() (uuid.UUID, error) {
	return uuid.Parse(c.Subject)
}
