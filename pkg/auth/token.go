package auth

import (
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/medimart/storefront/pkg/config"
)

var jwtSigningMethod = jwt.SigningMethodHS256

// MintIdentityToken issues a signed JWT for the provided payload using the configured TTL.
func MintIdentityToken(cfg config.JWTConfig, now time.Time, payload IdentityTokenPayload) (string, time.Time, error) {
	if cfg.Secret == "" {
		return "", time.Time{}, fmt.Errorf("jwt secret is required")
	}
	if cfg.Issuer == "" {
		return "", time.Time{}, fmt.Errorf("jwt issuer is required")
	}
	if cfg.ExpirationMinutes <= 0 {
		return "", time.Time{}, fmt.Errorf("jwt expiration minutes must be positive")
	}
	if payload.IdentityID == uuid.Nil {
		return "", time.Time{}, fmt.Errorf("identity id is required")
	}

	expiresAt := now.Add(cfg.AccessTokenTTL())

	jti := strings.TrimSpace(payload.SessionID)
	if jti == "" {
		jti = uuid.NewString()
	}

	claims := IdentityTokenClaims{
		Email:   payload.Email,
		Name:    payload.Name,
		Picture: payload.Picture,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   payload.IdentityID.String(),
			Issuer:    cfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			ID:        jti,
		},
	}

	token := jwt.NewWithClaims(jwtSigningMethod, claims)
	signed, err := token.SignedString([]byte(cfg.Secret))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("signing jwt: %w", err)
	}
	return signed, expiresAt, nil
}

// ParseIdentityToken validates the JWT string and returns typed claims.
func ParseIdentityToken(cfg config.JWTConfig, tokenString string) (*IdentityTokenClaims, error) {
	return parse(cfg, tokenString)
}

// ParseIdentityTokenAllowExpired checks the signature but skips exp/nbf so
// refresh can recover the jti of an expired token.
func ParseIdentityTokenAllowExpired(cfg config.JWTConfig, tokenString string) (*IdentityTokenClaims, error) {
	return parse(cfg, tokenString, jwt.WithoutClaimsValidation())
}

// ParseUnverified decodes claims without checking the signature. Callers must
// treat the result as untrusted display data.
func ParseUnverified(tokenString string) (*IdentityTokenClaims, error) {
	claims := &IdentityTokenClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tokenString, claims); err != nil {
		return nil, err
	}
	return claims, nil
}

func parse(cfg config.JWTConfig, tokenString string, extra ...jwt.ParserOption) (*IdentityTokenClaims, error) {
	if cfg.Secret == "" {
		return nil, fmt.Errorf("jwt secret is required")
	}

	opts := append([]jwt.ParserOption{
		jwt.WithValidMethods([]string{jwtSigningMethod.Alg()}),
		jwt.WithIssuer(cfg.Issuer),
	}, extra...)

	claims := &IdentityTokenClaims{}
	_, err := jwt.NewParser(opts...).ParseWithClaims(
		tokenString,
		claims,
		func(token *jwt.Token) (interface{}, error) {
			if token.Method != jwtSigningMethod {
				return nil, fmt.Errorf("unexpected signing method %s", token.Header["alg"])
			}
			return []byte(cfg.Secret), nil
		},
	)
	if err != nil {
		return nil, err
	}
	return claims, nil
}
