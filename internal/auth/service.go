package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	pkgAuth "github.com/medimart/storefront/pkg/auth"
	"github.com/medimart/storefront/pkg/auth/session"
	"github.com/medimart/storefront/pkg/config"
	"github.com/medimart/storefront/pkg/db"
	"github.com/medimart/storefront/pkg/db/models"
	pkgerrors "github.com/medimart/storefront/pkg/errors"
	"github.com/medimart/storefront/pkg/logger"
	"github.com/medimart/storefront/pkg/security"
	"github.com/medimart/storefront/pkg/types"
)

const (
	invalidCredentialsMessage = "invalid credentials"
	emailUniqueConstraint     = "idx_identities_email"
)

// Service is the identity provider behind /identity/v1.
type Service interface {
	SignUp(ctx context.Context, req types.SignUpRequest) (*types.TokenResponse, error)
	Login(ctx context.Context, req types.LoginRequest) (*types.TokenResponse, error)
	Refresh(ctx context.Context, bearer, refreshToken string) (*types.TokenResponse, error)
	Logout(ctx context.Context, sessionID string) error
	Me(ctx context.Context, identityID uuid.UUID) (*types.Principal, error)
}

type identityRepository interface {
	Create(ctx context.Context, dto CreateIdentityDTO) (*models.Identity, error)
	FindByEmail(ctx context.Context, email string) (*models.Identity, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.Identity, error)
	UpdateLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error
	UpdatePasswordHash(ctx context.Context, id uuid.UUID, hash string) error
}

type sessionManager interface {
	Generate(ctx context.Context, sessionID string, identityID uuid.UUID) (string, error)
	Rotate(ctx context.Context, oldSessionID, provided string) (session.Rotation, error)
	Revoke(ctx context.Context, sessionID string) error
}

// ServiceParams bundles the dependencies required to build the identity service.
type ServiceParams struct {
	Repo           identityRepository
	SessionManager sessionManager
	JWTConfig      config.JWTConfig
	PasswordConfig config.PasswordConfig
	Logger         *logger.Logger
	Now            func() time.Time
}

type service struct {
	repo        identityRepository
	sessions    sessionManager
	jwtCfg      config.JWTConfig
	passwordCfg config.PasswordConfig
	logg        *logger.Logger
	now         func() time.Time
}

func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("identity repository is required")
	}
	if params.SessionManager == nil {
		return nil, fmt.Errorf("session manager is required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	return &service{
		repo:        params.Repo,
		sessions:    params.SessionManager,
		jwtCfg:      params.JWTConfig,
		passwordCfg: params.PasswordConfig,
		logg:        logg,
		now:         now,
	}, nil
}

func (s *service) SignUp(ctx context.Context, req types.SignUpRequest) (*types.TokenResponse, error) {
	email := normalizeEmail(req.Email)
	if email == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "email is required")
	}
	if err := security.ValidatePassword(req.Password, s.passwordCfg); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "password too short").
			WithDetails(map[string]any{"password": err.Error()})
	}
	displayName := strings.TrimSpace(req.DisplayName)
	if displayName == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "display name is required")
	}

	hash, err := security.HashPassword(req.Password, s.passwordCfg)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "hash password")
	}

	dto := CreateIdentityDTO{Email: email, PasswordHash: hash, DisplayName: displayName}
	if photo := strings.TrimSpace(req.PhotoURL); photo != "" {
		dto.PhotoURL = &photo
	}
	identity, err := s.repo.Create(ctx, dto)
	if err != nil {
		if db.IsUniqueViolation(err, emailUniqueConstraint) || db.IsUniqueViolation(err, "email") {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "email already registered")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create identity")
	}

	s.logg.Info(s.logg.WithIdentityID(ctx, identity.ID.String()), "identity.signup")
	return s.issue(ctx, identity, session.NewSessionID(), "")
}

func (s *service) Login(ctx context.Context, req types.LoginRequest) (*types.TokenResponse, error) {
	identity, err := s.authenticate(ctx, req.Email, req.Password)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	if err := s.repo.UpdateLastLogin(ctx, identity.ID, now); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "record login")
	}
	if security.NeedsRehash(identity.PasswordHash, s.passwordCfg) {
		if hash, err := security.HashPassword(req.Password, s.passwordCfg); err == nil {
			if err := s.repo.UpdatePasswordHash(ctx, identity.ID, hash); err != nil {
				s.logg.Error(ctx, "identity.rehash_failed", err)
			}
		}
	}

	return s.issue(ctx, identity, session.NewSessionID(), "")
}

// Refresh accepts an expired identity token; the refresh token is what
// authorizes the call.
func (s *service) Refresh(ctx context.Context, bearer, refreshToken string) (*types.TokenResponse, error) {
	claims, err := pkgAuth.ParseIdentityTokenAllowExpired(s.jwtCfg, bearer)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid token")
	}
	rotation, err := s.sessions.Rotate(ctx, claims.ID, refreshToken)
	if err != nil {
		if errors.Is(err, session.ErrInvalidRefreshToken) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "refresh token expired or revoked")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "rotate session")
	}
	if subject, err := claims.IdentityID(); err != nil || subject != rotation.IdentityID {
		_ = s.sessions.Revoke(ctx, rotation.SessionID)
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "token does not match session")
	}

	identity, err := s.repo.FindByID(ctx, rotation.IdentityID)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "identity no longer exists")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load identity")
	}
	return s.issue(ctx, identity, rotation.SessionID, rotation.RefreshToken)
}

func (s *service) Logout(ctx context.Context, sessionID string) error {
	if strings.TrimSpace(sessionID) == "" {
		return nil
	}
	if err := s.sessions.Revoke(ctx, sessionID); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "revoke session")
	}
	return nil
}

func (s *service) Me(ctx context.Context, identityID uuid.UUID) (*types.Principal, error) {
	identity, err := s.repo.FindByID(ctx, identityID)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "identity not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load identity")
	}
	p := PrincipalFromModel(identity)
	return &p, nil
}

func (s *service) authenticate(ctx context.Context, email, password string) (*models.Identity, error) {
	identity, err := s.repo.FindByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if db.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, invalidCredentialsMessage)
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "lookup identity")
	}
	ok, err := security.VerifyPassword(password, identity.PasswordHash)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "verify password")
	}
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, invalidCredentialsMessage)
	}
	return identity, nil
}

// issue mints an identity token for sessionID. An empty refreshToken
// creates a fresh refresh session.
func (s *service) issue(ctx context.Context, identity *models.Identity, sessionID, refreshToken string) (*types.TokenResponse, error) {
	principal := PrincipalFromModel(identity)
	token, expiresAt, err := pkgAuth.MintIdentityToken(s.jwtCfg, s.now(), pkgAuth.IdentityTokenPayload{
		IdentityID: identity.ID,
		Email:      principal.Email,
		Name:       principal.DisplayName,
		Picture:    principal.PhotoURL,
		SessionID:  sessionID,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "mint jwt")
	}
	if refreshToken == "" {
		refreshToken, err = s.sessions.Generate(ctx, sessionID, identity.ID)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create session")
		}
	}
	return &types.TokenResponse{
		IDToken:      token,
		RefreshToken: refreshToken,
		ExpiresAt:    expiresAt,
		Principal:    principal,
	}, nil
}

func normalizeEmail(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}
