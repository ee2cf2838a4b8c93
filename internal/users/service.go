package users

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/google/uuid"

	"github.com/medimart/storefront/pkg/db"
	"github.com/medimart/storefront/pkg/db/models"
	"github.com/medimart/storefront/pkg/enums"
	pkgerrors "github.com/medimart/storefront/pkg/errors"
	"github.com/medimart/storefront/pkg/types"
)

const identityUniqueConstraint = "users_identity_id_key"

// Actor is the authenticated caller: the token subject plus, when a backend
// user already exists, its role.
type Actor struct {
	IdentityID uuid.UUID
	Role       enums.Role
}

func (a Actor) canActFor(identityID uuid.UUID) bool {
	return a.IdentityID == identityID || a.Role == enums.RoleAdmin
}

type Service interface {
	GetByIdentity(ctx context.Context, actor Actor, identityID uuid.UUID) (*types.User, error)
	Create(ctx context.Context, actor Actor, req types.CreateUserRequest) (*types.User, error)
	// Resolve is used by middleware to attach the backend user to a request.
	Resolve(ctx context.Context, identityID uuid.UUID) (*models.User, error)
}

type repository interface {
	Create(ctx context.Context, dto CreateUserDTO) (*models.User, error)
	FindByIdentityID(ctx context.Context, identityID uuid.UUID) (*models.User, error)
}

type service struct {
	repo repository
}

func NewService(repo repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("users repository is required")
	}
	return &service{repo: repo}, nil
}

func (s *service) GetByIdentity(ctx context.Context, actor Actor, identityID uuid.UUID) (*types.User, error) {
	if !actor.canActFor(identityID) {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "cannot read another identity's user")
	}
	user, err := s.Resolve(ctx, identityID)
	if err != nil {
		return nil, err
	}
	return FromModel(user), nil
}

func (s *service) Resolve(ctx context.Context, identityID uuid.UUID) (*models.User, error) {
	user, err := s.repo.FindByIdentityID(ctx, identityID)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "user not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load user")
	}
	return user, nil
}

func (s *service) Create(ctx context.Context, actor Actor, req types.CreateUserRequest) (*types.User, error) {
	identityID, err := uuid.Parse(strings.TrimSpace(req.IdentityID))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid identity id")
	}
	if !actor.canActFor(identityID) {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "cannot create a user for another identity")
	}
	role, err := enums.ParseRole(req.Role)
	if err != nil || !role.SelfAssignable() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "role must be user or seller").
			WithDetails(map[string]any{"role": req.Role})
	}

	dto := CreateUserDTO{
		IdentityID: identityID,
		Username:   req.Username,
		Email:      req.Email,
		Role:       role,
	}
	if photo := strings.TrimSpace(req.PhotoURL); isHTTPURL(photo) {
		dto.PhotoURL = &photo
	}

	user, err := s.repo.Create(ctx, dto)
	if err != nil {
		if db.IsUniqueViolation(err, identityUniqueConstraint) || db.IsUniqueViolation(err, "identity_id") {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "user already exists for identity")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create user")
	}
	return FromModel(user), nil
}

func isHTTPURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return false
	}
	return u.Scheme == "http" || u.Scheme == "https"
}
