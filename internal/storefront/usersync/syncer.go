// Package usersync ensures every signed-in identity has a backend user
// record.
package usersync

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/medimart/storefront/internal/storefront/transport"
	"github.com/medimart/storefront/pkg/auth"
	"github.com/medimart/storefront/pkg/enums"
	"github.com/medimart/storefront/pkg/logger"
	"github.com/medimart/storefront/pkg/types"
	"golang.org/x/sync/singleflight"
)

const (
	fallbackEmail    = "unknown@example.com"
	fallbackUsername = "Unknown"
)

// ErrUserMissingAfterCreate means the backend accepted (or rejected as
// duplicate) a create but still cannot find the record.
var ErrUserMissingAfterCreate = errors.New("usersync: backend user missing after create")

// Backend is the slice of the REST API the syncer needs.
type Backend interface {
	GetUserByIdentity(ctx context.Context, token, identityID string) (*types.User, error)
	CreateUser(ctx context.Context, token string, req types.CreateUserRequest) (*types.User, error)
}

type Syncer struct {
	backend Backend
	logg    *logger.Logger
	group   singleflight.Group
}

func NewSyncer(backend Backend, logg *logger.Logger) *Syncer {
	if logg == nil {
		logg = logger.Nop()
	}
	return &Syncer{backend: backend, logg: logg}
}

// EnsureBackendUser returns the backend record for identityID, creating it
// with defaultRole when absent. Concurrent calls for the same identity share
// one round trip.
func (s *Syncer) EnsureBackendUser(ctx context.Context, identityID, token string, defaultRole enums.Role) (*types.User, error) {
	identityID = strings.TrimSpace(identityID)
	if identityID == "" {
		return nil, errors.New("usersync: identity id is required")
	}
	if !defaultRole.SelfAssignable() {
		defaultRole = enums.RoleUser
	}

	v, err, _ := s.group.Do(identityID, func() (any, error) {
		return s.ensure(ctx, identityID, token, defaultRole)
	})
	if err != nil {
		return nil, err
	}
	user := *v.(*types.User)
	return &user, nil
}

func (s *Syncer) ensure(ctx context.Context, identityID, token string, role enums.Role) (*types.User, error) {
	ctx = s.logg.WithIdentityID(ctx, identityID)

	user, err := s.backend.GetUserByIdentity(ctx, token, identityID)
	if err == nil {
		return user, nil
	}
	if !transport.IsNotFound(err) {
		return nil, fmt.Errorf("usersync: lookup user: %w", err)
	}

	profile := profileFromToken(token)
	req := types.CreateUserRequest{
		IdentityID: identityID,
		Username:   profile.username,
		Email:      profile.email,
		PhotoURL:   profile.photoURL,
		Role:       role.String(),
	}
	if _, err := s.backend.CreateUser(ctx, token, req); err != nil {
		if !transport.IsConflict(err) {
			return nil, fmt.Errorf("usersync: create user: %w", err)
		}
		s.logg.Debug(ctx, "backend user already exists; refetching")
	} else {
		s.logg.Info(s.logg.WithActorRole(ctx, role.String()), "backend user created")
	}

	user, err = s.backend.GetUserByIdentity(ctx, token, identityID)
	if err != nil {
		if transport.IsNotFound(err) {
			return nil, ErrUserMissingAfterCreate
		}
		return nil, fmt.Errorf("usersync: refetch user: %w", err)
	}
	return user, nil
}

type profile struct {
	email    string
	username string
	photoURL string
}

// profileFromToken reads display claims without verifying the signature.
// The backend verifies the token itself; these values only seed the record.
func profileFromToken(token string) profile {
	out := profile{email: fallbackEmail}
	claims, err := auth.ParseUnverified(token)
	if err != nil {
		out.username = fallbackUsername
		return out
	}

	if email := strings.TrimSpace(claims.Email); email != "" {
		out.email = email
	}
	switch {
	case strings.TrimSpace(claims.Name) != "":
		out.username = strings.TrimSpace(claims.Name)
	case strings.TrimSpace(claims.Email) != "":
		out.username = strings.SplitN(strings.TrimSpace(claims.Email), "@", 2)[0]
	default:
		out.username = fallbackUsername
	}
	if out.username == "" {
		out.username = fallbackUsername
	}
	if u, err := url.Parse(strings.TrimSpace(claims.Picture)); err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != "" {
		out.photoURL = u.String()
	}
	return out
}
