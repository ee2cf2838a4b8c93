package controllers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/medimart/storefront/api/middleware"
	"github.com/medimart/storefront/pkg/enums"
	pkgerrors "github.com/medimart/storefront/pkg/errors"
)

// currentUserID returns the backend user resolved for the request.
func currentUserID(r *http.Request) (uuid.UUID, error) {
	raw := middleware.UserIDFromContext(r.Context())
	if raw == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeForbidden, "user profile required")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid user context")
	}
	return id, nil
}

func currentIdentityID(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(middleware.IdentityIDFromContext(r.Context()))
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid identity context")
	}
	return id, nil
}

func currentRole(r *http.Request) enums.Role {
	return enums.Role(middleware.RoleFromContext(r.Context()))
}
