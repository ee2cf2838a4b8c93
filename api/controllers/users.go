package controllers

import (
	"net/http"

	"github.com/medimart/storefront/api/responses"
	"github.com/medimart/storefront/api/validators"
	"github.com/medimart/storefront/internal/users"
	"github.com/medimart/storefront/pkg/logger"
	"github.com/medimart/storefront/pkg/types"
)

func usersActor(r *http.Request) (users.Actor, error) {
	identityID, err := currentIdentityID(r)
	if err != nil {
		return users.Actor{}, err
	}
	return users.Actor{IdentityID: identityID, Role: currentRole(r)}, nil
}

// UserByIdentity answers 404 until the identity has created its user.
func UserByIdentity(svc users.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := usersActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		identityID, err := validators.ParseUUIDParam(r, "identityId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		user, err := svc.GetByIdentity(r.Context(), actor, identityID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, user)
	}
}

func UserCreate(svc users.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := usersActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var req types.CreateUserRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		req.Username = validators.SanitizeString(req.Username, 120)
		user, err := svc.Create(r.Context(), actor, req)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteCreated(w, user)
	}
}
