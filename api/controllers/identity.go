package controllers

import (
	"net/http"

	"github.com/medimart/storefront/api/middleware"
	"github.com/medimart/storefront/api/responses"
	"github.com/medimart/storefront/api/validators"
	"github.com/medimart/storefront/internal/auth"
	pkgAuth "github.com/medimart/storefront/pkg/auth"
	"github.com/medimart/storefront/pkg/config"
	pkgerrors "github.com/medimart/storefront/pkg/errors"
	"github.com/medimart/storefront/pkg/logger"
	"github.com/medimart/storefront/pkg/types"
)

func IdentitySignUp(svc auth.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req types.SignUpRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		resp, err := svc.SignUp(r.Context(), req)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteCreated(w, resp)
	}
}

func IdentityLogin(svc auth.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req types.LoginRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		resp, err := svc.Login(r.Context(), req)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, resp)
	}
}

// IdentityRefresh rotates the refresh token. The bearer token may be expired;
// it only names the session being rotated.
func IdentityRefresh(svc auth.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		bearer := middleware.BearerToken(r)
		if bearer == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
			return
		}
		var req types.RefreshRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		resp, err := svc.Refresh(r.Context(), bearer, req.RefreshToken)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, resp)
	}
}

// IdentityLogout revokes the session named by the bearer token. Expired tokens
// are accepted so a stale client can still sign out.
func IdentityLogout(svc auth.Service, cfg config.JWTConfig, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, err := pkgAuth.ParseIdentityTokenAllowExpired(cfg, middleware.BearerToken(r))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid token"))
			return
		}
		if err := svc.Logout(r.Context(), claims.ID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteNoContent(w)
	}
}

func IdentityMe(svc auth.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identityID, err := currentIdentityID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		principal, err := svc.Me(r.Context(), identityID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, principal)
	}
}
