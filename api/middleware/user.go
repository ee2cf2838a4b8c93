package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/medimart/storefront/api/responses"
	"github.com/medimart/storefront/pkg/db/models"
	pkgerrors "github.com/medimart/storefront/pkg/errors"
	"github.com/medimart/storefront/pkg/logger"
)

type userResolver interface {
	Resolve(ctx context.Context, identityID uuid.UUID) (*models.User, error)
}

// ResolveUser attaches the backend user for the authenticated identity. An
// identity without a user passes through so it can create one.
func ResolveUser(resolver userResolver, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identityID, err := uuid.Parse(IdentityIDFromContext(r.Context()))
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing identity"))
				return
			}

			user, err := resolver.Resolve(r.Context(), identityID)
			if err != nil {
				if pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
					next.ServeHTTP(w, r)
					return
				}
				responses.WriteError(r.Context(), logg, w, err)
				return
			}

			ctx := WithUser(r.Context(), user.ID.String(), string(user.Role))
			if logg != nil {
				ctx = logg.WithUserID(ctx, user.ID.String())
				ctx = logg.WithActorRole(ctx, string(user.Role))
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
