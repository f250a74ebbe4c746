package middleware

import (
	"net/http"

	"github.com/angelmondragon/orderledger/api/responses"
	"github.com/angelmondragon/orderledger/pkg/enums"
	pkgerrors "github.com/angelmondragon/orderledger/pkg/errors"
	"github.com/angelmondragon/orderledger/pkg/logger"
)

// RequireRole admits callers holding any of roles.
func RequireRole(logg *logger.Logger, roles ...enums.ActorRole) func(http.Handler) http.Handler {
	allowed := make(map[enums.ActorRole]struct{}, len(roles))
	for _, role := range roles {
		allowed[role] = struct{}{}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, role, ok := ActorFromContext(r.Context())
			if !ok {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required"))
				return
			}
			if _, ok := allowed[role]; !ok {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "role required"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
