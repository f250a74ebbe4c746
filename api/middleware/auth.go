package middleware

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/orderledger/api/responses"
	pkgAuth "github.com/angelmondragon/orderledger/pkg/auth"
	"github.com/angelmondragon/orderledger/pkg/config"
	pkgerrors "github.com/angelmondragon/orderledger/pkg/errors"
	"github.com/angelmondragon/orderledger/pkg/logger"
)

// Auth validates a bearer token and seeds the request context with the
// caller's user id and role.
func Auth(cfg config.JWTConfig, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
				return
			}

			claims, err := pkgAuth.ParseAccessToken(cfg, token)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid token"))
				return
			}

			ctx := WithActor(r.Context(), claims.UserID, claims.Role)
			if logg != nil {
				if claims.UserID != uuid.Nil {
					ctx = logg.WithUserID(ctx, claims.UserID.String())
				}
				ctx = logg.WithActorRole(ctx, string(claims.Role))
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) string {
	token := strings.TrimSpace(r.Header.Get("Authorization"))
	if strings.HasPrefix(strings.ToLower(token), "bearer ") {
		token = strings.TrimSpace(token[7:])
	}
	return token
}
