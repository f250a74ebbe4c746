package middleware

import (
	"context"

	"github.com/google/uuid"

	"github.com/angelmondragon/orderledger/pkg/enums"
	pkgerrors "github.com/angelmondragon/orderledger/pkg/errors"
)

type contextKey string

const (
	ctxUserID contextKey = "user_id"
	ctxRole   contextKey = "actor_role"
)

func UserIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(ctxUserID).(string); ok {
		return v
	}
	return ""
}

func RoleFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(ctxRole).(string); ok {
		return v
	}
	return ""
}

// ActorFromContext returns the typed identity seeded by Auth. ok is false
// when the request was not authenticated. The system role may carry a nil
// user id.
func ActorFromContext(ctx context.Context) (uuid.UUID, enums.ActorRole, bool) {
	role, err := enums.ParseActorRole(RoleFromContext(ctx))
	if err != nil {
		return uuid.Nil, "", false
	}
	raw := UserIDFromContext(ctx)
	if raw == "" {
		return uuid.Nil, role, role == enums.ActorRoleSystem
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, "", false
	}
	return id, role, true
}

// WithActor seeds identity the way Auth does. Used by tests and internal
// callers that bypass the bearer check.
func WithActor(ctx context.Context, userID uuid.UUID, role enums.ActorRole) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if userID != uuid.Nil {
		ctx = context.WithValue(ctx, ctxUserID, userID.String())
	}
	return context.WithValue(ctx, ctxRole, string(role))
}

// RequireActor is ActorFromContext for handlers: a missing identity is an
// UNAUTHORIZED error ready for responses.WriteError.
func RequireActor(ctx context.Context) (uuid.UUID, enums.ActorRole, error) {
	id, role, ok := ActorFromContext(ctx)
	if !ok {
		return uuid.Nil, "", pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
	}
	return id, role, nil
}
