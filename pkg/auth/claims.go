package auth

import (
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/orderledger/pkg/enums"
)

// AccessTokenPayload is what the identity service asserts about a caller.
type AccessTokenPayload struct {
	UserID uuid.UUID
	Role   enums.ActorRole
	JTI    string
}

// AccessTokenClaims is the typed JWT body.
type AccessTokenClaims struct {
	UserID uuid.UUID       `json:"user_id"`
	Role   enums.ActorRole `json:"role"`
	jwt.RegisteredClaims
}
