package auth

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/orderledger/pkg/config"
	"github.com/angelmondragon/orderledger/pkg/enums"
)

func testJWTConfig() config.JWTConfig {
	return config.JWTConfig{Secret: "secret", Issuer: "orderledger"}
}

func TestMintAndParseAccessToken(t *testing.T) {
	cfg := testJWTConfig()
	userID := uuid.New()

	token, err := MintAccessToken(cfg, time.Now().UTC(), time.Hour, AccessTokenPayload{
		UserID: userID,
		Role:   enums.ActorRoleVendor,
	})
	require.NoError(t, err)

	claims, err := ParseAccessToken(cfg, token)
	require.NoError(t, err)
	require.Equal(t, userID, claims.UserID)
	require.Equal(t, enums.ActorRoleVendor, claims.Role)
	require.Equal(t, cfg.Issuer, claims.Issuer)
	require.NotEmpty(t, claims.ID)
}

func TestParseAccessTokenRejectsExpired(t *testing.T) {
	cfg := testJWTConfig()
	token, err := MintAccessToken(cfg, time.Now().Add(-2*time.Hour), time.Hour, AccessTokenPayload{
		UserID: uuid.New(),
		Role:   enums.ActorRoleBuyer,
	})
	require.NoError(t, err)

	_, err = ParseAccessToken(cfg, token)
	require.Error(t, err)
}

func TestParseAccessTokenRejectsWrongSecretAndIssuer(t *testing.T) {
	cfg := testJWTConfig()
	token, err := MintAccessToken(cfg, time.Now(), time.Hour, AccessTokenPayload{
		UserID: uuid.New(),
		Role:   enums.ActorRoleBuyer,
	})
	require.NoError(t, err)

	_, err = ParseAccessToken(config.JWTConfig{Secret: "other", Issuer: cfg.Issuer}, token)
	require.Error(t, err)

	_, err = ParseAccessToken(config.JWTConfig{Secret: cfg.Secret, Issuer: "someone-else"}, token)
	require.Error(t, err)
}

func TestMintAccessTokenValidatesPayload(t *testing.T) {
	cfg := testJWTConfig()
	now := time.Now()

	_, err := MintAccessToken(cfg, now, time.Hour, AccessTokenPayload{UserID: uuid.New(), Role: "owner"})
	require.Error(t, err)

	_, err = MintAccessToken(cfg, now, time.Hour, AccessTokenPayload{Role: enums.ActorRoleBuyer})
	require.Error(t, err)

	_, err = MintAccessToken(cfg, now, 0, AccessTokenPayload{UserID: uuid.New(), Role: enums.ActorRoleBuyer})
	require.Error(t, err)

	token, err := MintAccessToken(cfg, now, time.Hour, AccessTokenPayload{Role: enums.ActorRoleSystem})
	require.NoError(t, err)
	claims, err := ParseAccessToken(cfg, token)
	require.NoError(t, err)
	require.Equal(t, uuid.Nil, claims.UserID)
}
