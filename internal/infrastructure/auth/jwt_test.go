package auth

import (
	"testing"
	"time"

	"github.com/erp/voucher-export/internal/domain/export"
	"github.com/erp/voucher-export/internal/infrastructure/config"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestJWTService() *JWTService {
	return NewJWTService(config.JWTConfig{
		Secret:                "test-secret-key-at-least-32-chars",
		Issuer:                "voucher-export-test",
		AccessTokenExpiration: 15 * time.Minute,
	})
}

func newTestInput() GenerateTokenInput {
	return GenerateTokenInput{
		TenantID:    uuid.New(),
		UserID:      uuid.New(),
		Username:    "accountant",
		Permissions: []string{string(export.ActionExport), "voucher_export:read"},
	}
}

func TestGenerateAccessToken(t *testing.T) {
	svc := newTestJWTService()
	input := newTestInput()

	token, err := svc.GenerateAccessToken(input)
	require.NoError(t, err)
	assert.NotEmpty(t, token.Token)
	assert.Equal(t, "Bearer", token.TokenType)
	assert.WithinDuration(t, time.Now().Add(15*time.Minute), token.ExpiresAt, 5*time.Second)

	claims, err := svc.ValidateAccessToken(token.Token)
	require.NoError(t, err)
	assert.Equal(t, input.TenantID.String(), claims.TenantID)
	assert.Equal(t, input.UserID.String(), claims.UserID)
	assert.Equal(t, input.UserID.String(), claims.Subject)
	assert.Equal(t, "accountant", claims.Username)
	assert.Equal(t, input.Permissions, claims.Permissions)
	assert.Equal(t, TokenTypeAccess, claims.TokenType)
}

func TestGenerateAccessToken_ExpiresInOverride(t *testing.T) {
	svc := newTestJWTService()
	input := newTestInput()
	input.ExpiresIn = 24 * time.Hour

	token, err := svc.GenerateAccessToken(input)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(24*time.Hour), token.ExpiresAt, 5*time.Second)
}

func TestGenerateAccessToken_MissingIdentity(t *testing.T) {
	svc := newTestJWTService()

	input := newTestInput()
	input.TenantID = uuid.Nil
	_, err := svc.GenerateAccessToken(input)
	assert.ErrorIs(t, err, ErrMissingTenantID)

	input = newTestInput()
	input.UserID = uuid.Nil
	_, err = svc.GenerateAccessToken(input)
	assert.ErrorIs(t, err, ErrMissingUserID)
}

func TestValidateAccessToken_Failures(t *testing.T) {
	svc := newTestJWTService()
	token, err := svc.GenerateAccessToken(newTestInput())
	require.NoError(t, err)

	t.Run("malformed", func(t *testing.T) {
		_, err := svc.ValidateAccessToken("not-a-token")
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("wrong secret", func(t *testing.T) {
		other := NewJWTService(config.JWTConfig{
			Secret:                "another-secret-key-at-least-32-chars",
			Issuer:                "voucher-export-test",
			AccessTokenExpiration: time.Minute,
		})
		_, err := other.ValidateAccessToken(token.Token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("wrong issuer", func(t *testing.T) {
		other := NewJWTService(config.JWTConfig{
			Secret:                "test-secret-key-at-least-32-chars",
			Issuer:                "someone-else",
			AccessTokenExpiration: time.Minute,
		})
		_, err := other.ValidateAccessToken(token.Token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("expired", func(t *testing.T) {
		later := newTestJWTService()
		later.now = func() time.Time { return time.Now().Add(time.Hour) }
		_, err := later.ValidateAccessToken(token.Token)
		assert.ErrorIs(t, err, ErrExpiredToken)
	})

	t.Run("not yet valid", func(t *testing.T) {
		earlier := newTestJWTService()
		earlier.now = func() time.Time { return time.Now().Add(-time.Hour) }
		_, err := earlier.ValidateAccessToken(token.Token)
		assert.ErrorIs(t, err, ErrTokenNotYetValid)
	})

	t.Run("wrong token type", func(t *testing.T) {
		claims := &Claims{
			RegisteredClaims: jwt.RegisteredClaims{
				Issuer:    "voucher-export-test",
				ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
			},
			TenantID:  uuid.NewString(),
			UserID:    uuid.NewString(),
			TokenType: "refresh",
		}
		signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(svc.secret)
		require.NoError(t, err)
		_, err = svc.ValidateAccessToken(signed)
		assert.ErrorIs(t, err, ErrInvalidTokenType)
	})

	t.Run("unsigned", func(t *testing.T) {
		claims := &Claims{TenantID: uuid.NewString(), UserID: uuid.NewString(), TokenType: TokenTypeAccess}
		signed, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
		require.NoError(t, err)
		_, err = svc.ValidateAccessToken(signed)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})
}

func TestClaims_Actor(t *testing.T) {
	input := newTestInput()
	claims := &Claims{
		TenantID:    input.TenantID.String(),
		UserID:      input.UserID.String(),
		Permissions: input.Permissions,
	}

	actor, err := claims.Actor()
	require.NoError(t, err)
	assert.Equal(t, input.TenantID, actor.TenantID)
	assert.Equal(t, input.UserID, actor.UserID)
	assert.True(t, actor.HasPermission(string(export.ActionExport)))

	actor.Permissions[0] = "changed"
	assert.Equal(t, string(export.ActionExport), claims.Permissions[0], "actor owns a copy")

	_, err = (&Claims{TenantID: "bad", UserID: input.UserID.String()}).Actor()
	assert.ErrorIs(t, err, ErrMissingTenantID)
}

func TestClaims_Permissions(t *testing.T) {
	claims := &Claims{Permissions: []string{"voucher_export:read"}}
	assert.True(t, claims.HasPermission("voucher_export:read"))
	assert.False(t, claims.HasPermission("voucher_export:create"))
	assert.True(t, claims.HasAnyPermission("voucher_export:create", "voucher_export:read"))

	admin := &Claims{Permissions: []string{"*"}}
	assert.True(t, admin.HasPermission("voucher_export:cancel"))
}
