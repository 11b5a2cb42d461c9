package service

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"survey-engine/internal/model"
	"survey-engine/pkg/apierror"
)

func TestTokenService_RoundTrip(t *testing.T) {
	t.Parallel()
	svc, err := NewTokenService("secret")
	require.NoError(t, err)

	token, err := svc.IssueToken(model.AuthClaims{UserID: "u1", TenantID: tenant, Role: model.RoleEditor}, time.Hour)
	require.NoError(t, err)

	claims, err := svc.ValidateToken(token, "access")
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.UserID)
	assert.Equal(t, tenant, claims.TenantID)
	assert.Equal(t, model.RoleEditor, claims.Role)
	assert.NotEmpty(t, claims.TokenID)
}

func TestTokenService_Rejects(t *testing.T) {
	t.Parallel()
	svc, err := NewTokenService("secret")
	require.NoError(t, err)

	sign := func(secret string, claims jwt.MapClaims) string {
		token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
		require.NoError(t, err)
		return token
	}
	exp := time.Now().Add(time.Hour).Unix()

	tests := []struct {
		name  string
		token string
	}{
		{name: "garbage", token: "not-a-token"},
		{name: "wrong secret", token: sign("other", jwt.MapClaims{"sub": "u1", "tenant": tenant, "typ": "access", "exp": exp})},
		{name: "expired", token: sign("secret", jwt.MapClaims{"sub": "u1", "tenant": tenant, "typ": "access", "exp": time.Now().Add(-time.Minute).Unix()})},
		{name: "refresh type", token: sign("secret", jwt.MapClaims{"sub": "u1", "tenant": tenant, "typ": "refresh", "exp": exp})},
		{name: "no tenant", token: sign("secret", jwt.MapClaims{"sub": "u1", "typ": "access", "exp": exp})},
		{name: "no subject", token: sign("secret", jwt.MapClaims{"tenant": tenant, "typ": "access", "exp": exp})},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := svc.ValidateToken(tc.token, "access")
			var apiErr *apierror.APIError
			require.ErrorAs(t, err, &apiErr)
			assert.Equal(t, 401, apiErr.HTTPStatus)
		})
	}
}

func TestTokenService_RequiresSecretAndTenant(t *testing.T) {
	t.Parallel()

	_, err := NewTokenService(" ")
	require.Error(t, err)

	svc, err := NewTokenService("secret")
	require.NoError(t, err)
	_, err = svc.IssueToken(model.AuthClaims{UserID: "u1"}, time.Hour)
	require.Error(t, err)
}
