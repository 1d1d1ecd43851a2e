package backendclient

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/erp/connector/internal/infrastructure/auth"
	"github.com/erp/connector/internal/infrastructure/config"
)

func TestStaticToken(t *testing.T) {
	tok, err := StaticToken("abc").Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "abc", tok)

	_, err = StaticToken("").Token(context.Background())
	assert.Error(t, err)
}

func TestSignedTokenSource(t *testing.T) {
	svc := auth.NewJWTService(jwtConfig)
	tenantID := uuid.New()
	src := NewSignedTokenSource(svc, tenantID, "connect-cli")

	first, err := src.Token(context.Background())
	require.NoError(t, err)
	again, err := src.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, first, again)

	claims, err := svc.ValidateToken(first)
	require.NoError(t, err)
	assert.Equal(t, tenantID.String(), claims.TenantID)
	assert.Equal(t, "connect-cli", claims.Subject)
	assert.True(t, claims.HasPermission(auth.PermissionConnect))
	assert.True(t, claims.HasPermission(auth.PermissionRead))

	// close to expiry a new token is signed
	src.now = func() time.Time { return time.Now().Add(time.Hour) }
	renewed, err := src.Token(context.Background())
	require.NoError(t, err)
	assert.NotEqual(t, first, renewed)
}

func TestSignedTokenSource_MissingSecret(t *testing.T) {
	src := NewSignedTokenSource(auth.NewJWTService(config.JWTConfig{}), uuid.New(), "connect-cli")
	_, err := src.Token(context.Background())
	assert.ErrorIs(t, err, auth.ErrMissingSecret)
}
