package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/erp/connector/internal/infrastructure/auth"
	"github.com/erp/connector/internal/infrastructure/config"
	"github.com/erp/connector/internal/infrastructure/logger"
)

func newTestJWTService() *auth.JWTService {
	return auth.NewJWTService(config.JWTConfig{
		Secret:          "test-secret-key-at-least-32-chars",
		Issuer:          "test-issuer",
		TokenExpiration: 15 * time.Minute,
	})
}

func newTestToken(t *testing.T, svc *auth.JWTService, permissions ...string) (string, uuid.UUID) {
	t.Helper()
	tenantID := uuid.New()
	token, err := svc.GenerateToken(auth.GenerateTokenInput{
		TenantID:    tenantID,
		Subject:     "user-1",
		Permissions: permissions,
	})
	require.NoError(t, err)
	return token.Value, tenantID
}

func TestJWTAuthMiddleware_ValidToken(t *testing.T) {
	svc := newTestJWTService()
	token, tenantID := newTestToken(t, svc, auth.PermissionConnect)

	router := gin.New()
	router.Use(JWTAuthMiddleware(svc))
	router.GET("/test", func(c *gin.Context) {
		got, ok := GetTenantUUID(c)
		assert.True(t, ok)
		assert.Equal(t, tenantID, got)
		assert.Equal(t, "user-1", GetJWTClaims(c).Subject)
		assert.Equal(t, tenantID.String(), logger.GetTenantID(c.Request.Context()))
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.Header.Set(AuthHeaderKey, BearerPrefix+token)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestJWTAuthMiddleware_Rejections(t *testing.T) {
	svc := newTestJWTService()
	token, _ := newTestToken(t, svc)

	expiredSvc := auth.NewJWTService(config.JWTConfig{
		Secret:          "test-secret-key-at-least-32-chars",
		Issuer:          "test-issuer",
		TokenExpiration: -time.Minute,
	})
	expired, _ := newTestToken(t, expiredSvc)

	tests := []struct {
		name     string
		header   string
		wantCode string
	}{
		{name: "missing header", header: "", wantCode: "ERR_UNAUTHORIZED"},
		{name: "not bearer", header: "Basic " + token, wantCode: "ERR_UNAUTHORIZED"},
		{name: "empty token", header: BearerPrefix, wantCode: "ERR_UNAUTHORIZED"},
		{name: "garbage", header: BearerPrefix + "not.a.token", wantCode: "ERR_TOKEN_INVALID"},
		{name: "expired", header: BearerPrefix + expired, wantCode: "ERR_TOKEN_EXPIRED"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := gin.New()
			router.Use(JWTAuthMiddleware(svc))
			router.GET("/test", func(c *gin.Context) { c.Status(http.StatusOK) })

			req := httptest.NewRequest(http.MethodGet, "/test", nil)
			if tt.header != "" {
				req.Header.Set(AuthHeaderKey, tt.header)
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, http.StatusUnauthorized, w.Code)
			assert.Contains(t, w.Body.String(), `"code":"`+tt.wantCode+`"`)
		})
	}
}

func TestGetTenantUUID_Unauthenticated(t *testing.T) {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	_, ok := GetTenantUUID(c)
	assert.False(t, ok)
	assert.Nil(t, GetJWTClaims(c))
}
