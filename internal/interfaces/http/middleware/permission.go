package middleware

import (
	"slices"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/erp/connector/internal/interfaces/http/dto"
)

// PermissionConfig holds configuration for permission middleware
type PermissionConfig struct {
	// Logger for middleware logging
	Logger *zap.Logger
}

// RequireAnyPermission creates middleware that requires any of the specified permissions
func RequireAnyPermission(permissions ...string) gin.HandlerFunc {
	return RequireAnyPermissionWithConfig(PermissionConfig{}, permissions...)
}

// RequireAnyPermissionWithConfig is RequireAnyPermission with custom config
func RequireAnyPermissionWithConfig(cfg PermissionConfig, permissions ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := GetJWTClaims(c)
		if claims == nil {
			denyPermission(c, cfg, permissions, "No authentication claims found")
			return
		}
		if !slices.ContainsFunc(permissions, claims.HasPermission) {
			denyPermission(c, cfg, permissions, "Caller lacks required permission")
			return
		}
		c.Next()
	}
}

// HasPermission reports whether the authenticated caller holds a permission
func HasPermission(c *gin.Context, permission string) bool {
	claims := GetJWTClaims(c)
	return claims != nil && claims.HasPermission(permission)
}

// MustHavePermission aborts the request if the caller lacks the permission.
// Returns true if the caller has it.
func MustHavePermission(c *gin.Context, permission string) bool {
	if HasPermission(c, permission) {
		return true
	}
	denyPermission(c, PermissionConfig{}, []string{permission}, "Caller lacks required permission")
	return false
}

func denyPermission(c *gin.Context, cfg PermissionConfig, required []string, reason string) {
	if cfg.Logger != nil {
		subject := ""
		if claims := GetJWTClaims(c); claims != nil {
			subject = claims.Subject
		}
		cfg.Logger.Warn("Permission denied",
			zap.String("reason", reason),
			zap.String("subject", subject),
			zap.Strings("required_permissions", required),
			zap.String("path", c.Request.URL.Path),
		)
	}
	abortWithError(c, dto.ErrCodeForbidden, "Access denied: insufficient permissions")
}
