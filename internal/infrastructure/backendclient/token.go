package backendclient

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/erp/connector/internal/infrastructure/auth"
)

// TokenSource supplies the bearer token sent with every call
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken is a pre-issued bearer token
type StaticToken string

// Token returns the token itself
func (t StaticToken) Token(context.Context) (string, error) {
	if t == "" {
		return "", errors.New("backendclient: empty token")
	}
	return string(t), nil
}

// refreshMargin is how long before expiry a signed token is replaced
const refreshMargin = 30 * time.Second

// SignedTokenSource signs its own tokens with the shared JWT secret. It
// serves operator tooling that runs next to the backend.
type SignedTokenSource struct {
	jwt         *auth.JWTService
	tenantID    uuid.UUID
	subject     string
	permissions []string
	now         func() time.Time

	mu      sync.Mutex
	current *auth.Token
}

// NewSignedTokenSource creates a token source for one tenant
func NewSignedTokenSource(jwt *auth.JWTService, tenantID uuid.UUID, subject string, permissions ...string) *SignedTokenSource {
	if len(permissions) == 0 {
		permissions = []string{auth.PermissionConnect, auth.PermissionRead}
	}
	return &SignedTokenSource{
		jwt:         jwt,
		tenantID:    tenantID,
		subject:     subject,
		permissions: permissions,
		now:         time.Now,
	}
}

// Token returns the cached token, signing a new one when it is close to expiry
func (s *SignedTokenSource) Token(context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current != nil && s.now().Add(refreshMargin).Before(s.current.ExpiresAt) {
		return s.current.Value, nil
	}
	token, err := s.jwt.GenerateToken(auth.GenerateTokenInput{
		TenantID:    s.tenantID,
		Subject:     s.subject,
		Permissions: s.permissions,
	})
	if err != nil {
		return "", err
	}
	s.current = token
	return token.Value, nil
}
