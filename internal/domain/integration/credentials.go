package integration

import (
	"time"
)

// Credentials is the secret material of an integration. Only the fields
// matching the integration's AuthType are populated.
type Credentials struct {
	AccessToken  string     `json:"access_token,omitempty"`
	RefreshToken string     `json:"refresh_token,omitempty"`
	TokenType    string     `json:"token_type,omitempty"`
	Scope        string     `json:"scope,omitempty"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`

	// APIKey holds raw key fields (for example app_key, app_secret, session_key)
	APIKey map[string]string `json:"api_key,omitempty"`
}

// IsEmpty returns true when no secret material is present
func (c Credentials) IsEmpty() bool {
	return c.AccessToken == "" && c.RefreshToken == "" && len(c.APIKey) == 0
}

// ValidFor reports whether the credentials are complete for the auth type
func (c Credentials) ValidFor(authType AuthType) bool {
	switch authType {
	case AuthTypeOAuth:
		return c.AccessToken != ""
	case AuthTypeAPIKey:
		if len(c.APIKey) == 0 {
			return false
		}
		for _, v := range c.APIKey {
			if v == "" {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// Expired returns true if the access token has a known expiry in the past
func (c Credentials) Expired(now time.Time) bool {
	return c.ExpiresAt != nil && !now.Before(*c.ExpiresAt)
}

// ExpiresWithin returns true if the access token expires inside the window
func (c Credentials) ExpiresWithin(window time.Duration, now time.Time) bool {
	return c.ExpiresAt != nil && c.ExpiresAt.Before(now.Add(window))
}

// CanRefresh returns true if a refresh token is available
func (c Credentials) CanRefresh() bool {
	return c.RefreshToken != ""
}

// Merge overlays freshly issued tokens. Providers that do not rotate refresh
// tokens omit them from refresh responses, so the stored one is kept.
func (c Credentials) Merge(fresh Credentials) Credentials {
	out := fresh
	if out.RefreshToken == "" {
		out.RefreshToken = c.RefreshToken
	}
	if out.Scope == "" {
		out.Scope = c.Scope
	}
	return out
}
