package marketplace

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/erp/connector/internal/domain/integration"
	"github.com/erp/connector/internal/infrastructure/config"
	"github.com/erp/connector/internal/infrastructure/telemetry"
	"golang.org/x/oauth2"
)

// OAuth error codes that mean the provider refused the grant
var rejectedCodes = map[string]bool{
	"invalid_grant":             true,
	"access_denied":             true,
	"invalid_scope":             true,
	"invalid_request":           true,
	"invalid_client":            true,
	"unauthorized_client":       true,
	"unsupported_grant_type":    true,
	"unsupported_response_type": true,
}

// OAuth2Provider is the generic authorization-code adapter. Endpoints come
// from the marketplace configuration.
type OAuth2Provider struct {
	apiClient
	cfg   config.MarketplaceConfig
	oauth oauth2.Config
}

// NewOAuth2Provider creates an adapter for a standards-compliant OAuth2 marketplace
func NewOAuth2Provider(cfg config.MarketplaceConfig, httpClient *http.Client, metrics *telemetry.ConnectorMetrics) *OAuth2Provider {
	return &OAuth2Provider{
		apiClient: newAPIClient(integration.Marketplace(cfg.ID), httpClient, cfg.Timeout, metrics),
		cfg:       cfg,
		oauth: oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Scopes:       cfg.Scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:   cfg.AuthURL,
				TokenURL:  cfg.TokenURL,
				AuthStyle: authStyle(cfg.AuthStyle),
			},
		},
	}
}

func authStyle(s string) oauth2.AuthStyle {
	switch strings.ToLower(s) {
	case "header":
		return oauth2.AuthStyleInHeader
	case "params":
		return oauth2.AuthStyleInParams
	default:
		return oauth2.AuthStyleAutoDetect
	}
}

// Marketplace returns the marketplace this adapter serves
func (p *OAuth2Provider) Marketplace() integration.Marketplace { return p.marketplace }

// AuthType returns oauth
func (p *OAuth2Provider) AuthType() integration.AuthType { return integration.AuthTypeOAuth }

func (p *OAuth2Provider) configFor(redirectURI string) *oauth2.Config {
	conf := p.oauth
	conf.RedirectURL = redirectURI
	return &conf
}

func (p *OAuth2Provider) clientContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, p.http)
}

// AuthCodeURL builds the consent page address for the given state
func (p *OAuth2Provider) AuthCodeURL(state, redirectURI string) string {
	return p.configFor(redirectURI).AuthCodeURL(state)
}

// Exchange trades a single-use authorization code for tokens. It is never retried.
func (p *OAuth2Provider) Exchange(ctx context.Context, code, redirectURI string) (integration.Credentials, error) {
	var creds integration.Credentials
	err := p.observe(ctx, "exchange", func(ctx context.Context) error {
		tok, err := p.configFor(redirectURI).Exchange(p.clientContext(ctx), code)
		if err != nil {
			return p.classifyTokenError(err, false)
		}
		creds = credentialsFromToken(tok)
		return nil
	})
	return creds, err
}

// Refresh obtains a new access token from the stored refresh token
func (p *OAuth2Provider) Refresh(ctx context.Context, current integration.Credentials) (integration.Credentials, error) {
	if !current.CanRefresh() {
		return integration.Credentials{}, integration.NewConnectError(
			integration.KindTokenExpiredOrRevoked, p.marketplace, "no refresh token stored", nil)
	}

	var creds integration.Credentials
	err := p.observe(ctx, "refresh", func(ctx context.Context) error {
		src := p.oauth.TokenSource(p.clientContext(ctx), &oauth2.Token{RefreshToken: current.RefreshToken})
		tok, err := src.Token()
		if err != nil {
			return p.classifyTokenError(err, true)
		}
		creds = credentialsFromToken(tok)
		return nil
	})
	return creds, err
}

// Validate calls the profile endpoint with the access token. Without a
// profile endpoint only the stored expiry can be checked.
func (p *OAuth2Provider) Validate(ctx context.Context, creds integration.Credentials) (*integration.Profile, error) {
	if creds.AccessToken == "" {
		return nil, integration.NewConnectError(integration.KindTokenExpiredOrRevoked, p.marketplace, "no access token stored", nil)
	}
	if p.cfg.ProfileURL == "" {
		if creds.Expired(time.Now()) {
			return nil, integration.NewConnectError(integration.KindTokenExpiredOrRevoked, p.marketplace, "access token expired", nil)
		}
		return &integration.Profile{}, nil
	}

	var profile *integration.Profile
	err := p.observe(ctx, "profile", func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.cfg.ProfileURL, nil)
		if err != nil {
			return integration.NewConnectError(integration.KindInvalidRequest, p.marketplace, "bad profile url", err)
		}
		req.Header.Set("Authorization", bearer(creds))
		req.Header.Set("Accept", "application/json")

		status, body, err := p.send(req)
		if err != nil {
			return err
		}
		if status >= 300 {
			return p.statusError(status, body)
		}

		var payload map[string]any
		if err := p.decodeObject(body, &payload); err != nil {
			return err
		}
		profile = profileFromPayload(payload)
		return nil
	})
	return profile, err
}

// Revoke invalidates the token at the provider when a revocation endpoint is
// configured (RFC 7009). Otherwise it is a no-op.
func (p *OAuth2Provider) Revoke(ctx context.Context, creds integration.Credentials) error {
	if p.cfg.RevokeURL == "" {
		return nil
	}
	token, hint := creds.RefreshToken, "refresh_token"
	if token == "" {
		token, hint = creds.AccessToken, "access_token"
	}
	if token == "" {
		return nil
	}

	return p.observe(ctx, "revoke", func(ctx context.Context) error {
		form := url.Values{"token": {token}, "token_type_hint": {hint}}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.RevokeURL, strings.NewReader(form.Encode()))
		if err != nil {
			return integration.NewConnectError(integration.KindInvalidRequest, p.marketplace, "bad revoke url", err)
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		req.SetBasicAuth(url.QueryEscape(p.cfg.ClientID), url.QueryEscape(p.cfg.ClientSecret))

		status, body, err := p.send(req)
		if err != nil {
			return err
		}
		if status >= 300 {
			return p.statusError(status, body)
		}
		return nil
	})
}

// classifyTokenError maps token endpoint failures onto the connect error
// taxonomy. During refresh an invalid_grant means the refresh token is dead.
func (p *OAuth2Provider) classifyTokenError(err error, refreshing bool) *integration.ConnectError {
	var re *oauth2.RetrieveError
	if !errors.As(err, &re) {
		if isContextError(err) {
			return integration.NetworkFailure(p.marketplace, err)
		}
		var ue *url.Error
		if errors.As(err, &ue) {
			return integration.NetworkFailure(p.marketplace, err)
		}
		return integration.NewConnectError(integration.KindProviderRejected, p.marketplace, "token response rejected", err)
	}

	status := 0
	if re.Response != nil {
		status = re.Response.StatusCode
	}
	code := re.ErrorCode
	message := re.ErrorDescription
	if message == "" {
		message = code
	}

	switch {
	case refreshing && (code == "invalid_grant" || status == http.StatusUnauthorized):
		ce := integration.NewConnectError(integration.KindTokenExpiredOrRevoked, p.marketplace, message, err)
		ce.Code = code
		return ce
	case rejectedCodes[code]:
		ce := integration.Rejected(p.marketplace, code, message)
		ce.Err = err
		return ce
	case status == http.StatusTooManyRequests || status >= 500:
		return integration.NetworkFailure(p.marketplace, err)
	default:
		if code == "" {
			code = fmt.Sprintf("http_%d", status)
		}
		ce := integration.Rejected(p.marketplace, code, message)
		ce.Err = err
		return ce
	}
}

func credentialsFromToken(tok *oauth2.Token) integration.Credentials {
	creds := integration.Credentials{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		TokenType:    tok.TokenType,
	}
	if !tok.Expiry.IsZero() {
		expiry := tok.Expiry.UTC()
		creds.ExpiresAt = &expiry
	}
	if scope, ok := tok.Extra("scope").(string); ok {
		creds.Scope = scope
	}
	return creds
}

func bearer(creds integration.Credentials) string {
	tokenType := creds.TokenType
	if tokenType == "" || strings.EqualFold(tokenType, "bearer") {
		tokenType = "Bearer"
	}
	return tokenType + " " + creds.AccessToken
}

var (
	profileIDKeys   = []string{"id", "account_id", "shop_id", "user_id", "seller_id"}
	profileNameKeys = []string{"name", "shop_name", "display_name", "nick", "email"}
)

// profileFromPayload reads a loosely shaped account document. Providers
// often wrap it in "data", "shop" or "user".
func profileFromPayload(payload map[string]any) *integration.Profile {
	doc := payload
	for _, wrapper := range []string{"data", "shop", "user", "account"} {
		if inner, ok := payload[wrapper].(map[string]any); ok {
			doc = inner
			break
		}
	}

	profile := &integration.Profile{Extra: doc}
	for _, k := range profileIDKeys {
		if v, ok := doc[k]; ok && v != nil {
			profile.AccountID = scalarString(v)
			break
		}
	}
	for _, k := range profileNameKeys {
		if v, ok := doc[k].(string); ok && v != "" {
			profile.Name = v
			break
		}
	}
	return profile
}

func scalarString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return fmt.Sprint(t)
	}
}

// subscribingOAuth2Provider adds remote webhook subscription for
// marketplaces configured with a webhook_subscribe_url.
type subscribingOAuth2Provider struct {
	*OAuth2Provider
}

// SubscribeWebhook asks the marketplace to deliver notifications to endpointURL
func (p *subscribingOAuth2Provider) SubscribeWebhook(ctx context.Context, creds integration.Credentials, endpointURL, secret string) (string, error) {
	var remoteID string
	err := p.observe(ctx, "subscribe_webhook", func(ctx context.Context) error {
		body, err := json.Marshal(map[string]string{
			"address": endpointURL,
			"secret":  secret,
			"format":  "json",
		})
		if err != nil {
			return integration.NewConnectError(integration.KindInvalidRequest, p.marketplace, "encode subscription", err)
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.WebhookSubscribeURL, strings.NewReader(string(body)))
		if err != nil {
			return integration.NewConnectError(integration.KindInvalidRequest, p.marketplace, "bad subscribe url", err)
		}
		req.Header.Set("Authorization", bearer(creds))
		req.Header.Set("Content-Type", "application/json")

		status, respBody, err := p.send(req)
		if err != nil {
			return err
		}
		if status >= 300 {
			return p.statusError(status, respBody)
		}

		var payload map[string]any
		if err := p.decodeObject(respBody, &payload); err != nil {
			return err
		}
		remoteID = profileFromPayload(payload).AccountID
		return nil
	})
	return remoteID, err
}
