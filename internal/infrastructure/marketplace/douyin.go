package marketplace

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/erp/connector/internal/domain/integration"
	"github.com/erp/connector/internal/infrastructure/config"
	"github.com/erp/connector/internal/infrastructure/telemetry"
)

const (
	// DouyinProductionAPIURL is the production API endpoint
	DouyinProductionAPIURL = "https://openapi-fxg.jinritemai.com"
	// DouyinSandboxAPIURL is the sandbox API endpoint
	DouyinSandboxAPIURL = "https://openapi-sandbox.jinritemai.com"
	// DouyinAuthorizeURL is the service market consent page
	DouyinAuthorizeURL = "https://fuwu.jinritemai.com/authorize"
)

// Douyin err_no values meaning the access or refresh token is no longer valid
var douyinTokenCodes = map[int]bool{
	30001: true,
	30002: true,
	30005: true,
}

// DouyinProvider implements the Douyin Shop authorization flow over the
// signed open platform gateway.
type DouyinProvider struct {
	apiClient
	cfg     config.MarketplaceConfig
	baseURL string
	now     func() time.Time
}

// NewDouyinProvider creates a Douyin adapter
func NewDouyinProvider(cfg config.MarketplaceConfig, httpClient *http.Client, metrics *telemetry.ConnectorMetrics) *DouyinProvider {
	baseURL := cfg.APIBaseURL
	if baseURL == "" {
		baseURL = DouyinProductionAPIURL
		if cfg.IsSandbox {
			baseURL = DouyinSandboxAPIURL
		}
	}
	return &DouyinProvider{
		apiClient: newAPIClient(integration.Marketplace(cfg.ID), httpClient, cfg.Timeout, metrics),
		cfg:       cfg,
		baseURL:   strings.TrimRight(baseURL, "/"),
		now:       time.Now,
	}
}

// Marketplace returns the marketplace this adapter serves
func (p *DouyinProvider) Marketplace() integration.Marketplace { return p.marketplace }

// AuthType returns oauth
func (p *DouyinProvider) AuthType() integration.AuthType { return integration.AuthTypeOAuth }

// AuthCodeURL builds the service market consent page address
func (p *DouyinProvider) AuthCodeURL(state, redirectURI string) string {
	base := p.cfg.AuthURL
	if base == "" {
		base = DouyinAuthorizeURL
	}
	q := url.Values{
		"app_key":       {p.cfg.ClientID},
		"state":         {state},
		"redirect_uri":  {redirectURI},
		"response_type": {"code"},
	}
	sep := "?"
	if strings.Contains(base, "?") {
		sep = "&"
	}
	return base + sep + q.Encode()
}

type douyinToken struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
	Scope        string `json:"scope"`
	ShopID       any    `json:"shop_id"`
	ShopName     string `json:"shop_name"`
}

func (p *DouyinProvider) credentials(tok douyinToken) integration.Credentials {
	creds := integration.Credentials{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		TokenType:    "Bearer",
		Scope:        tok.Scope,
	}
	if tok.ExpiresIn > 0 {
		expiry := p.now().Add(time.Duration(tok.ExpiresIn) * time.Second).UTC()
		creds.ExpiresAt = &expiry
	}
	return creds
}

// Exchange redeems the authorization code through token.create
func (p *DouyinProvider) Exchange(ctx context.Context, code, _ string) (integration.Credentials, error) {
	var creds integration.Credentials
	err := p.observe(ctx, "exchange", func(ctx context.Context) error {
		var tok douyinToken
		params := map[string]any{"code": code, "grant_type": "authorization_code"}
		if err := p.call(ctx, "token.create", "", params, &tok); err != nil {
			return p.asRejected(err)
		}
		creds = p.credentials(tok)
		return nil
	})
	return creds, err
}

// Refresh trades the refresh token through token.refresh. Any gateway
// rejection means the tenant must authorize again.
func (p *DouyinProvider) Refresh(ctx context.Context, current integration.Credentials) (integration.Credentials, error) {
	if !current.CanRefresh() {
		return integration.Credentials{}, integration.NewConnectError(
			integration.KindTokenExpiredOrRevoked, p.marketplace, "no refresh token stored", nil)
	}

	var creds integration.Credentials
	err := p.observe(ctx, "refresh", func(ctx context.Context) error {
		var tok douyinToken
		params := map[string]any{"refresh_token": current.RefreshToken, "grant_type": "refresh_token"}
		if err := p.call(ctx, "token.refresh", "", params, &tok); err != nil {
			if ce, ok := integration.AsConnectError(err); ok && ce.Kind == integration.KindProviderRejected {
				expired := integration.NewConnectError(integration.KindTokenExpiredOrRevoked, p.marketplace, ce.Message, nil)
				expired.Code = ce.Code
				return expired
			}
			return err
		}
		creds = p.credentials(tok)
		return nil
	})
	return creds, err
}

// Validate lists the shop's brands, the cheapest authenticated call
func (p *DouyinProvider) Validate(ctx context.Context, creds integration.Credentials) (*integration.Profile, error) {
	if creds.AccessToken == "" {
		return nil, integration.NewConnectError(integration.KindTokenExpiredOrRevoked, p.marketplace, "no access token stored", nil)
	}

	var profile *integration.Profile
	err := p.observe(ctx, "validate", func(ctx context.Context) error {
		var data map[string]any
		if err := p.call(ctx, "shop.brandList", creds.AccessToken, map[string]any{}, &data); err != nil {
			return err
		}
		profile = profileFromPayload(data)
		return nil
	})
	return profile, err
}

// Revoke is a no-op: Douyin authorizations are cancelled from the service market
func (p *DouyinProvider) Revoke(context.Context, integration.Credentials) error {
	return nil
}

// asRejected downgrades token errors raised during code exchange: a bad
// code is a rejection, not an expired session.
func (p *DouyinProvider) asRejected(err error) error {
	ce, ok := integration.AsConnectError(err)
	if !ok || ce.Kind != integration.KindTokenExpiredOrRevoked {
		return err
	}
	return integration.Rejected(p.marketplace, ce.Code, ce.Message)
}

// call signs and posts one gateway method, decoding the data field into out
func (p *DouyinProvider) call(ctx context.Context, method, accessToken string, params map[string]any, out any) error {
	paramJSON, err := json.Marshal(params)
	if err != nil {
		return integration.NewConnectError(integration.KindInvalidRequest, p.marketplace, "encode params", err)
	}

	timestamp := strconv.FormatInt(p.now().Unix(), 10)
	version := "2"
	body, err := json.Marshal(map[string]any{
		"app_key":      p.cfg.ClientID,
		"access_token": accessToken,
		"method":       method,
		"param_json":   string(paramJSON),
		"timestamp":    timestamp,
		"v":            version,
		"sign":         DouyinSign(p.cfg.ClientSecret, method, string(paramJSON), timestamp, version),
		"sign_method":  "hmac-sha256",
	})
	if err != nil {
		return integration.NewConnectError(integration.KindInvalidRequest, p.marketplace, "encode request", err)
	}

	endpoint := p.baseURL + "/" + strings.ReplaceAll(method, ".", "/")
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return integration.NewConnectError(integration.KindInvalidRequest, p.marketplace, "bad api url", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	status, respBody, err := p.send(req)
	if err != nil {
		return err
	}
	if status >= 300 {
		return p.statusError(status, respBody)
	}

	var envelope struct {
		ErrNo   int             `json:"err_no"`
		Message string          `json:"message"`
		LogID   string          `json:"log_id"`
		Data    json.RawMessage `json:"data"`
	}
	if err := p.decodeObject(respBody, &envelope); err != nil {
		return err
	}
	if envelope.ErrNo != 0 {
		code := strconv.Itoa(envelope.ErrNo)
		if douyinTokenCodes[envelope.ErrNo] {
			ce := integration.NewConnectError(integration.KindTokenExpiredOrRevoked, p.marketplace, envelope.Message, nil)
			ce.Code = code
			return ce
		}
		return integration.Rejected(p.marketplace, code, envelope.Message)
	}
	if len(envelope.Data) == 0 || string(envelope.Data) == "null" {
		return nil
	}
	return p.decodeObject(envelope.Data, out)
}

// DouyinSign computes the gateway signature:
// HMAC-SHA256(secret, secret + method + param_json + timestamp + v + secret), lower hex.
func DouyinSign(secret, method, paramJSON, timestamp, version string) string {
	var builder strings.Builder
	builder.WriteString(secret)
	builder.WriteString(method)
	builder.WriteString(paramJSON)
	builder.WriteString(timestamp)
	builder.WriteString(version)
	builder.WriteString(secret)

	h := hmac.New(sha256.New, []byte(secret))
	h.Write([]byte(builder.String()))
	return hex.EncodeToString(h.Sum(nil))
}
