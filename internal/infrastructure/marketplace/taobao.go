package marketplace

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/erp/connector/internal/domain/integration"
	"github.com/erp/connector/internal/infrastructure/config"
	"github.com/erp/connector/internal/infrastructure/telemetry"
)

const (
	// TaobaoProductionAPIURL is the production API endpoint
	TaobaoProductionAPIURL = "https://gw.api.taobao.com/router/rest"
	// TaobaoSandboxAPIURL is the sandbox API endpoint
	TaobaoSandboxAPIURL = "https://gw.api.tbsandbox.com/router/rest"
)

// API key fields a Taobao tenant supplies
const (
	TaobaoFieldAppKey     = "app_key"
	TaobaoFieldAppSecret  = "app_secret"
	TaobaoFieldSessionKey = "session_key"
)

var defaultTaobaoKeyFields = []string{TaobaoFieldAppKey, TaobaoFieldAppSecret, TaobaoFieldSessionKey}

// Taobao gateway error codes meaning the session key is missing or dead
var taobaoSessionCodes = map[string]bool{
	"26": true, // missing session
	"27": true, // invalid session
	"53": true, // session expired
}

// Taobao gateway timestamps are always China Standard Time
var chinaStandardTime = time.FixedZone("CST", 8*60*60)

// TaobaoProvider validates static Taobao/Tmall key material against the
// signed router gateway.
type TaobaoProvider struct {
	apiClient
	cfg       config.MarketplaceConfig
	baseURL   string
	keyFields []string
	now       func() time.Time
}

// NewTaobaoProvider creates a Taobao adapter
func NewTaobaoProvider(cfg config.MarketplaceConfig, httpClient *http.Client, metrics *telemetry.ConnectorMetrics) *TaobaoProvider {
	baseURL := cfg.APIBaseURL
	if baseURL == "" {
		baseURL = TaobaoProductionAPIURL
		if cfg.IsSandbox {
			baseURL = TaobaoSandboxAPIURL
		}
	}
	fields := cfg.RequiredKeyFields
	if len(fields) == 0 {
		fields = defaultTaobaoKeyFields
	}
	return &TaobaoProvider{
		apiClient: newAPIClient(integration.Marketplace(cfg.ID), httpClient, cfg.Timeout, metrics),
		cfg:       cfg,
		baseURL:   baseURL,
		keyFields: fields,
		now:       time.Now,
	}
}

// Marketplace returns the marketplace this adapter serves
func (p *TaobaoProvider) Marketplace() integration.Marketplace { return p.marketplace }

// AuthType returns apikey
func (p *TaobaoProvider) AuthType() integration.AuthType { return integration.AuthTypeAPIKey }

// keyMaterial returns the supplied fields, falling back to the configured
// application key and secret when the tenant did not supply their own.
func (p *TaobaoProvider) keyMaterial(creds integration.Credentials) (map[string]string, error) {
	keys := make(map[string]string, len(creds.APIKey)+2)
	for k, v := range creds.APIKey {
		keys[k] = strings.TrimSpace(v)
	}
	if keys[TaobaoFieldAppKey] == "" && p.cfg.ClientID != "" {
		keys[TaobaoFieldAppKey] = p.cfg.ClientID
	}
	if keys[TaobaoFieldAppSecret] == "" && p.cfg.ClientSecret != "" {
		keys[TaobaoFieldAppSecret] = p.cfg.ClientSecret
	}

	var missing []string
	for _, f := range p.keyFields {
		if keys[f] == "" {
			missing = append(missing, f)
		}
	}
	if len(missing) > 0 {
		return nil, integration.NewConnectError(integration.KindInvalidRequest, p.marketplace,
			"missing api key fields: "+strings.Join(missing, ", "), integration.ErrInvalidCredentials)
	}
	return keys, nil
}

// Validate calls taobao.user.seller.get with the tenant's session key
func (p *TaobaoProvider) Validate(ctx context.Context, creds integration.Credentials) (*integration.Profile, error) {
	keys, err := p.keyMaterial(creds)
	if err != nil {
		return nil, err
	}

	var profile *integration.Profile
	err = p.observe(ctx, "validate", func(ctx context.Context) error {
		var resp struct {
			UserSellerGetResponse struct {
				User struct {
					UserID any    `json:"user_id"`
					Nick   string `json:"nick"`
				} `json:"user"`
			} `json:"user_seller_get_response"`
		}
		params := map[string]string{
			"method": "taobao.user.seller.get",
			"fields": "user_id,nick",
		}
		if err := p.call(ctx, keys, params, &resp); err != nil {
			return err
		}
		user := resp.UserSellerGetResponse.User
		profile = &integration.Profile{Name: user.Nick}
		if user.UserID != nil {
			profile.AccountID = scalarString(user.UserID)
		}
		return nil
	})
	return profile, err
}

// Revoke is a no-op: Taobao session keys are revoked from the seller console
func (p *TaobaoProvider) Revoke(context.Context, integration.Credentials) error {
	return nil
}

// call signs params and posts them to the router gateway
func (p *TaobaoProvider) call(ctx context.Context, keys map[string]string, params map[string]string, out any) error {
	params["app_key"] = keys[TaobaoFieldAppKey]
	params["session"] = keys[TaobaoFieldSessionKey]
	params["timestamp"] = p.now().In(chinaStandardTime).Format("2006-01-02 15:04:05")
	params["format"] = "json"
	params["v"] = "2.0"
	params["sign_method"] = "md5"
	params["sign"] = TaobaoSign(keys[TaobaoFieldAppSecret], params)

	values := url.Values{}
	for k, v := range params {
		values.Set(k, v)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL, strings.NewReader(values.Encode()))
	if err != nil {
		return integration.NewConnectError(integration.KindInvalidRequest, p.marketplace, "bad api url", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	status, body, err := p.send(req)
	if err != nil {
		return err
	}
	if status >= 300 {
		return p.statusError(status, body)
	}

	var envelope struct {
		ErrorResponse *struct {
			Code    any    `json:"code"`
			Msg     string `json:"msg"`
			SubCode string `json:"sub_code"`
			SubMsg  string `json:"sub_msg"`
		} `json:"error_response"`
	}
	if err := p.decodeObject(body, &envelope); err != nil {
		return err
	}
	if e := envelope.ErrorResponse; e != nil {
		code := scalarString(e.Code)
		message := e.Msg
		if e.SubMsg != "" {
			message = e.SubMsg
		}
		if taobaoSessionCodes[code] || strings.Contains(e.SubCode, "session") {
			ce := integration.NewConnectError(integration.KindTokenExpiredOrRevoked, p.marketplace, message, nil)
			ce.Code = code
			return ce
		}
		if e.SubCode != "" {
			code = code + "/" + e.SubCode
		}
		return integration.Rejected(p.marketplace, code, message)
	}
	return p.decodeObject(body, out)
}

// TaobaoSign computes the md5 request signature the Taobao gateway
// requires: MD5(secret + k1v1k2v2... + secret) over sorted keys, upper hex.
func TaobaoSign(secret string, params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		if k == "sign" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var builder strings.Builder
	builder.WriteString(secret)
	for _, k := range keys {
		builder.WriteString(k)
		builder.WriteString(params[k])
	}
	builder.WriteString(secret)

	hash := md5.Sum([]byte(builder.String()))
	return strings.ToUpper(hex.EncodeToString(hash[:]))
}
