package marketplace

import (
	"fmt"
	"net/http"
	"sort"
	"sync"

	"github.com/erp/connector/internal/domain/integration"
	"github.com/erp/connector/internal/infrastructure/config"
	"github.com/erp/connector/internal/infrastructure/telemetry"
)

// Adapter names accepted in marketplace configuration
const (
	AdapterOAuth2 = "oauth2"
	AdapterTaobao = "taobao"
	AdapterDouyin = "douyin"
)

// Option configures a Registry
type Option func(*Registry)

// WithHTTPClient sets the HTTP client shared by all adapters
func WithHTTPClient(c *http.Client) Option {
	return func(r *Registry) { r.httpClient = c }
}

// WithMetrics records provider call metrics
func WithMetrics(m *telemetry.ConnectorMetrics) Option {
	return func(r *Registry) { r.metrics = m }
}

// Registry resolves provider adapters by marketplace id.
// It implements integration.ProviderRegistry.
type Registry struct {
	mu         sync.RWMutex
	providers  map[integration.Marketplace]integration.Provider
	httpClient *http.Client
	metrics    *telemetry.ConnectorMetrics
}

// NewRegistry builds one adapter per configured marketplace
func NewRegistry(cfgs map[string]config.MarketplaceConfig, opts ...Option) (*Registry, error) {
	r := &Registry{providers: make(map[integration.Marketplace]integration.Provider, len(cfgs))}
	for _, opt := range opts {
		opt(r)
	}

	for id, cfg := range cfgs {
		if cfg.ID == "" {
			cfg.ID = id
		}
		p, err := r.build(cfg)
		if err != nil {
			return nil, err
		}
		r.Register(p)
	}
	return r, nil
}

func (r *Registry) build(cfg config.MarketplaceConfig) (integration.Provider, error) {
	if !integration.Marketplace(cfg.ID).IsValid() {
		return nil, fmt.Errorf("marketplace %q: %w", cfg.ID, integration.ErrInvalidMarketplace)
	}

	switch cfg.Adapter {
	case AdapterTaobao:
		return NewTaobaoProvider(cfg, r.httpClient, r.metrics), nil
	case AdapterDouyin:
		return NewDouyinProvider(cfg, r.httpClient, r.metrics), nil
	case AdapterOAuth2, "":
		if cfg.AuthType == integration.AuthTypeAPIKey.String() {
			return nil, fmt.Errorf("marketplace %q: adapter oauth2 cannot serve apikey auth: %w", cfg.ID, integration.ErrInvalidAuthType)
		}
		p := NewOAuth2Provider(cfg, r.httpClient, r.metrics)
		if cfg.WebhookSubscribeURL != "" {
			return &subscribingOAuth2Provider{OAuth2Provider: p}, nil
		}
		return p, nil
	default:
		return nil, fmt.Errorf("marketplace %q: unknown adapter %q", cfg.ID, cfg.Adapter)
	}
}

// Register adds or replaces the adapter for its marketplace
func (r *Registry) Register(p integration.Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[p.Marketplace()] = p
}

// Get returns the adapter for a marketplace
func (r *Registry) Get(marketplace integration.Marketplace) (integration.Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[marketplace]
	if !ok {
		return nil, integration.ErrMarketplaceNotConfigured
	}
	return p, nil
}

// List returns the configured marketplaces in sorted order
func (r *Registry) List() []integration.Marketplace {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]integration.Marketplace, 0, len(r.providers))
	for m := range r.providers {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

var _ integration.ProviderRegistry = (*Registry)(nil)
