package config

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	App          AppConfig
	Database     DatabaseConfig
	Redis        RedisConfig
	JWT          JWTConfig
	Log          LogConfig
	HTTP         HTTPConfig
	Connector    ConnectorConfig
	Marketplaces map[string]MarketplaceConfig
	Window       WindowConfig
	Browser      BrowserConfig
	Client       ClientConfig
	Scheduler    SchedulerConfig
	Storage      StorageConfig
	Swagger      SwaggerConfig
	Telemetry    TelemetryConfig
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // json, console
	Output string // stdout, stderr, or file path
}

// AppConfig holds application-specific settings
type AppConfig struct {
	Name string
	Env  string
	Port string
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	DBName          string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime int // in minutes
	ConnMaxIdleTime int // in minutes
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// Addr returns host:port
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// JWTConfig holds JWT settings
type JWTConfig struct {
	Secret          string
	Issuer          string
	TokenExpiration time.Duration
}

// HTTPConfig holds HTTP server configuration
type HTTPConfig struct {
	ReadTimeout      time.Duration
	WriteTimeout     time.Duration
	IdleTimeout      time.Duration
	MaxHeaderBytes   int
	MaxBodySize      int64
	CORSAllowOrigins []string
	CORSAllowMethods []string
	CORSAllowHeaders []string
	TrustedProxies   []string
}

// ConnectorConfig holds settings of the connector backend
type ConnectorConfig struct {
	// RedirectURL is the fixed callback on the application's own origin
	RedirectURL string
	// PublicBaseURL is the externally reachable base for inbound webhooks
	PublicBaseURL string
	WebhookPath   string
	// ProviderTimeout bounds every single call to a marketplace
	ProviderTimeout time.Duration
	// StateTTL bounds how long an issued state may be redeemed
	StateTTL time.Duration
	// EncryptionKey protects stored credentials
	EncryptionKey string
	// StateBackend and LockBackend select "memory" or "redis"
	StateBackend string
	LockBackend  string
	LockTTL      time.Duration
	// RefreshAhead refreshes tokens expiring within this window
	RefreshAhead         time.Duration
	RefreshSweepInterval time.Duration
	WebhookDedupTTL      time.Duration
	// EnabledMarketplaces adds marketplace IDs configured only through env vars
	EnabledMarketplaces []string
}

// WebhookBaseURL returns the base URL registrations are created under
func (c ConnectorConfig) WebhookBaseURL() string {
	return strings.TrimRight(c.PublicBaseURL, "/") + "/" + strings.TrimLeft(c.WebhookPath, "/")
}

// MarketplaceConfig is one entry of the per-marketplace configuration map
type MarketplaceConfig struct {
	ID       string
	AuthType string // oauth, apikey
	// Adapter selects the implementation: oauth2 (generic), taobao, douyin
	Adapter      string
	ClientID     string
	ClientSecret string
	Scopes       []string
	AuthURL      string
	TokenURL     string
	RevokeURL    string
	ProfileURL   string
	// WebhookSubscribeURL is set for marketplaces that need remote webhook registration
	WebhookSubscribeURL string
	// AuthStyle is how client credentials reach the token endpoint: header, params, or auto
	AuthStyle  string
	APIBaseURL string
	// RequiredKeyFields lists the API key fields a tenant must supply
	RequiredKeyFields []string
	IsSandbox         bool
	Timeout           time.Duration
}

// WindowConfig holds consent window settings
type WindowConfig struct {
	PollInterval time.Duration
	Timeout      time.Duration
	Width        int
	Height       int
	ScreenWidth  int
	ScreenHeight int
}

// BrowserConfig holds chromedp settings used by the CLI window opener
type BrowserConfig struct {
	RemoteURL  string
	ExecPath   string
	Headless   bool
	DisableGPU bool
	NoSandbox  bool
	UserDir    string
}

// ClientConfig holds settings for calling a remote connector backend
type ClientConfig struct {
	BaseURL string
	Timeout time.Duration
}

// SchedulerConfig holds background job settings
type SchedulerConfig struct {
	Enabled       bool
	Workers       int
	QueueSize     int
	JobTimeout    time.Duration
	RetryAttempts int
	RetryDelay    time.Duration
}

// StorageConfig holds the S3-compatible bucket raw webhook payloads are
// archived to
type StorageConfig struct {
	Enabled      bool
	Endpoint     string
	Region       string
	Bucket       string
	AccessKey    string
	SecretKey    string
	UseSSL       bool
	UsePathStyle bool
	// Prefix is prepended to every object key
	Prefix string
}

// SwaggerConfig holds Swagger documentation endpoint configuration
type SwaggerConfig struct {
	Enabled bool
}

// TelemetryConfig holds OpenTelemetry configuration
type TelemetryConfig struct {
	Enabled           bool    // Whether to enable tracing
	CollectorEndpoint string  // OTEL Collector endpoint (e.g., "localhost:4317")
	SamplingRatio     float64 // Sampling ratio (0.0-1.0, 1.0 = 100%)
	ServiceName       string
	Insecure          bool // Use insecure (non-TLS) connection (development only)
	MetricsEnabled    bool
	MetricsInterval   time.Duration
	LogsEnabled       bool
	DBTraceEnabled    bool
	ProfilingEnabled  bool
	ProfilerAddress   string
}

// Load loads configuration from TOML file and environment variables
// Priority (highest to lowest):
// 1. Environment variables with CONNECTOR_ prefix (e.g., CONNECTOR_DATABASE_PASSWORD)
// 2. config.toml
// 3. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/app")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found is OK, we'll use defaults and env vars
	}

	return FromViper(v)
}

// FromViper builds the configuration from an already populated viper instance
func FromViper(v *viper.Viper) (*Config, error) {
	v.SetEnvPrefix("CONNECTOR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := &Config{
		App: AppConfig{
			Name: v.GetString("app.name"),
			Env:  v.GetString("app.env"),
			Port: v.GetString("app.port"),
		},
		Database: DatabaseConfig{
			Host:            v.GetString("database.host"),
			Port:            v.GetInt("database.port"),
			User:            v.GetString("database.user"),
			Password:        v.GetString("database.password"),
			DBName:          v.GetString("database.dbname"),
			SSLMode:         v.GetString("database.sslmode"),
			MaxOpenConns:    v.GetInt("database.max_open_conns"),
			MaxIdleConns:    v.GetInt("database.max_idle_conns"),
			ConnMaxLifetime: v.GetInt("database.conn_max_lifetime"),
			ConnMaxIdleTime: v.GetInt("database.conn_max_idle_time"),
		},
		Redis: RedisConfig{
			Host:     v.GetString("redis.host"),
			Port:     v.GetInt("redis.port"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		JWT: JWTConfig{
			Secret:          v.GetString("jwt.secret"),
			Issuer:          v.GetString("jwt.issuer"),
			TokenExpiration: v.GetDuration("jwt.token_expiration"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			Output: v.GetString("log.output"),
		},
		HTTP: HTTPConfig{
			ReadTimeout:      v.GetDuration("http.read_timeout"),
			WriteTimeout:     v.GetDuration("http.write_timeout"),
			IdleTimeout:      v.GetDuration("http.idle_timeout"),
			MaxHeaderBytes:   v.GetInt("http.max_header_bytes"),
			MaxBodySize:      v.GetInt64("http.max_body_size"),
			CORSAllowOrigins: v.GetStringSlice("http.cors_allow_origins"),
			CORSAllowMethods: v.GetStringSlice("http.cors_allow_methods"),
			CORSAllowHeaders: v.GetStringSlice("http.cors_allow_headers"),
			TrustedProxies:   v.GetStringSlice("http.trusted_proxies"),
		},
		Connector: ConnectorConfig{
			RedirectURL:          v.GetString("connector.redirect_url"),
			PublicBaseURL:        v.GetString("connector.public_base_url"),
			WebhookPath:          v.GetString("connector.webhook_path"),
			ProviderTimeout:      v.GetDuration("connector.provider_timeout"),
			StateTTL:             v.GetDuration("connector.state_ttl"),
			EncryptionKey:        v.GetString("connector.encryption_key"),
			StateBackend:         v.GetString("connector.state_backend"),
			LockBackend:          v.GetString("connector.lock_backend"),
			LockTTL:              v.GetDuration("connector.lock_ttl"),
			RefreshAhead:         v.GetDuration("connector.refresh_ahead"),
			RefreshSweepInterval: v.GetDuration("connector.refresh_sweep_interval"),
			WebhookDedupTTL:      v.GetDuration("connector.webhook_dedup_ttl"),
			EnabledMarketplaces:  v.GetStringSlice("connector.enabled_marketplaces"),
		},
		Window: WindowConfig{
			PollInterval: v.GetDuration("window.poll_interval"),
			Timeout:      v.GetDuration("window.timeout"),
			Width:        v.GetInt("window.width"),
			Height:       v.GetInt("window.height"),
			ScreenWidth:  v.GetInt("window.screen_width"),
			ScreenHeight: v.GetInt("window.screen_height"),
		},
		Browser: BrowserConfig{
			RemoteURL:  v.GetString("browser.remote_url"),
			ExecPath:   v.GetString("browser.exec_path"),
			Headless:   v.GetBool("browser.headless"),
			DisableGPU: v.GetBool("browser.disable_gpu"),
			NoSandbox:  v.GetBool("browser.no_sandbox"),
			UserDir:    v.GetString("browser.user_dir"),
		},
		Client: ClientConfig{
			BaseURL: v.GetString("client.base_url"),
			Timeout: v.GetDuration("client.timeout"),
		},
		Scheduler: SchedulerConfig{
			Enabled:       v.GetBool("scheduler.enabled"),
			Workers:       v.GetInt("scheduler.workers"),
			QueueSize:     v.GetInt("scheduler.queue_size"),
			JobTimeout:    v.GetDuration("scheduler.job_timeout"),
			RetryAttempts: v.GetInt("scheduler.retry_attempts"),
			RetryDelay:    v.GetDuration("scheduler.retry_delay"),
		},
		Storage: StorageConfig{
			Enabled:      v.GetBool("storage.enabled"),
			Endpoint:     v.GetString("storage.endpoint"),
			Region:       v.GetString("storage.region"),
			Bucket:       v.GetString("storage.bucket"),
			AccessKey:    v.GetString("storage.access_key"),
			SecretKey:    v.GetString("storage.secret_key"),
			UseSSL:       v.GetBool("storage.use_ssl"),
			UsePathStyle: v.GetBool("storage.use_path_style"),
			Prefix:       v.GetString("storage.prefix"),
		},
		Swagger: SwaggerConfig{
			Enabled: v.GetBool("swagger.enabled"),
		},
		Telemetry: TelemetryConfig{
			Enabled:           v.GetBool("telemetry.enabled"),
			CollectorEndpoint: v.GetString("telemetry.collector_endpoint"),
			SamplingRatio:     v.GetFloat64("telemetry.sampling_ratio"),
			ServiceName:       v.GetString("telemetry.service_name"),
			Insecure:          v.GetBool("telemetry.insecure"),
			MetricsEnabled:    v.GetBool("telemetry.metrics_enabled"),
			MetricsInterval:   v.GetDuration("telemetry.metrics_interval"),
			LogsEnabled:       v.GetBool("telemetry.logs_enabled"),
			DBTraceEnabled:    v.GetBool("telemetry.db_trace_enabled"),
			ProfilingEnabled:  v.GetBool("telemetry.profiling_enabled"),
			ProfilerAddress:   v.GetString("telemetry.profiler_address"),
		},
		Marketplaces: loadMarketplaces(v),
	}

	applyDefaults(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// loadMarketplaces reads the marketplaces.<id> tables. IDs listed in
// connector.enabled_marketplaces are read too so a marketplace can be
// configured from environment variables alone.
func loadMarketplaces(v *viper.Viper) map[string]MarketplaceConfig {
	ids := map[string]struct{}{}
	for id := range v.GetStringMap("marketplaces") {
		ids[strings.ToLower(id)] = struct{}{}
	}
	for _, id := range v.GetStringSlice("connector.enabled_marketplaces") {
		if id = strings.ToLower(strings.TrimSpace(id)); id != "" {
			ids[id] = struct{}{}
		}
	}

	out := make(map[string]MarketplaceConfig, len(ids))
	for id := range ids {
		key := "marketplaces." + id + "."
		out[id] = MarketplaceConfig{
			ID:                  id,
			AuthType:            v.GetString(key + "auth_type"),
			Adapter:             v.GetString(key + "adapter"),
			ClientID:            v.GetString(key + "client_id"),
			ClientSecret:        v.GetString(key + "client_secret"),
			Scopes:              v.GetStringSlice(key + "scopes"),
			AuthURL:             v.GetString(key + "auth_url"),
			TokenURL:            v.GetString(key + "token_url"),
			RevokeURL:           v.GetString(key + "revoke_url"),
			ProfileURL:          v.GetString(key + "profile_url"),
			WebhookSubscribeURL: v.GetString(key + "webhook_subscribe_url"),
			AuthStyle:           v.GetString(key + "auth_style"),
			APIBaseURL:          v.GetString(key + "api_base_url"),
			RequiredKeyFields:   v.GetStringSlice(key + "required_key_fields"),
			IsSandbox:           v.GetBool(key + "is_sandbox"),
			Timeout:             v.GetDuration(key + "timeout"),
		}
	}
	return out
}

// applyDefaults sets default values for any empty config fields
func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "marketplace-connector"
	}
	if cfg.App.Env == "" {
		cfg.App.Env = "development"
	}
	if cfg.App.Port == "" {
		cfg.App.Port = "8080"
	}
	if cfg.Database.Host == "" {
		cfg.Database.Host = "localhost"
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.User == "" {
		cfg.Database.User = "postgres"
	}
	if cfg.Database.DBName == "" {
		cfg.Database.DBName = "erp"
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 25
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Database.ConnMaxLifetime == 0 {
		cfg.Database.ConnMaxLifetime = 60
	}
	if cfg.Database.ConnMaxIdleTime == 0 {
		cfg.Database.ConnMaxIdleTime = 30
	}
	if cfg.Redis.Host == "" {
		cfg.Redis.Host = "localhost"
	}
	if cfg.Redis.Port == 0 {
		cfg.Redis.Port = 6379
	}
	if cfg.JWT.Issuer == "" {
		cfg.JWT.Issuer = "erp-backend"
	}
	if cfg.JWT.TokenExpiration == 0 {
		cfg.JWT.TokenExpiration = 15 * time.Minute
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "console"
	}
	if cfg.Log.Output == "" {
		cfg.Log.Output = "stdout"
	}
	if cfg.HTTP.ReadTimeout == 0 {
		cfg.HTTP.ReadTimeout = 15 * time.Second
	}
	if cfg.HTTP.WriteTimeout == 0 {
		cfg.HTTP.WriteTimeout = 30 * time.Second
	}
	if cfg.HTTP.IdleTimeout == 0 {
		cfg.HTTP.IdleTimeout = 60 * time.Second
	}
	if cfg.HTTP.MaxHeaderBytes == 0 {
		cfg.HTTP.MaxHeaderBytes = 1 << 20 // 1MB
	}
	if cfg.HTTP.MaxBodySize == 0 {
		cfg.HTTP.MaxBodySize = 1 << 20 // 1MB
	}
	if len(cfg.HTTP.CORSAllowMethods) == 0 {
		cfg.HTTP.CORSAllowMethods = []string{"GET", "POST", "OPTIONS"}
	}
	if len(cfg.HTTP.CORSAllowHeaders) == 0 {
		cfg.HTTP.CORSAllowHeaders = []string{"Content-Type", "Authorization", "X-Request-ID", "X-Tenant-ID"}
	}
	if cfg.Connector.RedirectURL == "" {
		cfg.Connector.RedirectURL = "http://localhost:" + cfg.App.Port + "/oauth/callback"
	}
	if cfg.Connector.PublicBaseURL == "" {
		cfg.Connector.PublicBaseURL = "http://localhost:" + cfg.App.Port
	}
	if cfg.Connector.WebhookPath == "" {
		cfg.Connector.WebhookPath = "/api/v1/webhooks"
	}
	if cfg.Connector.ProviderTimeout == 0 {
		cfg.Connector.ProviderTimeout = 15 * time.Second
	}
	if cfg.Connector.StateBackend == "" {
		cfg.Connector.StateBackend = "memory"
	}
	if cfg.Connector.LockBackend == "" {
		cfg.Connector.LockBackend = "memory"
	}
	if cfg.Connector.LockTTL == 0 {
		cfg.Connector.LockTTL = 30 * time.Second
	}
	if cfg.Connector.RefreshAhead == 0 {
		cfg.Connector.RefreshAhead = 10 * time.Minute
	}
	if cfg.Connector.RefreshSweepInterval == 0 {
		cfg.Connector.RefreshSweepInterval = 5 * time.Minute
	}
	if cfg.Connector.WebhookDedupTTL == 0 {
		cfg.Connector.WebhookDedupTTL = 24 * time.Hour
	}
	if cfg.Window.PollInterval == 0 {
		cfg.Window.PollInterval = time.Second
	}
	if cfg.Window.Timeout == 0 {
		cfg.Window.Timeout = 10 * time.Minute
	}
	if cfg.Window.Width == 0 {
		cfg.Window.Width = 600
	}
	if cfg.Window.Height == 0 {
		cfg.Window.Height = 700
	}
	if cfg.Window.ScreenWidth == 0 {
		cfg.Window.ScreenWidth = 1920
	}
	if cfg.Window.ScreenHeight == 0 {
		cfg.Window.ScreenHeight = 1080
	}
	// State must outlive the consent window so a late redirect can still be exchanged
	if cfg.Connector.StateTTL == 0 {
		cfg.Connector.StateTTL = cfg.Window.Timeout + time.Minute
	}
	if cfg.Client.BaseURL == "" {
		cfg.Client.BaseURL = "http://localhost:" + cfg.App.Port
	}
	if cfg.Client.Timeout == 0 {
		cfg.Client.Timeout = 30 * time.Second
	}
	if cfg.Scheduler.Workers == 0 {
		cfg.Scheduler.Workers = 2
	}
	if cfg.Scheduler.QueueSize == 0 {
		cfg.Scheduler.QueueSize = 100
	}
	if cfg.Scheduler.JobTimeout == 0 {
		cfg.Scheduler.JobTimeout = time.Minute
	}
	if cfg.Scheduler.RetryAttempts == 0 {
		cfg.Scheduler.RetryAttempts = 5
	}
	if cfg.Scheduler.RetryDelay == 0 {
		cfg.Scheduler.RetryDelay = 30 * time.Second
	}
	if cfg.Storage.Region == "" {
		cfg.Storage.Region = "us-east-1"
	}
	if cfg.Storage.Prefix == "" {
		cfg.Storage.Prefix = "webhooks"
	}
	if cfg.Telemetry.CollectorEndpoint == "" {
		cfg.Telemetry.CollectorEndpoint = "localhost:4317"
	}
	if cfg.Telemetry.SamplingRatio == 0 {
		cfg.Telemetry.SamplingRatio = 1.0
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = cfg.App.Name
	}
	if cfg.Telemetry.MetricsInterval == 0 {
		cfg.Telemetry.MetricsInterval = 60 * time.Second
	}

	for id, m := range cfg.Marketplaces {
		if m.Adapter == "" {
			switch id {
			case "taobao", "douyin":
				m.Adapter = id
			default:
				m.Adapter = "oauth2"
			}
		}
		if m.AuthType == "" {
			if m.Adapter == "taobao" {
				m.AuthType = "apikey"
			} else {
				m.AuthType = "oauth"
			}
		}
		if m.Timeout == 0 {
			m.Timeout = cfg.Connector.ProviderTimeout
		}
		cfg.Marketplaces[id] = m
	}
}

// validate performs validation on the configuration
func (c *Config) validate() error {
	if c.Database.MaxOpenConns <= 0 {
		return fmt.Errorf("database.max_open_conns must be positive")
	}
	if c.Database.MaxIdleConns < 0 {
		return fmt.Errorf("database.max_idle_conns cannot be negative")
	}
	if c.Database.MaxIdleConns > c.Database.MaxOpenConns {
		return fmt.Errorf("database.max_idle_conns (%d) cannot exceed database.max_open_conns (%d)",
			c.Database.MaxIdleConns, c.Database.MaxOpenConns)
	}

	if err := validateBackend("connector.state_backend", c.Connector.StateBackend); err != nil {
		return err
	}
	if err := validateBackend("connector.lock_backend", c.Connector.LockBackend); err != nil {
		return err
	}
	if c.Connector.StateTTL < c.Window.Timeout {
		return fmt.Errorf("connector.state_ttl (%s) must not be shorter than window.timeout (%s)",
			c.Connector.StateTTL, c.Window.Timeout)
	}
	if c.Window.PollInterval >= c.Window.Timeout {
		return fmt.Errorf("window.poll_interval must be shorter than window.timeout")
	}
	if _, err := url.ParseRequestURI(c.Connector.RedirectURL); err != nil {
		return fmt.Errorf("connector.redirect_url is invalid: %w", err)
	}

	for _, id := range c.MarketplaceIDs() {
		if err := c.Marketplaces[id].validate(); err != nil {
			return err
		}
	}

	if c.App.Env == "production" {
		if len(c.JWT.Secret) < 32 {
			return fmt.Errorf("jwt.secret must be at least 32 characters in production")
		}
		if c.Database.Password == "" {
			return fmt.Errorf("database.password is required in production")
		}
		if c.Database.SSLMode == "disable" {
			return fmt.Errorf("database.sslmode cannot be 'disable' in production")
		}
		if len(c.Connector.EncryptionKey) < 32 {
			return fmt.Errorf("connector.encryption_key must be at least 32 characters in production")
		}
		if !strings.HasPrefix(c.Connector.RedirectURL, "https://") {
			return fmt.Errorf("connector.redirect_url must use https in production")
		}
		for _, origin := range c.HTTP.CORSAllowOrigins {
			if origin == "*" {
				return fmt.Errorf("cors_allow_origins cannot be '*' in production (use specific origins)")
			}
		}
	}

	if c.Storage.Enabled && (c.Storage.Bucket == "" || c.Storage.AccessKey == "" || c.Storage.SecretKey == "") {
		return fmt.Errorf("storage.bucket, access_key and secret_key are required when storage is enabled")
	}

	if c.Telemetry.SamplingRatio < 0.0 || c.Telemetry.SamplingRatio > 1.0 {
		return fmt.Errorf("telemetry.sampling_ratio must be between 0.0 and 1.0, got %f", c.Telemetry.SamplingRatio)
	}

	return nil
}

func validateBackend(key, value string) error {
	switch value {
	case "memory", "redis":
		return nil
	default:
		return fmt.Errorf("%s must be 'memory' or 'redis', got %q", key, value)
	}
}

func (m MarketplaceConfig) validate() error {
	switch m.AuthType {
	case "oauth":
		if m.ClientID == "" {
			return fmt.Errorf("marketplaces.%s.client_id is required for oauth", m.ID)
		}
		if m.Adapter == "oauth2" && (m.AuthURL == "" || m.TokenURL == "") {
			return fmt.Errorf("marketplaces.%s.auth_url and token_url are required for oauth", m.ID)
		}
	case "apikey":
	default:
		return fmt.Errorf("marketplaces.%s.auth_type must be 'oauth' or 'apikey', got %q", m.ID, m.AuthType)
	}
	switch m.Adapter {
	case "oauth2", "taobao", "douyin":
	default:
		return fmt.Errorf("marketplaces.%s.adapter %q is not supported", m.ID, m.Adapter)
	}
	return nil
}

// MarketplaceIDs returns the configured marketplace IDs in sorted order
func (c *Config) MarketplaceIDs() []string {
	ids := make([]string, 0, len(c.Marketplaces))
	for id := range c.Marketplaces {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// IsProduction reports whether the app runs in production
func (c *Config) IsProduction() bool {
	return c.App.Env == "production"
}

// DSN returns the database connection string with properly escaped values
func (d *DatabaseConfig) DSN() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(d.User, d.Password),
		Host:   fmt.Sprintf("%s:%d", d.Host, d.Port),
		Path:   d.DBName,
	}
	q := u.Query()
	q.Set("sslmode", d.SSLMode)
	u.RawQuery = q.Encode()
	return u.String()
}
