package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
)

var globalConfig *Config

// Config holds all environment backed configuration for the chat API.
type Config struct {
	// HTTP Server
	HTTPPort           int           `env:"HTTP_PORT" envDefault:"8080"`
	ShutdownTimeout    time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"15s"`
	CORSAllowedOrigins []string      `env:"CORS_ALLOWED_ORIGINS" envSeparator:"," envDefault:"*"`
	EnableSwagger      bool          `env:"ENABLE_SWAGGER" envDefault:"true"`

	// Database
	DatabaseURL           string        `env:"DATABASE_URL"`
	DatabaseRestrictedURL string        `env:"DATABASE_RESTRICTED_URL"`
	DBReadReplicaDSN      string        `env:"DB_READ_REPLICA_DSN"`
	DBMaxIdleConns        int           `env:"DB_MAX_IDLE_CONNS" envDefault:"5"`
	DBMaxOpenConns        int           `env:"DB_MAX_OPEN_CONNS" envDefault:"20"`
	DBConnMaxLifetime     time.Duration `env:"DB_CONN_MAX_LIFETIME" envDefault:"30m"`
	AutoMigrate           bool          `env:"AUTO_MIGRATE" envDefault:"true"`

	// Auth
	EnableAuth          bool          `env:"ENABLE_AUTH" envDefault:"true"`
	AnonymousUserID     string        `env:"ANONYMOUS_USER_ID" envDefault:"anonymous-user"`
	AuthJWTSecret       string        `env:"AUTH_JWT_SECRET"`
	AuthJWKSURL         string        `env:"AUTH_JWKS_URL"`
	AuthIssuer          string        `env:"AUTH_ISSUER"`
	AuthAudience        string        `env:"AUTH_AUDIENCE" envDefault:"authenticated"`
	RefreshJWKSInterval time.Duration `env:"JWKS_REFRESH_INTERVAL" envDefault:"5m"`

	// Model providers
	OpenAIAPIKey            string        `env:"OPENAI_API_KEY"`
	OpenAIBaseURL           string        `env:"OPENAI_BASE_URL" envDefault:"https://api.openai.com/v1"`
	AnthropicAPIKey         string        `env:"ANTHROPIC_API_KEY"`
	GoogleAPIKey            string        `env:"GOOGLE_GENERATIVE_AI_API_KEY"`
	OpenAICompatibleAPIKey  string        `env:"OPENAI_COMPATIBLE_API_KEY"`
	OpenAICompatibleBaseURL string        `env:"OPENAI_COMPATIBLE_API_BASE_URL"`
	AzureAPIKey             string        `env:"AZURE_API_KEY"`
	AzureResourceName       string        `env:"AZURE_RESOURCE_NAME"`
	AzureBaseURL            string        `env:"AZURE_BASE_URL"`
	AzureAPIVersion         string        `env:"AZURE_API_VERSION"`
	GatewayAPIKey           string        `env:"AI_GATEWAY_API_KEY"`
	ModelsConfigFile        string        `env:"MODELS_CONFIG_FILE" envDefault:"config/models.yml"`
	ModelRequestTimeout     time.Duration `env:"MODEL_REQUEST_TIMEOUT" envDefault:"5m"`
	RelatedQuestionsModel   string        `env:"RELATED_QUESTIONS_MODEL"`
	TitleModel              string        `env:"TITLE_MODEL"`
	Models                  []ModelEntry  `env:"-"`

	// Object storage (Cloudflare R2 or any S3-compatible store)
	R2Endpoint        string `env:"R2_ENDPOINT"`
	R2AccountID       string `env:"R2_ACCOUNT_ID"`
	R2AccessKeyID     string `env:"R2_ACCESS_KEY_ID"`
	R2SecretAccessKey string `env:"R2_SECRET_ACCESS_KEY"`
	R2BucketName      string `env:"R2_BUCKET_NAME"`
	R2PublicURL       string `env:"R2_PUBLIC_URL"`
	R2Region          string `env:"R2_REGION" envDefault:"auto"`

	// Billing
	PaystackSecretKey               string        `env:"PAYSTACK_SECRET_KEY"`
	PaystackBaseURL                 string        `env:"PAYSTACK_BASE_URL" envDefault:"https://api.paystack.co"`
	PaystackPlanCodeKES600          string        `env:"PAYSTACK_PLAN_CODE_KES_600"`
	SiteURL                         string        `env:"SITE_URL" envDefault:"http://localhost:3000"`
	PaymentReconcileIntervalMinutes int           `env:"PAYMENT_RECONCILE_INTERVAL_MINUTES" envDefault:"10"`
	BillingStatusCacheTTL           time.Duration `env:"BILLING_STATUS_CACHE_TTL" envDefault:"60s"`

	// Redis
	RedisURL string `env:"REDIS_URL"`

	// Observability / Logging
	HTTPTimeout       time.Duration `env:"HTTP_TIMEOUT" envDefault:"30s"`
	OTLPEndpoint      string        `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	OTLPHeaders       string        `env:"OTEL_EXPORTER_OTLP_HEADERS"`
	ServiceName       string        `env:"SERVICE_NAME" envDefault:"bastion-api"`
	ServiceNamespace  string        `env:"SERVICE_NAMESPACE" envDefault:"bastion"`
	Environment       string        `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel          string        `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat         string        `env:"LOG_FORMAT" envDefault:"console"`
	TelemetryPIILevel string        `env:"TELEMETRY_PII_LEVEL" envDefault:"hashed"`

	// Internal
	EnvReloadedAt time.Time
}

// Load parses environment variables into Config, loads the model catalog and validates the result.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	models, err := LoadModelCatalog(cfg.ModelsConfigFile)
	if err != nil {
		return nil, fmt.Errorf("load model catalog: %w", err)
	}
	cfg.Models = models

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	cfg.LogLevel = strings.ToLower(cfg.LogLevel)
	cfg.LogFormat = strings.ToLower(cfg.LogFormat)
	cfg.EnvReloadedAt = time.Now()

	globalConfig = cfg

	return cfg, nil
}

// Validate checks cross-field requirements that struct tags cannot express.
func (c *Config) Validate() error {
	if c.DatabaseDSN() == "" {
		return errors.New("either DATABASE_RESTRICTED_URL or DATABASE_URL must be provided")
	}
	if c.EnableAuth && c.AuthJWTSecret == "" && c.AuthJWKSURL == "" {
		return errors.New("ENABLE_AUTH requires AUTH_JWT_SECRET or AUTH_JWKS_URL")
	}
	if c.AuthJWKSURL != "" {
		if _, err := url.ParseRequestURI(c.AuthJWKSURL); err != nil {
			return fmt.Errorf("invalid AUTH_JWKS_URL: %w", err)
		}
	}
	if c.R2PublicURL != "" {
		if _, err := url.ParseRequestURI(c.R2PublicURL); err != nil {
			return fmt.Errorf("invalid R2_PUBLIC_URL: %w", err)
		}
	}
	if c.PaymentReconcileIntervalMinutes <= 0 {
		return errors.New("PAYMENT_RECONCILE_INTERVAL_MINUTES must be positive")
	}
	return nil
}

// DatabaseDSN prefers the restricted role connection string when both are configured.
func (c *Config) DatabaseDSN() string {
	if dsn := strings.TrimSpace(c.DatabaseRestrictedURL); dsn != "" {
		return dsn
	}
	return strings.TrimSpace(c.DatabaseURL)
}

// StorageEnabled reports whether object storage credentials are complete.
func (c *Config) StorageEnabled() bool {
	return c.R2BucketName != "" && c.R2AccessKeyID != "" && c.R2SecretAccessKey != "" &&
		(c.R2Endpoint != "" || c.R2AccountID != "")
}

// StorageEndpoint returns the S3 API endpoint, deriving the R2 account endpoint when needed.
func (c *Config) StorageEndpoint() string {
	if c.R2Endpoint != "" {
		return strings.TrimRight(c.R2Endpoint, "/")
	}
	if c.R2AccountID != "" {
		return fmt.Sprintf("https://%s.r2.cloudflarestorage.com", c.R2AccountID)
	}
	return ""
}

// GetGlobal returns the last configuration produced by Load.
// Deprecated: Use dependency injection with Load() instead.
func GetGlobal() *Config {
	return globalConfig
}

var Version = "dev"

func IsDev() bool {
	return strings.HasPrefix(Version, "dev")
}
