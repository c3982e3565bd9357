// Package config loads the server configuration from the environment and an
// optional .env file using Viper.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/MrEthical07/authgate"
	"github.com/MrEthical07/authgate/identity"
)

// Database drivers accepted in DB_DRIVER.
const (
	DriverPostgres = identity.DriverPostgres
	DriverSQLite   = identity.DriverSQLite
	DriverMemory   = "memory"
)

// AppConfig is everything cmd/authgate needs to start.
type AppConfig struct {
	HTTPAddr        string        `mapstructure:"HTTP_ADDR"`
	ReadTimeout     time.Duration `mapstructure:"HTTP_READ_TIMEOUT"`
	WriteTimeout    time.Duration `mapstructure:"HTTP_WRITE_TIMEOUT"`
	IdleTimeout     time.Duration `mapstructure:"HTTP_IDLE_TIMEOUT"`
	ShutdownTimeout time.Duration `mapstructure:"SHUTDOWN_TIMEOUT"`
	// TrustProxy takes client IPs from X-Forwarded-For. Enable only behind
	// a proxy that overwrites the header.
	TrustProxy bool `mapstructure:"TRUST_PROXY"`

	RedisURL    string `mapstructure:"REDIS_URL"`
	RedisPrefix string `mapstructure:"REDIS_PREFIX"`

	DBDriver    string `mapstructure:"DB_DRIVER"`
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	AutoMigrate bool   `mapstructure:"AUTO_MIGRATE"`

	LogFormat string `mapstructure:"LOG_FORMAT"`
	LogLevel  string `mapstructure:"LOG_LEVEL"`

	AppBaseURL   string `mapstructure:"APP_BASE_URL"`
	MailProvider string `mapstructure:"MAIL_PROVIDER"`
	MailFrom     string `mapstructure:"MAIL_FROM"`
	ResendAPIKey string `mapstructure:"RESEND_API_KEY"`

	MetricsEnabled  bool   `mapstructure:"METRICS_ENABLED"`
	MetricsExporter string `mapstructure:"METRICS_EXPORTER"`

	// OTLPEndpoint is the collector for METRICS_EXPORTER=otel, host:port or URL.
	OTLPEndpoint string `mapstructure:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	OTLPInsecure bool   `mapstructure:"OTEL_EXPORTER_OTLP_INSECURE"`

	AccessTokenSecret  string        `mapstructure:"ACCESS_TOKEN_SECRET"`
	RefreshTokenSecret string        `mapstructure:"REFRESH_TOKEN_SECRET"`
	AccessTokenTTL     time.Duration `mapstructure:"ACCESS_TOKEN_TTL"`
	RefreshTokenTTL    time.Duration `mapstructure:"REFRESH_TOKEN_TTL"`
	JWTIssuer          string        `mapstructure:"JWT_ISSUER"`
	JWTAudience        string        `mapstructure:"JWT_AUDIENCE"`
	SessionTTL         time.Duration `mapstructure:"SESSION_TTL"`
	RotateRefresh      bool          `mapstructure:"ROTATE_REFRESH_TOKENS"`
	CSRFTTL            time.Duration `mapstructure:"CSRF_TTL"`
	VerificationTTL    time.Duration `mapstructure:"VERIFICATION_TTL"`
	ResetTTL           time.Duration `mapstructure:"RESET_TTL"`
	IdentityCacheTTL   time.Duration `mapstructure:"IDENTITY_CACHE_TTL"`
	RateLimitEnabled   bool          `mapstructure:"RATE_LIMIT_ENABLED"`
	PasswordAlgorithm  string        `mapstructure:"PASSWORD_ALGORITHM"`
	BcryptCost         int           `mapstructure:"BCRYPT_COST"`
	AuditEnabled       bool          `mapstructure:"AUDIT_ENABLED"`

	CookieSecure   bool   `mapstructure:"COOKIE_SECURE"`
	CookieDomain   string `mapstructure:"COOKIE_DOMAIN"`
	CookieSameSite string `mapstructure:"COOKIE_SAMESITE"`
}

// Load reads .env from the working directory (if present), then the
// environment. Environment variables win over the file.
func Load() (*AppConfig, error) {
	return LoadFile(".env")
}

// LoadFile is Load with an explicit env file. A missing file is ignored.
func LoadFile(envFile string) (*AppConfig, error) {
	v := viper.New()

	if envFile != "" {
		v.SetConfigFile(envFile)
		v.SetConfigType("env")
		_ = v.ReadInConfig()
	}
	v.AutomaticEnv()

	def := authgate.DefaultConfig()

	v.SetDefault("HTTP_ADDR", ":8080")
	v.SetDefault("HTTP_READ_TIMEOUT", 10*time.Second)
	v.SetDefault("HTTP_WRITE_TIMEOUT", 15*time.Second)
	v.SetDefault("HTTP_IDLE_TIMEOUT", 60*time.Second)
	v.SetDefault("SHUTDOWN_TIMEOUT", 15*time.Second)
	v.SetDefault("TRUST_PROXY", false)
	v.SetDefault("REDIS_URL", "redis://localhost:6379/0")
	v.SetDefault("REDIS_PREFIX", def.Session.RedisPrefix)
	v.SetDefault("DB_DRIVER", DriverSQLite)
	v.SetDefault("DATABASE_URL", "authgate.db")
	v.SetDefault("AUTO_MIGRATE", true)
	v.SetDefault("LOG_FORMAT", "json")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("APP_BASE_URL", "http://localhost:5173")
	v.SetDefault("MAIL_PROVIDER", "log")
	v.SetDefault("MAIL_FROM", "")
	v.SetDefault("RESEND_API_KEY", "")
	v.SetDefault("METRICS_ENABLED", true)
	v.SetDefault("METRICS_EXPORTER", "prometheus")
	v.SetDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	v.SetDefault("OTEL_EXPORTER_OTLP_INSECURE", false)
	v.SetDefault("ACCESS_TOKEN_SECRET", "")
	v.SetDefault("REFRESH_TOKEN_SECRET", "")
	v.SetDefault("ACCESS_TOKEN_TTL", def.JWT.AccessTTL)
	v.SetDefault("REFRESH_TOKEN_TTL", def.JWT.RefreshTTL)
	v.SetDefault("JWT_ISSUER", def.JWT.Issuer)
	v.SetDefault("JWT_AUDIENCE", def.JWT.Audience)
	v.SetDefault("SESSION_TTL", def.Session.TTL)
	v.SetDefault("ROTATE_REFRESH_TOKENS", def.Session.RotateRefreshTokens)
	v.SetDefault("CSRF_TTL", def.CSRF.TTL)
	v.SetDefault("VERIFICATION_TTL", def.Verification.RegistrationTTL)
	v.SetDefault("RESET_TTL", def.Verification.ResetTTL)
	v.SetDefault("IDENTITY_CACHE_TTL", def.IdentityCache.TTL)
	v.SetDefault("RATE_LIMIT_ENABLED", def.RateLimit.Enabled)
	v.SetDefault("PASSWORD_ALGORITHM", string(def.Password.Algorithm))
	v.SetDefault("BCRYPT_COST", def.Password.BcryptCost)
	v.SetDefault("AUDIT_ENABLED", false)
	v.SetDefault("COOKIE_SECURE", true)
	v.SetDefault("COOKIE_DOMAIN", "")
	v.SetDefault("COOKIE_SAMESITE", "strict")

	var cfg AppConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *AppConfig) validate() error {
	if c.AccessTokenSecret == "" {
		return errors.New("config: ACCESS_TOKEN_SECRET must be set")
	}
	if c.RefreshTokenSecret == "" {
		return errors.New("config: REFRESH_TOKEN_SECRET must be set")
	}
	if c.HTTPAddr == "" {
		return errors.New("config: HTTP_ADDR must be set")
	}
	switch c.DBDriver {
	case DriverPostgres, DriverSQLite:
		if c.DatabaseURL == "" {
			return fmt.Errorf("config: DATABASE_URL must be set for DB_DRIVER=%s", c.DBDriver)
		}
	case DriverMemory:
	default:
		return fmt.Errorf("config: unsupported DB_DRIVER %q (postgres, sqlite, memory)", c.DBDriver)
	}
	switch c.MailProvider {
	case "log":
	case "resend":
		if c.ResendAPIKey == "" || c.MailFrom == "" {
			return errors.New("config: MAIL_PROVIDER=resend needs RESEND_API_KEY and MAIL_FROM")
		}
	default:
		return fmt.Errorf("config: unsupported MAIL_PROVIDER %q (log, resend)", c.MailProvider)
	}
	switch c.MetricsExporter {
	case "prometheus", "otel":
	default:
		return fmt.Errorf("config: unsupported METRICS_EXPORTER %q (prometheus, otel)", c.MetricsExporter)
	}
	if _, err := parseSameSite(c.CookieSameSite); err != nil {
		return err
	}
	if _, err := c.SlogLevel(); err != nil {
		return err
	}

	if _, err := c.Auth(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// Auth builds and validates the engine configuration.
func (c *AppConfig) Auth() (authgate.Config, error) {
	cfg := authgate.DefaultConfig()

	cfg.JWT.AccessSecret = []byte(c.AccessTokenSecret)
	cfg.JWT.RefreshSecret = []byte(c.RefreshTokenSecret)
	cfg.JWT.AccessTTL = c.AccessTokenTTL
	cfg.JWT.RefreshTTL = c.RefreshTokenTTL
	cfg.JWT.Issuer = c.JWTIssuer
	cfg.JWT.Audience = c.JWTAudience

	cfg.Session.RedisPrefix = c.RedisPrefix
	cfg.Session.TTL = c.SessionTTL
	cfg.Session.RotateRefreshTokens = c.RotateRefresh
	cfg.Session.RevokeOnRefreshReuse = c.RotateRefresh

	cfg.CSRF.TTL = c.CSRFTTL
	cfg.Verification.RegistrationTTL = c.VerificationTTL
	cfg.Verification.ResetTTL = c.ResetTTL
	cfg.Verification.AppBaseURL = c.AppBaseURL
	cfg.IdentityCache.TTL = c.IdentityCacheTTL
	cfg.IdentityCache.Enabled = c.IdentityCacheTTL > 0
	cfg.RateLimit.Enabled = c.RateLimitEnabled

	cfg.Password.Algorithm = authgate.PasswordAlgorithm(c.PasswordAlgorithm)
	cfg.Password.BcryptCost = c.BcryptCost
	cfg.Audit.Enabled = c.AuditEnabled
	cfg.Metrics.Enabled = c.MetricsEnabled

	cfg.Cookies.Secure = c.CookieSecure
	cfg.Cookies.Domain = c.CookieDomain
	sameSite, err := parseSameSite(c.CookieSameSite)
	if err != nil {
		return authgate.Config{}, err
	}
	cfg.Cookies.SameSite = sameSite

	if err := cfg.Validate(); err != nil {
		return authgate.Config{}, err
	}
	return cfg, nil
}

// SlogLevel parses LOG_LEVEL.
func (c *AppConfig) SlogLevel() (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("config: invalid LOG_LEVEL %q", c.LogLevel)
	}
	return lvl, nil
}

func parseSameSite(v string) (http.SameSite, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "strict", "":
		return http.SameSiteStrictMode, nil
	case "lax":
		return http.SameSiteLaxMode, nil
	case "none":
		return http.SameSiteNoneMode, nil
	default:
		return 0, fmt.Errorf("config: invalid COOKIE_SAMESITE %q (strict, lax, none)", v)
	}
}
