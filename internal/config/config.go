package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	devJWTSecret        = "dev-secret"
	devActivationSecret = "dev-activation-secret"
)

// Config aggregates runtime configuration for the service.
type Config struct {
	App        AppConfig
	Postgres   PostgresConfig
	Redis      RedisConfig
	Logger     LoggerConfig
	Auth       AuthConfig
	Session    SessionConfig
	Activation ActivationConfig
	Site       SiteConfig
	SMTP       SMTPConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	Version               string
	RequestTimeoutSeconds int
}

// PostgresConfig holds DB connection values.
type PostgresConfig struct {
	DSN            string
	MaxConns       int32
	MinConns       int32
	RunMigrations  bool
	ConnMaxIdleSec int32
	ConnMaxLifeSec int32
}

// RedisConfig holds Redis connection values.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string
}

// AuthConfig defines authentication parameters.
type AuthConfig struct {
	JWTSecret  string
	BcryptCost int
}

// SessionConfig controls how authenticated sessions are stored and carried.
type SessionConfig struct {
	TTLMinutes   int
	CookieName   string
	CookieSecure bool
}

// ActivationConfig controls account activation tokens.
type ActivationConfig struct {
	Secret          string
	FallbackSecrets []string
	TTLDays         int
}

// SiteConfig sets the scheme and domain used in emailed links.
// An empty Domain falls back to the request host when it is in AllowedHosts.
type SiteConfig struct {
	Scheme       string
	Domain       string
	AllowedHosts []string
}

// AllowsHost reports whether host, without port, may stand in for Domain.
func (s SiteConfig) AllowsHost(host string) bool {
	for _, allowed := range s.AllowedHosts {
		if strings.EqualFold(allowed, host) {
			return true
		}
	}
	return false
}

// SMTPConfig holds outbound mail settings. An empty Host selects the log transport.
type SMTPConfig struct {
	Host           string
	Port           int
	Username       string
	Password       string
	From           string
	FromName       string
	UseSSL         bool
	TimeoutSeconds int
}

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	maxConns := int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10))
	minConns := int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2))
	runMigrations := getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true)
	connMaxIdle := int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30))
	connMaxLife := int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300))

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "account-service"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
		},
		Postgres: PostgresConfig{
			DSN:            os.Getenv("POSTGRES_DSN"),
			MaxConns:       maxConns,
			MinConns:       minConns,
			RunMigrations:  runMigrations,
			ConnMaxIdleSec: connMaxIdle,
			ConnMaxLifeSec: connMaxLife,
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "127.0.0.1:6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Auth: AuthConfig{
			JWTSecret:  getEnv("AUTH_JWT_SECRET", devJWTSecret),
			BcryptCost: getEnvAsInt("AUTH_BCRYPT_COST", 12),
		},
		Session: SessionConfig{
			TTLMinutes:   getEnvAsInt("SESSION_TTL_MINUTES", 60*24*14),
			CookieName:   getEnv("SESSION_COOKIE_NAME", "session"),
			CookieSecure: getEnvAsBool("SESSION_COOKIE_SECURE", false),
		},
		Activation: ActivationConfig{
			Secret:          getEnv("ACTIVATION_SECRET", devActivationSecret),
			FallbackSecrets: getEnvAsList("ACTIVATION_SECRET_FALLBACKS"),
			TTLDays:         getEnvAsInt("ACTIVATION_TOKEN_TTL_DAYS", 3),
		},
		Site: SiteConfig{
			Scheme:       os.Getenv("SITE_SCHEME"),
			Domain:       os.Getenv("SITE_DOMAIN"),
			AllowedHosts: getEnvAsListOr("SITE_ALLOWED_HOSTS", []string{"localhost", "127.0.0.1"}),
		},
		SMTP: SMTPConfig{
			Host:           os.Getenv("SMTP_HOST"),
			Port:           getEnvAsInt("SMTP_PORT", 587),
			Username:       os.Getenv("SMTP_USERNAME"),
			Password:       os.Getenv("SMTP_PASSWORD"),
			From:           getEnv("SMTP_FROM", "noreply@example.com"),
			FromName:       getEnv("SMTP_FROM_NAME", ""),
			UseSSL:         getEnvAsBool("SMTP_USE_SSL", false),
			TimeoutSeconds: getEnvAsInt("SMTP_TIMEOUT_SECONDS", 30),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations that are unsafe to run.
func (c *Config) Validate() error {
	if c.Activation.TTLDays <= 0 {
		return errors.New("ACTIVATION_TOKEN_TTL_DAYS must be positive")
	}
	if c.Session.TTLMinutes <= 0 {
		return errors.New("SESSION_TTL_MINUTES must be positive")
	}
	if c.Session.CookieName == "" {
		return errors.New("SESSION_COOKIE_NAME must not be empty")
	}
	if c.App.IsProduction() {
		if c.Auth.JWTSecret == devJWTSecret {
			return errors.New("AUTH_JWT_SECRET must be set in production")
		}
		if c.Activation.Secret == devActivationSecret {
			return errors.New("ACTIVATION_SECRET must be set in production")
		}
		if c.Site.Domain == "" {
			return errors.New("SITE_DOMAIN must be set in production")
		}
	}
	return nil
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// IsProduction reports whether the service runs with production settings.
func (a AppConfig) IsProduction() bool {
	return strings.EqualFold(a.Env, "production")
}

// RequestTimeout returns the configured request timeout duration.
func (a AppConfig) RequestTimeout() time.Duration {
	if a.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(a.RequestTimeoutSeconds) * time.Second
}

// TTL returns the session lifetime.
func (s SessionConfig) TTL() time.Duration {
	return time.Duration(s.TTLMinutes) * time.Minute
}

// Addr returns host:port of the SMTP server.
func (s SMTPConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// Timeout returns the dial and send timeout for SMTP.
func (s SMTPConfig) Timeout() time.Duration {
	if s.TimeoutSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(s.TimeoutSeconds) * time.Second
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsListOr(key string, fallback []string) []string {
	if list := getEnvAsList(key); list != nil {
		return list
	}
	return fallback
}

func getEnvAsList(key string) []string {
	val := os.Getenv(key)
	if val == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(val, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
