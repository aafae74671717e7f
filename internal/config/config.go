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

// Config holds all configuration required by the API process and the CLI.
// Values come from the environment; a local .env file is read when present.
type Config struct {
	App      AppConfig
	DB       DBConfig
	Redis    RedisConfig
	Auth     AuthConfig
	Webhooks WebhookConfig
	Stripe   StripeConfig
	Queue    QueueConfig
	Ledger   LedgerConfig
	Sentry   SentryConfig
}

type AppConfig struct {
	Env  string
	Port int

	// URL is the dashboard origin used for redirects and CORS.
	URL         string
	CORSOrigins []string
}

type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string

	// Accepts: disable, require, verify-ca, verify-full
	SSLMode string
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
}

// AuthConfig verifies tokens minted by the managed identity provider.
type AuthConfig struct {
	JWTSecret   string
	JWTIssuer   string
	JWTAudience string
}

type WebhookConfig struct {
	VAPISecret      string
	StripeSecret    string
	TwilioAuthToken string

	// TwilioBaseURL is the public origin Twilio signs against (scheme://host).
	TwilioBaseURL string

	// FunctionTimeout bounds the synchronous in-call function path.
	FunctionTimeout time.Duration

	RateLimitRPS   float64
	RateLimitBurst int
}

type StripeConfig struct {
	SecretKey string
}

type QueueConfig struct {
	// Backend: memory or redis.
	Backend      string
	MaxRetries   int
	RetryBackoff time.Duration
	BatchTimeout time.Duration
}

type LedgerConfig struct {
	// Backend: postgres or redis.
	Backend  string
	RedisTTL time.Duration
}

type SentryConfig struct {
	DSN string
}

const defaultBillingRetryMax = 5

func Load() (Config, error) {
	// Missing .env is the normal case outside local development.
	_ = godotenv.Load()

	c := Config{}
	var parseErrs []error

	c.App.Env = strings.TrimSpace(os.Getenv("APP_ENV"))
	{
		n, err := mustInt("APP_PORT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.App.Port = n
	}
	c.App.URL = strings.TrimRight(strings.TrimSpace(os.Getenv("APP_URL")), "/")
	c.App.CORSOrigins = splitList(os.Getenv("CORS_ORIGINS"))

	c.DB.Host = strings.TrimSpace(os.Getenv("DB_HOST"))
	{
		n, err := mustInt("DB_PORT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.DB.Port = n
	}
	c.DB.User = strings.TrimSpace(os.Getenv("DB_USER"))
	c.DB.Password = os.Getenv("DB_PASSWORD")
	c.DB.Name = strings.TrimSpace(os.Getenv("DB_NAME"))
	c.DB.SSLMode = strings.TrimSpace(os.Getenv("DB_SSLMODE"))

	c.Redis.Host = strings.TrimSpace(os.Getenv("REDIS_HOST"))
	{
		n, err := mustInt("REDIS_PORT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.Redis.Port = n
	}
	c.Redis.Password = os.Getenv("REDIS_PASSWORD")

	c.Auth.JWTSecret = os.Getenv("JWT_SECRET")
	c.Auth.JWTIssuer = strings.TrimSpace(os.Getenv("JWT_ISSUER"))
	c.Auth.JWTAudience = strings.TrimSpace(os.Getenv("JWT_AUDIENCE"))

	c.Webhooks.VAPISecret = os.Getenv("VAPI_WEBHOOK_SECRET")
	c.Webhooks.StripeSecret = os.Getenv("STRIPE_WEBHOOK_SECRET")
	c.Webhooks.TwilioAuthToken = os.Getenv("TWILIO_AUTH_TOKEN")
	c.Webhooks.TwilioBaseURL = strings.TrimRight(strings.TrimSpace(os.Getenv("TWILIO_WEBHOOK_BASE_URL")), "/")
	c.Webhooks.FunctionTimeout = mustDuration("VAPI_FUNCTION_TIMEOUT")
	c.Webhooks.RateLimitRPS = optionalFloat("WEBHOOK_RATE_LIMIT_RPS")
	c.Webhooks.RateLimitBurst = optionalInt("WEBHOOK_RATE_LIMIT_BURST")

	c.Stripe.SecretKey = os.Getenv("STRIPE_SECRET_KEY")

	c.Queue.Backend = strings.TrimSpace(os.Getenv("QUEUE_BACKEND"))
	// Zero is meaningful (dead-letter after the first failed attempt), so the
	// default applies only when the variable is unset.
	c.Queue.MaxRetries = intOr("BILLING_RETRY_MAX", defaultBillingRetryMax)
	c.Queue.RetryBackoff = mustDuration("BILLING_RETRY_BACKOFF")
	c.Queue.BatchTimeout = mustDuration("BILLING_RETRY_BATCH_TIMEOUT")

	c.Ledger.Backend = strings.TrimSpace(os.Getenv("LEDGER_BACKEND"))
	c.Ledger.RedisTTL = mustDuration("LEDGER_REDIS_TTL")

	c.Sentry.DSN = strings.TrimSpace(os.Getenv("SENTRY_DSN"))

	if err := joinErrors(parseErrs); err != nil {
		return Config{}, err
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	c.applyDefaults()
	return c, nil
}

// Validate reports every problem at once. It does not mutate c; defaults
// are applied by Load after validation succeeds.
func (c Config) Validate() error {
	var errs []error

	if c.App.Env == "" {
		errs = append(errs, errors.New("APP_ENV is required"))
	} else if !isValidEnv(c.App.Env) {
		errs = append(errs, fmt.Errorf("APP_ENV must be one of local, dev, staging, production, got %q", c.App.Env))
	}
	if c.App.Port <= 0 || c.App.Port > 65535 {
		errs = append(errs, fmt.Errorf("APP_PORT must be a valid port, got %d", c.App.Port))
	}
	if c.IsProduction() && c.App.URL == "" {
		errs = append(errs, errors.New("APP_URL is required in production"))
	}

	if c.DB.Host == "" {
		errs = append(errs, errors.New("DB_HOST is required"))
	}
	if c.DB.Port <= 0 || c.DB.Port > 65535 {
		errs = append(errs, fmt.Errorf("DB_PORT must be a valid port, got %d", c.DB.Port))
	}
	if c.DB.User == "" {
		errs = append(errs, errors.New("DB_USER is required"))
	}
	if c.DB.Name == "" {
		errs = append(errs, errors.New("DB_NAME is required"))
	}
	if c.DB.SSLMode == "" && c.IsProduction() {
		errs = append(errs, errors.New("DB_SSLMODE is required in production"))
	}
	if c.DB.SSLMode != "" && !isValidSSLMode(c.DB.SSLMode) {
		errs = append(errs, fmt.Errorf("DB_SSLMODE must be one of disable, require, verify-ca, verify-full, got %q", c.DB.SSLMode))
	}

	if c.Redis.Host == "" {
		errs = append(errs, errors.New("REDIS_HOST is required"))
	}
	if c.Redis.Port <= 0 || c.Redis.Port > 65535 {
		errs = append(errs, fmt.Errorf("REDIS_PORT must be a valid port, got %d", c.Redis.Port))
	}

	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	if c.IsProduction() && c.Auth.JWTAudience == "" {
		errs = append(errs, errors.New("JWT_AUDIENCE is required in production"))
	}

	// Signature checks are unconditional, so every secret is required in every env.
	if c.Webhooks.VAPISecret == "" {
		errs = append(errs, errors.New("VAPI_WEBHOOK_SECRET is required"))
	}
	if c.Webhooks.StripeSecret == "" {
		errs = append(errs, errors.New("STRIPE_WEBHOOK_SECRET is required"))
	}
	if c.Webhooks.TwilioAuthToken == "" {
		errs = append(errs, errors.New("TWILIO_AUTH_TOKEN is required"))
	}
	if c.Webhooks.TwilioBaseURL != "" && !strings.HasPrefix(c.Webhooks.TwilioBaseURL, "http") {
		errs = append(errs, fmt.Errorf("TWILIO_WEBHOOK_BASE_URL must be an absolute http(s) URL, got %q", c.Webhooks.TwilioBaseURL))
	}
	if c.Webhooks.RateLimitRPS < 0 || c.Webhooks.RateLimitBurst < 0 {
		errs = append(errs, errors.New("WEBHOOK_RATE_LIMIT_RPS and WEBHOOK_RATE_LIMIT_BURST must not be negative"))
	}

	if c.Stripe.SecretKey == "" && c.IsProduction() {
		errs = append(errs, errors.New("STRIPE_SECRET_KEY is required in production"))
	}

	switch c.Queue.Backend {
	case "", "memory", "redis":
	default:
		errs = append(errs, fmt.Errorf("QUEUE_BACKEND must be memory or redis, got %q", c.Queue.Backend))
	}
	if c.IsProduction() && c.Queue.Backend == "memory" {
		errs = append(errs, errors.New("QUEUE_BACKEND=memory loses pending billing events on restart; use redis in production"))
	}
	if c.Queue.MaxRetries < 0 {
		errs = append(errs, fmt.Errorf("BILLING_RETRY_MAX must not be negative, got %d", c.Queue.MaxRetries))
	}

	switch c.Ledger.Backend {
	case "", "postgres", "redis":
	default:
		errs = append(errs, fmt.Errorf("LEDGER_BACKEND must be postgres or redis, got %q", c.Ledger.Backend))
	}

	return joinErrors(errs)
}

func (c *Config) applyDefaults() {
	if c.DB.SSLMode == "" {
		c.DB.SSLMode = "disable"
	}
	if c.App.URL == "" {
		c.App.URL = "http://localhost:3000"
	}
	if len(c.App.CORSOrigins) == 0 {
		c.App.CORSOrigins = []string{"http://localhost:3000", c.App.URL}
	}
	if c.Webhooks.FunctionTimeout <= 0 {
		c.Webhooks.FunctionTimeout = 4 * time.Second
	}
	if c.Webhooks.RateLimitRPS == 0 {
		c.Webhooks.RateLimitRPS = 50
	}
	if c.Webhooks.RateLimitBurst == 0 {
		c.Webhooks.RateLimitBurst = 100
	}
	if c.Queue.Backend == "" {
		c.Queue.Backend = "redis"
	}
	if c.Queue.RetryBackoff <= 0 {
		c.Queue.RetryBackoff = 2 * time.Second
	}
	if c.Queue.BatchTimeout <= 0 {
		c.Queue.BatchTimeout = 5 * time.Second
	}
	if c.Ledger.Backend == "" {
		c.Ledger.Backend = "postgres"
	}
	if c.Ledger.RedisTTL <= 0 {
		c.Ledger.RedisTTL = 30 * 24 * time.Hour
	}
}

func (c Config) IsProduction() bool {
	return c.App.Env == "production"
}

func (c Config) HTTPAddr() string {
	return fmt.Sprintf(":%d", c.App.Port)
}

func (c Config) PostgresDSN() string {
	// Avoid logging this string; it contains secrets.
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.DB.Host,
		c.DB.Port,
		c.DB.User,
		c.DB.Password,
		c.DB.Name,
		c.DB.SSLMode,
	)
}

func (c Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}

func mustInt(key string) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0, fmt.Errorf("%s is required", key)
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer, got %q", key, v)
	}
	return n, nil
}

func optionalInt(key string) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return -1
	}
	return n
}

func intOr(key string, def int) int {
	if strings.TrimSpace(os.Getenv(key)) == "" {
		return def
	}
	return optionalInt(key)
}

func optionalFloat(key string) float64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return -1
	}
	return f
}

func mustDuration(key string) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0
	}
	return d
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimRight(strings.TrimSpace(p), "/"); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func appendParseErr(errs []error, n int, err error) (int, []error) {
	if err != nil {
		errs = append(errs, err)
	}
	return n, errs
}

func isValidEnv(v string) bool {
	switch v {
	case "local", "dev", "staging", "production":
		return true
	default:
		return false
	}
}

func isValidSSLMode(v string) bool {
	switch v {
	case "disable", "require", "verify-ca", "verify-full":
		return true
	default:
		return false
	}
}

func joinErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	if len(errs) == 1 {
		return errs[0]
	}
	var b strings.Builder
	b.WriteString("config errors:\n")
	for _, e := range errs {
		b.WriteString("- ")
		b.WriteString(e.Error())
		b.WriteString("\n")
	}
	return errors.New(strings.TrimSpace(b.String()))
}
