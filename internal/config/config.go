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

// DevJWTSecret is the token signing secret used when AUTH_JWT_SECRET is unset.
// Production deployments must override it.
const DevJWTSecret = "dev-secret"

// Config aggregates runtime configuration for the reconciler.
type Config struct {
	App          AppConfig
	Postgres     PostgresConfig
	Redis        RedisConfig
	Logger       LoggerConfig
	Auth         AuthConfig
	Billing      BillingConfig
	Reconcile    ReconcileConfig
	Notification NotificationConfig
	Metrics      MetricsConfig
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

// RedisConfig holds Redis connection values for the session-claims store.
type RedisConfig struct {
	// URL, when set, takes precedence over Addr/Password/DB.
	URL            string
	Addr           string
	Password       string
	DB             int
	PoolSize       int
	TimeoutSeconds int
	KeyPrefix      string
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string
}

// AuthConfig defines how callers of the trigger endpoint authenticate.
type AuthConfig struct {
	JWTSecret             string
	AccessTokenTTLMinutes int
	// SchedulerSecretHash is a bcrypt hash of the shared secret the cron
	// scheduler presents as a bearer token.
	SchedulerSecretHash string
	BcryptCost          int
}

// BillingConfig configures the billing provider client.
type BillingConfig struct {
	StripeSecretKey    string
	PageSize           int
	PageTimeoutSeconds int
	MaxNetworkRetries  int
}

// ReconcileConfig tunes a reconciliation run.
type ReconcileConfig struct {
	Workers             int
	WriteTimeoutSeconds int
	ListTimeoutSeconds  int
	RunTimeoutSeconds   int
	// IntervalSeconds schedules runs inside `serve`; zero leaves scheduling to an external cron.
	IntervalSeconds int
	RepairClaims    bool
	DryRun          bool
}

// NotificationConfig holds stub notification endpoints.
type NotificationConfig struct {
	WebhookURL string
}

// MetricsConfig toggles the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool
	Path    string
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
			Name:                  getEnv("APP_NAME", "subscription-reconciler"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 300),
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
			URL:            os.Getenv("REDIS_URL"),
			Addr:           getEnv("REDIS_ADDR", "127.0.0.1:6379"),
			Password:       os.Getenv("REDIS_PASSWORD"),
			DB:             redisDB,
			PoolSize:       getEnvAsInt("REDIS_POOL_SIZE", 0),
			TimeoutSeconds: getEnvAsInt("REDIS_TIMEOUT_SECONDS", 3),
			KeyPrefix:      getEnv("REDIS_CLAIMS_PREFIX", "session:claims:"),
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Auth: AuthConfig{
			JWTSecret:             getEnv("AUTH_JWT_SECRET", DevJWTSecret),
			AccessTokenTTLMinutes: getEnvAsInt("AUTH_ACCESS_TOKEN_TTL_MINUTES", 60),
			SchedulerSecretHash:   os.Getenv("AUTH_SCHEDULER_SECRET_HASH"),
			BcryptCost:            getEnvAsInt("AUTH_BCRYPT_COST", 12),
		},
		Billing: BillingConfig{
			StripeSecretKey:    os.Getenv("STRIPE_SECRET_KEY"),
			PageSize:           getEnvAsInt("BILLING_PAGE_SIZE", 100),
			PageTimeoutSeconds: getEnvAsInt("BILLING_PAGE_TIMEOUT_SECONDS", 20),
			MaxNetworkRetries:  getEnvAsInt("BILLING_MAX_NETWORK_RETRIES", 2),
		},
		Reconcile: ReconcileConfig{
			Workers:             getEnvAsInt("RECONCILE_WORKERS", 8),
			WriteTimeoutSeconds: getEnvAsInt("RECONCILE_WRITE_TIMEOUT_SECONDS", 5),
			ListTimeoutSeconds:  getEnvAsInt("RECONCILE_LIST_TIMEOUT_SECONDS", 30),
			RunTimeoutSeconds:   getEnvAsInt("RECONCILE_RUN_TIMEOUT_SECONDS", 600),
			IntervalSeconds:     getEnvAsInt("RECONCILE_INTERVAL_SECONDS", 0),
			RepairClaims:        getEnvAsBool("RECONCILE_REPAIR_CLAIMS", false),
			DryRun:              getEnvAsBool("RECONCILE_DRY_RUN", false),
		},
		Notification: NotificationConfig{
			WebhookURL: getEnv("NOTIFY_WEBHOOK_URL", ""),
		},
		Metrics: MetricsConfig{
			Enabled: getEnvAsBool("METRICS_ENABLED", true),
			Path:    getEnv("METRICS_PATH", "/metrics"),
		},
	}

	return cfg, nil
}

// Validate checks the values a reconciliation run cannot do without.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Billing.StripeSecretKey) == "" {
		errs = append(errs, errors.New("STRIPE_SECRET_KEY is required"))
	}
	if strings.TrimSpace(c.Postgres.DSN) == "" {
		errs = append(errs, errors.New("POSTGRES_DSN is required"))
	}
	if c.Billing.PageSize <= 0 || c.Billing.PageSize > 100 {
		errs = append(errs, fmt.Errorf("BILLING_PAGE_SIZE must be within 1..100, got %d", c.Billing.PageSize))
	}
	if c.Reconcile.Workers <= 0 {
		errs = append(errs, fmt.Errorf("RECONCILE_WORKERS must be positive, got %d", c.Reconcile.Workers))
	}
	if err := c.ValidateAuth(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// ValidateAuth refuses to sign or verify operator tokens in production with
// the built-in development secret.
func (c *Config) ValidateAuth() error {
	if !c.App.IsProduction() {
		return nil
	}
	secret := strings.TrimSpace(c.Auth.JWTSecret)
	if secret == "" || secret == DevJWTSecret {
		return errors.New("AUTH_JWT_SECRET must be set to a non-default value when APP_ENV=production")
	}
	return nil
}

// IsProduction reports whether APP_ENV names a production deployment.
func (a AppConfig) IsProduction() bool {
	env := strings.ToLower(strings.TrimSpace(a.Env))
	return env == "production" || env == "prod"
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// RequestTimeout returns the configured request timeout duration.
func (a AppConfig) RequestTimeout() time.Duration {
	return seconds(a.RequestTimeoutSeconds)
}

// PageTimeout bounds a single billing page fetch.
func (b BillingConfig) PageTimeout() time.Duration {
	return seconds(b.PageTimeoutSeconds)
}

// WriteTimeout bounds a single store write.
func (r ReconcileConfig) WriteTimeout() time.Duration {
	return seconds(r.WriteTimeoutSeconds)
}

// ListTimeout bounds loading identities from the primary store.
func (r ReconcileConfig) ListTimeout() time.Duration {
	return seconds(r.ListTimeoutSeconds)
}

// RunTimeout bounds an entire run.
func (r ReconcileConfig) RunTimeout() time.Duration {
	return seconds(r.RunTimeoutSeconds)
}

// Timeout bounds dialing and each Redis command.
func (r RedisConfig) Timeout() time.Duration {
	return seconds(r.TimeoutSeconds)
}

// Interval is the in-process schedule period, zero when disabled.
func (r ReconcileConfig) Interval() time.Duration {
	return seconds(r.IntervalSeconds)
}

func seconds(n int) time.Duration {
	if n <= 0 {
		return 0
	}
	return time.Duration(n) * time.Second
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
