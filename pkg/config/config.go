package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	Marketplace  MarketplaceConfig
	Checkout     CheckoutConfig
	FeatureFlags FeatureFlagsConfig
	CORS         CORSConfig
	RateLimit    RateLimitConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Outbox       OutboxConfig
	Cron         CronConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if cfg.FeatureFlags.UseSQLite {
		cfg.DB.Driver = DBDriverSQLite
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.Marketplace.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"LOKRISE_APP_ENV" required:"true"`
	Port         string `envconfig:"LOKRISE_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"LOKRISE_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"LOKRISE_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd) || strings.EqualFold(a.Env, "production")
}

type ServiceConfig struct {
	Kind string `envconfig:"LOKRISE_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"LOKRISE_DB_DSN"`
	Driver string `envconfig:"LOKRISE_DB_DRIVER" default:"postgres"`

	Host     string `envconfig:"LOKRISE_DB_HOST"`
	Port     int    `envconfig:"LOKRISE_DB_PORT" default:"5432"`
	User     string `envconfig:"LOKRISE_DB_USER"`
	Password string `envconfig:"LOKRISE_DB_PASSWORD"`
	Name     string `envconfig:"LOKRISE_DB_NAME"`
	SSLMode  string `envconfig:"LOKRISE_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"LOKRISE_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"LOKRISE_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"LOKRISE_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"LOKRISE_DB_CONN_MAX_IDLE_TIME" default:"10m"`
	SlowQuery       time.Duration `envconfig:"LOKRISE_DB_SLOW_QUERY" default:"500ms"`
}

// IsSQLite reports whether the configured driver is the embedded sqlite driver.
func (db DBConfig) IsSQLite() bool {
	return strings.EqualFold(db.Driver, DBDriverSQLite)
}

type RedisConfig struct {
	URL          string        `envconfig:"LOKRISE_REDIS_URL"`
	Address      string        `envconfig:"LOKRISE_REDIS_ADDR"`
	Password     string        `envconfig:"LOKRISE_REDIS_PASSWORD"`
	DB           int           `envconfig:"LOKRISE_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"LOKRISE_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"LOKRISE_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"LOKRISE_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"LOKRISE_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"LOKRISE_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// JWTConfig describes the access tokens minted by the marketplace backend.
type JWTConfig struct {
	Secret            string `envconfig:"LOKRISE_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"LOKRISE_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"LOKRISE_JWT_EXPIRATION_MINUTES" default:"60"`
}

// MarketplaceConfig points at the marketplace backend the checkout flow orchestrates.
type MarketplaceConfig struct {
	BaseURL      string        `envconfig:"LOKRISE_MARKETPLACE_BASE_URL" required:"true"`
	Timeout      time.Duration `envconfig:"LOKRISE_MARKETPLACE_TIMEOUT" default:"15s"`
	RetryCount   int           `envconfig:"LOKRISE_MARKETPLACE_RETRY_COUNT" default:"3"`
	RetryWait    time.Duration `envconfig:"LOKRISE_MARKETPLACE_RETRY_WAIT" default:"200ms"`
	RetryMaxWait time.Duration `envconfig:"LOKRISE_MARKETPLACE_RETRY_MAX_WAIT" default:"2s"`
	ServiceToken string        `envconfig:"LOKRISE_MARKETPLACE_SERVICE_TOKEN"`

	BreakerMaxFailures uint32        `envconfig:"LOKRISE_MARKETPLACE_BREAKER_MAX_FAILURES" default:"5"`
	BreakerOpenTimeout time.Duration `envconfig:"LOKRISE_MARKETPLACE_BREAKER_OPEN_TIMEOUT" default:"30s"`
}

func (m MarketplaceConfig) validate() error {
	parsed, err := url.Parse(m.BaseURL)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", EnvMarketplaceBaseURL, err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("%s must be an http(s) url", EnvMarketplaceBaseURL)
	}
	return nil
}

// CheckoutConfig holds the TTLs and caps of the checkout flow.
type CheckoutConfig struct {
	GuestCartTTL        time.Duration `envconfig:"LOKRISE_CHECKOUT_GUEST_CART_TTL" default:"720h"`
	MigrationMarkerTTL  time.Duration `envconfig:"LOKRISE_CHECKOUT_MIGRATION_MARKER_TTL" default:"24h"`
	UPISessionTTL       time.Duration `envconfig:"LOKRISE_CHECKOUT_UPI_SESSION_TTL" default:"15m"`
	OrderCreationLock   time.Duration `envconfig:"LOKRISE_CHECKOUT_ORDER_LOCK_TTL" default:"60s"`
	AbandonAfter        time.Duration `envconfig:"LOKRISE_CHECKOUT_ABANDON_AFTER" default:"24h"`
	MutationStaleAfter  time.Duration `envconfig:"LOKRISE_CHECKOUT_MUTATION_STALE_AFTER" default:"10m"`
	MaxBarterPhotos     int           `envconfig:"LOKRISE_CHECKOUT_MAX_BARTER_PHOTOS" default:"5"`
	MaxBarterPhotoBytes int64         `envconfig:"LOKRISE_CHECKOUT_MAX_BARTER_PHOTO_BYTES" default:"5242880"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"LOKRISE_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"LOKRISE_AUTO_MIGRATE" default:"false"`
}

type CORSConfig struct {
	AllowedOrigins []string `envconfig:"LOKRISE_CORS_ALLOWED_ORIGINS" default:"http://localhost:3000"`
}

// RateLimitConfig throttles payment attempts per user and per client IP.
type RateLimitConfig struct {
	PaymentWindow    time.Duration `envconfig:"LOKRISE_RATE_LIMIT_PAYMENT_WINDOW" default:"10m"`
	PaymentUserLimit int           `envconfig:"LOKRISE_RATE_LIMIT_PAYMENT_USER_LIMIT" default:"10"`
	PaymentIPLimit   int           `envconfig:"LOKRISE_RATE_LIMIT_PAYMENT_IP_LIMIT" default:"30"`
}

type GCPConfig struct {
	ProjectID string `envconfig:"LOKRISE_GCP_PROJECT_ID"`
}

type PubSubConfig struct {
	CheckoutTopic string `envconfig:"LOKRISE_PUBSUB_CHECKOUT_TOPIC" default:"lokrise-checkout-events"`
	OrdersTopic   string `envconfig:"LOKRISE_PUBSUB_ORDERS_TOPIC" default:"lokrise-order-events"`
	// CreateTopics creates missing topics at startup; meant for the emulator.
	CreateTopics bool `envconfig:"LOKRISE_PUBSUB_CREATE_TOPICS" default:"false"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"LOKRISE_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"LOKRISE_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"LOKRISE_OUTBOX_MAX_ATTEMPTS" default:"10"`

	Retention time.Duration `envconfig:"LOKRISE_OUTBOX_RETENTION" default:"720h"`
}

type CronConfig struct {
	Interval time.Duration `envconfig:"LOKRISE_CRON_INTERVAL" default:"15m"`
	LockTTL  time.Duration `envconfig:"LOKRISE_CRON_LOCK_TTL" default:"14m"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}
	if db.IsSQLite() {
		db.DSN = "file:lokrise.db?cache=shared"
		return nil
	}

	missing := []string{}
	values := map[string]string{
		EnvDBHost: db.Host,
		EnvDBUser: db.User,
		EnvDBName: db.Name,
	}
	for _, env := range discreteDBEnvVars {
		if values[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.User)
	if db.Password != "" {
		userInfo = url.UserPassword(db.User, db.Password)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.Host, db.Port),
		Path:   db.Name,
	}

	if db.SSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.SSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
