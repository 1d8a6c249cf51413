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
	Stripe       StripeConfig
	Sendgrid     SendgridConfig
	Cron         CronConfig
	FeatureFlags FeatureFlagsConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"WEBSHOP_APP_ENV" required:"true"`
	Port         string `envconfig:"WEBSHOP_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"WEBSHOP_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"WEBSHOP_LOG_WARN_STACK" default:"false"`

	// Comma-separated extra origins allowed on top of the defaults.
	CORSOrigins []string `envconfig:"WEBSHOP_CORS_ORIGINS"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"WEBSHOP_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"WEBSHOP_DB_DSN"`
	Driver string `envconfig:"WEBSHOP_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"WEBSHOP_DB_HOST"`
	LegacyPort     int    `envconfig:"WEBSHOP_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"WEBSHOP_DB_USER"`
	LegacyPassword string `envconfig:"WEBSHOP_DB_PASSWORD"`
	LegacyName     string `envconfig:"WEBSHOP_DB_NAME"`
	LegacySSLMode  string `envconfig:"WEBSHOP_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"WEBSHOP_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"WEBSHOP_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"WEBSHOP_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"WEBSHOP_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"WEBSHOP_REDIS_URL" required:"true"`
	Address      string        `envconfig:"WEBSHOP_REDIS_ADDR"`
	Password     string        `envconfig:"WEBSHOP_REDIS_PASSWORD"`
	DB           int           `envconfig:"WEBSHOP_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"WEBSHOP_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"WEBSHOP_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"WEBSHOP_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"WEBSHOP_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"WEBSHOP_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"WEBSHOP_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"WEBSHOP_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"WEBSHOP_JWT_EXPIRATION_MINUTES" required:"true"`
}

// Expiration returns the access token TTL configured in minutes.
func (j JWTConfig) Expiration() time.Duration {
	if j.ExpirationMinutes <= 0 {
		return 0
	}
	return time.Duration(j.ExpirationMinutes) * time.Minute
}

type StripeConfig struct {
	APIKey        string `envconfig:"WEBSHOP_STRIPE_API_KEY"`
	WebhookSecret string `envconfig:"WEBSHOP_STRIPE_WEBHOOK_SECRET"`
	Env           string `envconfig:"WEBSHOP_STRIPE_ENV" default:"test"`
}

// Environment returns the normalized Stripe environment (test/live).
func (s StripeConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "test"
	}
	return env
}

type SendgridConfig struct {
	APIKey      string `envconfig:"WEBSHOP_SENDGRID_API_KEY"`
	DefaultFrom string `envconfig:"WEBSHOP_SENDGRID_FROM_EMAIL"`
}

type CronConfig struct {
	PaymentEventRetryInterval time.Duration `envconfig:"WEBSHOP_CRON_PAYMENT_EVENT_RETRY_INTERVAL" default:"1m"`
	PaymentEventMaxAttempts   int           `envconfig:"WEBSHOP_CRON_PAYMENT_EVENT_MAX_ATTEMPTS" default:"10"`
	PaymentEventBatchSize     int           `envconfig:"WEBSHOP_CRON_PAYMENT_EVENT_BATCH_SIZE" default:"25"`
	LockTTL                   time.Duration `envconfig:"WEBSHOP_CRON_LOCK_TTL" default:"5m"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"WEBSHOP_AUTO_MIGRATE" default:"false"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	legacyValues := map[string]string{
		EnvDBHost: db.LegacyHost,
		EnvDBUser: db.LegacyUser,
		EnvDBName: db.LegacyName,
	}
	for _, env := range legacyDBEnvVars {
		if legacyValues[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.LegacyUser)
	if db.LegacyPassword != "" {
		userInfo = url.UserPassword(db.LegacyUser, db.LegacyPassword)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.LegacyHost, db.LegacyPort),
		Path:   db.LegacyName,
	}

	if db.LegacySSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.LegacySSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
