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
	DB           DBConfig
	Redis        RedisConfig
	FeatureFlags FeatureFlagsConfig
	Eventing     EventingConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Outbox       OutboxConfig
	Stripe       StripeConfig
	Sendgrid     SendgridConfig
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
	Env          string `envconfig:"MERCALINE_APP_ENV" required:"true"`
	Port         string `envconfig:"MERCALINE_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"MERCALINE_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"MERCALINE_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"MERCALINE_DB_DSN"`
	Driver string `envconfig:"MERCALINE_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"MERCALINE_DB_HOST"`
	LegacyPort     int    `envconfig:"MERCALINE_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"MERCALINE_DB_USER"`
	LegacyPassword string `envconfig:"MERCALINE_DB_PASSWORD"`
	LegacyName     string `envconfig:"MERCALINE_DB_NAME"`
	LegacySSLMode  string `envconfig:"MERCALINE_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"MERCALINE_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"MERCALINE_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"MERCALINE_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"MERCALINE_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"MERCALINE_REDIS_URL" required:"true"`
	Address      string        `envconfig:"MERCALINE_REDIS_ADDR"`
	Password     string        `envconfig:"MERCALINE_REDIS_PASSWORD"`
	DB           int           `envconfig:"MERCALINE_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"MERCALINE_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"MERCALINE_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"MERCALINE_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"MERCALINE_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"MERCALINE_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"MERCALINE_AUTO_MIGRATE" default:"false"`
}

type EventingConfig struct {
	WebhookIdempotencyTTL time.Duration `envconfig:"MERCALINE_EVENTING_IDEMPOTENCY_TTL" default:"720h"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"MERCALINE_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"MERCALINE_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"MERCALINE_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	SettlementTopic        string `envconfig:"MERCALINE_PUBSUB_SETTLEMENT_TOPIC" default:"mc-settlement-events"`
	SettlementSubscription string `envconfig:"MERCALINE_PUBSUB_SETTLEMENT_SUBSCRIPTION"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"MERCALINE_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"MERCALINE_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"MERCALINE_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

type StripeConfig struct {
	APIKey      string        `envconfig:"MERCALINE_STRIPE_API_KEY"`
	Secret      string        `envconfig:"MERCALINE_STRIPE_SECRET"`
	Env         string        `envconfig:"MERCALINE_STRIPE_ENV" default:"test"`
	CallTimeout time.Duration `envconfig:"MERCALINE_STRIPE_CALL_TIMEOUT" default:"15s"`
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
	APIKey      string `envconfig:"MERCALINE_SENDGRID_API_KEY"`
	DefaultFrom string `envconfig:"MERCALINE_SENDGRID_FROM_EMAIL"`
	BaseURL     string `envconfig:"MERCALINE_SENDGRID_BASE_URL" default:"https://api.sendgrid.com"`
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
