package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
)

type Config struct {
	App          AppConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	FeatureFlags FeatureFlagsConfig
	Eventing     EventingConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Outbox       OutboxConfig
	Cron         CronConfig
	Metrics      MetricsConfig
	Policy       PolicyConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.Policy.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"ORDERLEDGER_APP_ENV" required:"true"`
	Port         string `envconfig:"ORDERLEDGER_APP_PORT" default:"8080"`
	LogLevel     string `envconfig:"ORDERLEDGER_LOG_LEVEL" default:"info"`
	LogFormat    string `envconfig:"ORDERLEDGER_LOG_FORMAT" default:"json"`
	LogWarnStack bool   `envconfig:"ORDERLEDGER_LOG_WARN_STACK" default:"false"`

	CORSOrigins []string `envconfig:"ORDERLEDGER_CORS_ORIGINS" default:"http://localhost:3000"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"ORDERLEDGER_DB_DSN"`
	Driver string `envconfig:"ORDERLEDGER_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"ORDERLEDGER_DB_HOST"`
	LegacyPort     int    `envconfig:"ORDERLEDGER_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"ORDERLEDGER_DB_USER"`
	LegacyPassword string `envconfig:"ORDERLEDGER_DB_PASSWORD"`
	LegacyName     string `envconfig:"ORDERLEDGER_DB_NAME"`
	LegacySSLMode  string `envconfig:"ORDERLEDGER_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"ORDERLEDGER_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"ORDERLEDGER_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"ORDERLEDGER_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"ORDERLEDGER_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"ORDERLEDGER_REDIS_URL" required:"true"`
	Address      string        `envconfig:"ORDERLEDGER_REDIS_ADDR"`
	Password     string        `envconfig:"ORDERLEDGER_REDIS_PASSWORD"`
	DB           int           `envconfig:"ORDERLEDGER_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"ORDERLEDGER_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"ORDERLEDGER_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"ORDERLEDGER_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"ORDERLEDGER_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"ORDERLEDGER_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// JWTConfig holds the verification settings for bearer tokens minted by the
// upstream identity service.
type JWTConfig struct {
	Secret string `envconfig:"ORDERLEDGER_JWT_SECRET" required:"true"`
	Issuer string `envconfig:"ORDERLEDGER_JWT_ISSUER" required:"true"`
}

type FeatureFlagsConfig struct {
	AutoMigrate    bool `envconfig:"ORDERLEDGER_AUTO_MIGRATE" default:"false"`
	InlineDelivery bool `envconfig:"ORDERLEDGER_INLINE_DELIVERY_EFFECTS" default:"true"`
}

type EventingConfig struct {
	IdempotencyTTL time.Duration `envconfig:"ORDERLEDGER_EVENTING_IDEMPOTENCY_TTL" default:"24h"`
}

type GCPConfig struct {
	ProjectID string `envconfig:"ORDERLEDGER_GCP_PROJECT_ID"`
}

// PubSubConfig is optional; an empty topic disables event forwarding.
type PubSubConfig struct {
	OrdersTopic string `envconfig:"ORDERLEDGER_PUBSUB_ORDERS_TOPIC"`
}

func (p PubSubConfig) Enabled(gcp GCPConfig) bool {
	return strings.TrimSpace(p.OrdersTopic) != "" && strings.TrimSpace(gcp.ProjectID) != ""
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"ORDERLEDGER_OUTBOX_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"ORDERLEDGER_OUTBOX_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"ORDERLEDGER_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

type CronConfig struct {
	Interval time.Duration `envconfig:"ORDERLEDGER_CRON_INTERVAL" default:"15m"`
	LockTTL  time.Duration `envconfig:"ORDERLEDGER_CRON_LOCK_TTL" default:"10m"`
}

// MetricsConfig exposes the prometheus registry of the background workers.
// An empty address keeps the listener off.
type MetricsConfig struct {
	Addr string `envconfig:"ORDERLEDGER_METRICS_ADDR"`
}

// PolicyConfig carries the business knobs. Percentages are decimal strings so
// they never pass through float64.
type PolicyConfig struct {
	CashbackPercent    string        `envconfig:"ORDERLEDGER_CASHBACK_PERCENT" default:"5"`
	CashbackExpiry     time.Duration `envconfig:"ORDERLEDGER_CASHBACK_EXPIRY" default:"720h"`
	CommissionPercent  string        `envconfig:"ORDERLEDGER_COMMISSION_PERCENT" default:"10"`
	ReturnWindow       time.Duration `envconfig:"ORDERLEDGER_RETURN_WINDOW" default:"168h"`
	ConflictRetries    uint64        `envconfig:"ORDERLEDGER_CONFLICT_RETRIES" default:"3"`
	OrderNumberRetries int           `envconfig:"ORDERLEDGER_ORDER_NUMBER_RETRIES" default:"5"`
}

func (p PolicyConfig) CashbackRate() decimal.Decimal {
	return mustPercent(p.CashbackPercent)
}

func (p PolicyConfig) CommissionRate() decimal.Decimal {
	return mustPercent(p.CommissionPercent)
}

func (p PolicyConfig) validate() error {
	for env, raw := range map[string]string{
		EnvCashbackPercent:   p.CashbackPercent,
		EnvCommissionPercent: p.CommissionPercent,
	} {
		value, err := decimal.NewFromString(strings.TrimSpace(raw))
		if err != nil {
			return fmt.Errorf("%s: %w", env, err)
		}
		if value.IsNegative() || value.GreaterThan(decimal.NewFromInt(100)) {
			return fmt.Errorf("%s must be between 0 and 100", env)
		}
	}
	if p.CashbackExpiry <= 0 {
		return fmt.Errorf("%s must be positive", EnvCashbackExpiry)
	}
	return nil
}

func mustPercent(raw string) decimal.Decimal {
	value, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return decimal.Zero
	}
	return value
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
