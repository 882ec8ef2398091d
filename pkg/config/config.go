package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	EnvPrefix = "SESSIONBILL"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvAppEnv   = "SESSIONBILL_APP_ENV"
	EnvPort     = "SESSIONBILL_APP_PORT"
	EnvDBDSN    = "SESSIONBILL_DB_DSN"
	EnvDBHost   = "SESSIONBILL_DB_HOST"
	EnvDBUser   = "SESSIONBILL_DB_USER"
	EnvDBName   = "SESSIONBILL_DB_NAME"
	EnvRedisURL = "SESSIONBILL_REDIS_URL"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}

type Config struct {
	App          AppConfig
	DB           DBConfig
	Redis        RedisConfig
	HTTP         HTTPConfig
	Invoicing    InvoicingConfig
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
	Env          string `envconfig:"SESSIONBILL_APP_ENV" required:"true"`
	Port         string `envconfig:"SESSIONBILL_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"SESSIONBILL_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"SESSIONBILL_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"SESSIONBILL_DB_DSN"`
	Driver string `envconfig:"SESSIONBILL_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"SESSIONBILL_DB_HOST"`
	LegacyPort     int    `envconfig:"SESSIONBILL_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"SESSIONBILL_DB_USER"`
	LegacyPassword string `envconfig:"SESSIONBILL_DB_PASSWORD"`
	LegacyName     string `envconfig:"SESSIONBILL_DB_NAME"`
	LegacySSLMode  string `envconfig:"SESSIONBILL_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"SESSIONBILL_DB_MAX_OPEN_CONNS" default:"10"`
	MaxIdleConns    int           `envconfig:"SESSIONBILL_DB_MAX_IDLE_CONNS" default:"5"`
	ConnMaxLifetime time.Duration `envconfig:"SESSIONBILL_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"SESSIONBILL_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"SESSIONBILL_REDIS_URL"`
	Address      string        `envconfig:"SESSIONBILL_REDIS_ADDR"`
	Password     string        `envconfig:"SESSIONBILL_REDIS_PASSWORD"`
	DB           int           `envconfig:"SESSIONBILL_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"SESSIONBILL_REDIS_POOL_SIZE" default:"5"`
	MinIdleConns int           `envconfig:"SESSIONBILL_REDIS_MIN_IDLE_CONNS" default:"1"`
	DialTimeout  time.Duration `envconfig:"SESSIONBILL_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"SESSIONBILL_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"SESSIONBILL_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// Enabled reports whether a Redis backend is configured at all. The tool runs
// fine without one; idempotency protection on invoice generation is skipped.
func (r RedisConfig) Enabled() bool {
	return r.URL != "" || r.Address != ""
}

type HTTPConfig struct {
	AllowedOrigins  []string      `envconfig:"SESSIONBILL_HTTP_ALLOWED_ORIGINS" default:"http://localhost:5173"`
	RateLimit       int           `envconfig:"SESSIONBILL_HTTP_RATE_LIMIT" default:"60"`
	RateLimitWindow time.Duration `envconfig:"SESSIONBILL_HTTP_RATE_LIMIT_WINDOW" default:"1m"`
}

type InvoicingConfig struct {
	SequenceMaxAttempts int           `envconfig:"SESSIONBILL_INVOICE_SEQUENCE_MAX_ATTEMPTS" default:"3"`
	DueAfter            time.Duration `envconfig:"SESSIONBILL_INVOICE_DUE_AFTER" default:"720h"`
	DocumentsDir        string        `envconfig:"SESSIONBILL_INVOICE_DOCUMENTS_DIR" default:"invoices"`
	IdempotencyTTL      time.Duration `envconfig:"SESSIONBILL_INVOICE_IDEMPOTENCY_TTL" default:"168h"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"SESSIONBILL_AUTO_MIGRATE" default:"false"`
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
