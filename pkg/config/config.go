package config

import (
	"cmp"
	"errors"
	"fmt"
	"net"
	"net/url"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
	"go.uber.org/multierr"
)

type Config struct {
	App           AppConfig
	DB            DBConfig
	Redis         RedisConfig
	RateLimit     RateLimitConfig
	FeatureFlags  FeatureFlagsConfig
	Fulfillment   FulfillmentConfig
	Notifications NotificationsConfig
	Maintenance   MaintenanceConfig
	GCP           GCPConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.resolveDSN(cfg.FeatureFlags.UseSQLite); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"PHARMACY_APP_ENV" required:"true"`
	Port         string `envconfig:"PHARMACY_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"PHARMACY_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"PHARMACY_LOG_WARN_STACK" default:"false"`
	// CORSAllowedOrigins is a comma separated list; empty disables CORS headers.
	CORSAllowedOrigins []string `envconfig:"PHARMACY_CORS_ALLOWED_ORIGINS"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev) || strings.EqualFold(a.Env, AppEnvDevelopment)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd) || strings.EqualFold(a.Env, AppEnvProduction)
}

type DBConfig struct {
	DSN    string `envconfig:"PHARMACY_DB_DSN"`
	Driver string `envconfig:"PHARMACY_DB_DRIVER" default:"postgres" validate:"oneof=postgres sqlite"`

	LegacyHost     string `envconfig:"PHARMACY_DB_HOST"`
	LegacyPort     int    `envconfig:"PHARMACY_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"PHARMACY_DB_USER"`
	LegacyPassword string `envconfig:"PHARMACY_DB_PASSWORD"`
	LegacyName     string `envconfig:"PHARMACY_DB_NAME"`
	LegacySSLMode  string `envconfig:"PHARMACY_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"PHARMACY_DB_MAX_OPEN_CONNS" default:"20" validate:"gt=0"`
	MaxIdleConns    int           `envconfig:"PHARMACY_DB_MAX_IDLE_CONNS" default:"10" validate:"gte=0,ltefield=MaxOpenConns"`
	ConnMaxLifetime time.Duration `envconfig:"PHARMACY_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"PHARMACY_DB_CONN_MAX_IDLE_TIME" default:"10m"`

	// LockTimeout bounds how long a transaction waits on a row lock.
	LockTimeout time.Duration `envconfig:"PHARMACY_DB_LOCK_TIMEOUT" default:"3s"`
	// TxTimeout bounds the whole fulfillment/transition unit of work.
	TxTimeout time.Duration `envconfig:"PHARMACY_DB_TX_TIMEOUT" default:"10s" validate:"gt=0"`
	// SlowQueryThreshold logs statements slower than this; zero disables it.
	SlowQueryThreshold time.Duration `envconfig:"PHARMACY_DB_SLOW_QUERY_THRESHOLD" default:"250ms"`
}

type RedisConfig struct {
	URL          string        `envconfig:"PHARMACY_REDIS_URL"`
	Address      string        `envconfig:"PHARMACY_REDIS_ADDR"`
	Password     string        `envconfig:"PHARMACY_REDIS_PASSWORD"`
	DB           int           `envconfig:"PHARMACY_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"PHARMACY_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"PHARMACY_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"PHARMACY_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"PHARMACY_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"PHARMACY_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// Enabled reports whether any redis endpoint was configured.
func (r RedisConfig) Enabled() bool {
	return strings.TrimSpace(r.URL) != "" || strings.TrimSpace(r.Address) != ""
}

// RateLimitConfig throttles mutating requests per staff member. Zero
// requests disables the limiter; it also needs redis.
type RateLimitConfig struct {
	StaffRequests int           `envconfig:"PHARMACY_RATE_LIMIT_STAFF_REQUESTS" default:"0" validate:"gte=0"`
	Window        time.Duration `envconfig:"PHARMACY_RATE_LIMIT_WINDOW" default:"1m"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"PHARMACY_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"PHARMACY_AUTO_MIGRATE" default:"false"`
}

type FulfillmentConfig struct {
	BusyRetries uint64        `envconfig:"PHARMACY_FULFILLMENT_BUSY_RETRIES" default:"3"`
	BusyBackoff time.Duration `envconfig:"PHARMACY_FULFILLMENT_BUSY_BACKOFF" default:"50ms"`
}

type NotificationsConfig struct {
	QueueSize   int    `envconfig:"PHARMACY_NOTIFICATIONS_QUEUE_SIZE" default:"256" validate:"gt=0"`
	Workers     int    `envconfig:"PHARMACY_NOTIFICATIONS_WORKERS" default:"2" validate:"gt=0"`
	PubSubTopic string `envconfig:"PHARMACY_NOTIFICATIONS_PUBSUB_TOPIC"`
}

// MaintenanceConfig drives cmd/maintenance-worker.
type MaintenanceConfig struct {
	Interval              time.Duration `envconfig:"PHARMACY_MAINTENANCE_INTERVAL" default:"1h" validate:"gt=0"`
	NotificationRetention time.Duration `envconfig:"PHARMACY_NOTIFICATION_RETENTION" default:"720h"`
	JobTimeout            time.Duration `envconfig:"PHARMACY_MAINTENANCE_JOB_TIMEOUT" default:"10m"`
	LockTTL               time.Duration `envconfig:"PHARMACY_MAINTENANCE_LOCK_TTL" default:"30m"`
}

type GCPConfig struct {
	ProjectID string `envconfig:"PHARMACY_GCP_PROJECT_ID"`
}

// resolveDSN picks sqlite when the feature flag is on, otherwise keeps an
// explicit DSN or assembles one from the discrete PHARMACY_DB_* parts.
func (db *DBConfig) resolveDSN(useSQLite bool) error {
	if useSQLite {
		db.Driver = "sqlite"
		db.DSN = cmp.Or(db.DSN, DefaultSQLiteDSN)
		return nil
	}
	if db.DSN != "" {
		return nil
	}

	parts := map[string]string{EnvDBHost: db.LegacyHost, EnvDBUser: db.LegacyUser, EnvDBName: db.LegacyName}
	var missing []string
	for _, env := range legacyDBEnvVars {
		if parts[env] == "" {
			missing = append(missing, env)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	user := url.User(db.LegacyUser)
	if db.LegacyPassword != "" {
		user = url.UserPassword(db.LegacyUser, db.LegacyPassword)
	}
	dsn := url.URL{
		Scheme: "postgres",
		User:   user,
		Host:   net.JoinHostPort(db.LegacyHost, strconv.Itoa(db.LegacyPort)),
		Path:   "/" + db.LegacyName,
	}
	if db.LegacySSLMode != "" {
		dsn.RawQuery = url.Values{"sslmode": {db.LegacySSLMode}}.Encode()
	}
	db.DSN = dsn.String()
	return nil
}

var checker = newChecker()

// newChecker reports fields by their environment variable name.
func newChecker() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		if name := f.Tag.Get("envconfig"); name != "" {
			return name
		}
		return f.Name
	})
	return v
}

func (c *Config) validate() error {
	err := checker.Struct(c)
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}
	var problems error
	for _, fe := range fieldErrs {
		rule := fe.Tag()
		if fe.Param() != "" {
			rule += "=" + fe.Param()
		}
		problems = multierr.Append(problems, fmt.Errorf("%s=%v violates %s", fe.Field(), fe.Value(), rule))
	}
	return fmt.Errorf("invalid config: %w", problems)
}
