package config

const EnvPrefix = "PHARMACY"

const (
	AppEnvDev         = "dev"
	AppEnvDevelopment = "development"
	AppEnvProd        = "prod"
	AppEnvProduction  = "production"
)

// DefaultSQLiteDSN is used when sqlite mode is on and no DSN was given.
const DefaultSQLiteDSN = "file:pharmacy.db?cache=shared&_busy_timeout=5000"

const (
	EnvAppEnv       = "PHARMACY_APP_ENV"
	EnvPort         = "PHARMACY_APP_PORT"
	EnvLogLevel     = "PHARMACY_LOG_LEVEL"
	EnvLogWarnStack = "PHARMACY_LOG_WARN_STACK"
	EnvCORSOrigins  = "PHARMACY_CORS_ALLOWED_ORIGINS"

	EnvDBDSN         = "PHARMACY_DB_DSN"
	EnvDBDriver      = "PHARMACY_DB_DRIVER"
	EnvDBHost        = "PHARMACY_DB_HOST"
	EnvDBPort        = "PHARMACY_DB_PORT"
	EnvDBUser        = "PHARMACY_DB_USER"
	EnvDBPassword    = "PHARMACY_DB_PASSWORD"
	EnvDBName        = "PHARMACY_DB_NAME"
	EnvDBSSLMode     = "PHARMACY_DB_SSLMODE"
	EnvDBLockTimeout = "PHARMACY_DB_LOCK_TIMEOUT"
	EnvDBTxTimeout   = "PHARMACY_DB_TX_TIMEOUT"
	EnvDBSlowQuery   = "PHARMACY_DB_SLOW_QUERY_THRESHOLD"

	EnvRedisURL  = "PHARMACY_REDIS_URL"
	EnvRedisAddr = "PHARMACY_REDIS_ADDR"

	EnvRateLimitStaffRequests = "PHARMACY_RATE_LIMIT_STAFF_REQUESTS"
	EnvRateLimitWindow        = "PHARMACY_RATE_LIMIT_WINDOW"

	EnvUseSQLite   = "PHARMACY_USE_SQLITE"
	EnvAutoMigrate = "PHARMACY_AUTO_MIGRATE"

	EnvFulfillmentBusyRetries = "PHARMACY_FULFILLMENT_BUSY_RETRIES"
	EnvFulfillmentBusyBackoff = "PHARMACY_FULFILLMENT_BUSY_BACKOFF"

	EnvNotificationsQueueSize = "PHARMACY_NOTIFICATIONS_QUEUE_SIZE"
	EnvNotificationsWorkers   = "PHARMACY_NOTIFICATIONS_WORKERS"
	EnvNotificationsTopic     = "PHARMACY_NOTIFICATIONS_PUBSUB_TOPIC"

	EnvMaintenanceInterval   = "PHARMACY_MAINTENANCE_INTERVAL"
	EnvNotificationRetention = "PHARMACY_NOTIFICATION_RETENTION"
	EnvMaintenanceJobTimeout = "PHARMACY_MAINTENANCE_JOB_TIMEOUT"
	EnvMaintenanceLockTTL    = "PHARMACY_MAINTENANCE_LOCK_TTL"

	EnvGCPProjectID = "PHARMACY_GCP_PROJECT_ID"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
