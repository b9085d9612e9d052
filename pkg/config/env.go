package config

const (
	EnvPrefix = "SHOPFEED"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvAppEnv    = "SHOPFEED_APP_ENV"
	EnvPort      = "SHOPFEED_APP_PORT"
	EnvLogLevel  = "SHOPFEED_LOG_LEVEL"
	EnvDBDSN     = "SHOPFEED_DB_DSN"
	EnvDBHost    = "SHOPFEED_DB_HOST"
	EnvDBPort    = "SHOPFEED_DB_PORT"
	EnvDBUser    = "SHOPFEED_DB_USER"
	EnvDBName    = "SHOPFEED_DB_NAME"
	EnvDBPass    = "SHOPFEED_DB_PASSWORD"
	EnvRedisURL  = "SHOPFEED_REDIS_URL"
	EnvJWTSecret = "SHOPFEED_JWT_SECRET"
	EnvJWTIssuer = "SHOPFEED_JWT_ISSUER"
	EnvJWTExpMin = "SHOPFEED_JWT_EXPIRATION_MINUTES"

	EnvCatalogFetchTimeout = "SHOPFEED_CATALOG_FETCH_TIMEOUT"
	EnvTasksWorkers        = "SHOPFEED_TASKS_WORKERS"
	EnvSendgridAPIKey      = "SHOPFEED_SENDGRID_API_KEY"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
