package config

const (
	EnvPrefix = "LOKRISE"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	DBDriverPostgres = "postgres"
	DBDriverSQLite   = "sqlite"
)

const (
	EnvAppEnv             = "LOKRISE_APP_ENV"
	EnvPort               = "LOKRISE_APP_PORT"
	EnvDBDSN              = "LOKRISE_DB_DSN"
	EnvDBHost             = "LOKRISE_DB_HOST"
	EnvDBUser             = "LOKRISE_DB_USER"
	EnvDBName             = "LOKRISE_DB_NAME"
	EnvUseSQLite          = "LOKRISE_USE_SQLITE"
	EnvRedisURL           = "LOKRISE_REDIS_URL"
	EnvJWTSecret          = "LOKRISE_JWT_SECRET"
	EnvJWTIssuer          = "LOKRISE_JWT_ISSUER"
	EnvMarketplaceBaseURL = "LOKRISE_MARKETPLACE_BASE_URL"
	EnvAbandonAfter       = "LOKRISE_CHECKOUT_ABANDON_AFTER"
	EnvCORSOrigins        = "LOKRISE_CORS_ALLOWED_ORIGINS"
)

var discreteDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
