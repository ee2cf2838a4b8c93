package config

const (
	EnvPrefix = "MEDIMART"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	EnvAppEnv   = "MEDIMART_APP_ENV"
	EnvPort     = "MEDIMART_APP_PORT"
	EnvLogLevel = "MEDIMART_LOG_LEVEL"

	EnvDBDSN     = "MEDIMART_DB_DSN"
	EnvDBHost    = "MEDIMART_DB_HOST"
	EnvDBUser    = "MEDIMART_DB_USER"
	EnvDBName    = "MEDIMART_DB_NAME"
	EnvUseSQLite = "MEDIMART_USE_SQLITE"

	EnvRedisURL = "MEDIMART_REDIS_URL"

	EnvJWTSecret              = "MEDIMART_JWT_SECRET"
	EnvJWTIssuer              = "MEDIMART_JWT_ISSUER"
	EnvJWTExpMins             = "MEDIMART_JWT_EXPIRATION_MINUTES"
	EnvRefreshTokenTTLMinutes = "MEDIMART_REFRESH_TOKEN_TTL_MINUTES"

	EnvStorefrontAPIBaseURL      = "MEDIMART_STOREFRONT_API_BASE_URL"
	EnvStorefrontIdentityBaseURL = "MEDIMART_STOREFRONT_IDENTITY_BASE_URL"
	EnvStorefrontStatePath       = "MEDIMART_STOREFRONT_STATE_PATH"
	EnvStorefrontRestoreTimeout  = "MEDIMART_STOREFRONT_RESTORE_TIMEOUT"
	EnvStorefrontStripeKey       = "MEDIMART_STOREFRONT_STRIPE_PUBLISHABLE_KEY"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
