package config

const (
	EnvPrefix = "WEBSHOP"

	AppEnvDev  = "dev"
	AppEnvProd = "production"

	EnvAppEnv  = "WEBSHOP_APP_ENV"
	EnvPort    = "WEBSHOP_APP_PORT"
	EnvDBDSN   = "WEBSHOP_DB_DSN"
	EnvDBHost  = "WEBSHOP_DB_HOST"
	EnvDBUser  = "WEBSHOP_DB_USER"
	EnvDBName  = "WEBSHOP_DB_NAME"
	EnvDBPort  = "WEBSHOP_DB_PORT"
	EnvDBPass  = "WEBSHOP_DB_PASSWORD"
	EnvDBSSL   = "WEBSHOP_DB_SSLMODE"
	EnvRedis   = "WEBSHOP_REDIS_URL"
	EnvJWTSec  = "WEBSHOP_JWT_SECRET"
	EnvJWTIss  = "WEBSHOP_JWT_ISSUER"
	EnvJWTExp  = "WEBSHOP_JWT_EXPIRATION_MINUTES"
	EnvStripe  = "WEBSHOP_STRIPE_API_KEY"
	EnvWebhook = "WEBSHOP_STRIPE_WEBHOOK_SECRET"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
