package config

const EnvPrefix = "ORDERLEDGER"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	EnvAppEnv            = "ORDERLEDGER_APP_ENV"
	EnvPort              = "ORDERLEDGER_APP_PORT"
	EnvLogLevel          = "ORDERLEDGER_LOG_LEVEL"
	EnvDBDSN             = "ORDERLEDGER_DB_DSN"
	EnvDBHost            = "ORDERLEDGER_DB_HOST"
	EnvDBUser            = "ORDERLEDGER_DB_USER"
	EnvDBName            = "ORDERLEDGER_DB_NAME"
	EnvDBPassword        = "ORDERLEDGER_DB_PASSWORD"
	EnvRedisURL          = "ORDERLEDGER_REDIS_URL"
	EnvJWTSecret         = "ORDERLEDGER_JWT_SECRET"
	EnvJWTIssuer         = "ORDERLEDGER_JWT_ISSUER"
	EnvCashbackPercent   = "ORDERLEDGER_CASHBACK_PERCENT"
	EnvCashbackExpiry    = "ORDERLEDGER_CASHBACK_EXPIRY"
	EnvCommissionPercent = "ORDERLEDGER_COMMISSION_PERCENT"
	EnvReturnWindow      = "ORDERLEDGER_RETURN_WINDOW"
	EnvPubSubOrdersTopic = "ORDERLEDGER_PUBSUB_ORDERS_TOPIC"
	EnvGCPProjectID      = "ORDERLEDGER_GCP_PROJECT_ID"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
