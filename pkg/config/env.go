package config

const (
	EnvPrefix = "FARMLINK"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvAppEnv    = "FARMLINK_APP_ENV"
	EnvDBDSN     = "FARMLINK_DB_DSN"
	EnvDBHost    = "FARMLINK_DB_HOST"
	EnvDBUser    = "FARMLINK_DB_USER"
	EnvDBName    = "FARMLINK_DB_NAME"
	EnvRedisURL  = "FARMLINK_REDIS_URL"
	EnvUseSQLite = "FARMLINK_USE_SQLITE"

	EnvReferralFarmerCashback = "FARMLINK_REFERRAL_FARMER_CASHBACK"
	EnvReferralMaxCashback    = "FARMLINK_REFERRAL_MAX_CASHBACK"
	EnvCompensationTimezone   = "FARMLINK_COMPENSATION_TIMEZONE"
	EnvCompensationHolidays   = "FARMLINK_COMPENSATION_HOLIDAYS"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
