package config

// EnvPrefix is passed to envconfig; individual fields carry explicit names so
// the prefix only matters for variables without a tag.
const EnvPrefix = "SVR"

const (
	AppEnvDev  = "development"
	AppEnvProd = "production"
)

const (
	EnvAppEnv = "SVR_APP_ENV"
	EnvPort   = "SVR_APP_PORT"

	EnvDBDSN  = "SVR_DB_DSN"
	EnvDBHost = "SVR_DB_HOST"
	EnvDBUser = "SVR_DB_USER"
	EnvDBName = "SVR_DB_NAME"

	EnvMuxTokenID       = "SVR_MUX_TOKEN_ID"
	EnvMuxTokenSecret   = "SVR_MUX_TOKEN_SECRET"
	EnvMuxWebhookSecret = "SVR_MUX_WEBHOOK_SECRET"
	EnvMuxSigningKeyID  = "SVR_MUX_SIGNING_KEY_ID"
	EnvMuxSigningKey    = "SVR_MUX_SIGNING_KEY"

	EnvReconcileSecret = "SVR_RECONCILE_SECRET"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
