package config

const (
	// EnvPrefix is applied by envconfig to every variable lookup.
	EnvPrefix = "MERCALINE"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvDBDSN  = "MERCALINE_DB_DSN"
	EnvDBHost = "MERCALINE_DB_HOST"
	EnvDBUser = "MERCALINE_DB_USER"
	EnvDBName = "MERCALINE_DB_NAME"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
