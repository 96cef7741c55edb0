package config

// EnvPrefix scopes envconfig processing; individual fields carry explicit
// PERKMINT_ names so operators can grep deployments for them.
const EnvPrefix = "perkmint"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	EnvAppEnv    = "PERKMINT_APP_ENV"
	EnvPort      = "PERKMINT_APP_PORT"
	EnvDBDSN     = "PERKMINT_DB_DSN"
	EnvDBHost    = "PERKMINT_DB_HOST"
	EnvDBUser    = "PERKMINT_DB_USER"
	EnvDBName    = "PERKMINT_DB_NAME"
	EnvRedisURL  = "PERKMINT_REDIS_URL"
	EnvJWTSecret = "PERKMINT_JWT_SECRET"
	EnvJWTIssuer = "PERKMINT_JWT_ISSUER"
	EnvJWTExp    = "PERKMINT_JWT_EXPIRATION_MINUTES"

	EnvGCPProjectID     = "PERKMINT_GCP_PROJECT_ID"
	EnvPubSubTopic      = "PERKMINT_PUBSUB_DOMAIN_TOPIC"
	EnvPubSubArchiveSub = "PERKMINT_PUBSUB_ARCHIVE_SUBSCRIPTION"

	EnvChainRPCURL      = "PERKMINT_CHAIN_RPC_URL"
	EnvChainID          = "PERKMINT_CHAIN_ID"
	EnvChainContract    = "PERKMINT_CHAIN_CONTRACT_ADDRESS"
	EnvChainOperatorKey = "PERKMINT_CHAIN_OPERATOR_KEY"
	EnvChainCustody     = "PERKMINT_CHAIN_CUSTODY_ADDRESS"

	EnvIPFSAPIURL = "PERKMINT_IPFS_API_URL"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
