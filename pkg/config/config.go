package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	RateLimit    RateLimitConfig
	FeatureFlags FeatureFlagsConfig
	Eventing     EventingConfig
	Chain        ChainConfig
	IPFS         IPFSConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	BigQuery     BigQueryConfig
	Outbox       OutboxConfig
	Reconciler   ReconcilerConfig
	Cron         CronConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"PERKMINT_APP_ENV" required:"true"`
	Port         string `envconfig:"PERKMINT_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"PERKMINT_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"PERKMINT_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"PERKMINT_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"PERKMINT_DB_DSN"`
	Driver string `envconfig:"PERKMINT_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"PERKMINT_DB_HOST"`
	LegacyPort     int    `envconfig:"PERKMINT_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"PERKMINT_DB_USER"`
	LegacyPassword string `envconfig:"PERKMINT_DB_PASSWORD"`
	LegacyName     string `envconfig:"PERKMINT_DB_NAME"`
	LegacySSLMode  string `envconfig:"PERKMINT_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"PERKMINT_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"PERKMINT_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"PERKMINT_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"PERKMINT_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"PERKMINT_REDIS_URL" required:"true"`
	Address      string        `envconfig:"PERKMINT_REDIS_ADDR"`
	Password     string        `envconfig:"PERKMINT_REDIS_PASSWORD"`
	DB           int           `envconfig:"PERKMINT_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"PERKMINT_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"PERKMINT_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"PERKMINT_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"PERKMINT_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"PERKMINT_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"PERKMINT_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"PERKMINT_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"PERKMINT_JWT_EXPIRATION_MINUTES" required:"true"`
}

type RateLimitConfig struct {
	WriteWindow    time.Duration `envconfig:"PERKMINT_RATE_LIMIT_WRITE_WINDOW" default:"1m"`
	WriteUserLimit int           `envconfig:"PERKMINT_RATE_LIMIT_WRITE_USER_LIMIT" default:"30"`
	WriteIPLimit   int           `envconfig:"PERKMINT_RATE_LIMIT_WRITE_IP_LIMIT" default:"120"`
	EntryWindow    time.Duration `envconfig:"PERKMINT_RATE_LIMIT_ENTRY_WINDOW" default:"1m"`
	EntryUserLimit int           `envconfig:"PERKMINT_RATE_LIMIT_ENTRY_USER_LIMIT" default:"10"`
	EntryIPLimit   int           `envconfig:"PERKMINT_RATE_LIMIT_ENTRY_IP_LIMIT" default:"60"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"PERKMINT_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"PERKMINT_AUTO_MIGRATE" default:"false"`
}

type EventingConfig struct {
	ArchiveIdempotencyTTL time.Duration `envconfig:"PERKMINT_EVENTING_IDEMPOTENCY_TTL" default:"720h"`
}

// ChainConfig wires the ledger gateway. OperatorKey is the hex-encoded
// private key of the account that signs mint/use/transfer submissions;
// CustodyAddress is where minted vouchers are held while the relational
// store tracks user-level ownership.
type ChainConfig struct {
	RPCURL          string        `envconfig:"PERKMINT_CHAIN_RPC_URL" required:"true"`
	ChainID         int64         `envconfig:"PERKMINT_CHAIN_ID" required:"true"`
	ContractAddress string        `envconfig:"PERKMINT_CHAIN_CONTRACT_ADDRESS" required:"true"`
	OperatorKey     string        `envconfig:"PERKMINT_CHAIN_OPERATOR_KEY" required:"true"`
	CustodyAddress  string        `envconfig:"PERKMINT_CHAIN_CUSTODY_ADDRESS" required:"true"`
	CallTimeout     time.Duration `envconfig:"PERKMINT_CHAIN_CALL_TIMEOUT" default:"10s"`
	SubmitTimeout   time.Duration `envconfig:"PERKMINT_CHAIN_SUBMIT_TIMEOUT" default:"30s"`
	GasPadPercent   int64         `envconfig:"PERKMINT_CHAIN_GAS_PAD_PERCENT" default:"20"`
}

type IPFSConfig struct {
	APIURL     string        `envconfig:"PERKMINT_IPFS_API_URL" default:"localhost:5001"`
	AddTimeout time.Duration `envconfig:"PERKMINT_IPFS_ADD_TIMEOUT" default:"30s"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"PERKMINT_GCP_PROJECT_ID" required:"true"`
	CredentialsJSON        string `envconfig:"PERKMINT_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"PERKMINT_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	DomainTopic         string `envconfig:"PERKMINT_PUBSUB_DOMAIN_TOPIC" required:"true"`
	ArchiveSubscription string `envconfig:"PERKMINT_PUBSUB_ARCHIVE_SUBSCRIPTION" required:"true"`
}

type BigQueryConfig struct {
	Dataset               string `envconfig:"PERKMINT_BIGQUERY_DATASET" default:"perkmint"`
	SettlementEventsTable string `envconfig:"PERKMINT_BIGQUERY_SETTLEMENT_TABLE" default:"settlement_events"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"PERKMINT_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"PERKMINT_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"PERKMINT_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

type ReconcilerConfig struct {
	PollIntervalMS   int           `envconfig:"PERKMINT_RECONCILER_POLL_MS" default:"2000"`
	BatchSize        int           `envconfig:"PERKMINT_RECONCILER_BATCH_SIZE" default:"25"`
	PendingTimeout   time.Duration `envconfig:"PERKMINT_RECONCILER_PENDING_TIMEOUT" default:"30m"`
	LookbackBlocks   uint64        `envconfig:"PERKMINT_RECONCILER_LOOKBACK_BLOCKS" default:"5000"`
	ReceiptRetries   uint64        `envconfig:"PERKMINT_RECONCILER_RECEIPT_RETRIES" default:"3"`
	ReceiptRetryBase time.Duration `envconfig:"PERKMINT_RECONCILER_RECEIPT_RETRY_BASE" default:"200ms"`
}

type CronConfig struct {
	Interval            time.Duration `envconfig:"PERKMINT_CRON_INTERVAL" default:"1h"`
	OutboxRetentionDays int           `envconfig:"PERKMINT_CRON_OUTBOX_RETENTION_DAYS" default:"30"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	legacyValues := map[string]string{
		EnvDBHost: db.LegacyHost,
		EnvDBUser: db.LegacyUser,
		EnvDBName: db.LegacyName,
	}
	for _, env := range legacyDBEnvVars {
		if legacyValues[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.LegacyUser)
	if db.LegacyPassword != "" {
		userInfo = url.UserPassword(db.LegacyUser, db.LegacyPassword)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.LegacyHost, db.LegacyPort),
		Path:   db.LegacyName,
	}

	if db.LegacySSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.LegacySSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
