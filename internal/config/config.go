package config

import (
	"time"

	"github.com/Netflix/go-env"
	"github.com/joho/godotenv"
	"github.com/nimasrn/school-treasury/pkg/logger"
	"github.com/pkg/errors"
)

const ConfigTagName = "env"
const ConfigDefaultTagName = "default"

var config *Config

// Config holds every setting of the treasury binaries. Only this struct
// must be used to read configuration; no direct access to env or any other
// config source should be made outside this package.
type Config struct {
	AppEnv   string `env:"APP_ENV,default=dev"`
	AppName  string `env:"APP_NAME,default=school_treasury"`
	LogLevel string `env:"LOG_LEVEL"`

	HttpListenAddr         string        `env:"HTTP_LISTEN_ADDR,default=:8080"`
	HttpServerReadTimeout  int           `env:"HTTP_SERVER_READ_TIMEOUT"`
	HttpServerWriteTimeout int           `env:"HTTP_SERVER_WRITE_TIMEOUT"`
	HttpRequestTimeout     time.Duration `env:"HTTP_REQUEST_TIMEOUT,default=5s"`
	ReportsListenAddr      string        `env:"REPORTS_LISTEN_ADDR,default=:8082"`
	MetricsAddr            string        `env:"METRICS_ADDR,default=:9100"`

	// DBDriver selects the ledger storage: postgres (read/write split) or sqlite (single node).
	DBDriver   string `env:"DB_DRIVER,default=postgres"`
	SQLitePath string `env:"SQLITE_PATH,default=treasury.db"`

	PostgresReadHost     string `env:"POSTGRES_READ_HOST"`
	PostgresReadPort     string `env:"POSTGRES_READ_PORT"`
	PostgresReadUser     string `env:"POSTGRES_READ_USER"`
	PostgresReadPassword string `env:"POSTGRES_READ_PASSWORD"`
	PostgresReadDatabase string `env:"POSTGRES_READ_DBNAME"`

	PostgresWriteHost     string `env:"POSTGRES_WRITE_HOST"`
	PostgresWritePort     string `env:"POSTGRES_WRITE_PORT"`
	PostgresWriteUser     string `env:"POSTGRES_WRITE_USER"`
	PostgresWritePassword string `env:"POSTGRES_WRITE_PASSWORD"`
	PostgresWriteDatabase string `env:"POSTGRES_WRITE_DBNAME"`

	PostgresSSLMode        string `env:"POSTGRES_SSLMODE,default=disable"`
	PostgresConnectTimeout int    `env:"POSTGRES_CONNECT_TIMEOUT,default=5"`

	RedisAddr               string `env:"REDIS_ADDR"`
	RedisUsername           string `env:"REDIS_USER"`
	RedisPassword           string `env:"REDIS_PASS"`
	RedisDatabase           int    `env:"REDIS_DATABASE"`
	RedisUniversalKeyPrefix string `env:"REDIS_UNIVERSAL_KEY_PREFIX,default=treasury:"`

	PromNamespace string `env:"PROM_NAMESPACE,default=school"`

	TreasuryMinReasonLength     int   `env:"TREASURY_MIN_REASON_LENGTH,default=5"`
	TreasuryMinNotesLength      int   `env:"TREASURY_MIN_NOTES_LENGTH,default=5"`
	TreasuryDefaultFloat        int64 `env:"TREASURY_DEFAULT_FLOAT"`
	TreasuryDiscrepancyWarn     int64 `env:"TREASURY_DISCREPANCY_WARN,default=1000"`
	TreasuryDiscrepancyCritical int64 `env:"TREASURY_DISCREPANCY_CRITICAL,default=10000"`
	TreasuryPostMaxRetries      int   `env:"TREASURY_POST_MAX_RETRIES,default=3"`

	EventsStream       string        `env:"EVENTS_STREAM,default=ledger:events"`
	EventsGroup        string        `env:"EVENTS_GROUP,default=treasury-processor"`
	EventsConsumer     string        `env:"EVENTS_CONSUMER"`
	EventsMaxLen       int64         `env:"EVENTS_MAX_LEN,default=100000"`
	EventsPollInterval time.Duration `env:"EVENTS_POLL_INTERVAL,default=1s"`
	EventsWorkers      int           `env:"EVENTS_WORKERS,default=4"`

	IdempotencyTTL     time.Duration `env:"IDEMPOTENCY_TTL,default=24h"`
	IdempotencyLockTTL time.Duration `env:"IDEMPOTENCY_LOCK_TTL,default=30s"`

	AuthPolicyFile string `env:"AUTH_POLICY_FILE"`
}

func Load(path string) error {
	logger.Info("loading configs..", "path", path)
	c := &Config{}
	var err error
	if path != "" {
		logger.Info("trying to publish env from file", "path", path)
		err = godotenv.Load(path)
		if err != nil {
			return errors.Wrapf(err, "failed to load configuration file %s", path)
		}
	}

	_, err = env.UnmarshalFromEnviron(c)
	if err != nil {
		return errors.Wrap(err, "failed to map env variables to Configuration object")
	}

	if err = c.validate(); err != nil {
		return err
	}

	config = c
	return nil
}

func (c *Config) validate() error {
	switch c.DBDriver {
	case "postgres", "sqlite":
	default:
		return errors.Errorf("unsupported DB_DRIVER %q", c.DBDriver)
	}
	if c.TreasuryDiscrepancyWarn > c.TreasuryDiscrepancyCritical {
		return errors.New("TREASURY_DISCREPANCY_WARN must not exceed TREASURY_DISCREPANCY_CRITICAL")
	}
	if c.TreasuryMinReasonLength < 1 || c.TreasuryMinNotesLength < 1 {
		return errors.New("treasury minimum text lengths must be positive")
	}
	return nil
}

func Get() *Config {
	if config == nil {
		logger.Panic("Config is not initialized")
	}
	return config
}

// Set installs c as the process configuration. Used by tests and tools that
// build a Config by hand.
func Set(c *Config) {
	config = c
}
