package config

import (
	"os"
	"strings"

	"github.com/nimasrn/school-treasury/pkg/logger"
	"github.com/nimasrn/school-treasury/pkg/pg"
	"github.com/nimasrn/school-treasury/pkg/redis"
	"github.com/pkg/errors"
)

func (c *Config) ReadDatabase() pg.Config {
	return pg.Config{
		User:     c.PostgresReadUser,
		Host:     c.PostgresReadHost,
		Port:     c.PostgresReadPort,
		Password: c.PostgresReadPassword,
		Database: c.PostgresReadDatabase,

		SSLMode:         c.PostgresSSLMode,
		ApplicationName: c.AppName,
		ConnectTimeout:  c.PostgresConnectTimeout,
	}
}

func (c *Config) WriteDatabase() pg.Config {
	return pg.Config{
		User:     c.PostgresWriteUser,
		Host:     c.PostgresWriteHost,
		Port:     c.PostgresWritePort,
		Password: c.PostgresWritePassword,
		Database: c.PostgresWriteDatabase,

		SSLMode:         c.PostgresSSLMode,
		ApplicationName: c.AppName,
		ConnectTimeout:  c.PostgresConnectTimeout,
	}
}

// OpenDatabase connects the ledger store selected by DB_DRIVER. Query
// logging is on in dev.
func (c *Config) OpenDatabase() (*pg.DB, error) {
	debug := c.AppEnv == "dev"
	switch c.DBDriver {
	case "sqlite":
		db, err := pg.CreateSQLite(c.SQLitePath, debug)
		return db, errors.Wrapf(err, "failed to open sqlite database %s", c.SQLitePath)
	default:
		db, err := pg.CreateReadWrite(c.ReadDatabase(), c.WriteDatabase(), debug)
		return db, errors.Wrap(err, "failed connecting to pg")
	}
}

// OpenRedis returns the process-wide adapter for connName.
func (c *Config) OpenRedis(connName string) (redis.RedisAdapter, error) {
	adapter, err := redis.NewRedisAdapter(connName, c.RedisUniversalKeyPrefix, &redis.Options{
		Addrs:      []string{c.RedisAddr},
		ClientName: c.AppName + "-" + connName,
		DB:         c.RedisDatabase,
		Username:   c.RedisUsername,
		Password:   c.RedisPassword,
	})
	return adapter, errors.Wrap(err, "failed connecting to redis")
}

// EnvPathFromArgs returns the value of a --env=path argument, or fallback
// when none is given. A path that cannot be opened is ignored.
func EnvPathFromArgs(args []string, fallback string) string {
	for _, v := range args {
		if !strings.HasPrefix(v, "--env=") {
			continue
		}
		path := strings.TrimPrefix(v, "--env=")
		if _, err := os.Stat(path); err != nil {
			logger.Error("failed to open the passed env file", "path", path, "error", err)
			return ""
		}
		return path
	}
	if fallback == "" {
		return ""
	}
	if _, err := os.Stat(fallback); err != nil {
		return ""
	}
	return fallback
}
