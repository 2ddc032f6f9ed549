package pg

import (
	"database/sql"
	"fmt"
	"strings"
)

type Config struct {
	User     string `env:"USER"`
	Host     string `env:"HOST"`
	Port     string `env:"PORT"`
	Password string `env:"PASSWORD"`
	Database string `env:"DBNAME"`
	// SSLMode defaults to disable.
	SSLMode string `env:"SSLMODE"`
	// ApplicationName shows up in pg_stat_activity next to ledger locks.
	ApplicationName string `env:"APPLICATION_NAME"`
	ConnectTimeout  int    `env:"CONNECT_TIMEOUT"`
}

func (c Config) DSN() string {
	sslMode := c.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	parts := []string{
		"host=" + c.Host,
		"user=" + c.User,
		"password=" + c.Password,
		"dbname=" + c.Database,
		"port=" + c.Port,
		"sslmode=" + sslMode,
	}
	if c.ApplicationName != "" {
		parts = append(parts, "application_name="+c.ApplicationName)
	}
	if c.ConnectTimeout > 0 {
		parts = append(parts, fmt.Sprintf("connect_timeout=%d", c.ConnectTimeout))
	}
	return strings.Join(parts, " ")
}

// newSqlConnection opens a plain lib/pq handle for goose.
func newSqlConnection(config Config) (*sql.DB, error) {
	return sql.Open("postgres", config.DSN())
}
