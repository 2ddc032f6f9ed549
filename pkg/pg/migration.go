package pg

import (
	"database/sql"

	_ "github.com/lib/pq"
	"github.com/pressly/goose/v3"
)

// Migrate applies the goose migrations in dir to the postgres database.
func Migrate(cfg Config, dir string) error {
	db, err := newSqlConnection(cfg)
	if err != nil {
		return err
	}
	defer db.Close()
	return migrateUp(db, "postgres", dir)
}

func migrateUp(db *sql.DB, dialect string, dir string) error {
	if err := goose.SetDialect(dialect); err != nil {
		return err
	}
	return goose.Up(db, dir)
}

// Status prints the applied/pending state of every migration.
func Status(cfg Config, dir string) error {
	db, err := newSqlConnection(cfg)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}
	return goose.Status(db, dir)
}
