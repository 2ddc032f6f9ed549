package pg

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/gorm/schema"
)

type txContextKey string

const txKey txContextKey = "trx"

// DB splits reads and writes across two gorm handles. Inside WithinTransaction
// both Read and Write resolve to the transaction carried by the context.
type DB struct {
	read  *gorm.DB
	write *gorm.DB
}

func gormConfig(withDebug bool) *gorm.Config {
	c := &gorm.Config{
		NamingStrategy: schema.NamingStrategy{
			SingularTable: true,
		},
		TranslateError: true,
		Logger:         gormLogger(log.New(os.Stdout, "\r\n", log.LstdFlags), withDebug),
	}
	return c
}

// gormLogger reports slow queries and failures. ErrRecordNotFound is a
// normal answer for ledger lookups and is not reported.
func gormLogger(w logger.Writer, withDebug bool) logger.Interface {
	level := logger.Warn
	if withDebug {
		level = logger.Info
	}
	return logger.New(w, logger.Config{
		SlowThreshold:             200 * time.Millisecond,
		LogLevel:                  level,
		IgnoreRecordNotFoundError: true,
		Colorful:                  withDebug,
	})
}

// GormConfig is the configuration every handle in the service is opened with.
func GormConfig(withDebug bool) *gorm.Config {
	return gormConfig(withDebug)
}

func Create(config Config, withDebug bool) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(config.DSN()), gormConfig(withDebug))
	if err != nil {
		return nil, err
	}

	if withDebug {
		db = db.Debug()
	}
	return db, nil
}

// CreateSQLite opens a single-node sqlite database. The pool is capped at one
// connection so writers queue on it instead of failing with SQLITE_BUSY.
func CreateSQLite(path string, withDebug bool) (*DB, error) {
	db, err := gorm.Open(sqlite.Open(path), gormConfig(withDebug))
	if err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)

	if withDebug {
		db = db.Debug()
	}
	return Wrap(db), nil
}

func CreateReadWrite(readConfig Config, writeConfig Config, withDebug bool) (*DB, error) {
	read, err := Create(readConfig, withDebug)
	if err != nil {
		return nil, err
	}
	write, err := Create(writeConfig, withDebug)
	if err != nil {
		return nil, err
	}
	return &DB{read, write}, nil
}

// Wrap uses one gorm handle for both reads and writes.
func Wrap(db *gorm.DB) *DB {
	return &DB{read: db, write: db}
}

func (r *DB) WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey).(*gorm.DB); ok {
		return fn(ctx)
	}
	return r.write.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ctx = context.WithValue(ctx, txKey, tx)
		return fn(ctx)
	})
}

func (r *DB) Write(ctx context.Context) *gorm.DB {
	tx, ok := ctx.Value(txKey).(*gorm.DB)
	if ok {
		return tx
	}

	tx = r.write.WithContext(ctx)

	return tx
}

func (r *DB) Read(ctx context.Context) *gorm.DB {
	tx, ok := ctx.Value(txKey).(*gorm.DB)
	if ok {
		return tx
	}

	tx = r.read.WithContext(ctx)

	return tx
}

func (r *DB) Ping(ctx context.Context) error {
	sqlDB, err := r.write.DB()
	if err != nil {
		return fmt.Errorf("pg: unwrap write pool: %w", err)
	}
	return sqlDB.PingContext(ctx)
}
