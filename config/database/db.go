package database

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"strings"
	"time"

	"docshare/config"
	"docshare/pkg/logger"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema/postgres.sql
var postgresSchema string

//go:embed schema/sqlite.sql
var sqliteSchema string

// Retry controls how often Connect pings the database before giving up.
type Retry struct {
	Attempts int
	Delay    time.Duration
}

var DefaultRetry = Retry{Attempts: 5, Delay: 2 * time.Second}

// Connect opens the configured database and waits until it answers a ping.
// Retry a few times in case of temporary DNS/network blips.
func Connect(ctx context.Context, cfg *config.Config, retry Retry) (*sql.DB, error) {
	dsn := cfg.DatabaseURL
	if cfg.DBDriver == config.DriverSQLite {
		dsn = sqliteDSN(dsn)
	}

	db, err := sql.Open(cfg.DBDriver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	if cfg.DBDriver == config.DriverSQLite {
		// SQLite only supports one writer at a time.
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	} else {
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(time.Hour)
	}

	attempts := retry.Attempts
	if attempts < 1 {
		attempts = 1
	}
	for i := 0; i < attempts; i++ {
		if err = db.PingContext(ctx); err == nil {
			break
		}
		logger.Sugar.Infof("Database connection failed, retrying in %s... (%v)", retry.Delay, err)
		select {
		case <-ctx.Done():
			db.Close()
			return nil, ctx.Err()
		case <-time.After(retry.Delay):
		}
	}
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("could not connect to database after %d attempts: %w", attempts, err)
	}

	logger.Sugar.Infof("Successfully connected to the %s database", cfg.DBDriver)
	return db, nil
}

// Migrate applies the embedded schema for the driver. It is idempotent.
func Migrate(ctx context.Context, db *sql.DB, driver string) error {
	schema := sqliteSchema
	if driver == config.DriverPostgres {
		schema = postgresSchema
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

// OpenSQLite opens and migrates a SQLite database at path. Used by the CLI and tests.
func OpenSQLite(ctx context.Context, path string) (*sql.DB, error) {
	cfg := &config.Config{DBDriver: config.DriverSQLite, DatabaseURL: path}
	db, err := Connect(ctx, cfg, Retry{Attempts: 1})
	if err != nil {
		return nil, err
	}
	if err := Migrate(ctx, db, config.DriverSQLite); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// sqliteDSN carries the pragmas in the DSN so go-sqlite3 applies them to every new connection.
func sqliteDSN(path string) string {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + "_foreign_keys=on&_busy_timeout=5000&_journal_mode=WAL&_synchronous=NORMAL"
}
