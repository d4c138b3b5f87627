package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"bsn-realtime/internal/repository"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

// Open connects to the store selected by driver ("pgx" or "sqlite") and
// verifies the connection before returning.
func Open(ctx context.Context, driver, dsn string) (*sql.DB, repository.Dialect, error) {
	dialect, err := repository.DialectFor(driver)
	if err != nil {
		return nil, 0, err
	}
	if driver == "postgres" {
		driver = "pgx"
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, 0, fmt.Errorf("open %s: %w", dialect, err)
	}

	if dialect == repository.DialectSQLite {
		// one writer; an in-memory database also lives on a single connection
		db.SetMaxOpenConns(1)
		for _, pragma := range []string{
			"PRAGMA foreign_keys = ON",
			"PRAGMA busy_timeout = 5000",
			"PRAGMA journal_mode = WAL",
		} {
			if _, err := db.ExecContext(ctx, pragma); err != nil {
				db.Close()
				return nil, 0, fmt.Errorf("sqlite %q: %w", pragma, err)
			}
		}
	} else {
		// Connection pool settings
		db.SetMaxIdleConns(10)
		db.SetMaxOpenConns(100)
		db.SetConnMaxLifetime(time.Hour)
	}

	if err := Ping(ctx, db); err != nil {
		db.Close()
		return nil, 0, err
	}
	return db, dialect, nil
}

func Ping(ctx context.Context, db *sql.DB) error {
	if db == nil {
		return fmt.Errorf("database not initialized")
	}
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	return db.PingContext(ctx)
}

// HealthCheck pings and runs a trivial query.
func HealthCheck(ctx context.Context, db *sql.DB) error {
	if err := Ping(ctx, db); err != nil {
		return fmt.Errorf("ping failed: %w", err)
	}
	var one int
	if err := db.QueryRowContext(ctx, "SELECT 1").Scan(&one); err != nil {
		return fmt.Errorf("query failed: %w", err)
	}
	return nil
}

// TableCount returns the number of rows in one of the core tables.
func TableCount(ctx context.Context, db *sql.DB, table string) (int64, error) {
	switch table {
	case "users", "chats", "chat_participants", "chat_messages":
	default:
		return 0, fmt.Errorf("unknown table %q", table)
	}
	var n int64
	err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&n)
	return n, err
}
