package main

import (
	"context"
	"fmt"
	"os"

	"bsn-realtime/config"
	"bsn-realtime/internal/repository"
	"bsn-realtime/pkg/database"
	"bsn-realtime/pkg/logger"

	"github.com/spf13/pflag"
)

const usage = `
BSN Realtime - Database CLI Tool

Usage:
  migrate [flags] [command]

Commands:
  up          Create the realtime tables (idempotent)
  status      Show database connection status and row counts
  seed-dev    Seed users, chats and a welcome message for local testing

Flags:
`

func main() {
	envFile := pflag.String("env-file", "", "Path to a .env file")
	driver := pflag.String("driver", "", "Override DB_DRIVER (pgx or sqlite)")
	dsn := pflag.String("dsn", "", "Override DB_DSN")

	pflag.Usage = func() {
		fmt.Fprint(os.Stderr, usage)
		pflag.PrintDefaults()
	}
	pflag.Parse()

	if pflag.NArg() < 1 {
		pflag.Usage()
		os.Exit(1)
	}
	command := pflag.Arg(0)

	var cfg *config.Config
	if *envFile != "" {
		cfg = config.LoadConfig(*envFile)
	} else {
		cfg = config.LoadConfig()
	}
	if *driver != "" {
		cfg.DBDriver = *driver
	}
	if *dsn != "" {
		cfg.DBDSN = *dsn
	}

	l := logger.New(logger.DevelopmentMode)
	defer l.Sync()

	if err := runCommand(context.Background(), l, cfg, command); err != nil {
		l.Errorf("%s failed: %v", command, err)
		l.Sync()
		os.Exit(1)
	}
}

func runCommand(ctx context.Context, l *logger.Logger, cfg *config.Config, command string) error {
	switch command {
	case "up", "status", "seed-dev":
	default:
		pflag.Usage()
		return fmt.Errorf("unknown command %q", command)
	}

	db, dialect, err := database.Open(ctx, cfg.DBDriver, cfg.DBDSN)
	if err != nil {
		return err
	}
	defer db.Close()

	switch command {
	case "up":
		l.Infof("Running migrations (%s)...", dialect)
		if err := repository.Migrate(ctx, db, dialect); err != nil {
			return err
		}
		l.Infof("Migrations completed successfully")

	case "status":
		if err := database.HealthCheck(ctx, db); err != nil {
			return err
		}
		l.Infof("Database connection: OK (%s)", dialect)
		for _, table := range []string{"users", "chats", "chat_participants", "chat_messages"} {
			count, err := database.TableCount(ctx, db, table)
			if err != nil {
				l.Warnf("Table %-20s unavailable: %v", table, err)
				continue
			}
			l.Infof("Table %-20s %d rows", table, count)
		}

	case "seed-dev":
		if err := repository.Migrate(ctx, db, dialect); err != nil {
			return err
		}
		result, err := database.SeedDevelopment(ctx,
			repository.NewUserRepository(db, dialect),
			repository.NewChatRepository(db, dialect, repository.DefaultChatRepositoryConfig()),
		)
		if err != nil {
			return err
		}
		l.Infof("Seed summary: %d users, %d chats, %d messages", len(result.Users), len(result.Chats), result.Messages)
	}
	return nil
}
