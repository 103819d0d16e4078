package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/jessevdk/go-flags"

	"github.com/goodnatureofminers/tsbscanner-backend/migrations"
)

type config struct {
	Driver string `long:"driver" env:"MIGRATIONS_DRIVER" default:"postgres" choice:"postgres" choice:"clickhouse" description:"database to migrate"`
	DSN    string `long:"dsn" env:"MIGRATIONS_DSN" required:"true" description:"database DSN (postgres://... or clickhouse://...)"`
	Down   bool   `long:"down" env:"MIGRATIONS_DOWN" description:"roll back all migrations instead of applying them"`
}

func main() {
	cfg := config{}
	if _, err := flags.Parse(&cfg); err != nil {
		var ferr *flags.Error
		if errors.As(err, &ferr) && ferr.Type == flags.ErrHelp {
			return
		}
		log.Fatalf("failed to parse flags: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := runMigrations(ctx, cfg); err != nil {
		log.Fatalf("migration run failed: %v", err)
	}
}

func runMigrations(ctx context.Context, cfg config) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	driver := migrations.Driver(cfg.Driver)
	if cfg.Down {
		if err := migrations.Down(driver, cfg.DSN); err != nil {
			return fmt.Errorf("roll back %s: %w", driver, err)
		}
		log.Printf("%s migrations rolled back", driver)
		return nil
	}

	if err := migrations.Up(driver, cfg.DSN); err != nil {
		return fmt.Errorf("apply %s: %w", driver, err)
	}
	log.Printf("%s migrations applied successfully", driver)
	return nil
}
