package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/nimasrn/school-treasury/internal/config"
	"github.com/nimasrn/school-treasury/internal/processor"
	"github.com/nimasrn/school-treasury/internal/repository"
	"github.com/nimasrn/school-treasury/pkg/logger"
	"github.com/nimasrn/school-treasury/pkg/pg"
)

const usage = `usage: cli <command> [--env=path] [--dir=./migrations]

commands:
  migrate       apply pending postgres migrations
  status        print the migration status
  reconcile     replay the transaction history against the balance snapshot
  escalations   list critical opening discrepancies recorded by the processor`

func main() {
	if len(os.Args) < 2 || strings.HasPrefix(os.Args[1], "--") {
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}

	err := config.Load(config.EnvPathFromArgs(os.Args, ".env"))
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	cfg := config.Get()

	switch os.Args[1] {
	case "migrate":
		// cli migrate --dir=./migrations
		err = pg.Migrate(cfg.WriteDatabase(), getMigrationPath())
	case "status":
		err = pg.Status(cfg.WriteDatabase(), getMigrationPath())
	case "reconcile":
		err = reconcile(cfg)
	case "escalations":
		err = escalations(cfg)
	default:
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}
	if err != nil {
		logger.Error("command failed", "command", os.Args[1], "error", err)
		os.Exit(1)
	}
}

func reconcile(cfg *config.Config) error {
	db, err := cfg.OpenDatabase()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	result, err := repository.NewLedgerRepository(db, cfg.TreasuryPostMaxRetries).Reconcile(ctx)
	if err != nil {
		return err
	}
	if err := printJSON(result); err != nil {
		return err
	}
	if !result.Consistent || !result.LatestMatches {
		return fmt.Errorf("ledger is inconsistent: difference %+v", result.Difference)
	}
	return nil
}

func escalations(cfg *config.Config) error {
	adapter, err := cfg.OpenRedis("cli")
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	list, err := processor.Escalations(ctx, adapter)
	if err != nil {
		return err
	}
	return printJSON(list)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func getMigrationPath() string {
	for _, v := range os.Args {
		if strings.HasPrefix(v, "--dir=") {
			return strings.TrimPrefix(v, "--dir=")
		}
	}
	return "./migrations"
}
