package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/vladislavdragonenkov/storefront/internal/app"
	"github.com/vladislavdragonenkov/storefront/internal/storage/postgres"
)

const defaultTimeout = 30 * time.Second

var errDSNRequired = errors.New("STOREFRONT_POSTGRES_DSN (or -dsn) is required")

type migrateArgs struct {
	direction string
	steps     int
	dsn       string
}

func main() {
	if err := run(context.Background(), os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func parseArgs(args []string, stderr io.Writer) (migrateArgs, error) {
	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var a migrateArgs
	fs.StringVar(&a.direction, "direction", "up", "migration direction: up|down|status")
	fs.IntVar(&a.steps, "steps", 0, "number of migrations to apply/rollback (0=all for up, 1 for down)")
	fs.StringVar(&a.dsn, "dsn", "", "PostgreSQL DSN (fallback: STOREFRONT_POSTGRES_DSN)")
	if err := fs.Parse(args); err != nil {
		return migrateArgs{}, err
	}

	a.direction = strings.ToLower(strings.TrimSpace(a.direction))
	switch a.direction {
	case "up", "status":
	case "down":
		if a.steps <= 0 {
			a.steps = 1
		}
	default:
		return migrateArgs{}, fmt.Errorf("unsupported direction %q: expected up|down|status", a.direction)
	}
	if a.steps < 0 {
		return migrateArgs{}, fmt.Errorf("steps must be >= 0, got %d", a.steps)
	}

	a.dsn = strings.TrimSpace(a.dsn)
	if a.dsn == "" {
		// при невалидном конфиге читаем DSN напрямую из окружения
		if cfg, err := app.LoadConfig(); err == nil {
			a.dsn = strings.TrimSpace(cfg.PostgresDSN)
		} else {
			a.dsn = strings.TrimSpace(os.Getenv("STOREFRONT_POSTGRES_DSN"))
		}
	}
	if a.dsn == "" {
		return migrateArgs{}, errDSNRequired
	}
	return a, nil
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	a, err := parseArgs(args, stderr)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	store, err := postgres.Open(ctx, a.dsn)
	if err != nil {
		return fmt.Errorf("open postgres store: %w", err)
	}
	defer func() { _ = store.Close() }()

	var applied []string
	switch a.direction {
	case "up":
		if applied, err = store.MigrateUp(ctx, a.steps); err != nil {
			return fmt.Errorf("migrate up failed: %w", err)
		}
	case "down":
		if applied, err = store.MigrateDown(ctx, a.steps); err != nil {
			return fmt.Errorf("migrate down failed: %w", err)
		}
	}
	for _, id := range applied {
		_, _ = fmt.Fprintf(stdout, "%s %s\n", a.direction, id)
	}

	status, err := store.Status(ctx)
	if err != nil {
		return fmt.Errorf("migration status failed: %w", err)
	}
	_, _ = fmt.Fprintf(stdout, "migrate %s ok: version=%d applied=%d pending=%d\n",
		a.direction, status.Version, status.Applied, len(status.Pending))
	for _, id := range status.Pending {
		_, _ = fmt.Fprintf(stdout, "pending %s\n", id)
	}
	return nil
}
