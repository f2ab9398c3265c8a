package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/ledger/cmd/ledgerctl/cli"
	"github.com/odyssey-erp/ledger/internal/accounting/mappings"
	"github.com/odyssey-erp/ledger/internal/accounting/periods"
	"github.com/odyssey-erp/ledger/internal/app"
	"github.com/odyssey-erp/ledger/internal/platform/db"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, "load config:", err)
		os.Exit(1)
	}

	b := &backend{cfg: cfg, logger: app.NewLogger(cfg)}
	err = cli.NewRootCommand(b).ExecuteContext(ctx)
	b.close()
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// backend connects on first use; a command touching only Redis never dials Postgres.
type backend struct {
	cfg      *app.Config
	logger   *slog.Logger
	pool     *pgxpool.Pool
	migrator *db.Migrator
	jobs     *cli.JobsCLI
}

func (b *backend) connect(ctx context.Context) (*pgxpool.Pool, error) {
	if b.pool != nil {
		return b.pool, nil
	}
	pool, err := db.New(ctx, b.cfg.PGDSN, db.PoolOptions{MaxConns: 2})
	if err != nil {
		return nil, err
	}
	b.pool = pool
	return pool, nil
}

func (b *backend) Migrator(ctx context.Context) (cli.Migrator, error) {
	if b.migrator != nil {
		return b.migrator, nil
	}
	pool, err := b.connect(ctx)
	if err != nil {
		return nil, err
	}
	m, err := db.NewMigrator(pool, b.logger)
	if err != nil {
		return nil, err
	}
	b.migrator = m
	return m, nil
}

func (b *backend) Periods(ctx context.Context) (cli.PeriodControl, error) {
	pool, err := b.connect(ctx)
	if err != nil {
		return nil, err
	}
	return periods.NewService(periods.NewRepository(pool)), nil
}

func (b *backend) Mappings(ctx context.Context) (cli.MappingStore, error) {
	pool, err := b.connect(ctx)
	if err != nil {
		return nil, err
	}
	return mappings.NewRepository(pool), nil
}

func (b *backend) Jobs(context.Context) (cli.JobQueue, error) {
	if b.jobs != nil {
		return b.jobs, nil
	}
	j, err := cli.NewJobsCLI(b.cfg.RedisAddr)
	if err != nil {
		return nil, err
	}
	b.jobs = j
	return j, nil
}

func (b *backend) close() {
	if b.migrator != nil {
		if err := b.migrator.Close(); err != nil {
			b.logger.Warn("close migrator", slog.Any("error", err))
		}
	}
	if b.jobs != nil {
		if err := b.jobs.Close(); err != nil {
			b.logger.Warn("close jobs client", slog.Any("error", err))
		}
	}
	if b.pool != nil {
		b.pool.Close()
	}
}
