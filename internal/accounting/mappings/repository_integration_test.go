//go:build integration

package mappings

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/odyssey-erp/ledger/internal/accounting/money"
	"github.com/odyssey-erp/ledger/internal/accounting/shared"
	"github.com/odyssey-erp/ledger/internal/platform/db"
)

func TestRepositoryUpsertAndGet(t *testing.T) {
	ctx := context.Background()
	ctr, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("ledger"),
		tcpostgres.WithUsername("ledger"),
		tcpostgres.WithPassword("ledger"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ctr.Terminate(context.Background()) })

	dsn, err := ctr.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	pool, err := db.New(ctx, dsn, db.PoolOptions{MaxConns: 4})
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	migrator, err := db.NewMigrator(pool, nil)
	require.NoError(t, err)
	require.NoError(t, migrator.Up())

	repo := NewRepository(pool)
	company := money.CompanyCode("CN01")

	_, err = repo.Get(ctx, company, "ap", "ap.invoice.expense")
	require.ErrorIs(t, err, shared.ErrMappingNotFound)

	require.NoError(t, repo.Upsert(ctx, AccountMapping{
		CompanyCode: company, Module: "ap", Key: "ap.invoice.expense", Account: money.AccountCode("600000"),
	}))
	require.NoError(t, repo.Upsert(ctx, AccountMapping{
		CompanyCode: company, Module: "AP", Key: "ap.invoice.expense", Account: money.AccountCode("610000"),
	}))

	got, err := repo.Get(ctx, company, "ap", "ap.invoice.expense")
	require.NoError(t, err)
	require.Equal(t, "AP", got.Module)
	require.Equal(t, money.AccountCode("610000"), got.Account)
	require.Equal(t, company, got.CompanyCode)

	err = repo.Upsert(ctx, AccountMapping{CompanyCode: company, Module: "AP"})
	require.ErrorIs(t, err, shared.ErrValidation)
}
