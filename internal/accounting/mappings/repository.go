package mappings

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/ledger/internal/accounting/money"
	"github.com/odyssey-erp/ledger/internal/accounting/shared"
)

// Repository resolves integration keys to GL accounts.
type Repository interface {
	Get(ctx context.Context, company money.CompanyCode, module, key string) (AccountMapping, error)
	Upsert(ctx context.Context, mapping AccountMapping) error
}

type repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

// Get resolves an account mapping for the specified key.
func (r *repository) Get(ctx context.Context, company money.CompanyCode, module, key string) (AccountMapping, error) {
	if module == "" || key == "" {
		return AccountMapping{}, shared.Validationf("module and key required")
	}
	var (
		mapping AccountMapping
		account string
		cc      string
	)
	err := r.db.QueryRow(ctx, `SELECT module, key, company_code, account_code, created_at, updated_at
FROM account_mappings WHERE company_code=$1 AND module=$2 AND key=$3`,
		company.String(), strings.ToUpper(module), key).
		Scan(&mapping.Module, &mapping.Key, &cc, &account, &mapping.CreatedAt, &mapping.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return AccountMapping{}, fmt.Errorf("%w: %s/%s/%s", shared.ErrMappingNotFound, company, module, key)
		}
		return AccountMapping{}, shared.Infrastructure("mappings: get", err)
	}
	mapping.CompanyCode = money.CompanyCode(cc)
	if mapping.Account, err = money.ParseAccountCode(account); err != nil {
		return AccountMapping{}, shared.Infrastructure("mappings: stored account", err)
	}
	return mapping, nil
}

// Upsert creates or repoints a mapping.
func (r *repository) Upsert(ctx context.Context, mapping AccountMapping) error {
	if mapping.Module == "" || mapping.Key == "" || mapping.Account == "" || mapping.CompanyCode == "" {
		return shared.Validationf("company, module, key and account required")
	}
	_, err := r.db.Exec(ctx, `INSERT INTO account_mappings (module, key, company_code, account_code)
VALUES ($1, $2, $3, $4)
ON CONFLICT (company_code, module, key) DO UPDATE SET account_code = EXCLUDED.account_code, updated_at = NOW()`,
		strings.ToUpper(mapping.Module), mapping.Key, mapping.CompanyCode.String(), mapping.Account.String())
	return shared.Infrastructure("mappings: upsert", err)
}
