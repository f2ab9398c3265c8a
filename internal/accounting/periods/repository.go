package periods

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/ledger/internal/accounting/shared"
)

// Repository persists period controls.
type Repository interface {
	Get(ctx context.Context, companyCode string, fiscalYear, period int) (Control, bool, error)
	Upsert(ctx context.Context, control Control) (Control, error)
	List(ctx context.Context, companyCode string, fiscalYear int) ([]Control, error)
}

type repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

// Get returns the control row; found is false when the period was never controlled.
func (r *repository) Get(ctx context.Context, companyCode string, fiscalYear, period int) (Control, bool, error) {
	var (
		c      Control
		status string
	)
	err := r.db.QueryRow(ctx, `SELECT company_code, fiscal_year, period, status, updated_at
FROM gl_period_controls WHERE company_code=$1 AND fiscal_year=$2 AND period=$3`, companyCode, fiscalYear, period).
		Scan(&c.CompanyCode, &c.FiscalYear, &c.Period, &status, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Control{}, false, nil
		}
		return Control{}, false, shared.Infrastructure("periods: get control", err)
	}
	if c.Status, err = ParseStatus(status); err != nil {
		return Control{}, false, shared.Infrastructure("periods: get control", err)
	}
	return c, true, nil
}

func (r *repository) Upsert(ctx context.Context, control Control) (Control, error) {
	err := r.db.QueryRow(ctx, `INSERT INTO gl_period_controls (company_code, fiscal_year, period, status)
VALUES ($1,$2,$3,$4)
ON CONFLICT (company_code, fiscal_year, period) DO UPDATE SET status=EXCLUDED.status, updated_at=NOW()
RETURNING updated_at`, control.CompanyCode, control.FiscalYear, control.Period, string(control.Status)).
		Scan(&control.UpdatedAt)
	if err != nil {
		return Control{}, shared.Infrastructure("periods: upsert control", err)
	}
	return control, nil
}

func (r *repository) List(ctx context.Context, companyCode string, fiscalYear int) ([]Control, error) {
	rows, err := r.db.Query(ctx, `SELECT company_code, fiscal_year, period, status, updated_at
FROM gl_period_controls WHERE company_code=$1 AND fiscal_year=$2 ORDER BY period`, companyCode, fiscalYear)
	if err != nil {
		return nil, shared.Infrastructure("periods: list controls", err)
	}
	defer rows.Close()
	var out []Control
	for rows.Next() {
		var (
			c      Control
			status string
		)
		if err := rows.Scan(&c.CompanyCode, &c.FiscalYear, &c.Period, &status, &c.UpdatedAt); err != nil {
			return nil, shared.Infrastructure("periods: list controls", err)
		}
		if c.Status, err = ParseStatus(status); err != nil {
			return nil, shared.Infrastructure("periods: list controls", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, shared.Infrastructure("periods: list controls", err)
	}
	return out, nil
}
