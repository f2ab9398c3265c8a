package journals

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/ledger/internal/accounting/money"
	"github.com/odyssey-erp/ledger/internal/accounting/periods"
	"github.com/odyssey-erp/ledger/internal/accounting/shared"
	"github.com/odyssey-erp/ledger/internal/platform/db"
	platformshared "github.com/odyssey-erp/ledger/internal/shared"
)

// Filter narrows Search and Count.
type Filter struct {
	CompanyCode  money.CompanyCode
	Status       Status
	FiscalYear   int
	SourceModule string
}

// Repository is the sole authority for journal identity and document numbers.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	FindByID(ctx context.Context, id uuid.UUID) (*JournalEntry, error)
	FindBySource(ctx context.Context, src Source) (*JournalEntry, error)
	Search(ctx context.Context, filter Filter, page platformshared.Pagination) ([]*JournalEntry, error)
	Count(ctx context.Context, filter Filter) (int, error)
}

// TxRepository exposes methods available within a transaction.
type TxRepository interface {
	// Save inserts unseen ids and otherwise updates the header and replaces all lines.
	Save(ctx context.Context, entry *JournalEntry) error
	// UpdateStatus writes lifecycle fields only; lines are not touched.
	UpdateStatus(ctx context.Context, entry *JournalEntry) error
	GetForUpdate(ctx context.Context, id uuid.UUID) (*JournalEntry, error)
	FindBySource(ctx context.Context, src Source) (*JournalEntry, error)
	LinkSource(ctx context.Context, src Source, entryID uuid.UUID) error
	NextDocumentNumber(ctx context.Context, company money.CompanyCode, fiscalYear int) (money.DocumentNumber, error)
	// LockPeriod returns the period's control status and holds a share lock
	// on its control row until the transaction ends.
	LockPeriod(ctx context.Context, company money.CompanyCode, fp periods.FiscalPeriod) (periods.PeriodStatus, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

// WithTx runs fn in a transaction. Entry rows are locked with FOR UPDATE and
// number ranges through the upsert row lock.
func (r *repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, "journals", func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*JournalEntry, error) {
	return loadEntry(ctx, r.pool, `WHERE id=$1`, id)
}

func (r *repository) FindBySource(ctx context.Context, src Source) (*JournalEntry, error) {
	return findBySource(ctx, r.pool, src)
}

func (r *repository) Search(ctx context.Context, filter Filter, page platformshared.Pagination) ([]*JournalEntry, error) {
	where, args := filter.clause()
	args = append(args, page.PerPage, page.Offset())
	query := fmt.Sprintf(`SELECT %s FROM gl_journal_entries %s ORDER BY posting_date DESC, created_at DESC, id LIMIT $%d OFFSET $%d`,
		headerColumns, where, len(args)-1, len(args))
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, shared.Infrastructure("journals: search", err)
	}
	var entries []*JournalEntry
	for rows.Next() {
		entry, err := scanHeader(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		entries = append(entries, entry)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, shared.Infrastructure("journals: search", err)
	}
	for _, entry := range entries {
		if err := loadLines(ctx, r.pool, entry); err != nil {
			return nil, err
		}
	}
	return entries, nil
}

func (r *repository) Count(ctx context.Context, filter Filter) (int, error) {
	where, args := filter.clause()
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM gl_journal_entries `+where, args...).Scan(&total); err != nil {
		return 0, shared.Infrastructure("journals: count", err)
	}
	return total, nil
}

func (f Filter) clause() (string, []any) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, val any) {
		args = append(args, val)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if f.CompanyCode != "" {
		add("company_code=$%d", string(f.CompanyCode))
	}
	if f.Status != "" {
		add("status=$%d", string(f.Status))
	}
	if f.FiscalYear != 0 {
		add("fiscal_year=$%d", f.FiscalYear)
	}
	if f.SourceModule != "" {
		add("source_module=$%d", f.SourceModule)
	}
	if len(conds) == 0 {
		return "", nil
	}
	return "WHERE " + strings.Join(conds, " AND "), args
}

type txRepository struct {
	tx pgx.Tx
}

func (r *txRepository) Save(ctx context.Context, e *JournalEntry) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	var docNumber any
	if !e.documentNumber.IsZero() {
		docNumber = e.documentNumber.String()
	}
	var source, sourceID any
	if !e.Source.IsZero() {
		source, sourceID = e.Source.Module, e.Source.ID
	}
	_, err := r.tx.Exec(ctx, `INSERT INTO gl_journal_entries (id, document_number, company_code, fiscal_year, fiscal_period, special_period,
document_type, document_date, posting_date, status, currency, reference, tenant_id, source_module, source_id,
reversal_of, reversed_by, created_by, posted_by, created_at, updated_at, posted_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22)
ON CONFLICT (id) DO UPDATE SET document_number=EXCLUDED.document_number, company_code=EXCLUDED.company_code,
fiscal_year=EXCLUDED.fiscal_year, fiscal_period=EXCLUDED.fiscal_period, special_period=EXCLUDED.special_period,
document_type=EXCLUDED.document_type, document_date=EXCLUDED.document_date, posting_date=EXCLUDED.posting_date,
status=EXCLUDED.status, currency=EXCLUDED.currency, reference=EXCLUDED.reference, tenant_id=EXCLUDED.tenant_id,
reversal_of=EXCLUDED.reversal_of, reversed_by=EXCLUDED.reversed_by, posted_by=EXCLUDED.posted_by,
updated_at=EXCLUDED.updated_at, posted_at=EXCLUDED.posted_at`,
		e.ID, docNumber, e.Header.CompanyCode.String(), e.FiscalYear, e.FiscalPeriod, e.Header.SpecialPeriod,
		e.Header.DocumentType.String(), e.Header.DocumentDate, e.Header.PostingDate, string(e.status), e.Header.Currency.String(),
		e.Header.Reference, e.Header.TenantID, source, sourceID,
		e.ReversalOf, e.ReversedBy, e.CreatedBy, nullString(e.postedBy), e.CreatedAt, e.UpdatedAt, e.postedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.ConstraintName == "uq_gl_document_number" {
			return fmt.Errorf("%w: document number %s already issued", shared.ErrState, e.documentNumber)
		}
		return shared.Infrastructure("journals: save header", err)
	}
	if _, err := r.tx.Exec(ctx, `DELETE FROM gl_journal_entry_lines WHERE journal_entry_id=$1`, e.ID); err != nil {
		return shared.Infrastructure("journals: replace lines", err)
	}
	for _, line := range e.lines {
		var clearingDoc, clearingDate any
		if line.Clearing != nil {
			clearingDoc, clearingDate = line.Clearing.DocumentNumber.String(), line.Clearing.Date
		}
		if _, err := r.tx.Exec(ctx, `INSERT INTO gl_journal_entry_lines (journal_entry_id, line_number, account_code, debit_credit,
amount, local_amount, cost_center, profit_center, text, special_gl_indicator, clearing_document, clearing_date)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
			e.ID, line.Number, line.Account.String(), line.Indicator.String(), line.Amount.Decimal().String(),
			line.LocalAmount.Decimal().String(), line.CostCenter, line.ProfitCenter, line.Text, line.SpecialGLIndicator,
			clearingDoc, clearingDate); err != nil {
			return shared.Infrastructure("journals: insert line", err)
		}
		for _, la := range line.Ledgers {
			if _, err := r.tx.Exec(ctx, `INSERT INTO gl_journal_line_ledgers (journal_entry_id, line_number, ledger, ledger_type, amount)
VALUES ($1,$2,$3,$4,$5)`, e.ID, line.Number, string(la.Ledger), string(la.Type), la.Amount.Decimal().String()); err != nil {
				return shared.Infrastructure("journals: insert ledger amount", err)
			}
		}
	}
	return nil
}

func (r *txRepository) UpdateStatus(ctx context.Context, e *JournalEntry) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE gl_journal_entries SET status=$2, reversed_by=$3, updated_at=$4 WHERE id=$1`,
		e.ID, string(e.status), e.ReversedBy, e.UpdatedAt)
	if err != nil {
		return shared.Infrastructure("journals: update status", err)
	}
	if cmd.RowsAffected() == 0 {
		return shared.ErrJournalNotFound
	}
	return nil
}

func (r *txRepository) GetForUpdate(ctx context.Context, id uuid.UUID) (*JournalEntry, error) {
	return loadEntry(ctx, r.tx, `WHERE id=$1 FOR UPDATE`, id)
}

func (r *txRepository) FindBySource(ctx context.Context, src Source) (*JournalEntry, error) {
	return findBySource(ctx, r.tx, src)
}

func (r *txRepository) LinkSource(ctx context.Context, src Source, entryID uuid.UUID) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO gl_source_links (source_module, source_id, journal_entry_id) VALUES ($1,$2,$3)`, src.Module, src.ID, entryID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.ConstraintName == "uq_gl_source_links" {
			return shared.ErrSourceAlreadyLinked
		}
		return shared.Infrastructure("journals: link source", err)
	}
	return nil
}

// NextDocumentNumber increments the (company, year) range row. The row lock
// taken by the upsert is held until commit, serializing issuance per scope.
func (r *txRepository) NextDocumentNumber(ctx context.Context, company money.CompanyCode, fiscalYear int) (money.DocumentNumber, error) {
	var next int64
	err := r.tx.QueryRow(ctx, `INSERT INTO gl_document_number_ranges (company_code, fiscal_year, last_number)
VALUES ($1,$2,1)
ON CONFLICT (company_code, fiscal_year) DO UPDATE SET last_number=gl_document_number_ranges.last_number+1, updated_at=NOW()
RETURNING last_number`, company.String(), fiscalYear).Scan(&next)
	if err != nil {
		return "", shared.Infrastructure("journals: next document number", err)
	}
	return money.FormatDocumentNumber(next), nil
}

// LockPeriod creates a missing control row as OPEN so there is always a row
// to share-lock; a concurrent status change blocks until this tx ends.
func (r *txRepository) LockPeriod(ctx context.Context, company money.CompanyCode, fp periods.FiscalPeriod) (periods.PeriodStatus, error) {
	if _, err := r.tx.Exec(ctx, `INSERT INTO gl_period_controls (company_code, fiscal_year, period, status)
VALUES ($1,$2,$3,'OPEN')
ON CONFLICT (company_code, fiscal_year, period) DO NOTHING`, company.String(), fp.Year, fp.Period); err != nil {
		return "", shared.Infrastructure("journals: ensure period control", err)
	}
	var status string
	err := r.tx.QueryRow(ctx, `SELECT status FROM gl_period_controls
WHERE company_code=$1 AND fiscal_year=$2 AND period=$3 FOR SHARE`, company.String(), fp.Year, fp.Period).Scan(&status)
	if err != nil {
		return "", shared.Infrastructure("journals: lock period", err)
	}
	parsed, err := periods.ParseStatus(status)
	if err != nil {
		return "", shared.Infrastructure("journals: lock period", err)
	}
	return parsed, nil
}

func (r *txRepository) Delete(ctx context.Context, id uuid.UUID) error {
	if _, err := r.tx.Exec(ctx, `DELETE FROM gl_source_links WHERE journal_entry_id=$1`, id); err != nil {
		return shared.Infrastructure("journals: delete source link", err)
	}
	cmd, err := r.tx.Exec(ctx, `DELETE FROM gl_journal_entries WHERE id=$1`, id)
	if err != nil {
		return shared.Infrastructure("journals: delete", err)
	}
	if cmd.RowsAffected() == 0 {
		return shared.ErrJournalNotFound
	}
	return nil
}

const headerColumns = `id, document_number, company_code, fiscal_year, fiscal_period, special_period, document_type,
document_date, posting_date, status, currency, reference, tenant_id, source_module, source_id, reversal_of, reversed_by,
created_by, posted_by, created_at, updated_at, posted_at`

func findBySource(ctx context.Context, q querier, src Source) (*JournalEntry, error) {
	return loadEntry(ctx, q, `WHERE id=(SELECT journal_entry_id FROM gl_source_links WHERE source_module=$1 AND source_id=$2)`, src.Module, src.ID)
}

func loadEntry(ctx context.Context, q querier, where string, args ...any) (*JournalEntry, error) {
	entry, err := scanHeader(q.QueryRow(ctx, `SELECT `+headerColumns+` FROM gl_journal_entries `+where, args...))
	if err != nil {
		return nil, err
	}
	if err := loadLines(ctx, q, entry); err != nil {
		return nil, err
	}
	return entry, nil
}

func scanHeader(row pgx.Row) (*JournalEntry, error) {
	var (
		e                                  JournalEntry
		docNumber, sourceModule, postedBy  *string
		company, docType, status, currency string
		sourceID                           uuid.NullUUID
		postedAt                           *time.Time
	)
	err := row.Scan(&e.ID, &docNumber, &company, &e.FiscalYear, &e.FiscalPeriod, &e.Header.SpecialPeriod, &docType,
		&e.Header.DocumentDate, &e.Header.PostingDate, &status, &currency, &e.Header.Reference, &e.Header.TenantID,
		&sourceModule, &sourceID, &e.ReversalOf, &e.ReversedBy, &e.CreatedBy, &postedBy, &e.CreatedAt, &e.UpdatedAt, &postedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrJournalNotFound
		}
		return nil, shared.Infrastructure("journals: scan header", err)
	}
	if e.status, err = ParseStatus(status); err != nil {
		return nil, shared.Infrastructure("journals: entry "+e.ID.String(), err)
	}
	if e.Header.Currency, err = money.ParseCurrency(currency); err != nil {
		return nil, shared.Infrastructure("journals: entry "+e.ID.String(), err)
	}
	e.Header.CompanyCode = money.CompanyCode(company)
	e.Header.DocumentType = money.DocumentType(docType)
	if docNumber != nil {
		e.documentNumber = money.DocumentNumber(*docNumber)
	}
	if sourceModule != nil && sourceID.Valid {
		e.Source = Source{Module: *sourceModule, ID: sourceID.UUID}
	}
	if postedBy != nil {
		e.postedBy = *postedBy
	}
	e.postedAt = postedAt
	return &e, nil
}

func loadLines(ctx context.Context, q querier, e *JournalEntry) error {
	rows, err := q.Query(ctx, `SELECT line_number, account_code, debit_credit, amount::text, local_amount::text, cost_center,
profit_center, text, special_gl_indicator, clearing_document, clearing_date
FROM gl_journal_entry_lines WHERE journal_entry_id=$1 ORDER BY line_number`, e.ID)
	if err != nil {
		return shared.Infrastructure("journals: load lines", err)
	}
	defer rows.Close()
	var lines []Line
	for rows.Next() {
		var (
			l                   Line
			account, indicator  string
			amount, localAmount string
			clearingDoc         *string
			clearingDate        *time.Time
		)
		if err := rows.Scan(&l.Number, &account, &indicator, &amount, &localAmount, &l.CostCenter, &l.ProfitCenter,
			&l.Text, &l.SpecialGLIndicator, &clearingDoc, &clearingDate); err != nil {
			return shared.Infrastructure("journals: scan line", err)
		}
		l.Account = money.AccountCode(account)
		if l.Indicator, err = money.ParseIndicator(indicator); err != nil {
			return shared.Infrastructure("journals: scan line", err)
		}
		if l.Amount, err = money.ParseAmount(amount); err != nil {
			return shared.Infrastructure("journals: scan line", err)
		}
		if l.LocalAmount, err = money.ParseAmount(localAmount); err != nil {
			return shared.Infrastructure("journals: scan line", err)
		}
		if clearingDoc != nil && clearingDate != nil {
			l.Clearing = &Clearing{DocumentNumber: money.DocumentNumber(*clearingDoc), Date: *clearingDate}
		}
		lines = append(lines, l)
	}
	if err := rows.Err(); err != nil {
		return shared.Infrastructure("journals: load lines", err)
	}
	rows.Close()

	ledgerRows, err := q.Query(ctx, `SELECT line_number, ledger, ledger_type, amount::text
FROM gl_journal_line_ledgers WHERE journal_entry_id=$1 ORDER BY line_number, ledger`, e.ID)
	if err != nil {
		return shared.Infrastructure("journals: load ledger amounts", err)
	}
	defer ledgerRows.Close()
	for ledgerRows.Next() {
		var (
			number             int
			ledger, ledgerType string
			amount             string
		)
		if err := ledgerRows.Scan(&number, &ledger, &ledgerType, &amount); err != nil {
			return shared.Infrastructure("journals: scan ledger amount", err)
		}
		if number < 1 || number > len(lines) {
			return shared.Infrastructure("journals: scan ledger amount", fmt.Errorf("line %d out of range", number))
		}
		parsed, err := money.ParseAmount(amount)
		if err != nil {
			return shared.Infrastructure("journals: scan ledger amount", err)
		}
		lines[number-1].Ledgers = append(lines[number-1].Ledgers, LedgerAmount{
			Ledger: money.LedgerCode(ledger),
			Type:   money.LedgerType(ledgerType),
			Amount: parsed,
		})
	}
	if err := ledgerRows.Err(); err != nil {
		return shared.Infrastructure("journals: load ledger amounts", err)
	}
	e.lines = lines
	return nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
