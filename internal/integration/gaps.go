package integration

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/ledger/internal/accounting/shared"
	platformshared "github.com/odyssey-erp/ledger/internal/shared"
)

// GapStatus tracks a subledger document whose ledger posting is missing.
type GapStatus string

const (
	GapPending  GapStatus = "PENDING"
	GapResolved GapStatus = "RESOLVED"
	GapFailed   GapStatus = "FAILED"
)

// ParseGapStatus parses a stored or requested gap status.
func ParseGapStatus(s string) (GapStatus, error) {
	switch st := GapStatus(strings.ToUpper(strings.TrimSpace(s))); st {
	case GapPending, GapResolved, GapFailed:
		return st, nil
	}
	return "", shared.Validationf("unknown gap status %q", s)
}

// ErrGapNotFound indicates an unknown gap id.
var ErrGapNotFound = fmt.Errorf("%w: reconciliation gap", shared.ErrNotFound)

// Gap is a recorded reconciliation gap. Payload is the ledger create request
// that failed, replayable as-is.
type Gap struct {
	ID                uuid.UUID
	SourceModule      string
	SourceID          uuid.UUID
	SourceNumber      string
	CompanyCode       string
	Payload           json.RawMessage
	LastError         string
	Retryable         bool
	Attempts          int
	Status            GapStatus
	DocumentReference string
	CreatedAt         time.Time
	UpdatedAt         time.Time
	ResolvedAt        *time.Time
}

// GapFilter narrows gap listings.
type GapFilter struct {
	Status       GapStatus
	SourceModule string
}

// GapStore persists reconciliation gaps. One gap exists per source document.
// RecordFailure counts attempts against the stored gap and marks it FAILED
// once maxAttempts is reached; a RESOLVED gap is returned untouched.
type GapStore interface {
	RecordFailure(ctx context.Context, gap Gap, maxAttempts int) (Gap, error)
	MarkResolved(ctx context.Context, id uuid.UUID, documentReference string) error
	Get(ctx context.Context, id uuid.UUID) (Gap, error)
	ListPending(ctx context.Context, limit int) ([]Gap, error)
	List(ctx context.Context, filter GapFilter, page platformshared.Pagination) ([]Gap, int, error)
}

// GapRepository is the Postgres GapStore.
type GapRepository struct {
	db *pgxpool.Pool
}

func NewGapRepository(db *pgxpool.Pool) *GapRepository {
	return &GapRepository{db: db}
}

const gapColumns = `id, source_module, source_id, source_number, company_code, payload, last_error, retryable,
attempts, status, document_reference, created_at, updated_at, resolved_at`

// RecordFailure inserts a gap or bumps the attempt counter of the existing
// one. The status is derived from the stored attempt count.
func (r *GapRepository) RecordFailure(ctx context.Context, gap Gap, maxAttempts int) (Gap, error) {
	if gap.ID == uuid.Nil {
		gap.ID = uuid.New()
	}
	row := r.db.QueryRow(ctx, `INSERT INTO gl_reconciliation_gaps
(id, source_module, source_id, source_number, company_code, payload, last_error, retryable, attempts, status)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 1, CASE WHEN 1 >= $9 THEN 'FAILED' ELSE 'PENDING' END)
ON CONFLICT (source_module, source_id) DO UPDATE SET
	payload = EXCLUDED.payload,
	last_error = EXCLUDED.last_error,
	retryable = EXCLUDED.retryable,
	attempts = gl_reconciliation_gaps.attempts + 1,
	status = CASE WHEN gl_reconciliation_gaps.attempts + 1 >= $9 THEN 'FAILED' ELSE 'PENDING' END,
	updated_at = NOW()
WHERE gl_reconciliation_gaps.status <> 'RESOLVED'
RETURNING `+gapColumns,
		gap.ID, gap.SourceModule, gap.SourceID, gap.SourceNumber, gap.CompanyCode, []byte(gap.Payload),
		gap.LastError, gap.Retryable, maxAttempts)
	stored, err := scanGap(row)
	if errors.Is(err, pgx.ErrNoRows) {
		stored, err = scanGap(r.db.QueryRow(ctx, `SELECT `+gapColumns+`
FROM gl_reconciliation_gaps WHERE source_module = $1 AND source_id = $2`, gap.SourceModule, gap.SourceID))
	}
	if err != nil {
		return Gap{}, shared.Infrastructure("integration: record gap", err)
	}
	return stored, nil
}

// MarkResolved closes a gap once the ledger holds the posting.
func (r *GapRepository) MarkResolved(ctx context.Context, id uuid.UUID, documentReference string) error {
	tag, err := r.db.Exec(ctx, `UPDATE gl_reconciliation_gaps
SET status = $2, document_reference = $3, resolved_at = NOW(), updated_at = NOW()
WHERE id = $1`, id, string(GapResolved), documentReference)
	if err != nil {
		return shared.Infrastructure("integration: resolve gap", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrGapNotFound
	}
	return nil
}

// Get loads a gap by id.
func (r *GapRepository) Get(ctx context.Context, id uuid.UUID) (Gap, error) {
	gap, err := scanGap(r.db.QueryRow(ctx, `SELECT `+gapColumns+` FROM gl_reconciliation_gaps WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Gap{}, ErrGapNotFound
	}
	if err != nil {
		return Gap{}, shared.Infrastructure("integration: get gap", err)
	}
	return gap, nil
}

// ListPending returns the oldest retryable pending gaps.
func (r *GapRepository) ListPending(ctx context.Context, limit int) ([]Gap, error) {
	rows, err := r.db.Query(ctx, `SELECT `+gapColumns+` FROM gl_reconciliation_gaps
WHERE status = $1 AND retryable
ORDER BY updated_at
LIMIT $2`, string(GapPending), limit)
	if err != nil {
		return nil, shared.Infrastructure("integration: list pending gaps", err)
	}
	defer rows.Close()
	return collectGaps(rows)
}

// List pages through gaps matching filter, newest first.
func (r *GapRepository) List(ctx context.Context, filter GapFilter, page platformshared.Pagination) ([]Gap, int, error) {
	where, args := gapWhere(filter)
	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM gl_reconciliation_gaps`+where, args...).Scan(&total); err != nil {
		return nil, 0, shared.Infrastructure("integration: count gaps", err)
	}
	args = append(args, page.PerPage, page.Offset())
	rows, err := r.db.Query(ctx, fmt.Sprintf(`SELECT %s FROM gl_reconciliation_gaps%s
ORDER BY created_at DESC, id
LIMIT $%d OFFSET $%d`, gapColumns, where, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, shared.Infrastructure("integration: list gaps", err)
	}
	defer rows.Close()
	gaps, err := collectGaps(rows)
	return gaps, total, err
}

func gapWhere(filter GapFilter) (string, []any) {
	var (
		clauses []string
		args    []any
	)
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		clauses = append(clauses, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.SourceModule != "" {
		args = append(args, filter.SourceModule)
		clauses = append(clauses, fmt.Sprintf("source_module = $%d", len(args)))
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func collectGaps(rows pgx.Rows) ([]Gap, error) {
	var gaps []Gap
	for rows.Next() {
		gap, err := scanGap(rows)
		if err != nil {
			return nil, shared.Infrastructure("integration: scan gap", err)
		}
		gaps = append(gaps, gap)
	}
	if err := rows.Err(); err != nil {
		return nil, shared.Infrastructure("integration: iterate gaps", err)
	}
	return gaps, nil
}

func scanGap(row pgx.Row) (Gap, error) {
	var (
		gap     Gap
		status  string
		payload []byte
	)
	if err := row.Scan(&gap.ID, &gap.SourceModule, &gap.SourceID, &gap.SourceNumber, &gap.CompanyCode, &payload,
		&gap.LastError, &gap.Retryable, &gap.Attempts, &status, &gap.DocumentReference,
		&gap.CreatedAt, &gap.UpdatedAt, &gap.ResolvedAt); err != nil {
		return Gap{}, err
	}
	gap.Payload = payload
	st, err := ParseGapStatus(status)
	if err != nil {
		return Gap{}, fmt.Errorf("integration: stored gap status %q", status)
	}
	gap.Status = st
	return gap, nil
}
