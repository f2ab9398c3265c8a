package ap

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/ledger/internal/accounting/shared"
	"github.com/odyssey-erp/ledger/internal/platform/db"
)

// Repository defines AP data access.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error

	GetInvoice(ctx context.Context, id uuid.UUID) (Invoice, error)
	GetInvoiceWithDetails(ctx context.Context, id uuid.UUID) (InvoiceWithDetails, error)
	ListInvoices(ctx context.Context, req ListInvoicesRequest) ([]Invoice, error)
	GetPaymentWithDetails(ctx context.Context, id uuid.UUID) (PaymentWithDetails, error)

	SetInvoiceLedger(ctx context.Context, id uuid.UUID, state LedgerState) error
	SetPaymentLedger(ctx context.Context, id uuid.UUID, state LedgerState) error
}

// TxRepository defines operations within a transaction.
type TxRepository interface {
	NextNumber(ctx context.Context, prefix string) (string, error)

	CreateInvoice(ctx context.Context, inv Invoice) error
	CreateInvoiceLine(ctx context.Context, line InvoiceLine) error
	UpdateInvoiceStatus(ctx context.Context, id uuid.UUID, status InvoiceStatus, postedAt *time.Time) error
	VoidInvoice(ctx context.Context, id uuid.UUID, reason string) error
	InvoiceBalance(ctx context.Context, id uuid.UUID) (decimal.Decimal, error)

	CreatePayment(ctx context.Context, pay Payment) error
	CreateAllocation(ctx context.Context, alloc Allocation) error
}

var (
	_ Repository   = (*pgRepository)(nil)
	_ TxRepository = (*pgTxRepository)(nil)
)

type rowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type pgRepository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) Repository {
	return &pgRepository{pool: pool}
}

func (r *pgRepository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, "ap", func(tx pgx.Tx) error {
		return fn(ctx, &pgTxRepository{tx: tx})
	})
}

const invoiceColumns = `id, number, company_code, supplier_id, supplier_name, currency, inventory, total::text, status,
invoice_date, due_at, posted_at, ledger_status, ledger_reference, ledger_error, void_reason, created_by, created_at, updated_at`

func (r *pgRepository) GetInvoice(ctx context.Context, id uuid.UUID) (Invoice, error) {
	return getInvoice(ctx, r.pool, id)
}

func getInvoice(ctx context.Context, q rowQuerier, id uuid.UUID) (Invoice, error) {
	inv, err := scanInvoice(q.QueryRow(ctx, `SELECT `+invoiceColumns+` FROM ap_invoices WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Invoice{}, ErrInvoiceNotFound
	}
	if err != nil {
		return Invoice{}, shared.Infrastructure("ap: get invoice", err)
	}
	return inv, nil
}

func (r *pgRepository) GetInvoiceWithDetails(ctx context.Context, id uuid.UUID) (InvoiceWithDetails, error) {
	inv, err := r.GetInvoice(ctx, id)
	if err != nil {
		return InvoiceWithDetails{}, err
	}
	detail := InvoiceWithDetails{Invoice: inv}
	rows, err := r.pool.Query(ctx, `SELECT id, invoice_id, line_no, description, quantity::text, unit_price::text, total::text, cost_center
FROM ap_invoice_lines WHERE invoice_id = $1 ORDER BY line_no`, id)
	if err != nil {
		return InvoiceWithDetails{}, shared.Infrastructure("ap: invoice lines", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			line            InvoiceLine
			qty, price, tot string
		)
		if err := rows.Scan(&line.ID, &line.InvoiceID, &line.LineNo, &line.Description, &qty, &price, &tot, &line.CostCenter); err != nil {
			return InvoiceWithDetails{}, shared.Infrastructure("ap: scan invoice line", err)
		}
		if line.Quantity, line.UnitPrice, line.Total, err = decimals3(qty, price, tot); err != nil {
			return InvoiceWithDetails{}, shared.Infrastructure("ap: invoice line amounts", err)
		}
		detail.Lines = append(detail.Lines, line)
	}
	if err := rows.Err(); err != nil {
		return InvoiceWithDetails{}, shared.Infrastructure("ap: invoice lines", err)
	}
	paid, err := paidAmount(ctx, r.pool, id)
	if err != nil {
		return InvoiceWithDetails{}, err
	}
	detail.PaidAmount = paid
	detail.Balance = inv.Total.Sub(paid)
	return detail, nil
}

func (r *pgRepository) ListInvoices(ctx context.Context, req ListInvoicesRequest) ([]Invoice, error) {
	var (
		clauses []string
		args    []any
	)
	if req.Status != "" {
		args = append(args, string(req.Status))
		clauses = append(clauses, fmt.Sprintf("status = $%d", len(args)))
	}
	if req.LedgerStatus != "" {
		args = append(args, string(req.LedgerStatus))
		clauses = append(clauses, fmt.Sprintf("ledger_status = $%d", len(args)))
	}
	if req.SupplierID != 0 {
		args = append(args, req.SupplierID)
		clauses = append(clauses, fmt.Sprintf("supplier_id = $%d", len(args)))
	}
	where := ""
	if len(clauses) > 0 {
		where = " WHERE " + strings.Join(clauses, " AND ")
	}
	args = append(args, req.Limit, req.Offset)
	rows, err := r.pool.Query(ctx, fmt.Sprintf(`SELECT %s FROM ap_invoices%s ORDER BY created_at DESC, id LIMIT $%d OFFSET $%d`,
		invoiceColumns, where, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, shared.Infrastructure("ap: list invoices", err)
	}
	defer rows.Close()
	var out []Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, shared.Infrastructure("ap: scan invoice", err)
		}
		out = append(out, inv)
	}
	if err := rows.Err(); err != nil {
		return nil, shared.Infrastructure("ap: list invoices", err)
	}
	return out, nil
}

func (r *pgRepository) GetPaymentWithDetails(ctx context.Context, id uuid.UUID) (PaymentWithDetails, error) {
	var (
		pay    PaymentWithDetails
		amount string
		status string
	)
	err := r.pool.QueryRow(ctx, `SELECT id, number, company_code, supplier_id, currency, amount::text, paid_at, method, note,
ledger_status, ledger_reference, ledger_error, created_by, created_at FROM ap_payments WHERE id = $1`, id).
		Scan(&pay.ID, &pay.Number, &pay.CompanyCode, &pay.SupplierID, &pay.Currency, &amount, &pay.PaidAt, &pay.Method, &pay.Note,
			&status, &pay.Ledger.Reference, &pay.Ledger.Error, &pay.CreatedBy, &pay.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return PaymentWithDetails{}, ErrPaymentNotFound
	}
	if err != nil {
		return PaymentWithDetails{}, shared.Infrastructure("ap: get payment", err)
	}
	pay.Ledger.Status = LedgerStatus(status)
	if pay.Amount, err = decimal.NewFromString(amount); err != nil {
		return PaymentWithDetails{}, shared.Infrastructure("ap: payment amount", err)
	}
	rows, err := r.pool.Query(ctx, `SELECT payment_id, invoice_id, amount::text FROM ap_payment_allocations WHERE payment_id = $1 ORDER BY invoice_id`, id)
	if err != nil {
		return PaymentWithDetails{}, shared.Infrastructure("ap: payment allocations", err)
	}
	defer rows.Close()
	for rows.Next() {
		var alloc Allocation
		if err := rows.Scan(&alloc.PaymentID, &alloc.InvoiceID, &amount); err != nil {
			return PaymentWithDetails{}, shared.Infrastructure("ap: scan allocation", err)
		}
		if alloc.Amount, err = decimal.NewFromString(amount); err != nil {
			return PaymentWithDetails{}, shared.Infrastructure("ap: allocation amount", err)
		}
		pay.Allocations = append(pay.Allocations, alloc)
	}
	if err := rows.Err(); err != nil {
		return PaymentWithDetails{}, shared.Infrastructure("ap: payment allocations", err)
	}
	return pay, nil
}

func (r *pgRepository) SetInvoiceLedger(ctx context.Context, id uuid.UUID, state LedgerState) error {
	_, err := r.pool.Exec(ctx, `UPDATE ap_invoices SET ledger_status = $2, ledger_reference = $3, ledger_error = $4, updated_at = NOW() WHERE id = $1`,
		id, string(state.Status), state.Reference, state.Error)
	return shared.Infrastructure("ap: set invoice ledger state", err)
}

func (r *pgRepository) SetPaymentLedger(ctx context.Context, id uuid.UUID, state LedgerState) error {
	_, err := r.pool.Exec(ctx, `UPDATE ap_payments SET ledger_status = $2, ledger_reference = $3, ledger_error = $4 WHERE id = $1`,
		id, string(state.Status), state.Reference, state.Error)
	return shared.Infrastructure("ap: set payment ledger state", err)
}

type pgTxRepository struct {
	tx pgx.Tx
}

func (t *pgTxRepository) NextNumber(ctx context.Context, prefix string) (string, error) {
	var seq int64
	err := t.tx.QueryRow(ctx, `INSERT INTO ap_number_sequences (prefix, last_number) VALUES ($1, 1)
ON CONFLICT (prefix) DO UPDATE SET last_number = ap_number_sequences.last_number + 1
RETURNING last_number`, prefix).Scan(&seq)
	if err != nil {
		return "", shared.Infrastructure("ap: next number", err)
	}
	return fmt.Sprintf("%s-%06d", prefix, seq), nil
}

func (t *pgTxRepository) CreateInvoice(ctx context.Context, inv Invoice) error {
	_, err := t.tx.Exec(ctx, `INSERT INTO ap_invoices
(id, number, company_code, supplier_id, supplier_name, currency, inventory, total, status, invoice_date, due_at,
 ledger_status, created_by, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $14)`,
		inv.ID, inv.Number, inv.CompanyCode, inv.SupplierID, inv.SupplierName, inv.Currency, inv.Inventory,
		inv.Total.String(), string(inv.Status), inv.InvoiceDate, inv.DueAt, string(inv.Ledger.Status), inv.CreatedBy, inv.CreatedAt)
	return shared.Infrastructure("ap: create invoice", err)
}

func (t *pgTxRepository) CreateInvoiceLine(ctx context.Context, line InvoiceLine) error {
	_, err := t.tx.Exec(ctx, `INSERT INTO ap_invoice_lines (id, invoice_id, line_no, description, quantity, unit_price, total, cost_center)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		line.ID, line.InvoiceID, line.LineNo, line.Description, line.Quantity.String(), line.UnitPrice.String(), line.Total.String(), line.CostCenter)
	return shared.Infrastructure("ap: create invoice line", err)
}

func (t *pgTxRepository) UpdateInvoiceStatus(ctx context.Context, id uuid.UUID, status InvoiceStatus, postedAt *time.Time) error {
	tag, err := t.tx.Exec(ctx, `UPDATE ap_invoices SET status = $2, posted_at = COALESCE($3, posted_at), updated_at = NOW() WHERE id = $1`,
		id, string(status), postedAt)
	if err != nil {
		return shared.Infrastructure("ap: update invoice status", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrInvoiceNotFound
	}
	return nil
}

func (t *pgTxRepository) VoidInvoice(ctx context.Context, id uuid.UUID, reason string) error {
	tag, err := t.tx.Exec(ctx, `UPDATE ap_invoices SET status = $2, void_reason = $3, updated_at = NOW() WHERE id = $1`,
		id, string(InvoiceVoid), reason)
	if err != nil {
		return shared.Infrastructure("ap: void invoice", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrInvoiceNotFound
	}
	return nil
}

func (t *pgTxRepository) InvoiceBalance(ctx context.Context, id uuid.UUID) (decimal.Decimal, error) {
	inv, err := getInvoice(ctx, t.tx, id)
	if err != nil {
		return decimal.Zero, err
	}
	paid, err := paidAmount(ctx, t.tx, id)
	if err != nil {
		return decimal.Zero, err
	}
	return inv.Total.Sub(paid), nil
}

func (t *pgTxRepository) CreatePayment(ctx context.Context, pay Payment) error {
	_, err := t.tx.Exec(ctx, `INSERT INTO ap_payments
(id, number, company_code, supplier_id, currency, amount, paid_at, method, note, ledger_status, created_by, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		pay.ID, pay.Number, pay.CompanyCode, pay.SupplierID, pay.Currency, pay.Amount.String(), pay.PaidAt, pay.Method, pay.Note,
		string(pay.Ledger.Status), pay.CreatedBy, pay.CreatedAt)
	return shared.Infrastructure("ap: create payment", err)
}

func (t *pgTxRepository) CreateAllocation(ctx context.Context, alloc Allocation) error {
	_, err := t.tx.Exec(ctx, `INSERT INTO ap_payment_allocations (payment_id, invoice_id, amount) VALUES ($1, $2, $3)`,
		alloc.PaymentID, alloc.InvoiceID, alloc.Amount.String())
	return shared.Infrastructure("ap: create allocation", err)
}

func paidAmount(ctx context.Context, q rowQuerier, invoiceID uuid.UUID) (decimal.Decimal, error) {
	var paid string
	if err := q.QueryRow(ctx, `SELECT COALESCE(SUM(amount), 0)::text FROM ap_payment_allocations WHERE invoice_id = $1`, invoiceID).Scan(&paid); err != nil {
		return decimal.Zero, shared.Infrastructure("ap: paid amount", err)
	}
	return decimal.NewFromString(paid)
}

func scanInvoice(row pgx.Row) (Invoice, error) {
	var (
		inv           Invoice
		total, status string
		ledgerStatus  string
	)
	if err := row.Scan(&inv.ID, &inv.Number, &inv.CompanyCode, &inv.SupplierID, &inv.SupplierName, &inv.Currency, &inv.Inventory,
		&total, &status, &inv.InvoiceDate, &inv.DueAt, &inv.PostedAt, &ledgerStatus, &inv.Ledger.Reference, &inv.Ledger.Error,
		&inv.VoidReason, &inv.CreatedBy, &inv.CreatedAt, &inv.UpdatedAt); err != nil {
		return Invoice{}, err
	}
	inv.Status = InvoiceStatus(status)
	inv.Ledger.Status = LedgerStatus(ledgerStatus)
	var err error
	inv.Total, err = decimal.NewFromString(total)
	return inv, err
}

func decimals3(a, b, c string) (decimal.Decimal, decimal.Decimal, decimal.Decimal, error) {
	x, err := decimal.NewFromString(a)
	if err != nil {
		return decimal.Zero, decimal.Zero, decimal.Zero, err
	}
	y, err := decimal.NewFromString(b)
	if err != nil {
		return decimal.Zero, decimal.Zero, decimal.Zero, err
	}
	z, err := decimal.NewFromString(c)
	return x, y, z, err
}
