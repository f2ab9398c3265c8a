package ap

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type memoryRepo struct {
	mu          sync.Mutex
	invoices    map[uuid.UUID]Invoice
	lines       map[uuid.UUID][]InvoiceLine
	payments    map[uuid.UUID]Payment
	allocations []Allocation
	sequences   map[string]int
	failTx      error
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		invoices:  make(map[uuid.UUID]Invoice),
		lines:     make(map[uuid.UUID][]InvoiceLine),
		payments:  make(map[uuid.UUID]Payment),
		sequences: make(map[string]int),
	}
}

// WithTx works on a copy and swaps it in on success.
func (m *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failTx != nil {
		return m.failTx
	}
	tx := &memoryTx{repo: m.clone()}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	m.invoices, m.lines, m.payments = tx.repo.invoices, tx.repo.lines, tx.repo.payments
	m.allocations, m.sequences = tx.repo.allocations, tx.repo.sequences
	return nil
}

func (m *memoryRepo) clone() *memoryRepo {
	c := newMemoryRepo()
	for k, v := range m.invoices {
		c.invoices[k] = v
	}
	for k, v := range m.lines {
		c.lines[k] = append([]InvoiceLine(nil), v...)
	}
	for k, v := range m.payments {
		c.payments[k] = v
	}
	for k, v := range m.sequences {
		c.sequences[k] = v
	}
	c.allocations = append([]Allocation(nil), m.allocations...)
	return c
}

func (m *memoryRepo) GetInvoice(_ context.Context, id uuid.UUID) (Invoice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inv, ok := m.invoices[id]
	if !ok {
		return Invoice{}, ErrInvoiceNotFound
	}
	return inv, nil
}

func (m *memoryRepo) GetInvoiceWithDetails(_ context.Context, id uuid.UUID) (InvoiceWithDetails, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inv, ok := m.invoices[id]
	if !ok {
		return InvoiceWithDetails{}, ErrInvoiceNotFound
	}
	paid := m.paid(id)
	return InvoiceWithDetails{
		Invoice:    inv,
		Lines:      append([]InvoiceLine(nil), m.lines[id]...),
		PaidAmount: paid,
		Balance:    inv.Total.Sub(paid),
	}, nil
}

func (m *memoryRepo) paid(id uuid.UUID) decimal.Decimal {
	total := decimal.Zero
	for _, a := range m.allocations {
		if a.InvoiceID == id {
			total = total.Add(a.Amount)
		}
	}
	return total
}

func (m *memoryRepo) ListInvoices(_ context.Context, req ListInvoicesRequest) ([]Invoice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Invoice
	for _, inv := range m.invoices {
		if req.Status != "" && inv.Status != req.Status {
			continue
		}
		if req.LedgerStatus != "" && inv.Ledger.Status != req.LedgerStatus {
			continue
		}
		if req.SupplierID != 0 && inv.SupplierID != req.SupplierID {
			continue
		}
		out = append(out, inv)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out, nil
}

func (m *memoryRepo) GetPaymentWithDetails(_ context.Context, id uuid.UUID) (PaymentWithDetails, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	pay, ok := m.payments[id]
	if !ok {
		return PaymentWithDetails{}, ErrPaymentNotFound
	}
	out := PaymentWithDetails{Payment: pay}
	for _, a := range m.allocations {
		if a.PaymentID == id {
			out.Allocations = append(out.Allocations, a)
		}
	}
	return out, nil
}

func (m *memoryRepo) SetInvoiceLedger(_ context.Context, id uuid.UUID, state LedgerState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	inv, ok := m.invoices[id]
	if !ok {
		return ErrInvoiceNotFound
	}
	inv.Ledger = state
	m.invoices[id] = inv
	return nil
}

func (m *memoryRepo) SetPaymentLedger(_ context.Context, id uuid.UUID, state LedgerState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	pay, ok := m.payments[id]
	if !ok {
		return ErrPaymentNotFound
	}
	pay.Ledger = state
	m.payments[id] = pay
	return nil
}

type memoryTx struct {
	repo *memoryRepo
}

func (t *memoryTx) NextNumber(_ context.Context, prefix string) (string, error) {
	t.repo.sequences[prefix]++
	return fmt.Sprintf("%s-%06d", prefix, t.repo.sequences[prefix]), nil
}

func (t *memoryTx) CreateInvoice(_ context.Context, inv Invoice) error {
	t.repo.invoices[inv.ID] = inv
	return nil
}

func (t *memoryTx) CreateInvoiceLine(_ context.Context, line InvoiceLine) error {
	t.repo.lines[line.InvoiceID] = append(t.repo.lines[line.InvoiceID], line)
	return nil
}

func (t *memoryTx) UpdateInvoiceStatus(_ context.Context, id uuid.UUID, status InvoiceStatus, postedAt *time.Time) error {
	inv, ok := t.repo.invoices[id]
	if !ok {
		return ErrInvoiceNotFound
	}
	inv.Status = status
	if postedAt != nil {
		inv.PostedAt = postedAt
	}
	t.repo.invoices[id] = inv
	return nil
}

func (t *memoryTx) VoidInvoice(_ context.Context, id uuid.UUID, reason string) error {
	inv, ok := t.repo.invoices[id]
	if !ok {
		return ErrInvoiceNotFound
	}
	inv.Status, inv.VoidReason = InvoiceVoid, reason
	t.repo.invoices[id] = inv
	return nil
}

func (t *memoryTx) InvoiceBalance(_ context.Context, id uuid.UUID) (decimal.Decimal, error) {
	inv, ok := t.repo.invoices[id]
	if !ok {
		return decimal.Zero, ErrInvoiceNotFound
	}
	return inv.Total.Sub(t.repo.paid(id)), nil
}

func (t *memoryTx) CreatePayment(_ context.Context, pay Payment) error {
	t.repo.payments[pay.ID] = pay
	return nil
}

func (t *memoryTx) CreateAllocation(_ context.Context, alloc Allocation) error {
	t.repo.allocations = append(t.repo.allocations, alloc)
	return nil
}
