package ap

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/ledger/internal/accounting/journals"
	"github.com/odyssey-erp/ledger/internal/accounting/mappings"
	"github.com/odyssey-erp/ledger/internal/accounting/shared"
	"github.com/odyssey-erp/ledger/internal/integration"
	platformshared "github.com/odyssey-erp/ledger/internal/shared"
)

// flakyLedger fails until healed.
type flakyLedger struct {
	mu     sync.Mutex
	healed bool
}

func (f *flakyLedger) heal() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.healed = true
}

func (f *flakyLedger) CreateAndPost(_ context.Context, req journals.CreateRequest) (journals.CreateResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.healed {
		return journals.CreateResponse{}, errors.New("connection refused")
	}
	return journals.CreateResponse{
		ID:                uuid.NewString(),
		DocumentNumber:    "0000000042",
		DocumentReference: req.Header.CompanyCode + "/0000000042/2024",
		Status:            journals.StatusPosted,
	}, nil
}

type gapBook struct {
	mu   sync.Mutex
	gaps map[uuid.UUID]integration.Gap
}

func (b *gapBook) RecordFailure(_ context.Context, gap integration.Gap, _ int) (integration.Gap, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, g := range b.gaps {
		if g.SourceModule == gap.SourceModule && g.SourceID == gap.SourceID {
			g.Attempts++
			g.LastError = gap.LastError
			b.gaps[g.ID] = g
			return g, nil
		}
	}
	gap.ID, gap.Attempts, gap.Status = uuid.New(), 1, integration.GapPending
	b.gaps[gap.ID] = gap
	return gap, nil
}

func (b *gapBook) MarkResolved(_ context.Context, id uuid.UUID, ref string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	g, ok := b.gaps[id]
	if !ok {
		return integration.ErrGapNotFound
	}
	g.Status, g.DocumentReference = integration.GapResolved, ref
	b.gaps[id] = g
	return nil
}

func (b *gapBook) Get(_ context.Context, id uuid.UUID) (integration.Gap, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	g, ok := b.gaps[id]
	if !ok {
		return integration.Gap{}, integration.ErrGapNotFound
	}
	return g, nil
}

func (b *gapBook) ListPending(_ context.Context, limit int) ([]integration.Gap, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []integration.Gap
	for _, g := range b.gaps {
		if g.Status == integration.GapPending && g.Retryable && len(out) < limit {
			out = append(out, g)
		}
	}
	return out, nil
}

func (b *gapBook) List(ctx context.Context, _ integration.GapFilter, _ platformshared.Pagination) ([]integration.Gap, int, error) {
	out, err := b.ListPending(ctx, len(b.gaps))
	return out, len(out), err
}

func TestReconciledInvoiceCannotBeVoided(t *testing.T) {
	transport := &flakyLedger{}
	gaps := &gapBook{gaps: map[uuid.UUID]integration.Gap{}}
	client := integration.NewClient(integration.NewPool(1, func(int) integration.Transport { return transport }),
		gaps, time.Second, discardLogger())
	hooks := integration.NewHooks(client, fixedMappings{
		mappings.KeyAPInvoiceExpense: "6001000",
		mappings.KeyAPInvoicePayable: "2001000",
	})
	repo := newMemoryRepo()
	svc := NewService(repo, hooks, discardLogger())
	client.WithResolutionListener(svc)

	inv, err := svc.CreateInvoice(context.Background(), invoiceInput(true))
	require.True(t, IsLedgerPending(err))
	require.ErrorIs(t, svc.VoidInvoice(context.Background(), inv.ID, "supplier cancelled"), shared.ErrState)

	transport.heal()
	report, err := integration.NewReconciler(client, gaps, nil, discardLogger()).Run(context.Background(), 10)
	require.NoError(t, err)
	require.Equal(t, 1, report.Resolved)

	stored, err := svc.GetInvoice(context.Background(), inv.ID)
	require.NoError(t, err)
	require.Equal(t, LedgerPosted, stored.Ledger.Status)
	require.Equal(t, "CN01/0000000042/2024", stored.Ledger.Reference)

	require.ErrorIs(t, svc.VoidInvoice(context.Background(), inv.ID, "supplier cancelled"), shared.ErrState)
	stored, err = svc.GetInvoice(context.Background(), inv.ID)
	require.NoError(t, err)
	require.Equal(t, InvoicePosted, stored.Status)
}

func TestGapResolvedUpdatesPayment(t *testing.T) {
	repo := newMemoryRepo()
	ledger := &ledgerStub{}
	svc := NewService(repo, ledger, discardLogger())
	inv, err := svc.CreateInvoice(context.Background(), invoiceInput(true))
	require.NoError(t, err)

	ledger.err = errors.New("connection refused")
	pay, err := svc.RegisterPayment(context.Background(), CreatePaymentInput{
		Amount:      inv.Total,
		Allocations: []PaymentAllocationInput{{InvoiceID: inv.ID, Amount: inv.Total}},
	})
	require.True(t, IsLedgerPending(err))

	gap := integration.Gap{SourceModule: integration.SourceAPPayment, SourceID: pay.ID, SourceNumber: pay.Number}
	require.NoError(t, svc.GapResolved(context.Background(), gap,
		integration.PostingOutcome{Status: integration.OutcomePosted, DocumentReference: "CN01/0000000009/2024"}))

	stored, err := svc.GetPayment(context.Background(), pay.ID)
	require.NoError(t, err)
	require.Equal(t, LedgerPosted, stored.Ledger.Status)
	require.Equal(t, "CN01/0000000009/2024", stored.Ledger.Reference)

	foreign := integration.Gap{SourceModule: "AR.INVOICE", SourceID: uuid.New()}
	require.NoError(t, svc.GapResolved(context.Background(), foreign, integration.PostingOutcome{}))
}
