package integration

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/ledger/internal/accounting/mappings"
	"github.com/odyssey-erp/ledger/internal/accounting/money"
	"github.com/odyssey-erp/ledger/internal/accounting/shared"
)

type stubMappings map[string]money.AccountCode

func (s stubMappings) Get(_ context.Context, company money.CompanyCode, module, key string) (mappings.AccountMapping, error) {
	account, ok := s[key]
	if !ok {
		return mappings.AccountMapping{}, fmt.Errorf("%w: %s/%s/%s", shared.ErrMappingNotFound, company, module, key)
	}
	return mappings.AccountMapping{CompanyCode: company, Module: module, Key: key, Account: account}, nil
}

var apMappings = stubMappings{
	mappings.KeyAPInvoiceExpense:   "6001000",
	mappings.KeyAPInvoiceInventory: "1401000",
	mappings.KeyAPInvoicePayable:   "2001000",
	mappings.KeyAPPaymentPayable:   "2001000",
	mappings.KeyAPPaymentCash:      "1001000",
}

func TestVendorInvoiceHook(t *testing.T) {
	stub := &ledgerStub{}
	client, _ := newTestClient(stub, 1, time.Second)
	hooks := NewHooks(client, apMappings)

	outcome, err := hooks.HandleVendorInvoicePosted(context.Background(), VendorInvoicePosted{
		ID:          uuid.New(),
		Number:      "INV-42",
		CompanyCode: "CN01",
		InvoiceDate: postingDate.AddDate(0, 0, -2),
		PostingDate: postingDate,
		Currency:    money.MustCurrency("CNY"),
		Lines: []InvoiceLine{
			{Qty: decimal.NewFromInt(3), UnitCost: decimal.RequireFromString("10.005"), CostCenter: "CC10"},
			{Qty: decimal.NewFromInt(2), UnitCost: decimal.RequireFromString("4.50")},
			{Qty: decimal.Zero, UnitCost: decimal.RequireFromString("99")},
		},
	})
	require.NoError(t, err)
	require.True(t, outcome.Posted())

	sent := stub.last()
	require.Equal(t, "KR", sent.Header.DocumentType)
	require.Equal(t, "2024-03-13", sent.Header.DocumentDate)
	require.Len(t, sent.Lines, 3)
	require.Equal(t, "6001000", sent.Lines[0].Account)
	require.Equal(t, "30.02", sent.Lines[0].Amount)
	require.Equal(t, "CC10", sent.Lines[0].CostCenter)
	require.Equal(t, "9.00", sent.Lines[1].Amount)
	require.Equal(t, "2001000", sent.Lines[2].Account)
	require.Equal(t, "C", sent.Lines[2].DebitCredit)
	require.Equal(t, "39.02", sent.Lines[2].Amount)
}

func TestVendorPaymentHook(t *testing.T) {
	stub := &ledgerStub{}
	client, _ := newTestClient(stub, 1, time.Second)
	hooks := NewHooks(client, apMappings)

	_, err := hooks.HandleVendorPaymentPosted(context.Background(), VendorPaymentPosted{
		ID:          uuid.New(),
		Number:      "PAY-7",
		CompanyCode: "CN01",
		PaidAt:      postingDate,
		Currency:    money.MustCurrency("CNY"),
		Amount:      money.MustAmount("250.00"),
	})
	require.NoError(t, err)
	sent := stub.last()
	require.Equal(t, "KZ", sent.Header.DocumentType)
	require.Equal(t, SourceAPPayment, sent.SourceModule)
	require.Equal(t, "D", sent.Lines[0].DebitCredit)
	require.Equal(t, "1001000", sent.Lines[1].Account)
}

func TestMissingMappingLeavesGap(t *testing.T) {
	stub := &ledgerStub{}
	client, gaps := newTestClient(stub, 1, time.Second)
	hooks := NewHooks(client, stubMappings{})

	id := uuid.New()
	outcome, err := hooks.HandleVendorPaymentPosted(context.Background(), VendorPaymentPosted{
		ID: id, Number: "PAY-8", CompanyCode: "CN01", PaidAt: postingDate,
		Currency: money.MustCurrency("CNY"), Amount: money.MustAmount("1.00"),
	})
	require.ErrorIs(t, err, shared.ErrMappingNotFound)
	require.Equal(t, OutcomePending, outcome.Status)
	require.Empty(t, stub.requests)

	gap := gaps.only()
	require.Equal(t, id, gap.SourceID)
	require.False(t, gap.Retryable)
}

func TestGapHandler(t *testing.T) {
	stub := &ledgerStub{}
	stub.setErr(&RemoteError{Status: http.StatusServiceUnavailable})
	client, gaps := newTestClient(stub, 1, time.Second)
	_, err := client.CreateAndPost(context.Background(), invoiceRequest())
	require.Error(t, err)
	stub.setErr(nil)

	router := chi.NewRouter()
	router.Route("/gl/v1/reconciliation-gaps", NewHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), gaps, client).MountRoutes)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/gl/v1/reconciliation-gaps?status=pending", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"source_module":"AP.INVOICE"`)
	require.Contains(t, rec.Body.String(), `"total":1`)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/gl/v1/reconciliation-gaps?status=bogus", nil))
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/gl/v1/reconciliation-gaps/"+uuid.NewString(), nil))
	require.Equal(t, http.StatusNotFound, rec.Code)

	gap := gaps.only()
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/gl/v1/reconciliation-gaps/"+gap.ID.String()+"/retry", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"status":"RESOLVED"`)
	require.Contains(t, rec.Body.String(), `"document_reference":"CN01/0000000001/2024"`)
}
