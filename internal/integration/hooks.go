package integration

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/ledger/internal/accounting/journals"
	"github.com/odyssey-erp/ledger/internal/accounting/mappings"
	"github.com/odyssey-erp/ledger/internal/accounting/money"
)

// Source modules recorded on ledger entries created by the hooks.
const (
	SourceAPInvoice = "AP.INVOICE"
	SourceAPPayment = "AP.PAYMENT"
)

// AccountResolver provides mapping lookups.
type AccountResolver interface {
	Get(ctx context.Context, company money.CompanyCode, module, key string) (mappings.AccountMapping, error)
}

// InvoiceLine is one priced line of a vendor invoice.
type InvoiceLine struct {
	Qty        decimal.Decimal
	UnitCost   decimal.Decimal
	CostCenter string
	Text       string
}

// VendorInvoicePosted is raised once a vendor invoice is committed.
type VendorInvoicePosted struct {
	ID          uuid.UUID
	Number      string
	CompanyCode money.CompanyCode
	InvoiceDate time.Time
	PostingDate time.Time
	Currency    money.Currency
	Inventory   bool
	Lines       []InvoiceLine
}

// VendorPaymentPosted is raised once a vendor payment is committed.
type VendorPaymentPosted struct {
	ID          uuid.UUID
	Number      string
	CompanyCode money.CompanyCode
	PaidAt      time.Time
	Currency    money.Currency
	Amount      money.Amount
}

// Hooks turns subledger events into ledger postings.
type Hooks struct {
	client   *Client
	accounts AccountResolver
}

// NewHooks constructs integration hooks.
func NewHooks(client *Client, accounts AccountResolver) *Hooks {
	return &Hooks{client: client, accounts: accounts}
}

// HandleVendorInvoicePosted debits expense (or inventory) per line and
// credits the vendor payable with the invoice total.
func (h *Hooks) HandleVendorInvoicePosted(ctx context.Context, evt VendorInvoicePosted) (PostingOutcome, error) {
	gap := Gap{SourceModule: SourceAPInvoice, SourceID: evt.ID, SourceNumber: evt.Number, CompanyCode: evt.CompanyCode.String()}
	debitKey := mappings.KeyAPInvoiceExpense
	if evt.Inventory {
		debitKey = mappings.KeyAPInvoiceInventory
	}
	debitAccount, err := h.resolve(ctx, evt.CompanyCode, debitKey)
	if err != nil {
		return h.client.fail(ctx, gap, journals.CreateRequest{}, err)
	}
	payable, err := h.resolve(ctx, evt.CompanyCode, mappings.KeyAPInvoicePayable)
	if err != nil {
		return h.client.fail(ctx, gap, journals.CreateRequest{}, err)
	}
	req := PostingRequest{
		Context:      ContextVendorInvoice,
		SourceModule: SourceAPInvoice,
		SourceID:     evt.ID,
		SourceNumber: evt.Number,
		CompanyCode:  evt.CompanyCode,
		DocumentDate: evt.InvoiceDate,
		PostingDate:  evt.PostingDate,
		Currency:     evt.Currency,
		Reference:    evt.Number,
	}
	total := money.Zero
	for _, l := range evt.Lines {
		amount := lineAmount(l.Qty, l.UnitCost, evt.Currency)
		if amount.IsZero() {
			continue
		}
		total = total.Add(amount)
		req.Lines = append(req.Lines, PostingLine{
			Account:    debitAccount,
			Indicator:  money.Debit,
			Amount:     amount,
			CostCenter: l.CostCenter,
			Text:       l.Text,
		})
	}
	req.Lines = append(req.Lines, PostingLine{
		Account:   payable,
		Indicator: money.Credit,
		Amount:    total,
		Text:      fmt.Sprintf("AP Invoice %s", evt.Number),
	})
	return h.client.CreateAndPost(ctx, req)
}

// HandleVendorPaymentPosted debits the payable and credits cash.
func (h *Hooks) HandleVendorPaymentPosted(ctx context.Context, evt VendorPaymentPosted) (PostingOutcome, error) {
	gap := Gap{SourceModule: SourceAPPayment, SourceID: evt.ID, SourceNumber: evt.Number, CompanyCode: evt.CompanyCode.String()}
	payable, err := h.resolve(ctx, evt.CompanyCode, mappings.KeyAPPaymentPayable)
	if err != nil {
		return h.client.fail(ctx, gap, journals.CreateRequest{}, err)
	}
	cash, err := h.resolve(ctx, evt.CompanyCode, mappings.KeyAPPaymentCash)
	if err != nil {
		return h.client.fail(ctx, gap, journals.CreateRequest{}, err)
	}
	text := fmt.Sprintf("AP Payment %s", evt.Number)
	return h.client.CreateAndPost(ctx, PostingRequest{
		Context:      ContextVendorPayment,
		SourceModule: SourceAPPayment,
		SourceID:     evt.ID,
		SourceNumber: evt.Number,
		CompanyCode:  evt.CompanyCode,
		PostingDate:  evt.PaidAt,
		Currency:     evt.Currency,
		Reference:    evt.Number,
		Lines: []PostingLine{
			{Account: payable, Indicator: money.Debit, Amount: evt.Amount, Text: text},
			{Account: cash, Indicator: money.Credit, Amount: evt.Amount, Text: text},
		},
	})
}

func (h *Hooks) resolve(ctx context.Context, company money.CompanyCode, key string) (money.AccountCode, error) {
	m, err := h.accounts.Get(ctx, company, "AP", key)
	if err != nil {
		return "", err
	}
	return m.Account, nil
}
