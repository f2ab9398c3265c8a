package ap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/ledger/internal/accounting/money"
	"github.com/odyssey-erp/ledger/internal/accounting/shared"
	"github.com/odyssey-erp/ledger/internal/integration"
	platformshared "github.com/odyssey-erp/ledger/internal/shared"
)

var (
	ErrInvoiceNotFound = fmt.Errorf("%w: invoice", shared.ErrNotFound)
	ErrPaymentNotFound = fmt.Errorf("%w: payment", shared.ErrNotFound)
	ErrInvalidStatus   = fmt.Errorf("%w: invalid invoice status for operation", shared.ErrState)
	ErrNothingToRetry  = fmt.Errorf("%w: ledger posting is not pending", shared.ErrState)
)

// Ledger is the general ledger seen from AP.
type Ledger interface {
	HandleVendorInvoicePosted(ctx context.Context, evt integration.VendorInvoicePosted) (integration.PostingOutcome, error)
	HandleVendorPaymentPosted(ctx context.Context, evt integration.VendorPaymentPosted) (integration.PostingOutcome, error)
}

type Service struct {
	repo     Repository
	ledger   Ledger
	validate *validator.Validate
	logger   *slog.Logger
	now      func() time.Time
}

func NewService(repo Repository, ledger Ledger, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, ledger: ledger, validate: validator.New(), logger: logger, now: time.Now}
}

// CreateInvoice creates a draft invoice and, when requested, posts it. A
// ledger failure during posting leaves the invoice committed and returns a
// *LedgerPostError alongside it.
func (s *Service) CreateInvoice(ctx context.Context, input CreateInvoiceInput) (Invoice, error) {
	if err := s.validate.Struct(input); err != nil {
		return Invoice{}, fmt.Errorf("%w: %v", shared.ErrValidation, err)
	}
	cur, err := money.ParseCurrency(input.Currency)
	if err != nil {
		return Invoice{}, err
	}
	now := s.now()
	inv := Invoice{
		ID:           uuid.New(),
		Number:       input.Number,
		CompanyCode:  input.CompanyCode,
		SupplierID:   input.SupplierID,
		SupplierName: input.SupplierName,
		Currency:     input.Currency,
		Inventory:    input.Inventory,
		Status:       InvoiceDraft,
		InvoiceDate:  input.InvoiceDate,
		DueAt:        input.DueDate,
		Ledger:       LedgerState{Status: LedgerNotPosted},
		CreatedBy:    platformshared.ActorFromContext(ctx),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if inv.InvoiceDate.IsZero() {
		inv.InvoiceDate = now
	}
	if inv.DueAt.IsZero() {
		inv.DueAt = inv.InvoiceDate.AddDate(0, 0, 30)
	}
	lines := make([]InvoiceLine, 0, len(input.Lines))
	for i, l := range input.Lines {
		if !l.Quantity.IsPositive() || l.UnitPrice.IsNegative() {
			return Invoice{}, shared.Validationf("line %d: quantity must be positive and price non-negative", i+1)
		}
		total := l.Quantity.Mul(l.UnitPrice).Round(cur.Scale())
		inv.Total = inv.Total.Add(total)
		lines = append(lines, InvoiceLine{
			ID:          uuid.New(),
			InvoiceID:   inv.ID,
			LineNo:      i + 1,
			Description: l.Description,
			Quantity:    l.Quantity,
			UnitPrice:   l.UnitPrice,
			Total:       total,
			CostCenter:  l.CostCenter,
		})
	}
	if !inv.Total.IsPositive() {
		return Invoice{}, shared.Validationf("invoice total must be positive")
	}

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if inv.Number == "" {
			num, err := tx.NextNumber(ctx, "APINV")
			if err != nil {
				return err
			}
			inv.Number = num
		}
		if err := tx.CreateInvoice(ctx, inv); err != nil {
			return err
		}
		for _, line := range lines {
			if err := tx.CreateInvoiceLine(ctx, line); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return Invoice{}, err
	}
	if !input.Post {
		return inv, nil
	}
	return s.PostInvoice(ctx, inv.ID)
}

// PostInvoice posts a draft invoice in AP, then posts it to the ledger.
func (s *Service) PostInvoice(ctx context.Context, id uuid.UUID) (Invoice, error) {
	inv, err := s.repo.GetInvoice(ctx, id)
	if err != nil {
		return Invoice{}, err
	}
	if inv.Status != InvoiceDraft {
		return Invoice{}, ErrInvalidStatus
	}
	postedAt := s.now()
	if err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.UpdateInvoiceStatus(ctx, id, InvoicePosted, &postedAt)
	}); err != nil {
		return Invoice{}, err
	}
	inv.Status, inv.PostedAt = InvoicePosted, &postedAt
	return s.postInvoiceToLedger(ctx, inv)
}

// RetryInvoicePosting re-sends a posted invoice whose ledger posting is pending.
func (s *Service) RetryInvoicePosting(ctx context.Context, id uuid.UUID) (Invoice, error) {
	inv, err := s.repo.GetInvoice(ctx, id)
	if err != nil {
		return Invoice{}, err
	}
	if inv.Ledger.Status != LedgerPending || inv.Status == InvoiceDraft || inv.Status == InvoiceVoid {
		return inv, ErrNothingToRetry
	}
	return s.postInvoiceToLedger(ctx, inv)
}

func (s *Service) postInvoiceToLedger(ctx context.Context, inv Invoice) (Invoice, error) {
	if s.ledger == nil {
		return inv, nil
	}
	detail, err := s.repo.GetInvoiceWithDetails(ctx, inv.ID)
	if err != nil {
		return inv, err
	}
	evt := integration.VendorInvoicePosted{
		ID:          inv.ID,
		Number:      inv.Number,
		CompanyCode: money.CompanyCode(inv.CompanyCode),
		InvoiceDate: inv.InvoiceDate,
		PostingDate: *inv.PostedAt,
		Inventory:   inv.Inventory,
	}
	if evt.Currency, err = money.ParseCurrency(inv.Currency); err != nil {
		return inv, err
	}
	for _, l := range detail.Lines {
		evt.Lines = append(evt.Lines, integration.InvoiceLine{
			Qty:        l.Quantity,
			UnitCost:   l.UnitPrice,
			CostCenter: l.CostCenter,
			Text:       l.Description,
		})
	}
	outcome, postErr := s.ledger.HandleVendorInvoicePosted(ctx, evt)
	inv.Ledger = s.ledgerState(outcome, postErr)
	if err := s.repo.SetInvoiceLedger(ctx, inv.ID, inv.Ledger); err != nil {
		s.logger.Error("record invoice ledger state", slog.String("invoice", inv.Number), slog.Any("error", err))
	}
	if postErr != nil {
		return inv, wrapLedgerPostError("invoice "+inv.Number, outcome.GapID, postErr)
	}
	return inv, nil
}

// VoidInvoice voids an unpaid invoice.
func (s *Service) VoidInvoice(ctx context.Context, id uuid.UUID, reason string) error {
	inv, err := s.repo.GetInvoice(ctx, id)
	if err != nil {
		return err
	}
	if inv.Status == InvoicePaid || inv.Status == InvoiceVoid {
		return ErrInvalidStatus
	}
	switch inv.Ledger.Status {
	case LedgerPosted:
		// the ledger entry has to be reversed there first
		return fmt.Errorf("%w: invoice %s already posted to ledger as %s", shared.ErrState, inv.Number, inv.Ledger.Reference)
	case LedgerPending:
		// an open reconciliation gap would still post it
		return fmt.Errorf("%w: invoice %s has a ledger posting pending reconciliation", shared.ErrState, inv.Number)
	}
	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.VoidInvoice(ctx, id, reason)
	})
}

// RegisterPayment records a payment with its allocations, marks fully paid
// invoices and posts the payment to the ledger.
func (s *Service) RegisterPayment(ctx context.Context, input CreatePaymentInput) (Payment, error) {
	if err := s.validate.Struct(input); err != nil {
		return Payment{}, fmt.Errorf("%w: %v", shared.ErrValidation, err)
	}
	if !input.Amount.IsPositive() {
		return Payment{}, shared.Validationf("amount must be positive")
	}
	totalAllocated := decimal.Zero
	invoiceTotals := make(map[uuid.UUID]decimal.Decimal)
	var order []uuid.UUID
	for _, alloc := range input.Allocations {
		if !alloc.Amount.IsPositive() {
			return Payment{}, shared.Validationf("allocation amount must be positive")
		}
		totalAllocated = totalAllocated.Add(alloc.Amount)
		if _, seen := invoiceTotals[alloc.InvoiceID]; !seen {
			order = append(order, alloc.InvoiceID)
		}
		invoiceTotals[alloc.InvoiceID] = invoiceTotals[alloc.InvoiceID].Add(alloc.Amount)
	}
	if totalAllocated.GreaterThan(input.Amount) {
		return Payment{}, shared.Validationf("total allocation exceeds payment amount")
	}

	var first InvoiceWithDetails
	for i, invoiceID := range order {
		detail, err := s.repo.GetInvoiceWithDetails(ctx, invoiceID)
		if err != nil {
			return Payment{}, err
		}
		if i == 0 {
			first = detail
		} else if detail.SupplierID != first.SupplierID || detail.CompanyCode != first.CompanyCode || detail.Currency != first.Currency {
			return Payment{}, shared.Validationf("allocations must reference invoices of one supplier, company and currency")
		}
		if detail.Status != InvoicePosted {
			return Payment{}, fmt.Errorf("%w: invoice %s must be posted before payment allocation", shared.ErrState, detail.Number)
		}
		if invoiceTotals[invoiceID].GreaterThan(detail.Balance) {
			return Payment{}, shared.Validationf("allocation exceeds invoice %s balance", detail.Number)
		}
	}

	cur, err := money.ParseCurrency(first.Currency)
	if err != nil {
		return Payment{}, err
	}
	if !input.Amount.Equal(input.Amount.Truncate(cur.Scale())) {
		return Payment{}, shared.Validationf("amount %s has more than %d decimals for %s", input.Amount, cur.Scale(), cur)
	}

	pay := Payment{
		ID:          uuid.New(),
		Number:      input.Number,
		CompanyCode: first.CompanyCode,
		SupplierID:  first.SupplierID,
		Currency:    first.Currency,
		Amount:      input.Amount,
		PaidAt:      input.PaidAt,
		Method:      input.Method,
		Note:        input.Note,
		Ledger:      LedgerState{Status: LedgerNotPosted},
		CreatedBy:   platformshared.ActorFromContext(ctx),
		CreatedAt:   s.now(),
	}
	if pay.PaidAt.IsZero() {
		pay.PaidAt = pay.CreatedAt
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if pay.Number == "" {
			num, err := tx.NextNumber(ctx, "APPAY")
			if err != nil {
				return err
			}
			pay.Number = num
		}
		if err := tx.CreatePayment(ctx, pay); err != nil {
			return err
		}
		for _, invoiceID := range order {
			alloc := Allocation{PaymentID: pay.ID, InvoiceID: invoiceID, Amount: invoiceTotals[invoiceID]}
			if err := tx.CreateAllocation(ctx, alloc); err != nil {
				return err
			}
			balance, err := tx.InvoiceBalance(ctx, invoiceID)
			if err != nil {
				return err
			}
			if !balance.IsPositive() {
				if err := tx.UpdateInvoiceStatus(ctx, invoiceID, InvoicePaid, nil); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return Payment{}, err
	}
	return s.postPaymentToLedger(ctx, pay)
}

func (s *Service) postPaymentToLedger(ctx context.Context, pay Payment) (Payment, error) {
	if s.ledger == nil {
		return pay, nil
	}
	amount, err := money.NewAmount(pay.Amount)
	if err != nil {
		return pay, err
	}
	currency, err := money.ParseCurrency(pay.Currency)
	if err != nil {
		return pay, err
	}
	outcome, postErr := s.ledger.HandleVendorPaymentPosted(ctx, integration.VendorPaymentPosted{
		ID:          pay.ID,
		Number:      pay.Number,
		CompanyCode: money.CompanyCode(pay.CompanyCode),
		PaidAt:      pay.PaidAt,
		Currency:    currency,
		Amount:      amount,
	})
	pay.Ledger = s.ledgerState(outcome, postErr)
	if err := s.repo.SetPaymentLedger(ctx, pay.ID, pay.Ledger); err != nil {
		s.logger.Error("record payment ledger state", slog.String("payment", pay.Number), slog.Any("error", err))
	}
	if postErr != nil {
		return pay, wrapLedgerPostError("payment "+pay.Number, outcome.GapID, postErr)
	}
	return pay, nil
}

// GapResolved records a reconciled ledger posting against the invoice or
// payment it was raised for.
func (s *Service) GapResolved(ctx context.Context, gap integration.Gap, outcome integration.PostingOutcome) error {
	state := LedgerState{Status: LedgerPosted, Reference: outcome.DocumentReference}
	var err error
	switch gap.SourceModule {
	case integration.SourceAPInvoice:
		err = s.repo.SetInvoiceLedger(ctx, gap.SourceID, state)
	case integration.SourceAPPayment:
		err = s.repo.SetPaymentLedger(ctx, gap.SourceID, state)
	default:
		return nil
	}
	if err != nil {
		return err
	}
	s.logger.Info("ledger posting reconciled",
		slog.String("source_module", gap.SourceModule),
		slog.String("document", gap.SourceNumber),
		slog.String("reference", outcome.DocumentReference))
	return nil
}

func (s *Service) ledgerState(outcome integration.PostingOutcome, err error) LedgerState {
	if err == nil && outcome.Posted() {
		return LedgerState{Status: LedgerPosted, Reference: outcome.DocumentReference}
	}
	state := LedgerState{Status: LedgerPending}
	if err != nil {
		state.Error = err.Error()
	}
	return state
}

func (s *Service) GetInvoice(ctx context.Context, id uuid.UUID) (InvoiceWithDetails, error) {
	return s.repo.GetInvoiceWithDetails(ctx, id)
}

func (s *Service) ListInvoices(ctx context.Context, req ListInvoicesRequest) ([]Invoice, error) {
	if req.Limit <= 0 || req.Limit > platformshared.MaxPerPage {
		req.Limit = 50
	}
	return s.repo.ListInvoices(ctx, req)
}

func (s *Service) GetPayment(ctx context.Context, id uuid.UUID) (PaymentWithDetails, error) {
	return s.repo.GetPaymentWithDetails(ctx, id)
}

// IsLedgerPending reports whether err left the document without a ledger posting.
func IsLedgerPending(err error) bool {
	var lpe *LedgerPostError
	return errors.As(err, &lpe)
}
