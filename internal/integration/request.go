package integration

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/odyssey-erp/ledger/internal/accounting/money"
	"github.com/odyssey-erp/ledger/internal/accounting/shared"
)

// CallerContext identifies the kind of subledger document being posted.
type CallerContext string

const (
	ContextVendorInvoice   CallerContext = "VENDOR_INVOICE"
	ContextVendorPayment   CallerContext = "VENDOR_PAYMENT"
	ContextCustomerInvoice CallerContext = "CUSTOMER_INVOICE"
	ContextCustomerPayment CallerContext = "CUSTOMER_PAYMENT"
	ContextAllocation      CallerContext = "ALLOCATION"
	ContextManual          CallerContext = "MANUAL"
)

// DefaultDocumentType maps a caller context to its document type.
func DefaultDocumentType(c CallerContext) money.DocumentType {
	switch c {
	case ContextVendorInvoice:
		return money.DocTypeVendorInvoice
	case ContextVendorPayment:
		return money.DocTypeVendorPayment
	case ContextCustomerInvoice:
		return money.DocTypeCustomerInvoice
	case ContextCustomerPayment:
		return money.DocTypeCustomerPayment
	default:
		return money.DocTypeGeneral
	}
}

// PostingLine is one line of a subledger posting.
type PostingLine struct {
	Account      money.AccountCode `validate:"required,max=10,alphanum"`
	Indicator    money.Indicator   `validate:"required,oneof=1 2"`
	Amount       money.Amount
	CostCenter   string `validate:"max=10"`
	ProfitCenter string `validate:"max=10"`
	Text         string `validate:"max=50"`
}

// PostingRequest is what a subledger hands to CreateAndPost. SourceModule and
// SourceID identify the originating document and make the posting idempotent.
type PostingRequest struct {
	Context      CallerContext `validate:"required"`
	SourceModule string        `validate:"required,max=20"`
	SourceID     uuid.UUID
	SourceNumber string
	CompanyCode  money.CompanyCode  `validate:"required,len=4,alphanum"`
	DocumentType money.DocumentType `validate:"omitempty,len=2"`
	DocumentDate time.Time
	PostingDate  time.Time
	Currency     money.Currency
	Reference    string        `validate:"max=64"`
	Lines        []PostingLine `validate:"required,min=1,dive"`
}

var requestValidator = validator.New()

// Validate checks the request before any remote call is made.
func (r PostingRequest) Validate() error {
	if err := requestValidator.Struct(r); err != nil {
		return fmt.Errorf("%w: %v", shared.ErrValidation, err)
	}
	if r.SourceID == uuid.Nil {
		return shared.Validationf("source id required")
	}
	if r.PostingDate.IsZero() {
		return shared.Validationf("posting date required")
	}
	if r.Currency.IsZero() {
		return shared.Validationf("currency required")
	}
	for i, l := range r.Lines {
		if l.Amount.IsZero() {
			return fmt.Errorf("%w: line %d amount must be positive", shared.ErrInvalidLine, i+1)
		}
		if err := r.Currency.CheckAmount(l.Amount); err != nil {
			return fmt.Errorf("%w: line %d: %v", shared.ErrInvalidLine, i+1, err)
		}
	}
	return nil
}

// EffectiveDocumentType returns the explicit type or the caller default.
func (r PostingRequest) EffectiveDocumentType() money.DocumentType {
	if r.DocumentType != "" {
		return r.DocumentType
	}
	return DefaultDocumentType(r.Context)
}

// SourceID derives a stable source identifier from a subledger document key.
func SourceID(module, documentKey string) uuid.UUID {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(module+":"+documentKey))
}
