package ap

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// InvoiceStatus enumerates AP invoice statuses.
type InvoiceStatus string

const (
	InvoiceDraft  InvoiceStatus = "DRAFT"
	InvoicePosted InvoiceStatus = "POSTED"
	InvoicePaid   InvoiceStatus = "PAID"
	InvoiceVoid   InvoiceStatus = "VOID"
)

// LedgerStatus tracks the general ledger side of a subledger document.
type LedgerStatus string

const (
	LedgerNotPosted LedgerStatus = "NOT_POSTED"
	LedgerPosted    LedgerStatus = "POSTED"
	LedgerPending   LedgerStatus = "PENDING"
)

// LedgerState is the ledger posting recorded against a document.
type LedgerState struct {
	Status    LedgerStatus
	Reference string
	Error     string
}

// Invoice is a vendor invoice.
type Invoice struct {
	ID           uuid.UUID
	Number       string
	CompanyCode  string
	SupplierID   int64
	SupplierName string
	Currency     string
	Inventory    bool
	Total        decimal.Decimal
	Status       InvoiceStatus
	InvoiceDate  time.Time
	DueAt        time.Time
	PostedAt     *time.Time
	Ledger       LedgerState
	VoidReason   string
	CreatedBy    string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// InvoiceLine is a priced line of an invoice.
type InvoiceLine struct {
	ID          uuid.UUID
	InvoiceID   uuid.UUID
	LineNo      int
	Description string
	Quantity    decimal.Decimal
	UnitPrice   decimal.Decimal
	Total       decimal.Decimal
	CostCenter  string
}

// InvoiceWithDetails includes lines and the open balance.
type InvoiceWithDetails struct {
	Invoice
	Lines      []InvoiceLine
	PaidAmount decimal.Decimal
	Balance    decimal.Decimal
}

// Payment is an outgoing vendor payment.
type Payment struct {
	ID          uuid.UUID
	Number      string
	CompanyCode string
	SupplierID  int64
	Currency    string
	Amount      decimal.Decimal
	PaidAt      time.Time
	Method      string
	Note        string
	Ledger      LedgerState
	CreatedBy   string
	CreatedAt   time.Time
}

// Allocation applies part of a payment to an invoice.
type Allocation struct {
	PaymentID uuid.UUID
	InvoiceID uuid.UUID
	Amount    decimal.Decimal
}

// PaymentWithDetails includes the allocations of a payment.
type PaymentWithDetails struct {
	Payment
	Allocations []Allocation
}

// CreateInvoiceInput creates an invoice; Post posts it in the same request.
type CreateInvoiceInput struct {
	Number       string `validate:"max=32"`
	CompanyCode  string `validate:"required,len=4,alphanum"`
	SupplierID   int64  `validate:"required,gt=0"`
	SupplierName string `validate:"max=128"`
	Currency     string `validate:"required,len=3"`
	Inventory    bool
	InvoiceDate  time.Time
	DueDate      time.Time
	Lines        []CreateInvoiceLineInput `validate:"required,min=1,dive"`
	Post         bool
}

// CreateInvoiceLineInput is one invoice line.
type CreateInvoiceLineInput struct {
	Description string `validate:"max=128"`
	Quantity    decimal.Decimal
	UnitPrice   decimal.Decimal
	CostCenter  string `validate:"max=10"`
}

// CreatePaymentInput registers a payment against posted invoices.
type CreatePaymentInput struct {
	Number      string `validate:"max=32"`
	Amount      decimal.Decimal
	PaidAt      time.Time
	Method      string                   `validate:"max=32"`
	Note        string                   `validate:"max=256"`
	Allocations []PaymentAllocationInput `validate:"required,min=1,dive"`
}

// PaymentAllocationInput allocates part of a payment to one invoice.
type PaymentAllocationInput struct {
	InvoiceID uuid.UUID
	Amount    decimal.Decimal
}

// ListInvoicesRequest filters invoices.
type ListInvoicesRequest struct {
	Status       InvoiceStatus
	LedgerStatus LedgerStatus
	SupplierID   int64
	Limit        int
	Offset       int
}
