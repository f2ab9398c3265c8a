package mappings

import (
	"time"

	"github.com/odyssey-erp/ledger/internal/accounting/money"
)

// AccountMapping links an integration key of a subledger module to a GL account.
type AccountMapping struct {
	Module      string
	Key         string
	CompanyCode money.CompanyCode
	Account     money.AccountCode
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Well-known AP posting keys.
const (
	KeyAPInvoiceExpense   = "ap.invoice.expense"
	KeyAPInvoiceInventory = "ap.invoice.inventory"
	KeyAPInvoicePayable   = "ap.invoice.ap"
	KeyAPPaymentPayable   = "ap.payment.ap"
	KeyAPPaymentCash      = "ap.payment.cash"
)
