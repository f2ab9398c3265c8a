package money

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/odyssey-erp/ledger/internal/accounting/shared"
)

// AccountCode references a GL account in the chart of accounts.
type AccountCode string

// ParseAccountCode accepts 1-10 alphanumeric characters.
func ParseAccountCode(s string) (AccountCode, error) {
	s = strings.TrimSpace(s)
	if len(s) == 0 || len(s) > 10 || !alnum(s) {
		return "", fmt.Errorf("%w: account code %q", shared.ErrValidation, s)
	}
	return AccountCode(s), nil
}

func (a AccountCode) String() string { return string(a) }

// CompanyCode identifies the legal entity that owns the books.
type CompanyCode string

// ParseCompanyCode accepts exactly 4 alphanumeric characters.
func ParseCompanyCode(s string) (CompanyCode, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if len(s) != 4 || !alnum(s) {
		return "", fmt.Errorf("%w: company code %q", shared.ErrValidation, s)
	}
	return CompanyCode(s), nil
}

func (c CompanyCode) String() string { return string(c) }

// DocumentType classifies the business origin of an entry (SA, KR, KZ, ...).
type DocumentType string

const (
	DocTypeGeneral         DocumentType = "SA"
	DocTypeVendorInvoice   DocumentType = "KR"
	DocTypeVendorPayment   DocumentType = "KZ"
	DocTypeCustomerInvoice DocumentType = "DR"
	DocTypeCustomerPayment DocumentType = "DZ"
	DocTypeReversal        DocumentType = "AB"
)

// ParseDocumentType accepts two uppercase alphanumeric characters.
func ParseDocumentType(s string) (DocumentType, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if len(s) != 2 || !alnum(s) {
		return "", fmt.Errorf("%w: document type %q", shared.ErrValidation, s)
	}
	return DocumentType(s), nil
}

func (d DocumentType) String() string { return string(d) }

// DocumentNumber is the number issued by the repository at post time.
type DocumentNumber string

// FormatDocumentNumber renders a sequence value as a 10 digit number.
func FormatDocumentNumber(seq int64) DocumentNumber {
	return DocumentNumber(fmt.Sprintf("%010d", seq))
}

func (d DocumentNumber) String() string { return string(d) }

// IsZero reports whether no number has been issued.
func (d DocumentNumber) IsZero() bool { return d == "" }

// LedgerCode names a parallel ledger such as 0L (leading) or 2L.
type LedgerCode string

// LeadingLedger is the default ledger every line posts to.
const LeadingLedger LedgerCode = "0L"

// LedgerType distinguishes the accounting basis of a parallel ledger.
type LedgerType string

const (
	LedgerTypeLeading   LedgerType = "LEADING"
	LedgerTypeExtension LedgerType = "EXTENSION"
	LedgerTypeStandard  LedgerType = "STANDARD"
)

func alnum(s string) bool {
	for _, r := range s {
		if r > unicode.MaxASCII || !(unicode.IsLetter(r) || unicode.IsDigit(r)) {
			return false
		}
	}
	return true
}
