// Package balance checks the double-entry invariant over a set of postings.
package balance

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/ledger/internal/accounting/money"
	"github.com/odyssey-erp/ledger/internal/accounting/shared"
)

// Mode selects which dimensions of an entry must balance.
type Mode string

const (
	// ModeDocument balances document currency and local currency amounts.
	ModeDocument Mode = "document"
	// ModePerLedger additionally balances every parallel ledger.
	ModePerLedger Mode = "per_ledger"
)

// ParseMode validates a configured mode; empty means ModeDocument.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "", ModeDocument:
		return ModeDocument, nil
	case ModePerLedger:
		return ModePerLedger, nil
	}
	return "", fmt.Errorf("balance: unknown mode %q", s)
}

// Posting is one signed contribution to a balance dimension.
type Posting struct {
	Dimension string
	Indicator money.Indicator
	Amount    money.Amount
}

// ImbalanceError reports the totals of the first dimension that does not net to zero.
type ImbalanceError struct {
	Dimension   string
	DebitTotal  decimal.Decimal
	CreditTotal decimal.Decimal
}

func (e *ImbalanceError) Error() string {
	return fmt.Sprintf("accounting: journal lines must balance: %s debit %s credit %s",
		e.Dimension, e.DebitTotal.StringFixed(2), e.CreditTotal.StringFixed(2))
}

// Difference is debit minus credit.
func (e *ImbalanceError) Difference() decimal.Decimal {
	return e.DebitTotal.Sub(e.CreditTotal)
}

func (e *ImbalanceError) Unwrap() error { return shared.ErrUnbalanced }

// ProblemExtensions exposes the totals to HTTP problem responses.
func (e *ImbalanceError) ProblemExtensions() map[string]any {
	return map[string]any{
		"dimension":    e.Dimension,
		"debit_total":  e.DebitTotal.StringFixed(2),
		"credit_total": e.CreditTotal.StringFixed(2),
	}
}

type totals struct {
	debit  decimal.Decimal
	credit decimal.Decimal
}

// Validate sums postings per dimension and returns *ImbalanceError for the
// first unbalanced dimension in lexical order. An empty set is balanced.
func Validate(postings []Posting) error {
	sums := make(map[string]*totals)
	for _, p := range postings {
		t, ok := sums[p.Dimension]
		if !ok {
			t = &totals{debit: decimal.Zero, credit: decimal.Zero}
			sums[p.Dimension] = t
		}
		switch p.Indicator {
		case money.Debit:
			t.debit = t.debit.Add(p.Amount.Decimal())
		case money.Credit:
			t.credit = t.credit.Add(p.Amount.Decimal())
		default:
			return fmt.Errorf("%w: posting without debit/credit indicator", shared.ErrValidation)
		}
	}
	dims := make([]string, 0, len(sums))
	for dim := range sums {
		dims = append(dims, dim)
	}
	sort.Strings(dims)
	for _, dim := range dims {
		t := sums[dim]
		if !t.debit.Equal(t.credit) {
			return &ImbalanceError{Dimension: dim, DebitTotal: t.debit, CreditTotal: t.credit}
		}
	}
	return nil
}

// Dimension names used by journal entries.
func DocumentDimension(c money.Currency) string { return "document:" + c.String() }

// LocalDimension is the company code currency dimension.
const LocalDimension = "local"

// LedgerDimension names a parallel ledger dimension.
func LedgerDimension(l money.LedgerCode) string { return "ledger:" + string(l) }
