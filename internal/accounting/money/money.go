// Package money holds the value objects shared by every ledger component.
// Values are only obtainable through parse/constructor functions so an
// invalid amount, currency or indicator cannot reach the aggregate.
package money

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"

	"github.com/odyssey-erp/ledger/internal/accounting/shared"
)

// Currency is an ISO 4217 currency code with its minor-unit scale.
type Currency struct {
	code  string
	scale int32
}

// ParseCurrency validates code against the ISO 4217 registry.
func ParseCurrency(code string) (Currency, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if len(code) != 3 {
		return Currency{}, fmt.Errorf("%w: currency %q", shared.ErrValidation, code)
	}
	unit, err := currency.ParseISO(code)
	if err != nil {
		return Currency{}, fmt.Errorf("%w: unknown currency %q", shared.ErrValidation, code)
	}
	scale, _ := currency.Standard.Rounding(unit)
	return Currency{code: unit.String(), scale: int32(scale)}, nil
}

// MustCurrency panics on invalid input. Intended for constants and tests.
func MustCurrency(code string) Currency {
	c, err := ParseCurrency(code)
	if err != nil {
		panic(err)
	}
	return c
}

func (c Currency) String() string { return c.code }

// IsZero reports whether the currency was never set.
func (c Currency) IsZero() bool { return c.code == "" }

// Scale is the number of minor-unit decimals, 2 for CNY and 0 for JPY.
func (c Currency) Scale() int32 { return c.scale }

// CheckAmount rejects amounts finer than the currency's minor unit.
func (c Currency) CheckAmount(a Amount) error {
	if !a.FitsScale(c.scale) {
		return fmt.Errorf("%w: amount %s has more than %d decimals for %s", shared.ErrValidation, a.value.String(), c.scale, c.code)
	}
	return nil
}

// Amount is a non-negative magnitude. Sign lives in the Indicator.
type Amount struct {
	value decimal.Decimal
}

// MaxScale is the finest precision any amount may carry. It matches the
// NUMERIC(23,4) storage columns so a stored amount is never rounded.
const MaxScale int32 = 4

// Zero is the zero amount.
var Zero = Amount{value: decimal.Zero}

// NewAmount rejects negative magnitudes and values finer than MaxScale.
func NewAmount(v decimal.Decimal) (Amount, error) {
	if v.IsNegative() {
		return Amount{}, fmt.Errorf("%w: negative amount %s", shared.ErrValidation, v.String())
	}
	if !v.Equal(v.Truncate(MaxScale)) {
		return Amount{}, fmt.Errorf("%w: amount %s has more than %d decimals", shared.ErrValidation, v.String(), MaxScale)
	}
	return Amount{value: v}, nil
}

// ParseAmount parses a decimal string such as "1000.00".
func ParseAmount(s string) (Amount, error) {
	v, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return Amount{}, fmt.Errorf("%w: amount %q", shared.ErrValidation, s)
	}
	return NewAmount(v)
}

// MustAmount panics on invalid input. Intended for tests.
func MustAmount(s string) Amount {
	a, err := ParseAmount(s)
	if err != nil {
		panic(err)
	}
	return a
}

// Decimal exposes the underlying value.
func (a Amount) Decimal() decimal.Decimal { return a.value }

// IsZero reports whether the magnitude is zero.
func (a Amount) IsZero() bool { return a.value.IsZero() }

// Add returns a + b; the sum of two non-negative amounts is non-negative.
func (a Amount) Add(b Amount) Amount { return Amount{value: a.value.Add(b.value)} }

// Equal compares magnitudes regardless of scale.
func (a Amount) Equal(b Amount) bool { return a.value.Equal(b.value) }

// FitsScale reports whether the amount has at most places decimals.
func (a Amount) FitsScale(places int32) bool { return a.value.Equal(a.value.Truncate(places)) }

// String renders at least two decimals and never rounds.
func (a Amount) String() string {
	places := int32(2)
	for places < MaxScale && !a.FitsScale(places) {
		places++
	}
	return a.value.StringFixed(places)
}

// MarshalJSON renders the amount as a JSON string to avoid float rounding.
func (a Amount) MarshalJSON() ([]byte, error) {
	return []byte(`"` + a.String() + `"`), nil
}

// UnmarshalJSON accepts either a JSON string or a JSON number.
func (a *Amount) UnmarshalJSON(data []byte) error {
	parsed, err := ParseAmount(strings.Trim(string(data), `"`))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// Money pairs an amount with its currency.
type Money struct {
	Amount   Amount
	Currency Currency
}

func (m Money) String() string {
	return m.Amount.String() + " " + m.Currency.String()
}

// Indicator is the debit/credit tag of a line.
type Indicator uint8

const (
	Debit Indicator = iota + 1
	Credit
)

// ParseIndicator accepts D/C, DEBIT/CREDIT and the S/H (Soll/Haben) shorthand.
func ParseIndicator(s string) (Indicator, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "D", "DEBIT", "S":
		return Debit, nil
	case "C", "CREDIT", "H":
		return Credit, nil
	}
	return 0, fmt.Errorf("%w: debit/credit indicator %q", shared.ErrValidation, s)
}

// Opposite swaps debit and credit.
func (i Indicator) Opposite() Indicator {
	if i == Debit {
		return Credit
	}
	return Debit
}

func (i Indicator) String() string {
	switch i {
	case Debit:
		return "D"
	case Credit:
		return "C"
	}
	return ""
}

// Valid reports whether i is one of the two tags.
func (i Indicator) Valid() bool { return i == Debit || i == Credit }

// MarshalJSON renders D or C.
func (i Indicator) MarshalJSON() ([]byte, error) {
	return []byte(`"` + i.String() + `"`), nil
}

// UnmarshalJSON parses through ParseIndicator.
func (i *Indicator) UnmarshalJSON(data []byte) error {
	parsed, err := ParseIndicator(strings.Trim(string(data), `"`))
	if err != nil {
		return err
	}
	*i = parsed
	return nil
}
