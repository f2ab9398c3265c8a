package periods

import (
	"fmt"
	"time"

	"github.com/odyssey-erp/ledger/internal/accounting/shared"
)

// PeriodStatus enumerates valid period control states.
type PeriodStatus string

const (
	PeriodStatusOpen   PeriodStatus = "OPEN"
	PeriodStatusClosed PeriodStatus = "CLOSED"
	PeriodStatusLocked PeriodStatus = "LOCKED"
)

// ParseStatus rejects anything outside the three control states.
func ParseStatus(s string) (PeriodStatus, error) {
	switch PeriodStatus(s) {
	case PeriodStatusOpen, PeriodStatusClosed, PeriodStatusLocked:
		return PeriodStatus(s), nil
	}
	return "", fmt.Errorf("%w: period status %q", shared.ErrValidation, s)
}

// FiscalPeriod is a (year, period) pair; periods 13-16 are special periods.
type FiscalPeriod struct {
	Year   int
	Period int
}

func (p FiscalPeriod) String() string {
	return fmt.Sprintf("%04d/%02d", p.Year, p.Period)
}

// IsSpecial reports whether the period is a year-end adjustment period.
func (p FiscalPeriod) IsSpecial() bool { return p.Period > RegularPeriods }

// Control records whether postings into a company period are allowed.
type Control struct {
	CompanyCode string
	FiscalYear  int
	Period      int
	Status      PeriodStatus
	UpdatedAt   time.Time
}
