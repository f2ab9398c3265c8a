package periods

import (
	"fmt"
	"time"

	"github.com/odyssey-erp/ledger/internal/accounting/shared"
)

// RegularPeriods is the number of month periods in every fiscal year.
const RegularPeriods = 12

// MaxSpecialPeriods caps the adjustment periods after period 12.
const MaxSpecialPeriods = 4

// Resolver derives the fiscal period of a posting date. requested is an
// optional explicit period (0 means derive); only special periods may be
// requested explicitly.
type Resolver interface {
	Resolve(postingDate time.Time, requested int) (FiscalPeriod, error)
}

// CalendarResolver maps the calendar month to the period number.
type CalendarResolver struct{}

// Resolve implements Resolver.
func (CalendarResolver) Resolve(postingDate time.Time, requested int) (FiscalPeriod, error) {
	if postingDate.IsZero() {
		return FiscalPeriod{}, fmt.Errorf("%w: posting date required", shared.ErrInvalidPeriod)
	}
	fp := FiscalPeriod{Year: postingDate.Year(), Period: int(postingDate.Month())}
	if requested != 0 && requested != fp.Period {
		return FiscalPeriod{}, fmt.Errorf("%w: period %d not available in calendar fiscal year", shared.ErrInvalidPeriod, requested)
	}
	return fp, nil
}

// VariantResolver supports fiscal years that start in any month plus up to
// four special periods. A fiscal year is labelled by the calendar year it
// starts in.
type VariantResolver struct {
	StartMonth     time.Month
	SpecialPeriods int
}

// NewVariantResolver validates the variant settings.
func NewVariantResolver(startMonth, specialPeriods int) (VariantResolver, error) {
	if startMonth < 1 || startMonth > 12 {
		return VariantResolver{}, fmt.Errorf("periods: start month %d out of range", startMonth)
	}
	if specialPeriods < 0 || specialPeriods > MaxSpecialPeriods {
		return VariantResolver{}, fmt.Errorf("periods: special periods %d out of range", specialPeriods)
	}
	return VariantResolver{StartMonth: time.Month(startMonth), SpecialPeriods: specialPeriods}, nil
}

// Resolve implements Resolver.
func (v VariantResolver) Resolve(postingDate time.Time, requested int) (FiscalPeriod, error) {
	if postingDate.IsZero() {
		return FiscalPeriod{}, fmt.Errorf("%w: posting date required", shared.ErrInvalidPeriod)
	}
	start := v.StartMonth
	if start == 0 {
		start = time.January
	}
	month := int(postingDate.Month())
	offset := (month - int(start) + 12) % 12
	year := postingDate.Year()
	if month < int(start) {
		year--
	}
	fp := FiscalPeriod{Year: year, Period: offset + 1}
	switch {
	case requested == 0 || requested == fp.Period:
		return fp, nil
	case requested > RegularPeriods && requested <= RegularPeriods+v.SpecialPeriods:
		if fp.Period != RegularPeriods {
			return FiscalPeriod{}, fmt.Errorf("%w: special period %d requires a posting date in period %d",
				shared.ErrInvalidPeriod, requested, RegularPeriods)
		}
		fp.Period = requested
		return fp, nil
	}
	return FiscalPeriod{}, fmt.Errorf("%w: period %d does not match posting date %s",
		shared.ErrInvalidPeriod, requested, postingDate.Format(time.DateOnly))
}

// NewResolver picks the calendar resolver for January fiscal years without
// special periods and the variant resolver otherwise.
func NewResolver(startMonth, specialPeriods int) (Resolver, error) {
	if startMonth == 1 && specialPeriods == 0 {
		return CalendarResolver{}, nil
	}
	return NewVariantResolver(startMonth, specialPeriods)
}
