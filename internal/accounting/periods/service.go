package periods

import (
	"context"
	"fmt"

	"github.com/odyssey-erp/ledger/internal/accounting/shared"
)

// Service maintains period controls.
type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// CheckPostable fails with ErrPeriodLocked when status is LOCKED or CLOSED.
// Callers read status under a row lock in the posting transaction.
func CheckPostable(companyCode string, fp FiscalPeriod, status PeriodStatus) error {
	if status == PeriodStatusOpen {
		return nil
	}
	return fmt.Errorf("%w: %s %s is %s", shared.ErrPeriodLocked, companyCode, fp, status)
}

// SetStatus opens, closes or locks a period.
func (s *Service) SetStatus(ctx context.Context, companyCode string, fp FiscalPeriod, status PeriodStatus) (Control, error) {
	if _, err := ParseStatus(string(status)); err != nil {
		return Control{}, err
	}
	if fp.Period < 1 || fp.Period > RegularPeriods+MaxSpecialPeriods {
		return Control{}, fmt.Errorf("%w: period %d", shared.ErrInvalidPeriod, fp.Period)
	}
	return s.repo.Upsert(ctx, Control{CompanyCode: companyCode, FiscalYear: fp.Year, Period: fp.Period, Status: status})
}

// List returns every controlled period of a fiscal year.
func (s *Service) List(ctx context.Context, companyCode string, fiscalYear int) ([]Control, error) {
	return s.repo.List(ctx, companyCode, fiscalYear)
}
