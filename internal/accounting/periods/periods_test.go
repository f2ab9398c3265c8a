package periods

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/ledger/internal/accounting/shared"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestCalendarResolver(t *testing.T) {
	fp, err := CalendarResolver{}.Resolve(date(2024, time.March, 15), 0)
	require.NoError(t, err)
	require.Equal(t, FiscalPeriod{Year: 2024, Period: 3}, fp)

	_, err = CalendarResolver{}.Resolve(date(2024, time.March, 15), 13)
	require.ErrorIs(t, err, shared.ErrInvalidPeriod)
	_, err = CalendarResolver{}.Resolve(time.Time{}, 0)
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestVariantResolverShiftedYear(t *testing.T) {
	v, err := NewVariantResolver(4, 4)
	require.NoError(t, err)

	fp, err := v.Resolve(date(2024, time.April, 1), 0)
	require.NoError(t, err)
	require.Equal(t, FiscalPeriod{Year: 2024, Period: 1}, fp)

	fp, err = v.Resolve(date(2025, time.February, 10), 0)
	require.NoError(t, err)
	require.Equal(t, FiscalPeriod{Year: 2024, Period: 11}, fp)

	fp, err = v.Resolve(date(2025, time.March, 31), 14)
	require.NoError(t, err)
	require.Equal(t, FiscalPeriod{Year: 2024, Period: 14}, fp)
	require.True(t, fp.IsSpecial())
}

func TestVariantResolverSpecialPeriodRules(t *testing.T) {
	v, err := NewVariantResolver(1, 2)
	require.NoError(t, err)

	_, err = v.Resolve(date(2024, time.June, 30), 13)
	require.ErrorIs(t, err, shared.ErrInvalidPeriod)

	_, err = v.Resolve(date(2024, time.December, 31), 15)
	require.ErrorIs(t, err, shared.ErrInvalidPeriod)

	fp, err := v.Resolve(date(2024, time.December, 31), 13)
	require.NoError(t, err)
	require.Equal(t, 13, fp.Period)
}

func TestNewResolverRejectsBadSettings(t *testing.T) {
	_, err := NewResolver(0, 0)
	require.Error(t, err)
	_, err = NewResolver(1, 5)
	require.Error(t, err)
	r, err := NewResolver(1, 0)
	require.NoError(t, err)
	require.IsType(t, CalendarResolver{}, r)
}

type memoryRepo struct {
	rows map[FiscalPeriod]Control
}

func (m *memoryRepo) Get(_ context.Context, company string, year, period int) (Control, bool, error) {
	c, ok := m.rows[FiscalPeriod{Year: year, Period: period}]
	return c, ok, nil
}

func (m *memoryRepo) Upsert(_ context.Context, c Control) (Control, error) {
	if m.rows == nil {
		m.rows = map[FiscalPeriod]Control{}
	}
	m.rows[FiscalPeriod{Year: c.FiscalYear, Period: c.Period}] = c
	return c, nil
}

func (m *memoryRepo) List(context.Context, string, int) ([]Control, error) { return nil, nil }

func TestCheckPostable(t *testing.T) {
	fp := FiscalPeriod{Year: 2024, Period: 5}
	require.NoError(t, CheckPostable("CN01", fp, PeriodStatusOpen))

	err := CheckPostable("CN01", fp, PeriodStatusLocked)
	require.ErrorIs(t, err, shared.ErrPeriodLocked)
	require.ErrorIs(t, err, shared.ErrState)
	require.Contains(t, err.Error(), "CN01 2024/05 is LOCKED")

	require.ErrorIs(t, CheckPostable("CN01", fp, PeriodStatusClosed), shared.ErrPeriodLocked)
}

func TestSetStatus(t *testing.T) {
	repo := &memoryRepo{}
	svc := NewService(repo)
	ctx := context.Background()
	fp := FiscalPeriod{Year: 2024, Period: 5}

	_, err := svc.SetStatus(ctx, "CN01", fp, PeriodStatusLocked)
	require.NoError(t, err)
	control, found, err := repo.Get(ctx, "CN01", 2024, 5)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, PeriodStatusLocked, control.Status)

	_, err = svc.SetStatus(ctx, "CN01", fp, PeriodStatus("FROZEN"))
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = svc.SetStatus(ctx, "CN01", FiscalPeriod{Year: 2024, Period: 17}, PeriodStatusOpen)
	require.ErrorIs(t, err, shared.ErrInvalidPeriod)
}
