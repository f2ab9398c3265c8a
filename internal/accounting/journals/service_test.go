package journals

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/ledger/internal/accounting/balance"
	"github.com/odyssey-erp/ledger/internal/accounting/money"
	"github.com/odyssey-erp/ledger/internal/accounting/periods"
	"github.com/odyssey-erp/ledger/internal/accounting/shared"
	platformshared "github.com/odyssey-erp/ledger/internal/shared"
)

type recordingAudit struct {
	mu   sync.Mutex
	logs []platformshared.AuditLog
}

func (a *recordingAudit) Record(_ context.Context, log platformshared.AuditLog) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.logs = append(a.logs, log)
	return nil
}

func (a *recordingAudit) actions() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, len(a.logs))
	for i, l := range a.logs {
		out[i] = l.Action
	}
	return out
}

type stubAccounts struct {
	invalid map[money.AccountCode]bool
	calls   int
}

func (s *stubAccounts) ValidateEntryAccounts(_ context.Context, _ money.CompanyCode, _ time.Time, accounts []money.AccountCode) error {
	s.calls++
	for _, a := range accounts {
		if s.invalid[a] {
			return fmt.Errorf("%w: %s", shared.ErrInvalidAccount, a)
		}
	}
	return nil
}

type countingMetrics struct {
	mu       sync.Mutex
	outcomes map[string]int
}

func (c *countingMetrics) ObservePosting(outcome string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.outcomes == nil {
		c.outcomes = map[string]int{}
	}
	c.outcomes[outcome]++
}

func newTestService(repo *memoryRepo) (*Service, *recordingAudit) {
	audit := &recordingAudit{}
	svc := NewService(repo, periods.CalendarResolver{}, audit, nil)
	svc.WithNow(func() time.Time { return testNow })
	return svc, audit
}

func balancedLines() []Line {
	return []Line{
		testLine("1001000", money.Debit, "1000.00"),
		testLine("2001000", money.Credit, "1000.00"),
	}
}

func TestCreateAndPostImmediately(t *testing.T) {
	repo := newMemoryRepo()
	svc, audit := newTestService(repo)
	metrics := &countingMetrics{}
	svc.WithMetrics(metrics)

	res, err := svc.Create(context.Background(), CreateCommand{Header: testHeader(), Lines: balancedLines(), PostImmediately: true})
	require.NoError(t, err)
	require.Equal(t, StatusPosted, res.Entry.Status())
	require.Equal(t, money.DocumentNumber("0000000001"), res.Entry.DocumentNumber())
	require.Equal(t, 2024, res.Entry.FiscalYear)
	require.Equal(t, 5, res.Entry.FiscalPeriod)

	stored, err := svc.Get(context.Background(), res.Entry.ID)
	require.NoError(t, err)
	require.Equal(t, StatusPosted, stored.Status())
	require.True(t, stored.IsBalanced())
	require.Equal(t, []string{"journal.post"}, audit.actions())
	require.Equal(t, 1, metrics.outcomes["posted"])
}

func TestCreateDraftThenPostTwice(t *testing.T) {
	repo := newMemoryRepo()
	svc, _ := newTestService(repo)
	ctx := context.Background()

	res, err := svc.Create(ctx, CreateCommand{Header: testHeader(), Lines: balancedLines()})
	require.NoError(t, err)
	require.Equal(t, StatusDraft, res.Entry.Status())
	require.True(t, res.Entry.DocumentNumber().IsZero())

	posted, err := svc.Post(ctx, res.Entry.ID)
	require.NoError(t, err)
	number, postedAt := posted.DocumentNumber(), *posted.PostedAt()

	svc.WithNow(func() time.Time { return testNow.Add(time.Hour) })
	_, err = svc.Post(ctx, res.Entry.ID)
	require.ErrorIs(t, err, shared.ErrAlreadyPosted)

	again, err := svc.Get(ctx, res.Entry.ID)
	require.NoError(t, err)
	require.Equal(t, number, again.DocumentNumber())
	require.Equal(t, postedAt, *again.PostedAt())
}

func TestCreateRejectsImbalance(t *testing.T) {
	repo := newMemoryRepo()
	svc, _ := newTestService(repo)
	_, err := svc.Create(context.Background(), CreateCommand{
		Header:          testHeader(),
		Lines:           []Line{testLine("1001000", money.Debit, "1000.00")},
		PostImmediately: true,
	})
	var imb *balance.ImbalanceError
	require.True(t, errors.As(err, &imb))
	require.Equal(t, "1000.00", imb.DebitTotal.StringFixed(2))
	require.Equal(t, "0.00", imb.CreditTotal.StringFixed(2))
	require.Empty(t, repo.entries)
}

func TestTestRunDoesNotPersist(t *testing.T) {
	repo := newMemoryRepo()
	svc, audit := newTestService(repo)
	accounts := &stubAccounts{}
	svc.WithAccountChecker(accounts)

	res, err := svc.Create(context.Background(), CreateCommand{Header: testHeader(), Lines: balancedLines(), TestRun: true, PostImmediately: true})
	require.NoError(t, err)
	require.True(t, res.TestRun)
	require.Equal(t, StatusDraft, res.Entry.Status())
	require.Equal(t, 1, accounts.calls)
	require.Empty(t, repo.entries)
	require.Empty(t, repo.ranges)
	require.Empty(t, audit.actions())
}

func TestInvalidAccountFailsWholeEntry(t *testing.T) {
	repo := newMemoryRepo()
	svc, _ := newTestService(repo)
	svc.WithAccountChecker(&stubAccounts{invalid: map[money.AccountCode]bool{"2001000": true}})

	_, err := svc.Create(context.Background(), CreateCommand{Header: testHeader(), Lines: balancedLines(), PostImmediately: true})
	require.ErrorIs(t, err, shared.ErrInvalidAccount)
	require.Empty(t, repo.entries)
}

func TestSubCentAmountsAreRejected(t *testing.T) {
	repo := newMemoryRepo()
	svc, _ := newTestService(repo)

	lines := []Line{
		testLine("1001000", money.Debit, "0.005"),
		testLine("1002000", money.Debit, "0.005"),
		testLine("2001000", money.Credit, "0.01"),
	}
	_, err := svc.Create(context.Background(), CreateCommand{Header: testHeader(), Lines: lines, PostImmediately: true})
	require.ErrorIs(t, err, shared.ErrInvalidLine)
	require.Empty(t, repo.entries)
	require.Empty(t, repo.ranges)
}

func TestLockedPeriodRejectsPostingWithoutConsumingNumber(t *testing.T) {
	repo := newMemoryRepo()
	audit := &recordingAudit{}
	repo.locked = map[periods.FiscalPeriod]periods.PeriodStatus{{Year: 2024, Period: 5}: periods.PeriodStatusLocked}
	svc := NewService(repo, periods.CalendarResolver{}, audit, nil)
	svc.WithNow(func() time.Time { return testNow })

	_, err := svc.Create(context.Background(), CreateCommand{Header: testHeader(), Lines: balancedLines(), PostImmediately: true})
	require.ErrorIs(t, err, shared.ErrPeriodLocked)
	require.Empty(t, repo.entries)
	require.Empty(t, repo.ranges)
}

func TestSourceIdempotency(t *testing.T) {
	repo := newMemoryRepo()
	svc, _ := newTestService(repo)
	ctx := context.Background()
	src := Source{Module: "AP", ID: uuid.New()}

	first, err := svc.Create(ctx, CreateCommand{Header: testHeader(), Lines: balancedLines(), Source: src, PostImmediately: true})
	require.NoError(t, err)
	require.False(t, first.Existing)

	second, err := svc.Create(ctx, CreateCommand{Header: testHeader(), Lines: balancedLines(), Source: src, PostImmediately: true})
	require.NoError(t, err)
	require.True(t, second.Existing)
	require.Equal(t, first.Entry.ID, second.Entry.ID)
	require.Equal(t, first.Entry.DocumentNumber(), second.Entry.DocumentNumber())
	require.Len(t, repo.entries, 1)

	found, err := svc.GetBySource(ctx, src)
	require.NoError(t, err)
	require.Equal(t, first.Entry.ID, found.ID)
}

func TestConcurrentPostingIssuesUniqueNumbers(t *testing.T) {
	repo := newMemoryRepo()
	svc, _ := newTestService(repo)
	ctx := context.Background()

	const n = 50
	ids := make([]uuid.UUID, n)
	for i := range ids {
		res, err := svc.Create(ctx, CreateCommand{Header: testHeader(), Lines: balancedLines()})
		require.NoError(t, err)
		ids[i] = res.Entry.ID
	}

	var (
		wg sync.WaitGroup
		mu sync.Mutex
		numbers = map[money.DocumentNumber]bool{}
	)
	for _, id := range ids {
		wg.Add(1)
		go func(id uuid.UUID) {
			defer wg.Done()
			entry, err := svc.Post(ctx, id)
			if err != nil {
				t.Errorf("post %s: %v", id, err)
				return
			}
			mu.Lock()
			defer mu.Unlock()
			if numbers[entry.DocumentNumber()] {
				t.Errorf("duplicate document number %s", entry.DocumentNumber())
			}
			numbers[entry.DocumentNumber()] = true
		}(id)
	}
	wg.Wait()
	require.Len(t, numbers, n)
}

func TestLifecycleCommands(t *testing.T) {
	repo := newMemoryRepo()
	svc, audit := newTestService(repo)
	ctx := context.Background()

	res, err := svc.Create(ctx, CreateCommand{Header: testHeader(), Lines: balancedLines()})
	require.NoError(t, err)
	id := res.Entry.ID

	e, err := svc.Park(ctx, id)
	require.NoError(t, err)
	require.Equal(t, StatusParked, e.Status())

	_, err = svc.Submit(ctx, id)
	require.ErrorIs(t, err, shared.ErrInvalidTransition)

	e, err = svc.Reject(ctx, id)
	require.NoError(t, err)
	require.Equal(t, StatusDraft, e.Status())

	e, err = svc.Submit(ctx, id)
	require.NoError(t, err)
	require.Equal(t, StatusPendingApproval, e.Status())

	_, err = svc.Update(ctx, id, UpdateCommand{Lines: balancedLines()})
	require.ErrorIs(t, err, shared.ErrNotEditable)

	e, err = svc.Approve(ctx, id)
	require.NoError(t, err)
	require.Equal(t, StatusApproved, e.Status())

	e, err = svc.Post(ctx, id)
	require.NoError(t, err)
	require.Equal(t, StatusPosted, e.Status())

	_, err = svc.Cancel(ctx, id)
	require.ErrorIs(t, err, shared.ErrInvalidTransition)
	require.ErrorIs(t, svc.Delete(ctx, id), shared.ErrNotDeletable)

	require.Equal(t, []string{"journal.create", "journal.park", "journal.reject", "journal.submit", "journal.approve", "journal.post"}, audit.actions())
}

func TestUpdateReplacesLines(t *testing.T) {
	repo := newMemoryRepo()
	svc, _ := newTestService(repo)
	ctx := context.Background()

	res, err := svc.Create(ctx, CreateCommand{Header: testHeader(), Lines: balancedLines()})
	require.NoError(t, err)

	h := testHeader()
	h.PostingDate = time.Date(2024, time.July, 1, 0, 0, 0, 0, time.UTC)
	updated, err := svc.Update(ctx, res.Entry.ID, UpdateCommand{Header: &h, Lines: []Line{
		testLine("1001000", money.Debit, "300"),
		testLine("2001000", money.Credit, "200"),
		testLine("2002000", money.Credit, "100"),
	}})
	require.NoError(t, err)
	require.Equal(t, 3, updated.LineCount())
	require.Equal(t, 7, updated.FiscalPeriod)

	_, err = svc.Update(ctx, res.Entry.ID, UpdateCommand{Lines: []Line{testLine("1001000", money.Debit, "1")}})
	require.ErrorIs(t, err, shared.ErrUnbalanced)

	stored, err := svc.Get(ctx, res.Entry.ID)
	require.NoError(t, err)
	require.Equal(t, 3, stored.LineCount())
}

func TestCancelAndDelete(t *testing.T) {
	repo := newMemoryRepo()
	svc, _ := newTestService(repo)
	ctx := context.Background()
	src := Source{Module: "AP", ID: uuid.New()}

	res, err := svc.Create(ctx, CreateCommand{Header: testHeader(), Lines: balancedLines(), Source: src})
	require.NoError(t, err)
	_, err = svc.Cancel(ctx, res.Entry.ID)
	require.NoError(t, err)
	require.NoError(t, svc.Delete(ctx, res.Entry.ID))

	_, err = svc.Get(ctx, res.Entry.ID)
	require.ErrorIs(t, err, shared.ErrNotFound)
	_, err = svc.GetBySource(ctx, src)
	require.ErrorIs(t, err, shared.ErrJournalNotFound)
	require.ErrorIs(t, svc.Delete(ctx, uuid.New()), shared.ErrJournalNotFound)
}

func TestReverse(t *testing.T) {
	repo := newMemoryRepo()
	svc, _ := newTestService(repo)
	ctx := context.Background()

	res, err := svc.Create(ctx, CreateCommand{Header: testHeader(), Lines: balancedLines(), PostImmediately: true})
	require.NoError(t, err)
	originalLines := res.Entry.Lines()

	rev, err := svc.Reverse(ctx, res.Entry.ID, ReverseCommand{})
	require.NoError(t, err)
	require.Equal(t, StatusPosted, rev.Status())
	require.Equal(t, money.DocumentNumber("0000000002"), rev.DocumentNumber())
	require.Equal(t, money.DocTypeReversal, rev.Header.DocumentType)
	require.Equal(t, res.Entry.ID, rev.ReversalOf.UUID)

	original, err := svc.Get(ctx, res.Entry.ID)
	require.NoError(t, err)
	require.Equal(t, StatusReversed, original.Status())
	require.Equal(t, rev.ID, original.ReversedBy.UUID)
	require.Equal(t, originalLines, original.Lines())
	require.Equal(t, res.Entry.DocumentNumber(), original.DocumentNumber())

	_, err = svc.Reverse(ctx, res.Entry.ID, ReverseCommand{})
	require.ErrorIs(t, err, shared.ErrInvalidTransition)
}

func TestListPaginates(t *testing.T) {
	repo := newMemoryRepo()
	svc, _ := newTestService(repo)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		_, err := svc.Create(ctx, CreateCommand{Header: testHeader(), Lines: balancedLines(), PostImmediately: i%2 == 0})
		require.NoError(t, err)
	}
	entries, page, err := svc.List(ctx, ListQuery{Filter: Filter{CompanyCode: "CN01", Status: StatusPosted}, Page: 1, PageSize: 2})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, 3, page.Total)
	require.Equal(t, 2, page.TotalPages)

	entries, _, err = svc.List(ctx, ListQuery{Filter: Filter{CompanyCode: "CN01", Status: StatusPosted}, Page: 2, PageSize: 2})
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

func TestSaveFailureLeavesNothingBehind(t *testing.T) {
	repo := newMemoryRepo()
	repo.failOn = "save"
	svc, _ := newTestService(repo)
	_, err := svc.Create(context.Background(), CreateCommand{Header: testHeader(), Lines: balancedLines(), PostImmediately: true})
	require.ErrorIs(t, err, shared.ErrInfrastructure)
	require.Empty(t, repo.entries)
	require.Empty(t, repo.ranges)
}
