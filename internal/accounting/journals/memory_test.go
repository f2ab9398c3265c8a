package journals

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/odyssey-erp/ledger/internal/accounting/money"
	"github.com/odyssey-erp/ledger/internal/accounting/periods"
	"github.com/odyssey-erp/ledger/internal/accounting/shared"
	platformshared "github.com/odyssey-erp/ledger/internal/shared"
)

// memoryRepo serializes transactions with a mutex and rolls back by
// discarding the working copy.
type memoryRepo struct {
	mu      sync.Mutex
	entries map[uuid.UUID]*JournalEntry
	sources map[Source]uuid.UUID
	ranges  map[string]int64
	locked  map[periods.FiscalPeriod]periods.PeriodStatus
	failOn  string
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		entries: map[uuid.UUID]*JournalEntry{},
		sources: map[Source]uuid.UUID{},
		ranges:  map[string]int64{},
	}
}

func cloneEntry(e *JournalEntry) *JournalEntry {
	c := *e
	c.lines = make([]Line, len(e.lines))
	for i, l := range e.lines {
		l.Ledgers = append([]LedgerAmount(nil), l.Ledgers...)
		c.lines[i] = l
	}
	if e.postedAt != nil {
		at := *e.postedAt
		c.postedAt = &at
	}
	return &c
}

func (m *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	work := &memoryTx{repo: m, entries: map[uuid.UUID]*JournalEntry{}, sources: map[Source]uuid.UUID{}, ranges: map[string]int64{}}
	for k, v := range m.entries {
		work.entries[k] = cloneEntry(v)
	}
	for k, v := range m.sources {
		work.sources[k] = v
	}
	for k, v := range m.ranges {
		work.ranges[k] = v
	}
	if err := fn(ctx, work); err != nil {
		return err
	}
	m.entries, m.sources, m.ranges = work.entries, work.sources, work.ranges
	return nil
}

func (m *memoryRepo) FindByID(_ context.Context, id uuid.UUID) (*JournalEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[id]
	if !ok {
		return nil, shared.ErrJournalNotFound
	}
	return cloneEntry(e), nil
}

func (m *memoryRepo) FindBySource(ctx context.Context, src Source) (*JournalEntry, error) {
	m.mu.Lock()
	id, ok := m.sources[src]
	m.mu.Unlock()
	if !ok {
		return nil, shared.ErrJournalNotFound
	}
	return m.FindByID(ctx, id)
}

func (m *memoryRepo) matching(f Filter) []*JournalEntry {
	var out []*JournalEntry
	for _, e := range m.entries {
		if f.CompanyCode != "" && e.Header.CompanyCode != f.CompanyCode {
			continue
		}
		if f.Status != "" && e.status != f.Status {
			continue
		}
		if f.FiscalYear != 0 && e.FiscalYear != f.FiscalYear {
			continue
		}
		if f.SourceModule != "" && e.Source.Module != f.SourceModule {
			continue
		}
		out = append(out, cloneEntry(e))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out
}

func (m *memoryRepo) Search(_ context.Context, f Filter, page platformshared.Pagination) ([]*JournalEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	all := m.matching(f)
	start := page.Offset()
	if start >= len(all) {
		return nil, nil
	}
	end := start + page.PerPage
	if end > len(all) {
		end = len(all)
	}
	return all[start:end], nil
}

func (m *memoryRepo) Count(_ context.Context, f Filter) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.matching(f)), nil
}

type memoryTx struct {
	repo    *memoryRepo
	entries map[uuid.UUID]*JournalEntry
	sources map[Source]uuid.UUID
	ranges  map[string]int64
}

func (t *memoryTx) Save(_ context.Context, e *JournalEntry) error {
	if t.repo.failOn == "save" {
		return shared.Infrastructure("memory: save", context.DeadlineExceeded)
	}
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	t.entries[e.ID] = cloneEntry(e)
	return nil
}

func (t *memoryTx) UpdateStatus(_ context.Context, e *JournalEntry) error {
	stored, ok := t.entries[e.ID]
	if !ok {
		return shared.ErrJournalNotFound
	}
	stored.status = e.status
	stored.ReversedBy = e.ReversedBy
	stored.UpdatedAt = e.UpdatedAt
	return nil
}

func (t *memoryTx) GetForUpdate(_ context.Context, id uuid.UUID) (*JournalEntry, error) {
	e, ok := t.entries[id]
	if !ok {
		return nil, shared.ErrJournalNotFound
	}
	return cloneEntry(e), nil
}

func (t *memoryTx) FindBySource(ctx context.Context, src Source) (*JournalEntry, error) {
	id, ok := t.sources[src]
	if !ok {
		return nil, shared.ErrJournalNotFound
	}
	return t.GetForUpdate(ctx, id)
}

func (t *memoryTx) LinkSource(_ context.Context, src Source, entryID uuid.UUID) error {
	if _, ok := t.sources[src]; ok {
		return shared.ErrSourceAlreadyLinked
	}
	t.sources[src] = entryID
	return nil
}

func (t *memoryTx) NextDocumentNumber(_ context.Context, company money.CompanyCode, fiscalYear int) (money.DocumentNumber, error) {
	key := company.String() + "/" + itoa(fiscalYear)
	t.ranges[key]++
	return money.FormatDocumentNumber(t.ranges[key]), nil
}

func (t *memoryTx) LockPeriod(_ context.Context, _ money.CompanyCode, fp periods.FiscalPeriod) (periods.PeriodStatus, error) {
	if status, ok := t.repo.locked[fp]; ok {
		return status, nil
	}
	return periods.PeriodStatusOpen, nil
}

func (t *memoryTx) Delete(_ context.Context, id uuid.UUID) error {
	if _, ok := t.entries[id]; !ok {
		return shared.ErrJournalNotFound
	}
	delete(t.entries, id)
	for src, linked := range t.sources {
		if linked == id {
			delete(t.sources, src)
		}
	}
	return nil
}
