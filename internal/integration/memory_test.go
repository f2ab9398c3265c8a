package integration

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	platformshared "github.com/odyssey-erp/ledger/internal/shared"
)

type memoryGaps struct {
	mu   sync.Mutex
	gaps map[string]Gap
}

func newMemoryGaps() *memoryGaps {
	return &memoryGaps{gaps: make(map[string]Gap)}
}

func gapKey(module string, id uuid.UUID) string { return module + "/" + id.String() }

func gapStatusFor(attempts, maxAttempts int) GapStatus {
	if attempts >= maxAttempts {
		return GapFailed
	}
	return GapPending
}

func (m *memoryGaps) RecordFailure(_ context.Context, gap Gap, maxAttempts int) (Gap, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	key := gapKey(gap.SourceModule, gap.SourceID)
	if existing, ok := m.gaps[key]; ok {
		if existing.Status == GapResolved {
			return existing, nil
		}
		existing.Payload = gap.Payload
		existing.LastError = gap.LastError
		existing.Retryable = gap.Retryable
		existing.Attempts++
		existing.Status = gapStatusFor(existing.Attempts, maxAttempts)
		existing.UpdatedAt = now
		m.gaps[key] = existing
		return existing, nil
	}
	if gap.ID == uuid.Nil {
		gap.ID = uuid.New()
	}
	gap.Attempts = 1
	gap.Status = gapStatusFor(1, maxAttempts)
	gap.CreatedAt, gap.UpdatedAt = now, now
	m.gaps[key] = gap
	return gap, nil
}

func (m *memoryGaps) MarkResolved(_ context.Context, id uuid.UUID, ref string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for key, g := range m.gaps {
		if g.ID == id {
			now := time.Now()
			g.Status, g.DocumentReference, g.ResolvedAt = GapResolved, ref, &now
			m.gaps[key] = g
			return nil
		}
	}
	return ErrGapNotFound
}

func (m *memoryGaps) Get(_ context.Context, id uuid.UUID) (Gap, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, g := range m.gaps {
		if g.ID == id {
			return g, nil
		}
	}
	return Gap{}, ErrGapNotFound
}

func (m *memoryGaps) ListPending(ctx context.Context, limit int) ([]Gap, error) {
	all, _, err := m.List(ctx, GapFilter{Status: GapPending}, platformshared.NewPagination(1, platformshared.MaxPerPage, 0))
	var out []Gap
	for _, g := range all {
		if g.Retryable && len(out) < limit {
			out = append(out, g)
		}
	}
	return out, err
}

func (m *memoryGaps) List(_ context.Context, filter GapFilter, page platformshared.Pagination) ([]Gap, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Gap
	for _, g := range m.gaps {
		if filter.Status != "" && g.Status != filter.Status {
			continue
		}
		if filter.SourceModule != "" && g.SourceModule != filter.SourceModule {
			continue
		}
		out = append(out, g)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SourceID.String() < out[j].SourceID.String() })
	total := len(out)
	start := page.Offset()
	if start > total {
		start = total
	}
	end := start + page.PerPage
	if end > total {
		end = total
	}
	return out[start:end], total, nil
}

func (m *memoryGaps) only() Gap {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, g := range m.gaps {
		return g
	}
	return Gap{}
}
