package integration

import (
	"context"
	"fmt"

	"github.com/odyssey-erp/ledger/internal/accounting/shared"
)

// Pool hands out transport handles exclusively: a handle is held by exactly
// one call from Acquire until Release. A pool of size one serializes every
// call through a single handle.
type Pool struct {
	handles chan Transport
	size    int
}

// NewPool builds size handles using factory.
func NewPool(size int, factory func(slot int) Transport) *Pool {
	if size <= 0 {
		size = 1
	}
	p := &Pool{handles: make(chan Transport, size), size: size}
	for i := 0; i < size; i++ {
		p.handles <- factory(i)
	}
	return p
}

// Acquire blocks until a handle is free or ctx is done.
func (p *Pool) Acquire(ctx context.Context) (Transport, error) {
	select {
	case t := <-p.handles:
		return t, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: no ledger handle available: %v", shared.ErrRemoteUnavailable, ctx.Err())
	}
}

// Release returns a handle to the pool.
func (p *Pool) Release(t Transport) {
	p.handles <- t
}

// Size reports the number of handles.
func (p *Pool) Size() int { return p.size }
