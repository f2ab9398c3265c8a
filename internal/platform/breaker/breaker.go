// Package breaker wraps sony/gobreaker for outbound service calls.
package breaker

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"

	"github.com/odyssey-erp/ledger/internal/accounting/shared"
)

// Settings configures a breaker.
type Settings struct {
	Name                string
	ConsecutiveFailures uint32
	OpenTimeout         time.Duration
	HalfOpenRequests    uint32
}

// Breaker trips on infrastructure failures only; validation rejections from
// the remote side count as successful calls.
type Breaker struct {
	cb *gobreaker.CircuitBreaker
}

// New constructs a breaker that logs state changes.
func New(s Settings, logger *slog.Logger) *Breaker {
	if s.ConsecutiveFailures == 0 {
		s.ConsecutiveFailures = 5
	}
	if s.OpenTimeout <= 0 {
		s.OpenTimeout = 30 * time.Second
	}
	if s.HalfOpenRequests == 0 {
		s.HalfOpenRequests = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	threshold := s.ConsecutiveFailures
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        s.Name,
		MaxRequests: s.HalfOpenRequests,
		Timeout:     s.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change",
				slog.String("breaker", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()))
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !errors.Is(err, shared.ErrInfrastructure)
		},
	})
	return &Breaker{cb: cb}
}

// State reports the breaker state name.
func (b *Breaker) State() string { return b.cb.State().String() }

// Do runs fn through the breaker. Open or saturated breakers fail fast with
// ErrRemoteUnavailable.
func Do[T any](b *Breaker, fn func() (T, error)) (T, error) {
	var zero T
	out, err := b.cb.Execute(func() (interface{}, error) {
		return fn()
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return zero, fmt.Errorf("%w: %s: %v", shared.ErrRemoteUnavailable, b.cb.Name(), err)
		}
		return zero, err
	}
	v, _ := out.(T)
	return v, nil
}
