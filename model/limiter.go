package model

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrBudgetExceeded is returned once a Limited model has used up its calls.
var ErrBudgetExceeded = errors.New("model: exceeded max model calls")

// Limiter enforces a maximum number of allowed model calls.
type Limiter struct {
	max   int
	count int
	mu    sync.Mutex
}

// NewLimiter creates a new limiter with a max number of calls.
// If max == 0, unlimited calls are allowed.
func NewLimiter(max int) *Limiter {
	return &Limiter{max: max}
}

// Increment increases the call counter and returns an error if the limit is exceeded.
func (l *Limiter) Increment() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.count++
	if l.max > 0 && l.count > l.max {
		return fmt.Errorf("%w: %d", ErrBudgetExceeded, l.max)
	}

	return nil
}

// Count returns the current number of calls made.
func (l *Limiter) Count() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.count
}

// Remaining returns how many calls are left before hitting the limit.
func (l *Limiter) Remaining() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.max == 0 {
		return -1 // unlimited
	}

	return l.max - l.count
}

// Limited wraps m so that calls beyond the limiter's budget fail without
// reaching the provider.
func Limited(m Model, l *Limiter) Model {
	if l == nil {
		return m
	}

	return Func(func(ctx context.Context, prompt string) (string, error) {
		if err := l.Increment(); err != nil {
			return "", err
		}
		return m.Generate(ctx, prompt)
	})
}
