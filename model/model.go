package model

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/hupe1980/crucible/logging"
)

// ErrNoResponse is returned by Mock when no scripted response matches.
var ErrNoResponse = errors.New("model: no scripted response")

// Model generates a completion for a single prompt.
type Model interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Func adapts an ordinary function to the Model interface.
type Func func(ctx context.Context, prompt string) (string, error)

// Generate calls f.
func (f Func) Generate(ctx context.Context, prompt string) (string, error) { return f(ctx, prompt) }

// WithTimeout bounds every call of m by d. A non-positive d returns m unchanged.
func WithTimeout(m Model, d time.Duration) Model {
	if d <= 0 {
		return m
	}

	return Func(func(ctx context.Context, prompt string) (string, error) {
		ctx, cancel := context.WithTimeout(ctx, d)
		defer cancel()

		type result struct {
			text string
			err  error
		}

		ch := make(chan result, 1)
		go func() {
			text, err := m.Generate(ctx, prompt)
			ch <- result{text, err}
		}()

		select {
		case r := <-ch:
			return r.text, r.err
		case <-ctx.Done():
			return "", fmt.Errorf("model call: %w", ctx.Err())
		}
	})
}

// WithLogging logs latency and failures of every call of m.
func WithLogging(m Model, provider string, logger logging.Logger) Model {
	if logger == nil {
		return m
	}

	return Func(func(ctx context.Context, prompt string) (string, error) {
		start := time.Now()
		text, err := m.Generate(ctx, prompt)

		logging.ModelCall(logger, provider, time.Since(start), err)

		return text, err
	})
}

// Mock is a scripted Model for tests. Responses are matched by substring
// against the prompt in registration order; the first match wins.
type Mock struct {
	mu       sync.Mutex
	rules    []rule
	fallback *rule
	calls    []string
}

type rule struct {
	match string
	text  string
	err   error
	delay time.Duration
}

// NewMock creates a Mock without any scripted responses.
func NewMock() *Mock { return &Mock{} }

// AddResponse answers prompts containing match with text.
func (m *Mock) AddResponse(match, text string) *Mock {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rules = append(m.rules, rule{match: match, text: text})
	return m
}

// AddError fails prompts containing match with err.
func (m *Mock) AddError(match string, err error) *Mock {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rules = append(m.rules, rule{match: match, err: err})
	return m
}

// AddDelayed answers prompts containing match with text after d, unless the
// context is cancelled first.
func (m *Mock) AddDelayed(match, text string, d time.Duration) *Mock {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rules = append(m.rules, rule{match: match, text: text, delay: d})
	return m
}

// SetDefault answers every unmatched prompt with text.
func (m *Mock) SetDefault(text string) *Mock {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fallback = &rule{text: text}
	return m
}

// Generate implements Model.
func (m *Mock) Generate(ctx context.Context, prompt string) (string, error) {
	m.mu.Lock()
	m.calls = append(m.calls, prompt)

	var picked *rule
	for i := range m.rules {
		if strings.Contains(prompt, m.rules[i].match) {
			picked = &m.rules[i]
			break
		}
	}
	if picked == nil {
		picked = m.fallback
	}
	m.mu.Unlock()

	if picked == nil {
		return "", ErrNoResponse
	}

	if picked.delay > 0 {
		select {
		case <-time.After(picked.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	if err := ctx.Err(); err != nil {
		return "", err
	}

	return picked.text, picked.err
}

// Calls returns every prompt received so far.
func (m *Mock) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}
