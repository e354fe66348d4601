// Package budget caps language model spend for a pipeline run.
package budget

import (
	"fmt"
	"sync"

	"golang.org/x/time/rate"
)

// Guard tracks call and token consumption against hard caps and throttles
// call frequency. Once a cap is hit every subsequent Allow fails until Reset,
// so an expensive backlog cannot drain the budget in one cycle.
type Guard struct {
	mu      sync.Mutex
	calls   int
	tokens  int
	limiter *rate.Limiter

	maxCalls  int
	maxTokens int
}

// New creates a guard. Zero maxCalls or maxTokens means that cap is
// unlimited. callsPerMinute <= 0 disables throttling.
func New(maxCalls, maxTokens, callsPerMinute int) *Guard {
	var limiter *rate.Limiter
	if callsPerMinute > 0 {
		limiter = rate.NewLimiter(rate.Limit(float64(callsPerMinute)/60.0), callsPerMinute)
	}
	return &Guard{
		limiter:   limiter,
		maxCalls:  maxCalls,
		maxTokens: maxTokens,
	}
}

// Allow reports whether another call may proceed. It fails fast rather than
// waiting on the rate limiter, so a throttled cycle moves on to cheaper work.
func (g *Guard) Allow() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.maxCalls > 0 && g.calls >= g.maxCalls {
		return fmt.Errorf("budget exhausted: %d of %d calls used", g.calls, g.maxCalls)
	}
	if g.maxTokens > 0 && g.tokens >= g.maxTokens {
		return fmt.Errorf("budget exhausted: %d of %d tokens used", g.tokens, g.maxTokens)
	}
	if g.limiter != nil && !g.limiter.Allow() {
		return fmt.Errorf("rate limit reached")
	}

	g.calls++
	return nil
}

// Record adds token usage after a call completes.
func (g *Guard) Record(tokens int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.tokens += tokens
}

// Remaining returns how many calls and tokens are left. Unlimited caps
// report -1.
func (g *Guard) Remaining() (calls, tokens int) {
	g.mu.Lock()
	defer g.mu.Unlock()

	calls, tokens = -1, -1
	if g.maxCalls > 0 {
		calls = g.maxCalls - g.calls
		if calls < 0 {
			calls = 0
		}
	}
	if g.maxTokens > 0 {
		tokens = g.maxTokens - g.tokens
		if tokens < 0 {
			tokens = 0
		}
	}
	return calls, tokens
}

// Used returns consumption so far.
func (g *Guard) Used() (calls, tokens int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls, g.tokens
}

// Reset clears counters for a new cycle. The rate limiter is left alone
// since it tracks wall-clock frequency, not per-cycle spend.
func (g *Guard) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = 0
	g.tokens = 0
}
