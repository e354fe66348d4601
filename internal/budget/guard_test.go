package budget

import (
	"sync"
	"testing"
)

func TestGuardCallCap(t *testing.T) {
	g := New(2, 0, 0)

	for i := 0; i < 2; i++ {
		if err := g.Allow(); err != nil {
			t.Fatalf("call %d should be allowed: %v", i, err)
		}
	}
	if err := g.Allow(); err == nil {
		t.Error("third call should exceed the cap")
	}

	calls, tokens := g.Remaining()
	if calls != 0 {
		t.Errorf("expected 0 remaining calls, got %d", calls)
	}
	if tokens != -1 {
		t.Errorf("unlimited tokens should report -1, got %d", tokens)
	}
}

func TestGuardTokenCap(t *testing.T) {
	g := New(0, 100, 0)

	if err := g.Allow(); err != nil {
		t.Fatalf("Allow failed: %v", err)
	}
	g.Record(100)

	if err := g.Allow(); err == nil {
		t.Error("call after token cap should fail")
	}
}

func TestGuardReset(t *testing.T) {
	g := New(1, 50, 0)
	if err := g.Allow(); err != nil {
		t.Fatalf("Allow failed: %v", err)
	}
	g.Record(50)
	if err := g.Allow(); err == nil {
		t.Fatal("expected exhausted budget")
	}

	g.Reset()
	if err := g.Allow(); err != nil {
		t.Errorf("Allow after Reset should succeed: %v", err)
	}
	calls, tokens := g.Used()
	if calls != 1 || tokens != 0 {
		t.Errorf("expected 1 call and 0 tokens after reset, got %d/%d", calls, tokens)
	}
}

func TestGuardUnlimited(t *testing.T) {
	g := New(0, 0, 0)
	for i := 0; i < 1000; i++ {
		if err := g.Allow(); err != nil {
			t.Fatalf("unlimited guard rejected call %d: %v", i, err)
		}
	}
}

func TestGuardRateLimit(t *testing.T) {
	// Burst of callsPerMinute is allowed immediately, then throttled
	g := New(0, 0, 5)
	allowed := 0
	for i := 0; i < 10; i++ {
		if err := g.Allow(); err == nil {
			allowed++
		}
	}
	if allowed != 5 {
		t.Errorf("expected 5 allowed calls in burst, got %d", allowed)
	}
}

func TestGuardConcurrent(t *testing.T) {
	g := New(50, 0, 0)

	var wg sync.WaitGroup
	var mu sync.Mutex
	allowed := 0
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := g.Allow(); err == nil {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
			g.Record(10)
		}()
	}
	wg.Wait()

	if allowed != 50 {
		t.Errorf("expected exactly 50 allowed calls, got %d", allowed)
	}
	_, tokens := g.Used()
	if tokens != 1000 {
		t.Errorf("expected 1000 recorded tokens, got %d", tokens)
	}
}
