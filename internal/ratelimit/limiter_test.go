package ratelimit

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"
)

func newTestLimiter(capacity int, window, initialBackoff time.Duration) *Limiter {
	return New(Config{
		Capacity:          capacity,
		Window:            window,
		InitialBackoff:    initialBackoff,
		MaxBackoff:        2 * time.Second,
		BackoffMultiplier: 2.0,
		Logger:            zap.NewNop(),
	})
}

func TestAcquireWithinBurst(t *testing.T) {
	l := newTestLimiter(5, time.Second, 50*time.Millisecond)
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 5; i++ {
		if err := l.Acquire(ctx, "alpha"); err != nil {
			t.Fatalf("Acquire() error: %v", err)
		}
	}

	if elapsed := time.Since(start); elapsed > 100*time.Millisecond {
		t.Errorf("burst acquires took %s, expected near-instant", elapsed)
	}

	stats := l.Stats("alpha")
	if stats.TotalRequests != 5 {
		t.Errorf("TotalRequests = %d, want 5", stats.TotalRequests)
	}
}

func TestAcquireBlocksDuringBackoff(t *testing.T) {
	l := newTestLimiter(10, time.Second, 120*time.Millisecond)
	ctx := context.Background()

	l.OnThrottled("alpha")

	start := time.Now()
	if err := l.Acquire(ctx, "alpha"); err != nil {
		t.Fatalf("Acquire() error: %v", err)
	}

	// No token may be issued before the backoff window elapses.
	if elapsed := time.Since(start); elapsed < 110*time.Millisecond {
		t.Errorf("Acquire() returned after %s, want >= backoff 120ms", elapsed)
	}
}

func TestBackoffGrowthAndCap(t *testing.T) {
	l := New(Config{
		Capacity:          10,
		Window:            time.Second,
		InitialBackoff:    100 * time.Millisecond,
		MaxBackoff:        300 * time.Millisecond,
		BackoffMultiplier: 2.0,
		Logger:            zap.NewNop(),
	})

	l.OnThrottled("alpha")
	if got := l.Stats("alpha").CurrentBackoff; got != 200*time.Millisecond {
		t.Errorf("after 1 throttle CurrentBackoff = %s, want 200ms", got)
	}

	l.OnThrottled("alpha")
	if got := l.Stats("alpha").CurrentBackoff; got != 300*time.Millisecond {
		t.Errorf("after 2 throttles CurrentBackoff = %s, want cap 300ms", got)
	}

	l.OnThrottled("alpha")
	if got := l.Stats("alpha").CurrentBackoff; got != 300*time.Millisecond {
		t.Errorf("after 3 throttles CurrentBackoff = %s, want cap 300ms", got)
	}

	if got := l.Stats("alpha").ThrottleErrors; got != 3 {
		t.Errorf("ThrottleErrors = %d, want 3", got)
	}
}

func TestOnSuccessResetsBackoff(t *testing.T) {
	l := newTestLimiter(10, time.Second, 100*time.Millisecond)

	l.OnThrottled("alpha")
	l.OnThrottled("alpha")
	l.OnSuccess("alpha")

	stats := l.Stats("alpha")
	if stats.CurrentBackoff != 100*time.Millisecond {
		t.Errorf("CurrentBackoff = %s, want initial 100ms", stats.CurrentBackoff)
	}
	if stats.Throttled {
		t.Error("venue should not be throttled after OnSuccess")
	}

	start := time.Now()
	if err := l.Acquire(context.Background(), "alpha"); err != nil {
		t.Fatalf("Acquire() error: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 50*time.Millisecond {
		t.Errorf("Acquire() after reset took %s, expected near-instant", elapsed)
	}
}

func TestAcquireContextCancelledDuringBackoff(t *testing.T) {
	l := newTestLimiter(10, time.Second, time.Second)
	l.OnThrottled("alpha")

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := l.Acquire(ctx, "alpha")
	if err == nil {
		t.Fatal("Acquire() should fail when ctx expires inside backoff")
	}
}

func TestTokenRefillPacing(t *testing.T) {
	// 2 tokens per 200ms window: after the burst is spent, the third token
	// arrives roughly one refill interval later.
	l := newTestLimiter(2, 200*time.Millisecond, 50*time.Millisecond)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := l.Acquire(ctx, "alpha"); err != nil {
			t.Fatalf("Acquire() error: %v", err)
		}
	}

	start := time.Now()
	if err := l.Acquire(ctx, "alpha"); err != nil {
		t.Fatalf("Acquire() error: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 50*time.Millisecond {
		t.Errorf("third Acquire() returned after %s, want a refill wait", elapsed)
	}
}

func TestBackoffWinsOverAvailableToken(t *testing.T) {
	// Plenty of tokens, but a throttle window is open: the later deadline
	// (the backoff) applies.
	l := newTestLimiter(100, time.Second, 150*time.Millisecond)
	l.OnThrottled("alpha")

	start := time.Now()
	if err := l.Acquire(context.Background(), "alpha"); err != nil {
		t.Fatalf("Acquire() error: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 140*time.Millisecond {
		t.Errorf("Acquire() returned after %s, want >= 150ms backoff", elapsed)
	}
}

func TestVenuesAreIndependent(t *testing.T) {
	l := newTestLimiter(10, time.Second, 500*time.Millisecond)
	l.OnThrottled("alpha")

	start := time.Now()
	if err := l.Acquire(context.Background(), "beta"); err != nil {
		t.Fatalf("Acquire(beta) error: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 50*time.Millisecond {
		t.Errorf("beta Acquire() took %s, alpha's backoff must not apply", elapsed)
	}
}

func TestSetCapacityOverride(t *testing.T) {
	l := newTestLimiter(1, time.Second, 50*time.Millisecond)
	l.SetCapacity("alpha", 4)

	ctx := context.Background()
	start := time.Now()
	for i := 0; i < 4; i++ {
		if err := l.Acquire(ctx, "alpha"); err != nil {
			t.Fatalf("Acquire() error: %v", err)
		}
	}
	if elapsed := time.Since(start); elapsed > 100*time.Millisecond {
		t.Errorf("4 acquires with capacity 4 took %s", elapsed)
	}
}
