package rate

import (
	"context"
	"testing"
	"time"
)

func TestMemoryLimiterWindow(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLimiter(3, time.Minute)
	now := time.Date(2025, 6, 1, 12, 0, 10, 0, time.UTC)
	l.now = func() time.Time { return now }

	for i := 1; i <= 3; i++ {
		res, err := l.Allow(ctx, "user-42")
		if err != nil {
			t.Fatalf("allow %d: %v", i, err)
		}
		if !res.Allowed {
			t.Fatalf("hit %d should be allowed", i)
		}
		if want := int64(3 - i); res.Remaining != want {
			t.Errorf("hit %d remaining = %d, want %d", i, res.Remaining, want)
		}
	}

	res, err := l.Allow(ctx, "user-42")
	if err != nil {
		t.Fatalf("allow over budget: %v", err)
	}
	if res.Allowed {
		t.Fatal("fourth hit should be denied")
	}
	if res.Remaining != 0 {
		t.Errorf("remaining = %d, want 0", res.Remaining)
	}
	if res.RetryAfter != 50*time.Second {
		t.Errorf("retry after = %v, want 50s", res.RetryAfter)
	}

	// Other keys have their own budget.
	other, err := l.Allow(ctx, "user-99")
	if err != nil {
		t.Fatalf("allow other: %v", err)
	}
	if !other.Allowed {
		t.Fatal("different key must not share the budget")
	}
}

func TestMemoryLimiterWindowRollover(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLimiter(1, time.Minute)
	now := time.Date(2025, 6, 1, 12, 0, 30, 0, time.UTC)
	l.now = func() time.Time { return now }

	if res, _ := l.Allow(ctx, "k"); !res.Allowed {
		t.Fatal("first hit should pass")
	}
	if res, _ := l.Allow(ctx, "k"); res.Allowed {
		t.Fatal("second hit should be denied")
	}

	now = now.Add(time.Minute)
	res, err := l.Allow(ctx, "k")
	if err != nil {
		t.Fatalf("allow after rollover: %v", err)
	}
	if !res.Allowed {
		t.Fatal("new window should reset the counter")
	}
	if res.CurrentHits != 1 {
		t.Errorf("current hits = %d, want 1", res.CurrentHits)
	}
}

func TestMemoryLimiterRetryAfterFloor(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLimiter(1, time.Minute)
	// One tick before the window rolls over.
	now := time.Date(2025, 6, 1, 12, 0, 59, int(900*time.Millisecond), time.UTC)
	l.now = func() time.Time { return now }

	l.Allow(ctx, "k")
	res, _ := l.Allow(ctx, "k")
	if res.Allowed {
		t.Fatal("expected denial")
	}
	if res.RetryAfter < time.Second {
		t.Fatalf("retry after = %v, want at least 1s", res.RetryAfter)
	}
}
