package ratelimit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestLimiter_Allow(t *testing.T) {
	ctx := context.Background()

	t.Run("admits up to quota then denies", func(t *testing.T) {
		l := NewLimiter(NewMemoryStore(), 3, time.Minute)

		for i := 1; i <= 3; i++ {
			d, err := l.Allow(ctx, "10.0.0.1")
			if err != nil {
				t.Fatalf("Allow() error = %v", err)
			}
			if !d.Allowed {
				t.Fatalf("request %d denied, want admit", i)
			}
			if d.Remaining != 3-i {
				t.Errorf("request %d remaining = %d, want %d", i, d.Remaining, 3-i)
			}
		}

		d, err := l.Allow(ctx, "10.0.0.1")
		if err != nil {
			t.Fatalf("Allow() error = %v", err)
		}
		if d.Allowed {
			t.Error("request over quota admitted, want deny")
		}
		if d.Remaining != 0 {
			t.Errorf("remaining = %d, want 0", d.Remaining)
		}
	})

	t.Run("identities are partitioned", func(t *testing.T) {
		l := NewLimiter(NewMemoryStore(), 1, time.Minute)

		if d, _ := l.Allow(ctx, "10.0.0.1"); !d.Allowed {
			t.Fatal("first client denied")
		}
		if d, _ := l.Allow(ctx, "10.0.0.2"); !d.Allowed {
			t.Error("second client denied, partitions must be independent")
		}
		if d, _ := l.Allow(ctx, "10.0.0.1"); d.Allowed {
			t.Error("first client admitted over quota")
		}
	})

	t.Run("window expiry resets the counter", func(t *testing.T) {
		l := NewLimiter(NewMemoryStore(), 1, 10*time.Millisecond)

		if d, _ := l.Allow(ctx, "10.0.0.1"); !d.Allowed {
			t.Fatal("first request denied")
		}
		if d, _ := l.Allow(ctx, "10.0.0.1"); d.Allowed {
			t.Fatal("second request admitted inside the window")
		}

		time.Sleep(15 * time.Millisecond)

		if d, _ := l.Allow(ctx, "10.0.0.1"); !d.Allowed {
			t.Error("request after window expiry denied, want admit")
		}
	})

	t.Run("store error is not an admit", func(t *testing.T) {
		l := NewLimiter(failingStore{}, 100, time.Minute)

		d, err := l.Allow(ctx, "10.0.0.1")
		if err == nil {
			t.Fatal("Allow() expected error from failing store")
		}
		if d.Allowed {
			t.Error("store failure produced an admit")
		}
	})
}

// Two concurrent requests against a fresh window must each count once.
func TestMemoryStore_ConcurrentIncrement(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	const n = 50
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			if _, _, err := s.Increment(ctx, "k", time.Minute); err != nil {
				t.Errorf("Increment() error = %v", err)
			}
		}()
	}
	wg.Wait()

	count, _, err := s.Increment(ctx, "k", time.Minute)
	if err != nil {
		t.Fatalf("Increment() error = %v", err)
	}
	if count != n+1 {
		t.Errorf("count = %d, want %d (lost or duplicated updates)", count, n+1)
	}
}

func TestMemoryStore_DeadlineIsFixed(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	_, ttl1, err := s.Increment(ctx, "k", time.Minute)
	if err != nil {
		t.Fatalf("Increment() error = %v", err)
	}

	time.Sleep(5 * time.Millisecond)

	_, ttl2, err := s.Increment(ctx, "k", time.Minute)
	if err != nil {
		t.Fatalf("Increment() error = %v", err)
	}

	// Later increments must not push the deadline out.
	if ttl2 >= ttl1 {
		t.Errorf("ttl after second increment = %v, want less than %v", ttl2, ttl1)
	}
}

type failingStore struct{}

func (failingStore) Increment(context.Context, string, time.Duration) (int64, time.Duration, error) {
	return 0, 0, errors.New("store unavailable")
}
