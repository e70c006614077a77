package memory

import (
	"context"
	"sync"
	"testing"

	"github.com/postforge/postforge/pkg/quota"
)

func TestCheckAndIncrement(t *testing.T) {
	storage := New()
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		res, err := storage.CheckAndIncrement(ctx, &quota.CheckRequest{Key: "session:abc", Limit: 3})
		if err != nil {
			t.Fatalf("CheckAndIncrement failed: %v", err)
		}
		if !res.Allowed {
			t.Fatalf("Increment %d should be allowed", i)
		}
		if res.Count != i {
			t.Errorf("Expected count %d, got %d", i, res.Count)
		}
	}

	// At the limit: denied, count unchanged
	res, err := storage.CheckAndIncrement(ctx, &quota.CheckRequest{Key: "session:abc", Limit: 3})
	if err != nil {
		t.Fatalf("CheckAndIncrement failed: %v", err)
	}
	if res.Allowed {
		t.Error("Expected denial at limit")
	}
	if res.Count != 3 {
		t.Errorf("Expected count 3, got %d", res.Count)
	}
}

func TestCheckAndIncrement_Unlimited(t *testing.T) {
	storage := New()
	ctx := context.Background()

	for i := 1; i <= 20; i++ {
		res, err := storage.CheckAndIncrement(ctx, &quota.CheckRequest{Key: "user:u1", Limit: quota.Unlimited})
		if err != nil {
			t.Fatalf("CheckAndIncrement failed: %v", err)
		}
		if !res.Allowed {
			t.Fatalf("Unlimited increment %d should be allowed", i)
		}
		if res.Count != i {
			t.Errorf("Expected count %d, got %d", i, res.Count)
		}
	}
}

func TestGetCount(t *testing.T) {
	storage := New()
	ctx := context.Background()

	count, err := storage.GetCount(ctx, "unknown")
	if err != nil {
		t.Fatalf("GetCount failed: %v", err)
	}
	if count != 0 {
		t.Errorf("Expected 0 for unknown key, got %d", count)
	}

	if _, err := storage.CheckAndIncrement(ctx, &quota.CheckRequest{Key: "k", Limit: 5}); err != nil {
		t.Fatalf("CheckAndIncrement failed: %v", err)
	}
	count, err = storage.GetCount(ctx, "k")
	if err != nil {
		t.Fatalf("GetCount failed: %v", err)
	}
	if count != 1 {
		t.Errorf("Expected count 1, got %d", count)
	}
}

func TestRefund(t *testing.T) {
	storage := New()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := storage.CheckAndIncrement(ctx, &quota.CheckRequest{Key: "k", Limit: 10}); err != nil {
			t.Fatalf("CheckAndIncrement failed: %v", err)
		}
	}

	if err := storage.Refund(ctx, "k", 2); err != nil {
		t.Fatalf("Refund failed: %v", err)
	}
	count, _ := storage.GetCount(ctx, "k")
	if count != 1 {
		t.Errorf("Expected count 1 after refund, got %d", count)
	}

	// Over-refund clamps at zero
	if err := storage.Refund(ctx, "k", 100); err != nil {
		t.Fatalf("Refund failed: %v", err)
	}
	count, _ = storage.GetCount(ctx, "k")
	if count != 0 {
		t.Errorf("Expected count clamped at 0, got %d", count)
	}

	// Invalid amounts
	if err := storage.Refund(ctx, "k", 0); err != quota.ErrInvalidAmount {
		t.Errorf("Expected ErrInvalidAmount for 0, got %v", err)
	}
	if err := storage.Refund(ctx, "k", -1); err != quota.ErrInvalidAmount {
		t.Errorf("Expected ErrInvalidAmount for -1, got %v", err)
	}
}

func TestClear(t *testing.T) {
	storage := New()
	ctx := context.Background()

	if _, err := storage.CheckAndIncrement(ctx, &quota.CheckRequest{Key: "k", Limit: 10}); err != nil {
		t.Fatalf("CheckAndIncrement failed: %v", err)
	}
	storage.Clear()

	count, _ := storage.GetCount(ctx, "k")
	if count != 0 {
		t.Errorf("Expected 0 after Clear, got %d", count)
	}
}

func TestCheckAndIncrement_Concurrent(t *testing.T) {
	storage := New()
	ctx := context.Background()

	// limit slots, many more contenders: exactly limit admissions
	const limit = 5
	const goroutines = 100

	var wg sync.WaitGroup
	results := make(chan bool, goroutines)

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := storage.CheckAndIncrement(ctx, &quota.CheckRequest{Key: "k", Limit: limit})
			if err != nil {
				t.Errorf("CheckAndIncrement failed: %v", err)
				return
			}
			results <- res.Allowed
		}()
	}
	wg.Wait()
	close(results)

	admitted := 0
	for ok := range results {
		if ok {
			admitted++
		}
	}
	if admitted != limit {
		t.Errorf("Expected exactly %d admissions, got %d", limit, admitted)
	}

	count, _ := storage.GetCount(ctx, "k")
	if count != limit {
		t.Errorf("Expected final count %d, got %d", limit, count)
	}
}
