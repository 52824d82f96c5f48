package ratelimit

import (
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/goliatone/go-registry/core"
)

func newFrozenLimiter(start time.Time) (*Limiter, *time.Time) {
	now := start
	limiter := NewLimiter()
	limiter.Now = func() time.Time { return now }
	return limiter, &now
}

func TestAdmitAllowsUpToLimitThenDenies(t *testing.T) {
	limiter, _ := newFrozenLimiter(time.Unix(1_000_000, 0))

	for i := 0; i < 5; i++ {
		decision := limiter.Admit("key:k1", 5, time.Minute)
		if !decision.Allowed {
			t.Fatalf("request %d: expected admission", i+1)
		}
		if decision.Remaining != 5-(i+1) {
			t.Fatalf("request %d: expected remaining %d, got %d", i+1, 5-(i+1), decision.Remaining)
		}
	}

	denied := limiter.Admit("key:k1", 5, time.Minute)
	if denied.Allowed {
		t.Fatalf("expected sixth request to be denied")
	}
	if denied.Remaining != 0 {
		t.Fatalf("expected remaining 0 on denial, got %d", denied.Remaining)
	}
}

func TestAdmitCountsOffendingRequests(t *testing.T) {
	limiter, now := newFrozenLimiter(time.Unix(1_000_000, 0))

	for i := 0; i < 8; i++ {
		limiter.Admit("key:k1", 5, time.Minute)
	}

	// The denied requests kept incrementing, so even after a partial wait
	// inside the same window the bucket stays saturated.
	*now = now.Add(30 * time.Second)
	decision := limiter.Admit("key:k1", 5, time.Minute)
	if decision.Allowed {
		t.Fatalf("expected bucket to stay saturated within the window")
	}
}

func TestAdmitResetsAfterWindowRollover(t *testing.T) {
	start := time.Unix(1_000_000, 0)
	limiter, now := newFrozenLimiter(start)

	for i := 0; i < 6; i++ {
		limiter.Admit("key:k1", 5, time.Minute)
	}
	if limiter.Admit("key:k1", 5, time.Minute).Allowed {
		t.Fatalf("expected saturation before rollover")
	}

	*now = start.Add(time.Minute)
	decision := limiter.Admit("key:k1", 5, time.Minute)
	if !decision.Allowed {
		t.Fatalf("expected a fresh window after rollover")
	}
	if decision.Remaining != 4 {
		t.Fatalf("expected remaining 4 in the fresh window, got %d", decision.Remaining)
	}
}

func TestAdmitResetAfterCountsDownWithinWindow(t *testing.T) {
	start := time.Unix(1_000_000, 0)
	limiter, now := newFrozenLimiter(start)

	first := limiter.Admit("key:k1", 5, time.Minute)
	if first.ResetAfter != time.Minute {
		t.Fatalf("expected full window at start, got %v", first.ResetAfter)
	}

	*now = start.Add(45 * time.Second)
	second := limiter.Admit("key:k1", 5, time.Minute)
	if second.ResetAfter != 15*time.Second {
		t.Fatalf("expected 15s left, got %v", second.ResetAfter)
	}
}

func TestAdmitIsolatesBuckets(t *testing.T) {
	limiter, _ := newFrozenLimiter(time.Unix(1_000_000, 0))

	for i := 0; i < 6; i++ {
		limiter.Admit("key:k1", 5, time.Minute)
	}
	decision := limiter.Admit("key:k2", 5, time.Minute)
	if !decision.Allowed || decision.Remaining != 4 {
		t.Fatalf("expected an untouched bucket for k2, got %+v", decision)
	}
	if !limiter.Admit("anonymous", 5, time.Minute).Allowed {
		t.Fatalf("expected the anonymous bucket to be independent")
	}
}

func TestAdmitConcurrentCountsExactly(t *testing.T) {
	limiter := NewLimiter()

	const workers = 50
	var wg sync.WaitGroup
	allowed := make(chan bool, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			allowed <- limiter.Admit("key:k1", 30, time.Minute).Allowed
		}()
	}
	wg.Wait()
	close(allowed)

	admitted := 0
	for ok := range allowed {
		if ok {
			admitted++
		}
	}
	if admitted != 30 {
		t.Fatalf("expected exactly 30 admissions, got %d", admitted)
	}
}

func TestPruneDropsExpiredBuckets(t *testing.T) {
	start := time.Unix(1_000_000, 0)
	limiter, now := newFrozenLimiter(start)

	limiter.Admit("key:k1", 5, time.Minute)
	limiter.Admit("key:k2", 5, time.Minute)

	*now = start.Add(30 * time.Second)
	limiter.Admit("key:k2", 5, time.Minute)
	if removed := limiter.Prune(time.Minute); removed != 0 {
		t.Fatalf("expected nothing pruned mid-window, got %d", removed)
	}

	*now = start.Add(time.Minute)
	if removed := limiter.Prune(time.Minute); removed != 1 {
		t.Fatalf("expected the k1 bucket pruned, got %d", removed)
	}
}

func TestLimitExceededErrorEnvelope(t *testing.T) {
	err := LimitExceededError{Bucket: "key:k1", Limit: 100, ResetAfter: 42 * time.Second}
	svcErr := err.ToServiceError()
	if svcErr.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", svcErr.Code)
	}
	if svcErr.TextCode != core.RegistryErrorRateLimited {
		t.Fatalf("unexpected text code %q", svcErr.TextCode)
	}
}
