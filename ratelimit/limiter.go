package ratelimit

import (
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-registry/core"
)

// LimitExceededError reports a rejected admission. ResetAfter is the time
// left until the offending bucket's window rolls over.
type LimitExceededError struct {
	Bucket     string
	Limit      int
	ResetAfter time.Duration
}

func (e LimitExceededError) Error() string {
	return fmt.Sprintf(
		"ratelimit: bucket %q exceeded %d requests, resets in %s",
		strings.TrimSpace(e.Bucket),
		e.Limit,
		e.ResetAfter,
	)
}

func (e LimitExceededError) ToServiceError() *goerrors.Error {
	metadata := map[string]any{
		"bucket": strings.TrimSpace(e.Bucket),
		"limit":  e.Limit,
	}
	if e.ResetAfter > 0 {
		metadata["reset_after_seconds"] = int(e.ResetAfter / time.Second)
	}
	return goerrors.New(e.Error(), goerrors.CategoryRateLimit).
		WithCode(http.StatusTooManyRequests).
		WithTextCode(core.RegistryErrorRateLimited).
		WithMetadata(metadata)
}

type window struct {
	startedAt time.Time
	count     int
}

// Limiter is a fixed-window counter keyed by bucket. The counter increments
// before the comparison, so the first rejected request still consumes a
// slot; counters reset only when a window expires, never on success.
type Limiter struct {
	mu      sync.Mutex
	windows map[string]window

	// Now is injectable for tests; defaults to time.Now.
	Now func() time.Time
}

func NewLimiter() *Limiter {
	return &Limiter{
		windows: map[string]window{},
		Now:     time.Now,
	}
}

var _ core.Admitter = (*Limiter)(nil)

func (l *Limiter) Admit(bucket string, limit int, windowSize time.Duration) core.AdmissionDecision {
	if l == nil {
		return core.AdmissionDecision{Allowed: true, Limit: limit, Remaining: limit, ResetAfter: windowSize}
	}
	bucket = strings.TrimSpace(bucket)
	if limit <= 0 || windowSize <= 0 {
		return core.AdmissionDecision{Allowed: true, Limit: limit, Remaining: limit, ResetAfter: windowSize}
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	state, ok := l.windows[bucket]
	if !ok || now.Sub(state.startedAt) >= windowSize {
		state = window{startedAt: now}
	}
	state.count++
	l.windows[bucket] = state

	remaining := limit - state.count
	if remaining < 0 {
		remaining = 0
	}
	return core.AdmissionDecision{
		Allowed:    state.count <= limit,
		Limit:      limit,
		Remaining:  remaining,
		ResetAfter: windowSize - now.Sub(state.startedAt),
	}
}

// Prune drops buckets whose window expired before the cutoff. Callers run it
// periodically to keep the map from accumulating one-off anonymous buckets.
func (l *Limiter) Prune(windowSize time.Duration) int {
	if l == nil {
		return 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	removed := 0
	for bucket, state := range l.windows {
		if now.Sub(state.startedAt) >= windowSize {
			delete(l.windows, bucket)
			removed++
		}
	}
	return removed
}

func (l *Limiter) now() time.Time {
	if l.Now != nil {
		return l.Now()
	}
	return time.Now()
}
