package schedule

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/goliatone/go-registry/core"
)

type scanStores struct {
	mu       sync.Mutex
	listings []core.Listing
	listErr  error
	results  map[string][]core.HealthCheckResult
	health   map[string]core.HealthStatus
	uptime   map[string]float64
	appends  int
}

func newScanStores(listings ...core.Listing) *scanStores {
	return &scanStores{
		listings: listings,
		results:  map[string][]core.HealthCheckResult{},
		health:   map[string]core.HealthStatus{},
		uptime:   map[string]float64{},
	}
}

func (s *scanStores) APIKeyStore() core.APIKeyStore             { return nil }
func (s *scanStores) ListingStore() core.ListingStore           { return s }
func (s *scanStores) WebhookStore() core.WebhookStore           { return nil }
func (s *scanStores) HealthResultStore() core.HealthResultStore { return s }

func (s *scanStores) Get(context.Context, string) (core.Listing, error) {
	return core.Listing{}, core.ErrListingNotFound
}

func (s *scanStores) ListEligibleForProbe(context.Context) ([]core.Listing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listErr != nil {
		return nil, s.listErr
	}
	out := make([]core.Listing, len(s.listings))
	copy(out, s.listings)
	return out, nil
}

func (s *scanStores) UpdateHealth(_ context.Context, listingID string, status core.HealthStatus, _ time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.health[listingID] = status
	return nil
}

func (s *scanStores) UpdateUptime(_ context.Context, listingID string, uptimePct float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.uptime[listingID] = uptimePct
	return nil
}

func (s *scanStores) BindEditToken(context.Context, string, string) error { return nil }

func (s *scanStores) VerifyEditToken(context.Context, string, string) (bool, error) {
	return false, nil
}

func (s *scanStores) IsRateExempt(context.Context, string) (bool, error) { return false, nil }

func (s *scanStores) Append(_ context.Context, result core.HealthCheckResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.appends++
	s.results[result.ListingID] = append([]core.HealthCheckResult{result}, s.results[result.ListingID]...)
	return nil
}

func (s *scanStores) RecentByListing(_ context.Context, listingID string, limit int) ([]core.HealthCheckResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	results := s.results[listingID]
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	out := make([]core.HealthCheckResult, len(results))
	copy(out, results)
	return out, nil
}

func (s *scanStores) CountByListing(_ context.Context, listingID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.results[listingID]), nil
}

type scriptedProber struct {
	mu       sync.Mutex
	statuses map[string]core.HealthStatus
	probes   int
}

func (p *scriptedProber) Check(_ context.Context, probeURL string) core.HealthCheckResult {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.probes++
	status, ok := p.statuses[probeURL]
	if !ok {
		status = core.HealthStatusHealthy
	}
	result := core.HealthCheckResult{
		Status:     status,
		CheckedURL: probeURL,
		CheckedAt:  time.Now().UTC(),
	}
	if status == core.HealthStatusUnhealthy {
		code := 500
		result.HTTPCode = &code
	}
	return result
}

func (p *scriptedProber) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.probes
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []core.Event
}

func (p *recordingPublisher) Publish(event core.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
}

func (p *recordingPublisher) all() []core.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]core.Event, len(p.events))
	copy(out, p.events)
	return out
}

func TestScanProbesEligibleListingsAndPublishes(t *testing.T) {
	stores := newScanStores(
		core.Listing{ID: "l1", Status: core.ListingStatusApproved, APIURL: "https://a.example.com"},
		core.Listing{ID: "l2", Status: core.ListingStatusApproved, HomepageURL: "https://b.example.com"},
	)
	prober := &scriptedProber{statuses: map[string]core.HealthStatus{
		"https://b.example.com": core.HealthStatusUnhealthy,
	}}
	publisher := &recordingPublisher{}
	scheduler := NewScheduler(Config{
		Interval:  time.Minute,
		Stores:    stores,
		Prober:    prober,
		Publisher: publisher,
	})

	summary, err := scheduler.Scan(context.Background())
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if summary.Total != 2 || summary.Healthy != 1 || summary.Unhealthy != 1 {
		t.Fatalf("unexpected summary %+v", summary)
	}
	if stores.health["l1"] != core.HealthStatusHealthy {
		t.Fatalf("expected l1 healthy, got %q", stores.health["l1"])
	}
	if stores.health["l2"] != core.HealthStatusUnhealthy {
		t.Fatalf("expected l2 unhealthy, got %q", stores.health["l2"])
	}
	if stores.uptime["l1"] != 100 || stores.uptime["l2"] != 0 {
		t.Fatalf("unexpected uptimes %v", stores.uptime)
	}

	events := publisher.all()
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	for _, event := range events {
		if event.Type != core.EventHealthChecked {
			t.Fatalf("unexpected event type %q", event.Type)
		}
		if event.Payload["scheduled"] != true {
			t.Fatalf("expected scheduler-originated tag, got %v", event.Payload)
		}
	}

	status := scheduler.Status()
	if status.LastTickAt == nil {
		t.Fatalf("expected last tick to be recorded")
	}
	if status.LastScan.Total != 2 {
		t.Fatalf("expected scan summary in status, got %+v", status.LastScan)
	}
}

func TestScanSurvivesEnumerationFailureOnNextTick(t *testing.T) {
	stores := newScanStores(core.Listing{ID: "l1", Status: core.ListingStatusApproved, APIURL: "https://a.example.com"})
	stores.listErr = fmt.Errorf("schedule: database locked")
	prober := &scriptedProber{}
	scheduler := NewScheduler(Config{Interval: time.Minute, Stores: stores, Prober: prober})

	if _, err := scheduler.Scan(context.Background()); err == nil {
		t.Fatalf("expected enumeration failure to surface")
	}
	if prober.count() != 0 {
		t.Fatalf("expected no probes after enumeration failure")
	}

	stores.mu.Lock()
	stores.listErr = nil
	stores.mu.Unlock()
	if _, err := scheduler.Scan(context.Background()); err != nil {
		t.Fatalf("expected recovery on the next pass: %v", err)
	}
	if prober.count() != 1 {
		t.Fatalf("expected one probe after recovery, got %d", prober.count())
	}
}

func TestRunDisabledNeverProbes(t *testing.T) {
	stores := newScanStores(core.Listing{ID: "l1", Status: core.ListingStatusApproved, APIURL: "https://a.example.com"})
	prober := &scriptedProber{}
	scheduler := NewScheduler(Config{Interval: 0, Stores: stores, Prober: prober})

	if scheduler.Enabled() {
		t.Fatalf("expected zero interval to disable the scheduler")
	}
	if err := scheduler.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if prober.count() != 0 {
		t.Fatalf("expected no probes while disabled, got %d", prober.count())
	}
}

func TestRunWaitsOneIntervalBeforeFirstTick(t *testing.T) {
	stores := newScanStores(core.Listing{ID: "l1", Status: core.ListingStatusApproved, APIURL: "https://a.example.com"})
	prober := &scriptedProber{}
	scheduler := NewScheduler(Config{Interval: 100 * time.Millisecond, Stores: stores, Prober: prober})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		scheduler.Run(ctx)
		close(done)
	}()

	time.Sleep(40 * time.Millisecond)
	if prober.count() != 0 {
		t.Fatalf("expected warm-up delay before the first probe")
	}

	time.Sleep(200 * time.Millisecond)
	if prober.count() == 0 {
		t.Fatalf("expected probes after the first interval elapsed")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("scheduler did not stop on cancellation")
	}
}

func TestRunStopsBetweenTicks(t *testing.T) {
	stores := newScanStores()
	prober := &scriptedProber{}
	scheduler := NewScheduler(Config{Interval: time.Hour, Stores: stores, Prober: prober})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- scheduler.Run(ctx)
	}()

	cancel()
	select {
	case err := <-done:
		if err != context.Canceled {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("scheduler did not observe cancellation")
	}
	if prober.count() != 0 {
		t.Fatalf("expected no mid-probe interruption scenario, got %d probes", prober.count())
	}
}
