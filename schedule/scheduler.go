package schedule

import (
	"context"
	"fmt"
	"sync"
	"time"

	glog "github.com/goliatone/go-logger/glog"
	"github.com/goliatone/go-registry/core"
	"github.com/goliatone/go-registry/health"
)

const defaultUptimeWindow = 100

type Config struct {
	// Interval between scans. Zero disables the scheduler entirely.
	Interval time.Duration
	// Stores is the scheduler's own handle, independent of the one
	// serving interactive requests.
	Stores       core.StoreProvider
	Prober       core.HealthProber
	Publisher    core.Publisher
	UptimeWindow int
	Logger       core.Logger
	Now          func() time.Time
}

// Scheduler drives periodic health scans: every interval it probes each
// eligible listing sequentially, persists the result, refreshes uptime,
// and publishes one health.checked event per listing tagged as
// scheduler-originated.
type Scheduler struct {
	interval     time.Duration
	stores       core.StoreProvider
	prober       core.HealthProber
	publisher    core.Publisher
	uptimeWindow int
	logger       core.Logger
	now          func() time.Time

	mu         sync.Mutex
	lastTickAt *time.Time
	lastScan   core.ScanSummary
}

func NewScheduler(cfg Config) *Scheduler {
	uptimeWindow := cfg.UptimeWindow
	if uptimeWindow <= 0 {
		uptimeWindow = defaultUptimeWindow
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Scheduler{
		interval:     cfg.Interval,
		stores:       cfg.Stores,
		prober:       cfg.Prober,
		publisher:    cfg.Publisher,
		uptimeWindow: uptimeWindow,
		logger:       glog.Ensure(cfg.Logger),
		now:          now,
	}
}

func (s *Scheduler) Enabled() bool {
	return s != nil && s.interval > 0
}

// Run loops until the context ends. The first scan fires one full interval
// after startup; shutdown is observed between ticks, never mid-probe.
func (s *Scheduler) Run(ctx context.Context) error {
	if s == nil {
		return nil
	}
	if !s.Enabled() {
		s.logger.Info("health scan scheduler disabled, interval is zero")
		return nil
	}
	if s.stores == nil || s.prober == nil {
		return fmt.Errorf("schedule: stores and prober are required")
	}

	s.logger.Info("health scan scheduler started", "interval", s.interval.String())
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("health scan scheduler stopped")
			return ctx.Err()
		case <-ticker.C:
			summary, err := s.Scan(ctx)
			if err != nil {
				// Tick failures are survivable; the next tick retries.
				s.logger.Error("health scan tick failed", "error", err)
				continue
			}
			s.logger.Info("health scan tick finished",
				"total", summary.Total,
				"healthy", summary.Healthy,
				"unhealthy", summary.Unhealthy,
				"unreachable", summary.Unreachable,
			)
		}
	}
}

// Scan runs one full pass over all eligible listings. Per-listing probe
// and bookkeeping failures are logged and skipped; only the initial
// enumeration failing aborts the pass.
func (s *Scheduler) Scan(ctx context.Context) (core.ScanSummary, error) {
	tickAt := s.now().UTC()
	listings, err := s.stores.ListingStore().ListEligibleForProbe(ctx)
	if err != nil {
		return core.ScanSummary{}, fmt.Errorf("schedule: enumerate listings: %w", err)
	}

	var summary core.ScanSummary
	for _, listing := range listings {
		probeURL := listing.ProbeURL()
		if probeURL == "" {
			continue
		}
		result := s.prober.Check(ctx, probeURL)
		result.ListingID = listing.ID
		if result.CheckedAt.IsZero() {
			result.CheckedAt = s.now().UTC()
		}
		summary.Observe(result.Status)

		if err := s.record(ctx, listing, result); err != nil {
			s.logger.Error("health result bookkeeping failed",
				"listing_id", listing.ID,
				"error", err,
			)
			continue
		}
		s.publish(listing, result)
	}

	s.mu.Lock()
	s.lastTickAt = &tickAt
	s.lastScan = summary
	s.mu.Unlock()
	return summary, nil
}

func (s *Scheduler) record(ctx context.Context, listing core.Listing, result core.HealthCheckResult) error {
	if err := s.stores.HealthResultStore().Append(ctx, result); err != nil {
		return err
	}
	if err := s.stores.ListingStore().UpdateHealth(ctx, listing.ID, result.Status, result.CheckedAt); err != nil {
		return err
	}
	recent, err := s.stores.HealthResultStore().RecentByListing(ctx, listing.ID, s.uptimeWindow)
	if err != nil {
		return err
	}
	if len(recent) == 0 {
		return nil
	}
	return s.stores.ListingStore().UpdateUptime(ctx, listing.ID, health.UptimePercent(recent))
}

func (s *Scheduler) publish(listing core.Listing, result core.HealthCheckResult) {
	if s.publisher == nil {
		return
	}
	payload := map[string]any{
		"app_id":    listing.ID,
		"status":    string(result.Status),
		"url":       result.CheckedURL,
		"scheduled": true,
	}
	if result.HTTPCode != nil {
		payload["http_code"] = *result.HTTPCode
	}
	s.publisher.Publish(core.Event{
		Type:      core.EventHealthChecked,
		Payload:   payload,
		Timestamp: result.CheckedAt,
	})
}

// Status is an operator-facing snapshot.
func (s *Scheduler) Status() core.ScheduleStatus {
	if s == nil {
		return core.ScheduleStatus{}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	status := core.ScheduleStatus{
		Enabled:  s.interval > 0,
		Interval: s.interval,
		LastScan: s.lastScan,
	}
	if s.lastTickAt != nil {
		tickAt := *s.lastTickAt
		status.LastTickAt = &tickAt
	}
	return status
}
