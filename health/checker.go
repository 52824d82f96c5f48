package health

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/goliatone/go-registry/core"
)

const (
	defaultProbeTimeout = 10 * time.Second
	defaultMaxRedirects = 5
)

type Config struct {
	Timeout      time.Duration
	MaxRedirects int
	// HTTPClient overrides the built probe client; redirect and timeout
	// settings are the caller's responsibility when set.
	HTTPClient *http.Client
	Now        func() time.Time
}

// Checker performs one outbound liveness probe and classifies the result.
// Probe failures are data, not errors: every call yields a result.
type Checker struct {
	client *http.Client
	now    func() time.Time
}

func NewChecker(cfg Config) *Checker {
	client := cfg.HTTPClient
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultProbeTimeout
		}
		maxRedirects := cfg.MaxRedirects
		if maxRedirects <= 0 {
			maxRedirects = defaultMaxRedirects
		}
		client = &http.Client{
			Timeout: timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= maxRedirects {
					return fmt.Errorf("health: stopped after %d redirects", maxRedirects)
				}
				return nil
			},
		}
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Checker{client: client, now: now}
}

var _ core.HealthProber = (*Checker)(nil)

// Check probes one URL. 2xx classifies as healthy, any other HTTP status
// as unhealthy with the code recorded, and transport failures (timeout,
// connection refused, DNS) as unreachable with no code.
func (c *Checker) Check(ctx context.Context, probeURL string) core.HealthCheckResult {
	if ctx == nil {
		ctx = context.Background()
	}
	startedAt := c.now()
	result := core.HealthCheckResult{
		CheckedURL: probeURL,
		CheckedAt:  startedAt.UTC(),
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, probeURL, nil)
	if err != nil {
		result.Status = core.HealthStatusUnreachable
		result.Error = err.Error()
		result.Latency = c.now().Sub(startedAt)
		return result
	}
	req.Header.Set("User-Agent", "registry-health-checker/1.0")

	res, err := c.client.Do(req)
	result.Latency = c.now().Sub(startedAt)
	if err != nil {
		result.Status = core.HealthStatusUnreachable
		result.Error = err.Error()
		return result
	}
	defer res.Body.Close()

	code := res.StatusCode
	result.HTTPCode = &code
	if code >= http.StatusOK && code < http.StatusMultipleChoices {
		result.Status = core.HealthStatusHealthy
		return result
	}
	result.Status = core.HealthStatusUnhealthy
	result.Error = fmt.Sprintf("health: endpoint returned status %d", code)
	return result
}

// UptimePercent computes healthy-share over the given results, which are
// expected to already be capped to the rolling window, newest first.
func UptimePercent(results []core.HealthCheckResult) float64 {
	if len(results) == 0 {
		return 0
	}
	healthy := 0
	for _, result := range results {
		if result.Status == core.HealthStatusHealthy {
			healthy++
		}
	}
	return float64(healthy) / float64(len(results)) * 100
}
