package core

import (
	"context"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

// IdentityResolver classifies a request's presented secrets into exactly one
// identity. Resolution performs key-existence lookups only; it never writes.
type IdentityResolver interface {
	Resolve(ctx context.Context, secrets Secrets) (Identity, error)
}

// Admitter is the fixed-window admission check. Implementations must be safe
// for concurrent use and strictly ordered per bucket.
type Admitter interface {
	Admit(bucket string, limit int, window time.Duration) AdmissionDecision
}

// Publisher fans an event out to live subscribers and webhook targets.
// Publish must never block on subscriber behavior.
type Publisher interface {
	Publish(event Event)
}

// HealthProber performs a single outbound liveness probe. Probe failures are
// data, not errors: unreachable targets still yield a result.
type HealthProber interface {
	Check(ctx context.Context, probeURL string) HealthCheckResult
}

type APIKeyStore interface {
	FindByHash(ctx context.Context, keyHash string) (Credential, error)
	Create(ctx context.Context, cred Credential) (Credential, error)
	Revoke(ctx context.Context, id string) error
	List(ctx context.Context) ([]Credential, error)
}

type ListingStore interface {
	Get(ctx context.Context, idOrSlug string) (Listing, error)
	// ListEligibleForProbe returns approved listings with a usable probe URL.
	ListEligibleForProbe(ctx context.Context) ([]Listing, error)
	UpdateHealth(ctx context.Context, listingID string, status HealthStatus, checkedAt time.Time) error
	UpdateUptime(ctx context.Context, listingID string, uptimePct float64) error
	BindEditToken(ctx context.Context, listingID string, tokenHash string) error
	VerifyEditToken(ctx context.Context, listingID string, tokenHash string) (bool, error)
	IsRateExempt(ctx context.Context, listingID string) (bool, error)
}

type WebhookStore interface {
	Get(ctx context.Context, id string) (Webhook, error)
	List(ctx context.Context) ([]Webhook, error)
	// ListActive returns webhooks eligible for delivery (active and below
	// the failure threshold).
	ListActive(ctx context.Context) ([]Webhook, error)
	Create(ctx context.Context, webhook Webhook) (Webhook, error)
	Update(ctx context.Context, webhook Webhook) (Webhook, error)
	Delete(ctx context.Context, id string) error
	// RecordSuccess resets the failure counter without touching the active
	// flag. RecordFailure increments it by one and deactivates the webhook
	// when the counter reaches threshold.
	RecordSuccess(ctx context.Context, id string, at time.Time) error
	RecordFailure(ctx context.Context, id string, threshold int, at time.Time) (Webhook, error)
	// Reactivate resets the failure counter and sets active=true.
	Reactivate(ctx context.Context, id string) (Webhook, error)
}

type HealthResultStore interface {
	Append(ctx context.Context, result HealthCheckResult) error
	// RecentByListing returns up to limit results, most recent first.
	RecentByListing(ctx context.Context, listingID string, limit int) ([]HealthCheckResult, error)
	CountByListing(ctx context.Context, listingID string) (int, error)
}

// StoreProvider bundles one independently-serialized set of store handles.
// Interactive request handling, the scheduler, and webhook delivery each
// hold their own provider so a slow background batch cannot contend with
// request traffic.
type StoreProvider interface {
	APIKeyStore() APIKeyStore
	ListingStore() ListingStore
	WebhookStore() WebhookStore
	HealthResultStore() HealthResultStore
}

type RepositoryStoreFactory interface {
	BuildStores(persistenceClient any) (StoreProvider, error)
}

type Logger = glog.Logger

type LoggerProvider = glog.LoggerProvider

type FieldsLogger = glog.FieldsLogger

type MetricsRecorder interface {
	IncCounter(ctx context.Context, name string, value int64, tags map[string]string)
	ObserveHistogram(ctx context.Context, name string, value float64, tags map[string]string)
}

type JobExecutionMessage struct {
	JobID          string
	ScriptPath     string
	Parameters     map[string]any
	IdempotencyKey string
	DedupPolicy    string
}

type JobNackOptions struct {
	Delay      time.Duration
	Requeue    bool
	DeadLetter bool
	Reason     string
}

type JobEnqueuer interface {
	Enqueue(ctx context.Context, msg *JobExecutionMessage) error
}

type JobDelivery interface {
	Message() *JobExecutionMessage
	Ack(ctx context.Context) error
	Nack(ctx context.Context, opts JobNackOptions) error
}

type JobDequeuer interface {
	Dequeue(ctx context.Context) (JobDelivery, error)
}

type JobWorkerHook interface {
	OnStart(ctx context.Context, event JobWorkerEvent)
	OnSuccess(ctx context.Context, event JobWorkerEvent)
	OnFailure(ctx context.Context, event JobWorkerEvent)
	OnRetry(ctx context.Context, event JobWorkerEvent)
}

type JobWorkerEvent struct {
	Message   *JobExecutionMessage
	Attempt   int
	Delay     time.Duration
	Err       error
	StartedAt time.Time
	Duration  time.Duration
}
