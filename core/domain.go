package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrInvalidIdentityKind  = errors.New("core: invalid identity kind")
	ErrInvalidHealthStatus  = errors.New("core: invalid health status")
	ErrInvalidEventType     = errors.New("core: invalid event type")
	ErrListingNotFound      = errors.New("core: listing not found")
	ErrWebhookNotFound      = errors.New("core: webhook not found")
	ErrCredentialNotFound   = errors.New("core: credential not found")
	ErrEditTokenMismatch    = errors.New("core: edit token is not bound to this listing")
	ErrListingHasNoProbeURL = errors.New("core: listing has no probe url")
)

type IdentityKind string

const (
	IdentityAdmin     IdentityKind = "admin"
	IdentityRegular   IdentityKind = "regular"
	IdentityEditToken IdentityKind = "edit_token"
	IdentityAnonymous IdentityKind = "anonymous"
)

// Identity is the closed result of credential resolution. KeyID is set for
// admin and regular identities; ListingID is set only for edit-token
// identities and names the single listing the token is bound to.
type Identity struct {
	Kind      IdentityKind
	KeyID     string
	KeyName   string
	ListingID string
	// RateLimit carries a per-credential budget override; zero means the
	// configured default for the identity kind applies.
	RateLimit int
}

func (i Identity) IsAdmin() bool {
	return i.Kind == IdentityAdmin
}

// CanEdit reports whether this identity may mutate the given listing.
// Admins edit anything; an edit token edits exactly its bound listing;
// regular keys edit listings they submitted (ownership is checked by the
// caller against the listing record).
func (i Identity) CanEdit(listingID string) bool {
	switch i.Kind {
	case IdentityAdmin:
		return true
	case IdentityEditToken:
		return strings.TrimSpace(listingID) != "" && i.ListingID == strings.TrimSpace(listingID)
	case IdentityRegular, IdentityAnonymous:
		return false
	default:
		return false
	}
}

// Bucket returns the rate-limit bucket key for this identity. Anonymous
// traffic shares a single bucket.
func (i Identity) Bucket() string {
	switch i.Kind {
	case IdentityAdmin, IdentityRegular:
		return "key:" + i.KeyID
	case IdentityEditToken:
		return "token:" + i.ListingID
	default:
		return "anonymous"
	}
}

func (k IdentityKind) Validate() error {
	switch k {
	case IdentityAdmin, IdentityRegular, IdentityEditToken, IdentityAnonymous:
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrInvalidIdentityKind, string(k))
	}
}

type CredentialKind string

const (
	CredentialAdmin   CredentialKind = "admin"
	CredentialRegular CredentialKind = "regular"
)

// Credential is an issued API key as persisted. The raw key is only ever
// shown at issuance; lookups go through KeyHash.
type Credential struct {
	ID        string
	Name      string
	KeyHash   string
	Kind      CredentialKind
	RateLimit int
	Revoked   bool
	CreatedAt time.Time
}

// Secrets carries the credentials presented on a request. EditToken is a
// dedicated slot, distinct from the generic API-key slot; ListingID names
// the listing the request targets (required for edit-token verification).
type Secrets struct {
	APIKey    string
	EditToken string
	ListingID string
}

type HealthStatus string

const (
	HealthStatusHealthy     HealthStatus = "healthy"
	HealthStatusUnhealthy   HealthStatus = "unhealthy"
	HealthStatusUnreachable HealthStatus = "unreachable"
)

func (s HealthStatus) Validate() error {
	switch s {
	case HealthStatusHealthy, HealthStatusUnhealthy, HealthStatusUnreachable:
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrInvalidHealthStatus, string(s))
	}
}

// HealthCheckResult is one probe outcome. Append-only; never mutated.
// HTTPCode is nil for unreachable probes.
type HealthCheckResult struct {
	ID         string
	ListingID  string
	Status     HealthStatus
	HTTPCode   *int
	Latency    time.Duration
	CheckedURL string
	Error      string
	CheckedAt  time.Time
}

// Event is an ephemeral notification; it exists only for the duration of a
// publish call and is never persisted.
type Event struct {
	Type      string
	Payload   map[string]any
	Timestamp time.Time
}

const (
	EventAppSubmitted    = "app.submitted"
	EventAppApproved     = "app.approved"
	EventAppRejected     = "app.rejected"
	EventAppDeprecated   = "app.deprecated"
	EventAppUndeprecated = "app.undeprecated"
	EventAppUpdated      = "app.updated"
	EventAppDeleted      = "app.deleted"
	EventReviewSubmitted = "review.submitted"
	EventHealthChecked   = "health.checked"
)

// KnownEventTypes lists every event type a webhook filter may subscribe to.
func KnownEventTypes() []string {
	return []string{
		EventAppSubmitted,
		EventAppApproved,
		EventAppRejected,
		EventAppDeprecated,
		EventAppUndeprecated,
		EventAppUpdated,
		EventAppDeleted,
		EventReviewSubmitted,
		EventHealthChecked,
	}
}

func ValidateEventType(eventType string) error {
	trimmed := strings.TrimSpace(eventType)
	for _, known := range KnownEventTypes() {
		if trimmed == known {
			return nil
		}
	}
	return fmt.Errorf("%w: %q", ErrInvalidEventType, eventType)
}

// Webhook is a registered external delivery target. Active flips to false
// exactly when FailureCount reaches the configured threshold and stays
// false until an explicit reactivation.
type Webhook struct {
	ID              string
	TargetURL       string
	Secret          string
	EventFilter     []string
	Active          bool
	FailureCount    int
	LastTriggeredAt *time.Time
	CreatedBy       string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Matches reports whether this webhook subscribes to the given event type.
// An empty filter means "all".
func (w Webhook) Matches(eventType string) bool {
	if len(w.EventFilter) == 0 {
		return true
	}
	trimmed := strings.TrimSpace(eventType)
	for _, filtered := range w.EventFilter {
		if strings.TrimSpace(filtered) == trimmed {
			return true
		}
	}
	return false
}

type ListingStatus string

const (
	ListingStatusPending    ListingStatus = "pending"
	ListingStatusApproved   ListingStatus = "approved"
	ListingStatusRejected   ListingStatus = "rejected"
	ListingStatusDeprecated ListingStatus = "deprecated"
)

// Listing is the projection of a directory entry that the backbone needs:
// probe targets, edit-token binding, cached health. The full listing schema
// belongs to the directory service, not to this module.
type Listing struct {
	ID               string
	Name             string
	Slug             string
	Status           ListingStatus
	APIURL           string
	HomepageURL      string
	EditTokenHash    string
	SubmittedByKeyID string
	RateExempt       bool
	LastHealthStatus HealthStatus
	LastCheckedAt    *time.Time
	UptimePct        *float64
}

// ProbeURL resolves the probe target: the API URL when present, otherwise
// the homepage URL. Empty when the listing has nothing to probe.
func (l Listing) ProbeURL() string {
	if url := strings.TrimSpace(l.APIURL); url != "" {
		return url
	}
	return strings.TrimSpace(l.HomepageURL)
}

// AdmissionDecision is the outcome of one rate-limit check. ResetAfter is
// the time remaining until the current window rolls over.
type AdmissionDecision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	ResetAfter time.Duration
}

// ScheduleConfig drives the background health scan. Zero interval disables
// the scheduler entirely.
type ScheduleConfig struct {
	Interval time.Duration
}

func (c ScheduleConfig) Enabled() bool {
	return c.Interval > 0
}

// ScheduleStatus is an operator-facing snapshot of the scheduler.
type ScheduleStatus struct {
	Enabled    bool
	Interval   time.Duration
	LastTickAt *time.Time
	LastScan   ScanSummary
}

// ScanSummary aggregates one scheduler tick.
type ScanSummary struct {
	Total       int
	Healthy     int
	Unhealthy   int
	Unreachable int
}

func (s *ScanSummary) Observe(status HealthStatus) {
	if s == nil {
		return
	}
	s.Total++
	switch status {
	case HealthStatusHealthy:
		s.Healthy++
	case HealthStatusUnhealthy:
		s.Unhealthy++
	case HealthStatusUnreachable:
		s.Unreachable++
	}
}

// HealthSummary is the fleet-wide view derived from cached listing health.
type HealthSummary struct {
	TotalApproved int
	Monitored     int
	Healthy       int
	Unhealthy     int
	Unreachable   int
	Issues        []Listing
}
