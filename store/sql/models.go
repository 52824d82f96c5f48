package sqlstore

import (
	"time"

	"github.com/goliatone/go-registry/core"
	"github.com/uptrace/bun"
)

type apiKeyRecord struct {
	bun.BaseModel `bun:"table:registry_api_keys,alias:rak"`

	ID        string    `bun:"id,pk"`
	Name      string    `bun:"name,notnull"`
	KeyHash   string    `bun:"key_hash,notnull"`
	Kind      string    `bun:"kind,notnull"`
	RateLimit int       `bun:"rate_limit,notnull"`
	Revoked   bool      `bun:"revoked,notnull"`
	CreatedAt time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
}

func (r *apiKeyRecord) toDomain() core.Credential {
	if r == nil {
		return core.Credential{}
	}
	return core.Credential{
		ID:        r.ID,
		Name:      r.Name,
		KeyHash:   r.KeyHash,
		Kind:      core.CredentialKind(r.Kind),
		RateLimit: r.RateLimit,
		Revoked:   r.Revoked,
		CreatedAt: r.CreatedAt,
	}
}

type listingRecord struct {
	bun.BaseModel `bun:"table:registry_listings,alias:rl"`

	ID               string     `bun:"id,pk"`
	Name             string     `bun:"name,notnull"`
	Slug             string     `bun:"slug,notnull"`
	Status           string     `bun:"status,notnull"`
	APIURL           string     `bun:"api_url"`
	HomepageURL      string     `bun:"homepage_url"`
	EditTokenHash    string     `bun:"edit_token_hash"`
	SubmittedByKeyID string     `bun:"submitted_by_key_id"`
	RateExempt       bool       `bun:"rate_exempt,notnull"`
	LastHealthStatus string     `bun:"last_health_status"`
	LastCheckedAt    *time.Time `bun:"last_checked_at,nullzero"`
	UptimePct        *float64   `bun:"uptime_pct"`
	CreatedAt        time.Time  `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt        time.Time  `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
	DeletedAt        *time.Time `bun:"deleted_at,soft_delete"`
}

func (r *listingRecord) toDomain() core.Listing {
	if r == nil {
		return core.Listing{}
	}
	listing := core.Listing{
		ID:               r.ID,
		Name:             r.Name,
		Slug:             r.Slug,
		Status:           core.ListingStatus(r.Status),
		APIURL:           r.APIURL,
		HomepageURL:      r.HomepageURL,
		EditTokenHash:    r.EditTokenHash,
		SubmittedByKeyID: r.SubmittedByKeyID,
		RateExempt:       r.RateExempt,
		LastHealthStatus: core.HealthStatus(r.LastHealthStatus),
	}
	if r.LastCheckedAt != nil {
		checkedAt := r.LastCheckedAt.UTC()
		listing.LastCheckedAt = &checkedAt
	}
	if r.UptimePct != nil {
		uptime := *r.UptimePct
		listing.UptimePct = &uptime
	}
	return listing
}

type webhookRecord struct {
	bun.BaseModel `bun:"table:registry_webhooks,alias:rw"`

	ID              string     `bun:"id,pk"`
	TargetURL       string     `bun:"target_url,notnull"`
	Secret          string     `bun:"secret,notnull"`
	EventFilter     []string   `bun:"event_filter,type:jsonb,notnull"`
	Active          bool       `bun:"active,notnull"`
	FailureCount    int        `bun:"failure_count,notnull"`
	LastTriggeredAt *time.Time `bun:"last_triggered_at,nullzero"`
	CreatedBy       string     `bun:"created_by"`
	CreatedAt       time.Time  `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt       time.Time  `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

func newWebhookRecord(webhook core.Webhook, now time.Time) *webhookRecord {
	record := &webhookRecord{
		ID:           webhook.ID,
		TargetURL:    webhook.TargetURL,
		Secret:       webhook.Secret,
		EventFilter:  append([]string{}, webhook.EventFilter...),
		Active:       webhook.Active,
		FailureCount: webhook.FailureCount,
		CreatedBy:    webhook.CreatedBy,
		CreatedAt:    webhook.CreatedAt,
		UpdatedAt:    webhook.UpdatedAt,
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	if record.UpdatedAt.IsZero() {
		record.UpdatedAt = now
	}
	if webhook.LastTriggeredAt != nil {
		triggeredAt := webhook.LastTriggeredAt.UTC()
		record.LastTriggeredAt = &triggeredAt
	}
	return record
}

func (r *webhookRecord) toDomain() core.Webhook {
	if r == nil {
		return core.Webhook{}
	}
	webhook := core.Webhook{
		ID:           r.ID,
		TargetURL:    r.TargetURL,
		Secret:       r.Secret,
		EventFilter:  append([]string{}, r.EventFilter...),
		Active:       r.Active,
		FailureCount: r.FailureCount,
		CreatedBy:    r.CreatedBy,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}
	if r.LastTriggeredAt != nil {
		triggeredAt := r.LastTriggeredAt.UTC()
		webhook.LastTriggeredAt = &triggeredAt
	}
	return webhook
}

type healthCheckRecord struct {
	bun.BaseModel `bun:"table:registry_health_checks,alias:rhc"`

	ID         string    `bun:"id,pk"`
	ListingID  string    `bun:"listing_id,notnull"`
	Status     string    `bun:"status,notnull"`
	HTTPCode   *int      `bun:"http_code"`
	LatencyMS  int64     `bun:"latency_ms,notnull"`
	CheckedURL string    `bun:"checked_url"`
	Error      string    `bun:"error"`
	CheckedAt  time.Time `bun:"checked_at,nullzero,notnull,default:current_timestamp"`
}

func newHealthCheckRecord(result core.HealthCheckResult) *healthCheckRecord {
	record := &healthCheckRecord{
		ID:         result.ID,
		ListingID:  result.ListingID,
		Status:     string(result.Status),
		LatencyMS:  result.Latency.Milliseconds(),
		CheckedURL: result.CheckedURL,
		Error:      result.Error,
		CheckedAt:  result.CheckedAt,
	}
	if result.HTTPCode != nil {
		code := *result.HTTPCode
		record.HTTPCode = &code
	}
	return record
}

func (r *healthCheckRecord) toDomain() core.HealthCheckResult {
	if r == nil {
		return core.HealthCheckResult{}
	}
	result := core.HealthCheckResult{
		ID:         r.ID,
		ListingID:  r.ListingID,
		Status:     core.HealthStatus(r.Status),
		Latency:    time.Duration(r.LatencyMS) * time.Millisecond,
		CheckedURL: r.CheckedURL,
		Error:      r.Error,
		CheckedAt:  r.CheckedAt,
	}
	if r.HTTPCode != nil {
		code := *r.HTTPCode
		result.HTTPCode = &code
	}
	return result
}
