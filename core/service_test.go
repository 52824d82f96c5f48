package core

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"
)

type memoryStores struct {
	mu       sync.Mutex
	creds    map[string]Credential
	listings map[string]Listing
	webhooks map[string]Webhook
	results  map[string][]HealthCheckResult
	nextID   int
}

func newMemoryStores() *memoryStores {
	return &memoryStores{
		creds:    map[string]Credential{},
		listings: map[string]Listing{},
		webhooks: map[string]Webhook{},
		results:  map[string][]HealthCheckResult{},
	}
}

func (m *memoryStores) APIKeyStore() APIKeyStore             { return m }
func (m *memoryStores) ListingStore() ListingStore           { return m }
func (m *memoryStores) WebhookStore() WebhookStore           { return webhookStoreAdapter{m} }
func (m *memoryStores) HealthResultStore() HealthResultStore { return m }

func (m *memoryStores) id() string {
	m.nextID++
	return fmt.Sprintf("id-%d", m.nextID)
}

func (m *memoryStores) FindByHash(_ context.Context, keyHash string) (Credential, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, cred := range m.creds {
		if cred.KeyHash == keyHash {
			return cred, nil
		}
	}
	return Credential{}, ErrCredentialNotFound
}

func (m *memoryStores) Create(_ context.Context, cred Credential) (Credential, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cred.ID = m.id()
	m.creds[cred.ID] = cred
	return cred, nil
}

func (m *memoryStores) Revoke(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cred, ok := m.creds[id]
	if !ok {
		return ErrCredentialNotFound
	}
	cred.Revoked = true
	m.creds[id] = cred
	return nil
}

func (m *memoryStores) List(_ context.Context) ([]Credential, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Credential, 0, len(m.creds))
	for _, cred := range m.creds {
		out = append(out, cred)
	}
	return out, nil
}

func (m *memoryStores) Get(_ context.Context, idOrSlug string) (Listing, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if listing, ok := m.listings[idOrSlug]; ok {
		return listing, nil
	}
	for _, listing := range m.listings {
		if listing.Slug == idOrSlug {
			return listing, nil
		}
	}
	return Listing{}, ErrListingNotFound
}

func (m *memoryStores) ListEligibleForProbe(_ context.Context) ([]Listing, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []Listing{}
	for _, listing := range m.listings {
		if listing.Status == ListingStatusApproved && listing.ProbeURL() != "" {
			out = append(out, listing)
		}
	}
	return out, nil
}

func (m *memoryStores) UpdateHealth(_ context.Context, listingID string, status HealthStatus, checkedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	listing, ok := m.listings[listingID]
	if !ok {
		return ErrListingNotFound
	}
	listing.LastHealthStatus = status
	listing.LastCheckedAt = &checkedAt
	m.listings[listingID] = listing
	return nil
}

func (m *memoryStores) UpdateUptime(_ context.Context, listingID string, uptimePct float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	listing, ok := m.listings[listingID]
	if !ok {
		return ErrListingNotFound
	}
	listing.UptimePct = &uptimePct
	m.listings[listingID] = listing
	return nil
}

func (m *memoryStores) BindEditToken(_ context.Context, listingID string, tokenHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	listing, ok := m.listings[listingID]
	if !ok {
		return ErrListingNotFound
	}
	listing.EditTokenHash = tokenHash
	m.listings[listingID] = listing
	return nil
}

func (m *memoryStores) VerifyEditToken(_ context.Context, listingID string, tokenHash string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	listing, ok := m.listings[listingID]
	if !ok {
		return false, ErrListingNotFound
	}
	return listing.EditTokenHash != "" && listing.EditTokenHash == tokenHash, nil
}

func (m *memoryStores) IsRateExempt(_ context.Context, listingID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	listing, ok := m.listings[listingID]
	if !ok {
		return false, ErrListingNotFound
	}
	return listing.RateExempt, nil
}

func (m *memoryStores) GetWebhook(_ context.Context, id string) (Webhook, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	webhook, ok := m.webhooks[id]
	if !ok {
		return Webhook{}, ErrWebhookNotFound
	}
	return webhook, nil
}

func (m *memoryStores) ListWebhooks(_ context.Context) ([]Webhook, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Webhook, 0, len(m.webhooks))
	for _, webhook := range m.webhooks {
		out = append(out, webhook)
	}
	return out, nil
}

func (m *memoryStores) ListActive(_ context.Context) ([]Webhook, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []Webhook{}
	for _, webhook := range m.webhooks {
		if webhook.Active {
			out = append(out, webhook)
		}
	}
	return out, nil
}

func (m *memoryStores) CreateWebhook(_ context.Context, webhook Webhook) (Webhook, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	webhook.ID = m.id()
	m.webhooks[webhook.ID] = webhook
	return webhook, nil
}

func (m *memoryStores) Update(_ context.Context, webhook Webhook) (Webhook, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.webhooks[webhook.ID]; !ok {
		return Webhook{}, ErrWebhookNotFound
	}
	m.webhooks[webhook.ID] = webhook
	return webhook, nil
}

func (m *memoryStores) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.webhooks[id]; !ok {
		return ErrWebhookNotFound
	}
	delete(m.webhooks, id)
	return nil
}

func (m *memoryStores) RecordSuccess(_ context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	webhook, ok := m.webhooks[id]
	if !ok {
		return ErrWebhookNotFound
	}
	webhook.FailureCount = 0
	webhook.LastTriggeredAt = &at
	m.webhooks[id] = webhook
	return nil
}

func (m *memoryStores) RecordFailure(_ context.Context, id string, threshold int, at time.Time) (Webhook, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	webhook, ok := m.webhooks[id]
	if !ok {
		return Webhook{}, ErrWebhookNotFound
	}
	webhook.FailureCount++
	webhook.LastTriggeredAt = &at
	if webhook.FailureCount >= threshold {
		webhook.Active = false
	}
	m.webhooks[id] = webhook
	return webhook, nil
}

func (m *memoryStores) Reactivate(_ context.Context, id string) (Webhook, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	webhook, ok := m.webhooks[id]
	if !ok {
		return Webhook{}, ErrWebhookNotFound
	}
	webhook.FailureCount = 0
	webhook.Active = true
	m.webhooks[id] = webhook
	return webhook, nil
}

func (m *memoryStores) Append(_ context.Context, result HealthCheckResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	result.ID = m.id()
	m.results[result.ListingID] = append([]HealthCheckResult{result}, m.results[result.ListingID]...)
	return nil
}

func (m *memoryStores) RecentByListing(_ context.Context, listingID string, limit int) ([]HealthCheckResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	results := m.results[listingID]
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	out := make([]HealthCheckResult, len(results))
	copy(out, results)
	return out, nil
}

func (m *memoryStores) CountByListing(_ context.Context, listingID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.results[listingID]), nil
}

type stubAdmitter struct {
	lastBucket string
	lastLimit  int
	decision   AdmissionDecision
}

func (a *stubAdmitter) Admit(bucket string, limit int, window time.Duration) AdmissionDecision {
	a.lastBucket = bucket
	a.lastLimit = limit
	decision := a.decision
	decision.Limit = limit
	return decision
}

type stubPublisher struct {
	mu     sync.Mutex
	events []Event
}

func (p *stubPublisher) Publish(event Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
}

type stubProber struct {
	result HealthCheckResult
}

func (p *stubProber) Check(_ context.Context, probeURL string) HealthCheckResult {
	result := p.result
	result.CheckedURL = probeURL
	return result
}

func newTestService(t *testing.T, stores *memoryStores, options ...Option) *Service {
	t.Helper()
	base := []Option{WithStores(webhookStoreAdapter{stores})}
	svc, err := NewService(DefaultConfig(), append(base, options...)...)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc
}

// webhookStoreAdapter maps the memory store's renamed webhook methods onto
// the WebhookStore contract so one fake can back all four stores.
type webhookStoreAdapter struct {
	*memoryStores
}

func (a webhookStoreAdapter) WebhookStore() WebhookStore { return a }

func (a webhookStoreAdapter) Get(ctx context.Context, id string) (Webhook, error) {
	return a.memoryStores.GetWebhook(ctx, id)
}

func (a webhookStoreAdapter) List(ctx context.Context) ([]Webhook, error) {
	return a.memoryStores.ListWebhooks(ctx)
}

func (a webhookStoreAdapter) Create(ctx context.Context, webhook Webhook) (Webhook, error) {
	return a.memoryStores.CreateWebhook(ctx, webhook)
}

func TestServiceAdmitUsesIdentityBucketAndLimit(t *testing.T) {
	stores := newMemoryStores()
	admitter := &stubAdmitter{decision: AdmissionDecision{Allowed: true, Remaining: 99}}
	svc := newTestService(t, stores, WithAdmitter(admitter))

	decision, err := svc.Admit(context.Background(), Identity{Kind: IdentityRegular, KeyID: "k1"})
	if err != nil {
		t.Fatalf("Admit: %v", err)
	}
	if !decision.Allowed {
		t.Fatalf("expected admission")
	}
	if admitter.lastBucket != "key:k1" {
		t.Fatalf("expected bucket key:k1, got %q", admitter.lastBucket)
	}
	if admitter.lastLimit != DefaultConfig().RateLimit.DefaultLimit {
		t.Fatalf("expected default limit, got %d", admitter.lastLimit)
	}
}

func TestServiceAdmitBypassesExemptListings(t *testing.T) {
	stores := newMemoryStores()
	stores.listings["l1"] = Listing{ID: "l1", Status: ListingStatusApproved, RateExempt: true}
	admitter := &stubAdmitter{decision: AdmissionDecision{Allowed: false}}
	svc := newTestService(t, stores, WithAdmitter(admitter))

	decision, err := svc.Admit(context.Background(), Identity{Kind: IdentityEditToken, ListingID: "l1"})
	if err != nil {
		t.Fatalf("Admit: %v", err)
	}
	if !decision.Allowed {
		t.Fatalf("expected exempt listing to bypass the counter")
	}
	if admitter.lastBucket != "" {
		t.Fatalf("expected admitter to be skipped, saw bucket %q", admitter.lastBucket)
	}
}

func TestServicePublishValidatesEventType(t *testing.T) {
	stores := newMemoryStores()
	publisher := &stubPublisher{}
	svc := newTestService(t, stores, WithPublisher(publisher))

	if err := svc.Publish(context.Background(), "app.exploded", nil); err == nil {
		t.Fatalf("expected unknown event type to fail")
	}
	if err := svc.Publish(context.Background(), EventAppSubmitted, map[string]any{"app_id": "l1"}); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if len(publisher.events) != 1 {
		t.Fatalf("expected one published event, got %d", len(publisher.events))
	}
	if publisher.events[0].Type != EventAppSubmitted {
		t.Fatalf("unexpected event type %q", publisher.events[0].Type)
	}
	if publisher.events[0].Timestamp.IsZero() {
		t.Fatalf("expected a timestamp on the event")
	}
}

func TestServiceProbeAndRecordUpdatesHealthAndUptime(t *testing.T) {
	stores := newMemoryStores()
	stores.listings["l1"] = Listing{
		ID:     "l1",
		Status: ListingStatusApproved,
		APIURL: "https://api.example.com/health",
	}
	publisher := &stubPublisher{}
	code := 200
	prober := &stubProber{result: HealthCheckResult{
		Status:   HealthStatusHealthy,
		HTTPCode: &code,
		Latency:  12 * time.Millisecond,
	}}
	svc := newTestService(t, stores, WithPublisher(publisher), WithHealthProber(prober))

	result, err := svc.ProbeAndRecord(context.Background(), "l1")
	if err != nil {
		t.Fatalf("ProbeAndRecord: %v", err)
	}
	if result.Status != HealthStatusHealthy {
		t.Fatalf("expected healthy result, got %q", result.Status)
	}
	if result.CheckedURL != "https://api.example.com/health" {
		t.Fatalf("expected probe against the api url, got %q", result.CheckedURL)
	}

	listing := stores.listings["l1"]
	if listing.LastHealthStatus != HealthStatusHealthy {
		t.Fatalf("expected cached health to update, got %q", listing.LastHealthStatus)
	}
	if listing.UptimePct == nil || *listing.UptimePct != 100 {
		t.Fatalf("expected 100%% uptime after one healthy probe, got %v", listing.UptimePct)
	}
	if count, _ := stores.CountByListing(context.Background(), "l1"); count != 1 {
		t.Fatalf("expected one stored result, got %d", count)
	}

	if len(publisher.events) != 1 || publisher.events[0].Type != EventHealthChecked {
		t.Fatalf("expected a health.checked event, got %+v", publisher.events)
	}
}

func TestServiceProbeAndRecordRejectsUnprobeableListing(t *testing.T) {
	stores := newMemoryStores()
	stores.listings["l1"] = Listing{ID: "l1", Status: ListingStatusApproved}
	svc := newTestService(t, stores, WithHealthProber(&stubProber{}))

	if _, err := svc.ProbeAndRecord(context.Background(), "l1"); err == nil {
		t.Fatalf("expected error for listing without a probe url")
	}
}

func TestServiceIssueAndRevokeKey(t *testing.T) {
	stores := newMemoryStores()
	svc := newTestService(t, stores)

	cred, rawKey, err := svc.IssueKey(context.Background(), "ci pipeline", CredentialRegular, 0)
	if err != nil {
		t.Fatalf("IssueKey: %v", err)
	}
	if cred.ID == "" {
		t.Fatalf("expected a stored credential id")
	}
	if cred.KeyHash != HashSecret(rawKey) {
		t.Fatalf("expected stored hash to match the raw key")
	}
	if cred.KeyHash == rawKey {
		t.Fatalf("raw key must never be stored")
	}

	if err := svc.RevokeKey(context.Background(), cred.ID); err != nil {
		t.Fatalf("RevokeKey: %v", err)
	}
	if !stores.creds[cred.ID].Revoked {
		t.Fatalf("expected credential to be revoked")
	}

	if _, _, err := svc.IssueKey(context.Background(), "  ", CredentialRegular, 0); err == nil {
		t.Fatalf("expected empty name to fail")
	}
	if _, _, err := svc.IssueKey(context.Background(), "x", CredentialKind("super"), 0); err == nil {
		t.Fatalf("expected invalid kind to fail")
	}
}

func TestServiceMintEditTokenBindsOneListing(t *testing.T) {
	stores := newMemoryStores()
	stores.listings["l1"] = Listing{ID: "l1", Status: ListingStatusApproved}
	svc := newTestService(t, stores)

	rawToken, err := svc.MintEditToken(context.Background(), "l1")
	if err != nil {
		t.Fatalf("MintEditToken: %v", err)
	}
	ok, err := stores.VerifyEditToken(context.Background(), "l1", HashSecret(rawToken))
	if err != nil || !ok {
		t.Fatalf("expected minted token to verify, ok=%v err=%v", ok, err)
	}

	replacement, err := svc.MintEditToken(context.Background(), "l1")
	if err != nil {
		t.Fatalf("MintEditToken replacement: %v", err)
	}
	ok, _ = stores.VerifyEditToken(context.Background(), "l1", HashSecret(rawToken))
	if ok {
		t.Fatalf("expected the old token binding to be replaced")
	}
	ok, _ = stores.VerifyEditToken(context.Background(), "l1", HashSecret(replacement))
	if !ok {
		t.Fatalf("expected the new token to verify")
	}

	if _, err := svc.MintEditToken(context.Background(), "missing"); err == nil {
		t.Fatalf("expected unknown listing to fail")
	}
}

func TestServiceHealthSummary(t *testing.T) {
	now := time.Now().UTC()
	stores := newMemoryStores()
	stores.listings["l1"] = Listing{ID: "l1", Status: ListingStatusApproved, APIURL: "https://a.example.com", LastHealthStatus: HealthStatusHealthy, LastCheckedAt: &now}
	stores.listings["l2"] = Listing{ID: "l2", Status: ListingStatusApproved, APIURL: "https://b.example.com", LastHealthStatus: HealthStatusUnreachable, LastCheckedAt: &now}
	stores.listings["l3"] = Listing{ID: "l3", Status: ListingStatusApproved, APIURL: "https://c.example.com"}
	stores.listings["l4"] = Listing{ID: "l4", Status: ListingStatusPending, APIURL: "https://d.example.com"}
	svc := newTestService(t, stores)

	summary, err := svc.HealthSummary(context.Background())
	if err != nil {
		t.Fatalf("HealthSummary: %v", err)
	}
	if summary.TotalApproved != 3 {
		t.Fatalf("expected 3 approved probeable listings, got %d", summary.TotalApproved)
	}
	if summary.Monitored != 2 {
		t.Fatalf("expected 2 monitored listings, got %d", summary.Monitored)
	}
	if summary.Healthy != 1 || summary.Unreachable != 1 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
	if len(summary.Issues) != 1 || summary.Issues[0].ID != "l2" {
		t.Fatalf("expected l2 in issues, got %+v", summary.Issues)
	}
}
