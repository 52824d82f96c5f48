package core

import (
	"context"
	"fmt"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
)

// Service is the operational facade: it authenticates credentials, admits
// requests against the rate limit, publishes events, and runs health probes.
// Every collaborator is swappable through Option values.
type Service struct {
	config            Config
	logger            Logger
	loggerProvider    LoggerProvider
	metricsRecorder   MetricsRecorder
	errorFactory      ErrorFactory
	errorMapper       ErrorMapper
	persistenceClient any
	repositoryFactory any
	configProvider    ConfigProvider
	optionsResolver   OptionsResolver
	resolver          IdentityResolver
	admitter          Admitter
	publisher         Publisher
	prober            HealthProber
	stores            StoreProvider
	now               func() time.Time
}

type ServiceDependencies struct {
	Logger            Logger
	LoggerProvider    LoggerProvider
	MetricsRecorder   MetricsRecorder
	ErrorFactory      ErrorFactory
	ErrorMapper       ErrorMapper
	PersistenceClient any
	RepositoryFactory any
	ConfigProvider    ConfigProvider
	OptionsResolver   OptionsResolver
	IdentityResolver  IdentityResolver
	Admitter          Admitter
	Publisher         Publisher
	HealthProber      HealthProber
	Stores            StoreProvider
}

func NewService(cfg Config, options ...Option) (*Service, error) {
	builder := defaultServiceBuilder(cfg)
	for _, opt := range options {
		if opt == nil {
			continue
		}
		opt(&builder)
	}

	provider, logger := glog.Resolve("registry", builder.loggerProvider, builder.logger)
	logger = glog.Ensure(logger)
	if provider != nil {
		if named := provider.GetLogger("registry"); named != nil {
			logger = glog.Ensure(named)
		}
	}

	if builder.errorFactory == nil {
		builder.errorFactory = goerrors.New
	}
	if builder.metricsRecorder == nil {
		builder.metricsRecorder = NopMetricsRecorder{}
	}
	if builder.errorMapper == nil {
		builder.errorMapper = defaultErrorMapper
	}
	if builder.configProvider == nil {
		builder.configProvider = NewCfgxConfigProvider(nil)
	}
	if builder.optionsResolver == nil {
		builder.optionsResolver = GoOptionsResolver{}
	}
	if builder.now == nil {
		builder.now = time.Now
	}

	defaults := DefaultConfig()
	loaded, err := builder.configProvider.Load(context.Background(), defaults)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}
	finalConfig, err := builder.optionsResolver.Resolve(defaults, loaded, builder.runtimeConfig)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}

	if builder.stores == nil && builder.storeFactory != nil {
		if factory, ok := builder.storeFactory.(RepositoryStoreFactory); ok {
			stores, buildErr := factory.BuildStores(builder.persistence)
			if buildErr != nil {
				return nil, mapBuildError(builder.errorMapper, buildErr)
			}
			builder.stores = stores
		} else if stores, ok := builder.storeFactory.(StoreProvider); ok {
			builder.stores = stores
		}
	}

	return &Service{
		config:            finalConfig,
		logger:            logger,
		loggerProvider:    provider,
		metricsRecorder:   builder.metricsRecorder,
		errorFactory:      builder.errorFactory,
		errorMapper:       builder.errorMapper,
		persistenceClient: builder.persistence,
		repositoryFactory: builder.storeFactory,
		configProvider:    builder.configProvider,
		optionsResolver:   builder.optionsResolver,
		resolver:          builder.resolver,
		admitter:          builder.admitter,
		publisher:         builder.publisher,
		prober:            builder.prober,
		stores:            builder.stores,
		now:               builder.now,
	}, nil
}

func Setup(cfg Config, options ...Option) (*Service, error) {
	return NewService(cfg, options...)
}

func mapBuildError(mapper ErrorMapper, err error) error {
	if err == nil {
		return nil
	}
	if mapper == nil {
		return err
	}
	mapped := mapper(err)
	if mapped == nil {
		return err
	}
	return mapped
}

func (s *Service) Config() Config {
	if s == nil {
		return Config{}
	}
	return s.config
}

func (s *Service) Dependencies() ServiceDependencies {
	if s == nil {
		return ServiceDependencies{}
	}
	return ServiceDependencies{
		Logger:            s.logger,
		LoggerProvider:    s.loggerProvider,
		MetricsRecorder:   s.metricsRecorder,
		ErrorFactory:      s.errorFactory,
		ErrorMapper:       s.errorMapper,
		PersistenceClient: s.persistenceClient,
		RepositoryFactory: s.repositoryFactory,
		ConfigProvider:    s.configProvider,
		OptionsResolver:   s.optionsResolver,
		IdentityResolver:  s.resolver,
		Admitter:          s.admitter,
		Publisher:         s.publisher,
		HealthProber:      s.prober,
		Stores:            s.stores,
	}
}

// Authenticate resolves presented secrets into exactly one identity.
// Resolution never fails a request outright; unknown or revoked credentials
// degrade to anonymous.
func (s *Service) Authenticate(ctx context.Context, secrets Secrets) (identity Identity, err error) {
	startedAt := s.clock()
	fields := map[string]any{}
	defer func() {
		fields["identity_kind"] = string(identity.Kind)
		s.observeOperation(ctx, startedAt, "authenticate", err, fields)
	}()

	if s == nil || s.resolver == nil {
		err = s.mapError(fmt.Errorf("core: identity resolver is not configured"))
		return Identity{}, err
	}
	identity, err = s.resolver.Resolve(ctx, secrets)
	if err != nil {
		err = s.mapError(err)
		return Identity{}, err
	}
	return identity, nil
}

// Admit runs the fixed-window admission check for an identity. Listings
// marked rate-exempt bypass the counter entirely when an edit token is the
// acting identity.
func (s *Service) Admit(ctx context.Context, identity Identity) (decision AdmissionDecision, err error) {
	startedAt := s.clock()
	fields := map[string]any{
		"bucket": identity.Bucket(),
	}
	defer func() {
		if err == nil {
			fields["allowed"] = decision.Allowed
			fields["remaining"] = decision.Remaining
		}
		s.observeOperation(ctx, startedAt, "admit", err, fields)
	}()

	if s == nil || s.admitter == nil {
		err = s.mapError(fmt.Errorf("core: admitter is not configured"))
		return AdmissionDecision{}, err
	}

	limit := s.config.LimitFor(identity)
	if identity.Kind == IdentityEditToken && s.stores != nil {
		if listings := s.stores.ListingStore(); listings != nil {
			exempt, exemptErr := listings.IsRateExempt(ctx, identity.ListingID)
			if exemptErr == nil && exempt {
				decision = AdmissionDecision{
					Allowed:    true,
					Limit:      limit,
					Remaining:  limit,
					ResetAfter: s.config.RateLimitWindow(),
				}
				return decision, nil
			}
		}
	}

	decision = s.admitter.Admit(identity.Bucket(), limit, s.config.RateLimitWindow())
	return decision, nil
}

// Publish validates and fans out one event. Delivery to subscribers and
// webhooks is best effort; Publish itself only fails on malformed input.
func (s *Service) Publish(ctx context.Context, eventType string, payload map[string]any) (err error) {
	startedAt := s.clock()
	fields := map[string]any{
		"event": eventType,
	}
	defer func() {
		s.observeOperation(ctx, startedAt, "publish", err, fields)
	}()

	if err = ValidateEventType(eventType); err != nil {
		err = s.mapError(err)
		return err
	}
	if s == nil || s.publisher == nil {
		err = s.mapError(fmt.Errorf("core: publisher is not configured"))
		return err
	}

	s.publisher.Publish(Event{
		Type:      strings.TrimSpace(eventType),
		Payload:   payload,
		Timestamp: s.clock().UTC(),
	})
	return nil
}

// ProbeAndRecord runs one health probe against a listing, appends the
// result, refreshes the listing's cached health and uptime, and emits a
// health.checked event. The probe outcome comes back even when the target
// is down; only store failures surface as errors.
func (s *Service) ProbeAndRecord(ctx context.Context, listingID string) (result HealthCheckResult, err error) {
	startedAt := s.clock()
	fields := map[string]any{
		"listing_id": listingID,
	}
	defer func() {
		if result.Status != "" {
			fields["probe_status"] = string(result.Status)
		}
		s.observeOperation(ctx, startedAt, "probe_and_record", err, fields)
	}()

	if s == nil || s.prober == nil {
		err = s.mapError(fmt.Errorf("core: health prober is not configured"))
		return HealthCheckResult{}, err
	}
	if s.stores == nil {
		err = s.mapError(fmt.Errorf("core: stores are not configured"))
		return HealthCheckResult{}, err
	}

	listing, err := s.stores.ListingStore().Get(ctx, listingID)
	if err != nil {
		err = s.mapError(err)
		return HealthCheckResult{}, err
	}
	probeURL := listing.ProbeURL()
	if probeURL == "" {
		err = s.mapError(ErrListingHasNoProbeURL)
		return HealthCheckResult{}, err
	}

	result = s.prober.Check(ctx, probeURL)
	result.ListingID = listing.ID
	if result.CheckedAt.IsZero() {
		result.CheckedAt = s.clock().UTC()
	}

	if err = s.stores.HealthResultStore().Append(ctx, result); err != nil {
		err = s.mapError(err)
		return result, err
	}
	if err = s.stores.ListingStore().UpdateHealth(ctx, listing.ID, result.Status, result.CheckedAt); err != nil {
		err = s.mapError(err)
		return result, err
	}
	if err = s.refreshUptime(ctx, listing.ID); err != nil {
		err = s.mapError(err)
		return result, err
	}

	if s.publisher != nil {
		payload := map[string]any{
			"app_id": listing.ID,
			"status": string(result.Status),
			"url":    result.CheckedURL,
		}
		if result.HTTPCode != nil {
			payload["http_code"] = *result.HTTPCode
		}
		s.publisher.Publish(Event{
			Type:      EventHealthChecked,
			Payload:   payload,
			Timestamp: result.CheckedAt,
		})
	}
	return result, nil
}

// refreshUptime recomputes the uptime percentage over the most recent
// results, capped at the configured window.
func (s *Service) refreshUptime(ctx context.Context, listingID string) error {
	window := s.config.Health.UptimeWindow
	recent, err := s.stores.HealthResultStore().RecentByListing(ctx, listingID, window)
	if err != nil {
		return err
	}
	if len(recent) == 0 {
		return nil
	}
	healthy := 0
	for _, res := range recent {
		if res.Status == HealthStatusHealthy {
			healthy++
		}
	}
	uptime := float64(healthy) / float64(len(recent)) * 100
	return s.stores.ListingStore().UpdateUptime(ctx, listingID, uptime)
}

// IssueKey mints a new API key. The raw key is returned exactly once; only
// its hash is stored.
func (s *Service) IssueKey(ctx context.Context, name string, kind CredentialKind, rateLimit int) (cred Credential, rawKey string, err error) {
	startedAt := s.clock()
	fields := map[string]any{
		"key_name": name,
		"key_kind": string(kind),
	}
	defer func() {
		if cred.ID != "" {
			fields["key_id"] = cred.ID
		}
		s.observeOperation(ctx, startedAt, "issue_key", err, fields)
	}()

	name = strings.TrimSpace(name)
	if name == "" {
		err = s.mapError(fmt.Errorf("core: key name is required"))
		return Credential{}, "", err
	}
	if kind != CredentialAdmin && kind != CredentialRegular {
		err = s.mapError(fmt.Errorf("core: invalid credential kind %q", string(kind)))
		return Credential{}, "", err
	}
	if s == nil || s.stores == nil {
		err = s.mapError(fmt.Errorf("core: stores are not configured"))
		return Credential{}, "", err
	}

	rawKey, err = NewAPIKey()
	if err != nil {
		err = s.mapError(err)
		return Credential{}, "", err
	}
	cred, err = s.stores.APIKeyStore().Create(ctx, Credential{
		Name:      name,
		KeyHash:   HashSecret(rawKey),
		Kind:      kind,
		RateLimit: rateLimit,
		CreatedAt: s.clock().UTC(),
	})
	if err != nil {
		err = s.mapError(err)
		return Credential{}, "", err
	}
	return cred, rawKey, nil
}

// RevokeKey permanently disables an API key. Revocation is sticky; the key
// resolves to anonymous from the next request on.
func (s *Service) RevokeKey(ctx context.Context, keyID string) (err error) {
	startedAt := s.clock()
	fields := map[string]any{
		"key_id": keyID,
	}
	defer func() {
		s.observeOperation(ctx, startedAt, "revoke_key", err, fields)
	}()

	if strings.TrimSpace(keyID) == "" {
		err = s.mapError(fmt.Errorf("core: key id is required"))
		return err
	}
	if s == nil || s.stores == nil {
		err = s.mapError(fmt.Errorf("core: stores are not configured"))
		return err
	}
	if err = s.stores.APIKeyStore().Revoke(ctx, keyID); err != nil {
		err = s.mapError(err)
		return err
	}
	return nil
}

// MintEditToken creates an edit token bound to exactly one listing and
// returns the raw token once. Minting again replaces the previous binding.
func (s *Service) MintEditToken(ctx context.Context, listingID string) (rawToken string, err error) {
	startedAt := s.clock()
	fields := map[string]any{
		"listing_id": listingID,
	}
	defer func() {
		s.observeOperation(ctx, startedAt, "mint_edit_token", err, fields)
	}()

	if strings.TrimSpace(listingID) == "" {
		err = s.mapError(fmt.Errorf("core: listing id is required"))
		return "", err
	}
	if s == nil || s.stores == nil {
		err = s.mapError(fmt.Errorf("core: stores are not configured"))
		return "", err
	}

	listing, err := s.stores.ListingStore().Get(ctx, listingID)
	if err != nil {
		err = s.mapError(err)
		return "", err
	}
	rawToken, err = NewEditToken()
	if err != nil {
		err = s.mapError(err)
		return "", err
	}
	if err = s.stores.ListingStore().BindEditToken(ctx, listing.ID, HashSecret(rawToken)); err != nil {
		err = s.mapError(err)
		return "", err
	}
	return rawToken, nil
}

// HealthSummary builds the fleet-wide view from cached listing health.
func (s *Service) HealthSummary(ctx context.Context) (summary HealthSummary, err error) {
	startedAt := s.clock()
	defer func() {
		s.observeOperation(ctx, startedAt, "health_summary", err, map[string]any{})
	}()

	if s == nil || s.stores == nil {
		err = s.mapError(fmt.Errorf("core: stores are not configured"))
		return HealthSummary{}, err
	}
	listings, err := s.stores.ListingStore().ListEligibleForProbe(ctx)
	if err != nil {
		err = s.mapError(err)
		return HealthSummary{}, err
	}

	summary.TotalApproved = len(listings)
	for _, listing := range listings {
		if listing.LastCheckedAt == nil {
			continue
		}
		summary.Monitored++
		switch listing.LastHealthStatus {
		case HealthStatusHealthy:
			summary.Healthy++
		case HealthStatusUnhealthy:
			summary.Unhealthy++
			summary.Issues = append(summary.Issues, listing)
		case HealthStatusUnreachable:
			summary.Unreachable++
			summary.Issues = append(summary.Issues, listing)
		}
	}
	return summary, nil
}

// HealthHistory returns a listing's most recent probe results, newest first.
func (s *Service) HealthHistory(ctx context.Context, listingID string, limit int) (results []HealthCheckResult, err error) {
	startedAt := s.clock()
	fields := map[string]any{
		"listing_id": listingID,
	}
	defer func() {
		s.observeOperation(ctx, startedAt, "health_history", err, fields)
	}()

	if strings.TrimSpace(listingID) == "" {
		err = s.mapError(fmt.Errorf("core: listing id is required"))
		return nil, err
	}
	if s == nil || s.stores == nil {
		err = s.mapError(fmt.Errorf("core: stores are not configured"))
		return nil, err
	}
	if limit <= 0 {
		limit = s.config.Health.UptimeWindow
	}
	results, err = s.stores.HealthResultStore().RecentByListing(ctx, listingID, limit)
	if err != nil {
		err = s.mapError(err)
		return nil, err
	}
	return results, nil
}

func (s *Service) clock() time.Time {
	if s == nil || s.now == nil {
		return time.Now()
	}
	return s.now()
}

func (s *Service) mapError(err error) error {
	if err == nil {
		return nil
	}
	if s == nil || s.errorMapper == nil {
		return err
	}
	mapped := s.errorMapper(err)
	if mapped == nil {
		return err
	}
	return mapped
}
