package webhooks

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-registry/core"
)

// AdminRequiredError gates registration management to admin identities.
type AdminRequiredError struct {
	Kind core.IdentityKind
}

func (e AdminRequiredError) Error() string {
	return fmt.Sprintf("webhooks: admin key required, got %q identity", string(e.Kind))
}

func (e AdminRequiredError) ToServiceError() *goerrors.Error {
	return goerrors.New(e.Error(), goerrors.CategoryAuthz).
		WithCode(http.StatusForbidden).
		WithTextCode(core.RegistryErrorPermissionDenied)
}

type ServiceConfig struct {
	Store core.WebhookStore
	Now   func() time.Time
}

// Service manages webhook registrations. Every mutation is admin-only.
type Service struct {
	store core.WebhookStore
	now   func() time.Time
}

func NewService(cfg ServiceConfig) *Service {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Service{store: cfg.Store, now: now}
}

type RegisterInput struct {
	TargetURL   string
	EventFilter []string
}

type UpdateInput struct {
	TargetURL   *string
	EventFilter *[]string
	Active      *bool
}

// Register creates a webhook with a freshly minted signing secret. The raw
// secret is part of the returned record; this is the only time the caller
// sees it alongside the registration.
func (s *Service) Register(ctx context.Context, identity core.Identity, input RegisterInput) (core.Webhook, error) {
	if err := s.requireAdmin(identity); err != nil {
		return core.Webhook{}, err
	}
	targetURL, err := normalizeTargetURL(input.TargetURL)
	if err != nil {
		return core.Webhook{}, err
	}
	filter, err := normalizeEventFilter(input.EventFilter)
	if err != nil {
		return core.Webhook{}, err
	}
	secret, err := core.NewWebhookSecret()
	if err != nil {
		return core.Webhook{}, err
	}

	now := s.now().UTC()
	return s.store.Create(ctx, core.Webhook{
		TargetURL:   targetURL,
		Secret:      secret,
		EventFilter: filter,
		Active:      true,
		CreatedBy:   identity.KeyID,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
}

// Update patches a registration. Setting Active to true also clears the
// failure counter, matching explicit reactivation semantics.
func (s *Service) Update(ctx context.Context, identity core.Identity, id string, input UpdateInput) (core.Webhook, error) {
	if err := s.requireAdmin(identity); err != nil {
		return core.Webhook{}, err
	}
	hook, err := s.store.Get(ctx, strings.TrimSpace(id))
	if err != nil {
		return core.Webhook{}, err
	}

	if input.TargetURL != nil {
		targetURL, urlErr := normalizeTargetURL(*input.TargetURL)
		if urlErr != nil {
			return core.Webhook{}, urlErr
		}
		hook.TargetURL = targetURL
	}
	if input.EventFilter != nil {
		filter, filterErr := normalizeEventFilter(*input.EventFilter)
		if filterErr != nil {
			return core.Webhook{}, filterErr
		}
		hook.EventFilter = filter
	}
	if input.Active != nil {
		hook.Active = *input.Active
		if hook.Active {
			hook.FailureCount = 0
		}
	}
	hook.UpdatedAt = s.now().UTC()
	return s.store.Update(ctx, hook)
}

func (s *Service) Delete(ctx context.Context, identity core.Identity, id string) error {
	if err := s.requireAdmin(identity); err != nil {
		return err
	}
	return s.store.Delete(ctx, strings.TrimSpace(id))
}

// Reactivate re-enables a disabled webhook and clears its failure counter.
func (s *Service) Reactivate(ctx context.Context, identity core.Identity, id string) (core.Webhook, error) {
	if err := s.requireAdmin(identity); err != nil {
		return core.Webhook{}, err
	}
	return s.store.Reactivate(ctx, strings.TrimSpace(id))
}

func (s *Service) Get(ctx context.Context, identity core.Identity, id string) (core.Webhook, error) {
	if err := s.requireAdmin(identity); err != nil {
		return core.Webhook{}, err
	}
	return s.store.Get(ctx, strings.TrimSpace(id))
}

func (s *Service) List(ctx context.Context, identity core.Identity) ([]core.Webhook, error) {
	if err := s.requireAdmin(identity); err != nil {
		return nil, err
	}
	return s.store.List(ctx)
}

func (s *Service) requireAdmin(identity core.Identity) error {
	if s == nil || s.store == nil {
		return fmt.Errorf("webhooks: store is not configured")
	}
	if !identity.IsAdmin() {
		return AdminRequiredError{Kind: identity.Kind}
	}
	return nil
}

func normalizeTargetURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("webhooks: target url is required")
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("webhooks: invalid target url: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return "", fmt.Errorf("webhooks: target url must use http or https, got %q", parsed.Scheme)
	}
	if parsed.Host == "" {
		return "", fmt.Errorf("webhooks: target url is missing a host")
	}
	return parsed.String(), nil
}

// normalizeEventFilter validates and dedupes a filter. Empty means "all".
func normalizeEventFilter(filter []string) ([]string, error) {
	if len(filter) == 0 {
		return nil, nil
	}
	seen := map[string]struct{}{}
	out := make([]string, 0, len(filter))
	for _, eventType := range filter {
		trimmed := strings.TrimSpace(eventType)
		if trimmed == "" {
			continue
		}
		if err := core.ValidateEventType(trimmed); err != nil {
			return nil, err
		}
		if _, ok := seen[trimmed]; ok {
			continue
		}
		seen[trimmed] = struct{}{}
		out = append(out, trimmed)
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out, nil
}
