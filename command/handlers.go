package command

import (
	"context"

	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-registry/core"
	"github.com/goliatone/go-registry/webhooks"
)

// MutatingService covers the registry operations commands delegate to.
type MutatingService interface {
	IssueKey(ctx context.Context, name string, kind core.CredentialKind, rateLimit int) (core.Credential, string, error)
	RevokeKey(ctx context.Context, keyID string) error
	MintEditToken(ctx context.Context, listingID string) (string, error)
	Publish(ctx context.Context, eventType string, payload map[string]any) error
	ProbeAndRecord(ctx context.Context, listingID string) (core.HealthCheckResult, error)
}

type WebhookAdminService interface {
	Register(ctx context.Context, identity core.Identity, input webhooks.RegisterInput) (core.Webhook, error)
	Update(ctx context.Context, identity core.Identity, id string, input webhooks.UpdateInput) (core.Webhook, error)
	Delete(ctx context.Context, identity core.Identity, id string) error
	Reactivate(ctx context.Context, identity core.Identity, id string) (core.Webhook, error)
}

type HealthScanService interface {
	Scan(ctx context.Context) (core.ScanSummary, error)
}

// IssuedKey pairs the stored credential with the raw secret. The raw key is
// only available here; it is never persisted.
type IssuedKey struct {
	Credential core.Credential
	RawKey     string
}

type IssueKeyCommand struct {
	service MutatingService
}

func NewIssueKeyCommand(service MutatingService) *IssueKeyCommand {
	return &IssueKeyCommand{service: service}
}

func (c *IssueKeyCommand) Execute(ctx context.Context, msg IssueKeyMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: key service is required")
	}
	cred, rawKey, err := c.service.IssueKey(ctx, msg.Name, msg.Kind, msg.RateLimit)
	if err != nil {
		return err
	}
	storeResult(ctx, IssuedKey{Credential: cred, RawKey: rawKey})
	return nil
}

type RevokeKeyCommand struct {
	service MutatingService
}

func NewRevokeKeyCommand(service MutatingService) *RevokeKeyCommand {
	return &RevokeKeyCommand{service: service}
}

func (c *RevokeKeyCommand) Execute(ctx context.Context, msg RevokeKeyMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: key service is required")
	}
	return c.service.RevokeKey(ctx, msg.KeyID)
}

type MintEditTokenCommand struct {
	service MutatingService
}

func NewMintEditTokenCommand(service MutatingService) *MintEditTokenCommand {
	return &MintEditTokenCommand{service: service}
}

func (c *MintEditTokenCommand) Execute(ctx context.Context, msg MintEditTokenMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: edit token service is required")
	}
	rawToken, err := c.service.MintEditToken(ctx, msg.ListingID)
	if err != nil {
		return err
	}
	storeResult(ctx, rawToken)
	return nil
}

type PublishEventCommand struct {
	service MutatingService
}

func NewPublishEventCommand(service MutatingService) *PublishEventCommand {
	return &PublishEventCommand{service: service}
}

func (c *PublishEventCommand) Execute(ctx context.Context, msg PublishEventMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: event service is required")
	}
	return c.service.Publish(ctx, msg.EventType, msg.Payload)
}

type ProbeListingCommand struct {
	service MutatingService
}

func NewProbeListingCommand(service MutatingService) *ProbeListingCommand {
	return &ProbeListingCommand{service: service}
}

func (c *ProbeListingCommand) Execute(ctx context.Context, msg ProbeListingMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: health service is required")
	}
	result, err := c.service.ProbeAndRecord(ctx, msg.ListingID)
	if err != nil {
		return err
	}
	storeResult(ctx, result)
	return nil
}

type RunHealthScanCommand struct {
	service HealthScanService
}

func NewRunHealthScanCommand(service HealthScanService) *RunHealthScanCommand {
	return &RunHealthScanCommand{service: service}
}

func (c *RunHealthScanCommand) Execute(ctx context.Context, _ RunHealthScanMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: scan service is required")
	}
	summary, err := c.service.Scan(ctx)
	if err != nil {
		return err
	}
	storeResult(ctx, summary)
	return nil
}

type RegisterWebhookCommand struct {
	service WebhookAdminService
}

func NewRegisterWebhookCommand(service WebhookAdminService) *RegisterWebhookCommand {
	return &RegisterWebhookCommand{service: service}
}

func (c *RegisterWebhookCommand) Execute(ctx context.Context, msg RegisterWebhookMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: webhook service is required")
	}
	hook, err := c.service.Register(ctx, msg.Identity, msg.Input)
	if err != nil {
		return err
	}
	storeResult(ctx, hook)
	return nil
}

type UpdateWebhookCommand struct {
	service WebhookAdminService
}

func NewUpdateWebhookCommand(service WebhookAdminService) *UpdateWebhookCommand {
	return &UpdateWebhookCommand{service: service}
}

func (c *UpdateWebhookCommand) Execute(ctx context.Context, msg UpdateWebhookMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: webhook service is required")
	}
	hook, err := c.service.Update(ctx, msg.Identity, msg.WebhookID, msg.Input)
	if err != nil {
		return err
	}
	storeResult(ctx, hook)
	return nil
}

type DeleteWebhookCommand struct {
	service WebhookAdminService
}

func NewDeleteWebhookCommand(service WebhookAdminService) *DeleteWebhookCommand {
	return &DeleteWebhookCommand{service: service}
}

func (c *DeleteWebhookCommand) Execute(ctx context.Context, msg DeleteWebhookMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: webhook service is required")
	}
	return c.service.Delete(ctx, msg.Identity, msg.WebhookID)
}

type ReactivateWebhookCommand struct {
	service WebhookAdminService
}

func NewReactivateWebhookCommand(service WebhookAdminService) *ReactivateWebhookCommand {
	return &ReactivateWebhookCommand{service: service}
}

func (c *ReactivateWebhookCommand) Execute(ctx context.Context, msg ReactivateWebhookMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: webhook service is required")
	}
	hook, err := c.service.Reactivate(ctx, msg.Identity, msg.WebhookID)
	if err != nil {
		return err
	}
	storeResult(ctx, hook)
	return nil
}

func storeResult[T any](ctx context.Context, value T) {
	collector := gocmd.ResultFromContext[T](ctx)
	if collector == nil {
		return
	}
	collector.Store(value)
}
