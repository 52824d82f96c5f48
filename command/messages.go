// Package command exposes the registry's mutating operations as go-command
// messages so callers can dispatch them through a command bus or mirror them
// into a job queue.
package command

import (
	"fmt"
	"strings"

	"github.com/goliatone/go-registry/core"
	"github.com/goliatone/go-registry/webhooks"
)

const (
	TypeIssueKey          = "registry.command.key.issue"
	TypeRevokeKey         = "registry.command.key.revoke"
	TypeMintEditToken     = "registry.command.edit_token.mint"
	TypePublishEvent      = "registry.command.event.publish"
	TypeProbeListing      = "registry.command.health.probe"
	TypeRunHealthScan     = "registry.command.health.scan"
	TypeRegisterWebhook   = "registry.command.webhook.register"
	TypeUpdateWebhook     = "registry.command.webhook.update"
	TypeDeleteWebhook     = "registry.command.webhook.delete"
	TypeReactivateWebhook = "registry.command.webhook.reactivate"
)

type IssueKeyMessage struct {
	Name      string
	Kind      core.CredentialKind
	RateLimit int
}

func (IssueKeyMessage) Type() string { return TypeIssueKey }

func (m IssueKeyMessage) Validate() error {
	if strings.TrimSpace(m.Name) == "" {
		return fmt.Errorf("command: key name is required")
	}
	switch m.Kind {
	case core.CredentialAdmin, core.CredentialRegular:
	default:
		return fmt.Errorf("command: invalid credential kind %q", string(m.Kind))
	}
	if m.RateLimit < 0 {
		return fmt.Errorf("command: rate limit must not be negative")
	}
	return nil
}

type RevokeKeyMessage struct {
	KeyID string
}

func (RevokeKeyMessage) Type() string { return TypeRevokeKey }

func (m RevokeKeyMessage) Validate() error {
	if strings.TrimSpace(m.KeyID) == "" {
		return fmt.Errorf("command: key id is required")
	}
	return nil
}

type MintEditTokenMessage struct {
	ListingID string
}

func (MintEditTokenMessage) Type() string { return TypeMintEditToken }

func (m MintEditTokenMessage) Validate() error {
	if strings.TrimSpace(m.ListingID) == "" {
		return fmt.Errorf("command: listing id is required")
	}
	return nil
}

type PublishEventMessage struct {
	EventType string
	Payload   map[string]any
}

func (PublishEventMessage) Type() string { return TypePublishEvent }

func (m PublishEventMessage) Validate() error {
	return core.ValidateEventType(m.EventType)
}

type ProbeListingMessage struct {
	ListingID string
}

func (ProbeListingMessage) Type() string { return TypeProbeListing }

func (m ProbeListingMessage) Validate() error {
	if strings.TrimSpace(m.ListingID) == "" {
		return fmt.Errorf("command: listing id is required")
	}
	return nil
}

// RunHealthScanMessage triggers one full pass over all probe-eligible
// listings, same as a scheduler tick.
type RunHealthScanMessage struct{}

func (RunHealthScanMessage) Type() string { return TypeRunHealthScan }

func (RunHealthScanMessage) Validate() error { return nil }

type RegisterWebhookMessage struct {
	Identity core.Identity
	Input    webhooks.RegisterInput
}

func (RegisterWebhookMessage) Type() string { return TypeRegisterWebhook }

func (m RegisterWebhookMessage) Validate() error {
	if strings.TrimSpace(m.Input.TargetURL) == "" {
		return fmt.Errorf("command: webhook target url is required")
	}
	return nil
}

type UpdateWebhookMessage struct {
	Identity  core.Identity
	WebhookID string
	Input     webhooks.UpdateInput
}

func (UpdateWebhookMessage) Type() string { return TypeUpdateWebhook }

func (m UpdateWebhookMessage) Validate() error {
	if strings.TrimSpace(m.WebhookID) == "" {
		return fmt.Errorf("command: webhook id is required")
	}
	return nil
}

type DeleteWebhookMessage struct {
	Identity  core.Identity
	WebhookID string
}

func (DeleteWebhookMessage) Type() string { return TypeDeleteWebhook }

func (m DeleteWebhookMessage) Validate() error {
	if strings.TrimSpace(m.WebhookID) == "" {
		return fmt.Errorf("command: webhook id is required")
	}
	return nil
}

type ReactivateWebhookMessage struct {
	Identity  core.Identity
	WebhookID string
}

func (ReactivateWebhookMessage) Type() string { return TypeReactivateWebhook }

func (m ReactivateWebhookMessage) Validate() error {
	if strings.TrimSpace(m.WebhookID) == "" {
		return fmt.Errorf("command: webhook id is required")
	}
	return nil
}
