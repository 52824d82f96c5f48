package registry

import (
	"fmt"

	registrycommand "github.com/goliatone/go-registry/command"
)

// Commands bundles the go-command wrappers for every mutating registry
// operation so hosts can register them against a dispatcher in one pass.
type Commands struct {
	IssueKey          *registrycommand.IssueKeyCommand
	RevokeKey         *registrycommand.RevokeKeyCommand
	MintEditToken     *registrycommand.MintEditTokenCommand
	PublishEvent      *registrycommand.PublishEventCommand
	ProbeListing      *registrycommand.ProbeListingCommand
	RunHealthScan     *registrycommand.RunHealthScanCommand
	RegisterWebhook   *registrycommand.RegisterWebhookCommand
	UpdateWebhook     *registrycommand.UpdateWebhookCommand
	DeleteWebhook     *registrycommand.DeleteWebhookCommand
	ReactivateWebhook *registrycommand.ReactivateWebhookCommand
}

type Facade struct {
	service  registrycommand.MutatingService
	commands Commands
}

type FacadeOption func(*facadeOptions)

type facadeOptions struct {
	webhookAdmin registrycommand.WebhookAdminService
	healthScan   registrycommand.HealthScanService
}

// WithWebhookAdmin supplies the webhook admin surface the webhook commands
// delegate to. Without it those commands fail with a dependency error at
// execution time.
func WithWebhookAdmin(service registrycommand.WebhookAdminService) FacadeOption {
	return func(options *facadeOptions) {
		options.webhookAdmin = service
	}
}

// WithHealthScan supplies the full-scan surface backing RunHealthScan.
func WithHealthScan(service registrycommand.HealthScanService) FacadeOption {
	return func(options *facadeOptions) {
		options.healthScan = service
	}
}

func NewFacade(service registrycommand.MutatingService, opts ...FacadeOption) (*Facade, error) {
	if service == nil {
		return nil, fmt.Errorf("registry: mutating service is required")
	}
	cfg := facadeOptions{}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&cfg)
	}

	if cfg.webhookAdmin == nil {
		if admin, ok := service.(registrycommand.WebhookAdminService); ok {
			cfg.webhookAdmin = admin
		}
	}
	if cfg.healthScan == nil {
		if scanner, ok := service.(registrycommand.HealthScanService); ok {
			cfg.healthScan = scanner
		}
	}

	facade := &Facade{service: service}
	facade.commands = Commands{
		IssueKey:          registrycommand.NewIssueKeyCommand(service),
		RevokeKey:         registrycommand.NewRevokeKeyCommand(service),
		MintEditToken:     registrycommand.NewMintEditTokenCommand(service),
		PublishEvent:      registrycommand.NewPublishEventCommand(service),
		ProbeListing:      registrycommand.NewProbeListingCommand(service),
		RunHealthScan:     registrycommand.NewRunHealthScanCommand(cfg.healthScan),
		RegisterWebhook:   registrycommand.NewRegisterWebhookCommand(cfg.webhookAdmin),
		UpdateWebhook:     registrycommand.NewUpdateWebhookCommand(cfg.webhookAdmin),
		DeleteWebhook:     registrycommand.NewDeleteWebhookCommand(cfg.webhookAdmin),
		ReactivateWebhook: registrycommand.NewReactivateWebhookCommand(cfg.webhookAdmin),
	}

	return facade, nil
}

func (f *Facade) Commands() Commands {
	if f == nil {
		return Commands{}
	}
	return f.commands
}

func (f *Facade) Service() registrycommand.MutatingService {
	if f == nil {
		return nil
	}
	return f.service
}
