// Package registry re-exports the core surface so hosts can depend on a
// single import path for configuration, setup, and the operational service.
package registry

import "github.com/goliatone/go-registry/core"

type Config = core.Config

type RateLimitConfig = core.RateLimitConfig

type Option = core.Option

type Service = core.Service

type ServiceDependencies = core.ServiceDependencies

type Identity = core.Identity
type Credential = core.Credential
type Secrets = core.Secrets
type AdmissionDecision = core.AdmissionDecision
type Webhook = core.Webhook
type Listing = core.Listing
type HealthCheckResult = core.HealthCheckResult
type HealthSummary = core.HealthSummary
type ScanSummary = core.ScanSummary

type StoreProvider = core.StoreProvider
type APIKeyStore = core.APIKeyStore
type ListingStore = core.ListingStore
type WebhookStore = core.WebhookStore
type HealthResultStore = core.HealthResultStore

var (
	WithLogger            = core.WithLogger
	WithLoggerProvider    = core.WithLoggerProvider
	WithMetricsRecorder   = core.WithMetricsRecorder
	WithErrorFactory      = core.WithErrorFactory
	WithErrorMapper       = core.WithErrorMapper
	WithPersistenceClient = core.WithPersistenceClient
	WithRepositoryFactory = core.WithRepositoryFactory
	WithConfigProvider    = core.WithConfigProvider
	WithOptionsResolver   = core.WithOptionsResolver
	WithIdentityResolver  = core.WithIdentityResolver
	WithAdmitter          = core.WithAdmitter
	WithPublisher         = core.WithPublisher
	WithHealthProber      = core.WithHealthProber
	WithStores            = core.WithStores
	WithClock             = core.WithClock
)

func DefaultConfig() Config {
	return core.DefaultConfig()
}

func NewService(cfg Config, opts ...Option) (*Service, error) {
	return core.NewService(cfg, opts...)
}

func Setup(cfg Config, opts ...Option) (*Service, error) {
	return core.Setup(cfg, opts...)
}
