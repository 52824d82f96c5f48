package core

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-config/cfgx"
	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
	opts "github.com/goliatone/go-options"
)

type ErrorFactory func(message string, category ...goerrors.Category) *goerrors.Error

type ErrorMapper func(err error) *goerrors.Error

type ConfigProvider interface {
	Load(ctx context.Context, defaults Config) (Config, error)
}

type RawConfigLoader interface {
	LoadRaw(ctx context.Context) (map[string]any, error)
}

type OptionsResolver interface {
	Resolve(defaults Config, loaded Config, runtime Config) (Config, error)
}

type serviceBuilder struct {
	runtimeConfig   Config
	logger          Logger
	loggerProvider  LoggerProvider
	metricsRecorder MetricsRecorder
	errorFactory    ErrorFactory
	errorMapper     ErrorMapper
	persistence     any
	storeFactory    any
	configProvider  ConfigProvider
	optionsResolver OptionsResolver
	resolver        IdentityResolver
	admitter        Admitter
	publisher       Publisher
	prober          HealthProber
	stores          StoreProvider
	now             func() time.Time
}

type Option func(*serviceBuilder)

func WithLogger(logger Logger) Option {
	return func(b *serviceBuilder) {
		b.logger = logger
	}
}

func WithLoggerProvider(provider LoggerProvider) Option {
	return func(b *serviceBuilder) {
		b.loggerProvider = provider
	}
}

func WithMetricsRecorder(recorder MetricsRecorder) Option {
	return func(b *serviceBuilder) {
		b.metricsRecorder = recorder
	}
}

func WithErrorFactory(factory ErrorFactory) Option {
	return func(b *serviceBuilder) {
		b.errorFactory = factory
	}
}

func WithErrorMapper(mapper ErrorMapper) Option {
	return func(b *serviceBuilder) {
		b.errorMapper = mapper
	}
}

func WithPersistenceClient(client any) Option {
	return func(b *serviceBuilder) {
		b.persistence = client
	}
}

func WithRepositoryFactory(factory any) Option {
	return func(b *serviceBuilder) {
		b.storeFactory = factory
	}
}

func WithConfigProvider(provider ConfigProvider) Option {
	return func(b *serviceBuilder) {
		b.configProvider = provider
	}
}

func WithOptionsResolver(resolver OptionsResolver) Option {
	return func(b *serviceBuilder) {
		b.optionsResolver = resolver
	}
}

func WithIdentityResolver(resolver IdentityResolver) Option {
	return func(b *serviceBuilder) {
		b.resolver = resolver
	}
}

func WithAdmitter(admitter Admitter) Option {
	return func(b *serviceBuilder) {
		b.admitter = admitter
	}
}

func WithPublisher(publisher Publisher) Option {
	return func(b *serviceBuilder) {
		b.publisher = publisher
	}
}

func WithHealthProber(prober HealthProber) Option {
	return func(b *serviceBuilder) {
		b.prober = prober
	}
}

func WithStores(stores StoreProvider) Option {
	return func(b *serviceBuilder) {
		b.stores = stores
	}
}

func WithClock(now func() time.Time) Option {
	return func(b *serviceBuilder) {
		b.now = now
	}
}

func defaultServiceBuilder(runtime Config) serviceBuilder {
	loggerProvider, logger := glog.Resolve("registry", nil, nil)
	return serviceBuilder{
		runtimeConfig:   runtime,
		loggerProvider:  loggerProvider,
		logger:          logger,
		metricsRecorder: NopMetricsRecorder{},
		errorFactory:    goerrors.New,
		errorMapper:     defaultErrorMapper,
		configProvider:  NewCfgxConfigProvider(nil),
		optionsResolver: GoOptionsResolver{},
	}
}

func defaultErrorMapper(err error) *goerrors.Error {
	if err == nil {
		return nil
	}
	return registryErrorMapper(err)
}

type staticRawConfigLoader struct {
	Values map[string]any
}

func (l staticRawConfigLoader) LoadRaw(context.Context) (map[string]any, error) {
	if len(l.Values) == 0 {
		return map[string]any{}, nil
	}
	out := make(map[string]any, len(l.Values))
	for key, value := range l.Values {
		out[key] = value
	}
	return out, nil
}

type CfgxConfigProvider struct {
	Loader RawConfigLoader
}

func NewCfgxConfigProvider(loader RawConfigLoader) *CfgxConfigProvider {
	return &CfgxConfigProvider{Loader: loader}
}

func (p *CfgxConfigProvider) Load(ctx context.Context, defaults Config) (Config, error) {
	if p == nil {
		return defaults, nil
	}
	loader := p.Loader
	if loader == nil {
		loader = staticRawConfigLoader{}
	}
	raw, err := loader.LoadRaw(ctx)
	if err != nil {
		return Config{}, err
	}
	cfg, err := cfgx.Build[Config](raw,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidatorFunc[Config](Config.Validate),
	)
	if err != nil {
		return Config{}, err
	}
	return cfg, nil
}

type GoOptionsResolver struct{}

func (GoOptionsResolver) Resolve(defaults Config, loaded Config, runtime Config) (Config, error) {
	defaultLayer := configToLayerMap(defaults, true)
	loadedLayer := configToLayerMap(loaded, false)
	runtimeLayer := configToLayerMap(runtime, false)

	stack, err := opts.NewStack(
		opts.NewLayer(
			opts.NewScope("defaults", 0),
			defaultLayer,
			opts.WithSnapshotID[map[string]any]("defaults"),
		),
		opts.NewLayer(
			opts.NewScope("config", 10),
			loadedLayer,
			opts.WithSnapshotID[map[string]any]("config"),
		),
		opts.NewLayer(
			opts.NewScope("runtime", 20),
			runtimeLayer,
			opts.WithSnapshotID[map[string]any]("runtime"),
		),
	)
	if err != nil {
		return Config{}, fmt.Errorf("core: options stack build failed: %w", err)
	}
	merged, err := stack.Merge()
	if err != nil {
		return Config{}, fmt.Errorf("core: options merge failed: %w", err)
	}
	resolved, err := cfgx.Build[Config](merged.Value,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidatorFunc[Config](Config.Validate),
	)
	if err != nil {
		return Config{}, err
	}
	if err := resolved.Validate(); err != nil {
		return Config{}, err
	}
	return resolved, nil
}

func configToLayerMap(cfg Config, includeZero bool) map[string]any {
	layer := map[string]any{}
	if includeZero || strings.TrimSpace(cfg.ServiceName) != "" {
		layer["service_name"] = cfg.ServiceName
	}
	rateLimit := map[string]any{}
	if includeZero || cfg.RateLimit.WindowSeconds > 0 {
		rateLimit["window_seconds"] = cfg.RateLimit.WindowSeconds
	}
	if includeZero || cfg.RateLimit.DefaultLimit > 0 {
		rateLimit["default_limit"] = cfg.RateLimit.DefaultLimit
	}
	if includeZero || cfg.RateLimit.AdminLimit > 0 {
		rateLimit["admin_limit"] = cfg.RateLimit.AdminLimit
	}
	if len(rateLimit) > 0 {
		layer["rate_limit"] = rateLimit
	}
	if includeZero || cfg.Schedule.IntervalSeconds > 0 {
		layer["schedule"] = map[string]any{
			"interval_seconds": cfg.Schedule.IntervalSeconds,
		}
	}
	webhooks := map[string]any{}
	if includeZero || cfg.Webhooks.FailureThreshold > 0 {
		webhooks["failure_threshold"] = cfg.Webhooks.FailureThreshold
	}
	if includeZero || cfg.Webhooks.TimeoutSeconds > 0 {
		webhooks["timeout_seconds"] = cfg.Webhooks.TimeoutSeconds
	}
	if len(webhooks) > 0 {
		layer["webhooks"] = webhooks
	}
	health := map[string]any{}
	if includeZero || cfg.Health.ProbeTimeoutSeconds > 0 {
		health["probe_timeout_seconds"] = cfg.Health.ProbeTimeoutSeconds
	}
	if includeZero || cfg.Health.MaxRedirects > 0 {
		health["max_redirects"] = cfg.Health.MaxRedirects
	}
	if includeZero || cfg.Health.UptimeWindow > 0 {
		health["uptime_window"] = cfg.Health.UptimeWindow
	}
	if len(health) > 0 {
		layer["health"] = health
	}
	events := map[string]any{}
	if includeZero || cfg.Events.SubscriberBuffer > 0 {
		events["subscriber_buffer"] = cfg.Events.SubscriberBuffer
	}
	if includeZero || cfg.Events.HeartbeatSeconds > 0 {
		events["heartbeat_seconds"] = cfg.Events.HeartbeatSeconds
	}
	if len(events) > 0 {
		layer["events"] = events
	}
	return layer
}
