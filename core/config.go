package core

import (
	"fmt"
	"strings"
	"time"
)

type RateLimitConfig struct {
	WindowSeconds int `koanf:"window_seconds" mapstructure:"window_seconds"`
	DefaultLimit  int `koanf:"default_limit" mapstructure:"default_limit"`
	AdminLimit    int `koanf:"admin_limit" mapstructure:"admin_limit"`
}

type ScheduleConfigSection struct {
	// IntervalSeconds of 0 disables the background health scan.
	IntervalSeconds int `koanf:"interval_seconds" mapstructure:"interval_seconds"`
}

type WebhookConfig struct {
	FailureThreshold int `koanf:"failure_threshold" mapstructure:"failure_threshold"`
	TimeoutSeconds   int `koanf:"timeout_seconds" mapstructure:"timeout_seconds"`
}

type HealthConfig struct {
	ProbeTimeoutSeconds int `koanf:"probe_timeout_seconds" mapstructure:"probe_timeout_seconds"`
	MaxRedirects        int `koanf:"max_redirects" mapstructure:"max_redirects"`
	UptimeWindow        int `koanf:"uptime_window" mapstructure:"uptime_window"`
}

type EventConfig struct {
	SubscriberBuffer int `koanf:"subscriber_buffer" mapstructure:"subscriber_buffer"`
	HeartbeatSeconds int `koanf:"heartbeat_seconds" mapstructure:"heartbeat_seconds"`
}

type Config struct {
	ServiceName string                `koanf:"service_name" mapstructure:"service_name"`
	RateLimit   RateLimitConfig       `koanf:"rate_limit" mapstructure:"rate_limit"`
	Schedule    ScheduleConfigSection `koanf:"schedule" mapstructure:"schedule"`
	Webhooks    WebhookConfig         `koanf:"webhooks" mapstructure:"webhooks"`
	Health      HealthConfig          `koanf:"health" mapstructure:"health"`
	Events      EventConfig           `koanf:"events" mapstructure:"events"`
}

func DefaultConfig() Config {
	return Config{
		ServiceName: "registry",
		RateLimit: RateLimitConfig{
			WindowSeconds: 60,
			DefaultLimit:  100,
			AdminLimit:    10_000,
		},
		Schedule: ScheduleConfigSection{
			IntervalSeconds: 300,
		},
		Webhooks: WebhookConfig{
			FailureThreshold: 10,
			TimeoutSeconds:   10,
		},
		Health: HealthConfig{
			ProbeTimeoutSeconds: 10,
			MaxRedirects:        5,
			UptimeWindow:        100,
		},
		Events: EventConfig{
			SubscriberBuffer: 256,
			HeartbeatSeconds: 15,
		},
	}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.ServiceName) == "" {
		return fmt.Errorf("core: service_name is required")
	}
	if c.RateLimit.WindowSeconds <= 0 {
		return fmt.Errorf("core: rate_limit.window_seconds must be positive")
	}
	if c.RateLimit.DefaultLimit <= 0 {
		return fmt.Errorf("core: rate_limit.default_limit must be positive")
	}
	if c.RateLimit.AdminLimit <= 0 {
		return fmt.Errorf("core: rate_limit.admin_limit must be positive")
	}
	if c.Schedule.IntervalSeconds < 0 {
		return fmt.Errorf("core: schedule.interval_seconds must not be negative")
	}
	if c.Webhooks.FailureThreshold <= 0 {
		return fmt.Errorf("core: webhooks.failure_threshold must be positive")
	}
	if c.Webhooks.TimeoutSeconds <= 0 {
		return fmt.Errorf("core: webhooks.timeout_seconds must be positive")
	}
	if c.Health.ProbeTimeoutSeconds <= 0 {
		return fmt.Errorf("core: health.probe_timeout_seconds must be positive")
	}
	if c.Health.MaxRedirects < 0 {
		return fmt.Errorf("core: health.max_redirects must not be negative")
	}
	if c.Health.UptimeWindow <= 0 {
		return fmt.Errorf("core: health.uptime_window must be positive")
	}
	if c.Events.SubscriberBuffer <= 0 {
		return fmt.Errorf("core: events.subscriber_buffer must be positive")
	}
	if c.Events.HeartbeatSeconds <= 0 {
		return fmt.Errorf("core: events.heartbeat_seconds must be positive")
	}
	return nil
}

func (c Config) RateLimitWindow() time.Duration {
	return time.Duration(c.RateLimit.WindowSeconds) * time.Second
}

func (c Config) ScheduleInterval() time.Duration {
	return time.Duration(c.Schedule.IntervalSeconds) * time.Second
}

func (c Config) ProbeTimeout() time.Duration {
	return time.Duration(c.Health.ProbeTimeoutSeconds) * time.Second
}

func (c Config) HeartbeatInterval() time.Duration {
	return time.Duration(c.Events.HeartbeatSeconds) * time.Second
}

// LimitFor returns the per-window request budget for an identity: the
// per-credential override when present, otherwise the configured default
// for the identity kind.
func (c Config) LimitFor(identity Identity) int {
	if identity.RateLimit > 0 {
		return identity.RateLimit
	}
	if identity.Kind == IdentityAdmin {
		return c.RateLimit.AdminLimit
	}
	return c.RateLimit.DefaultLimit
}
