package webhooks

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	glog "github.com/goliatone/go-logger/glog"
	"github.com/goliatone/go-registry/core"
)

const (
	// HeaderSignature carries hex(HMAC-SHA256(secret, body)) prefixed with
	// the scheme so receivers can rotate algorithms later.
	HeaderSignature = "X-Registry-Signature"
	HeaderEvent     = "X-Registry-Event"

	signatureScheme = "sha256="

	defaultDeliveryTimeout  = 10 * time.Second
	defaultFailureThreshold = 10
)

type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

type Config struct {
	// Store is the dispatcher's own handle, never shared with the one
	// serving the in-flight request that published the event.
	Store            core.WebhookStore
	HTTPClient       HTTPDoer
	Timeout          time.Duration
	FailureThreshold int
	Logger           core.Logger
	Now              func() time.Time
}

// Dispatcher consumes published events and POSTs them to matching
// registered webhooks, one attempt per webhook per event.
type Dispatcher struct {
	store     core.WebhookStore
	client    HTTPDoer
	threshold int
	logger    core.Logger
	now       func() time.Time

	wg sync.WaitGroup
}

func NewDispatcher(cfg Config) *Dispatcher {
	client := cfg.HTTPClient
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultDeliveryTimeout
		}
		client = &http.Client{Timeout: timeout}
	}
	threshold := cfg.FailureThreshold
	if threshold <= 0 {
		threshold = defaultFailureThreshold
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Dispatcher{
		store:     cfg.Store,
		client:    client,
		threshold: threshold,
		logger:    glog.Ensure(cfg.Logger),
		now:       now,
	}
}

// Sign computes the delivery signature for a payload.
func Sign(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks a received signature header value against the
// payload, accepting it with or without the scheme prefix.
func VerifySignature(payload []byte, secret string, signature string) bool {
	signature = strings.TrimPrefix(strings.TrimSpace(signature), signatureScheme)
	expected := Sign(payload, secret)
	return hmac.Equal([]byte(expected), []byte(signature))
}

type deliveryPayload struct {
	Event     string         `json:"event"`
	Data      map[string]any `json:"data,omitempty"`
	Timestamp string         `json:"timestamp"`
}

// EncodePayload serializes the delivery body for one event.
func EncodePayload(event core.Event) ([]byte, error) {
	return json.Marshal(deliveryPayload{
		Event:     event.Type,
		Data:      event.Payload,
		Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
	})
}

// Dispatch fans one event out to every active webhook whose filter matches.
// Deliveries run in their own goroutines; the call returns as soon as they
// are launched. Failures are recorded against the webhook, never surfaced
// to the publisher.
func (d *Dispatcher) Dispatch(ctx context.Context, event core.Event) {
	if d == nil || d.store == nil {
		return
	}
	hooks, err := d.store.ListActive(ctx)
	if err != nil {
		d.logger.Error("webhook listing failed, event not delivered",
			"event", event.Type,
			"error", err,
		)
		return
	}

	payload, err := EncodePayload(event)
	if err != nil {
		d.logger.Error("webhook payload encoding failed",
			"event", event.Type,
			"error", err,
		)
		return
	}

	for _, hook := range hooks {
		if !hook.Matches(event.Type) {
			continue
		}
		hook := hook
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			// Deliveries outlive the originating request on purpose.
			d.deliver(context.WithoutCancel(ctx), hook, event.Type, payload)
		}()
	}
}

// Wait blocks until all in-flight deliveries finish. Used by shutdown and
// tests.
func (d *Dispatcher) Wait() {
	if d == nil {
		return
	}
	d.wg.Wait()
}

// Run consumes a subscriber until the context ends, dispatching every
// non-synthetic event. This is how the dispatcher attaches to the bus.
func (d *Dispatcher) Run(ctx context.Context, next func(context.Context) (core.Event, error)) error {
	if d == nil || next == nil {
		return nil
	}
	for {
		event, err := next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		if core.ValidateEventType(event.Type) != nil {
			continue
		}
		d.Dispatch(ctx, event)
	}
}

func (d *Dispatcher) deliver(ctx context.Context, hook core.Webhook, eventType string, payload []byte) {
	err := d.post(ctx, hook, eventType, payload)
	at := d.now().UTC()
	if err == nil {
		if recordErr := d.store.RecordSuccess(ctx, hook.ID, at); recordErr != nil {
			d.logger.Error("webhook success bookkeeping failed",
				"webhook_id", hook.ID,
				"error", recordErr,
			)
		}
		return
	}

	d.logger.Warn("webhook delivery failed",
		"webhook_id", hook.ID,
		"target_url", hook.TargetURL,
		"event", eventType,
		"error", err,
	)
	updated, recordErr := d.store.RecordFailure(ctx, hook.ID, d.threshold, at)
	if recordErr != nil {
		d.logger.Error("webhook failure bookkeeping failed",
			"webhook_id", hook.ID,
			"error", recordErr,
		)
		return
	}
	if !updated.Active {
		d.logger.Warn("webhook disabled after consecutive failures",
			"webhook_id", hook.ID,
			"failure_count", updated.FailureCount,
		)
	}
}

func (d *Dispatcher) post(ctx context.Context, hook core.Webhook, eventType string, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, hook.TargetURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("webhooks: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderSignature, signatureScheme+Sign(payload, hook.Secret))
	req.Header.Set(HeaderEvent, eventType)

	res, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhooks: post: %w", err)
	}
	defer res.Body.Close()
	if res.StatusCode < http.StatusOK || res.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("webhooks: target returned status %d", res.StatusCode)
	}
	return nil
}
