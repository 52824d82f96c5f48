package events

import (
	"context"
	"errors"
	"sync"
	"time"

	glog "github.com/goliatone/go-logger/glog"
	"github.com/goliatone/go-registry/core"
)

const (
	// EventWarning is the synthetic type a subscriber receives after its
	// queue overran. It carries the number of dropped events.
	EventWarning = "warning"

	// EventHeartbeat is the synthetic keep-alive type. Heartbeats flow
	// through the same per-subscriber queue as real events.
	EventHeartbeat = "heartbeat"
)

var ErrSubscriberClosed = errors.New("events: subscriber is closed")

type Config struct {
	// Buffer caps each subscriber's queue. Zero uses the default of 256.
	Buffer int
	// Heartbeat is the keep-alive interval for Run. Zero uses 15s.
	Heartbeat time.Duration
	Logger    core.Logger
	Now       func() time.Time
}

// Bus fans events out to live subscribers. Publish never blocks: a full
// subscriber queue drops its oldest entry and the subscriber is told how
// many it lost. Events are ephemeral; the bus holds no history.
type Bus struct {
	mu          sync.Mutex
	subscribers map[*Subscriber]struct{}
	buffer      int
	heartbeat   time.Duration
	logger      core.Logger
	now         func() time.Time
}

func NewBus(cfg Config) *Bus {
	buffer := cfg.Buffer
	if buffer <= 0 {
		buffer = 256
	}
	heartbeat := cfg.Heartbeat
	if heartbeat <= 0 {
		heartbeat = 15 * time.Second
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Bus{
		subscribers: map[*Subscriber]struct{}{},
		buffer:      buffer,
		heartbeat:   heartbeat,
		logger:      glog.Ensure(cfg.Logger),
		now:         now,
	}
}

var _ core.Publisher = (*Bus)(nil)

// Publish delivers one event to every live subscriber. Slow subscribers
// lose their oldest queued event instead of stalling the publisher.
func (b *Bus) Publish(event core.Event) {
	if b == nil {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = b.now().UTC()
	}

	b.mu.Lock()
	targets := make([]*Subscriber, 0, len(b.subscribers))
	for sub := range b.subscribers {
		targets = append(targets, sub)
	}
	b.mu.Unlock()

	for _, sub := range targets {
		if dropped := sub.push(event); dropped {
			b.logger.Warn("subscriber queue overran, oldest event dropped",
				"event", event.Type,
			)
		}
	}
}

// Subscribe registers a new subscriber with its own bounded queue.
func (b *Bus) Subscribe() *Subscriber {
	sub := &Subscriber{
		bus:   b,
		queue: make(chan core.Event, b.buffer),
	}
	b.mu.Lock()
	b.subscribers[sub] = struct{}{}
	b.mu.Unlock()
	return sub
}

// SubscriberCount reports the number of live subscribers.
func (b *Bus) SubscriberCount() int {
	if b == nil {
		return 0
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subscribers)
}

// Run emits heartbeat events on the configured interval until the context
// is canceled. Heartbeats share the subscriber queue with real events, so
// an idle but connected consumer keeps receiving traffic.
func (b *Bus) Run(ctx context.Context) error {
	if b == nil {
		return nil
	}
	ticker := time.NewTicker(b.heartbeat)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			b.Publish(core.Event{
				Type:      EventHeartbeat,
				Timestamp: b.now().UTC(),
			})
		}
	}
}

func (b *Bus) remove(sub *Subscriber) {
	if b == nil {
		return
	}
	b.mu.Lock()
	delete(b.subscribers, sub)
	b.mu.Unlock()
}

// Subscriber is one bounded event queue. Not safe for concurrent Next
// calls; each consumer owns exactly one subscriber.
type Subscriber struct {
	bus    *Bus
	queue  chan core.Event
	mu     sync.Mutex
	drops  int
	closed bool
}

// push enqueues an event, dropping the oldest queued entry when full.
// Returns true when a drop happened.
func (s *Subscriber) push(event core.Event) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	dropped := false
	for {
		select {
		case s.queue <- event:
			return dropped
		default:
		}
		select {
		case <-s.queue:
			s.drops++
			dropped = true
		default:
		}
	}
}

// Next blocks for the next event. After an overrun, the first call returns
// a single warning event carrying the number of dropped events before
// resuming normal delivery.
func (s *Subscriber) Next(ctx context.Context) (core.Event, error) {
	if s == nil {
		return core.Event{}, ErrSubscriberClosed
	}
	if ctx == nil {
		ctx = context.Background()
	}

	s.mu.Lock()
	if s.drops > 0 {
		dropped := s.drops
		s.drops = 0
		s.mu.Unlock()
		return core.Event{
			Type: EventWarning,
			Payload: map[string]any{
				"message": "events_lost",
				"dropped": dropped,
			},
			Timestamp: s.bus.now().UTC(),
		}, nil
	}
	s.mu.Unlock()

	select {
	case <-ctx.Done():
		return core.Event{}, ctx.Err()
	case event, ok := <-s.queue:
		if !ok {
			return core.Event{}, ErrSubscriberClosed
		}
		return event, nil
	}
}

// Close unregisters the subscriber and unblocks a pending Next. Events
// already queued drain before Next starts reporting ErrSubscriberClosed.
func (s *Subscriber) Close() {
	if s == nil {
		return
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	close(s.queue)
	s.mu.Unlock()
	if s.bus != nil {
		s.bus.remove(s)
	}
}
