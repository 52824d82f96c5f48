package events

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/goliatone/go-registry/core"
)

type ssePayload struct {
	Event     string         `json:"event"`
	Data      map[string]any `json:"data,omitempty"`
	Timestamp string         `json:"timestamp"`
}

// EncodeEvent renders the wire payload for one event: the event type, its
// data, and an RFC 3339 timestamp.
func EncodeEvent(event core.Event) ([]byte, error) {
	return json.Marshal(ssePayload{
		Event:     event.Type,
		Data:      event.Payload,
		Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
	})
}

// WriteEvent frames one event as a server-sent-events message. Heartbeats
// are written as comment lines so intermediaries keep the connection warm
// without clients parsing them as data.
func WriteEvent(w io.Writer, event core.Event) error {
	if event.Type == EventHeartbeat {
		return WriteHeartbeat(w)
	}
	payload, err := EncodeEvent(event)
	if err != nil {
		return fmt.Errorf("events: encode %q: %w", event.Type, err)
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Type, payload); err != nil {
		return fmt.Errorf("events: write frame: %w", err)
	}
	return nil
}

func WriteHeartbeat(w io.Writer) error {
	if _, err := io.WriteString(w, ": heartbeat\n\n"); err != nil {
		return fmt.Errorf("events: write heartbeat: %w", err)
	}
	return nil
}

// Stream pumps a subscriber into an SSE writer until the context ends or
// the subscriber closes. Each frame is flushed immediately when the writer
// supports it.
func Stream(ctx context.Context, w io.Writer, sub *Subscriber) error {
	flusher, _ := w.(interface{ Flush() })
	for {
		event, err := sub.Next(ctx)
		if err != nil {
			if err == ErrSubscriberClosed || ctx.Err() != nil {
				return nil
			}
			return err
		}
		if err := WriteEvent(w, event); err != nil {
			return err
		}
		if flusher != nil {
			flusher.Flush()
		}
	}
}
