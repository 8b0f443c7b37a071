package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/tutorhub/tutor-hub/internal/domain/shared"
)

// Publisher is the subset of Cache the forwarder needs.
type Publisher interface {
	Publish(ctx context.Context, channel string, payload []byte) error
}

// EventForwarder publishes event envelopes to per-type channels.
// It satisfies messaging.Forwarder.
type EventForwarder struct {
	pub Publisher
}

// NewEventForwarder creates a forwarder.
func NewEventForwarder(pub Publisher) *EventForwarder {
	return &EventForwarder{pub: pub}
}

// Forward publishes env to tutorhub:events:<type>.
func (f *EventForwarder) Forward(ctx context.Context, env shared.EventEnvelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCacheSerialization, err)
	}
	return f.pub.Publish(ctx, EventChannel(string(env.Type)), data)
}
