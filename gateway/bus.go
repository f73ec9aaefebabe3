package gateway

import "context"

// Bus is the consumer-facing sink C7 owns (§3 `output_sink`, §6, D2). It
// receives every discord_event effect in order. github.com/sandwichrt/
// shardgate/bus provides a NATS/NATS-Streaming implementation; NopBus is
// the zero-config default.
type Bus interface {
	Publish(ctx context.Context, shardID int, eventType string, seq int64, payload []byte) error
}

// NopBus discards every event. Useful for tests and for hosts that supply
// their own in-process sink function instead (see SinkFunc).
type NopBus struct{}

func (NopBus) Publish(ctx context.Context, shardID int, eventType string, seq int64, payload []byte) error {
	return nil
}

// SinkFunc adapts a plain function to Bus, for hosts that want in-process
// delivery of (event_type_symbol, event_payload) pairs (§6) without a
// broker.
type SinkFunc func(shardID int, eventType string, seq int64, payload []byte)

func (f SinkFunc) Publish(ctx context.Context, shardID int, eventType string, seq int64, payload []byte) error {
	f(shardID, eventType, seq, payload)
	return nil
}
