package bus

import (
	"context"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/stan.go"
	"github.com/vmihailenco/msgpack"

	"github.com/sandwichrt/shardgate/gateway"
)

// Envelope is the msgpack envelope every event is wrapped in before
// publication, identical in shape to the teacher's root-level StreamEvent
// (events.go) — Type tags what's inside Data for downstream consumers.
type Envelope struct {
	Type string      `msgpack:"i"`
	Data interface{} `msgpack:"d"`
}

// Event is the payload carried inside an Envelope's Data field for every
// discord_event effect C7 publishes (§3 output_sink, §4.9).
type Event struct {
	ShardID   int             `msgpack:"shard_id"`
	EventType string          `msgpack:"t"`
	Seq       int64           `msgpack:"s"`
	Payload   jsonRawMessage  `msgpack:"d"`
}

// jsonRawMessage avoids importing encoding/json into this package purely
// for the RawMessage alias; msgpack encodes a []byte as a binary blob
// either way, so plain []byte serves the same purpose without the extra
// import.
type jsonRawMessage = []byte

// NatsBus publishes msgpack-encoded envelopes over a *nats.Conn, optionally
// layering a stan.Conn (NATS Streaming) for a durable/replayable feed when
// configured, implementing gateway.Bus (SPEC_FULL.md D2).
//
// Adapted from the teacher's Manager.NatsClient/Manager.StanClient pair
// (manager.go) and its StreamEvent msgpack envelope (events.go): the
// teacher dialed both clients inline as part of Manager setup, here they
// are constructed once by the host (cmd/shardgate) and injected.
type NatsBus struct {
	nc      *nats.Conn
	sc      stan.Conn
	subject string
}

// NewNatsBus wires a bus publishing to subject over nc, additionally
// publishing to sc (if non-nil) for a durable/replayable feed.
func NewNatsBus(nc *nats.Conn, sc stan.Conn, subject string) *NatsBus {
	if subject == "" {
		subject = "shardgate.events"
	}
	return &NatsBus{nc: nc, sc: sc, subject: subject}
}

var _ gateway.Bus = (*NatsBus)(nil)

// encodeEnvelope builds and msgpack-encodes the wire body, split out of
// Publish so it can be tested without a live nats.Conn.
func encodeEnvelope(shardID int, eventType string, seq int64, payload []byte) ([]byte, error) {
	env := Envelope{
		Type: eventType,
		Data: Event{ShardID: shardID, EventType: eventType, Seq: seq, Payload: payload},
	}
	return msgpack.Marshal(env)
}

// Publish implements gateway.Bus. ctx is accepted for interface
// conformance and future deadline propagation; nats.go's Publish itself is
// fire-and-forget and does not take a context.
func (b *NatsBus) Publish(ctx context.Context, shardID int, eventType string, seq int64, payload []byte) error {
	body, err := encodeEnvelope(shardID, eventType, seq, payload)
	if err != nil {
		return fmt.Errorf("nats bus: encode envelope: %w", err)
	}

	if err := b.nc.Publish(b.subject, body); err != nil {
		return fmt.Errorf("nats bus: publish: %w", err)
	}

	if b.sc != nil {
		if err := b.sc.Publish(b.subject, body); err != nil {
			return fmt.Errorf("nats bus: stan publish: %w", err)
		}
	}

	return nil
}
