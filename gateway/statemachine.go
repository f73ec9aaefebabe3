package gateway

import "fmt"

// Config is the explicit, caller-supplied configuration threaded through
// run_bot (§6, §9 — "no ambient mutable state").
type Config struct {
	// StopOnFatalCode escalates disconnectBot on a fatal close code
	// instead of looping reconnects (§3, §7.4).
	StopOnFatalCode bool

	// BufferSize sizes the websocket event channel (§4.1).
	BufferSize int

	// MaxFrameSize bounds inbound text/binary frames; default
	// DefaultMaxFrameSize when zero (§4.1, §6).
	MaxFrameSize int64
}

func (c Config) withDefaults() Config {
	if c.BufferSize <= 0 {
		c.BufferSize = 64
	}
	if c.MaxFrameSize <= 0 {
		c.MaxFrameSize = DefaultMaxFrameSize
	}
	return c
}

// stepInput is the closed input variant C4's step function accepts: a
// websocket event (§3). Decoded payloads are not fed in directly by
// callers — step decodes `message` itself and recurses, per §4.4's table.
type stepInput interface {
	isStepInput()
}

// ConnectInput models the websocket event `connect`.
type ConnectInput struct{}

// MessageInput models the websocket event `message(text)`.
type MessageInput struct{ Text []byte }

// ErrorInput models the websocket event `error(err)`.
type ErrorInput struct{ Err error }

// DisconnectInput models the websocket event `disconnect(code, msg)`.
type DisconnectInput struct {
	Code int
	Msg  string
}

func (ConnectInput) isStepInput()    {}
func (MessageInput) isStepInput()    {}
func (ErrorInput) isStepInput()      {}
func (DisconnectInput) isStepInput() {}

// step is C4: the pure transition function. Same (shard, input, cfg) always
// yields an identical (shard', effects) — it performs no I/O and mutates
// neither shard nor its arguments (§4.4, §8).
func step(shard *Shard, input stepInput, cfg Config) (*Shard, []Effect) {
	switch in := input.(type) {
	case ConnectInput:
		return stepConnect(shard)
	case DisconnectInput:
		return stepDisconnect(shard, in.Code, in.Msg, cfg)
	case ErrorInput:
		return shard, []Effect{{Kind: EffectError, Err: in.Err}}
	case MessageInput:
		return stepMessage(shard, in.Text, cfg)
	default:
		return shard, nil
	}
}

func stepConnect(shard *Shard) (*Shard, []Effect) {
	if shard.shouldResume() {
		return shard, []Effect{{Kind: EffectResume}}
	}
	return shard, []Effect{{Kind: EffectIdentify}}
}

func stepDisconnect(shard *Shard, code int, msg string, cfg Config) (*Shard, []Effect) {
	// A disconnect arriving for a shard that already recorded a close
	// (awaiting its reconnect effect to be applied) is a duplicate/
	// already-dead event: no further transition (§4.4 table).
	if shard.StopCodeSet {
		return shard, nil
	}

	next := shard.clone()
	next.StopCodeSet = true
	next.StopCode = code
	next.DisconnectMsg = msg

	switch {
	case isReshardCode(code):
		return next, []Effect{{Kind: EffectReshard}}
	case isFatalCode(code) && cfg.StopOnFatalCode:
		return next, []Effect{{Kind: EffectDisconnectBot}}
	default:
		return next, []Effect{{Kind: EffectReconnect}}
	}
}

func stepMessage(shard *Shard, text []byte, cfg Config) (*Shard, []Effect) {
	p, err := decodePayload(text)
	if err != nil {
		return shard, []Effect{{Kind: EffectError, Err: err}}
	}
	return stepPayload(shard, p, cfg)
}

func stepPayload(shard *Shard, p Payload, cfg Config) (*Shard, []Effect) {
	switch p.Op {
	case OpHello:
		hello, err := decodeHello(p)
		if err != nil {
			return shard, []Effect{{Kind: EffectError, Err: err}}
		}
		return shard, []Effect{{Kind: EffectStartHeartbeat, IntervalMs: hello.HeartbeatIntervalMs}}

	case OpHeartbeat:
		return shard, []Effect{{Kind: EffectSendHeartbeat}}

	case OpHeartbeatAck:
		next := shard.clone()
		next.Ack = true
		return next, nil

	case OpReconnect:
		return shard, []Effect{{Kind: EffectReconnect}}

	case OpInvalidSession:
		if _, err := decodeInvalidSession(p); err != nil {
			return shard, []Effect{{Kind: EffectError, Err: err}}
		}
		next := shard.clone()
		next.SessionID = ""
		next.Seq = 0
		next.SeqSet = false
		next.InvalidSession = true
		return next, []Effect{{Kind: EffectReconnect}}

	case OpDispatch:
		next := shard.clone()
		if p.S != nil {
			next.Seq = *p.S
			next.SeqSet = true
		}
		if sid := extractSessionID(p.D); sid != "" {
			next.SessionID = sid
		}
		return next, []Effect{{Kind: EffectDiscordEvent, EventType: p.T, EventPayload: p.D, Seq: next.Seq}}

	default:
		return shard, []Effect{{Kind: EffectError, Err: fmt.Errorf("unknown gateway op %d", p.Op)}}
	}
}

// dispatchSessionID extracts a session_id carried by a dispatch payload
// (e.g. READY, RESUMED), without interpreting the dispatch's type — the
// core treats dispatch bodies opaquely (§1 Non-goals) except for this one
// structurally-necessary field, absent which resume could never work.
type dispatchSessionID struct {
	SessionID string `json:"session_id"`
}

func extractSessionID(payload []byte) string {
	var d dispatchSessionID
	if err := json.Unmarshal(payload, &d); err != nil {
		return ""
	}
	return d.SessionID
}
