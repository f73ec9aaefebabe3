package gateway

import "github.com/rs/zerolog"

// Shard is the §3 data-model record: per-connection state, mutated only by
// the shard's own runner (C5), plus the channel handles that wire it to its
// websocket, heartbeat, host control-plane, and stop signal.
type Shard struct {
	ID    int
	Count int
	Token string

	SessionID      string
	Seq            int64
	SeqSet         bool
	Ack            bool
	InvalidSession bool

	StopCode      int
	StopCodeSet   bool
	DisconnectMsg string

	log zerolog.Logger

	ws            *websocketHandle
	eventInbox    <-chan wsEvent
	heartbeatTick chan struct{}
	heartbeatDone chan struct{}
	controlInbox  <-chan controlMessage
	stopSignal    <-chan struct{}
}

// controlMessage is a host-originated command sent on Shard.controlInbox
// (§4.5, §6): connect drives the initial/re-connect handshake, sendFrame
// lets a host push an arbitrary outbound frame (e.g. a presence update)
// through the same priority-ordered path as every other shard command.
type controlMessage struct {
	kind  controlKind
	frame []byte
}

type controlKind int

const (
	controlConnect controlKind = iota
	controlSendFrame
)

// newShard constructs a fresh Shard record. Ack starts true per §3: a shard
// that has never sent a heartbeat has nothing unacknowledged.
func newShard(id, count int, token string, log zerolog.Logger) *Shard {
	return &Shard{
		ID:    id,
		Count: count,
		Token: token,
		Ack:   true,
		log:   log.With().Int("shard", id).Logger(),
	}
}

// shouldResume implements §4.4's should_resume predicate.
func (s *Shard) shouldResume() bool {
	return s.StopCodeSet && !isNewSessionCode(s.StopCode) && s.SessionID != "" && s.SeqSet
}

// clone returns a shallow copy of s with its value fields, used so that
// C4's step function can return a new shard' without mutating its input
// (step is specified as pure: same (shard, input) yields identical output).
func (s *Shard) clone() *Shard {
	cp := *s
	return &cp
}
