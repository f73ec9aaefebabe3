package gateway

import "fmt"

// decodePayload maps a raw text frame to a Payload (C3, §4.3).
func decodePayload(text []byte) (Payload, error) {
	var p Payload
	if err := json.Unmarshal(text, &p); err != nil {
		return Payload{}, fmt.Errorf("decode payload: %w", err)
	}
	return p, nil
}

// decodeHello decodes the `d` field of a hello payload.
func decodeHello(p Payload) (Hello, error) {
	var h Hello
	if err := json.Unmarshal(p.D, &h); err != nil {
		return Hello{}, fmt.Errorf("decode hello: %w", err)
	}
	return h, nil
}

// decodeInvalidSession decodes the `d` field of an invalid-session payload.
// The field is a bare JSON boolean, not an object (§3, §6).
func decodeInvalidSession(p Payload) (InvalidSession, error) {
	var resumable bool
	if err := json.Unmarshal(p.D, &resumable); err != nil {
		return InvalidSession{}, fmt.Errorf("decode invalid session: %w", err)
	}
	return InvalidSession{Resumable: resumable}, nil
}

// encodeIdentify renders the op 2 identify frame (§4.3, §6).
func encodeIdentify(token string, shardID, shardCount int) ([]byte, error) {
	return json.Marshal(newIdentifyFrame(token, shardID, shardCount))
}

// encodeResume renders the op 6 resume frame.
func encodeResume(token, sessionID string, seq int64) ([]byte, error) {
	return json.Marshal(newResumeFrame(token, sessionID, seq))
}

// encodeHeartbeat renders the op 1 heartbeat frame; seq is nil until the
// shard has observed its first dispatch.
func encodeHeartbeat(seq *int64) ([]byte, error) {
	return json.Marshal(newHeartbeatFrame(seq))
}
