package gateway

import (
	encjson "encoding/json"
	"runtime"
)

// Payload is the tagged variant decoded from every inbound gateway frame
// (§3). Op selects which of the remaining fields is meaningful.
type Payload struct {
	Op int                `json:"op"`
	D  encjson.RawMessage `json:"d"`
	S  *int64             `json:"s,omitempty"`
	T  string             `json:"t,omitempty"`
}

// Hello is the payload carried by op 10.
type Hello struct {
	HeartbeatIntervalMs int64 `json:"heartbeat_interval"`
}

// InvalidSession is the payload carried by op 9: whether the session can
// still be resumed.
type InvalidSession struct {
	Resumable bool `json:"d"`
}

// identifyProperties is the nested `properties` object of an identify frame.
type identifyProperties struct {
	OS      string `json:"$os"`
	Browser string `json:"$browser"`
	Device  string `json:"$device"`
}

// identifyFrame is the op 2 outbound frame (§4.3, §6).
type identifyFrame struct {
	Op int `json:"op"`
	D  struct {
		Token          string             `json:"token"`
		Properties     identifyProperties `json:"properties"`
		Compress       bool               `json:"compress"`
		LargeThreshold int                `json:"large_threshold"`
		Shard          [2]int             `json:"shard"`
	} `json:"d"`
}

// resumeFrame is the op 6 outbound frame.
type resumeFrame struct {
	Op int `json:"op"`
	D  struct {
		Token     string `json:"token"`
		SessionID string `json:"session_id"`
		Seq       int64  `json:"seq"`
	} `json:"d"`
}

// heartbeatFrame is the op 1 outbound frame. Seq is nil until the shard has
// observed its first dispatch.
type heartbeatFrame struct {
	Op int    `json:"op"`
	D  *int64 `json:"d"`
}

func newIdentifyFrame(token string, shardID, shardCount int) identifyFrame {
	f := identifyFrame{Op: OpIdentify}
	f.D.Token = token
	f.D.Properties = identifyProperties{
		OS:      runtime.GOOS,
		Browser: "shardgate",
		Device:  "shardgate",
	}
	f.D.Compress = false
	f.D.LargeThreshold = 50
	f.D.Shard = [2]int{shardID, shardCount}
	return f
}

func newResumeFrame(token, sessionID string, seq int64) resumeFrame {
	f := resumeFrame{Op: OpResume}
	f.D.Token = token
	f.D.SessionID = sessionID
	f.D.Seq = seq
	return f
}

func newHeartbeatFrame(seq *int64) heartbeatFrame {
	return heartbeatFrame{Op: OpHeartbeat, D: seq}
}
