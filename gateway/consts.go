package gateway

import (
	jsoniter "github.com/json-iterator/go"
)

// VERSION of shardgate, following Semantic Versioning.
const VERSION = "0.1.0"

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Gateway opcodes, as carried in the "op" field of every frame (§3, §6).
const (
	OpDispatch       = 0
	OpHeartbeat      = 1
	OpIdentify       = 2
	OpResume         = 6
	OpReconnect      = 7
	OpInvalidSession = 9
	OpHello          = 10
	OpHeartbeatAck   = 11
)

type void struct{}

// newSessionCodes are close codes after which resuming is impossible; the
// shard must fully re-identify (§3 close-code classes).
var newSessionCodes = map[int]void{
	4003: {},
	4004: {},
	4007: {},
	4009: {},
}

// fatalCodes, when stopOnFatalCode is enabled, escalate to disconnectBot
// rather than reconnecting (§3, §7).
var fatalCodes = map[int]void{
	4001: {},
	4002: {},
	4003: {},
	4004: {},
	4005: {},
	4008: {},
	4010: {},
}

// reshardCodes direct the coordinator to tear down and rebuild every shard.
var reshardCodes = map[int]void{
	4011: {},
}

func isNewSessionCode(code int) bool {
	_, ok := newSessionCodes[code]
	return ok
}

func isFatalCode(code int) bool {
	_, ok := fatalCodes[code]
	return ok
}

func isReshardCode(code int) bool {
	_, ok := reshardCodes[code]
	return ok
}

// DefaultMaxFrameSize bounds the text/binary frame size the websocket
// driver accepts, overridable via Config (§4.1, §6).
const DefaultMaxFrameSize = 4 << 20 // 4 MiB

// identifyStagger is the delay between successive shards' initial connect,
// respecting the platform's one-identify-per-5s-per-bot limit (§4.7 step 3).
const identifyStagger = 5 * 1000 // milliseconds
