package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/sandwichrt/shardgate/client"
)

// ErrNoGatewayURL is returned when a /gateway/bot response decodes without
// error but carries no url — treated as a failed discovery (§4.2).
var ErrNoGatewayURL = errors.New("discover gateway: response missing url")

// APIVersion is the gateway wire-protocol version appended to the
// discovered URL before dialing (§4.7 step 1).
const APIVersion = "10"

// gatewayBotPath is the relative endpoint client.Client resolves against
// its configured host/scheme/API-version, grounded on the teacher's
// EndpointGatewayBot (session.go), restated as the relative path
// client.Client.HandleRequest expects.
const gatewayBotPath = "/gateway/bot"

// SessionStartLimit mirrors the teacher's SessionLimits (structs.go),
// trimmed to the fields C2 actually consults.
type SessionStartLimit struct {
	Total          int `json:"total"`
	Remaining      int `json:"remaining"`
	ResetAfterMs   int `json:"reset_after"`
	MaxConcurrency int `json:"max_concurrency"`
}

// GatewayBotResponse is C2's decode target (§4.7 step 1, D3). Grounded on
// the teacher's GatewayBotResponse (structs.go), re-expressed with the
// package's jsoniter var instead of encoding/json.
type GatewayBotResponse struct {
	URL          string            `json:"url"`
	ShardCount   int               `json:"shards"`
	SessionLimit SessionStartLimit `json:"session_start_limit"`
}

// discoverGateway implements C2: one HTTPS GET via the shared REST client
// (D3), no retry at this layer — retry/backoff is the caller's concern
// (§4.7 step 1). Adapted from the teacher's Manager.Gateway (manager.go),
// routed through client.Client.FetchJSON instead of a bare http.Request so
// discovery shares the same auth/user-agent wiring as the rest of D3.
func discoverGateway(ctx context.Context, rest *client.Client) (GatewayBotResponse, error) {
	var out GatewayBotResponse
	if err := rest.FetchJSON(ctx, http.MethodGet, gatewayBotPath, nil, &out); err != nil {
		return GatewayBotResponse{}, fmt.Errorf("discover gateway: %w", err)
	}
	if out.URL == "" {
		return GatewayBotResponse{}, ErrNoGatewayURL
	}
	return out, nil
}

// dialURL appends the wire-protocol version and encoding query params the
// gateway expects, grounded on the teacher's sessions.go gatewayURL
// construction.
func dialURL(base string) string {
	return base + "?v=" + APIVersion + "&encoding=json"
}

// defaultHTTPClient is used when a host doesn't supply its own (D3).
func defaultHTTPClient() *http.Client {
	return &http.Client{Timeout: 10 * time.Second}
}
