package gateway

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	ws "github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingServer upgrades one connection and forwards every frame it
// receives onto received, without echoing anything back — enough to
// observe what the runner sends on connect.
func recordingServer(t *testing.T) (*httptest.Server, chan []byte) {
	t.Helper()
	received := make(chan []byte, 16)
	upgrader := ws.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			received <- data
		}
	}))
	return srv, received
}

func TestRunShard_IdentifiesOnConnect(t *testing.T) {
	srv, received := recordingServer(t)
	defer srv.Close()

	control := make(chan controlMessage, 1)
	stop := make(chan struct{})
	shard := newShard(1, 2, "tok", zerolog.Nop())
	shard.controlInbox = control
	shard.stopSignal = stop

	results := make(chan RunResult, 16)
	go runShard(wsURL(srv), shard, Config{}, NullSessionStore{}, results)

	control <- controlMessage{kind: controlConnect}

	select {
	case data := <-received:
		p, err := decodePayload(data)
		require.NoError(t, err)
		assert.Equal(t, OpIdentify, p.Op)
	case <-time.After(2 * time.Second):
		t.Fatal("expected the runner to send an identify frame")
	}

	// Drain the shard-state update the identify control produced so
	// closing stop below isn't racing a still-buffering results send.
	select {
	case <-results:
	case <-time.After(time.Second):
		t.Fatal("expected a RunResult after the connect control")
	}

	close(stop)

	select {
	case res := <-results:
		assert.Nil(t, res.Shard, "runner should report shard=nil on stop_signal")
	case <-time.After(time.Second):
		t.Fatal("expected the runner to exit after stop_signal")
	}
}

func TestApplyControl_SendFrame(t *testing.T) {
	srv, received := recordingServer(t)
	defer srv.Close()

	handle, err := dialWebsocket(context.Background(), wsURL(srv), 8, DefaultMaxFrameSize)
	require.NoError(t, err)
	defer handle.close()
	<-handle.events // connect

	shard := newShard(0, 1, "tok", zerolog.Nop())
	shard.ws = handle
	shard.eventInbox = handle.events

	applyControl(shard, controlMessage{kind: controlSendFrame, frame: []byte(`{"hello":"world"}`)}, "", Config{})

	select {
	case data := <-received:
		assert.JSONEq(t, `{"hello":"world"}`, string(data))
	case <-time.After(time.Second):
		t.Fatal("expected the sendFrame command to reach the server")
	}
}
