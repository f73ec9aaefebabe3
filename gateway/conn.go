package gateway

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/gorilla/websocket"
)

// wsEventKind tags the websocket-event variant of §3.
type wsEventKind int

const (
	evConnect wsEventKind = iota
	evMessage
	evError
	evDisconnect
)

// wsEvent is emitted by websocketHandle in the order: one evConnect, then
// any mix of evMessage/evError, terminated by exactly one evDisconnect
// (§4.1).
type wsEvent struct {
	kind wsEventKind
	text []byte
	err  error
	code int
	msg  string
}

// websocketHandle is C1: it opens a framed text-message connection and
// emits lifecycle events on a channel. Adapted from the teacher's
// Connection, generalized to the event-sink contract spec.md §4.1 requires
// instead of a blocking Read/Write pair.
type websocketHandle struct {
	conn *websocket.Conn

	events chan wsEvent

	writeMu   sync.Mutex
	closeOnce sync.Once
	closed    bool
	closedMu  sync.Mutex
}

// dialWebsocket implements connect(url, buffer_size) -> Handle (§4.1). TLS
// endpoint identification is left at gorilla/websocket's secure default: no
// InsecureSkipVerify is ever set.
func dialWebsocket(ctx context.Context, url string, bufferSize int, maxFrameSize int64) (*websocketHandle, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial websocket: %w", err)
	}
	conn.SetReadLimit(maxFrameSize)

	h := &websocketHandle{
		conn:   conn,
		events: make(chan wsEvent, bufferSize),
	}
	go h.pump()
	return h, nil
}

func (h *websocketHandle) pump() {
	h.events <- wsEvent{kind: evConnect}

	for {
		mt, data, err := h.conn.ReadMessage()
		if err != nil {
			code, msg := closeInfo(err)
			h.events <- wsEvent{kind: evDisconnect, code: code, msg: msg}
			close(h.events)
			return
		}

		switch mt {
		case websocket.TextMessage:
			h.events <- wsEvent{kind: evMessage, text: data}
		default:
			h.events <- wsEvent{kind: evError, err: fmt.Errorf("unexpected frame type %d", mt)}
		}
	}
}

func closeInfo(err error) (code int, msg string) {
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		return ce.Code, ce.Text
	}
	return websocket.CloseAbnormalClosure, err.Error()
}

// sendText implements send_text(s); fails if the handle is already closed.
func (h *websocketHandle) sendText(data []byte) error {
	h.writeMu.Lock()
	defer h.writeMu.Unlock()

	h.closedMu.Lock()
	closed := h.closed
	h.closedMu.Unlock()
	if closed {
		return errors.New("send on closed websocket")
	}

	return h.conn.WriteMessage(websocket.TextMessage, data)
}

// close implements close(); idempotent, causes a disconnect event via the
// pump goroutine if the connection was still open (§4.1).
func (h *websocketHandle) close() error {
	var err error
	h.closeOnce.Do(func() {
		h.closedMu.Lock()
		h.closed = true
		h.closedMu.Unlock()

		h.writeMu.Lock()
		deadline := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = h.conn.WriteMessage(websocket.CloseMessage, deadline)
		h.writeMu.Unlock()

		err = h.conn.Close()
	})
	return err
}
