package ersatz

import (
	"bytes"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// Message is a WebSocket frame to send. Type is websocket.TextMessage or
// websocket.BinaryMessage.
type Message struct {
	Type    int
	Payload []byte
}

// TextMessage builds a text frame.
func TextMessage(s string) Message { return Message{Type: websocket.TextMessage, Payload: []byte(s)} }

// BinaryMessage builds a binary frame.
func BinaryMessage(b []byte) Message { return Message{Type: websocket.BinaryMessage, Payload: b} }

// WebSocketExpectation describes the behaviour of one WebSocket path: the
// messages sent when a client connects and the inbound messages expected,
// each with optional reactions.
type WebSocketExpectation struct {
	path      string
	connected atomic.Bool
	waiter    Waiter

	mu        sync.RWMutex
	onConnect []Message
	messages  []*MessageExpectation
}

func newWebSocketExpectation(path string, waiter Waiter) *WebSocketExpectation {
	return &WebSocketExpectation{path: path, waiter: waiter}
}

// Path returns the WebSocket path.
func (w *WebSocketExpectation) Path() string { return w.path }

// SendOnConnect queues a message sent as soon as a client connects.
func (w *WebSocketExpectation) SendOnConnect(msg Message) *WebSocketExpectation {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onConnect = append(w.onConnect, msg)
	return w
}

// Receives expects an inbound message whose payload satisfies p.
func (w *WebSocketExpectation) Receives(p Predicate[[]byte]) *MessageExpectation {
	m := &MessageExpectation{predicate: p, verifier: AtLeast(1)}
	w.mu.Lock()
	w.messages = append(w.messages, m)
	w.mu.Unlock()
	return m
}

// ReceivesText expects an inbound message with exactly the given payload.
func (w *WebSocketExpectation) ReceivesText(s string) *MessageExpectation {
	return w.Receives(PredicateFunc(fmt.Sprintf("equal to %q", s), func(b []byte) bool {
		return bytes.Equal(b, []byte(s))
	}))
}

// Connected reports whether a client has connected to the path.
func (w *WebSocketExpectation) Connected() bool { return w.connected.Load() }

// Satisfied reports whether a client connected and every message expectation
// holds.
func (w *WebSocketExpectation) Satisfied() bool {
	if !w.Connected() {
		return false
	}
	w.mu.RLock()
	defer w.mu.RUnlock()
	for _, m := range w.messages {
		if !m.Satisfied() {
			return false
		}
	}
	return true
}

// Verify waits up to timeout for Satisfied to hold.
func (w *WebSocketExpectation) Verify(timeout time.Duration) bool {
	if timeout <= 0 {
		timeout = DefaultVerifyTimeout
	}
	return w.waiter.AwaitTrue(w.Satisfied, timeout)
}

func (w *WebSocketExpectation) String() string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	parts := make([]string, len(w.messages))
	for i, m := range w.messages {
		parts[i] = m.String()
	}
	return fmt.Sprintf("WEBSOCKET %s (connected: %t, messages: [%s])",
		w.path, w.Connected(), strings.Join(parts, "; "))
}

func (w *WebSocketExpectation) match(payload []byte) *MessageExpectation {
	w.mu.RLock()
	defer w.mu.RUnlock()
	for _, m := range w.messages {
		if m.predicate.Test(payload) {
			return m
		}
	}
	return nil
}

func (w *WebSocketExpectation) connectMessages() []Message {
	w.mu.RLock()
	defer w.mu.RUnlock()
	out := make([]Message, len(w.onConnect))
	copy(out, w.onConnect)
	return out
}

// MessageExpectation is an expected inbound WebSocket message. By default it
// must be received at least once.
type MessageExpectation struct {
	predicate Predicate[[]byte]
	calls     atomic.Int64

	mu       sync.RWMutex
	verifier Predicate[int]
	replies  []Message
}

// Reply queues a message sent back every time this message is received.
func (m *MessageExpectation) Reply(msg Message) *MessageExpectation {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.replies = append(m.replies, msg)
	return m
}

// Called sets the receive-count condition.
func (m *MessageExpectation) Called(p Predicate[int]) *MessageExpectation {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.verifier = p
	return m
}

// Times expects exactly count receipts.
func (m *MessageExpectation) Times(count int) *MessageExpectation { return m.Called(Times(count)) }

// CallCount returns how many matching messages were received.
func (m *MessageExpectation) CallCount() int { return int(m.calls.Load()) }

// Satisfied reports whether the receive count satisfies the verifier.
func (m *MessageExpectation) Satisfied() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.verifier.Test(m.CallCount())
}

func (m *MessageExpectation) String() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return fmt.Sprintf("message %s (received: %d, expected: %s)", m.predicate, m.CallCount(), m.verifier)
}

func (m *MessageExpectation) record() []Message {
	m.calls.Add(1)
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Message, len(m.replies))
	copy(out, m.replies)
	return out
}

// serveWebSocket upgrades the connection and runs the message loop until the
// client disconnects.
func serveWebSocket(upgrader *websocket.Upgrader, ws *WebSocketExpectation, w http.ResponseWriter, r *http.Request, logger zerolog.Logger) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Error().Err(err).Str("path", ws.path).Msg("websocket upgrade failed")
		return
	}
	defer func() {
		if cerr := conn.Close(); cerr != nil {
			logger.Debug().Err(cerr).Str("path", ws.path).Msg("websocket close")
		}
	}()
	ws.connected.Store(true)
	logger.Debug().Str("path", ws.path).Msg("websocket connected")

	for _, msg := range ws.connectMessages() {
		if err := conn.WriteMessage(msg.Type, msg.Payload); err != nil {
			logger.Error().Err(err).Str("path", ws.path).Msg("failed to send on-connect message")
			return
		}
	}
	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Debug().Err(err).Str("path", ws.path).Msg("websocket read ended")
			}
			return
		}
		m := ws.match(payload)
		if m == nil {
			logger.Warn().Str("path", ws.path).Bytes("payload", payload).Msg("unexpected websocket message")
			continue
		}
		for _, reply := range m.record() {
			if err := conn.WriteMessage(reply.Type, reply.Payload); err != nil {
				logger.Error().Err(err).Str("path", ws.path).Msg("failed to send websocket reply")
				return
			}
		}
	}
}
