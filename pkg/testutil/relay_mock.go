package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/KashirApp/Kashir-sub002/internal/relay"
)

// ReqFrame is one decoded subscription request received by the mock relay.
type ReqFrame struct {
	Sub    string
	Raw    []json.RawMessage
	Filter relay.Filter // zero when the request payload is not a plain filter
}

// RequestHandler scripts the mock relay's response to one REQ frame.
type RequestHandler func(conn *MockConn, req ReqFrame)

// MockRelay is an in-process websocket server speaking the subscription
// protocol, for driving relay and cache clients in tests.
type MockRelay struct {
	server   *httptest.Server
	upgrader websocket.Upgrader

	mu       sync.Mutex
	requests []ReqFrame

	// Handler scripts responses. The default serves Events matching the
	// request filter followed by EOSE.
	Handler RequestHandler

	// Events served by the default handler.
	Events []relay.Event
}

// NewMockRelay starts a mock relay server.
func NewMockRelay() *MockRelay {
	m := &MockRelay{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
	m.server = httptest.NewServer(http.HandlerFunc(m.handleWebSocket))
	return m
}

// URL returns the websocket URL of the mock relay.
func (m *MockRelay) URL() string {
	return strings.Replace(m.server.URL, "http://", "ws://", 1)
}

// Close shuts down the mock relay.
func (m *MockRelay) Close() {
	m.server.Close()
}

// Requests returns a copy of all REQ frames received so far.
func (m *MockRelay) Requests() []ReqFrame {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]ReqFrame(nil), m.requests...)
}

// RequestCount returns how many REQ frames the relay has received.
func (m *MockRelay) RequestCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

func (m *MockRelay) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := m.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	mc := &MockConn{conn: conn}
	defer conn.Close()

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			return
		}

		var frame []json.RawMessage
		if err := json.Unmarshal(payload, &frame); err != nil || len(frame) == 0 {
			continue
		}
		var label string
		if err := json.Unmarshal(frame[0], &label); err != nil {
			continue
		}

		switch label {
		case "REQ":
			if len(frame) < 2 {
				continue
			}
			req := ReqFrame{Raw: frame}
			json.Unmarshal(frame[1], &req.Sub)
			if len(frame) >= 3 {
				json.Unmarshal(frame[2], &req.Filter)
			}

			m.mu.Lock()
			m.requests = append(m.requests, req)
			m.mu.Unlock()

			if m.Handler != nil {
				m.Handler(mc, req)
			} else {
				m.serveDefault(mc, req)
			}

		case "CLOSE":
			// Subscription teardown; nothing to do.

		default:
		}
	}
}

func (m *MockRelay) serveDefault(conn *MockConn, req ReqFrame) {
	sent := 0
	for _, evt := range m.Events {
		if !matches(req.Filter, evt) {
			continue
		}
		if req.Filter.Limit > 0 && sent >= req.Filter.Limit {
			break
		}
		conn.SendEvent(req.Sub, evt)
		sent++
	}
	conn.SendEOSE(req.Sub)
}

func matches(f relay.Filter, evt relay.Event) bool {
	if len(f.IDs) > 0 && !contains(f.IDs, evt.ID) {
		return false
	}
	if len(f.Authors) > 0 && !contains(f.Authors, evt.Pubkey) {
		return false
	}
	if len(f.Kinds) > 0 && !containsInt(f.Kinds, evt.Kind) {
		return false
	}
	return true
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

func containsInt(list []int, v int) bool {
	for _, n := range list {
		if n == v {
			return true
		}
	}
	return false
}

// MockConn wraps one server-side connection for scripted responses.
type MockConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

// SendEvent writes an EVENT frame for sub.
func (c *MockConn) SendEvent(sub string, evt relay.Event) {
	c.writeJSON([]interface{}{"EVENT", sub, evt})
}

// SendJSONEvent writes an EVENT frame with an arbitrary payload.
func (c *MockConn) SendJSONEvent(sub string, payload interface{}) {
	c.writeJSON([]interface{}{"EVENT", sub, payload})
}

// SendEOSE writes an end-of-stored-events frame for sub.
func (c *MockConn) SendEOSE(sub string) {
	c.writeJSON([]interface{}{"EOSE", sub})
}

// SendNotice writes a NOTICE frame.
func (c *MockConn) SendNotice(msg string) {
	c.writeJSON([]interface{}{"NOTICE", msg})
}

// SendRaw writes an arbitrary frame.
func (c *MockConn) SendRaw(frame ...interface{}) {
	c.writeJSON(frame)
}

// SendText writes a raw text message, bypassing frame encoding.
func (c *MockConn) SendText(payload string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.WriteMessage(websocket.TextMessage, []byte(payload))
}

// Drop closes the connection without completing the exchange.
func (c *MockConn) Drop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.Close()
}

func (c *MockConn) writeJSON(v interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.WriteJSON(v)
}
