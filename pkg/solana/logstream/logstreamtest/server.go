// Package logstreamtest provides an in-process logsSubscribe endpoint for
// tests.
package logstreamtest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Request is a decoded logsSubscribe request.
type Request struct {
	JSONRPC string            `json:"jsonrpc"`
	ID      int               `json:"id"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
}

// Server accepts websocket connections and answers logsSubscribe.
type Server struct {
	URL string

	srv    *httptest.Server
	conns  chan *Conn
	nextID atomic.Uint64

	mu        sync.Mutex
	rejectErr map[string]interface{}
	accepted  int
}

// NewServer starts a server that is closed with the test.
func NewServer(t testing.TB) *Server {
	t.Helper()
	s := &Server{conns: make(chan *Conn, 64)}
	s.nextID.Store(1000)
	s.srv = httptest.NewServer(http.HandlerFunc(s.handle))
	s.URL = "ws" + strings.TrimPrefix(s.srv.URL, "http")
	t.Cleanup(s.Close)
	return s
}

// Reject makes every following subscription fail with a JSON-RPC error.
// A zero code restores normal behaviour.
func (s *Server) Reject(code int, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if code == 0 {
		s.rejectErr = nil
		return
	}
	s.rejectErr = map[string]interface{}{"code": code, "message": message}
}

// Accepted reports how many subscriptions were confirmed.
func (s *Server) Accepted() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.accepted
}

// Next waits for the next confirmed subscription.
func (s *Server) Next(t testing.TB, timeout time.Duration) *Conn {
	t.Helper()
	select {
	case c := <-s.conns:
		return c
	case <-time.After(timeout):
		t.Fatalf("no subscription within %s", timeout)
		return nil
	}
}

func (s *Server) Close() {
	s.srv.CloseClientConnections()
	s.srv.Close()
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer ws.Close()

	_, msg, err := ws.ReadMessage()
	if err != nil {
		return
	}
	var req Request
	if err := json.Unmarshal(msg, &req); err != nil || req.Method != "logsSubscribe" {
		return
	}

	s.mu.Lock()
	rejectErr := s.rejectErr
	s.mu.Unlock()

	if rejectErr != nil {
		ws.WriteJSON(map[string]interface{}{"jsonrpc": "2.0", "id": req.ID, "error": rejectErr})
		return
	}

	subID := s.nextID.Add(1)
	if err := ws.WriteJSON(map[string]interface{}{"jsonrpc": "2.0", "id": req.ID, "result": subID}); err != nil {
		return
	}

	c := &Conn{ws: ws, Request: req, SubscriptionID: subID, closed: make(chan struct{})}
	if len(req.Params) > 0 {
		var filter struct {
			Mentions []string `json:"mentions"`
		}
		if json.Unmarshal(req.Params[0], &filter) == nil && len(filter.Mentions) > 0 {
			c.Address = filter.Mentions[0]
		}
	}
	s.mu.Lock()
	s.accepted++
	s.mu.Unlock()
	s.conns <- c

	defer close(c.closed)
	for {
		if _, _, err := ws.ReadMessage(); err != nil {
			return
		}
	}
}

// Conn is the server side of one accepted subscription.
type Conn struct {
	Address        string
	Request        Request
	SubscriptionID uint64

	ws     *websocket.Conn
	mu     sync.Mutex
	closed chan struct{}
}

// SendLogs pushes a successful logsNotification.
func (c *Conn) SendLogs(slot uint64, signature string, logs ...string) error {
	return c.send(slot, signature, nil, logs)
}

// SendFailed pushes a notification whose err field is set.
func (c *Conn) SendFailed(slot uint64, signature string, txErr interface{}, logs ...string) error {
	return c.send(slot, signature, txErr, logs)
}

// SendRaw writes frame verbatim as a text message.
func (c *Conn) SendRaw(frame string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ws.WriteMessage(websocket.TextMessage, []byte(frame))
}

// Drop closes the underlying connection without a close handshake.
func (c *Conn) Drop() error {
	return c.ws.UnderlyingConn().Close()
}

// Closed is closed when the client side has gone away.
func (c *Conn) Closed() <-chan struct{} {
	return c.closed
}

func (c *Conn) send(slot uint64, signature string, txErr interface{}, logs []string) error {
	if logs == nil {
		logs = []string{}
	}
	frame := map[string]interface{}{
		"jsonrpc": "2.0",
		"method":  "logsNotification",
		"params": map[string]interface{}{
			"subscription": c.SubscriptionID,
			"result": map[string]interface{}{
				"context": map[string]interface{}{"slot": slot},
				"value": map[string]interface{}{
					"signature": signature,
					"err":       txErr,
					"logs":      logs,
				},
			},
		},
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ws.WriteJSON(frame)
}
