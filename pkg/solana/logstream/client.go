package logstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
)

// State is the lifecycle position of a Subscription.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateSubscribed
	StateStreaming
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateSubscribed:
		return "subscribed"
	case StateStreaming:
		return "streaming"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

const (
	CommitmentConfirmed = "confirmed"

	subscribeRequestID = 1
)

// Frame outcomes reported to an Observer.
const (
	FrameEntry     = "entry"
	FrameMalformed = "malformed"
	FrameFailedTx  = "failed_tx"
	FrameIgnored   = "ignored"
)

// Observer receives one call per inbound streaming frame.
type Observer interface {
	ObserveFrame(address, outcome string)
}

// Config controls connection and stream behaviour. Zero fields fall back
// to DefaultConfig values.
type Config struct {
	// BufferSize bounds the entry queue; the reader blocks when it is full.
	BufferSize       int
	Commitment       string
	HandshakeTimeout time.Duration
	SubscribeTimeout time.Duration
	WriteTimeout     time.Duration
	// PingInterval enables keepalive pings; PongWait is the read deadline
	// extended by every pong or inbound frame. Both must be set.
	PingInterval time.Duration
	PongWait     time.Duration
}

func DefaultConfig() *Config {
	return &Config{
		BufferSize:       1000,
		Commitment:       CommitmentConfirmed,
		HandshakeTimeout: 10 * time.Second,
		SubscribeTimeout: 10 * time.Second,
		WriteTimeout:     5 * time.Second,
		PingInterval:     30 * time.Second,
		PongWait:         75 * time.Second,
	}
}

func (c *Config) withDefaults() Config {
	d := DefaultConfig()
	if c == nil {
		return *d
	}
	out := *c
	if out.BufferSize <= 0 {
		out.BufferSize = d.BufferSize
	}
	if out.Commitment == "" {
		out.Commitment = d.Commitment
	}
	if out.HandshakeTimeout <= 0 {
		out.HandshakeTimeout = d.HandshakeTimeout
	}
	if out.SubscribeTimeout <= 0 {
		out.SubscribeTimeout = d.SubscribeTimeout
	}
	if out.WriteTimeout <= 0 {
		out.WriteTimeout = d.WriteTimeout
	}
	return out
}

// Client opens log subscriptions against one streaming endpoint.
type Client struct {
	endpoint string
	cfg      Config
	dialer   *websocket.Dialer
	observer Observer
}

// NewClient creates a client for a Solana websocket endpoint.
func NewClient(endpoint string, cfg *Config) *Client {
	c := cfg.withDefaults()
	return &Client{
		endpoint: endpoint,
		cfg:      c,
		dialer: &websocket.Dialer{
			Proxy:            websocket.DefaultDialer.Proxy,
			HandshakeTimeout: c.HandshakeTimeout,
		},
	}
}

// SetObserver installs a frame observer. Call before Subscribe.
func (c *Client) SetObserver(o Observer) {
	c.observer = o
}

// Endpoint returns the websocket endpoint URL.
func (c *Client) Endpoint() string {
	return c.endpoint
}

// LogEntry is one logsNotification payload for a successful transaction.
type LogEntry struct {
	Signature string   `json:"signature"`
	Slot      uint64   `json:"slot"`
	Logs      []string `json:"logs"`
}

type subscribeRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      int           `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcResponse struct {
	ID     *int            `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

type notification struct {
	Method string `json:"method"`
	Params *struct {
		Subscription uint64 `json:"subscription"`
		Result       *struct {
			Context struct {
				Slot uint64 `json:"slot"`
			} `json:"context"`
			Value *struct {
				Signature string          `json:"signature"`
				Err       json.RawMessage `json:"err"`
				Logs      []string        `json:"logs"`
			} `json:"value"`
		} `json:"result"`
	} `json:"params"`
}

// Subscription is a single logsSubscribe stream. It is not restartable:
// once Entries is closed a new Subscription must be opened.
type Subscription struct {
	address  string
	conn     *websocket.Conn
	cfg      Config
	observer Observer

	entries chan LogEntry
	state   atomic.Int32
	id      uint64

	writeMu   sync.Mutex
	done      chan struct{}
	closeOnce sync.Once
	finished  chan struct{}

	errMu sync.Mutex
	err   error
}

// Subscribe connects, sends one logsSubscribe request mentioning address
// and waits for its confirmation. The returned Subscription streams until
// the transport fails, ctx is cancelled or Close is called.
func (c *Client) Subscribe(ctx context.Context, address string) (*Subscription, error) {
	pubkey, err := solana.PublicKeyFromBase58(address)
	if err != nil {
		return nil, &SubscriptionError{Address: address, Message: fmt.Sprintf("invalid address: %v", err)}
	}

	sub := &Subscription{
		address:  pubkey.String(),
		cfg:      c.cfg,
		observer: c.observer,
		entries:  make(chan LogEntry, c.cfg.BufferSize),
		done:     make(chan struct{}),
		finished: make(chan struct{}),
	}
	sub.setState(StateConnecting)

	conn, _, err := c.dialer.DialContext(ctx, c.endpoint, nil)
	if err != nil {
		sub.setState(StateDisconnected)
		return nil, &TransportError{Op: "dial", Err: err}
	}
	sub.conn = conn

	if err := sub.handshake(ctx); err != nil {
		conn.Close()
		var subErr *SubscriptionError
		if errors.As(err, &subErr) {
			sub.setState(StateFailed)
		} else {
			sub.setState(StateDisconnected)
		}
		return nil, err
	}

	log.WithFields(log.Fields{
		"address":         sub.address,
		"subscription_id": sub.id,
	}).Info("Log subscription confirmed")

	sub.setState(StateStreaming)
	if c.cfg.PingInterval > 0 && c.cfg.PongWait > 0 {
		conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
		})
		go sub.pingLoop()
	}
	go sub.readLoop()
	go func() {
		select {
		case <-ctx.Done():
			sub.Close()
		case <-sub.finished:
		}
	}()

	return sub, nil
}

func (s *Subscription) handshake(ctx context.Context) error {
	s.setState(StateSubscribed)

	req := subscribeRequest{
		JSONRPC: "2.0",
		ID:      subscribeRequestID,
		Method:  "logsSubscribe",
		Params: []interface{}{
			map[string][]string{"mentions": {s.address}},
			map[string]string{"commitment": s.cfg.Commitment},
		},
	}
	if err := s.writeJSON(req); err != nil {
		return &TransportError{Op: "subscribe", Err: err}
	}

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			s.conn.Close()
		case <-stop:
		}
	}()

	deadline := time.Now().Add(s.cfg.SubscribeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	s.conn.SetReadDeadline(deadline)
	defer s.conn.SetReadDeadline(time.Time{})

	for {
		_, msg, err := s.conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return &TransportError{Op: "subscribe", Err: err}
		}

		var resp rpcResponse
		if err := json.Unmarshal(msg, &resp); err != nil {
			return &SubscriptionError{Address: s.address, Message: fmt.Sprintf("malformed handshake frame: %v", err)}
		}
		if resp.ID == nil || *resp.ID != subscribeRequestID {
			continue
		}
		if resp.Error != nil {
			return &SubscriptionError{Address: s.address, Code: resp.Error.Code, Message: resp.Error.Message}
		}
		if err := json.Unmarshal(resp.Result, &s.id); err != nil {
			return &SubscriptionError{Address: s.address, Message: fmt.Sprintf("unexpected subscription result %s", string(resp.Result))}
		}
		return nil
	}
}

func (s *Subscription) readLoop() {
	var exitErr error
	defer func() {
		if exitErr != nil {
			s.errMu.Lock()
			s.err = exitErr
			s.errMu.Unlock()
		}
		s.setState(StateDisconnected)
		s.conn.Close()
		close(s.entries)
		close(s.finished)
	}()

	for {
		_, msg, err := s.conn.ReadMessage()
		if err != nil {
			if !s.closing() {
				exitErr = &TransportError{Op: "read", Err: err}
				log.WithFields(log.Fields{
					"address": s.address,
					"error":   err.Error(),
				}).Warn("Log stream disconnected")
			}
			return
		}
		if s.cfg.PongWait > 0 && s.cfg.PingInterval > 0 {
			s.conn.SetReadDeadline(time.Now().Add(s.cfg.PongWait))
		}

		entry, ok := s.parseFrame(msg)
		if !ok {
			continue
		}

		select {
		case s.entries <- entry:
		case <-s.done:
			return
		}
	}
}

func (s *Subscription) parseFrame(msg []byte) (LogEntry, bool) {
	var n notification
	if err := json.Unmarshal(msg, &n); err != nil {
		s.observe(FrameMalformed)
		log.WithFields(log.Fields{
			"address": s.address,
			"error":   err.Error(),
		}).Warn("Discarding malformed frame")
		return LogEntry{}, false
	}

	if n.Params == nil || n.Params.Result == nil || n.Params.Result.Value == nil {
		s.observe(FrameIgnored)
		log.WithFields(log.Fields{
			"address": s.address,
			"method":  n.Method,
		}).Debug("Ignoring non-notification frame")
		return LogEntry{}, false
	}

	v := n.Params.Result.Value
	if v.Signature == "" {
		s.observe(FrameMalformed)
		log.WithFields(log.Fields{
			"address": s.address,
		}).Warn("Discarding notification without signature")
		return LogEntry{}, false
	}
	if len(v.Err) > 0 && string(v.Err) != "null" {
		s.observe(FrameFailedTx)
		log.WithFields(log.Fields{
			"address":   s.address,
			"signature": v.Signature,
			"error":     string(v.Err),
		}).Warn("Discarding failed transaction")
		return LogEntry{}, false
	}

	s.observe(FrameEntry)
	return LogEntry{
		Signature: v.Signature,
		Slot:      n.Params.Result.Context.Slot,
		Logs:      v.Logs,
	}, true
}

func (s *Subscription) pingLoop() {
	ticker := time.NewTicker(s.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-s.finished:
			return
		case <-ticker.C:
			s.writeMu.Lock()
			err := s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(s.cfg.WriteTimeout))
			s.writeMu.Unlock()
			if err != nil {
				log.WithFields(log.Fields{
					"address": s.address,
					"error":   err.Error(),
				}).Debug("Ping failed")
				return
			}
		}
	}
}

func (s *Subscription) writeJSON(v interface{}) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
	return s.conn.WriteJSON(v)
}

func (s *Subscription) observe(outcome string) {
	if s.observer != nil {
		s.observer.ObserveFrame(s.address, outcome)
	}
}

func (s *Subscription) closing() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

func (s *Subscription) setState(st State) {
	s.state.Store(int32(st))
}

// Entries delivers log entries in arrival order. It is closed when the
// stream ends.
func (s *Subscription) Entries() <-chan LogEntry {
	return s.entries
}

// Err returns the *TransportError that ended the stream, or nil when the
// stream was closed locally or is still running.
func (s *Subscription) Err() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.err
}

// State reports the current lifecycle state.
func (s *Subscription) State() State {
	return State(s.state.Load())
}

// ID is the server-assigned subscription id.
func (s *Subscription) ID() uint64 {
	return s.id
}

// Address is the mentioned account of this subscription.
func (s *Subscription) Address() string {
	return s.address
}

// Done is closed once the reader has stopped and Entries is closed.
func (s *Subscription) Done() <-chan struct{} {
	return s.finished
}

// Close unsubscribes, closes the connection and waits for the reader to
// stop. Safe to call more than once and from any goroutine.
func (s *Subscription) Close() error {
	s.closeOnce.Do(func() {
		close(s.done)

		s.writeMu.Lock()
		deadline := time.Now().Add(s.cfg.WriteTimeout)
		s.conn.SetWriteDeadline(deadline)
		s.conn.WriteJSON(subscribeRequest{
			JSONRPC: "2.0",
			ID:      subscribeRequestID + 1,
			Method:  "logsUnsubscribe",
			Params:  []interface{}{s.id},
		})
		s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
		s.writeMu.Unlock()

		s.conn.Close()
	})
	<-s.finished
	return nil
}
