package strategies

import (
	"bytes"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"smartmonitor/pkg/solana/logstream"
	"smartmonitor/pkg/solana/pumpfun"
	"smartmonitor/pkg/solana/txlookup"
)

func testKey(b byte) solana.PublicKey {
	return solana.PublicKeyFromBytes(bytes.Repeat([]byte{b}, 32))
}

var (
	walletA = testKey(1)
	walletB = testKey(2)
	mintX   = testKey(10)
	mintY   = testKey(11)
)

func f64(v float64) *float64 { return &v }
func bp(v bool) *bool        { return &v }

// trade builds an event swapping lamports for tokenUnits.
func trade(user, mint solana.PublicKey, isBuy bool, lamports, tokenUnits uint64) pumpfun.TradeEvent {
	return pumpfun.TradeEvent{
		Mint:                 mint,
		User:                 user,
		IsBuy:                isBuy,
		SolAmount:            lamports,
		TokenAmount:          tokenUnits,
		Timestamp:            1700000000,
		VirtualSolReserves:   30_000_000_000,
		VirtualTokenReserves: 1_000_000_000_000_000,
	}
}

func entry(sig string, lines ...string) logstream.LogEntry {
	return logstream.LogEntry{Signature: sig, Slot: 1, Logs: lines}
}

func buyEntry(sig string, events ...pumpfun.TradeEvent) logstream.LogEntry {
	return entry(sig, pumpfun.InstructionBuyLog, pumpfun.ProgramDataLine(events...))
}

func sellEntry(sig string, events ...pumpfun.TradeEvent) logstream.LogEntry {
	return entry(sig, pumpfun.InstructionSellLog, pumpfun.ProgramDataLine(events...))
}

type fakeStream struct {
	address   string
	entries   chan logstream.LogEntry
	err       error
	closeOnce sync.Once
	closed    chan struct{}
}

func newFakeStream() *fakeStream {
	return &fakeStream{
		entries: make(chan logstream.LogEntry),
		closed:  make(chan struct{}),
	}
}

func (s *fakeStream) Entries() <-chan logstream.LogEntry { return s.entries }
func (s *fakeStream) Err() error                         { return s.err }

func (s *fakeStream) Close() error {
	s.closeOnce.Do(func() { close(s.closed) })
	return nil
}

// send delivers e or fails the test when the task stops reading.
func (s *fakeStream) send(t *testing.T, e logstream.LogEntry) {
	t.Helper()
	select {
	case s.entries <- e:
	case <-time.After(2 * time.Second):
		t.Fatalf("entry %s not consumed", e.Signature)
	}
}

// fail ends the stream with err.
func (s *fakeStream) fail(err error) {
	s.err = err
	close(s.entries)
}

type fakeSubscriber struct {
	mu     sync.Mutex
	calls  map[string]int
	open   func(address string, attempt int) (*fakeStream, error)
	opened chan *fakeStream
}

func newFakeSubscriber(open func(address string, attempt int) (*fakeStream, error)) *fakeSubscriber {
	if open == nil {
		open = func(string, int) (*fakeStream, error) { return newFakeStream(), nil }
	}
	return &fakeSubscriber{
		calls:  make(map[string]int),
		open:   open,
		opened: make(chan *fakeStream, 64),
	}
}

func (f *fakeSubscriber) Subscribe(_ context.Context, address string) (Stream, error) {
	f.mu.Lock()
	f.calls[address]++
	n := f.calls[address]
	f.mu.Unlock()

	s, err := f.open(address, n)
	if err != nil {
		return nil, err
	}
	s.address = address
	f.opened <- s
	return s, nil
}

func (f *fakeSubscriber) Calls(address string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[address]
}

func (f *fakeSubscriber) next(t *testing.T) *fakeStream {
	t.Helper()
	select {
	case s := <-f.opened:
		return s
	case <-time.After(2 * time.Second):
		t.Fatal("no subscription opened")
		return nil
	}
}

type mockLookup struct {
	mock.Mock
}

func (m *mockLookup) GetTransaction(ctx context.Context, signature string) (*txlookup.TransactionMeta, error) {
	args := m.Called(ctx, signature)
	meta, _ := args.Get(0).(*txlookup.TransactionMeta)
	return meta, args.Error(1)
}

type mockTracker struct {
	mock.Mock
}

func (m *mockTracker) RecordTrackedMint(ctx context.Context, mint, owner, ruleName string) error {
	args := m.Called(ctx, mint, owner, ruleName)
	return args.Error(0)
}

type harness struct {
	engine *Engine
	sub    *fakeSubscriber
	alerts ChannelSink
	hook   *test.Hook
	cancel context.CancelFunc
	done   chan error
	once   sync.Once
}

func startEngine(t *testing.T, sub *fakeSubscriber, rules []MonitorRule, opts ...Option) *harness {
	t.Helper()
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	alerts := make(ChannelSink, 16)

	all := append([]Option{
		WithSink(alerts),
		WithLogger(logger),
		WithBackoff(5*time.Millisecond, 20*time.Millisecond),
	}, opts...)
	e, err := NewEngine(sub, rules, all...)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	h := &harness{engine: e, sub: sub, alerts: alerts, hook: hook, cancel: cancel, done: make(chan error, 1)}
	go func() { h.done <- e.Run(ctx) }()
	t.Cleanup(h.stop)
	return h
}

func (h *harness) stop() {
	h.once.Do(func() {
		h.cancel()
		select {
		case <-h.done:
		case <-time.After(5 * time.Second):
			panic("engine did not stop")
		}
	})
}

func (h *harness) alert(t *testing.T) Alert {
	t.Helper()
	select {
	case a := <-h.alerts:
		return a
	case <-time.After(2 * time.Second):
		t.Fatal("expected an alert")
		return Alert{}
	}
}

func (h *harness) noAlert(t *testing.T) {
	t.Helper()
	select {
	case a := <-h.alerts:
		t.Fatalf("unexpected alert: %+v", a)
	case <-time.After(50 * time.Millisecond):
	}
}

// sync round-trips an empty entry so everything sent before it has been
// fully processed.
func (s *fakeStream) sync(t *testing.T) {
	s.send(t, entry("sync"))
}
