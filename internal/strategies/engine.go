package strategies

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"

	"smartmonitor/pkg/solana/logstream"
	"smartmonitor/pkg/solana/txlookup"
)

const (
	DefaultBackoffInitial = time.Second
	DefaultBackoffMax     = 30 * time.Second

	// DefaultLookupTimeout bounds one in-task transaction lookup, retries
	// included.
	DefaultLookupTimeout = 2 * time.Second
	// DefaultTrackerDrain is how long Run waits for pending tracked mint
	// records on shutdown before cancelling them.
	DefaultTrackerDrain = 2 * time.Second

	trackTimeout = 5 * time.Second
)

var ErrEngineRunning = errors.New("engine already running")

// Stream is one log subscription consumed by a rule task.
type Stream interface {
	Entries() <-chan logstream.LogEntry
	Err() error
	Close() error
}

// LogSubscriber opens a fresh Stream for an address.
type LogSubscriber interface {
	Subscribe(ctx context.Context, address string) (Stream, error)
}

// StreamClient adapts *logstream.Client to LogSubscriber.
type StreamClient struct {
	Client *logstream.Client
}

func (c StreamClient) Subscribe(ctx context.Context, address string) (Stream, error) {
	sub, err := c.Client.Subscribe(ctx, address)
	if err != nil {
		return nil, err
	}
	return sub, nil
}

// TransactionLookup fetches authoritative transaction metadata.
type TransactionLookup interface {
	GetTransaction(ctx context.Context, signature string) (*txlookup.TransactionMeta, error)
}

// MintTracker remembers which mints a rule has started tracking.
type MintTracker interface {
	RecordTrackedMint(ctx context.Context, mint, owner, ruleName string) error
}

// Metrics receives engine counters. All methods must be safe for
// concurrent use.
type Metrics interface {
	TaskStarted(kind string)
	TaskStopped(kind string)
	EntryProcessed(kind string)
	DecodeFailed(kind string)
	AlertEmitted(kind string)
	Resubscribed(kind string)
}

type noopMetrics struct{}

func (noopMetrics) TaskStarted(string)    {}
func (noopMetrics) TaskStopped(string)    {}
func (noopMetrics) EntryProcessed(string) {}
func (noopMetrics) DecodeFailed(string)   {}
func (noopMetrics) AlertEmitted(string)   {}
func (noopMetrics) Resubscribed(string)   {}

// Option configures an Engine.
type Option func(*Engine)

func WithSink(s AlertSink) Option {
	return func(e *Engine) { e.sink = s }
}

func WithPriceOracle(o PriceOracle) Option {
	return func(e *Engine) { e.oracle = o }
}

func WithLookup(l TransactionLookup) Option {
	return func(e *Engine) { e.lookup = l }
}

func WithTracker(t MintTracker) Option {
	return func(e *Engine) { e.tracker = t }
}

func WithMetrics(m Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

func WithLogger(l *log.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithBackoff sets the resubscribe delay bounds.
func WithBackoff(initial, max time.Duration) Option {
	return func(e *Engine) {
		e.backoffInitial = initial
		e.backoffMax = max
	}
}

// WithLookupTimeout bounds each transaction lookup made by a rule task.
func WithLookupTimeout(d time.Duration) Option {
	return func(e *Engine) { e.lookupTimeout = d }
}

// WithTrackerDrain sets how long shutdown waits for pending tracked mint
// records.
func WithTrackerDrain(d time.Duration) Option {
	return func(e *Engine) { e.trackerDrain = d }
}

// WithMaxAttempts stops a rule task after n consecutive failed
// subscriptions. Zero retries forever.
func WithMaxAttempts(n int) Option {
	return func(e *Engine) { e.maxAttempts = n }
}

// Engine runs one evaluation task per configured rule.
type Engine struct {
	subscriber LogSubscriber
	rules      atomic.Pointer[RuleSet]

	sink    AlertSink
	oracle  PriceOracle
	lookup  TransactionLookup
	tracker MintTracker
	metrics Metrics
	logger  *log.Logger
	now     func() time.Time

	backoffInitial time.Duration
	backoffMax     time.Duration
	maxAttempts    int
	lookupTimeout  time.Duration
	trackerDrain   time.Duration

	reloadCh chan struct{}
	running  atomic.Bool

	// tasks is owned by the Run goroutine.
	tasks    map[string]*taskHandle
	trackCtx context.Context
	trackWG  sync.WaitGroup
}

type taskHandle struct {
	rule   MonitorRule
	cancel context.CancelFunc
	done   chan struct{}
}

// NewEngine validates rules and prepares an engine. Nothing runs until Run.
func NewEngine(subscriber LogSubscriber, rules []MonitorRule, opts ...Option) (*Engine, error) {
	set, err := NewRuleSet(rules)
	if err != nil {
		return nil, err
	}
	e := &Engine{
		subscriber:     subscriber,
		sink:           LogSink{},
		oracle:         TradePriceOracle{},
		metrics:        noopMetrics{},
		logger:         log.StandardLogger(),
		now:            time.Now,
		backoffInitial: DefaultBackoffInitial,
		backoffMax:     DefaultBackoffMax,
		lookupTimeout:  DefaultLookupTimeout,
		trackerDrain:   DefaultTrackerDrain,
		trackCtx:       context.Background(),
		reloadCh:       make(chan struct{}, 1),
		tasks:          make(map[string]*taskHandle),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.backoffMax < e.backoffInitial {
		e.backoffMax = e.backoffInitial
	}
	if e.lookupTimeout <= 0 {
		e.lookupTimeout = DefaultLookupTimeout
	}
	e.rules.Store(set)
	return e, nil
}

// Rules returns the active rule snapshot.
func (e *Engine) Rules() []MonitorRule {
	return e.rules.Load().Rules()
}

// Reload replaces the whole rule set. Tasks of rules that disappeared are
// stopped and tasks for new rules started; unchanged rules keep running
// with their state.
func (e *Engine) Reload(rules []MonitorRule) error {
	set, err := NewRuleSet(rules)
	if err != nil {
		return err
	}
	e.rules.Store(set)
	select {
	case e.reloadCh <- struct{}{}:
	default:
	}
	return nil
}

// Run starts the rule tasks and blocks until ctx is cancelled and every
// task has returned.
func (e *Engine) Run(ctx context.Context) error {
	if !e.running.CompareAndSwap(false, true) {
		return ErrEngineRunning
	}
	defer e.running.Store(false)

	trackCtx, cancelTrack := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelTrack()
	e.trackCtx = trackCtx

	e.logger.WithFields(log.Fields{"rules": e.rules.Load().Len()}).Info("Rule engine starting")
	e.reconcile(ctx)

	for {
		select {
		case <-ctx.Done():
			e.stopAll()
			e.drainTracks(cancelTrack)
			e.logger.Info("Rule engine stopped")
			return nil
		case <-e.reloadCh:
			e.reconcile(ctx)
		}
	}
}

func (e *Engine) reconcile(ctx context.Context) {
	want := e.rules.Load().byKey()

	var stopped, started int
	for key, h := range e.tasks {
		if _, ok := want[key]; ok {
			continue
		}
		h.cancel()
		<-h.done
		delete(e.tasks, key)
		stopped++
	}

	for key, rule := range want {
		if _, ok := e.tasks[key]; ok {
			continue
		}
		e.tasks[key] = e.start(ctx, rule)
		started++
	}

	if stopped > 0 || started > 0 {
		e.logger.WithFields(log.Fields{
			"started": started,
			"stopped": stopped,
			"active":  len(e.tasks),
		}).Info("Rule set applied")
	}
}

func (e *Engine) start(parent context.Context, rule MonitorRule) *taskHandle {
	ctx, cancel := context.WithCancel(parent)
	h := &taskHandle{rule: rule, cancel: cancel, done: make(chan struct{})}
	t := newRuleTask(e, rule)

	go func() {
		defer close(h.done)
		e.metrics.TaskStarted(string(rule.Kind))
		defer e.metrics.TaskStopped(string(rule.Kind))
		t.run(ctx)
	}()
	return h
}

func (e *Engine) stopAll() {
	for _, h := range e.tasks {
		h.cancel()
	}
	for key, h := range e.tasks {
		<-h.done
		delete(e.tasks, key)
	}
}

// drainTracks waits up to trackerDrain for pending records, then cancels
// the rest and waits for them to return.
func (e *Engine) drainTracks(cancel context.CancelFunc) {
	done := make(chan struct{})
	go func() {
		e.trackWG.Wait()
		close(done)
	}()
	timer := time.NewTimer(e.trackerDrain)
	defer timer.Stop()
	select {
	case <-done:
	case <-timer.C:
		e.logger.Warn("Cancelling pending tracked mint records")
		cancel()
		<-done
	}
}

// trackMint records a tracked mint without blocking the caller. Records
// outlive the rule task but not the engine.
func (e *Engine) trackMint(entry *log.Entry, mint, owner, ruleName string) {
	if e.tracker == nil {
		return
	}
	e.trackWG.Add(1)
	go func() {
		defer e.trackWG.Done()
		tctx, cancel := context.WithTimeout(e.trackCtx, trackTimeout)
		defer cancel()
		if err := e.tracker.RecordTrackedMint(tctx, mint, owner, ruleName); err != nil {
			entry.WithFields(log.Fields{
				"mint":  mint,
				"error": err.Error(),
			}).Warn("Failed to record tracked mint")
		}
	}()
}
