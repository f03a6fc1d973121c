package wsconn

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Ashwinachu030493/AIde/internal/metrics"
	"github.com/Ashwinachu030493/AIde/internal/notify"
)

// Close reasons sent to the peer.
const (
	ReasonUserClosed = "User closed connection"
	reasonReplaced   = "Replaced by new connection"
	reasonSuperseded = "Connection superseded"
)

// TerminalMessage is shown once reconnection has given up.
const TerminalMessage = "AIde connection lost. Please reload."

// ErrAborted is returned by Connect when the attempt is discarded by a later
// Close or Connect before it opens.
var ErrAborted = errors.New("connection attempt aborted")

// Config controls reconnection and timeouts.
type Config struct {
	AttemptLimit   int
	BaseDelay      time.Duration
	MaxDelay       time.Duration
	MaxJitter      time.Duration
	ConnectTimeout time.Duration
	WriteTimeout   time.Duration
}

// DefaultConfig returns the standard reconnection envelope: 5 attempts,
// 1s doubling to 30s, up to 1s of jitter.
func DefaultConfig() Config {
	return Config{
		AttemptLimit:   5,
		BaseDelay:      time.Second,
		MaxDelay:       30 * time.Second,
		MaxJitter:      time.Second,
		ConnectTimeout: 10 * time.Second,
		WriteTimeout:   10 * time.Second,
	}
}

// timer is the part of *time.Timer the manager needs.
type timer interface {
	Stop() bool
}

type handlers struct {
	onMessage func(string)
	onOpen    func()
	onError   func(error)
	onClose   func(CloseEvent)
}

// Option configures a Manager.
type Option func(*Manager)

// WithDialer sets the transport dialer. The default is CoderDialer.
func WithDialer(d Dialer) Option {
	return func(m *Manager) { m.dialer = d }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.log = l
		}
	}
}

// WithNotifier sets where the terminal notification goes.
func WithNotifier(n notify.Notifier) Option {
	return func(m *Manager) {
		if n != nil {
			m.notifier = n
		}
	}
}

// WithMetrics records connection metrics.
func WithMetrics(mc *metrics.Connection) Option {
	return func(m *Manager) { m.metrics = mc }
}

// WithReload sets the action run when the user picks "Reload" on the
// terminal notification. The default reconnects to the last URL.
func WithReload(fn func()) Option {
	return func(m *Manager) { m.reload = fn }
}

// Manager maintains one logical connection with automatic reconnection.
// All methods are safe for concurrent use. Handlers run one at a time on
// transport goroutines and may call any Manager method.
type Manager struct {
	cfg      Config
	dialer   Dialer
	backoff  Backoff
	log      *zap.Logger
	notifier notify.Notifier
	metrics  *metrics.Connection
	reload   func()

	// afterFunc schedules retries; replaced in tests.
	afterFunc func(d time.Duration, f func()) timer

	mu       sync.Mutex
	state    State
	url      string
	gen      uint64
	attempts int
	current  *attempt
	retry    timer
	h        handlers

	// dispatchMu serializes handler calls.
	dispatchMu sync.Mutex

	wg sync.WaitGroup
}

// NewManager creates an idle Manager.
func NewManager(cfg Config, opts ...Option) *Manager {
	def := DefaultConfig()
	if cfg.AttemptLimit < 0 {
		cfg.AttemptLimit = 0
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = def.BaseDelay
	}
	if cfg.MaxDelay < cfg.BaseDelay {
		cfg.MaxDelay = cfg.BaseDelay
	}
	if cfg.MaxJitter < 0 {
		cfg.MaxJitter = 0
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = def.ConnectTimeout
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}

	m := &Manager{
		cfg:      cfg,
		dialer:   CoderDialer{},
		backoff:  Backoff{Base: cfg.BaseDelay, Max: cfg.MaxDelay, Jitter: cfg.MaxJitter},
		log:      zap.NewNop(),
		notifier: notify.Discard,
		afterFunc: func(d time.Duration, f func()) timer {
			return time.AfterFunc(d, f)
		},
	}
	for _, opt := range opts {
		opt(m)
	}
	m.log = m.log.Named("wsconn")
	return m
}

// attempt is one transport lifetime: dial, open, read, close.
type attempt struct {
	gen    uint64
	url    string
	cancel context.CancelFunc

	// conn is set under Manager.mu once the dial succeeds.
	conn    Conn
	writeMu sync.Mutex

	once sync.Once
	done chan struct{}
	err  error
}

func (a *attempt) resolve(err error) {
	a.once.Do(func() {
		a.err = err
		close(a.done)
	})
}

func (a *attempt) wait(ctx context.Context) error {
	select {
	case <-a.done:
		return a.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Connect stores url as the target and opens a new transport, discarding
// any current one and cancelling a pending retry. The attempt counter
// starts over. Connect returns when this attempt opens (nil), fails before
// opening, or ctx is done. The attempt keeps running after ctx is done.
func (m *Manager) Connect(ctx context.Context, url string) error {
	if err := ValidateURL(url); err != nil {
		return err
	}

	m.mu.Lock()
	m.stopRetryLocked()
	old := m.current
	m.url = url
	m.attempts = 0
	a := m.startLocked(true)
	m.mu.Unlock()

	if old != nil {
		m.discard(old, StatusNormalClosure, reasonReplaced)
	}
	return a.wait(ctx)
}

// Reconnect calls Connect with the last target.
func (m *Manager) Reconnect(ctx context.Context) error {
	return m.Connect(ctx, m.URL())
}

// Send writes payload to the open transport. When the transport is not
// open the payload is dropped and a warning is logged.
func (m *Manager) Send(payload string) {
	m.mu.Lock()
	a := m.current
	var conn Conn
	if a != nil && m.state == StateOpen {
		conn = a.conn
	}
	state := m.state
	m.mu.Unlock()

	if conn == nil {
		m.log.Warn("cannot send, connection not open", zap.Stringer("state", state))
		m.metrics.SendDropped()
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), m.cfg.WriteTimeout)
	defer cancel()

	a.writeMu.Lock()
	err := conn.Write(ctx, payload)
	a.writeMu.Unlock()
	if err != nil {
		m.log.Warn("send failed", zap.Error(err))
		m.metrics.SendDropped()
		return
	}
	m.metrics.MessageSent()
}

// Close shuts the current transport down with a normal closure and cancels
// any scheduled reconnect. No handler fires for the transport it closes.
func (m *Manager) Close() {
	m.mu.Lock()
	m.gen++
	m.stopRetryLocked()
	a := m.current
	m.current = nil
	if m.state != StateIdle {
		m.transitionLocked(StateIdle)
	}
	m.mu.Unlock()

	if a != nil {
		m.discard(a, StatusNormalClosure, ReasonUserClosed)
	}
}

// Wait blocks until every transport goroutine has exited.
func (m *Manager) Wait() {
	m.wg.Wait()
}

// IsConnected reports whether the current transport is open.
func (m *Manager) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current != nil && m.current.conn != nil && m.state == StateOpen
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Attempts returns the number of failed reconnect attempts since the last
// successful open.
func (m *Manager) Attempts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.attempts
}

// URL returns the current target.
func (m *Manager) URL() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.url
}

// OnMessage sets the handler for inbound frames, replacing any previous one.
func (m *Manager) OnMessage(fn func(payload string)) {
	m.mu.Lock()
	m.h.onMessage = fn
	m.mu.Unlock()
}

// OnOpen sets the handler for a transport reaching the open state.
func (m *Manager) OnOpen(fn func()) {
	m.mu.Lock()
	m.h.onOpen = fn
	m.mu.Unlock()
}

// OnError sets the handler for transport errors.
func (m *Manager) OnError(fn func(err error)) {
	m.mu.Lock()
	m.h.onError = fn
	m.mu.Unlock()
}

// OnClose sets the handler for unsolicited closes.
func (m *Manager) OnClose(fn func(ev CloseEvent)) {
	m.mu.Lock()
	m.h.onClose = fn
	m.mu.Unlock()
}

// startLocked begins a new attempt under a fresh generation.
func (m *Manager) startLocked(explicit bool) *attempt {
	m.gen++
	ctx, cancel := context.WithCancel(context.Background())
	a := &attempt{
		gen:    m.gen,
		url:    m.url,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	m.current = a
	if explicit && !m.state.CanTransitionTo(StateConnecting) {
		m.setStateLocked(StateConnecting)
	} else {
		m.transitionLocked(StateConnecting)
	}
	m.metrics.AttemptStarted()

	m.wg.Add(1)
	go m.run(ctx, a)
	return a
}

func (m *Manager) isCurrentLocked(a *attempt) bool {
	return m.current == a && m.gen == a.gen
}

func (m *Manager) transitionLocked(next State) {
	if !m.state.CanTransitionTo(next) {
		m.log.Error("invalid state transition",
			zap.Stringer("from", m.state), zap.Stringer("to", next))
	}
	m.setStateLocked(next)
}

func (m *Manager) setStateLocked(next State) {
	m.log.Debug("state", zap.Stringer("from", m.state), zap.Stringer("to", next))
	m.state = next
	m.metrics.SetState(int(next))
}

func (m *Manager) stopRetryLocked() {
	if m.retry != nil {
		m.retry.Stop()
		m.retry = nil
	}
}

// discard drops a transport that is no longer current. It sends a close
// frame if the transport is open and aborts the dial otherwise.
func (m *Manager) discard(a *attempt, code StatusCode, reason string) {
	a.resolve(ErrAborted)

	m.mu.Lock()
	conn := a.conn
	m.mu.Unlock()

	if conn == nil {
		a.cancel()
		return
	}

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer a.cancel()
		if err := conn.Close(code, reason); err != nil {
			m.log.Debug("close transport", zap.Error(err))
		}
	}()
}

// run owns one attempt from dial to close.
func (m *Manager) run(ctx context.Context, a *attempt) {
	defer m.wg.Done()
	defer a.cancel()

	log := m.log.With(zap.String("url", a.url), zap.Uint64("gen", a.gen))

	dialCtx, cancel := context.WithTimeout(ctx, m.cfg.ConnectTimeout)
	conn, err := m.dialer.Dial(dialCtx, a.url)
	cancel()
	if err != nil {
		log.Warn("connect failed", zap.Error(err))
		a.resolve(err)
		m.dispatch(a, func(h handlers) {
			if h.onError != nil {
				h.onError(err)
			}
		})
		m.handleClose(a, CloseEvent{Code: StatusAbnormalClosure, Err: err})
		return
	}

	if !m.markOpen(a, conn) {
		_ = conn.Close(StatusNormalClosure, reasonSuperseded)
		return
	}
	log.Info("connected")
	a.resolve(nil)
	m.dispatch(a, func(h handlers) {
		if h.onOpen != nil {
			h.onOpen()
		}
	})

	for {
		payload, err := conn.Read(ctx)
		if err != nil {
			ev := closeEventFrom(err)
			if ev.Err != nil {
				m.dispatch(a, func(h handlers) {
					if h.onError != nil {
						h.onError(err)
					}
				})
			}
			m.handleClose(a, ev)
			return
		}
		m.metrics.MessageReceived()
		m.dispatch(a, func(h handlers) {
			if h.onMessage != nil {
				h.onMessage(payload)
			}
		})
	}
}

func (m *Manager) markOpen(a *attempt, conn Conn) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.isCurrentLocked(a) {
		return false
	}
	a.conn = conn
	m.attempts = 0
	m.transitionLocked(StateOpen)
	m.metrics.Opened()
	return true
}

// dispatch calls fn with the current handlers if a is still current.
// A panicking handler is logged and does not take the transport down.
func (m *Manager) dispatch(a *attempt, fn func(h handlers)) {
	m.dispatchMu.Lock()
	defer m.dispatchMu.Unlock()

	m.mu.Lock()
	ok := m.isCurrentLocked(a)
	h := m.h
	m.mu.Unlock()
	if !ok {
		return
	}

	defer func() {
		if r := recover(); r != nil {
			m.log.Error("handler panicked", zap.Any("panic", r))
		}
	}()
	fn(h)
}

// handleClose reports an unsolicited close and applies the retry policy.
// Closes from transports that are no longer current are ignored.
func (m *Manager) handleClose(a *attempt, ev CloseEvent) {
	m.mu.Lock()
	if !m.isCurrentLocked(a) {
		m.mu.Unlock()
		return
	}
	m.transitionLocked(StateClosing)
	m.mu.Unlock()

	m.log.Info("connection closed",
		zap.Int("code", int(ev.Code)), zap.String("reason", ev.Reason), zap.Error(ev.Err))
	m.metrics.Closed(strconv.Itoa(int(ev.Code)))

	m.dispatch(a, func(h handlers) {
		if h.onClose != nil {
			h.onClose(ev)
		}
	})

	m.scheduleRetry(a)
}

func (m *Manager) scheduleRetry(a *attempt) {
	m.mu.Lock()
	// The close handler may have called Close or Connect.
	if !m.isCurrentLocked(a) {
		m.mu.Unlock()
		return
	}
	m.current = nil

	if m.attempts >= m.cfg.AttemptLimit {
		m.transitionLocked(StateTerminated)
		attempts := m.attempts
		m.mu.Unlock()

		m.log.Error("reconnection failed, giving up", zap.Int("attempts", attempts))
		m.metrics.Terminated()
		m.notifyTerminal()
		return
	}

	delay := m.backoff.Delay(m.attempts)
	gen := m.gen
	m.transitionLocked(StateRetryWait)
	m.retry = m.afterFunc(delay, func() { m.retryFired(gen) })
	next := m.attempts + 1
	m.mu.Unlock()

	m.log.Info("reconnecting",
		zap.Duration("delay", delay), zap.Int("attempt", next), zap.Int("limit", m.cfg.AttemptLimit))
	m.metrics.RetryScheduled(delay)
}

// retryFired starts the next attempt unless the generation moved on.
func (m *Manager) retryFired(gen uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.gen != gen || m.state != StateRetryWait {
		return
	}
	m.retry = nil
	m.attempts++
	m.startLocked(false)
}

func (m *Manager) notifyTerminal() {
	reload := m.reload
	if reload == nil {
		reload = func() {
			if err := m.Reconnect(context.Background()); err != nil {
				m.log.Warn("reload failed", zap.Error(err))
			}
		}
	}
	m.notifier.Notify(notify.Notification{
		Level:    notify.LevelWarning,
		Message:  TerminalMessage,
		Action:   "Reload",
		OnAction: reload,
	})
}
