package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/risa-org/evchan/codec"
	"github.com/risa-org/evchan/heartbeat"
	"github.com/risa-org/evchan/transport"
)

// DefaultRetryDelay is the fixed pause between a connection loss and the
// next attempt.
const DefaultRetryDelay = 2 * time.Second

// Sink receives every decoded batch, in arrival order, together with the
// generation of the connection that read it.
type Sink interface {
	Dispatch(gen uint64, batch codec.Batch)
}

// Observer is notified about lifecycle activity. Every method is called
// with the session lock held and must not call back into the Session.
type Observer interface {
	ConnectAttempt()
	Opened()
	Lost(reason transport.DisconnectReason)
	ReconnectScheduled()
	DecodeFailed()
	StateChanged(state State)
}

// Timer is a pending retry. *time.Timer satisfies it.
type Timer interface {
	Stop() bool
}

// Scheduler runs f once after d. The default is time.AfterFunc.
type Scheduler func(d time.Duration, f func()) Timer

// Options tunes a Session. Zero values pick the defaults.
type Options struct {
	RetryDelay        time.Duration
	HeartbeatInterval time.Duration
	Logger            *slog.Logger
	Observer          Observer
	Scheduler         Scheduler
}

// Session is the one logical push-event connection of a console.
//
// Every externally triggered transition (Start, Stop) and every transport
// signal (open, data, loss, retry timer) goes through the mutex and carries
// the generation it belongs to. Start and Stop bump the generation, so a
// signal from a superseded attempt never matches and is dropped.
type Session struct {
	dialer     transport.Dialer
	endpoint   Endpoint
	sink       Sink
	retryDelay time.Duration
	logger     *slog.Logger
	observer   Observer
	schedule   Scheduler
	ticker     *heartbeat.Ticker

	mu            sync.Mutex
	token         string
	state         State
	stopRequested bool
	gen           uint64
	conn          transport.Adapter
	cancelDial    context.CancelFunc
	retry         Timer
}

// New creates an idle Session. Nothing is dialed until Start.
func New(dialer transport.Dialer, endpoint Endpoint, sink Sink, opts Options) *Session {
	s := &Session{
		dialer:     dialer,
		endpoint:   endpoint,
		sink:       sink,
		retryDelay: opts.RetryDelay,
		logger:     opts.Logger,
		observer:   opts.Observer,
		schedule:   opts.Scheduler,
		state:      StateIdle,
	}
	if s.retryDelay <= 0 {
		s.retryDelay = DefaultRetryDelay
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	s.logger = s.logger.With("component", "session")
	if s.observer == nil {
		s.observer = nopObserver{}
	}
	if s.schedule == nil {
		s.schedule = func(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }
	}

	var hbObserver heartbeat.Observer
	if o, ok := s.observer.(heartbeat.Observer); ok {
		hbObserver = o
	}
	s.ticker = heartbeat.New(opts.HeartbeatInterval, hbObserver)
	return s
}

// Start supersedes whatever this Session was doing and connects with token.
// Safe to call at any time, including from an event handler.
func (s *Session) Start(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopLocked()
	s.stopRequested = false
	s.token = token
	s.connectLocked()
}

// Stop tears the channel down. Once it returns no reconnect will be
// scheduled and no heartbeat will be sent. Calling it again is a no-op.
func (s *Session) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Generation returns the current attempt counter.
func (s *Session) Generation() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gen
}

// Current reports whether gen is the generation of the open connection.
func (s *Session) Current(gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return gen == s.gen && s.state == StateOpen
}

// StopGeneration stops the session only if gen is still its generation.
// It reports whether it did; a signal from a superseded connection, or a
// second invalidation after the first, returns false.
func (s *Session) StopGeneration(gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen || s.state == StateClosed {
		return false
	}
	s.stopLocked()
	return true
}

// Token returns the credential of the latest Start.
func (s *Session) Token() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token
}

// HeartbeatRunning reports whether keep-alives are being emitted.
func (s *Session) HeartbeatRunning() bool {
	return s.ticker.Running()
}

func (s *Session) transition(next State) bool {
	if !isValidTransition(s.state, next) {
		s.logger.Warn("rejected state transition", "from", s.state, "to", next)
		return false
	}
	s.state = next
	s.observer.StateChanged(next)
	return true
}

func (s *Session) stopLocked() {
	s.stopRequested = true
	if s.state == StateClosed {
		return
	}

	s.gen++
	s.transition(StateClosing)

	if s.cancelDial != nil {
		s.cancelDial()
		s.cancelDial = nil
	}
	if s.retry != nil {
		s.retry.Stop()
		s.retry = nil
	}
	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
	}
	s.ticker.Stop()

	s.transition(StateClosed)
	s.logger.Info("event channel stopped", "generation", s.gen)
}

func (s *Session) connectLocked() {
	if !s.transition(StateConnecting) {
		return
	}
	s.gen++
	gen := s.gen

	ctx, cancel := context.WithCancel(context.Background())
	s.cancelDial = cancel
	s.observer.ConnectAttempt()

	logger := s.logger.With("generation", gen, "conn_id", uuid.NewString())
	logger.Debug("connecting", "endpoint", s.endpoint.String())

	go s.dial(ctx, gen, s.endpoint.URL(s.token), logger)
}

func (s *Session) dial(ctx context.Context, gen uint64, url string, logger *slog.Logger) {
	conn, err := s.dialer.Dial(ctx, url)
	if err != nil {
		s.handleLoss(gen, transport.DisconnectEvent{Reason: transport.ReasonDialFailed, Err: err}, logger)
		return
	}
	s.handleOpen(gen, conn, logger)
}

func (s *Session) handleOpen(gen uint64, conn transport.Adapter, logger *slog.Logger) {
	s.mu.Lock()
	if gen != s.gen || s.state != StateConnecting {
		s.mu.Unlock()
		logger.Debug("discarding connection from superseded attempt")
		conn.Close()
		return
	}

	if s.cancelDial != nil {
		s.cancelDial()
		s.cancelDial = nil
	}
	s.conn = conn
	s.transition(StateOpen)
	s.ticker.Start(conn)
	s.observer.Opened()
	s.mu.Unlock()

	logger.Info("event channel connected")
	go s.pump(gen, conn, logger)
}

// pump is the only reader of one connection, so frames are decoded and
// dispatched strictly in arrival order.
func (s *Session) pump(gen uint64, conn transport.Adapter, logger *slog.Logger) {
	for msg := range conn.Receive() {
		s.handleData(gen, msg, logger)
	}

	event := transport.DisconnectEvent{Reason: transport.ReasonUnknown}
	select {
	case event = <-conn.Disconnected():
	default:
	}
	s.handleLoss(gen, event, logger)
}

func (s *Session) handleData(gen uint64, msg transport.Message, logger *slog.Logger) {
	if !s.Current(gen) {
		return
	}

	batch, err := codec.Decode(msg)
	if err != nil {
		logger.Warn("dropping malformed event frame", "error", err, "bytes", len(msg.Payload))
		s.mu.Lock()
		if gen == s.gen {
			s.observer.DecodeFailed()
		}
		s.mu.Unlock()
		return
	}
	if batch == nil {
		return
	}

	// the sink may call Stop, so it runs without the lock
	logger.Debug("event batch received", "events", len(batch))
	s.sink.Dispatch(gen, batch)
}

func (s *Session) handleLoss(gen uint64, event transport.DisconnectEvent, logger *slog.Logger) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if gen != s.gen {
		return
	}

	if s.cancelDial != nil {
		s.cancelDial()
		s.cancelDial = nil
	}
	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
	}
	s.ticker.Stop()
	s.observer.Lost(event.Reason)

	if s.stopRequested {
		s.transition(StateClosing)
		s.transition(StateClosed)
		return
	}

	logger.Warn("event channel lost",
		"reason", event.Reason,
		"error", event.Err,
		"retry_in", s.retryDelay,
	)
	if !s.transition(StateIdle) {
		return
	}
	s.retry = s.schedule(s.retryDelay, func() { s.reconnect(gen) })
	s.observer.ReconnectScheduled()
}

func (s *Session) reconnect(gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if gen != s.gen || s.stopRequested || s.state != StateIdle {
		return
	}
	s.retry = nil
	s.connectLocked()
}

type nopObserver struct{}

func (nopObserver) ConnectAttempt() {}
func (nopObserver) Opened() {}
func (nopObserver) Lost(transport.DisconnectReason) {}
func (nopObserver) ReconnectScheduled() {}
func (nopObserver) DecodeFailed() {}
func (nopObserver) StateChanged(State) {}
