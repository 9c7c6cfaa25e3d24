// Package client is the host-facing side of the event channel: register
// handlers with OnEvent, then Start with the login token and Stop on logout.
package client

import (
	"log/slog"
	"time"

	"github.com/risa-org/evchan/config"
	"github.com/risa-org/evchan/dispatch"
	"github.com/risa-org/evchan/metrics"
	"github.com/risa-org/evchan/session"
	"github.com/risa-org/evchan/transport"
	"github.com/risa-org/evchan/transport/websocket"
	"go.opentelemetry.io/otel/trace"
)

// Options wires a Client. Endpoint is required; the rest have defaults.
type Options struct {
	Endpoint          session.Endpoint
	Dialer            transport.Dialer // defaults to a websocket dialer
	RetryDelay        time.Duration
	HeartbeatInterval time.Duration
	OnLogout          func() // called once when the backend invalidates the session
	Logger            *slog.Logger
	Metrics           *metrics.Collector
	Tracer            trace.Tracer
	Scheduler         session.Scheduler
}

// Client ties the reconnecting session to the event dispatcher.
type Client struct {
	session    *session.Session
	dispatcher *dispatch.Dispatcher
	logger     *slog.Logger
}

// New builds a stopped Client.
func New(opts Options) *Client {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	dialer := opts.Dialer
	if dialer == nil {
		dialer = websocket.Dialer{}
	}

	c := &Client{logger: logger}

	var dispatchObserver dispatch.Observer
	var sessionObserver session.Observer
	if opts.Metrics != nil {
		dispatchObserver = opts.Metrics
		sessionObserver = opts.Metrics
	}

	c.dispatcher = dispatch.New(c, opts.OnLogout, dispatch.Options{
		Logger:   logger,
		Observer: dispatchObserver,
		Tracer:   opts.Tracer,
	})
	c.session = session.New(dialer, opts.Endpoint, c.dispatcher, session.Options{
		RetryDelay:        opts.RetryDelay,
		HeartbeatInterval: opts.HeartbeatInterval,
		Logger:            logger,
		Observer:          sessionObserver,
		Scheduler:         opts.Scheduler,
	})
	return c
}

// FromConfig builds a Client from the client section of cfg.
func FromConfig(cfg *config.Config, logger *slog.Logger, m *metrics.Collector, onLogout func()) *Client {
	return New(Options{
		Endpoint: session.Endpoint{
			Host:   cfg.Client.Host,
			Secure: cfg.Client.Secure,
			Path:   cfg.Client.Path,
		},
		Dialer:            websocket.Dialer{Subprotocol: cfg.Client.Subprotocol},
		RetryDelay:        cfg.Client.RetryDelay,
		HeartbeatInterval: cfg.Client.HeartbeatInterval,
		OnLogout:          onLogout,
		Logger:            logger,
		Metrics:           m,
	})
}

// OnEvent registers h for eventType, replacing any earlier handler.
// A handler for codec.TypeForceLogout runs before the logout callback.
func (c *Client) OnEvent(eventType int, h dispatch.Handler) {
	c.dispatcher.On(eventType, h)
}

// Start begins a new session lifetime with token, superseding any
// session already running.
func (c *Client) Start(token string) {
	c.dispatcher.Restart(func() { c.session.Start(token) })
}

// Stop ends the session; no reconnect happens afterwards.
func (c *Client) Stop() {
	c.session.Stop()
}

// Current reports whether gen is the generation of the open connection.
func (c *Client) Current(gen uint64) bool {
	return c.session.Current(gen)
}

// StopGeneration stops the session if gen has not been superseded.
func (c *Client) StopGeneration(gen uint64) bool {
	return c.session.StopGeneration(gen)
}

// State reports the session lifecycle state.
func (c *Client) State() session.State {
	return c.session.State()
}

// LoggedOut reports whether the backend invalidated the current lifetime.
func (c *Client) LoggedOut() bool {
	return c.dispatcher.LoggedOut()
}
