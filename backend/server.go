// Package backend simulates the device side of the event channel: it issues
// console tokens on login, serves /ws/events, publishes events, and forces
// consoles out when their token is revoked.
package backend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/risa-org/evchan/auth"
	"github.com/risa-org/evchan/codec"
	"github.com/risa-org/evchan/config"
	"github.com/risa-org/evchan/handshake"
	"github.com/risa-org/evchan/session"
	"github.com/risa-org/evchan/store/file"
	"github.com/risa-org/evchan/store/memory"
	evws "github.com/risa-org/evchan/transport/websocket"
)

// Store is what the backend needs from a token store.
type Store interface {
	handshake.TokenStore
	Put(r auth.Record) error
	Revoke(token string) error
	List() []auth.Record
	Prune(now time.Time) (int, error)
}

// Options configures a Server. Issuer and Store default to a random-secret
// issuer and a memory store.
type Options struct {
	Issuer        *auth.TokenIssuer
	Store         Store
	Operators     auth.Operators
	Policy        auth.Policy
	IdleTimeout   time.Duration
	SingleSession bool
	Logger        *slog.Logger
}

// Server is the backend simulator.
type Server struct {
	opts      Options
	handshake *handshake.Handler
	hub       *hub
	upgrader  websocket.Upgrader
	router    chi.Router
	logger    *slog.Logger
}

// New builds a Server from opts.
func New(opts Options) (*Server, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Issuer == nil {
		issuer, err := auth.NewRandomTokenIssuer()
		if err != nil {
			return nil, fmt.Errorf("create token issuer: %w", err)
		}
		opts.Issuer = issuer
	}
	if opts.Store == nil {
		opts.Store = memory.New()
	}
	if opts.Policy.MaxLifetime <= 0 {
		opts.Policy = auth.Durable
	}
	if opts.IdleTimeout <= 0 {
		opts.IdleTimeout = 10 * time.Second
	}

	logger := opts.Logger.With("component", "backend")
	s := &Server{
		opts:      opts,
		handshake: handshake.NewHandler(opts.Issuer, opts.Store),
		hub:       newHub(logger),
		upgrader: websocket.Upgrader{
			Subprotocols: []string{evws.Subprotocol},
			CheckOrigin:  func(*http.Request) bool { return true },
		},
		logger: logger,
	}
	s.router = s.routes()
	return s, nil
}

// FromConfig builds a Server from the server section of cfg.
func FromConfig(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	var issuer *auth.TokenIssuer
	if cfg.Server.Secret != "" {
		var err error
		if issuer, err = auth.NewHexTokenIssuer(cfg.Server.Secret); err != nil {
			return nil, err
		}
	}

	var store Store
	if cfg.Server.TokenFile != "" {
		fs, err := file.New(cfg.Server.TokenFile)
		if err != nil {
			return nil, err
		}
		store = fs
	}

	return New(Options{
		Issuer:        issuer,
		Store:         store,
		Operators:     auth.Operators(cfg.Server.Operators),
		Policy:        auth.PolicyFor(cfg.Server.TokenTTL),
		IdleTimeout:   cfg.Server.IdleTimeout,
		SingleSession: cfg.Server.SingleSession,
		Logger:        logger,
	})
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Post("/api/login", s.handleLogin)
	r.Get(session.DefaultPath, s.handleEvents)

	r.Group(func(r chi.Router) {
		r.Use(s.requireToken)
		r.Post("/api/logout", s.handleLogout)
		r.Post("/api/events", s.handlePublish)
		r.Post("/api/kick", s.handleKick)
	})
	return r
}

// Handler returns the HTTP handler serving every route.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves on addr until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	s.logger.Info("listening", "addr", addr)

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	s.Close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Close drops every open event channel. Hijacked connections are not
// tracked by http.Server, so shutting the listener alone leaves them open.
func (s *Server) Close() {
	s.hub.closeAll()
}

// Login checks credentials and issues a token. With SingleSession every
// other live token is revoked and its consoles are forced out.
func (s *Server) Login(username, password string) (string, error) {
	if err := s.opts.Operators.Check(username, password); err != nil {
		return "", err
	}

	if n, err := s.opts.Store.Prune(time.Now()); err != nil {
		s.logger.Warn("prune tokens", "error", err)
	} else if n > 0 {
		s.logger.Debug("pruned tokens", "count", n)
	}

	token, id := s.opts.Issuer.Issue()
	if err := s.opts.Store.Put(auth.NewRecord(token, username, s.opts.Policy)); err != nil {
		return "", fmt.Errorf("store token: %w", err)
	}

	if s.opts.SingleSession {
		for _, r := range s.opts.Store.List() {
			if r.Token == token || r.Revoked {
				continue
			}
			s.forceLogout(r.Token)
		}
	}

	s.logger.Info("login", "operator", username, "token_id", id, "policy", s.opts.Policy.Name)
	return token, nil
}

// Publish broadcasts one event to every open channel.
func (s *Server) Publish(eventType int, payload interface{}) (int, error) {
	msg, err := codec.Encode(codec.Outbound{Type: eventType, Payload: payload})
	if err != nil {
		return 0, err
	}
	n := s.hub.broadcast(msg.Payload)
	s.logger.Debug("published", "type", eventType, "subscribers", n)
	return n, nil
}

// Kick revokes token and sends its consoles the force-logout event.
func (s *Server) Kick(token string) int {
	return s.forceLogout(token)
}

// Subscribers reports how many event channels are open.
func (s *Server) Subscribers() int {
	return s.hub.count()
}

func (s *Server) forceLogout(token string) int {
	if err := s.opts.Store.Revoke(token); err != nil {
		s.logger.Warn("revoke token", "error", err)
	}
	msg, err := codec.Encode(codec.Outbound{Type: codec.TypeForceLogout})
	if err != nil {
		return 0
	}
	n := s.hub.closeToken(token, msg.Payload)
	s.logger.Info("forced logout", "subscribers", n)
	return n
}

func (s *Server) revoke(token string) int {
	if err := s.opts.Store.Revoke(token); err != nil {
		s.logger.Warn("revoke token", "error", err)
	}
	return s.hub.closeToken(token, nil)
}
