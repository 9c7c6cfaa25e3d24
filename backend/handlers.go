package backend

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/risa-org/evchan/auth"
	"github.com/risa-org/evchan/codec"
	"github.com/risa-org/evchan/handshake"
)

type tokenKey struct{}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token string `json:"token"`
}

type publishRequest struct {
	Type    *int            `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type kickRequest struct {
	Token string `json:"token"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if token, ok := strings.CutPrefix(h, "Bearer "); ok {
		return strings.TrimSpace(token)
	}
	return ""
}

// requireToken admits API calls carrying a live bearer token.
func (s *Server) requireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		result := s.handshake.Admit(handshake.AdmitRequest{Token: token, RequestedAt: time.Now()})
		if !result.Accepted {
			writeError(w, http.StatusUnauthorized, result.Reason)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), tokenKey{}, token)))
	})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	token, err := s.Login(req.Username, req.Password)
	if errors.Is(err, auth.ErrBadCredentials) {
		s.logger.Info("login refused", "operator", req.Username)
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	if err != nil {
		s.logger.Error("login failed", "error", err)
		writeError(w, http.StatusInternalServerError, "login failed")
		return
	}

	writeJSON(w, http.StatusOK, loginResponse{Token: token})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	token := r.Context().Value(tokenKey{}).(string)
	n := s.revoke(token)
	s.logger.Info("logout", "subscribers", n)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handlePublish(w http.ResponseWriter, r *http.Request) {
	var req publishRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Type == nil {
		writeError(w, http.StatusBadRequest, "type is required")
		return
	}

	// a force-logout publish goes through Kick semantics for everyone
	if *req.Type == codec.TypeForceLogout {
		n := 0
		for _, rec := range s.opts.Store.List() {
			if !rec.Revoked {
				n += s.forceLogout(rec.Token)
			}
		}
		writeJSON(w, http.StatusOK, map[string]int{"delivered": n})
		return
	}

	var payload interface{}
	if len(req.Payload) > 0 {
		payload = req.Payload
	}
	n, err := s.Publish(*req.Type, payload)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"delivered": n})
}

func (s *Server) handleKick(w http.ResponseWriter, r *http.Request) {
	var req kickRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Token == "" {
		writeError(w, http.StatusBadRequest, "token is required")
		return
	}
	n := s.Kick(req.Token)
	writeJSON(w, http.StatusOK, map[string]int{"kicked": n})
}

// handleEvents admits the console and upgrades to the event channel.
// The read deadline is pushed out on every inbound message, so a console
// that stops sending heartbeats is dropped after IdleTimeout.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	result := s.handshake.Admit(handshake.AdmitRequest{Token: token, RequestedAt: time.Now()})
	if !result.Accepted {
		s.logger.Info("connection refused", "reason", result.Reason, "remote", r.RemoteAddr)
		writeError(w, http.StatusUnauthorized, result.Reason)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("upgrade failed", "error", err)
		return
	}

	sub := newSubscriber(conn, token, result.Operator)
	s.hub.add(sub)
	go sub.writePump(s.logger)

	// A revoke between Admit and add found no subscriber to close. Revoke
	// writes the store before closing, so checking again after add catches it.
	if again := s.handshake.Admit(handshake.AdmitRequest{Token: token, RequestedAt: time.Now()}); !again.Accepted {
		var final []byte
		if again.Reason == handshake.ReasonTokenRevoked {
			if msg, err := codec.Encode(codec.Outbound{Type: codec.TypeForceLogout}); err == nil {
				final = msg.Payload
			}
		}
		s.hub.evict(sub, final)
		s.logger.Info("connection revoked during upgrade", "subscriber", sub.id, "reason", again.Reason)
		return
	}
	s.logger.Info("console connected", "subscriber", sub.id, "operator", sub.operator, "remote", r.RemoteAddr)

	go s.readPump(sub)
}

func (s *Server) readPump(sub *subscriber) {
	defer func() {
		s.hub.remove(sub)
		s.logger.Info("console disconnected", "subscriber", sub.id)
	}()

	idle := s.opts.IdleTimeout
	sub.conn.SetReadDeadline(time.Now().Add(idle))
	for {
		_, data, err := sub.conn.ReadMessage()
		if err != nil {
			s.logger.Debug("read ended", "subscriber", sub.id, "error", err)
			return
		}
		sub.conn.SetReadDeadline(time.Now().Add(idle))
		if string(data) == codec.HeartbeatMarker {
			s.logger.Debug("heartbeat", "subscriber", sub.id)
		}
	}
}
