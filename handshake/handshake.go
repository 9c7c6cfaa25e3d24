package handshake

import (
	"time"

	"github.com/risa-org/evchan/auth"
)

// AdmitRequest is what a console presents when opening the event channel.
type AdmitRequest struct {
	Token       string // the login token from the ?token= query parameter
	RequestedAt time.Time
}

// AdmitResult is what the handshake returns after processing a request.
// Either the connection is admitted for an operator, or it's rejected with a reason.
type AdmitResult struct {
	Accepted bool
	Operator string // populated on success
	Reason   string // populated on rejection, empty on success
}

// Rejection reasons, reported to the console as the HTTP error body and
// used as a log attribute.
const (
	ReasonMissingToken  = "missing_token"
	ReasonInvalidToken  = "invalid_token"
	ReasonTokenNotFound = "token_not_found"
	ReasonTokenRevoked  = "token_revoked"
	ReasonTokenExpired  = "token_expired"
)

// TokenStore is the interface the handshake uses to look up tokens.
// Defined here so the handshake doesn't care whether tokens live in memory
// or on disk.
type TokenStore interface {
	Get(token string) (auth.Record, bool)
}

// Handler decides whether a connection may join the event channel.
// It holds the issuer and the store but nothing else, stateless per request.
type Handler struct {
	issuer *auth.TokenIssuer
	store  TokenStore
}

// NewHandler creates a handshake handler backed by the given store.
func NewHandler(issuer *auth.TokenIssuer, store TokenStore) *Handler {
	return &Handler{issuer: issuer, store: store}
}

// Admit processes one connection attempt.
//
// Steps:
//  1. Check the signature, so forged tokens never reach the store
//  2. Look up the record
//  3. Refuse revoked tokens (logout, kick, or a newer single-session login)
//  4. Refuse tokens past their policy lifetime
func (h *Handler) Admit(req AdmitRequest) AdmitResult {
	if req.Token == "" {
		return reject(ReasonMissingToken)
	}
	if _, err := h.issuer.Verify(req.Token); err != nil {
		return reject(ReasonInvalidToken)
	}

	rec, ok := h.store.Get(req.Token)
	if !ok {
		return reject(ReasonTokenNotFound)
	}
	if rec.Revoked {
		return reject(ReasonTokenRevoked)
	}

	at := req.RequestedAt
	if at.IsZero() {
		at = time.Now()
	}
	if rec.ExpiredAt(at) {
		return reject(ReasonTokenExpired)
	}

	return AdmitResult{
		Accepted: true,
		Operator: rec.Operator,
	}
}

// reject is a helper to build a clean rejection result with a reason.
func reject(reason string) AdmitResult {
	return AdmitResult{
		Accepted: false,
		Reason:   reason,
	}
}
