package auth

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

var ErrInvalidToken = errors.New("invalid session token")

// TokenIssuer generates and verifies HMAC-signed console tokens.
// A token is "<id>.<hex hmac-sha256(secret, id)>"; the id is a random
// UUID that names the login, the signature proves the backend issued it.
type TokenIssuer struct {
	secret []byte
}

// NewTokenIssuer creates an issuer with the given secret key.
// The secret should be at least 32 bytes of random data.
func NewTokenIssuer(secret []byte) *TokenIssuer {
	return &TokenIssuer{secret: secret}
}

// NewRandomTokenIssuer generates a fresh random secret key.
// Tokens do not survive a restart of the process holding it.
func NewRandomTokenIssuer() (*TokenIssuer, error) {
	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		return nil, err
	}
	return &TokenIssuer{secret: secret}, nil
}

// NewHexTokenIssuer decodes a hex-encoded secret, as stored in config.
func NewHexTokenIssuer(secretHex string) (*TokenIssuer, error) {
	secret, err := hex.DecodeString(secretHex)
	if err != nil {
		return nil, fmt.Errorf("decode secret: %w", err)
	}
	if len(secret) < 16 {
		return nil, fmt.Errorf("secret of %d bytes is too short", len(secret))
	}
	return NewTokenIssuer(secret), nil
}

// Issue mints a new token and returns it with its id.
func (t *TokenIssuer) Issue() (token, id string) {
	id = uuid.NewString()
	return id + "." + t.sign(id), id
}

// Verify checks the signature and returns the token's id.
// Uses constant-time comparison to prevent timing attacks.
func (t *TokenIssuer) Verify(token string) (string, error) {
	id, sig, ok := strings.Cut(token, ".")
	if !ok || id == "" {
		return "", ErrInvalidToken
	}
	if _, err := uuid.Parse(id); err != nil {
		return "", ErrInvalidToken
	}

	expected := t.sign(id)
	if subtle.ConstantTimeCompare([]byte(expected), []byte(sig)) != 1 {
		return "", ErrInvalidToken
	}
	return id, nil
}

func (t *TokenIssuer) sign(id string) string {
	mac := hmac.New(sha256.New, t.secret)
	mac.Write([]byte(id))
	return hex.EncodeToString(mac.Sum(nil))
}
