package memory

import (
	"sync"
	"time"

	"github.com/risa-org/evchan/auth"
)

// Store is a thread-safe in-memory token store.
// Suitable for single-process backends and testing.
// Tokens are lost on restart, so consoles have to log in again.
type Store struct {
	mu      sync.RWMutex
	records map[string]auth.Record
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{records: make(map[string]auth.Record)}
}

// Put stores r under its token, replacing any earlier record.
func (s *Store) Put(r auth.Record) error {
	s.mu.Lock()
	s.records[r.Token] = r
	s.mu.Unlock()
	return nil
}

// Get returns a copy of the record for token.
// Satisfies the handshake.TokenStore interface.
func (s *Store) Get(token string) (auth.Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.records[token]
	return r, ok
}

// Revoke marks token unusable. Unknown tokens are ignored.
func (s *Store) Revoke(token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.records[token]; ok {
		r.Revoked = true
		s.records[token] = r
	}
	return nil
}

// Delete removes a token from the store.
func (s *Store) Delete(token string) error {
	s.mu.Lock()
	delete(s.records, token)
	s.mu.Unlock()
	return nil
}

// List returns a snapshot of every record.
func (s *Store) List() []auth.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]auth.Record, 0, len(s.records))
	for _, r := range s.records {
		out = append(out, r)
	}
	return out
}

// Prune drops records that are revoked or expired at now.
func (s *Store) Prune(now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for token, r := range s.records {
		if r.Revoked || r.ExpiredAt(now) {
			delete(s.records, token)
			n++
		}
	}
	return n, nil
}

// Count returns the number of tokens currently in the store.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}
