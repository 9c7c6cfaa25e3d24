package file

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/risa-org/evchan/auth"
)

// record is the JSON structure persisted to disk for each token.
type record struct {
	Token             string        `json:"token"`
	Operator          string        `json:"operator"`
	IssuedAt          time.Time     `json:"issued_at"`
	PolicyName        string        `json:"policy_name"`
	PolicyMaxLifetime time.Duration `json:"policy_max_lifetime"`
	Revoked           bool          `json:"revoked"`
}

// Store is a file-backed token store.
// Tokens are persisted to a JSON file so consoles stay logged in across
// backend restarts. Not suitable for multi-process deployments.
type Store struct {
	mu      sync.RWMutex
	path    string
	records map[string]auth.Record
}

// New creates a file-backed store at the given path.
// If the file exists, tokens are loaded from it on startup.
// If it doesn't exist, it will be created on first write.
func New(path string) (*Store, error) {
	s := &Store{
		path:    path,
		records: make(map[string]auth.Record),
	}

	if err := s.load(); err != nil {
		return nil, fmt.Errorf("failed to load tokens from %s: %w", path, err)
	}

	return s, nil
}

// Put stores r in memory and flushes to disk.
func (s *Store) Put(r auth.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[r.Token] = r
	if err := s.flush(); err != nil {
		return fmt.Errorf("failed to persist token: %w", err)
	}
	return nil
}

// Get retrieves a record by token from memory.
// Satisfies handshake.TokenStore.
func (s *Store) Get(token string) (auth.Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.records[token]
	return r, ok
}

// Revoke marks token unusable and flushes to disk.
func (s *Store) Revoke(token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[token]
	if !ok || r.Revoked {
		return nil
	}
	r.Revoked = true
	s.records[token] = r
	return s.flush()
}

// Delete removes a token from memory and flushes to disk.
func (s *Store) Delete(token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, token)
	return s.flush()
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

// Prune drops revoked and expired records, flushing only if any went.
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
	if n == 0 {
		return 0, nil
	}
	return n, s.flush()
}

// Count returns the number of tokens currently stored.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// load reads tokens from the JSON file into memory.
// Called once at startup. If the file doesn't exist, returns nil.
func (s *Store) load() error {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}

	var records []record
	if err := json.Unmarshal(data, &records); err != nil {
		return err
	}

	for _, r := range records {
		s.records[r.Token] = auth.Record{
			Token:    r.Token,
			Operator: r.Operator,
			IssuedAt: r.IssuedAt,
			Policy: auth.Policy{
				Name:        r.PolicyName,
				MaxLifetime: r.PolicyMaxLifetime,
			},
			Revoked: r.Revoked,
		}
	}

	return nil
}

// flush writes the current in-memory state to the JSON file.
// Must be called with the write lock held.
func (s *Store) flush() error {
	records := make([]record, 0, len(s.records))

	for _, r := range s.records {
		records = append(records, record{
			Token:             r.Token,
			Operator:          r.Operator,
			IssuedAt:          r.IssuedAt,
			PolicyName:        r.Policy.Name,
			PolicyMaxLifetime: r.Policy.MaxLifetime,
			Revoked:           r.Revoked,
		})
	}

	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return err
	}

	// temp file then rename, so a crash mid-write leaves the old file intact
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}
