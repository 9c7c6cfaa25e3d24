package auth

import "time"

// Policy defines how long an issued token stays valid.
type Policy struct {
	Name        string
	MaxLifetime time.Duration
}

// Built-in policies. Consoles normally run under Interactive or Durable.
var (
	Ephemeral   = Policy{Name: "ephemeral", MaxLifetime: 30 * time.Second}
	Interactive = Policy{Name: "interactive", MaxLifetime: 5 * time.Minute}
	Durable     = Policy{Name: "durable", MaxLifetime: 2 * time.Hour}
)

// PolicyFor returns the built-in policy whose lifetime equals ttl, or a
// custom one.
func PolicyFor(ttl time.Duration) Policy {
	for _, p := range []Policy{Ephemeral, Interactive, Durable} {
		if p.MaxLifetime == ttl {
			return p
		}
	}
	return Policy{Name: "custom", MaxLifetime: ttl}
}

// Record is what the backend remembers about an issued token.
type Record struct {
	Token    string
	Operator string
	IssuedAt time.Time
	Policy   Policy
	Revoked  bool
}

// NewRecord stamps a freshly issued token.
func NewRecord(token, operator string, policy Policy) Record {
	return Record{
		Token:    token,
		Operator: operator,
		IssuedAt: time.Now(),
		Policy:   policy,
	}
}

// ExpiredAt reports whether the record's lifetime has run out at now.
func (r Record) ExpiredAt(now time.Time) bool {
	return now.Sub(r.IssuedAt) > r.Policy.MaxLifetime
}

// IsExpired checks the record against the wall clock.
func (r Record) IsExpired() bool {
	return r.ExpiredAt(time.Now())
}
