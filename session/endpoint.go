package session

import (
	"fmt"
	"net/url"
)

// DefaultPath is where the backend serves the event stream.
const DefaultPath = "/ws/events"

// Endpoint describes where the event stream lives. It is derived from the
// address the console itself was served from.
type Endpoint struct {
	Host   string // host[:port]
	Secure bool   // wss instead of ws
	Path   string // defaults to DefaultPath
}

// EndpointFromOrigin derives the event endpoint from the console's origin,
// e.g. "https://10.0.0.5:8443" becomes wss://10.0.0.5:8443/ws/events.
func EndpointFromOrigin(origin string) (Endpoint, error) {
	u, err := url.Parse(origin)
	if err != nil {
		return Endpoint{}, fmt.Errorf("parse origin %q: %w", origin, err)
	}
	if u.Host == "" {
		return Endpoint{}, fmt.Errorf("origin %q has no host", origin)
	}
	return Endpoint{
		Host:   u.Host,
		Secure: u.Scheme == "https" || u.Scheme == "wss",
		Path:   DefaultPath,
	}, nil
}

// URL builds the dial address carrying the session token.
func (e Endpoint) URL(token string) string {
	u := e.url()
	u.RawQuery = url.Values{"token": {token}}.Encode()
	return u.String()
}

// String is the endpoint without credentials, safe to log.
func (e Endpoint) String() string {
	u := e.url()
	return u.String()
}

func (e Endpoint) url() url.URL {
	scheme := "ws"
	if e.Secure {
		scheme = "wss"
	}
	path := e.Path
	if path == "" {
		path = DefaultPath
	}
	return url.URL{Scheme: scheme, Host: e.Host, Path: path}
}
