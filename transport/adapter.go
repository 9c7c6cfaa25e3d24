package transport

import (
	"context"
	"errors"
)

// ErrTransportClosed is returned when you try to send on a closed transport.
// Callers check it with errors.Is() rather than comparing error strings.
var ErrTransportClosed = errors.New("transport closed")

// Kind is the framing type of a message. The event channel treats the two
// kinds differently: text carries control traffic such as heartbeats,
// binary carries event frames.
type Kind int

const (
	KindBinary Kind = iota // event frames from the backend
	KindText               // heartbeat markers and other control text
)

func (k Kind) String() string {
	switch k {
	case KindBinary:
		return "binary"
	case KindText:
		return "text"
	default:
		return "unknown"
	}
}

// Message is what flows through a transport.
// The transport doesn't interpret the payload, it just moves it
// from one side to the other with its kind intact.
type Message struct {
	Kind    Kind
	Payload []byte
}

// DisconnectReason tells the session layer why a transport closed.
// It ends up in logs and metrics so you can see whether a connection
// dropped due to a network error, a timeout, or a clean close.
type DisconnectReason int

const (
	ReasonUnknown      DisconnectReason = iota // catch-all, should be rare
	ReasonNetworkError                         // underlying connection failed
	ReasonTimeout                              // no activity within deadline
	ReasonClosedClean                          // graceful shutdown by either side
	ReasonDialFailed                           // connection was never established
)

func (r DisconnectReason) String() string {
	switch r {
	case ReasonNetworkError:
		return "network_error"
	case ReasonTimeout:
		return "timeout"
	case ReasonClosedClean:
		return "closed_clean"
	case ReasonDialFailed:
		return "dial_failed"
	default:
		return "unknown"
	}
}

// DisconnectEvent is sent on the channel returned by Disconnected().
// It bundles the reason with an optional error for debugging.
type DisconnectEvent struct {
	Reason DisconnectReason
	Err    error // nil on clean close, populated on errors
}

// Adapter is the contract every transport must satisfy.
// The session layer only ever talks to this interface,
// it never imports tcp, websocket, or anything concrete.
type Adapter interface {
	// Send delivers a message to the remote side.
	// Returns ErrTransportClosed if the transport is no longer active.
	Send(msg Message) error

	// Receive returns a channel that emits incoming messages in arrival order.
	// The channel is closed when the transport closes.
	Receive() <-chan Message

	// Disconnected returns a channel that emits exactly one DisconnectEvent
	// when the transport closes, for any reason. The event is always
	// available by the time the Receive channel is closed.
	Disconnected() <-chan DisconnectEvent

	// IsOpen reports whether the transport still accepts sends.
	IsOpen() bool

	// Close shuts down the transport cleanly.
	// Safe to call multiple times; later calls are no-ops.
	Close() error
}

// Dialer opens a new Adapter against an endpoint URL.
// Dial blocks until the connection is established, fails, or ctx is done.
type Dialer interface {
	Dial(ctx context.Context, url string) (Adapter, error)
}

// DialerFunc adapts an ordinary function to the Dialer interface.
type DialerFunc func(ctx context.Context, url string) (Adapter, error)

func (f DialerFunc) Dial(ctx context.Context, url string) (Adapter, error) {
	return f(ctx, url)
}
