package websocket

import (
	"context"
	"errors"
	"fmt"
	neturl "net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/risa-org/evchan/transport"
	"nhooyr.io/websocket"
)

// Subprotocol is the protocol tag the event endpoint negotiates.
const Subprotocol = "binary"

const (
	writeTimeout     = 10 * time.Second
	defaultReadLimit = 1 << 20
)

// Adapter implements transport.Adapter over a WebSocket connection.
// WebSocket already has message boundaries and a text/binary opcode,
// so each transport.Message maps onto exactly one WebSocket message.
type Adapter struct {
	conn       *websocket.Conn
	incoming   chan transport.Message
	disconnect chan transport.DisconnectEvent
	closeOnce  sync.Once
	closed     atomic.Bool
	ctx        context.Context
	cancel     context.CancelFunc
}

// New wraps an existing *websocket.Conn in a transport Adapter
// and starts reading from it immediately.
func New(conn *websocket.Conn) *Adapter {
	ctx, cancel := context.WithCancel(context.Background())
	a := &Adapter{
		conn:       conn,
		incoming:   make(chan transport.Message, 64),
		disconnect: make(chan transport.DisconnectEvent, 1),
		ctx:        ctx,
		cancel:     cancel,
	}
	go a.readLoop()
	return a
}

// Send writes one message with the opcode matching msg.Kind.
// Writes are bounded by a timeout so a stalled peer cannot block the caller forever.
func (a *Adapter) Send(msg transport.Message) error {
	if a.closed.Load() {
		return transport.ErrTransportClosed
	}

	typ := websocket.MessageBinary
	if msg.Kind == transport.KindText {
		typ = websocket.MessageText
	}

	ctx, cancel := context.WithTimeout(a.ctx, writeTimeout)
	defer cancel()
	if err := a.conn.Write(ctx, typ, msg.Payload); err != nil {
		return transport.ErrTransportClosed
	}
	return nil
}

func (a *Adapter) Receive() <-chan transport.Message {
	return a.incoming
}

func (a *Adapter) Disconnected() <-chan transport.DisconnectEvent {
	return a.disconnect
}

func (a *Adapter) IsOpen() bool {
	return !a.closed.Load()
}

// Subprotocol reports the subprotocol the server selected, if any.
func (a *Adapter) Subprotocol() string {
	return a.conn.Subprotocol()
}

func (a *Adapter) Close() error {
	var err error
	a.closeOnce.Do(func() {
		a.closed.Store(true)
		a.cancel()
		err = a.conn.Close(websocket.StatusNormalClosure, "closed")
	})
	return err
}

func (a *Adapter) readLoop() {
	defer func() {
		close(a.incoming)
		a.Close()
	}()

	for {
		typ, data, err := a.conn.Read(a.ctx)
		if err != nil {
			a.closed.Store(true)
			a.signalDisconnect(err)
			return
		}

		kind := transport.KindBinary
		if typ == websocket.MessageText {
			kind = transport.KindText
		}

		select {
		case a.incoming <- transport.Message{Kind: kind, Payload: data}:
		case <-a.ctx.Done():
			a.closed.Store(true)
			a.signalDisconnect(a.ctx.Err())
			return
		}
	}
}

// signalDisconnect sends exactly one disconnect event.
// StatusNormalClosure (1000) and StatusGoingAway (1001) are both clean closes:
// different WebSocket implementations and shutdown timing produce either code.
// Context cancellation means we closed it ourselves, also clean.
func (a *Adapter) signalDisconnect(err error) {
	event := transport.DisconnectEvent{}

	status := websocket.CloseStatus(err)
	switch {
	case status == websocket.StatusNormalClosure,
		status == websocket.StatusGoingAway,
		a.ctx.Err() != nil:
		event.Reason = transport.ReasonClosedClean
	default:
		event.Reason = transport.ReasonNetworkError
		event.Err = err
	}

	select {
	case a.disconnect <- event:
	default:
	}
}

// Dialer opens event-channel connections with nhooyr.io/websocket.
type Dialer struct {
	// Subprotocol offered during the handshake. Defaults to "binary".
	Subprotocol string
	// ReadLimit caps the size of a single inbound message. Defaults to 1 MiB.
	ReadLimit int64
	// DialOptions are passed through for headers and custom HTTP clients.
	DialOptions *websocket.DialOptions
}

// Dial connects to url and returns a running Adapter.
func (d Dialer) Dial(ctx context.Context, url string) (transport.Adapter, error) {
	opts := &websocket.DialOptions{}
	if d.DialOptions != nil {
		o := *d.DialOptions
		opts = &o
	}
	sub := d.Subprotocol
	if sub == "" {
		sub = Subprotocol
	}
	opts.Subprotocols = []string{sub}

	conn, _, err := websocket.Dial(ctx, url, opts)
	if err != nil {
		// net/http errors embed the full URL, token included.
		var uerr *neturl.Error
		if errors.As(err, &uerr) {
			err = uerr.Err
		}
		return nil, fmt.Errorf("dial %s: %w", redact(url), err)
	}

	limit := d.ReadLimit
	if limit <= 0 {
		limit = defaultReadLimit
	}
	conn.SetReadLimit(limit)

	return New(conn), nil
}

// redact strips the query string so tokens never land in logs.
func redact(url string) string {
	base, _, _ := strings.Cut(url, "?")
	return base
}
