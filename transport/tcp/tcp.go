package tcp

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"

	"github.com/risa-org/evchan/transport"
)

// MaxPayload bounds a single frame so a corrupt length prefix
// cannot make the reader allocate arbitrary amounts of memory.
const MaxPayload = 1 << 20

// Adapter implements transport.Adapter over a raw stream connection.
//
// Wire format for each message:
//
//	[1 byte: kind][4 bytes: payload length uint32 big-endian][N bytes: payload]
//
// TCP is a stream protocol with no message boundaries, so the
// length prefix lets us always read exactly one message at a time.
// The kind byte carries the text/binary distinction WebSocket gets for free.
type Adapter struct {
	conn       net.Conn                       // the underlying connection
	incoming   chan transport.Message         // delivers received messages to caller
	disconnect chan transport.DisconnectEvent // signals when connection closes
	closeOnce  sync.Once                      // guarantees cleanup runs exactly once
	closed     atomic.Bool
	writeMu    sync.Mutex // one writer at a time, frames must not interleave
}

// New wraps an existing net.Conn in a transport Adapter.
// The conn must already be established; dialing or accepting happens outside.
// Immediately starts a read loop goroutine in the background.
func New(conn net.Conn) *Adapter {
	a := &Adapter{
		conn:       conn,
		incoming:   make(chan transport.Message, 64),
		disconnect: make(chan transport.DisconnectEvent, 1),
	}

	go a.readLoop()

	return a
}

// Send encodes a message as one frame and writes it in a single call.
func (a *Adapter) Send(msg transport.Message) error {
	if a.closed.Load() {
		return transport.ErrTransportClosed
	}
	if len(msg.Payload) > MaxPayload {
		return fmt.Errorf("payload of %d bytes exceeds %d", len(msg.Payload), MaxPayload)
	}

	frame := make([]byte, 5+len(msg.Payload))
	frame[0] = byte(msg.Kind)
	binary.BigEndian.PutUint32(frame[1:5], uint32(len(msg.Payload)))
	copy(frame[5:], msg.Payload)

	a.writeMu.Lock()
	defer a.writeMu.Unlock()
	if _, err := a.conn.Write(frame); err != nil {
		return transport.ErrTransportClosed
	}
	return nil
}

// Receive returns the channel of incoming messages.
// The channel is closed when the connection closes.
func (a *Adapter) Receive() <-chan transport.Message {
	return a.incoming
}

// Disconnected returns a channel that emits exactly one event when
// the connection closes, for any reason.
func (a *Adapter) Disconnected() <-chan transport.DisconnectEvent {
	return a.disconnect
}

func (a *Adapter) IsOpen() bool {
	return !a.closed.Load()
}

// Close shuts down the connection.
// Safe to call multiple times, cleanup runs once.
func (a *Adapter) Close() error {
	var err error
	a.closeOnce.Do(func() {
		a.closed.Store(true)
		err = a.conn.Close()
	})
	return err
}

func (a *Adapter) readLoop() {
	defer func() {
		close(a.incoming)
		a.Close()
	}()

	for {
		var header [5]byte
		if _, err := io.ReadFull(a.conn, header[:]); err != nil {
			a.signalDisconnect(err)
			return
		}
		kind := transport.Kind(header[0])
		payloadLen := binary.BigEndian.Uint32(header[1:])
		if payloadLen > MaxPayload {
			a.signalDisconnect(fmt.Errorf("frame length %d exceeds %d", payloadLen, MaxPayload))
			return
		}

		payload := make([]byte, payloadLen)
		if _, err := io.ReadFull(a.conn, payload); err != nil {
			a.signalDisconnect(err)
			return
		}

		a.incoming <- transport.Message{
			Kind:    kind,
			Payload: payload,
		}
	}
}

// signalDisconnect figures out the reason for disconnection and
// sends exactly one event on the disconnect channel.
func (a *Adapter) signalDisconnect(err error) {
	wasClosed := a.closed.Swap(true)
	event := transport.DisconnectEvent{}

	var netErr net.Error
	switch {
	case err == nil, errors.Is(err, io.EOF), wasClosed, errors.Is(err, net.ErrClosed):
		event.Reason = transport.ReasonClosedClean
	case errors.As(err, &netErr) && netErr.Timeout():
		event.Reason = transport.ReasonTimeout
		event.Err = err
	default:
		event.Reason = transport.ReasonNetworkError
		event.Err = err
	}

	select {
	case a.disconnect <- event:
	default:
	}
}
