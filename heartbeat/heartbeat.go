package heartbeat

import (
	"context"
	"sync"
	"time"

	"github.com/risa-org/evchan/codec"
	"github.com/risa-org/evchan/transport"
)

// DefaultInterval is shorter than the idle timeout of every proxy
// the console is known to sit behind.
const DefaultInterval = 3 * time.Second

// Conn is the part of a transport the ticker needs.
// transport.Adapter satisfies it.
type Conn interface {
	Send(msg transport.Message) error
	IsOpen() bool
}

// Observer is told about every heartbeat that left the process.
type Observer interface {
	HeartbeatSent()
}

// Ticker sends the keep-alive marker on one connection at a fixed period.
//
// Send failures are deliberately dropped: a dead connection shows up as a
// disconnect on the transport, and the session handles it there.
type Ticker struct {
	interval time.Duration
	observer Observer

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a stopped ticker. A non-positive interval means DefaultInterval.
func New(interval time.Duration, observer Observer) *Ticker {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Ticker{interval: interval, observer: observer}
}

// Start begins emitting heartbeats on conn, replacing any previous run.
func (t *Ticker) Start(conn Conn) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.stopLocked()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	t.cancel = cancel
	t.done = done
	go t.loop(ctx, conn, done)
}

// Stop cancels the periodic emission and waits for the loop to exit,
// so no heartbeat is sent after Stop returns. Safe when not running.
func (t *Ticker) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopLocked()
}

// Running reports whether a loop is active.
func (t *Ticker) Running() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cancel != nil
}

func (t *Ticker) stopLocked() {
	if t.cancel == nil {
		return
	}
	t.cancel()
	<-t.done
	t.cancel = nil
	t.done = nil
}

func (t *Ticker) loop(ctx context.Context, conn Conn, done chan struct{}) {
	defer close(done)

	tick := time.NewTicker(t.interval)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
			if ctx.Err() != nil {
				return
			}
			// a closed connection is skipped, not an error
			if !conn.IsOpen() {
				continue
			}
			if err := conn.Send(codec.Heartbeat()); err != nil {
				continue
			}
			if t.observer != nil {
				t.observer.HeartbeatSent()
			}
		}
	}
}
