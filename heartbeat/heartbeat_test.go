package heartbeat

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/risa-org/evchan/codec"
	"github.com/risa-org/evchan/transport"
)

// fakeConn records heartbeats and can be flipped closed.
type fakeConn struct {
	mu     sync.Mutex
	sent   []transport.Message
	closed atomic.Bool
}

func (c *fakeConn) Send(msg transport.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, msg)
	return nil
}

func (c *fakeConn) IsOpen() bool { return !c.closed.Load() }

func (c *fakeConn) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sent)
}

type countingObserver struct{ n atomic.Int64 }

func (o *countingObserver) HeartbeatSent() { o.n.Add(1) }

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestTickerSendsMarkerWhileOpen(t *testing.T) {
	conn := &fakeConn{}
	obs := &countingObserver{}
	tk := New(10*time.Millisecond, obs)

	tk.Start(conn)
	defer tk.Stop()

	waitFor(t, func() bool { return conn.count() >= 3 })

	conn.mu.Lock()
	for i, msg := range conn.sent {
		if msg.Kind != transport.KindText || string(msg.Payload) != codec.HeartbeatMarker {
			t.Errorf("heartbeat %d: unexpected message %v %q", i, msg.Kind, msg.Payload)
		}
	}
	conn.mu.Unlock()

	if obs.n.Load() == 0 {
		t.Error("expected observer to be told about sent heartbeats")
	}
}

func TestTickerSkipsClosedConnection(t *testing.T) {
	conn := &fakeConn{}
	conn.closed.Store(true)
	tk := New(5*time.Millisecond, nil)

	tk.Start(conn)
	time.Sleep(50 * time.Millisecond)
	tk.Stop()

	if n := conn.count(); n != 0 {
		t.Errorf("expected no sends on a closed connection, got %d", n)
	}
}

func TestStopHaltsEmission(t *testing.T) {
	conn := &fakeConn{}
	tk := New(5*time.Millisecond, nil)

	tk.Start(conn)
	waitFor(t, func() bool { return conn.count() >= 1 })
	tk.Stop()

	if tk.Running() {
		t.Error("expected Running false after Stop")
	}

	after := conn.count()
	time.Sleep(30 * time.Millisecond)
	if n := conn.count(); n != after {
		t.Errorf("heartbeats continued after Stop: %d -> %d", after, n)
	}
}

func TestStopWhenNotRunning(t *testing.T) {
	tk := New(time.Second, nil)
	tk.Stop()
	tk.Stop()
	if tk.Running() {
		t.Error("expected Running false")
	}
}

func TestStartReplacesPreviousRun(t *testing.T) {
	first := &fakeConn{}
	second := &fakeConn{}
	tk := New(5*time.Millisecond, nil)

	tk.Start(first)
	waitFor(t, func() bool { return first.count() >= 1 })
	tk.Start(second)
	defer tk.Stop()

	before := first.count()
	waitFor(t, func() bool { return second.count() >= 2 })
	if n := first.count(); n != before {
		t.Errorf("first connection still receiving heartbeats: %d -> %d", before, n)
	}
}

func TestDefaultInterval(t *testing.T) {
	if tk := New(0, nil); tk.interval != DefaultInterval {
		t.Errorf("expected default interval %v, got %v", DefaultInterval, tk.interval)
	}
}
