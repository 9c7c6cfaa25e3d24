package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/risa-org/evchan/dispatch"
	"github.com/risa-org/evchan/heartbeat"
	"github.com/risa-org/evchan/session"
	"github.com/risa-org/evchan/transport"
)

// compile-time checks that one Collector serves every observer hook
var (
	_ session.Observer   = (*Collector)(nil)
	_ heartbeat.Observer = (*Collector)(nil)
	_ dispatch.Observer  = (*Collector)(nil)
)

func TestCollectorCounts(t *testing.T) {
	c := New(prometheus.NewRegistry(), "")

	c.ConnectAttempt()
	c.ConnectAttempt()
	c.Opened()
	c.Lost(transport.ReasonNetworkError)
	c.Lost(transport.ReasonDialFailed)
	c.Lost(transport.ReasonNetworkError)
	c.ReconnectScheduled()
	c.DecodeFailed()
	c.HeartbeatSent()
	c.EventDispatched(7)
	c.EventDispatched(7)
	c.EventDispatched(4)
	c.ForcedLogout()
	c.StateChanged(session.StateOpen)

	checks := []struct {
		name string
		got  float64
		want float64
	}{
		{"connect attempts", testutil.ToFloat64(c.connectAttempts), 2},
		{"opens", testutil.ToFloat64(c.opens), 1},
		{"network losses", testutil.ToFloat64(c.losses.WithLabelValues("network_error")), 2},
		{"dial failures", testutil.ToFloat64(c.losses.WithLabelValues("dial_failed")), 1},
		{"reconnects", testutil.ToFloat64(c.reconnectsScheduled), 1},
		{"decode failures", testutil.ToFloat64(c.decodeFailures), 1},
		{"heartbeats", testutil.ToFloat64(c.heartbeatsSent), 1},
		{"type 7 events", testutil.ToFloat64(c.eventsDispatched.WithLabelValues("7")), 2},
		{"type 4 events", testutil.ToFloat64(c.eventsDispatched.WithLabelValues("4")), 1},
		{"forced logouts", testutil.ToFloat64(c.forcedLogouts), 1},
		{"state", testutil.ToFloat64(c.state), float64(session.StateOpen)},
	}
	for _, ch := range checks {
		if ch.got != ch.want {
			t.Errorf("%s: got %v, want %v", ch.name, ch.got, ch.want)
		}
	}
}

func TestNilCollectorIsSafe(t *testing.T) {
	var c *Collector
	c.ConnectAttempt()
	c.Opened()
	c.Lost(transport.ReasonTimeout)
	c.ReconnectScheduled()
	c.DecodeFailed()
	c.HeartbeatSent()
	c.EventDispatched(1)
	c.ForcedLogout()
	c.StateChanged(session.StateClosed)
}

func TestNamespace(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := New(reg, "console")
	c.Opened()

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather failed: %v", err)
	}
	found := false
	for _, f := range families {
		if f.GetName() == "console_opens_total" {
			found = true
		}
	}
	if !found {
		t.Error("expected console_opens_total to be registered")
	}
}
