// Package metrics exposes event-channel activity as Prometheus metrics.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/risa-org/evchan/session"
	"github.com/risa-org/evchan/transport"
)

// DefaultNamespace prefixes every metric name.
const DefaultNamespace = "evchan"

// Collector implements session.Observer, heartbeat.Observer and
// dispatch.Observer. A nil *Collector is valid and records nothing.
type Collector struct {
	connectAttempts     prometheus.Counter
	opens               prometheus.Counter
	losses              *prometheus.CounterVec
	reconnectsScheduled prometheus.Counter
	decodeFailures      prometheus.Counter
	heartbeatsSent      prometheus.Counter
	eventsDispatched    *prometheus.CounterVec
	forcedLogouts       prometheus.Counter
	state               prometheus.Gauge
}

// New registers the metric set on reg. A nil reg means
// prometheus.DefaultRegisterer; registering twice on the same
// registerer panics, as promauto does.
func New(reg prometheus.Registerer, namespace string) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if namespace == "" {
		namespace = DefaultNamespace
	}
	factory := promauto.With(reg)

	return &Collector{
		connectAttempts: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connect_attempts_total",
			Help:      "Dial attempts against the event endpoint",
		}),
		opens: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "opens_total",
			Help:      "Connections that reached the open state",
		}),
		losses: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "losses_total",
			Help:      "Connections lost or failed, by reason",
		}, []string{"reason"}),
		reconnectsScheduled: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconnects_scheduled_total",
			Help:      "Reconnect attempts scheduled after a loss",
		}),
		decodeFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decode_failures_total",
			Help:      "Inbound frames dropped as malformed",
		}),
		heartbeatsSent: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "heartbeats_sent_total",
			Help:      "Keep-alive markers written to the connection",
		}),
		eventsDispatched: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_dispatched_total",
			Help:      "Events handed to the dispatcher, by type",
		}, []string{"type"}),
		forcedLogouts: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "forced_logouts_total",
			Help:      "Logouts triggered by an invalidation event",
		}),
		state: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "session_state",
			Help:      "Current session state (0 idle, 1 connecting, 2 open, 3 closing, 4 closed)",
		}),
	}
}

func (c *Collector) ConnectAttempt() {
	if c == nil {
		return
	}
	c.connectAttempts.Inc()
}

func (c *Collector) Opened() {
	if c == nil {
		return
	}
	c.opens.Inc()
}

func (c *Collector) Lost(reason transport.DisconnectReason) {
	if c == nil {
		return
	}
	c.losses.WithLabelValues(reason.String()).Inc()
}

func (c *Collector) ReconnectScheduled() {
	if c == nil {
		return
	}
	c.reconnectsScheduled.Inc()
}

func (c *Collector) DecodeFailed() {
	if c == nil {
		return
	}
	c.decodeFailures.Inc()
}

func (c *Collector) StateChanged(state session.State) {
	if c == nil {
		return
	}
	c.state.Set(float64(state))
}

func (c *Collector) HeartbeatSent() {
	if c == nil {
		return
	}
	c.heartbeatsSent.Inc()
}

func (c *Collector) EventDispatched(eventType int) {
	if c == nil {
		return
	}
	c.eventsDispatched.WithLabelValues(strconv.Itoa(eventType)).Inc()
}

func (c *Collector) ForcedLogout() {
	if c == nil {
		return
	}
	c.forcedLogouts.Inc()
}
