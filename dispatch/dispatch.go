package dispatch

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/risa-org/evchan/codec"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/risa-org/evchan/dispatch"

// Handler reacts to one event. It runs on the connection's read goroutine,
// so it should return quickly.
type Handler func(ev codec.Event)

// Stopper is the session the dispatcher shuts down on invalidation.
// Both methods take the generation a batch was read under; a superseded
// generation is never current and never stops anything.
type Stopper interface {
	Current(gen uint64) bool
	StopGeneration(gen uint64) bool
}

// Observer counts dispatch activity.
type Observer interface {
	EventDispatched(eventType int)
	ForcedLogout()
}

// Options tunes a Dispatcher. Zero values pick the defaults.
type Options struct {
	Logger   *slog.Logger
	Observer Observer
	Tracer   trace.Tracer
}

// Dispatcher routes decoded events to host handlers and owns the
// force-logout policy.
type Dispatcher struct {
	stopper  Stopper
	logout   func()
	logger   *slog.Logger
	observer Observer
	tracer   trace.Tracer

	mu       sync.RWMutex
	handlers map[int]Handler

	// lifetime serializes invalidation against Restart
	lifetime  sync.Mutex
	loggedOut atomic.Bool
}

// New creates a dispatcher. stopper is stopped and logout called (in that
// order) the first time an invalidation event arrives from the current
// generation; logout may be nil.
func New(stopper Stopper, logout func(), opts Options) *Dispatcher {
	d := &Dispatcher{
		stopper:  stopper,
		logout:   logout,
		logger:   opts.Logger,
		observer: opts.Observer,
		tracer:   opts.Tracer,
		handlers: make(map[int]Handler),
	}
	if d.logger == nil {
		d.logger = slog.Default()
	}
	d.logger = d.logger.With("component", "dispatch")
	if d.tracer == nil {
		d.tracer = otel.Tracer(tracerName)
	}
	return d
}

// On registers h for eventType, replacing any previous handler.
func (d *Dispatcher) On(eventType int, h Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if h == nil {
		delete(d.handlers, eventType)
		return
	}
	d.handlers[eventType] = h
}

// Off removes the handler for eventType.
func (d *Dispatcher) Off(eventType int) {
	d.On(eventType, nil)
}

// Restart re-arms the logout guard and runs start (which begins the new
// lifetime) before any invalidation from the old one can complete.
func (d *Dispatcher) Restart(start func()) {
	d.lifetime.Lock()
	defer d.lifetime.Unlock()
	d.loggedOut.Store(false)
	if start != nil {
		start()
	}
}

// LoggedOut reports whether the logout signal fired in this lifetime.
func (d *Dispatcher) LoggedOut() bool {
	return d.loggedOut.Load()
}

// Dispatch delivers batch, read under generation gen, in order. Unknown
// tags are ignored. Delivery stops as soon as gen is no longer current.
func (d *Dispatcher) Dispatch(gen uint64, batch codec.Batch) {
	_, span := d.tracer.Start(context.Background(), "dispatch.batch",
		trace.WithAttributes(
			attribute.Int("evchan.batch.size", len(batch)),
			attribute.Int64("evchan.generation", int64(gen)),
		),
	)
	defer span.End()

	for i, ev := range batch {
		if !d.current(gen) {
			d.logger.Debug("dropping rest of superseded batch", "generation", gen, "dropped", len(batch)-i)
			span.AddEvent("superseded")
			return
		}
		d.invoke(ev)
		if d.observer != nil {
			d.observer.EventDispatched(ev.Type)
		}
		if ev.Type == codec.TypeForceLogout {
			span.AddEvent("force_logout")
			d.invalidate(gen)
		}
	}
}

func (d *Dispatcher) current(gen uint64) bool {
	return d.stopper == nil || d.stopper.Current(gen)
}

func (d *Dispatcher) invoke(ev codec.Event) {
	d.mu.RLock()
	h := d.handlers[ev.Type]
	d.mu.RUnlock()
	if h == nil {
		return
	}

	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("event handler panicked", "type", ev.Type, "panic", r)
		}
	}()
	h(ev)
}

func (d *Dispatcher) invalidate(gen uint64) {
	d.lifetime.Lock()
	if d.stopper != nil && !d.stopper.StopGeneration(gen) {
		d.lifetime.Unlock()
		return
	}
	fire := d.loggedOut.CompareAndSwap(false, true)
	d.lifetime.Unlock()
	if !fire {
		return
	}

	d.logger.Warn("session invalidated by backend, logging out", "generation", gen)
	if d.observer != nil {
		d.observer.ForcedLogout()
	}
	if d.logout != nil {
		d.logout()
	}
}
