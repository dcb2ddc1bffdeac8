package natsutil

import (
	"context"
	"sync"
	"time"

	"github.com/carverauto/nodesim/pkg/controller"
	"github.com/carverauto/nodesim/pkg/logger"
	"github.com/carverauto/nodesim/pkg/models"
	"github.com/carverauto/nodesim/pkg/reconciler"
)

const (
	forwarderBuffer = 256
	publishTimeout  = 5 * time.Second
)

// EventSink is what the Forwarder publishes to. *EventPublisher implements it.
type EventSink interface {
	PublishNodeFault(ctx context.Context, data *models.NodeFaultEventData) error
	PublishNodeTransition(ctx context.Context, data *models.NodeTransitionEventData) error
}

// Forwarder relays alerts and lifecycle transitions to NATS off the caller's
// goroutine. Events are dropped when the buffer is full.
type Forwarder struct {
	sink   EventSink
	logger logger.Logger
	now    func() time.Time

	events chan func(context.Context) error
	done   chan struct{}

	mu      sync.Mutex
	closed  bool
	dropped int
}

// NewForwarder starts a forwarder worker publishing to sink.
func NewForwarder(sink EventSink, log logger.Logger) *Forwarder {
	f := &Forwarder{
		sink:   sink,
		logger: log,
		now:    time.Now,
		events: make(chan func(context.Context) error, forwarderBuffer),
		done:   make(chan struct{}),
	}

	go f.run()

	return f
}

// RaiseAlert implements reconciler.AlertSink.
func (f *Forwarder) RaiseAlert(a reconciler.Alert) {
	data := &models.NodeFaultEventData{
		AlertID:    a.ID,
		NodeID:     a.NodeID,
		StatusCode: a.StatusCode,
		Detail:     a.Detail,
		Timestamp:  a.RaisedAt,
	}

	f.enqueue(func(ctx context.Context) error {
		return f.sink.PublishNodeFault(ctx, data)
	})
}

// OnTransition implements controller.TransitionObserver.
func (f *Forwarder) OnTransition(_ context.Context, t controller.Transition) {
	data := &models.NodeTransitionEventData{
		NodeID:        t.NodeID,
		PreviousState: t.From,
		CurrentState:  t.To,
		Cause:         t.Cause,
		Timestamp:     f.now(),
	}

	f.enqueue(func(ctx context.Context) error {
		return f.sink.PublishNodeTransition(ctx, data)
	})
}

// Dropped returns how many events were discarded because the buffer was full
// or the forwarder was closed.
func (f *Forwarder) Dropped() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.dropped
}

// Close stops accepting events and waits for buffered ones to be published.
func (f *Forwarder) Close() {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}

	f.closed = true
	close(f.events)
	f.mu.Unlock()

	<-f.done
}

func (f *Forwarder) enqueue(fn func(context.Context) error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		f.dropped++
		return
	}

	select {
	case f.events <- fn:
	default:
		f.dropped++
		f.logger.Warn().Int("dropped", f.dropped).Msg("Event forwarder buffer full, dropping event")
	}
}

func (f *Forwarder) run() {
	defer close(f.done)

	for fn := range f.events {
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		if err := fn(ctx); err != nil {
			f.logger.Error().Err(err).Msg("Failed to forward event")
		}
		cancel()
	}
}
