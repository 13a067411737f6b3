package events

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/therealutkarshpriyadarshi/restream/internal/metrics"
	"github.com/therealutkarshpriyadarshi/restream/pkg/models"
)

// Publisher delivers lifecycle events to one external system
type Publisher interface {
	Name() string
	Publish(ctx context.Context, event models.BroadcastEvent) error
}

// Dispatcher turns supervisor transitions into events and fans them out to
// publishers on its own goroutine, so a slow publisher never holds up the
// supervisor.
type Dispatcher struct {
	publishers []Publisher
	events     chan models.BroadcastEvent
	timeout    time.Duration
	logger     zerolog.Logger

	mu     sync.RWMutex
	closed bool
}

// NewDispatcher creates a dispatcher with a queue of the given size. Each
// publish call is bounded by timeout.
func NewDispatcher(queueSize int, timeout time.Duration, logger *zerolog.Logger, publishers ...Publisher) *Dispatcher {
	if queueSize < 1 {
		queueSize = 64
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	l := log.Logger
	if logger != nil {
		l = *logger
	}

	return &Dispatcher{
		publishers: publishers,
		events:     make(chan models.BroadcastEvent, queueSize),
		timeout:    timeout,
		logger:     l.With().Str("component", "events").Logger(),
	}
}

// BroadcastChanged implements broadcast.Observer
func (d *Dispatcher) BroadcastChanged(status models.BroadcastStatus) {
	d.Enqueue(models.NewBroadcastEvent(status))
}

// Enqueue queues an event without blocking. It reports false if the event
// was dropped because the queue is full or the dispatcher is closed.
func (d *Dispatcher) Enqueue(event models.BroadcastEvent) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		return false
	}

	select {
	case d.events <- event:
		return true
	default:
		metrics.RecordEventDropped()
		d.logger.Warn().
			Str("broadcast_id", event.BroadcastID).
			Str("event_type", event.Type).
			Msg("Event queue full, dropping event")
		return false
	}
}

// Run delivers queued events until Close is called and the queue is drained,
// or ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-d.events:
			if !ok {
				return nil
			}
			d.deliver(ctx, event)
		}
	}
}

// Close stops accepting events; Run returns once the backlog is delivered
func (d *Dispatcher) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return
	}
	d.closed = true
	close(d.events)
}

func (d *Dispatcher) deliver(ctx context.Context, event models.BroadcastEvent) {
	for _, p := range d.publishers {
		pctx, cancel := context.WithTimeout(ctx, d.timeout)
		err := p.Publish(pctx, event)
		cancel()

		metrics.RecordEventPublished(p.Name(), err)
		if err != nil {
			d.logger.Error().
				Err(err).
				Str("publisher", p.Name()).
				Str("broadcast_id", event.BroadcastID).
				Str("event_type", event.Type).
				Msg("Failed to publish event")
		}
	}
}
