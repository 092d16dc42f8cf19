package workers

import (
	"context"
	"livechat/contract"
	"livechat/domain/event"
	"log/slog"
	"sync"
	"time"
)

const defaultSinkTimeout = 5 * time.Second

// EventFanout delivers session notifications to every sink, one event at a time,
// in publication order. A failing or slow sink is logged and skipped.
type EventFanout struct {
	log         *slog.Logger
	events      chan event.DomainEvent
	sinks       []contract.EventSink
	sinkTimeout time.Duration
	closeOnce   sync.Once
	closed      chan struct{}
}

func NewEventFanout(log *slog.Logger, bufferSize int, sinkTimeout time.Duration, sinks ...contract.EventSink) *EventFanout {
	if sinkTimeout <= 0 {
		sinkTimeout = defaultSinkTimeout
	}
	return &EventFanout{
		log:         log,
		events:      make(chan event.DomainEvent, bufferSize),
		sinks:       sinks,
		sinkTimeout: sinkTimeout,
		closed:      make(chan struct{}),
	}
}

// Publish queues evt, it blocks while the buffer is full.
// Events published after Close are dropped.
func (w *EventFanout) Publish(ctx context.Context, evt event.DomainEvent) {
	select {
	case <-w.closed:
		w.log.Debug("Event published after close", "type", evt.Type())
		return
	default:
	}
	select {
	case w.events <- evt:
	case <-ctx.Done():
		w.log.Debug("Event lost, context done", "type", evt.Type())
	}
}

// Close stops accepting events. Run returns once the queued ones are delivered.
// Publish and Close must be called from the same goroutine.
func (w *EventFanout) Close() {
	w.closeOnce.Do(func() {
		close(w.closed)
		close(w.events)
	})
}

// Channel exposes the queue for capacity monitoring.
func (w *EventFanout) Channel() chan event.DomainEvent {
	return w.events
}

func (w *EventFanout) Run(ctx context.Context) error {
	for {
		select {
		case evt, ok := <-w.events:
			if !ok {
				w.log.Debug("Fanout closed")
				return nil
			}
			w.Fanout(ctx, evt)
		case <-ctx.Done():
			w.log.Debug("Context done, stopping fanout")
			return nil
		}
	}
}

// Fanout One sink for each event
func (w *EventFanout) Fanout(ctx context.Context, evt event.DomainEvent) {
	for _, sink := range w.sinks {
		sinkCtx, cancel := context.WithTimeout(ctx, w.sinkTimeout)
		if err := sink.Consume(sinkCtx, evt); err != nil {
			w.log.Warn("Sink failed to consume event", "type", evt.Type(), "error", err)
		}
		cancel()
	}
}
