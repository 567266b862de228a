package workers

import (
	"context"
	"crm-chat/contract"
	"crm-chat/domain/event"
	"log/slog"
	"time"
)

// EventFanout forwards reconciled events to side-effect sinks (archive, logs).
//
// Delivery is best effort: no retry, no durability. A sink slower than the
// sink timeout has its context cancelled and the event is skipped for it.
// Sinks never feed back into the reconciled state.
type EventFanout struct {
	log         *slog.Logger
	events      <-chan event.DomainEvent
	sinks       []contract.EventSink
	sinkTimeout time.Duration
}

func NewEventFanout(log *slog.Logger, events <-chan event.DomainEvent, sinkTimeout time.Duration, sinks ...contract.EventSink) *EventFanout {
	return &EventFanout{log: log, events: events, sinks: sinks, sinkTimeout: sinkTimeout}
}

func (w *EventFanout) Run(ctx context.Context) error {
	for {
		select {
		case evt, ok := <-w.events:
			if !ok {
				return nil
			}
			w.Fanout(ctx, evt)
		case <-ctx.Done():
			w.log.Debug("Context done, stopping event fanout")
			return nil
		}
	}
}

// Fanout hands one event to every sink, in order.
func (w *EventFanout) Fanout(ctx context.Context, evt event.DomainEvent) {
	for _, sink := range w.sinks {
		w.consume(ctx, sink, evt)
	}
}

func (w *EventFanout) consume(ctx context.Context, sink contract.EventSink, evt event.DomainEvent) {
	sinkCtx := ctx
	if w.sinkTimeout > 0 {
		var cancel context.CancelFunc
		sinkCtx, cancel = context.WithTimeout(ctx, w.sinkTimeout)
		defer cancel()
	}
	defer func() {
		if r := recover(); r != nil {
			w.log.Error("Sink panicked", "event", evt.Name(), "panic", r)
		}
	}()
	if err := sink.Consume(sinkCtx, evt); err != nil {
		w.log.Warn("Sink failed", "event", evt.Name(), "chat_id", evt.ChatID(), "error", err)
	}
}
