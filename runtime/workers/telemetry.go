package workers

import (
	"chat-router/contract"
	"chat-router/domain/event"
	"context"
	"log/slog"
	"time"
)

// TelemetryWorker drains the monitoring events into the sinks.
// A slow or failing sink only delays telemetry, never routing.
type TelemetryWorker struct {
	log           *slog.Logger
	telemetryChan <-chan event.Event
	sinks         []contract.EventSink
	sinkTimeout   time.Duration
}

func NewTelemetryWorker(log *slog.Logger,
	telemetryChan <-chan event.Event,
	sinkTimeout time.Duration,
	sinks ...contract.EventSink) *TelemetryWorker {
	return &TelemetryWorker{
		log:           log,
		telemetryChan: telemetryChan,
		sinks:         sinks,
		sinkTimeout:   sinkTimeout,
	}
}

func (w TelemetryWorker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			w.flush()
			return nil
		case evt, ok := <-w.telemetryChan:
			if !ok {
				return nil
			}
			w.handle(ctx, evt)
		}
	}
}

// flush writes what is still buffered so the journal keeps the last events of a shutdown.
func (w TelemetryWorker) flush() {
	for {
		select {
		case evt, ok := <-w.telemetryChan:
			if !ok {
				return
			}
			w.handle(context.Background(), evt)
		default:
			return
		}
	}
}

func (w TelemetryWorker) handle(ctx context.Context, evt event.Event) {
	for _, sink := range w.sinks {
		sinkCtx, cancel := context.WithTimeout(ctx, w.sinkTimeout)
		if err := sink.Consume(sinkCtx, evt); err != nil {
			w.log.Warn("Sink failed to consume event", "type", evt.Type, "error", err)
		}
		cancel()
	}
}
