package workers

import (
	"chat-router/contract"
	"chat-router/domain"
	"chat-router/errors"
	"context"
	"fmt"
	"log/slog"
)

var _ contract.Worker = (*PoolUnitWorker)(nil)

// Handler processes one inbound delivery.
type Handler interface {
	Handle(ctx context.Context, in domain.Inbound) error
}

// PoolUnitWorker drains the shared inbound channel. Several of them run side
// by side, so deliveries are processed concurrently and in no global order.
type PoolUnitWorker struct {
	inbound <-chan domain.Inbound
	handler Handler
	monitor contract.Monitor
	log     *slog.Logger
}

func NewPoolUnitWorker(
	inbound <-chan domain.Inbound,
	handler Handler,
	monitor contract.Monitor,
	log *slog.Logger) *PoolUnitWorker {
	return &PoolUnitWorker{
		inbound: inbound,
		handler: handler,
		monitor: monitor,
		log:     log,
	}
}

func (w *PoolUnitWorker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Stopping worker")
			return ctx.Err()
		case in, ok := <-w.inbound:
			if !ok {
				w.log.Debug("Inbound channel is closed")
				return nil
			}
			w.process(ctx, in)
		}
	}
}

// process isolates a delivery: neither an error nor a panic while handling it
// may affect the next one.
func (w *PoolUnitWorker) process(ctx context.Context, in domain.Inbound) {
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("%w: %v", errors.ErrWorkerPanic, r)
			w.log.Error("Panic while handling delivery", "routing_key", in.RoutingKey, "error", err)
			w.monitor.Error("panic while handling delivery", err, map[string]any{"routingKey": string(in.RoutingKey)})
		}
	}()
	if err := w.handler.Handle(ctx, in); err != nil {
		w.log.Debug("Delivery not routed", "routing_key", in.RoutingKey, "error", err)
		w.monitor.Error(fmt.Sprintf("failed to handle %s", in.RoutingKey), err,
			map[string]any{"routingKey": string(in.RoutingKey)})
	}
}
