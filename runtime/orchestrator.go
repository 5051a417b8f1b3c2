// Package runtime holds the router state (directory, groups, message cache)
// and the routing engine, and wires them to the broker through supervised workers.
package runtime

import (
	"chat-router/contract"
	"chat-router/domain"
	"chat-router/errors"
	"chat-router/runtime/workers"
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
)

// Orchestrator consumes every routing key from the broker and spreads the
// deliveries over a pool of workers running Router.Handle.
type Orchestrator struct {
	mu           sync.Mutex
	log          *slog.Logger
	numWorkers   int
	broker       contract.Broker
	handler      workers.Handler
	monitor      contract.Monitor
	supervisor   contract.ISupervisor
	inbound      chan domain.Inbound
	extra        []contract.Worker
	brokerClosed atomic.Bool
}

func NewOrchestrator(log *slog.Logger, supervisor contract.ISupervisor, broker contract.Broker,
	handler workers.Handler, monitor contract.Monitor, numWorkers, bufferSize int) *Orchestrator {
	return &Orchestrator{
		log:        log,
		numWorkers: max(numWorkers, 1),
		broker:     broker,
		handler:    handler,
		monitor:    monitor,
		supervisor: supervisor,
		inbound:    make(chan domain.Inbound, bufferSize),
	}
}

// Add registers supporting workers started along with the pool.
func (o *Orchestrator) Add(w ...contract.Worker) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.extra = append(o.extra, w...)
}

// Channels exposes the internal buffers for capacity sampling.
func (o *Orchestrator) Channels() []workers.NamedChannel {
	return []workers.NamedChannel{{Name: "inbound", Channel: o.inbound}}
}

// Start subscribes to the broker and blocks until the context is canceled,
// Stop is called or the broker stops delivering.
func (o *Orchestrator) Start(ctx context.Context) error {
	deliveries, err := o.broker.Consume(ctx, domain.RoutingKeys)
	if err != nil {
		return fmt.Errorf("failed to consume: %w", err)
	}

	consumer := workers.NewConsumerWorker(o.log, deliveries, o.inbound, func() {
		o.brokerClosed.Store(true)
		o.supervisor.Stop()
	})

	o.mu.Lock()
	o.supervisor.Add(consumer)
	for i := 0; i < o.numWorkers; i++ {
		o.supervisor.Add(workers.NewPoolUnitWorker(o.inbound, o.handler, o.monitor,
			o.log.With("worker", i)))
	}
	o.supervisor.Add(o.extra...)
	o.mu.Unlock()

	o.log.Info("Starting orchestrator and all supervised workers", "workers", o.numWorkers)
	o.supervisor.Run(ctx)

	if o.brokerClosed.Load() && ctx.Err() == nil {
		return errors.ErrBrokerClosed
	}
	return nil
}

// Stop cancels every supervised worker. Deliveries still buffered are dropped.
func (o *Orchestrator) Stop() {
	o.log.Info("Requesting orchestrator shutdown")
	o.supervisor.Stop()
}
