package workers

import (
	"chat-router/domain"
	"context"
	"log/slog"
)

// ConsumerWorker moves broker deliveries into the bounded inbound buffer
// shared by the pool workers. When the broker stream ends it calls onClosed.
type ConsumerWorker struct {
	log        *slog.Logger
	deliveries <-chan domain.Inbound
	inbound    chan<- domain.Inbound
	onClosed   func()
}

func NewConsumerWorker(log *slog.Logger, deliveries <-chan domain.Inbound,
	inbound chan<- domain.Inbound, onClosed func()) *ConsumerWorker {
	return &ConsumerWorker{log: log, deliveries: deliveries, inbound: inbound, onClosed: onClosed}
}

func (w *ConsumerWorker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case in, ok := <-w.deliveries:
			if !ok {
				w.log.Warn("Broker stopped delivering")
				if w.onClosed != nil {
					w.onClosed()
				}
				return nil
			}
			select {
			case <-ctx.Done():
				return nil
			case w.inbound <- in:
			}
		}
	}
}
