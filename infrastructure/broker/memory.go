package broker

import (
	"chat-router/contract"
	"chat-router/domain"
	"chat-router/errors"
	"context"
	"slices"
	"sync"
)

var _ contract.Broker = (*MemoryBroker)(nil)

// Reply is a registration answer captured by the MemoryBroker.
type Reply struct {
	ReplyTo       string
	CorrelationID string
	Body          []byte
}

// MemoryBroker is an in-process broker. Publish feeds the router, Deliver and
// Reply store what the router sends so it can be read back per destination.
type MemoryBroker struct {
	// sendMu keeps Close from closing inbound under a pending Publish.
	sendMu     sync.RWMutex
	mu         sync.Mutex
	inbound    chan domain.Inbound
	queues     map[string][][]byte
	replies    []Reply
	failures   map[string]error
	closed     bool
	onDelivery func(destination string, body []byte)
}

func NewMemoryBroker(bufferSize int) *MemoryBroker {
	return &MemoryBroker{
		inbound:  make(chan domain.Inbound, bufferSize),
		queues:   make(map[string][][]byte),
		failures: make(map[string]error),
	}
}

// OnDelivery is called after every stored delivery, outside the broker lock.
func (b *MemoryBroker) OnDelivery(fn func(destination string, body []byte)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onDelivery = fn
}

// Publish plays the role of a client publishing on the exchange.
func (b *MemoryBroker) Publish(ctx context.Context, in domain.Inbound) error {
	b.sendMu.RLock()
	defer b.sendMu.RUnlock()
	b.mu.Lock()
	closed := b.closed
	b.mu.Unlock()
	if closed {
		return errors.ErrBrokerClosed
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case b.inbound <- in:
		return nil
	}
}

// Consume ignores keys: every published delivery reaches the single consumer.
func (b *MemoryBroker) Consume(_ context.Context, _ []domain.RoutingKey) (<-chan domain.Inbound, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, errors.ErrBrokerClosed
	}
	return b.inbound, nil
}

func (b *MemoryBroker) Deliver(_ context.Context, destination string, body []byte) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return errors.ErrBrokerClosed
	}
	if err, ok := b.failures[destination]; ok {
		b.mu.Unlock()
		return err
	}
	b.queues[destination] = append(b.queues[destination], slices.Clone(body))
	notify := b.onDelivery
	b.mu.Unlock()

	if notify != nil {
		notify(destination, body)
	}
	return nil
}

func (b *MemoryBroker) Reply(_ context.Context, replyTo, correlationID string, body []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return errors.ErrBrokerClosed
	}
	b.replies = append(b.replies, Reply{ReplyTo: replyTo, CorrelationID: correlationID, Body: slices.Clone(body)})
	return nil
}

// FailDeliveries makes every delivery to destination fail with err.
func (b *MemoryBroker) FailDeliveries(destination string, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures[destination] = err
}

// Messages returns what was delivered to destination, oldest first.
func (b *MemoryBroker) Messages(destination string) [][]byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return slices.Clone(b.queues[destination])
}

// Destinations lists every queue that received at least one delivery.
func (b *MemoryBroker) Destinations() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	names := make([]string, 0, len(b.queues))
	for name := range b.queues {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

func (b *MemoryBroker) Replies() []Reply {
	b.mu.Lock()
	defer b.mu.Unlock()
	return slices.Clone(b.replies)
}

// Close ends the Consume stream.
func (b *MemoryBroker) Close() error {
	b.sendMu.Lock()
	defer b.sendMu.Unlock()
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	close(b.inbound)
	return nil
}
