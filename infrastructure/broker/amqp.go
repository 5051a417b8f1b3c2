// Package broker adapts message brokers to contract.Broker.
package broker

import (
	"chat-router/contract"
	"chat-router/domain"
	"chat-router/errors"
	"context"
	"fmt"
	"log/slog"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
)

var _ contract.Broker = (*AMQPBroker)(nil)

type AMQPConfig struct {
	URL          string
	Exchange     string
	ExchangeKind string
	Naming       domain.Naming
	Prefetch     int
	// Confirms puts the publishing channel in confirm mode, every outcome is given to OnConfirm.
	Confirms  bool
	OnConfirm domain.ConfirmFunc
}

// publishChannel is the part of *amqp.Channel used to declare inboxes and publish.
type publishChannel interface {
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	PublishWithDeferredConfirmWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool,
		msg amqp.Publishing) (*amqp.DeferredConfirmation, error)
	Confirm(noWait bool) error
	IsClosed() bool
	Close() error
}

// AMQPBroker talks to RabbitMQ over one consuming channel and one publishing
// channel. Publishing is serialized by a mutex. The server closes a channel on
// any channel-level error, so the publishing channel is reopened when found
// closed and inboxes are declared on short-lived channels of their own.
type AMQPBroker struct {
	log         *slog.Logger
	cfg         AMQPConfig
	conn        *amqp.Connection
	openChannel func() (publishChannel, error)
	mu          sync.Mutex
	pub         publishChannel
	closed      bool
}

func newAMQPBroker(log *slog.Logger, cfg AMQPConfig, openChannel func() (publishChannel, error)) *AMQPBroker {
	return &AMQPBroker{log: log, cfg: cfg, openChannel: openChannel}
}

func DialAMQP(log *slog.Logger, cfg AMQPConfig) (*AMQPBroker, error) {
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("%w: dial: %v", errors.ErrTransport, err)
	}
	setup, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("%w: open channel: %v", errors.ErrTransport, err)
	}
	if err = setup.ExchangeDeclare(cfg.Exchange, cfg.ExchangeKind, true, false, false, false, nil); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("%w: declare exchange %s: %v", errors.ErrTransport, cfg.Exchange, err)
	}
	_ = setup.Close()

	b := newAMQPBroker(log, cfg, func() (publishChannel, error) { return conn.Channel() })
	b.conn = conn
	b.mu.Lock()
	_, err = b.channel()
	b.mu.Unlock()
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	go b.watch(conn.NotifyClose(make(chan *amqp.Error, 1)))
	return b, nil
}

func (b *AMQPBroker) watch(closed <-chan *amqp.Error) {
	if err, ok := <-closed; ok && err != nil {
		b.log.Error("Broker connection lost", "code", err.Code, "reason", err.Reason)
	}
}

// Consume declares and binds one queue per routing key and merges their deliveries.
// A delivery is tagged with the key of the queue it came from, whatever key it was published with.
// The returned channel is closed when the connection drops or ctx is canceled.
func (b *AMQPBroker) Consume(ctx context.Context, keys []domain.RoutingKey) (<-chan domain.Inbound, error) {
	ch, err := b.conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("%w: open channel: %v", errors.ErrTransport, err)
	}
	sources, err := b.bind(ch, keys)
	if err != nil {
		_ = ch.Close()
		return nil, err
	}

	out := make(chan domain.Inbound)
	var wg sync.WaitGroup
	for key, source := range sources {
		wg.Add(1)
		go func(key domain.RoutingKey, source <-chan amqp.Delivery) {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case d, ok := <-source:
					if !ok {
						return
					}
					select {
					case <-ctx.Done():
						return
					case out <- toInbound(key, d):
					}
				}
			}
		}(key, source)
	}
	go func() {
		wg.Wait()
		_ = ch.Close()
		close(out)
	}()
	return out, nil
}

func (b *AMQPBroker) bind(ch *amqp.Channel, keys []domain.RoutingKey) (map[domain.RoutingKey]<-chan amqp.Delivery, error) {
	if b.cfg.Prefetch > 0 {
		if err := ch.Qos(b.cfg.Prefetch, 0, false); err != nil {
			return nil, fmt.Errorf("%w: qos: %v", errors.ErrTransport, err)
		}
	}
	sources := make(map[domain.RoutingKey]<-chan amqp.Delivery, len(keys))
	for _, key := range keys {
		queue := b.cfg.Naming.Queue(key)
		if _, err := ch.QueueDeclare(queue, false, false, false, false, nil); err != nil {
			return nil, fmt.Errorf("%w: declare queue %s: %v", errors.ErrTransport, queue, err)
		}
		if err := ch.QueueBind(queue, key.String(), b.cfg.Exchange, false, nil); err != nil {
			return nil, fmt.Errorf("%w: bind queue %s: %v", errors.ErrTransport, queue, err)
		}
		deliveries, err := ch.Consume(queue, "", true, false, false, false, nil)
		if err != nil {
			return nil, fmt.Errorf("%w: consume %s: %v", errors.ErrTransport, queue, err)
		}
		b.log.Info("Consuming queue", "queue", queue, "routing_key", key)
		sources[key] = deliveries
	}
	return sources, nil
}

// Deliver declares the destination queue then publishes through the default
// exchange, so the inbox exists even if its owner never connected. The declare
// is repeated for every delivery since a queue may be deleted at any time.
func (b *AMQPBroker) Deliver(ctx context.Context, destination string, body []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return errors.ErrBrokerClosed
	}
	if err := b.declare(destination); err != nil {
		return err
	}
	return b.publish(ctx, destination, amqp.Publishing{
		ContentType: "application/json",
		Body:        body,
	})
}

// Reply publishes to a caller supplied reply queue, which is never declared here.
func (b *AMQPBroker) Reply(ctx context.Context, replyTo, correlationID string, body []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return errors.ErrBrokerClosed
	}
	return b.publish(ctx, replyTo, amqp.Publishing{
		ContentType:   "application/json",
		CorrelationId: correlationID,
		Body:          body,
	})
}

// declare runs on a throwaway channel: a queue declared differently by a
// client (durable, exclusive) makes the server close the channel, and that
// must only cost this delivery.
func (b *AMQPBroker) declare(queue string) error {
	ch, err := b.openChannel()
	if err != nil {
		return fmt.Errorf("%w: open channel: %v", errors.ErrTransport, err)
	}
	defer func() { _ = ch.Close() }()
	if _, err = ch.QueueDeclare(queue, false, false, false, false, nil); err != nil {
		return fmt.Errorf("declare queue %s: %w", queue, err)
	}
	return nil
}

// channel returns the publishing channel, reopening it in the configured mode
// when the server closed it. Must be called with mu held.
func (b *AMQPBroker) channel() (publishChannel, error) {
	if b.pub != nil && !b.pub.IsClosed() {
		return b.pub, nil
	}
	reopened := b.pub != nil
	ch, err := b.openChannel()
	if err != nil {
		return nil, fmt.Errorf("%w: open channel: %v", errors.ErrTransport, err)
	}
	if b.cfg.Confirms {
		if err = ch.Confirm(false); err != nil {
			_ = ch.Close()
			return nil, fmt.Errorf("%w: confirm mode: %v", errors.ErrTransport, err)
		}
	}
	if reopened {
		b.log.Warn("Publishing channel was closed by the server, reopened")
	}
	b.pub = ch
	return ch, nil
}

// publish must be called with mu held.
func (b *AMQPBroker) publish(ctx context.Context, queue string, msg amqp.Publishing) error {
	pub, err := b.channel()
	if err != nil {
		return err
	}
	if !b.cfg.Confirms {
		return pub.PublishWithContext(ctx, "", queue, false, false, msg)
	}
	confirmation, err := pub.PublishWithDeferredConfirmWithContext(ctx, "", queue, false, false, msg)
	if err != nil {
		return err
	}
	if b.cfg.OnConfirm != nil && confirmation != nil {
		go func() { b.cfg.OnConfirm(queue, confirmation.Wait()) }()
	}
	return nil
}

func (b *AMQPBroker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	if b.pub != nil {
		_ = b.pub.Close()
	}
	if b.conn == nil {
		return nil
	}
	return b.conn.Close()
}

func toInbound(key domain.RoutingKey, d amqp.Delivery) domain.Inbound {
	return domain.Inbound{
		RoutingKey:    key,
		Body:          d.Body,
		Headers:       map[string]any(d.Headers),
		CorrelationID: d.CorrelationId,
		ReplyTo:       d.ReplyTo,
	}
}
