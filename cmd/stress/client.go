package main

import (
	"chat-router/domain"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// client simulates one chat user with its own channel and inbox.
type client struct {
	log      *slog.Logger
	cfg      Config
	ch       *amqp.Channel
	name     string
	id       string
	sent     atomic.Int64
	received atomic.Int64
	notices  atomic.Int64
}

func newClient(log *slog.Logger, cfg Config, conn *amqp.Connection, name string) (*client, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, err
	}
	return &client{log: log.With("client", name), cfg: cfg, ch: ch, name: name}, nil
}

// register asks for a uuid as user ID and waits for the correlated reply.
func (c *client) register(ctx context.Context) error {
	reply, err := c.ch.QueueDeclare("", false, true, true, false, nil)
	if err != nil {
		return err
	}
	replies, err := c.ch.Consume(reply.Name, "", true, true, false, false, nil)
	if err != nil {
		return err
	}

	correlationID := uuid.NewString()
	body, err := json.Marshal(map[string]string{"username": c.name, "uuid": uuid.NewString()})
	if err != nil {
		return err
	}
	if err = c.ch.PublishWithContext(ctx, c.cfg.Exchange, domain.RegisterKey.String(), false, false, amqp.Publishing{
		ContentType:   "application/json",
		CorrelationId: correlationID,
		ReplyTo:       reply.Name,
		Body:          body,
	}); err != nil {
		return err
	}

	timeout := time.After(c.cfg.Timeout)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timeout:
			return fmt.Errorf("no registration reply for %s", c.name)
		case d := <-replies:
			if d.CorrelationId != correlationID {
				continue
			}
			var r domain.RegisterReply
			if err = json.Unmarshal(d.Body, &r); err != nil {
				return err
			}
			if r.Error != "" {
				return fmt.Errorf("registration refused: %s", r.Error)
			}
			c.id = r.UserID
			return nil
		}
	}
}

// listen counts what lands in the private inbox until ctx is done.
func (c *client) listen(ctx context.Context) error {
	inbox := c.cfg.InboxPrefix + c.id
	if _, err := c.ch.QueueDeclare(inbox, false, false, false, false, nil); err != nil {
		return err
	}
	deliveries, err := c.ch.Consume(inbox, "", true, false, false, false, nil)
	if err != nil {
		return err
	}
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case d, ok := <-deliveries:
				if !ok {
					return
				}
				var payload domain.Outbound
				if err := json.Unmarshal(d.Body, &payload); err != nil {
					c.log.Warn("Unreadable payload", "error", err)
					continue
				}
				switch payload.Type {
				case domain.TextPayload:
					c.received.Add(1)
				case domain.ErrorPayload:
					c.log.Warn("Router error", "error", payload.Error)
				default:
					c.notices.Add(1)
				}
			}
		}
	}()
	return nil
}

func (c *client) publish(ctx context.Context, key domain.RoutingKey, payload map[string]string) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return c.ch.PublishWithContext(ctx, c.cfg.Exchange, key.String(), false, false, amqp.Publishing{
		ContentType: "application/json",
		Headers:     amqp.Table{domain.SenderHeader: c.id},
		Body:        body,
	})
}

func (c *client) createGroup(ctx context.Context, groupID string) error {
	return c.publish(ctx, domain.CreateGroupKey, map[string]string{
		"groupId": groupID, "name": "Stress " + groupID, "createdBy": c.id,
	})
}

func (c *client) joinGroup(ctx context.Context, groupID string) error {
	return c.publish(ctx, domain.JoinGroupKey, map[string]string{"groupId": groupID})
}

func (c *client) chat(ctx context.Context, groupID string, count int, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for i := 0; i < count; i++ {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		err := c.publish(ctx, domain.MessageKey, map[string]string{
			"toId":    groupID,
			"message": fmt.Sprintf("%s says %d", c.name, i),
		})
		if err != nil {
			c.log.Warn("Publish failed", "error", err)
			continue
		}
		c.sent.Add(1)
	}
}

func (c *client) close() {
	_ = c.ch.Close()
}
