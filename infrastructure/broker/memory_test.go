package broker

import (
	"chat-router/domain"
	"chat-router/errors"
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMemoryBroker_Publish_And_Consume(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	b := NewMemoryBroker(2)

	deliveries, err := b.Consume(ctx, domain.RoutingKeys)
	req.NoError(err)

	req.NoError(b.Publish(ctx, domain.Inbound{RoutingKey: domain.MessageKey, Body: []byte("hi")}))
	in := <-deliveries
	req.Equal(domain.MessageKey, in.RoutingKey)

	// When the broker closes, the stream ends and publishing fails
	req.NoError(b.Close())
	_, ok := <-deliveries
	req.False(ok)
	req.ErrorIs(b.Publish(ctx, domain.Inbound{}), errors.ErrBrokerClosed)
	req.NoError(b.Close())
}

func TestMemoryBroker_Stores_Deliveries_Per_Destination(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	b := NewMemoryBroker(1)

	var notified []string
	b.OnDelivery(func(destination string, _ []byte) { notified = append(notified, destination) })

	body := []byte("one")
	req.NoError(b.Deliver(ctx, "chat.to.bob", body))
	body[0] = 'X'
	req.NoError(b.Deliver(ctx, "chat.to.bob", []byte("two")))
	req.NoError(b.Deliver(ctx, "chat.to.alice", []byte("three")))

	req.Equal([][]byte{[]byte("one"), []byte("two")}, b.Messages("chat.to.bob"))
	req.Equal([]string{"chat.to.alice", "chat.to.bob"}, b.Destinations())
	req.Equal([]string{"chat.to.bob", "chat.to.bob", "chat.to.alice"}, notified)
	req.Empty(b.Messages("chat.to.nobody"))
}

func TestMemoryBroker_Failures_And_Replies(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	b := NewMemoryBroker(1)

	b.FailDeliveries("chat.to.bob", fmt.Errorf("queue gone"))
	req.Error(b.Deliver(ctx, "chat.to.bob", []byte("lost")))
	req.Empty(b.Destinations())

	req.NoError(b.Reply(ctx, "amq.gen-1", "corr", []byte(`{"userId":"A1"}`)))
	req.Equal([]Reply{{ReplyTo: "amq.gen-1", CorrelationID: "corr", Body: []byte(`{"userId":"A1"}`)}}, b.Replies())
}
