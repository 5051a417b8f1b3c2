package runtime_test

import (
	"chat-router/domain"
	"chat-router/errors"
	"chat-router/infrastructure/broker"
	"chat-router/observability"
	"chat-router/runtime"
	"chat-router/runtime/workers"
	"context"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newOrchestrator(b *broker.MemoryBroker) (*runtime.Orchestrator, *observability.MonitoringService) {
	log := slog.New(slog.DiscardHandler)
	monitoring := observability.NewMonitoringService(log, observability.DefaultErrorRateThreshold, nil)
	router := runtime.NewRouter(log,
		runtime.NewDirectory(NewStubIDGenerator("U")),
		runtime.NewGroupRegistry(),
		runtime.NewMessageCache(100, time.Hour),
		b, monitoring)
	supervisor := workers.NewSupervisor(log, 10*time.Millisecond)
	return runtime.NewOrchestrator(log, supervisor, b, router, monitoring, 4, 16), monitoring
}

func TestOrchestrator_Routes_Published_Deliveries(t *testing.T) {
	req := require.New(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	b := broker.NewMemoryBroker(16)
	orchestrator, monitoring := newOrchestrator(b)

	done := make(chan error, 1)
	go func() { done <- orchestrator.Start(ctx) }()

	// Given two users registering through the broker
	for _, name := range []string{"alice", "bob"} {
		req.NoError(b.Publish(ctx, domain.Inbound{
			RoutingKey:    domain.RegisterKey,
			Body:          []byte(`{"username":"` + name + `","uuid":"` + name + `"}`),
			ReplyTo:       "reply." + name,
			CorrelationID: name,
		}))
	}
	req.Eventually(func() bool { return len(b.Replies()) == 2 }, time.Second, 10*time.Millisecond)

	// When alice sends a message to bob
	req.NoError(b.Publish(ctx, domain.Inbound{
		RoutingKey: domain.MessageKey,
		Body:       []byte(`{"toId":"bob","message":"hi"}`),
		Headers:    map[string]any{domain.SenderHeader: "alice"},
	}))

	// Then bob's inbox receives it
	req.Eventually(func() bool { return len(b.Messages("chat.to.bob")) == 1 }, time.Second, 10*time.Millisecond)
	var payload domain.Outbound
	req.NoError(json.Unmarshal(b.Messages("chat.to.bob")[0], &payload))
	req.Equal("hi", payload.Message)
	req.Equal("alice", payload.SenderID)
	req.Eventually(func() bool { return monitoring.Stats().Counters.MessagesReceived == 1 }, time.Second, 10*time.Millisecond)
	req.Equal(uint64(2), monitoring.Stats().Counters.UsersRegistered)

	// And canceling the context stops the orchestrator cleanly
	cancel()
	select {
	case err := <-done:
		req.NoError(err)
	case <-time.After(time.Second):
		req.Fail("orchestrator did not stop")
	}
}

func TestOrchestrator_Survives_Bad_Deliveries(t *testing.T) {
	req := require.New(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	b := broker.NewMemoryBroker(16)
	orchestrator, monitoring := newOrchestrator(b)
	go func() { _ = orchestrator.Start(ctx) }()

	// Given garbage and an unknown sender
	req.NoError(b.Publish(ctx, domain.Inbound{RoutingKey: domain.MessageKey, Body: []byte(`{not json`)}))
	req.NoError(b.Publish(ctx, domain.Inbound{
		RoutingKey: domain.MessageKey,
		Body:       []byte(`{"toId":"bob","message":"hi"}`),
		Headers:    map[string]any{domain.SenderHeader: "ghost"},
	}))

	// When a valid registration follows
	req.NoError(b.Publish(ctx, domain.Inbound{
		RoutingKey: domain.RegisterKey, Body: []byte(`{"username":"carol"}`), ReplyTo: "reply", CorrelationID: "c",
	}))

	// Then it is still answered
	req.Eventually(func() bool { return len(b.Replies()) == 1 }, time.Second, 10*time.Millisecond)
	req.Empty(b.Destinations())
	req.Eventually(func() bool { return monitoring.Stats().Counters.Errors == 2 }, time.Second, 10*time.Millisecond)
}

func TestOrchestrator_Returns_When_Broker_Closes(t *testing.T) {
	req := require.New(t)
	b := broker.NewMemoryBroker(4)
	orchestrator, _ := newOrchestrator(b)

	done := make(chan error, 1)
	go func() { done <- orchestrator.Start(context.Background()) }()

	req.NoError(b.Close())

	select {
	case err := <-done:
		req.ErrorIs(err, errors.ErrBrokerClosed)
	case <-time.After(time.Second):
		req.Fail("orchestrator did not notice the closed broker")
	}
}
