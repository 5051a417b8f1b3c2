//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"chat-router/domain"
	"chat-router/domain/event"
	"context"
	"reflect"
	"time"
)

type ISupervisor interface {
	Add(worker ...Worker) ISupervisor
	Run(ctx context.Context)
	Start(ctx context.Context, worker Worker)
	Stop()
}

// Worker doesn't protect itself, the supervisor restarts it
type Worker interface {
	Run(ctx context.Context) error
}

// GetWorkerName uses reflection to retrieve the type name of the worker.
// This is used for logging and supervision purposes during worker initialization
// or lifecycle events, avoiding the need for manual naming in the Worker interface.
func GetWorkerName(w Worker) string {
	if w == nil {
		return "NilWorker"
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}

// Publisher sends bytes to a destination queue.
// Deliver must make sure the destination exists before publishing.
type Publisher interface {
	Deliver(ctx context.Context, destination string, body []byte) error
	Reply(ctx context.Context, replyTo, correlationID string, body []byte) error
}

// Broker is the transport seen by the router: inbound deliveries from the
// named queues and outbound publishing.
type Broker interface {
	Publisher
	Consume(ctx context.Context, keys []domain.RoutingKey) (<-chan domain.Inbound, error)
	Close() error
}

type EventSink interface {
	Consume(ctx context.Context, e event.Event) error
}

// Monitor receives the activity notifications of the routing engine.
type Monitor interface {
	UserRegistered(userID, username string)
	GroupCreated(groupID, name string)
	GroupJoined(groupID, userID string, memberCount int)
	GroupLeft(groupID, userID string, memberCount int)
	GroupRemoved(groupID string)
	Sent(kind domain.RoutingKey, senderID, targetID string, size int, details map[string]any)
	Received(kind domain.RoutingKey, receiverID, senderID string, size int)
	Error(message string, err error, details map[string]any)
	ProcessingTime(d time.Duration)
}
