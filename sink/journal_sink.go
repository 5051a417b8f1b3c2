package sink

import (
	"chat-router/contract"
	"chat-router/domain/event"
	"chat-router/infrastructure/storage"
	"context"
)

var _ contract.EventSink = JournalSink{}

// JournalSink persists every monitoring event.
type JournalSink struct {
	repository storage.IJournalRepository
}

func NewJournalSink(repository storage.IJournalRepository) JournalSink {
	return JournalSink{repository: repository}
}

func (s JournalSink) Consume(ctx context.Context, e event.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.repository.Append(e)
}
