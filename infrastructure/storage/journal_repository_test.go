package storage

import (
	"chat-router/domain/event"
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/mama165/sdk-go/database"
	"github.com/stretchr/testify/require"
)

func journalEvents(at time.Time) []event.Event {
	return []event.Event{
		{ID: uuid.New(), Level: event.LevelInfo, Type: event.UserRegisterType,
			Message: "User registered: Alice", At: at, Details: map[string]any{"userId": "A1"}},
		{ID: uuid.New(), Level: event.LevelInfo, Type: event.GroupCreatedType,
			Message: "Group created: Friends", At: at.Add(time.Second), Details: map[string]any{"groupId": "g1"}},
		{ID: uuid.New(), Level: event.LevelError, Type: event.ErrorType,
			Message: "failed to handle message", At: at.Add(2 * time.Second),
			Details: map[string]any{"size": 12, "routingKey": "message"}},
	}
}

func Test_Append_And_List_Newest_First(t *testing.T) {
	req := require.New(t)
	_, log, badgerDB, blugeWriter, err := database.SetupBenchmark(database.DefaultPath)
	req.NoError(err)
	defer database.CleanupDB(badgerDB, blugeWriter)

	repository := NewJournalRepository(badgerDB, blugeWriter, log)
	events := journalEvents(time.Now().UTC())
	for _, evt := range events {
		req.NoError(repository.Append(evt))
	}

	// When listing the journal
	listed, err := repository.List(0)
	req.NoError(err)

	// Then the newest event comes first
	req.Len(listed, 3)
	req.Equal(events[2].ID, listed[0].ID)
	req.Equal(events[1].ID, listed[1].ID)
	req.Equal(events[0].ID, listed[2].ID)

	// And every field survives the round trip, numbers as float64
	req.Equal(event.LevelError, listed[0].Level)
	req.Equal(event.ErrorType, listed[0].Type)
	req.Equal("failed to handle message", listed[0].Message)
	req.True(events[2].At.Equal(listed[0].At))
	req.Equal(map[string]any{"size": float64(12), "routingKey": "message"}, listed[0].Details)
}

func Test_List_With_Limit(t *testing.T) {
	req := require.New(t)
	_, log, badgerDB, blugeWriter, err := database.SetupBenchmark(database.DefaultPath)
	req.NoError(err)
	defer database.CleanupDB(badgerDB, blugeWriter)

	repository := NewJournalRepository(badgerDB, nil, log)
	events := journalEvents(time.Now().UTC())
	for _, evt := range events {
		req.NoError(repository.Append(evt))
	}

	listed, err := repository.List(2)

	req.NoError(err)
	req.Len(listed, 2)
	req.Equal(events[2].ID, listed[0].ID)
}

func Test_Search_By_Message_Type_And_Level(t *testing.T) {
	req := require.New(t)
	ctx, log, badgerDB, blugeWriter, err := database.SetupBenchmark(database.DefaultPath)
	req.NoError(err)
	defer database.CleanupDB(badgerDB, blugeWriter)

	repository := NewJournalRepository(badgerDB, blugeWriter, log)
	events := journalEvents(time.Now().UTC())
	for _, evt := range events {
		req.NoError(repository.Append(evt))
	}

	// When searching a word of a message
	found, err := repository.Search(ctx, "friends", 10)
	req.NoError(err)
	req.Len(found, 1)
	req.Equal(events[1].ID, found[0].ID)

	// When searching a type
	found, err = repository.Search(ctx, string(event.UserRegisterType), 10)
	req.NoError(err)
	req.Len(found, 1)
	req.Equal(events[0].ID, found[0].ID)

	// When searching a level
	found, err = repository.Search(ctx, string(event.LevelInfo), 10)
	req.NoError(err)
	req.Len(found, 2)
}

func Test_Search_Disabled_Without_Index(t *testing.T) {
	req := require.New(t)
	_, log, badgerDB, blugeWriter, err := database.SetupBenchmark(database.DefaultPath)
	req.NoError(err)
	defer database.CleanupDB(badgerDB, blugeWriter)

	repository := NewJournalRepository(badgerDB, nil, log)

	_, err = repository.Search(context.Background(), "anything", 10)

	req.Error(err)
}
