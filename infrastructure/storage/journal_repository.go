//go:generate go run go.uber.org/mock/mockgen -source=journal_repository.go -destination=../../mocks/mock_journal_repository.go -package=mocks
package storage

import (
	"chat-router/domain/event"
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/blugelabs/bluge"
	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	journalPrefix = "evt:"
	// maxKey sorts after every nanosecond timestamp, reverse iteration starts there.
	maxKey = journalPrefix + "9999999999999999999"

	fieldMessage = "message"
	fieldType    = "type"
	fieldLevel   = "level"
)

type IJournalRepository interface {
	Append(evt event.Event) error
	List(limit int) ([]event.Event, error)
	Search(ctx context.Context, query string, limit int) ([]event.Event, error)
}

// JournalRepository keeps monitoring events in BadgerDB, newest readable first,
// and indexes their message, type and level in Bluge.
type JournalRepository struct {
	db     *badger.DB
	writer *bluge.Writer
	index  func() (*bluge.Reader, error)
	log    *slog.Logger
}

// NewJournalRepository writes to db and indexes through writer. A nil writer disables indexing and search.
func NewJournalRepository(db *badger.DB, writer *bluge.Writer, log *slog.Logger) JournalRepository {
	repo := JournalRepository{db: db, writer: writer, log: log}
	if writer != nil {
		repo.index = writer.Reader
	}
	return repo
}

// NewReadOnlyJournal searches an index written by another process.
func NewReadOnlyJournal(db *badger.DB, blugePath string, log *slog.Logger) JournalRepository {
	return JournalRepository{
		db:  db,
		log: log,
		index: func() (*bluge.Reader, error) {
			return bluge.OpenReader(bluge.DefaultConfig(blugePath))
		},
	}
}

// Append stores evt under "evt:{timestamp_padded}:{uuid}".
// The 19 digit padding keeps lexicographic and chronological order aligned,
// the uuid separates events of the same nanosecond.
func (r JournalRepository) Append(evt event.Event) error {
	key := journalKey(evt)
	st, err := toStruct(evt)
	if err != nil {
		return err
	}
	bytes, err := proto.Marshal(st)
	if err != nil {
		return err
	}
	if err = r.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), bytes)
	}); err != nil {
		return err
	}
	if r.writer == nil {
		return nil
	}
	doc := bluge.NewDocument(key).
		AddField(bluge.NewTextField(fieldMessage, evt.Message).StoreValue()).
		AddField(bluge.NewKeywordField(fieldType, string(evt.Type)).StoreValue()).
		AddField(bluge.NewKeywordField(fieldLevel, string(evt.Level)).StoreValue())
	return r.writer.Update(doc.ID(), doc)
}

// List returns the newest events first, at most limit of them when limit > 0.
func (r JournalRepository) List(limit int) ([]event.Event, error) {
	var events []event.Event
	err := r.db.View(func(txn *badger.Txn) error {
		options := badger.DefaultIteratorOptions
		options.Reverse = true
		it := txn.NewIterator(options)
		defer it.Close()

		prefix := []byte(journalPrefix)
		for it.Seek([]byte(maxKey)); it.ValidForPrefix(prefix); it.Next() {
			if limit > 0 && len(events) == limit {
				r.log.Debug(fmt.Sprintf("Maximum of %d events reached", limit))
				break
			}
			err := it.Item().Value(func(value []byte) error {
				evt, err := decode(value)
				if err != nil {
					return err
				}
				events = append(events, evt)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	return events, err
}

// Search matches query against event messages, or against type and level
// when it names one exactly, and returns the best hits first.
func (r JournalRepository) Search(ctx context.Context, query string, limit int) ([]event.Event, error) {
	if r.index == nil {
		return nil, fmt.Errorf("journal search is disabled")
	}
	if limit <= 0 {
		limit = 50
	}
	reader, err := r.index()
	if err != nil {
		return nil, fmt.Errorf("failed to open index: %w", err)
	}
	defer func() { _ = reader.Close() }()

	q := bluge.NewBooleanQuery().
		AddShould(bluge.NewMatchQuery(query).SetField(fieldMessage)).
		AddShould(bluge.NewTermQuery(query).SetField(fieldType)).
		AddShould(bluge.NewTermQuery(query).SetField(fieldLevel))
	dmi, err := reader.Search(ctx, bluge.NewTopNSearch(limit, q))
	if err != nil {
		return nil, err
	}

	var keys []string
	match, err := dmi.Next()
	for err == nil && match != nil {
		err = match.VisitStoredFields(func(field string, value []byte) bool {
			if field == "_id" {
				keys = append(keys, string(value))
			}
			return true
		})
		if err != nil {
			break
		}
		match, err = dmi.Next()
	}
	if err != nil {
		return nil, err
	}
	return r.get(keys)
}

func (r JournalRepository) get(keys []string) ([]event.Event, error) {
	events := make([]event.Event, 0, len(keys))
	err := r.db.View(func(txn *badger.Txn) error {
		for _, key := range keys {
			item, err := txn.Get([]byte(key))
			if err == badger.ErrKeyNotFound {
				r.log.Debug("Indexed event missing from journal", "key", key)
				continue
			}
			if err != nil {
				return err
			}
			if err = item.Value(func(value []byte) error {
				evt, err := decode(value)
				events = append(events, evt)
				return err
			}); err != nil {
				return err
			}
		}
		return nil
	})
	return events, err
}

func journalKey(evt event.Event) string {
	return fmt.Sprintf("%s%019d:%s", journalPrefix, evt.At.UnixNano(), evt.ID)
}

func toStruct(evt event.Event) (*structpb.Struct, error) {
	details := make(map[string]any, len(evt.Details))
	for k, v := range evt.Details {
		if _, err := structpb.NewValue(v); err != nil {
			v = fmt.Sprint(v)
		}
		details[k] = v
	}
	return structpb.NewStruct(map[string]any{
		"id":      evt.ID.String(),
		"level":   string(evt.Level),
		"type":    string(evt.Type),
		"message": evt.Message,
		"at":      evt.At.UTC().Format(time.RFC3339Nano),
		"details": details,
	})
}

func decode(value []byte) (event.Event, error) {
	var st structpb.Struct
	if err := proto.Unmarshal(value, &st); err != nil {
		return event.Event{}, err
	}
	fields := st.GetFields()
	id, err := uuid.Parse(fields["id"].GetStringValue())
	if err != nil {
		return event.Event{}, err
	}
	at, err := time.Parse(time.RFC3339Nano, fields["at"].GetStringValue())
	if err != nil {
		return event.Event{}, err
	}
	return event.Event{
		ID:      id,
		Level:   event.Level(fields["level"].GetStringValue()),
		Type:    event.Type(fields["type"].GetStringValue()),
		Message: fields["message"].GetStringValue(),
		Details: fields["details"].GetStructValue().AsMap(),
		At:      at,
	}, nil
}
