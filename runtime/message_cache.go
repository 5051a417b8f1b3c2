package runtime

import (
	"chat-router/domain"
	"chat-router/errors"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// MessageCache remembers recently routed text messages so edits can be
// authorized and applied. It is bounded both in size and in age: an edit of
// an evicted message fails with ErrMessageNotFound.
type MessageCache struct {
	// mu makes the read-check-write of ApplyEdit atomic; the LRU itself is
	// already safe for concurrent use.
	mu    sync.Mutex
	cache *expirable.LRU[string, domain.CachedMessage]
}

// NewMessageCache builds a cache holding at most size entries for ttl.
// A size of 0 means unbounded, a ttl of 0 means entries never expire.
func NewMessageCache(size int, ttl time.Duration) *MessageCache {
	return &MessageCache{cache: expirable.NewLRU[string, domain.CachedMessage](size, nil, ttl)}
}

// Record inserts or overwrites the entry of messageID.
func (c *MessageCache) Record(messageID, senderID, content, targetID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache.Add(messageID, domain.CachedMessage{
		MessageID:        messageID,
		OriginalSenderID: senderID,
		CurrentContent:   content,
		TargetID:         targetID,
	})
}

// ApplyEdit replaces the content of messageID when requesterID is its original sender.
func (c *MessageCache) ApplyEdit(messageID, requesterID, newContent string) (domain.CachedMessage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	msg, ok := c.cache.Get(messageID)
	if !ok {
		return domain.CachedMessage{}, fmt.Errorf("%w: %s", errors.ErrMessageNotFound, messageID)
	}
	if msg.OriginalSenderID != requesterID {
		return domain.CachedMessage{}, fmt.Errorf("%w: %s is not the author of %s",
			errors.ErrUnauthorizedEdit, requesterID, messageID)
	}
	msg.CurrentContent = newContent
	c.cache.Add(messageID, msg)
	return msg, nil
}

func (c *MessageCache) Get(messageID string) (domain.CachedMessage, bool) {
	return c.cache.Peek(messageID)
}

func (c *MessageCache) Len() int {
	return c.cache.Len()
}
