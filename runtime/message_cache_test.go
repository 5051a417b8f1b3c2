package runtime_test

import (
	"chat-router/domain"
	"chat-router/errors"
	"chat-router/runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMessageCache_Edit_By_Author(t *testing.T) {
	req := require.New(t)
	cache := runtime.NewMessageCache(10, time.Hour)
	cache.Record("m1", "A1", "hi", "g1")

	msg, err := cache.ApplyEdit("m1", "A1", "hello")

	req.NoError(err)
	req.Equal(domain.CachedMessage{MessageID: "m1", OriginalSenderID: "A1", CurrentContent: "hello", TargetID: "g1"}, msg)
	cached, ok := cache.Get("m1")
	req.True(ok)
	req.Equal("hello", cached.CurrentContent)
}

func TestMessageCache_Edit_By_Someone_Else(t *testing.T) {
	req := require.New(t)
	cache := runtime.NewMessageCache(10, time.Hour)
	cache.Record("m1", "A1", "hi", "g1")

	// When bob tries to edit alice's message
	_, err := cache.ApplyEdit("m1", "bob-1", "pwned")

	// Then nothing changes
	req.ErrorIs(err, errors.ErrUnauthorizedEdit)
	cached, _ := cache.Get("m1")
	req.Equal("hi", cached.CurrentContent)
}

func TestMessageCache_Edit_Unknown_Message(t *testing.T) {
	req := require.New(t)
	cache := runtime.NewMessageCache(10, time.Hour)

	_, err := cache.ApplyEdit("missing", "A1", "hello")

	req.ErrorIs(err, errors.ErrMessageNotFound)
}

func TestMessageCache_Evicts_Oldest_When_Full(t *testing.T) {
	req := require.New(t)

	// Given a cache of two entries
	cache := runtime.NewMessageCache(2, time.Hour)
	cache.Record("m1", "A1", "one", "bob-1")
	cache.Record("m2", "A1", "two", "bob-1")
	cache.Record("m3", "A1", "three", "bob-1")

	// Then the oldest can no longer be edited
	req.Equal(2, cache.Len())
	_, err := cache.ApplyEdit("m1", "A1", "edited")
	req.ErrorIs(err, errors.ErrMessageNotFound)
	_, err = cache.ApplyEdit("m3", "A1", "edited")
	req.NoError(err)
}

func TestMessageCache_Expires_Entries(t *testing.T) {
	req := require.New(t)
	cache := runtime.NewMessageCache(10, 20*time.Millisecond)
	cache.Record("m1", "A1", "hi", "bob-1")

	req.Eventually(func() bool {
		_, ok := cache.Get("m1")
		return !ok
	}, time.Second, 10*time.Millisecond)

	_, err := cache.ApplyEdit("m1", "A1", "late")
	req.ErrorIs(err, errors.ErrMessageNotFound)
}

func TestMessageCache_Record_Overwrites(t *testing.T) {
	req := require.New(t)
	cache := runtime.NewMessageCache(10, time.Hour)
	cache.Record("m1", "A1", "hi", "bob-1")

	cache.Record("m1", "C3", "other", "g1")

	cached, ok := cache.Get("m1")
	req.True(ok)
	req.Equal("C3", cached.OriginalSenderID)
}
