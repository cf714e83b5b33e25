package chat

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeWithGodstime/meetmesh/internal/user"
	apperrors "github.com/codeWithGodstime/meetmesh/pkg/errors"
)

func TestMemoryStore_GetOrCreateRoomConcurrent(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	const workers = 50
	ids := make(chan int64, workers*2)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			c, err := s.GetOrCreateRoom(ctx, 1, 2)
			assert.NoError(t, err)
			ids <- c.ID
		}()
		go func() {
			defer wg.Done()
			c, err := s.GetOrCreateRoom(ctx, 2, 1)
			assert.NoError(t, err)
			ids <- c.ID
		}()
	}
	wg.Wait()
	close(ids)

	seen := map[int64]bool{}
	for id := range ids {
		seen[id] = true
	}
	assert.Len(t, seen, 1)

	convs, _ := s.ConversationIDsFor(ctx, 1)
	assert.Len(t, convs, 1)
}

func TestMemoryStore_GetOrCreateRoomInvalid(t *testing.T) {
	s := NewMemoryStore()
	tests := []struct {
		name string
		a, b user.ID
	}{
		{"self", 1, 1},
		{"zero", 0, 2},
		{"negative", 1, -3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.GetOrCreateRoom(context.Background(), tt.a, tt.b)
			assert.ErrorIs(t, err, apperrors.ErrInvalidParticipants)
		})
	}
}

func TestMemoryStore_AppendMessage(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	conv, err := s.GetOrCreateRoom(ctx, 1, 2)
	require.NoError(t, err)

	_, err = s.AppendMessage(ctx, conv.ID, 1, " \n\t")
	assert.ErrorIs(t, err, apperrors.ErrInvalidContent)

	_, err = s.AppendMessage(ctx, 999, 1, "hi")
	assert.ErrorIs(t, err, apperrors.ErrConversationNotFound)

	msg, err := s.AppendMessage(ctx, conv.ID, 1, "  hi  ")
	require.NoError(t, err)
	assert.Equal(t, "  hi  ", msg.Content)
	assert.False(t, msg.IsRead)
	assert.True(t, msg.SentBy(1))
}

func TestMemoryStore_ListMessagesOrdered(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	// A clock that steps backwards must not reorder history.
	base := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	ticks := []time.Time{base, base.Add(time.Second), base.Add(-time.Minute), base.Add(2 * time.Second)}
	var mu sync.Mutex
	i := 0
	s.now = func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		ts := ticks[i%len(ticks)]
		i++
		return ts
	}

	conv, err := s.GetOrCreateRoom(ctx, 1, 2)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for n := 0; n < 20; n++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			sender := user.ID(1 + n%2)
			_, err := s.AppendMessage(ctx, conv.ID, sender, "msg")
			assert.NoError(t, err)
		}(n)
	}
	wg.Wait()

	msgs, err := s.ListMessages(ctx, conv.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 20)
	for k := 1; k < len(msgs); k++ {
		assert.False(t, msgs[k].CreatedAt.Before(msgs[k-1].CreatedAt))
		assert.Greater(t, msgs[k].ID, msgs[k-1].ID)
	}
}

func TestMemoryStore_UnreadAndMarkAllRead(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	conv, _ := s.GetOrCreateRoom(ctx, 1, 2)

	_, _ = s.AppendMessage(ctx, conv.ID, 1, "hi")
	_, _ = s.AppendMessage(ctx, conv.ID, 1, "are you there?")
	_, _ = s.AppendMessage(ctx, conv.ID, 2, "yes")
	_, _ = s.AppendMessage(ctx, conv.ID, 0, "from a removed account")

	unreadB, _ := s.UnreadCount(ctx, conv.ID, 2)
	unreadA, _ := s.UnreadCount(ctx, conv.ID, 1)
	assert.Equal(t, 3, unreadB)
	assert.Equal(t, 2, unreadA)

	require.NoError(t, s.MarkAllRead(ctx, conv.ID, 2))
	require.NoError(t, s.MarkAllRead(ctx, conv.ID, 2))

	unreadB, _ = s.UnreadCount(ctx, conv.ID, 2)
	unreadA, _ = s.UnreadCount(ctx, conv.ID, 1)
	assert.Equal(t, 0, unreadB)
	assert.Equal(t, 1, unreadA)
}

func TestMemoryStore_GetPartner(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	conv, _ := s.GetOrCreateRoom(ctx, 5, 3)

	p, ok, err := s.GetPartner(ctx, conv.ID, 5)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, user.ID(3), p)

	_, ok, err = s.GetPartner(ctx, conv.ID, 9)
	require.NoError(t, err)
	assert.False(t, ok)

	_, _, err = s.GetPartner(ctx, 404, 5)
	assert.ErrorIs(t, err, apperrors.ErrConversationNotFound)
}

func TestMemoryStore_ListSummaries(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	tick := 0
	s.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}

	withBob, _ := s.GetOrCreateRoom(ctx, 1, 2)
	withCarol, _ := s.GetOrCreateRoom(ctx, 1, 3)
	_, _ = s.GetOrCreateRoom(ctx, 1, 4) // no messages, not listed

	_, _ = s.AppendMessage(ctx, withBob.ID, 2, "hello")
	_, _ = s.AppendMessage(ctx, withCarol.ID, 3, "hey")
	_, _ = s.AppendMessage(ctx, withCarol.ID, 3, "ping")

	page, total, err := s.ListSummaries(ctx, 1, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	require.Len(t, page, 2)

	assert.Equal(t, withCarol.ID, page[0].Conversation.ID)
	assert.Equal(t, user.ID(3), page[0].Partner)
	assert.Equal(t, "ping", page[0].LastMessage)
	assert.Equal(t, 2, page[0].Unread)
	assert.Equal(t, withBob.ID, page[1].Conversation.ID)

	page, total, err = s.ListSummaries(ctx, 1, 1, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	require.Len(t, page, 1)
	assert.Equal(t, withBob.ID, page[0].Conversation.ID)

	page, _, err = s.ListSummaries(ctx, 1, 10, 5)
	require.NoError(t, err)
	assert.Empty(t, page)
}

func TestMemoryStore_GetConversationByUID(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	conv, _ := s.GetOrCreateRoom(ctx, 1, 2)

	got, err := s.GetConversationByUID(ctx, conv.UID)
	require.NoError(t, err)
	assert.Equal(t, conv.ID, got.ID)
	assert.Equal(t, "1:2", got.PairKey)

	_, err = s.GetConversationByUID(ctx, "missing")
	assert.ErrorIs(t, err, apperrors.ErrConversationNotFound)
}

func TestPairKey(t *testing.T) {
	assert.Equal(t, PairKey(2, 9), PairKey(9, 2))
	assert.Equal(t, "2:9", PairKey(9, 2))
}
