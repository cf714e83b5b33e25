package chat

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/codeWithGodstime/meetmesh/internal/user"
	apperrors "github.com/codeWithGodstime/meetmesh/pkg/errors"
)

// MemoryStore is a process-local Store. It backs tests and single-node
// development runs; all state is lost on exit.
type MemoryStore struct {
	mu sync.RWMutex

	nextConversation int64
	nextMessage      int64

	conversations map[int64]*memoryConversation
	byPair        map[string]int64
	byUID         map[string]int64
	byUser        map[user.ID]map[int64]struct{}

	now func() time.Time
}

type memoryConversation struct {
	conv     Conversation
	messages []Message
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		conversations: make(map[int64]*memoryConversation),
		byPair:        make(map[string]int64),
		byUID:         make(map[string]int64),
		byUser:        make(map[user.ID]map[int64]struct{}),
		now:           time.Now,
	}
}

func (s *MemoryStore) GetOrCreateRoom(_ context.Context, a, b user.ID) (*Conversation, error) {
	if err := validatePair(a, b); err != nil {
		return nil, err
	}
	lo, hi := orderedPair(a, b)
	key := PairKey(lo, hi)

	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.byPair[key]; ok {
		return s.conversations[id].snapshot(), nil
	}

	s.nextConversation++
	mc := &memoryConversation{conv: Conversation{
		ID:           s.nextConversation,
		UID:          uuid.NewString(),
		PairKey:      key,
		Participants: []user.ID{lo, hi},
		CreatedAt:    s.now(),
	}}
	s.conversations[mc.conv.ID] = mc
	s.byPair[key] = mc.conv.ID
	s.byUID[mc.conv.UID] = mc.conv.ID
	for _, p := range mc.conv.Participants {
		if s.byUser[p] == nil {
			s.byUser[p] = make(map[int64]struct{})
		}
		s.byUser[p][mc.conv.ID] = struct{}{}
	}

	return mc.snapshot(), nil
}

func (s *MemoryStore) AppendMessage(_ context.Context, conversationID int64, sender user.ID, content string) (*Message, error) {
	if err := validateContent(content); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	mc, ok := s.conversations[conversationID]
	if !ok {
		return nil, apperrors.ErrConversationNotFound
	}

	// Keep creation time non-decreasing even if the wall clock steps back.
	createdAt := s.now()
	if n := len(mc.messages); n > 0 && createdAt.Before(mc.messages[n-1].CreatedAt) {
		createdAt = mc.messages[n-1].CreatedAt
	}

	s.nextMessage++
	msg := Message{
		ID:             s.nextMessage,
		ConversationID: conversationID,
		Content:        content,
		CreatedAt:      createdAt,
	}
	if sender > 0 {
		id := sender
		msg.SenderID = &id
	}
	mc.messages = append(mc.messages, msg)

	return &msg, nil
}

func (s *MemoryStore) ListMessages(_ context.Context, conversationID int64) ([]Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	mc, ok := s.conversations[conversationID]
	if !ok {
		return []Message{}, nil
	}
	out := make([]Message, len(mc.messages))
	copy(out, mc.messages)
	return out, nil
}

func (s *MemoryStore) MarkAllRead(_ context.Context, conversationID int64, excludingSender user.ID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	mc, ok := s.conversations[conversationID]
	if !ok {
		return nil
	}
	for i := range mc.messages {
		if !mc.messages[i].SentBy(excludingSender) {
			mc.messages[i].IsRead = true
		}
	}
	return nil
}

func (s *MemoryStore) UnreadCount(_ context.Context, conversationID int64, forUser user.ID) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	mc, ok := s.conversations[conversationID]
	if !ok {
		return 0, nil
	}
	return mc.unread(forUser), nil
}

func (s *MemoryStore) GetPartner(_ context.Context, conversationID int64, current user.ID) (user.ID, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	mc, ok := s.conversations[conversationID]
	if !ok {
		return 0, false, apperrors.ErrConversationNotFound
	}
	id, found := partnerOf(mc.conv.Participants, current)
	return id, found, nil
}

func (s *MemoryStore) ConversationIDsFor(_ context.Context, u user.ID) ([]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]int64, 0, len(s.byUser[u]))
	for id := range s.byUser[u] {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (s *MemoryStore) GetConversationByUID(_ context.Context, uid string) (*Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byUID[uid]
	if !ok {
		return nil, apperrors.ErrConversationNotFound
	}
	return s.conversations[id].snapshot(), nil
}

func (s *MemoryStore) ListSummaries(_ context.Context, u user.ID, limit, offset int) ([]Summary, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var all []Summary
	for id := range s.byUser[u] {
		mc := s.conversations[id]
		if len(mc.messages) == 0 {
			continue
		}
		last := mc.messages[len(mc.messages)-1]
		sm := Summary{
			Conversation:  *mc.snapshot(),
			LastMessage:   last.Content,
			LastMessageAt: last.CreatedAt,
			Unread:        mc.unread(u),
		}
		sm.Partner, _ = partnerOf(mc.conv.Participants, u)
		all = append(all, sm)
	}

	sort.Slice(all, func(i, j int) bool {
		if !all[i].LastMessageAt.Equal(all[j].LastMessageAt) {
			return all[i].LastMessageAt.After(all[j].LastMessageAt)
		}
		return all[i].Conversation.ID > all[j].Conversation.ID
	})

	total := len(all)
	if offset >= total {
		return []Summary{}, total, nil
	}
	end := total
	if limit > 0 && offset+limit < total {
		end = offset + limit
	}
	return all[offset:end], total, nil
}

func (mc *memoryConversation) snapshot() *Conversation {
	c := mc.conv
	c.Participants = append([]user.ID(nil), mc.conv.Participants...)
	return &c
}

func (mc *memoryConversation) unread(forUser user.ID) int {
	n := 0
	for i := range mc.messages {
		if !mc.messages[i].IsRead && !mc.messages[i].SentBy(forUser) {
			n++
		}
	}
	return n
}
