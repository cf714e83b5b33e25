package chat

import (
	"fmt"
	"time"

	"github.com/codeWithGodstime/meetmesh/internal/user"
)

type Conversation struct {
	ID           int64     `json:"id"`
	UID          string    `json:"uid"`
	PairKey      string    `json:"-"`
	Participants []user.ID `json:"participants"`
	CreatedAt    time.Time `json:"created_at"`
}

// HasParticipant reports whether id takes part in the conversation.
func (c *Conversation) HasParticipant(id user.ID) bool {
	for _, p := range c.Participants {
		if p == id {
			return true
		}
	}
	return false
}

// Message belongs to exactly one conversation. SenderID is nil once the
// sender's account has been removed.
type Message struct {
	ID             int64     `json:"id"`
	ConversationID int64     `json:"conversation_id"`
	SenderID       *user.ID  `json:"sender"`
	Content        string    `json:"content"`
	IsRead         bool      `json:"is_read"`
	CreatedAt      time.Time `json:"created_at"`
}

// SentBy reports whether id authored the message.
func (m *Message) SentBy(id user.ID) bool {
	return m.SenderID != nil && *m.SenderID == id
}

// Summary is one row of a user's inbox.
type Summary struct {
	Conversation  Conversation
	Partner       user.ID
	LastMessage   string
	LastMessageAt time.Time
	Unread        int
}

// PairKey canonicalizes an unordered participant pair.
func PairKey(a, b user.ID) string {
	if a > b {
		a, b = b, a
	}
	return fmt.Sprintf("%d:%d", a, b)
}

func orderedPair(a, b user.ID) (user.ID, user.ID) {
	if a > b {
		return b, a
	}
	return a, b
}

func partnerOf(participants []user.ID, current user.ID) (user.ID, bool) {
	if len(participants) != 2 {
		return 0, false
	}
	switch current {
	case participants[0]:
		return participants[1], true
	case participants[1]:
		return participants[0], true
	}
	return 0, false
}
