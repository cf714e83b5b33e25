package router

import (
	"context"
	"time"

	"github.com/codeWithGodstime/meetmesh/internal/chat"
	"github.com/codeWithGodstime/meetmesh/internal/presence"
	"github.com/codeWithGodstime/meetmesh/internal/user"
)

const EventMessage = "message"

// Event is the payload every member of a conversation group receives.
type Event struct {
	Type           string    `json:"type"`
	Conversation   string    `json:"conversation"`
	ConversationID int64     `json:"conversation_id"`
	Sender         user.ID   `json:"sender"`
	Message        string    `json:"message"`
	MessageID      int64     `json:"message_id"`
	CreatedAt      time.Time `json:"created_at"`
}

func NewMessageEvent(conv *chat.Conversation, msg *chat.Message, sender user.ID) Event {
	return Event{
		Type:           EventMessage,
		Conversation:   conv.UID,
		ConversationID: conv.ID,
		Sender:         sender,
		Message:        msg.Content,
		MessageID:      msg.ID,
		CreatedAt:      msg.CreatedAt,
	}
}

// Envelope addresses an event to a group. Joined lists the handles the
// router just subscribed, so instances that own them can do the same.
type Envelope struct {
	Group  int64             `json:"group"`
	Joined []presence.Handle `json:"joined,omitempty"`
	Event  Event             `json:"event"`
}

type Broadcaster interface {
	Broadcast(ctx context.Context, env Envelope) error
}

type Limiter interface {
	Allow(ctx context.Context, u user.ID) (bool, error)
}
