package chat

import (
	"context"
	"strings"

	"github.com/codeWithGodstime/meetmesh/internal/user"
	apperrors "github.com/codeWithGodstime/meetmesh/pkg/errors"
)

// Store is the durable record of conversations and messages.
//
// GetOrCreateRoom must be atomic per unordered pair: concurrent callers
// with (a, b) and (b, a) all observe the same conversation.
type Store interface {
	GetOrCreateRoom(ctx context.Context, a, b user.ID) (*Conversation, error)
	AppendMessage(ctx context.Context, conversationID int64, sender user.ID, content string) (*Message, error)
	ListMessages(ctx context.Context, conversationID int64) ([]Message, error)
	MarkAllRead(ctx context.Context, conversationID int64, excludingSender user.ID) error
	UnreadCount(ctx context.Context, conversationID int64, forUser user.ID) (int, error)
	GetPartner(ctx context.Context, conversationID int64, current user.ID) (user.ID, bool, error)

	ConversationIDsFor(ctx context.Context, u user.ID) ([]int64, error)
	GetConversationByUID(ctx context.Context, uid string) (*Conversation, error)
	// ListSummaries returns one page of u's conversations that have at least
	// one message, most recent first, plus the total number of such rows.
	ListSummaries(ctx context.Context, u user.ID, limit, offset int) ([]Summary, int, error)
}

func validatePair(a, b user.ID) error {
	if a <= 0 || b <= 0 || a == b {
		return apperrors.ErrInvalidParticipants
	}
	return nil
}

func validateContent(content string) error {
	if strings.TrimSpace(content) == "" {
		return apperrors.ErrInvalidContent
	}
	return nil
}
