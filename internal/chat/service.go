package chat

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/codeWithGodstime/meetmesh/internal/user"
	apperrors "github.com/codeWithGodstime/meetmesh/pkg/errors"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// Directory is the slice of the Identity Service the REST surface needs.
type Directory interface {
	GetUser(ctx context.Context, id user.ID) (*user.User, error)
}

// Sender routes a message through the real-time pipeline.
type Sender interface {
	SendMessage(ctx context.Context, sender, receiver user.ID, content string) (*Message, error)
}

type Partner struct {
	ID        user.ID `json:"id"`
	FullName  string  `json:"fullname"`
	AvatarURL *string `json:"avatar"`
}

type ConversationListItem struct {
	ID              int64     `json:"id"`
	UID             string    `json:"uid"`
	Partner         *Partner  `json:"conversation_partner"`
	Content         string    `json:"content"`
	LastMessageTime time.Time `json:"last_message_time"`
	Unread          int       `json:"number_of_unread_messages"`
}

type ConversationPage struct {
	Count   int                    `json:"count"`
	Results []ConversationListItem `json:"results"`
}

type MessageView struct {
	ID        int64     `json:"id"`
	Content   string    `json:"content"`
	Sender    *user.ID  `json:"sender"`
	CreatedAt time.Time `json:"created_at"`
	IsSender  bool      `json:"is_sender"`
	IsRead    bool      `json:"is_read"`
}

type ConversationDetail struct {
	ID       int64         `json:"id"`
	UID      string        `json:"uid"`
	Messages []MessageView `json:"messages"`
	Partner  *Partner      `json:"conversation_partner"`
}

type Service struct {
	store     Store
	directory Directory
	sender    Sender
	log       zerolog.Logger
}

func NewService(store Store, directory Directory, sender Sender, log zerolog.Logger) *Service {
	return &Service{
		store:     store,
		directory: directory,
		sender:    sender,
		log:       log,
	}
}

// StartConversation resolves the room for (me, receiver), creating it on
// first contact. Repeated calls return the same conversation.
func (s *Service) StartConversation(ctx context.Context, me, receiver user.ID) (*Conversation, error) {
	if err := validatePair(me, receiver); err != nil {
		return nil, err
	}
	if _, err := s.directory.GetUser(ctx, receiver); err != nil {
		if errors.Is(err, apperrors.ErrUserNotFound) {
			return nil, fmt.Errorf("%w: receiver %d does not exist", apperrors.ErrInvalidParticipants, receiver)
		}
		return nil, err
	}
	return s.store.GetOrCreateRoom(ctx, me, receiver)
}

func (s *Service) ListConversations(ctx context.Context, me user.ID, limit, offset int) (*ConversationPage, error) {
	if limit <= 0 || limit > maxPageSize {
		limit = defaultPageSize
	}
	if offset < 0 {
		offset = 0
	}

	summaries, total, err := s.store.ListSummaries(ctx, me, limit, offset)
	if err != nil {
		return nil, err
	}

	page := &ConversationPage{Count: total, Results: make([]ConversationListItem, 0, len(summaries))}
	for _, sm := range summaries {
		page.Results = append(page.Results, ConversationListItem{
			ID:              sm.Conversation.ID,
			UID:             sm.Conversation.UID,
			Partner:         s.partner(ctx, sm.Partner),
			Content:         sm.LastMessage,
			LastMessageTime: sm.LastMessageAt,
			Unread:          sm.Unread,
		})
	}
	return page, nil
}

// GetConversation returns the full history of a conversation the caller
// takes part in, then marks every message the caller did not send as read.
// The returned views carry the read state from before this call.
func (s *Service) GetConversation(ctx context.Context, me user.ID, uid string) (*ConversationDetail, error) {
	conv, err := s.store.GetConversationByUID(ctx, uid)
	if err != nil {
		return nil, err
	}
	if !conv.HasParticipant(me) {
		return nil, apperrors.ErrForbidden
	}

	messages, err := s.store.ListMessages(ctx, conv.ID)
	if err != nil {
		return nil, err
	}

	if err := s.store.MarkAllRead(ctx, conv.ID, me); err != nil {
		return nil, err
	}

	detail := &ConversationDetail{
		ID:       conv.ID,
		UID:      conv.UID,
		Messages: make([]MessageView, 0, len(messages)),
	}
	for i := range messages {
		m := &messages[i]
		detail.Messages = append(detail.Messages, MessageView{
			ID:        m.ID,
			Content:   m.Content,
			Sender:    m.SenderID,
			CreatedAt: m.CreatedAt,
			IsSender:  m.SentBy(me),
			IsRead:    m.IsRead,
		})
	}

	if partnerID, ok := partnerOf(conv.Participants, me); ok {
		detail.Partner = s.partner(ctx, partnerID)
	}
	return detail, nil
}

// DirectMessage is the REST entry into the message router.
func (s *Service) DirectMessage(ctx context.Context, me, target user.ID, content string) (*Message, error) {
	if _, err := s.directory.GetUser(ctx, target); err != nil {
		return nil, err
	}
	return s.sender.SendMessage(ctx, me, target, content)
}

func (s *Service) partner(ctx context.Context, id user.ID) *Partner {
	if id <= 0 {
		return nil
	}
	u, err := s.directory.GetUser(ctx, id)
	if err != nil {
		if !errors.Is(err, apperrors.ErrUserNotFound) {
			s.log.Warn().Err(err).Int("user_id", int(id)).Msg("partner lookup failed")
		}
		return nil
	}

	p := &Partner{ID: u.ID, FullName: u.DisplayName()}
	if u.AvatarURL != "" {
		avatar := u.AvatarURL
		p.AvatarURL = &avatar
	}
	return p
}
