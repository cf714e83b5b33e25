package chat

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/codeWithGodstime/meetmesh/internal/user"
	apperrors "github.com/codeWithGodstime/meetmesh/pkg/errors"
)

// foreignKeyViolation is SQLSTATE 23503: a participant or sender that has
// no users row.
const foreignKeyViolation = "23503"

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == foreignKeyViolation
}

// PostgresStore implements Store on the relational database.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const (
	upsertRoomQuery = `
		INSERT INTO conversations (uid, pair_key) VALUES ($1, $2)
		ON CONFLICT (pair_key) DO UPDATE SET pair_key = EXCLUDED.pair_key
		RETURNING id, uid, created_at`

	insertParticipantsQuery = `
		INSERT INTO participants (conversation_id, user_id) VALUES ($1, $2), ($1, $3)
		ON CONFLICT DO NOTHING`

	appendMessageQuery = `
		INSERT INTO messages (conversation_id, sender_id, content)
		SELECT $1, $2, $3 WHERE EXISTS (SELECT 1 FROM conversations WHERE id = $1)
		RETURNING id, is_read, created_at`

	listMessagesQuery = `
		SELECT id, conversation_id, sender_id, content, is_read, created_at
		FROM messages
		WHERE conversation_id = $1
		ORDER BY created_at ASC, id ASC`

	markAllReadQuery = `
		UPDATE messages SET is_read = TRUE
		WHERE conversation_id = $1 AND is_read = FALSE
		AND (sender_id IS NULL OR sender_id <> $2)`

	unreadCountQuery = `
		SELECT COUNT(*) FROM messages
		WHERE conversation_id = $1 AND is_read = FALSE
		AND (sender_id IS NULL OR sender_id <> $2)`

	participantsQuery = `
		SELECT user_id FROM participants WHERE conversation_id = $1 ORDER BY user_id`

	conversationIDsQuery = `
		SELECT conversation_id FROM participants WHERE user_id = $1 ORDER BY conversation_id`

	conversationByUIDQuery = `
		SELECT id, uid, pair_key, created_at FROM conversations WHERE uid = $1`

	countSummariesQuery = `
		SELECT COUNT(*) FROM participants p
		WHERE p.user_id = $1
		AND EXISTS (SELECT 1 FROM messages m WHERE m.conversation_id = p.conversation_id)`

	listSummariesQuery = `
		SELECT c.id, c.uid, c.pair_key, c.created_at, lm.content, lm.created_at,
			(SELECT COUNT(*) FROM messages u
				WHERE u.conversation_id = c.id AND u.is_read = FALSE
				AND (u.sender_id IS NULL OR u.sender_id <> $1)) AS unread,
			(SELECT p2.user_id FROM participants p2
				WHERE p2.conversation_id = c.id AND p2.user_id <> $1
				ORDER BY p2.user_id LIMIT 1) AS partner
		FROM conversations c
		JOIN participants p ON p.conversation_id = c.id AND p.user_id = $1
		JOIN LATERAL (
			SELECT m.content, m.created_at FROM messages m
			WHERE m.conversation_id = c.id
			ORDER BY m.created_at DESC, m.id DESC LIMIT 1
		) lm ON TRUE
		ORDER BY lm.created_at DESC, c.id DESC
		LIMIT $2 OFFSET $3`
)

// GetOrCreateRoom relies on the unique pair_key index: a concurrent
// insert of the same pair blocks on the index and then takes the
// DO UPDATE branch, returning the row the other transaction created.
func (s *PostgresStore) GetOrCreateRoom(ctx context.Context, a, b user.ID) (*Conversation, error) {
	if err := validatePair(a, b); err != nil {
		return nil, err
	}
	lo, hi := orderedPair(a, b)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin room tx: %w", err)
	}
	defer tx.Rollback()

	conv := &Conversation{PairKey: PairKey(lo, hi)}
	err = tx.QueryRowContext(ctx, upsertRoomQuery, uuid.NewString(), conv.PairKey).
		Scan(&conv.ID, &conv.UID, &conv.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("upsert room %s: %w", conv.PairKey, err)
	}

	if _, err := tx.ExecContext(ctx, insertParticipantsQuery, conv.ID, int(lo), int(hi)); err != nil {
		if isForeignKeyViolation(err) {
			return nil, fmt.Errorf("%w: user %d or %d does not exist", apperrors.ErrInvalidParticipants, lo, hi)
		}
		return nil, fmt.Errorf("insert participants: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit room tx: %w", err)
	}

	conv.Participants = []user.ID{lo, hi}
	return conv, nil
}

func (s *PostgresStore) AppendMessage(ctx context.Context, conversationID int64, sender user.ID, content string) (*Message, error) {
	if err := validateContent(content); err != nil {
		return nil, err
	}

	msg := &Message{ConversationID: conversationID, Content: content}
	if sender > 0 {
		msg.SenderID = &sender
	}

	var senderArg interface{}
	if msg.SenderID != nil {
		senderArg = int(sender)
	}

	err := s.db.QueryRowContext(ctx, appendMessageQuery, conversationID, senderArg, content).
		Scan(&msg.ID, &msg.IsRead, &msg.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.ErrConversationNotFound
		}
		if isForeignKeyViolation(err) {
			return nil, fmt.Errorf("%w: sender %d does not exist", apperrors.ErrInvalidParticipants, sender)
		}
		return nil, fmt.Errorf("append message: %w", err)
	}

	return msg, nil
}

func (s *PostgresStore) ListMessages(ctx context.Context, conversationID int64) ([]Message, error) {
	rows, err := s.db.QueryContext(ctx, listMessagesQuery, conversationID)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	messages := []Message{}
	for rows.Next() {
		var (
			m      Message
			sender sql.NullInt64
		)
		if err := rows.Scan(&m.ID, &m.ConversationID, &sender, &m.Content, &m.IsRead, &m.CreatedAt); err != nil {
			return nil, err
		}
		if sender.Valid {
			id := user.ID(sender.Int64)
			m.SenderID = &id
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

func (s *PostgresStore) MarkAllRead(ctx context.Context, conversationID int64, excludingSender user.ID) error {
	if _, err := s.db.ExecContext(ctx, markAllReadQuery, conversationID, int(excludingSender)); err != nil {
		return fmt.Errorf("mark read: %w", err)
	}
	return nil
}

func (s *PostgresStore) UnreadCount(ctx context.Context, conversationID int64, forUser user.ID) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, unreadCountQuery, conversationID, int(forUser)).Scan(&n); err != nil {
		return 0, fmt.Errorf("unread count: %w", err)
	}
	return n, nil
}

func (s *PostgresStore) GetPartner(ctx context.Context, conversationID int64, current user.ID) (user.ID, bool, error) {
	participants, err := s.participants(ctx, conversationID)
	if err != nil {
		return 0, false, err
	}
	if len(participants) == 0 {
		return 0, false, apperrors.ErrConversationNotFound
	}
	id, ok := partnerOf(participants, current)
	return id, ok, nil
}

func (s *PostgresStore) ConversationIDsFor(ctx context.Context, u user.ID) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, conversationIDsQuery, int(u))
	if err != nil {
		return nil, fmt.Errorf("conversations for %d: %w", u, err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *PostgresStore) GetConversationByUID(ctx context.Context, uid string) (*Conversation, error) {
	conv := &Conversation{}
	err := s.db.QueryRowContext(ctx, conversationByUIDQuery, uid).
		Scan(&conv.ID, &conv.UID, &conv.PairKey, &conv.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.ErrConversationNotFound
		}
		return nil, fmt.Errorf("get conversation: %w", err)
	}

	conv.Participants, err = s.participants(ctx, conv.ID)
	if err != nil {
		return nil, err
	}
	return conv, nil
}

func (s *PostgresStore) ListSummaries(ctx context.Context, u user.ID, limit, offset int) ([]Summary, int, error) {
	var total int
	if err := s.db.QueryRowContext(ctx, countSummariesQuery, int(u)).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count conversations: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, listSummariesQuery, int(u), limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list conversations: %w", err)
	}
	defer rows.Close()

	summaries := []Summary{}
	for rows.Next() {
		var (
			sm      Summary
			partner sql.NullInt64
		)
		err := rows.Scan(
			&sm.Conversation.ID, &sm.Conversation.UID, &sm.Conversation.PairKey, &sm.Conversation.CreatedAt,
			&sm.LastMessage, &sm.LastMessageAt, &sm.Unread, &partner,
		)
		if err != nil {
			return nil, 0, err
		}
		sm.Conversation.Participants = []user.ID{u}
		if partner.Valid {
			sm.Partner = user.ID(partner.Int64)
			sm.Conversation.Participants = append(sm.Conversation.Participants, sm.Partner)
		}
		summaries = append(summaries, sm)
	}
	return summaries, total, rows.Err()
}

func (s *PostgresStore) participants(ctx context.Context, conversationID int64) ([]user.ID, error) {
	rows, err := s.db.QueryContext(ctx, participantsQuery, conversationID)
	if err != nil {
		return nil, fmt.Errorf("participants: %w", err)
	}
	defer rows.Close()

	var ids []user.ID
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, user.ID(id))
	}
	return ids, rows.Err()
}
