package chat

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"converse/infrastructure"
	"converse/internal/user"
)

type Repository interface {
	// Conversation operations
	CreateConversation(ctx context.Context, conv *Conversation, participantIDs []string) error
	GetConversation(ctx context.Context, conversationID string) (*Conversation, error)
	ListConversations(ctx context.Context, userID string) ([]*ConversationSummary, error)
	DeleteConversation(ctx context.Context, conversationID string) error
	AddParticipant(ctx context.Context, conversationID, userID string) error

	// Membership operations used by the realtime core
	IsParticipant(ctx context.Context, conversationID, userID string) (bool, error)
	ParticipantIDs(ctx context.Context, conversationID string) ([]string, error)

	// Message operations
	CreateMessage(ctx context.Context, m *Message) error
	GetMessage(ctx context.Context, messageID string) (*Message, error)
	AdvanceMessageStatus(ctx context.Context, messageID string, status MessageStatus) (bool, error)
	ListMessages(ctx context.Context, conversationID string, limit int, before time.Time) ([]*Message, error)
	MarkConversationRead(ctx context.Context, conversationID, readerID string) (int64, error)
}

type PostgresRepository struct {
	db *sql.DB
}

func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) CreateConversation(ctx context.Context, conv *Conversation, participantIDs []string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var name sql.NullString
	if conv.Name != "" {
		name = sql.NullString{String: conv.Name, Valid: true}
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO conversations (id, name, type, created_at)
		VALUES ($1, $2, $3, $4)
	`, conv.ID, name, conv.Type, conv.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert conversation: %w", err)
	}

	for _, uid := range participantIDs {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO conversation_participants (conversation_id, user_id)
			VALUES ($1, $2)
		`, conv.ID, uid)
		if err != nil {
			return fmt.Errorf("insert participant: %w", err)
		}
	}

	return tx.Commit()
}

func (r *PostgresRepository) GetConversation(ctx context.Context, conversationID string) (*Conversation, error) {
	var conv Conversation
	var name sql.NullString
	err := r.db.QueryRowContext(ctx, `
		SELECT id, name, type, created_at FROM conversations WHERE id = $1
	`, conversationID).Scan(&conv.ID, &name, &conv.Type, &conv.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, infrastructure.ErrConversationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get conversation: %w", err)
	}
	conv.Name = name.String

	conv.Participants, err = r.participants(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	return &conv, nil
}

func (r *PostgresRepository) ListConversations(ctx context.Context, userID string) ([]*ConversationSummary, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT
			c.id, c.name, c.type, c.created_at,
			COALESCE(m.content, ''), COALESCE(m.created_at, to_timestamp(0)), COALESCE(u.username, ''),
			(
				SELECT COUNT(*) FROM messages msg
				WHERE msg.conversation_id = c.id
				AND msg.sender_id <> $1
				AND msg.status <> 'read'
			)
		FROM conversations c
		JOIN conversation_participants cp ON cp.conversation_id = c.id AND cp.user_id = $1
		LEFT JOIN messages m ON m.id = (
			SELECT id FROM messages
			WHERE conversation_id = c.id
			ORDER BY created_at DESC LIMIT 1
		)
		LEFT JOIN users u ON u.id = m.sender_id
		ORDER BY COALESCE(m.created_at, c.created_at) DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	defer rows.Close()

	var summaries []*ConversationSummary
	for rows.Next() {
		var s ConversationSummary
		var name sql.NullString
		if err := rows.Scan(&s.ID, &name, &s.Type, &s.CreatedAt,
			&s.LastMessage, &s.LastMessageAt, &s.LastMessageFrom, &s.UnreadCount); err != nil {
			return nil, fmt.Errorf("scan conversation: %w", err)
		}
		s.Name = name.String
		summaries = append(summaries, &s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, s := range summaries {
		if s.Participants, err = r.participants(ctx, s.ID); err != nil {
			return nil, err
		}
	}
	return summaries, nil
}

func (r *PostgresRepository) DeleteConversation(ctx context.Context, conversationID string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	for _, q := range []string{
		`DELETE FROM messages WHERE conversation_id = $1`,
		`DELETE FROM conversation_participants WHERE conversation_id = $1`,
		`DELETE FROM conversations WHERE id = $1`,
	} {
		if _, err := tx.ExecContext(ctx, q, conversationID); err != nil {
			return fmt.Errorf("delete conversation: %w", err)
		}
	}
	return tx.Commit()
}

func (r *PostgresRepository) AddParticipant(ctx context.Context, conversationID, userID string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO conversation_participants (conversation_id, user_id)
		VALUES ($1, $2) ON CONFLICT DO NOTHING
	`, conversationID, userID)
	if err != nil {
		return fmt.Errorf("add participant: %w", err)
	}
	return nil
}

func (r *PostgresRepository) IsParticipant(ctx context.Context, conversationID, userID string) (bool, error) {
	var one int
	err := r.db.QueryRowContext(ctx, `
		SELECT 1 FROM conversation_participants
		WHERE conversation_id = $1 AND user_id = $2
	`, conversationID, userID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("is participant: %w", err)
	}
	return true, nil
}

func (r *PostgresRepository) ParticipantIDs(ctx context.Context, conversationID string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT user_id FROM conversation_participants WHERE conversation_id = $1
	`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("participant ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan participant: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *PostgresRepository) CreateMessage(ctx context.Context, m *Message) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO messages (id, conversation_id, sender_id, content, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, m.ID, m.ConversationID, m.SenderID, m.Content, m.Status, m.CreatedAt)
	if err != nil {
		return fmt.Errorf("create message: %w", err)
	}
	return nil
}

func (r *PostgresRepository) GetMessage(ctx context.Context, messageID string) (*Message, error) {
	var m Message
	err := r.db.QueryRowContext(ctx, `
		SELECT m.id, m.conversation_id, m.sender_id, u.username, m.content, m.status, m.created_at
		FROM messages m
		JOIN users u ON u.id = m.sender_id
		WHERE m.id = $1
	`, messageID).Scan(&m.ID, &m.ConversationID, &m.SenderID, &m.SenderName, &m.Content, &m.Status, &m.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, infrastructure.ErrMessageNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get message: %w", err)
	}
	return &m, nil
}

// AdvanceMessageStatus moves a message's status forward. The WHERE
// clause compares status ranks so a racing caller can never move a
// message backward; the row lock taken by UPDATE serializes the
// read-modify-write. Returns false when the stored status was already
// at or past the requested one, or the message does not exist.
func (r *PostgresRepository) AdvanceMessageStatus(ctx context.Context, messageID string, status MessageStatus) (bool, error) {
	if !status.Valid() {
		return false, infrastructure.ErrInvalidInput
	}
	res, err := r.db.ExecContext(ctx, `
		UPDATE messages SET status = $1
		WHERE id = $2
		AND CASE status WHEN 'sent' THEN 0 WHEN 'delivered' THEN 1 ELSE 2 END
		  < CASE $1 WHEN 'sent' THEN 0 WHEN 'delivered' THEN 1 ELSE 2 END
	`, status, messageID)
	if err != nil {
		return false, fmt.Errorf("advance message status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("advance message status: %w", err)
	}
	return n > 0, nil
}

func (r *PostgresRepository) ListMessages(ctx context.Context, conversationID string, limit int, before time.Time) ([]*Message, error) {
	query := `
		SELECT m.id, m.conversation_id, m.sender_id, u.username, m.content, m.status, m.created_at
		FROM messages m
		JOIN users u ON u.id = m.sender_id
		WHERE m.conversation_id = $1
	`
	args := []interface{}{conversationID}
	if !before.IsZero() {
		query += ` AND m.created_at < $2`
		args = append(args, before)
	}
	query += fmt.Sprintf(` ORDER BY m.created_at DESC LIMIT $%d`, len(args)+1)
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	var messages []*Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.SenderID, &m.SenderName, &m.Content, &m.Status, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		messages = append(messages, &m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Query returns newest first; callers want chronological order.
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

// MarkConversationRead is the bulk read-on-fetch transition. read is
// the terminal status, so `status <> 'read'` is the same forward-only
// guard AdvanceMessageStatus applies per row.
func (r *PostgresRepository) MarkConversationRead(ctx context.Context, conversationID, readerID string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE messages SET status = 'read'
		WHERE conversation_id = $1 AND sender_id <> $2 AND status <> 'read'
	`, conversationID, readerID)
	if err != nil {
		return 0, fmt.Errorf("mark conversation read: %w", err)
	}
	return res.RowsAffected()
}

func (r *PostgresRepository) participants(ctx context.Context, conversationID string) ([]*user.User, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT u.id, u.username, u.email, u.created_at, u.updated_at
		FROM users u
		JOIN conversation_participants cp ON cp.user_id = u.id
		WHERE cp.conversation_id = $1
	`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("conversation participants: %w", err)
	}
	defer rows.Close()

	var users []*user.User
	for rows.Next() {
		var u user.User
		if err := rows.Scan(&u.ID, &u.Username, &u.Email, &u.CreatedAt, &u.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan participant user: %w", err)
		}
		users = append(users, &u)
	}
	return users, rows.Err()
}
