package store

import (
	"time"

	"chatwire/domain"
)

type IMessageRepository interface {
	Append(message domain.Message) (int64, error)
	List(conversation string) ([]domain.Message, error)
	DeleteAll(conversation string, deletedBy int64) (int64, error)
}

// MessageRepository is append-only storage for encrypted message bodies.
// Ordering and deletion are the only behaviors it owns; authorization
// lives with the callers.
type MessageRepository struct {
	store *Store
}

func NewMessageRepository(store *Store) IMessageRepository {
	return &MessageRepository{store: store}
}

func (r *MessageRepository) Append(message domain.Message) (int64, error) {
	res, err := r.store.conn.Exec(
		`INSERT INTO encrypted_messages (conversation, sender_id, ciphertext, nonce, sent_at)
		 VALUES (?, ?, ?, ?, ?)`,
		message.Conversation,
		message.SenderID,
		message.Ciphertext,
		message.Nonce,
		message.SentAt.UTC().UnixNano(),
	)
	if err != nil {
		return 0, mapSQLiteErr(err)
	}
	return res.LastInsertId()
}

// List returns the full history ascending by sent_at, ties broken by
// insertion id.
func (r *MessageRepository) List(conversation string) ([]domain.Message, error) {
	rows, err := r.store.conn.Query(
		`SELECT id, conversation, sender_id, ciphertext, nonce, sent_at
		 FROM encrypted_messages WHERE conversation = ? ORDER BY sent_at, id`,
		conversation,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []domain.Message
	for rows.Next() {
		var m domain.Message
		var sentAt int64
		if err := rows.Scan(&m.ID, &m.Conversation, &m.SenderID, &m.Ciphertext, &m.Nonce, &sentAt); err != nil {
			return nil, err
		}
		m.SentAt = time.Unix(0, sentAt).UTC()
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

// DeleteAll irreversibly removes every message of a conversation and
// leaves a marker row recording who wiped it.
func (r *MessageRepository) DeleteAll(conversation string, deletedBy int64) (int64, error) {
	res, err := r.store.conn.Exec(
		"DELETE FROM encrypted_messages WHERE conversation = ?", conversation,
	)
	if err != nil {
		return 0, err
	}
	deleted, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}

	_, err = r.store.conn.Exec(
		"INSERT INTO deleted_chats (conversation, deleted_by, at) VALUES (?, ?, ?)",
		conversation, deletedBy, time.Now().UTC().Format(time.RFC3339),
	)
	return deleted, err
}
