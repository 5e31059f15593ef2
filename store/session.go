package store

import (
	"database/sql"
	stderrors "errors"
	"time"

	"chatwire/domain"
	"chatwire/errors"
)

type ISessionRepository interface {
	Create(session domain.Session) error
	Get(token string) (domain.Session, error)
	Delete(token string) error
	CountForUser(userID int64) (int, error)
	DeleteAllForUser(userID int64) error
	RecordEvent(userID int64, event string) error
}

type SessionRepository struct {
	store *Store
}

func NewSessionRepository(store *Store) ISessionRepository {
	return &SessionRepository{store: store}
}

func (r *SessionRepository) Create(session domain.Session) error {
	_, err := r.store.conn.Exec(
		"INSERT INTO sessions (token, user_id, created_at, expires_at) VALUES (?, ?, ?, ?)",
		session.Token,
		session.UserID,
		session.CreatedAt.UTC().Format(time.RFC3339Nano),
		session.ExpiresAt.UTC().Format(time.RFC3339Nano),
	)
	return mapSQLiteErr(err)
}

func (r *SessionRepository) Get(token string) (domain.Session, error) {
	var session domain.Session
	var createdAt, expiresAt string
	err := r.store.conn.QueryRow(
		"SELECT token, user_id, created_at, expires_at FROM sessions WHERE token = ?",
		token,
	).Scan(&session.Token, &session.UserID, &createdAt, &expiresAt)
	if stderrors.Is(err, sql.ErrNoRows) {
		return domain.Session{}, errors.ErrInvalidSession
	}
	if err != nil {
		return domain.Session{}, err
	}

	if session.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return domain.Session{}, err
	}
	if session.ExpiresAt, err = time.Parse(time.RFC3339, expiresAt); err != nil {
		return domain.Session{}, err
	}
	return session, nil
}

func (r *SessionRepository) Delete(token string) error {
	_, err := r.store.conn.Exec("DELETE FROM sessions WHERE token = ?", token)
	return err
}

func (r *SessionRepository) CountForUser(userID int64) (int, error) {
	var count int
	err := r.store.conn.QueryRow(
		"SELECT COUNT(*) FROM sessions WHERE user_id = ?", userID,
	).Scan(&count)
	return count, err
}

func (r *SessionRepository) DeleteAllForUser(userID int64) error {
	_, err := r.store.conn.Exec("DELETE FROM sessions WHERE user_id = ?", userID)
	return err
}

// RecordEvent appends a login/logout audit row.
func (r *SessionRepository) RecordEvent(userID int64, event string) error {
	_, err := r.store.conn.Exec(
		"INSERT INTO session_events (user_id, event, at) VALUES (?, ?, ?)",
		userID, event, time.Now().UTC().Format(time.RFC3339),
	)
	return err
}
