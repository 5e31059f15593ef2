package store

import (
	"database/sql"
	stderrors "errors"
	"fmt"

	"chatwire/errors"

	"github.com/mattn/go-sqlite3"
)

// maxPoolConns bounds the process-wide connection pool. Write bursts
// queue here instead of fanning out unbounded file handles.
const maxPoolConns = 5

// Store owns the sqlite handle shared by all repositories.
type Store struct {
	conn *sql.DB
}

func Open(path string) (*Store, error) {
	conn, err := sql.Open("sqlite3", path+"?_foreign_keys=1&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrStorageUnavailable, err)
	}
	conn.SetMaxOpenConns(maxPoolConns)

	s := &Store{conn: conn}
	if err := s.init(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("%w: %v", errors.ErrStorageUnavailable, err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.conn.Close()
}

func (s *Store) init() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			username TEXT UNIQUE NOT NULL,
			online INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS credentials (
			user_id INTEGER PRIMARY KEY REFERENCES users(id),
			password_hash TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS sessions (
			token TEXT PRIMARY KEY,
			user_id INTEGER NOT NULL REFERENCES users(id),
			created_at TEXT NOT NULL,
			expires_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS session_events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id INTEGER NOT NULL,
			event TEXT NOT NULL,
			at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS groups (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT UNIQUE NOT NULL,
			owner_id INTEGER NOT NULL REFERENCES users(id),
			created_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS group_members (
			group_id INTEGER NOT NULL REFERENCES groups(id),
			user_id INTEGER NOT NULL REFERENCES users(id),
			UNIQUE(group_id, user_id)
		)`,
		`CREATE TABLE IF NOT EXISTS group_invites (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			group_id INTEGER NOT NULL REFERENCES groups(id),
			invitee_id INTEGER NOT NULL REFERENCES users(id),
			inviter_id INTEGER NOT NULL REFERENCES users(id),
			status TEXT NOT NULL DEFAULT 'pending'
		)`,
		`CREATE TABLE IF NOT EXISTS friend_requests (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			from_id INTEGER NOT NULL REFERENCES users(id),
			to_id INTEGER NOT NULL REFERENCES users(id),
			message TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL DEFAULT 'pending'
		)`,
		`CREATE TABLE IF NOT EXISTS friendships (
			user_a INTEGER NOT NULL,
			user_b INTEGER NOT NULL,
			UNIQUE(user_a, user_b)
		)`,
		`CREATE TABLE IF NOT EXISTS encrypted_messages (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			conversation TEXT NOT NULL,
			sender_id INTEGER NOT NULL,
			ciphertext BLOB NOT NULL,
			nonce BLOB NOT NULL,
			sent_at INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS key_material (
			owner_type TEXT NOT NULL,
			owner_id INTEGER NOT NULL,
			created_at TEXT NOT NULL,
			UNIQUE(owner_type, owner_id)
		)`,
		`CREATE TABLE IF NOT EXISTS deleted_chats (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			conversation TEXT NOT NULL,
			deleted_by INTEGER NOT NULL,
			at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_conversation
			ON encrypted_messages(conversation, sent_at, id)`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_user ON sessions(user_id)`,
	}

	for _, query := range queries {
		if _, err := s.conn.Exec(query); err != nil {
			return err
		}
	}
	return nil
}

// mapSQLiteErr converts driver-level constraint failures into the
// domain error taxonomy.
func mapSQLiteErr(err error) error {
	if err == nil {
		return nil
	}
	var sqliteErr sqlite3.Error
	if stderrors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint {
		return fmt.Errorf("%w: %v", errors.ErrConstraintViolation, err)
	}
	return err
}
