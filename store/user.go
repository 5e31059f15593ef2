package store

import (
	"database/sql"
	stderrors "errors"
	"fmt"
	"time"

	"chatwire/domain"
	"chatwire/errors"
)

type IUserRepository interface {
	CreateWithCredential(username, passwordHash string) (int64, error)
	GetByUsername(username string) (domain.User, error)
	GetByID(id int64) (domain.User, error)
	PasswordHash(userID int64) (string, error)
	SetOnline(userID int64, online bool) error
	ListUsernames(onlineOnly bool) ([]string, error)
}

type UserRepository struct {
	store *Store
}

func NewUserRepository(store *Store) IUserRepository {
	return &UserRepository{store: store}
}

// CreateWithCredential inserts the user row, its credential and a
// key-material placeholder in one transaction so a partial failure never
// leaves an orphaned account.
func (r *UserRepository) CreateWithCredential(username, passwordHash string) (int64, error) {
	tx, err := r.store.conn.Begin()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", errors.ErrStorageUnavailable, err)
	}
	defer tx.Rollback()

	res, err := tx.Exec("INSERT INTO users (username, online) VALUES (?, 0)", username)
	if err != nil {
		if stderrors.Is(mapSQLiteErr(err), errors.ErrConstraintViolation) {
			return 0, errors.ErrDuplicateUsername
		}
		return 0, err
	}
	userID, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}

	if _, err = tx.Exec(
		"INSERT INTO credentials (user_id, password_hash) VALUES (?, ?)",
		userID, passwordHash,
	); err != nil {
		return 0, mapSQLiteErr(err)
	}

	now := time.Now().UTC().Format(time.RFC3339)
	if _, err = tx.Exec(
		"INSERT INTO key_material (owner_type, owner_id, created_at) VALUES ('user', ?, ?)",
		userID, now,
	); err != nil {
		return 0, mapSQLiteErr(err)
	}

	return userID, tx.Commit()
}

func (r *UserRepository) GetByUsername(username string) (domain.User, error) {
	return r.get("SELECT id, username, online FROM users WHERE username = ?", username)
}

func (r *UserRepository) GetByID(id int64) (domain.User, error) {
	return r.get("SELECT id, username, online FROM users WHERE id = ?", id)
}

func (r *UserRepository) get(query string, arg any) (domain.User, error) {
	var user domain.User
	var online int
	err := r.store.conn.QueryRow(query, arg).Scan(&user.ID, &user.Username, &online)
	if stderrors.Is(err, sql.ErrNoRows) {
		return domain.User{}, errors.ErrUserNotFound
	}
	if err != nil {
		return domain.User{}, err
	}
	user.Online = online != 0
	return user, nil
}

func (r *UserRepository) PasswordHash(userID int64) (string, error) {
	var hash string
	err := r.store.conn.QueryRow(
		"SELECT password_hash FROM credentials WHERE user_id = ?", userID,
	).Scan(&hash)
	if stderrors.Is(err, sql.ErrNoRows) {
		return "", errors.ErrUserNotFound
	}
	return hash, err
}

func (r *UserRepository) SetOnline(userID int64, online bool) error {
	flag := 0
	if online {
		flag = 1
	}
	_, err := r.store.conn.Exec("UPDATE users SET online = ? WHERE id = ?", flag, userID)
	return err
}

func (r *UserRepository) ListUsernames(onlineOnly bool) ([]string, error) {
	query := "SELECT username FROM users ORDER BY username"
	if onlineOnly {
		query = "SELECT username FROM users WHERE online = 1 ORDER BY username"
	}
	rows, err := r.store.conn.Query(query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}
