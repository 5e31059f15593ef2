package store

import (
	"database/sql"
	stderrors "errors"

	"chatwire/domain"
	"chatwire/errors"
)

type IFriendRepository interface {
	CreateRequest(fromID, toID int64, message string) (int64, error)
	GetRequest(id int64) (domain.FriendRequest, error)
	PendingRequestsFor(userID int64) ([]domain.FriendRequest, error)
	SetRequestStatus(id int64, status domain.InviteStatus) error
	AddFriendship(a, b int64) error
	AreFriends(a, b int64) (bool, error)
	ListFriendUsernames(userID int64) ([]string, error)
}

type FriendRepository struct {
	store *Store
}

func NewFriendRepository(store *Store) IFriendRepository {
	return &FriendRepository{store: store}
}

func (r *FriendRepository) CreateRequest(fromID, toID int64, message string) (int64, error) {
	res, err := r.store.conn.Exec(
		"INSERT INTO friend_requests (from_id, to_id, message, status) VALUES (?, ?, ?, 'pending')",
		fromID, toID, message,
	)
	if err != nil {
		return 0, mapSQLiteErr(err)
	}
	return res.LastInsertId()
}

func (r *FriendRepository) GetRequest(id int64) (domain.FriendRequest, error) {
	var fr domain.FriendRequest
	err := r.store.conn.QueryRow(
		"SELECT id, from_id, to_id, message, status FROM friend_requests WHERE id = ?",
		id,
	).Scan(&fr.ID, &fr.FromID, &fr.ToID, &fr.Message, &fr.Status)
	if stderrors.Is(err, sql.ErrNoRows) {
		return domain.FriendRequest{}, errors.ErrNotFound
	}
	return fr, err
}

func (r *FriendRepository) PendingRequestsFor(userID int64) ([]domain.FriendRequest, error) {
	rows, err := r.store.conn.Query(
		"SELECT id, from_id, to_id, message, status FROM friend_requests WHERE to_id = ? AND status = 'pending'",
		userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var requests []domain.FriendRequest
	for rows.Next() {
		var fr domain.FriendRequest
		if err := rows.Scan(&fr.ID, &fr.FromID, &fr.ToID, &fr.Message, &fr.Status); err != nil {
			return nil, err
		}
		requests = append(requests, fr)
	}
	return requests, rows.Err()
}

func (r *FriendRepository) SetRequestStatus(id int64, status domain.InviteStatus) error {
	_, err := r.store.conn.Exec(
		"UPDATE friend_requests SET status = ? WHERE id = ?", string(status), id,
	)
	return err
}

// AddFriendship stores the unordered pair once, in canonical (sorted)
// order.
func (r *FriendRepository) AddFriendship(a, b int64) error {
	if a > b {
		a, b = b, a
	}
	_, err := r.store.conn.Exec(
		"INSERT INTO friendships (user_a, user_b) VALUES (?, ?)", a, b,
	)
	return mapSQLiteErr(err)
}

func (r *FriendRepository) AreFriends(a, b int64) (bool, error) {
	if a > b {
		a, b = b, a
	}
	var count int
	err := r.store.conn.QueryRow(
		"SELECT COUNT(*) FROM friendships WHERE user_a = ? AND user_b = ?", a, b,
	).Scan(&count)
	return count > 0, err
}

func (r *FriendRepository) ListFriendUsernames(userID int64) ([]string, error) {
	rows, err := r.store.conn.Query(
		`SELECT u.username FROM users u
		 JOIN friendships f ON (f.user_a = u.id AND f.user_b = ?)
		   OR (f.user_b = u.id AND f.user_a = ?)
		 ORDER BY u.username`,
		userID, userID,
	)
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
