package store

import (
	"database/sql"
	stderrors "errors"
	"fmt"
	"time"

	"chatwire/domain"
	"chatwire/errors"
)

type IGroupRepository interface {
	Create(name string, ownerID int64) (int64, error)
	GetByName(name string) (domain.Group, error)
	IsMember(groupID, userID int64) (bool, error)
	AddMember(groupID, userID int64) error
	MemberIDs(groupID int64) ([]int64, error)
	ListForUser(userID int64) ([]domain.Group, error)
	CreateInvite(groupID, inviteeID, inviterID int64) (int64, error)
	GetInvite(id int64) (domain.GroupInvite, error)
	PendingInvitesFor(userID int64) ([]domain.GroupInvite, error)
	SetInviteStatus(id int64, status domain.InviteStatus) error
}

type GroupRepository struct {
	store *Store
}

func NewGroupRepository(store *Store) IGroupRepository {
	return &GroupRepository{store: store}
}

// Create inserts the group, its key-material placeholder, and the owner
// membership in one transaction.
func (r *GroupRepository) Create(name string, ownerID int64) (int64, error) {
	tx, err := r.store.conn.Begin()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", errors.ErrStorageUnavailable, err)
	}
	defer tx.Rollback()

	now := time.Now().UTC().Format(time.RFC3339)
	res, err := tx.Exec(
		"INSERT INTO groups (name, owner_id, created_at) VALUES (?, ?, ?)",
		name, ownerID, now,
	)
	if err != nil {
		return 0, mapSQLiteErr(err)
	}
	groupID, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}

	if _, err = tx.Exec(
		"INSERT INTO group_members (group_id, user_id) VALUES (?, ?)",
		groupID, ownerID,
	); err != nil {
		return 0, mapSQLiteErr(err)
	}
	if _, err = tx.Exec(
		"INSERT INTO key_material (owner_type, owner_id, created_at) VALUES ('group', ?, ?)",
		groupID, now,
	); err != nil {
		return 0, mapSQLiteErr(err)
	}

	return groupID, tx.Commit()
}

func (r *GroupRepository) GetByName(name string) (domain.Group, error) {
	var g domain.Group
	var createdAt string
	err := r.store.conn.QueryRow(
		"SELECT id, name, owner_id, created_at FROM groups WHERE name = ?", name,
	).Scan(&g.ID, &g.Name, &g.OwnerID, &createdAt)
	if stderrors.Is(err, sql.ErrNoRows) {
		return domain.Group{}, errors.ErrNotFound
	}
	if err != nil {
		return domain.Group{}, err
	}
	g.CreatedAt, err = time.Parse(time.RFC3339, createdAt)
	return g, err
}

func (r *GroupRepository) IsMember(groupID, userID int64) (bool, error) {
	var count int
	err := r.store.conn.QueryRow(
		"SELECT COUNT(*) FROM group_members WHERE group_id = ? AND user_id = ?",
		groupID, userID,
	).Scan(&count)
	return count > 0, err
}

func (r *GroupRepository) AddMember(groupID, userID int64) error {
	_, err := r.store.conn.Exec(
		"INSERT INTO group_members (group_id, user_id) VALUES (?, ?)",
		groupID, userID,
	)
	return mapSQLiteErr(err)
}

func (r *GroupRepository) MemberIDs(groupID int64) ([]int64, error) {
	rows, err := r.store.conn.Query(
		"SELECT user_id FROM group_members WHERE group_id = ?", groupID,
	)
	if err != nil {
		return nil, err
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

func (r *GroupRepository) ListForUser(userID int64) ([]domain.Group, error) {
	rows, err := r.store.conn.Query(
		`SELECT g.id, g.name, g.owner_id, g.created_at
		 FROM groups g JOIN group_members m ON m.group_id = g.id
		 WHERE m.user_id = ? ORDER BY g.name`,
		userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var groups []domain.Group
	for rows.Next() {
		var g domain.Group
		var createdAt string
		if err := rows.Scan(&g.ID, &g.Name, &g.OwnerID, &createdAt); err != nil {
			return nil, err
		}
		if g.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
			return nil, err
		}
		groups = append(groups, g)
	}
	return groups, rows.Err()
}

func (r *GroupRepository) CreateInvite(groupID, inviteeID, inviterID int64) (int64, error) {
	res, err := r.store.conn.Exec(
		"INSERT INTO group_invites (group_id, invitee_id, inviter_id, status) VALUES (?, ?, ?, 'pending')",
		groupID, inviteeID, inviterID,
	)
	if err != nil {
		return 0, mapSQLiteErr(err)
	}
	return res.LastInsertId()
}

func (r *GroupRepository) GetInvite(id int64) (domain.GroupInvite, error) {
	var inv domain.GroupInvite
	err := r.store.conn.QueryRow(
		"SELECT id, group_id, invitee_id, inviter_id, status FROM group_invites WHERE id = ?",
		id,
	).Scan(&inv.ID, &inv.GroupID, &inv.InviteeID, &inv.InviterID, &inv.Status)
	if stderrors.Is(err, sql.ErrNoRows) {
		return domain.GroupInvite{}, errors.ErrNotFound
	}
	return inv, err
}

func (r *GroupRepository) PendingInvitesFor(userID int64) ([]domain.GroupInvite, error) {
	rows, err := r.store.conn.Query(
		"SELECT id, group_id, invitee_id, inviter_id, status FROM group_invites WHERE invitee_id = ? AND status = 'pending'",
		userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var invites []domain.GroupInvite
	for rows.Next() {
		var inv domain.GroupInvite
		if err := rows.Scan(&inv.ID, &inv.GroupID, &inv.InviteeID, &inv.InviterID, &inv.Status); err != nil {
			return nil, err
		}
		invites = append(invites, inv)
	}
	return invites, rows.Err()
}

func (r *GroupRepository) SetInviteStatus(id int64, status domain.InviteStatus) error {
	_, err := r.store.conn.Exec(
		"UPDATE group_invites SET status = ? WHERE id = ?", string(status), id,
	)
	return err
}
