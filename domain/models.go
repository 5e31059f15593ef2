package domain

import "time"

type User struct {
	ID       int64
	Username string
	Online   bool
}

type Session struct {
	Token     string
	UserID    int64
	CreatedAt time.Time
	ExpiresAt time.Time
}

// Message is the stored form of a chat message. The body is always
// ciphertext; plaintext never reaches the store.
type Message struct {
	ID           int64
	Conversation string
	SenderID     int64
	Ciphertext   []byte
	Nonce        []byte
	SentAt       time.Time
}

type Group struct {
	ID        int64
	Name      string
	OwnerID   int64
	CreatedAt time.Time
}

type InviteStatus string

const (
	StatusPending  InviteStatus = "pending"
	StatusAccepted InviteStatus = "accepted"
	StatusRejected InviteStatus = "rejected"
)

type GroupInvite struct {
	ID        int64
	GroupID   int64
	InviteeID int64
	InviterID int64
	Status    InviteStatus
}

type FriendRequest struct {
	ID      int64
	FromID  int64
	ToID    int64
	Message string
	Status  InviteStatus
}
