package services

import (
	stderrors "errors"
	"log/slog"
	"time"

	"chatwire/crypto"
	"chatwire/domain"
	"chatwire/errors"
	"chatwire/store"

	"github.com/google/uuid"
)

// HistoryEntry is one decrypted line of conversation history. Entries
// whose ciphertext fails authentication are flagged instead of aborting
// the whole listing.
type HistoryEntry struct {
	Sender     string
	Content    string
	SentAt     time.Time
	Unreadable bool
}

type IChatService interface {
	SendGroup(senderID int64, groupName, text string) (domain.Event, error)
	SendPrivate(senderID int64, toUsername, text string) (domain.Event, error)
	GroupHistory(userID int64, groupName string) ([]HistoryEntry, error)
	PrivateHistory(userID int64, otherUsername string) ([]HistoryEntry, error)
	DeleteGroupMessages(userID int64, groupName string) (int64, error)
	DeletePrivateMessages(userID int64, otherUsername string) (int64, error)
}

// ChatService seals, stores, lists and deletes conversation messages.
// Authorization (membership, participation) is enforced here before any
// storage or crypto work.
type ChatService struct {
	users    store.IUserRepository
	groups   store.IGroupRepository
	messages store.IMessageRepository
	engine   *crypto.Engine
	log      *slog.Logger
}

func NewChatService(
	users store.IUserRepository,
	groups store.IGroupRepository,
	messages store.IMessageRepository,
	engine *crypto.Engine,
	log *slog.Logger,
) IChatService {
	return &ChatService{
		users:    users,
		groups:   groups,
		messages: messages,
		engine:   engine,
		log:      log,
	}
}

func (s *ChatService) memberGroup(userID int64, groupName string) (domain.Group, error) {
	group, err := s.groups.GetByName(groupName)
	if err != nil {
		if stderrors.Is(err, errors.ErrNotFound) {
			return domain.Group{}, errors.ErrNotGroupMember
		}
		return domain.Group{}, err
	}
	member, err := s.groups.IsMember(group.ID, userID)
	if err != nil {
		return domain.Group{}, err
	}
	if !member {
		return domain.Group{}, errors.ErrNotGroupMember
	}
	return group, nil
}

func (s *ChatService) SendGroup(senderID int64, groupName, text string) (domain.Event, error) {
	group, err := s.memberGroup(senderID, groupName)
	if err != nil {
		return domain.Event{}, err
	}

	key := s.engine.DeriveConversationKey(domain.GroupParticipants(group.ID))
	ciphertext, nonce, err := s.engine.Seal([]byte(text), key)
	if err != nil {
		return domain.Event{}, err
	}

	sentAt := time.Now().UTC()
	if _, err = s.messages.Append(domain.Message{
		Conversation: domain.GroupConversation(group.ID),
		SenderID:     senderID,
		Ciphertext:   ciphertext,
		Nonce:        nonce,
		SentAt:       sentAt,
	}); err != nil {
		return domain.Event{}, err
	}

	sender, err := s.users.GetByID(senderID)
	if err != nil {
		return domain.Event{}, err
	}
	return domain.Event{
		ID:        uuid.New().String(),
		Type:      domain.EventGroupMessage,
		Sender:    sender.Username,
		Target:    group.Name,
		Content:   text,
		Timestamp: sentAt,
	}, nil
}

func (s *ChatService) SendPrivate(senderID int64, toUsername, text string) (domain.Event, error) {
	recipient, err := s.users.GetByUsername(toUsername)
	if err != nil {
		return domain.Event{}, err
	}

	key := s.engine.DeriveConversationKey(domain.PrivateParticipants(senderID, recipient.ID))
	ciphertext, nonce, err := s.engine.Seal([]byte(text), key)
	if err != nil {
		return domain.Event{}, err
	}

	sentAt := time.Now().UTC()
	if _, err = s.messages.Append(domain.Message{
		Conversation: domain.PrivateConversation(senderID, recipient.ID),
		SenderID:     senderID,
		Ciphertext:   ciphertext,
		Nonce:        nonce,
		SentAt:       sentAt,
	}); err != nil {
		return domain.Event{}, err
	}

	sender, err := s.users.GetByID(senderID)
	if err != nil {
		return domain.Event{}, err
	}
	return domain.Event{
		ID:        uuid.New().String(),
		Type:      domain.EventPrivateMessage,
		Sender:    sender.Username,
		Target:    recipient.Username,
		Content:   text,
		Timestamp: sentAt,
	}, nil
}

func (s *ChatService) GroupHistory(userID int64, groupName string) ([]HistoryEntry, error) {
	group, err := s.memberGroup(userID, groupName)
	if err != nil {
		return nil, err
	}
	key := s.engine.DeriveConversationKey(domain.GroupParticipants(group.ID))
	return s.history(domain.GroupConversation(group.ID), key)
}

func (s *ChatService) PrivateHistory(userID int64, otherUsername string) ([]HistoryEntry, error) {
	other, err := s.users.GetByUsername(otherUsername)
	if err != nil {
		return nil, err
	}
	key := s.engine.DeriveConversationKey(domain.PrivateParticipants(userID, other.ID))
	return s.history(domain.PrivateConversation(userID, other.ID), key)
}

func (s *ChatService) history(conversation string, key []byte) ([]HistoryEntry, error) {
	messages, err := s.messages.List(conversation)
	if err != nil {
		return nil, err
	}

	usernames := make(map[int64]string)
	entries := make([]HistoryEntry, 0, len(messages))
	for _, m := range messages {
		name, ok := usernames[m.SenderID]
		if !ok {
			if sender, err := s.users.GetByID(m.SenderID); err == nil {
				name = sender.Username
			} else {
				name = "unknown"
			}
			usernames[m.SenderID] = name
		}

		entry := HistoryEntry{Sender: name, SentAt: m.SentAt}
		plaintext, err := s.engine.Open(m.Ciphertext, m.Nonce, key)
		if err != nil {
			// Surface the failure per message, keep the rest of the
			// listing intact.
			s.log.Warn("Undecryptable message in history", "conversation", conversation, "message_id", m.ID)
			entry.Unreadable = true
		} else {
			entry.Content = string(plaintext)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func (s *ChatService) DeleteGroupMessages(userID int64, groupName string) (int64, error) {
	group, err := s.memberGroup(userID, groupName)
	if err != nil {
		return 0, err
	}
	return s.messages.DeleteAll(domain.GroupConversation(group.ID), userID)
}

func (s *ChatService) DeletePrivateMessages(userID int64, otherUsername string) (int64, error) {
	other, err := s.users.GetByUsername(otherUsername)
	if err != nil {
		return 0, err
	}
	// The acting user is one of the two participants encoded in the key
	// by construction.
	return s.messages.DeleteAll(domain.PrivateConversation(userID, other.ID), userID)
}
