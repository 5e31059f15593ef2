package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"chatwire/domain"
	"chatwire/errors"
	"chatwire/services"
	"chatwire/store"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
)

// Channel is the deployment-wide pub/sub channel. Fan-out is keyed by
// deployment, not per target, so subscription management stays trivial.
const Channel = "chatwire:events"

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Bridge pushes chat events to locally attached WebSockets and
// republishes them so sibling instances can reach their own sockets.
// Delivery is at-least-once for every currently connected socket of a
// target, without sticky routing.
type Bridge struct {
	log        *slog.Logger
	auth       services.IAuthService
	users      store.IUserRepository
	groups     store.IGroupRepository
	broker     *redis.Client
	instanceID string

	mu      sync.Mutex
	clients map[int64][]*client
}

// New builds a bridge. broker may be nil, in which case the bridge runs
// in single-instance mode and only serves local sockets.
func New(
	log *slog.Logger,
	auth services.IAuthService,
	users store.IUserRepository,
	groups store.IGroupRepository,
	broker *redis.Client,
) *Bridge {
	return &Bridge{
		log:        log,
		auth:       auth,
		users:      users,
		groups:     groups,
		broker:     broker,
		instanceID: uuid.New().String(),
		clients:    make(map[int64][]*client),
	}
}

// Publish delivers a locally-originated event to local sockets and
// republishes it on the shared channel for sibling instances.
func (b *Bridge) Publish(ctx context.Context, event domain.Event) {
	event.Origin = b.instanceID
	b.deliverLocal(event)

	if b.broker == nil {
		return
	}
	payload, err := json.Marshal(event)
	if err != nil {
		b.log.Error("Failed to marshal event", "error", err)
		return
	}
	if err = b.broker.Publish(ctx, Channel, payload).Err(); err != nil {
		b.log.Warn("Broker publish failed", "event_id", event.ID, "error", err)
	}
}

// Subscribe consumes the shared channel until ctx is done, redelivering
// events whose target sockets are attached to this instance. Events this
// instance originated are skipped: they were already delivered inline.
func (b *Bridge) Subscribe(ctx context.Context) {
	if b.broker == nil {
		return
	}
	sub := b.broker.Subscribe(ctx, Channel)
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var event domain.Event
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				b.log.Warn("Malformed event on broker channel", "error", err)
				continue
			}
			if event.Origin == b.instanceID {
				continue
			}
			b.deliverLocal(event)
		case <-ctx.Done():
			return
		}
	}
}

// deliverLocal pushes the event onto every locally attached socket that
// should see it.
func (b *Bridge) deliverLocal(event domain.Event) {
	targets, err := b.targetUserIDs(event)
	if err != nil {
		b.log.Warn("Cannot resolve event targets", "event_id", event.ID, "error", err)
		return
	}

	payload, err := json.Marshal(event)
	if err != nil {
		b.log.Error("Failed to marshal event", "error", err)
		return
	}

	b.mu.Lock()
	var recipients []*client
	for _, userID := range targets {
		recipients = append(recipients, b.clients[userID]...)
	}
	b.mu.Unlock()

	for _, c := range recipients {
		c.push(payload)
	}
}

func (b *Bridge) targetUserIDs(event domain.Event) ([]int64, error) {
	switch event.Type {
	case domain.EventPrivateMessage:
		user, err := b.users.GetByUsername(event.Target)
		if err != nil {
			return nil, err
		}
		return []int64{user.ID}, nil
	case domain.EventGroupMessage:
		group, err := b.groups.GetByName(event.Target)
		if err != nil {
			return nil, err
		}
		return b.groups.MemberIDs(group.ID)
	default:
		return nil, fmt.Errorf("unknown event type %q", event.Type)
	}
}

// ServeWS upgrades the connection, runs the authentication exchange and
// registers the socket. The first client frame must be
// {"token":"<session>"}; anything else closes the socket after a single
// error frame.
func (b *Bridge) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		b.log.Warn("WebSocket upgrade failed", "error", err)
		return
	}

	userID, err := b.handshake(conn)
	if err != nil {
		conn.WriteMessage(websocket.TextMessage, []byte(`{"error":"invalid session"}`))
		conn.Close()
		return
	}

	c := newClient(b, conn, userID)
	b.register(c)
	b.log.Info("Realtime socket attached", "user_id", userID)

	go c.writePump()
	go c.readPump()
}

type authFrame struct {
	Token string `json:"token"`
}

func (b *Bridge) handshake(conn *websocket.Conn) (int64, error) {
	_, raw, err := conn.ReadMessage()
	if err != nil {
		return 0, err
	}
	var frame authFrame
	if err = json.Unmarshal(raw, &frame); err != nil {
		return 0, errors.ErrInvalidSession
	}
	if frame.Token == "" {
		return 0, errors.ErrInvalidSession
	}
	userID, err := b.auth.Validate(frame.Token)
	if err != nil {
		return 0, err
	}
	return userID, nil
}

func (b *Bridge) register(c *client) {
	b.mu.Lock()
	b.clients[c.userID] = append(b.clients[c.userID], c)
	b.mu.Unlock()
}

func (b *Bridge) unregister(c *client) {
	b.mu.Lock()
	defer b.mu.Unlock()

	sockets := b.clients[c.userID]
	for i, existing := range sockets {
		if existing == c {
			b.clients[c.userID] = append(sockets[:i], sockets[i+1:]...)
			break
		}
	}
	if len(b.clients[c.userID]) == 0 {
		delete(b.clients, c.userID)
	}
}

// LocalSocketCount reports how many sockets a user has on this instance.
func (b *Bridge) LocalSocketCount(userID int64) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.clients[userID])
}
