package server

import (
	"bufio"
	"context"
	"log/slog"
	"net"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"chatwire/auth"
	"chatwire/crypto"
	"chatwire/domain"
	"chatwire/presence"
	"chatwire/services"
	"chatwire/store"

	"github.com/stretchr/testify/require"
)

type capturePublisher struct {
	mu     sync.Mutex
	events []domain.Event
}

func (p *capturePublisher) Publish(_ context.Context, event domain.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
}

func (p *capturePublisher) all() []domain.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]domain.Event(nil), p.events...)
}

type fixture struct {
	srv       *Server
	registry  *presence.Registry
	messages  store.IMessageRepository
	publisher *capturePublisher
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	req := require.New(t)

	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	req.NoError(err)
	t.Cleanup(func() { s.Close() })

	engine, err := crypto.NewEphemeralEngine()
	req.NoError(err)

	log := slog.Default()
	users := store.NewUserRepository(s)
	sessions := store.NewSessionRepository(s)
	groups := store.NewGroupRepository(s)
	friends := store.NewFriendRepository(s)
	messages := store.NewMessageRepository(s)

	registry := presence.NewRegistry(log)
	publisher := &capturePublisher{}

	srv := New(
		log,
		Config{
			MaxMessageLength: 256,
			ReadTimeout:      30 * time.Second,
			WriteTimeout:     5 * time.Second,
		},
		services.NewAuthService(users, sessions, auth.NewPasswordHasher(16), time.Hour, log),
		services.NewChatService(users, groups, messages, engine, log),
		services.NewSocialService(users, groups, friends, log),
		users, registry, publisher,
	)
	return &fixture{srv: srv, registry: registry, messages: messages, publisher: publisher}
}

type testClient struct {
	conn   net.Conn
	reader *bufio.Reader
}

func (f *fixture) connect(t *testing.T) *testClient {
	t.Helper()
	serverConn, clientConn := net.Pipe()
	go f.srv.HandleConnection(context.Background(), serverConn)
	t.Cleanup(func() {
		clientConn.Close()
		serverConn.Close()
	})
	return &testClient{conn: clientConn, reader: bufio.NewReader(clientConn)}
}

func (c *testClient) send(t *testing.T, line string) {
	t.Helper()
	c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	_, err := c.conn.Write([]byte(line + "\n"))
	require.NoError(t, err)
}

func (c *testClient) readLine(t *testing.T) string {
	t.Helper()
	c.conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	line, err := c.reader.ReadString('\n')
	require.NoError(t, err)
	return strings.TrimRight(line, "\n")
}

// readBlock reads a multi-row response up to its END sentinel and
// returns the rows between header and sentinel.
func (c *testClient) readBlock(t *testing.T) (header string, rows []string) {
	t.Helper()
	header = c.readLine(t)
	for {
		line := c.readLine(t)
		if line == "END" {
			return header, rows
		}
		rows = append(rows, line)
	}
}

// roundTrip sends a command and reads a single-line response.
func (c *testClient) roundTrip(t *testing.T, line string) string {
	t.Helper()
	c.send(t, line)
	return c.readLine(t)
}

// login performs /login and returns the session token.
func (c *testClient) login(t *testing.T, username, password string) string {
	t.Helper()
	c.send(t, "/login "+username+" "+password)
	first := c.readLine(t)
	require.Equal(t, "OK: Logged in as "+username, first)
	second := c.readLine(t)
	require.True(t, strings.HasPrefix(second, "SESSION: "), "got %q", second)
	return strings.TrimPrefix(second, "SESSION: ")
}

func TestServer_RegisterAndLogin(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	c := f.connect(t)

	req.Equal("OK: Registered as alice", c.roundTrip(t, "/register alice pw1"))
	req.Equal("ERR: Username already taken", c.roundTrip(t, "/register alice pw2"))
	req.Equal("ERR: Invalid credentials", c.roundTrip(t, "/login alice wrong"))

	token := c.login(t, "alice", "pw1")
	req.NotEmpty(token)
	req.Equal("OK: Online users: alice", c.roundTrip(t, "/users"))
	req.Equal("OK: All users: alice", c.roundTrip(t, "/all_users"))
}

func TestServer_MalformedAndUnknown(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	c := f.connect(t)

	req.Equal("ERR: Unknown command", c.roundTrip(t, "/frobnicate a b"))
	req.Equal("ERR: Unknown command", c.roundTrip(t, "hello there"))
	req.Equal("ERR: Malformed command", c.roundTrip(t, "/register alice"))
	req.Equal("ERR: Malformed command", c.roundTrip(t, "/register alice pw extra"))

	// The connection survives every domain error.
	req.Equal("OK: Registered as alice", c.roundTrip(t, "/register alice pw1"))
}

func TestServer_AuthenticationTier(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	c := f.connect(t)

	req.Equal("OK: Registered as alice", c.roundTrip(t, "/register alice pw1"))
	req.Equal("ERR: Invalid session", c.roundTrip(t, "/send bogus-token team hi"))

	token := c.login(t, "alice", "pw1")
	req.Equal("OK: Logout successful", c.roundTrip(t, "/logout "+token))

	// Revoked token is rejected on the next command.
	req.Equal("ERR: Invalid session", c.roundTrip(t, "/my_groups "+token))
}

func TestServer_PrivateMessageEndToEnd(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)

	alice := f.connect(t)
	bob := f.connect(t)
	req.Equal("OK: Registered as alice", alice.roundTrip(t, "/register alice pw1"))
	req.Equal("OK: Registered as bob", bob.roundTrip(t, "/register bob pw2"))
	aliceToken := alice.login(t, "alice", "pw1")
	bobToken := bob.login(t, "bob", "pw2")

	req.Equal("OK: Message sent", alice.roundTrip(t, "/send_private "+aliceToken+" bob hello   bob"))
	req.Equal("OK: Message sent", bob.roundTrip(t, "/send_private "+bobToken+" alice hi alice"))

	// Stored under the canonical key regardless of who sent first.
	stored, err := f.messages.List("private:1-2")
	req.NoError(err)
	req.Len(stored, 2)

	// Bodies are re-joined with single spaces.
	bob.send(t, "/get_private_messages "+bobToken+" alice")
	header, rows := bob.readBlock(t)
	req.Equal("OK: Messages:", header)
	req.Len(rows, 2)
	req.Contains(rows[0], "alice: hello bob")
	req.Contains(rows[1], "bob: hi alice")

	events := f.publisher.all()
	req.Len(events, 2)
	req.Equal(domain.EventPrivateMessage, events[0].Type)
	req.Equal("bob", events[0].Target)
	req.Equal("hello bob", events[0].Content)

	req.Equal("OK: Messages deleted", alice.roundTrip(t, "/delete_private_messages "+aliceToken+" bob"))
	stored, err = f.messages.List("private:1-2")
	req.NoError(err)
	req.Empty(stored)
}

func TestServer_GroupFlow(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)

	alice := f.connect(t)
	bob := f.connect(t)
	req.Equal("OK: Registered as alice", alice.roundTrip(t, "/register alice pw1"))
	req.Equal("OK: Registered as bob", bob.roundTrip(t, "/register bob pw2"))
	aliceToken := alice.login(t, "alice", "pw1")
	bobToken := bob.login(t, "bob", "pw2")

	req.Equal("OK: Group team created", alice.roundTrip(t, "/create_group "+aliceToken+" team"))

	t.Run("non-member is rejected", func(t *testing.T) {
		req := require.New(t)
		req.Equal("ERR: Not a group member", bob.roundTrip(t, "/send "+bobToken+" team hi all"))
		bob.send(t, "/get_group_messages "+bobToken+" team")
		req.Equal("ERR: Not a group member", bob.readLine(t))
	})

	req.Equal("OK: Invite sent", alice.roundTrip(t, "/invite "+aliceToken+" team bob"))

	bob.send(t, "/invites "+bobToken)
	_, rows := bob.readBlock(t)
	req.Len(rows, 1)
	inviteID := strings.Fields(rows[0])[0]

	req.Equal("OK: Invite accepted", bob.roundTrip(t, "/respond_invite "+bobToken+" "+inviteID+" accept"))
	req.Equal("OK: Groups: team", bob.roundTrip(t, "/my_groups "+bobToken))

	req.Equal("OK: Message sent", bob.roundTrip(t, "/send "+bobToken+" team made it in"))
	alice.send(t, "/get_group_messages "+aliceToken+" team")
	header, rows := alice.readBlock(t)
	req.Equal("OK: Messages:", header)
	req.Len(rows, 1)
	req.Contains(rows[0], "bob: made it in")

	req.Equal("OK: Messages deleted", alice.roundTrip(t, "/delete_group_messages "+aliceToken+" team"))
}

func TestServer_FriendFlow(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)

	alice := f.connect(t)
	bob := f.connect(t)
	req.Equal("OK: Registered as alice", alice.roundTrip(t, "/register alice pw1"))
	req.Equal("OK: Registered as bob", bob.roundTrip(t, "/register bob pw2"))
	aliceToken := alice.login(t, "alice", "pw1")
	bobToken := bob.login(t, "bob", "pw2")

	req.Equal("OK: Friend request sent", alice.roundTrip(t, "/add_friend "+aliceToken+" bob let us chat"))

	bob.send(t, "/friend_requests "+bobToken)
	_, rows := bob.readBlock(t)
	req.Len(rows, 1)
	requestID := strings.Fields(rows[0])[0]

	req.Equal("OK: Friend request accepted", bob.roundTrip(t, "/respond_friend "+bobToken+" "+requestID+" accept"))
	req.Equal("OK: Friends: bob", alice.roundTrip(t, "/friends "+aliceToken))
}

func TestServer_MessageTooLong(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	c := f.connect(t)

	req.Equal("OK: Registered as alice", c.roundTrip(t, "/register alice pw1"))
	req.Equal("OK: Registered as bob", c.roundTrip(t, "/register bob pw2"))
	token := c.login(t, "alice", "pw1")

	tooLong := strings.Repeat("x", 300)
	req.Equal("ERR: Message too long", c.roundTrip(t, "/send_private "+token+" bob "+tooLong))

	// Nothing touched storage.
	stored, err := f.messages.List("private:1-2")
	req.NoError(err)
	req.Empty(stored)
}

func TestServer_Eviction(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)

	first := f.connect(t)
	second := f.connect(t)
	req.Equal("OK: Registered as alice", first.roundTrip(t, "/register alice pw1"))
	firstToken := first.login(t, "alice", "pw1")
	second.login(t, "alice", "pw1")

	req.Equal(2, f.registry.Count(1))

	req.Equal("OK: Disconnected 2 connection(s)", first.roundTrip(t, "/disconnect_all "+firstToken))
	req.Equal("BYE: Session terminated", first.readLine(t))
	req.Equal("BYE: Session terminated", second.readLine(t))
	req.Equal(0, f.registry.Count(1))
}

func TestServer_LogoutUnregistersPresence(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	c := f.connect(t)

	req.Equal("OK: Registered as alice", c.roundTrip(t, "/register alice pw1"))
	token := c.login(t, "alice", "pw1")
	req.Equal(1, f.registry.Count(1))

	req.Equal("OK: Logout successful", c.roundTrip(t, "/logout "+token))
	req.Equal(0, f.registry.Count(1))
}
