package server

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"time"

	"chatwire/domain"
	"chatwire/presence"
	"chatwire/services"
	"chatwire/store"
)

// EventPublisher receives events for successfully persisted messages.
type EventPublisher interface {
	Publish(ctx context.Context, event domain.Event)
}

type Config struct {
	Host             string
	Port             int
	MaxMessageLength int
	ReadTimeout      time.Duration
	WriteTimeout     time.Duration
}

// Server accepts one long-lived TCP connection per client and runs a
// command dispatcher task for each.
type Server struct {
	log      *slog.Logger
	cfg      Config
	auth     services.IAuthService
	chat     services.IChatService
	social   services.ISocialService
	users    store.IUserRepository
	registry *presence.Registry
	events   EventPublisher
	table    map[string]command
}

func New(
	log *slog.Logger,
	cfg Config,
	auth services.IAuthService,
	chat services.IChatService,
	social services.ISocialService,
	users store.IUserRepository,
	registry *presence.Registry,
	events EventPublisher,
) *Server {
	s := &Server{
		log:      log,
		cfg:      cfg,
		auth:     auth,
		chat:     chat,
		social:   social,
		users:    users,
		registry: registry,
		events:   events,
	}
	s.table = s.commandTable()
	return s
}

// ListenAndServe blocks accepting connections until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	address := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", address, err)
	}
	defer listener.Close()
	s.log.Info("Chat server listening", "address", address)

	go func() {
		<-ctx.Done()
		listener.Close()
	}()

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			s.log.Warn("Accept failed", "error", err)
			continue
		}
		go s.HandleConnection(ctx, conn)
	}
}

// connState is the per-connection protocol state machine: it starts
// unauthenticated and carries the user id and presence handle once a
// login on this connection succeeds.
type connState struct {
	userID int64
	token  string
	handle *presence.Handle
}

// HandleConnection processes newline-terminated commands strictly in
// arrival order. Reading the next line races the presence eviction
// signal; whichever resolves first wins.
func (s *Server) HandleConnection(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	remote := conn.RemoteAddr().String()
	s.log.Debug("Client connected", "remote", remote)

	lines := make(chan string)
	readErr := make(chan error, 1)
	done := make(chan struct{})
	defer close(done)
	go func() {
		reader := bufio.NewReader(conn)
		for {
			if s.cfg.ReadTimeout > 0 {
				conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
			}
			line, err := reader.ReadString('\n')
			if err != nil {
				readErr <- err
				return
			}
			select {
			case lines <- strings.TrimRight(line, "\r\n"):
			case <-done:
				return
			}
		}
	}()

	st := &connState{}
	defer func() {
		if st.handle != nil {
			s.registry.Unregister(st.userID, st.handle)
		}
	}()

	for {
		var evictable <-chan struct{}
		if st.handle != nil {
			evictable = st.handle.Done()
		}

		var line string
		select {
		case line = <-lines:
		case <-evictable:
			s.write(conn, "BYE: Session terminated")
			s.log.Info("Connection evicted", "user_id", st.userID, "remote", remote)
			return
		case err := <-readErr:
			s.log.Debug("Client disconnected", "remote", remote, "error", err)
			return
		case <-ctx.Done():
			return
		}

		if line == "" {
			continue
		}
		response := s.dispatch(ctx, st, line)
		if !s.write(conn, response) {
			return
		}
	}
}

func (s *Server) write(conn net.Conn, response string) bool {
	if s.cfg.WriteTimeout > 0 {
		conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
	}
	if _, err := conn.Write([]byte(response + "\n")); err != nil {
		s.log.Warn("Write failed", "error", err)
		return false
	}
	return true
}
