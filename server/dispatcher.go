package server

import (
	"context"
	stderrors "errors"
	"fmt"
	"strconv"
	"strings"

	"chatwire/errors"
	"chatwire/services"
)

// command declares one verb in the closed dispatch table: its argument
// shape, its auth tier and its handler. Argument-count mismatches are
// rejected before any domain logic runs.
type command struct {
	argc     int  // fixed positional args after verb (and token)
	trailing bool // remaining tokens are re-joined into a message body
	authed   bool // first positional arg is a session token
	handler  func(ctx context.Context, st *connState, args []string) (string, error)
}

func (s *Server) commandTable() map[string]command {
	return map[string]command{
		"/register":  {argc: 2, handler: s.handleRegister},
		"/login":     {argc: 2, handler: s.handleLogin},
		"/users":     {argc: 0, handler: s.handleUsers},
		"/all_users": {argc: 0, handler: s.handleAllUsers},

		"/logout":                  {argc: 0, authed: true, handler: s.handleLogout},
		"/send":                    {argc: 1, trailing: true, authed: true, handler: s.handleSend},
		"/send_private":            {argc: 1, trailing: true, authed: true, handler: s.handleSendPrivate},
		"/get_group_messages":      {argc: 1, authed: true, handler: s.handleGroupMessages},
		"/get_private_messages":    {argc: 1, authed: true, handler: s.handlePrivateMessages},
		"/delete_group_messages":   {argc: 1, authed: true, handler: s.handleDeleteGroupMessages},
		"/delete_private_messages": {argc: 1, authed: true, handler: s.handleDeletePrivateMessages},

		"/create_group":   {argc: 1, authed: true, handler: s.handleCreateGroup},
		"/my_groups":      {argc: 0, authed: true, handler: s.handleMyGroups},
		"/invite":         {argc: 2, authed: true, handler: s.handleInvite},
		"/invites":        {argc: 0, authed: true, handler: s.handleInvites},
		"/respond_invite": {argc: 2, authed: true, handler: s.handleRespondInvite},

		"/add_friend":      {argc: 1, trailing: true, authed: true, handler: s.handleAddFriend},
		"/friend_requests": {argc: 0, authed: true, handler: s.handleFriendRequests},
		"/respond_friend":  {argc: 2, authed: true, handler: s.handleRespondFriend},
		"/friends":         {argc: 0, authed: true, handler: s.handleFriends},

		"/disconnect_all": {argc: 0, authed: true, handler: s.handleDisconnectAll},
	}
}

// dispatch parses one protocol line and runs its handler. Domain errors
// are always rendered as a single ERR line; the connection survives.
func (s *Server) dispatch(ctx context.Context, st *connState, line string) string {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return renderErr(errors.ErrMalformedCommand)
	}
	verb := fields[0]

	cmd, ok := s.table[verb]
	if !ok {
		return renderErr(errors.ErrUnknownVerb)
	}
	args := fields[1:]

	if cmd.authed {
		if len(args) < 1 {
			return renderErr(errors.ErrMalformedCommand)
		}
		userID, err := s.auth.Validate(args[0])
		if err != nil {
			return renderErr(err)
		}
		st.token = args[0]
		args = args[1:]

		// The connection registers with the presence registry once a
		// user id is known. If a later command carries a different
		// user's token, the presence entry moves with it.
		switch {
		case st.handle == nil:
			st.userID = userID
			st.handle = s.registry.Register(userID)
		case st.userID != userID:
			s.registry.Unregister(st.userID, st.handle)
			st.userID = userID
			st.handle = s.registry.Register(userID)
		}
	}

	if cmd.trailing {
		// The body is at least one token; everything past the fixed
		// args is re-joined with single spaces.
		if len(args) < cmd.argc+1 {
			return renderErr(errors.ErrMalformedCommand)
		}
		body := strings.Join(args[cmd.argc:], " ")
		args = append(args[:cmd.argc:cmd.argc], body)
	} else if len(args) != cmd.argc {
		return renderErr(errors.ErrMalformedCommand)
	}

	response, err := cmd.handler(ctx, st, args)
	if err != nil {
		return renderErr(err)
	}
	return response
}

func renderErr(err error) string {
	switch {
	case stderrors.Is(err, errors.ErrInvalidSession), stderrors.Is(err, errors.ErrSessionExpired):
		return "ERR: Invalid session"
	case stderrors.Is(err, errors.ErrNotGroupMember):
		return "ERR: Not a group member"
	case stderrors.Is(err, errors.ErrNotParticipant):
		return "ERR: Not a conversation participant"
	case stderrors.Is(err, errors.ErrUserNotFound):
		return "ERR: User not found"
	case stderrors.Is(err, errors.ErrDuplicateUsername):
		return "ERR: Username already taken"
	case stderrors.Is(err, errors.ErrInvalidCredentials):
		return "ERR: Invalid credentials"
	case stderrors.Is(err, errors.ErrMessageTooLong):
		return "ERR: Message too long"
	case stderrors.Is(err, errors.ErrMalformedCommand):
		return "ERR: Malformed command"
	case stderrors.Is(err, errors.ErrUnknownVerb):
		return "ERR: Unknown command"
	case stderrors.Is(err, errors.ErrNotFound):
		return "ERR: Not found"
	default:
		return "ERR: " + err.Error()
	}
}

// renderRows frames multi-row results. The reference client reads one
// line at a time, so the block ends with an END sentinel line.
func renderRows(header string, rows []string) string {
	var b strings.Builder
	b.WriteString("OK: ")
	b.WriteString(header)
	for _, row := range rows {
		b.WriteString("\n")
		b.WriteString(row)
	}
	b.WriteString("\nEND")
	return b.String()
}

func renderHistory(entries []services.HistoryEntry) string {
	rows := make([]string, 0, len(entries))
	for _, e := range entries {
		content := e.Content
		if e.Unreadable {
			content = "<unreadable>"
		}
		rows = append(rows, fmt.Sprintf("[%s] %s: %s",
			e.SentAt.Format("2006-01-02 15:04:05"), e.Sender, content))
	}
	return renderRows("Messages:", rows)
}

func (s *Server) handleRegister(_ context.Context, _ *connState, args []string) (string, error) {
	username, password := args[0], args[1]
	if _, err := s.auth.Register(username, password); err != nil {
		return "", err
	}
	return "OK: Registered as " + username, nil
}

func (s *Server) handleLogin(_ context.Context, st *connState, args []string) (string, error) {
	username, password := args[0], args[1]
	token, err := s.auth.Login(username, password)
	if err != nil {
		return "", err
	}

	userID, err := s.auth.Validate(token)
	if err != nil {
		return "", err
	}
	st.token = token
	if st.handle == nil {
		st.userID = userID
		st.handle = s.registry.Register(userID)
	}
	return "OK: Logged in as " + username + "\nSESSION: " + token, nil
}

func (s *Server) handleLogout(_ context.Context, st *connState, _ []string) (string, error) {
	if err := s.auth.Logout(st.token); err != nil {
		return "", err
	}
	if st.handle != nil {
		s.registry.Unregister(st.userID, st.handle)
		st.handle = nil
		st.userID = 0
	}
	st.token = ""
	return "OK: Logout successful", nil
}

func (s *Server) handleUsers(_ context.Context, _ *connState, _ []string) (string, error) {
	names, err := s.users.ListUsernames(true)
	if err != nil {
		return "", err
	}
	return "OK: Online users: " + strings.Join(names, ","), nil
}

func (s *Server) handleAllUsers(_ context.Context, _ *connState, _ []string) (string, error) {
	names, err := s.users.ListUsernames(false)
	if err != nil {
		return "", err
	}
	return "OK: All users: " + strings.Join(names, ","), nil
}

func (s *Server) handleSend(ctx context.Context, st *connState, args []string) (string, error) {
	group, body := args[0], args[1]
	if len(body) > s.cfg.MaxMessageLength {
		return "", errors.ErrMessageTooLong
	}
	event, err := s.chat.SendGroup(st.userID, group, body)
	if err != nil {
		return "", err
	}
	s.events.Publish(ctx, event)
	return "OK: Message sent", nil
}

func (s *Server) handleSendPrivate(ctx context.Context, st *connState, args []string) (string, error) {
	username, body := args[0], args[1]
	if len(body) > s.cfg.MaxMessageLength {
		return "", errors.ErrMessageTooLong
	}
	event, err := s.chat.SendPrivate(st.userID, username, body)
	if err != nil {
		return "", err
	}
	s.events.Publish(ctx, event)
	return "OK: Message sent", nil
}

func (s *Server) handleGroupMessages(_ context.Context, st *connState, args []string) (string, error) {
	entries, err := s.chat.GroupHistory(st.userID, args[0])
	if err != nil {
		return "", err
	}
	return renderHistory(entries), nil
}

func (s *Server) handlePrivateMessages(_ context.Context, st *connState, args []string) (string, error) {
	entries, err := s.chat.PrivateHistory(st.userID, args[0])
	if err != nil {
		return "", err
	}
	return renderHistory(entries), nil
}

func (s *Server) handleDeleteGroupMessages(_ context.Context, st *connState, args []string) (string, error) {
	if _, err := s.chat.DeleteGroupMessages(st.userID, args[0]); err != nil {
		return "", err
	}
	return "OK: Messages deleted", nil
}

func (s *Server) handleDeletePrivateMessages(_ context.Context, st *connState, args []string) (string, error) {
	if _, err := s.chat.DeletePrivateMessages(st.userID, args[0]); err != nil {
		return "", err
	}
	return "OK: Messages deleted", nil
}

func (s *Server) handleCreateGroup(_ context.Context, st *connState, args []string) (string, error) {
	if _, err := s.social.CreateGroup(st.userID, args[0]); err != nil {
		return "", err
	}
	return "OK: Group " + args[0] + " created", nil
}

func (s *Server) handleMyGroups(_ context.Context, st *connState, _ []string) (string, error) {
	names, err := s.social.MyGroups(st.userID)
	if err != nil {
		return "", err
	}
	return "OK: Groups: " + strings.Join(names, ","), nil
}

func (s *Server) handleInvite(_ context.Context, st *connState, args []string) (string, error) {
	if _, err := s.social.Invite(st.userID, args[0], args[1]); err != nil {
		return "", err
	}
	return "OK: Invite sent", nil
}

func (s *Server) handleInvites(_ context.Context, st *connState, _ []string) (string, error) {
	rows, err := s.social.PendingInvites(st.userID)
	if err != nil {
		return "", err
	}
	return renderRows("Invites:", rows), nil
}

func (s *Server) handleRespondInvite(_ context.Context, st *connState, args []string) (string, error) {
	id, accept, err := parseResponse(args[0], args[1])
	if err != nil {
		return "", err
	}
	if err = s.social.RespondInvite(st.userID, id, accept); err != nil {
		return "", err
	}
	if accept {
		return "OK: Invite accepted", nil
	}
	return "OK: Invite rejected", nil
}

func (s *Server) handleAddFriend(_ context.Context, st *connState, args []string) (string, error) {
	if _, err := s.social.AddFriend(st.userID, args[0], args[1]); err != nil {
		return "", err
	}
	return "OK: Friend request sent", nil
}

func (s *Server) handleFriendRequests(_ context.Context, st *connState, _ []string) (string, error) {
	rows, err := s.social.FriendRequests(st.userID)
	if err != nil {
		return "", err
	}
	return renderRows("Friend requests:", rows), nil
}

func (s *Server) handleRespondFriend(_ context.Context, st *connState, args []string) (string, error) {
	id, accept, err := parseResponse(args[0], args[1])
	if err != nil {
		return "", err
	}
	if err = s.social.RespondFriend(st.userID, id, accept); err != nil {
		return "", err
	}
	if accept {
		return "OK: Friend request accepted", nil
	}
	return "OK: Friend request rejected", nil
}

func (s *Server) handleFriends(_ context.Context, st *connState, _ []string) (string, error) {
	names, err := s.social.Friends(st.userID)
	if err != nil {
		return "", err
	}
	return "OK: Friends: " + strings.Join(names, ","), nil
}

// handleDisconnectAll evicts every live connection of the caller,
// including this one: the OK response is written first, then the fired
// handle wins the next select.
func (s *Server) handleDisconnectAll(_ context.Context, st *connState, _ []string) (string, error) {
	count := s.registry.KickAll(st.userID)
	return fmt.Sprintf("OK: Disconnected %d connection(s)", count), nil
}

func parseResponse(idArg, verdict string) (int64, bool, error) {
	id, err := strconv.ParseInt(idArg, 10, 64)
	if err != nil {
		return 0, false, errors.ErrMalformedCommand
	}
	switch verdict {
	case "accept":
		return id, true, nil
	case "reject":
		return id, false, nil
	default:
		return 0, false, errors.ErrMalformedCommand
	}
}
