package services

import (
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"chatwire/auth"
	"chatwire/errors"
	"chatwire/store"

	"github.com/stretchr/testify/require"
)

func newAuthService(t *testing.T, expiry time.Duration) (IAuthService, *store.Store) {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	svc := NewAuthService(
		store.NewUserRepository(s),
		store.NewSessionRepository(s),
		auth.NewPasswordHasher(16),
		expiry,
		slog.Default(),
	)
	return svc, s
}

func TestAuthService_Register(t *testing.T) {
	svc, _ := newAuthService(t, time.Hour)

	t.Run("should register a fresh username", func(t *testing.T) {
		req := require.New(t)
		id, err := svc.Register("alice", "pw1")
		req.NoError(err)
		req.Positive(id)
	})

	t.Run("should reject a duplicate username", func(t *testing.T) {
		_, err := svc.Register("alice", "pw2")
		require.ErrorIs(t, err, errors.ErrDuplicateUsername)
	})
}

func TestAuthService_LoginValidateLogout(t *testing.T) {
	req := require.New(t)
	svc, s := newAuthService(t, time.Hour)

	aliceID, err := svc.Register("alice", "pw1")
	req.NoError(err)

	t.Run("unknown user", func(t *testing.T) {
		_, err := svc.Login("nobody", "pw1")
		require.ErrorIs(t, err, errors.ErrUserNotFound)
	})

	t.Run("wrong password", func(t *testing.T) {
		_, err := svc.Login("alice", "wrong")
		require.ErrorIs(t, err, errors.ErrInvalidCredentials)
	})

	token, err := svc.Login("alice", "pw1")
	req.NoError(err)
	req.NotEmpty(token)

	t.Run("valid token resolves to the user", func(t *testing.T) {
		req := require.New(t)
		userID, err := svc.Validate(token)
		req.NoError(err)
		req.Equal(aliceID, userID)
	})

	t.Run("login marks the user online", func(t *testing.T) {
		user, err := store.NewUserRepository(s).GetByID(aliceID)
		require.NoError(t, err)
		require.True(t, user.Online)
	})

	t.Run("logout revokes the token and clears online", func(t *testing.T) {
		req := require.New(t)
		req.NoError(svc.Logout(token))

		_, err := svc.Validate(token)
		req.ErrorIs(err, errors.ErrInvalidSession)

		user, err := store.NewUserRepository(s).GetByID(aliceID)
		req.NoError(err)
		req.False(user.Online)
	})

	t.Run("logout with an unknown token fails", func(t *testing.T) {
		require.ErrorIs(t, svc.Logout("bogus"), errors.ErrInvalidSession)
	})
}

func TestAuthService_ConcurrentSessions(t *testing.T) {
	req := require.New(t)
	svc, s := newAuthService(t, time.Hour)

	aliceID, err := svc.Register("alice", "pw1")
	req.NoError(err)

	// Two logins coexist; logging one out keeps the user online.
	first, err := svc.Login("alice", "pw1")
	req.NoError(err)
	second, err := svc.Login("alice", "pw1")
	req.NoError(err)
	req.NotEqual(first, second)

	req.NoError(svc.Logout(first))
	user, err := store.NewUserRepository(s).GetByID(aliceID)
	req.NoError(err)
	req.True(user.Online)

	req.NoError(svc.Logout(second))
	user, err = store.NewUserRepository(s).GetByID(aliceID)
	req.NoError(err)
	req.False(user.Online)
}

func TestAuthService_Expiry(t *testing.T) {
	req := require.New(t)
	svc, _ := newAuthService(t, 50*time.Millisecond)

	_, err := svc.Register("alice", "pw1")
	req.NoError(err)
	token, err := svc.Login("alice", "pw1")
	req.NoError(err)

	_, err = svc.Validate(token)
	req.NoError(err)

	time.Sleep(80 * time.Millisecond)

	_, err = svc.Validate(token)
	req.ErrorIs(err, errors.ErrSessionExpired)

	// The expired row was deleted lazily: the token is now unknown.
	_, err = svc.Validate(token)
	req.ErrorIs(err, errors.ErrInvalidSession)
}
