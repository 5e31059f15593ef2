package services

import (
	stderrors "errors"
	"fmt"
	"log/slog"
	"time"

	"chatwire/auth"
	"chatwire/domain"
	"chatwire/errors"
	"chatwire/store"
)

type IAuthService interface {
	Register(username, password string) (int64, error)
	Login(username, password string) (string, error)
	Validate(token string) (int64, error)
	Logout(token string) error
}

// AuthService owns the credential and session lifecycle: registration,
// login, per-command token validation and logout bookkeeping.
type AuthService struct {
	users    store.IUserRepository
	sessions store.ISessionRepository
	hasher   auth.PasswordHasher
	expiry   time.Duration
	log      *slog.Logger
}

func NewAuthService(
	users store.IUserRepository,
	sessions store.ISessionRepository,
	hasher auth.PasswordHasher,
	sessionExpiry time.Duration,
	log *slog.Logger,
) IAuthService {
	return &AuthService{
		users:    users,
		sessions: sessions,
		hasher:   hasher,
		expiry:   sessionExpiry,
		log:      log,
	}
}

func (s *AuthService) Register(username, password string) (int64, error) {
	// Hash before touching storage so the repository never sees the
	// plain password.
	hashed, err := s.hasher.Hash(password)
	if err != nil {
		return 0, fmt.Errorf("hashing failed: %w", err)
	}

	userID, err := s.users.CreateWithCredential(username, hashed)
	if err != nil {
		return 0, err // propagates ErrDuplicateUsername
	}

	s.log.Info("User registered", "username", username, "user_id", userID)
	return userID, nil
}

func (s *AuthService) Login(username, password string) (string, error) {
	user, err := s.users.GetByUsername(username)
	if err != nil {
		return "", err // ErrUserNotFound
	}

	hash, err := s.users.PasswordHash(user.ID)
	if err != nil {
		return "", err
	}
	match, err := s.hasher.Compare(password, hash)
	if err != nil || !match {
		return "", errors.ErrInvalidCredentials
	}

	token, err := auth.NewSessionToken()
	if err != nil {
		return "", err
	}
	now := time.Now().UTC()
	if err = s.sessions.Create(domain.Session{
		Token:     token,
		UserID:    user.ID,
		CreatedAt: now,
		ExpiresAt: now.Add(s.expiry),
	}); err != nil {
		return "", err
	}

	if err = s.users.SetOnline(user.ID, true); err != nil {
		return "", err
	}
	if err = s.sessions.RecordEvent(user.ID, "login"); err != nil {
		s.log.Warn("Failed to record session event", "error", err)
	}

	s.log.Info("User logged in", "username", username)
	return token, nil
}

// Validate re-checks the token on every authenticated command. Expired
// rows are deleted lazily here; there is no background sweep.
func (s *AuthService) Validate(token string) (int64, error) {
	session, err := s.sessions.Get(token)
	if err != nil {
		return 0, err // ErrInvalidSession
	}

	if time.Now().UTC().After(session.ExpiresAt) {
		if err = s.sessions.Delete(token); err != nil {
			s.log.Warn("Failed to delete expired session", "error", err)
		}
		s.clearOnlineIfLastSession(session.UserID)
		return 0, errors.ErrSessionExpired
	}
	return session.UserID, nil
}

func (s *AuthService) Logout(token string) error {
	session, err := s.sessions.Get(token)
	if err != nil {
		if stderrors.Is(err, errors.ErrInvalidSession) {
			return errors.ErrInvalidSession
		}
		return err
	}

	if err = s.sessions.Delete(token); err != nil {
		return err
	}
	s.clearOnlineIfLastSession(session.UserID)

	if err = s.sessions.RecordEvent(session.UserID, "logout"); err != nil {
		s.log.Warn("Failed to record session event", "error", err)
	}
	return nil
}

func (s *AuthService) clearOnlineIfLastSession(userID int64) {
	count, err := s.sessions.CountForUser(userID)
	if err != nil {
		s.log.Warn("Failed to count sessions", "user_id", userID, "error", err)
		return
	}
	if count == 0 {
		if err = s.users.SetOnline(userID, false); err != nil {
			s.log.Warn("Failed to clear online flag", "user_id", userID, "error", err)
		}
	}
}
