package errors

import "fmt"

// Auth
var (
	ErrInvalidCredentials = fmt.Errorf("invalid credentials")
	ErrUserNotFound       = fmt.Errorf("user not found")
	ErrDuplicateUsername  = fmt.Errorf("username already taken")
)

// Sessions
var (
	ErrInvalidSession = fmt.Errorf("invalid session")
	ErrSessionExpired = fmt.Errorf("session expired")
)

// Authorization
var (
	ErrNotGroupMember = fmt.Errorf("not a group member")
	ErrNotParticipant = fmt.Errorf("not a conversation participant")
)

// Protocol
var (
	ErrMalformedCommand = fmt.Errorf("malformed command")
	ErrUnknownVerb      = fmt.Errorf("unknown command")
	ErrMessageTooLong   = fmt.Errorf("message too long")
)

// Storage
var (
	ErrStorageUnavailable  = fmt.Errorf("storage unavailable")
	ErrConstraintViolation = fmt.Errorf("constraint violation")
	ErrNotFound            = fmt.Errorf("not found")
)

// Crypto
var (
	ErrSealFailed       = fmt.Errorf("encryption failed")
	ErrOpenFailed       = fmt.Errorf("decryption failed")
	ErrInvalidMasterKey = fmt.Errorf("invalid master key")
)
