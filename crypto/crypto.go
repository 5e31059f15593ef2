package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"sort"

	"chatwire/errors"
)

const (
	// KeyLength is the size of derived conversation keys (AES-256).
	KeyLength = 32
	// NonceLength is the GCM nonce size.
	NonceLength = 12
)

// Engine derives per-conversation keys from a process-wide master key and
// performs authenticated encryption of message bodies. The master key is
// fixed for the engine's lifetime; rotation is not supported.
type Engine struct {
	masterKey []byte
}

// NewEngine builds an engine from a hex-encoded 256-bit master key.
func NewEngine(masterKeyHex string) (*Engine, error) {
	key, err := hex.DecodeString(masterKeyHex)
	if err != nil {
		return nil, fmt.Errorf("%w: not valid hex", errors.ErrInvalidMasterKey)
	}
	if len(key) != KeyLength {
		return nil, fmt.Errorf("%w: need %d bytes, got %d", errors.ErrInvalidMasterKey, KeyLength, len(key))
	}
	return &Engine{masterKey: key}, nil
}

// NewEphemeralEngine generates a random master key valid for this process
// only. Anything encrypted under it is unreadable after a restart.
func NewEphemeralEngine() (*Engine, error) {
	key := make([]byte, KeyLength)
	if _, err := rand.Read(key); err != nil {
		return nil, err
	}
	return &Engine{masterKey: key}, nil
}

// DeriveConversationKey returns the 256-bit encryption key for the
// conversation identified by the given participant ids. Ids are sorted
// lexicographically before hashing so the result does not depend on call
// order.
func (e *Engine) DeriveConversationKey(participantIDs []string) []byte {
	sorted := make([]string, len(participantIDs))
	copy(sorted, participantIDs)
	sort.Strings(sorted)

	h := sha256.New()
	h.Write(e.masterKey)
	for _, id := range sorted {
		h.Write([]byte(id))
	}
	return h.Sum(nil)
}

// Seal encrypts plaintext under key with AES-256-GCM and a fresh random
// nonce per call.
func (e *Engine) Seal(plaintext, key []byte) (ciphertext, nonce []byte, err error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", errors.ErrSealFailed, err)
	}
	aesGCM, err := cipher.NewGCM(block)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", errors.ErrSealFailed, err)
	}

	nonce = make([]byte, aesGCM.NonceSize())
	if _, err = io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", errors.ErrSealFailed, err)
	}

	return aesGCM.Seal(nil, nonce, plaintext, nil), nonce, nil
}

// Open decrypts and authenticates a sealed message body. Tag mismatch or
// malformed input yields ErrOpenFailed, never a panic.
func (e *Engine) Open(ciphertext, nonce, key []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrOpenFailed, err)
	}
	aesGCM, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrOpenFailed, err)
	}
	if len(nonce) != aesGCM.NonceSize() {
		return nil, fmt.Errorf("%w: bad nonce length %d", errors.ErrOpenFailed, len(nonce))
	}

	plaintext, err := aesGCM.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, errors.ErrOpenFailed
	}
	return plaintext, nil
}
