package crypto

import (
	"encoding/hex"
	"testing"

	"chatwire/errors"

	"github.com/stretchr/testify/require"
)

const testMasterKey = "5f4dcc3b5aa765d61d8327deb882cf995f4dcc3b5aa765d61d8327deb882cf99"

func TestEngine_SealOpen_RoundTrip(t *testing.T) {
	req := require.New(t)
	engine, err := NewEngine(testMasterKey)
	req.NoError(err)

	key := engine.DeriveConversationKey([]string{"1", "2"})
	req.Len(key, KeyLength)

	plaintexts := []string{
		"",
		"hello",
		"a longer message with spaces and unicode: héllo wörld ✓",
	}
	for _, plaintext := range plaintexts {
		ciphertext, nonce, err := engine.Seal([]byte(plaintext), key)
		req.NoError(err)
		req.Len(nonce, NonceLength)

		opened, err := engine.Open(ciphertext, nonce, key)
		req.NoError(err)
		req.Equal(plaintext, string(opened))
	}
}

func TestEngine_DeriveConversationKey_Symmetric(t *testing.T) {
	req := require.New(t)
	engine, err := NewEngine(testMasterKey)
	req.NoError(err)

	req.Equal(
		engine.DeriveConversationKey([]string{"42", "7"}),
		engine.DeriveConversationKey([]string{"7", "42"}),
	)
	req.NotEqual(
		engine.DeriveConversationKey([]string{"1", "2"}),
		engine.DeriveConversationKey([]string{"1", "3"}),
	)
}

func TestEngine_Open_Failures(t *testing.T) {
	req := require.New(t)
	engine, err := NewEngine(testMasterKey)
	req.NoError(err)
	key := engine.DeriveConversationKey([]string{"1", "2"})

	ciphertext, nonce, err := engine.Seal([]byte("secret"), key)
	req.NoError(err)

	t.Run("tampered ciphertext", func(t *testing.T) {
		tampered := append([]byte(nil), ciphertext...)
		tampered[0] ^= 0xff
		_, err := engine.Open(tampered, nonce, key)
		require.ErrorIs(t, err, errors.ErrOpenFailed)
	})

	t.Run("wrong key", func(t *testing.T) {
		other := engine.DeriveConversationKey([]string{"3", "4"})
		_, err := engine.Open(ciphertext, nonce, other)
		require.ErrorIs(t, err, errors.ErrOpenFailed)
	})

	t.Run("bad nonce length", func(t *testing.T) {
		_, err := engine.Open(ciphertext, nonce[:4], key)
		require.ErrorIs(t, err, errors.ErrOpenFailed)
	})
}

func TestNewEngine_MasterKeyValidation(t *testing.T) {
	t.Run("rejects non-hex input", func(t *testing.T) {
		_, err := NewEngine("not-hex-at-all")
		require.ErrorIs(t, err, errors.ErrInvalidMasterKey)
	})

	t.Run("rejects short keys", func(t *testing.T) {
		_, err := NewEngine(hex.EncodeToString([]byte("short")))
		require.ErrorIs(t, err, errors.ErrInvalidMasterKey)
	})

	t.Run("ephemeral engine round trips", func(t *testing.T) {
		req := require.New(t)
		engine, err := NewEphemeralEngine()
		req.NoError(err)
		key := engine.DeriveConversationKey([]string{"a"})
		ciphertext, nonce, err := engine.Seal([]byte("x"), key)
		req.NoError(err)
		opened, err := engine.Open(ciphertext, nonce, key)
		req.NoError(err)
		req.Equal("x", string(opened))
	})
}
