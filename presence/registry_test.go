package presence

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func fired(h *Handle) bool {
	select {
	case <-h.Done():
		return true
	case <-time.After(100 * time.Millisecond):
		return false
	}
}

func TestRegistry_KickAll(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry(slog.Default())
	const carol = int64(3)

	first := registry.Register(carol)
	second := registry.Register(carol)
	req.Equal(2, registry.Count(carol))

	evicted := registry.KickAll(carol)
	req.Equal(2, evicted)
	req.True(fired(first))
	req.True(fired(second))
	req.Equal(0, registry.Count(carol))

	// A second kick has nothing left to evict.
	req.Equal(0, registry.KickAll(carol))
}

func TestRegistry_Unregister(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry(slog.Default())
	const bob = int64(2)

	first := registry.Register(bob)
	second := registry.Register(bob)

	registry.Unregister(bob, first)
	req.Equal(1, registry.Count(bob))
	req.False(fired(second))

	// Unregistering an already-removed handle is a no-op.
	registry.Unregister(bob, first)
	req.Equal(1, registry.Count(bob))

	registry.Unregister(bob, second)
	req.Equal(0, registry.Count(bob))
}

func TestRegistry_IsolatesUsers(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry(slog.Default())

	alice := registry.Register(1)
	registry.Register(2)

	req.Equal(1, registry.KickAll(2))
	req.False(fired(alice))
	req.Equal(1, registry.Count(1))
}

func TestHandle_FireIsIdempotent(t *testing.T) {
	registry := NewRegistry(slog.Default())
	h := registry.Register(7)
	h.Fire()
	h.Fire() // must not panic on double close
	require.True(t, fired(h))
}
