package presence

import (
	"log/slog"
	"sync"
)

// Handle is the cancellation signal attached to one live connection.
// Firing is idempotent and fire-and-forget: nobody waits for an ack.
type Handle struct {
	once sync.Once
	ch   chan struct{}
}

func newHandle() *Handle {
	return &Handle{ch: make(chan struct{})}
}

// Fire signals the owning connection to terminate.
func (h *Handle) Fire() {
	h.once.Do(func() { close(h.ch) })
}

// Done is closed once the handle has fired. Connection loops select over
// this together with their next protocol line.
func (h *Handle) Done() <-chan struct{} {
	return h.ch
}

// Registry tracks live connections per user, process-local only. One
// long-lived instance is injected into every connection task. The lock
// guards list mutation only and is never held across I/O.
type Registry struct {
	mu      sync.Mutex
	entries map[int64][]*Handle
	log     *slog.Logger
}

func NewRegistry(log *slog.Logger) *Registry {
	return &Registry{
		entries: make(map[int64][]*Handle),
		log:     log,
	}
}

// Register appends a new handle to the user's entry and returns it.
func (r *Registry) Register(userID int64) *Handle {
	h := newHandle()
	r.mu.Lock()
	r.entries[userID] = append(r.entries[userID], h)
	r.mu.Unlock()
	return h
}

// Unregister removes one specific handle, for connections that end
// without being kicked.
func (r *Registry) Unregister(userID int64, h *Handle) {
	r.mu.Lock()
	defer r.mu.Unlock()

	handles := r.entries[userID]
	for i, existing := range handles {
		if existing == h {
			r.entries[userID] = append(handles[:i], handles[i+1:]...)
			break
		}
	}
	if len(r.entries[userID]) == 0 {
		delete(r.entries, userID)
	}
}

// KickAll atomically removes and fires every handle for a user,
// returning how many connections were evicted.
func (r *Registry) KickAll(userID int64) int {
	r.mu.Lock()
	handles := r.entries[userID]
	delete(r.entries, userID)
	r.mu.Unlock()

	for _, h := range handles {
		h.Fire()
	}
	if len(handles) > 0 {
		r.log.Info("Evicted connections", "user_id", userID, "count", len(handles))
	}
	return len(handles)
}

// Count reports the number of live connections for a user.
func (r *Registry) Count(userID int64) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries[userID])
}
