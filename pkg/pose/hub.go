// ABOUTME: Single-observer fan-in for pose updates
// ABOUTME: The observer is swapped through an atomic pointer so Publish never blocks
package pose

import (
	"sync/atomic"

	"github.com/Resonate-Protocol/resonate-binaural/pkg/spatial"
)

// Observer receives accepted pose pairs. It runs on the publishing
// goroutine and must not block.
type Observer func(listener, source spatial.Pose)

// Hub hands pose updates to the current observer.
type Hub struct {
	observer  atomic.Pointer[Observer]
	last      atomic.Pointer[Update]
	published atomic.Uint64
	dropped   atomic.Uint64
}

// NewHub returns a hub with no observer.
func NewHub() *Hub {
	return &Hub{}
}

// SetObserver installs fn as the observer, replacing any previous one. A
// nil fn detaches.
func (h *Hub) SetObserver(fn Observer) {
	if fn == nil {
		h.observer.Store(nil)
		return
	}
	h.observer.Store(&fn)
}

// Publish delivers u to the observer and remembers it as the latest update.
// It reports whether an observer was attached.
func (h *Hub) Publish(u Update) bool {
	h.last.Store(&u)
	fn := h.observer.Load()
	if fn == nil {
		h.dropped.Add(1)
		return false
	}
	(*fn)(u.Listener, u.Source)
	h.published.Add(1)
	return true
}

// Last returns the most recent update.
func (h *Hub) Last() (Update, bool) {
	u := h.last.Load()
	if u == nil {
		return Update{}, false
	}
	return *u, true
}

// Counts returns how many updates reached an observer and how many were
// published with none attached.
func (h *Hub) Counts() (published, dropped uint64) {
	return h.published.Load(), h.dropped.Load()
}
