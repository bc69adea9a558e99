// Package runtime handles subscriber registration and message fan-out.
// It orchestrates delivery without containing domain rules.
package runtime

import (
	"chat-relay/contract"
	"sync"
	"time"
)

type subscription struct {
	sink     contract.EventSink
	cursor   uint64 // last message id replayed at join time
	joinedAt time.Time
}

// Registry tracks the live connections of this process.
// It holds no persistence: a restart rebuilds it empty.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]subscription
}

func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]subscription)}
}

// Register attaches a connection with the delivery cursor observed at
// join time. Registering an id twice replaces the previous sink.
func (r *Registry) Register(connectionID string, cursor uint64, sink contract.EventSink) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[connectionID] = subscription{
		sink:     sink,
		cursor:   cursor,
		joinedAt: time.Now().UTC(),
	}
}

// Unregister removes a connection. Removing an unknown id is a no-op,
// which makes disconnect paths idempotent and leak-free.
func (r *Registry) Unregister(connectionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, connectionID)
}

// Snapshot returns a copy of the live sinks so that broadcast iteration
// never races with attach or detach. A subscriber removed mid-broadcast
// may still receive the in-flight event, never two.
func (r *Registry) Snapshot() map[string]contract.EventSink {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sinks := make(map[string]contract.EventSink, len(r.entries))
	for id, entry := range r.entries {
		sinks[id] = entry.sink
	}
	return sinks
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Cursor reports the delivery cursor recorded at join time.
func (r *Registry) Cursor(connectionID string) (uint64, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.entries[connectionID]
	return entry.cursor, ok
}
