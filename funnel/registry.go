package funnel

import (
	"sync"
	"time"
)

// Registry tracks live engines by conversation id. One engine owns one
// conversation: a second run against the same id is prevented here, not by
// database locks.
type Registry struct {
	mu      sync.Mutex
	engines map[string]*Engine
}

func NewRegistry() *Registry {
	return &Registry{engines: map[string]*Engine{}}
}

func (r *Registry) Put(e *Engine) {
	r.mu.Lock()
	r.engines[e.ConversationID()] = e
	r.mu.Unlock()
}

func (r *Registry) Get(conversationID string) (*Engine, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.engines[conversationID]
	return e, ok
}

// Evict drops engines with no activity since the cutoff and returns how
// many were removed. The persisted conversation rows are untouched.
func (r *Registry) Evict(cutoff time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for id, e := range r.engines {
		if e.lastActivity().Before(cutoff) {
			delete(r.engines, id)
			n++
		}
	}
	return n
}
