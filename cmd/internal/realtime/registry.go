package realtime

import (
	"encoding/json"
	"sync"
	"time"

	"affittochiaro/cmd/identity/ids"
)

// Handler receives the payload of a message of its subscribed type.
type Handler func(payload json.RawMessage)

// Registry maps message types to ordered handler lists. Entries are removed
// by subscription, so the same function may be subscribed several times.
type Registry struct {
	mu     sync.RWMutex
	byType map[string][]subscription
}

type subscription struct {
	id string
	h  Handler
}

func NewRegistry() *Registry {
	return &Registry{byType: map[string][]subscription{}}
}

// Add appends h under typ. The returned func removes exactly this
// subscription and is safe to call more than once.
func (r *Registry) Add(typ string, h Handler) (remove func()) {
	id := ids.New(time.Now())

	r.mu.Lock()
	r.byType[typ] = append(r.byType[typ], subscription{id: id, h: h})
	r.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { r.remove(typ, id) })
	}
}

func (r *Registry) remove(typ, id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	subs := r.byType[typ]
	for i, s := range subs {
		if s.id == id {
			// Copy so snapshots held by a running dispatch stay intact.
			next := make([]subscription, 0, len(subs)-1)
			next = append(next, subs[:i]...)
			next = append(next, subs[i+1:]...)
			if len(next) == 0 {
				delete(r.byType, typ)
			} else {
				r.byType[typ] = next
			}
			return
		}
	}
}

// Handlers returns the handlers for typ in registration order.
func (r *Registry) Handlers(typ string) []Handler {
	r.mu.RLock()
	defer r.mu.RUnlock()

	subs := r.byType[typ]
	out := make([]Handler, len(subs))
	for i, s := range subs {
		out[i] = s.h
	}
	return out
}

// Len returns the number of subscriptions for typ.
func (r *Registry) Len(typ string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byType[typ])
}
