package runtime

import (
	"crm-chat/contract"
	"crm-chat/domain/event"
	"sync"
)

// Registry remembers every handler a session registered on the transport,
// so that sign-out can remove exactly those and nothing else.
type Registry struct {
	mu            sync.RWMutex
	subscriptions map[event.Name][]contract.SubscriptionID
}

func NewRegistry() *Registry {
	return &Registry{
		subscriptions: make(map[event.Name][]contract.SubscriptionID),
	}
}

func (r *Registry) Track(name event.Name, id contract.SubscriptionID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subscriptions[name] = append(r.subscriptions[name], id)
}

// Subscriptions returns the ids registered for an event name.
func (r *Registry) Subscriptions(name event.Name) []contract.SubscriptionID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]contract.SubscriptionID(nil), r.subscriptions[name]...)
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, ids := range r.subscriptions {
		n += len(ids)
	}
	return n
}

// Drain returns every tracked subscription and forgets them.
func (r *Registry) Drain() map[event.Name][]contract.SubscriptionID {
	r.mu.Lock()
	defer r.mu.Unlock()
	drained := r.subscriptions
	r.subscriptions = make(map[event.Name][]contract.SubscriptionID)
	return drained
}
