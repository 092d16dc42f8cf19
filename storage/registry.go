package storage

import (
	"sort"
	"sync"
)

type Set map[uint64]struct{}

// Registry indexes live subscriptions by the path they observe.
type Registry struct {
	mu            sync.RWMutex
	Subscriptions map[uint64]*subscription // map subscription id -> subscription
	PathMembers   map[string]Set           // map path to subscription ids
}

func NewRegistry() *Registry {
	return &Registry{
		Subscriptions: make(map[uint64]*subscription),
		PathMembers:   make(map[string]Set),
	}
}

// GetSubscriptionsForPath resolves the subscription ids registered on a path
// into subscriptions, oldest first so delivery order is deterministic.
// Returns nil if nothing observes the path.
func (r *Registry) GetSubscriptionsForPath(path string) []*subscription {
	r.mu.RLock()
	defer r.mu.RUnlock()

	members, ok := r.PathMembers[path]
	if !ok {
		return nil
	}
	ids := make([]uint64, 0, len(members))
	for id := range members {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	var active []*subscription
	for _, id := range ids {
		if sub, exists := r.Subscriptions[id]; exists {
			active = append(active, sub)
		}
	}
	return active
}

// Subscribe registers a subscription on its path.
// If the path is not observed yet, its member set is initialized on the fly.
func (r *Registry) Subscribe(sub *subscription) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.Subscriptions[sub.id] = sub

	if _, ok := r.PathMembers[sub.path]; !ok {
		r.PathMembers[sub.path] = make(Set)
	}
	r.PathMembers[sub.path][sub.id] = struct{}{}
}

// Unsubscribe removes a subscription and drops empty path sets
// so the map does not grow with every path ever observed.
func (r *Registry) Unsubscribe(id uint64, path string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.Subscriptions, id)

	if members, ok := r.PathMembers[path]; ok {
		delete(members, id)
		if len(members) == 0 {
			delete(r.PathMembers, path)
		}
	}
}
