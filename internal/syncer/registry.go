package syncer

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/stayloop/availsync/internal/availsync"
)

// ActiveSync is the externally visible view of one in-flight sync.
type ActiveSync struct {
	PropertyID string             `json:"property_id"`
	Sources    []availsync.Source `json:"sources"`
	StartedAt  time.Time          `json:"started_at"`
}

type handle struct {
	token  uint64
	view   ActiveSync
	cancel context.CancelFunc
}

// Registry tracks in-flight syncs so they can be listed and cancelled. It is
// safe for concurrent use and holds no persistent state: a process restart
// empties it.
type Registry struct {
	mu     sync.Mutex
	seq    uint64
	active map[string]handle
}

func NewRegistry() *Registry {
	return &Registry{active: map[string]handle{}}
}

// Add registers a sync and returns a token identifying this registration.
// It returns false without registering when the property already has an
// in-flight sync.
func (r *Registry) Add(propertyID string, sources []availsync.Source, cancel context.CancelFunc) (uint64, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.active[propertyID]; ok {
		return 0, false
	}
	r.seq++
	r.active[propertyID] = handle{
		token: r.seq,
		view: ActiveSync{
			PropertyID: propertyID,
			Sources:    sources,
			StartedAt:  time.Now().UTC(),
		},
		cancel: cancel,
	}
	return r.seq, true
}

// Remove drops the handle without cancelling. Called by the worker itself
// when its sync reaches a terminal state. The token must match the one Add
// returned: a worker whose handle was already cancelled and replaced by a
// newer sync must not drop the newer registration.
func (r *Registry) Remove(propertyID string, token uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if h, ok := r.active[propertyID]; ok && h.token == token {
		delete(r.active, propertyID)
	}
}

// Cancel fires the handle's cancel func and removes it. Returns false when
// no sync is in flight for the property.
func (r *Registry) Cancel(propertyID string) bool {
	r.mu.Lock()
	h, ok := r.active[propertyID]
	if ok {
		delete(r.active, propertyID)
	}
	r.mu.Unlock()

	if !ok {
		return false
	}
	h.cancel()
	return true
}

// List snapshots the in-flight syncs, ordered by start time.
func (r *Registry) List() []ActiveSync {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]ActiveSync, 0, len(r.active))
	for _, h := range r.active {
		out = append(out, h.view)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out
}
