package presence

import (
	"sync"

	"go.uber.org/zap"

	"github.com/pongarena/realtime/pkg/types"
)

// Entry is the last known presence of one user. No history is kept.
type Entry struct {
	UserID   int64
	Username string
	Online   bool
	LastSeen string
}

func fromDelta(d types.PresenceDelta) Entry {
	return Entry{
		UserID:   d.UserID,
		Username: d.Username,
		Online:   d.IsOnline,
		LastSeen: d.LastSeen,
	}
}

// Registry maps user id to presence. Reads are concurrent; mutation goes
// through Bootstrap and ApplyDelta only, called from the presence channel
// handler (a single writer). Deltas carry no ordering field, so application
// is strictly last-write-wins.
type Registry struct {
	mu      sync.RWMutex
	entries map[int64]Entry
	subs    map[int]func(userID int64)
	nextSub int
	log     *zap.Logger
}

func NewRegistry(log *zap.Logger) *Registry {
	if log == nil {
		log = zap.NewNop()
	}
	return &Registry{
		entries: make(map[int64]Entry),
		subs:    make(map[int]func(userID int64)),
		log:     log,
	}
}

// Bootstrap replaces the whole mapping with an authoritative full fetch.
// Every user in the new mapping is reported as changed.
func (r *Registry) Bootstrap(deltas []types.PresenceDelta) {
	r.mu.Lock()
	r.entries = make(map[int64]Entry, len(deltas))
	for _, d := range deltas {
		r.entries[d.UserID] = fromDelta(d)
	}
	r.mu.Unlock()

	r.log.Debug("presence bootstrapped", zap.Int("users", len(deltas)))
	for _, d := range deltas {
		r.notify(d.UserID)
	}
}

// ApplyDelta upserts one entry and tells subscribers which user changed.
// Subscribers re-query Get for the value. Applying the same delta twice
// leaves identical state.
func (r *Registry) ApplyDelta(d types.PresenceDelta) {
	r.mu.Lock()
	r.entries[d.UserID] = fromDelta(d)
	r.mu.Unlock()

	r.log.Debug("presence delta",
		zap.Int64("user_id", d.UserID),
		zap.Bool("online", d.IsOnline))
	r.notify(d.UserID)
}

func (r *Registry) Get(userID int64) (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[userID]
	return e, ok
}

// All returns a snapshot copy, for list views.
func (r *Registry) All() []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Entry, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e)
	}
	return out
}

// Subscribe registers a change callback and returns its unsubscribe func.
// Callbacks receive only the changed user id, letting consumers batch or
// skip re-renders.
func (r *Registry) Subscribe(fn func(userID int64)) (unsubscribe func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := r.nextSub
	r.nextSub++
	r.subs[id] = fn
	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		delete(r.subs, id)
	}
}

func (r *Registry) notify(userID int64) {
	r.mu.RLock()
	fns := make([]func(int64), 0, len(r.subs))
	for _, fn := range r.subs {
		fns = append(fns, fn)
	}
	r.mu.RUnlock()

	for _, fn := range fns {
		fn(userID)
	}
}
