// Package store holds the authoritative in-memory state of every download
// session. Entries live until explicit removal; there is no expiry and no
// on-disk persistence.
package store

import (
	"sort"
	"sync"

	"github.com/google/uuid"

	"magnetstream/internal/domain"
)

type entry struct {
	mu      sync.Mutex
	session *domain.Session
}

// Store is a concurrency-safe id → session map. Mutations to different ids
// proceed in parallel; mutations to the same id are serialized on the entry's
// own lock. All reads return snapshot copies.
type Store struct {
	mu      sync.RWMutex
	entries map[string]*entry
}

func New() *Store {
	return &Store{entries: make(map[string]*entry)}
}

// Create inserts a fresh downloading session and returns its snapshot.
// The snapshot is taken before the entry becomes visible to other
// goroutines, so it never reflects a concurrent mutation.
func (st *Store) Create() domain.Snapshot {
	id := uuid.NewString()
	e := &entry{session: domain.NewSession(id)}
	snap := e.session.Snapshot()

	st.mu.Lock()
	st.entries[id] = e
	st.mu.Unlock()

	return snap
}

func (st *Store) Get(id string) (domain.Snapshot, bool) {
	st.mu.RLock()
	e, ok := st.entries[id]
	st.mu.RUnlock()
	if !ok {
		return domain.Snapshot{}, false
	}

	e.mu.Lock()
	snap := e.session.Snapshot()
	e.mu.Unlock()
	return snap, true
}

// Mutate runs fn under the entry's lock. Missing ids are a no-op: the session
// may have been removed while an engine event was in flight.
func (st *Store) Mutate(id string, fn func(*domain.Session)) bool {
	st.mu.RLock()
	e, ok := st.entries[id]
	st.mu.RUnlock()
	if !ok {
		return false
	}

	e.mu.Lock()
	fn(e.session)
	e.mu.Unlock()
	return true
}

// List returns snapshots of every session, ordered by id for a stable wire
// shape.
func (st *Store) List() []domain.Snapshot {
	st.mu.RLock()
	entries := make([]*entry, 0, len(st.entries))
	for _, e := range st.entries {
		entries = append(entries, e)
	}
	st.mu.RUnlock()

	snaps := make([]domain.Snapshot, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		snaps = append(snaps, e.session.Snapshot())
		e.mu.Unlock()
	}
	sort.Slice(snaps, func(i, j int) bool { return snaps[i].ID < snaps[j].ID })
	return snaps
}

func (st *Store) Remove(id string) bool {
	st.mu.Lock()
	_, ok := st.entries[id]
	delete(st.entries, id)
	st.mu.Unlock()
	return ok
}

func (st *Store) Len() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.entries)
}
