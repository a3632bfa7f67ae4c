// Package registry holds the authoritative in-memory table of live
// authenticated sessions. The raw map never leaves this package; every
// access goes through the mutex, and the lock is never held across a
// network call.
package registry

import (
	"sync"

	"github.com/frhnm/tgfleet/internal/domain"
	"github.com/frhnm/tgfleet/internal/ports"
)

// Entry is one registered session. Copies handed out by Snapshot are
// point-in-time: the registry may change underneath them.
type Entry struct {
	ID     domain.AccountID
	Status domain.SessionStatus
	Client ports.Client
}

type Registry struct {
	mu      sync.Mutex
	entries map[domain.AccountID]Entry
}

func New() *Registry {
	return &Registry{entries: make(map[domain.AccountID]Entry)}
}

// Insert registers a session as active. It fails with ErrAccountExists when
// an active entry is already present. Disabled or revoked leftovers are
// replaced; the displaced client is returned so the caller can close it
// (the registry itself never calls the vendor under its lock).
func (r *Registry) Insert(id domain.AccountID, client ports.Client) (ports.Client, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.entries[id]
	if ok && existing.Status == domain.StatusActive {
		return nil, domain.ErrAccountExists
	}
	r.entries[id] = Entry{ID: id, Status: domain.StatusActive, Client: client}
	if ok {
		return existing.Client, nil
	}
	return nil, nil
}

// Remove drops the entry if present. Idempotent.
func (r *Registry) Remove(id domain.AccountID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, ok := r.entries[id]
	delete(r.entries, id)
	return ok
}

// SetStatus updates the status of an existing entry; no-op when absent.
func (r *Registry) SetStatus(id domain.AccountID, status domain.SessionStatus) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.entries[id]
	if !ok {
		return false
	}
	entry.Status = status
	r.entries[id] = entry
	return true
}

func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

func (r *Registry) IsActive(id domain.AccountID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.entries[id]
	return ok && entry.Status == domain.StatusActive
}

// Get returns a copy of the entry. Callers must not hold the returned
// client beyond the operation at hand; the registry entry owns it.
func (r *Registry) Get(id domain.AccountID) (Entry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.entries[id]
	return entry, ok
}

// Snapshot copies the active entries for the given ids (all active entries
// when no ids are given). The copy is taken under the lock and used outside
// it, so slow vendor calls never run while the registry is locked.
func (r *Registry) Snapshot(ids ...domain.AccountID) []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(ids) == 0 {
		snapshot := make([]Entry, 0, len(r.entries))
		for _, entry := range r.entries {
			if entry.Status == domain.StatusActive {
				snapshot = append(snapshot, entry)
			}
		}
		return snapshot
	}

	snapshot := make([]Entry, 0, len(ids))
	for _, id := range ids {
		if entry, ok := r.entries[id]; ok && entry.Status == domain.StatusActive {
			snapshot = append(snapshot, entry)
		}
	}
	return snapshot
}

// WithSnapshot runs fn on a point-in-time copy of all entries, outside the
// lock.
func (r *Registry) WithSnapshot(fn func([]Entry)) {
	r.mu.Lock()
	snapshot := make([]Entry, 0, len(r.entries))
	for _, entry := range r.entries {
		snapshot = append(snapshot, entry)
	}
	r.mu.Unlock()

	fn(snapshot)
}

// ActiveIDs lists the ids of all active entries.
func (r *Registry) ActiveIDs() []domain.AccountID {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids := make([]domain.AccountID, 0, len(r.entries))
	for id, entry := range r.entries {
		if entry.Status == domain.StatusActive {
			ids = append(ids, id)
		}
	}
	return ids
}
