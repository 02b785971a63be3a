// Package readstatus tracks which documents a user has viewed and notifies
// subscribers whenever that changes.
package readstatus

import (
	"log/slog"
	"maps"
	"sync"
	"time"
)

// Option configures a Store.
type Option func(*Store)

// WithClock sets the time source used by MarkAsRead.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithLogger sets the logger used to report panicking listeners.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.subs.logger = l }
}

// Store is the single source of truth for one user's document read state.
//
// Mutations are serialized together with their notification, so listeners see
// changes in mutation order and never observe a partially applied batch.
// Listeners may call Status but must not mutate the same store synchronously.
type Store struct {
	notifyMu sync.Mutex

	mu       sync.RWMutex
	entries  map[int64]record // replaced, never modified, on each mutation
	revision uint64

	subs registry
	now  func() time.Time
}

// New creates an empty Store.
func New(opts ...Option) *Store {
	s := &Store{
		entries: make(map[int64]record),
		now:     time.Now,
	}
	s.subs.logger = slog.Default()
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// MarkAsRead records that the document was viewed now and returns the new entry.
func (s *Store) MarkAsRead(id int64) Entry {
	at := s.now()
	change := s.apply([]int64{id}, map[int64]record{id: recordFrom(true, &at)})
	return change.Entries[0]
}

// MarkAsUnread clears the read flag and read time of the document.
func (s *Store) MarkAsUnread(id int64) Entry {
	change := s.apply([]int64{id}, map[int64]record{id: {}})
	return change.Entries[0]
}

// Status returns the stored entry for id, or an unread entry if none exists.
// It never creates an entry and never notifies.
func (s *Store) Status(id int64) Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.entries[id].entry(id)
}

// UpdateMultiple applies every update and then notifies listeners once.
// Entries not named in updates are left untouched. When an ID appears more
// than once the last update wins. An empty batch does nothing.
func (s *Store) UpdateMultiple(updates []Update) {
	if len(updates) == 0 {
		return
	}
	order := make([]int64, 0, len(updates))
	batch := make(map[int64]record, len(updates))
	for _, u := range updates {
		if _, seen := batch[u.ID]; !seen {
			order = append(order, u.ID)
		}
		batch[u.ID] = recordFrom(u.IsRead, u.ReadAt)
	}
	s.apply(order, batch)
}

// Subscribe registers fn to run after every mutation and returns a func that
// removes it. Calling the returned func more than once has no further effect.
func (s *Store) Subscribe(fn Listener) (unsubscribe func()) {
	return s.subs.add(fn)
}

// Subscribers returns the number of registered listeners.
func (s *Store) Subscribers() int {
	return s.subs.len()
}

// Snapshot returns a consistent view of all stored entries.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{entries: s.entries}
}

// Revision returns the number of notifications issued so far.
func (s *Store) Revision() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.revision
}

// Len returns the number of stored entries.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// State returns the snapshot and the revision it belongs to.
func (s *Store) State() (Snapshot, uint64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{entries: s.entries}, s.revision
}

func (s *Store) apply(order []int64, batch map[int64]record) Change {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()
	next := make(map[int64]record, len(s.entries)+len(batch))
	maps.Copy(next, s.entries)
	maps.Copy(next, batch)
	s.entries = next
	s.revision++
	change := Change{
		Revision: s.revision,
		Entries:  make([]Entry, len(order)),
		Snapshot: Snapshot{entries: next},
	}
	for i, id := range order {
		change.Entries[i] = next[id].entry(id)
	}
	s.mu.Unlock()

	s.subs.notifyAll(change)
	return change
}
