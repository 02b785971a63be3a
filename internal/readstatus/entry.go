package readstatus

import (
	"sort"
	"time"
)

// Entry is the read state of one document as seen by one user.
type Entry struct {
	DocumentID int64      `json:"document_id"`
	IsRead     bool       `json:"is_read"`
	ReadAt     *time.Time `json:"read_at,omitempty"`
}

// Update is one element of a batch passed to UpdateMultiple.
type Update struct {
	ID     int64      `json:"id"`
	IsRead bool       `json:"is_read"`
	ReadAt *time.Time `json:"read_at,omitempty"`
}

// record is the stored form of an Entry. A zero at means the read time is unknown.
type record struct {
	read bool
	at   time.Time
}

func (r record) entry(id int64) Entry {
	e := Entry{DocumentID: id, IsRead: r.read}
	if r.read && !r.at.IsZero() {
		at := r.at
		e.ReadAt = &at
	}
	return e
}

func recordFrom(isRead bool, readAt *time.Time) record {
	if !isRead {
		return record{}
	}
	r := record{read: true}
	if readAt != nil {
		r.at = readAt.UTC()
	}
	return r
}

// Snapshot is an immutable view of a store at one revision.
type Snapshot struct {
	entries map[int64]record
}

// Status returns the entry for id, or the default unread entry.
func (s Snapshot) Status(id int64) Entry {
	return s.entries[id].entry(id)
}

// Lookup returns the entry for id and whether the store holds one.
func (s Snapshot) Lookup(id int64) (Entry, bool) {
	r, ok := s.entries[id]
	return r.entry(id), ok
}

// Len returns the number of stored entries.
func (s Snapshot) Len() int {
	return len(s.entries)
}

// Entries returns all stored entries ordered by document ID.
func (s Snapshot) Entries() []Entry {
	out := make([]Entry, 0, len(s.entries))
	for id, r := range s.entries {
		out = append(out, r.entry(id))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DocumentID < out[j].DocumentID })
	return out
}

// Change is delivered to listeners after every mutation.
type Change struct {
	Revision uint64
	// Entries holds the entries written by the mutation, in the order they were first named.
	Entries  []Entry
	Snapshot Snapshot
}
