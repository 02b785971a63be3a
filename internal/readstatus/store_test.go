package readstatus

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"
)

var testTime = time.Date(2025, 3, 14, 9, 30, 0, 0, time.UTC)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

// counter records every change delivered to it.
type counter struct {
	mu      sync.Mutex
	changes []Change
}

func (c *counter) listen(ch Change) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.changes = append(c.changes, ch)
}

func (c *counter) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.changes)
}

func (c *counter) last() Change {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.changes[len(c.changes)-1]
}

// ---------------------------------------------------------------------------
// Status
// ---------------------------------------------------------------------------

func TestStatus_UnknownDocumentIsUnread(t *testing.T) {
	s := New()

	for _, id := range []int64{0, 1, 42, -7, 1 << 40} {
		got := s.Status(id)
		if got.IsRead {
			t.Errorf("Status(%d).IsRead = true, want false", id)
		}
		if got.ReadAt != nil {
			t.Errorf("Status(%d).ReadAt = %v, want nil", id, got.ReadAt)
		}
		if got.DocumentID != id {
			t.Errorf("Status(%d).DocumentID = %d", id, got.DocumentID)
		}
	}
	if s.Len() != 0 {
		t.Fatalf("Len() = %d after lookups, want 0", s.Len())
	}
}

func TestStatus_DoesNotNotify(t *testing.T) {
	s := New()
	var c counter
	s.Subscribe(c.listen)

	s.Status(1)
	s.Status(2)

	if c.count() != 0 {
		t.Fatalf("listener called %d times on reads, want 0", c.count())
	}
	if s.Revision() != 0 {
		t.Fatalf("Revision() = %d, want 0", s.Revision())
	}
}

// ---------------------------------------------------------------------------
// MarkAsRead / MarkAsUnread
// ---------------------------------------------------------------------------

func TestMarkAsRead_SetsReadAndTimestamp(t *testing.T) {
	s := New(WithClock(fixedClock(testTime)))

	entry := s.MarkAsRead(7)

	got := s.Status(7)
	if !got.IsRead {
		t.Fatal("IsRead = false after MarkAsRead")
	}
	if got.ReadAt == nil || !got.ReadAt.Equal(testTime) {
		t.Fatalf("ReadAt = %v, want %v", got.ReadAt, testTime)
	}
	if !entry.IsRead || entry.ReadAt == nil || !entry.ReadAt.Equal(testTime) {
		t.Fatalf("returned entry = %+v, want read at %v", entry, testTime)
	}
}

func TestMarkAsRead_Twice(t *testing.T) {
	now := testTime
	s := New(WithClock(func() time.Time { return now }))

	s.MarkAsRead(7)
	now = testTime.Add(time.Minute)
	s.MarkAsRead(7)

	got := s.Status(7)
	if !got.IsRead {
		t.Fatal("IsRead = false after second MarkAsRead")
	}
	if !got.ReadAt.Equal(testTime.Add(time.Minute)) {
		t.Errorf("ReadAt = %v, want the later timestamp", got.ReadAt)
	}
	if s.Len() != 1 {
		t.Errorf("Len() = %d, want 1", s.Len())
	}
}

func TestMarkAsUnread_ClearsTimestamp(t *testing.T) {
	s := New(WithClock(fixedClock(testTime)))

	s.MarkAsRead(7)
	s.MarkAsUnread(7)

	got := s.Status(7)
	if got.IsRead {
		t.Fatal("IsRead = true after MarkAsUnread")
	}
	if got.ReadAt != nil {
		t.Fatalf("ReadAt = %v after MarkAsUnread, want nil", got.ReadAt)
	}
}

func TestMarkAsUnread_UnknownDocument(t *testing.T) {
	s := New()
	var c counter
	s.Subscribe(c.listen)

	s.MarkAsUnread(99)

	if got := s.Status(99); got.IsRead || got.ReadAt != nil {
		t.Fatalf("Status(99) = %+v, want unread", got)
	}
	if c.count() != 1 {
		t.Fatalf("listener called %d times, want 1", c.count())
	}
}

func TestReturnedEntryCannotMutateStore(t *testing.T) {
	s := New(WithClock(fixedClock(testTime)))
	s.MarkAsRead(1)

	got := s.Status(1)
	*got.ReadAt = time.Time{}

	if again := s.Status(1); !again.ReadAt.Equal(testTime) {
		t.Fatalf("store was modified through returned pointer: %v", again.ReadAt)
	}
}

// ---------------------------------------------------------------------------
// UpdateMultiple
// ---------------------------------------------------------------------------

func TestUpdateMultiple_AppliesAllWithOneNotification(t *testing.T) {
	s := New()
	var c counter
	s.Subscribe(c.listen)

	s.UpdateMultiple([]Update{
		{ID: 1, IsRead: true},
		{ID: 2, IsRead: false},
	})

	if !s.Status(1).IsRead {
		t.Error("Status(1).IsRead = false, want true")
	}
	if s.Status(2).IsRead {
		t.Error("Status(2).IsRead = true, want false")
	}
	if c.count() != 1 {
		t.Fatalf("listener called %d times, want 1", c.count())
	}
	if n := len(c.last().Entries); n != 2 {
		t.Fatalf("change carried %d entries, want 2", n)
	}
}

func TestUpdateMultiple_MergesWithExisting(t *testing.T) {
	s := New(WithClock(fixedClock(testTime)))
	s.MarkAsRead(1)
	s.MarkAsRead(2)

	s.UpdateMultiple([]Update{{ID: 2, IsRead: false}, {ID: 3, IsRead: true, ReadAt: &testTime}})

	if !s.Status(1).IsRead {
		t.Error("document 1 should keep its read state")
	}
	if s.Status(2).IsRead {
		t.Error("document 2 should be unread")
	}
	if got := s.Status(3); !got.IsRead || !got.ReadAt.Equal(testTime) {
		t.Errorf("Status(3) = %+v, want read at %v", got, testTime)
	}
}

func TestUpdateMultiple_UnreadDropsReadAt(t *testing.T) {
	s := New()

	s.UpdateMultiple([]Update{{ID: 5, IsRead: false, ReadAt: &testTime}})

	if got := s.Status(5); got.ReadAt != nil {
		t.Fatalf("ReadAt = %v for unread entry, want nil", got.ReadAt)
	}
}

func TestUpdateMultiple_ReadWithoutTimestamp(t *testing.T) {
	s := New()

	s.UpdateMultiple([]Update{{ID: 5, IsRead: true}})

	got := s.Status(5)
	if !got.IsRead {
		t.Fatal("IsRead = false, want true")
	}
	if got.ReadAt != nil {
		t.Fatalf("ReadAt = %v, want nil when the batch carries none", got.ReadAt)
	}
}

func TestUpdateMultiple_LastUpdateForIDWins(t *testing.T) {
	s := New()
	var c counter
	s.Subscribe(c.listen)

	s.UpdateMultiple([]Update{
		{ID: 1, IsRead: true},
		{ID: 2, IsRead: true},
		{ID: 1, IsRead: false},
	})

	if s.Status(1).IsRead {
		t.Error("Status(1).IsRead = true, want false (last update wins)")
	}
	entries := c.last().Entries
	if len(entries) != 2 {
		t.Fatalf("change carried %d entries, want 2", len(entries))
	}
	if entries[0].DocumentID != 1 || entries[0].IsRead {
		t.Errorf("entries[0] = %+v, want document 1 unread", entries[0])
	}
	if entries[1].DocumentID != 2 || !entries[1].IsRead {
		t.Errorf("entries[1] = %+v, want document 2 read", entries[1])
	}
}

func TestUpdateMultiple_EmptyBatchIsNoop(t *testing.T) {
	s := New()
	var c counter
	s.Subscribe(c.listen)

	s.UpdateMultiple(nil)
	s.UpdateMultiple([]Update{})

	if c.count() != 0 {
		t.Fatalf("listener called %d times for empty batches, want 0", c.count())
	}
	if s.Revision() != 0 {
		t.Fatalf("Revision() = %d, want 0", s.Revision())
	}
}

// ---------------------------------------------------------------------------
// Subscriptions
// ---------------------------------------------------------------------------

func TestSubscribe_OneNotificationPerMutation(t *testing.T) {
	s := New()
	var c counter
	s.Subscribe(c.listen)

	s.MarkAsRead(1)
	if c.count() != 1 {
		t.Fatalf("after MarkAsRead: %d notifications, want 1", c.count())
	}
	s.MarkAsUnread(1)
	if c.count() != 2 {
		t.Fatalf("after MarkAsUnread: %d notifications, want 2", c.count())
	}
	s.UpdateMultiple([]Update{{ID: 1, IsRead: true}, {ID: 2, IsRead: true}})
	if c.count() != 3 {
		t.Fatalf("after UpdateMultiple: %d notifications, want 3", c.count())
	}
}

func TestSubscribe_TwoSubscribersSeeSameState(t *testing.T) {
	s := New(WithClock(fixedClock(testTime)))
	var a, b counter
	s.Subscribe(a.listen)
	s.Subscribe(b.listen)

	s.MarkAsRead(42)

	if a.count() != 1 || b.count() != 1 {
		t.Fatalf("notifications: A=%d B=%d, want 1 each", a.count(), b.count())
	}
	for name, c := range map[string]*counter{"A": &a, "B": &b} {
		got := c.last().Snapshot.Status(42)
		if !got.IsRead {
			t.Errorf("%s: snapshot shows document 42 unread", name)
		}
		raw, err := json.Marshal(got)
		if err != nil {
			t.Fatalf("%s: marshal: %v", name, err)
		}
		if !strings.Contains(string(raw), `"read_at":"2025-03-14T09:30:00Z"`) {
			t.Errorf("%s: entry JSON = %s, want RFC 3339 read_at", name, raw)
		}
	}
	if got := s.Status(42); !got.IsRead {
		t.Fatal("Status(42).IsRead = false after MarkAsRead")
	}
}

func TestSubscribe_UnsubscribeStopsNotifications(t *testing.T) {
	s := New()
	var c counter
	unsubscribe := s.Subscribe(c.listen)

	s.MarkAsRead(1)
	unsubscribe()
	s.MarkAsRead(2)
	s.UpdateMultiple([]Update{{ID: 3, IsRead: true}})

	if c.count() != 1 {
		t.Fatalf("listener called %d times, want 1", c.count())
	}
	if s.Subscribers() != 0 {
		t.Fatalf("Subscribers() = %d, want 0", s.Subscribers())
	}
}

func TestSubscribe_UnsubscribeIsIdempotent(t *testing.T) {
	s := New()
	var first, second counter
	unsubscribe := s.Subscribe(first.listen)
	s.Subscribe(second.listen)

	unsubscribe()
	unsubscribe()

	s.MarkAsRead(1)

	if first.count() != 0 {
		t.Errorf("unsubscribed listener called %d times", first.count())
	}
	if second.count() != 1 {
		t.Errorf("remaining listener called %d times, want 1", second.count())
	}
	if s.Subscribers() != 1 {
		t.Errorf("Subscribers() = %d, want 1", s.Subscribers())
	}
}

func TestSubscribe_RegistrationOrder(t *testing.T) {
	s := New()
	var order []int
	for i := 0; i < 5; i++ {
		i := i
		s.Subscribe(func(Change) { order = append(order, i) })
	}

	s.MarkAsRead(1)

	for i, got := range order {
		if got != i {
			t.Fatalf("call order = %v, want [0 1 2 3 4]", order)
		}
	}
	if len(order) != 5 {
		t.Fatalf("%d listeners called, want 5", len(order))
	}
}

func TestSubscribe_PanickingListenerIsIsolated(t *testing.T) {
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))
	s := New(WithLogger(logger))

	var before, after counter
	s.Subscribe(before.listen)
	s.Subscribe(func(Change) { panic("boom") })
	s.Subscribe(after.listen)

	s.MarkAsRead(1)

	if before.count() != 1 || after.count() != 1 {
		t.Fatalf("notifications: before=%d after=%d, want 1 each", before.count(), after.count())
	}
	if !strings.Contains(logs.String(), "listener panicked") {
		t.Errorf("panic was not logged: %q", logs.String())
	}
}

func TestSubscribe_ListenerCanReadStore(t *testing.T) {
	s := New()
	var seen Entry
	s.Subscribe(func(Change) { seen = s.Status(3) })

	s.MarkAsRead(3)

	if !seen.IsRead {
		t.Fatal("listener read stale state from the store")
	}
}

func TestChange_RevisionIncreases(t *testing.T) {
	s := New()
	var c counter
	s.Subscribe(c.listen)

	s.MarkAsRead(1)
	s.MarkAsRead(2)
	s.MarkAsUnread(1)

	for i, ch := range c.changes {
		if ch.Revision != uint64(i+1) {
			t.Errorf("change %d revision = %d, want %d", i, ch.Revision, i+1)
		}
	}
	if s.Revision() != 3 {
		t.Errorf("Revision() = %d, want 3", s.Revision())
	}
}

func TestChange_SnapshotIsStable(t *testing.T) {
	s := New()
	var c counter
	s.Subscribe(c.listen)

	s.MarkAsRead(1)
	first := c.last().Snapshot
	s.MarkAsUnread(1)

	if !first.Status(1).IsRead {
		t.Fatal("earlier snapshot changed after a later mutation")
	}
	if s.Status(1).IsRead {
		t.Fatal("store should show document 1 unread")
	}
}

// ---------------------------------------------------------------------------
// Snapshot
// ---------------------------------------------------------------------------

func TestSnapshot_EntriesSorted(t *testing.T) {
	s := New()
	s.UpdateMultiple([]Update{{ID: 30, IsRead: true}, {ID: 10, IsRead: true}, {ID: 20, IsRead: false}})

	snap, rev := s.State()
	if rev != 1 {
		t.Fatalf("revision = %d, want 1", rev)
	}
	entries := snap.Entries()
	if len(entries) != 3 || snap.Len() != 3 {
		t.Fatalf("snapshot has %d entries, want 3", len(entries))
	}
	for i, want := range []int64{10, 20, 30} {
		if entries[i].DocumentID != want {
			t.Errorf("entries[%d].DocumentID = %d, want %d", i, entries[i].DocumentID, want)
		}
	}
}

func TestSnapshot_LookupDistinguishesStoredUnread(t *testing.T) {
	s := New()
	s.MarkAsUnread(5)

	snap := s.Snapshot()
	if e, ok := snap.Lookup(5); !ok || e.IsRead {
		t.Fatalf("Lookup(5) = %+v, %v; want stored unread entry", e, ok)
	}
	if e, ok := snap.Lookup(6); ok || e.IsRead || e.DocumentID != 6 {
		t.Fatalf("Lookup(6) = %+v, %v; want default entry, not stored", e, ok)
	}
}

// ---------------------------------------------------------------------------
// Concurrency
// ---------------------------------------------------------------------------

func TestConcurrentMutations_NotificationsInRevisionOrder(t *testing.T) {
	s := New()

	var mu sync.Mutex
	var revisions []uint64
	s.Subscribe(func(c Change) {
		mu.Lock()
		revisions = append(revisions, c.Revision)
		mu.Unlock()
	})

	var wg sync.WaitGroup
	for i := int64(0); i < 50; i++ {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			s.MarkAsRead(id)
			s.Status(id)
			s.UpdateMultiple([]Update{{ID: id, IsRead: false}, {ID: id + 1000, IsRead: true}})
		}(i)
	}
	wg.Wait()

	if len(revisions) != 100 {
		t.Fatalf("got %d notifications, want 100", len(revisions))
	}
	for i, rev := range revisions {
		if rev != uint64(i+1) {
			t.Fatalf("notification %d has revision %d; deliveries out of order", i, rev)
		}
	}
}

func TestConcurrentSubscribeUnsubscribe(t *testing.T) {
	s := New()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			unsubscribe := s.Subscribe(func(Change) {})
			s.MarkAsRead(id)
			unsubscribe()
		}(int64(i))
	}
	wg.Wait()

	if s.Subscribers() != 0 {
		t.Fatalf("Subscribers() = %d, want 0", s.Subscribers())
	}
	if s.Len() != 50 {
		t.Fatalf("Len() = %d, want 50", s.Len())
	}
}
