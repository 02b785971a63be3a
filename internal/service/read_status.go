package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Phambanam99/qlvb-thanh-sub004/internal/database"
	"github.com/Phambanam99/qlvb-thanh-sub004/internal/models"
	"github.com/Phambanam99/qlvb-thanh-sub004/internal/readstatus"
)

// MaxBatchSize caps the number of documents in one batch request.
const MaxBatchSize = 500

// ReadStatusService owns one read status store per user and keeps it in step
// with the database when one is configured.
//
// Every path that touches both the database and a store holds that user's
// lock across both steps, so the store always applies changes in the order
// the database saw them.
type ReadStatusService struct {
	repo database.ReadStatusRepository // nil in memory-only mode
	now  func() time.Time

	mu    sync.Mutex
	users map[int64]*userState
}

type userState struct {
	mu    sync.Mutex // held across persist and apply
	store *readstatus.Store
}

// NewReadStatusService creates a ReadStatusService. repo may be nil, in which
// case read state lives only as long as the process. now defaults to time.Now.
func NewReadStatusService(repo database.ReadStatusRepository, now func() time.Time) *ReadStatusService {
	if now == nil {
		now = time.Now
	}
	return &ReadStatusService{
		repo:   repo,
		now:    now,
		users: make(map[int64]*userState),
	}
}

// Persistent reports whether changes are written to the database.
func (s *ReadStatusService) Persistent() bool {
	return s.repo != nil
}

// Store returns the user's store, creating it on first use.
func (s *ReadStatusService) Store(userID int64) *readstatus.Store {
	return s.user(userID).store
}

// lock returns the user's store with the user's lock held; call the returned
// func to release it.
func (s *ReadStatusService) lock(userID int64) (*readstatus.Store, func()) {
	u := s.user(userID)
	u.mu.Lock()
	return u.store, u.mu.Unlock
}

func (s *ReadStatusService) user(userID int64) *userState {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[userID]
	if !ok {
		u = &userState{store: readstatus.New(
			readstatus.WithClock(s.now),
			readstatus.WithLogger(slog.Default().With("userID", userID)),
		)}
		s.users[userID] = u
	}
	return u
}

// MarkAsRead records that the user viewed the document.
func (s *ReadStatusService) MarkAsRead(ctx context.Context, userID int64, docType models.DocumentType, docID int64) (readstatus.Entry, error) {
	store, unlock := s.lock(userID)
	defer unlock()

	if s.repo == nil {
		return store.MarkAsRead(docID), nil
	}

	at := s.now().UTC()
	if err := s.repo.Upsert(ctx, &models.ReadStatus{
		UserID:       userID,
		DocumentID:   docID,
		DocumentType: docType,
		IsRead:       true,
		ReadAt:       &at,
	}); err != nil {
		return readstatus.Entry{}, storageFailed("failed to persist read status", err, "userID", userID, "documentID", docID)
	}
	store.UpdateMultiple([]readstatus.Update{{ID: docID, IsRead: true, ReadAt: &at}})
	return store.Status(docID), nil
}

// MarkAsUnread clears the read state of the document for the user.
func (s *ReadStatusService) MarkAsUnread(ctx context.Context, userID int64, docType models.DocumentType, docID int64) (readstatus.Entry, error) {
	store, unlock := s.lock(userID)
	defer unlock()

	if s.repo != nil {
		if err := s.repo.Upsert(ctx, &models.ReadStatus{
			UserID:       userID,
			DocumentID:   docID,
			DocumentType: docType,
		}); err != nil {
			return readstatus.Entry{}, storageFailed("failed to persist unread status", err, "userID", userID, "documentID", docID)
		}
	}
	return store.MarkAsUnread(docID), nil
}

// GetReadStatus answers from the user's store. A document the store has not
// seen is loaded from the database first, so this agrees with GetBatch after a
// restart. Documents known nowhere are unread.
func (s *ReadStatusService) GetReadStatus(ctx context.Context, userID, docID int64) (readstatus.Entry, error) {
	if s.repo == nil {
		return s.Store(userID).Status(docID), nil
	}

	store, unlock := s.lock(userID)
	defer unlock()

	if e, ok := store.Snapshot().Lookup(docID); ok {
		return e, nil
	}
	row, err := s.repo.Get(ctx, userID, docID)
	if err != nil {
		return readstatus.Entry{}, storageFailed("failed to load read status", err, "userID", userID, "documentID", docID)
	}
	if row == nil {
		return store.Status(docID), nil
	}
	store.UpdateMultiple([]readstatus.Update{{ID: row.DocumentID, IsRead: row.IsRead, ReadAt: row.ReadAt}})
	return store.Status(docID), nil
}

// GetBatch returns one entry per distinct requested ID, in request order.
// Persisted rows are merged into the user's store with a single update
// before the answer is built.
func (s *ReadStatusService) GetBatch(ctx context.Context, userID int64, docType models.DocumentType, ids []int64) ([]readstatus.Entry, error) {
	ids, err := normalizeIDs(ids)
	if err != nil {
		return nil, err
	}
	store, unlock := s.lock(userID)
	defer unlock()

	if s.repo != nil && len(ids) > 0 {
		rows, err := s.repo.GetByDocuments(ctx, userID, docType, ids)
		if err != nil {
			return nil, storageFailed("failed to load read statuses", err, "userID", userID, "count", len(ids))
		}
		updates := make([]readstatus.Update, len(rows))
		for i, r := range rows {
			updates[i] = readstatus.Update{ID: r.DocumentID, IsRead: r.IsRead, ReadAt: r.ReadAt}
		}
		store.UpdateMultiple(updates)
	}

	snap := store.Snapshot()
	entries := make([]readstatus.Entry, len(ids))
	for i, id := range ids {
		entries[i] = snap.Status(id)
	}
	return entries, nil
}

// UpdateBatch applies updates for the user with one store notification.
func (s *ReadStatusService) UpdateBatch(ctx context.Context, userID int64, docType models.DocumentType, updates []readstatus.Update) error {
	if len(updates) > MaxBatchSize {
		return BadRequest(CodeBatchTooLarge, fmt.Sprintf("at most %d updates per request", MaxBatchSize))
	}
	if len(updates) == 0 {
		return nil
	}

	store, unlock := s.lock(userID)
	defer unlock()

	if s.repo != nil {
		rows := make([]models.ReadStatus, len(updates))
		for i, u := range updates {
			rows[i] = models.ReadStatus{
				UserID:       userID,
				DocumentID:   u.ID,
				DocumentType: docType,
				IsRead:       u.IsRead,
				ReadAt:       u.ReadAt,
			}
		}
		if err := s.repo.UpsertMany(ctx, rows); err != nil {
			return storageFailed("failed to persist read status batch", err, "userID", userID, "count", len(rows))
		}
	}

	store.UpdateMultiple(updates)
	return nil
}

// ListByUser returns every persisted status of the given type for the user.
func (s *ReadStatusService) ListByUser(ctx context.Context, userID int64, docType models.DocumentType) ([]models.ReadStatus, error) {
	if s.repo == nil {
		return nil, Unavailable(CodePersistenceDisabled, "read status history is not stored on this server")
	}
	statuses, err := s.repo.GetByUser(ctx, userID, docType)
	if err != nil {
		return nil, storageFailed("failed to list read statuses", err, "userID", userID, "type", docType)
	}
	if statuses == nil {
		statuses = []models.ReadStatus{}
	}
	return statuses, nil
}

// ClearAll forgets the user's persisted history and marks every document the
// store knows about as unread, with a single notification.
func (s *ReadStatusService) ClearAll(ctx context.Context, userID int64) error {
	store, unlock := s.lock(userID)
	defer unlock()

	if s.repo != nil {
		if err := s.repo.DeleteByUser(ctx, userID); err != nil {
			return storageFailed("failed to clear read statuses", err, "userID", userID)
		}
	}

	var updates []readstatus.Update
	for _, e := range store.Snapshot().Entries() {
		if e.IsRead {
			updates = append(updates, readstatus.Update{ID: e.DocumentID})
		}
	}
	store.UpdateMultiple(updates)
	return nil
}

// normalizeIDs drops duplicate IDs, keeping first occurrence order.
func normalizeIDs(ids []int64) ([]int64, error) {
	if len(ids) > MaxBatchSize {
		return nil, BadRequest(CodeBatchTooLarge, fmt.Sprintf("at most %d ids per request", MaxBatchSize))
	}
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out, nil
}
