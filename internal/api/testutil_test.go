package api

import (
	"context"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/labstack/echo/v4"

	"github.com/Phambanam99/qlvb-thanh-sub004/internal/auth"
	"github.com/Phambanam99/qlvb-thanh-sub004/internal/models"
	redisclient "github.com/Phambanam99/qlvb-thanh-sub004/internal/redis"
)

const testUserID int64 = 1001

var testNow = time.Date(2025, 6, 2, 8, 0, 0, 0, time.UTC)

func testClock() time.Time { return testNow }

// ---------------------------------------------------------------------------
// Test helpers
// ---------------------------------------------------------------------------

func newTestContext(method, path string, body io.Reader) (echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	req := httptest.NewRequest(method, path, body)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	return c, rec
}

func setAuthUser(c echo.Context, userID int64) {
	auth.SetUserID(c, userID)
}

func newTestRedis(t *testing.T) *redisclient.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb, err := redisclient.NewClient("redis://" + mr.Addr())
	if err != nil {
		t.Fatalf("creating test redis client: %v", err)
	}
	t.Cleanup(func() { _ = rdb.Close() })
	return rdb
}

// ---------------------------------------------------------------------------
// Mock repositories
// ---------------------------------------------------------------------------

// mockReadStatusRepo implements database.ReadStatusRepository.
type mockReadStatusRepo struct {
	UpsertFn         func(ctx context.Context, status *models.ReadStatus) error
	UpsertManyFn     func(ctx context.Context, statuses []models.ReadStatus) error
	GetFn            func(ctx context.Context, userID, documentID int64) (*models.ReadStatus, error)
	GetByDocumentsFn func(ctx context.Context, userID int64, docType models.DocumentType, ids []int64) ([]models.ReadStatus, error)
	GetByUserFn      func(ctx context.Context, userID int64, docType models.DocumentType) ([]models.ReadStatus, error)
	DeleteByUserFn   func(ctx context.Context, userID int64) error
}

func (m *mockReadStatusRepo) Upsert(ctx context.Context, status *models.ReadStatus) error {
	if m.UpsertFn != nil {
		return m.UpsertFn(ctx, status)
	}
	return nil
}

func (m *mockReadStatusRepo) UpsertMany(ctx context.Context, statuses []models.ReadStatus) error {
	if m.UpsertManyFn != nil {
		return m.UpsertManyFn(ctx, statuses)
	}
	return nil
}

func (m *mockReadStatusRepo) Get(ctx context.Context, userID, documentID int64) (*models.ReadStatus, error) {
	if m.GetFn != nil {
		return m.GetFn(ctx, userID, documentID)
	}
	return nil, nil
}

func (m *mockReadStatusRepo) GetByDocuments(ctx context.Context, userID int64, docType models.DocumentType, ids []int64) ([]models.ReadStatus, error) {
	if m.GetByDocumentsFn != nil {
		return m.GetByDocumentsFn(ctx, userID, docType, ids)
	}
	return nil, nil
}

func (m *mockReadStatusRepo) GetByUser(ctx context.Context, userID int64, docType models.DocumentType) ([]models.ReadStatus, error) {
	if m.GetByUserFn != nil {
		return m.GetByUserFn(ctx, userID, docType)
	}
	return nil, nil
}

func (m *mockReadStatusRepo) DeleteByUser(ctx context.Context, userID int64) error {
	if m.DeleteByUserFn != nil {
		return m.DeleteByUserFn(ctx, userID)
	}
	return nil
}
