package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Phambanam99/qlvb-thanh-sub004/internal/models"
)

const upsertReadStatusSQL = `INSERT INTO read_statuses (user_id, document_id, document_type, is_read, read_at, updated_at)
	 VALUES ($1, $2, $3, $4, $5, NOW())
	 ON CONFLICT (user_id, document_id)
	 DO UPDATE SET document_type = $3, is_read = $4, read_at = $5, updated_at = NOW()`

type readStatusRepo struct {
	pool *pgxpool.Pool
}

func NewReadStatusRepository(pool *pgxpool.Pool) ReadStatusRepository {
	return &readStatusRepo{pool: pool}
}

func (r *readStatusRepo) Upsert(ctx context.Context, s *models.ReadStatus) error {
	_, err := r.pool.Exec(ctx, upsertReadStatusSQL,
		s.UserID, s.DocumentID, string(s.DocumentType), s.IsRead, readAtArg(s),
	)
	return err
}

// UpsertMany writes all statuses in one transaction.
func (r *readStatusRepo) UpsertMany(ctx context.Context, statuses []models.ReadStatus) error {
	if len(statuses) == 0 {
		return nil
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	for i := range statuses {
		s := &statuses[i]
		batch.Queue(upsertReadStatusSQL, s.UserID, s.DocumentID, string(s.DocumentType), s.IsRead, readAtArg(s))
	}

	br := tx.SendBatch(ctx, batch)
	for i := range statuses {
		if _, err := br.Exec(); err != nil {
			br.Close()
			return fmt.Errorf("upsert document %d: %w", statuses[i].DocumentID, err)
		}
	}
	if err := br.Close(); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// Get returns the user's row for the document, whatever its type, or nil when
// none is stored.
func (r *readStatusRepo) Get(ctx context.Context, userID, documentID int64) (*models.ReadStatus, error) {
	var s models.ReadStatus
	var docType string
	err := r.pool.QueryRow(ctx,
		`SELECT user_id, document_id, document_type, is_read, read_at, updated_at
		 FROM read_statuses
		 WHERE user_id = $1 AND document_id = $2`,
		userID, documentID,
	).Scan(&s.UserID, &s.DocumentID, &docType, &s.IsRead, &s.ReadAt, &s.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if s.DocumentType, err = models.ParseDocumentType(docType); err != nil {
		return nil, fmt.Errorf("document %d: %w", s.DocumentID, err)
	}
	return &s, nil
}

func (r *readStatusRepo) GetByDocuments(ctx context.Context, userID int64, docType models.DocumentType, documentIDs []int64) ([]models.ReadStatus, error) {
	if len(documentIDs) == 0 {
		return nil, nil
	}
	rows, err := r.pool.Query(ctx,
		`SELECT user_id, document_id, document_type, is_read, read_at, updated_at
		 FROM read_statuses
		 WHERE user_id = $1 AND document_type = $2 AND document_id = ANY($3)`,
		userID, string(docType), documentIDs,
	)
	if err != nil {
		return nil, err
	}
	return scanReadStatuses(rows)
}

func (r *readStatusRepo) GetByUser(ctx context.Context, userID int64, docType models.DocumentType) ([]models.ReadStatus, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT user_id, document_id, document_type, is_read, read_at, updated_at
		 FROM read_statuses
		 WHERE user_id = $1 AND document_type = $2
		 ORDER BY document_id`,
		userID, string(docType),
	)
	if err != nil {
		return nil, err
	}
	return scanReadStatuses(rows)
}

func (r *readStatusRepo) DeleteByUser(ctx context.Context, userID int64) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM read_statuses WHERE user_id = $1`, userID)
	return err
}

func scanReadStatuses(rows pgx.Rows) ([]models.ReadStatus, error) {
	defer rows.Close()

	var statuses []models.ReadStatus
	for rows.Next() {
		var s models.ReadStatus
		var docType string
		if err := rows.Scan(&s.UserID, &s.DocumentID, &docType, &s.IsRead, &s.ReadAt, &s.UpdatedAt); err != nil {
			return nil, err
		}
		t, err := models.ParseDocumentType(docType)
		if err != nil {
			return nil, fmt.Errorf("document %d: %w", s.DocumentID, err)
		}
		s.DocumentType = t
		statuses = append(statuses, s)
	}
	return statuses, rows.Err()
}

// readAtArg enforces that an unread row never carries a read time.
func readAtArg(s *models.ReadStatus) any {
	if !s.IsRead || s.ReadAt == nil {
		return nil
	}
	return *s.ReadAt
}
