package database

import (
	"context"

	"github.com/Phambanam99/qlvb-thanh-sub004/internal/models"
)

type ReadStatusRepository interface {
	Upsert(ctx context.Context, status *models.ReadStatus) error
	UpsertMany(ctx context.Context, statuses []models.ReadStatus) error
	Get(ctx context.Context, userID, documentID int64) (*models.ReadStatus, error)
	GetByDocuments(ctx context.Context, userID int64, docType models.DocumentType, documentIDs []int64) ([]models.ReadStatus, error)
	GetByUser(ctx context.Context, userID int64, docType models.DocumentType) ([]models.ReadStatus, error)
	DeleteByUser(ctx context.Context, userID int64) error
}
