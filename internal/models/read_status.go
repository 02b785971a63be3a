package models

import "time"

// ReadStatus is the persisted read state of one document for one user.
type ReadStatus struct {
	UserID       int64        `json:"user_id,string"`
	DocumentID   int64        `json:"document_id"`
	DocumentType DocumentType `json:"document_type"`
	IsRead       bool         `json:"is_read"`
	ReadAt       *time.Time   `json:"read_at,omitempty"`
	UpdatedAt    time.Time    `json:"updated_at"`
}
