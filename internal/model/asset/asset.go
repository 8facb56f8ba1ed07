package asset

import (
	"time"

	"github.com/google/uuid"
)

type Asset struct {
	ID          uuid.UUID `json:"id"`
	FolderID    string    `json:"folder_id"`
	Name        string    `json:"name"`
	ContentType string    `json:"content_type"`
	Size        int64     `json:"size"`
	StorageKey  string    `json:"storage_key"`
	UploadedBy  string    `json:"uploaded_by"`
	CreatedAt   time.Time `json:"created_at"`
}
