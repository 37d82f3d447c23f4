package models

import "time"

const (
	UploadStatusUploading  = "uploading"
	UploadStatusAssembling = "assembling"
	UploadStatusCompleted  = "completed"
)

type UploadSession struct {
	ID           uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	UploadID     string    `gorm:"type:varchar(64);uniqueIndex;not null" json:"upload_id"`
	ToolID       string    `gorm:"type:varchar(64);index" json:"tool_id"`
	FileName     string    `gorm:"type:varchar(255)" json:"file_name"`
	DeclaredSize int64     `json:"declared_size"`
	TotalChunks  int       `json:"total_chunks"`
	Status       string    `gorm:"type:varchar(20);default:uploading;index" json:"status"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	ExpiresAt    time.Time `gorm:"not null;index" json:"expires_at"`
}
