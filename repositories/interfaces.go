package repositories

import (
	"context"
	"io"
	"time"

	"fileswift/models"

	"gorm.io/gorm"
)

type UploadSessionRepository interface {
	Create(ctx context.Context, tx *gorm.DB, session *models.UploadSession) error
	GetByUploadID(ctx context.Context, tx *gorm.DB, uploadID string) (models.UploadSession, error)
	UpdateByUploadID(ctx context.Context, tx *gorm.DB, uploadID string, updates map[string]interface{}) error
	DeleteByID(ctx context.Context, tx *gorm.DB, id uint) error
	ListExpiredAndUncompleted(ctx context.Context, tx *gorm.DB, now time.Time) ([]models.UploadSession, error)
}

type JobRepository interface {
	Create(ctx context.Context, tx *gorm.DB, job *models.Job) error
	GetByJobID(ctx context.Context, tx *gorm.DB, jobID string) (models.Job, error)
	MarkCompleted(ctx context.Context, tx *gorm.DB, jobID string, outputPath string, downloadURL string) error
	MarkFailed(ctx context.Context, tx *gorm.DB, jobID string, errMsg string) error
	SetProgress(ctx context.Context, tx *gorm.DB, jobID string, progress int) error
}

// UploadProgressRepository tracks which chunk indices have arrived for a
// session. Backed by a redis set so progress survives process restarts and is
// shared across instances.
type UploadProgressRepository interface {
	AddChunk(ctx context.Context, uploadID string, chunkIndex int, expireSeconds int) error
	UploadedCount(ctx context.Context, uploadID string) (int64, error)
	Clear(ctx context.Context, uploadID string) error
}

// ChunkRepository stores raw chunk payloads keyed by (uploadID, index).
// Writes to distinct indices are independent; a repeated write for the same
// index overwrites. ListIndices reads the backing store directly so the set of
// stored chunks can be recovered after a crash-restart.
type ChunkRepository interface {
	Save(ctx context.Context, uploadID string, index int, r io.Reader) (int64, error)
	Open(ctx context.Context, uploadID string, index int) (io.ReadCloser, error)
	ListIndices(ctx context.Context, uploadID string) ([]int, error)
	DeleteAll(ctx context.Context, uploadID string) error
}

type Container struct {
	UploadSessions UploadSessionRepository
	Jobs           JobRepository
	UploadProgress UploadProgressRepository
	Chunks         ChunkRepository
}
