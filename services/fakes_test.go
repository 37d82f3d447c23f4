package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"fileswift/config"
	"fileswift/models"
	"fileswift/queue"

	"gorm.io/gorm"
)

func setTestConfig(basePath string) {
	config.AppConfig = &config.Config{
		Storage: config.StorageConfig{
			BasePath:             basePath,
			ChunkSize:            1 << 20,
			MaxChunkSize:         4 << 20,
			ChunkUploadThreshold: 8 << 20,
			MaxFileSize:          100 << 20,
			SessionTTLHours:      24,
			CleanupInterval:      3600,
		},
		Redis: config.RedisConfig{ProgressExpire: 3600},
	}
}

type fakeSessionRepo struct {
	mu       sync.Mutex
	nextID   uint
	sessions map[string]models.UploadSession
}

func newFakeSessionRepo() *fakeSessionRepo {
	return &fakeSessionRepo{sessions: map[string]models.UploadSession{}}
}

func (r *fakeSessionRepo) Create(_ context.Context, _ *gorm.DB, session *models.UploadSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[session.UploadID]; ok {
		return errors.New("duplicate upload_id")
	}
	r.nextID++
	session.ID = r.nextID
	session.CreatedAt = time.Now()
	r.sessions[session.UploadID] = *session
	return nil
}

func (r *fakeSessionRepo) GetByUploadID(_ context.Context, _ *gorm.DB, uploadID string) (models.UploadSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	session, ok := r.sessions[uploadID]
	if !ok {
		return models.UploadSession{}, gorm.ErrRecordNotFound
	}
	return session, nil
}

func (r *fakeSessionRepo) UpdateByUploadID(_ context.Context, _ *gorm.DB, uploadID string, updates map[string]interface{}) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	session, ok := r.sessions[uploadID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	if v, ok := updates["status"].(string); ok {
		session.Status = v
	}
	if v, ok := updates["tool_id"].(string); ok {
		session.ToolID = v
	}
	if v, ok := updates["file_name"].(string); ok {
		session.FileName = v
	}
	if v, ok := updates["total_chunks"].(int); ok {
		session.TotalChunks = v
	}
	r.sessions[uploadID] = session
	return nil
}

func (r *fakeSessionRepo) DeleteByID(_ context.Context, _ *gorm.DB, id uint) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for uploadID, session := range r.sessions {
		if session.ID == id {
			delete(r.sessions, uploadID)
			return nil
		}
	}
	return gorm.ErrRecordNotFound
}

func (r *fakeSessionRepo) ListExpiredAndUncompleted(_ context.Context, _ *gorm.DB, now time.Time) ([]models.UploadSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.UploadSession
	for _, session := range r.sessions {
		if session.ExpiresAt.Before(now) && session.Status != models.UploadStatusCompleted {
			out = append(out, session)
		}
	}
	return out, nil
}

type fakeProgressRepo struct {
	mu     sync.Mutex
	chunks map[string]map[int]bool
}

func newFakeProgressRepo() *fakeProgressRepo {
	return &fakeProgressRepo{chunks: map[string]map[int]bool{}}
}

func (r *fakeProgressRepo) AddChunk(_ context.Context, uploadID string, chunkIndex int, _ int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.chunks[uploadID] == nil {
		r.chunks[uploadID] = map[int]bool{}
	}
	r.chunks[uploadID][chunkIndex] = true
	return nil
}

func (r *fakeProgressRepo) UploadedCount(_ context.Context, uploadID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return int64(len(r.chunks[uploadID])), nil
}

func (r *fakeProgressRepo) Clear(_ context.Context, uploadID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.chunks, uploadID)
	return nil
}

type fakeJobRepo struct {
	mu   sync.Mutex
	next uint
	jobs map[string]models.Job
}

func newFakeJobRepo() *fakeJobRepo {
	return &fakeJobRepo{jobs: map[string]models.Job{}}
}

func (r *fakeJobRepo) Create(_ context.Context, _ *gorm.DB, job *models.Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.next++
	job.ID = r.next
	job.CreatedAt = time.Now()
	r.jobs[job.JobID] = *job
	return nil
}

func (r *fakeJobRepo) GetByJobID(_ context.Context, _ *gorm.DB, jobID string) (models.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[jobID]
	if !ok {
		return models.Job{}, gorm.ErrRecordNotFound
	}
	return job, nil
}

func (r *fakeJobRepo) MarkCompleted(_ context.Context, _ *gorm.DB, jobID string, outputPath string, downloadURL string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[jobID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	job.Status = models.JobStatusCompleted
	job.OutputPath = outputPath
	job.DownloadURL = downloadURL
	job.Progress = 100
	r.jobs[jobID] = job
	return nil
}

func (r *fakeJobRepo) MarkFailed(_ context.Context, _ *gorm.DB, jobID string, errMsg string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[jobID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	job.Status = models.JobStatusFailed
	job.Error = errMsg
	r.jobs[jobID] = job
	return nil
}

func (r *fakeJobRepo) SetProgress(_ context.Context, _ *gorm.DB, jobID string, progress int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[jobID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	job.Progress = progress
	r.jobs[jobID] = job
	return nil
}

type fakeEnqueuer struct {
	mu       sync.Mutex
	payloads []queue.ProcessPayload
	err      error
}

func (e *fakeEnqueuer) EnqueueProcess(_ context.Context, payload queue.ProcessPayload) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.err != nil {
		return e.err
	}
	e.payloads = append(e.payloads, payload)
	return nil
}

func (e *fakeEnqueuer) enqueued() []queue.ProcessPayload {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]queue.ProcessPayload, len(e.payloads))
	copy(out, e.payloads)
	return out
}
