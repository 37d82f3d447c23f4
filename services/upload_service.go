package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"fileswift/config"
	"fileswift/models"
	"fileswift/repositories"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type InitUploadInput struct {
	UploadID string
	ToolID   string
	FileName string
	FileSize int64
}

type InitUploadOutput struct {
	UploadID string `json:"uploadId"`
	// ChunkSize and ChunkThreshold are advertised so clients slice files the
	// way the server expects.
	ChunkSize      int64 `json:"chunkSize"`
	ChunkThreshold int64 `json:"chunkThreshold"`
}

type RecordChunkOutput struct {
	ChunkIndex     int   `json:"chunkIndex"`
	UploadedChunks int64 `json:"uploadedChunks"`
}

type ListChunksOutput struct {
	UploadID string `json:"uploadId"`
	Chunks   []int  `json:"chunks"`
	FileName string `json:"fileName,omitempty"`
}

type CompleteUploadInput struct {
	UploadID    string
	ToolID      string
	FileName    string
	TotalChunks int
	Data        json.RawMessage
}

type DirectUploadInput struct {
	ToolID string
	Files  []*multipart.FileHeader
	Data   json.RawMessage
}

type DirectUploadOutput struct {
	UploadID string `json:"uploadId"`
	JobID    string `json:"jobId"`
}

type UploadService interface {
	InitSession(ctx context.Context, in InitUploadInput) (InitUploadOutput, error)
	RecordChunk(ctx context.Context, uploadID string, index int, chunk io.Reader) (RecordChunkOutput, error)
	ListChunks(ctx context.Context, uploadID string) (ListChunksOutput, error)
	CompleteUpload(ctx context.Context, in CompleteUploadInput) (models.Job, error)
	DirectUpload(ctx context.Context, in DirectUploadInput) (DirectUploadOutput, error)
}

type uploadService struct {
	sessions repositories.UploadSessionRepository
	chunks   repositories.ChunkRepository
	progress repositories.UploadProgressRepository
	jobs     JobService

	// assembling guards completion per uploadId: at most one assembly runs
	// for a given upload, a second concurrent call is rejected.
	assembling sync.Map
}

func NewUploadService(
	sessions repositories.UploadSessionRepository,
	chunks repositories.ChunkRepository,
	progress repositories.UploadProgressRepository,
	jobs JobService,
) UploadService {
	return &uploadService{
		sessions: sessions,
		chunks:   chunks,
		progress: progress,
		jobs:     jobs,
	}
}

func sessionTTL() time.Duration {
	return time.Duration(config.AppConfig.Storage.SessionTTLHours) * time.Hour
}

func (s *uploadService) InitSession(ctx context.Context, in InitUploadInput) (InitUploadOutput, error) {
	if in.ToolID != "" && !IsValidTool(in.ToolID) {
		return InitUploadOutput{}, newAppError(http.StatusBadRequest, "Invalid tool", nil)
	}

	uploadID := in.UploadID
	if uploadID == "" {
		uploadID = uuid.New().String()
	}

	session := models.UploadSession{
		UploadID:     uploadID,
		ToolID:       in.ToolID,
		FileName:     sanitizeFilename(in.FileName),
		DeclaredSize: in.FileSize,
		Status:       models.UploadStatusUploading,
		ExpiresAt:    time.Now().Add(sessionTTL()),
	}
	if err := s.sessions.Create(ctx, nil, &session); err != nil {
		return InitUploadOutput{}, newAppError(http.StatusInternalServerError, "Failed to create upload session", err)
	}

	return InitUploadOutput{
		UploadID:       uploadID,
		ChunkSize:      config.AppConfig.Storage.ChunkSize,
		ChunkThreshold: config.AppConfig.Storage.ChunkUploadThreshold,
	}, nil
}

// RecordChunk stores one chunk and upserts the session row. Sessions are
// created lazily on the first chunk when the client skipped the init call.
// Arrival order is unconstrained; a repeated index overwrites.
func (s *uploadService) RecordChunk(ctx context.Context, uploadID string, index int, chunk io.Reader) (RecordChunkOutput, error) {
	if uploadID == "" {
		return RecordChunkOutput{}, newAppError(http.StatusBadRequest, "Missing uploadId", nil)
	}
	if index < 0 {
		return RecordChunkOutput{}, newAppError(http.StatusBadRequest, "Invalid chunk index", nil)
	}

	_, err := s.sessions.GetByUploadID(ctx, nil, uploadID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		session := models.UploadSession{
			UploadID:  uploadID,
			Status:    models.UploadStatusUploading,
			ExpiresAt: time.Now().Add(sessionTTL()),
		}
		if createErr := s.sessions.Create(ctx, nil, &session); createErr != nil {
			// A concurrent first chunk may have inserted the session between
			// the lookup and the create; only fail if it truly does not exist.
			if _, getErr := s.sessions.GetByUploadID(ctx, nil, uploadID); getErr != nil {
				return RecordChunkOutput{}, newAppError(http.StatusInternalServerError, "Failed to create upload session", createErr)
			}
		}
	} else if err != nil {
		return RecordChunkOutput{}, newAppError(http.StatusInternalServerError, "Failed to load upload session", err)
	}

	if _, err := s.chunks.Save(ctx, uploadID, index, chunk); err != nil {
		return RecordChunkOutput{}, newAppError(http.StatusInternalServerError, "Failed to store chunk", err)
	}

	if err := s.progress.AddChunk(ctx, uploadID, index, config.AppConfig.Redis.ProgressExpire); err != nil {
		return RecordChunkOutput{}, newAppError(http.StatusInternalServerError, "Failed to record chunk progress", err)
	}

	count, err := s.progress.UploadedCount(ctx, uploadID)
	if err != nil {
		return RecordChunkOutput{}, newAppError(http.StatusInternalServerError, "Failed to read chunk progress", err)
	}

	return RecordChunkOutput{ChunkIndex: index, UploadedChunks: count}, nil
}

// ListChunks reports the sorted indices currently on disk, read from the
// chunk store itself so a resumed client sees the truth even after a restart.
func (s *uploadService) ListChunks(ctx context.Context, uploadID string) (ListChunksOutput, error) {
	indices, err := s.chunks.ListIndices(ctx, uploadID)
	if err != nil {
		return ListChunksOutput{}, newAppError(http.StatusInternalServerError, "Failed to list chunks", err)
	}
	sort.Ints(indices)

	out := ListChunksOutput{UploadID: uploadID, Chunks: indices}
	if session, err := s.sessions.GetByUploadID(ctx, nil, uploadID); err == nil {
		out.FileName = session.FileName
	}
	return out, nil
}

// missingIndices computes {0..total-1} minus the stored set. Gap checking is
// deliberate: a matching count with the wrong indices present is a distinct
// failure from "too few chunks" and must not assemble.
func missingIndices(total int, stored []int) []int {
	present := make(map[int]bool, len(stored))
	for _, idx := range stored {
		present[idx] = true
	}
	missing := make([]int, 0)
	for i := 0; i < total; i++ {
		if !present[i] {
			missing = append(missing, i)
		}
	}
	return missing
}

func (s *uploadService) CompleteUpload(ctx context.Context, in CompleteUploadInput) (models.Job, error) {
	// Cheap validations first: nothing below touches the disk until the
	// request is known to be well-formed.
	if !IsValidTool(in.ToolID) {
		return models.Job{}, newAppError(http.StatusBadRequest, "Invalid tool", nil)
	}
	if in.TotalChunks <= 0 {
		return models.Job{}, newAppError(http.StatusBadRequest, "Invalid totalChunks", nil)
	}
	if len(in.Data) > 0 && !json.Valid(in.Data) {
		return models.Job{}, newAppError(http.StatusBadRequest, "Invalid data payload", nil)
	}

	if _, loaded := s.assembling.LoadOrStore(in.UploadID, struct{}{}); loaded {
		return models.Job{}, newAppError(http.StatusConflict, "Assembly already in progress", nil)
	}
	defer s.assembling.Delete(in.UploadID)

	session, err := s.sessions.GetByUploadID(ctx, nil, in.UploadID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Job{}, newAppError(http.StatusNotFound, "Upload session not found", nil)
		}
		return models.Job{}, newAppError(http.StatusInternalServerError, "Failed to load upload session", err)
	}

	stored, err := s.chunks.ListIndices(ctx, in.UploadID)
	if err != nil {
		return models.Job{}, newAppError(http.StatusInternalServerError, "Failed to list chunks", err)
	}
	if missing := missingIndices(in.TotalChunks, stored); len(missing) > 0 {
		return models.Job{}, newAppErrorWithData(http.StatusBadRequest, "Upload incomplete",
			map[string]interface{}{"missing": missing}, nil)
	}

	_ = s.sessions.UpdateByUploadID(ctx, nil, in.UploadID, map[string]interface{}{
		"status":       models.UploadStatusAssembling,
		"tool_id":      in.ToolID,
		"file_name":    sanitizeFilename(in.FileName),
		"total_chunks": in.TotalChunks,
	})

	assembledPath, err := s.assemble(ctx, in.UploadID, in.TotalChunks, in.FileName)
	if err != nil {
		// Chunks are retained so the client can retry completion without
		// re-uploading anything.
		_ = s.sessions.UpdateByUploadID(ctx, nil, in.UploadID, map[string]interface{}{
			"status": models.UploadStatusUploading,
		})
		return models.Job{}, newAppError(http.StatusInternalServerError, "Merge failed", err)
	}

	job, err := s.jobs.Submit(ctx, SubmitJobInput{
		ToolID:    in.ToolID,
		InputPath: assembledPath,
		FileName:  sanitizeFilename(in.FileName),
		Data:      in.Data,
	})
	if err != nil {
		_ = os.Remove(assembledPath)
		_ = s.sessions.UpdateByUploadID(ctx, nil, in.UploadID, map[string]interface{}{
			"status": models.UploadStatusUploading,
		})
		return models.Job{}, err
	}

	// Cleanup is unconditional once assembly and submission succeeded.
	_ = s.chunks.DeleteAll(ctx, in.UploadID)
	_ = s.progress.Clear(ctx, in.UploadID)
	if session.ID != 0 {
		_ = s.sessions.DeleteByID(ctx, nil, session.ID)
	}

	return job, nil
}

// assemble concatenates chunks in strict ascending index order. Out-of-order
// network arrival must never become out-of-order bytes on disk.
func (s *uploadService) assemble(ctx context.Context, uploadID string, totalChunks int, fileName string) (string, error) {
	destDir := filepath.Join(config.AppConfig.Storage.BasePath, "assembled")
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return "", err
	}

	destPath := filepath.Join(destDir, uuid.New().String()+"_"+sanitizeFilename(fileName))
	dest, err := os.Create(destPath)
	if err != nil {
		return "", err
	}

	for i := 0; i < totalChunks; i++ {
		chunk, err := s.chunks.Open(ctx, uploadID, i)
		if err != nil {
			dest.Close()
			_ = os.Remove(destPath)
			return "", fmt.Errorf("read chunk %d: %w", i, err)
		}
		if _, err := io.Copy(dest, chunk); err != nil {
			chunk.Close()
			dest.Close()
			_ = os.Remove(destPath)
			return "", fmt.Errorf("write chunk %d: %w", i, err)
		}
		_ = chunk.Close()
	}

	if err := dest.Close(); err != nil {
		_ = os.Remove(destPath)
		return "", err
	}
	return destPath, nil
}

// DirectUpload handles the single-request path for small payloads: the files
// land straight in the assembled area and the job is submitted immediately.
func (s *uploadService) DirectUpload(ctx context.Context, in DirectUploadInput) (DirectUploadOutput, error) {
	if !IsValidTool(in.ToolID) {
		return DirectUploadOutput{}, newAppError(http.StatusBadRequest, "Invalid tool", nil)
	}
	if len(in.Files) == 0 {
		return DirectUploadOutput{}, newAppError(http.StatusBadRequest, "No files provided", nil)
	}
	if len(in.Data) > 0 && !json.Valid(in.Data) {
		return DirectUploadOutput{}, newAppError(http.StatusBadRequest, "Invalid data payload", nil)
	}
	for _, header := range in.Files {
		if header.Size > config.AppConfig.Storage.MaxFileSize {
			return DirectUploadOutput{}, newAppError(http.StatusBadRequest, "File too large", nil)
		}
	}

	uploadID := uuid.New().String()
	destDir := filepath.Join(config.AppConfig.Storage.BasePath, "assembled")
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return DirectUploadOutput{}, newAppError(http.StatusInternalServerError, "Failed to create storage directory", err)
	}

	inputPath := ""
	if len(in.Files) > 1 {
		inputPath = filepath.Join(destDir, uploadID)
		if err := os.MkdirAll(inputPath, 0o755); err != nil {
			return DirectUploadOutput{}, newAppError(http.StatusInternalServerError, "Failed to create storage directory", err)
		}
	}

	var firstPath string
	for _, header := range in.Files {
		name := sanitizeFilename(header.Filename)
		var destPath string
		if len(in.Files) > 1 {
			destPath = filepath.Join(inputPath, name)
		} else {
			destPath = filepath.Join(destDir, uploadID+"_"+name)
		}
		if err := saveMultipartFile(header, destPath); err != nil {
			// Files saved before the failure must not linger in the
			// assembled area.
			if len(in.Files) > 1 {
				_ = os.RemoveAll(inputPath)
			}
			return DirectUploadOutput{}, newAppError(http.StatusInternalServerError, "Failed to save file", err)
		}
		if firstPath == "" {
			firstPath = destPath
		}
	}
	if len(in.Files) == 1 {
		inputPath = firstPath
	}

	job, err := s.jobs.Submit(ctx, SubmitJobInput{
		ToolID:    in.ToolID,
		InputPath: inputPath,
		FileName:  sanitizeFilename(in.Files[0].Filename),
		Data:      in.Data,
	})
	if err != nil {
		_ = os.RemoveAll(inputPath)
		return DirectUploadOutput{}, err
	}

	return DirectUploadOutput{UploadID: uploadID, JobID: job.JobID}, nil
}

func saveMultipartFile(header *multipart.FileHeader, destPath string) error {
	src, err := header.Open()
	if err != nil {
		return err
	}
	defer src.Close()

	dst, err := os.Create(destPath)
	if err != nil {
		return err
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		_ = os.Remove(destPath)
		return err
	}
	return dst.Close()
}
