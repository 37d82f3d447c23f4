package services

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"fileswift/models"
	"fileswift/queue"
	"fileswift/repositories"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// TaskEnqueuer is the producer side of the processing queue, satisfied by
// queue.Client.
type TaskEnqueuer interface {
	EnqueueProcess(ctx context.Context, payload queue.ProcessPayload) error
}

type SubmitJobInput struct {
	ToolID    string
	InputPath string
	FileName  string
	Data      json.RawMessage
}

type JobStatusOutput struct {
	JobID       string `json:"jobId"`
	Status      string `json:"status"`
	Progress    int    `json:"progress,omitempty"`
	DownloadURL string `json:"downloadUrl,omitempty"`
	Error       string `json:"error,omitempty"`
}

type JobService interface {
	Submit(ctx context.Context, in SubmitJobInput) (models.Job, error)
	GetStatus(ctx context.Context, jobID string) (JobStatusOutput, error)
}

type jobService struct {
	jobs     repositories.JobRepository
	enqueuer TaskEnqueuer
}

func NewJobService(jobs repositories.JobRepository, enqueuer TaskEnqueuer) JobService {
	return &jobService{jobs: jobs, enqueuer: enqueuer}
}

// Submit validates the tool id before any record or file work, creates the
// job in processing state and fires the task at the queue. It never waits for
// the worker; ownership of the assembled input transfers with the task.
func (s *jobService) Submit(ctx context.Context, in SubmitJobInput) (models.Job, error) {
	if !IsValidTool(in.ToolID) {
		return models.Job{}, newAppError(http.StatusBadRequest, "Invalid tool", nil)
	}

	job := models.Job{
		JobID:     uuid.New().String(),
		ToolID:    in.ToolID,
		FileName:  in.FileName,
		InputPath: in.InputPath,
		Status:    models.JobStatusProcessing,
		Data:      string(in.Data),
	}
	if err := s.jobs.Create(ctx, nil, &job); err != nil {
		return models.Job{}, newAppError(http.StatusInternalServerError, "Failed to create job", err)
	}

	err := s.enqueuer.EnqueueProcess(ctx, queue.ProcessPayload{
		JobID:     job.JobID,
		ToolID:    in.ToolID,
		InputPath: in.InputPath,
		FileName:  in.FileName,
		Data:      in.Data,
	})
	if err != nil {
		_ = s.jobs.MarkFailed(ctx, nil, job.JobID, "enqueue failed")
		return models.Job{}, newAppError(http.StatusInternalServerError, "Failed to enqueue job", err)
	}

	return job, nil
}

func (s *jobService) GetStatus(ctx context.Context, jobID string) (JobStatusOutput, error) {
	job, err := s.jobs.GetByJobID(ctx, nil, jobID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return JobStatusOutput{}, newAppError(http.StatusNotFound, "Job not found", nil)
		}
		return JobStatusOutput{}, newAppError(http.StatusInternalServerError, "Failed to load job", err)
	}

	out := JobStatusOutput{JobID: job.JobID, Status: job.Status}
	switch job.Status {
	case models.JobStatusCompleted:
		out.DownloadURL = job.DownloadURL
		out.Progress = 100
	case models.JobStatusFailed:
		out.Error = job.Error
	default:
		out.Progress = job.Progress
	}
	return out, nil
}
