package services

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"fileswift/models"
)

func TestSubmitCreatesProcessingJobAndEnqueues(t *testing.T) {
	jobs := newFakeJobRepo()
	enqueuer := &fakeEnqueuer{}
	svc := NewJobService(jobs, enqueuer)

	data := json.RawMessage(`{"quality":80}`)
	job, err := svc.Submit(context.Background(), SubmitJobInput{
		ToolID:    "pdf-compress",
		InputPath: "/data/assembled/in.pdf",
		FileName:  "in.pdf",
		Data:      data,
	})
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if job.JobID == "" {
		t.Fatalf("expected a job id")
	}
	if job.Status != models.JobStatusProcessing {
		t.Fatalf("expected processing status, got %s", job.Status)
	}

	enqueued := enqueuer.enqueued()
	if len(enqueued) != 1 {
		t.Fatalf("expected 1 task, got %d", len(enqueued))
	}
	payload := enqueued[0]
	if payload.JobID != job.JobID || payload.ToolID != "pdf-compress" || payload.InputPath != "/data/assembled/in.pdf" {
		t.Fatalf("unexpected payload: %+v", payload)
	}
	if string(payload.Data) != `{"quality":80}` {
		t.Fatalf("data blob was not passed through untouched: %s", payload.Data)
	}
}

func TestSubmitRejectsUnknownToolBeforeAnyWork(t *testing.T) {
	jobs := newFakeJobRepo()
	enqueuer := &fakeEnqueuer{}
	svc := NewJobService(jobs, enqueuer)

	_, err := svc.Submit(context.Background(), SubmitJobInput{ToolID: "nope"})
	appErr, ok := err.(*AppError)
	if !ok || appErr.HTTPCode != 400 {
		t.Fatalf("expected Invalid tool 400, got %v", err)
	}
	if len(jobs.jobs) != 0 {
		t.Fatalf("expected no job record for invalid tool")
	}
	if len(enqueuer.enqueued()) != 0 {
		t.Fatalf("expected nothing enqueued for invalid tool")
	}
}

func TestSubmitMarksJobFailedWhenEnqueueFails(t *testing.T) {
	jobs := newFakeJobRepo()
	enqueuer := &fakeEnqueuer{err: errors.New("redis down")}
	svc := NewJobService(jobs, enqueuer)

	_, err := svc.Submit(context.Background(), SubmitJobInput{ToolID: "pdf-merge", InputPath: "/x"})
	if err == nil {
		t.Fatalf("expected error when enqueue fails")
	}
	for _, job := range jobs.jobs {
		if job.Status != models.JobStatusFailed {
			t.Fatalf("expected job marked failed, got %s", job.Status)
		}
	}
}

func TestGetStatusShapes(t *testing.T) {
	jobs := newFakeJobRepo()
	svc := NewJobService(jobs, &fakeEnqueuer{})
	ctx := context.Background()

	_ = jobs.Create(ctx, nil, &models.Job{JobID: "j-processing", Status: models.JobStatusProcessing, Progress: 40})
	_ = jobs.Create(ctx, nil, &models.Job{JobID: "j-done", Status: models.JobStatusCompleted, DownloadURL: "/api/jobs/j-done/download"})
	_ = jobs.Create(ctx, nil, &models.Job{JobID: "j-failed", Status: models.JobStatusFailed, Error: "ghostscript exited 1"})

	out, err := svc.GetStatus(ctx, "j-processing")
	if err != nil || out.Status != "processing" || out.Progress != 40 || out.DownloadURL != "" {
		t.Fatalf("unexpected processing status: %+v err=%v", out, err)
	}

	out, err = svc.GetStatus(ctx, "j-done")
	if err != nil || out.Status != "completed" || out.DownloadURL == "" || out.Error != "" {
		t.Fatalf("unexpected completed status: %+v err=%v", out, err)
	}

	out, err = svc.GetStatus(ctx, "j-failed")
	if err != nil || out.Status != "failed" || out.Error == "" || out.DownloadURL != "" {
		t.Fatalf("unexpected failed status: %+v err=%v", out, err)
	}

	if _, err := svc.GetStatus(ctx, "missing"); err == nil {
		t.Fatalf("expected 404 for unknown job")
	}
}
