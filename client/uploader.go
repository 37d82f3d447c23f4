// Package client implements the uploader used by CLI tooling and smoke
// tests: it slices a file into chunks, drives the chunk endpoints with
// bounded jittered retries, completes the upload and polls the job to a
// terminal state.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

const (
	DefaultChunkSize      = 1 << 20
	DefaultMaxAttempts    = 3
	DefaultChunkThreshold = 8 << 20
	DefaultPollInterval   = time.Second
	DefaultPollTimeout    = 5 * time.Minute

	backoffBase   = time.Second
	backoffCap    = 30 * time.Second
	backoffJitter = 500 * time.Millisecond
)

var (
	// ErrCanceled reports a user-initiated abort, distinct from a timeout or
	// a server-side failure.
	ErrCanceled = errors.New("upload canceled")
	// ErrTimeout reports the client's own deadline expiring mid-request.
	ErrTimeout = errors.New("upload timed out")
	// ErrPollTimeout reports that the job never reached a terminal status
	// within the polling window. The server may still be processing.
	ErrPollTimeout = errors.New("job status polling timed out")
)

// StatusError is a non-retryable rejection reported by the server.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.Code, e.Message)
}

// JobError is a failure the worker recorded against the job, discovered via
// polling.
type JobError struct {
	JobID   string
	Message string
}

func (e *JobError) Error() string {
	return fmt.Sprintf("job %s failed: %s", e.JobID, e.Message)
}

type Progress struct {
	Loaded  int64   `json:"loaded"`
	Total   int64   `json:"total"`
	Percent float64 `json:"percent"`
}

type ProgressFunc func(Progress)

type JobStatus struct {
	JobID       string `json:"jobId"`
	Status      string `json:"status"`
	Progress    int    `json:"progress"`
	DownloadURL string `json:"downloadUrl"`
	Error       string `json:"error"`
}

type Uploader struct {
	BaseURL    string
	HTTPClient *http.Client

	ChunkSize      int64
	ChunkThreshold int64
	MaxAttempts    int
	PollInterval   time.Duration
	PollTimeout    time.Duration

	// BypassToken, when set, is sent so load-test traffic skips the rate
	// limiter.
	BypassToken string

	randFn func() int64
}

func NewUploader(baseURL string) *Uploader {
	return &Uploader{
		BaseURL:        baseURL,
		HTTPClient:     &http.Client{Timeout: 60 * time.Second},
		ChunkSize:      DefaultChunkSize,
		ChunkThreshold: DefaultChunkThreshold,
		MaxAttempts:    DefaultMaxAttempts,
		PollInterval:   DefaultPollInterval,
		PollTimeout:    DefaultPollTimeout,
	}
}

// BackoffDelay returns the sleep before retry attempt k (1-based):
// 1000*2^(k-1) ms capped at 30s, plus up to 500ms of jitter. The jitter keeps
// many clients from retrying in lockstep.
func (u *Uploader) BackoffDelay(attempt int) time.Duration {
	base := backoffBase << uint(attempt-1)
	if base > backoffCap || base <= 0 {
		base = backoffCap
	}
	jitter := time.Duration(u.randInt63()) % backoffJitter
	return base + jitter
}

func (u *Uploader) randInt63() int64 {
	if u.randFn != nil {
		return u.randFn()
	}
	return rand.Int63()
}

// Upload sends the file through the chunked or the direct path depending on
// size, then returns the submitted job id.
func (u *Uploader) Upload(ctx context.Context, path string, toolID string, data json.RawMessage, onProgress ProgressFunc) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", err
	}

	if info.Size() > u.ChunkThreshold {
		return u.uploadChunked(ctx, path, info.Size(), toolID, data, onProgress)
	}
	return u.uploadDirect(ctx, path, toolID, data, onProgress)
}

// UploadAndWait uploads and then polls the job until completed, failed, or
// the poll window elapses.
func (u *Uploader) UploadAndWait(ctx context.Context, path string, toolID string, data json.RawMessage, onProgress ProgressFunc) (JobStatus, error) {
	jobID, err := u.Upload(ctx, path, toolID, data, onProgress)
	if err != nil {
		return JobStatus{}, err
	}
	return u.WaitForJob(ctx, jobID)
}

func (u *Uploader) uploadChunked(ctx context.Context, path string, total int64, toolID string, data json.RawMessage, onProgress ProgressFunc) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer file.Close()

	uploadID := uuid.New().String()

	totalChunks := int((total + u.ChunkSize - 1) / u.ChunkSize)
	buf := make([]byte, u.ChunkSize)
	var loaded int64

	for index := 0; index < totalChunks; index++ {
		n, readErr := io.ReadFull(file, buf)
		if readErr != nil && readErr != io.ErrUnexpectedEOF && readErr != io.EOF {
			return "", readErr
		}

		if err := u.sendChunkWithRetry(ctx, uploadID, index, buf[:n]); err != nil {
			return "", err
		}

		loaded += int64(n)
		reportProgress(onProgress, loaded, total)
	}

	return u.complete(ctx, uploadID, toolID, filepath.Base(path), totalChunks, data)
}

func (u *Uploader) sendChunkWithRetry(ctx context.Context, uploadID string, index int, chunk []byte) error {
	var lastErr error
	for attempt := 1; attempt <= u.MaxAttempts; attempt++ {
		if attempt > 1 {
			if err := sleepCtx(ctx, u.BackoffDelay(attempt-1)); err != nil {
				return err
			}
		}

		err := u.sendChunk(ctx, uploadID, index, chunk)
		if err == nil {
			return nil
		}
		if !isRetryable(err) {
			return err
		}
		lastErr = err
	}
	return fmt.Errorf("chunk %d failed after %d attempts: %w", index, u.MaxAttempts, lastErr)
}

func (u *Uploader) sendChunk(ctx context.Context, uploadID string, index int, chunk []byte) error {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	_ = writer.WriteField("uploadId", uploadID)
	_ = writer.WriteField("index", fmt.Sprintf("%d", index))
	part, err := writer.CreateFormFile("file", fmt.Sprintf("chunk_%d", index))
	if err != nil {
		return err
	}
	if _, err := part.Write(chunk); err != nil {
		return err
	}
	if err := writer.Close(); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.BaseURL+"/api/upload/chunk", &body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	u.setBypass(req)

	resp, err := u.HTTPClient.Do(req)
	if err != nil {
		return classifyTransportErr(ctx, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return responseError(resp)
	}
	return nil
}

// ListChunks asks the server which indices it already holds, for resuming an
// interrupted upload.
func (u *Uploader) ListChunks(ctx context.Context, uploadID string) ([]int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.BaseURL+"/api/upload/"+uploadID+"/chunks", nil)
	if err != nil {
		return nil, err
	}
	u.setBypass(req)

	resp, err := u.HTTPClient.Do(req)
	if err != nil {
		return nil, classifyTransportErr(ctx, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, responseError(resp)
	}

	var out struct {
		Chunks []int `json:"chunks"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	return out.Chunks, nil
}

func (u *Uploader) complete(ctx context.Context, uploadID string, toolID string, filename string, totalChunks int, data json.RawMessage) (string, error) {
	payload, err := json.Marshal(map[string]interface{}{
		"uploadId":    uploadID,
		"toolId":      toolID,
		"filename":    filename,
		"totalChunks": totalChunks,
		"data":        data,
	})
	if err != nil {
		return "", err
	}

	var lastErr error
	for attempt := 1; attempt <= u.MaxAttempts; attempt++ {
		if attempt > 1 {
			if err := sleepCtx(ctx, u.BackoffDelay(attempt-1)); err != nil {
				return "", err
			}
		}

		jobID, err := u.postComplete(ctx, payload)
		if err == nil {
			return jobID, nil
		}
		if !isRetryable(err) {
			return "", err
		}
		lastErr = err
	}
	return "", fmt.Errorf("complete failed after %d attempts: %w", u.MaxAttempts, lastErr)
}

func (u *Uploader) postComplete(ctx context.Context, payload []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.BaseURL+"/api/upload/complete", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	u.setBypass(req)

	resp, err := u.HTTPClient.Do(req)
	if err != nil {
		return "", classifyTransportErr(ctx, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		return "", responseError(resp)
	}

	var out struct {
		JobID string `json:"jobId"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", err
	}
	return out.JobID, nil
}

func (u *Uploader) uploadDirect(ctx context.Context, path string, toolID string, data json.RawMessage, onProgress ProgressFunc) (string, error) {
	var lastErr error
	for attempt := 1; attempt <= u.MaxAttempts; attempt++ {
		if attempt > 1 {
			if err := sleepCtx(ctx, u.BackoffDelay(attempt-1)); err != nil {
				return "", err
			}
		}

		jobID, err := u.postDirect(ctx, path, toolID, data, onProgress)
		if err == nil {
			return jobID, nil
		}
		if !isRetryable(err) {
			return "", err
		}
		lastErr = err
	}
	return "", fmt.Errorf("direct upload failed after %d attempts: %w", u.MaxAttempts, lastErr)
}

func (u *Uploader) postDirect(ctx context.Context, path string, toolID string, data json.RawMessage, onProgress ProgressFunc) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return "", err
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	_ = writer.WriteField("toolId", toolID)
	if len(data) > 0 {
		_ = writer.WriteField("data", string(data))
	}
	part, err := writer.CreateFormFile("files", filepath.Base(path))
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(part, file); err != nil {
		return "", err
	}
	if err := writer.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.BaseURL+"/api/upload", &body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	u.setBypass(req)

	resp, err := u.HTTPClient.Do(req)
	if err != nil {
		return "", classifyTransportErr(ctx, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		return "", responseError(resp)
	}

	var out struct {
		JobID string `json:"jobId"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", err
	}
	reportProgress(onProgress, info.Size(), info.Size())
	return out.JobID, nil
}

// WaitForJob polls the status endpoint every PollInterval until the job is
// terminal. Exceeding PollTimeout returns ErrPollTimeout, distinct from a
// JobError the server reported.
func (u *Uploader) WaitForJob(ctx context.Context, jobID string) (JobStatus, error) {
	deadline := time.Now().Add(u.PollTimeout)

	for {
		status, err := u.getJobStatus(ctx, jobID)
		if err == nil {
			switch status.Status {
			case "completed":
				return status, nil
			case "failed":
				return status, &JobError{JobID: jobID, Message: status.Error}
			}
		} else if !isRetryable(err) {
			return JobStatus{}, err
		}

		if time.Now().After(deadline) {
			return JobStatus{}, ErrPollTimeout
		}
		if err := sleepCtx(ctx, u.PollInterval); err != nil {
			return JobStatus{}, err
		}
	}
}

func (u *Uploader) getJobStatus(ctx context.Context, jobID string) (JobStatus, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.BaseURL+"/api/jobs/"+jobID+"/status", nil)
	if err != nil {
		return JobStatus{}, err
	}
	u.setBypass(req)

	resp, err := u.HTTPClient.Do(req)
	if err != nil {
		return JobStatus{}, classifyTransportErr(ctx, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return JobStatus{}, responseError(resp)
	}

	var status JobStatus
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return JobStatus{}, err
	}
	status.JobID = jobID
	return status, nil
}

func (u *Uploader) setBypass(req *http.Request) {
	if u.BypassToken != "" {
		req.Header.Set("X-RateLimit-Bypass", u.BypassToken)
	}
}

func reportProgress(fn ProgressFunc, loaded, total int64) {
	if fn == nil {
		return
	}
	percent := 100.0
	if total > 0 {
		percent = float64(loaded) / float64(total) * 100
	}
	fn(Progress{Loaded: loaded, Total: total, Percent: percent})
}

// isRetryable: network errors, timeouts, 429 and 5xx are transient; any other
// 4xx is a client error and retrying is pointless.
func isRetryable(err error) bool {
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Code == http.StatusTooManyRequests || statusErr.Code >= 500
	}
	if errors.Is(err, ErrCanceled) || errors.Is(err, ErrTimeout) {
		return false
	}
	return true
}

func classifyTransportErr(ctx context.Context, err error) error {
	switch {
	case errors.Is(ctx.Err(), context.Canceled):
		return ErrCanceled
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return ErrTimeout
	default:
		return err
	}
}

func responseError(resp *http.Response) error {
	var body struct {
		Error string `json:"error"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&body)
	if body.Error == "" {
		body.Error = resp.Status
	}
	return &StatusError{Code: resp.StatusCode, Message: body.Error}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return ErrTimeout
		}
		return ErrCanceled
	case <-timer.C:
		return nil
	}
}
