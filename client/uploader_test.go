package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"
	"testing"
	"time"
)

func writeTempFile(t *testing.T, size int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "input.pdf")
	data := make([]byte, size)
	for i := range data {
		data[i] = byte(i % 251)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	return path
}

func testUploader(baseURL string) *Uploader {
	u := NewUploader(baseURL)
	u.ChunkSize = 1024
	u.ChunkThreshold = 4096
	u.PollInterval = time.Millisecond
	u.PollTimeout = 100 * time.Millisecond
	u.randFn = func() int64 { return 0 }
	return u
}

// fakeServer records chunk uploads and serves the complete/status endpoints.
type fakeServer struct {
	mu         sync.Mutex
	chunks     map[string]map[int][]byte
	completed  int
	jobStatus  JobStatus
	chunkFails int
}

func (s *fakeServer) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/upload/chunk", func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.chunkFails > 0 {
			s.chunkFails--
			http.Error(w, `{"error":"try later"}`, http.StatusServiceUnavailable)
			return
		}
		if err := r.ParseMultipartForm(10 << 20); err != nil {
			http.Error(w, `{"error":"bad form"}`, http.StatusBadRequest)
			return
		}
		uploadID := r.FormValue("uploadId")
		index, _ := strconv.Atoi(r.FormValue("index"))
		file, _, err := r.FormFile("file")
		if err != nil {
			http.Error(w, `{"error":"missing file"}`, http.StatusBadRequest)
			return
		}
		defer file.Close()
		buf := make([]byte, 4096)
		n, _ := file.Read(buf)
		if s.chunks == nil {
			s.chunks = map[string]map[int][]byte{}
		}
		if s.chunks[uploadID] == nil {
			s.chunks[uploadID] = map[int][]byte{}
		}
		s.chunks[uploadID][index] = append([]byte(nil), buf[:n]...)
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/api/upload/complete", func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.completed++
		w.WriteHeader(http.StatusAccepted)
		_ = json.NewEncoder(w).Encode(map[string]string{"jobId": "job-123"})
	})
	mux.HandleFunc("/api/upload", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
		_ = json.NewEncoder(w).Encode(map[string]string{"uploadId": "direct-1", "jobId": "job-direct"})
	})
	mux.HandleFunc("/api/jobs/", func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		status := s.jobStatus
		s.mu.Unlock()
		_ = json.NewEncoder(w).Encode(status)
	})
	return mux
}

func TestBackoffDelayBounds(t *testing.T) {
	u := NewUploader("http://localhost:8080")

	fixed := []int64{0, 250 * int64(time.Millisecond), 499 * int64(time.Millisecond)}
	for _, j := range fixed {
		jitter := j
		u.randFn = func() int64 { return jitter }
		for attempt := 1; attempt <= 10; attempt++ {
			d := u.BackoffDelay(attempt)
			want := time.Second << uint(attempt-1)
			if want > 30*time.Second {
				want = 30 * time.Second
			}
			if d < want || d >= want+500*time.Millisecond {
				t.Fatalf("attempt %d jitter %d: delay %v out of [%v, %v)", attempt, jitter, d, want, want+500*time.Millisecond)
			}
		}
	}

	// Far past the cap the base must stay pinned at 30s.
	u.randFn = func() int64 { return 0 }
	if d := u.BackoffDelay(40); d != 30*time.Second {
		t.Fatalf("expected capped 30s, got %v", d)
	}
}

func TestUploadChunkedRoundTrip(t *testing.T) {
	srv := &fakeServer{jobStatus: JobStatus{Status: "completed", DownloadURL: "/api/jobs/job-123/download"}}
	ts := httptest.NewServer(srv.handler())
	defer ts.Close()

	path := writeTempFile(t, 5*1024+17)
	u := testUploader(ts.URL)

	var reports []Progress
	jobID, err := u.Upload(context.Background(), path, "pdf-compress", nil, func(p Progress) {
		reports = append(reports, p)
	})
	if err != nil {
		t.Fatalf("upload failed: %v", err)
	}
	if jobID != "job-123" {
		t.Fatalf("expected job-123, got %q", jobID)
	}

	srv.mu.Lock()
	defer srv.mu.Unlock()
	if len(srv.chunks) != 1 {
		t.Fatalf("expected one upload session, got %d", len(srv.chunks))
	}
	for _, byIndex := range srv.chunks {
		indices := make([]int, 0, len(byIndex))
		var got int
		for idx, b := range byIndex {
			indices = append(indices, idx)
			got += len(b)
		}
		sort.Ints(indices)
		if len(indices) != 6 || indices[0] != 0 || indices[5] != 5 {
			t.Fatalf("expected indices 0..5, got %v", indices)
		}
		if got != 5*1024+17 {
			t.Fatalf("expected %d bytes across chunks, got %d", 5*1024+17, got)
		}
	}
	if len(reports) == 0 || reports[len(reports)-1].Percent != 100 {
		t.Fatalf("expected progress reaching 100%%, got %+v", reports)
	}
}

func TestUploadDirectBelowThreshold(t *testing.T) {
	srv := &fakeServer{}
	ts := httptest.NewServer(srv.handler())
	defer ts.Close()

	path := writeTempFile(t, 512)
	u := testUploader(ts.URL)

	jobID, err := u.Upload(context.Background(), path, "image-resize", json.RawMessage(`{"width":200}`), nil)
	if err != nil {
		t.Fatalf("direct upload failed: %v", err)
	}
	if jobID != "job-direct" {
		t.Fatalf("expected job-direct, got %q", jobID)
	}
	srv.mu.Lock()
	defer srv.mu.Unlock()
	if len(srv.chunks) != 0 {
		t.Fatalf("small file must not go through the chunk path")
	}
}

func TestChunkRetryOnServerError(t *testing.T) {
	srv := &fakeServer{chunkFails: 2}
	ts := httptest.NewServer(srv.handler())
	defer ts.Close()

	path := writeTempFile(t, 5*1024)
	u := testUploader(ts.URL)
	u.randFn = func() int64 { return 0 }
	u.MaxAttempts = 3

	done := make(chan error, 1)
	go func() {
		_, err := u.Upload(context.Background(), path, "pdf-compress", nil, nil)
		done <- err
	}()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("upload should survive transient 503s: %v", err)
		}
	case <-time.After(20 * time.Second):
		t.Fatalf("upload did not finish")
	}
}

func TestNoRetryOnClientError(t *testing.T) {
	var hits int
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		http.Error(w, `{"error":"Invalid tool"}`, http.StatusBadRequest)
	}))
	defer ts.Close()

	path := writeTempFile(t, 512)
	u := testUploader(ts.URL)

	_, err := u.Upload(context.Background(), path, "nope", nil, nil)
	var statusErr *StatusError
	if !errors.As(err, &statusErr) || statusErr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 StatusError, got %v", err)
	}
	if statusErr.Message != "Invalid tool" {
		t.Fatalf("expected server error message surfaced, got %q", statusErr.Message)
	}
	if hits != 1 {
		t.Fatalf("4xx must not be retried, saw %d requests", hits)
	}
}

func TestUploadCanceledMidFlight(t *testing.T) {
	started := make(chan struct{})
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Drain the body so the server's background read can observe the
		// client disconnect and cancel r.Context().
		_, _ = io.Copy(io.Discard, r.Body)
		close(started)
		<-r.Context().Done()
	}))
	defer ts.Close()

	path := writeTempFile(t, 512)
	u := testUploader(ts.URL)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-started
		cancel()
	}()

	_, err := u.Upload(ctx, path, "pdf-compress", nil, nil)
	if !errors.Is(err, ErrCanceled) {
		t.Fatalf("expected ErrCanceled, got %v", err)
	}
}

func TestWaitForJobOutcomes(t *testing.T) {
	srv := &fakeServer{jobStatus: JobStatus{Status: "processing", Progress: 10}}
	ts := httptest.NewServer(srv.handler())
	defer ts.Close()

	u := testUploader(ts.URL)

	// Never leaves processing: the poll window elapses.
	if _, err := u.WaitForJob(context.Background(), "job-9"); !errors.Is(err, ErrPollTimeout) {
		t.Fatalf("expected ErrPollTimeout, got %v", err)
	}

	srv.mu.Lock()
	srv.jobStatus = JobStatus{Status: "failed", Error: "ghostscript exited 1"}
	srv.mu.Unlock()
	_, err := u.WaitForJob(context.Background(), "job-9")
	var jobErr *JobError
	if !errors.As(err, &jobErr) || jobErr.Message != "ghostscript exited 1" {
		t.Fatalf("expected JobError with tool message, got %v", err)
	}

	srv.mu.Lock()
	srv.jobStatus = JobStatus{Status: "completed", Progress: 100, DownloadURL: "/api/jobs/job-9/download"}
	srv.mu.Unlock()
	status, err := u.WaitForJob(context.Background(), "job-9")
	if err != nil || status.DownloadURL == "" {
		t.Fatalf("expected completed status with download url, got %+v err=%v", status, err)
	}
}

func TestListChunksForResume(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/upload/u-1/chunks" {
			http.NotFound(w, r)
			return
		}
		fmt.Fprint(w, `{"chunks":[0,2,5]}`)
	}))
	defer ts.Close()

	u := testUploader(ts.URL)
	chunks, err := u.ListChunks(context.Background(), "u-1")
	if err != nil {
		t.Fatalf("list chunks failed: %v", err)
	}
	sort.Ints(chunks)
	if len(chunks) != 3 || chunks[0] != 0 || chunks[1] != 2 || chunks[2] != 5 {
		t.Fatalf("unexpected chunk list %v", chunks)
	}
}

func TestBypassTokenHeaderSent(t *testing.T) {
	var gotToken string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotToken = r.Header.Get("X-RateLimit-Bypass")
		_ = json.NewEncoder(w).Encode(map[string]string{"jobId": "j"})
	}))
	defer ts.Close()

	path := writeTempFile(t, 128)
	u := testUploader(ts.URL)
	u.BypassToken = "loadtest"

	if _, err := u.Upload(context.Background(), path, "pdf-compress", nil, nil); err != nil {
		t.Fatalf("upload failed: %v", err)
	}
	if gotToken != "loadtest" {
		t.Fatalf("expected bypass header on requests, got %q", gotToken)
	}
}
