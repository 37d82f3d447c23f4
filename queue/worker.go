package queue

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"fileswift/config"
	"fileswift/logger"
	"fileswift/repositories"

	"github.com/hibiken/asynq"
)

// startedProgress is recorded as soon as a worker picks a job up, so polling
// clients can tell a queued job from a running one.
const startedProgress = 10

// ToolRunner executes one tool invocation. The real converters (ghostscript,
// qpdf, sharp-equivalents) live behind this interface; the worker only cares
// about an output path or an error.
type ToolRunner interface {
	Run(ctx context.Context, toolID string, inputPath string, outputDir string, data []byte) (string, error)
}

// CopyRunner is the built-in placeholder runner: it moves the assembled input
// into the outputs area unchanged. Multi-file direct uploads hand the worker a
// directory, so both file and directory inputs are supported. Deployments
// register real runners per tool.
type CopyRunner struct{}

func (CopyRunner) Run(_ context.Context, toolID string, inputPath string, outputDir string, _ []byte) (string, error) {
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return "", err
	}

	info, err := os.Stat(inputPath)
	if err != nil {
		return "", fmt.Errorf("stat input for %s: %w", toolID, err)
	}
	if info.IsDir() {
		return copyDir(inputPath, filepath.Join(outputDir, filepath.Base(inputPath)))
	}
	return copyFile(inputPath, filepath.Join(outputDir, filepath.Base(inputPath)))
}

func copyDir(srcDir string, dstDir string) (string, error) {
	entries, err := os.ReadDir(srcDir)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dstDir, 0o755); err != nil {
		return "", err
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if _, err := copyFile(filepath.Join(srcDir, entry.Name()), filepath.Join(dstDir, entry.Name())); err != nil {
			return "", err
		}
	}
	return dstDir, nil
}

func copyFile(src string, dst string) (string, error) {
	in, err := os.Open(src)
	if err != nil {
		return "", err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		_ = os.Remove(dst)
		return "", err
	}
	if err := out.Close(); err != nil {
		return "", err
	}
	return dst, nil
}

// Worker consumes tool:process tasks and records the terminal job state. It
// is the only component that mutates a job after submission.
type Worker struct {
	server    *asynq.Server
	jobs      repositories.JobRepository
	runner    ToolRunner
	outputDir string
}

func NewWorker(redisCfg *config.RedisConfig, queueCfg *config.QueueConfig, jobs repositories.JobRepository, runner ToolRunner, outputDir string) *Worker {
	redisOpt := asynq.RedisClientOpt{
		Addr:     fmt.Sprintf("%s:%d", redisCfg.Host, redisCfg.Port),
		Password: redisCfg.Password,
		DB:       redisCfg.DB,
	}

	srv := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: queueCfg.Concurrency,
		Queues:      map[string]int{queueCfg.QueueName: 1},
		RetryDelayFunc: func(n int, err error, task *asynq.Task) time.Duration {
			return time.Duration(1<<uint(n)) * time.Second
		},
	})

	return &Worker{server: srv, jobs: jobs, runner: runner, outputDir: outputDir}
}

func (w *Worker) Start() error {
	mux := asynq.NewServeMux()
	mux.HandleFunc(TypeToolProcess, w.HandleProcessTask)
	return w.server.Start(mux)
}

func (w *Worker) Shutdown() {
	w.server.Shutdown()
}

// HandleProcessTask runs the tool and writes the job's terminal status. A
// failed run marks the job failed rather than returning an error, so asynq
// does not retry a tool invocation the user can re-trigger themselves.
func (w *Worker) HandleProcessTask(ctx context.Context, task *asynq.Task) error {
	payload, err := UnmarshalProcessPayload(task.Payload())
	if err != nil {
		return fmt.Errorf("decode process payload: %w", err)
	}

	logger.Infof("processing job %s with tool %s", payload.JobID, payload.ToolID)

	if err := w.jobs.SetProgress(ctx, nil, payload.JobID, startedProgress); err != nil {
		logger.Warnf("job %s: failed to record start progress: %v", payload.JobID, err)
	}

	outPath, runErr := w.runner.Run(ctx, payload.ToolID, payload.InputPath, w.outputDir, payload.Data)
	if runErr != nil {
		logger.Warnf("job %s failed: %v", payload.JobID, runErr)
		if err := w.jobs.MarkFailed(ctx, nil, payload.JobID, runErr.Error()); err != nil {
			return fmt.Errorf("mark job %s failed: %w", payload.JobID, err)
		}
		return nil
	}

	downloadURL := "/api/jobs/" + payload.JobID + "/download"
	if err := w.jobs.MarkCompleted(ctx, nil, payload.JobID, outPath, downloadURL); err != nil {
		return fmt.Errorf("mark job %s completed: %w", payload.JobID, err)
	}

	// The assembled input belongs to the worker once submitted; drop it after
	// a successful run.
	_ = os.RemoveAll(payload.InputPath)
	return nil
}
