package services

import (
	"context"
	"time"

	"fileswift/config"
	"fileswift/logger"
	"fileswift/repositories"
)

// CleanupService reaps upload sessions that passed their TTL without ever
// completing, along with their chunks and progress set. It runs on a timer,
// never on the request path.
type CleanupService interface {
	SweepExpiredSessions(ctx context.Context) (int, error)
	Start(ctx context.Context)
}

type cleanupService struct {
	sessions repositories.UploadSessionRepository
	chunks   repositories.ChunkRepository
	progress repositories.UploadProgressRepository
}

func NewCleanupService(
	sessions repositories.UploadSessionRepository,
	chunks repositories.ChunkRepository,
	progress repositories.UploadProgressRepository,
) CleanupService {
	return &cleanupService{sessions: sessions, chunks: chunks, progress: progress}
}

func (s *cleanupService) Start(ctx context.Context) {
	interval := time.Duration(config.AppConfig.Storage.CleanupInterval) * time.Second
	if interval <= 0 {
		interval = time.Hour
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n, err := s.SweepExpiredSessions(ctx); err != nil {
					logger.Warnf("upload session sweep failed: %v", err)
				} else if n > 0 {
					logger.Infof("swept %d expired upload sessions", n)
				}
			}
		}
	}()
}

func (s *cleanupService) SweepExpiredSessions(ctx context.Context) (int, error) {
	sessions, err := s.sessions.ListExpiredAndUncompleted(ctx, nil, time.Now())
	if err != nil {
		return 0, err
	}

	swept := 0
	for _, session := range sessions {
		if err := s.chunks.DeleteAll(ctx, session.UploadID); err != nil {
			logger.Warnf("failed to remove chunks for %s: %v", session.UploadID, err)
			continue
		}
		_ = s.progress.Clear(ctx, session.UploadID)
		if err := s.sessions.DeleteByID(ctx, nil, session.ID); err != nil {
			logger.Warnf("failed to delete session %s: %v", session.UploadID, err)
			continue
		}
		logger.Debugf("expired upload session %s removed", session.UploadID)
		swept++
	}
	return swept, nil
}
