package services

import "fileswift/repositories"

type Container struct {
	Upload  UploadService
	Job     JobService
	Cleanup CleanupService
}

func NewContainer(repos repositories.Container, enqueuer TaskEnqueuer) *Container {
	jobService := NewJobService(repos.Jobs, enqueuer)
	return &Container{
		Upload:  NewUploadService(repos.UploadSessions, repos.Chunks, repos.UploadProgress, jobService),
		Job:     jobService,
		Cleanup: NewCleanupService(repos.UploadSessions, repos.Chunks, repos.UploadProgress),
	}
}
