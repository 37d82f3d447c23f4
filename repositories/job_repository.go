package repositories

import (
	"context"

	"fileswift/models"

	"gorm.io/gorm"
)

type GormJobRepository struct {
	db *gorm.DB
}

func NewGormJobRepository(db *gorm.DB) *GormJobRepository {
	return &GormJobRepository{db: db}
}

func (r *GormJobRepository) Create(_ context.Context, tx *gorm.DB, job *models.Job) error {
	return useTx(r.db, tx).Create(job).Error
}

func (r *GormJobRepository) GetByJobID(_ context.Context, tx *gorm.DB, jobID string) (models.Job, error) {
	var job models.Job
	err := useTx(r.db, tx).Where("job_id = ?", jobID).First(&job).Error
	return job, err
}

func (r *GormJobRepository) MarkCompleted(_ context.Context, tx *gorm.DB, jobID string, outputPath string, downloadURL string) error {
	return useTx(r.db, tx).Model(&models.Job{}).Where("job_id = ?", jobID).Updates(map[string]interface{}{
		"status":       models.JobStatusCompleted,
		"output_path":  outputPath,
		"download_url": downloadURL,
		"progress":     100,
	}).Error
}

func (r *GormJobRepository) MarkFailed(_ context.Context, tx *gorm.DB, jobID string, errMsg string) error {
	return useTx(r.db, tx).Model(&models.Job{}).Where("job_id = ?", jobID).Updates(map[string]interface{}{
		"status": models.JobStatusFailed,
		"error":  errMsg,
	}).Error
}

func (r *GormJobRepository) SetProgress(_ context.Context, tx *gorm.DB, jobID string, progress int) error {
	return useTx(r.db, tx).Model(&models.Job{}).Where("job_id = ?", jobID).Update("progress", progress).Error
}
