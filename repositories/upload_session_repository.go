package repositories

import (
	"context"
	"time"

	"fileswift/models"

	"gorm.io/gorm"
)

type GormUploadSessionRepository struct {
	db *gorm.DB
}

func NewGormUploadSessionRepository(db *gorm.DB) *GormUploadSessionRepository {
	return &GormUploadSessionRepository{db: db}
}

func (r *GormUploadSessionRepository) Create(_ context.Context, tx *gorm.DB, session *models.UploadSession) error {
	return useTx(r.db, tx).Create(session).Error
}

func (r *GormUploadSessionRepository) GetByUploadID(_ context.Context, tx *gorm.DB, uploadID string) (models.UploadSession, error) {
	var session models.UploadSession
	err := useTx(r.db, tx).Where("upload_id = ?", uploadID).First(&session).Error
	return session, err
}

func (r *GormUploadSessionRepository) UpdateByUploadID(_ context.Context, tx *gorm.DB, uploadID string, updates map[string]interface{}) error {
	return useTx(r.db, tx).Model(&models.UploadSession{}).Where("upload_id = ?", uploadID).Updates(updates).Error
}

func (r *GormUploadSessionRepository) DeleteByID(_ context.Context, tx *gorm.DB, id uint) error {
	return useTx(r.db, tx).Delete(&models.UploadSession{}, id).Error
}

func (r *GormUploadSessionRepository) ListExpiredAndUncompleted(_ context.Context, tx *gorm.DB, now time.Time) ([]models.UploadSession, error) {
	var sessions []models.UploadSession
	err := useTx(r.db, tx).Where("expires_at < ? AND status != ?", now, models.UploadStatusCompleted).Find(&sessions).Error
	return sessions, err
}
