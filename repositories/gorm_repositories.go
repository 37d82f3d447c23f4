package repositories

import (
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

type GormRepositories struct {
	db        *gorm.DB
	redis     *redis.Client
	chunkRoot string
}

func NewGormRepositories(db *gorm.DB, redisClient *redis.Client, chunkRoot string) *GormRepositories {
	return &GormRepositories{db: db, redis: redisClient, chunkRoot: chunkRoot}
}

func (r *GormRepositories) BuildContainer() Container {
	return Container{
		UploadSessions: NewGormUploadSessionRepository(r.db),
		Jobs:           NewGormJobRepository(r.db),
		UploadProgress: NewRedisUploadProgressRepository(r.redis),
		Chunks:         NewDiskChunkRepository(r.chunkRoot),
	}
}

func useTx(db *gorm.DB, tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return db
}
