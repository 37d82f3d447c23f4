package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"fileswift/config"
	"fileswift/database"
	"fileswift/handlers"
	"fileswift/logger"
	"fileswift/middleware"
	"fileswift/models"
	"fileswift/queue"
	"fileswift/repositories"
	"fileswift/services"

	"github.com/gin-gonic/gin"
)

func main() {
	log.Println("starting fileswift upload service")

	cfg, err := config.LoadConfig("config.yaml")
	if err != nil {
		log.Fatalf("load config failed: %v", err)
	}
	logger.SetLevel(cfg.Log.Level)

	if err := database.InitMySQL(&cfg.Database); err != nil {
		log.Fatalf("init mysql failed: %v", err)
	}

	database.DB.AutoMigrate(
		&models.UploadSession{},
		&models.Job{},
	)
	log.Println("database migration completed")

	if err := database.InitRedis(&cfg.Redis); err != nil {
		log.Fatalf("init redis failed: %v", err)
	}

	chunkRoot := filepath.Join(cfg.Storage.BasePath, "chunks")
	outputDir := filepath.Join(cfg.Storage.BasePath, "outputs")
	for _, dir := range []string{chunkRoot, filepath.Join(cfg.Storage.BasePath, "assembled"), outputDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			log.Fatalf("create %s failed: %v", dir, err)
		}
	}

	queueClient := queue.NewClient(&cfg.Redis, &cfg.Queue)
	defer queueClient.Close()

	repoContainer := repositories.NewGormRepositories(database.DB, database.RedisClient, chunkRoot).BuildContainer()
	serviceContainer := services.NewContainer(repoContainer, queueClient)
	handlers.SetServices(serviceContainer)

	ctx := context.Background()
	serviceContainer.Cleanup.Start(ctx)
	log.Println("cleanup workers started")

	if cfg.Queue.WorkerEnabled {
		worker := queue.NewWorker(&cfg.Redis, &cfg.Queue, repoContainer.Jobs, queue.CopyRunner{}, outputDir)
		if err := worker.Start(); err != nil {
			log.Fatalf("start queue worker failed: %v", err)
		}
		defer worker.Shutdown()
		log.Println("queue worker started")
	}

	r := gin.Default()
	r.Use(middleware.CORSMiddleware())
	r.Use(middleware.RequestLogger())
	setupRoutes(r)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	log.Printf("server listening on http://%s", addr)
	if err := r.Run(addr); err != nil {
		log.Fatalf("server start failed: %v", err)
	}
}

func setupRoutes(r *gin.Engine) {
	limiter := middleware.RateLimitMiddleware(
		middleware.NewRedisCounterStore(database.RedisClient),
		&config.AppConfig.RateLimit,
	)

	api := r.Group("/api")

	api.GET("/health/upload", handlers.UploadHealth)
	api.GET("/jobs/:jobId/status", handlers.GetJobStatus)

	upload := api.Group("/upload")
	upload.Use(limiter)
	{
		upload.POST("", handlers.DirectUpload)
		upload.POST("/init", handlers.InitUpload)
		upload.POST("/chunk", handlers.UploadChunk)
		upload.POST("/complete", handlers.CompleteUpload)
		upload.GET("/:uploadId/chunks", handlers.ListChunks)
	}

	// Legacy path kept for older web clients.
	r.POST("/upload", limiter, handlers.DirectUpload)
}
