package config

import (
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Storage   StorageConfig   `yaml:"storage"`
	Redis     RedisConfig     `yaml:"redis"`
	Queue     QueueConfig     `yaml:"queue"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Log       LogConfig       `yaml:"log"`
}

type ServerConfig struct {
	Port int    `yaml:"port"`
	Host string `yaml:"host"`
}

type DatabaseConfig struct {
	Host         string `yaml:"host"`
	Port         int    `yaml:"port"`
	Username     string `yaml:"username"`
	Password     string `yaml:"password"`
	Database     string `yaml:"database"`
	Charset      string `yaml:"charset"`
	MaxIdleConns int    `yaml:"max_idle_conns"`
	MaxOpenConns int    `yaml:"max_open_conns"`
}

type StorageConfig struct {
	BasePath             string `yaml:"base_path"`
	MaxFileSize          int64  `yaml:"max_file_size"`
	MaxChunkSize         int64  `yaml:"max_chunk_size"`
	ChunkSize            int64  `yaml:"chunk_size"`
	ChunkUploadThreshold int64  `yaml:"chunk_upload_threshold"`
	SessionTTLHours      int    `yaml:"session_ttl_hours"`
	CleanupInterval      int    `yaml:"cleanup_interval"`
}

type RedisConfig struct {
	Host           string `yaml:"host"`
	Port           int    `yaml:"port"`
	Password       string `yaml:"password"`
	DB             int    `yaml:"db"`
	ProgressExpire int    `yaml:"progress_expire"`
}

type QueueConfig struct {
	WorkerEnabled bool   `yaml:"worker_enabled"`
	Concurrency   int    `yaml:"concurrency"`
	QueueName     string `yaml:"queue_name"`
	MaxRetries    int    `yaml:"max_retries"`
}

type RateLimitConfig struct {
	Enabled       bool   `yaml:"enabled"`
	WindowSeconds int    `yaml:"window_seconds"`
	MaxRequests   int64  `yaml:"max_requests"`
	DevMax        int64  `yaml:"dev_max_requests"`
	BypassToken   string `yaml:"bypass_token"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

var AppConfig *Config

func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	applyDefaults(&cfg)
	applyEnvOverrides(&cfg)

	AppConfig = &cfg
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Storage.BasePath == "" {
		cfg.Storage.BasePath = "./data"
	}
	if cfg.Storage.ChunkSize == 0 {
		cfg.Storage.ChunkSize = 1 << 20
	}
	if cfg.Storage.MaxChunkSize == 0 {
		cfg.Storage.MaxChunkSize = 4 << 20
	}
	if cfg.Storage.ChunkUploadThreshold == 0 {
		cfg.Storage.ChunkUploadThreshold = 8 << 20
	}
	if cfg.Storage.SessionTTLHours == 0 {
		cfg.Storage.SessionTTLHours = 24
	}
	if cfg.Storage.CleanupInterval == 0 {
		cfg.Storage.CleanupInterval = 3600
	}
	if cfg.Redis.ProgressExpire == 0 {
		cfg.Redis.ProgressExpire = cfg.Storage.SessionTTLHours * 3600
	}
	if cfg.Queue.Concurrency == 0 {
		cfg.Queue.Concurrency = 4
	}
	if cfg.Queue.QueueName == "" {
		cfg.Queue.QueueName = "default"
	}
	if cfg.Queue.MaxRetries == 0 {
		cfg.Queue.MaxRetries = 3
	}
	if cfg.RateLimit.WindowSeconds == 0 {
		cfg.RateLimit.WindowSeconds = 60
	}
	if cfg.RateLimit.MaxRequests == 0 {
		cfg.RateLimit.MaxRequests = 30
	}
	if cfg.RateLimit.DevMax == 0 {
		cfg.RateLimit.DevMax = 1000
	}
}

// applyEnvOverrides lets deployments tune rate limiting without editing
// config.yaml. Non-production environments get the looser dev cap.
func applyEnvOverrides(cfg *Config) {
	if env := os.Getenv("FILESWIFT_ENV"); env != "" && env != "production" {
		cfg.RateLimit.MaxRequests = cfg.RateLimit.DevMax
	}
	if v := os.Getenv("RATE_LIMIT_MAX"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			cfg.RateLimit.MaxRequests = n
		}
	}
	if v := os.Getenv("RATE_LIMIT_WINDOW"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.RateLimit.WindowSeconds = n
		}
	}
	if v := os.Getenv("RATE_LIMIT_BYPASS_TOKEN"); v != "" {
		cfg.RateLimit.BypassToken = v
	}
}
