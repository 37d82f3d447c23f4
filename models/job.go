package models

import "time"

const (
	JobStatusProcessing = "processing"
	JobStatusCompleted  = "completed"
	JobStatusFailed     = "failed"
)

// Job is created once an upload is assembled and handed to the processing
// queue. The upload subsystem never mutates it after creation; the worker
// records the terminal state.
type Job struct {
	ID          uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	JobID       string    `gorm:"type:varchar(36);uniqueIndex;not null" json:"job_id"`
	ToolID      string    `gorm:"type:varchar(64);not null;index" json:"tool_id"`
	FileName    string    `gorm:"type:varchar(255)" json:"file_name"`
	InputPath   string    `gorm:"type:varchar(500)" json:"input_path"`
	OutputPath  string    `gorm:"type:varchar(500)" json:"output_path"`
	DownloadURL string    `gorm:"type:varchar(500)" json:"download_url"`
	Status      string    `gorm:"type:varchar(20);default:processing;index" json:"status"`
	Progress    int       `json:"progress"`
	Error       string    `gorm:"type:text" json:"error"`
	Data        string    `gorm:"type:text" json:"data"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}
