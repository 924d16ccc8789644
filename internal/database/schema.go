package database

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
)

const (
	RunRunning   string = "RUNNING"
	RunCompleted string = "COMPLETED"
	RunNoDevices string = "NO_DEVICES"
)

const (
	JobCompleted string = "COMPLETED"
	JobFailed    string = "FAILED"
)

type Run struct {
	Id uuid.UUID `gorm:"type:uuid;primaryKey"`

	Source      string `gorm:"not null"`
	Destination string `gorm:"not null"`
	Status      string `gorm:"size:20;not null"`
	DeviceCount int

	TotalCount     int `gorm:"default:0"`
	SucceededCount int `gorm:"default:0"`
	FailedCount    int `gorm:"default:0"`

	CreationTime   time.Time
	CompletionTime sql.NullTime

	Results []JobResult `gorm:"foreignKey:RunId;constraint:OnDelete:CASCADE"`
}

type JobResult struct {
	RunId uuid.UUID `gorm:"type:uuid;primaryKey"`
	Input string    `gorm:"primaryKey"`

	Output string `gorm:"not null"`
	Device int
	Status string `gorm:"size:20;not null"`
	Stage  string `gorm:"size:20"`
	Error  sql.NullString

	StartTime      time.Time
	CompletionTime time.Time
	DurationMs     int64 `gorm:"default:0"`
}
