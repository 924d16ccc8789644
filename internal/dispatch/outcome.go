package dispatch

import (
	"time"

	"i2v-dispatch/internal/assets"

	"github.com/google/uuid"
)

type Status string

const (
	StatusSucceeded Status = "COMPLETED"
	StatusFailed    Status = "FAILED"
)

type Stage string

const (
	StageStaging      Stage = "staging"
	StageTransforming Stage = "transforming"
	StageUploading    Stage = "uploading"
	StageCleanup      Stage = "cleanup"
)

// Outcome is the result of one job. Stage is the stage the job failed in, or
// StageCleanup for a job that went all the way through.
type Outcome struct {
	Job       assets.Job
	Device    int
	Status    Status
	Stage     Stage
	Err       error
	StartTime time.Time
	EndTime   time.Time
}

func (o Outcome) Failed() bool {
	return o.Status == StatusFailed
}

type Summary struct {
	RunId       uuid.UUID
	DeviceCount int
	// NoDevices is set when the run ended without starting any worker
	// because no device was available.
	NoDevices bool

	Total     int
	Processed int
	Succeeded int
	Failed    int
	Failures  []Outcome

	StartTime time.Time
	EndTime   time.Time
}

// Progress is a point in time view of a run, safe to serialize.
type Progress struct {
	RunId       uuid.UUID      `json:"run_id"`
	Running     bool           `json:"running"`
	DeviceCount int            `json:"device_count"`
	Total       int            `json:"total"`
	Succeeded   int            `json:"succeeded"`
	Failed      int            `json:"failed"`
	Remaining   int            `json:"remaining"`
	Active      map[int]string `json:"active"`
}
