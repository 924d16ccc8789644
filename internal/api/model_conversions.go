package api

import (
	"time"

	"i2v-dispatch/internal/database"

	"github.com/google/uuid"
)

type RunResponse struct {
	Id             uuid.UUID  `json:"id"`
	Source         string     `json:"source"`
	Destination    string     `json:"destination"`
	Status         string     `json:"status"`
	DeviceCount    int        `json:"device_count"`
	Total          int        `json:"total"`
	Succeeded      int        `json:"succeeded"`
	Failed         int        `json:"failed"`
	CreationTime   time.Time  `json:"creation_time"`
	CompletionTime *time.Time `json:"completion_time,omitempty"`
}

type FailedJobResponse struct {
	Input      string `json:"input"`
	Output     string `json:"output"`
	Device     int    `json:"device"`
	Stage      string `json:"stage"`
	Error      string `json:"error"`
	DurationMs int64  `json:"duration_ms"`
}

func convertRun(run database.Run) RunResponse {
	resp := RunResponse{
		Id:           run.Id,
		Source:       run.Source,
		Destination:  run.Destination,
		Status:       run.Status,
		DeviceCount:  run.DeviceCount,
		Total:        run.TotalCount,
		Succeeded:    run.SucceededCount,
		Failed:       run.FailedCount,
		CreationTime: run.CreationTime,
	}
	if run.CompletionTime.Valid {
		resp.CompletionTime = &run.CompletionTime.Time
	}
	return resp
}

func convertRuns(runs []database.Run) []RunResponse {
	resp := make([]RunResponse, 0, len(runs))
	for _, run := range runs {
		resp = append(resp, convertRun(run))
	}
	return resp
}

func convertFailedJobs(results []database.JobResult) []FailedJobResponse {
	resp := make([]FailedJobResponse, 0, len(results))
	for _, result := range results {
		resp = append(resp, FailedJobResponse{
			Input:      result.Input,
			Output:     result.Output,
			Device:     result.Device,
			Stage:      result.Stage,
			Error:      result.Error.String,
			DurationMs: result.DurationMs,
		})
	}
	return resp
}
