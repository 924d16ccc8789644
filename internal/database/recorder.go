package database

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"i2v-dispatch/internal/dispatch"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Recorder writes runs and their job outcomes to the ledger.
type Recorder struct {
	db *gorm.DB
}

var _ dispatch.Recorder = (*Recorder)(nil)

func NewRecorder(db *gorm.DB) *Recorder {
	return &Recorder{db: db}
}

func (r *Recorder) StartRun(ctx context.Context, info dispatch.RunInfo) error {
	run := Run{
		Id:           info.RunId,
		Source:       info.Source.String(),
		Destination:  info.Destination.String(),
		Status:       RunRunning,
		DeviceCount:  info.DeviceCount,
		TotalCount:   info.TotalJobs,
		CreationTime: info.StartTime.UTC(),
	}

	if err := r.db.WithContext(ctx).Create(&run).Error; err != nil {
		slog.Error("error creating run", "run_id", info.RunId, "error", err)
		return fmt.Errorf("error creating run: %w", err)
	}
	return nil
}

func (r *Recorder) RecordOutcome(ctx context.Context, runId uuid.UUID, outcome dispatch.Outcome) error {
	result := JobResult{
		RunId:          runId,
		Input:          outcome.Job.Input.String(),
		Output:         outcome.Job.Output.String(),
		Device:         outcome.Device,
		Stage:          string(outcome.Stage),
		StartTime:      outcome.StartTime.UTC(),
		CompletionTime: outcome.EndTime.UTC(),
		DurationMs:     outcome.EndTime.Sub(outcome.StartTime).Milliseconds(),
	}

	counter := "succeeded_count"
	if outcome.Failed() {
		result.Status = JobFailed
		counter = "failed_count"
		if outcome.Err != nil {
			result.Error = sql.NullString{String: outcome.Err.Error(), Valid: true}
		}
	} else {
		result.Status = JobCompleted
	}

	err := r.db.WithContext(ctx).Transaction(func(txn *gorm.DB) error {
		if err := txn.Create(&result).Error; err != nil {
			return fmt.Errorf("error saving job result: %w", err)
		}

		if err := txn.Model(&Run{Id: runId}).Update(counter, gorm.Expr(counter+" + ?", 1)).Error; err != nil {
			return fmt.Errorf("error updating run counts: %w", err)
		}
		return nil
	})
	if err != nil {
		slog.Error("error recording job outcome", "run_id", runId, "input", result.Input, "error", err)
		return err
	}
	return nil
}

func (r *Recorder) FinishRun(ctx context.Context, summary dispatch.Summary) error {
	status := RunCompleted
	if summary.NoDevices {
		status = RunNoDevices
	}

	updates := map[string]any{
		"status":          status,
		"succeeded_count": summary.Succeeded,
		"failed_count":    summary.Failed,
		"completion_time": summary.EndTime.UTC(),
	}

	if err := r.db.WithContext(ctx).Model(&Run{Id: summary.RunId}).Updates(updates).Error; err != nil {
		slog.Error("error finishing run", "run_id", summary.RunId, "error", err)
		return fmt.Errorf("error finishing run: %w", err)
	}
	return nil
}

func (r *Recorder) GetRun(ctx context.Context, runId uuid.UUID) (Run, error) {
	var run Run
	if err := r.db.WithContext(ctx).First(&run, "id = ?", runId).Error; err != nil {
		return Run{}, fmt.Errorf("error getting run %s: %w", runId, err)
	}
	return run, nil
}

// ListRuns returns the most recent runs first.
func (r *Recorder) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	var runs []Run
	if err := r.db.WithContext(ctx).Order("creation_time DESC").Limit(limit).Find(&runs).Error; err != nil {
		return nil, fmt.Errorf("error listing runs: %w", err)
	}
	return runs, nil
}

// FailedJobs lists the failed jobs of a run, ordered by input, so they can be
// inspected or retried.
func (r *Recorder) FailedJobs(ctx context.Context, runId uuid.UUID) ([]JobResult, error) {
	var results []JobResult
	if err := r.db.WithContext(ctx).
		Where("run_id = ? AND status = ?", runId, JobFailed).
		Order("input").
		Find(&results).Error; err != nil {
		return nil, fmt.Errorf("error listing failed jobs for run %s: %w", runId, err)
	}
	return results, nil
}
