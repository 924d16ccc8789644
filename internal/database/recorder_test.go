package database_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"i2v-dispatch/internal/assets"
	"i2v-dispatch/internal/database"
	"i2v-dispatch/internal/dispatch"
	"i2v-dispatch/internal/storage"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makeOutcome(name string, device int, err error) dispatch.Outcome {
	start := time.Now().Add(-2 * time.Second)
	outcome := dispatch.Outcome{
		Job: assets.Job{
			Input:  storage.Locator{Scheme: "gs", Bucket: "bucket", Key: "Inputs/" + name + ".png"},
			Output: storage.Locator{Scheme: "gs", Bucket: "bucket", Key: "Outputs/" + name + ".mp4"},
		},
		Device:    device,
		Status:    dispatch.StatusSucceeded,
		Stage:     dispatch.StageCleanup,
		StartTime: start,
		EndTime:   start.Add(1500 * time.Millisecond),
	}
	if err != nil {
		outcome.Status = dispatch.StatusFailed
		outcome.Stage = dispatch.StageTransforming
		outcome.Err = err
	}
	return outcome
}

func TestRecorder(t *testing.T) {
	ctx := context.Background()

	db, err := database.NewDatabase(filepath.Join(t.TempDir(), "ledger", "runs.db"))
	require.NoError(t, err)

	recorder := database.NewRecorder(db)
	runId := uuid.New()

	require.NoError(t, recorder.StartRun(ctx, dispatch.RunInfo{
		RunId:       runId,
		Source:      storage.Location{Scheme: "gs", Bucket: "bucket", Prefix: "Inputs"},
		Destination: storage.Location{Scheme: "gs", Bucket: "bucket", Prefix: "Outputs"},
		DeviceCount: 2,
		TotalJobs:   3,
		StartTime:   time.Now(),
	}))

	run, err := recorder.GetRun(ctx, runId)
	require.NoError(t, err)
	assert.Equal(t, database.RunRunning, run.Status)
	assert.Equal(t, "gs://bucket/Inputs", run.Source)
	assert.Equal(t, 3, run.TotalCount)
	assert.False(t, run.CompletionTime.Valid)

	require.NoError(t, recorder.RecordOutcome(ctx, runId, makeOutcome("a", 0, nil)))
	require.NoError(t, recorder.RecordOutcome(ctx, runId, makeOutcome("c", 1, errors.New("model failed"))))
	require.NoError(t, recorder.RecordOutcome(ctx, runId, makeOutcome("b", 0, errors.New("out of memory"))))

	// The same job cannot be recorded twice for a run.
	assert.Error(t, recorder.RecordOutcome(ctx, runId, makeOutcome("a", 1, nil)))

	run, err = recorder.GetRun(ctx, runId)
	require.NoError(t, err)
	assert.Equal(t, 1, run.SucceededCount)
	assert.Equal(t, 2, run.FailedCount)

	failed, err := recorder.FailedJobs(ctx, runId)
	require.NoError(t, err)
	require.Len(t, failed, 2)
	assert.Equal(t, "gs://bucket/Inputs/b.png", failed[0].Input)
	assert.Equal(t, "gs://bucket/Outputs/b.mp4", failed[0].Output)
	assert.Equal(t, "out of memory", failed[0].Error.String)
	assert.Equal(t, "transforming", failed[0].Stage)
	assert.Equal(t, int64(1500), failed[0].DurationMs)
	assert.Equal(t, "gs://bucket/Inputs/c.png", failed[1].Input)
	assert.Equal(t, 1, failed[1].Device)

	require.NoError(t, recorder.FinishRun(ctx, dispatch.Summary{
		RunId:     runId,
		Succeeded: 1,
		Failed:    2,
		EndTime:   time.Now(),
	}))

	run, err = recorder.GetRun(ctx, runId)
	require.NoError(t, err)
	assert.Equal(t, database.RunCompleted, run.Status)
	assert.True(t, run.CompletionTime.Valid)

	other, err := recorder.FailedJobs(ctx, uuid.New())
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestRecorderNoDevices(t *testing.T) {
	ctx := context.Background()

	db, err := database.NewDatabase(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	recorder := database.NewRecorder(db)

	first, second := uuid.New(), uuid.New()
	now := time.Now()
	require.NoError(t, recorder.StartRun(ctx, dispatch.RunInfo{RunId: first, StartTime: now.Add(-time.Hour)}))
	require.NoError(t, recorder.StartRun(ctx, dispatch.RunInfo{RunId: second, StartTime: now}))
	require.NoError(t, recorder.FinishRun(ctx, dispatch.Summary{RunId: second, NoDevices: true, EndTime: now}))

	runs, err := recorder.ListRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, second, runs[0].Id)
	assert.Equal(t, database.RunNoDevices, runs[0].Status)
	assert.Equal(t, first, runs[1].Id)
}

func TestMigrationsReplay(t *testing.T) {
	db, err := database.NewDatabase(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)

	// Reopening an up to date ledger is a no-op.
	require.NoError(t, database.GetMigrator(db).Migrate())
	assert.True(t, db.Migrator().HasColumn(&database.JobResult{}, "duration_ms"))
}
