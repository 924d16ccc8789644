package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"i2v-dispatch/internal/assets"
	"i2v-dispatch/internal/engine"
	"i2v-dispatch/internal/storage"
)

type reporter interface {
	jobStarted(device int, job assets.Job)
	jobFinished(outcome Outcome)
}

// Worker drains the shared queue on a single device. Every job gets its own
// working directory and its own freshly loaded model, both of which are gone
// before the next job is popped.
type Worker struct {
	device   int
	queue    *JobQueue
	store    storage.Provider
	loader   engine.Loader
	params   engine.Params
	workDir  string
	reporter reporter
}

func (w *Worker) Run(ctx context.Context) {
	slog.Info("worker started", "device", w.device)

	processed := 0
	for {
		if err := ctx.Err(); err != nil {
			slog.Warn("worker stopping, run cancelled", "device", w.device, "processed", processed, "error", err)
			return
		}

		job, ok := w.queue.TryPop()
		if !ok {
			slog.Info("worker finished, queue empty", "device", w.device, "processed", processed)
			return
		}

		w.reporter.jobStarted(w.device, job)
		outcome := w.process(ctx, job)
		w.reporter.jobFinished(outcome)
		w.queue.Done()

		processed++
	}
}

func (w *Worker) process(ctx context.Context, job assets.Job) Outcome {
	outcome := Outcome{Job: job, Device: w.device, StartTime: time.Now()}

	logger := slog.With("device", w.device, "input", job.Input.String(), "output", job.Output.String())

	finish := func(stage Stage, err error) Outcome {
		outcome.Stage = stage
		outcome.EndTime = time.Now()
		if err != nil {
			outcome.Status = StatusFailed
			outcome.Err = err
			logger.Error("job failed", "stage", stage, "error", err)
		} else {
			outcome.Status = StatusSucceeded
			logger.Info("job completed", "duration", outcome.EndTime.Sub(outcome.StartTime))
		}
		return outcome
	}

	dir, err := os.MkdirTemp(w.workDir, fmt.Sprintf("job-device%d-*", w.device))
	if err != nil {
		return finish(StageStaging, fmt.Errorf("error creating job directory: %w", err))
	}
	defer func() {
		if err := os.RemoveAll(dir); err != nil {
			logger.Warn("error removing job directory", "dir", dir, "error", err)
			return
		}
		logger.Debug("job directory removed", "dir", dir)
	}()

	logger.Info("staging input")
	inputPath := filepath.Join(dir, "input"+strings.ToLower(path.Ext(job.Input.Key)))
	if err := w.store.DownloadObject(ctx, job.Input.Bucket, job.Input.Key, inputPath); err != nil {
		return finish(StageStaging, asStorageError(storage.OpDownload, job.Input, err))
	}

	logger.Info("transforming")
	outputPath, err := w.transform(ctx, job, inputPath, dir)
	if err != nil {
		return finish(StageTransforming, err)
	}

	logger.Info("uploading output")
	if err := w.store.UploadObject(ctx, outputPath, job.Output.Bucket, job.Output.Key); err != nil {
		return finish(StageUploading, asStorageError(storage.OpUpload, job.Output, err))
	}

	return finish(StageCleanup, nil)
}

// transform loads a model for this job alone and releases it before
// returning, including when the model panics.
func (w *Worker) transform(ctx context.Context, job assets.Job, inputPath, dir string) (outputPath string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &engine.TransformError{Device: w.device, Input: job.Input.String(), Err: fmt.Errorf("panic: %v", r)}
		}
	}()

	model, err := w.loader(w.device)
	if err != nil {
		return "", &engine.TransformError{Device: w.device, Input: job.Input.String(), Err: fmt.Errorf("error loading model: %w", err)}
	}
	defer model.Release()

	outputPath, err = model.Transform(ctx, engine.Request{InputPath: inputPath, OutputDir: dir, Params: w.params})
	if err != nil {
		return "", &engine.TransformError{Device: w.device, Input: job.Input.String(), Err: err}
	}

	return outputPath, nil
}

func asStorageError(op string, loc storage.Locator, err error) error {
	var storageErr *storage.StorageError
	if errors.As(err, &storageErr) {
		return err
	}
	return &storage.StorageError{Op: op, Bucket: loc.Bucket, Key: loc.Key, Err: err}
}
