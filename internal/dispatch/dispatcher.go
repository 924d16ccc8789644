package dispatch

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"i2v-dispatch/internal/assets"
	"i2v-dispatch/internal/devices"
	"i2v-dispatch/internal/engine"
	"i2v-dispatch/internal/storage"

	"github.com/google/uuid"
)

type RunInfo struct {
	RunId       uuid.UUID
	Source      storage.Location
	Destination storage.Location
	DeviceCount int
	TotalJobs   int
	StartTime   time.Time
}

// Recorder persists the history of runs. Failures to record are logged and
// never affect the run itself.
type Recorder interface {
	StartRun(ctx context.Context, info RunInfo) error
	RecordOutcome(ctx context.Context, runId uuid.UUID, outcome Outcome) error
	FinishRun(ctx context.Context, summary Summary) error
}

type Options struct {
	// WorkDir is the parent of the per job working directories. Empty means
	// the system temp directory.
	WorkDir         string
	ObserveInterval time.Duration
	Recorder        Recorder

	// OnListed and OnOutcome are optional hooks. OnOutcome is called
	// concurrently from every worker.
	OnListed  func(total int)
	OnOutcome func(Outcome)
}

type Dispatcher struct {
	lister *assets.Lister
	store  storage.Provider
	env    devices.Environment
	loader engine.Loader
	params engine.Params
	opts   Options

	mu      sync.Mutex
	current *run
}

func New(lister *assets.Lister, store storage.Provider, env devices.Environment, loader engine.Loader, params engine.Params, opts Options) *Dispatcher {
	return &Dispatcher{
		lister: lister,
		store:  store,
		env:    env,
		loader: loader,
		params: params,
		opts:   opts,
	}
}

// Run lists the source, then processes every job with one worker per device
// and returns once all workers have exited. Only a failure to list the source
// is returned as an error; failed jobs are reported in the summary.
func (d *Dispatcher) Run(ctx context.Context, src, dst storage.Location) (Summary, error) {
	runId := uuid.New()
	startTime := time.Now()

	slog.Info("listing source", "run_id", runId, "source", src.String(), "destination", dst.String())

	jobs, err := d.lister.List(ctx, src, dst)
	if err != nil {
		slog.Error("error listing source", "run_id", runId, "error", err)
		return Summary{RunId: runId, StartTime: startTime, EndTime: time.Now()}, err
	}

	deviceCount := d.deviceCount(ctx)

	queue := NewJobQueue(jobs...)

	r := &run{
		id:          runId,
		ctx:         ctx,
		recorder:    d.opts.Recorder,
		onOutcome:   d.opts.OnOutcome,
		deviceCount: deviceCount,
		total:       len(jobs),
		active:      make(map[int]string),
		startTime:   startTime,
		running:     true,
	}
	d.setCurrent(r)

	slog.Info("jobs queued", "run_id", runId, "jobs", len(jobs), "devices", deviceCount)

	if d.opts.OnListed != nil {
		d.opts.OnListed(len(jobs))
	}

	r.recordStart(RunInfo{
		RunId:       runId,
		Source:      src,
		Destination: dst,
		DeviceCount: deviceCount,
		TotalJobs:   len(jobs),
		StartTime:   startTime,
	})

	if deviceCount == 0 {
		slog.Error("no devices available, no jobs will be processed", "run_id", runId, "jobs", len(jobs))
		summary := r.finish()
		summary.NoDevices = true
		r.recordFinish(summary)
		return summary, nil
	}

	observerCtx, stopObserver := context.WithCancel(ctx)
	defer stopObserver()
	devices.NewObserver(d.env, d.opts.ObserveInterval, nil).Start(observerCtx)

	workers := make(map[int]*Worker, deviceCount)
	for device := 0; device < deviceCount; device++ {
		workers[device] = &Worker{
			device:   device,
			queue:    queue,
			store:    d.store,
			loader:   d.loader,
			params:   d.params,
			workDir:  d.opts.WorkDir,
			reporter: r,
		}
	}

	var wg sync.WaitGroup
	wg.Add(len(workers))
	for _, worker := range workers {
		go func(w *Worker) {
			defer wg.Done()
			w.Run(ctx)
		}(worker)
	}
	wg.Wait()

	if !queue.IsDrained() {
		slog.Warn("run ended before the queue was drained", "run_id", runId, "pending", queue.Len())
	}

	summary := r.finish()
	r.recordFinish(summary)

	slog.Info("run finished", "run_id", runId, "total", summary.Total, "succeeded", summary.Succeeded,
		"failed", summary.Failed, "duration", summary.EndTime.Sub(summary.StartTime))

	return summary, nil
}

// Progress reports the state of the current run, or of the last one once it
// has finished.
func (d *Dispatcher) Progress() Progress {
	d.mu.Lock()
	r := d.current
	d.mu.Unlock()

	if r == nil {
		return Progress{Active: map[int]string{}}
	}
	return r.progress()
}

func (d *Dispatcher) setCurrent(r *run) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.current = r
}

func (d *Dispatcher) deviceCount(ctx context.Context) int {
	count, err := d.env.Count(ctx)
	if err != nil {
		slog.Error("error querying device count, assuming no devices", "error", err)
		return 0
	}
	if count < 0 {
		return 0
	}
	return count
}

type run struct {
	id        uuid.UUID
	ctx       context.Context
	recorder  Recorder
	onOutcome func(Outcome)

	mu          sync.Mutex
	running     bool
	deviceCount int
	total       int
	succeeded   int
	failed      int
	active      map[int]string
	failures    []Outcome
	startTime   time.Time
	endTime     time.Time
}

func (r *run) jobStarted(device int, job assets.Job) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.active[device] = job.Input.String()
}

func (r *run) jobFinished(outcome Outcome) {
	r.mu.Lock()
	delete(r.active, outcome.Device)
	if outcome.Failed() {
		r.failed++
		r.failures = append(r.failures, outcome)
	} else {
		r.succeeded++
	}
	r.mu.Unlock()

	if r.recorder != nil {
		if err := r.recorder.RecordOutcome(context.WithoutCancel(r.ctx), r.id, outcome); err != nil {
			slog.Error("error recording job outcome", "run_id", r.id, "input", outcome.Job.Input.String(), "error", err)
		}
	}

	if r.onOutcome != nil {
		r.onOutcome(outcome)
	}
}

func (r *run) finish() Summary {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.running = false
	r.endTime = time.Now()

	failures := make([]Outcome, len(r.failures))
	copy(failures, r.failures)

	return Summary{
		RunId:       r.id,
		DeviceCount: r.deviceCount,
		Total:       r.total,
		Processed:   r.succeeded + r.failed,
		Succeeded:   r.succeeded,
		Failed:      r.failed,
		Failures:    failures,
		StartTime:   r.startTime,
		EndTime:     r.endTime,
	}
}

func (r *run) progress() Progress {
	r.mu.Lock()
	defer r.mu.Unlock()

	active := make(map[int]string, len(r.active))
	for device, input := range r.active {
		active[device] = input
	}

	return Progress{
		RunId:       r.id,
		Running:     r.running,
		DeviceCount: r.deviceCount,
		Total:       r.total,
		Succeeded:   r.succeeded,
		Failed:      r.failed,
		Remaining:   r.total - r.succeeded - r.failed,
		Active:      active,
	}
}

func (r *run) recordStart(info RunInfo) {
	if r.recorder == nil {
		return
	}
	if err := r.recorder.StartRun(context.WithoutCancel(r.ctx), info); err != nil {
		slog.Error("error recording run start", "run_id", r.id, "error", err)
	}
}

func (r *run) recordFinish(summary Summary) {
	if r.recorder == nil {
		return
	}
	if err := r.recorder.FinishRun(context.WithoutCancel(r.ctx), summary); err != nil {
		slog.Error("error recording run finish", "run_id", r.id, "error", err)
	}
}
