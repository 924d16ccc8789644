package devices

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

const DefaultObserveInterval = 10 * time.Second

// Observer periodically logs the memory usage of every device. It only reads
// from the environment and its failures are logged and otherwise ignored.
type Observer struct {
	env      Environment
	interval time.Duration
	logger   *slog.Logger
}

func NewObserver(env Environment, interval time.Duration, logger *slog.Logger) *Observer {
	if interval <= 0 {
		interval = DefaultObserveInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Observer{env: env, interval: interval, logger: logger}
}

// Start launches the observer in the background. It is never waited on; it
// stops once ctx is done.
func (o *Observer) Start(ctx context.Context) {
	go o.run(ctx)
}

func (o *Observer) run(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			o.logger.Warn("device observer stopped", "panic", r)
		}
	}()

	ticker := time.NewTicker(o.interval)
	defer ticker.Stop()

	for {
		if !o.sample(ctx) {
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// sample logs one round of usage. It returns false once the environment
// reports that usage will never be available.
func (o *Observer) sample(ctx context.Context) bool {
	usages, err := o.env.Usage(ctx)
	if errors.Is(err, ErrUsageUnavailable) {
		o.logger.Info("device usage not available, observer stopping")
		return false
	}
	if err != nil {
		if ctx.Err() == nil {
			o.logger.Warn("unable to sample device usage", "error", err)
		}
		return true
	}

	for _, u := range usages {
		o.logger.Info("device memory",
			"device", u.Device,
			"used_mb", u.UsedMB,
			"total_mb", u.TotalMB,
			"percent", float64(int(u.Percent()*10))/10,
		)
	}
	return true
}
