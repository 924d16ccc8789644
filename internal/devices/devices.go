package devices

import (
	"context"
	"errors"
)

// Usage is one memory sample of a device.
type Usage struct {
	Device  int
	UsedMB  int
	TotalMB int
}

func (u Usage) Percent() float64 {
	if u.TotalMB <= 0 {
		return 0
	}
	return float64(u.UsedMB) / float64(u.TotalMB) * 100
}

// Environment reports the exclusive devices available to this process.
type Environment interface {
	Count(ctx context.Context) (int, error)

	Usage(ctx context.Context) ([]Usage, error)
}

var ErrUsageUnavailable = errors.New("device usage is not available")

// Fixed is an Environment with a configured device count and no utilization
// reporting. It is used when DEVICE_COUNT overrides detection.
type Fixed struct {
	N int
}

func (f Fixed) Count(ctx context.Context) (int, error) {
	return f.N, nil
}

func (f Fixed) Usage(ctx context.Context) ([]Usage, error) {
	return nil, ErrUsageUnavailable
}
