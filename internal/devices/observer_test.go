package devices

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

type fakeEnv struct {
	mu      sync.Mutex
	samples int
	err     error
}

func (f *fakeEnv) Count(ctx context.Context) (int, error) {
	return 2, nil
}

func (f *fakeEnv) Usage(ctx context.Context) ([]Usage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.samples++
	if f.err != nil {
		return nil, f.err
	}
	return []Usage{{Device: 0, UsedMB: 512, TotalMB: 1024}, {Device: 1, UsedMB: 0, TotalMB: 1024}}, nil
}

func (f *fakeEnv) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.samples
}

func TestObserverLogsUsage(t *testing.T) {
	out := &syncBuffer{}
	env := &fakeEnv{}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	NewObserver(env, 5*time.Millisecond, slog.New(slog.NewTextHandler(out, nil))).Start(ctx)

	require.Eventually(t, func() bool { return env.count() >= 3 }, time.Second, time.Millisecond)
	assert.Contains(t, out.String(), "device=0 used_mb=512 total_mb=1024 percent=50")
	assert.Contains(t, out.String(), "device=1")
}

func TestObserverKeepsRunningOnErrors(t *testing.T) {
	out := &syncBuffer{}
	env := &fakeEnv{err: errors.New("nvidia-smi failed")}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	NewObserver(env, 5*time.Millisecond, slog.New(slog.NewTextHandler(out, nil))).Start(ctx)

	require.Eventually(t, func() bool { return env.count() >= 3 }, time.Second, time.Millisecond)
	assert.Contains(t, out.String(), "unable to sample device usage")
}

func TestObserverStopsWithContext(t *testing.T) {
	env := &fakeEnv{}
	ctx, cancel := context.WithCancel(context.Background())

	NewObserver(env, time.Millisecond, slog.New(slog.NewTextHandler(&syncBuffer{}, nil))).Start(ctx)
	require.Eventually(t, func() bool { return env.count() >= 1 }, time.Second, time.Millisecond)

	cancel()
	time.Sleep(20 * time.Millisecond)
	stopped := env.count()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, stopped, env.count())
}

func TestObserverStopsWhenUsageUnavailable(t *testing.T) {
	out := &syncBuffer{}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	o := NewObserver(Fixed{N: 1}, time.Millisecond, slog.New(slog.NewTextHandler(out, nil)))
	o.Start(ctx)

	require.Eventually(t, func() bool {
		return bytes.Contains([]byte(out.String()), []byte("observer stopping"))
	}, time.Second, time.Millisecond)
}
