package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type countingRefresher struct {
	calls atomic.Int32
	err   error
}

func (r *countingRefresher) Refresh(ctx context.Context) error {
	r.calls.Add(1)
	return r.err
}

func TestCacheRefreshWorkerTicksUntilCanceled(t *testing.T) {
	r := &countingRefresher{}
	w := NewCacheRefreshWorker(r, 5*time.Millisecond, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Start(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool { return r.calls.Load() >= 2 }, time.Second, time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop")
	}
}

func TestCacheRefreshWorkerLogsFailures(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	r := &countingRefresher{err: errors.New("db down")}
	w := NewCacheRefreshWorker(r, time.Second, zap.New(core))

	w.refresh(context.Background())

	assert.Equal(t, int32(1), r.calls.Load())
	assert.Equal(t, 1, logs.FilterMessage("pipeline refresh failed").Len())
}

func TestNewCacheRefreshWorkerDefaultsInterval(t *testing.T) {
	w := NewCacheRefreshWorker(&countingRefresher{}, 0, nil)

	assert.Equal(t, DefaultRefreshInterval, w.tickInterval)
}
