package main

import (
	"context"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type job struct {
	name string
	run  func(ctx context.Context) error
}

// background runs the long-lived workers and lets main wait for them to
// return before closing the connections they use.
type background struct {
	logger *zap.Logger
	jobs   []job
	g      errgroup.Group
	once   sync.Once
}

func newBackground(logger *zap.Logger) *background {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &background{logger: logger}
}

func (b *background) Go(name string, run func(ctx context.Context) error) {
	b.jobs = append(b.jobs, job{name: name, run: run})
}

// Start launches every registered job. They stop when ctx is done.
func (b *background) Start(ctx context.Context) {
	for _, j := range b.jobs {
		j := j
		b.g.Go(func() error {
			err := j.run(ctx)
			if err != nil {
				b.logger.Error("background job exited", zap.String("job", j.name), zap.Error(err))
			}
			return err
		})
	}
}

// Wait blocks until every job has returned. Later calls return immediately.
func (b *background) Wait() {
	b.once.Do(func() {
		_ = b.g.Wait()
		b.logger.Info("background jobs stopped")
	})
}
