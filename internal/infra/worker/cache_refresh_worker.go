package worker

import (
	"context"
	"time"

	"go.uber.org/zap"
)

const DefaultRefreshInterval = time.Minute

// Refresher reloads the pipeline board from the store.
type Refresher interface {
	Refresh(ctx context.Context) error
}

// CacheRefreshWorker periodically reloads the board so that changes made
// outside this process (other instances, manual SQL, Kommo) show up.
type CacheRefreshWorker struct {
	refresher    Refresher
	tickInterval time.Duration
	timeout      time.Duration
	logger       *zap.Logger
}

func NewCacheRefreshWorker(refresher Refresher, interval time.Duration, logger *zap.Logger) *CacheRefreshWorker {
	if interval <= 0 {
		interval = DefaultRefreshInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CacheRefreshWorker{
		refresher:    refresher,
		tickInterval: interval,
		timeout:      interval,
		logger:       logger,
	}
}

// Start blocks until ctx is canceled.
func (w *CacheRefreshWorker) Start(ctx context.Context) {
	w.logger.Info("cache refresh worker started", zap.Duration("interval", w.tickInterval))

	ticker := time.NewTicker(w.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("cache refresh worker stopped")
			return
		case <-ticker.C:
			w.refresh(ctx)
		}
	}
}

func (w *CacheRefreshWorker) refresh(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	start := time.Now()
	if err := w.refresher.Refresh(ctx); err != nil {
		// o board continua servindo o snapshot anterior
		w.logger.Warn("pipeline refresh failed", zap.Error(err))
		return
	}
	w.logger.Debug("pipeline refreshed", zap.Duration("took", time.Since(start)))
}
