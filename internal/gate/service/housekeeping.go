package service

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Sweeper evicts state that has outlived its usefulness and reports how
// many entries went.
type Sweeper interface {
	Sweep(ctx context.Context, now time.Time) (int, error)
}

// SweepTarget names a Sweeper for logging.
type SweepTarget struct {
	Name    string
	Sweeper Sweeper
}

// HousekeepingService periodically runs every target's Sweep so in-memory
// rate buckets and similar state do not grow without bound.
type HousekeepingService struct {
	Targets  []SweepTarget
	Logger   *slog.Logger
	Interval time.Duration
	Now      func() time.Time

	started atomic.Bool
	stopCh  chan struct{}
	doneCh  chan struct{}
	once    sync.Once
}

// NewHousekeepingService creates a new housekeeping service with the given interval.
// If interval is 0 or negative, defaults to 1 minute.
func NewHousekeepingService(logger *slog.Logger, interval time.Duration, targets ...SweepTarget) *HousekeepingService {
	if interval <= 0 {
		interval = time.Minute
	}

	return &HousekeepingService{
		Targets:  targets,
		Logger:   logger,
		Interval: interval,
		Now:      time.Now,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start begins the background worker that periodically runs cleanup.
// Call Stop() to gracefully shutdown the worker. Only the first call starts it.
func (s *HousekeepingService) Start() {
	if !s.started.CompareAndSwap(false, true) {
		return
	}
	go s.run()
	s.Logger.Info("housekeeping service started", "interval", s.Interval, "targets", len(s.Targets))
}

// Stop gracefully shuts down the background worker.
// Blocks until the worker has finished any in-progress cleanup. Stopping a
// service that never started returns at once, and later Starts are ignored.
func (s *HousekeepingService) Stop() {
	s.once.Do(func() {
		close(s.stopCh)
		if s.started.CompareAndSwap(false, true) {
			return
		}
		<-s.doneCh
		s.Logger.Info("housekeeping service stopped")
	})
}

func (s *HousekeepingService) run() {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.RunOnce(context.Background())
		case <-s.stopCh:
			return
		}
	}
}

// RunOnce sweeps every target. Failures in one target do not stop the others.
func (s *HousekeepingService) RunOnce(ctx context.Context) int {
	now := s.Now()
	total := 0
	for _, t := range s.Targets {
		n, err := t.Sweeper.Sweep(ctx, now)
		if err != nil {
			s.Logger.Error("housekeeping sweep failed", "target", t.Name, "error", err)
			continue
		}
		total += n
		if n > 0 {
			s.Logger.Debug("housekeeping swept entries", "target", t.Name, "evicted", n)
		}
	}
	return total
}
