package service_test

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aussiebroadwan/eventgate/internal/gate/service"
	"github.com/stretchr/testify/require"
)

type countingSweeper struct {
	calls   atomic.Int32
	evicted int
	err     error
}

func (s *countingSweeper) Sweep(context.Context, time.Time) (int, error) {
	s.calls.Add(1)
	return s.evicted, s.err
}

func TestHousekeepingRunOnce(t *testing.T) {
	broken := &countingSweeper{err: errors.New("boom")}
	healthy := &countingSweeper{evicted: 3}

	hk := service.NewHousekeepingService(slog.New(slog.DiscardHandler), time.Minute,
		service.SweepTarget{Name: "broken", Sweeper: broken},
		service.SweepTarget{Name: "healthy", Sweeper: healthy},
	)

	require.Equal(t, 3, hk.RunOnce(context.Background()))
	require.Equal(t, int32(1), broken.calls.Load())
	require.Equal(t, int32(1), healthy.calls.Load(), "a failing target does not stop the rest")
}

func TestHousekeepingTicks(t *testing.T) {
	sw := &countingSweeper{}
	hk := service.NewHousekeepingService(slog.New(slog.DiscardHandler), 5*time.Millisecond,
		service.SweepTarget{Name: "buckets", Sweeper: sw},
	)
	hk.Start()
	require.Eventually(t, func() bool { return sw.calls.Load() >= 2 }, time.Second, 5*time.Millisecond)
	hk.Stop()
}

func TestHousekeepingStopWithoutStart(t *testing.T) {
	sw := &countingSweeper{}
	hk := service.NewHousekeepingService(slog.New(slog.DiscardHandler), time.Millisecond,
		service.SweepTarget{Name: "buckets", Sweeper: sw},
	)

	done := make(chan struct{})
	go func() {
		hk.Stop()
		hk.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Stop blocked on a worker that was never started")
	}

	hk.Start()
	time.Sleep(20 * time.Millisecond)
	require.Zero(t, sw.calls.Load(), "Start after Stop does not revive the worker")
}
