package service

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aussiebroadwan/eventgate/internal/gate/metrics"
)

const (
	DefaultActivityQueueSize    = 1024
	DefaultActivityWriteTimeout = 2 * time.Second
)

// ActivityWriter persists lastActivity. The store's TouchLastActivity is
// monotonic, so write order between workers does not matter.
type ActivityWriter interface {
	TouchLastActivity(ctx context.Context, id string, at time.Time) error
}

type touch struct {
	userID string
	at     time.Time
}

// ActivityRecorder drains lastActivity updates off the request path. When
// the queue is full updates are dropped; the next request from the same
// user will carry a fresher timestamp anyway.
type ActivityRecorder struct {
	Writer       ActivityWriter
	Logger       *slog.Logger
	WriteTimeout time.Duration

	queue   chan touch
	started atomic.Bool
	stopped atomic.Bool
	stopCh  chan struct{}
	doneCh  chan struct{}
	once    sync.Once
}

// NewActivityRecorder creates a recorder with a queue of size entries.
// A size of 0 or less uses DefaultActivityQueueSize.
func NewActivityRecorder(w ActivityWriter, logger *slog.Logger, size int) *ActivityRecorder {
	if size <= 0 {
		size = DefaultActivityQueueSize
	}
	return &ActivityRecorder{
		Writer:       w,
		Logger:       logger,
		WriteTimeout: DefaultActivityWriteTimeout,
		queue:        make(chan touch, size),
		stopCh:       make(chan struct{}),
		doneCh:       make(chan struct{}),
	}
}

// Record enqueues an update without blocking. It reports whether the update
// was accepted.
func (r *ActivityRecorder) Record(userID string, at time.Time) bool {
	if r.stopped.Load() {
		metrics.ActivityWritesTotal.WithLabelValues("dropped").Inc()
		return false
	}
	select {
	case r.queue <- touch{userID: userID, at: at}:
		metrics.ActivityQueueDepth.Inc()
		return true
	default:
		metrics.ActivityWritesTotal.WithLabelValues("dropped").Inc()
		r.Logger.Warn("activity queue full, dropping update", slog.String("user_id", userID))
		return false
	}
}

// Start begins draining the queue in the background. Calls after the
// first, or after Stop, do nothing.
func (r *ActivityRecorder) Start() {
	if !r.started.CompareAndSwap(false, true) {
		return
	}
	go r.run()
	r.Logger.Info("activity recorder started", "queue_size", cap(r.queue))
}

// Stop refuses new updates, flushes what is already queued and waits for
// the worker to exit. It is safe to call more than once, and without Start,
// in which case the queue is flushed on the caller's goroutine.
func (r *ActivityRecorder) Stop() {
	r.once.Do(func() {
		r.stopped.Store(true)
		close(r.stopCh)
		if r.started.CompareAndSwap(false, true) {
			r.run()
		} else {
			<-r.doneCh
		}
		r.Logger.Info("activity recorder stopped")
	})
}

func (r *ActivityRecorder) run() {
	defer close(r.doneCh)

	for {
		select {
		case t := <-r.queue:
			r.write(t)
		case <-r.stopCh:
			for {
				select {
				case t := <-r.queue:
					r.write(t)
				default:
					return
				}
			}
		}
	}
}

func (r *ActivityRecorder) write(t touch) {
	metrics.ActivityQueueDepth.Dec()

	ctx, cancel := context.WithTimeout(context.Background(), r.WriteTimeout)
	defer cancel()

	if err := r.Writer.TouchLastActivity(ctx, t.userID, t.at); err != nil {
		metrics.ActivityWritesTotal.WithLabelValues("failed").Inc()
		r.Logger.Warn("failed to record activity",
			slog.String("user_id", t.userID),
			slog.Any("error", err),
		)
		return
	}
	metrics.ActivityWritesTotal.WithLabelValues("written").Inc()
}
