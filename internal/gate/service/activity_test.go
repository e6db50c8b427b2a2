package service_test

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/aussiebroadwan/eventgate/internal/gate/service"
	"github.com/stretchr/testify/require"
)

type blockingWriter struct {
	release chan struct{}
	started chan struct{}

	mu      sync.Mutex
	written []string
	err     error
}

func (w *blockingWriter) TouchLastActivity(_ context.Context, id string, _ time.Time) error {
	if w.started != nil {
		w.started <- struct{}{}
	}
	if w.release != nil {
		<-w.release
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.written = append(w.written, id)
	return w.err
}

func (w *blockingWriter) ids() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]string(nil), w.written...)
}

func TestActivityRecorderFlushesOnStop(t *testing.T) {
	w := &blockingWriter{}
	r := service.NewActivityRecorder(w, slog.New(slog.DiscardHandler), 8)
	r.Start()

	now := time.Now()
	require.True(t, r.Record("a", now))
	require.True(t, r.Record("b", now))
	require.True(t, r.Record("c", now))
	r.Stop()

	require.ElementsMatch(t, []string{"a", "b", "c"}, w.ids())
	require.False(t, r.Record("d", now), "stopped recorder refuses updates")

	r.Stop()
}

func TestActivityRecorderDropsWhenFull(t *testing.T) {
	w := &blockingWriter{release: make(chan struct{}), started: make(chan struct{}, 1)}
	r := service.NewActivityRecorder(w, slog.New(slog.DiscardHandler), 1)
	r.Start()

	now := time.Now()
	require.True(t, r.Record("in-flight", now))
	<-w.started // worker holds the first write; the queue is empty again

	require.True(t, r.Record("queued", now))
	require.False(t, r.Record("dropped", now))

	w.started = nil
	close(w.release)
	r.Stop()

	require.Equal(t, []string{"in-flight", "queued"}, w.ids())
}

func TestActivityRecorderSwallowsWriteErrors(t *testing.T) {
	w := &blockingWriter{err: errors.New("disk full")}
	r := service.NewActivityRecorder(w, slog.New(slog.DiscardHandler), 4)
	r.Start()

	require.True(t, r.Record("a", time.Now()))
	r.Stop()
	require.Equal(t, []string{"a"}, w.ids())
}

func TestActivityRecorderStopWithoutStart(t *testing.T) {
	w := &blockingWriter{}
	r := service.NewActivityRecorder(w, slog.New(slog.DiscardHandler), 4)

	require.True(t, r.Record("queued-before-start", time.Now()))

	done := make(chan struct{})
	go func() {
		r.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Stop blocked on a worker that was never started")
	}
	require.Equal(t, []string{"queued-before-start"}, w.ids(), "pending updates are still flushed")

	r.Start()
	require.False(t, r.Record("late", time.Now()), "a stopped recorder stays stopped")
}
