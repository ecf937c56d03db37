package backup

import (
	"context"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingBackuper struct {
	calls atomic.Int32
	ok    bool
}

func (c *countingBackuper) Backup(_ context.Context) ([]string, bool) {
	c.calls.Add(1)
	return nil, c.ok
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func Test_Scheduler_Run_Disabled(t *testing.T) {
	// given
	target := &countingBackuper{ok: true}
	s := NewScheduler(target, 0, discardLogger())

	// when
	err := s.Run(context.Background())

	// then
	require.NoError(t, err)
	assert.Zero(t, target.calls.Load())
}

func Test_Scheduler_Run_KeepsGoingAfterFailures(t *testing.T) {
	// given
	target := &countingBackuper{ok: false}
	s := NewScheduler(target, 5*time.Millisecond, discardLogger())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)

	// when
	go func() { done <- s.Run(ctx) }()

	// then
	assert.Eventually(t, func() bool { return target.calls.Load() >= 3 }, time.Second, time.Millisecond)
	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop after cancellation")
	}
}
