package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sells-group/countrysync/internal/reconcile"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

type countingRunner struct {
	calls atomic.Int32
	err   error
}

func (r *countingRunner) Run(context.Context) (reconcile.Result, error) {
	r.calls.Add(1)
	return reconcile.Result{Processed: 1}, r.err
}

func TestValidateSpec(t *testing.T) {
	assert.NoError(t, ValidateSpec("0 0 * * * *"))
	assert.NoError(t, ValidateSpec("@hourly"))
	assert.Error(t, ValidateSpec("not a spec"))
	assert.Error(t, ValidateSpec(""))
}

func TestNew_RejectsBadSpec(t *testing.T) {
	_, err := New(&countingRunner{}, Options{Spec: "61 * * * * *"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid cron spec")
}

func TestScheduler_FiresOnSchedule(t *testing.T) {
	runner := &countingRunner{}
	s, err := New(runner, Options{Spec: "* * * * * *"})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	require.Eventually(t, func() bool { return runner.calls.Load() >= 1 }, 3*time.Second, 20*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop")
	}
}

func TestScheduler_RunOnStart(t *testing.T) {
	runner := &countingRunner{err: errors.New("fetch exploded")}
	// 1 January at midnight: never fires during the test.
	s, err := New(runner, Options{Spec: "0 0 0 1 1 *", RunOnStart: true})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	require.Eventually(t, func() bool { return runner.calls.Load() == 1 }, 2*time.Second, 10*time.Millisecond)
	cancel()
	require.NoError(t, <-done)
	assert.Equal(t, int32(1), runner.calls.Load())
}

type blockingRunner struct {
	started chan struct{}
	release chan struct{}
}

func (r *blockingRunner) Run(context.Context) (reconcile.Result, error) {
	close(r.started)
	<-r.release
	return reconcile.Result{}, nil
}

func TestScheduler_StopWaitsForInFlightRun(t *testing.T) {
	runner := &blockingRunner{started: make(chan struct{}), release: make(chan struct{})}
	s, err := New(runner, Options{Spec: "0 0 0 1 1 *", RunOnStart: true})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	<-runner.started
	cancel()

	select {
	case <-done:
		t.Fatal("Run returned while a run was still in flight")
	case <-time.After(100 * time.Millisecond):
	}

	close(runner.release)
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop")
	}
}

func TestScheduler_NoRunsAfterStop(t *testing.T) {
	runner := &countingRunner{}
	s, err := New(runner, Options{Spec: "0 0 0 1 1 *"})
	require.NoError(t, err)

	s.stop()
	s.fire(context.Background())
	s.wg.Wait()
	assert.Zero(t, runner.calls.Load())
}
