// Package scheduler fires reconciliation runs on a cron schedule.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/countrysync/internal/reconcile"
)

// Runner is one unit of scheduled work.
type Runner interface {
	Run(ctx context.Context) (reconcile.Result, error)
}

// Options configures a Scheduler.
type Options struct {
	// Spec is a six-field cron expression with seconds, evaluated in UTC.
	Spec string
	// RunOnStart fires once immediately when Run begins.
	RunOnStart bool
}

// Scheduler triggers Runner on every tick of its schedule. Runs are not
// serialized: a slow run may overlap the next tick.
type Scheduler struct {
	runner Runner
	opts   Options

	mu      sync.Mutex
	stopped bool
	wg      sync.WaitGroup
}

// ValidateSpec reports whether spec parses as a six-field cron expression.
func ValidateSpec(spec string) error {
	if _, err := cron.Parse(spec); err != nil {
		return eris.Wrapf(err, "scheduler: invalid cron spec %q", spec)
	}
	return nil
}

// New creates a scheduler after validating the spec.
func New(runner Runner, opts Options) (*Scheduler, error) {
	if err := ValidateSpec(opts.Spec); err != nil {
		return nil, err
	}
	return &Scheduler{runner: runner, opts: opts}, nil
}

// Run starts the schedule and blocks until ctx is done, then waits for
// runs already in flight.
func (s *Scheduler) Run(ctx context.Context) error {
	log := zap.L().With(zap.String("component", "scheduler"), zap.String("spec", s.opts.Spec))

	c := cron.NewWithLocation(time.UTC)
	if err := c.AddFunc(s.opts.Spec, func() { s.fire(ctx) }); err != nil {
		return eris.Wrap(err, "scheduler: add job")
	}

	if s.opts.RunOnStart {
		go s.fire(ctx)
	}

	c.Start()
	log.Info("scheduler: started", zap.Time("next", nextRun(c)))

	<-ctx.Done()
	s.stop()
	c.Stop()
	s.wg.Wait()
	log.Info("scheduler: stopped")
	return nil
}

// begin registers a run unless the scheduler is stopping.
func (s *Scheduler) begin() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return false
	}
	s.wg.Add(1)
	return true
}

func (s *Scheduler) stop() {
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()
}

func (s *Scheduler) fire(ctx context.Context) {
	if ctx.Err() != nil || !s.begin() {
		return
	}
	defer s.wg.Done()

	res, err := s.runner.Run(ctx)
	if err != nil {
		zap.L().Error("scheduler: run failed", zap.Int64("sync_id", res.SyncID), zap.Error(err))
		return
	}
	zap.L().Info("scheduler: run finished",
		zap.Int64("sync_id", res.SyncID),
		zap.String("outcome", res.Outcome),
		zap.Int64("processed", res.Processed),
	)
}

func nextRun(c *cron.Cron) time.Time {
	entries := c.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	return entries[0].Next
}
