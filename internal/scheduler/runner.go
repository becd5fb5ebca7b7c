package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/ziadkadry99/lifeos-notify/internal/lock"
	"github.com/ziadkadry99/lifeos-notify/internal/logger"
	"github.com/ziadkadry99/lifeos-notify/internal/reminders"
)

const (
	tickLock     = "scheduler-tick"
	generateLock = "reminder-generate"
)

// Generator is the reminder generation entrypoint driven by the Runner.
type Generator interface {
	Generate(ctx context.Context) (reminders.Summary, error)
}

// Runner triggers the scheduler and the reminder generator on fixed
// intervals. Each pass runs under a named lock so that replicas sharing
// a Redis do not overlap.
type Runner struct {
	sched       *Scheduler
	gen         Generator
	locker      lock.Locker
	genInterval time.Duration
	log         *logger.Logger
}

// NewRunner creates a Runner. A nil gen disables reminder generation; a
// nil locker uses an in-process lock.
func NewRunner(sched *Scheduler, gen Generator, locker lock.Locker, genInterval time.Duration, log *logger.Logger) *Runner {
	if locker == nil {
		locker = lock.NewLocal()
	}
	if log == nil {
		log = logger.Nop()
	}
	if genInterval <= 0 {
		genInterval = time.Minute
	}
	return &Runner{sched: sched, gen: gen, locker: locker, genInterval: genInterval, log: log}
}

// Run loops until ctx is cancelled.
func (r *Runner) Run(ctx context.Context) error {
	tick := time.NewTicker(r.sched.cfg.Interval)
	defer tick.Stop()
	gen := time.NewTicker(r.genInterval)
	defer gen.Stop()

	r.log.Info("scheduler loop started",
		"interval", r.sched.cfg.Interval.String(), "generate_interval", r.genInterval.String())

	r.Generate(ctx)
	r.Tick(ctx)
	for {
		select {
		case <-ctx.Done():
			r.log.Info("scheduler loop stopped")
			return nil
		case <-gen.C:
			r.Generate(ctx)
		case <-tick.C:
			r.Tick(ctx)
		}
	}
}

// Tick runs one locked scheduler pass. It reports false when another
// holder had the lock.
func (r *Runner) Tick(ctx context.Context) bool {
	release, err := r.locker.Acquire(ctx, tickLock, 2*r.sched.cfg.LeaseTTL)
	if err != nil {
		r.lockFailed(err, tickLock)
		return false
	}
	defer release()

	if _, err := r.sched.Tick(ctx); err != nil && ctx.Err() == nil {
		r.log.Error(err, "scheduler tick")
	}
	return true
}

// Generate runs one locked reminder generation pass.
func (r *Runner) Generate(ctx context.Context) bool {
	if r.gen == nil {
		return false
	}
	release, err := r.locker.Acquire(ctx, generateLock, r.genInterval)
	if err != nil {
		r.lockFailed(err, generateLock)
		return false
	}
	defer release()

	sum, err := r.gen.Generate(ctx)
	if err != nil && ctx.Err() == nil {
		r.log.Error(err, "reminder generation")
	}
	if sum.Created > 0 {
		r.log.Info("reminders generated", "created", sum.Created, "skipped", sum.Skipped)
	}
	return true
}

func (r *Runner) lockFailed(err error, name string) {
	if errors.Is(err, lock.ErrNotAcquired) {
		r.log.Debug("pass skipped, lock held elsewhere", "lock", name)
		return
	}
	r.log.Error(err, "acquiring lock", "lock", name)
}
