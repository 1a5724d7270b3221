package scanner

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"lendhub/pkg/logger"
)

const lockKey = "lendhub:scanner:lock"

// Runner triggers scans: once when started, then on every schedule tick.
type Runner struct {
	scanner  *Scanner
	schedule cron.Schedule
	lock     Lock
	lockTTL  time.Duration
	log      *logger.Logger
	now      func() time.Time

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithLock makes each tick take lock first so only one process scans.
func WithLock(lock Lock, ttl time.Duration) RunnerOption {
	return func(r *Runner) {
		r.lock = lock
		r.lockTTL = ttl
	}
}

// WithRunnerClock overrides time.Now when computing the next tick.
func WithRunnerClock(now func() time.Time) RunnerOption {
	return func(r *Runner) { r.now = now }
}

// NewRunner creates a stopped Runner.
func NewRunner(scanner *Scanner, schedule cron.Schedule, log *logger.Logger, options ...RunnerOption) *Runner {
	if log == nil {
		log = logger.NewDefault("scanner")
	}
	r := &Runner{
		scanner:  scanner,
		schedule: schedule,
		lock:     NoopLock{},
		lockTTL:  time.Minute,
		log:      log,
		now:      time.Now,
	}
	for _, option := range options {
		option(r)
	}
	return r
}

// Start begins the scan loop. Calling Start on a running Runner does nothing.
func (r *Runner) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.running = true

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.loop(runCtx)
	}()

	r.log.Info("due-date scanner started")
	return nil
}

// Stop ends the loop and waits for an in-flight scan to finish, or for ctx
// to expire. Stopping a stopped Runner does nothing.
func (r *Runner) Stop(ctx context.Context) error {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return nil
	}
	cancel := r.cancel
	r.running = false
	r.cancel = nil
	r.mu.Unlock()

	cancel()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	r.log.Info("due-date scanner stopped")
	return nil
}

// Running reports whether the loop is active.
func (r *Runner) Running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

func (r *Runner) loop(ctx context.Context) {
	r.tick(ctx)
	for {
		now := r.now()
		wait := r.schedule.Next(now).Sub(now)
		if wait < 0 {
			wait = 0
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			r.tick(ctx)
		}
	}
}

func (r *Runner) tick(ctx context.Context) {
	// a scan that has started runs to completion even if Stop is called
	scanCtx := context.WithoutCancel(ctx)

	release, acquired, err := r.lock.Acquire(scanCtx, lockKey, r.lockTTL)
	if err != nil {
		r.log.WithError(err).Warn("scanner lock unavailable; skipping tick")
		return
	}
	if !acquired {
		r.log.Debug("another instance holds the scanner lock")
		return
	}
	defer func() {
		if err := release(); err != nil {
			r.log.WithError(err).Warn("failed to release scanner lock; it expires with its ttl")
		}
	}()

	if _, err := r.scanner.RunOnce(scanCtx); err != nil {
		r.log.WithError(err).Error("due-date scan failed")
	}
}
