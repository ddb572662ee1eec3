// Package scheduler fires registered tick functions on independent
// timers, guarding each against overlapping with itself (spec §4.6):
// ticks may run concurrently with one another but a tick that is still
// running when its own timer fires again is skipped, not queued.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/adhocore/gronx"
)

// TickFunc is one scheduler-invoked unit of work. It receives a context
// bounded by the scheduler's shutdown, not by the tick interval itself.
type TickFunc func(ctx context.Context) error

// tick holds one registered tick's timing and self-exclusion state.
type tick struct {
	name     string
	interval time.Duration
	cronExpr string
	fn       TickFunc
	running  atomic.Bool
}

// Scheduler runs N independently-timed ticks, each on its own goroutine,
// each guarded by a per-tick running flag (spec §9: "the scheduler
// merely starts them on a timer with the self-exclusion flag").
type Scheduler struct {
	logger *slog.Logger
	cron   gronx.Gronx

	mu    sync.Mutex
	ticks []*tick

	wg       sync.WaitGroup
	shutdown chan struct{}
}

// New creates an empty scheduler. Register ticks with Register/
// RegisterCron before calling Run.
func New(logger *slog.Logger) *Scheduler {
	return &Scheduler{
		logger:   logger,
		cron:     gronx.New(),
		shutdown: make(chan struct{}),
	}
}

// Register adds a tick that fires every interval. Ticks registered after
// Run has started are not run (register all ticks up front).
func (s *Scheduler) Register(name string, interval time.Duration, fn TickFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ticks = append(s.ticks, &tick{name: name, interval: interval, fn: fn})
}

// RegisterCron adds a tick driven by a cron expression instead of a
// fixed interval, evaluated once per second.
func (s *Scheduler) RegisterCron(name, cronExpr string, fn TickFunc) error {
	if !gronx.IsValid(cronExpr) {
		return fmt.Errorf("scheduler: invalid cron expression %q for tick %q", cronExpr, name)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ticks = append(s.ticks, &tick{name: name, cronExpr: cronExpr, fn: fn})
	return nil
}

// Run starts every registered tick on its own goroutine and blocks until
// ctx is cancelled. On cancellation it waits (up to timeout) for
// in-flight ticks to finish before returning (spec §4.6's graceful
// shutdown: stop firing new ticks, wait for in-flight, then exit).
func (s *Scheduler) Run(ctx context.Context, shutdownTimeout time.Duration) error {
	s.mu.Lock()
	ticks := append([]*tick(nil), s.ticks...)
	s.mu.Unlock()

	for _, t := range ticks {
		s.wg.Add(1)
		go s.runTick(ctx, t)
	}

	<-ctx.Done()
	s.logger.Info("scheduler: shutdown signaled, waiting for in-flight ticks", "timeout", shutdownTimeout)

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("scheduler: all ticks drained")
		return nil
	case <-time.After(shutdownTimeout):
		s.logger.Warn("scheduler: shutdown timeout exceeded, exiting with ticks still in-flight")
		return fmt.Errorf("scheduler: shutdown timeout exceeded after %s", shutdownTimeout)
	}
}

func (s *Scheduler) runTick(ctx context.Context, t *tick) {
	defer s.wg.Done()

	if t.cronExpr != "" {
		s.runCronTick(ctx, t)
		return
	}
	s.runIntervalTick(ctx, t)
}

func (s *Scheduler) runIntervalTick(ctx context.Context, t *tick) {
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.fire(ctx, t)
		}
	}
}

func (s *Scheduler) runCronTick(ctx context.Context, t *tick) {
	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			due, err := s.cron.IsDue(t.cronExpr, now)
			if err != nil {
				s.logger.Error("scheduler: cron evaluation failed", "tick", t.name, "error", err)
				continue
			}
			if due {
				s.fire(ctx, t)
			}
		}
	}
}

// fire invokes t.fn unless a prior invocation is still running, in which
// case this fire is skipped entirely (spec §4.6: "no queueing, no
// backpressure").
func (s *Scheduler) fire(ctx context.Context, t *tick) {
	if !t.running.CompareAndSwap(false, true) {
		s.logger.Debug("scheduler: skipping fire, tick still running", "tick", t.name)
		return
	}
	defer t.running.Store(false)

	start := time.Now()
	if err := t.fn(ctx); err != nil {
		s.logger.Error("scheduler: tick failed", "tick", t.name, "duration", time.Since(start), "error", err)
		return
	}
	s.logger.Debug("scheduler: tick completed", "tick", t.name, "duration", time.Since(start))
}
