package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRun_FiresRegisteredIntervalTick(t *testing.T) {
	s := New(testLogger())
	var count atomic.Int32
	s.Register("counter", 10*time.Millisecond, func(ctx context.Context) error {
		count.Add(1)
		return nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 55*time.Millisecond)
	defer cancel()
	if err := s.Run(ctx, time.Second); err != nil {
		t.Fatalf("run: %v", err)
	}

	if count.Load() < 2 {
		t.Fatalf("tick fired %d times, want at least 2", count.Load())
	}
}

func TestRun_SkipsOverlappingFireOfSameTick(t *testing.T) {
	s := New(testLogger())
	var running atomic.Bool
	var overlapped atomic.Bool
	var fires atomic.Int32

	s.Register("slow", 5*time.Millisecond, func(ctx context.Context) error {
		fires.Add(1)
		if !running.CompareAndSwap(false, true) {
			overlapped.Store(true)
			return nil
		}
		defer running.Store(false)
		time.Sleep(40 * time.Millisecond)
		return nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()
	if err := s.Run(ctx, time.Second); err != nil {
		t.Fatalf("run: %v", err)
	}

	if overlapped.Load() {
		t.Fatal("scheduler allowed a tick to run concurrently with itself")
	}
}

func TestRun_ToleratesTickError(t *testing.T) {
	s := New(testLogger())
	var fires atomic.Int32
	s.Register("failing", 10*time.Millisecond, func(ctx context.Context) error {
		fires.Add(1)
		return errors.New("boom")
	})

	ctx, cancel := context.WithTimeout(context.Background(), 35*time.Millisecond)
	defer cancel()
	if err := s.Run(ctx, time.Second); err != nil {
		t.Fatalf("run: %v", err)
	}
	if fires.Load() < 2 {
		t.Fatalf("a failing tick should keep firing on schedule, fired %d times", fires.Load())
	}
}

func TestRun_DrainsInFlightTickBeforeReturning(t *testing.T) {
	s := New(testLogger())
	var completed atomic.Bool
	s.Register("long", 5*time.Millisecond, func(ctx context.Context) error {
		time.Sleep(30 * time.Millisecond)
		completed.Store(true)
		return nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 8*time.Millisecond)
	defer cancel()
	if err := s.Run(ctx, time.Second); err != nil {
		t.Fatalf("run: %v", err)
	}
	if !completed.Load() {
		t.Fatal("expected Run to wait for the in-flight tick to finish before returning")
	}
}

func TestRun_ShutdownTimeoutExceededReturnsError(t *testing.T) {
	s := New(testLogger())
	s.Register("stuck", 5*time.Millisecond, func(ctx context.Context) error {
		time.Sleep(200 * time.Millisecond)
		return nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 8*time.Millisecond)
	defer cancel()
	err := s.Run(ctx, 10*time.Millisecond)
	if err == nil {
		t.Fatal("expected a shutdown timeout error when a tick outlives the drain window")
	}
}

func TestRegisterCron_RejectsInvalidExpression(t *testing.T) {
	s := New(testLogger())
	err := s.RegisterCron("bad", "not a cron expr", func(ctx context.Context) error { return nil })
	if err == nil {
		t.Fatal("expected an error for an invalid cron expression")
	}
}

func TestRegisterCron_AcceptsValidExpression(t *testing.T) {
	s := New(testLogger())
	if err := s.RegisterCron("every-minute", "* * * * *", func(ctx context.Context) error { return nil }); err != nil {
		t.Fatalf("register cron: %v", err)
	}
	if len(s.ticks) != 1 {
		t.Fatalf("ticks registered = %d, want 1", len(s.ticks))
	}
}
