package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

type recordedWaits struct {
	delays []time.Duration
	stopAt int
	cancel context.CancelFunc
}

func (r *recordedWaits) wait(ctx context.Context, d time.Duration) error {
	r.delays = append(r.delays, d)
	if len(r.delays) >= r.stopAt {
		r.cancel()
		return ctx.Err()
	}
	return nil
}

func newTestScheduler(opts Options, rec *recordedWaits) *Scheduler {
	s := New(opts, zerolog.Nop())
	s.wait = rec.wait
	return s
}

func TestSchedulerRunsImmediatelyThenWaitsInterval(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	rec := &recordedWaits{stopAt: 3, cancel: cancel}
	s := newTestScheduler(Options{Interval: time.Hour}, rec)

	calls := 0
	err := s.Run(ctx, func(context.Context) error {
		if len(rec.delays) != calls {
			t.Fatalf("第 %d 次执行前应等待 %d 次, 实际 %d", calls+1, calls, len(rec.delays))
		}
		calls++
		return nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("应返回 context.Canceled, 实际 %v", err)
	}
	if calls != 3 {
		t.Fatalf("应执行 3 次, 实际 %d", calls)
	}
	for i, d := range rec.delays {
		if d != time.Hour {
			t.Fatalf("第 %d 次等待应为 1h, 实际 %s", i, d)
		}
	}
}

func TestSchedulerCooldownAfterError(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	rec := &recordedWaits{stopAt: 3, cancel: cancel}
	s := newTestScheduler(Options{Interval: time.Hour, ErrorCooldown: 5 * time.Minute}, rec)

	calls := 0
	_ = s.Run(ctx, func(context.Context) error {
		calls++
		if calls == 2 {
			return errors.New("boom")
		}
		return nil
	})

	want := []time.Duration{time.Hour, 5 * time.Minute, time.Hour}
	if len(rec.delays) != len(want) {
		t.Fatalf("等待次数不正确: %v", rec.delays)
	}
	for i := range want {
		if rec.delays[i] != want[i] {
			t.Fatalf("第 %d 次等待应为 %s, 实际 %s", i, want[i], rec.delays[i])
		}
	}
}

func TestSchedulerRecoversPanic(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	rec := &recordedWaits{stopAt: 2, cancel: cancel}
	s := newTestScheduler(Options{Interval: time.Hour}, rec)

	calls := 0
	_ = s.Run(ctx, func(context.Context) error {
		calls++
		if calls == 1 {
			panic("unexpected")
		}
		return nil
	})

	if calls != 2 {
		t.Fatalf("panic 后应继续执行, 实际执行 %d 次", calls)
	}
	if rec.delays[0] != 5*time.Minute {
		t.Fatalf("panic 后应使用默认冷却 5m, 实际 %s", rec.delays[0])
	}
}

func TestSchedulerStartupDelay(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	rec := &recordedWaits{stopAt: 2, cancel: cancel}
	s := newTestScheduler(Options{Interval: time.Hour, StartupDelay: 10 * time.Second}, rec)

	_ = s.Run(ctx, func(context.Context) error { return nil })

	if len(rec.delays) != 2 || rec.delays[0] != 10*time.Second {
		t.Fatalf("首次等待应为启动延迟: %v", rec.delays)
	}
}

func TestSchedulerStopsWhenCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s := New(Options{Interval: time.Hour}, zerolog.Nop())

	called := false
	err := s.Run(ctx, func(context.Context) error {
		called = true
		return nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("应返回 context.Canceled, 实际 %v", err)
	}
	if called {
		t.Fatal("已取消的 context 不应执行周期")
	}
}

func TestSchedulerDefaultWaitStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s := New(Options{Interval: time.Hour}, zerolog.Nop())

	done := make(chan error, 1)
	go func() {
		done <- s.Run(ctx, func(context.Context) error {
			cancel()
			return nil
		})
	}()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("应返回 context.Canceled, 实际 %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("取消后调度器应立即停止等待")
	}
}

func TestNewPanicsOnZeroInterval(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("间隔为 0 应 panic")
		}
	}()
	New(Options{}, zerolog.Nop())
}
