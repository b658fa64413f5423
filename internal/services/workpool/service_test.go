package workpool

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"delaykit/pkg/logx"
)

func newRunningPool(t *testing.T, cfg Config) *Service {
	t.Helper()
	s := New(cfg, logx.Nop())
	ctx := context.Background()
	s.Start(ctx)
	t.Cleanup(func() { s.Stop(context.Background()) })
	return s
}

func TestExecuteBeforeStart(t *testing.T) {
	t.Parallel()
	s := New(Config{}, logx.Nop())
	if err := s.Execute(func() {}); !errors.Is(err, ErrStopped) {
		t.Fatalf("err = %v, want ErrStopped", err)
	}
}

func TestExecuteRunsJob(t *testing.T) {
	t.Parallel()
	s := newRunningPool(t, Config{Workers: 2})

	done := make(chan struct{})
	if err := s.Execute(func() { close(done) }); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("job never ran")
	}
}

func TestNilJobRejected(t *testing.T) {
	t.Parallel()
	s := newRunningPool(t, Config{})
	if err := s.Execute(nil); !errors.Is(err, ErrNilJob) {
		t.Fatalf("err = %v, want ErrNilJob", err)
	}
}

func TestQueueFullDrops(t *testing.T) {
	t.Parallel()
	s := newRunningPool(t, Config{Workers: 1, QueueSize: 1})

	block := make(chan struct{})
	// Occupy the single worker.
	if err := s.Execute(func() { <-block }); err != nil {
		t.Fatalf("Execute blocker: %v", err)
	}
	// Give the worker time to pick it up, then fill the queue slot.
	time.Sleep(20 * time.Millisecond)
	if err := s.Execute(func() {}); err != nil {
		t.Fatalf("Execute filler: %v", err)
	}

	if err := s.Execute(func() {}); !errors.Is(err, ErrQueueFull) {
		t.Fatalf("err = %v, want ErrQueueFull", err)
	}
	if snap := s.Snapshot(); snap.Dropped != 1 {
		t.Fatalf("Dropped = %d, want 1", snap.Dropped)
	}
	close(block)
}

func TestPanicDoesNotKillWorker(t *testing.T) {
	t.Parallel()
	s := newRunningPool(t, Config{Workers: 1})

	if err := s.Execute(func() { panic("boom") }); err != nil {
		t.Fatalf("Execute panicking job: %v", err)
	}

	done := make(chan struct{})
	deadline := time.Now().Add(time.Second)
	for {
		err := s.Execute(func() { close(done) })
		if err == nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("Execute after panic: %v", err)
		}
		time.Sleep(5 * time.Millisecond)
	}
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker died after panic")
	}
}

func TestStopDiscardsQueued(t *testing.T) {
	t.Parallel()
	s := New(Config{Workers: 1, QueueSize: 8}, logx.Nop())
	s.Start(context.Background())

	var ran atomic.Int32
	block := make(chan struct{})
	_ = s.Execute(func() { <-block })
	time.Sleep(20 * time.Millisecond)
	_ = s.Execute(func() { ran.Add(1) })

	go func() {
		time.Sleep(20 * time.Millisecond)
		close(block)
	}()
	s.Stop(context.Background())

	if err := s.Execute(func() {}); !errors.Is(err, ErrStopped) {
		t.Fatalf("Execute after Stop: err = %v, want ErrStopped", err)
	}
	// The queued job may or may not have been picked up before stop won the
	// race; what matters is Stop returned and the pool is inert.
	_ = ran.Load()
}

func TestStopIdempotent(t *testing.T) {
	t.Parallel()
	s := New(Config{}, logx.Nop())
	s.Start(context.Background())
	s.Stop(context.Background())
	s.Stop(context.Background())

	if snap := s.Snapshot(); snap.Running {
		t.Fatal("pool still reports running after Stop")
	}
}

func TestRestartAfterStop(t *testing.T) {
	t.Parallel()
	s := New(Config{Workers: 1}, logx.Nop())
	s.Start(context.Background())
	s.Stop(context.Background())
	s.Start(context.Background())
	t.Cleanup(func() { s.Stop(context.Background()) })

	done := make(chan struct{})
	if err := s.Execute(func() { close(done) }); err != nil {
		t.Fatalf("Execute after restart: %v", err)
	}
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("job never ran after restart")
	}
}

func TestExecuteDuringStopRejected(t *testing.T) {
	t.Parallel()
	s := New(Config{Workers: 1, QueueSize: 4}, logx.Nop())
	s.Start(context.Background())

	// Park the only worker so Stop cannot finish while we probe Execute.
	release := make(chan struct{})
	if err := s.Execute(func() { <-release }); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	time.Sleep(20 * time.Millisecond) // let the worker pick it up

	// Expired context: Stop returns immediately and keeps draining in the
	// background.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s.Stop(ctx)

	if err := s.Execute(func() {}); !errors.Is(err, ErrStopped) {
		t.Fatalf("err = %v, want ErrStopped while stop in progress", err)
	}

	close(release)
	s.Stop(context.Background())
}
