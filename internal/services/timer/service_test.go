package timer_test

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"delaykit/internal/eventbus"
	"delaykit/internal/services/timer"
	"delaykit/pkg/logx"
	"delaykit/pkg/wheel"
)

// gatedPool queues jobs until Release is called, which proves a threaded task
// went through the pool instead of running on the wheel goroutine.
type gatedPool struct {
	mu   sync.Mutex
	jobs []func()
}

func (p *gatedPool) Execute(job func()) error {
	p.mu.Lock()
	p.jobs = append(p.jobs, job)
	p.mu.Unlock()
	return nil
}

func (p *gatedPool) Release() {
	p.mu.Lock()
	jobs := p.jobs
	p.jobs = nil
	p.mu.Unlock()
	for _, j := range jobs {
		go j()
	}
}

func (p *gatedPool) Queued() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.jobs)
}

// rejectPool refuses every job.
type rejectPool struct{}

func (rejectPool) Execute(func()) error { return errors.New("pool full") }

func newService(t *testing.T, pool timer.Pool) *timer.Service {
	t.Helper()
	if pool == nil {
		pool = &gatedPool{}
	}
	s, err := timer.New(timer.Config{TickDuration: 10 * time.Millisecond, WheelSize: 64}, pool, logx.Nop(), nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(s.Shutdown)
	return s
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	t.Parallel()
	pool := &gatedPool{}

	if _, err := timer.New(timer.Config{TickDuration: -time.Second}, pool, logx.Nop(), nil); !errors.Is(err, timer.ErrBadConfig) {
		t.Fatalf("negative tick: err = %v, want ErrBadConfig", err)
	}
	if _, err := timer.New(timer.Config{WheelSize: -1}, pool, logx.Nop(), nil); !errors.Is(err, timer.ErrBadConfig) {
		t.Fatalf("negative wheel size: err = %v, want ErrBadConfig", err)
	}
	if _, err := timer.New(timer.Config{}, nil, logx.Nop(), nil); !errors.Is(err, timer.ErrNilPool) {
		t.Fatalf("nil pool: err = %v, want ErrNilPool", err)
	}
}

func TestDefaultsApplied(t *testing.T) {
	t.Parallel()
	s := newServiceWithConfig(t, timer.Config{})
	snap := s.Snapshot()
	if snap.TickDuration != timer.DefaultTickDuration {
		t.Fatalf("TickDuration = %v, want %v", snap.TickDuration, timer.DefaultTickDuration)
	}
	if snap.WheelSize != timer.DefaultWheelSize {
		t.Fatalf("WheelSize = %d, want %d", snap.WheelSize, timer.DefaultWheelSize)
	}
}

func newServiceWithConfig(t *testing.T, cfg timer.Config) *timer.Service {
	t.Helper()
	s, err := timer.New(cfg, &gatedPool{}, logx.Nop(), nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(s.Shutdown)
	return s
}

func TestSubmitInlineFires(t *testing.T) {
	t.Parallel()
	s := newService(t, nil)

	fired := make(chan time.Time, 1)
	start := time.Now()
	delay := 30 * time.Millisecond
	to, err := s.Submit(wheel.TaskFunc(func(*wheel.Timeout) error {
		fired <- time.Now()
		return nil
	}), delay, timer.Inline)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	select {
	case at := <-fired:
		if elapsed := at.Sub(start); elapsed < delay {
			t.Fatalf("fired after %v, before delay %v", elapsed, delay)
		}
	case <-time.After(time.Second):
		t.Fatal("inline task never fired")
	}
	time.Sleep(10 * time.Millisecond)
	if !to.IsExpired() {
		t.Fatal("handle should be expired after firing")
	}
}

func TestThreadedGoesThroughPool(t *testing.T) {
	t.Parallel()
	pool := &gatedPool{}
	s := newService(t, pool)

	var ran atomic.Bool
	_, err := s.Submit(wheel.TaskFunc(func(*wheel.Timeout) error {
		ran.Store(true)
		return nil
	}), 20*time.Millisecond, timer.Threaded)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	deadline := time.Now().Add(time.Second)
	for pool.Queued() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("threaded task never reached the pool")
		}
		time.Sleep(5 * time.Millisecond)
	}
	if ran.Load() {
		t.Fatal("task ran on the wheel goroutine instead of the pool")
	}

	pool.Release()
	deadline = time.Now().Add(time.Second)
	for !ran.Load() {
		if time.Now().After(deadline) {
			t.Fatal("task never ran after pool release")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestThreadedFailureIsolated(t *testing.T) {
	t.Parallel()
	pool := &gatedPool{}
	s := newService(t, pool)

	_, err := s.Submit(wheel.TaskFunc(func(*wheel.Timeout) error {
		return errors.New("boom")
	}), 10*time.Millisecond, timer.Threaded)
	if err != nil {
		t.Fatalf("Submit failing task: %v", err)
	}
	_, err = s.Submit(wheel.TaskFunc(func(*wheel.Timeout) error {
		panic("boom")
	}), 10*time.Millisecond, timer.Threaded)
	if err != nil {
		t.Fatalf("Submit panicking task: %v", err)
	}

	later := make(chan struct{})
	_, err = s.Submit(wheel.TaskFunc(func(*wheel.Timeout) error {
		close(later)
		return nil
	}), 40*time.Millisecond, timer.Inline)
	if err != nil {
		t.Fatalf("Submit later task: %v", err)
	}

	time.Sleep(30 * time.Millisecond)
	pool.Release()

	select {
	case <-later:
	case <-time.After(time.Second):
		t.Fatal("later task blocked by earlier failures")
	}
}

func TestDispatchRejectionDoesNotPropagate(t *testing.T) {
	t.Parallel()
	s := newService(t, rejectPool{})

	after := make(chan struct{})
	if _, err := s.Submit(wheel.TaskFunc(func(*wheel.Timeout) error { return nil }), 10*time.Millisecond, timer.Threaded); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if _, err := s.Submit(wheel.TaskFunc(func(*wheel.Timeout) error {
		close(after)
		return nil
	}), 30*time.Millisecond, timer.Inline); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	select {
	case <-after:
	case <-time.After(time.Second):
		t.Fatal("wheel stalled after pool rejection")
	}
	if snap := s.Snapshot(); snap.Dropped != 1 {
		t.Fatalf("Dropped counter = %d, want 1", snap.Dropped)
	}
}

func TestCancelBeforeFire(t *testing.T) {
	t.Parallel()
	s := newService(t, nil)

	var fired atomic.Bool
	to, err := s.Submit(wheel.TaskFunc(func(*wheel.Timeout) error {
		fired.Store(true)
		return nil
	}), 60*time.Millisecond, timer.Inline)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if !s.Cancel(to) {
		t.Fatal("Cancel should succeed before firing")
	}
	if s.Cancel(to) {
		t.Fatal("second Cancel should report false")
	}
	time.Sleep(120 * time.Millisecond)
	if fired.Load() {
		t.Fatal("cancelled task fired")
	}
	if snap := s.Snapshot(); snap.Cancelled != 1 {
		t.Fatalf("Cancelled counter = %d, want 1", snap.Cancelled)
	}
}

func TestShutdown(t *testing.T) {
	t.Parallel()
	s := newService(t, nil)

	var fired atomic.Bool
	_, err := s.Submit(wheel.TaskFunc(func(*wheel.Timeout) error {
		fired.Store(true)
		return nil
	}), 150*time.Millisecond, timer.Inline)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	s.Shutdown()
	s.Shutdown() // idempotent

	if _, err := s.Submit(wheel.TaskFunc(func(*wheel.Timeout) error { return nil }), time.Millisecond, timer.Inline); !errors.Is(err, timer.ErrShutdown) {
		t.Fatalf("Submit after Shutdown: err = %v, want ErrShutdown", err)
	}

	time.Sleep(200 * time.Millisecond)
	if fired.Load() {
		t.Fatal("pending task fired after shutdown")
	}
}

func TestSubmitAtPastFiresSoon(t *testing.T) {
	t.Parallel()
	s := newService(t, nil)

	fired := make(chan struct{})
	_, err := s.SubmitAt(wheel.TaskFunc(func(*wheel.Timeout) error {
		close(fired)
		return nil
	}), time.Now().Add(-time.Minute), timer.Inline)
	if err != nil {
		t.Fatalf("SubmitAt: %v", err)
	}
	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("past-deadline task never fired")
	}
}

func TestEstimatedNowMillis(t *testing.T) {
	t.Parallel()
	s := newService(t, nil)

	before := time.Now().UnixMilli()
	a := s.EstimatedNowMillis()
	b := s.EstimatedNowMillis()
	after := time.Now().UnixMilli()

	if a < before || b > after || b < a {
		t.Fatalf("clock reads out of order: before=%d a=%d b=%d after=%d", before, a, b, after)
	}
}

func TestFiredEventPublished(t *testing.T) {
	t.Parallel()
	bus := eventbus.New()
	s, err := timer.New(timer.Config{TickDuration: 10 * time.Millisecond, WheelSize: 32}, &gatedPool{}, logx.Nop(), bus)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(s.Shutdown)

	events, unsub := bus.Subscribe(16)
	defer unsub()

	if _, err := s.Submit(wheel.TaskFunc(func(*wheel.Timeout) error { return nil }), 10*time.Millisecond, timer.Inline); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	sawSubmitted := false
	sawFired := false
	deadline := time.After(time.Second)
	for !(sawSubmitted && sawFired) {
		select {
		case e := <-events:
			switch e.Type {
			case eventbus.TypeSubmitted:
				sawSubmitted = true
			case eventbus.TypeFired:
				sawFired = true
			}
		case <-deadline:
			t.Fatalf("missing events: submitted=%v fired=%v", sawSubmitted, sawFired)
		}
	}
}
