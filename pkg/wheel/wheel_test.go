package wheel_test

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"delaykit/pkg/wheel"
)

func TestFireAfterDelay(t *testing.T) {
	should := require.New(t)

	w := wheel.New(
		wheel.WithTickDuration(10*time.Millisecond),
		wheel.WithWheelSize(64),
	)
	w.Start()
	defer w.Stop()

	var fired atomic.Int32
	var firedAt atomic.Int64

	start := time.Now()
	delay := 50 * time.Millisecond
	to, err := w.NewTimeout(wheel.TaskFunc(func(h *wheel.Timeout) error {
		fired.Add(1)
		firedAt.Store(int64(time.Since(start)))
		return nil
	}), delay)
	should.NoError(err)
	should.NotEmpty(to.ID())
	should.True(to.IsPending())

	time.Sleep(120 * time.Millisecond)

	should.Equal(int32(1), fired.Load(), "task fires exactly once")
	should.True(to.IsExpired())
	elapsed := time.Duration(firedAt.Load())
	should.GreaterOrEqual(elapsed, delay, "never fires early")
	should.Less(elapsed, delay+40*time.Millisecond)
}

func TestOrdering(t *testing.T) {
	should := require.New(t)

	w := wheel.New(
		wheel.WithTickDuration(10*time.Millisecond),
		wheel.WithWheelSize(32),
	)
	w.Start()
	defer w.Stop()

	order := make(chan string, 2)
	_, err := w.NewTimeout(wheel.TaskFunc(func(*wheel.Timeout) error {
		order <- "slow"
		return nil
	}), 80*time.Millisecond)
	should.NoError(err)
	_, err = w.NewTimeout(wheel.TaskFunc(func(*wheel.Timeout) error {
		order <- "fast"
		return nil
	}), 20*time.Millisecond)
	should.NoError(err)

	time.Sleep(150 * time.Millisecond)
	should.Equal("fast", <-order)
	should.Equal("slow", <-order)
}

func TestCancelBeforeFire(t *testing.T) {
	should := require.New(t)

	w := wheel.New(
		wheel.WithTickDuration(10*time.Millisecond),
		wheel.WithWheelSize(32),
	)
	w.Start()
	defer w.Stop()

	var fired atomic.Int32
	to, err := w.NewTimeout(wheel.TaskFunc(func(*wheel.Timeout) error {
		fired.Add(1)
		return nil
	}), 60*time.Millisecond)
	should.NoError(err)
	should.Equal(1, w.Len())

	should.True(to.Cancel())
	should.False(to.Cancel(), "second cancel is a no-op")
	should.True(to.IsCancelled())
	should.Equal(0, w.Len())

	time.Sleep(120 * time.Millisecond)
	should.Zero(fired.Load(), "cancelled task never runs")
}

func TestCancelAfterFire(t *testing.T) {
	should := require.New(t)

	w := wheel.New(
		wheel.WithTickDuration(5*time.Millisecond),
		wheel.WithWheelSize(16),
	)
	w.Start()
	defer w.Stop()

	to, err := w.NewTimeout(wheel.TaskFunc(func(*wheel.Timeout) error { return nil }), 5*time.Millisecond)
	should.NoError(err)

	time.Sleep(60 * time.Millisecond)
	should.True(to.IsExpired())
	should.False(to.Cancel())
	should.True(to.IsExpired(), "cancel after fire does not change state")
}

func TestFailingTaskDoesNotHaltWheel(t *testing.T) {
	should := require.New(t)

	w := wheel.New(
		wheel.WithTickDuration(10*time.Millisecond),
		wheel.WithWheelSize(16),
		wheel.WithLogger(wheel.Printf),
	)
	w.Start()
	defer w.Stop()

	var after atomic.Int32
	_, err := w.NewTimeout(wheel.TaskFunc(func(*wheel.Timeout) error {
		return errors.New("boom")
	}), 10*time.Millisecond)
	should.NoError(err)
	_, err = w.NewTimeout(wheel.TaskFunc(func(*wheel.Timeout) error {
		panic("boom")
	}), 20*time.Millisecond)
	should.NoError(err)
	_, err = w.NewTimeout(wheel.TaskFunc(func(*wheel.Timeout) error {
		after.Add(1)
		return nil
	}), 40*time.Millisecond)
	should.NoError(err)

	time.Sleep(120 * time.Millisecond)
	should.Equal(int32(1), after.Load(), "later task fires despite earlier failures")
}

func TestStopDiscardsPending(t *testing.T) {
	should := require.New(t)

	w := wheel.New(
		wheel.WithTickDuration(10*time.Millisecond),
		wheel.WithWheelSize(16),
	)
	w.Start()

	var fired atomic.Int32
	to, err := w.NewTimeout(wheel.TaskFunc(func(*wheel.Timeout) error {
		fired.Add(1)
		return nil
	}), 200*time.Millisecond)
	should.NoError(err)

	w.Stop()
	w.Stop() // idempotent

	should.Zero(w.Len())
	should.True(to.IsCancelled())

	_, err = w.NewTimeout(wheel.TaskFunc(func(*wheel.Timeout) error { return nil }), time.Millisecond)
	should.ErrorIs(err, wheel.ErrStopped)

	time.Sleep(250 * time.Millisecond)
	should.Zero(fired.Load(), "discarded task never runs")
}

func TestNilTask(t *testing.T) {
	should := require.New(t)

	w := wheel.New()
	_, err := w.NewTimeout(nil, time.Second)
	should.ErrorIs(err, wheel.ErrNilTask)
}

func TestNegativeDelayClampsToZero(t *testing.T) {
	should := require.New(t)

	w := wheel.New(
		wheel.WithTickDuration(10*time.Millisecond),
		wheel.WithWheelSize(16),
	)
	w.Start()
	defer w.Stop()

	var fired atomic.Int32
	_, err := w.NewTimeout(wheel.TaskFunc(func(*wheel.Timeout) error {
		fired.Add(1)
		return nil
	}), -time.Second)
	should.NoError(err)

	time.Sleep(60 * time.Millisecond)
	should.Equal(int32(1), fired.Load())
}

func TestSingleSlotWheel(t *testing.T) {
	should := require.New(t)

	w := wheel.New(
		wheel.WithTickDuration(50*time.Millisecond),
		wheel.WithWheelSize(1),
	)
	w.Start()
	defer w.Stop()

	// Sub-tick delays registered mid-tick land one bucket ahead of their
	// deadline; on a one-slot wheel that bucket is the one being scanned.
	var fired atomic.Int32
	for i := 0; i < 2; i++ {
		_, err := w.NewTimeout(wheel.TaskFunc(func(*wheel.Timeout) error {
			fired.Add(1)
			return nil
		}), 45*time.Millisecond)
		should.NoError(err)
	}

	deadline := time.After(2 * time.Second)
	for fired.Load() < 2 {
		select {
		case <-deadline:
			t.Fatalf("only %d of 2 tasks fired; wheel stalled", fired.Load())
		case <-time.After(10 * time.Millisecond):
		}
	}
	should.Equal(0, w.Len())
}
