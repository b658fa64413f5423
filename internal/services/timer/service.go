package timer

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"delaykit/internal/eventbus"
	"delaykit/pkg/logx"
	"delaykit/pkg/wheel"
)

// Service is the scheduling facade. It owns one wheel for its whole lifetime;
// Submit and Shutdown are safe to call from any goroutine without external
// synchronization.
type Service struct {
	log  logx.Logger
	bus  eventbus.Bus
	pool Pool
	cfg  Config

	w *wheel.Wheel

	down atomic.Bool

	submitted atomic.Uint64
	fired     atomic.Uint64
	cancelled atomic.Uint64
	dropped   atomic.Uint64

	// recurring schedules, keyed by name
	parser cron.Parser
	cmu    sync.Mutex
	crons  map[string]*cronEntry
}

// New validates cfg, constructs the wheel and starts its tick goroutine.
// Construction is refused outright on invalid config; a partially constructed
// service is never returned.
func New(cfg Config, pool Pool, log logx.Logger, bus eventbus.Bus) (*Service, error) {
	cfg = cfg.withDefaults()
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadConfig, err)
	}
	if pool == nil {
		return nil, ErrNilPool
	}

	s := &Service{
		log:  log,
		bus:  bus,
		pool: pool,
		cfg:  cfg,
		// SecondOptional allows both 5-field and 6-field (with seconds) cron specs.
		parser: cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
		crons:  map[string]*cronEntry{},
	}
	s.w = wheel.New(
		wheel.WithTickDuration(cfg.TickDuration),
		wheel.WithWheelSize(cfg.WheelSize),
		wheel.WithLogger(wheel.LoggerFunc(func(format string, args ...any) {
			log.Warn(fmt.Sprintf(format, args...))
		})),
	)
	s.w.Start()

	log.Info("timer service started", logx.Duration("tick", cfg.TickDuration), logx.Int("wheel_size", cfg.WheelSize))
	return s, nil
}

// Submit registers task to fire once after delay. With Threaded mode the task
// is wrapped so that firing only enqueues it on the worker pool.
//
// The returned handle can be cancelled until the task fires. Submit never
// blocks waiting for the delay.
func (s *Service) Submit(task wheel.Task, delay time.Duration, mode ExecutionMode) (*wheel.Timeout, error) {
	if s.down.Load() {
		return nil, ErrShutdown
	}

	to, err := s.w.NewTimeout(s.buildTask(task, mode), delay)
	if err != nil {
		if err == wheel.ErrStopped {
			return nil, ErrShutdown
		}
		return nil, err
	}

	s.submitted.Add(1)
	if s.bus != nil {
		s.bus.Publish(eventbus.Event{Type: eventbus.TypeSubmitted, Data: TimeoutEvent{
			ID:       to.ID(),
			Mode:     mode.String(),
			Delay:    delay,
			Deadline: to.Deadline(),
		}})
	}
	s.log.Debug("timeout submitted", logx.String("id", to.ID()), logx.String("mode", mode.String()), logx.Duration("delay", delay))
	return to, nil
}

// SubmitAt schedules task for an absolute instant. Instants in the past fire
// on the next tick.
func (s *Service) SubmitAt(task wheel.Task, at time.Time, mode ExecutionMode) (*wheel.Timeout, error) {
	delay := time.Until(at)
	if delay < 0 {
		delay = 0
	}
	return s.Submit(task, delay, mode)
}

// Cancel revokes a pending timeout obtained from Submit or SubmitAt. It
// reports whether this call revoked it; cancelling an already fired,
// cancelled, or discarded timeout returns false. Calling to.Cancel directly
// works too, but bypasses the cancellation counter and event.
func (s *Service) Cancel(to *wheel.Timeout) bool {
	if to == nil || !to.Cancel() {
		return false
	}
	s.cancelled.Add(1)
	if s.bus != nil {
		s.bus.Publish(eventbus.Event{Type: eventbus.TypeCancelled, Data: TimeoutEvent{
			ID:       to.ID(),
			Deadline: to.Deadline(),
		}})
	}
	s.log.Debug("timeout cancelled", logx.String("id", to.ID()))
	return true
}

// EstimatedNowMillis returns the current wall-clock time in milliseconds.
//
// It deliberately reads the host clock instead of the wheel's internal tick
// estimate, so calling it frequently never wakes the timer goroutine.
func (s *Service) EstimatedNowMillis() int64 {
	return time.Now().UnixMilli()
}

// Shutdown stops the wheel, discarding all pending registrations without
// invoking them. Idempotent. It does not wait for threaded tasks already
// handed to the pool. Must not be called from an Inline task.
func (s *Service) Shutdown() {
	if !s.down.CompareAndSwap(false, true) {
		return
	}

	s.cmu.Lock()
	for name := range s.crons {
		delete(s.crons, name)
	}
	s.cmu.Unlock()

	s.w.Stop()
	s.log.Info("timer service stopped", logx.Uint64("submitted", s.submitted.Load()), logx.Uint64("fired", s.fired.Load()))
}

func (s *Service) Snapshot() Snapshot {
	return Snapshot{
		TickDuration: s.cfg.TickDuration,
		WheelSize:    s.cfg.WheelSize,
		Pending:      s.w.Len(),
		Submitted:    s.submitted.Load(),
		Fired:        s.fired.Load(),
		Cancelled:    s.cancelled.Load(),
		Dropped:      s.dropped.Load(),
		Crons:        s.cronInfos(),
	}
}

// buildTask applies the per-mode decoration: Threaded tasks get the dispatch
// wrapper, Inline tasks only the firing instrumentation.
func (s *Service) buildTask(task wheel.Task, mode ExecutionMode) wheel.Task {
	if mode == Threaded {
		return &dispatchTask{task: task, pool: s.pool, svc: s}
	}
	return wheel.TaskFunc(func(to *wheel.Timeout) error {
		s.observeFired(to, Inline)
		if err := task.Run(to); err != nil {
			// Reported here; returning nil keeps the wheel from logging twice.
			s.reportFailure(to, Inline, err)
		}
		return nil
	})
}

func (s *Service) observeFired(to *wheel.Timeout, mode ExecutionMode) {
	s.fired.Add(1)
	if s.bus != nil {
		s.bus.Publish(eventbus.Event{Type: eventbus.TypeFired, Data: TimeoutEvent{
			ID:   to.ID(),
			Mode: mode.String(),
		}})
	}
}

func (s *Service) reportFailure(to *wheel.Timeout, mode ExecutionMode, err error) {
	s.log.Warn("timer task failed", logx.String("id", to.ID()), logx.String("mode", mode.String()), logx.Err(err))
	if s.bus != nil {
		s.bus.Publish(eventbus.Event{Type: eventbus.TypeTaskFailed, Data: TimeoutEvent{
			ID:    to.ID(),
			Mode:  mode.String(),
			Error: err.Error(),
		}})
	}
}
