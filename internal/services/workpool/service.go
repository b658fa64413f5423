package workpool

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"delaykit/pkg/logx"
)

// Service executes submitted jobs on a pool of worker goroutines.
//
// It is panic-safe (worker goroutines recover), and cooperates with shutdown
// via Start/Stop.
type Service struct {
	mu sync.Mutex

	log logx.Logger
	cfg Config

	queue     chan func()
	stopCh    chan struct{}
	stopDone  chan struct{}
	runCtx    context.Context
	runCancel context.CancelFunc
	workerWG  sync.WaitGroup

	// Counters (lifetime) for operator diagnostics.
	executed atomic.Uint64
	dropped  atomic.Uint64
}

func New(cfg Config, log logx.Logger) *Service {
	return &Service{cfg: cfg.withDefaults(), log: log}
}

func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	s.cfg = cfg.withDefaults()
	s.mu.Unlock()
	// Note: live pool resizing is out of scope; new size applies on restart.
}

func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	cur := s.cfg
	s.mu.Unlock()
	s.log.Debug("start requested", logx.Int("workers", cur.Workers), logx.Int("queue_size", cur.QueueSize))

	// If a Stop() is in progress, wait for it to complete (prevents double worker pools).
	for {
		s.mu.Lock()
		if s.stopCh == nil {
			break
		}
		done := s.stopDone
		if done == nil {
			// already running
			s.mu.Unlock()
			return
		}
		s.mu.Unlock()
		select {
		case <-done:
			// loop
		case <-ctx.Done():
			return
		}
	}
	defer s.mu.Unlock()

	s.stopCh = make(chan struct{})
	s.runCtx, s.runCancel = context.WithCancel(ctx)

	cfg := s.cfg
	// Fresh queue per run to avoid executing stale jobs after a stop/start toggle.
	s.queue = make(chan func(), cfg.QueueSize)

	runCtx := s.runCtx
	stopCh := s.stopCh
	queue := s.queue

	s.workerWG.Add(cfg.Workers)
	for i := 0; i < cfg.Workers; i++ {
		idx := i
		go func() {
			defer s.workerWG.Done()
			s.log.Debug("worker started", logx.Int("worker", idx))
			s.worker(runCtx, stopCh, queue, idx)
			s.log.Debug("worker stopped", logx.Int("worker", idx))
		}()
	}

	s.log.Info("service started", logx.Int("workers", cfg.Workers), logx.Int("queue_size", cfg.QueueSize))
}

func (s *Service) Stop(ctx context.Context) {
	start := time.Now()
	s.mu.Lock()
	if s.stopCh == nil {
		s.mu.Unlock()
		return
	}
	if s.stopDone != nil {
		done := s.stopDone
		s.mu.Unlock()
		select {
		case <-done:
			return
		case <-ctx.Done():
			return
		}
	}

	done := make(chan struct{})
	s.stopDone = done
	stopCh := s.stopCh
	cancel := s.runCancel
	s.runCancel = nil
	s.mu.Unlock()

	close(stopCh)
	if cancel != nil {
		cancel()
	}

	go func() {
		s.workerWG.Wait()
		s.mu.Lock()
		s.stopCh = nil
		s.runCtx = nil
		s.queue = nil
		s.stopDone = nil
		s.mu.Unlock()
		close(done)
		s.log.Info("service stopped", logx.Duration("took", time.Since(start)))
	}()

	select {
	case <-done:
		return
	case <-ctx.Done():
		// stop continues in background
		return
	}
}

// Execute submits a job for asynchronous execution.
//
// It is non-blocking: if the queue is full it returns ErrQueueFull and drops the job.
func (s *Service) Execute(job func()) error {
	if job == nil {
		return ErrNilJob
	}

	s.mu.Lock()
	q := s.queue
	stopping := s.stopDone != nil
	s.mu.Unlock()

	// Once Stop has begun the workers are draining out; a job enqueued now
	// would be silently discarded, so refuse it instead.
	if q == nil || stopping {
		return ErrStopped
	}

	select {
	case q <- job:
		return nil
	default:
		s.dropped.Add(1)
		s.log.Warn("workpool queue full; dropping job", logx.Int("queue_len", len(q)), logx.Int("queue_cap", cap(q)))
		return ErrQueueFull
	}
}

func (s *Service) Snapshot() Snapshot {
	s.mu.Lock()
	running := s.stopCh != nil && s.stopDone == nil
	workers := s.cfg.Workers
	ql := 0
	qc := 0
	if s.queue != nil {
		ql = len(s.queue)
		qc = cap(s.queue)
	}
	s.mu.Unlock()

	return Snapshot{
		Running:  running,
		Workers:  workers,
		QueueLen: ql,
		QueueCap: qc,
		Executed: s.executed.Load(),
		Dropped:  s.dropped.Load(),
	}
}
