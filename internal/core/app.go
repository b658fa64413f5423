// Package core wires the delayd process together: config manager, logging,
// event bus, worker pool and the timer service.
package core

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"delaykit/internal/config"
	"delaykit/internal/eventbus"
	"delaykit/internal/services/timer"
	"delaykit/internal/services/workpool"
	"delaykit/pkg/logx"
	"delaykit/pkg/wheel"
)

type App struct {
	cfgPath string

	cfgm *config.Manager
	logs *logx.Service
	log  logx.Logger

	bus  eventbus.Bus
	pool *workpool.Service

	mu      sync.Mutex
	timers  *timer.Service
	lastCfg *config.Config

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewApp(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", cfgPath, err)
	}

	logSvc, log := logx.New(cfg.LogxConfig())
	log = log.With(logx.String("comp", "app"))

	cfgm.SetLogger(log.With(logx.String("comp", "config")))
	cfgm.SetValidator(func(ctx context.Context, c *config.Config) error {
		return c.Validate()
	})

	bus := eventbus.New()
	pool := workpool.New(cfg.WorkpoolConfig(), log.With(logx.String("comp", "workpool")))

	return &App{
		cfgPath: cfgPath,
		cfgm:    cfgm,
		logs:    logSvc,
		log:     log,
		bus:     bus,
		pool:    pool,
		lastCfg: cfg,
	}, nil
}

// Timers exposes the scheduling facade. Nil until Start has run.
func (a *App) Timers() *timer.Service {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.timers
}

func (a *App) Bus() eventbus.Bus { return a.bus }

func (a *App) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	// Pool first so threaded timeouts firing early have somewhere to go.
	a.pool.Start(runCtx)

	cfg := a.cfgm.Get()
	tcfg, err := cfg.TimerConfig()
	if err != nil {
		return err
	}
	timers, err := timer.New(tcfg, a.pool, a.log.With(logx.String("comp", "timer")), a.bus)
	if err != nil {
		return err
	}
	a.mu.Lock()
	a.timers = timers
	a.mu.Unlock()

	if cfg.Stats.Enabled {
		if err := timers.SubmitCron("core:stats", cfg.StatsSpec(), timer.Inline, wheel.TaskFunc(a.logStats)); err != nil {
			return fmt.Errorf("register stats heartbeat: %w", err)
		}
	}

	a.wg.Add(2)
	go func() {
		defer a.wg.Done()
		_ = a.cfgm.Watch(runCtx)
	}()
	ch := a.cfgm.Subscribe(4)
	go func() {
		defer a.wg.Done()
		defer a.cfgm.Unsubscribe(ch)
		a.reloadLoop(runCtx, ch)
	}()

	a.log.Info("app started", logx.String("config", a.cfgPath))
	return nil
}

func (a *App) Stop(ctx context.Context) error {
	a.mu.Lock()
	timers := a.timers
	a.mu.Unlock()
	if timers != nil {
		timers.Shutdown()
	}

	a.pool.Stop(ctx)

	if a.cancel != nil {
		a.cancel()
	}

	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
	}

	a.log.Info("app stopped")
	return a.logs.Close()
}

// reloadLoop applies hot-reloadable config sections. The timer block is fixed
// at construction (the wheel's geometry cannot change while it runs), so a
// change there only logs a restart hint.
func (a *App) reloadLoop(ctx context.Context, ch chan *config.Config) {
	for {
		select {
		case <-ctx.Done():
			return
		case cfg, ok := <-ch:
			if !ok {
				return
			}
			a.applyConfig(cfg)
		}
	}
}

func (a *App) applyConfig(cfg *config.Config) {
	a.mu.Lock()
	old := a.lastCfg
	a.lastCfg = cfg
	a.mu.Unlock()

	changed, attrs := config.SummarizeChange(old, cfg)
	if len(changed) == 0 {
		return
	}
	a.log.Info("config reloaded", append([]logx.Field{logx.String("sections", strings.Join(changed, ","))}, attrs...)...)

	a.logs.Apply(cfg.LogxConfig())
	a.pool.Apply(cfg.WorkpoolConfig())

	for _, section := range changed {
		if section == "timer" {
			a.log.Warn("timer config changed; restart required to apply")
		}
	}
}

func (a *App) logStats(*wheel.Timeout) error {
	a.mu.Lock()
	timers := a.timers
	a.mu.Unlock()
	if timers == nil {
		return nil
	}
	ts := timers.Snapshot()
	ps := a.pool.Snapshot()
	a.log.Info("timer stats",
		logx.Int("pending", ts.Pending),
		logx.Uint64("submitted", ts.Submitted),
		logx.Uint64("fired", ts.Fired),
		logx.Uint64("cancelled", ts.Cancelled),
		logx.Uint64("dropped", ts.Dropped),
		logx.Int("crons", len(ts.Crons)),
		logx.Int("pool_queue", ps.QueueLen),
		logx.Uint64("pool_executed", ps.Executed),
		logx.Uint64("pool_dropped", ps.Dropped),
		logx.Uint64("bus_dropped", a.bus.Dropped()),
	)
	return nil
}
