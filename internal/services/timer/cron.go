package timer

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"delaykit/pkg/logx"
	"delaykit/pkg/wheel"
)

// cronEntry is one named recurring schedule. The wheel only ever holds its
// next occurrence as a one-shot timeout; firing re-arms the entry.
type cronEntry struct {
	name  string
	spec  string
	mode  ExecutionMode
	sched cron.Schedule
	task  wheel.Task

	mu   sync.Mutex
	to   *wheel.Timeout
	next time.Time
}

// SubmitCron registers task under name to fire on the given cron spec until
// CancelCron or Shutdown. Re-registering an existing name replaces it.
//
// Accepted specs are 5-field or 6-field (with seconds) cron expressions and
// descriptors such as "@hourly" or "@every 90s".
func (s *Service) SubmitCron(name, spec string, mode ExecutionMode, task wheel.Task) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return ErrNameRequired
	}
	if task == nil {
		return wheel.ErrNilTask
	}
	if s.down.Load() {
		return ErrShutdown
	}

	sched, err := s.parser.Parse(spec)
	if err != nil {
		return fmt.Errorf("parse cron spec %q: %w", spec, err)
	}

	e := &cronEntry{name: name, spec: spec, mode: mode, sched: sched, task: task}

	s.cmu.Lock()
	old := s.crons[name]
	s.crons[name] = e
	s.cmu.Unlock()

	// Upsert by name: a replaced entry's pending occurrence must not fire.
	if old != nil {
		old.cancelPending()
		s.log.Debug("cron schedule replaced", logx.String("name", name), logx.String("spec", spec))
	}

	return s.armCron(e)
}

// CancelCron removes a named schedule and reports whether it existed. The
// pending occurrence, if any, never fires.
func (s *Service) CancelCron(name string) bool {
	s.cmu.Lock()
	e := s.crons[name]
	delete(s.crons, name)
	s.cmu.Unlock()

	if e == nil {
		return false
	}
	e.cancelPending()
	s.log.Debug("cron schedule cancelled", logx.String("name", name))
	return true
}

// armCron registers the entry's next occurrence with the wheel.
func (s *Service) armCron(e *cronEntry) error {
	next := e.sched.Next(time.Now())
	if next.IsZero() {
		// Spec has no future activation; drop the entry.
		s.cmu.Lock()
		if s.crons[e.name] == e {
			delete(s.crons, e.name)
		}
		s.cmu.Unlock()
		s.log.Warn("cron schedule has no next activation", logx.String("name", e.name), logx.String("spec", e.spec))
		return nil
	}

	fire := wheel.TaskFunc(func(to *wheel.Timeout) error {
		s.cmu.Lock()
		cur := s.crons[e.name]
		s.cmu.Unlock()
		if cur != e {
			// Replaced or cancelled after this occurrence was unbucketed.
			return nil
		}

		err := s.buildTask(e.task, e.mode).Run(to)

		if !s.down.Load() {
			if aerr := s.armCron(e); aerr != nil && aerr != ErrShutdown {
				s.log.Warn("cron re-arm failed", logx.String("name", e.name), logx.Err(aerr))
			}
		}
		return err
	})

	to, err := s.w.NewTimeout(fire, time.Until(next))
	if err != nil {
		if err == wheel.ErrStopped {
			return ErrShutdown
		}
		return err
	}

	e.mu.Lock()
	e.to = to
	e.next = next
	e.mu.Unlock()

	s.log.Debug("cron occurrence armed", logx.String("name", e.name), logx.String("spec", e.spec), logx.Time("next", next))
	return nil
}

func (e *cronEntry) cancelPending() {
	e.mu.Lock()
	to := e.to
	e.mu.Unlock()
	if to != nil {
		_ = to.Cancel()
	}
}

func (s *Service) cronInfos() []CronInfo {
	s.cmu.Lock()
	entries := make([]*cronEntry, 0, len(s.crons))
	for _, e := range s.crons {
		entries = append(entries, e)
	}
	s.cmu.Unlock()

	infos := make([]CronInfo, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		next := e.next
		e.mu.Unlock()
		infos = append(infos, CronInfo{Name: e.name, Spec: e.spec, Mode: e.mode, Next: next})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos
}
