package timer

import (
	"runtime/debug"

	"delaykit/internal/eventbus"
	"delaykit/pkg/logx"
	"delaykit/pkg/wheel"
)

// dispatchTask adapts a task so it executes on the worker pool instead of the
// wheel's firing goroutine. It holds nothing beyond the original task and the
// target pool; the submit-and-isolate step is its only job.
//
// Failure isolation is the point: whatever the wrapped task does, nothing
// escapes into the wheel's firing loop or the pool's own error path.
type dispatchTask struct {
	task wheel.Task
	pool Pool
	svc  *Service
}

// Run fires on the wheel goroutine. It only enqueues; the original task runs
// later on a pool worker with the same handle.
func (d *dispatchTask) Run(to *wheel.Timeout) error {
	d.svc.observeFired(to, Threaded)

	err := d.pool.Execute(func() {
		defer func() {
			if r := recover(); r != nil {
				d.svc.log.Error("panic in threaded timer task", logx.String("id", to.ID()), logx.Any("panic", r), logx.Stack(string(debug.Stack())))
			}
		}()
		if err := d.task.Run(to); err != nil {
			d.svc.reportFailure(to, Threaded, err)
		}
	})
	if err != nil {
		// Pool refused (full or stopped). The task is considered dropped;
		// rescheduling is the caller's responsibility.
		d.svc.dropped.Add(1)
		d.svc.log.Warn("threaded dispatch rejected", logx.String("id", to.ID()), logx.Err(err))
		if d.svc.bus != nil {
			d.svc.bus.Publish(eventbus.Event{Type: eventbus.TypeDispatchDropped, Data: TimeoutEvent{
				ID:    to.ID(),
				Mode:  Threaded.String(),
				Error: err.Error(),
			}})
		}
	}
	return nil
}
