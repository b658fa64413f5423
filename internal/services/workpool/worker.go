package workpool

import (
	"context"
	"runtime/debug"

	"delaykit/pkg/logx"
)

func (s *Service) worker(ctx context.Context, stopCh <-chan struct{}, queue <-chan func(), idx int) {
	for {
		// Fast-exit check so a closed stopCh wins over queued work.
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		default:
		}

		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case job := <-queue:
			s.runOne(job, idx)
		}
	}
}

func (s *Service) runOne(job func(), idx int) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("panic in workpool job", logx.Int("worker", idx), logx.Any("panic", r), logx.Stack(string(debug.Stack())))
		}
	}()
	job()
	s.executed.Add(1)
}
