package workpool

import "errors"

var (
	ErrStopped   = errors.New("worker pool stopped")
	ErrQueueFull = errors.New("worker pool queue full")
	ErrNilJob    = errors.New("nil job")
)
