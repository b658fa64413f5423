package wheel

import "errors"

var (
	ErrStopped = errors.New("wheel stopped")
	ErrNilTask = errors.New("nil task")
)
