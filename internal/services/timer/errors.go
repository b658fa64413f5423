package timer

import "errors"

var (
	ErrBadConfig    = errors.New("invalid timer config")
	ErrNilPool      = errors.New("nil worker pool")
	ErrShutdown     = errors.New("timer service shut down")
	ErrNameRequired = errors.New("schedule name required")
)
