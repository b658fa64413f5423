package timer

import (
	"errors"
	"time"
)

// Pool is the capability the service needs from a worker pool: accept a
// zero-argument job for asynchronous execution. workpool.Service satisfies it.
type Pool interface {
	Execute(job func()) error
}

// ExecutionMode selects where a submitted task runs when it fires. It is a
// closed two-variant set, chosen per submission and immutable afterwards.
type ExecutionMode int

const (
	// Inline runs the task on the wheel's own firing goroutine.
	Inline ExecutionMode = iota
	// Threaded hands the task to the worker pool when it fires.
	Threaded
)

func (m ExecutionMode) String() string {
	switch m {
	case Inline:
		return "inline"
	case Threaded:
		return "threaded"
	default:
		return "unknown"
	}
}

// Config controls the wheel owned by the service. Both values are fixed at
// construction and never change for the service's lifetime.
//
// Zero values mean "use the default". Negative values refuse construction.
type Config struct {
	// TickDuration is the granularity of the wheel's internal clock and
	// bounds firing precision. Default 100ms.
	TickDuration time.Duration
	// WheelSize is the wheel's bucket count, trading memory against how many
	// revolutions a long delay must wait through. Default 1024.
	WheelSize int
}

const (
	DefaultTickDuration = 100 * time.Millisecond
	DefaultWheelSize    = 1024
)

func (c Config) withDefaults() Config {
	if c.TickDuration == 0 {
		c.TickDuration = DefaultTickDuration
	}
	if c.WheelSize == 0 {
		c.WheelSize = DefaultWheelSize
	}
	return c
}

func (c Config) validate() error {
	if c.TickDuration <= 0 {
		return errors.New("tick duration must be > 0")
	}
	if c.WheelSize < 1 {
		return errors.New("wheel size must be >= 1")
	}
	return nil
}

// TimeoutEvent is the payload attached to eventbus timer events.
type TimeoutEvent struct {
	ID       string        `json:"id"`
	Mode     string        `json:"mode"`
	Delay    time.Duration `json:"delay"`
	Deadline time.Time     `json:"deadline"`
	Error    string        `json:"error,omitempty"`
}

// CronInfo describes one registered recurring schedule.
type CronInfo struct {
	Name string
	Spec string
	Mode ExecutionMode
	Next time.Time
}

// Snapshot is a lightweight view for diagnostics.
type Snapshot struct {
	TickDuration time.Duration
	WheelSize    int
	Pending      int
	Submitted    uint64
	Fired        uint64
	Cancelled    uint64
	Dropped      uint64
	Crons        []CronInfo
}
