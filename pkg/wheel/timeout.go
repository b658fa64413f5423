package wheel

import (
	"container/list"
	"sync/atomic"
	"time"
)

const (
	statePending int32 = iota
	stateCancelled
	stateExpired
)

// Timeout is the handle returned by Wheel.NewTimeout. It identifies one
// pending registration and supports cancellation before firing. Once expired
// or cancelled the handle is inert.
type Timeout struct {
	id       string
	task     Task
	deadline time.Time

	state atomic.Int32

	// Bucket bookkeeping, guarded by the owning wheel's mutex.
	rounds int
	slot   int
	elem   *list.Element

	w *Wheel
}

// ID returns the unique identifier assigned at registration.
func (t *Timeout) ID() string { return t.id }

// Deadline returns the earliest instant the task may fire.
func (t *Timeout) Deadline() time.Time { return t.deadline }

func (t *Timeout) IsPending() bool   { return t.state.Load() == statePending }
func (t *Timeout) IsCancelled() bool { return t.state.Load() == stateCancelled }
func (t *Timeout) IsExpired() bool   { return t.state.Load() == stateExpired }

// Cancel withdraws the registration before it fires. It reports whether this
// call performed the cancellation; cancelling an already fired, cancelled, or
// discarded timeout is a no-op returning false.
func (t *Timeout) Cancel() bool {
	if !t.state.CompareAndSwap(statePending, stateCancelled) {
		return false
	}
	t.w.remove(t)
	return true
}
