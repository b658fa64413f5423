package wheel

import (
	"container/list"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Wheel is the main structure of the hashed wheel timer.
type Wheel struct {
	Options // inherited options

	mu      sync.Mutex
	slots   []*list.List // each slot is a linked list of *Timeout
	pos     int          // the slot the next tick will scan
	pending int

	started bool
	stopped bool
	ticker  *time.Ticker
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

func New(opts ...Option) *Wheel {
	w := &Wheel{
		Options: NewOptions(opts...),
	}
	w.slots = make([]*list.List, w.WheelSize)
	for i := range w.slots {
		w.slots[i] = list.New()
	}
	return w
}

// Start launches the tick goroutine. Calling Start on a running or stopped
// wheel is a no-op.
func (w *Wheel) Start() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.started || w.stopped {
		return
	}
	w.started = true
	w.ticker = time.NewTicker(w.TickDuration)
	w.stopCh = make(chan struct{})
	w.wg.Add(1)
	go w.run()
}

// Stop halts the wheel and discards all pending registrations without
// invoking them. It is idempotent; after Stop, NewTimeout fails.
//
// Stop waits for the tick goroutine to exit, so it must not be called from
// a task running on the wheel.
func (w *Wheel) Stop() {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return
	}
	w.stopped = true
	started := w.started
	if started {
		close(w.stopCh)
	}
	// Discarded timeouts read as cancelled so their handles go inert.
	for _, l := range w.slots {
		for e := l.Front(); e != nil; e = e.Next() {
			t := e.Value.(*Timeout)
			t.state.CompareAndSwap(statePending, stateCancelled)
			t.elem = nil
		}
		l.Init()
	}
	w.pending = 0
	w.mu.Unlock()

	if started {
		w.wg.Wait()
	}
}

// NewTimeout registers task to fire once after delay and returns its handle.
// A negative delay is treated as zero. Safe for concurrent use.
func (w *Wheel) NewTimeout(task Task, delay time.Duration) (*Timeout, error) {
	if task == nil {
		return nil, ErrNilTask
	}
	if delay < 0 {
		delay = 0
	}

	t := &Timeout{
		id:       uuid.NewString(),
		task:     task,
		deadline: time.Now().Add(delay),
		w:        w,
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return nil, ErrStopped
	}

	ticks := int(delay / w.TickDuration)
	t.rounds = ticks / w.WheelSize
	t.slot = (w.pos + ticks) % w.WheelSize
	t.elem = w.slots[t.slot].PushBack(t)
	w.pending++

	return t, nil
}

// Len reports the number of pending timeouts.
func (w *Wheel) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.pending
}

func (w *Wheel) run() {
	defer w.wg.Done()
	for {
		select {
		case <-w.stopCh:
			w.ticker.Stop()
			return
		case <-w.ticker.C:
			w.advance()
		}
	}
}

// advance scans the current slot, fires due entries sequentially on this
// goroutine, and moves the cursor forward one slot.
func (w *Wheel) advance() {
	now := time.Now()

	w.mu.Lock()
	l := w.slots[w.pos]
	var due, deferred []*Timeout
	for e := l.Front(); e != nil; {
		t := e.Value.(*Timeout)
		if t.state.Load() != statePending {
			// Cancelled between ticks; drop the stale entry.
			next := e.Next()
			l.Remove(e)
			t.elem = nil
			w.pending--
			e = next
			continue
		}
		if t.rounds > 0 {
			t.rounds--
			e = e.Next()
			continue
		}

		next := e.Next()
		l.Remove(e)
		e = next

		if t.deadline.After(now) {
			// Bucketed a tick ahead of its deadline (registration happened
			// mid-tick). Re-check on the next pass; never fire early.
			t.elem = nil
			deferred = append(deferred, t)
			continue
		}

		t.elem = nil
		w.pending--
		due = append(due, t)
	}
	// Re-bucket deferred entries only after the scan: with a single-slot
	// wheel the next slot is this one, and pushing mid-scan would extend
	// the list being iterated indefinitely.
	for _, t := range deferred {
		t.slot = (w.pos + 1) % w.WheelSize
		t.elem = w.slots[t.slot].PushBack(t)
	}
	w.pos = (w.pos + 1) % w.WheelSize
	w.mu.Unlock()

	for _, t := range due {
		w.fire(t)
	}
}

func (w *Wheel) fire(t *Timeout) {
	// A concurrent Cancel between unbucketing and here wins; the task must
	// not run.
	if !t.state.CompareAndSwap(statePending, stateExpired) {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			w.Logger.Printf("panic in timer task %s: %v\n%s", t.id, r, debug.Stack())
		}
	}()
	if err := t.task.Run(t); err != nil {
		w.Logger.Printf("timer task %s failed: %v", t.id, err)
	}
}

// remove unbuckets a cancelled timeout. State transitions happen in
// Timeout.Cancel; this only maintains the slot lists.
func (w *Wheel) remove(t *Timeout) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t.elem == nil {
		return
	}
	w.slots[t.slot].Remove(t.elem)
	t.elem = nil
	w.pending--
}
