package eventbus

import (
	"sync"
	"sync/atomic"
	"time"
)

// Timer lifecycle event types published by the timer service and its
// dispatch path.
const (
	TypeSubmitted       = "timeout.submitted"
	TypeFired           = "timeout.fired"
	TypeCancelled       = "timeout.cancelled"
	TypeTaskFailed      = "task.failed"
	TypeDispatchDropped = "dispatch.dropped"
)

// Event carries one timer lifecycle notification. Data is a
// timer.TimeoutEvent for all types above; it stays `any` so the bus does not
// import the service package.
//
// Publish never blocks: a subscriber that falls behind the firing rate loses
// events rather than stalling the wheel goroutine. The loss is counted, not
// silent.
type Event struct {
	Type string
	Time time.Time
	Data any
}

type Bus interface {
	Publish(e Event)
	Subscribe(buffer int) (ch <-chan Event, unsubscribe func())
	// Dropped reports how many events were discarded because a subscriber's
	// buffer was full.
	Dropped() uint64
}

// New returns an in-memory fanout bus. It owns no goroutines; delivery
// happens on the publisher's goroutine.
func New() Bus {
	return &memBus{subs: map[uint64]chan Event{}}
}

type memBus struct {
	mu      sync.RWMutex
	subs    map[uint64]chan Event
	seq     atomic.Uint64
	dropped atomic.Uint64
}

func (b *memBus) Publish(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	// Snapshot subscribers so no lock is held while attempting sends.
	b.mu.RLock()
	chs := make([]chan Event, 0, len(b.subs))
	for _, ch := range b.subs {
		chs = append(chs, ch)
	}
	b.mu.RUnlock()

	for _, ch := range chs {
		// A concurrent unsubscribe may close the channel mid-send; the
		// recover absorbs that race instead of ordering closes around
		// publishes.
		func() {
			defer func() { _ = recover() }()
			select {
			case ch <- e:
			default:
				b.dropped.Add(1)
			}
		}()
	}
}

func (b *memBus) Dropped() uint64 {
	return b.dropped.Load()
}

func (b *memBus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 8
	}
	ch := make(chan Event, buffer)
	id := b.seq.Add(1)

	b.mu.Lock()
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	unsub := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(ch)
		})
	}
	return ch, unsub
}
