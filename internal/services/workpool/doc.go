// Package workpool runs zero-argument jobs on a fixed pool of worker
// goroutines.
//
// # Overview
//
// Execute is non-blocking: jobs go onto a bounded queue and are picked up
// roughly FIFO by the workers. When the queue is full the job is dropped and
// Execute returns ErrQueueFull; the pool never applies backpressure to the
// caller. This matters because the main caller is the timer wheel's firing
// goroutine, which must never stall.
//
// # Lifecycle
//
// The pool can be started and stopped at runtime (e.g. via config hot
// reload). Stop drains nothing: queued jobs that have not been picked up when
// the workers exit are discarded.
package workpool
