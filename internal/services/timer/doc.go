// Package timer is the single entry point through which the host application
// schedules one-shot, delayed callbacks.
//
// # Overview
//
// The service owns exactly one hashed wheel timer (pkg/wheel) for its
// lifetime. Callers submit a task together with a delay and an execution
// mode:
//
//   - Inline: the task runs directly on the wheel's firing goroutine. Cheap,
//     but a slow task delays every timeout firing after it.
//   - Threaded: the task is handed to the worker pool when it fires, so its
//     runtime never couples to the wheel's firing loop.
//
// Submit never blocks waiting for the delay; it returns a cancellable
// *wheel.Timeout handle immediately. Firing is never early and at most one
// tick late.
//
// # Lifecycle
//
// Shutdown stops the wheel and silently discards pending registrations. It is
// idempotent; Submit after Shutdown returns ErrShutdown. In-flight threaded
// jobs already handed to the pool are not waited for.
//
// # Recurring helpers
//
// SubmitCron registers a named cron schedule that re-arms itself as a fresh
// one-shot timeout after each firing. Names upsert, so re-registering a name
// replaces its schedule.
package timer
