// Package wheel implements a hashed wheel timer: a fixed ring of slots that a
// single goroutine advances on a coarse tick, firing due timeouts as it goes.
//
// # Overview
//
// Registration and cancellation are O(1): a timeout is bucketed into the slot
// that the cursor will reach when its delay has elapsed, with a rounds counter
// for delays longer than one full revolution. Each tick the wheel scans the
// current slot, fires entries whose deadline has passed, and moves on.
//
// Tasks run sequentially on the wheel's own goroutine. A task that returns an
// error or panics is logged and does not stop the wheel; callers that need
// off-wheel execution should hand the work to their own pool from Run.
//
// # Precision
//
// A timeout never fires before its delay has elapsed. It may fire up to one
// tick late, so the configured tick duration bounds firing precision.
package wheel
