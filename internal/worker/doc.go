// Package worker owns the search-engine child process.
//
// Ownership boundary:
// - launching the worker (local exec or over SSH)
// - buffering worker output with timeout-bounded reads
// - detecting worker exit, reaping and relaunching
//
// Lifecycle:
// - Stopped -> Alive on Start
// - Alive -> Dead on a zero-byte read or a failed write
// - Dead -> Restarting -> Alive unless a shutdown is in progress
// - Dead -> Stopped when Finish is draining
//
// A Supervisor is not safe for concurrent use; callers serialize access.
package worker
