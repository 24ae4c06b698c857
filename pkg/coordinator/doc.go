// Package coordinator manages sync jobs: start, resume, terminal
// transitions and the per-collection lease.
//
// A run holds the collection lease from Start (or Resume) until its final
// state is persisted. Completion and failure are written with a context
// that ignores cancellation, so a cancelled job still ends failed with its
// last committed cursor. Runs execute on the runner pool and callers get a
// runner.Handle to wait on.
package coordinator
