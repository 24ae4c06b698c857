// Package checkpoint is the durable record of sync jobs.
//
// A job moves pending -> running -> {completed, failed}, and a failed job may
// run again. Every transition is a single guarded UPDATE, so callers racing
// on the same job see exactly one winner and an InvalidState error
// otherwise. The cursor and processed count are advanced together after each
// committed page; completion clears the cursor and stores the final count in
// the same statement.
package checkpoint
