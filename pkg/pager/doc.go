// Package pager drives the checkpointed fetch loop.
//
// For every page the loop writes the records to the cache and only then
// advances the job's cursor and processed count. A crash between the two
// steps re-fetches the same page on resume, which the cache absorbs as an
// idempotent upsert. Fetches within one job are strictly sequential.
package pager
