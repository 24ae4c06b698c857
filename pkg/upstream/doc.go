// Package upstream implements the paginated source API over HTTP.
//
// A page request is
//
//	GET {base_url}/{collection path}?limit=N&cursor=C
//	Authorization: Bearer <token>
//
// and the response body is
//
//	{"records": [...], "has_more": true, "next_cursor": "..."}
//
// Failures are classified for the caller: network errors, 429 and 5xx are
// transient fetch errors and are retried with backoff inside FetchPage;
// other non-2xx statuses and records without an id are fatal.
package upstream
