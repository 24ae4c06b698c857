// Package ratelimit paces requests against the upstream API.
//
// FixedDelay spaces consecutive page requests by a constant gap and is what
// the pager uses between pages. TokenBucket bounds the request rate of the
// upstream client across retries.
package ratelimit
