// Package pod implements the Pod abstraction: a content-addressed
// key/value store with pluggable backends.
//
// # Backends
//
//	memory://                  in-process map, for tests and fast cache tiers
//	file:///absolute/path      one file per key, atomic temp+rename writes
//	bolt://path/to.db          single bbolt file, for a local fast tier
//	s3://bucket/prefix         S3-compatible object storage
//
// Backends chain fastest first, either "+"-joined or in list form:
//
//	memory://+file:///var/lib/lakota
//	[memory://, file:///var/lib/lakota]
//
// Open builds the chain into nested Cache pods, so reads check the fast
// tier before falling through to (and backfilling from) the slow one.
// LAKOTA_CACHE, if set, is prepended ahead of whatever URI the caller
// passed.
//
// # Errors
//
// Backend errors are wrapped with one of lakotaerrs' sentinel kinds so
// callers can distinguish "not found" from "transient I/O failure" from
// "remote unreachable" without inspecting backend-specific error types.
// WithRetry retries PodIO failures with exponential backoff; it leaves
// every other kind, including PodNotFound, alone.
package pod
