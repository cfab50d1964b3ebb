// Package log provides structured logging for lakota using zerolog.
//
// A single global Logger is configured once via Init; every other package
// derives a child logger with log.WithComponent("pod") or one of the
// domain-specific helpers (WithSeries, WithCollection, WithDigest,
// WithRevision) so that log lines can be filtered by the entity they
// describe.
package log
