// Package metrics provides Prometheus metrics for lakota: Pod operation
// counters/histograms, codec timings, changelog head counts (a cheap
// divergence signal), and gc/push/pull counters. Metrics are registered at
// package init and exposed via the handler returned by Handler; embedding
// binaries decide whether and where to serve it (out of scope for the
// engine itself).
package metrics
