// Package workerpool bounds fan-out concurrency for segment column
// fetches and bulk push/pull transfers, parameterised by item list and
// work function.
package workerpool
