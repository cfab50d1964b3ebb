// Package workerpool provides bounded-parallel fan-out for Pod I/O and
// codec work: a reusable errgroup-backed pool any caller can bound to a
// fixed concurrency.
package workerpool

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// DefaultConcurrency is the pool size used when callers don't have a more
// specific budget in mind.
const DefaultConcurrency = 32

// Run executes fn once per item in items, with at most concurrency
// goroutines in flight at a time. It returns the first error encountered.
// The first error cancels the ctx passed to fn; items not yet started are
// still started with that cancelled ctx, and neither they nor work already
// in flight stop early unless fn itself observes ctx.Done().
func Run[T any](ctx context.Context, concurrency int, items []T, fn func(ctx context.Context, item T) error) error {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for _, item := range items {
		item := item
		g.Go(func() error {
			return fn(gctx, item)
		})
	}
	return g.Wait()
}

// Map is Run plus per-item results, preserving input order. A nil result
// from a failed call is paired with the first error Run returns.
func Map[T any, R any](ctx context.Context, concurrency int, items []T, fn func(ctx context.Context, item T) (R, error)) ([]R, error) {
	results := make([]R, len(items))
	err := Run(ctx, concurrency, indices(len(items)), func(ctx context.Context, i int) error {
		r, err := fn(ctx, items[i])
		if err != nil {
			return err
		}
		results[i] = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

func indices(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}
