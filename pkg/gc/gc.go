// Package gc implements garbage collection: a reachability analysis over
// every live revision in every series and registry, followed by a single
// sweep of the Pod's content-addressed prefixes (commits, segments,
// columns) that deletes anything not in the reachable set and old enough
// to be past the safety horizon.
//
// Reachability is computed incrementally by repeated CollectChangelog
// calls (one per series or registry a caller knows about), then applied in
// one Sweep call. It is a standalone package because the sweep spans every
// series sharing a Pod, not just one.
package gc

import (
	"context"
	"fmt"
	"time"

	"github.com/bertrandchenal/lakota/pkg/changelog"
	"github.com/bertrandchenal/lakota/pkg/commit"
	"github.com/bertrandchenal/lakota/pkg/metrics"
	"github.com/bertrandchenal/lakota/pkg/pod"
	"github.com/bertrandchenal/lakota/pkg/schema"
	"github.com/bertrandchenal/lakota/pkg/segment"
)

// DefaultSafetyHorizon is the minimum blob age gc requires before deleting
// an unreachable key, protecting a concurrent writer whose segment/column
// blobs are published before its revision.
const DefaultSafetyHorizon = 60 * time.Second

// Reachable is the accumulated set of live Pod keys across every series
// and registry a caller has folded in.
type Reachable map[string]struct{}

// NewReachable returns an empty reachable set.
func NewReachable() Reachable {
	return make(Reachable)
}

// Add unions keys into r.
func (r Reachable) Add(keys ...string) {
	for _, k := range keys {
		r[k] = struct{}{}
	}
}

// CollectChangelog walks every revision under cl (not just heads — a live
// revision is reachable even once superseded, until defrag/squash removes
// it), adding the revision's commit blob key and, for segment-backed
// commits, the segment manifest and column keys.
func CollectChangelog(ctx context.Context, p pod.Pod, s schema.Schema, cl *changelog.Changelog, into Reachable) error {
	revs, err := cl.All(ctx)
	if err != nil {
		return fmt.Errorf("gc: list revisions: %w", err)
	}
	for _, rev := range revs {
		if rev.Own.Digest.IsZero() {
			continue
		}
		into.Add(rev.Own.Digest.PodKey(commit.CommitPrefix))

		c, err := commit.Load(ctx, p, rev.Own.Digest)
		if err != nil {
			return fmt.Errorf("gc: load commit %s: %w", rev.Own.Digest, err)
		}
		if c.Embedded != nil {
			continue
		}
		keys, err := segment.Keys(ctx, p, s, c.Segment)
		if err != nil {
			return fmt.Errorf("gc: segment keys for commit %s: %w", rev.Own.Digest, err)
		}
		into.Add(keys...)
	}
	return nil
}

// Sweep deletes every key under the commits/segments/columns prefixes that
// is absent from reachable and whose mtime is older than horizon. It
// returns the number of keys deleted.
func Sweep(ctx context.Context, p pod.Pod, reachable Reachable, horizon time.Duration) (int, error) {
	timer := metrics.NewTimer()
	defer func() {
		metrics.GCRunsTotal.Inc()
		timer.ObserveDuration(metrics.GCDuration)
	}()

	// A zero horizon means "use the default"; a negative horizon places the
	// cutoff in the future, deleting every unreachable key regardless of age.
	if horizon == 0 {
		horizon = DefaultSafetyHorizon
	}
	cutoff := time.Now().Add(-horizon)

	deleted := 0
	for _, prefix := range []string{commit.CommitPrefix, segment.ManifestPrefix, segment.ColumnPrefix} {
		keys, err := p.Walk(ctx, prefix+"/")
		if err != nil {
			return deleted, fmt.Errorf("gc: walk %q: %w", prefix, err)
		}
		for _, key := range keys {
			if _, live := reachable[key]; live {
				continue
			}
			mtime, err := p.Stat(ctx, key)
			if err != nil {
				return deleted, fmt.Errorf("gc: stat %q: %w", key, err)
			}
			if !mtime.IsZero() && mtime.After(cutoff) {
				continue // too young; may belong to an in-flight write
			}
			if err := p.Delete(ctx, key); err != nil {
				return deleted, fmt.Errorf("gc: delete %q: %w", key, err)
			}
			deleted++
		}
	}
	metrics.GCBlobsDeletedTotal.Add(float64(deleted))
	return deleted, nil
}
