// Package series implements the public read/write handle for one
// time-indexed dataset: it composes pod, codec, segment, commit and
// changelog into the materialised-view read algorithm, the
// sort/split/embed write algorithm, merge and defrag/squash. Garbage
// collection spans every series sharing a Pod, so it lives in pkg/gc
// instead, driven off Series.Changelog.
package series

import (
	"bytes"
	"context"
	"fmt"
	"sort"

	"github.com/bertrandchenal/lakota/pkg/changelog"
	"github.com/bertrandchenal/lakota/pkg/commit"
	"github.com/bertrandchenal/lakota/pkg/digest"
	"github.com/bertrandchenal/lakota/pkg/frame"
	"github.com/bertrandchenal/lakota/pkg/lakotaerrs"
	"github.com/bertrandchenal/lakota/pkg/log"
	"github.com/bertrandchenal/lakota/pkg/metrics"
	"github.com/bertrandchenal/lakota/pkg/pod"
	"github.com/bertrandchenal/lakota/pkg/schema"
	"github.com/rs/zerolog"
)

// SplitThreshold is the row count above which a write is split into
// multiple commits on index boundaries, bounding each commit's size.
const SplitThreshold = 500_000

// ChangelogRoot namespaces every series' changelog under the Pod.
const ChangelogRoot = "changelog"

// Closed selects which end(s) of a read range are inclusive.
type Closed int

const (
	ClosedBoth Closed = iota
	ClosedLeft
	ClosedRight
	ClosedNeither
)

// Series is the public handle for one time-indexed dataset.
type Series struct {
	pod      pod.Pod
	schema   schema.Schema
	identity digest.Digest
	cl       *changelog.Changelog
	logger   zerolog.Logger
}

// Open returns a Series handle for the given identity digest. identity is
// the stable per-label digest a Collection's registry maps a label to;
// it, not the label, is what locates the changelog.
func Open(p pod.Pod, s schema.Schema, identity digest.Digest) *Series {
	prefix := fmt.Sprintf("%s/%s", ChangelogRoot, identity)
	return &Series{
		pod:      p,
		schema:   s,
		identity: identity,
		cl:       changelog.Open(p, prefix),
		logger:   log.WithDigest(identity.String()),
	}
}

// Query describes a Read request.
type Query struct {
	Start  []byte // encoded index tuple lower bound, or nil for unbounded
	Stop   []byte // encoded index tuple upper bound, or nil for unbounded
	Before int64  // epoch cutoff (µs); 0 means "now", i.e. no cutoff
	Closed Closed
}

// Read materialises the view of q: it walks every (possibly divergent)
// head back to the root, collects every commit whose range overlaps
// [q.Start, q.Stop], slices each to that overlap, and concatenates them
// oldest-epoch-first so that Frame.SortedUnique's keep-last-occurrence
// dedup resolves overlapping ranges in favour of the newest commit:
// last-write-wins, reduced to the sort/dedup primitive the write path
// already needs.
func (s *Series) Read(ctx context.Context, q Query) (*frame.Frame, error) {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.SeriesReadDuration)

	heads, err := s.cl.Heads(ctx)
	if err != nil {
		return nil, fmt.Errorf("series: read: %w", err)
	}
	metrics.ChangelogHeadsTotal.WithLabelValues(s.identity.String()).Set(float64(len(heads)))
	if len(heads) == 0 {
		return frame.Empty(s.schema), nil
	}

	// Walk every head back to the root first, then apply the Before cutoff
	// to individual revisions: a head newer than the cutoff can still have
	// ancestors at or before it, so filtering heads outright would hide
	// those ancestors instead of falling back to them.
	var chain []changelog.Revision
	for _, h := range heads {
		branch, err := s.cl.Walk(ctx, h)
		if err != nil {
			return nil, fmt.Errorf("series: read: %w", err)
		}
		for _, rev := range branch {
			if q.Before > 0 && rev.Own.Epoch > q.Before {
				continue
			}
			chain = append(chain, rev)
		}
	}
	if len(chain) == 0 {
		return frame.Empty(s.schema), nil
	}
	// Oldest-epoch-first: SortedUnique keeps the *last* equal-index row it
	// sees, so feeding commits oldest-to-newest makes the newest commit's
	// row win any overlap.
	sort.SliceStable(chain, func(i, j int) bool {
		if chain[i].Own.Epoch != chain[j].Own.Epoch {
			return chain[i].Own.Epoch < chain[j].Own.Epoch
		}
		return chain[i].Own.Digest.String() < chain[j].Own.Digest.String()
	})

	var frames []*frame.Frame
	for _, rev := range chain {
		c, err := commit.Load(ctx, s.pod, rev.Own.Digest)
		if err != nil {
			return nil, fmt.Errorf("series: load commit %s: %w", rev.Own.Digest, err)
		}
		if c.Intersect(q.Start, q.Stop) == commit.Disjoint {
			continue
		}
		f, err := c.Slice(ctx, s.pod, s.schema, q.Start, q.Stop)
		if err != nil {
			return nil, fmt.Errorf("series: slice commit %s: %w", rev.Own.Digest, err)
		}
		if f.Len() > 0 {
			frames = append(frames, f)
		}
	}

	merged := frame.Concat(s.schema, frames).SortedUnique()
	return applyClosed(s.schema, merged, q), nil
}

func applyClosed(s schema.Schema, f *frame.Frame, q Query) *frame.Frame {
	n := f.Len()
	if n == 0 {
		return f
	}
	lo, hi := 0, n
	if q.Start != nil && (q.Closed == ClosedRight || q.Closed == ClosedNeither) {
		tuple, _ := commit.IndexTuple(s, f, 0)
		if bytes.Equal(tuple, q.Start) {
			lo = 1
		}
	}
	if q.Stop != nil && (q.Closed == ClosedLeft || q.Closed == ClosedNeither) && hi > lo {
		tuple, _ := commit.IndexTuple(s, f, n-1)
		if bytes.Equal(tuple, q.Stop) {
			hi = n - 1
		}
	}
	if lo > hi {
		lo = hi
	}
	return f.Slice(lo, hi)
}

// Write sorts and deduplicates f by index columns (keeping the last
// occurrence), splits it into commits bounded by SplitThreshold, and
// appends one revision per commit off the current head.
func (s *Series) Write(ctx context.Context, f *frame.Frame, author string, tstampUnixMicro int64) (changelog.Revision, error) {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.SeriesWriteDuration)

	if f.Schema().ColumnNames() == nil || len(f.Schema().Columns) != len(s.schema.Columns) {
		return changelog.Revision{}, fmt.Errorf("series: write: %w", lakotaerrs.SchemaMismatch)
	}

	sorted := f.SortedUnique()
	if sorted.Len() == 0 {
		return changelog.Revision{}, fmt.Errorf("series: write: %w", lakotaerrs.EmptyWrite)
	}

	chunks := splitByThreshold(sorted, SplitThreshold)

	heads, err := s.cl.Heads(ctx)
	if err != nil {
		return changelog.Revision{}, fmt.Errorf("series: write: %w", err)
	}
	parent := changelog.Root
	if len(heads) > 0 {
		parent = changelog.GreatestHead(heads).Own
	}

	var last changelog.Revision
	for _, chunk := range chunks {
		_, commitDigest, err := commit.Build(ctx, s.pod, s.schema, chunk, author, tstampUnixMicro)
		if err != nil {
			return changelog.Revision{}, fmt.Errorf("series: write: %w", err)
		}
		last, err = s.cl.Append(ctx, parent, commitDigest)
		if err != nil {
			return changelog.Revision{}, fmt.Errorf("series: write: %w", err)
		}
		parent = last.Own
	}

	s.logger.Debug().Int("chunks", len(chunks)).Msg("series write complete")
	return last, nil
}

func splitByThreshold(f *frame.Frame, threshold int) []*frame.Frame {
	n := f.Len()
	if n <= threshold {
		return []*frame.Frame{f}
	}
	var chunks []*frame.Frame
	for lo := 0; lo < n; lo += threshold {
		hi := lo + threshold
		if hi > n {
			hi = n
		}
		chunks = append(chunks, f.Slice(lo, hi))
	}
	return chunks
}

// Merge unifies a divergent head set into a converged one: it computes
// the materialised view across every head, then
// appends one new revision per original head carrying a commit sliced to
// that head's own commit range but containing the winning rows, so every
// new head represents the same canonical view. Merge is idempotent:
// re-running it on already-converged heads rebuilds identical commit
// digests and adds only redundant revisions, which defrag later cleans up.
func (s *Series) Merge(ctx context.Context, author string, tstampUnixMicro int64) ([]changelog.Revision, error) {
	heads, err := s.cl.Heads(ctx)
	if err != nil {
		return nil, fmt.Errorf("series: merge: %w", err)
	}
	if len(heads) < 2 {
		return heads, nil
	}

	canonical, err := s.Read(ctx, Query{})
	if err != nil {
		return nil, fmt.Errorf("series: merge: %w", err)
	}

	newHeads := make([]changelog.Revision, 0, len(heads))
	for _, h := range heads {
		headCommit, err := commit.Load(ctx, s.pod, h.Own.Digest)
		if err != nil {
			return nil, fmt.Errorf("series: merge: load head commit: %w", err)
		}
		slice := sliceFrameByBounds(s.schema, canonical, headCommit.Start, headCommit.Stop)
		if slice.Len() == 0 {
			continue
		}
		_, commitDigest, err := commit.Build(ctx, s.pod, s.schema, slice, author, tstampUnixMicro)
		if err != nil {
			return nil, fmt.Errorf("series: merge: build commit: %w", err)
		}
		rev, err := s.cl.Append(ctx, h.Own, commitDigest)
		if err != nil {
			return nil, fmt.Errorf("series: merge: append: %w", err)
		}
		newHeads = append(newHeads, rev)
	}

	metrics.MergesTotal.Inc()
	s.logger.Debug().Int("heads", len(heads)).Int("new_heads", len(newHeads)).Msg("series merge complete")
	return newHeads, nil
}

// sliceFrameByBounds mirrors commit.Commit.Slice's binary search, but over
// an already-materialised in-memory frame instead of a Pod-backed commit,
// for merge/defrag/squash which need to re-partition a canonical view.
func sliceFrameByBounds(s schema.Schema, f *frame.Frame, start, stop []byte) *frame.Frame {
	n := f.Len()
	lo := 0
	if start != nil {
		lo = sort.Search(n, func(i int) bool {
			tuple, _ := commit.IndexTuple(s, f, i)
			return bytes.Compare(tuple, start) >= 0
		})
	}
	hi := n
	if stop != nil {
		hi = sort.Search(n, func(i int) bool {
			tuple, _ := commit.IndexTuple(s, f, i)
			return bytes.Compare(tuple, stop) > 0
		})
	}
	if lo > hi {
		lo = hi
	}
	return f.Slice(lo, hi)
}

// Defrag rewrites the changelog into a single linear chain of
// SplitThreshold-sized commits parented off the root. Old segment/column
// blobs become unreachable once the old revisions are removed and are
// reclaimed by a later gc run.
func (s *Series) Defrag(ctx context.Context, author string, tstampUnixMicro int64) error {
	old, err := s.cl.Log(ctx)
	if err != nil {
		return fmt.Errorf("series: defrag: %w", err)
	}
	if len(old) <= 1 {
		return nil
	}

	canonical, err := s.Read(ctx, Query{})
	if err != nil {
		return fmt.Errorf("series: defrag: %w", err)
	}
	if canonical.Len() == 0 {
		return nil
	}

	chunks := splitByThreshold(canonical, SplitThreshold)
	parent := changelog.Root
	for _, chunk := range chunks {
		_, commitDigest, err := commit.Build(ctx, s.pod, s.schema, chunk, author, tstampUnixMicro)
		if err != nil {
			return fmt.Errorf("series: defrag: build commit: %w", err)
		}
		rev, err := s.cl.Append(ctx, parent, commitDigest)
		if err != nil {
			return fmt.Errorf("series: defrag: append: %w", err)
		}
		parent = rev.Own
	}

	if err := s.cl.Remove(ctx, old); err != nil {
		return fmt.Errorf("series: defrag: remove old revisions: %w", err)
	}
	metrics.DefragsTotal.Inc()
	s.logger.Debug().Int("old_revisions", len(old)).Int("new_commits", len(chunks)).Msg("series defrag complete")
	return nil
}

// Squash is Defrag restricted to revisions at or before cutoffEpoch: it
// collapses them into one baseline commit chained off the root, then
// re-chains the newer, kept revisions' existing commits on top of that
// baseline so their materialised effect is unchanged.
// Squash assumes a single linear branch; callers should Merge first if the
// series is divergent, since a diverged history has no single chain to
// re-parent.
func (s *Series) Squash(ctx context.Context, cutoffEpoch int64, author string, tstampUnixMicro int64) error {
	all, err := s.cl.Log(ctx) // newest-first
	if err != nil {
		return fmt.Errorf("series: squash: %w", err)
	}

	var oldRevs, keepRevs []changelog.Revision
	for _, r := range all {
		if r.Own.Epoch <= cutoffEpoch {
			oldRevs = append(oldRevs, r)
		} else {
			keepRevs = append(keepRevs, r)
		}
	}
	if len(oldRevs) == 0 {
		return nil
	}

	baseline, err := s.Read(ctx, Query{Before: cutoffEpoch})
	if err != nil {
		return fmt.Errorf("series: squash: %w", err)
	}

	parent := changelog.Root
	if baseline.Len() > 0 {
		_, commitDigest, err := commit.Build(ctx, s.pod, s.schema, baseline, author, tstampUnixMicro)
		if err != nil {
			return fmt.Errorf("series: squash: build baseline: %w", err)
		}
		rev, err := s.cl.Append(ctx, parent, commitDigest)
		if err != nil {
			return fmt.Errorf("series: squash: append baseline: %w", err)
		}
		parent = rev.Own
	}

	// keepRevs is newest-first; re-chain oldest-first on top of the
	// baseline so their relative order survives.
	for i := len(keepRevs) - 1; i >= 0; i-- {
		rev, err := s.cl.Append(ctx, parent, keepRevs[i].Own.Digest)
		if err != nil {
			return fmt.Errorf("series: squash: re-chain revision: %w", err)
		}
		parent = rev.Own
	}

	if err := s.cl.Remove(ctx, all); err != nil {
		return fmt.Errorf("series: squash: remove old revisions: %w", err)
	}
	metrics.DefragsTotal.Inc()
	s.logger.Debug().Int("squashed", len(oldRevs)).Int("kept", len(keepRevs)).Msg("series squash complete")
	return nil
}

// Changelog exposes the series' underlying changelog for callers (gc's
// reachability sweep, repo-level push/pull) that need to walk every
// revision directly rather than through Read/Write.
func (s *Series) Changelog() *changelog.Changelog { return s.cl }

// Heads returns the current set of head revisions, exposing divergence to
// callers (status/log). Divergence is not a read-time error; it's
// surfaced here for callers to act on.
func (s *Series) Heads(ctx context.Context) ([]changelog.Revision, error) {
	return s.cl.Heads(ctx)
}

// Log returns every revision, newest-first.
func (s *Series) Log(ctx context.Context) ([]changelog.Revision, error) {
	return s.cl.Log(ctx)
}

// Schema returns the series' schema.
func (s *Series) Schema() schema.Schema { return s.schema }

// Identity returns the series identity digest.
func (s *Series) Identity() digest.Digest { return s.identity }
