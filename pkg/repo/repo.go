// Package repo implements the top level of the registry hierarchy: a Repo
// is a registry of collections, using the exact same label ->
// identity-digest shape pkg/collection uses for series, plus push/pull
// and a lifecycle event feed.
package repo

import (
	"context"
	"fmt"

	"github.com/bertrandchenal/lakota/pkg/changelog"
	"github.com/bertrandchenal/lakota/pkg/collection"
	"github.com/bertrandchenal/lakota/pkg/commit"
	"github.com/bertrandchenal/lakota/pkg/digest"
	"github.com/bertrandchenal/lakota/pkg/events"
	"github.com/bertrandchenal/lakota/pkg/log"
	"github.com/bertrandchenal/lakota/pkg/metrics"
	"github.com/bertrandchenal/lakota/pkg/pod"
	"github.com/bertrandchenal/lakota/pkg/segment"
	"github.com/bertrandchenal/lakota/pkg/series"
	"github.com/bertrandchenal/lakota/pkg/workerpool"
	"github.com/rs/zerolog"
)

// Repo is the top-level registry: collection name -> collection identity.
type Repo struct {
	pod    pod.Pod
	name   string
	reg    *collection.Collection
	broker *events.Broker
	logger zerolog.Logger
}

// Open returns a Repo handle for name and starts its event broker.
func Open(p pod.Pod, name string) *Repo {
	broker := events.NewBroker()
	broker.Start()
	return &Repo{
		pod:    p,
		name:   name,
		reg:    collection.Open(p, "repo:"+name),
		broker: broker,
		logger: log.WithComponent("repo").With().Str("repo", name).Logger(),
	}
}

// Name returns the repo's name.
func (r *Repo) Name() string { return r.name }

// Pod returns the Pod this repo is backed by, for callers (e.g. pkg/maintain)
// that need raw blob access alongside the registry API.
func (r *Repo) Pod() pod.Pod { return r.pod }

// Changelog exposes the repo's own registry changelog, e.g. for pkg/gc
// reachability analysis.
func (r *Repo) Changelog() *changelog.Changelog { return r.reg.Changelog() }

// Events returns the repo's lifecycle event broker; subscribers see
// divergence/merge/gc/push/pull notifications as they happen.
func (r *Repo) Events() *events.Broker { return r.broker }

// Close stops the repo's event broker.
func (r *Repo) Close() { r.broker.Stop() }

// CreateCollection registers name in the repo's registry.
func (r *Repo) CreateCollection(ctx context.Context, name string, meta []byte, author string, tstampUnixMicro int64) (*collection.Collection, error) {
	if _, err := r.reg.Put(ctx, name, collection.Identity(name), meta, author, tstampUnixMicro); err != nil {
		return nil, fmt.Errorf("repo %q: create collection %q: %w", r.name, name, err)
	}
	return collection.Open(r.pod, name), nil
}

// DropCollection tombstones name in the repo's registry. The collection's
// own data is untouched; it becomes unreachable to future Collections calls
// and is reclaimed the next time gc runs over this Pod.
func (r *Repo) DropCollection(ctx context.Context, name string, author string, tstampUnixMicro int64) error {
	_, err := r.reg.Drop(ctx, name, author, tstampUnixMicro)
	if err != nil {
		return fmt.Errorf("repo %q: drop collection %q: %w", r.name, name, err)
	}
	return nil
}

// RenameCollection moves name's registration to newName.
func (r *Repo) RenameCollection(ctx context.Context, name, newName string, author string, tstampUnixMicro int64) error {
	_, err := r.reg.Rename(ctx, name, newName, author, tstampUnixMicro)
	if err != nil {
		return fmt.Errorf("repo %q: rename collection %q -> %q: %w", r.name, name, newName, err)
	}
	return nil
}

// Collection resolves name and returns its Collection handle.
func (r *Repo) Collection(ctx context.Context, name string) (*collection.Collection, bool, error) {
	_, ok, err := r.reg.Resolve(ctx, name)
	if err != nil || !ok {
		return nil, ok, err
	}
	return collection.Open(r.pod, name), true, nil
}

// Collections lists every live collection name registered in the repo.
func (r *Repo) Collections(ctx context.Context) ([]collection.Entry, error) {
	return r.reg.List(ctx)
}

// SyncStats tallies what a Push or Pull moved.
type SyncStats struct {
	BlobsCopied     int
	BlobsSkipped    int
	RevisionsCopied int
}

// Pull copies everything remote has that r lacks: blobs are synced
// globally (they are content-addressed and Pod-wide, not namespaced per
// series), then registry and series changelog keys are synced prefix by
// prefix, recursing from the repo's own registry down into each
// collection's registry and each series within it. Transfer is blob-by-blob
// and idempotent; already-present keys are skipped. After Pull, r's
// changelogs may carry multiple heads versus before -- callers are expected
// to Merge if they want convergence.
func (r *Repo) Pull(ctx context.Context, remote *Repo) (SyncStats, error) {
	stats, err := sync(ctx, remote.pod, r.pod, remote.reg.Changelog(), r.reg.Changelog())
	if err != nil {
		return stats, fmt.Errorf("repo %q: pull: %w", r.name, err)
	}

	names, err := r.reg.List(ctx)
	if err != nil {
		return stats, fmt.Errorf("repo %q: pull: list collections: %w", r.name, err)
	}
	for _, entry := range names {
		localColl := collection.Open(r.pod, entry.Label)
		remoteColl := collection.Open(remote.pod, entry.Label)
		collStats, err := sync(ctx, remote.pod, r.pod, remoteColl.Changelog(), localColl.Changelog())
		if err != nil {
			return stats, fmt.Errorf("repo %q: pull collection %q: %w", r.name, entry.Label, err)
		}
		stats.add(collStats)

		labels, err := localColl.List(ctx)
		if err != nil {
			return stats, fmt.Errorf("repo %q: pull collection %q: list series: %w", r.name, entry.Label, err)
		}
		for _, label := range labels {
			localCl := seriesChangelog(r.pod, label.Digest)
			remoteCl := seriesChangelog(remote.pod, label.Digest)
			seriesStats, err := sync(ctx, remote.pod, r.pod, remoteCl, localCl)
			if err != nil {
				return stats, fmt.Errorf("repo %q: pull series %q/%q: %w", r.name, entry.Label, label.Label, err)
			}
			stats.add(seriesStats)
		}
	}

	r.broker.Publish(&events.Event{Type: events.EventPullCompleted, Repo: r.name, Message: fmt.Sprintf("pulled from %s", remote.pod)})
	metrics.SyncBlobsTransferredTotal.WithLabelValues("pull").Add(float64(stats.BlobsCopied))
	metrics.SyncBlobsSkippedTotal.WithLabelValues("pull").Add(float64(stats.BlobsSkipped))
	r.logger.Info().Int("blobs_copied", stats.BlobsCopied).Int("revisions_copied", stats.RevisionsCopied).Msg("pull complete")
	return stats, nil
}

// Push is Pull in the opposite direction: remote pulls from r.
func (r *Repo) Push(ctx context.Context, remote *Repo) (SyncStats, error) {
	stats, err := remote.Pull(ctx, r)
	if err != nil {
		return stats, fmt.Errorf("repo %q: push: %w", r.name, err)
	}
	r.broker.Publish(&events.Event{Type: events.EventPushCompleted, Repo: r.name, Message: fmt.Sprintf("pushed to %s", remote.pod)})
	return stats, nil
}

func (s *SyncStats) add(o SyncStats) {
	s.BlobsCopied += o.BlobsCopied
	s.BlobsSkipped += o.BlobsSkipped
	s.RevisionsCopied += o.RevisionsCopied
}

// seriesChangelog opens a series' changelog directly from its identity
// digest, without needing that series' data schema -- raw revision keys
// are schema-agnostic, which is all push/pull needs to move.
func seriesChangelog(p pod.Pod, identity digest.Digest) *changelog.Changelog {
	return changelog.Open(p, fmt.Sprintf("%s/%s", series.ChangelogRoot, identity))
}

// sync copies blobs (globally, once per call -- idempotent to repeat) then
// the raw revision keys under fromCl's prefix, which toCl shares by
// construction (both are the same changelog's prefix on different Pods).
func sync(ctx context.Context, from, to pod.Pod, fromCl, toCl *changelog.Changelog) (SyncStats, error) {
	var stats SyncStats
	for _, prefix := range []string{commit.CommitPrefix, segment.ManifestPrefix, segment.ColumnPrefix} {
		copied, skipped, err := syncKeys(ctx, from, to, prefix+"/")
		if err != nil {
			return stats, err
		}
		stats.BlobsCopied += copied
		stats.BlobsSkipped += skipped
	}
	if fromCl.Prefix() != toCl.Prefix() {
		return stats, fmt.Errorf("sync: changelog prefix mismatch %q vs %q", fromCl.Prefix(), toCl.Prefix())
	}
	copied, skipped, err := syncKeys(ctx, from, to, fromCl.Prefix()+"/")
	if err != nil {
		return stats, err
	}
	stats.RevisionsCopied += copied
	stats.BlobsSkipped += skipped
	return stats, nil
}

// syncKeys copies every key under prefix present in from but absent in to.
func syncKeys(ctx context.Context, from, to pod.Pod, prefix string) (copied, skipped int, err error) {
	fromKeys, err := from.Walk(ctx, prefix)
	if err != nil {
		return 0, 0, fmt.Errorf("sync: walk %q on %s: %w", prefix, from, err)
	}
	toKeys, err := to.Walk(ctx, prefix)
	if err != nil {
		return 0, 0, fmt.Errorf("sync: walk %q on %s: %w", prefix, to, err)
	}
	present := make(map[string]struct{}, len(toKeys))
	for _, k := range toKeys {
		present[k] = struct{}{}
	}
	var missing []string
	for _, k := range fromKeys {
		if _, ok := present[k]; ok {
			skipped++
			continue
		}
		missing = append(missing, k)
	}

	// Every missing key is an independent Get-then-Put, so fan them out
	// across a bounded worker pool rather than copy the Pod's content one
	// round trip at a time -- the same pattern segment.Write and
	// segment.Read use for per-column Pod requests.
	if err := workerpool.Run(ctx, workerpool.DefaultConcurrency, missing, func(ctx context.Context, k string) error {
		content, err := from.Get(ctx, k)
		if err != nil {
			return fmt.Errorf("sync: get %q: %w", k, err)
		}
		if err := to.Put(ctx, k, content); err != nil {
			return fmt.Errorf("sync: put %q: %w", k, err)
		}
		return nil
	}); err != nil {
		return copied, skipped, err
	}
	copied = len(missing)
	return copied, skipped, nil
}
