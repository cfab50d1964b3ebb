// Package changelog implements the append-only, lock-free linked list of
// Revisions. A revision's key names its parent, so Heads and Log are
// computable from a single Pod list: no blob reads, no coordinator.
package changelog

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/bertrandchenal/lakota/pkg/digest"
	"github.com/bertrandchenal/lakota/pkg/lakotaerrs"
	"github.com/bertrandchenal/lakota/pkg/pod"
)

// Root is the sentinel parent used by a changelog's first revision.
var Root = Pointer{Epoch: 0, Digest: digest.Zero}

// Pointer identifies a revision by the (epoch, digest) pair embedded in
// its key.
type Pointer struct {
	Epoch  int64 // microsecond wall-clock epoch
	Digest digest.Digest
}

func (p Pointer) String() string {
	return fmt.Sprintf("%d-%s", p.Epoch, p.Digest)
}

func (p Pointer) IsRoot() bool {
	return p.Epoch == Root.Epoch && p.Digest == Root.Digest
}

// Revision is one changelog node: a parent pointer and its own pointer,
// whose Digest names the Commit blob it carries.
type Revision struct {
	Parent Pointer
	Own    Pointer
}

// Key renders the revision in its on-disk key format:
// "<parent_epoch>-<parent_digest_hex>.<own_epoch>-<own_digest_hex>".
func (r Revision) Key() string {
	return r.Parent.String() + "." + r.Own.String()
}

// ParseKey parses a revision key produced by Key.
func ParseKey(key string) (Revision, error) {
	parentPart, ownPart, ok := strings.Cut(key, ".")
	if !ok {
		return Revision{}, fmt.Errorf("changelog: malformed revision key %q", key)
	}
	parent, err := parsePointer(parentPart)
	if err != nil {
		return Revision{}, fmt.Errorf("changelog: parent of %q: %w", key, err)
	}
	own, err := parsePointer(ownPart)
	if err != nil {
		return Revision{}, fmt.Errorf("changelog: own of %q: %w", key, err)
	}
	return Revision{Parent: parent, Own: own}, nil
}

func parsePointer(s string) (Pointer, error) {
	epochPart, digestPart, ok := strings.Cut(s, "-")
	if !ok {
		return Pointer{}, fmt.Errorf("malformed pointer %q", s)
	}
	epoch, err := strconv.ParseInt(epochPart, 10, 64)
	if err != nil {
		return Pointer{}, fmt.Errorf("parse epoch in %q: %w", s, err)
	}
	d, err := digest.Parse(digestPart)
	if err != nil {
		return Pointer{}, fmt.Errorf("parse digest in %q: %w", s, err)
	}
	return Pointer{Epoch: epoch, Digest: d}, nil
}

// Changelog is a handle onto the set of revision keys under prefix in p.
type Changelog struct {
	pod    pod.Pod
	prefix string

	mu        sync.Mutex
	lastEpoch int64
}

// Open returns a Changelog rooted at prefix (typically
// "<CHANGELOG_ROOT>/<series_identity_digest>").
func Open(p pod.Pod, prefix string) *Changelog {
	return &Changelog{pod: p, prefix: prefix}
}

// nowMicros is a seam so tests can control the clock if ever needed. It only
// reads the wall clock; nextEpoch bumps its value against the last epoch
// seen to keep epochs strictly increasing within one process.
var nowMicros = func() int64 {
	return time.Now().UnixMicro()
}

// Append builds a new revision with the given parent pointer and commit
// digest, using the current wall-clock microsecond epoch, and PUTs it.
// Append is idempotent: two callers racing with identical (parent,
// commit digest, epoch) converge to a single Pod write, though in practice
// distinct epochs make that collision vanishingly unlikely.
func (c *Changelog) Append(ctx context.Context, parent Pointer, commitDigest digest.Digest) (Revision, error) {
	rev := Revision{
		Parent: parent,
		Own:    Pointer{Epoch: c.nextEpoch(), Digest: commitDigest},
	}
	key := c.prefix + "/" + rev.Key()
	if err := pod.WithRetry(ctx, func() error { return c.pod.Put(ctx, key, nil) }); err != nil {
		return Revision{}, fmt.Errorf("changelog: append: %w", err)
	}
	return rev, nil
}

// nextEpoch returns the current wall-clock microsecond epoch, bumped by
// one past the last epoch this Changelog handed out if the clock hasn't
// advanced, guaranteeing strict monotonicity within a process.
func (c *Changelog) nextEpoch() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := nowMicros()
	if now <= c.lastEpoch {
		now = c.lastEpoch + 1
	}
	c.lastEpoch = now
	return now
}

// Prefix returns the Pod key prefix this changelog's revisions live under,
// used by pkg/repo to sync raw revision keys between two Pods.
func (c *Changelog) Prefix() string { return c.prefix }

// All lists and parses every revision under the changelog's prefix.
func (c *Changelog) All(ctx context.Context) ([]Revision, error) {
	keys, err := c.pod.List(ctx, c.prefix+"/")
	if err != nil {
		return nil, fmt.Errorf("changelog: list: %w", err)
	}
	revs := make([]Revision, 0, len(keys))
	for _, k := range keys {
		name := strings.TrimPrefix(k, c.prefix+"/")
		rev, err := ParseKey(name)
		if err != nil {
			return nil, fmt.Errorf("changelog: %w", err)
		}
		revs = append(revs, rev)
	}
	return revs, nil
}

// Heads returns the revisions with no child: every Own pointer that never
// appears as another revision's Parent. More than one head means the
// series is divergent (not an error; see lakotaerrs.DivergentHeads, which
// is surfaced by higher layers, not here).
func (c *Changelog) Heads(ctx context.Context) ([]Revision, error) {
	revs, err := c.All(ctx)
	if err != nil {
		return nil, err
	}
	return heads(revs), nil
}

func heads(revs []Revision) []Revision {
	isParent := make(map[Pointer]bool, len(revs))
	for _, r := range revs {
		isParent[r.Parent] = true
	}
	var out []Revision
	for _, r := range revs {
		if !isParent[r.Own] {
			out = append(out, r)
		}
	}
	sortNewestFirst(out)
	return out
}

// Log returns every revision under the prefix, newest-first by own epoch,
// ties broken by digest.
func (c *Changelog) Log(ctx context.Context) ([]Revision, error) {
	revs, err := c.All(ctx)
	if err != nil {
		return nil, err
	}
	sortNewestFirst(revs)
	return revs, nil
}

func sortNewestFirst(revs []Revision) {
	sort.Slice(revs, func(i, j int) bool {
		if revs[i].Own.Epoch != revs[j].Own.Epoch {
			return revs[i].Own.Epoch > revs[j].Own.Epoch
		}
		return revs[i].Own.Digest.String() > revs[j].Own.Digest.String()
	})
}

// Walk follows parent pointers from head toward the root, returning the
// chain newest-first (head included, root sentinel excluded).
func (c *Changelog) Walk(ctx context.Context, head Revision) ([]Revision, error) {
	revs, err := c.All(ctx)
	if err != nil {
		return nil, err
	}
	byOwn := make(map[Pointer]Revision, len(revs))
	for _, r := range revs {
		byOwn[r.Own] = r
	}

	chain := []Revision{head}
	cur := head
	for !cur.Parent.IsRoot() {
		next, ok := byOwn[cur.Parent]
		if !ok {
			return nil, fmt.Errorf("changelog: parent %s of %s: %w", cur.Parent, cur.Own, lakotaerrs.DataMissing)
		}
		chain = append(chain, next)
		cur = next
	}
	return chain, nil
}

// GreatestHead picks the lexicographically greatest head key, the
// deterministic tie-break used to parent a write when the series is
// already divergent (a write does not merge, it just picks one parent).
func GreatestHead(heads []Revision) Revision {
	greatest := heads[0]
	for _, h := range heads[1:] {
		if h.Key() > greatest.Key() {
			greatest = h
		}
	}
	return greatest
}

// Remove deletes revision keys, used by defrag/squash after their
// replacement revisions are durable.
func (c *Changelog) Remove(ctx context.Context, revs []Revision) error {
	for _, r := range revs {
		key := c.prefix + "/" + r.Key()
		if err := c.pod.Delete(ctx, key); err != nil {
			return fmt.Errorf("changelog: remove %s: %w", r.Key(), err)
		}
	}
	return nil
}
