// Package collection implements a named set of series sharing a schema,
// tracked by a registry that is itself a series — its changelog stores
// commits whose payload maps label -> series-identity digest. This mirrors
// how pkg/series itself is just a changelog of commits; a registry is a
// series whose rows happen to describe other series.
package collection

import (
	"context"
	"fmt"

	"github.com/bertrandchenal/lakota/pkg/changelog"
	"github.com/bertrandchenal/lakota/pkg/digest"
	"github.com/bertrandchenal/lakota/pkg/frame"
	"github.com/bertrandchenal/lakota/pkg/log"
	"github.com/bertrandchenal/lakota/pkg/pod"
	"github.com/bertrandchenal/lakota/pkg/schema"
	"github.com/bertrandchenal/lakota/pkg/series"
	"github.com/rs/zerolog"
)

// IdentityPrefix namespaces the digest a Collection (or Repo, which reuses
// this package's registry shape) is derived from, so that a registry's own
// identity can never collide with a label it stores.
const IdentityPrefix = "collection"

// RegistrySchema is the fixed schema every registry series uses: label is
// the sort key, so materialising the registry already yields one row per
// label via Frame.SortedUnique's keep-last-occurrence dedup -- the same
// reduction pkg/series.Read relies on for last-write-wins.
var RegistrySchema = mustBuildRegistrySchema()

func mustBuildRegistrySchema() schema.Schema {
	s, err := schema.NewBuilder().
		Index("label", schema.String).
		Field("digest", schema.Bytes).
		Field("meta", schema.Bytes).
		Build()
	if err != nil {
		panic(fmt.Sprintf("collection: invalid registry schema: %v", err))
	}
	return s
}

// Entry is one resolved registry row.
type Entry struct {
	Label  string
	Digest digest.Digest
	Meta   []byte
}

// Collection is the public handle for one named group of series.
type Collection struct {
	pod    pod.Pod
	name   string
	reg    *series.Series
	logger zerolog.Logger
}

// Identity derives the stable digest a registry is located at from its
// name, the same way a label's series-identity decouples a series from its
// storage location.
func Identity(name string) digest.Digest {
	return digest.Sum([]byte(IdentityPrefix + ":" + name))
}

// Open returns a Collection handle for name, creating no state until the
// first Put.
func Open(p pod.Pod, name string) *Collection {
	return &Collection{
		pod:    p,
		name:   name,
		reg:    series.Open(p, RegistrySchema, Identity(name)),
		logger: log.WithCollection(name),
	}
}

// Name returns the collection's name.
func (c *Collection) Name() string { return c.name }

// Identity returns the digest the collection's registry is located at.
func (c *Collection) Identity() digest.Digest { return Identity(c.name) }

// Changelog exposes the registry's changelog, e.g. for pkg/gc reachability
// analysis or pkg/maintain scheduling.
func (c *Collection) Changelog() *changelog.Changelog { return c.reg.Changelog() }

// Put registers (or re-registers) label -> identity in the registry.
func (c *Collection) Put(ctx context.Context, label string, identity digest.Digest, meta []byte, author string, tstampUnixMicro int64) (changelog.Revision, error) {
	f := frame.New(RegistrySchema, []frame.Array{
		frame.StringArray{label},
		frame.BytesArray{identity[:]},
		frame.BytesArray{meta},
	})
	rev, err := c.reg.Write(ctx, f, author, tstampUnixMicro)
	if err != nil {
		return changelog.Revision{}, fmt.Errorf("collection %q: put %q: %w", c.name, label, err)
	}
	c.logger.Info().Str("label", label).Str("identity", identity.String()).Msg("registered series")
	return rev, nil
}

// Drop removes label by appending a tombstone row: a registry row whose
// digest is the zero digest, the same sentinel pkg/changelog uses for "no
// parent". Deletes are new registry commits, never in-place mutations.
func (c *Collection) Drop(ctx context.Context, label string, author string, tstampUnixMicro int64) (changelog.Revision, error) {
	f := frame.New(RegistrySchema, []frame.Array{
		frame.StringArray{label},
		frame.BytesArray{digest.Zero[:]},
		frame.BytesArray{nil},
	})
	rev, err := c.reg.Write(ctx, f, author, tstampUnixMicro)
	if err != nil {
		return changelog.Revision{}, fmt.Errorf("collection %q: drop %q: %w", c.name, label, err)
	}
	c.logger.Info().Str("label", label).Msg("dropped series")
	return rev, nil
}

// Rename moves oldLabel's registration to newLabel in a single commit: a
// tombstone row for oldLabel and a live row for newLabel carrying oldLabel's
// identity and metadata.
func (c *Collection) Rename(ctx context.Context, oldLabel, newLabel string, author string, tstampUnixMicro int64) (changelog.Revision, error) {
	entry, ok, err := c.Resolve(ctx, oldLabel)
	if err != nil {
		return changelog.Revision{}, fmt.Errorf("collection %q: rename %q: %w", c.name, oldLabel, err)
	}
	if !ok {
		return changelog.Revision{}, fmt.Errorf("collection %q: rename: label %q not found", c.name, oldLabel)
	}

	labels := []string{newLabel, oldLabel}
	digests := [][]byte{entry.Digest[:], digest.Zero[:]}
	metas := [][]byte{entry.Meta, nil}
	if newLabel < oldLabel {
		labels[0], labels[1] = labels[1], labels[0]
		digests[0], digests[1] = digests[1], digests[0]
		metas[0], metas[1] = metas[1], metas[0]
	}
	f := frame.New(RegistrySchema, []frame.Array{
		frame.StringArray(labels),
		frame.BytesArray(digests),
		frame.BytesArray(metas),
	})
	rev, err := c.reg.Write(ctx, f, author, tstampUnixMicro)
	if err != nil {
		return changelog.Revision{}, fmt.Errorf("collection %q: rename %q -> %q: %w", c.name, oldLabel, newLabel, err)
	}
	c.logger.Info().Str("old_label", oldLabel).Str("new_label", newLabel).Msg("renamed series")
	return rev, nil
}

// Resolve looks up label's current registration. ok is false if label was
// never registered or was dropped.
func (c *Collection) Resolve(ctx context.Context, label string) (Entry, bool, error) {
	view, err := c.reg.Read(ctx, series.Query{})
	if err != nil {
		return Entry{}, false, fmt.Errorf("collection %q: resolve %q: %w", c.name, label, err)
	}
	labels := view.ColumnByName("label").(frame.StringArray)
	for i, l := range labels {
		if l != label {
			continue
		}
		entry := rowEntry(view, i)
		return entry, !entry.Digest.IsZero(), nil
	}
	return Entry{}, false, nil
}

// List enumerates every live (non-tombstoned) registration.
func (c *Collection) List(ctx context.Context) ([]Entry, error) {
	view, err := c.reg.Read(ctx, series.Query{})
	if err != nil {
		return nil, fmt.Errorf("collection %q: list: %w", c.name, err)
	}
	var out []Entry
	for i := 0; i < view.Len(); i++ {
		entry := rowEntry(view, i)
		if entry.Digest.IsZero() {
			continue
		}
		out = append(out, entry)
	}
	return out, nil
}

func rowEntry(view *frame.Frame, i int) Entry {
	label := view.ColumnByName("label").(frame.StringArray)[i]
	digestBytes := view.ColumnByName("digest").(frame.BytesArray)[i]
	meta := view.ColumnByName("meta").(frame.BytesArray)[i]
	var d digest.Digest
	copy(d[:], digestBytes)
	return Entry{Label: label, Digest: d, Meta: meta}
}

// OpenSeries resolves label and returns the series.Series handle for it.
// Callers supply the series' own data schema, since the registry schema is
// fixed but every series it tracks may have a different one.
func (c *Collection) OpenSeries(ctx context.Context, label string, s schema.Schema) (*series.Series, error) {
	entry, ok, err := c.Resolve(ctx, label)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("collection %q: series %q not registered", c.name, label)
	}
	return series.Open(c.pod, s, entry.Digest), nil
}
