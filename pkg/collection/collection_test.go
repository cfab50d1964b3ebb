package collection

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bertrandchenal/lakota/pkg/digest"
	"github.com/bertrandchenal/lakota/pkg/pod"
)

func TestPutThenResolveRoundtrips(t *testing.T) {
	ctx := context.Background()
	p := pod.NewMemory()
	c := Open(p, "weather")

	id := digest.Sum([]byte("brussels"))
	_, err := c.Put(ctx, "brussels", id, []byte("city=brussels"), "tester", 1000)
	require.NoError(t, err)

	entry, ok, err := c.Resolve(ctx, "brussels")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "brussels", entry.Label)
	require.Equal(t, id, entry.Digest)
	require.Equal(t, []byte("city=brussels"), entry.Meta)
}

func TestResolveUnknownLabel(t *testing.T) {
	ctx := context.Background()
	p := pod.NewMemory()
	c := Open(p, "weather")

	_, ok, err := c.Resolve(ctx, "nowhere")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestDropTombstonesLabel(t *testing.T) {
	ctx := context.Background()
	p := pod.NewMemory()
	c := Open(p, "weather")

	id := digest.Sum([]byte("brussels"))
	_, err := c.Put(ctx, "brussels", id, nil, "tester", 1000)
	require.NoError(t, err)

	_, err = c.Drop(ctx, "brussels", "tester", 2000)
	require.NoError(t, err)

	_, ok, err := c.Resolve(ctx, "brussels")
	require.NoError(t, err)
	require.False(t, ok, "dropped label must no longer resolve")

	entries, err := c.List(ctx)
	require.NoError(t, err)
	require.Empty(t, entries, "dropped label must not appear in List")
}

func TestListExcludesTombstones(t *testing.T) {
	ctx := context.Background()
	p := pod.NewMemory()
	c := Open(p, "weather")

	brussels := digest.Sum([]byte("brussels"))
	paris := digest.Sum([]byte("paris"))
	_, err := c.Put(ctx, "brussels", brussels, nil, "tester", 1000)
	require.NoError(t, err)
	_, err = c.Put(ctx, "paris", paris, nil, "tester", 1001)
	require.NoError(t, err)
	_, err = c.Drop(ctx, "paris", "tester", 1002)
	require.NoError(t, err)

	entries, err := c.List(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "brussels", entries[0].Label)
}

func TestRenameMovesRegistration(t *testing.T) {
	ctx := context.Background()
	p := pod.NewMemory()
	c := Open(p, "weather")

	id := digest.Sum([]byte("brussels"))
	_, err := c.Put(ctx, "brussels", id, []byte("meta"), "tester", 1000)
	require.NoError(t, err)

	_, err = c.Rename(ctx, "brussels", "bxl", "tester", 2000)
	require.NoError(t, err)

	_, ok, err := c.Resolve(ctx, "brussels")
	require.NoError(t, err)
	require.False(t, ok, "old label must no longer resolve")

	entry, ok, err := c.Resolve(ctx, "bxl")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, id, entry.Digest)
	require.Equal(t, []byte("meta"), entry.Meta)
}

func TestOpenSeriesResolvesIdentity(t *testing.T) {
	ctx := context.Background()
	p := pod.NewMemory()
	c := Open(p, "weather")

	id := digest.Sum([]byte("brussels"))
	_, err := c.Put(ctx, "brussels", id, nil, "tester", 1000)
	require.NoError(t, err)

	sr, err := c.OpenSeries(ctx, "brussels", RegistrySchema)
	require.NoError(t, err)
	require.Equal(t, id, sr.Identity())
}

func TestOpenSeriesUnknownLabelFails(t *testing.T) {
	ctx := context.Background()
	p := pod.NewMemory()
	c := Open(p, "weather")

	_, err := c.OpenSeries(ctx, "nowhere", RegistrySchema)
	require.Error(t, err)
}

func TestIdentityIsStablePerName(t *testing.T) {
	require.Equal(t, Identity("weather"), Identity("weather"))
	require.NotEqual(t, Identity("weather"), Identity("traffic"))
}
