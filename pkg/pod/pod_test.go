package pod

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bertrandchenal/lakota/pkg/lakotaerrs"
)

func TestMemoryRoundtrip(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	require.NoError(t, m.Put(ctx, "a/1", []byte("hello")))
	require.NoError(t, m.Put(ctx, "a/2", []byte("world")))
	require.NoError(t, m.Put(ctx, "b/1", []byte("other")))

	data, err := m.Get(ctx, "a/1")
	require.NoError(t, err)
	require.Equal(t, []byte("hello"), data)

	keys, err := m.List(ctx, "a/")
	require.NoError(t, err)
	require.Equal(t, []string{"a/1", "a/2"}, keys)

	require.NoError(t, m.Delete(ctx, "a/1"))
	_, err = m.Get(ctx, "a/1")
	require.ErrorIs(t, err, lakotaerrs.PodNotFound)
}

func TestMemoryPutIsIdempotent(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	require.NoError(t, m.Put(ctx, "k", []byte("v")))
	t1, err := m.Stat(ctx, "k")
	require.NoError(t, err)

	require.NoError(t, m.Put(ctx, "k", []byte("v")))
	t2, err := m.Stat(ctx, "k")
	require.NoError(t, err)
	require.Equal(t, t1, t2)
}

func TestFilesystemRoundtrip(t *testing.T) {
	ctx := context.Background()
	fs, err := NewFilesystem(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, fs.Put(ctx, "segments/aa/bb/cccc", []byte("payload")))
	data, err := fs.Get(ctx, "segments/aa/bb/cccc")
	require.NoError(t, err)
	require.Equal(t, []byte("payload"), data)

	keys, err := fs.Walk(ctx, "segments/")
	require.NoError(t, err)
	require.Equal(t, []string{"segments/aa/bb/cccc"}, keys)

	require.NoError(t, fs.Delete(ctx, "segments/aa/bb/cccc"))
	_, err = fs.Get(ctx, "segments/aa/bb/cccc")
	require.ErrorIs(t, err, lakotaerrs.PodNotFound)
}

func TestBoltRoundtrip(t *testing.T) {
	ctx := context.Background()
	b, err := NewBolt(filepath.Join(t.TempDir(), "pod.db"))
	require.NoError(t, err)
	defer b.Close()

	require.NoError(t, b.Put(ctx, "x", []byte("1")))
	require.NoError(t, b.Put(ctx, "y", []byte("2")))

	data, err := b.Get(ctx, "x")
	require.NoError(t, err)
	require.Equal(t, []byte("1"), data)

	keys, err := b.List(ctx, "")
	require.NoError(t, err)
	require.Equal(t, []string{"x", "y"}, keys)
}

func TestCacheBackfillsFastTier(t *testing.T) {
	ctx := context.Background()
	fast := NewMemory()
	slow := NewMemory()
	require.NoError(t, slow.Put(ctx, "k", []byte("v")))

	c := NewCache(fast, slow)
	data, err := c.Get(ctx, "k")
	require.NoError(t, err)
	require.Equal(t, []byte("v"), data)

	_, err = fast.Get(ctx, "k")
	require.NoError(t, err, "cache should have backfilled the fast tier")
}

func TestCacheWritesThroughBothTiers(t *testing.T) {
	ctx := context.Background()
	fast := NewMemory()
	slow := NewMemory()
	c := NewCache(fast, slow)

	require.NoError(t, c.Put(ctx, "k", []byte("v")))
	_, err := fast.Get(ctx, "k")
	require.NoError(t, err)
	_, err = slow.Get(ctx, "k")
	require.NoError(t, err)
}

func TestOpenMemory(t *testing.T) {
	p, err := OpenEnv("memory://", func(string) (string, bool) { return "", false })
	require.NoError(t, err)
	require.Equal(t, "memory://", p.String())
}

func TestOpenChainBuildsCache(t *testing.T) {
	dir := t.TempDir()
	p, err := OpenEnv("memory://+file://"+dir, func(string) (string, bool) { return "", false })
	require.NoError(t, err)
	_, ok := p.(*Cache)
	require.True(t, ok)
}

func TestOpenListFormBuildsCache(t *testing.T) {
	dir := t.TempDir()
	p, err := OpenEnv("[memory://, file://"+dir+"]", func(string) (string, bool) { return "", false })
	require.NoError(t, err)
	c, ok := p.(*Cache)
	require.True(t, ok)
	require.Equal(t, "memory://", c.fast.String())
}

func TestOpenListFormSingleElement(t *testing.T) {
	p, err := OpenEnv("[memory://]", func(string) (string, bool) { return "", false })
	require.NoError(t, err)
	require.Equal(t, "memory://", p.String())
}

func TestOpenUnsupportedScheme(t *testing.T) {
	_, err := OpenEnv("ftp://nope", func(string) (string, bool) { return "", false })
	require.ErrorIs(t, err, ErrUnsupportedScheme)
}

func TestOpenPrependsCacheEnv(t *testing.T) {
	dir := t.TempDir()
	lookup := func(name string) (string, bool) {
		if name == cacheEnvVar {
			return "memory://", true
		}
		return "", false
	}
	p, err := OpenEnv("file://"+dir, lookup)
	require.NoError(t, err)
	_, ok := p.(*Cache)
	require.True(t, ok)
}

func TestPing(t *testing.T) {
	ctx := context.Background()
	require.NoError(t, Ping(ctx, NewMemory()))
}

func TestWithRetryGivesUpOnNonPodIOError(t *testing.T) {
	calls := 0
	err := WithRetry(context.Background(), func() error {
		calls++
		return lakotaerrs.PodNotFound
	})
	require.ErrorIs(t, err, lakotaerrs.PodNotFound)
	require.Equal(t, 1, calls)
}

func TestWithRetryRetriesPodIO(t *testing.T) {
	calls := 0
	err := WithRetry(context.Background(), func() error {
		calls++
		if calls < DefaultRetryAttempts {
			return lakotaerrs.PodIO
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, DefaultRetryAttempts, calls)
}
