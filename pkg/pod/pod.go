// Package pod implements lakota's content-addressed blob store abstraction
// and its backends (memory, filesystem, S3-compatible, bbolt-backed cache
// tier, and cache-pod composition).
package pod

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Pod is a key→bytes store with list/read/write/delete. Every method may
// block on I/O and must be safe for concurrent use.
type Pod interface {
	// Get returns the bytes stored at key, or an error wrapping
	// lakotaerrs.PodNotFound if key is absent.
	Get(ctx context.Context, key string) ([]byte, error)

	// Put stores content at key. Put is idempotent: writing identical
	// content to an existing key is a no-op. Callers are responsible for
	// never writing different content to a digest-named key; Pod does
	// not enforce that invariant itself.
	Put(ctx context.Context, key string, content []byte) error

	// List returns keys with the given prefix, in lexicographic order.
	List(ctx context.Context, prefix string) ([]string, error)

	// Delete removes key. Delete is best-effort and idempotent: deleting
	// an absent key is not an error.
	Delete(ctx context.Context, key string) error

	// Walk returns all keys with the given prefix (a recursive List).
	Walk(ctx context.Context, prefix string) ([]string, error)

	// Stat returns the last-modified time of key, used by gc's safety
	// horizon. Backends that cannot report mtimes return the zero Time.
	Stat(ctx context.Context, key string) (time.Time, error)

	// String names the backend for logs and health checks, e.g.
	// "memory://" or "file:///var/lib/lakota".
	String() string
}

// ErrUnsupportedScheme is returned by Open for an unrecognised URI scheme.
var ErrUnsupportedScheme = errors.New("pod: unsupported URI scheme")

// cacheEnvVar optionally prepends a cache URI in front of whatever Open is
// given.
const cacheEnvVar = "LAKOTA_CACHE"

// Open constructs a Pod from a URI:
//
//	memory://
//	file:///absolute/path or ./relative/path
//	s3://bucket/prefix
//
// URIs may be chained fastest-to-slowest to build a cache-pod, either
// "+"-joined ("memory://+file:///var/lib/lakota") or in list form
// ("[memory://, file:///var/lib/lakota]"). If the LAKOTA_CACHE environment
// variable is set, it is prepended as an additional fast tier.
func Open(uri string) (Pod, error) {
	return OpenEnv(uri, lookupEnv)
}

// envLookup abstracts os.LookupEnv for testability.
type envLookup func(string) (string, bool)

func lookupEnv(name string) (string, bool) {
	return osLookupEnv(name)
}

// OpenEnv is Open with an injectable environment lookup, used by tests that
// don't want to mutate process-global environment variables.
func OpenEnv(uri string, lookup envLookup) (Pod, error) {
	parts := splitChain(uri)

	if lookup != nil {
		if cache, ok := lookup(cacheEnvVar); ok && cache != "" {
			parts = append(splitChain(cache), parts...)
		}
	}

	pods := make([]Pod, 0, len(parts))
	for _, p := range parts {
		backend, err := openOne(strings.TrimSpace(p))
		if err != nil {
			return nil, err
		}
		pods = append(pods, backend)
	}

	switch len(pods) {
	case 0:
		return nil, fmt.Errorf("pod: empty URI")
	case 1:
		return pods[0], nil
	default:
		// Chain fastest..slowest into nested cache-pods, slowest last.
		chained := pods[len(pods)-1]
		for i := len(pods) - 2; i >= 0; i-- {
			chained = NewCache(pods[i], chained)
		}
		return chained, nil
	}
}

// splitChain splits a cache-chain URI into its fastest..slowest parts.
// Both chain spellings are accepted: "+"-joined concatenation and list
// form ("[uri1, uri2]").
func splitChain(uri string) []string {
	uri = strings.TrimSpace(uri)
	if uri == "" {
		return nil
	}
	if strings.HasPrefix(uri, "[") && strings.HasSuffix(uri, "]") {
		return strings.Split(uri[1:len(uri)-1], ",")
	}
	return strings.Split(uri, "+")
}

func openOne(uri string) (Pod, error) {
	switch {
	case uri == "memory://" || strings.HasPrefix(uri, "memory://"):
		return NewMemory(), nil
	case strings.HasPrefix(uri, "file://"):
		return NewFilesystem(strings.TrimPrefix(uri, "file://"))
	case strings.HasPrefix(uri, "s3://"):
		return openS3(strings.TrimPrefix(uri, "s3://"))
	case strings.HasPrefix(uri, "bolt://"):
		return NewBolt(strings.TrimPrefix(uri, "bolt://"))
	case strings.HasPrefix(uri, "./") || strings.HasPrefix(uri, "/") || strings.HasPrefix(uri, "../"):
		return NewFilesystem(uri)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedScheme, uri)
	}
}

// sortedKeys is a small helper shared by the in-memory backends that keep
// an unordered map internally but must return List/Walk results in
// lexicographic order.
func sortedKeys(m map[string][]byte) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func filterPrefix(keys []string, prefix string) []string {
	if prefix == "" {
		return keys
	}
	out := keys[:0:0]
	for _, k := range keys {
		if strings.HasPrefix(k, prefix) {
			out = append(out, k)
		}
	}
	return out
}
