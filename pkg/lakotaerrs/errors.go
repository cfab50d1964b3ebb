// Package lakotaerrs defines the error taxonomy shared by every layer of
// lakota, from the Pod up to Repo push/pull.
package lakotaerrs

import "errors"

// Kind identifies one of the error categories from the design's error
// handling section. Callers should compare with errors.Is against the
// sentinel values below, not against Kind directly.
type Kind string

const (
	KindPodNotFound    Kind = "POD_NOT_FOUND"
	KindPodIO          Kind = "POD_IO"
	KindDataMissing    Kind = "DATA_MISSING"
	KindSchemaMismatch Kind = "SCHEMA_MISMATCH"
	KindEmptyWrite     Kind = "EMPTY_WRITE"
	KindDivergentHeads Kind = "DIVERGENT_HEADS"
	KindRemoteIO       Kind = "REMOTE_IO"
)

// Sentinel errors. Wrap with fmt.Errorf("...: %w", PodNotFound) to attach
// context while keeping errors.Is(err, PodNotFound) working.
var (
	PodNotFound    = errors.New(string(KindPodNotFound))
	PodIO          = errors.New(string(KindPodIO))
	DataMissing    = errors.New(string(KindDataMissing))
	SchemaMismatch = errors.New(string(KindSchemaMismatch))
	EmptyWrite     = errors.New(string(KindEmptyWrite))
	DivergentHeads = errors.New(string(KindDivergentHeads))
	RemoteIO       = errors.New(string(KindRemoteIO))
)

var all = []struct {
	kind Kind
	err  error
}{
	{KindPodNotFound, PodNotFound},
	{KindPodIO, PodIO},
	{KindDataMissing, DataMissing},
	{KindSchemaMismatch, SchemaMismatch},
	{KindEmptyWrite, EmptyWrite},
	{KindDivergentHeads, DivergentHeads},
	{KindRemoteIO, RemoteIO},
}

// Of reports which Kind, if any, wraps err.
func Of(err error) (Kind, bool) {
	for _, candidate := range all {
		if errors.Is(err, candidate.err) {
			return candidate.kind, true
		}
	}
	return "", false
}

// IsNotFound is a convenience check used by cache-pod and Series read paths.
func IsNotFound(err error) bool {
	return errors.Is(err, PodNotFound)
}
