package pod

import (
	"context"
	"sync"
	"time"

	"github.com/bertrandchenal/lakota/pkg/lakotaerrs"
)

// Memory is an in-process Pod backed by a map. It is used for tests and as
// the fast tier of a cache-pod chain ahead of a slower durable backend.
type Memory struct {
	mu      sync.RWMutex
	content map[string][]byte
	mtimes  map[string]time.Time
}

// NewMemory returns an empty Memory pod.
func NewMemory() *Memory {
	return &Memory{
		content: make(map[string][]byte),
		mtimes:  make(map[string]time.Time),
	}
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.content[key]
	if !ok {
		return nil, lakotaerrs.PodNotFound
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, nil
}

func (m *Memory) Put(_ context.Context, key string, content []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.content[key]; ok && bytesEqual(existing, content) {
		return nil
	}
	cp := make([]byte, len(content))
	copy(cp, content)
	m.content[key] = cp
	m.mtimes[key] = clockNow()
	return nil
}

func (m *Memory) List(_ context.Context, prefix string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return filterPrefix(sortedKeys(m.content), prefix), nil
}

func (m *Memory) Walk(ctx context.Context, prefix string) ([]string, error) {
	return m.List(ctx, prefix)
}

func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.content, key)
	delete(m.mtimes, key)
	return nil
}

func (m *Memory) Stat(_ context.Context, key string) (time.Time, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.mtimes[key]
	if !ok {
		return time.Time{}, lakotaerrs.PodNotFound
	}
	return t, nil
}

func (m *Memory) String() string { return "memory://" }

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// clockNow is a seam so tests could swap the clock; it is not used for
// anything semantic, only mtimes reported to gc's safety horizon.
var clockNow = time.Now
