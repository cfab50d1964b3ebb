package pod

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bertrandchenal/lakota/pkg/lakotaerrs"
)

// Filesystem is a Pod backed by a local directory tree, one file per key.
// Writes land via a temp file + rename so a reader never observes a
// partially written blob.
type Filesystem struct {
	basePath string
}

// NewFilesystem returns a Filesystem pod rooted at basePath, creating the
// directory if it does not already exist.
func NewFilesystem(basePath string) (*Filesystem, error) {
	if basePath == "" {
		return nil, fmt.Errorf("pod: filesystem path is empty")
	}
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("pod: create base dir %s: %w", basePath, err)
	}
	return &Filesystem{basePath: basePath}, nil
}

func (f *Filesystem) path(key string) string {
	return filepath.Join(f.basePath, filepath.FromSlash(key))
}

func (f *Filesystem) Get(_ context.Context, key string) ([]byte, error) {
	data, err := os.ReadFile(f.path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("pod: %s: %w", key, lakotaerrs.PodNotFound)
		}
		return nil, fmt.Errorf("pod: read %s: %w", key, lakotaerrs.PodIO)
	}
	return data, nil
}

func (f *Filesystem) Put(_ context.Context, key string, content []byte) error {
	dst := f.path(key)
	if existing, err := os.ReadFile(dst); err == nil && bytesEqual(existing, content) {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("pod: create dir for %s: %w", key, lakotaerrs.PodIO)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dst), ".tmp-*")
	if err != nil {
		return fmt.Errorf("pod: create temp file for %s: %w", key, lakotaerrs.PodIO)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		return fmt.Errorf("pod: write %s: %w", key, lakotaerrs.PodIO)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("pod: sync %s: %w", key, lakotaerrs.PodIO)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("pod: close temp file for %s: %w", key, lakotaerrs.PodIO)
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		return fmt.Errorf("pod: publish %s: %w", key, lakotaerrs.PodIO)
	}
	return nil
}

func (f *Filesystem) List(ctx context.Context, prefix string) ([]string, error) {
	return f.Walk(ctx, prefix)
}

func (f *Filesystem) Walk(_ context.Context, prefix string) ([]string, error) {
	var keys []string
	root := f.basePath
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if d.IsDir() {
			return nil
		}
		if strings.HasPrefix(d.Name(), ".tmp-") {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("pod: walk %s: %w", root, lakotaerrs.PodIO)
	}
	return keys, nil
}

func (f *Filesystem) Delete(_ context.Context, key string) error {
	if err := os.Remove(f.path(key)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("pod: delete %s: %w", key, lakotaerrs.PodIO)
	}
	return nil
}

func (f *Filesystem) Stat(_ context.Context, key string) (time.Time, error) {
	info, err := os.Stat(f.path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return time.Time{}, fmt.Errorf("pod: %s: %w", key, lakotaerrs.PodNotFound)
		}
		return time.Time{}, fmt.Errorf("pod: stat %s: %w", key, lakotaerrs.PodIO)
	}
	return info.ModTime(), nil
}

func (f *Filesystem) String() string { return "file://" + f.basePath }
