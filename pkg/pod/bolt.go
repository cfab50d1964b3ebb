package pod

import (
	"context"
	"fmt"
	"strings"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/bertrandchenal/lakota/pkg/lakotaerrs"
)

// blobBucket holds every key lakota ever stores; there is no per-entity
// bucket because Pod values are already opaque content-addressed blobs,
// not structured records to marshal.
var blobBucket = []byte("blobs")

// mtimeBucket tracks a side-table of write times for Stat, since bbolt
// itself does not record per-key timestamps.
var mtimeBucket = []byte("mtimes")

// Bolt is a Pod backed by a bbolt database file, used as a fast local tier
// in a cache-pod chain.
type Bolt struct {
	db *bolt.DB
}

// NewBolt opens (creating if needed) a bbolt database at path.
func NewBolt(path string) (*Bolt, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("pod: open bolt db %s: %w", path, lakotaerrs.PodIO)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(blobBucket); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(mtimeBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("pod: init bolt buckets: %w", lakotaerrs.PodIO)
	}
	return &Bolt{db: db}, nil
}

func (b *Bolt) Close() error {
	return b.db.Close()
}

func (b *Bolt) Get(_ context.Context, key string) ([]byte, error) {
	var out []byte
	err := b.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(blobBucket).Get([]byte(key))
		if v == nil {
			return lakotaerrs.PodNotFound
		}
		out = append([]byte(nil), v...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (b *Bolt) Put(_ context.Context, key string, content []byte) error {
	now, err := clockNow().MarshalBinary()
	if err != nil {
		return fmt.Errorf("pod: marshal timestamp: %w", err)
	}
	err = b.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(blobBucket)
		if existing := bucket.Get([]byte(key)); existing != nil && bytesEqual(existing, content) {
			return nil
		}
		if err := bucket.Put([]byte(key), content); err != nil {
			return err
		}
		return tx.Bucket(mtimeBucket).Put([]byte(key), now)
	})
	if err != nil {
		return fmt.Errorf("pod: put %s: %w", key, lakotaerrs.PodIO)
	}
	return nil
}

func (b *Bolt) List(ctx context.Context, prefix string) ([]string, error) {
	return b.Walk(ctx, prefix)
}

func (b *Bolt) Walk(_ context.Context, prefix string) ([]string, error) {
	var keys []string
	err := b.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(blobBucket).Cursor()
		p := []byte(prefix)
		for k, _ := c.Seek(p); k != nil && strings.HasPrefix(string(k), prefix); k, _ = c.Next() {
			keys = append(keys, string(k))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("pod: walk: %w", lakotaerrs.PodIO)
	}
	return keys, nil
}

func (b *Bolt) Delete(_ context.Context, key string) error {
	err := b.db.Update(func(tx *bolt.Tx) error {
		if err := tx.Bucket(blobBucket).Delete([]byte(key)); err != nil {
			return err
		}
		return tx.Bucket(mtimeBucket).Delete([]byte(key))
	})
	if err != nil {
		return fmt.Errorf("pod: delete %s: %w", key, lakotaerrs.PodIO)
	}
	return nil
}

func (b *Bolt) Stat(_ context.Context, key string) (time.Time, error) {
	var out time.Time
	err := b.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(mtimeBucket).Get([]byte(key))
		if v == nil {
			return lakotaerrs.PodNotFound
		}
		return out.UnmarshalBinary(v)
	})
	if err != nil {
		return time.Time{}, fmt.Errorf("pod: stat %s: %w", key, err)
	}
	return out, nil
}

func (b *Bolt) String() string { return "bolt://" + b.db.Path() }
