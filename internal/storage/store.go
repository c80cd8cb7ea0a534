package storage

import (
	"context"
	"errors"
	"fmt"
	"io"

	"imagevault/internal/config"
)

var ErrObjectNotFound = errors.New("object not found")

type Object struct {
	Body        io.ReadCloser
	Size        int64
	ContentType string
}

// BlobStore reads and writes image bytes by key. Put must be atomic: a reader
// either sees the previous state or the complete new object.
type BlobStore interface {
	Open(ctx context.Context, key string) (*Object, error)
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
}

type Stores struct {
	Originals BlobStore
	Variants  BlobStore
}

func NewStores(ctx context.Context, cfg config.StorageConfig) (Stores, error) {
	switch cfg.Driver {
	case config.StorageDriverLocal:
		originals, err := NewLocalStore(cfg.Root, cfg.BucketOriginals)
		if err != nil {
			return Stores{}, err
		}
		variants, err := NewLocalStore(cfg.Root, cfg.BucketVariants)
		if err != nil {
			return Stores{}, err
		}
		return Stores{Originals: originals, Variants: variants}, nil
	case config.StorageDriverMinio:
		store, err := NewObjectStore(cfg)
		if err != nil {
			return Stores{}, err
		}
		if err := store.EnsureBuckets(ctx); err != nil {
			return Stores{}, err
		}
		return Stores{
			Originals: store.Bucket(cfg.BucketOriginals),
			Variants:  store.Bucket(cfg.BucketVariants),
		}, nil
	case config.StorageDriverMemory:
		return Stores{Originals: NewMemoryStore(), Variants: NewMemoryStore()}, nil
	default:
		return Stores{}, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}
