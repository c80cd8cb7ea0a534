// Package thumbnail produces height-constrained derivatives of stored images
// and caches them in the variants store.
package thumbnail

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	"image/png"
	"io"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
	"golang.org/x/sync/singleflight"

	"imagevault/internal/models"
	"imagevault/internal/storage"
)

var (
	ErrInvalidSize       = errors.New("thumbnail height must be positive")
	ErrSourceUnavailable = errors.New("source image unavailable")
	ErrBusy              = errors.New("thumbnail generation busy")
)

const (
	DefaultLockWait      = 10 * time.Second
	DefaultRenderTimeout = time.Minute
	jpegQuality          = 90
)

// Locker serialises generation of a key across processes.
type Locker interface {
	Acquire(ctx context.Context, key string, wait time.Duration) (release func(), err error)
}

type Options struct {
	LockWait      time.Duration
	RenderTimeout time.Duration
	Locker        Locker
}

type Resolver struct {
	originals storage.BlobStore
	variants  storage.BlobStore
	locker    Locker
	group     singleflight.Group
	wait      time.Duration
	timeout   time.Duration
	log       zerolog.Logger
}

func NewResolver(originals, variants storage.BlobStore, opts Options, log zerolog.Logger) *Resolver {
	if opts.LockWait <= 0 {
		opts.LockWait = DefaultLockWait
	}
	if opts.RenderTimeout <= 0 {
		opts.RenderTimeout = DefaultRenderTimeout
	}
	return &Resolver{
		originals: originals,
		variants:  variants,
		locker:    opts.Locker,
		wait:      opts.LockWait,
		timeout:   opts.RenderTimeout,
		log:       log,
	}
}

type rendered struct {
	data        []byte
	contentType string
}

func (r rendered) object() *storage.Object {
	return &storage.Object{
		Body:        io.NopCloser(bytes.NewReader(r.data)),
		Size:        int64(len(r.data)),
		ContentType: r.contentType,
	}
}

// Resolve returns the thumbnail of img at height, rendering and storing it on
// first use. Concurrent calls for the same key share one rendering; a caller
// that waits longer than the lock wait gets ErrBusy.
func (r *Resolver) Resolve(ctx context.Context, img models.Image, height int) (*storage.Object, error) {
	if height <= 0 {
		return nil, ErrInvalidSize
	}

	key := Key(img.ID, height, img.Name)

	obj, err := r.variants.Open(ctx, key)
	if err == nil {
		return obj, nil
	}
	if !errors.Is(err, storage.ErrObjectNotFound) {
		return nil, fmt.Errorf("open derived asset: %w", err)
	}

	// The rendering outlives any single waiter, so it must not inherit the
	// cancellation of whichever request happened to start it.
	renderCtx := context.WithoutCancel(ctx)
	ch := r.group.DoChan(key, func() (any, error) {
		return r.render(renderCtx, img, height, key)
	})

	timer := time.NewTimer(r.wait)
	defer timer.Stop()

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(rendered).object(), nil
	case <-timer.C:
		return nil, ErrBusy
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (r *Resolver) render(ctx context.Context, img models.Image, height int, key string) (rendered, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if r.locker != nil {
		release, err := r.locker.Acquire(ctx, key, r.wait)
		if err != nil {
			return rendered{}, err
		}
		defer release()
	}

	// a previous flight or another process may have stored it since the
	// caller's cache lookup
	if obj, err := r.variants.Open(ctx, key); err == nil {
		defer obj.Body.Close()
		data, err := io.ReadAll(obj.Body)
		if err != nil {
			return rendered{}, fmt.Errorf("read derived asset: %w", err)
		}
		return rendered{data: data, contentType: obj.ContentType}, nil
	}

	start := time.Now()

	src, err := r.originals.Open(ctx, img.StoragePath)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return rendered{}, fmt.Errorf("%w: %s", ErrSourceUnavailable, img.StoragePath)
		}
		return rendered{}, fmt.Errorf("open original: %w", err)
	}
	defer src.Body.Close()

	decoded, format, err := image.Decode(src.Body)
	if err != nil {
		return rendered{}, fmt.Errorf("%w: decode %s: %v", ErrSourceUnavailable, img.StoragePath, err)
	}

	bounds := decoded.Bounds()
	width, h := TargetSize(bounds.Dx(), bounds.Dy(), height)
	if width == 0 {
		return rendered{}, fmt.Errorf("%w: empty image %s", ErrSourceUnavailable, img.StoragePath)
	}

	dst := image.NewRGBA(image.Rect(0, 0, width, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), decoded, bounds, draw.Over, nil)

	var buf bytes.Buffer
	contentType, err := encode(&buf, dst, format)
	if err != nil {
		return rendered{}, fmt.Errorf("encode thumbnail: %w", err)
	}

	if err := r.variants.Put(ctx, key, bytes.NewReader(buf.Bytes()), int64(buf.Len()), contentType); err != nil {
		return rendered{}, fmt.Errorf("store thumbnail: %w", err)
	}

	r.log.Debug().
		Str("image_id", img.ID).
		Str("key", key).
		Int("width", width).
		Int("height", h).
		Dur("took", time.Since(start)).
		Msg("thumbnail rendered")

	return rendered{data: buf.Bytes(), contentType: contentType}, nil
}

func encode(w io.Writer, img image.Image, format string) (string, error) {
	if format == "jpeg" {
		return "image/jpeg", jpeg.Encode(w, img, &jpeg.Options{Quality: jpegQuality})
	}
	return "image/png", png.Encode(w, img)
}
