// Package access decides whether a user may retrieve an image in a given
// representation and, when allowed, resolves the bytes to serve.
package access

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"imagevault/internal/media/thumbnail"
	"imagevault/internal/models"
	"imagevault/internal/repository"
	"imagevault/internal/storage"
)

type ImageRecords interface {
	GetByIDForOwner(ctx context.Context, id string, ownerID string) (models.Image, error)
}

// SubscriptionDirectory returns the caller's tier, or nil when unsubscribed.
type SubscriptionDirectory interface {
	Lookup(ctx context.Context, userID string) (*models.AccountTier, error)
}

type ThumbnailResolver interface {
	Resolve(ctx context.Context, img models.Image, height int) (*storage.Object, error)
}

type Asset struct {
	Body        io.ReadCloser
	Size        int64
	ContentType string
	Filename    string
}

type Coordinator struct {
	images    ImageRecords
	tiers     SubscriptionDirectory
	originals storage.BlobStore
	thumbs    ThumbnailResolver
	links     *TempLinkManager
	log       zerolog.Logger
}

func NewCoordinator(
	images ImageRecords,
	tiers SubscriptionDirectory,
	originals storage.BlobStore,
	thumbs ThumbnailResolver,
	links *TempLinkManager,
	log zerolog.Logger,
) *Coordinator {
	return &Coordinator{
		images:    images,
		tiers:     tiers,
		originals: originals,
		thumbs:    thumbs,
		links:     links,
		log:       log,
	}
}

func (c *Coordinator) GetOriginal(ctx context.Context, imageID string, identity string) (*Asset, error) {
	img, err := c.ownedImage(ctx, imageID, identity)
	if err != nil {
		return nil, c.reject(err, imageID, identity)
	}

	if err := c.entitled(ctx, identity, Original{}); err != nil {
		return nil, c.reject(err, imageID, identity)
	}

	asset, err := c.openOriginal(ctx, img)
	if err != nil {
		return nil, c.reject(err, imageID, identity)
	}
	return asset, nil
}

func (c *Coordinator) GetThumbnail(ctx context.Context, imageID string, sizePx int, identity string) (*Asset, error) {
	if sizePx <= 0 {
		return nil, c.reject(deny(ReasonInvalidSize, "Thumbnail size must be a positive number of pixels."), imageID, identity)
	}

	img, err := c.ownedImage(ctx, imageID, identity)
	if err != nil {
		return nil, c.reject(err, imageID, identity)
	}

	if err := c.entitled(ctx, identity, Thumbnail{Height: sizePx}); err != nil {
		return nil, c.reject(err, imageID, identity)
	}

	obj, err := c.thumbs.Resolve(ctx, img, sizePx)
	if err != nil {
		return nil, c.reject(thumbnailDenial(err), imageID, identity)
	}

	return &Asset{
		Body:        obj.Body,
		Size:        obj.Size,
		ContentType: obj.ContentType,
		Filename:    fmt.Sprintf("%dpx_%s", sizePx, img.Name),
	}, nil
}

// GetByTempLink serves the original through a temporary link. A valid link
// does not bypass the tier: both expiring links and originals must be allowed.
func (c *Coordinator) GetByTempLink(ctx context.Context, tempID string, identity string, now time.Time) (*Asset, error) {
	img, err := c.links.Validate(ctx, tempID, identity, now)
	if err != nil {
		return nil, c.reject(err, tempID, identity)
	}

	tier, err := c.lookupTier(ctx, identity)
	if err != nil {
		return nil, c.reject(err, img.ID, identity)
	}
	for _, req := range []Representation{TemporaryLink{}, Original{}} {
		if err := Evaluate(tier, req).Err(); err != nil {
			return nil, c.reject(err, img.ID, identity)
		}
	}

	asset, err := c.openOriginal(ctx, img)
	if err != nil {
		return nil, c.reject(err, img.ID, identity)
	}
	return asset, nil
}

// IssueTempLinkIfEntitled is called by the upload pipeline before the image
// record is stored.
func (c *Coordinator) IssueTempLinkIfEntitled(ctx context.Context, img *models.Image, expirySeconds int, tier *models.AccountTier) (string, bool, error) {
	return c.links.IssueIfEntitled(ctx, img, expirySeconds, tier)
}

// ownedImage reports a foreign image exactly like a missing one so callers
// cannot discover other users' identifiers.
func (c *Coordinator) ownedImage(ctx context.Context, imageID string, identity string) (models.Image, error) {
	if identity == "" {
		return models.Image{}, imageNotFound()
	}
	if _, err := uuid.Parse(imageID); err != nil {
		return models.Image{}, imageNotFound()
	}

	img, err := c.images.GetByIDForOwner(ctx, imageID, identity)
	if err != nil {
		if errors.Is(err, repository.ErrImageNotFound) {
			return models.Image{}, imageNotFound()
		}
		return models.Image{}, unavailable(err, "lookup image")
	}
	return img, nil
}

func (c *Coordinator) lookupTier(ctx context.Context, identity string) (*models.AccountTier, error) {
	tier, err := c.tiers.Lookup(ctx, identity)
	if err != nil {
		return nil, unavailable(err, "lookup subscription")
	}
	return tier, nil
}

func (c *Coordinator) entitled(ctx context.Context, identity string, req Representation) error {
	tier, err := c.lookupTier(ctx, identity)
	if err != nil {
		return err
	}
	return Evaluate(tier, req).Err()
}

func (c *Coordinator) openOriginal(ctx context.Context, img models.Image) (*Asset, error) {
	obj, err := c.originals.Open(ctx, img.StoragePath)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return nil, &Denial{
				Reason:  ReasonSourceUnavailable,
				Message: "The stored image could not be read.",
				Err:     err,
			}
		}
		return nil, unavailable(err, "open original")
	}

	return &Asset{
		Body:        obj.Body,
		Size:        obj.Size,
		ContentType: obj.ContentType,
		Filename:    img.Name,
	}, nil
}

func thumbnailDenial(err error) *Denial {
	switch {
	case errors.Is(err, thumbnail.ErrInvalidSize):
		return &Denial{Reason: ReasonInvalidSize, Message: "Thumbnail size must be a positive number of pixels.", Err: err}
	case errors.Is(err, thumbnail.ErrSourceUnavailable):
		return &Denial{Reason: ReasonSourceUnavailable, Message: "The stored image could not be read.", Err: err}
	case errors.Is(err, thumbnail.ErrBusy):
		return &Denial{Reason: ReasonResolutionBusy, Message: "The thumbnail is being generated. Please retry shortly.", Err: err}
	default:
		return unavailable(err, "resolve thumbnail")
	}
}

func (c *Coordinator) reject(err error, subject string, identity string) error {
	var d *Denial
	if !errors.As(err, &d) {
		d = unavailable(err, "access")
	}

	event := c.log.Debug()
	if d.Reason == ReasonUnavailable || d.Reason == ReasonSourceUnavailable {
		event = c.log.Error().Err(d.Err)
	}
	event.
		Str("subject", subject).
		Str("user_id", identity).
		Str("reason", string(d.Reason)).
		Msg("image access denied")

	return d
}
