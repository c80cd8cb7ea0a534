package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"imagevault/internal/access"
	"imagevault/internal/media/thumbnail"
	"imagevault/internal/models"
	"imagevault/internal/queue"
	"imagevault/internal/repository"
	"imagevault/internal/storage"
)

const sweepBatch = 500

type ImageSource interface {
	GetByID(ctx context.Context, id string) (models.Image, error)
	ListCreatedSince(ctx context.Context, since time.Time, limit int) ([]models.Image, error)
}

type ThumbnailRenderer interface {
	Resolve(ctx context.Context, img models.Image, height int) (*storage.Object, error)
}

// Processor warms the thumbnail cache ahead of the first request. It goes
// through the same resolver as the API so locking and cache keys match.
type Processor struct {
	images      ImageSource
	tiers       access.SubscriptionDirectory
	thumbs      ThumbnailRenderer
	concurrency int
	logger      zerolog.Logger
}

func NewProcessor(images ImageSource, tiers access.SubscriptionDirectory, thumbs ThumbnailRenderer, concurrency int, logger zerolog.Logger) *Processor {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Processor{
		images:      images,
		tiers:       tiers,
		thumbs:      thumbs,
		concurrency: concurrency,
		logger:      logger,
	}
}

func (p *Processor) Handle(ctx context.Context, msg redis.XMessage) error {
	var task queue.Task
	if err := decodePayload(msg.Values, &task); err != nil {
		p.logger.Error().Err(err).Str("message_id", msg.ID).Msg("dropping undecodable task")
		return nil
	}

	switch task.Type {
	case queue.TaskPrewarm:
		return p.handlePrewarm(ctx, task)
	case queue.TaskSweep:
		return p.handleSweep(ctx, task)
	default:
		p.logger.Warn().Str("type", task.Type).Str("message_id", msg.ID).Msg("unknown task type")
		return nil
	}
}

func decodePayload(values map[string]interface{}, out *queue.Task) error {
	bytes, err := json.Marshal(values)
	if err != nil {
		return err
	}
	return json.Unmarshal(bytes, out)
}

func (p *Processor) handlePrewarm(ctx context.Context, task queue.Task) error {
	img, err := p.images.GetByID(ctx, task.ImageID)
	if err != nil {
		if errors.Is(err, repository.ErrImageNotFound) {
			p.logger.Warn().Str("image_id", task.ImageID).Msg("prewarm skipped, image gone")
			return nil
		}
		return err
	}
	return p.prewarm(ctx, img)
}

func (p *Processor) handleSweep(ctx context.Context, task queue.Task) error {
	since := time.Unix(task.Since, 0)
	images, err := p.images.ListCreatedSince(ctx, since, sweepBatch)
	if err != nil {
		return fmt.Errorf("list images: %w", err)
	}

	var failed int
	for _, img := range images {
		if err := p.prewarm(ctx, img); err != nil {
			failed++
			p.logger.Error().Err(err).Str("image_id", img.ID).Msg("sweep prewarm failed")
		}
	}

	p.logger.Info().
		Time("since", since).
		Int("images", len(images)).
		Int("failed", failed).
		Msg("thumbnail sweep finished")
	return nil
}

// prewarm renders every size the owner's tier currently permits.
func (p *Processor) prewarm(ctx context.Context, img models.Image) error {
	tier, err := p.tiers.Lookup(ctx, img.UserID)
	if err != nil {
		return fmt.Errorf("lookup subscription: %w", err)
	}
	if tier == nil || len(tier.ThumbnailSizes) == 0 {
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.concurrency)
	for _, height := range tier.ThumbnailSizes {
		g.Go(func() error {
			obj, err := p.thumbs.Resolve(gctx, img, height)
			if err != nil {
				if errors.Is(err, thumbnail.ErrBusy) {
					// another process holds the key and will write it
					return nil
				}
				if permanent(err) {
					p.logger.Warn().Err(err).Str("image_id", img.ID).Int("height", height).Msg("prewarm skipped")
					return nil
				}
				return fmt.Errorf("resolve %dpx: %w", height, err)
			}
			obj.Body.Close()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	p.logger.Debug().Str("image_id", img.ID).Ints("sizes", tier.ThumbnailSizes).Msg("thumbnails prewarmed")
	return nil
}

// permanent reports failures that no retry can fix.
func permanent(err error) bool {
	return errors.Is(err, thumbnail.ErrSourceUnavailable) || errors.Is(err, thumbnail.ErrInvalidSize)
}
