package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"mime"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/segmentio/ksuid"

	"imagevault/internal/access"
	"imagevault/internal/config"
	"imagevault/internal/media/sniffer"
	"imagevault/internal/models"
	"imagevault/internal/queue"
	"imagevault/internal/storage"
)

var (
	ErrEmptyFile           = errors.New("empty file")
	ErrFileTooLarge        = errors.New("file too large")
	ErrUnsupportedMedia    = errors.New("only png and jpeg images are accepted")
	ErrContentTypeMismatch = errors.New("declared content type does not match file")
	ErrCorruptImage        = errors.New("image could not be decoded")
	ErrTooManyPixels       = errors.New("image dimensions too large")
	ErrInvalidExpiry       = errors.New("invalid expiry")
)

type ImageWriter interface {
	Create(ctx context.Context, image models.Image) error
}

type TempLinkIssuer interface {
	IssueTempLinkIfEntitled(ctx context.Context, img *models.Image, expirySeconds int, tier *models.AccountTier) (string, bool, error)
}

type TaskQueue interface {
	Enqueue(ctx context.Context, task queue.Task) error
}

type UploadInput struct {
	UserID        string
	Filename      string
	Description   string
	DeclaredType  string
	ExpirySeconds int
	File          io.Reader
}

// UploadResult lists the links the owner's tier lets them use.
type UploadResult struct {
	Image      models.Image
	Tier       *models.AccountTier
	URL        string
	TempURL    string
	Thumbnails map[int]string
}

type UploadService struct {
	images    ImageWriter
	tiers     access.SubscriptionDirectory
	originals storage.BlobStore
	links     TempLinkIssuer
	queue     TaskQueue
	cfg       *config.AppConfig
	log       zerolog.Logger
	now       func() time.Time
}

func NewUploadService(
	images ImageWriter,
	tiers access.SubscriptionDirectory,
	originals storage.BlobStore,
	links TempLinkIssuer,
	queue TaskQueue,
	cfg *config.AppConfig,
	log zerolog.Logger,
) *UploadService {
	return &UploadService{
		images:    images,
		tiers:     tiers,
		originals: originals,
		links:     links,
		queue:     queue,
		cfg:       cfg,
		log:       log,
		now:       time.Now,
	}
}

// NormalizeExpiry maps an absent or zero expiry to access.ExpiryDisabled and
// rejects values outside the configured window.
func (s *UploadService) NormalizeExpiry(expirySeconds int) (int, error) {
	if expirySeconds == 0 || expirySeconds == access.ExpiryDisabled {
		return access.ExpiryDisabled, nil
	}
	if expirySeconds < s.cfg.Links.MinExpiry || expirySeconds > s.cfg.Links.MaxExpiry {
		return 0, fmt.Errorf("%w: expirySeconds must be between %d and %d",
			ErrInvalidExpiry, s.cfg.Links.MinExpiry, s.cfg.Links.MaxExpiry)
	}
	return expirySeconds, nil
}

func (s *UploadService) Upload(ctx context.Context, input UploadInput) (UploadResult, error) {
	if input.File == nil {
		return UploadResult{}, ErrEmptyFile
	}

	expiry, err := s.NormalizeExpiry(input.ExpirySeconds)
	if err != nil {
		return UploadResult{}, err
	}

	limit := s.cfg.Upload.MaxSizeMB << 20
	data, err := io.ReadAll(io.LimitReader(input.File, limit+1))
	if err != nil {
		return UploadResult{}, fmt.Errorf("read file: %w", err)
	}
	if len(data) == 0 {
		return UploadResult{}, ErrEmptyFile
	}
	if int64(len(data)) > limit {
		return UploadResult{}, ErrFileTooLarge
	}

	detected, err := sniffer.DetectHead(data)
	if err != nil {
		return UploadResult{}, fmt.Errorf("%w: %v", ErrUnsupportedMedia, err)
	}
	if declared := normalizeMediaType(input.DeclaredType); declared != "" && declared != detected.MIME {
		return UploadResult{}, fmt.Errorf("%w: declared %s, actual %s", ErrContentTypeMismatch, input.DeclaredType, detected.MIME)
	}

	dims, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return UploadResult{}, fmt.Errorf("%w: %v", ErrCorruptImage, err)
	}
	if int64(dims.Width)*int64(dims.Height) > s.cfg.Upload.MaxPixels {
		return UploadResult{}, fmt.Errorf("%w: %dx%d exceeds %d pixels",
			ErrTooManyPixels, dims.Width, dims.Height, s.cfg.Upload.MaxPixels)
	}

	tier, err := s.tiers.Lookup(ctx, input.UserID)
	if err != nil {
		return UploadResult{}, fmt.Errorf("lookup subscription: %w", err)
	}

	now := s.now().UTC()
	imageID := uuid.NewString()
	img := models.Image{
		ID:          imageID,
		UserID:      input.UserID,
		Name:        cleanFilename(input.Filename, detected),
		Description: input.Description,
		StoragePath: s.buildObjectKey(now, detected.Extension()),
		URI:         "/api/v1/images/" + imageID,
		Format:      string(detected.Type),
		Width:       dims.Width,
		Height:      dims.Height,
		SizeBytes:   int64(len(data)),
		CreatedAt:   now,
	}

	if _, _, err := s.links.IssueTempLinkIfEntitled(ctx, &img, expiry, tier); err != nil {
		return UploadResult{}, err
	}

	if err := s.originals.Put(ctx, img.StoragePath, bytes.NewReader(data), img.SizeBytes, detected.MIME); err != nil {
		return UploadResult{}, fmt.Errorf("store original: %w", err)
	}

	if err := s.images.Create(ctx, img); err != nil {
		return UploadResult{}, fmt.Errorf("save metadata: %w", err)
	}

	if err := s.queue.Enqueue(ctx, queue.Task{Type: queue.TaskPrewarm, ImageID: img.ID, UserID: img.UserID}); err != nil {
		s.log.Warn().Err(err).Str("image_id", img.ID).Msg("enqueue prewarm failed")
	}

	s.log.Info().
		Str("image_id", img.ID).
		Str("user_id", img.UserID).
		Int("width", img.Width).
		Int("height", img.Height).
		Bool("temp_link", img.TempURI != "").
		Msg("image uploaded")

	return s.describe(img, tier), nil
}

func (s *UploadService) describe(img models.Image, tier *models.AccountTier) UploadResult {
	result := UploadResult{
		Image:      img,
		Tier:       tier,
		Thumbnails: map[int]string{},
	}
	if tier == nil {
		return result
	}
	for _, size := range tier.ThumbnailSizes {
		result.Thumbnails[size] = s.absoluteURL(img.URI + "/size/" + strconv.Itoa(size))
	}
	if tier.AllowsOriginal {
		result.URL = s.absoluteURL(img.URI)
	}
	if tier.AllowsExpiringLinks && img.TempURI != "" {
		result.TempURL = s.absoluteURL(img.TempURI)
	}
	return result
}

func (s *UploadService) buildObjectKey(now time.Time, ext string) string {
	return path.Join("originals", now.Format("2006/01/02"), fmt.Sprintf("%s.%s", ksuid.New().String(), ext))
}

func (s *UploadService) absoluteURL(uri string) string {
	return strings.TrimSuffix(s.cfg.HTTP.PublicURL, "/") + uri
}

// normalizeMediaType strips parameters from a declared Content-Type and maps
// image/jpg to image/jpeg. Unparseable values are returned lower-cased so they
// still fail the comparison with the detected type.
func normalizeMediaType(declared string) string {
	declared = strings.TrimSpace(declared)
	if declared == "" {
		return ""
	}
	mediaType, _, err := mime.ParseMediaType(declared)
	if err != nil {
		mediaType = strings.ToLower(declared)
	}
	if mediaType == "image/jpg" || mediaType == "image/pjpeg" {
		return "image/jpeg"
	}
	return mediaType
}

func cleanFilename(name string, detected sniffer.Result) string {
	name = path.Base(strings.ReplaceAll(strings.TrimSpace(name), "\\", "/"))
	if name == "." || name == "/" || name == "" {
		return "image." + detected.Extension()
	}
	return name
}
