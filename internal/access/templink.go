package access

import (
	"context"
	"errors"
	"fmt"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"

	"imagevault/internal/models"
	"imagevault/internal/repository"
)

// ExpiryDisabled marks an image that was uploaded without a temporary link.
const ExpiryDisabled = -1

// TokenAlphabet leaves out characters that are easy to misread (0/O, 1/l/I).
const TokenAlphabet = "23456789ABCDEFGHJKLMNPQRSTUVWXYZabcdefghijkmnpqrstuvwxyz"

const (
	DefaultTokenLength = 12
	DefaultMaxAttempts = 5
	TempURIPrefix      = "/api/v1/temp/"
)

type TempLinkRecords interface {
	GetByTempID(ctx context.Context, tempID string, ownerID string) (models.Image, error)
	TempIDExists(ctx context.Context, tempID string) (bool, error)
}

type TempLinkOptions struct {
	TokenLength int
	MaxAttempts int
}

type TempLinkManager struct {
	records     TempLinkRecords
	length      int
	maxAttempts int
	generate    func(length int) (string, error)
}

func NewTempLinkManager(records TempLinkRecords, opts TempLinkOptions) *TempLinkManager {
	if opts.TokenLength <= 0 {
		opts.TokenLength = DefaultTokenLength
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultMaxAttempts
	}
	return &TempLinkManager{
		records:     records,
		length:      opts.TokenLength,
		maxAttempts: opts.MaxAttempts,
		generate: func(length int) (string, error) {
			return gonanoid.Generate(TokenAlphabet, length)
		},
	}
}

// IssueIfEntitled mints a temporary link for img when the tier allows expiring
// links and expirySeconds is enabled, and records it on img. Otherwise img is
// left without a link and its expiry reset to ExpiryDisabled.
func (m *TempLinkManager) IssueIfEntitled(ctx context.Context, img *models.Image, expirySeconds int, tier *models.AccountTier) (string, bool, error) {
	if tier == nil || !tier.AllowsExpiringLinks || expirySeconds <= 0 {
		img.TempID = ""
		img.TempURI = ""
		img.ExpirySeconds = ExpiryDisabled
		return "", false, nil
	}

	for attempt := 0; attempt < m.maxAttempts; attempt++ {
		tempID, err := m.generate(m.length)
		if err != nil {
			return "", false, fmt.Errorf("generate temp id: %w", err)
		}

		taken, err := m.records.TempIDExists(ctx, tempID)
		if err != nil {
			return "", false, unavailable(err, "check temp id")
		}
		if taken {
			continue
		}

		img.TempID = tempID
		img.TempURI = TempURIPrefix + tempID
		img.ExpirySeconds = expirySeconds
		return img.TempURI, true, nil
	}

	return "", false, deny(ReasonTokenSpaceExhausted,
		"Could not allocate a temporary link after %d attempts. Please retry.", m.maxAttempts)
}

// Validate resolves tempID to an image owned by requestedBy. Expired links
// are reported with their own reason but should be rendered like absent ones.
func (m *TempLinkManager) Validate(ctx context.Context, tempID string, requestedBy string, now time.Time) (models.Image, error) {
	if tempID == "" {
		return models.Image{}, deny(ReasonLinkNotFound, "Image does not exist.")
	}

	img, err := m.records.GetByTempID(ctx, tempID, requestedBy)
	if err != nil {
		if errors.Is(err, repository.ErrImageNotFound) {
			return models.Image{}, deny(ReasonLinkNotFound, "Image does not exist.")
		}
		return models.Image{}, unavailable(err, "lookup temp link")
	}

	expiresAt, ok := img.ExpiresAt()
	if !ok {
		return models.Image{}, deny(ReasonLinkNotFound, "Image does not exist.")
	}
	if !now.Before(expiresAt) {
		return models.Image{}, deny(ReasonLinkExpired, "The temporary link has expired.")
	}

	return img, nil
}
