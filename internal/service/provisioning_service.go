package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"imagevault/internal/models"
	"imagevault/internal/repository"
	"imagevault/internal/security"
)

var ErrInvalidInput = errors.New("invalid input")

type UserStore interface {
	Create(ctx context.Context, user models.User) error
	FindByUsername(ctx context.Context, username string) (models.User, error)
	UpdateStatus(ctx context.Context, id string, status models.UserStatus) error
}

type TierStore interface {
	CreateTier(ctx context.Context, tier models.AccountTier) (int64, error)
	GetByName(ctx context.Context, name string) (models.AccountTier, error)
	AddSize(ctx context.Context, height int) error
	ListSizes(ctx context.Context) ([]int, error)
	Subscribe(ctx context.Context, userID string, tierID int64) error
}

// TierInvalidator drops cached subscription lookups after a change.
type TierInvalidator interface {
	Invalidate(ctx context.Context, userID string) error
}

// ProvisioningService owns the reference data the access rules read: users,
// thumbnail sizes, tiers and subscriptions.
type ProvisioningService struct {
	users       UserStore
	tiers       TierStore
	invalidator TierInvalidator
	log         zerolog.Logger
}

func NewProvisioningService(users UserStore, tiers TierStore, invalidator TierInvalidator, log zerolog.Logger) *ProvisioningService {
	return &ProvisioningService{
		users:       users,
		tiers:       tiers,
		invalidator: invalidator,
		log:         log,
	}
}

type CreateUserInput struct {
	Username string
	Email    string
	Password string
	Admin    bool
}

func (s *ProvisioningService) CreateUser(ctx context.Context, input CreateUserInput) (models.User, error) {
	input.Username = strings.TrimSpace(input.Username)
	if input.Username == "" || input.Password == "" {
		return models.User{}, fmt.Errorf("%w: username and password required", ErrInvalidInput)
	}

	if _, err := s.users.FindByUsername(ctx, input.Username); err == nil {
		return models.User{}, fmt.Errorf("%w: username %q already taken", ErrInvalidInput, input.Username)
	} else if !errors.Is(err, repository.ErrUserNotFound) {
		return models.User{}, err
	}

	hash, err := security.HashPassword(input.Password)
	if err != nil {
		return models.User{}, err
	}

	role := models.UserRoleUser
	if input.Admin {
		role = models.UserRoleAdmin
	}

	user := models.User{
		ID:           uuid.NewString(),
		Username:     input.Username,
		Email:        strings.TrimSpace(strings.ToLower(input.Email)),
		PasswordHash: hash,
		Role:         role,
		Status:       models.UserStatusActive,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return models.User{}, fmt.Errorf("create user: %w", err)
	}

	s.log.Info().Str("user_id", user.ID).Str("username", user.Username).Msg("user created")
	return user, nil
}

// SetUserStatus suspends or reactivates a user. Bearer tokens already issued
// stop resolving on the next request because tokens are checked against the
// stored status.
func (s *ProvisioningService) SetUserStatus(ctx context.Context, username string, status models.UserStatus) error {
	if status != models.UserStatusActive && status != models.UserStatusSuspended {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidInput, status)
	}
	user, err := s.users.FindByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		return fmt.Errorf("find user %q: %w", username, err)
	}
	if user.Status == status {
		return nil
	}
	if err := s.users.UpdateStatus(ctx, user.ID, status); err != nil {
		return fmt.Errorf("update status: %w", err)
	}

	s.log.Info().Str("user_id", user.ID).Str("status", string(status)).Msg("user status changed")
	return nil
}

func (s *ProvisioningService) ListSizes(ctx context.Context) ([]int, error) {
	return s.tiers.ListSizes(ctx)
}

func (s *ProvisioningService) AddSize(ctx context.Context, height int) error {
	if height <= 0 {
		return fmt.Errorf("%w: thumbnail height must be positive", ErrInvalidInput)
	}
	return s.tiers.AddSize(ctx, height)
}

func (s *ProvisioningService) CreateTier(ctx context.Context, tier models.AccountTier) (models.AccountTier, error) {
	tier.Name = strings.TrimSpace(tier.Name)
	if tier.Name == "" {
		return models.AccountTier{}, fmt.Errorf("%w: tier name required", ErrInvalidInput)
	}
	for _, size := range tier.ThumbnailSizes {
		if size <= 0 {
			return models.AccountTier{}, fmt.Errorf("%w: thumbnail height must be positive, got %d", ErrInvalidInput, size)
		}
	}
	slices.Sort(tier.ThumbnailSizes)
	tier.ThumbnailSizes = slices.Compact(tier.ThumbnailSizes)

	id, err := s.tiers.CreateTier(ctx, tier)
	if err != nil {
		return models.AccountTier{}, fmt.Errorf("create tier: %w", err)
	}
	tier.ID = id

	s.log.Info().Int64("tier_id", id).Str("tier", tier.Name).Ints("sizes", tier.ThumbnailSizes).Msg("tier created")
	return tier, nil
}

func (s *ProvisioningService) Subscribe(ctx context.Context, username, tierName string) error {
	user, err := s.users.FindByUsername(ctx, username)
	if err != nil {
		return fmt.Errorf("find user %q: %w", username, err)
	}
	tier, err := s.tiers.GetByName(ctx, tierName)
	if err != nil {
		return fmt.Errorf("find tier %q: %w", tierName, err)
	}

	if err := s.tiers.Subscribe(ctx, user.ID, tier.ID); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}

	if s.invalidator != nil {
		if err := s.invalidator.Invalidate(ctx, user.ID); err != nil {
			s.log.Warn().Err(err).Str("user_id", user.ID).Msg("tier cache invalidation failed")
		}
	}

	s.log.Info().Str("user_id", user.ID).Str("tier", tier.Name).Msg("subscription updated")
	return nil
}
