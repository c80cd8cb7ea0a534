package service

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"imagevault/internal/models"
	"imagevault/internal/repository"
)

type memoryTiers struct {
	tiers         map[string]models.AccountTier
	sizes         []int
	subscriptions map[string]int64
}

func newMemoryTiers() *memoryTiers {
	return &memoryTiers{tiers: map[string]models.AccountTier{}, subscriptions: map[string]int64{}}
}

func (m *memoryTiers) CreateTier(_ context.Context, tier models.AccountTier) (int64, error) {
	tier.ID = int64(len(m.tiers) + 1)
	m.tiers[tier.Name] = tier
	return tier.ID, nil
}

func (m *memoryTiers) GetByName(_ context.Context, name string) (models.AccountTier, error) {
	tier, ok := m.tiers[name]
	if !ok {
		return models.AccountTier{}, repository.ErrTierNotFound
	}
	return tier, nil
}

func (m *memoryTiers) AddSize(_ context.Context, height int) error {
	m.sizes = append(m.sizes, height)
	return nil
}

func (m *memoryTiers) ListSizes(context.Context) ([]int, error) {
	return m.sizes, nil
}

func (m *memoryTiers) Subscribe(_ context.Context, userID string, tierID int64) error {
	m.subscriptions[userID] = tierID
	return nil
}

type recordingInvalidator struct {
	users []string
}

func (r *recordingInvalidator) Invalidate(_ context.Context, userID string) error {
	r.users = append(r.users, userID)
	return nil
}

func TestCreateUser(t *testing.T) {
	users := newMemoryUsers()
	svc := NewProvisioningService(users, newMemoryTiers(), nil, zerolog.Nop())
	ctx := context.Background()

	user, err := svc.CreateUser(ctx, CreateUserInput{Username: "root", Email: "Root@Example.com", Password: "pw", Admin: true})
	require.NoError(t, err)
	require.Equal(t, models.UserRoleAdmin, user.Role)
	require.Equal(t, models.UserStatusActive, user.Status)
	require.Equal(t, "root@example.com", user.Email)
	require.NotEqual(t, []byte("pw"), user.PasswordHash)

	_, err = svc.CreateUser(ctx, CreateUserInput{Username: "root", Password: "pw"})
	require.ErrorIs(t, err, ErrInvalidInput)

	_, err = svc.CreateUser(ctx, CreateUserInput{Username: "  ", Password: "pw"})
	require.ErrorIs(t, err, ErrInvalidInput)
}

func TestCreateTierNormalizesSizes(t *testing.T) {
	tiers := newMemoryTiers()
	svc := NewProvisioningService(newMemoryUsers(), tiers, nil, zerolog.Nop())
	ctx := context.Background()

	tier, err := svc.CreateTier(ctx, models.AccountTier{Name: " Premium ", ThumbnailSizes: []int{400, 200, 400}, AllowsOriginal: true})
	require.NoError(t, err)
	require.Equal(t, "Premium", tier.Name)
	require.Equal(t, []int{200, 400}, tier.ThumbnailSizes)
	require.NotZero(t, tier.ID)

	_, err = svc.CreateTier(ctx, models.AccountTier{Name: "Broken", ThumbnailSizes: []int{0}})
	require.ErrorIs(t, err, ErrInvalidInput)

	require.ErrorIs(t, svc.AddSize(ctx, -1), ErrInvalidInput)
	require.NoError(t, svc.AddSize(ctx, 600))
	sizes, err := svc.ListSizes(ctx)
	require.NoError(t, err)
	require.Equal(t, []int{600}, sizes)
}

func TestSetUserStatus(t *testing.T) {
	users := newMemoryUsers(models.User{ID: "u-1", Username: "alice", Status: models.UserStatusActive})
	svc := NewProvisioningService(users, newMemoryTiers(), nil, zerolog.Nop())
	ctx := context.Background()

	require.NoError(t, svc.SetUserStatus(ctx, "alice", models.UserStatusSuspended))
	require.Equal(t, models.UserStatusSuspended, users.byName["alice"].Status)

	require.NoError(t, svc.SetUserStatus(ctx, "alice", models.UserStatusActive))
	require.Equal(t, models.UserStatusActive, users.byName["alice"].Status)

	require.ErrorIs(t, svc.SetUserStatus(ctx, "alice", models.UserStatus("banned")), ErrInvalidInput)
	require.ErrorIs(t, svc.SetUserStatus(ctx, "bob", models.UserStatusSuspended), repository.ErrUserNotFound)
}

func TestSubscribeInvalidatesCache(t *testing.T) {
	users := newMemoryUsers(models.User{ID: "u-1", Username: "alice"})
	tiers := newMemoryTiers()
	invalidator := &recordingInvalidator{}
	svc := NewProvisioningService(users, tiers, invalidator, zerolog.Nop())
	ctx := context.Background()

	basic, err := svc.CreateTier(ctx, models.AccountTier{Name: "Basic", ThumbnailSizes: []int{200}})
	require.NoError(t, err)

	require.NoError(t, svc.Subscribe(ctx, "alice", "Basic"))
	require.Equal(t, basic.ID, tiers.subscriptions["u-1"])
	require.Equal(t, []string{"u-1"}, invalidator.users)

	require.ErrorIs(t, svc.Subscribe(ctx, "alice", "Gold"), repository.ErrTierNotFound)
	require.ErrorIs(t, svc.Subscribe(ctx, "bob", "Basic"), repository.ErrUserNotFound)
}
