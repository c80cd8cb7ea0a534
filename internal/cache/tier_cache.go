package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"imagevault/internal/models"
)

// TierLookup is satisfied by repository.TierRepository.
type TierLookup interface {
	Lookup(ctx context.Context, userID string) (*models.AccountTier, error)
}

type cachedTier struct {
	Subscribed bool                `json:"subscribed"`
	Tier       *models.AccountTier `json:"tier,omitempty"`
}

// CachedDirectory keeps subscription lookups in redis for a short TTL. Redis
// failures fall through to the backing lookup.
type CachedDirectory struct {
	next   TierLookup
	client *redis.Client
	ttl    time.Duration
	log    zerolog.Logger
}

func NewCachedDirectory(next TierLookup, client *redis.Client, ttl time.Duration, log zerolog.Logger) *CachedDirectory {
	return &CachedDirectory{next: next, client: client, ttl: ttl, log: log}
}

func (d *CachedDirectory) Lookup(ctx context.Context, userID string) (*models.AccountTier, error) {
	if d.client == nil || d.ttl <= 0 {
		return d.next.Lookup(ctx, userID)
	}

	key := tierKey(userID)
	raw, err := d.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var entry cachedTier
		if jsonErr := json.Unmarshal(raw, &entry); jsonErr == nil {
			if !entry.Subscribed {
				return nil, nil
			}
			return entry.Tier, nil
		}
	case !errors.Is(err, redis.Nil):
		d.log.Warn().Err(err).Str("user_id", userID).Msg("tier cache read failed")
	}

	tier, err := d.next.Lookup(ctx, userID)
	if err != nil {
		return nil, err
	}

	payload, _ := json.Marshal(cachedTier{Subscribed: tier != nil, Tier: tier})
	if err := d.client.Set(ctx, key, payload, d.ttl).Err(); err != nil {
		d.log.Warn().Err(err).Str("user_id", userID).Msg("tier cache write failed")
	}
	return tier, nil
}

// Invalidate drops the cached entry so a new subscription is visible at once.
func (d *CachedDirectory) Invalidate(ctx context.Context, userID string) error {
	if d.client == nil {
		return nil
	}
	return d.client.Del(ctx, tierKey(userID)).Err()
}

func tierKey(userID string) string {
	return "tier:user:" + userID
}
