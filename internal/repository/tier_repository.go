package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"imagevault/internal/models"
)

var ErrTierNotFound = errors.New("tier not found")

type TierRepository struct {
	pool *pgxpool.Pool
}

func NewTierRepository(pool *pgxpool.Pool) *TierRepository {
	return &TierRepository{pool: pool}
}

// Lookup returns the tier the user is subscribed to, or nil when the user has
// no subscription.
func (r *TierRepository) Lookup(ctx context.Context, userID string) (*models.AccountTier, error) {
	const query = `
		SELECT t.id, t.name, t.allows_original, t.allows_expiring_links,
		       COALESCE(array_agg(ts.height ORDER BY ts.height) FILTER (WHERE ts.height IS NOT NULL), '{}')
		FROM subscriptions s
		JOIN tiers t ON t.id = s.tier_id
		LEFT JOIN tier_sizes ts ON ts.tier_id = t.id
		WHERE s.user_id = $1
		GROUP BY t.id
	`

	tier, err := scanTier(r.pool.QueryRow(ctx, query, userID))
	if errors.Is(err, ErrTierNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &tier, nil
}

func (r *TierRepository) GetByName(ctx context.Context, name string) (models.AccountTier, error) {
	const query = `
		SELECT t.id, t.name, t.allows_original, t.allows_expiring_links,
		       COALESCE(array_agg(ts.height ORDER BY ts.height) FILTER (WHERE ts.height IS NOT NULL), '{}')
		FROM tiers t
		LEFT JOIN tier_sizes ts ON ts.tier_id = t.id
		WHERE t.name = $1
		GROUP BY t.id
	`
	return scanTier(r.pool.QueryRow(ctx, query, name))
}

func (r *TierRepository) List(ctx context.Context) ([]models.AccountTier, error) {
	const query = `
		SELECT t.id, t.name, t.allows_original, t.allows_expiring_links,
		       COALESCE(array_agg(ts.height ORDER BY ts.height) FILTER (WHERE ts.height IS NOT NULL), '{}')
		FROM tiers t
		LEFT JOIN tier_sizes ts ON ts.tier_id = t.id
		GROUP BY t.id
		ORDER BY t.id
	`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tiers []models.AccountTier
	for rows.Next() {
		tier, err := scanTier(rows)
		if err != nil {
			return nil, err
		}
		tiers = append(tiers, tier)
	}
	return tiers, rows.Err()
}

// CreateTier inserts the tier and links it to each of the given sizes, adding
// sizes that do not exist yet.
func (r *TierRepository) CreateTier(ctx context.Context, tier models.AccountTier) (int64, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx)

	const insertTier = `
		INSERT INTO tiers (name, allows_original, allows_expiring_links)
		VALUES ($1, $2, $3)
		RETURNING id
	`
	var id int64
	if err := tx.QueryRow(ctx, insertTier, tier.Name, tier.AllowsOriginal, tier.AllowsExpiringLinks).Scan(&id); err != nil {
		return 0, err
	}

	for _, height := range tier.ThumbnailSizes {
		if _, err := tx.Exec(ctx, `INSERT INTO thumbnail_sizes (height) VALUES ($1) ON CONFLICT DO NOTHING`, height); err != nil {
			return 0, err
		}
		if _, err := tx.Exec(ctx, `INSERT INTO tier_sizes (tier_id, height) VALUES ($1, $2) ON CONFLICT DO NOTHING`, id, height); err != nil {
			return 0, err
		}
	}

	return id, tx.Commit(ctx)
}

func (r *TierRepository) AddSize(ctx context.Context, height int) error {
	const query = `INSERT INTO thumbnail_sizes (height) VALUES ($1) ON CONFLICT DO NOTHING`
	_, err := r.pool.Exec(ctx, query, height)
	return err
}

func (r *TierRepository) ListSizes(ctx context.Context) ([]int, error) {
	rows, err := r.pool.Query(ctx, `SELECT height FROM thumbnail_sizes ORDER BY height`)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[int])
}

// Subscribe assigns the tier to the user, replacing any previous subscription.
func (r *TierRepository) Subscribe(ctx context.Context, userID string, tierID int64) error {
	const query = `
		INSERT INTO subscriptions (user_id, tier_id, created_at, updated_at)
		VALUES ($1, $2, NOW(), NOW())
		ON CONFLICT (user_id) DO UPDATE SET tier_id = EXCLUDED.tier_id, updated_at = NOW()
	`
	_, err := r.pool.Exec(ctx, query, userID, tierID)
	return err
}

func scanTier(row pgx.Row) (models.AccountTier, error) {
	var (
		tier    models.AccountTier
		heights []int32
	)
	if err := row.Scan(
		&tier.ID,
		&tier.Name,
		&tier.AllowsOriginal,
		&tier.AllowsExpiringLinks,
		&heights,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.AccountTier{}, ErrTierNotFound
		}
		return models.AccountTier{}, err
	}
	tier.ThumbnailSizes = make([]int, 0, len(heights))
	for _, h := range heights {
		tier.ThumbnailSizes = append(tier.ThumbnailSizes, int(h))
	}
	return tier, nil
}
