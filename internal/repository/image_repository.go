package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"imagevault/internal/models"
)

var ErrImageNotFound = errors.New("image not found")

const imageColumns = `
	id, user_id, name, description, storage_path, uri,
	COALESCE(temp_id, ''), COALESCE(temp_uri, ''), expiry_seconds,
	format, width, height, size_bytes, created_at
`

type ImageRepository struct {
	pool *pgxpool.Pool
}

func NewImageRepository(pool *pgxpool.Pool) *ImageRepository {
	return &ImageRepository{pool: pool}
}

func (r *ImageRepository) Create(ctx context.Context, image models.Image) error {
	const query = `
		INSERT INTO images (
			id, user_id, name, description, storage_path, uri,
			temp_id, temp_uri, expiry_seconds, format, width, height, size_bytes, created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			NULLIF($7, ''), NULLIF($8, ''), $9, $10, $11, $12, $13, $14
		)
	`

	_, err := r.pool.Exec(ctx, query,
		image.ID,
		image.UserID,
		image.Name,
		image.Description,
		image.StoragePath,
		image.URI,
		image.TempID,
		image.TempURI,
		image.ExpirySeconds,
		image.Format,
		image.Width,
		image.Height,
		image.SizeBytes,
		image.CreatedAt,
	)
	return err
}

// GetByIDForOwner returns ErrImageNotFound both when the image is missing and
// when it belongs to someone else.
func (r *ImageRepository) GetByIDForOwner(ctx context.Context, id, ownerID string) (models.Image, error) {
	query := `SELECT ` + imageColumns + ` FROM images WHERE id = $1 AND user_id = $2`
	return scanImage(r.pool.QueryRow(ctx, query, id, ownerID))
}

func (r *ImageRepository) GetByID(ctx context.Context, id string) (models.Image, error) {
	query := `SELECT ` + imageColumns + ` FROM images WHERE id = $1`
	return scanImage(r.pool.QueryRow(ctx, query, id))
}

func (r *ImageRepository) GetByTempID(ctx context.Context, tempID, ownerID string) (models.Image, error) {
	query := `SELECT ` + imageColumns + ` FROM images WHERE temp_id = $1 AND user_id = $2`
	return scanImage(r.pool.QueryRow(ctx, query, tempID, ownerID))
}

func (r *ImageRepository) TempIDExists(ctx context.Context, tempID string) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM images WHERE temp_id = $1)`
	var exists bool
	if err := r.pool.QueryRow(ctx, query, tempID).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

func (r *ImageRepository) ListByUser(ctx context.Context, userID string, limit, offset int) ([]models.Image, error) {
	query := `SELECT ` + imageColumns + `
		FROM images
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`
	rows, err := r.pool.Query(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	return collectImages(rows)
}

func (r *ImageRepository) List(ctx context.Context, limit, offset int) ([]models.Image, error) {
	query := `SELECT ` + imageColumns + `
		FROM images
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2`
	rows, err := r.pool.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, err
	}
	return collectImages(rows)
}

// ListCreatedSince feeds the scheduled sweep that backfills thumbnails.
func (r *ImageRepository) ListCreatedSince(ctx context.Context, since time.Time, limit int) ([]models.Image, error) {
	query := `SELECT ` + imageColumns + `
		FROM images
		WHERE created_at >= $1
		ORDER BY created_at ASC
		LIMIT $2`
	rows, err := r.pool.Query(ctx, query, since, limit)
	if err != nil {
		return nil, err
	}
	return collectImages(rows)
}

func collectImages(rows pgx.Rows) ([]models.Image, error) {
	defer rows.Close()

	var images []models.Image
	for rows.Next() {
		image, err := scanImage(rows)
		if err != nil {
			return nil, err
		}
		images = append(images, image)
	}
	return images, rows.Err()
}

func scanImage(row pgx.Row) (models.Image, error) {
	var image models.Image
	if err := row.Scan(
		&image.ID,
		&image.UserID,
		&image.Name,
		&image.Description,
		&image.StoragePath,
		&image.URI,
		&image.TempID,
		&image.TempURI,
		&image.ExpirySeconds,
		&image.Format,
		&image.Width,
		&image.Height,
		&image.SizeBytes,
		&image.CreatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Image{}, ErrImageNotFound
		}
		return models.Image{}, err
	}
	return image, nil
}
