package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/stwalsh4118/canopy/internal/database"
	"github.com/stwalsh4118/canopy/internal/models"
	"github.com/stwalsh4118/canopy/internal/raster"
)

// clipRepository is the PostgreSQL implementation of ClipRepository.
type clipRepository struct {
	db *database.Database
}

// NewClipRepository creates a new instance of ClipRepository.
func NewClipRepository(db *database.Database) ClipRepository {
	return &clipRepository{
		db: db,
	}
}

const clipColumns = `id, full_id, aoi_id, acquisition_date, mean_ndvi, created_at`

// Create inserts the clip. UNIQUE (full_id, aoi_id) arbitrates concurrent
// derivations of the same pair; the loser's raster is discarded.
func (r *clipRepository) Create(ctx context.Context, clip *models.ClippedRaster) (int64, bool, error) {
	payload, err := raster.Encode(clip.Raster)
	if err != nil {
		return 0, false, err
	}

	var id int64
	err = r.db.Pool.QueryRow(ctx, `
		INSERT INTO ndvi_clipped (full_id, aoi_id, acquisition_date, mean_ndvi, raster)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (full_id, aoi_id) DO NOTHING
		RETURNING id
	`, clip.FullID, clip.AOIID, clip.AcquisitionDate, clip.MeanNDVI, payload).Scan(&id)
	if err == nil {
		return id, true, nil
	}
	if isForeignKeyViolation(err) {
		return 0, false, fmt.Errorf("%w: scene %d or aoi %d", models.ErrNotFound, clip.FullID, clip.AOIID)
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, false, fmt.Errorf("failed to insert clip (full=%d, aoi=%d): %w", clip.FullID, clip.AOIID, err)
	}

	err = r.db.Pool.QueryRow(ctx,
		`SELECT id FROM ndvi_clipped WHERE full_id = $1 AND aoi_id = $2`, clip.FullID, clip.AOIID,
	).Scan(&id)
	if err != nil {
		return 0, false, fmt.Errorf("failed to read existing clip (full=%d, aoi=%d): %w", clip.FullID, clip.AOIID, err)
	}
	return id, false, nil
}

// GetByID returns nil, nil if no clip has the id.
func (r *clipRepository) GetByID(ctx context.Context, id int64) (*models.ClippedRaster, error) {
	var clip models.ClippedRaster
	var payload []byte

	err := r.db.Pool.QueryRow(ctx, `SELECT `+clipColumns+`, raster FROM ndvi_clipped WHERE id = $1`, id).Scan(
		&clip.ID, &clip.FullID, &clip.AOIID, &clip.AcquisitionDate, &clip.MeanNDVI, &clip.CreatedAt, &payload,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query clip %d: %w", id, err)
	}

	clip.Raster, err = raster.Decode(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to decode raster for clip %d: %w", id, err)
	}
	return &clip, nil
}

func (r *clipRepository) MaterializedAOIs(ctx context.Context, fullID int64) (map[int64]bool, error) {
	rows, err := r.db.Pool.Query(ctx, `SELECT aoi_id FROM ndvi_clipped WHERE full_id = $1`, fullID)
	if err != nil {
		return nil, fmt.Errorf("failed to query clips of scene %d: %w", fullID, err)
	}

	ids, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return nil, fmt.Errorf("failed to scan clips of scene %d: %w", fullID, err)
	}

	done := make(map[int64]bool, len(ids))
	for _, id := range ids {
		done[id] = true
	}
	return done, nil
}

func (r *clipRepository) ListByAOI(ctx context.Context, aoiID int64) ([]models.ClippedRaster, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT `+clipColumns+`
		FROM ndvi_clipped
		WHERE aoi_id = $1
		ORDER BY acquisition_date, id
	`, aoiID)
	if err != nil {
		return nil, fmt.Errorf("failed to list clips of aoi %d: %w", aoiID, err)
	}
	defer rows.Close()

	clips := make([]models.ClippedRaster, 0)
	for rows.Next() {
		var clip models.ClippedRaster
		if err := rows.Scan(
			&clip.ID, &clip.FullID, &clip.AOIID, &clip.AcquisitionDate, &clip.MeanNDVI, &clip.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan clip row: %w", err)
		}
		clips = append(clips, clip)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating clip rows: %w", err)
	}
	return clips, nil
}

func (r *clipRepository) ListUnrendered(ctx context.Context) ([]int64, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT c.id
		FROM ndvi_clipped c
		LEFT JOIN ndvi_viz v ON v.clipped_id = c.id
		WHERE v.id IS NULL
		ORDER BY c.id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query unrendered clips: %w", err)
	}

	ids, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return nil, fmt.Errorf("failed to scan unrendered clips: %w", err)
	}
	return ids, nil
}
