package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/stwalsh4118/canopy/internal/database"
	"github.com/stwalsh4118/canopy/internal/models"
)

// vizRepository is the PostgreSQL implementation of VizRepository.
type vizRepository struct {
	db *database.Database
}

// NewVizRepository creates a new instance of VizRepository.
func NewVizRepository(db *database.Database) VizRepository {
	return &vizRepository{
		db: db,
	}
}

// Create inserts the visualization. UNIQUE (clipped_id) keeps one
// visualization per clip.
func (r *vizRepository) Create(ctx context.Context, viz *models.VisualizationRaster) (int64, bool, error) {
	var id int64
	err := r.db.Pool.QueryRow(ctx, `
		INSERT INTO ndvi_viz (clipped_id, aoi_id, acquisition_date, style, image)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (clipped_id) DO NOTHING
		RETURNING id
	`, viz.ClippedID, viz.AOIID, viz.AcquisitionDate, viz.Style, viz.Image).Scan(&id)
	if err == nil {
		return id, true, nil
	}
	if isForeignKeyViolation(err) {
		return 0, false, fmt.Errorf("%w: clip %d", models.ErrNotFound, viz.ClippedID)
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, false, fmt.Errorf("failed to insert visualization for clip %d: %w", viz.ClippedID, err)
	}

	err = r.db.Pool.QueryRow(ctx, `SELECT id FROM ndvi_viz WHERE clipped_id = $1`, viz.ClippedID).Scan(&id)
	if err != nil {
		return 0, false, fmt.Errorf("failed to read existing visualization for clip %d: %w", viz.ClippedID, err)
	}
	return id, false, nil
}

// GetByClippedID returns nil, nil if the clip has no visualization.
func (r *vizRepository) GetByClippedID(ctx context.Context, clippedID int64) (*models.VisualizationRaster, error) {
	var viz models.VisualizationRaster
	err := r.db.Pool.QueryRow(ctx, `
		SELECT id, clipped_id, aoi_id, acquisition_date, style, image, created_at
		FROM ndvi_viz
		WHERE clipped_id = $1
	`, clippedID).Scan(
		&viz.ID, &viz.ClippedID, &viz.AOIID, &viz.AcquisitionDate, &viz.Style, &viz.Image, &viz.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query visualization for clip %d: %w", clippedID, err)
	}
	return &viz, nil
}
