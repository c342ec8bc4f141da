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

// sceneRepository is the PostGIS implementation of SceneRepository.
type sceneRepository struct {
	db *database.Database
}

// NewSceneRepository creates a new instance of SceneRepository.
func NewSceneRepository(db *database.Database) SceneRepository {
	return &sceneRepository{
		db: db,
	}
}

const sceneColumns = `
	f.id, f.scene_id, f.acquisition_date, f.sensor, f.cloud_cover,
	ST_XMin(f.footprint), ST_YMin(f.footprint), ST_XMax(f.footprint), ST_YMax(f.footprint),
	f.created_at`

// Create inserts the scene. An existing scene_id leaves the stored row
// untouched and returns its id with created=false.
func (r *sceneRepository) Create(ctx context.Context, scene *models.FullScene) (int64, bool, error) {
	payload, err := raster.Encode(scene.Raster)
	if err != nil {
		return 0, false, err
	}
	fp := scene.Footprint

	var id int64
	err = r.db.Pool.QueryRow(ctx, `
		INSERT INTO ndvi_full (
			scene_id, acquisition_date, sensor, cloud_cover, footprint,
			raster_srid, raster_width, raster_height, raster
		)
		VALUES ($1, $2, $3, $4, ST_MakeEnvelope($5, $6, $7, $8, 4326), $9, $10, $11, $12)
		ON CONFLICT (scene_id) DO NOTHING
		RETURNING id
	`,
		scene.SceneID, scene.AcquisitionDate, scene.Sensor, scene.CloudCover,
		fp.Min[0], fp.Min[1], fp.Max[0], fp.Max[1],
		scene.Raster.SRID, scene.Raster.Width, scene.Raster.Height, payload,
	).Scan(&id)
	if err == nil {
		return id, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, false, fmt.Errorf("failed to insert scene %s: %w", scene.SceneID, err)
	}

	err = r.db.Pool.QueryRow(ctx, `SELECT id FROM ndvi_full WHERE scene_id = $1`, scene.SceneID).Scan(&id)
	if err != nil {
		return 0, false, fmt.Errorf("failed to read existing scene %s: %w", scene.SceneID, err)
	}
	return id, false, nil
}

// GetByID returns nil, nil if no scene has the id.
func (r *sceneRepository) GetByID(ctx context.Context, id int64) (*models.FullScene, error) {
	var scene models.FullScene
	var payload []byte

	err := r.db.Pool.QueryRow(ctx, `SELECT `+sceneColumns+`, f.raster FROM ndvi_full f WHERE f.id = $1`, id).
		Scan(sceneDest(&scene, &payload)...)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query scene %d: %w", id, err)
	}

	scene.Raster, err = raster.Decode(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to decode raster for scene %d: %w", id, err)
	}
	return &scene, nil
}

func (r *sceneRepository) List(ctx context.Context) ([]models.FullScene, error) {
	rows, err := r.db.Pool.Query(ctx, `SELECT `+sceneColumns+` FROM ndvi_full f ORDER BY f.id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list scenes: %w", err)
	}
	return collectScenes(rows)
}

func (r *sceneRepository) FindIntersectingAOI(ctx context.Context, aoiID int64) ([]models.FullScene, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT `+sceneColumns+`
		FROM ndvi_full f
		JOIN aois a ON f.footprint && a.geom AND ST_Intersects(f.footprint, a.geom)
		WHERE a.id = $1
		ORDER BY f.id
	`, aoiID)
	if err != nil {
		return nil, fmt.Errorf("failed to query scenes intersecting aoi %d: %w", aoiID, err)
	}
	return collectScenes(rows)
}

// Delete removes the scene, its clips and their visualizations in one
// transaction.
func (r *sceneRepository) Delete(ctx context.Context, id int64) (bool, error) {
	var deleted bool
	err := pgx.BeginFunc(ctx, r.db.Pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `
			DELETE FROM ndvi_viz
			WHERE clipped_id IN (SELECT id FROM ndvi_clipped WHERE full_id = $1)
		`, id); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `DELETE FROM ndvi_clipped WHERE full_id = $1`, id); err != nil {
			return err
		}
		tag, err := tx.Exec(ctx, `DELETE FROM ndvi_full WHERE id = $1`, id)
		if err != nil {
			return err
		}
		deleted = tag.RowsAffected() > 0
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("failed to delete scene %d: %w", id, err)
	}
	return deleted, nil
}

// sceneDest returns the scan targets for sceneColumns, followed by the
// raster payload when payload is non-nil.
func sceneDest(scene *models.FullScene, payload *[]byte) []any {
	dest := []any{
		&scene.ID, &scene.SceneID, &scene.AcquisitionDate, &scene.Sensor, &scene.CloudCover,
		&scene.Footprint.Min[0], &scene.Footprint.Min[1], &scene.Footprint.Max[0], &scene.Footprint.Max[1],
		&scene.CreatedAt,
	}
	if payload != nil {
		dest = append(dest, payload)
	}
	return dest
}

func collectScenes(rows pgx.Rows) ([]models.FullScene, error) {
	defer rows.Close()

	scenes := make([]models.FullScene, 0)
	for rows.Next() {
		var scene models.FullScene
		if err := rows.Scan(sceneDest(&scene, nil)...); err != nil {
			return nil, fmt.Errorf("failed to scan scene row: %w", err)
		}
		scenes = append(scenes, scene)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating scene rows: %w", err)
	}
	return scenes, nil
}

