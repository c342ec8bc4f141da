package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/paulmach/orb"
	"github.com/stwalsh4118/canopy/internal/database"
	"github.com/stwalsh4118/canopy/internal/models"
)

// aoiRepository is the PostGIS implementation of AOIRepository.
type aoiRepository struct {
	db *database.Database
}

// NewAOIRepository creates a new instance of AOIRepository.
func NewAOIRepository(db *database.Database) AOIRepository {
	return &aoiRepository{
		db: db,
	}
}

// aoiColumns reads geometry back at full precision so a resubmitted
// geometry compares equal to the stored one.
const aoiColumns = `id, name, ST_AsGeoJSON(geom, 15), created_at`

// Create inserts the AOI. The unique index on name arbitrates concurrent
// inserts; the loser reads back the winner's id.
func (r *aoiRepository) Create(ctx context.Context, name string, geom models.MultiPolygon) (int64, bool, error) {
	geoJSON, err := geom.Value()
	if err != nil {
		return 0, false, err
	}

	var id int64
	err = r.db.Pool.QueryRow(ctx, `
		INSERT INTO aois (name, geom)
		VALUES ($1, ST_Multi(ST_SetSRID(ST_GeomFromGeoJSON($2), 4326)))
		ON CONFLICT (name) DO NOTHING
		RETURNING id
	`, name, geoJSON).Scan(&id)
	if err == nil {
		return id, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, false, fmt.Errorf("failed to insert aoi %q: %w", name, err)
	}

	err = r.db.Pool.QueryRow(ctx, `SELECT id FROM aois WHERE name = $1`, name).Scan(&id)
	if err != nil {
		return 0, false, fmt.Errorf("failed to read existing aoi %q: %w", name, err)
	}
	return id, false, nil
}

// GetByID returns nil, nil if no AOI has the id.
func (r *aoiRepository) GetByID(ctx context.Context, id int64) (*models.AreaOfInterest, error) {
	row := r.db.Pool.QueryRow(ctx, `SELECT `+aoiColumns+` FROM aois WHERE id = $1`, id)
	aoi, err := scanAOI(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query aoi %d: %w", id, err)
	}
	return aoi, nil
}

// GetByName returns nil, nil if no AOI has the name.
func (r *aoiRepository) GetByName(ctx context.Context, name string) (*models.AreaOfInterest, error) {
	row := r.db.Pool.QueryRow(ctx, `SELECT `+aoiColumns+` FROM aois WHERE name = $1`, name)
	aoi, err := scanAOI(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query aoi %q: %w", name, err)
	}
	return aoi, nil
}

func (r *aoiRepository) List(ctx context.Context) ([]models.AreaOfInterest, error) {
	rows, err := r.db.Pool.Query(ctx, `SELECT `+aoiColumns+` FROM aois ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list aois: %w", err)
	}
	return collectAOIs(rows)
}

// FindIntersecting uses the && operator so the GiST index on geom prunes
// candidates before ST_Intersects runs the exact test.
func (r *aoiRepository) FindIntersecting(ctx context.Context, b orb.Bound) ([]models.AreaOfInterest, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT `+aoiColumns+`
		FROM aois
		WHERE geom && ST_MakeEnvelope($1, $2, $3, $4, 4326)
		  AND ST_Intersects(geom, ST_MakeEnvelope($1, $2, $3, $4, 4326))
		ORDER BY id
	`, b.Min[0], b.Min[1], b.Max[0], b.Max[1])
	if err != nil {
		return nil, fmt.Errorf("failed to query aois intersecting %v: %w", b, err)
	}
	return collectAOIs(rows)
}

// Delete removes the AOI and its derivatives in one transaction. The
// foreign keys cascade as well; the explicit child deletes keep the lock
// order (viz, clipped, aoi) the same as scene deletion.
func (r *aoiRepository) Delete(ctx context.Context, id int64) (bool, error) {
	var deleted bool
	err := pgx.BeginFunc(ctx, r.db.Pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM ndvi_viz WHERE aoi_id = $1`, id); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `DELETE FROM ndvi_clipped WHERE aoi_id = $1`, id); err != nil {
			return err
		}
		tag, err := tx.Exec(ctx, `DELETE FROM aois WHERE id = $1`, id)
		if err != nil {
			return err
		}
		deleted = tag.RowsAffected() > 0
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("failed to delete aoi %d: %w", id, err)
	}
	return deleted, nil
}

func scanAOI(row pgx.Row) (*models.AreaOfInterest, error) {
	var aoi models.AreaOfInterest
	var geomJSON []byte
	if err := row.Scan(&aoi.ID, &aoi.Name, &geomJSON, &aoi.CreatedAt); err != nil {
		return nil, err
	}
	if err := aoi.Geom.Scan(geomJSON); err != nil {
		return nil, fmt.Errorf("failed to parse geometry for aoi %d: %w", aoi.ID, err)
	}
	return &aoi, nil
}

func collectAOIs(rows pgx.Rows) ([]models.AreaOfInterest, error) {
	defer rows.Close()

	aois := make([]models.AreaOfInterest, 0)
	for rows.Next() {
		aoi, err := scanAOI(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan aoi row: %w", err)
		}
		aois = append(aois, *aoi)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating aoi rows: %w", err)
	}
	return aois, nil
}
