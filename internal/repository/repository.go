// Package repository persists the three raster tiers and their AOIs.
//
// Every store follows the same conventions: lookups return nil, nil when the
// row does not exist; Create methods report whether this call inserted the
// row or found an existing one under the same uniqueness key; Delete
// methods remove every derivative of the deleted row atomically and report
// whether a row was deleted.
package repository

import (
	"context"

	"github.com/paulmach/orb"
	"github.com/stwalsh4118/canopy/internal/models"
)

// AOIRepository defines the interface for area-of-interest data access.
type AOIRepository interface {
	// Create inserts an AOI unless the name is taken. It returns the id of
	// the row holding the name and whether this call created it.
	Create(ctx context.Context, name string, geom models.MultiPolygon) (int64, bool, error)

	GetByID(ctx context.Context, id int64) (*models.AreaOfInterest, error)
	GetByName(ctx context.Context, name string) (*models.AreaOfInterest, error)

	// List returns all AOIs ordered by id.
	List(ctx context.Context) ([]models.AreaOfInterest, error)

	// FindIntersecting returns the AOIs whose geometry intersects b, ordered
	// by id. A bounding-box prefilter runs on the spatial index before the
	// exact test.
	FindIntersecting(ctx context.Context, b orb.Bound) ([]models.AreaOfInterest, error)

	// Delete removes the AOI with its clips and visualizations.
	Delete(ctx context.Context, id int64) (bool, error)
}

// SceneRepository defines the interface for full-scene data access.
type SceneRepository interface {
	// Create inserts the scene unless its SceneID exists, in which case the
	// stored row is left untouched and its id is returned.
	Create(ctx context.Context, scene *models.FullScene) (int64, bool, error)

	// GetByID returns the scene with its decoded raster.
	GetByID(ctx context.Context, id int64) (*models.FullScene, error)

	// List returns scene metadata ordered by id. Rasters are not loaded.
	List(ctx context.Context) ([]models.FullScene, error)

	// FindIntersectingAOI returns metadata of the scenes whose footprint
	// intersects the AOI geometry.
	FindIntersectingAOI(ctx context.Context, aoiID int64) ([]models.FullScene, error)

	// Delete removes the scene with its clips and their visualizations.
	Delete(ctx context.Context, id int64) (bool, error)
}

// ClipRepository defines the interface for clipped-raster data access.
type ClipRepository interface {
	// Create inserts the clip unless (FullID, AOIID) exists. A missing
	// parent scene or AOI yields models.ErrNotFound.
	Create(ctx context.Context, clip *models.ClippedRaster) (int64, bool, error)

	// GetByID returns the clip with its decoded raster.
	GetByID(ctx context.Context, id int64) (*models.ClippedRaster, error)

	// MaterializedAOIs returns the ids of the AOIs already clipped from the
	// scene.
	MaterializedAOIs(ctx context.Context, fullID int64) (map[int64]bool, error)

	// ListByAOI returns clip metadata for an AOI ordered by acquisition date.
	ListByAOI(ctx context.Context, aoiID int64) ([]models.ClippedRaster, error)

	// ListUnrendered returns the ids of clips without a visualization.
	ListUnrendered(ctx context.Context) ([]int64, error)
}

// VizRepository defines the interface for visualization data access.
type VizRepository interface {
	// Create inserts the visualization unless its clip already has one.
	// A missing clip yields models.ErrNotFound.
	Create(ctx context.Context, viz *models.VisualizationRaster) (int64, bool, error)

	GetByClippedID(ctx context.Context, clippedID int64) (*models.VisualizationRaster, error)
}

// Store groups the repositories backing one database.
type Store struct {
	AOIs           AOIRepository
	Scenes         SceneRepository
	Clips          ClipRepository
	Visualizations VizRepository
}
