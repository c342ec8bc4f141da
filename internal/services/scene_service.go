package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/stwalsh4118/canopy/internal/events"
	"github.com/stwalsh4118/canopy/internal/logger"
	"github.com/stwalsh4118/canopy/internal/metrics"
	"github.com/stwalsh4118/canopy/internal/models"
	"github.com/stwalsh4118/canopy/internal/raster"
	"github.com/stwalsh4118/canopy/internal/repository"
)

// SceneService defines the interface for full-scene ingestion.
type SceneService interface {
	// Ingest validates and stores a scene. A SceneID that is already stored
	// returns the existing id with Created=false and leaves the stored
	// raster and metadata unchanged.
	Ingest(ctx context.Context, in models.SceneInput) (*models.UpsertResult, error)

	// Get returns the scene with its raster, or ErrNotFound.
	Get(ctx context.Context, id int64) (*models.FullScene, error)

	// List returns scene metadata without rasters.
	List(ctx context.Context) ([]models.FullScene, error)

	// Delete removes the scene with its clips and their visualizations.
	Delete(ctx context.Context, id int64) error
}

// sceneService is the concrete implementation of SceneService.
type sceneService struct {
	repo repository.SceneRepository
	inst Instrumentation
	log  *logger.Logger
}

// NewSceneService creates a new instance of SceneService.
func NewSceneService(repo repository.SceneRepository, inst Instrumentation) SceneService {
	return &sceneService{
		repo: repo,
		inst: inst,
		log:  inst.logger("scene_ingestion"),
	}
}

func (s *sceneService) Ingest(ctx context.Context, in models.SceneInput) (*models.UpsertResult, error) {
	scene, err := s.prepare(in)
	if err != nil {
		s.log.Warn("Rejected scene", map[string]interface{}{
			"scene_id": in.SceneID,
			"error":    err.Error(),
		})
		s.inst.Metrics.IncFailures(metrics.StageIngest, errorType(err))
		return nil, err
	}

	id, created, err := s.repo.Create(ctx, scene)
	if err != nil {
		s.log.Error("Failed to store scene", err, map[string]interface{}{
			"scene_id": scene.SceneID,
		})
		s.inst.Metrics.IncFailures(metrics.StageIngest, errorType(err))
		return nil, fmt.Errorf("failed to store scene %s: %w", scene.SceneID, err)
	}

	if !created {
		s.inst.Metrics.IncConflicts(metrics.StageIngest)
		s.log.Info("Scene already ingested", map[string]interface{}{
			"full_id":  id,
			"scene_id": scene.SceneID,
		})
		return &models.UpsertResult{ID: id, Created: false}, nil
	}

	s.log.Info("Scene ingested", map[string]interface{}{
		"full_id":          id,
		"scene_id":         scene.SceneID,
		"sensor":           scene.Sensor,
		"acquisition_date": scene.AcquisitionDate.Format("2006-01-02"),
		"width":            scene.Raster.Width,
		"height":           scene.Raster.Height,
		"valid_pixels":     raster.ValidCount(scene.Raster),
	})
	e := events.New(events.SceneIngested)
	e.FullID = id
	s.inst.publish(ctx, s.log, e)

	return &models.UpsertResult{ID: id, Created: true}, nil
}

// prepare validates the input and builds the row to insert. Nothing is
// written when it fails.
func (s *sceneService) prepare(in models.SceneInput) (*models.FullScene, error) {
	sceneID := strings.TrimSpace(in.SceneID)
	if sceneID == "" {
		return nil, fmt.Errorf("%w: scene_id is required", models.ErrInvalidInput)
	}

	sensor, date := strings.TrimSpace(in.Sensor), in.AcquisitionDate
	if sensor == "" || date.IsZero() {
		parsedSensor, parsedDate, err := models.ParseLandsatSceneID(sceneID)
		if err != nil {
			return nil, fmt.Errorf("sensor and acquisition date are required: %w", err)
		}
		if sensor == "" {
			sensor = parsedSensor
		}
		if date.IsZero() {
			date = parsedDate
		}
	}

	if cc := in.CloudCover; cc != nil && (*cc < 0 || *cc > 100) {
		return nil, fmt.Errorf("%w: cloud cover %v must be between 0 and 100", models.ErrInvalidInput, *cc)
	}

	ndvi, err := sceneRaster(in)
	if err != nil {
		return nil, err
	}
	footprint, err := ndvi.Footprint()
	if err != nil {
		return nil, err
	}

	return &models.FullScene{
		SceneID:         sceneID,
		AcquisitionDate: dateOnly(date),
		Sensor:          sensor,
		CloudCover:      in.CloudCover,
		Footprint:       footprint,
		Raster:          ndvi,
	}, nil
}

// dateOnly drops the time of day; acquisition dates are stored as DATE.
func dateOnly(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// sceneRaster returns the NDVI raster given directly or derived from the
// red and near-infrared bands.
func sceneRaster(in models.SceneInput) (*raster.Raster, error) {
	hasBands := in.Red != nil || in.NIR != nil
	switch {
	case in.NDVI != nil && hasBands:
		return nil, fmt.Errorf("%w: provide either an ndvi raster or red/nir bands, not both", models.ErrInvalidInput)
	case in.NDVI != nil:
		if err := in.NDVI.Validate(); err != nil {
			return nil, err
		}
		return in.NDVI, nil
	case in.Red != nil && in.NIR != nil:
		return raster.ComputeNDVI(in.Red, in.NIR)
	case hasBands:
		return nil, fmt.Errorf("%w: both red and nir bands are required", models.ErrInvalidRaster)
	default:
		return nil, fmt.Errorf("%w: raster is required", models.ErrInvalidRaster)
	}
}

func (s *sceneService) Get(ctx context.Context, id int64) (*models.FullScene, error) {
	scene, err := s.repo.GetByID(ctx, id)
	if err != nil {
		s.log.Error("Failed to query scene", err, map[string]interface{}{
			"full_id": id,
		})
		return nil, fmt.Errorf("failed to query scene %d: %w", id, err)
	}
	if scene == nil {
		return nil, fmt.Errorf("%w: scene %d", models.ErrNotFound, id)
	}
	return scene, nil
}

func (s *sceneService) List(ctx context.Context) ([]models.FullScene, error) {
	scenes, err := s.repo.List(ctx)
	if err != nil {
		s.log.Error("Failed to list scenes", err, nil)
		return nil, fmt.Errorf("failed to list scenes: %w", err)
	}
	return scenes, nil
}

func (s *sceneService) Delete(ctx context.Context, id int64) error {
	deleted, err := s.repo.Delete(ctx, id)
	if err != nil {
		s.log.Error("Failed to delete scene", err, map[string]interface{}{
			"full_id": id,
		})
		return fmt.Errorf("failed to delete scene %d: %w", id, err)
	}
	if !deleted {
		return fmt.Errorf("%w: scene %d", models.ErrNotFound, id)
	}

	s.log.Info("Scene deleted with its derivatives", map[string]interface{}{
		"full_id": id,
	})
	e := events.New(events.SceneDeleted)
	e.FullID = id
	s.inst.publish(ctx, s.log, e)
	return nil
}
