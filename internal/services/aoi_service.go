package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/stwalsh4118/canopy/internal/events"
	"github.com/stwalsh4118/canopy/internal/logger"
	"github.com/stwalsh4118/canopy/internal/models"
	"github.com/stwalsh4118/canopy/internal/repository"
)

// MaxAOINameLength bounds AOI names.
const MaxAOINameLength = 255

// AOIService defines the interface for area-of-interest operations.
type AOIService interface {
	// Upsert stores an AOI. Repeating a call with the same name and an equal
	// geometry returns the existing id. Reusing a name with a different
	// geometry fails with ErrDuplicateNameConflict. Invalid geometry fails
	// with ErrInvalidGeometry before anything is written.
	Upsert(ctx context.Context, name string, geom models.MultiPolygon) (*models.UpsertResult, error)

	// Get returns ErrNotFound if the AOI does not exist.
	Get(ctx context.Context, id int64) (*models.AreaOfInterest, error)

	List(ctx context.Context) ([]models.AreaOfInterest, error)

	// Delete removes the AOI with all of its clips and visualizations.
	// Returns ErrNotFound if the AOI does not exist.
	Delete(ctx context.Context, id int64) error
}

// aoiService is the concrete implementation of AOIService.
type aoiService struct {
	repo repository.AOIRepository
	inst Instrumentation
	log  *logger.Logger
}

// NewAOIService creates a new instance of AOIService.
func NewAOIService(repo repository.AOIRepository, inst Instrumentation) AOIService {
	return &aoiService{
		repo: repo,
		inst: inst,
		log:  inst.logger("aoi_store"),
	}
}

func (s *aoiService) Upsert(ctx context.Context, name string, geom models.MultiPolygon) (*models.UpsertResult, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: aoi name is required", models.ErrInvalidInput)
	}
	if len(name) > MaxAOINameLength {
		return nil, fmt.Errorf("%w: aoi name exceeds %d characters", models.ErrInvalidInput, MaxAOINameLength)
	}

	if err := geom.Validate(); err != nil {
		s.log.Warn("Rejected invalid AOI geometry", map[string]interface{}{
			"name":  name,
			"error": err.Error(),
		})
		return nil, fmt.Errorf("aoi %q: %w", name, err)
	}
	geom = models.NewMultiPolygon(geom.Coordinates)

	id, created, err := s.repo.Create(ctx, name, geom)
	if err != nil {
		s.log.Error("Failed to store AOI", err, map[string]interface{}{
			"name": name,
		})
		return nil, fmt.Errorf("failed to store aoi %q: %w", name, err)
	}

	if created {
		s.log.Info("AOI created", map[string]interface{}{
			"aoi_id": id,
			"name":   name,
		})
		e := events.New(events.AOICreated)
		e.AOIID = id
		s.inst.publish(ctx, s.log, e)
		return &models.UpsertResult{ID: id, Created: true}, nil
	}

	existing, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load existing aoi %q: %w", name, err)
	}
	if existing == nil {
		// Deleted between the insert attempt and the read.
		return nil, fmt.Errorf("%w: aoi %q was deleted concurrently", models.ErrNotFound, name)
	}
	if !existing.Geom.Equal(geom) {
		s.log.Warn("AOI name already used with a different geometry", map[string]interface{}{
			"aoi_id": id,
			"name":   name,
		})
		return nil, fmt.Errorf("%w: %q", models.ErrDuplicateNameConflict, name)
	}

	s.log.Debug("AOI already exists with identical geometry", map[string]interface{}{
		"aoi_id": id,
		"name":   name,
	})
	return &models.UpsertResult{ID: id, Created: false}, nil
}

func (s *aoiService) Get(ctx context.Context, id int64) (*models.AreaOfInterest, error) {
	aoi, err := s.repo.GetByID(ctx, id)
	if err != nil {
		s.log.Error("Failed to query AOI", err, map[string]interface{}{
			"aoi_id": id,
		})
		return nil, fmt.Errorf("failed to query aoi %d: %w", id, err)
	}
	if aoi == nil {
		return nil, fmt.Errorf("%w: aoi %d", models.ErrNotFound, id)
	}
	return aoi, nil
}

func (s *aoiService) List(ctx context.Context) ([]models.AreaOfInterest, error) {
	aois, err := s.repo.List(ctx)
	if err != nil {
		s.log.Error("Failed to list AOIs", err, nil)
		return nil, fmt.Errorf("failed to list aois: %w", err)
	}
	return aois, nil
}

func (s *aoiService) Delete(ctx context.Context, id int64) error {
	deleted, err := s.repo.Delete(ctx, id)
	if err != nil {
		s.log.Error("Failed to delete AOI", err, map[string]interface{}{
			"aoi_id": id,
		})
		return fmt.Errorf("failed to delete aoi %d: %w", id, err)
	}
	if !deleted {
		return fmt.Errorf("%w: aoi %d", models.ErrNotFound, id)
	}

	s.log.Info("AOI deleted with its derivatives", map[string]interface{}{
		"aoi_id": id,
	})
	e := events.New(events.AOIDeleted)
	e.AOIID = id
	s.inst.publish(ctx, s.log, e)
	return nil
}
