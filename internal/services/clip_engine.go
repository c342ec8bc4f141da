package services

import (
	"context"
	"fmt"
	"time"

	"github.com/stwalsh4118/canopy/internal/events"
	"github.com/stwalsh4118/canopy/internal/logger"
	"github.com/stwalsh4118/canopy/internal/metrics"
	"github.com/stwalsh4118/canopy/internal/models"
	"github.com/stwalsh4118/canopy/internal/raster"
	"github.com/stwalsh4118/canopy/internal/repository"
	"github.com/stwalsh4118/canopy/internal/spatial"
)

// ClipOutcome is the result of deriving one (scene, AOI) pair.
type ClipOutcome struct {
	Err      error
	MeanNDVI *float64
	Key      models.PairKey
	ClipID   int64
	Created  bool
}

// SceneClipResult summarizes clipping one scene against every AOI.
type SceneClipResult struct {
	Outcomes   []ClipOutcome
	FullID     int64
	Candidates int
	// AlreadyPresent counts candidate AOIs that had a clip before the call.
	AlreadyPresent int
}

// ClipEngine derives clipped rasters.
type ClipEngine interface {
	// ClipScene clips the scene against every intersecting AOI that has no
	// clip yet. Per-pair failures are reported in the outcomes; the returned
	// error covers only the scene itself (missing, undecodable, cancelled).
	ClipScene(ctx context.Context, fullID int64) (*SceneClipResult, error)

	// ClipPair derives a single pair. An existing clip is returned with
	// Created=false.
	ClipPair(ctx context.Context, fullID, aoiID int64) (*ClipOutcome, error)

	// ListByAOI returns clip metadata for the AOI ordered by acquisition
	// date, or ErrNotFound if the AOI does not exist.
	ListByAOI(ctx context.Context, aoiID int64) ([]models.ClippedRaster, error)
}

// clipEngine is the concrete implementation of ClipEngine.
type clipEngine struct {
	aois   repository.AOIRepository
	scenes repository.SceneRepository
	clips  repository.ClipRepository
	inst   Instrumentation
	log    *logger.Logger
}

// NewClipEngine creates a new instance of ClipEngine.
func NewClipEngine(store *repository.Store, inst Instrumentation) ClipEngine {
	return &clipEngine{
		aois:   store.AOIs,
		scenes: store.Scenes,
		clips:  store.Clips,
		inst:   inst,
		log:    inst.logger("clip_engine"),
	}
}

func (e *clipEngine) ClipScene(ctx context.Context, fullID int64) (*SceneClipResult, error) {
	scene, err := e.loadScene(ctx, fullID)
	if err != nil {
		return nil, err
	}

	candidates, err := e.aois.FindIntersecting(ctx, scene.Footprint)
	if err != nil {
		return nil, fmt.Errorf("failed to find aois intersecting scene %s: %w", scene.SceneID, err)
	}
	done, err := e.clips.MaterializedAOIs(ctx, fullID)
	if err != nil {
		return nil, fmt.Errorf("failed to load clips of scene %s: %w", scene.SceneID, err)
	}

	result := &SceneClipResult{
		FullID:     fullID,
		Candidates: len(candidates),
	}
	for _, aoi := range candidates {
		if done[aoi.ID] {
			result.AlreadyPresent++
			continue
		}
		if err := ctx.Err(); err != nil {
			return result, err
		}
		outcome := e.clipOne(ctx, scene, &aoi)
		result.Outcomes = append(result.Outcomes, outcome)
	}

	e.log.Debug("Scene clipped", map[string]interface{}{
		"full_id":         fullID,
		"scene_id":        scene.SceneID,
		"candidates":      result.Candidates,
		"already_present": result.AlreadyPresent,
		"attempted":       len(result.Outcomes),
	})
	return result, nil
}

func (e *clipEngine) ClipPair(ctx context.Context, fullID, aoiID int64) (*ClipOutcome, error) {
	scene, err := e.loadScene(ctx, fullID)
	if err != nil {
		return nil, err
	}

	aoi, err := e.aois.GetByID(ctx, aoiID)
	if err != nil {
		return nil, fmt.Errorf("failed to query aoi %d: %w", aoiID, err)
	}
	if aoi == nil {
		return nil, fmt.Errorf("%w: aoi %d", models.ErrNotFound, aoiID)
	}

	if !spatial.IntersectsBound(aoi.Geom.Coordinates, scene.Footprint) {
		return nil, fmt.Errorf("%w: aoi %q does not intersect scene %s: %w",
			models.ErrClipFailure, aoi.Name, scene.SceneID, raster.ErrNoOverlap)
	}

	outcome := e.clipOne(ctx, scene, aoi)
	if outcome.Err != nil {
		return nil, outcome.Err
	}
	return &outcome, nil
}

func (e *clipEngine) ListByAOI(ctx context.Context, aoiID int64) ([]models.ClippedRaster, error) {
	aoi, err := e.aois.GetByID(ctx, aoiID)
	if err != nil {
		return nil, fmt.Errorf("failed to query aoi %d: %w", aoiID, err)
	}
	if aoi == nil {
		return nil, fmt.Errorf("%w: aoi %d", models.ErrNotFound, aoiID)
	}

	clips, err := e.clips.ListByAOI(ctx, aoiID)
	if err != nil {
		return nil, fmt.Errorf("failed to list clips of aoi %d: %w", aoiID, err)
	}
	return clips, nil
}

func (e *clipEngine) loadScene(ctx context.Context, fullID int64) (*models.FullScene, error) {
	scene, err := e.scenes.GetByID(ctx, fullID)
	if err != nil {
		return nil, fmt.Errorf("failed to load scene %d: %w", fullID, err)
	}
	if scene == nil {
		return nil, fmt.Errorf("%w: scene %d", models.ErrNotFound, fullID)
	}
	return scene, nil
}

// clipOne masks the scene to the AOI and inserts the clip. A concurrent
// derivation of the same pair makes the insert a no-op; the outcome then
// carries the winner's id with Created=false.
func (e *clipEngine) clipOne(ctx context.Context, scene *models.FullScene, aoi *models.AreaOfInterest) ClipOutcome {
	start := time.Now()
	key := models.PairKey{FullID: scene.ID, AOIID: aoi.ID}
	fields := map[string]interface{}{
		"full_id":  scene.ID,
		"scene_id": scene.SceneID,
		"aoi_id":   aoi.ID,
		"aoi_name": aoi.Name,
	}

	fail := func(err error) ClipOutcome {
		if isCancellation(err) {
			e.log.Debug("Clip cancelled", fields)
			return ClipOutcome{Key: key, Err: err}
		}
		err = fmt.Errorf("%w: scene %s, aoi %q: %w", models.ErrClipFailure, scene.SceneID, aoi.Name, err)
		e.inst.Metrics.ObserveUnit(metrics.StageClip, metrics.StatusFailed, time.Since(start).Seconds())
		e.inst.Metrics.IncFailures(metrics.StageClip, errorType(err))
		e.log.Error("Clip failed", err, fields)
		return ClipOutcome{Key: key, Err: err}
	}

	res, err := raster.Clip(ctx, scene.Raster, aoi.Geom.Coordinates)
	if err != nil {
		return fail(err)
	}

	id, created, err := e.clips.Create(ctx, &models.ClippedRaster{
		FullID:          scene.ID,
		AOIID:           aoi.ID,
		AcquisitionDate: scene.AcquisitionDate,
		MeanNDVI:        res.Mean,
		Raster:          res.Raster,
	})
	if err != nil {
		return fail(err)
	}

	fields["clipped_id"] = id
	fields["valid_pixels"] = res.ValidPixels
	if res.Mean != nil {
		fields["mean_ndvi"] = *res.Mean
	}

	if !created {
		e.inst.Metrics.IncConflicts(metrics.StageClip)
		e.inst.Metrics.ObserveUnit(metrics.StageClip, metrics.StatusSkipped, time.Since(start).Seconds())
		e.log.Debug("Clip already materialized by a concurrent run", fields)
		return ClipOutcome{Key: key, ClipID: id, Created: false, MeanNDVI: res.Mean}
	}

	e.inst.Metrics.ObserveUnit(metrics.StageClip, metrics.StatusCreated, time.Since(start).Seconds())
	e.log.Info("Clip created", fields)

	ev := events.New(events.ClipCreated)
	ev.FullID = scene.ID
	ev.AOIID = aoi.ID
	ev.ClippedID = id
	ev.MeanNDVI = res.Mean
	e.inst.publish(ctx, e.log, ev)

	return ClipOutcome{Key: key, ClipID: id, Created: true, MeanNDVI: res.Mean}
}
