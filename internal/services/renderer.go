package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/stwalsh4118/canopy/internal/events"
	"github.com/stwalsh4118/canopy/internal/logger"
	"github.com/stwalsh4118/canopy/internal/metrics"
	"github.com/stwalsh4118/canopy/internal/models"
	"github.com/stwalsh4118/canopy/internal/render"
	"github.com/stwalsh4118/canopy/internal/repository"
)

// Renderer produces styled visualizations of clipped rasters.
type Renderer interface {
	// Render creates the visualization of a clip. A clip keeps a single
	// visualization: when one exists its id is returned with Created=false,
	// whatever style was requested. An empty style selects the default.
	Render(ctx context.Context, clippedID int64, style string) (*models.UpsertResult, error)

	// Get returns the stored visualization of a clip, or ErrNotFound.
	Get(ctx context.Context, clippedID int64) (*models.VisualizationRaster, error)

	// Styles lists the available style profiles.
	Styles() []string
}

// renderer is the concrete implementation of Renderer.
type renderer struct {
	clips        repository.ClipRepository
	vizs         repository.VizRepository
	styles       *render.Registry
	defaultStyle string
	inst         Instrumentation
	log          *logger.Logger
}

// NewRenderer creates a new instance of Renderer.
func NewRenderer(store *repository.Store, styles *render.Registry, defaultStyle string, inst Instrumentation) Renderer {
	if defaultStyle == "" {
		defaultStyle = render.DefaultStyle
	}
	return &renderer{
		clips:        store.Clips,
		vizs:         store.Visualizations,
		styles:       styles,
		defaultStyle: defaultStyle,
		inst:         inst,
		log:          inst.logger("renderer"),
	}
}

func (r *renderer) Render(ctx context.Context, clippedID int64, style string) (*models.UpsertResult, error) {
	start := time.Now()
	if style == "" {
		style = r.defaultStyle
	}
	fields := map[string]interface{}{
		"clipped_id": clippedID,
		"style":      style,
	}

	existing, err := r.vizs.GetByClippedID(ctx, clippedID)
	if err != nil {
		return nil, fmt.Errorf("failed to query visualization of clip %d: %w", clippedID, err)
	}
	if existing != nil {
		if existing.Style != style {
			fields["existing_style"] = existing.Style
			r.log.Warn("Clip already rendered with another style; keeping the existing visualization", fields)
		}
		r.inst.Metrics.ObserveUnit(metrics.StageRender, metrics.StatusSkipped, time.Since(start).Seconds())
		return &models.UpsertResult{ID: existing.ID, Created: false}, nil
	}

	fail := func(err error) (*models.UpsertResult, error) {
		if isCancellation(err) {
			r.log.Debug("Render cancelled", fields)
			return nil, err
		}
		if !errors.Is(err, models.ErrNotFound) {
			err = fmt.Errorf("%w: clip %d: %w", models.ErrRenderFailure, clippedID, err)
		}
		r.inst.Metrics.ObserveUnit(metrics.StageRender, metrics.StatusFailed, time.Since(start).Seconds())
		r.inst.Metrics.IncFailures(metrics.StageRender, errorType(err))
		r.log.Error("Render failed", err, fields)
		return nil, err
	}

	profile, err := r.styles.Lookup(style)
	if err != nil {
		return fail(err)
	}

	clip, err := r.clips.GetByID(ctx, clippedID)
	if err != nil {
		return fail(err)
	}
	if clip == nil {
		return fail(fmt.Errorf("%w: clip %d", models.ErrNotFound, clippedID))
	}

	image, err := render.PNG(ctx, clip.Raster, profile)
	if err != nil {
		return fail(err)
	}

	id, created, err := r.vizs.Create(ctx, &models.VisualizationRaster{
		ClippedID:       clip.ID,
		AOIID:           clip.AOIID,
		AcquisitionDate: clip.AcquisitionDate,
		Style:           profile.Name(),
		Image:           image,
	})
	if err != nil {
		return fail(err)
	}

	fields["viz_id"] = id
	if !created {
		r.inst.Metrics.IncConflicts(metrics.StageRender)
		r.inst.Metrics.ObserveUnit(metrics.StageRender, metrics.StatusSkipped, time.Since(start).Seconds())
		r.log.Debug("Visualization already created by a concurrent run", fields)
		return &models.UpsertResult{ID: id, Created: false}, nil
	}

	r.inst.Metrics.ObserveUnit(metrics.StageRender, metrics.StatusCreated, time.Since(start).Seconds())
	fields["bytes"] = len(image)
	r.log.Info("Visualization created", fields)

	ev := events.New(events.VisualizationCreated)
	ev.AOIID = clip.AOIID
	ev.FullID = clip.FullID
	ev.ClippedID = clip.ID
	ev.VizID = id
	ev.Style = profile.Name()
	r.inst.publish(ctx, r.log, ev)

	return &models.UpsertResult{ID: id, Created: true}, nil
}

func (r *renderer) Get(ctx context.Context, clippedID int64) (*models.VisualizationRaster, error) {
	viz, err := r.vizs.GetByClippedID(ctx, clippedID)
	if err != nil {
		return nil, fmt.Errorf("failed to query visualization of clip %d: %w", clippedID, err)
	}
	if viz == nil {
		return nil, fmt.Errorf("%w: visualization of clip %d", models.ErrNotFound, clippedID)
	}
	return viz, nil
}

func (r *renderer) Styles() []string {
	return r.styles.Names()
}
