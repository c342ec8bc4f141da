package services

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/stwalsh4118/canopy/internal/logger"
	"github.com/stwalsh4118/canopy/internal/metrics"
	"github.com/stwalsh4118/canopy/internal/models"
	"github.com/stwalsh4118/canopy/internal/repository"
	"golang.org/x/sync/errgroup"
)

// Failure records one unit that did not complete.
type Failure struct {
	Stage  string `json:"stage"`
	Key    string `json:"key"`
	Reason string `json:"reason"`
}

// RunSummary reports what a derivation pass did.
type RunSummary struct {
	StartedAt       time.Time     `json:"startedAt"`
	Failures        []Failure     `json:"failures"`
	Duration        time.Duration `json:"duration"`
	ScenesTotal     int           `json:"scenesTotal"`
	ScenesGated     int           `json:"scenesGated"`
	ClipsCreated    int           `json:"clipsCreated"`
	ClipsSkipped    int           `json:"clipsSkipped"`
	ClipFailures    int           `json:"clipFailures"`
	VizCreated      int           `json:"vizCreated"`
	VizSkipped      int           `json:"vizSkipped"`
	RenderFailures  int           `json:"renderFailures"`
	ScenesFailed    int           `json:"scenesFailed"`
	UnrenderedClips int           `json:"unrenderedClips"`
}

// Succeeded reports whether every unit completed.
func (s *RunSummary) Succeeded() bool {
	return s.ClipFailures == 0 && s.RenderFailures == 0 && s.ScenesFailed == 0
}

// summaryBuilder accumulates a RunSummary from concurrent workers.
type summaryBuilder struct {
	mu sync.Mutex
	s  RunSummary
}

func (b *summaryBuilder) update(fn func(s *RunSummary)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	fn(&b.s)
}

func (b *summaryBuilder) fail(stage, key string, err error) {
	b.update(func(s *RunSummary) {
		s.Failures = append(s.Failures, Failure{Stage: stage, Key: key, Reason: err.Error()})
	})
}

// recordClips folds clip outcomes into the summary. newClips receives the
// ids of clips created by this pass.
func (b *summaryBuilder) recordClips(outcomes []ClipOutcome, newClips *[]int64) {
	b.update(func(s *RunSummary) {
		for _, o := range outcomes {
			switch {
			case o.Err != nil && isCancellation(o.Err):
				// Interrupted; the next pass picks the pair up again.
			case o.Err != nil:
				s.ClipFailures++
				s.Failures = append(s.Failures, Failure{
					Stage:  metrics.StageClip,
					Key:    pairKey(o.Key),
					Reason: o.Err.Error(),
				})
			case o.Created:
				s.ClipsCreated++
				*newClips = append(*newClips, o.ClipID)
			default:
				s.ClipsSkipped++
			}
		}
	})
}

func pairKey(k models.PairKey) string {
	return "scene=" + strconv.FormatInt(k.FullID, 10) + " aoi=" + strconv.FormatInt(k.AOIID, 10)
}

// OrchestratorConfig controls a derivation pass.
type OrchestratorConfig struct {
	// MaxCloudCover skips scenes above this percentage when set.
	MaxCloudCover *float64
	DefaultStyle  string
	Workers       int
}

// Orchestrator drives clipping and rendering over a bounded worker pool.
// The clip unit is one scene, so its raster is decoded once for all of its
// AOIs; the render unit is one clip. A failed unit is logged and counted
// and never aborts the pass. Overlapping passes are safe: the uniqueness
// constraints turn duplicate work into no-ops.
type Orchestrator struct {
	scenes   repository.SceneRepository
	aois     repository.AOIRepository
	clips    repository.ClipRepository
	clipper  ClipEngine
	renderer Renderer
	cfg      OrchestratorConfig
	inst     Instrumentation
	log      *logger.Logger
}

// NewOrchestrator creates a new Orchestrator.
func NewOrchestrator(store *repository.Store, clipper ClipEngine, renderer Renderer, cfg OrchestratorConfig, inst Instrumentation) *Orchestrator {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	return &Orchestrator{
		scenes:   store.Scenes,
		aois:     store.AOIs,
		clips:    store.Clips,
		clipper:  clipper,
		renderer: renderer,
		cfg:      cfg,
		inst:     inst,
		log:      inst.logger("orchestrator"),
	}
}

// RunOnce clips every scene against the AOIs it is missing, then renders
// every clip that has no visualization. The error is non-nil only when the
// work lists cannot be loaded or ctx is cancelled; the summary is returned
// in the latter case too.
func (o *Orchestrator) RunOnce(ctx context.Context) (*RunSummary, error) {
	b := &summaryBuilder{s: RunSummary{StartedAt: time.Now().UTC()}}
	o.log.Info("Derivation run started", map[string]interface{}{
		"workers": o.cfg.Workers,
	})

	scenes, err := o.scenes.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list scenes: %w", err)
	}
	scenes = o.gate(b, scenes)

	var newClips []int64
	err = o.forEach(ctx, len(scenes), func(i int) {
		scene := scenes[i]
		res, err := o.clipper.ClipScene(ctx, scene.ID)
		if err != nil && !isCancellation(err) {
			b.update(func(s *RunSummary) { s.ScenesFailed++ })
			b.fail(metrics.StageClip, "scene="+strconv.FormatInt(scene.ID, 10), err)
			o.log.Error("Scene clipping failed", err, map[string]interface{}{
				"full_id":  scene.ID,
				"scene_id": scene.SceneID,
			})
		}
		if res != nil {
			b.recordClips(res.Outcomes, &newClips)
			b.update(func(s *RunSummary) { s.ClipsSkipped += res.AlreadyPresent })
		}
	})
	if err != nil {
		return o.finish(b, err), err
	}

	unrendered, err := o.clips.ListUnrendered(ctx)
	if err != nil {
		return o.finish(b, err), fmt.Errorf("failed to list unrendered clips: %w", err)
	}
	b.update(func(s *RunSummary) { s.UnrenderedClips = len(unrendered) })

	err = o.renderAll(ctx, b, unrendered)
	return o.finish(b, err), err
}

// DeriveScene clips one scene against every AOI and renders the new clips.
// It is called right after ingestion.
func (o *Orchestrator) DeriveScene(ctx context.Context, fullID int64) (*RunSummary, error) {
	b := &summaryBuilder{s: RunSummary{StartedAt: time.Now().UTC(), ScenesTotal: 1}}

	res, err := o.clipper.ClipScene(ctx, fullID)
	if err != nil {
		return nil, err
	}

	var newClips []int64
	b.recordClips(res.Outcomes, &newClips)
	b.update(func(s *RunSummary) { s.ClipsSkipped += res.AlreadyPresent })

	err = o.renderAll(ctx, b, newClips)
	return o.finish(b, err), err
}

// DeriveAOI clips every intersecting scene against one AOI and renders the
// new clips. It is called right after an AOI is created.
func (o *Orchestrator) DeriveAOI(ctx context.Context, aoiID int64) (*RunSummary, error) {
	b := &summaryBuilder{s: RunSummary{StartedAt: time.Now().UTC()}}

	aoi, err := o.aois.GetByID(ctx, aoiID)
	if err != nil {
		return nil, fmt.Errorf("failed to query aoi %d: %w", aoiID, err)
	}
	if aoi == nil {
		return nil, fmt.Errorf("%w: aoi %d", models.ErrNotFound, aoiID)
	}

	scenes, err := o.scenes.FindIntersectingAOI(ctx, aoiID)
	if err != nil {
		return nil, fmt.Errorf("failed to find scenes intersecting aoi %d: %w", aoiID, err)
	}
	scenes = o.gate(b, scenes)

	var newClips []int64
	err = o.forEach(ctx, len(scenes), func(i int) {
		scene := scenes[i]
		key := models.PairKey{FullID: scene.ID, AOIID: aoiID}

		done, err := o.clips.MaterializedAOIs(ctx, scene.ID)
		if err != nil {
			b.recordClips([]ClipOutcome{{Key: key, Err: err}}, &newClips)
			return
		}
		if done[aoiID] {
			b.update(func(s *RunSummary) { s.ClipsSkipped++ })
			return
		}

		outcome, err := o.clipper.ClipPair(ctx, scene.ID, aoiID)
		if err != nil {
			b.recordClips([]ClipOutcome{{Key: key, Err: err}}, &newClips)
			return
		}
		b.recordClips([]ClipOutcome{*outcome}, &newClips)
	})
	if err != nil {
		return o.finish(b, err), err
	}

	err = o.renderAll(ctx, b, newClips)
	return o.finish(b, err), err
}

// Run executes RunOnce every interval until ctx is cancelled. With
// runOnStart the first pass starts immediately. A zero interval runs at
// most the initial pass.
func (o *Orchestrator) Run(ctx context.Context, interval time.Duration, runOnStart bool) {
	runPass := func() {
		if _, err := o.RunOnce(ctx); err != nil && ctx.Err() == nil {
			o.log.Error("Derivation run failed", err, nil)
		}
	}

	if runOnStart {
		runPass()
	}
	if interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			o.log.Info("Derivation scheduler stopped", nil)
			return
		case <-ticker.C:
			runPass()
		}
	}
}

// gate drops scenes above the cloud-cover limit.
func (o *Orchestrator) gate(b *summaryBuilder, scenes []models.FullScene) []models.FullScene {
	limit := o.cfg.MaxCloudCover
	kept := scenes[:0:0]
	for _, scene := range scenes {
		if limit != nil && scene.CloudCover != nil && *scene.CloudCover > *limit {
			o.log.Debug("Skipping cloudy scene", map[string]interface{}{
				"full_id":     scene.ID,
				"scene_id":    scene.SceneID,
				"cloud_cover": *scene.CloudCover,
			})
			b.update(func(s *RunSummary) { s.ScenesGated++ })
			continue
		}
		kept = append(kept, scene)
	}
	b.update(func(s *RunSummary) { s.ScenesTotal += len(scenes) })
	return kept
}

func (o *Orchestrator) renderAll(ctx context.Context, b *summaryBuilder, clipIDs []int64) error {
	return o.forEach(ctx, len(clipIDs), func(i int) {
		id := clipIDs[i]
		res, err := o.renderer.Render(ctx, id, o.cfg.DefaultStyle)
		switch {
		case err != nil && isCancellation(err):
		case err != nil:
			b.update(func(s *RunSummary) { s.RenderFailures++ })
			b.fail(metrics.StageRender, "clip="+strconv.FormatInt(id, 10), err)
		case res.Created:
			b.update(func(s *RunSummary) { s.VizCreated++ })
		default:
			b.update(func(s *RunSummary) { s.VizSkipped++ })
		}
	})
}

// forEach runs fn for 0..n-1 on at most cfg.Workers goroutines. Work stops
// being scheduled once ctx is cancelled.
func (o *Orchestrator) forEach(ctx context.Context, n int, fn func(i int)) error {
	var g errgroup.Group
	g.SetLimit(o.cfg.Workers)

	for i := 0; i < n; i++ {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			fn(i)
			return nil
		})
	}
	_ = g.Wait()
	return ctx.Err()
}

// finish stamps the duration, logs the summary and records run metrics.
func (o *Orchestrator) finish(b *summaryBuilder, runErr error) *RunSummary {
	b.mu.Lock()
	summary := b.s
	b.mu.Unlock()
	summary.Duration = time.Since(summary.StartedAt)

	status := metrics.StatusSucceeded
	switch {
	case isCancellation(runErr):
		status = metrics.StatusCanceled
	case runErr != nil || !summary.Succeeded():
		status = metrics.StatusFailed
	}
	o.inst.Metrics.ObserveRun(status, summary.Duration.Seconds())

	fields := map[string]interface{}{
		"scenes_total":    summary.ScenesTotal,
		"scenes_gated":    summary.ScenesGated,
		"scenes_failed":   summary.ScenesFailed,
		"clips_created":   summary.ClipsCreated,
		"clips_skipped":   summary.ClipsSkipped,
		"clip_failures":   summary.ClipFailures,
		"viz_created":     summary.VizCreated,
		"viz_skipped":     summary.VizSkipped,
		"render_failures": summary.RenderFailures,
		"duration_ms":     summary.Duration.Milliseconds(),
	}
	switch {
	case isCancellation(runErr):
		o.log.Warn("Derivation run cancelled", fields)
	case summary.Succeeded():
		o.log.Info("Derivation run complete", fields)
	default:
		o.log.Warn("Derivation run complete with failures", fields)
		for _, f := range summary.Failures {
			o.log.Warn("Derivation failure", map[string]interface{}{
				"stage":  f.Stage,
				"key":    f.Key,
				"reason": f.Reason,
			})
		}
	}

	return &summary
}
