package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/require"
	"github.com/stwalsh4118/canopy/internal/events"
	"github.com/stwalsh4118/canopy/internal/logger"
	"github.com/stwalsh4118/canopy/internal/metrics"
	"github.com/stwalsh4118/canopy/internal/models"
	"github.com/stwalsh4118/canopy/internal/raster"
	"github.com/stwalsh4118/canopy/internal/render"
	"github.com/stwalsh4118/canopy/internal/repository"
)

// recordingPublisher keeps every published event.
type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, e events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) types() []events.Type {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]events.Type, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

// pipeline wires every service onto one in-memory store.
type pipeline struct {
	mem      *repository.MemoryStore
	store    *repository.Store
	pub      *recordingPublisher
	aois     AOIService
	scenes   SceneService
	clipper  ClipEngine
	renderer Renderer
	orch     *Orchestrator
}

func newPipeline(t *testing.T, cfg OrchestratorConfig) *pipeline {
	t.Helper()

	mem := repository.NewMemoryStore()
	store := mem.Store()
	pub := &recordingPublisher{}
	inst := Instrumentation{
		Log:     logger.New("test"),
		Metrics: metrics.NewMetrics(),
		Events:  pub,
	}

	clipper := NewClipEngine(store, inst)
	renderer := NewRenderer(store, render.NewRegistry(), cfg.DefaultStyle, inst)
	return &pipeline{
		mem:      mem,
		store:    store,
		pub:      pub,
		aois:     NewAOIService(store.AOIs, inst),
		scenes:   NewSceneService(store.Scenes, inst),
		clipper:  clipper,
		renderer: renderer,
		orch:     NewOrchestrator(store, clipper, renderer, cfg, inst),
	}
}

func square(minX, minY, maxX, maxY float64) models.MultiPolygon {
	return models.NewMultiPolygon(orb.MultiPolygon{{{
		{minX, minY}, {maxX, minY}, {maxX, maxY}, {minX, maxY}, {minX, minY},
	}}})
}

// ndviRaster covers lon 0..10, lat 0..10 with 1-degree pixels, every pixel
// set to value.
func ndviRaster(value float32) *raster.Raster {
	r := raster.New(10, 10, raster.GeoTransform{0, 1, 0, 10, 0, -1}, raster.SRIDWGS84, -9999)
	for i := range r.Values {
		r.Values[i] = value
	}
	return r
}

func sceneInput(sceneID string, r *raster.Raster) models.SceneInput {
	return models.SceneInput{
		SceneID:         sceneID,
		Sensor:          "LC08",
		AcquisitionDate: time.Date(2023, 6, 15, 0, 0, 0, 0, time.UTC),
		NDVI:            r,
	}
}

func (p *pipeline) mustAOI(t *testing.T, name string, geom models.MultiPolygon) int64 {
	t.Helper()
	res, err := p.aois.Upsert(context.Background(), name, geom)
	require.NoError(t, err)
	return res.ID
}

func (p *pipeline) mustScene(t *testing.T, in models.SceneInput) int64 {
	t.Helper()
	res, err := p.scenes.Ingest(context.Background(), in)
	require.NoError(t, err)
	return res.ID
}
