package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stwalsh4118/canopy/internal/events"
	"github.com/stwalsh4118/canopy/internal/metrics"
	"github.com/stwalsh4118/canopy/internal/models"
)

func TestRunOnce_FarmScenario(t *testing.T) {
	p := newPipeline(t, OrchestratorConfig{Workers: 4, DefaultStyle: "default"})
	ctx := context.Background()

	farm1 := p.mustAOI(t, "farm1", square(2, 2, 4, 4))
	fullID := p.mustScene(t, sceneInput("S1", ndviRaster(0.5)))

	summary, err := p.orch.RunOnce(ctx)
	require.NoError(t, err)
	assert.True(t, summary.Succeeded())
	assert.Equal(t, 1, summary.ScenesTotal)
	assert.Equal(t, 1, summary.ClipsCreated)
	assert.Equal(t, 1, summary.VizCreated)

	clips, err := p.store.Clips.ListByAOI(ctx, farm1)
	require.NoError(t, err)
	require.Len(t, clips, 1)
	assert.Equal(t, fullID, clips[0].FullID)
	require.NotNil(t, clips[0].MeanNDVI)
	assert.InDelta(t, 0.5, *clips[0].MeanNDVI, 1e-6)

	viz, err := p.renderer.Get(ctx, clips[0].ID)
	require.NoError(t, err)
	assert.Equal(t, farm1, viz.AOIID)

	// A second pass finds nothing to do.
	again, err := p.orch.RunOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, again.ClipsCreated)
	assert.Equal(t, 1, again.ClipsSkipped)
	assert.Zero(t, again.VizCreated)
	assert.Zero(t, again.UnrenderedClips)

	_, _, clipCount, vizCount := p.mem.Counts()
	assert.Equal(t, 1, clipCount)
	assert.Equal(t, 1, vizCount)

	assert.ElementsMatch(t, []events.Type{
		events.AOICreated, events.SceneIngested, events.ClipCreated, events.VisualizationCreated,
	}, p.pub.types())
}

func TestRunOnce_AOIDeleteKeepsOtherAOIClips(t *testing.T) {
	p := newPipeline(t, OrchestratorConfig{Workers: 2, DefaultStyle: "default"})
	ctx := context.Background()

	farm1 := p.mustAOI(t, "farm1", square(2, 2, 4, 4))
	farm2 := p.mustAOI(t, "farm2", square(6, 6, 8, 8))
	p.mustScene(t, sceneInput("S1", ndviRaster(0.5)))
	p.mustScene(t, sceneInput("S2", ndviRaster(0.4)))

	summary, err := p.orch.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, summary.ClipsCreated)
	assert.Equal(t, 4, summary.VizCreated)

	require.NoError(t, p.aois.Delete(ctx, farm1))

	_, _, clips, vizs := p.mem.Counts()
	assert.Equal(t, 2, clips)
	assert.Equal(t, 2, vizs)

	remaining, err := p.store.Clips.ListByAOI(ctx, farm2)
	require.NoError(t, err)
	assert.Len(t, remaining, 2)
	gone, err := p.store.Clips.ListByAOI(ctx, farm1)
	require.NoError(t, err)
	assert.Empty(t, gone)
}

func TestRunOnce_CloudGate(t *testing.T) {
	limit := 30.0
	p := newPipeline(t, OrchestratorConfig{Workers: 1, MaxCloudCover: &limit})

	p.mustAOI(t, "farm1", square(2, 2, 4, 4))
	sunny, cloudy := 10.0, 80.0
	in := sceneInput("S1", ndviRaster(0.5))
	in.CloudCover = &sunny
	p.mustScene(t, in)
	in = sceneInput("S2", ndviRaster(0.5))
	in.CloudCover = &cloudy
	p.mustScene(t, in)

	summary, err := p.orch.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, summary.ScenesTotal)
	assert.Equal(t, 1, summary.ScenesGated)
	assert.Equal(t, 1, summary.ClipsCreated)
}

func TestDeriveAOI_ClipsExistingScenes(t *testing.T) {
	p := newPipeline(t, OrchestratorConfig{Workers: 2})
	ctx := context.Background()

	p.mustScene(t, sceneInput("S1", ndviRaster(0.5)))
	p.mustScene(t, sceneInput("S2", ndviRaster(0.6)))
	aoiID := p.mustAOI(t, "farm1", square(2, 2, 4, 4))

	summary, err := p.orch.DeriveAOI(ctx, aoiID)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.ScenesTotal)
	assert.Equal(t, 2, summary.ClipsCreated)
	assert.Equal(t, 2, summary.VizCreated)

	again, err := p.orch.DeriveAOI(ctx, aoiID)
	require.NoError(t, err)
	assert.Zero(t, again.ClipsCreated)
	assert.Equal(t, 2, again.ClipsSkipped)

	_, err = p.orch.DeriveAOI(ctx, 99)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestDeriveScene_UnknownScene(t *testing.T) {
	p := newPipeline(t, OrchestratorConfig{Workers: 1})

	_, err := p.orch.DeriveScene(context.Background(), 99)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

// flakyClipper fails whole scenes listed in fail.
type flakyClipper struct {
	ClipEngine
	fail map[int64]bool
}

func (c flakyClipper) ClipScene(ctx context.Context, fullID int64) (*SceneClipResult, error) {
	if c.fail[fullID] {
		return nil, errors.New("payload corrupt")
	}
	return c.ClipEngine.ClipScene(ctx, fullID)
}

// flakyRenderer fails every render.
type flakyRenderer struct {
	Renderer
}

func (flakyRenderer) Render(context.Context, int64, string) (*models.UpsertResult, error) {
	return nil, models.ErrRenderFailure
}

func TestRunOnce_FailuresAreCountedAndDoNotAbort(t *testing.T) {
	p := newPipeline(t, OrchestratorConfig{Workers: 2})

	p.mustAOI(t, "farm1", square(2, 2, 4, 4))
	bad := p.mustScene(t, sceneInput("S1", ndviRaster(0.5)))
	p.mustScene(t, sceneInput("S2", ndviRaster(0.5)))

	inst := Instrumentation{Metrics: metrics.NewMetrics()}
	orch := NewOrchestrator(p.store,
		flakyClipper{ClipEngine: p.clipper, fail: map[int64]bool{bad: true}},
		flakyRenderer{Renderer: p.renderer},
		OrchestratorConfig{Workers: 2}, inst)

	summary, err := orch.RunOnce(context.Background())
	require.NoError(t, err)
	assert.False(t, summary.Succeeded())
	assert.Equal(t, 1, summary.ScenesFailed)
	assert.Equal(t, 1, summary.ClipsCreated)
	assert.Equal(t, 1, summary.RenderFailures)
	require.Len(t, summary.Failures, 2)

	stages := []string{summary.Failures[0].Stage, summary.Failures[1].Stage}
	assert.ElementsMatch(t, []string{metrics.StageClip, metrics.StageRender}, stages)
}

func TestRunOnce_Cancelled(t *testing.T) {
	p := newPipeline(t, OrchestratorConfig{Workers: 1})
	p.mustAOI(t, "farm1", square(2, 2, 4, 4))
	p.mustScene(t, sceneInput("S1", ndviRaster(0.5)))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	summary, err := p.orch.RunOnce(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, summary)
	assert.Zero(t, summary.ClipsCreated)
}

// cancellingClipper cancels the run from inside the scene it is clipping,
// the way a shutdown signal lands in the middle of a pass.
type cancellingClipper struct {
	ClipEngine
	cancel context.CancelFunc
}

func (c cancellingClipper) ClipScene(ctx context.Context, fullID int64) (*SceneClipResult, error) {
	c.cancel()
	return c.ClipEngine.ClipScene(ctx, fullID)
}

// cancellingRenderer cancels the run from inside a render.
type cancellingRenderer struct {
	Renderer
	cancel context.CancelFunc
}

func (r cancellingRenderer) Render(ctx context.Context, clippedID int64, style string) (*models.UpsertResult, error) {
	r.cancel()
	return r.Renderer.Render(ctx, clippedID, style)
}

func TestRunOnce_CancelledDuringClipIsNotAFailure(t *testing.T) {
	p := newPipeline(t, OrchestratorConfig{Workers: 1})
	p.mustAOI(t, "farm1", square(2, 2, 4, 4))
	p.mustScene(t, sceneInput("S1", ndviRaster(0.5)))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	orch := NewOrchestrator(p.store,
		cancellingClipper{ClipEngine: p.clipper, cancel: cancel},
		p.renderer, OrchestratorConfig{Workers: 1}, Instrumentation{})

	summary, err := orch.RunOnce(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, summary)
	assert.True(t, summary.Succeeded())
	assert.Zero(t, summary.ScenesFailed)
	assert.Zero(t, summary.ClipFailures)
	assert.Empty(t, summary.Failures)

	_, _, clips, _ := p.mem.Counts()
	assert.Zero(t, clips)

	// The interrupted pair is derived by the next pass.
	next, err := p.orch.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, next.ClipsCreated)
}

func TestRunOnce_CancelledDuringRenderIsNotAFailure(t *testing.T) {
	p := newPipeline(t, OrchestratorConfig{Workers: 1})
	p.mustAOI(t, "farm1", square(2, 2, 4, 4))
	p.mustScene(t, sceneInput("S1", ndviRaster(0.5)))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	orch := NewOrchestrator(p.store, p.clipper,
		cancellingRenderer{Renderer: p.renderer, cancel: cancel},
		OrchestratorConfig{Workers: 1}, Instrumentation{})

	summary, err := orch.RunOnce(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, summary)
	assert.Equal(t, 1, summary.ClipsCreated)
	assert.Zero(t, summary.RenderFailures)
	assert.Empty(t, summary.Failures)

	_, _, _, vizs := p.mem.Counts()
	assert.Zero(t, vizs)
}

func TestRunOnce_EdgeTouchingAOIIsMaterializedOnce(t *testing.T) {
	p := newPipeline(t, OrchestratorConfig{Workers: 1, DefaultStyle: "default"})
	ctx := context.Background()

	// The scene covers lon 0..10; this AOI only shares its eastern edge.
	edge := p.mustAOI(t, "edge", square(10, 2, 12, 4))
	p.mustScene(t, sceneInput("S1", ndviRaster(0.5)))

	first, err := p.orch.RunOnce(ctx)
	require.NoError(t, err)
	assert.True(t, first.Succeeded())
	assert.Zero(t, first.ClipFailures)
	assert.Equal(t, 1, first.ClipsCreated)
	assert.Equal(t, 1, first.VizCreated)

	second, err := p.orch.RunOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, second.ClipFailures)
	assert.Zero(t, second.ClipsCreated)
	assert.Equal(t, 1, second.ClipsSkipped)

	clips, err := p.store.Clips.ListByAOI(ctx, edge)
	require.NoError(t, err)
	require.Len(t, clips, 1)
	assert.Nil(t, clips[0].MeanNDVI)
}

func TestRun_StopsOnCancel(t *testing.T) {
	p := newPipeline(t, OrchestratorConfig{Workers: 1})
	p.mustAOI(t, "farm1", square(2, 2, 4, 4))
	p.mustScene(t, sceneInput("S1", ndviRaster(0.5)))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.orch.Run(ctx, time.Hour, true)
		close(done)
	}()

	require.Eventually(t, func() bool {
		_, _, clips, vizs := p.mem.Counts()
		return clips == 1 && vizs == 1
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("scheduler did not stop after cancel")
	}
}
