package repository

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stwalsh4118/canopy/internal/models"
	"github.com/stwalsh4118/canopy/internal/raster"
)

func squareGeom(minX, minY, maxX, maxY float64) models.MultiPolygon {
	return models.NewMultiPolygon(orb.MultiPolygon{{{
		{minX, minY}, {maxX, minY}, {maxX, maxY}, {minX, maxY}, {minX, minY},
	}}})
}

func testScene(sceneID string) *models.FullScene {
	r := raster.New(10, 10, raster.GeoTransform{0, 1, 0, 10, 0, -1}, raster.SRIDWGS84, -9999)
	for i := range r.Values {
		r.Values[i] = 0.5
	}
	fp, _ := r.Footprint()
	return &models.FullScene{
		SceneID:         sceneID,
		AcquisitionDate: time.Date(2023, 6, 15, 0, 0, 0, 0, time.UTC),
		Sensor:          "LC08",
		Footprint:       fp,
		Raster:          r,
	}
}

func testClip(fullID, aoiID int64) *models.ClippedRaster {
	r := raster.New(2, 2, raster.GeoTransform{2, 1, 0, 5, 0, -1}, raster.SRIDWGS84, -9999)
	r.Values[0] = 0.25
	mean := 0.25
	return &models.ClippedRaster{
		FullID:          fullID,
		AOIID:           aoiID,
		AcquisitionDate: time.Date(2023, 6, 15, 0, 0, 0, 0, time.UTC),
		MeanNDVI:        &mean,
		Raster:          r,
	}
}

// runStoreContract exercises the behavior both store implementations must
// share. Names are randomized so it can run against a shared database.
func runStoreContract(t *testing.T, store *Store) {
	ctx := context.Background()
	suffix := uuid.NewString()

	farm1, created, err := store.AOIs.Create(ctx, "farm1-"+suffix, squareGeom(2, 2, 5, 5))
	require.NoError(t, err)
	assert.True(t, created)

	again, created, err := store.AOIs.Create(ctx, "farm1-"+suffix, squareGeom(2, 2, 5, 5))
	require.NoError(t, err)
	assert.False(t, created, "second insert with the same name must not create a row")
	assert.Equal(t, farm1, again)

	farm2, _, err := store.AOIs.Create(ctx, "farm2-"+suffix, squareGeom(6, 6, 8, 8))
	require.NoError(t, err)

	got, err := store.AOIs.GetByID(ctx, farm1)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "farm1-"+suffix, got.Name)
	assert.True(t, got.Geom.Equal(squareGeom(2, 2, 5, 5)), "geometry must round-trip")

	byName, err := store.AOIs.GetByName(ctx, "farm2-"+suffix)
	require.NoError(t, err)
	require.NotNil(t, byName)
	assert.Equal(t, farm2, byName.ID)

	missing, err := store.AOIs.GetByID(ctx, -1)
	assert.NoError(t, err)
	assert.Nil(t, missing)

	hits, err := store.AOIs.FindIntersecting(ctx, orb.Bound{Min: orb.Point{4, 4}, Max: orb.Point{4.5, 4.5}})
	require.NoError(t, err)
	assert.Contains(t, aoiIDs(hits), farm1)
	assert.NotContains(t, aoiIDs(hits), farm2)

	s1, created, err := store.Scenes.Create(ctx, testScene("S1-"+suffix))
	require.NoError(t, err)
	assert.True(t, created)

	dup := testScene("S1-" + suffix)
	dup.Sensor = "LE07"
	s1Again, created, err := store.Scenes.Create(ctx, dup)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, s1, s1Again)

	scene, err := store.Scenes.GetByID(ctx, s1)
	require.NoError(t, err)
	require.NotNil(t, scene)
	assert.Equal(t, "LC08", scene.Sensor, "duplicate ingest must not overwrite metadata")
	require.NotNil(t, scene.Raster)
	assert.Equal(t, 100, len(scene.Raster.Values))
	assert.InDelta(t, 10, scene.Footprint.Max[0], 1e-9)

	scenes, err := store.Scenes.FindIntersectingAOI(ctx, farm1)
	require.NoError(t, err)
	assert.Contains(t, sceneIDs(scenes), s1)

	c1, created, err := store.Clips.Create(ctx, testClip(s1, farm1))
	require.NoError(t, err)
	assert.True(t, created)

	c1Again, created, err := store.Clips.Create(ctx, testClip(s1, farm1))
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, c1, c1Again)

	c2, _, err := store.Clips.Create(ctx, testClip(s1, farm2))
	require.NoError(t, err)

	_, _, err = store.Clips.Create(ctx, testClip(s1, -1))
	assert.ErrorIs(t, err, models.ErrNotFound)

	done, err := store.Clips.MaterializedAOIs(ctx, s1)
	require.NoError(t, err)
	assert.Equal(t, map[int64]bool{farm1: true, farm2: true}, done)

	clip, err := store.Clips.GetByID(ctx, c1)
	require.NoError(t, err)
	require.NotNil(t, clip)
	require.NotNil(t, clip.MeanNDVI)
	assert.InDelta(t, 0.25, *clip.MeanNDVI, 1e-9)
	assert.Equal(t, 4, len(clip.Raster.Values))

	unrendered, err := store.Clips.ListUnrendered(ctx)
	require.NoError(t, err)
	assert.Contains(t, unrendered, c1)

	viz := &models.VisualizationRaster{
		ClippedID: c1, AOIID: farm1, AcquisitionDate: clip.AcquisitionDate,
		Style: "default", Image: []byte{0x89, 'P', 'N', 'G'},
	}
	v1, created, err := store.Visualizations.Create(ctx, viz)
	require.NoError(t, err)
	assert.True(t, created)

	v1Again, created, err := store.Visualizations.Create(ctx, viz)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, v1, v1Again)

	_, _, err = store.Visualizations.Create(ctx, &models.VisualizationRaster{
		ClippedID: -1, AOIID: farm1, AcquisitionDate: clip.AcquisitionDate, Style: "default", Image: []byte{1},
	})
	assert.ErrorIs(t, err, models.ErrNotFound)

	unrendered, err = store.Clips.ListUnrendered(ctx)
	require.NoError(t, err)
	assert.NotContains(t, unrendered, c1)
	assert.Contains(t, unrendered, c2)

	// Deleting farm1 removes its clip and visualization but not farm2's clip.
	deleted, err := store.AOIs.Delete(ctx, farm1)
	require.NoError(t, err)
	assert.True(t, deleted)

	gone, err := store.Clips.GetByID(ctx, c1)
	require.NoError(t, err)
	assert.Nil(t, gone)
	goneViz, err := store.Visualizations.GetByClippedID(ctx, c1)
	require.NoError(t, err)
	assert.Nil(t, goneViz)

	kept, err := store.Clips.GetByID(ctx, c2)
	require.NoError(t, err)
	assert.NotNil(t, kept)

	deleted, err = store.AOIs.Delete(ctx, farm1)
	require.NoError(t, err)
	assert.False(t, deleted)

	// Deleting the scene removes the remaining clip.
	deleted, err = store.Scenes.Delete(ctx, s1)
	require.NoError(t, err)
	assert.True(t, deleted)

	kept, err = store.Clips.GetByID(ctx, c2)
	require.NoError(t, err)
	assert.Nil(t, kept)

	clips, err := store.Clips.ListByAOI(ctx, farm2)
	require.NoError(t, err)
	assert.Empty(t, clips)

	_, err = store.AOIs.Delete(ctx, farm2)
	require.NoError(t, err)
}

func aoiIDs(aois []models.AreaOfInterest) []int64 {
	ids := make([]int64, len(aois))
	for i, a := range aois {
		ids[i] = a.ID
	}
	return ids
}

func sceneIDs(scenes []models.FullScene) []int64 {
	ids := make([]int64, len(scenes))
	for i, s := range scenes {
		ids[i] = s.ID
	}
	return ids
}
