package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/paulmach/orb"
	"github.com/stwalsh4118/canopy/internal/models"
	"github.com/stwalsh4118/canopy/internal/spatial"
)

// MemoryStore is an in-memory implementation of all four repositories with
// the same uniqueness and cascade semantics as the PostGIS schema. AOIs and
// scene footprints are indexed in R-trees. Thread-safe via RWMutex; a
// cascade delete happens under one write lock.
type MemoryStore struct {
	mu sync.RWMutex

	aois      map[int64]*models.AreaOfInterest
	aoiByName map[string]int64
	aoiIndex  *spatial.Index

	scenes         map[int64]*models.FullScene
	sceneBySceneID map[string]int64
	sceneIndex     *spatial.Index

	clips      map[int64]*models.ClippedRaster
	clipByPair map[models.PairKey]int64

	vizs      map[int64]*models.VisualizationRaster
	vizByClip map[int64]int64

	nextAOI, nextScene, nextClip, nextViz int64
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		aois:           make(map[int64]*models.AreaOfInterest),
		aoiByName:      make(map[string]int64),
		aoiIndex:       spatial.NewIndex(),
		scenes:         make(map[int64]*models.FullScene),
		sceneBySceneID: make(map[string]int64),
		sceneIndex:     spatial.NewIndex(),
		clips:          make(map[int64]*models.ClippedRaster),
		clipByPair:     make(map[models.PairKey]int64),
		vizs:           make(map[int64]*models.VisualizationRaster),
		vizByClip:      make(map[int64]int64),
	}
}

// Store exposes the memory store through the repository interfaces.
func (s *MemoryStore) Store() *Store {
	return &Store{
		AOIs:           memoryAOIs{s},
		Scenes:         memoryScenes{s},
		Clips:          memoryClips{s},
		Visualizations: memoryVizs{s},
	}
}

// Counts returns the number of rows in each tier.
func (s *MemoryStore) Counts() (aois, scenes, clips, vizs int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.aois), len(s.scenes), len(s.clips), len(s.vizs)
}

// deleteClipLocked removes a clip and its visualization. Caller holds mu.
func (s *MemoryStore) deleteClipLocked(clipID int64) {
	clip, ok := s.clips[clipID]
	if !ok {
		return
	}
	if vizID, ok := s.vizByClip[clipID]; ok {
		delete(s.vizs, vizID)
		delete(s.vizByClip, clipID)
	}
	delete(s.clipByPair, models.PairKey{FullID: clip.FullID, AOIID: clip.AOIID})
	delete(s.clips, clipID)
}

func copyAOI(a *models.AreaOfInterest) models.AreaOfInterest {
	out := *a
	out.Geom.Coordinates = a.Geom.Coordinates.Clone()
	return out
}

// memoryAOIs implements AOIRepository on a MemoryStore.
type memoryAOIs struct{ s *MemoryStore }

func (r memoryAOIs) Create(ctx context.Context, name string, geom models.MultiPolygon) (int64, bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if id, ok := r.s.aoiByName[name]; ok {
		return id, false, nil
	}

	r.s.nextAOI++
	aoi := &models.AreaOfInterest{
		ID:        r.s.nextAOI,
		Name:      name,
		Geom:      models.NewMultiPolygon(geom.Coordinates.Clone()),
		CreatedAt: time.Now().UTC(),
	}
	r.s.aois[aoi.ID] = aoi
	r.s.aoiByName[name] = aoi.ID
	r.s.aoiIndex.Insert(aoi.ID, aoi.Geom.Bound())
	return aoi.ID, true, nil
}

func (r memoryAOIs) GetByID(ctx context.Context, id int64) (*models.AreaOfInterest, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	aoi, ok := r.s.aois[id]
	if !ok {
		return nil, nil
	}
	out := copyAOI(aoi)
	return &out, nil
}

func (r memoryAOIs) GetByName(ctx context.Context, name string) (*models.AreaOfInterest, error) {
	r.s.mu.RLock()
	id, ok := r.s.aoiByName[name]
	r.s.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	return r.GetByID(ctx, id)
}

func (r memoryAOIs) List(ctx context.Context) ([]models.AreaOfInterest, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	out := make([]models.AreaOfInterest, 0, len(r.s.aois))
	for _, aoi := range r.s.aois {
		out = append(out, copyAOI(aoi))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r memoryAOIs) FindIntersecting(ctx context.Context, b orb.Bound) ([]models.AreaOfInterest, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	out := make([]models.AreaOfInterest, 0)
	for _, id := range r.s.aoiIndex.Search(b) {
		aoi := r.s.aois[id]
		if spatial.IntersectsBound(aoi.Geom.Coordinates, b) {
			out = append(out, copyAOI(aoi))
		}
	}
	return out, nil
}

func (r memoryAOIs) Delete(ctx context.Context, id int64) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	aoi, ok := r.s.aois[id]
	if !ok {
		return false, nil
	}
	for clipID, clip := range r.s.clips {
		if clip.AOIID == id {
			r.s.deleteClipLocked(clipID)
		}
	}
	r.s.aoiIndex.Delete(id, aoi.Geom.Bound())
	delete(r.s.aoiByName, aoi.Name)
	delete(r.s.aois, id)
	return true, nil
}

// memoryScenes implements SceneRepository on a MemoryStore.
type memoryScenes struct{ s *MemoryStore }

func (r memoryScenes) Create(ctx context.Context, scene *models.FullScene) (int64, bool, error) {
	if err := scene.Raster.Validate(); err != nil {
		return 0, false, err
	}

	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if id, ok := r.s.sceneBySceneID[scene.SceneID]; ok {
		return id, false, nil
	}

	r.s.nextScene++
	stored := *scene
	stored.ID = r.s.nextScene
	stored.Raster = scene.Raster.Clone()
	stored.CreatedAt = time.Now().UTC()
	if scene.CloudCover != nil {
		cc := *scene.CloudCover
		stored.CloudCover = &cc
	}

	r.s.scenes[stored.ID] = &stored
	r.s.sceneBySceneID[stored.SceneID] = stored.ID
	r.s.sceneIndex.Insert(stored.ID, stored.Footprint)
	return stored.ID, true, nil
}

func (r memoryScenes) GetByID(ctx context.Context, id int64) (*models.FullScene, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	scene, ok := r.s.scenes[id]
	if !ok {
		return nil, nil
	}
	out := *scene
	out.Raster = scene.Raster.Clone()
	return &out, nil
}

func (r memoryScenes) List(ctx context.Context) ([]models.FullScene, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	out := make([]models.FullScene, 0, len(r.s.scenes))
	for _, scene := range r.s.scenes {
		meta := *scene
		meta.Raster = nil
		out = append(out, meta)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r memoryScenes) FindIntersectingAOI(ctx context.Context, aoiID int64) ([]models.FullScene, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	out := make([]models.FullScene, 0)
	aoi, ok := r.s.aois[aoiID]
	if !ok {
		return out, nil
	}
	for _, id := range r.s.sceneIndex.Search(aoi.Geom.Bound()) {
		scene := r.s.scenes[id]
		if spatial.IntersectsBound(aoi.Geom.Coordinates, scene.Footprint) {
			meta := *scene
			meta.Raster = nil
			out = append(out, meta)
		}
	}
	return out, nil
}

func (r memoryScenes) Delete(ctx context.Context, id int64) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	scene, ok := r.s.scenes[id]
	if !ok {
		return false, nil
	}
	for clipID, clip := range r.s.clips {
		if clip.FullID == id {
			r.s.deleteClipLocked(clipID)
		}
	}
	r.s.sceneIndex.Delete(id, scene.Footprint)
	delete(r.s.sceneBySceneID, scene.SceneID)
	delete(r.s.scenes, id)
	return true, nil
}

// memoryClips implements ClipRepository on a MemoryStore.
type memoryClips struct{ s *MemoryStore }

func (r memoryClips) Create(ctx context.Context, clip *models.ClippedRaster) (int64, bool, error) {
	if err := clip.Raster.Validate(); err != nil {
		return 0, false, err
	}

	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	key := models.PairKey{FullID: clip.FullID, AOIID: clip.AOIID}
	if id, ok := r.s.clipByPair[key]; ok {
		return id, false, nil
	}
	if _, ok := r.s.scenes[clip.FullID]; !ok {
		return 0, false, fmt.Errorf("%w: scene %d", models.ErrNotFound, clip.FullID)
	}
	if _, ok := r.s.aois[clip.AOIID]; !ok {
		return 0, false, fmt.Errorf("%w: aoi %d", models.ErrNotFound, clip.AOIID)
	}

	r.s.nextClip++
	stored := *clip
	stored.ID = r.s.nextClip
	stored.Raster = clip.Raster.Clone()
	stored.CreatedAt = time.Now().UTC()
	if clip.MeanNDVI != nil {
		mean := *clip.MeanNDVI
		stored.MeanNDVI = &mean
	}

	r.s.clips[stored.ID] = &stored
	r.s.clipByPair[key] = stored.ID
	return stored.ID, true, nil
}

func (r memoryClips) GetByID(ctx context.Context, id int64) (*models.ClippedRaster, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	clip, ok := r.s.clips[id]
	if !ok {
		return nil, nil
	}
	out := *clip
	out.Raster = clip.Raster.Clone()
	return &out, nil
}

func (r memoryClips) MaterializedAOIs(ctx context.Context, fullID int64) (map[int64]bool, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	done := make(map[int64]bool)
	for key := range r.s.clipByPair {
		if key.FullID == fullID {
			done[key.AOIID] = true
		}
	}
	return done, nil
}

func (r memoryClips) ListByAOI(ctx context.Context, aoiID int64) ([]models.ClippedRaster, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	out := make([]models.ClippedRaster, 0)
	for _, clip := range r.s.clips {
		if clip.AOIID == aoiID {
			meta := *clip
			meta.Raster = nil
			out = append(out, meta)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].AcquisitionDate.Equal(out[j].AcquisitionDate) {
			return out[i].AcquisitionDate.Before(out[j].AcquisitionDate)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (r memoryClips) ListUnrendered(ctx context.Context) ([]int64, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	ids := make([]int64, 0)
	for id := range r.s.clips {
		if _, ok := r.s.vizByClip[id]; !ok {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

// memoryVizs implements VizRepository on a MemoryStore.
type memoryVizs struct{ s *MemoryStore }

func (r memoryVizs) Create(ctx context.Context, viz *models.VisualizationRaster) (int64, bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if id, ok := r.s.vizByClip[viz.ClippedID]; ok {
		return id, false, nil
	}
	if _, ok := r.s.clips[viz.ClippedID]; !ok {
		return 0, false, fmt.Errorf("%w: clip %d", models.ErrNotFound, viz.ClippedID)
	}

	r.s.nextViz++
	stored := *viz
	stored.ID = r.s.nextViz
	stored.Image = append([]byte(nil), viz.Image...)
	stored.CreatedAt = time.Now().UTC()

	r.s.vizs[stored.ID] = &stored
	r.s.vizByClip[stored.ClippedID] = stored.ID
	return stored.ID, true, nil
}

func (r memoryVizs) GetByClippedID(ctx context.Context, clippedID int64) (*models.VisualizationRaster, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	id, ok := r.s.vizByClip[clippedID]
	if !ok {
		return nil, nil
	}
	out := *r.s.vizs[id]
	out.Image = append([]byte(nil), out.Image...)
	return &out, nil
}
