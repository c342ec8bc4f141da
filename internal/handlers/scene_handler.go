package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	apierrors "github.com/stwalsh4118/canopy/internal/errors"
	"github.com/stwalsh4118/canopy/internal/middleware"
	"github.com/stwalsh4118/canopy/internal/models"
	"github.com/stwalsh4118/canopy/internal/raster"
	"github.com/stwalsh4118/canopy/internal/services"
)

// acquisitionDateLayout is the wire format of acquisition dates.
const acquisitionDateLayout = "2006-01-02"

// SceneHandler handles full-scene HTTP requests.
type SceneHandler struct {
	service services.SceneService
	deriver Deriver
}

// NewSceneHandler creates a new SceneHandler instance.
func NewSceneHandler(service services.SceneService, deriver Deriver) *SceneHandler {
	return &SceneHandler{
		service: service,
		deriver: deriver,
	}
}

// RasterData is the JSON form of a single-band raster. Values are row-major
// from the top-left pixel; GeoTransform is the GDAL affine transform.
type RasterData struct {
	NoData       *float64   `json:"nodata" binding:"required"`
	Values       []float32  `json:"values" binding:"required"`
	GeoTransform [6]float64 `json:"geoTransform"`
	Width        int        `json:"width" binding:"required,gt=0"`
	Height       int        `json:"height" binding:"required,gt=0"`
	SRID         int        `json:"srid" binding:"required,oneof=4326 3857"`
}

// IngestSceneRequest represents the body of POST /api/v1/scenes.
// Provide either NDVI or both Red and NIR. Sensor and AcquisitionDate are
// derived from a Landsat product id when omitted.
type IngestSceneRequest struct {
	CloudCover      *float64    `json:"cloudCover" binding:"omitempty,gte=0,lte=100"`
	NDVI            *RasterData `json:"ndvi"`
	Red             *RasterData `json:"red"`
	NIR             *RasterData `json:"nir"`
	SceneID         string      `json:"sceneId" binding:"required,max=255"`
	Sensor          string      `json:"sensor" binding:"max=32"`
	AcquisitionDate string      `json:"acquisitionDate"`
}

// SceneData represents scene metadata in API responses.
type SceneData struct {
	AcquisitionDate string     `json:"acquisitionDate"`
	CreatedAt       time.Time  `json:"createdAt"`
	CloudCover      *float64   `json:"cloudCover,omitempty"`
	SceneID         string     `json:"sceneId"`
	Sensor          string     `json:"sensor"`
	Footprint       [4]float64 `json:"footprint"`
	ID              int64      `json:"id"`
	Width           int        `json:"width,omitempty"`
	Height          int        `json:"height,omitempty"`
	ValidPixels     int        `json:"validPixels,omitempty"`
}

// ListScenesResponse represents the response for GET /api/v1/scenes.
type ListScenesResponse struct {
	Scenes []SceneData `json:"scenes"`
	Count  int         `json:"count"`
}

// Ingest handles POST /api/v1/scenes.
// Returns 201 for a new scene and 200 when the scene id is already stored.
// With ?derive=true the scene is clipped against every AOI before
// responding.
func (h *SceneHandler) Ingest(c *gin.Context) {
	log := middleware.GetLogger(c)

	var req IngestSceneRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		handleBindError(c, err, "Invalid request body")
		return
	}
	var query DeriveQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		handleBindError(c, err, "Invalid query parameters")
		return
	}

	in := models.SceneInput{
		SceneID:    req.SceneID,
		Sensor:     req.Sensor,
		CloudCover: req.CloudCover,
		NDVI:       req.NDVI.toRaster(),
		Red:        req.Red.toRaster(),
		NIR:        req.NIR.toRaster(),
	}
	if req.AcquisitionDate != "" {
		date, err := time.Parse(acquisitionDateLayout, req.AcquisitionDate)
		if err != nil {
			apierrors.BadRequest(c, "Invalid acquisitionDate, expected YYYY-MM-DD", map[string]interface{}{
				"acquisitionDate": req.AcquisitionDate,
			})
			return
		}
		in.AcquisitionDate = date
	}

	res, err := h.service.Ingest(c.Request.Context(), in)
	if err != nil {
		apierrors.FromDomain(c, err)
		return
	}

	response := UpsertResponse{ID: res.ID, Created: res.Created}
	if query.Derive {
		summary, err := h.deriver.DeriveScene(c.Request.Context(), res.ID)
		if err != nil {
			apierrors.FromDomain(c, err)
			return
		}
		response.Derivation = summary
	}

	if log != nil {
		log.Info("Scene ingest handled", map[string]interface{}{
			"full_id":  res.ID,
			"scene_id": req.SceneID,
			"created":  res.Created,
		})
	}

	status := http.StatusOK
	if res.Created {
		status = http.StatusCreated
	}
	c.JSON(status, response)
}

// Get handles GET /api/v1/scenes/:id.
func (h *SceneHandler) Get(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	scene, err := h.service.Get(c.Request.Context(), id)
	if err != nil {
		apierrors.FromDomain(c, err)
		return
	}

	c.JSON(http.StatusOK, mapSceneToDTO(scene))
}

// List handles GET /api/v1/scenes.
func (h *SceneHandler) List(c *gin.Context) {
	scenes, err := h.service.List(c.Request.Context())
	if err != nil {
		apierrors.FromDomain(c, err)
		return
	}

	data := make([]SceneData, 0, len(scenes))
	for i := range scenes {
		data = append(data, mapSceneToDTO(&scenes[i]))
	}

	c.JSON(http.StatusOK, ListScenesResponse{
		Scenes: data,
		Count:  len(data),
	})
}

// Delete handles DELETE /api/v1/scenes/:id.
// The scene's clips and their visualizations are removed with it.
func (h *SceneHandler) Delete(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	if err := h.service.Delete(c.Request.Context(), id); err != nil {
		apierrors.FromDomain(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// toRaster converts the DTO. A nil DTO yields a nil raster; shape and
// nodata checks happen in the ingestion service.
func (d *RasterData) toRaster() *raster.Raster {
	if d == nil {
		return nil
	}
	return &raster.Raster{
		Width:     d.Width,
		Height:    d.Height,
		Transform: raster.GeoTransform(d.GeoTransform),
		SRID:      d.SRID,
		NoData:    d.NoData,
		Values:    d.Values,
	}
}

// mapSceneToDTO converts a FullScene to a SceneData DTO. Raster dimensions
// are only reported when the raster was loaded.
func mapSceneToDTO(scene *models.FullScene) SceneData {
	dto := SceneData{
		ID:              scene.ID,
		SceneID:         scene.SceneID,
		Sensor:          scene.Sensor,
		AcquisitionDate: scene.AcquisitionDate.Format(acquisitionDateLayout),
		CloudCover:      scene.CloudCover,
		CreatedAt:       scene.CreatedAt,
		Footprint: [4]float64{
			scene.Footprint.Min[0], scene.Footprint.Min[1],
			scene.Footprint.Max[0], scene.Footprint.Max[1],
		},
	}
	if scene.Raster != nil {
		dto.Width = scene.Raster.Width
		dto.Height = scene.Raster.Height
		dto.ValidPixels = raster.ValidCount(scene.Raster)
	}
	return dto
}
