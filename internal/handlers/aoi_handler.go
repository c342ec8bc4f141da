package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	apierrors "github.com/stwalsh4118/canopy/internal/errors"
	"github.com/stwalsh4118/canopy/internal/middleware"
	"github.com/stwalsh4118/canopy/internal/models"
	"github.com/stwalsh4118/canopy/internal/services"
)

// AOIHandler handles area-of-interest HTTP requests.
type AOIHandler struct {
	service services.AOIService
	deriver Deriver
}

// NewAOIHandler creates a new AOIHandler instance.
func NewAOIHandler(service services.AOIService, deriver Deriver) *AOIHandler {
	return &AOIHandler{
		service: service,
		deriver: deriver,
	}
}

// CreateAOIRequest represents the body of POST /api/v1/aois.
// Geometry is a GeoJSON Polygon or MultiPolygon in EPSG:4326.
type CreateAOIRequest struct {
	Geometry json.RawMessage `json:"geometry" binding:"required"`
	Name     string          `json:"name" binding:"required,max=255"`
}

// AOIData represents an AOI in API responses.
type AOIData struct {
	CreatedAt time.Time           `json:"createdAt"`
	Geometry  models.MultiPolygon `json:"geometry"`
	Name      string              `json:"name"`
	ID        int64               `json:"id"`
}

// UpsertResponse reports the row an idempotent write resolved to.
type UpsertResponse struct {
	Derivation *services.RunSummary `json:"derivation,omitempty"`
	ID         int64                `json:"id"`
	Created    bool                 `json:"created"`
}

// ListAOIsResponse represents the response for GET /api/v1/aois.
type ListAOIsResponse struct {
	AOIs  []AOIData `json:"aois"`
	Count int       `json:"count"`
}

// Create handles POST /api/v1/aois.
// Returns 201 for a new AOI, 200 when the same name and geometry already
// exist and 409 when the name is taken by another geometry. With
// ?derive=true every intersecting scene is clipped before responding.
func (h *AOIHandler) Create(c *gin.Context) {
	log := middleware.GetLogger(c)

	var req CreateAOIRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		handleBindError(c, err, "Invalid request body")
		return
	}
	var query DeriveQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		handleBindError(c, err, "Invalid query parameters")
		return
	}

	var geom models.MultiPolygon
	if err := geom.UnmarshalJSON(req.Geometry); err != nil {
		apierrors.FromDomain(c, err)
		return
	}

	res, err := h.service.Upsert(c.Request.Context(), req.Name, geom)
	if err != nil {
		apierrors.FromDomain(c, err)
		return
	}

	response := UpsertResponse{ID: res.ID, Created: res.Created}
	if query.Derive {
		summary, err := h.deriver.DeriveAOI(c.Request.Context(), res.ID)
		if err != nil {
			apierrors.FromDomain(c, err)
			return
		}
		response.Derivation = summary
	}

	if log != nil {
		log.Info("AOI upserted", map[string]interface{}{
			"aoi_id":  res.ID,
			"name":    req.Name,
			"created": res.Created,
		})
	}

	status := http.StatusOK
	if res.Created {
		status = http.StatusCreated
	}
	c.JSON(status, response)
}

// Get handles GET /api/v1/aois/:id.
func (h *AOIHandler) Get(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	aoi, err := h.service.Get(c.Request.Context(), id)
	if err != nil {
		apierrors.FromDomain(c, err)
		return
	}

	c.JSON(http.StatusOK, mapAOIToDTO(aoi))
}

// List handles GET /api/v1/aois.
func (h *AOIHandler) List(c *gin.Context) {
	aois, err := h.service.List(c.Request.Context())
	if err != nil {
		apierrors.FromDomain(c, err)
		return
	}

	data := make([]AOIData, 0, len(aois))
	for i := range aois {
		data = append(data, mapAOIToDTO(&aois[i]))
	}

	c.JSON(http.StatusOK, ListAOIsResponse{
		AOIs:  data,
		Count: len(data),
	})
}

// Delete handles DELETE /api/v1/aois/:id.
// The AOI's clips and visualizations are removed with it.
func (h *AOIHandler) Delete(c *gin.Context) {
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

func mapAOIToDTO(aoi *models.AreaOfInterest) AOIData {
	return AOIData{
		ID:        aoi.ID,
		Name:      aoi.Name,
		Geometry:  aoi.Geom,
		CreatedAt: aoi.CreatedAt,
	}
}
