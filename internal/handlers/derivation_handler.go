package handlers

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	apierrors "github.com/stwalsh4118/canopy/internal/errors"
	"github.com/stwalsh4118/canopy/internal/middleware"
	"github.com/stwalsh4118/canopy/internal/models"
	"github.com/stwalsh4118/canopy/internal/services"
)

// StyleHeader carries the style of a served visualization.
const StyleHeader = "X-Visualization-Style"

// DerivationHandler handles clip, render and pipeline-run requests.
type DerivationHandler struct {
	clipper  services.ClipEngine
	renderer services.Renderer
	deriver  Deriver
}

// NewDerivationHandler creates a new DerivationHandler instance.
func NewDerivationHandler(clipper services.ClipEngine, renderer services.Renderer, deriver Deriver) *DerivationHandler {
	return &DerivationHandler{
		clipper:  clipper,
		renderer: renderer,
		deriver:  deriver,
	}
}

// RenderRequest represents the optional body of POST /api/v1/clips/:id/render.
type RenderRequest struct {
	Style string `json:"style" binding:"max=64"`
}

// ClipData represents clip metadata in API responses.
type ClipData struct {
	CreatedAt       time.Time `json:"createdAt"`
	MeanNDVI        *float64  `json:"meanNdvi"`
	AcquisitionDate string    `json:"acquisitionDate"`
	ID              int64     `json:"id"`
	FullID          int64     `json:"fullId"`
	AOIID           int64     `json:"aoiId"`
}

// ListClipsResponse represents the response for GET /api/v1/aois/:id/clips.
type ListClipsResponse struct {
	Clips []ClipData `json:"clips"`
	Count int        `json:"count"`
}

// Run handles POST /api/v1/derivations/run.
// It runs one full derivation pass and returns its summary. Unit failures
// are reported in the summary with a 200 status.
func (h *DerivationHandler) Run(c *gin.Context) {
	summary, err := h.deriver.RunOnce(c.Request.Context())
	if err != nil {
		apierrors.FromDomain(c, err)
		return
	}

	c.JSON(http.StatusOK, summary)
}

// Render handles POST /api/v1/clips/:id/render.
// Returns 201 for a new visualization and 200 when the clip already has
// one, whatever style was requested.
func (h *DerivationHandler) Render(c *gin.Context) {
	log := middleware.GetLogger(c)

	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	var req RenderRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		handleBindError(c, err, "Invalid request body")
		return
	}

	res, err := h.renderer.Render(c.Request.Context(), id, req.Style)
	if err != nil {
		apierrors.FromDomain(c, err)
		return
	}

	if log != nil {
		log.Info("Render handled", map[string]interface{}{
			"clipped_id": id,
			"viz_id":     res.ID,
			"created":    res.Created,
		})
	}

	status := http.StatusOK
	if res.Created {
		status = http.StatusCreated
	}
	c.JSON(status, UpsertResponse{ID: res.ID, Created: res.Created})
}

// Visualization handles GET /api/v1/clips/:id/visualization.
// It serves the stored PNG.
func (h *DerivationHandler) Visualization(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	viz, err := h.renderer.Get(c.Request.Context(), id)
	if err != nil {
		apierrors.FromDomain(c, err)
		return
	}

	c.Header(StyleHeader, viz.Style)
	c.Header("Content-Length", strconv.Itoa(len(viz.Image)))
	c.Data(http.StatusOK, "image/png", viz.Image)
}

// ClipsByAOI handles GET /api/v1/aois/:id/clips.
// Clips are ordered by acquisition date, forming the AOI's NDVI time series.
func (h *DerivationHandler) ClipsByAOI(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	clips, err := h.clipper.ListByAOI(c.Request.Context(), id)
	if err != nil {
		apierrors.FromDomain(c, err)
		return
	}

	data := make([]ClipData, 0, len(clips))
	for i := range clips {
		data = append(data, mapClipToDTO(&clips[i]))
	}

	c.JSON(http.StatusOK, ListClipsResponse{
		Clips: data,
		Count: len(data),
	})
}

func mapClipToDTO(clip *models.ClippedRaster) ClipData {
	return ClipData{
		ID:              clip.ID,
		FullID:          clip.FullID,
		AOIID:           clip.AOIID,
		AcquisitionDate: clip.AcquisitionDate.Format(acquisitionDateLayout),
		MeanNDVI:        clip.MeanNDVI,
		CreatedAt:       clip.CreatedAt,
	}
}
