package handlers

import (
	"context"
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	apierrors "github.com/stwalsh4118/canopy/internal/errors"
	"github.com/stwalsh4118/canopy/internal/services"
)

// Deriver runs derivations on demand. *services.Orchestrator implements it.
type Deriver interface {
	RunOnce(ctx context.Context) (*services.RunSummary, error)
	DeriveScene(ctx context.Context, fullID int64) (*services.RunSummary, error)
	DeriveAOI(ctx context.Context, aoiID int64) (*services.RunSummary, error)
}

// DeriveQuery selects synchronous derivation after a write.
type DeriveQuery struct {
	Derive bool `form:"derive"`
}

// parseID reads a positive integer path parameter. It writes a 400 response
// and returns false when the parameter is malformed.
func parseID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		apierrors.BadRequest(c, "Invalid "+name, map[string]interface{}{
			name: c.Param(name),
		})
		return 0, false
	}
	return id, true
}

// handleBindError writes the response for a failed bind: field details for
// validation errors, a generic 400 otherwise.
func handleBindError(c *gin.Context, err error, message string) {
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		apierrors.ValidationError(c, validationErrors)
		return
	}
	apierrors.BadRequest(c, message, nil)
}
