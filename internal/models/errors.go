package models

import (
	"errors"

	"github.com/stwalsh4118/canopy/internal/raster"
	"github.com/stwalsh4118/canopy/internal/spatial"
)

// Domain errors shared by the stores, the services and the HTTP layer.
// Callers wrap them with context and match them with errors.Is.
var (
	// ErrInvalidGeometry is returned for empty, open, non-finite,
	// out-of-bounds or self-intersecting AOI geometry.
	ErrInvalidGeometry = spatial.ErrInvalidGeometry

	// ErrInvalidRaster is returned for rasters lacking nodata, a supported
	// spatial reference or consistent dimensions.
	ErrInvalidRaster = raster.ErrInvalidRaster

	ErrNotFound = errors.New("not found")

	// ErrDuplicateNameConflict is returned when an AOI name is reused with a
	// different geometry.
	ErrDuplicateNameConflict = errors.New("aoi name already exists with a different geometry")

	ErrClipFailure   = errors.New("clip failed")
	ErrRenderFailure = errors.New("render failed")

	// ErrInvalidInput covers missing names and incomplete scene metadata.
	ErrInvalidInput = errors.New("invalid input")
)
