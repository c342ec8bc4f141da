package models

import (
	"time"

	"github.com/stwalsh4118/canopy/internal/raster"
)

// ClippedRaster is a scene clipped to one AOI. MeanNDVI is nil when no
// pixel inside the AOI holds data.
type ClippedRaster struct {
	AcquisitionDate time.Time      `json:"acquisitionDate"`
	CreatedAt       time.Time      `json:"createdAt"`
	MeanNDVI        *float64       `json:"meanNdvi"`
	Raster          *raster.Raster `json:"-"`
	ID              int64          `json:"id"`
	FullID          int64          `json:"fullId"`
	AOIID           int64          `json:"aoiId"`
}

// PairKey identifies a (scene, AOI) clip.
type PairKey struct {
	FullID int64
	AOIID  int64
}
