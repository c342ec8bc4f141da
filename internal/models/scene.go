package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/paulmach/orb"
	"github.com/stwalsh4118/canopy/internal/raster"
)

// FullScene is an ingested full-extent NDVI scene. Listing queries leave
// Raster nil; only single-scene reads decode the payload.
type FullScene struct {
	AcquisitionDate time.Time      `json:"acquisitionDate"`
	CreatedAt       time.Time      `json:"createdAt"`
	CloudCover      *float64       `json:"cloudCover,omitempty"`
	Raster          *raster.Raster `json:"-"`
	SceneID         string         `json:"sceneId"`
	Sensor          string         `json:"sensor"`
	Footprint       orb.Bound      `json:"-"`
	ID              int64          `json:"id"`
}

// SceneInput is the caller-supplied data for one ingestion. Either NDVI or
// both Red and NIR must be set. Sensor and AcquisitionDate are derived from
// a Landsat product id when omitted.
type SceneInput struct {
	AcquisitionDate time.Time
	CloudCover      *float64
	NDVI            *raster.Raster
	Red             *raster.Raster
	NIR             *raster.Raster
	SceneID         string
	Sensor          string
}

// ParseLandsatSceneID extracts the sensor and acquisition date from a
// Landsat Collection 2 product id such as
// LC08_L2SP_025039_20230615_20230620_02_T1.
func ParseLandsatSceneID(sceneID string) (string, time.Time, error) {
	parts := strings.Split(sceneID, "_")
	if len(parts) < 4 {
		return "", time.Time{}, fmt.Errorf("%w: %q is not a Landsat product id", ErrInvalidInput, sceneID)
	}

	date, err := time.Parse("20060102", parts[3])
	if err != nil {
		return "", time.Time{}, fmt.Errorf("%w: bad acquisition date in %q: %v", ErrInvalidInput, sceneID, err)
	}

	return parts[0], date, nil
}
