package models

import "time"

// VisualizationRaster is the styled rendering of one clip, stored as PNG.
type VisualizationRaster struct {
	AcquisitionDate time.Time `json:"acquisitionDate"`
	CreatedAt       time.Time `json:"createdAt"`
	Style           string    `json:"style"`
	Image           []byte    `json:"-"`
	ID              int64     `json:"id"`
	ClippedID       int64     `json:"clippedId"`
	AOIID           int64     `json:"aoiId"`
}
