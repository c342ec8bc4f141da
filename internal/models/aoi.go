package models

import "time"

// AreaOfInterest is a named polygonal region that scenes are clipped to.
type AreaOfInterest struct {
	CreatedAt time.Time    `json:"createdAt"`
	Name      string       `json:"name"`
	Geom      MultiPolygon `json:"geometry"`
	ID        int64        `json:"id"`
}
