package models

import (
	"database/sql/driver"
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/stwalsh4118/canopy/internal/spatial"
)

// SRIDWGS84 is the spatial reference of every stored AOI geometry.
const SRIDWGS84 = 4326

// geometryTolerance is the coordinate tolerance used when comparing a
// submitted AOI with the stored one.
const geometryTolerance = 1e-9

// MultiPolygon represents a PostGIS MultiPolygon geometry in EPSG:4326.
// It reads and writes GeoJSON, which is what ST_AsGeoJSON returns and
// ST_GeomFromGeoJSON accepts. A GeoJSON Polygon is promoted to a
// single-member MultiPolygon; any other geometry type is rejected.
type MultiPolygon struct {
	Coordinates orb.MultiPolygon
	SRID        int
}

// NewMultiPolygon wraps mp as an EPSG:4326 geometry.
func NewMultiPolygon(mp orb.MultiPolygon) MultiPolygon {
	return MultiPolygon{Coordinates: mp, SRID: SRIDWGS84}
}

// Scan implements sql.Scanner for the output of ST_AsGeoJSON.
func (mp *MultiPolygon) Scan(value interface{}) error {
	if value == nil {
		return nil
	}

	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("failed to scan MultiPolygon: expected []byte, got %T", value)
	}

	return mp.UnmarshalJSON(data)
}

// Value implements driver.Valuer. It returns a GeoJSON string to be used
// with ST_GeomFromGeoJSON in raw SQL queries.
func (mp MultiPolygon) Value() (driver.Value, error) {
	if len(mp.Coordinates) == 0 {
		return nil, nil
	}

	data, err := mp.MarshalJSON()
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

// MarshalJSON implements json.Marshaler.
func (mp MultiPolygon) MarshalJSON() ([]byte, error) {
	data, err := geojson.NewGeometry(mp.Coordinates).MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("failed to marshal multipolygon to GeoJSON: %w", err)
	}
	return data, nil
}

// UnmarshalJSON implements json.Unmarshaler for GeoJSON geometry objects.
func (mp *MultiPolygon) UnmarshalJSON(data []byte) error {
	g, err := geojson.UnmarshalGeometry(data)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidGeometry, err)
	}

	switch geom := g.Geometry().(type) {
	case orb.MultiPolygon:
		mp.Coordinates = geom
	case orb.Polygon:
		mp.Coordinates = orb.MultiPolygon{geom}
	default:
		return fmt.Errorf("%w: expected Polygon or MultiPolygon, got %s", ErrInvalidGeometry, g.Type)
	}
	mp.SRID = SRIDWGS84

	return nil
}

// Validate checks the geometry is usable as an AOI.
func (mp MultiPolygon) Validate() error {
	if mp.SRID != 0 && mp.SRID != SRIDWGS84 {
		return fmt.Errorf("%w: unsupported spatial reference EPSG:%d", ErrInvalidGeometry, mp.SRID)
	}
	return spatial.ValidateMultiPolygon(mp.Coordinates)
}

// Bound returns the bounding box of the geometry.
func (mp MultiPolygon) Bound() orb.Bound {
	return mp.Coordinates.Bound()
}

// Equal reports whether both geometries have the same rings within the
// comparison tolerance.
func (mp MultiPolygon) Equal(other MultiPolygon) bool {
	return spatial.EqualWithin(mp.Coordinates, other.Coordinates, geometryTolerance)
}
