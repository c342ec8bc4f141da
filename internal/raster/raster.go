// Package raster implements the single-band NDVI raster used by every tier
// of the pipeline: validation, georeferencing, polygon clipping, the masked
// mean statistic and the binary payload codec.
package raster

import (
	"errors"
	"fmt"
	"math"

	"github.com/paulmach/orb"
)

// Supported spatial references.
const (
	SRIDWGS84       = 4326
	SRIDWebMercator = 3857
)

// ErrInvalidRaster is returned for rasters missing nodata, spatial reference
// or consistent dimensions.
var ErrInvalidRaster = errors.New("invalid raster")

// GeoTransform is the GDAL affine transform of a north-up raster:
//
//	x = gt[0] + col*gt[1]
//	y = gt[3] + row*gt[5]
//
// gt[2] and gt[4] (rotation) must be zero.
type GeoTransform [6]float64

// Raster is a single-band float32 raster stored row-major.
type Raster struct {
	Width     int
	Height    int
	Transform GeoTransform
	SRID      int
	NoData    *float64
	Values    []float32
}

// New allocates a raster filled with its nodata value.
func New(width, height int, gt GeoTransform, srid int, nodata float64) *Raster {
	values := make([]float32, width*height)
	for i := range values {
		values[i] = float32(nodata)
	}
	nd := nodata
	return &Raster{
		Width:     width,
		Height:    height,
		Transform: gt,
		SRID:      srid,
		NoData:    &nd,
		Values:    values,
	}
}

// Validate checks the invariants every stored raster must satisfy.
func (r *Raster) Validate() error {
	if r == nil {
		return fmt.Errorf("%w: raster is missing", ErrInvalidRaster)
	}
	if r.Width <= 0 || r.Height <= 0 {
		return fmt.Errorf("%w: dimensions %dx%d must be positive", ErrInvalidRaster, r.Width, r.Height)
	}
	if len(r.Values) != r.Width*r.Height {
		return fmt.Errorf("%w: expected %d values for %dx%d, got %d",
			ErrInvalidRaster, r.Width*r.Height, r.Width, r.Height, len(r.Values))
	}
	if r.NoData == nil {
		return fmt.Errorf("%w: nodata value is required", ErrInvalidRaster)
	}
	if r.SRID == 0 {
		return fmt.Errorf("%w: spatial reference is required", ErrInvalidRaster)
	}
	if r.SRID != SRIDWGS84 && r.SRID != SRIDWebMercator {
		return fmt.Errorf("%w: unsupported spatial reference EPSG:%d", ErrInvalidRaster, r.SRID)
	}
	gt := r.Transform
	for _, v := range gt {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: geotransform has non-finite terms", ErrInvalidRaster)
		}
	}
	if gt[2] != 0 || gt[4] != 0 {
		return fmt.Errorf("%w: rotated rasters are not supported", ErrInvalidRaster)
	}
	if gt[1] <= 0 || gt[5] >= 0 {
		return fmt.Errorf("%w: raster must be north-up with positive pixel size", ErrInvalidRaster)
	}
	return nil
}

// At returns the value at (col, row).
func (r *Raster) At(col, row int) float32 {
	return r.Values[row*r.Width+col]
}

// Set writes v at (col, row).
func (r *Raster) Set(col, row int, v float32) {
	r.Values[row*r.Width+col] = v
}

// IsNoData reports whether v is the nodata value or not a finite number.
func (r *Raster) IsNoData(v float32) bool {
	f := float64(v)
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return true
	}
	return r.NoData != nil && float32(*r.NoData) == v
}

// PixelCenter returns the native-CRS coordinate of the center of (col, row).
func (r *Raster) PixelCenter(col, row int) orb.Point {
	gt := r.Transform
	return orb.Point{
		gt[0] + (float64(col)+0.5)*gt[1],
		gt[3] + (float64(row)+0.5)*gt[5],
	}
}

// NativeBound returns the raster extent in its own CRS.
func (r *Raster) NativeBound() orb.Bound {
	gt := r.Transform
	return orb.Bound{
		Min: orb.Point{gt[0], gt[3] + float64(r.Height)*gt[5]},
		Max: orb.Point{gt[0] + float64(r.Width)*gt[1], gt[3]},
	}
}

// Footprint returns the raster extent in EPSG:4326. Both supported CRSs map
// axis-aligned boxes onto axis-aligned boxes, so the corners are enough.
func (r *Raster) Footprint() (orb.Bound, error) {
	if err := r.Validate(); err != nil {
		return orb.Bound{}, err
	}
	b := r.NativeBound()
	return orb.Bound{Min: r.ToWGS84(b.Min), Max: r.ToWGS84(b.Max)}, nil
}

// ToWGS84 converts a point from the raster CRS to lon/lat.
func (r *Raster) ToWGS84(p orb.Point) orb.Point {
	if r.SRID == SRIDWebMercator {
		return MercatorToLonLat(p)
	}
	return p
}

// FromWGS84 converts a lon/lat point into the raster CRS.
func (r *Raster) FromWGS84(p orb.Point) orb.Point {
	if r.SRID == SRIDWebMercator {
		return LonLatToMercator(p)
	}
	return p
}

// Mean returns the arithmetic mean of all valid pixels, or nil when there
// are none.
func Mean(r *Raster) *float64 {
	if r == nil {
		return nil
	}
	var sum float64
	var n int
	for _, v := range r.Values {
		if r.IsNoData(v) {
			continue
		}
		sum += float64(v)
		n++
	}
	if n == 0 {
		return nil
	}
	mean := sum / float64(n)
	return &mean
}

// ValidCount returns the number of pixels holding data.
func ValidCount(r *Raster) int {
	n := 0
	for _, v := range r.Values {
		if !r.IsNoData(v) {
			n++
		}
	}
	return n
}

// Clone returns a deep copy of r.
func (r *Raster) Clone() *Raster {
	if r == nil {
		return nil
	}
	out := *r
	if r.NoData != nil {
		nd := *r.NoData
		out.NoData = &nd
	}
	out.Values = append([]float32(nil), r.Values...)
	return &out
}
