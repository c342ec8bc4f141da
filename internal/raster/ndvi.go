package raster

import (
	"fmt"
	"math"
)

// Landsat Collection 2 Level-2 surface reflectance scaling.
const (
	LandsatScale  = 0.0000275
	LandsatOffset = -0.2
)

// NDVINoData is the nodata value written by ComputeNDVI.
const NDVINoData = -9999.0

// ComputeNDVI derives NDVI = (nir - red) / (nir + red) from Landsat red (B4)
// and near-infrared (B5) digital numbers. Pixels that are nodata in either
// band, or whose ratio is undefined, become NDVINoData.
func ComputeNDVI(red, nir *Raster) (*Raster, error) {
	if err := red.Validate(); err != nil {
		return nil, fmt.Errorf("red band: %w", err)
	}
	if err := nir.Validate(); err != nil {
		return nil, fmt.Errorf("nir band: %w", err)
	}
	if red.Width != nir.Width || red.Height != nir.Height ||
		red.Transform != nir.Transform || red.SRID != nir.SRID {
		return nil, fmt.Errorf("%w: red and nir bands are not on the same grid", ErrInvalidRaster)
	}

	out := New(red.Width, red.Height, red.Transform, red.SRID, NDVINoData)
	for i := range out.Values {
		rv, nv := red.Values[i], nir.Values[i]
		if red.IsNoData(rv) || nir.IsNoData(nv) {
			continue
		}
		r := float64(rv)*LandsatScale + LandsatOffset
		n := float64(nv)*LandsatScale + LandsatOffset
		ndvi := (n - r) / (n + r)
		if math.IsNaN(ndvi) || math.IsInf(ndvi, 0) {
			continue
		}
		out.Values[i] = float32(ndvi)
	}
	return out, nil
}
