package raster

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// ErrNoOverlap is returned when the AOI lies entirely outside the raster.
var ErrNoOverlap = errors.New("aoi does not overlap raster")

// ClipResult is the masked window of a source raster.
type ClipResult struct {
	Raster      *Raster
	Mean        *float64
	ValidPixels int
}

// Clip crops src to the bounding window of aoi (lon/lat) and sets every
// pixel whose center is outside aoi to nodata. Mean is nil when no valid
// pixel remains; that is a result, not an error. An AOI that only touches
// the raster edge yields a one-pixel-wide all-nodata window. ctx is checked
// once per row so a cancelled clip returns promptly without a partial result.
func Clip(ctx context.Context, src *Raster, aoi orb.MultiPolygon) (*ClipResult, error) {
	if err := src.Validate(); err != nil {
		return nil, err
	}
	if len(aoi) == 0 {
		return nil, fmt.Errorf("%w: aoi is empty", ErrNoOverlap)
	}

	footprint, err := src.Footprint()
	if err != nil {
		return nil, err
	}
	ab := aoi.Bound()
	if !footprint.Intersects(ab) {
		return nil, ErrNoOverlap
	}

	lo := src.FromWGS84(ab.Min)
	hi := src.FromWGS84(ab.Max)
	gt := src.Transform

	colMin := int(math.Floor((lo[0] - gt[0]) / gt[1]))
	colMax := int(math.Ceil((hi[0]-gt[0])/gt[1])) - 1
	rowMin := int(math.Floor((hi[1] - gt[3]) / gt[5]))
	rowMax := int(math.Ceil((lo[1]-gt[3])/gt[5])) - 1

	// Keep at least one pixel so edge contact still produces a window.
	colMin = clampInt(colMin, 0, src.Width-1)
	colMax = clampInt(colMax, colMin, src.Width-1)
	rowMin = clampInt(rowMin, 0, src.Height-1)
	rowMax = clampInt(rowMax, rowMin, src.Height-1)

	window := GeoTransform{
		gt[0] + float64(colMin)*gt[1], gt[1], 0,
		gt[3] + float64(rowMin)*gt[5], 0, gt[5],
	}
	out := New(colMax-colMin+1, rowMax-rowMin+1, window, src.SRID, *src.NoData)

	for row := 0; row < out.Height; row++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for col := 0; col < out.Width; col++ {
			v := src.At(colMin+col, rowMin+row)
			if src.IsNoData(v) {
				continue
			}
			center := src.ToWGS84(src.PixelCenter(colMin+col, rowMin+row))
			if planar.MultiPolygonContains(aoi, center) {
				out.Set(col, row, v)
			}
		}
	}

	return &ClipResult{
		Raster:      out,
		Mean:        Mean(out),
		ValidPixels: ValidCount(out),
	}, nil
}

func clampInt(v, lo, hi int) int {
	return max(lo, min(v, hi))
}
