package raster

import (
	"math"

	"github.com/paulmach/orb"
)

const (
	earthRadius = 6378137.0
	// maxMercatorLat is the latitude at which spherical mercator is square.
	maxMercatorLat = 85.05112877980659
)

// LonLatToMercator projects EPSG:4326 to EPSG:3857.
func LonLatToMercator(p orb.Point) orb.Point {
	lat := math.Max(-maxMercatorLat, math.Min(maxMercatorLat, p[1]))
	x := earthRadius * p[0] * math.Pi / 180
	y := earthRadius * math.Log(math.Tan(math.Pi/4+lat*math.Pi/360))
	return orb.Point{x, y}
}

// MercatorToLonLat inverts LonLatToMercator.
func MercatorToLonLat(p orb.Point) orb.Point {
	lon := p[0] / earthRadius * 180 / math.Pi
	lat := (2*math.Atan(math.Exp(p[1]/earthRadius)) - math.Pi/2) * 180 / math.Pi
	return orb.Point{lon, lat}
}
