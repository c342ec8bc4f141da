// Package spatial holds the polygon checks and the in-memory spatial index
// used for AOI geometry (EPSG:4326, lon/lat order).
package spatial

import (
	"errors"
	"fmt"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// ErrInvalidGeometry is returned when an AOI geometry is not a valid
// simple polygon or multipolygon.
var ErrInvalidGeometry = errors.New("invalid geometry")

// minRingPoints is the smallest closed ring: three distinct vertices plus
// the closing point.
const minRingPoints = 4

// WGS84 coordinate limits.
const (
	MinLongitude = -180.0
	MaxLongitude = 180.0
	MinLatitude  = -90.0
	MaxLatitude  = 90.0
)

// ValidateMultiPolygon checks that mp is a non-empty multipolygon whose
// rings are closed, inside WGS84 bounds, have non-zero area and do not
// cross themselves. Holes must lie inside their shell without touching it
// or each other, and member polygons must not touch or overlap.
func ValidateMultiPolygon(mp orb.MultiPolygon) error {
	if len(mp) == 0 {
		return fmt.Errorf("%w: multipolygon has no polygons", ErrInvalidGeometry)
	}

	polys := make([]orb.Polygon, len(mp))
	for i, poly := range mp {
		if len(poly) == 0 {
			return fmt.Errorf("%w: polygon %d has no rings", ErrInvalidGeometry, i)
		}
		clean := make(orb.Polygon, len(poly))
		for j, ring := range poly {
			if err := validateRing(ring); err != nil {
				return fmt.Errorf("%w: polygon %d ring %d: %v", ErrInvalidGeometry, i, j, err)
			}
			clean[j] = dedupe(ring)
		}
		if err := validateHoles(clean); err != nil {
			return fmt.Errorf("%w: polygon %d: %v", ErrInvalidGeometry, i, err)
		}
		polys[i] = clean
	}

	for i := range polys {
		for j := i + 1; j < len(polys); j++ {
			if polygonsOverlap(polys[i], polys[j]) {
				return fmt.Errorf("%w: polygons %d and %d overlap or touch", ErrInvalidGeometry, i, j)
			}
		}
	}

	return nil
}

// validateHoles checks the rings of one polygon against each other. Rings
// that share no boundary point are either nested or disjoint, so one vertex
// decides containment.
func validateHoles(poly orb.Polygon) error {
	shell := poly[0]
	for h := 1; h < len(poly); h++ {
		hole := poly[h]
		if ringsTouch(shell, hole) {
			return fmt.Errorf("hole %d touches or crosses the shell", h)
		}
		if !planar.RingContains(shell, hole[0]) {
			return fmt.Errorf("hole %d is outside the shell", h)
		}
		for k := 1; k < h; k++ {
			other := poly[k]
			if ringsTouch(hole, other) {
				return fmt.Errorf("holes %d and %d touch or cross", k, h)
			}
			if planar.RingContains(other, hole[0]) || planar.RingContains(hole, other[0]) {
				return fmt.Errorf("holes %d and %d are nested", k, h)
			}
		}
	}
	return nil
}

// polygonsOverlap reports whether two valid polygons share any point. A
// polygon sitting inside the other's hole does not overlap it.
func polygonsOverlap(a, b orb.Polygon) bool {
	for _, ra := range a {
		for _, rb := range b {
			if ringsTouch(ra, rb) {
				return true
			}
		}
	}
	return planar.PolygonContains(a, b[0][0]) || planar.PolygonContains(b, a[0][0])
}

// ringsTouch reports whether any edge of a touches or crosses any edge of b.
func ringsTouch(a, b orb.Ring) bool {
	ab, bb := a.Bound(), b.Bound()
	if !ab.Intersects(bb) {
		return false
	}
	for i := 0; i < len(a)-1; i++ {
		for j := 0; j < len(b)-1; j++ {
			if segmentsIntersect(a[i], a[i+1], b[j], b[j+1]) {
				return true
			}
		}
	}
	return false
}

func validateRing(ring orb.Ring) error {
	if len(ring) < minRingPoints {
		return fmt.Errorf("ring has %d points, need at least %d", len(ring), minRingPoints)
	}
	if ring[0] != ring[len(ring)-1] {
		return errors.New("ring is not closed")
	}

	for _, p := range ring {
		if math.IsNaN(p[0]) || math.IsNaN(p[1]) || math.IsInf(p[0], 0) || math.IsInf(p[1], 0) {
			return errors.New("ring has non-finite coordinates")
		}
		if p[0] < MinLongitude || p[0] > MaxLongitude || p[1] < MinLatitude || p[1] > MaxLatitude {
			return fmt.Errorf("coordinate [%g, %g] is outside EPSG:4326 bounds", p[0], p[1])
		}
	}

	pts := dedupe(ring)
	if len(pts) < minRingPoints {
		return errors.New("ring has fewer than three distinct vertices")
	}
	if ringArea(pts) == 0 {
		return errors.New("ring has zero area")
	}
	if selfIntersects(pts) {
		return errors.New("ring is self-intersecting")
	}

	return nil
}

// dedupe drops consecutive repeated vertices. The closing point is kept.
func dedupe(ring orb.Ring) orb.Ring {
	out := make(orb.Ring, 0, len(ring))
	for i, p := range ring {
		if i > 0 && p == out[len(out)-1] {
			continue
		}
		out = append(out, p)
	}
	return out
}

// ringArea returns the absolute shoelace area of a closed ring.
func ringArea(ring orb.Ring) float64 {
	var sum float64
	for i := 0; i < len(ring)-1; i++ {
		sum += ring[i][0]*ring[i+1][1] - ring[i+1][0]*ring[i][1]
	}
	return math.Abs(sum) / 2
}

// selfIntersects reports whether any two non-adjacent edges of a closed
// ring touch or cross.
func selfIntersects(ring orb.Ring) bool {
	n := len(ring) - 1 // number of edges
	for i := 0; i < n; i++ {
		for j := i + 2; j < n; j++ {
			if i == 0 && j == n-1 {
				continue // first and last edge share the closing vertex
			}
			if segmentsIntersect(ring[i], ring[i+1], ring[j], ring[j+1]) {
				return true
			}
		}
	}
	return false
}

func orientation(a, b, c orb.Point) int {
	v := (b[1]-a[1])*(c[0]-b[0]) - (b[0]-a[0])*(c[1]-b[1])
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	default:
		return 0
	}
}

// onSegment assumes a, b, c are collinear.
func onSegment(a, b, c orb.Point) bool {
	return math.Min(a[0], c[0]) <= b[0] && b[0] <= math.Max(a[0], c[0]) &&
		math.Min(a[1], c[1]) <= b[1] && b[1] <= math.Max(a[1], c[1])
}

func segmentsIntersect(p1, p2, q1, q2 orb.Point) bool {
	o1 := orientation(p1, p2, q1)
	o2 := orientation(p1, p2, q2)
	o3 := orientation(q1, q2, p1)
	o4 := orientation(q1, q2, p2)

	if o1 != o2 && o3 != o4 {
		return true
	}

	switch {
	case o1 == 0 && onSegment(p1, q1, p2):
		return true
	case o2 == 0 && onSegment(p1, q2, p2):
		return true
	case o3 == 0 && onSegment(q1, p1, q2):
		return true
	case o4 == 0 && onSegment(q1, p2, q2):
		return true
	}
	return false
}

// EqualWithin reports whether two multipolygons have the same structure and
// every vertex pair differs by at most eps in each axis. Geometry read back
// from PostGIS goes through a decimal GeoJSON encoding, so exact comparison
// is too strict.
func EqualWithin(a, b orb.MultiPolygon, eps float64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if len(a[i]) != len(b[i]) {
			return false
		}
		for j := range a[i] {
			if len(a[i][j]) != len(b[i][j]) {
				return false
			}
			for k := range a[i][j] {
				pa, pb := a[i][j][k], b[i][j][k]
				if math.Abs(pa[0]-pb[0]) > eps || math.Abs(pa[1]-pb[1]) > eps {
					return false
				}
			}
		}
	}
	return true
}
