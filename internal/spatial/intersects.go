package spatial

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// IntersectsBound reports whether the multipolygon and the axis-aligned box
// share at least one point. The box is usually a scene footprint.
func IntersectsBound(mp orb.MultiPolygon, b orb.Bound) bool {
	if !mp.Bound().Intersects(b) {
		return false
	}

	// A polygon vertex inside the box.
	for _, poly := range mp {
		for _, ring := range poly {
			for _, p := range ring {
				if b.Contains(p) {
					return true
				}
			}
		}
	}

	// A box corner inside the polygon (box fully covered by the AOI).
	corners := [4]orb.Point{
		b.Min,
		{b.Max[0], b.Min[1]},
		b.Max,
		{b.Min[0], b.Max[1]},
	}
	for _, c := range corners {
		if planar.MultiPolygonContains(mp, c) {
			return true
		}
	}

	// Edges crossing without any vertex containment.
	for _, poly := range mp {
		for _, ring := range poly {
			for i := 0; i < len(ring)-1; i++ {
				for k := 0; k < 4; k++ {
					if segmentsIntersect(ring[i], ring[i+1], corners[k], corners[(k+1)%4]) {
						return true
					}
				}
			}
		}
	}

	return false
}
