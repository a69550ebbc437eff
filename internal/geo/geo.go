// Package geo translates "where the user tapped" into a notion of
// correctness: polygon adjacency, point distance, and label anchors.
package geo

import (
	"log"
	"math"
	"strconv"

	"mapquiz-service/internal/domain"
)

// circumference of the earth in meters, used by the equirectangular
// approximation below.
const circumference = 40000000

// DistanceBetween returns the distance between two points in meters, roughly.
// It converts lat/lng differences to meters against a fixed circumference and
// combines them flat-earth Pythagorean style. Not geodesically exact;
// acceptable at city scale.
func DistanceBetween(p1, p2 domain.LngLat) float64 {
	lngDiff := math.Abs(p2[0] - p1[0])
	latDiff := math.Abs(p2[1] - p1[1])

	latDiffMeters := latDiff / 360 * circumference
	lngDiffMeters := lngDiff / 360 * circumference

	return math.Sqrt(latDiffMeters*latDiffMeters + lngDiffMeters*lngDiffMeters)
}

// AreNeighbors reports whether two polygons share a boundary point, i.e. are
// therefore neighbors. Points are compared by their string serialization, so
// this only detects borders whose coordinate rings align exactly. That is a
// known approximation of "shares a border", kept cheap on purpose: features
// can have thousands of points, so pairwise geometric tests would be millions
// of combinations.
func AreNeighbors(a, b domain.Geometry) bool {
	bKeys := make(map[string]struct{})
	for _, ring := range b.Rings {
		for _, coord := range ring {
			if key, ok := coordKey(coord); ok {
				bKeys[key] = struct{}{}
			}
		}
	}

	for _, ring := range a.Rings {
		for _, coord := range ring {
			if key, ok := coordKey(coord); ok {
				if _, shared := bKeys[key]; shared {
					return true
				}
			}
		}
	}
	return false
}

// TopPoint returns the northernmost boundary vertex of a polygon, used as a
// label/popup anchor. Returns false for degenerate geometry; malformed
// vertices are logged and skipped, never fatal.
func TopPoint(g domain.Geometry) (domain.LngLat, bool) {
	var top domain.LngLat
	found := false

	for _, ring := range g.Rings {
		for _, coord := range ring {
			if len(coord) != 2 {
				log.Printf("geo: expected a two-number coordinate, got %v", coord)
				continue
			}
			if !found || coord[1] > top[1] {
				top = domain.LngLat{coord[0], coord[1]}
				found = true
			}
		}
	}
	return top, found
}

func coordKey(coord []float64) (string, bool) {
	if len(coord) != 2 {
		return "", false
	}
	return strconv.FormatFloat(coord[0], 'g', -1, 64) + "-" +
		strconv.FormatFloat(coord[1], 'g', -1, 64), true
}
