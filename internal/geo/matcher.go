package geo

import (
	"errors"
	"math"
)

// earthRadiusKm is the mean Earth radius used for all great-circle distances.
const earthRadiusKm = 6371.0088

// minSegmentKm collapses sub-metre segments to a point for the projection
// step; their length still counts toward the cumulative offset.
const minSegmentKm = 0.001

// ErrPolylineTooShort is returned when a polyline has fewer than two points.
var ErrPolylineTooShort = errors.New("polyline must contain at least two points")

// Match is the result of snapping a point to a polyline: the nearest point on
// the line and its arc-length offset in kilometers from the polyline origin.
type Match struct {
	Lng      float64
	Lat      float64
	OffsetKm float64
}

// HaversineKm returns the great-circle distance between two coordinates.
func HaversineKm(lat1, lng1, lat2, lng2 float64) float64 {
	dLat := (lat2 - lat1) * math.Pi / 180
	dLng := (lng2 - lng1) * math.Pi / 180
	la1 := lat1 * math.Pi / 180
	la2 := lat2 * math.Pi / 180
	a := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(la1)*math.Cos(la2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusKm * c
}

// PolylineLengthKm returns the total arc length of a polyline in kilometers.
func PolylineLengthKm(coords [][]float64) float64 {
	total := 0.0
	for i := 0; i < len(coords)-1; i++ {
		total += HaversineKm(coords[i][1], coords[i][0], coords[i+1][1], coords[i+1][0])
	}
	return total
}

// SnapToPolyline projects a (lng,lat) query point onto the polyline and
// returns the nearest on-line point with its arc-length offset. Coordinates
// are (lng,lat) pairs. The projection is planar within each segment; ties
// between segments resolve to the earliest segment index.
func SnapToPolyline(coords [][]float64, lng, lat float64) (Match, error) {
	if len(coords) < 2 {
		return Match{}, ErrPolylineTooShort
	}

	best := Match{Lng: coords[0][0], Lat: coords[0][1]}
	bestDist := math.MaxFloat64
	cumKm := 0.0

	for i := 0; i < len(coords)-1; i++ {
		p1 := coords[i]
		p2 := coords[i+1]
		segKm := HaversineKm(p1[1], p1[0], p2[1], p2[0])

		var foot [2]float64
		var footOffset float64
		if segKm < minSegmentKm {
			// Degenerate segment: treat as a point.
			foot = [2]float64{p1[0], p1[1]}
			footOffset = cumKm
		} else {
			// Planar projection in a local kilometer frame anchored at p1.
			kx := math.Cos(p1[1]*math.Pi/180) * math.Pi / 180 * earthRadiusKm
			ky := math.Pi / 180 * earthRadiusKm
			vx := (p2[0] - p1[0]) * kx
			vy := (p2[1] - p1[1]) * ky
			wx := (lng - p1[0]) * kx
			wy := (lat - p1[1]) * ky
			t := (wx*vx + wy*vy) / (vx*vx + vy*vy)
			if t < 0 {
				t = 0
			} else if t > 1 {
				t = 1
			}
			foot = [2]float64{p1[0] + t*(p2[0]-p1[0]), p1[1] + t*(p2[1]-p1[1])}
			footOffset = cumKm + t*segKm
		}

		dist := HaversineKm(lat, lng, foot[1], foot[0])
		if dist < bestDist {
			bestDist = dist
			best = Match{Lng: foot[0], Lat: foot[1], OffsetKm: footOffset}
		}
		cumKm += segKm
	}

	return best, nil
}
