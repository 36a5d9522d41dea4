package terrain

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

const (
	earthRadiusM = 6371000.0

	// Approximate ground distance of one grid step. Longitude convergence is ignored.
	gridCellM = 111000 * 0.01
)

// GridOffsets are the degree offsets used to build the 3x3 elevation sample.
var GridOffsets = [3]float64{-0.01, 0, 0.01}

// GridPoints returns the 9 sample points around (lat, lon), latitude offset outer and
// longitude offset inner, so index 4 is always the center.
func GridPoints(lat, lon float64) []Point {
	pts := make([]Point, 0, 9)
	for _, dy := range GridOffsets {
		for _, dx := range GridOffsets {
			pts = append(pts, Point{Lat: lat + dy, Lon: lon + dx})
		}
	}
	return pts
}

// HaversineMeters returns the great-circle distance between two coordinates.
func HaversineMeters(lat1, lon1, lat2, lon2 float64) float64 {
	dLat := toRad(lat2 - lat1)
	dLon := toRad(lon2 - lon1)
	a := math.Pow(math.Sin(dLat/2), 2) +
		math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*math.Pow(math.Sin(dLon/2), 2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusM * c
}

// MeanSlopeDeg estimates slope in degrees from a 3x3 elevation grid as the mean
// inclination between the center and each of its 8 neighbors.
func MeanSlopeDeg(grid []float64) float64 {
	if len(grid) < 9 {
		return 0
	}
	center := grid[4]
	slopes := make([]float64, 0, 8)
	for i, z := range grid[:9] {
		if i == 4 {
			continue
		}
		dz := math.Abs(z - center)
		slopes = append(slopes, math.Atan2(dz, gridCellM)*180/math.Pi)
	}
	return stat.Mean(slopes, nil)
}

func toRad(deg float64) float64 {
	return deg * math.Pi / 180
}
