// Package geo provides great-circle distance helpers for WGS84 coordinates.
package geo

import "math"

// EarthRadiusKm is the mean Earth radius used for all distance calculations.
const EarthRadiusKm = 6371.0

// Coordinate represents a geographic point with latitude and longitude in degrees.
type Coordinate struct {
	Lat float64
	Lon float64
}

// Valid reports whether both components are finite numbers.
func (c Coordinate) Valid() bool {
	return !math.IsNaN(c.Lat) && !math.IsNaN(c.Lon) &&
		!math.IsInf(c.Lat, 0) && !math.IsInf(c.Lon, 0)
}

// HaversineKm returns the great-circle distance between two points in kilometers.
//
//	a = sin²(Δlat/2) + cos(lat1)·cos(lat2)·sin²(Δlon/2)
//	d = 2·R·asin(√a)
func HaversineKm(lat1, lon1, lat2, lon2 float64) float64 {
	lat1Rad := toRadians(lat1)
	lat2Rad := toRadians(lat2)
	deltaLat := toRadians(lat2 - lat1)
	deltaLon := toRadians(lon2 - lon1)

	sinLat := math.Sin(deltaLat / 2)
	sinLon := math.Sin(deltaLon / 2)
	a := sinLat*sinLat + math.Cos(lat1Rad)*math.Cos(lat2Rad)*sinLon*sinLon

	// Rounding can push a marginally above 1 for antipodal points.
	if a > 1 {
		a = 1
	}

	return 2 * EarthRadiusKm * math.Asin(math.Sqrt(a))
}

// Distance returns the great-circle distance between two coordinates in kilometers.
func Distance(a, b Coordinate) float64 {
	return HaversineKm(a.Lat, a.Lon, b.Lat, b.Lon)
}

// DistanceMatrix returns the |from|×|to| matrix of distances in kilometers.
func DistanceMatrix(from, to []Coordinate) [][]float64 {
	matrix := make([][]float64, len(from))
	for i, a := range from {
		row := make([]float64, len(to))
		for j, b := range to {
			row[j] = Distance(a, b)
		}
		matrix[i] = row
	}
	return matrix
}

// ArgMin returns the index of the first minimum in row, or -1 for an empty row.
func ArgMin(row []float64) int {
	best := -1
	for i, v := range row {
		if best == -1 || v < row[best] {
			best = i
		}
	}
	return best
}

// DegreesLatFor converts a north-south distance in kilometers to degrees of latitude.
func DegreesLatFor(km float64) float64 {
	return km / EarthRadiusKm * 180 / math.Pi
}

func toRadians(deg float64) float64 {
	return deg * math.Pi / 180
}
