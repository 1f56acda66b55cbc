// Package geomatch pairs every point of one set with its nearest neighbour
// in another set by great-circle distance.
package geomatch

import (
	"errors"

	"github.com/londonair/airdataset/pkg/geo"
)

// Matching errors.
var (
	ErrNoCandidates = errors.New("no candidate points to match against")
)

// Point is a located item that needs a nearest neighbour.
type Point struct {
	ID  string
	Lat float64
	Lon float64
}

// Candidate is a located item that can be chosen as a nearest neighbour.
type Candidate struct {
	ID  string
	Lat float64
	Lon float64

	// Attrs carries arbitrary descriptive fields (e.g. road type) through the match.
	Attrs map[string]string
}

// Match is the nearest candidate found for a point.
type Match struct {
	PointID    string
	Candidate  Candidate
	DistanceKm float64
}

// Matcher finds the nearest candidate for every point.
type Matcher interface {
	Match(points []Point, candidates []Candidate) ([]Match, error)
}

func (p Point) coordinate() geo.Coordinate {
	return geo.Coordinate{Lat: p.Lat, Lon: p.Lon}
}

func (c Candidate) coordinate() geo.Coordinate {
	return geo.Coordinate{Lat: c.Lat, Lon: c.Lon}
}

// CleanPoints drops points with missing coordinates.
func CleanPoints(points []Point) []Point {
	out := make([]Point, 0, len(points))
	for _, p := range points {
		if p.coordinate().Valid() {
			out = append(out, p)
		}
	}
	return out
}

// CleanCandidates drops candidates with missing coordinates and keeps the
// first occurrence of every ID.
func CleanCandidates(candidates []Candidate) []Candidate {
	seen := make(map[string]struct{}, len(candidates))
	out := make([]Candidate, 0, len(candidates))
	for _, c := range candidates {
		if !c.coordinate().Valid() {
			continue
		}
		if _, dup := seen[c.ID]; dup {
			continue
		}
		seen[c.ID] = struct{}{}
		out = append(out, c)
	}
	return out
}
