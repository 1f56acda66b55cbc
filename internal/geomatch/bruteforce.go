package geomatch

import (
	"github.com/londonair/airdataset/pkg/geo"
)

// BruteForceMatcher computes the full distance matrix and takes the first
// row-wise minimum.
type BruteForceMatcher struct{}

// NewBruteForceMatcher creates a new BruteForceMatcher.
func NewBruteForceMatcher() *BruteForceMatcher {
	return &BruteForceMatcher{}
}

// Match returns one match per valid point.
func (m *BruteForceMatcher) Match(points []Point, candidates []Candidate) ([]Match, error) {
	points = CleanPoints(points)
	candidates = CleanCandidates(candidates)
	if len(candidates) == 0 {
		return nil, ErrNoCandidates
	}

	from := make([]geo.Coordinate, len(points))
	for i, p := range points {
		from[i] = p.coordinate()
	}
	to := make([]geo.Coordinate, len(candidates))
	for i, c := range candidates {
		to[i] = c.coordinate()
	}

	matrix := geo.DistanceMatrix(from, to)

	matches := make([]Match, 0, len(points))
	for i, row := range matrix {
		best := geo.ArgMin(row)
		matches = append(matches, Match{
			PointID:    points[i].ID,
			Candidate:  candidates[best],
			DistanceKm: row[best],
		})
	}
	return matches, nil
}
