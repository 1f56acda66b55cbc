package geomatch

import (
	"math"

	"github.com/dhconnelly/rtreego"

	"github.com/londonair/airdataset/pkg/geo"
)

const (
	pointTolerance = 1e-9
	searchSlackDeg = 1e-7
)

// IndexedMatcher answers nearest-neighbour queries through an R-tree over
// (lat, lon). The tree only proposes candidates; the winner is always chosen
// by haversine distance, with ties going to the earliest candidate, so
// results are identical to BruteForceMatcher.
type IndexedMatcher struct {
	minChildren int
	maxChildren int
}

// NewIndexedMatcher creates a new IndexedMatcher.
func NewIndexedMatcher() *IndexedMatcher {
	return &IndexedMatcher{minChildren: 25, maxChildren: 50}
}

type indexedCandidate struct {
	order     int
	candidate Candidate
	location  rtreego.Point
}

func (c *indexedCandidate) Bounds() rtreego.Rect {
	return c.location.ToRect(pointTolerance)
}

// Match returns one match per valid point.
func (m *IndexedMatcher) Match(points []Point, candidates []Candidate) ([]Match, error) {
	points = CleanPoints(points)
	candidates = CleanCandidates(candidates)
	if len(candidates) == 0 {
		return nil, ErrNoCandidates
	}

	tree := rtreego.NewTree(2, m.minChildren, m.maxChildren)
	for i, c := range candidates {
		tree.Insert(&indexedCandidate{
			order:     i,
			candidate: c,
			location:  rtreego.Point{c.Lat, c.Lon},
		})
	}

	brute := NewBruteForceMatcher()
	matches := make([]Match, 0, len(points))
	for _, p := range points {
		match, ok := m.nearest(tree, p)
		if !ok {
			// Search window crosses a pole or the antimeridian.
			fallback, err := brute.Match([]Point{p}, candidates)
			if err != nil {
				return nil, err
			}
			match = fallback[0]
		}
		matches = append(matches, match)
	}
	return matches, nil
}

// nearest seeds a search radius from the planar nearest neighbour and then
// scans every candidate inside the bounding box of that great-circle radius.
func (m *IndexedMatcher) nearest(tree *rtreego.Rtree, p Point) (Match, bool) {
	seed, ok := tree.NearestNeighbor(rtreego.Point{p.Lat, p.Lon}).(*indexedCandidate)
	if !ok || seed == nil {
		return Match{}, false
	}
	radius := geo.HaversineKm(p.Lat, p.Lon, seed.candidate.Lat, seed.candidate.Lon)

	dLat := geo.DegreesLatFor(radius) + searchSlackDeg
	dLon, ok := longitudeSpan(p.Lat, radius)
	if !ok || math.Abs(p.Lat)+dLat >= 90 || p.Lon-dLon < -180 || p.Lon+dLon > 180 {
		return Match{}, false
	}

	box, err := rtreego.NewRect(
		rtreego.Point{p.Lat - dLat, p.Lon - dLon},
		[]float64{2 * dLat, 2 * dLon},
	)
	if err != nil {
		return Match{}, false
	}

	best := seed
	bestDist := radius
	for _, item := range tree.SearchIntersect(box) {
		c := item.(*indexedCandidate)
		d := geo.HaversineKm(p.Lat, p.Lon, c.candidate.Lat, c.candidate.Lon)
		if d < bestDist || (d == bestDist && c.order < best.order) {
			best = c
			bestDist = d
		}
	}

	return Match{
		PointID:    p.ID,
		Candidate:  best.candidate,
		DistanceKm: bestDist,
	}, true
}

// longitudeSpan returns the half-width in degrees of longitude of the
// smallest box around lat that contains a great-circle disc of radiusKm.
func longitudeSpan(lat, radiusKm float64) (float64, bool) {
	angular := radiusKm / geo.EarthRadiusKm
	ratio := math.Sin(angular) / math.Cos(lat*math.Pi/180)
	if ratio >= 1 || math.IsNaN(ratio) {
		return 0, false
	}
	return math.Asin(ratio)*180/math.Pi + searchSlackDeg, true
}
