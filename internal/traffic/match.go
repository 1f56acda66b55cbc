package traffic

import (
	"fmt"

	"github.com/londonair/airdataset/internal/airquality"
	"github.com/londonair/airdataset/internal/geomatch"
)

const attrRoadType = "road_type"

// MatchSites pairs every selected site with its nearest count point.
// Sites with missing coordinates are left out; an empty point set is an error.
func MatchSites(sites []airquality.OverlapRecord, points []CountPoint, matcher geomatch.Matcher) ([]SiteMatch, error) {
	queries := make([]geomatch.Point, len(sites))
	byCode := make(map[string]airquality.OverlapRecord, len(sites))
	for i, s := range sites {
		queries[i] = geomatch.Point{ID: s.SiteCode, Lat: s.Lat, Lon: s.Lon}
		byCode[s.SiteCode] = s
	}

	candidates := make([]geomatch.Candidate, len(points))
	for i, p := range points {
		candidates[i] = geomatch.Candidate{
			ID:    p.ID,
			Lat:   p.Lat,
			Lon:   p.Lon,
			Attrs: map[string]string{attrRoadType: p.RoadType},
		}
	}

	found, err := matcher.Match(queries, candidates)
	if err != nil {
		return nil, fmt.Errorf("match sites to count points: %w", err)
	}

	matches := make([]SiteMatch, 0, len(found))
	for _, m := range found {
		site := byCode[m.PointID]
		matches = append(matches, SiteMatch{
			SiteCode:     site.SiteCode,
			SiteName:     site.SiteName,
			SiteLat:      site.Lat,
			SiteLon:      site.Lon,
			CountPointID: m.Candidate.ID,
			PointLat:     m.Candidate.Lat,
			PointLon:     m.Candidate.Lon,
			DistanceKm:   m.DistanceKm,
			RoadType:     m.Candidate.Attrs[attrRoadType],
		})
	}
	return matches, nil
}
