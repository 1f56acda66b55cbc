package traffic_test

import (
	"bytes"
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/londonair/airdataset/internal/airquality"
	"github.com/londonair/airdataset/internal/geomatch"
	"github.com/londonair/airdataset/internal/traffic"
)

func TestReadCountPoints(t *testing.T) {
	input := "count_point_id,direction_of_travel,year,road_type,latitude,longitude\n" +
		"6012,N,2019,Major,51.5225,-0.1550\n" +
		"6012,S,2019,Major,51.5225,-0.1550\n" +
		"7011,E,2019,Minor,,-0.20\n" +
		",W,2019,Minor,51.4,-0.1\n"

	points, err := traffic.ReadCountPoints(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, points, 3)
	assert.Equal(t, "6012", points[0].ID)
	assert.Equal(t, "Major", points[0].RoadType)
	assert.Equal(t, 2019, points[0].Year)
	assert.True(t, math.IsNaN(points[2].Lat))
}

func TestReadCountPoints_MissingColumn(t *testing.T) {
	_, err := traffic.ReadCountPoints(strings.NewReader("count_point_id,latitude\n1,51\n"))
	assert.True(t, errors.Is(err, traffic.ErrMissingColumn))
}

func TestReadAADF_AveragesDuplicates(t *testing.T) {
	input := "year,count_point_id,all_motor_vehicles,road_type\n" +
		"2019,6012,1000,Major\n" +
		"2019,6012,2000,Major\n" +
		"2020,6012,900,Major\n" +
		"2020,7011,,Minor\n" +
		"bad,7011,10,Minor\n"

	rows, err := traffic.ReadAADF(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, rows, 3)

	index := traffic.NewAADFIndex(rows)
	assert.Equal(t, 2, index.Len())

	v, ok := index.Lookup("6012", 2019)
	require.True(t, ok)
	assert.Equal(t, 1500.0, v)

	v, ok = index.Lookup("6012", 2020)
	require.True(t, ok)
	assert.Equal(t, 900.0, v)

	_, ok = index.Lookup("7011", 2020)
	assert.False(t, ok)
}

func TestMatches_WriteRead(t *testing.T) {
	matches := []traffic.SiteMatch{{
		SiteCode:     "MY1",
		SiteName:     "Westminster - Marylebone Road",
		SiteLat:      51.52254,
		SiteLon:      -0.15459,
		CountPointID: "6012",
		PointLat:     51.5225,
		PointLon:     -0.155,
		DistanceKm:   0.0289,
		RoadType:     "Major",
	}}

	var buf bytes.Buffer
	require.NoError(t, traffic.WriteMatches(&buf, matches))
	assert.True(t, strings.HasPrefix(buf.String(),
		"site_code,site_name,laqn_lat,laqn_lon,nearest_count_point_id,dft_lat,dft_lon,distance_km,road_type\n"))

	got, err := traffic.ReadMatches(&buf)
	require.NoError(t, err)
	assert.Equal(t, matches, got)
}

func TestMatchSites(t *testing.T) {
	sites := []airquality.OverlapRecord{
		{SiteCode: "MY1", SiteName: "Marylebone Road", Lat: 51.52254, Lon: -0.15459},
		{SiteCode: "KC1", SiteName: "North Kensington", Lat: 51.52105, Lon: -0.21349},
		{SiteCode: "XX1", SiteName: "No coordinates", Lat: math.NaN(), Lon: math.NaN()},
	}
	points := []traffic.CountPoint{
		{ID: "A", Lat: 51.5225, Lon: -0.1550, RoadType: "Major"},
		{ID: "A", Lat: 10, Lon: 10, RoadType: "Minor"},
		{ID: "B", Lat: 51.5200, Lon: -0.2140, RoadType: "Minor"},
	}

	for name, matcher := range map[string]geomatch.Matcher{
		"brute":   geomatch.NewBruteForceMatcher(),
		"indexed": geomatch.NewIndexedMatcher(),
	} {
		t.Run(name, func(t *testing.T) {
			matches, err := traffic.MatchSites(sites, points, matcher)
			require.NoError(t, err)
			require.Len(t, matches, 2)

			assert.Equal(t, "MY1", matches[0].SiteCode)
			assert.Equal(t, "Marylebone Road", matches[0].SiteName)
			assert.Equal(t, "A", matches[0].CountPointID)
			assert.Equal(t, "Major", matches[0].RoadType, "first occurrence of a duplicate id wins")
			assert.Less(t, matches[0].DistanceKm, 0.1)

			assert.Equal(t, "KC1", matches[1].SiteCode)
			assert.Equal(t, "B", matches[1].CountPointID)
			assert.Equal(t, "Minor", matches[1].RoadType)
		})
	}
}

func TestMatchSites_NoPoints(t *testing.T) {
	sites := []airquality.OverlapRecord{{SiteCode: "MY1", Lat: 51.5, Lon: -0.1}}

	_, err := traffic.MatchSites(sites, nil, geomatch.NewBruteForceMatcher())
	assert.ErrorIs(t, err, geomatch.ErrNoCandidates)
}
