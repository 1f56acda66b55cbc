package geo_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/londonair/airdataset/pkg/geo"
)

func TestHaversineKm_SamePoint(t *testing.T) {
	assert.Equal(t, 0.0, geo.HaversineKm(51.5, -0.12, 51.5, -0.12))
}

func TestHaversineKm_LondonParis(t *testing.T) {
	d := geo.HaversineKm(51.5, -0.12, 48.85, 2.35)
	assert.InDelta(t, 344.0, d, 2.0)
}

func TestHaversineKm_Symmetric(t *testing.T) {
	a := geo.HaversineKm(51.52, -0.10, 51.45, -0.30)
	b := geo.HaversineKm(51.45, -0.30, 51.52, -0.10)
	assert.InDelta(t, a, b, 1e-9)
}

func TestHaversineKm_Antipodal(t *testing.T) {
	d := geo.HaversineKm(0, 0, 0, 180)
	assert.InDelta(t, math.Pi*geo.EarthRadiusKm, d, 1e-6)
}

func TestDistanceMatrix(t *testing.T) {
	from := []geo.Coordinate{{Lat: 51.5, Lon: -0.1}, {Lat: 51.4, Lon: -0.2}}
	to := []geo.Coordinate{{Lat: 51.5, Lon: -0.1}, {Lat: 51.6, Lon: 0.0}, {Lat: 51.4, Lon: -0.2}}

	m := geo.DistanceMatrix(from, to)
	assert.Len(t, m, 2)
	assert.Len(t, m[0], 3)
	assert.Equal(t, 0.0, m[0][0])
	assert.Equal(t, 0.0, m[1][2])
	assert.Equal(t, 0, geo.ArgMin(m[0]))
	assert.Equal(t, 2, geo.ArgMin(m[1]))
}

func TestArgMin(t *testing.T) {
	tests := []struct {
		name string
		row  []float64
		want int
	}{
		{name: "empty", row: nil, want: -1},
		{name: "single", row: []float64{3}, want: 0},
		{name: "first minimum wins", row: []float64{2, 1, 1, 5}, want: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, geo.ArgMin(tt.row))
		})
	}
}

func TestCoordinate_Valid(t *testing.T) {
	assert.True(t, geo.Coordinate{Lat: 51.5, Lon: -0.1}.Valid())
	assert.False(t, geo.Coordinate{Lat: math.NaN(), Lon: -0.1}.Valid())
	assert.False(t, geo.Coordinate{Lat: 51.5, Lon: math.Inf(1)}.Valid())
}
