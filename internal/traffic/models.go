// Package traffic loads road traffic count data and links monitoring sites
// to their nearest count point.
package traffic

import (
	"errors"
	"fmt"
)

// Traffic data errors.
var (
	ErrMissingColumn = errors.New("missing column")
)

// CountPoint is a located road traffic count point.
type CountPoint struct {
	ID       string
	Lat      float64
	Lon      float64
	RoadType string
	Year     int
}

// AADF is the annual average daily flow at a count point for one year.
type AADF struct {
	CountPointID     string
	Year             int
	AllMotorVehicles float64
}

// SiteMatch links a monitoring site to its nearest count point.
type SiteMatch struct {
	SiteCode     string
	SiteName     string
	SiteLat      float64
	SiteLon      float64
	CountPointID string
	PointLat     float64
	PointLon     float64
	DistanceKm   float64
	RoadType     string
}

// AADFKey identifies a flow value.
type AADFKey struct {
	CountPointID string
	Year         int
}

// AADFIndex holds one flow per count point and year. Duplicate rows for the
// same key are averaged.
type AADFIndex struct {
	values map[AADFKey]float64
}

// NewAADFIndex builds an index, averaging duplicate keys.
func NewAADFIndex(rows []AADF) *AADFIndex {
	type acc struct {
		sum float64
		n   int
	}
	sums := make(map[AADFKey]*acc, len(rows))
	for _, r := range rows {
		k := AADFKey{CountPointID: r.CountPointID, Year: r.Year}
		a, ok := sums[k]
		if !ok {
			a = &acc{}
			sums[k] = a
		}
		a.sum += r.AllMotorVehicles
		a.n++
	}

	values := make(map[AADFKey]float64, len(sums))
	for k, a := range sums {
		values[k] = a.sum / float64(a.n)
	}
	return &AADFIndex{values: values}
}

// Lookup returns the flow for a count point and year.
func (x *AADFIndex) Lookup(countPointID string, year int) (float64, bool) {
	v, ok := x.values[AADFKey{CountPointID: countPointID, Year: year}]
	return v, ok
}

// Len returns the number of keys.
func (x *AADFIndex) Len() int {
	return len(x.values)
}

func missingColumn(table, name string) error {
	return fmt.Errorf("%s: %w %q", table, ErrMissingColumn, name)
}
