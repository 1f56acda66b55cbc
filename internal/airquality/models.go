// Package airquality models monitoring sites, their pollutant availability
// and the hourly measurements fetched for them.
package airquality

import (
	"errors"
	"time"
)

// Site and measurement errors.
var (
	ErrSiteNotFound    = errors.New("site not found")
	ErrInvalidDate     = errors.New("invalid date")
	ErrMissingSpecies  = errors.New("site lacks a required species")
	ErrInvertedOverlap = errors.New("species windows do not intersect")
)

// DateLayout is the timestamp layout used by the monitoring network API and
// by the selected-sites table.
const DateLayout = "2006-01-02 15:04:05"

// Species is a short pollutant code as used by the remote API.
type Species string

const (
	SpeciesNO2  Species = "NO2"
	SpeciesPM25 Species = "PM25"
)

// Pollutant pairs a human readable pollutant name with its API species code.
type Pollutant struct {
	Name    string
	Species Species
}

// DefaultPollutants are the series fetched for every selected site.
var DefaultPollutants = []Pollutant{
	{Name: "NO2", Species: SpeciesNO2},
	{Name: "PM2.5", Species: SpeciesPM25},
}

// SpeciesRange is the raw availability interval of one species at a site as
// reported by the site-metadata listing. End is empty while measurement is ongoing.
type SpeciesRange struct {
	Species Species
	Start   string
	End     string
}

// MonitoringSite represents a fixed-location monitoring station.
type MonitoringSite struct {
	Code       string
	Name       string
	Lat        float64
	Lon        float64
	DateOpened time.Time
	DateClosed *time.Time
	Species    []SpeciesRange
}

// Range returns the availability interval for a species, if listed.
func (s *MonitoringSite) Range(species Species) (SpeciesRange, bool) {
	for _, r := range s.Species {
		if r.Species == species {
			return r, true
		}
	}
	return SpeciesRange{}, false
}

// HasSpecies reports whether the site lists a start date for every species.
func (s *MonitoringSite) HasSpecies(species ...Species) bool {
	for _, sp := range species {
		r, ok := s.Range(sp)
		if !ok || r.Start == "" {
			return false
		}
	}
	return true
}

// SpeciesWindow is a parsed availability interval.
type SpeciesWindow struct {
	Start time.Time
	End   time.Time
}

// Window is an inclusive range of whole UTC days used as a fetch unit.
type Window struct {
	Start time.Time
	End   time.Time
}

// Days returns the number of days covered, counting both ends.
func (w Window) Days() int {
	return int(w.End.Sub(w.Start).Hours()/24) + 1
}

// OverlapRecord is the intersection of two species windows at a site.
type OverlapRecord struct {
	SiteCode     string
	SiteName     string
	Lat          float64
	Lon          float64
	OverlapStart time.Time
	OverlapEnd   time.Time
	OverlapYears float64
}

// RawMeasurement is a single hourly reading extracted from a time-series response.
type RawMeasurement struct {
	SiteCode      string
	SiteName      string
	PollutantName string
	SeriesCode    Species
	Timestamp     time.Time
	Value         float64
}

// Key identifies a measurement for deduplication.
func (m RawMeasurement) Key() MeasurementKey {
	return MeasurementKey{
		SiteCode:      m.SiteCode,
		PollutantName: m.PollutantName,
		Timestamp:     m.Timestamp.UnixMilli(),
	}
}

// MeasurementKey is the natural key of a RawMeasurement.
type MeasurementKey struct {
	SiteCode      string
	PollutantName string
	Timestamp     int64
}

// ParseDate parses API dates, accepting both full timestamps and bare dates.
// Values are interpreted as UTC.
func ParseDate(value string) (time.Time, error) {
	for _, layout := range []string{DateLayout, "2006-01-02"} {
		if t, err := time.ParseInLocation(layout, value, time.UTC); err == nil {
			return t, nil
		}
	}
	return time.Time{}, ErrInvalidDate
}
