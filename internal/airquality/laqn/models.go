package laqn

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/londonair/airdataset/internal/airquality"
)

// API response types (from the LAQN API). Attribute names carry an "@" prefix
// and any collection may arrive as a single object.

type sitesResponse struct {
	Sites struct {
		Site json.RawMessage `json:"Site"`
	} `json:"Sites"`
}

type siteData struct {
	SiteCode   string          `json:"@SiteCode"`
	SiteName   string          `json:"@SiteName"`
	Latitude   flexString      `json:"@Latitude"`
	Longitude  flexString      `json:"@Longitude"`
	DateOpened string          `json:"@DateOpened"`
	DateClosed string          `json:"@DateClosed"`
	Species    json.RawMessage `json:"Species"`
}

type speciesData struct {
	SpeciesCode string `json:"@SpeciesCode"`
	Started     string `json:"@DateMeasurementStarted"`
	Finished    string `json:"@DateMeasurementFinished"`
}

type seriesResponse struct {
	RawAQData *struct {
		Data json.RawMessage `json:"Data"`
	} `json:"RawAQData"`
}

type dataPoint struct {
	MeasurementDateGMT flexString `json:"@MeasurementDateGMT"`
	Value              flexString `json:"@Value"`
}

// flexString accepts a JSON string, number or null.
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	*f = flexString(data)
	return nil
}

// toSite converts API site data to a domain MonitoringSite.
func (s *siteData) toSite() *airquality.MonitoringSite {
	site := &airquality.MonitoringSite{
		Code: s.SiteCode,
		Name: s.SiteName,
		Lat:  parseCoordinate(string(s.Latitude)),
		Lon:  parseCoordinate(string(s.Longitude)),
	}
	if t, err := airquality.ParseDate(s.DateOpened); err == nil {
		site.DateOpened = t
	}
	if t, err := airquality.ParseDate(s.DateClosed); err == nil {
		site.DateClosed = &t
	}

	raw, _ := oneOrMany(s.Species)
	for _, item := range raw {
		var sp speciesData
		if err := json.Unmarshal(item, &sp); err != nil || sp.SpeciesCode == "" {
			continue
		}
		site.Species = append(site.Species, airquality.SpeciesRange{
			Species: airquality.Species(sp.SpeciesCode),
			Start:   sp.Started,
			End:     sp.Finished,
		})
	}
	return site
}

func parseCoordinate(v string) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return math.NaN()
	}
	return f
}

// oneOrMany normalises a value that is either an object or a list of objects.
func oneOrMany(raw json.RawMessage) ([]json.RawMessage, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}
	if trimmed[0] == '[' {
		var items []json.RawMessage
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return nil, err
		}
		return items, nil
	}
	return []json.RawMessage{trimmed}, nil
}
