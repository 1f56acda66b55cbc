package laqn

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/londonair/airdataset/internal/airquality"
)

// ExtractRecords converts a time-series payload into measurements.
//
// Only invalid JSON is an error. A payload without the expected structure
// yields no records, a single data object is treated as a one-element list,
// and points lacking a timestamp or a numeric value are dropped.
func ExtractRecords(payload []byte, siteCode, siteName string, pollutant airquality.Pollutant) ([]airquality.RawMeasurement, error) {
	var resp seriesResponse
	if err := json.Unmarshal(payload, &resp); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if resp.RawAQData == nil {
		return nil, nil
	}

	points, err := oneOrMany(resp.RawAQData.Data)
	if err != nil {
		return nil, nil
	}

	records := make([]airquality.RawMeasurement, 0, len(points))
	for _, raw := range points {
		var p dataPoint
		if err := json.Unmarshal(raw, &p); err != nil {
			continue
		}
		ts := strings.TrimSpace(string(p.MeasurementDateGMT))
		val := strings.TrimSpace(string(p.Value))
		if ts == "" || val == "" {
			continue
		}
		timestamp, err := airquality.ParseDate(ts)
		if err != nil {
			continue
		}
		value, err := strconv.ParseFloat(val, 64)
		if err != nil || math.IsNaN(value) || math.IsInf(value, 0) {
			continue
		}
		records = append(records, airquality.RawMeasurement{
			SiteCode:      siteCode,
			SiteName:      siteName,
			PollutantName: pollutant.Name,
			SeriesCode:    pollutant.Species,
			Timestamp:     timestamp,
			Value:         value,
		})
	}
	return records, nil
}
