package traffic

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
)

// header maps column names to positions.
type header map[string]int

func readHeader(cr *csv.Reader, table string, required ...string) (header, error) {
	row, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("%s: read header: %w", table, err)
	}
	h := make(header, len(row))
	for i, name := range row {
		h[strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")))] = i
	}
	for _, name := range required {
		if _, ok := h[name]; !ok {
			return nil, missingColumn(table, name)
		}
	}
	return h, nil
}

func (h header) get(row []string, name string) string {
	i, ok := h[name]
	if !ok || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

func (h header) float(row []string, name string) float64 {
	v, err := strconv.ParseFloat(h.get(row, name), 64)
	if err != nil {
		return math.NaN()
	}
	return v
}

func newReader(r io.Reader) *csv.Reader {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.ReuseRecord = true
	return cr
}

// ReadCountPoints reads count point locations from a DfT raw-count or AADF
// export. Rows repeat per count and direction; every row is returned and
// duplicates are resolved by the matcher. Unparsable coordinates become NaN.
func ReadCountPoints(r io.Reader) ([]CountPoint, error) {
	cr := newReader(r)
	h, err := readHeader(cr, "count points", "count_point_id", "latitude", "longitude")
	if err != nil {
		return nil, err
	}

	var points []CountPoint
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("count points: %w", err)
		}
		id := h.get(row, "count_point_id")
		if id == "" {
			continue
		}
		year, _ := strconv.Atoi(h.get(row, "year"))
		points = append(points, CountPoint{
			ID:       id,
			Lat:      h.float(row, "latitude"),
			Lon:      h.float(row, "longitude"),
			RoadType: h.get(row, "road_type"),
			Year:     year,
		})
	}
	return points, nil
}

// ReadAADF reads annual average daily flows. Rows without a year or a numeric
// all_motor_vehicles value are skipped.
func ReadAADF(r io.Reader) ([]AADF, error) {
	cr := newReader(r)
	h, err := readHeader(cr, "aadf", "count_point_id", "year", "all_motor_vehicles")
	if err != nil {
		return nil, err
	}

	var rows []AADF
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("aadf: %w", err)
		}
		id := h.get(row, "count_point_id")
		year, err := strconv.Atoi(h.get(row, "year"))
		if id == "" || err != nil {
			continue
		}
		flow := h.float(row, "all_motor_vehicles")
		if math.IsNaN(flow) {
			continue
		}
		rows = append(rows, AADF{CountPointID: id, Year: year, AllMotorVehicles: flow})
	}
	return rows, nil
}

var matchHeader = []string{
	"site_code", "site_name", "laqn_lat", "laqn_lon",
	"nearest_count_point_id", "dft_lat", "dft_lon", "distance_km", "road_type",
}

// WriteMatches writes the site-to-count-point mapping table.
func WriteMatches(w io.Writer, matches []SiteMatch) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(matchHeader); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, m := range matches {
		row := []string{
			m.SiteCode,
			m.SiteName,
			formatFloat(m.SiteLat),
			formatFloat(m.SiteLon),
			m.CountPointID,
			formatFloat(m.PointLat),
			formatFloat(m.PointLon),
			formatFloat(m.DistanceKm),
			m.RoadType,
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write match %s: %w", m.SiteCode, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadMatches reads the site-to-count-point mapping table.
func ReadMatches(r io.Reader) ([]SiteMatch, error) {
	cr := newReader(r)
	h, err := readHeader(cr, "matched sites", "site_code", "laqn_lat", "laqn_lon", "nearest_count_point_id")
	if err != nil {
		return nil, err
	}

	var matches []SiteMatch
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("matched sites: %w", err)
		}
		matches = append(matches, SiteMatch{
			SiteCode:     h.get(row, "site_code"),
			SiteName:     h.get(row, "site_name"),
			SiteLat:      h.float(row, "laqn_lat"),
			SiteLon:      h.float(row, "laqn_lon"),
			CountPointID: h.get(row, "nearest_count_point_id"),
			PointLat:     h.float(row, "dft_lat"),
			PointLon:     h.float(row, "dft_lon"),
			DistanceKm:   h.float(row, "distance_km"),
			RoadType:     h.get(row, "road_type"),
		})
	}
	return matches, nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
