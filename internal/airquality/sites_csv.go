package airquality

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
)

var selectedSitesHeader = []string{
	"site_code", "site_name", "latitude", "longitude",
	"overlap_start", "overlap_end", "overlap_years",
}

// WriteSelectedSites writes overlap records as the selected-sites table.
func WriteSelectedSites(w io.Writer, records []OverlapRecord) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(selectedSitesHeader); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, r := range records {
		row := []string{
			r.SiteCode,
			r.SiteName,
			strconv.FormatFloat(r.Lat, 'f', -1, 64),
			strconv.FormatFloat(r.Lon, 'f', -1, 64),
			r.OverlapStart.Format(DateLayout),
			r.OverlapEnd.Format(DateLayout),
			strconv.FormatFloat(r.OverlapYears, 'f', 2, 64),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write site %s: %w", r.SiteCode, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadSelectedSites reads the selected-sites table.
func ReadSelectedSites(r io.Reader) ([]OverlapRecord, error) {
	cr := csv.NewReader(r)
	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	idx := make(map[string]int, len(header))
	for i, name := range header {
		idx[name] = i
	}
	for _, required := range selectedSitesHeader {
		if _, ok := idx[required]; !ok {
			return nil, fmt.Errorf("selected sites: missing column %q", required)
		}
	}

	var records []OverlapRecord
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row: %w", err)
		}

		record := OverlapRecord{
			SiteCode: row[idx["site_code"]],
			SiteName: row[idx["site_name"]],
		}
		if record.Lat, err = strconv.ParseFloat(row[idx["latitude"]], 64); err != nil {
			return nil, fmt.Errorf("site %s latitude: %w", record.SiteCode, err)
		}
		if record.Lon, err = strconv.ParseFloat(row[idx["longitude"]], 64); err != nil {
			return nil, fmt.Errorf("site %s longitude: %w", record.SiteCode, err)
		}
		if record.OverlapStart, err = ParseDate(row[idx["overlap_start"]]); err != nil {
			return nil, fmt.Errorf("site %s overlap_start: %w", record.SiteCode, err)
		}
		if record.OverlapEnd, err = ParseDate(row[idx["overlap_end"]]); err != nil {
			return nil, fmt.Errorf("site %s overlap_end: %w", record.SiteCode, err)
		}
		if record.OverlapYears, err = strconv.ParseFloat(row[idx["overlap_years"]], 64); err != nil {
			return nil, fmt.Errorf("site %s overlap_years: %w", record.SiteCode, err)
		}
		records = append(records, record)
	}
	return records, nil
}
