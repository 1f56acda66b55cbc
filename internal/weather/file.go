package weather

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"
)

var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
}

// WriteSiteFile writes observations as a raw weather file: a time column in
// RFC 3339 UTC followed by one column per variable.
func WriteSiteFile(w io.Writer, observations []Observation) error {
	cw := csv.NewWriter(w)
	header := append([]string{"time"}, Variables[:]...)
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	row := make([]string, len(header))
	for _, o := range observations {
		row[0] = o.Time.UTC().Format(time.RFC3339)
		for i, v := range o.Values {
			if math.IsNaN(v) {
				row[i+1] = ""
			} else {
				row[i+1] = strconv.FormatFloat(v, 'f', -1, 64)
			}
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadResult holds the rows read from a raw weather file.
type ReadResult struct {
	Observations []Observation
	// Dropped counts rows with an unparsable time or any missing variable.
	Dropped int
}

// ReadSiteFile reads a raw weather file. Lines before the header row (an
// exporter preamble) are skipped and unit suffixes in headers are ignored.
// Rows that are not complete are dropped.
func ReadSiteFile(r io.Reader, siteCode string) (ReadResult, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	var (
		timeCol = -1
		cols    [NumVariables]int
	)
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return ReadResult{}, ErrMissingTimeColumn
		}
		if err != nil {
			return ReadResult{}, fmt.Errorf("read header: %w", err)
		}
		if timeCol = headerColumns(row, &cols); timeCol >= 0 {
			break
		}
	}

	var result ReadResult
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return result, fmt.Errorf("read row: %w", err)
		}

		o, ok := parseRow(row, timeCol, &cols)
		if !ok {
			result.Dropped++
			continue
		}
		o.SiteCode = siteCode
		result.Observations = append(result.Observations, o)
	}
	return result, nil
}

func headerColumns(row []string, cols *[NumVariables]int) int {
	timeCol := -1
	for i := range cols {
		cols[i] = -1
	}
	for i, name := range row {
		clean := CleanColumnName(strings.TrimPrefix(name, "\ufeff"))
		if clean == "time" || clean == "date" {
			timeCol = i
			continue
		}
		if idx := VariableIndex(clean); idx >= 0 {
			cols[idx] = i
		}
	}
	return timeCol
}

func parseRow(row []string, timeCol int, cols *[NumVariables]int) (Observation, bool) {
	if timeCol >= len(row) {
		return Observation{}, false
	}
	ts, ok := ParseTime(row[timeCol])
	if !ok {
		return Observation{}, false
	}

	o := Observation{Time: ts}
	for i, col := range cols {
		if col < 0 || col >= len(row) {
			return Observation{}, false
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(row[col]), 64)
		if err != nil || math.IsNaN(v) {
			return Observation{}, false
		}
		o.Values[i] = v
	}
	return o, true
}

// ParseTime parses a weather timestamp: ISO 8601 with or without offset, or
// unix seconds. Values without an offset are UTC.
func ParseTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range timeLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t.UTC(), true
		}
	}
	if secs, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(secs, 0).UTC(), true
	}
	return time.Time{}, false
}
