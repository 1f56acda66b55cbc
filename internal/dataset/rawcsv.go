package dataset

import (
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/londonair/airdataset/internal/airquality"
)

var rawHeader = []string{"site_code", "site_name", "pollutant_name", "series_code", "timestamp", "value"}

// WriteRawCSV writes raw measurements as delimited text.
func WriteRawCSV(w io.Writer, records []airquality.RawMeasurement) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(rawHeader); err != nil {
		return err
	}
	row := make([]string, len(rawHeader))
	for _, m := range records {
		row[0] = m.SiteCode
		row[1] = m.SiteName
		row[2] = m.PollutantName
		row[3] = string(m.SeriesCode)
		row[4] = m.Timestamp.UTC().Format(time.RFC3339)
		row[5] = strconv.FormatFloat(m.Value, 'f', -1, 64)
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ExportRawCSV writes the delimited-text copy of every part in dir to path.
func ExportRawCSV(dir, path string) (int, error) {
	records, err := ReadParts(dir)
	if err != nil {
		return 0, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return 0, err
	}
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return 0, err
	}
	if err := WriteRawCSV(f, records); err != nil {
		f.Close()
		os.Remove(tmp)
		return 0, err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return 0, err
	}
	return len(records), os.Rename(tmp, path)
}
