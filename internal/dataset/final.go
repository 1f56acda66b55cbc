package dataset

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"

	"github.com/londonair/airdataset/internal/weather"
)

// ColumnKind is the storage type of a final-table column.
type ColumnKind int

const (
	KindString ColumnKind = iota
	KindTimestamp
	KindInt
	KindFloat
	// KindOptionalFloat may hold no value.
	KindOptionalFloat
)

// Column describes one column of the final table.
type Column struct {
	Name  string
	Kind  ColumnKind
	value func(*ModelRow) any
}

// Table is the model-ready table: rows plus their column layout. The
// one-hot columns depend on the categories present in the rows.
type Table struct {
	Columns []Column
	Rows    []ModelRow
}

// NewTable lays out rows as the final table.
func NewTable(rows []ModelRow) *Table {
	cols := []Column{
		{Name: "site_code", Kind: KindString, value: func(r *ModelRow) any { return r.SiteCode }},
		{Name: "timestamp", Kind: KindTimestamp, value: func(r *ModelRow) any { return r.Timestamp.UnixMilli() }},
		{Name: ColumnNO2, Kind: KindOptionalFloat, value: func(r *ModelRow) any { return optional(r.NO2) }},
		{Name: ColumnPM25, Kind: KindOptionalFloat, value: func(r *ModelRow) any { return optional(r.PM25) }},
	}
	for i, name := range weather.Variables {
		cols = append(cols, Column{Name: name, Kind: KindFloat, value: func(r *ModelRow) any { return r.Weather[i] }})
	}
	cols = append(cols,
		Column{Name: "road_type", Kind: KindString, value: func(r *ModelRow) any { return r.RoadType }},
		Column{Name: "aadf_vehicle_count", Kind: KindFloat, value: func(r *ModelRow) any { return r.AADF }},
		intColumn("hour", func(f *Features) int { return f.Hour }),
		intColumn("day_of_week", func(f *Features) int { return f.DayOfWeek }),
		intColumn("month", func(f *Features) int { return f.Month }),
		intColumn("year", func(f *Features) int { return f.Year }),
		intColumn("day_of_year", func(f *Features) int { return f.DayOfYear }),
		intColumn("is_weekend", func(f *Features) int { return boolInt(f.IsWeekend) }),
		intColumn("is_holiday", func(f *Features) int { return boolInt(f.IsHoliday) }),
		intColumn("is_rush_hour", func(f *Features) int { return boolInt(f.IsRushHour) }),
		floatColumn("hour_sin", func(f *Features) float64 { return f.HourSin }),
		floatColumn("hour_cos", func(f *Features) float64 { return f.HourCos }),
		floatColumn("month_sin", func(f *Features) float64 { return f.MonthSin }),
		floatColumn("month_cos", func(f *Features) float64 { return f.MonthCos }),
		floatColumn("day_of_week_sin", func(f *Features) float64 { return f.DayOfWeekSin }),
		floatColumn("day_of_week_cos", func(f *Features) float64 { return f.DayOfWeekCos }),
		floatColumn("day_of_year_sin", func(f *Features) float64 { return f.DayOfYearSin }),
		floatColumn("day_of_year_cos", func(f *Features) float64 { return f.DayOfYearCos }),
	)

	cols = append(cols, weatherCodeColumns(rows)...)
	cols = append(cols, roadTypeColumns(rows)...)
	return &Table{Columns: cols, Rows: rows}
}

// ColumnNames returns the column names in order.
func (t *Table) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	return names
}

// Value returns the value of column c in row i: string, int64, int32,
// float64 or nil for a missing optional value.
func (t *Table) Value(i, c int) any {
	return t.Columns[c].value(&t.Rows[i])
}

func intColumn(name string, get func(*Features) int) Column {
	return Column{Name: name, Kind: KindInt, value: func(r *ModelRow) any { return int32(get(&r.Features)) }}
}

func floatColumn(name string, get func(*Features) float64) Column {
	return Column{Name: name, Kind: KindFloat, value: func(r *ModelRow) any { return get(&r.Features) }}
}

func optional(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// weatherCodeColumns one-hot encodes the weather code, ordered by code.
func weatherCodeColumns(rows []ModelRow) []Column {
	seen := map[int]bool{}
	for i := range rows {
		seen[int(math.Round(rows[i].Weather[weather.WeatherCode]))] = true
	}
	codes := make([]int, 0, len(seen))
	for c := range seen {
		codes = append(codes, c)
	}
	sort.Ints(codes)

	cols := make([]Column, 0, len(codes))
	for _, code := range codes {
		cols = append(cols, Column{
			Name: fmt.Sprintf("weather_code_%d", code),
			Kind: KindInt,
			value: func(r *ModelRow) any {
				return int32(boolInt(int(math.Round(r.Weather[weather.WeatherCode])) == code))
			},
		})
	}
	return cols
}

// roadTypeColumns one-hot encodes the road type, ordered by name.
// Rows without a road type are zero in every column.
func roadTypeColumns(rows []ModelRow) []Column {
	seen := map[string]bool{}
	for i := range rows {
		if rows[i].RoadType != "" {
			seen[rows[i].RoadType] = true
		}
	}
	types := make([]string, 0, len(seen))
	for t := range seen {
		types = append(types, t)
	}
	sort.Strings(types)

	cols := make([]Column, 0, len(types))
	for _, rt := range types {
		cols = append(cols, Column{
			Name:  "road_type_" + columnSlug(rt),
			Kind:  KindInt,
			value: func(r *ModelRow) any { return int32(boolInt(r.RoadType == rt)) },
		})
	}
	return cols
}

func columnSlug(s string) string {
	return strings.ToLower(strings.NewReplacer(" ", "_", "/", "_", "-", "_").Replace(strings.TrimSpace(s)))
}

func (k ColumnKind) parquetTag(name string) string {
	switch k {
	case KindString:
		return "name=" + name + ", type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"
	case KindTimestamp:
		return "name=" + name + ", type=INT64, convertedtype=TIMESTAMP_MILLIS"
	case KindInt:
		return "name=" + name + ", type=INT32"
	case KindOptionalFloat:
		return "name=" + name + ", type=DOUBLE, repetitiontype=OPTIONAL"
	default:
		return "name=" + name + ", type=DOUBLE"
	}
}

// WriteParquet writes the table to path with a schema built from its columns.
func (t *Table) WriteParquet(path string) (err error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	md := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		md[i] = c.Kind.parquetTag(c.Name)
	}

	tmp := path + ".tmp"
	fw, err := local.NewLocalFileWriter(tmp)
	if err != nil {
		return fmt.Errorf("create %s: %w", tmp, err)
	}
	defer func() {
		if err != nil {
			os.Remove(tmp)
		}
	}()

	pw, err := writer.NewCSVWriter(md, fw, parquetParallelism)
	if err != nil {
		fw.Close()
		return fmt.Errorf("create parquet writer: %w", err)
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	rec := make([]any, len(t.Columns))
	for i := range t.Rows {
		for c := range t.Columns {
			rec[c] = t.Value(i, c)
		}
		if err := pw.Write(rec); err != nil {
			fw.Close()
			return fmt.Errorf("write row %d: %w", i, err)
		}
		rec = make([]any, len(t.Columns))
	}
	if err := stopWriter(pw.WriteStop); err != nil {
		fw.Close()
		return err
	}
	if err := fw.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// WriteCSV writes the table as delimited text with a header row. Timestamps
// are RFC 3339 UTC and missing values are empty.
func (t *Table) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(t.ColumnNames()); err != nil {
		return err
	}
	row := make([]string, len(t.Columns))
	for i := range t.Rows {
		for c, col := range t.Columns {
			row[c] = formatCell(col.Kind, t.Value(i, c))
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func formatCell(kind ColumnKind, v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case int32:
		return strconv.Itoa(int(x))
	case int64:
		if kind == KindTimestamp {
			return time.UnixMilli(x).UTC().Format(time.RFC3339)
		}
		return strconv.FormatInt(x, 10)
	case float64:
		if math.IsNaN(x) {
			return ""
		}
		return strconv.FormatFloat(x, 'f', -1, 64)
	default:
		return fmt.Sprint(x)
	}
}

// WriteCSVFile writes the delimited-text copy of the table through a
// temporary file.
func (t *Table) WriteCSVFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if err := t.WriteCSV(f); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}
