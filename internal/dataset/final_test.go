package dataset_test

import (
	"bytes"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/reader"

	"github.com/londonair/airdataset/internal/dataset"
	"github.com/londonair/airdataset/internal/weather"
)

func finalRows(t *testing.T) []dataset.ModelRow {
	t.Helper()
	b := dataset.NewFeatureBuilder(london(t), dataset.DefaultRushHours)

	row := func(site string, ts time.Time, code float64, roadType string, no2 *float64) dataset.ModelRow {
		r := dataset.ModelRow{
			SiteCode:  site,
			Timestamp: ts,
			NO2:       no2,
			PM25:      ptr(12.5),
			RoadType:  roadType,
			AADF:      1500,
			Features:  b.Build(ts),
		}
		r.Weather[weather.WeatherCode] = code
		return r
	}

	ts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	return []dataset.ModelRow{
		row("KC1", ts, 3, "Minor Road", nil),
		row("MY1", ts, 61, "Major", ptr(40)),
		row("BL0", ts, 3, "", ptr(30)),
	}
}

func indexOf(names []string, name string) int {
	for i, n := range names {
		if n == name {
			return i
		}
	}
	return -1
}

func TestNewTable_Columns(t *testing.T) {
	table := dataset.NewTable(finalRows(t))
	names := table.ColumnNames()

	assert.Equal(t, []string{"site_code", "timestamp", "no2", "pm25", "temperature_2m"}, names[:5])
	assert.Equal(t, "aadf_vehicle_count", names[17])
	assert.Equal(t, []string{"weather_code_3", "weather_code_61", "road_type_major", "road_type_minor_road"}, names[len(names)-4:])
	assert.Len(t, names, 38)

	// no road type
	major := indexOf(names, "road_type_major")
	minor := indexOf(names, "road_type_minor_road")
	assert.Equal(t, int32(0), table.Value(2, major))
	assert.Equal(t, int32(0), table.Value(2, minor))
	assert.Equal(t, int32(1), table.Value(0, minor))
	assert.Equal(t, int32(1), table.Value(1, major))

	assert.Equal(t, int32(1), table.Value(1, indexOf(names, "weather_code_61")))
	assert.Equal(t, int32(0), table.Value(1, indexOf(names, "weather_code_3")))

	assert.Nil(t, table.Value(0, indexOf(names, "no2")))
	assert.Equal(t, int32(1), table.Value(0, indexOf(names, "is_holiday")))
	assert.Equal(t, int32(0), table.Value(0, indexOf(names, "day_of_week")))
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).UnixMilli(), table.Value(0, indexOf(names, "timestamp")))
}

func TestTable_WriteCSV(t *testing.T) {
	rows := finalRows(t)
	rows[2].Weather[weather.Temperature] = math.NaN()
	table := dataset.NewTable(rows)

	var buf bytes.Buffer
	require.NoError(t, table.WriteCSV(&buf))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, strings.Join(table.ColumnNames(), ","), lines[0])
	assert.True(t, strings.HasPrefix(lines[1], "KC1,2024-01-01T00:00:00Z,,12.5,0,"), lines[1])
	assert.True(t, strings.HasPrefix(lines[3], "BL0,2024-01-01T00:00:00Z,30,12.5,,"), lines[3])
}

func TestTable_WriteParquet(t *testing.T) {
	table := dataset.NewTable(finalRows(t))
	path := filepath.Join(t.TempDir(), "final", "model_ready_dataset.parquet")

	require.NoError(t, table.WriteParquet(path))

	_, err := os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err))

	fr, err := local.NewLocalFileReader(path)
	require.NoError(t, err)
	defer fr.Close()

	pr, err := reader.NewParquetReader(fr, nil, 1)
	require.NoError(t, err)
	defer pr.ReadStop()

	assert.Equal(t, int64(3), pr.GetNumRows())
	// root element plus one leaf per column
	assert.Len(t, pr.Footer.Schema, len(table.Columns)+1)
}

func TestTable_WriteCSVFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "final.csv")
	require.NoError(t, dataset.NewTable(finalRows(t)).WriteCSVFile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "site_code,timestamp,no2,pm25,"))
}
