// Package dataset reads and writes the pipeline's tabular artifacts and
// assembles the model-ready table.
package dataset

import (
	"math"
	"time"

	"github.com/londonair/airdataset/internal/airquality"
	"github.com/londonair/airdataset/internal/weather"
)

// Pollutant columns of the wide table.
const (
	ColumnNO2  = "no2"
	ColumnPM25 = "pm25"
)

// pollutantColumns maps pollutant names to wide-table columns.
var pollutantColumns = map[string]string{
	"NO2":   ColumnNO2,
	"PM2.5": ColumnPM25,
}

// RawRow is a fetched measurement as stored in raw parts.
type RawRow struct {
	SiteCode      string  `parquet:"name=site_code, type=BYTE_ARRAY, convertedtype=UTF8"`
	SiteName      string  `parquet:"name=site_name, type=BYTE_ARRAY, convertedtype=UTF8"`
	PollutantName string  `parquet:"name=pollutant_name, type=BYTE_ARRAY, convertedtype=UTF8"`
	SeriesCode    string  `parquet:"name=series_code, type=BYTE_ARRAY, convertedtype=UTF8"`
	Timestamp     int64   `parquet:"name=timestamp, type=INT64, convertedtype=TIMESTAMP_MILLIS"`
	Value         float64 `parquet:"name=value, type=DOUBLE"`
}

func toRawRow(m airquality.RawMeasurement) RawRow {
	return RawRow{
		SiteCode:      m.SiteCode,
		SiteName:      m.SiteName,
		PollutantName: m.PollutantName,
		SeriesCode:    string(m.SeriesCode),
		Timestamp:     m.Timestamp.UnixMilli(),
		Value:         m.Value,
	}
}

func (r RawRow) measurement() airquality.RawMeasurement {
	return airquality.RawMeasurement{
		SiteCode:      r.SiteCode,
		SiteName:      r.SiteName,
		PollutantName: r.PollutantName,
		SeriesCode:    airquality.Species(r.SeriesCode),
		Timestamp:     time.UnixMilli(r.Timestamp).UTC(),
		Value:         r.Value,
	}
}

// WideRow holds both pollutants of one site and hour. A nil pointer is a
// missing reading.
type WideRow struct {
	SiteCode  string   `parquet:"name=site_code, type=BYTE_ARRAY, convertedtype=UTF8"`
	Timestamp int64    `parquet:"name=timestamp, type=INT64, convertedtype=TIMESTAMP_MILLIS"`
	NO2       *float64 `parquet:"name=no2, type=DOUBLE, repetitiontype=OPTIONAL"`
	PM25      *float64 `parquet:"name=pm25, type=DOUBLE, repetitiontype=OPTIONAL"`
}

// Time returns the row timestamp in UTC.
func (r WideRow) Time() time.Time {
	return time.UnixMilli(r.Timestamp).UTC()
}

// WeatherRow is one hourly weather observation of the combined weather table.
type WeatherRow struct {
	SiteCode           string  `parquet:"name=site_code, type=BYTE_ARRAY, convertedtype=UTF8"`
	Time               int64   `parquet:"name=time, type=INT64, convertedtype=TIMESTAMP_MILLIS"`
	Temperature        float64 `parquet:"name=temperature_2m, type=DOUBLE"`
	RelativeHumidity   float64 `parquet:"name=relative_humidity_2m, type=DOUBLE"`
	DewPoint           float64 `parquet:"name=dew_point_2m, type=DOUBLE"`
	Precipitation      float64 `parquet:"name=precipitation, type=DOUBLE"`
	SnowDepth          float64 `parquet:"name=snow_depth, type=DOUBLE"`
	WeatherCode        float64 `parquet:"name=weather_code, type=DOUBLE"`
	PressureMSL        float64 `parquet:"name=pressure_msl, type=DOUBLE"`
	CloudCover         float64 `parquet:"name=cloud_cover, type=DOUBLE"`
	ShortwaveRadiation float64 `parquet:"name=shortwave_radiation, type=DOUBLE"`
	WindSpeed          float64 `parquet:"name=wind_speed_10m, type=DOUBLE"`
	WindDirection      float64 `parquet:"name=wind_direction_10m, type=DOUBLE"`
	WindGusts          float64 `parquet:"name=wind_gusts_10m, type=DOUBLE"`
}

func toWeatherRow(o weather.Observation) WeatherRow {
	v := o.Values
	return WeatherRow{
		SiteCode:           o.SiteCode,
		Time:               o.Time.UnixMilli(),
		Temperature:        v[weather.Temperature],
		RelativeHumidity:   v[weather.RelativeHumidity],
		DewPoint:           v[weather.DewPoint],
		Precipitation:      v[weather.Precipitation],
		SnowDepth:          v[weather.SnowDepth],
		WeatherCode:        v[weather.WeatherCode],
		PressureMSL:        v[weather.PressureMSL],
		CloudCover:         v[weather.CloudCover],
		ShortwaveRadiation: v[weather.ShortwaveRadiation],
		WindSpeed:          v[weather.WindSpeed],
		WindDirection:      v[weather.WindDirection],
		WindGusts:          v[weather.WindGusts],
	}
}

// Values returns the variables in weather.Variables order.
func (r WeatherRow) Values() [weather.NumVariables]float64 {
	var v [weather.NumVariables]float64
	v[weather.Temperature] = r.Temperature
	v[weather.RelativeHumidity] = r.RelativeHumidity
	v[weather.DewPoint] = r.DewPoint
	v[weather.Precipitation] = r.Precipitation
	v[weather.SnowDepth] = r.SnowDepth
	v[weather.WeatherCode] = r.WeatherCode
	v[weather.PressureMSL] = r.PressureMSL
	v[weather.CloudCover] = r.CloudCover
	v[weather.ShortwaveRadiation] = r.ShortwaveRadiation
	v[weather.WindSpeed] = r.WindSpeed
	v[weather.WindDirection] = r.WindDirection
	v[weather.WindGusts] = r.WindGusts
	return v
}

// ModelRow is one row of the model-ready table, keyed by site and hour.
type ModelRow struct {
	SiteCode  string
	Timestamp time.Time
	NO2       *float64
	PM25      *float64
	Weather   [weather.NumVariables]float64

	CountPointID string
	RoadType     string
	// AADF is the all-motor-vehicle flow of the nearest count point; NaN until imputed.
	AADF float64

	Features Features
}

// HasAADF reports whether the traffic value is present.
func (r *ModelRow) HasAADF() bool {
	return !math.IsNaN(r.AADF)
}

func float64Ptr(v float64) *float64 {
	return &v
}
