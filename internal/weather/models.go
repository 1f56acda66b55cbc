// Package weather models hourly historical weather observations and the
// per-site files they are stored in.
package weather

import (
	"errors"
	"math"
	"regexp"
	"strings"
	"time"
)

// Weather errors.
var (
	ErrInvalidCoordinates = errors.New("invalid coordinates")
	ErrMissingTimeColumn  = errors.New("no time column")
	ErrRaggedSeries       = errors.New("hourly series have different lengths")
)

// Variables are the hourly variables requested for every site, in file order.
var Variables = [NumVariables]string{
	"temperature_2m",
	"relative_humidity_2m",
	"dew_point_2m",
	"precipitation",
	"snow_depth",
	"weather_code",
	"pressure_msl",
	"cloud_cover",
	"shortwave_radiation",
	"wind_speed_10m",
	"wind_direction_10m",
	"wind_gusts_10m",
}

// NumVariables is the number of hourly variables.
const NumVariables = 12

// Index positions into Observation.Values.
const (
	Temperature = iota
	RelativeHumidity
	DewPoint
	Precipitation
	SnowDepth
	WeatherCode
	PressureMSL
	CloudCover
	ShortwaveRadiation
	WindSpeed
	WindDirection
	WindGusts
)

// Observation is one hourly weather reading at a site.
// Missing values are NaN.
type Observation struct {
	SiteCode string
	Time     time.Time
	Values   [NumVariables]float64
}

// Complete reports whether every variable has a value.
func (o *Observation) Complete() bool {
	for _, v := range o.Values {
		if math.IsNaN(v) {
			return false
		}
	}
	return true
}

// VariableIndex returns the position of a variable name, or -1.
func VariableIndex(name string) int {
	for i, v := range Variables {
		if v == name {
			return i
		}
	}
	return -1
}

var unitSuffix = regexp.MustCompile(`\s*\([^)]*\)`)

// CleanColumnName strips a unit suffix such as " (°C)" and normalises a header
// to lower snake case.
func CleanColumnName(name string) string {
	name = unitSuffix.ReplaceAllString(strings.TrimSpace(name), "")
	name = strings.NewReplacer(" ", "_", "/", "_").Replace(name)
	return strings.ToLower(name)
}

const filePrefix, fileSuffix = "weather_", ".csv"

// FileName returns the raw weather file name for a site.
func FileName(siteCode string) string {
	return filePrefix + siteCode + fileSuffix
}

// SiteCodeFromFileName extracts the site code from a raw weather file name.
func SiteCodeFromFileName(name string) (string, bool) {
	if !strings.HasPrefix(name, filePrefix) || !strings.HasSuffix(name, fileSuffix) {
		return "", false
	}
	code := strings.TrimSuffix(strings.TrimPrefix(name, filePrefix), fileSuffix)
	return code, code != ""
}
