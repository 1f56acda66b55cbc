package openmeteo_test

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/londonair/airdataset/internal/weather"
	"github.com/londonair/airdataset/internal/weather/openmeteo"
)

func hourlyBody(times []int64, override map[string]string) string {
	ts := make([]string, len(times))
	for i, t := range times {
		ts[i] = fmt.Sprint(t)
	}
	parts := []string{`"time":[` + strings.Join(ts, ",") + `]`}
	for i, name := range weather.Variables {
		if v, ok := override[name]; ok {
			if v != "-" {
				parts = append(parts, fmt.Sprintf("%q:%s", name, v))
			}
			continue
		}
		vals := make([]string, len(times))
		for j := range times {
			vals[j] = fmt.Sprintf("%d.%d", i, j)
		}
		parts = append(parts, fmt.Sprintf("%q:[%s]", name, strings.Join(vals, ",")))
	}
	return `{"latitude":51.5,"longitude":-0.15,"hourly":{` + strings.Join(parts, ",") + `}}`
}

func TestClient_FetchHourly(t *testing.T) {
	start := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	times := []int64{start.Unix(), start.Add(time.Hour).Unix()}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "51.522540", q.Get("latitude"))
		assert.Equal(t, "-0.154590", q.Get("longitude"))
		assert.Equal(t, "2020-01-01", q.Get("start_date"))
		assert.Equal(t, "2020-01-02", q.Get("end_date"))
		assert.Equal(t, "unixtime", q.Get("timeformat"))
		assert.Equal(t, "GMT", q.Get("timezone"))
		assert.Len(t, strings.Split(q.Get("hourly"), ","), weather.NumVariables)
		_, _ = w.Write([]byte(hourlyBody(times, map[string]string{"snow_depth": "[null,0]"})))
	}))
	defer server.Close()

	client := openmeteo.NewClient(openmeteo.ClientConfig{BaseURL: server.URL})

	obs, err := client.FetchHourly(context.Background(), 51.52254, -0.15459, start, start.AddDate(0, 0, 1))
	require.NoError(t, err)
	require.Len(t, obs, 2)

	assert.Equal(t, start, obs[0].Time)
	assert.Equal(t, start.Add(time.Hour), obs[1].Time)
	assert.Equal(t, 0.0, obs[0].Values[weather.Temperature])
	assert.Equal(t, 11.1, obs[1].Values[weather.WindGusts])
	assert.True(t, math.IsNaN(obs[0].Values[weather.SnowDepth]))
	assert.False(t, obs[0].Complete())
	assert.True(t, obs[1].Complete())
}

func TestClient_FetchHourly_RaggedSeries(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(hourlyBody([]int64{0, 3600}, map[string]string{"cloud_cover": "[1]"})))
	}))
	defer server.Close()

	client := openmeteo.NewClient(openmeteo.ClientConfig{BaseURL: server.URL})

	_, err := client.FetchHourly(context.Background(), 51.5, -0.1, time.Unix(0, 0), time.Unix(0, 0))
	assert.ErrorIs(t, err, weather.ErrRaggedSeries)
}

func TestClient_FetchHourly_MissingVariable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(hourlyBody([]int64{0}, map[string]string{"pressure_msl": "-"})))
	}))
	defer server.Close()

	client := openmeteo.NewClient(openmeteo.ClientConfig{BaseURL: server.URL})

	obs, err := client.FetchHourly(context.Background(), 51.5, -0.1, time.Unix(0, 0), time.Unix(0, 0))
	require.NoError(t, err)
	require.Len(t, obs, 1)
	assert.True(t, math.IsNaN(obs[0].Values[weather.PressureMSL]))
}

func TestClient_FetchHourly_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":true,"reason":"Parameter 'start_date' is out of allowed range"}`))
	}))
	defer server.Close()

	client := openmeteo.NewClient(openmeteo.ClientConfig{BaseURL: server.URL})

	_, err := client.FetchHourly(context.Background(), 51.5, -0.1, time.Unix(0, 0), time.Unix(0, 0))
	var apiErr *openmeteo.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Contains(t, apiErr.Reason, "start_date")
}

func TestClient_FetchHourly_InvalidCoordinates(t *testing.T) {
	client := openmeteo.NewClient(openmeteo.ClientConfig{BaseURL: "http://unused.invalid"})

	_, err := client.FetchHourly(context.Background(), math.NaN(), 0, time.Now(), time.Now())
	assert.ErrorIs(t, err, weather.ErrInvalidCoordinates)

	_, err = client.FetchHourly(context.Background(), 91, 0, time.Now(), time.Now())
	assert.ErrorIs(t, err, weather.ErrInvalidCoordinates)
}
