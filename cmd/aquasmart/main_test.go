package main

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/matryer/is"

	"github.com/aquasmart/pond-monitoring/internal/pkg/application/healthsessions"
	"github.com/aquasmart/pond-monitoring/internal/pkg/infrastructure/repositories/database"
	"github.com/aquasmart/pond-monitoring/pkg/types"
)

func TestSetup(t *testing.T) {
	is, server := setupTest(t, nil)
	defer server.Close()

	resp, _ := testRequest(is, server, http.MethodGet, "/health", nil)

	is.Equal(resp.StatusCode, http.StatusNoContent)
}

func TestPondsAreSeededFromFile(t *testing.T) {
	is, server := setupTest(t, io.NopCloser(strings.NewReader(pondsCSV)))
	defer server.Close()

	resp, body := testRequest(is, server, http.MethodGet, "/api/ponds", nil)
	is.Equal(resp.StatusCode, http.StatusOK)

	result := []types.Pond{}
	is.NoErr(json.Unmarshal([]byte(body), &result))
	is.Equal(len(result), 2)
	is.Equal(result[0].Name, "Pond A")
	is.Equal(len(result[0].Actuators), 2)
}

func TestConfigurationFile(t *testing.T) {
	is := is.New(t)

	cfg, err := parseExternalConfigFile(io.NopCloser(strings.NewReader(configYaml)))
	is.NoErr(err)

	is.Equal(cfg.Watchdog.PondSilence, 10*time.Minute)
	is.Equal(cfg.Watchdog.Interval, time.Minute)
	is.Equal(cfg.Defaults.Thresholds.DO.Min, 5.0)
	is.Equal(cfg.Camera.MaxImageBytes, int64(1048576))
	is.Equal(len(cfg.events().Notifications), 1)
}

func TestInvalidDefaultThresholdsAreRejected(t *testing.T) {
	is := is.New(t)

	_, err := parseExternalConfigFile(io.NopCloser(strings.NewReader(`
defaults:
  thresholds:
    ph: {min: 9, max: 3}
`)))
	is.True(err != nil)
}

func TestHealthHistoryIsCachedUnderServicePrefix(t *testing.T) {
	is := is.New(t)
	ctx := context.Background()

	mr := miniredis.RunT(t)

	flags := defaultFlags()
	flags[sqliteDSN] = database.InMemoryDSN(t.Name())
	flags[uploadsDir] = t.TempDir()
	flags[redisAddr] = mr.Addr()

	cfg, err := parseExternalConfigFile(nil)
	is.NoErr(err)

	app, err := initialize(ctx, flags, cfg, nil)
	is.NoErr(err)
	t.Cleanup(app.shutdown)

	_, err = app.services.Health.History(ctx, 0)
	is.NoErr(err)

	is.True(mr.Exists(serviceName + ":" + healthsessions.HistoryKey))
}

func setupTest(t *testing.T, pondsFile io.ReadCloser) (*is.I, *httptest.Server) {
	is := is.New(t)
	ctx := context.Background()

	flags := defaultFlags()
	flags[sqliteDSN] = database.InMemoryDSN(t.Name())
	flags[uploadsDir] = t.TempDir()
	flags[classifierURL] = "http://127.0.0.1:1"

	cfg, err := parseExternalConfigFile(nil)
	is.NoErr(err)

	app, err := initialize(ctx, flags, cfg, pondsFile)
	is.NoErr(err)
	t.Cleanup(app.shutdown)

	policies, err := openPolicies("")
	is.NoErr(err)

	r, err := setupRouter(ctx, "test", app, policies)
	is.NoErr(err)

	return is, httptest.NewServer(r)
}

func testRequest(is *is.I, ts *httptest.Server, method, path string, body io.Reader) (*http.Response, string) {
	req, _ := http.NewRequest(method, ts.URL+path, body)
	resp, err := http.DefaultClient.Do(req)
	is.NoErr(err)
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)

	return resp, string(respBody)
}

const pondsCSV string = `name;location;actuators
Pond A;Sector 7;Aerator:aerator,Pump:pump
Pond B;Sector 9;Aerator:aerator`

const configYaml string = `
defaults:
  thresholds:
    do: {min: 5, max: 10}
    ph: {min: 7.6, max: 8.5}
    temp: {min: 26, max: 32}
    turb: {min: 12, max: 50}
    amm: {min: 0, max: 0.05}
    sal: {min: 23.5, max: 30}
watchdog:
  pondSilence: 10m
camera:
  maxImageBytes: 1048576
notifications:
  - id: alarm-subscribers
    name: Alarm subscribers
    type: aquasmart.alarm
    subscribers:
      - endpoint: http://localhost:8081/alarms
        minSeverity: 2
`
