package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/matryer/is"

	"github.com/aquasmart/pond-monitoring/internal/pkg/application/export"
	"github.com/aquasmart/pond-monitoring/pkg/types"
)

type fakeSource struct{}

func (fakeSource) GetCameraLogs(ctx context.Context, pondID uint, limit int) ([]types.CameraLog, error) {
	return []types.CameraLog{}, nil
}

func (fakeSource) GetRecentReadings(ctx context.Context, limit int) ([]types.SensorReading, error) {
	return []types.SensorReading{
		{PondID: 1, Timestamp: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC), Temperature: 28, PH: 7.9, DissolvedOxygen: 6.1, Turbidity: 20},
	}, nil
}

func TestExportWritesCSV(t *testing.T) {
	is := is.New(t)
	dir := t.TempDir()

	out := &bytes.Buffer{}
	cmd := newRootCmd(func(context.Context) (export.Source, error) { return fakeSource{}, nil })
	cmd.SetOut(out)
	cmd.SetArgs([]string{"--out", dir, "--format", "csv", "--limit", "10"})

	is.NoErr(cmd.ExecuteContext(context.Background()))
	is.True(strings.Contains(out.String(), "1 readings"))

	b, err := os.ReadFile(filepath.Join(dir, export.ReadingsCSVFile))
	is.NoErr(err)
	is.True(strings.HasPrefix(string(b), "timestamp,pondId"))

	_, err = os.Stat(filepath.Join(dir, export.ReadingsXLSXFile))
	is.True(os.IsNotExist(err))
}

func TestUnknownFormatIsRejected(t *testing.T) {
	is := is.New(t)

	cmd := newRootCmd(func(context.Context) (export.Source, error) { return fakeSource{}, nil })
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--format", "pdf"})

	is.True(cmd.ExecuteContext(context.Background()) != nil)
}
