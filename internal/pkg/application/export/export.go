// Package export writes the training dataset: labelled camera images as BMP
// files and the sensor readings as CSV or XLSX.
package export

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/csv"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/samber/lo"
	"github.com/xuri/excelize/v2"
	"golang.org/x/image/bmp"

	"github.com/aquasmart/pond-monitoring/internal/pkg/application/pondmanagement"
	"github.com/aquasmart/pond-monitoring/internal/pkg/infrastructure/logging"
	"github.com/aquasmart/pond-monitoring/pkg/types"
)

const (
	DefaultLimit       = 1000
	ImageLabelsFile    = "image_labels.csv"
	ReadingsCSVFile    = "sensor_readings.csv"
	ReadingsXLSXFile   = "sensor_readings.xlsx"
	readingsSheet      = "Readings"
	summarySheet       = "Summary"
	unlabeled          = "unlabeled"
	dataURLImagePrefix = "data:image"
)

var ErrInvalidDataURL = errors.New("not a base64 image data url")

var (
	imageLabelsHeader = []string{"filename", "label", "pondId", "timestamp"}
	readingsHeader    = []string{"timestamp", "pondId", "temperature", "ph", "dissolvedOxygen", "turbidity", "ammonia", "salinity"}
)

type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
	FormatAll  Format = "all"
)

func (f Format) Valid() bool {
	return f == FormatCSV || f == FormatXLSX || f == FormatAll
}

// Source is the part of pond management the export reads from.
type Source interface {
	GetCameraLogs(ctx context.Context, pondID uint, limit int) ([]types.CameraLog, error)
	GetRecentReadings(ctx context.Context, limit int) ([]types.SensorReading, error)
}

var _ Source = (pondmanagement.PondManagement)(nil)

type Result struct {
	Images          int `json:"images"`
	SkippedImages   int `json:"skippedImages"`
	Readings        int `json:"readings"`
	SkippedReadings int `json:"skippedReadings"`
}

//go:generate moq -rm -out export_mock.go . Exporter

type Exporter interface {
	Dataset(ctx context.Context, dir string, limit int, format Format) (Result, error)
	Images(ctx context.Context, dir string, limit int) (Result, error)
	ReadingsCSV(ctx context.Context, w io.Writer, limit int) (Result, error)
	ReadingsXLSX(ctx context.Context, w io.Writer, limit int) (Result, error)
}

type exporter struct {
	src Source
}

func New(src Source) Exporter {
	return &exporter{src: src}
}

// Dataset writes the images, image_labels.csv and the readings in the
// requested format to dir, creating it if needed.
func (e *exporter) Dataset(ctx context.Context, dir string, limit int, format Format) (Result, error) {
	if !format.Valid() {
		return Result{}, fmt.Errorf("unknown export format %q", format)
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return Result{}, err
	}

	result, err := e.Images(ctx, dir, limit)
	if err != nil {
		return result, err
	}

	write := func(name string, fn func(context.Context, io.Writer, int) (Result, error)) error {
		f, err := os.Create(filepath.Join(dir, name))
		if err != nil {
			return err
		}
		defer f.Close()

		r, err := fn(ctx, f, limit)
		if err != nil {
			return err
		}

		result.Readings, result.SkippedReadings = r.Readings, r.SkippedReadings
		return f.Close()
	}

	if format == FormatCSV || format == FormatAll {
		if err = write(ReadingsCSVFile, e.ReadingsCSV); err != nil {
			return result, err
		}
	}

	if format == FormatXLSX || format == FormatAll {
		if err = write(ReadingsXLSXFile, e.ReadingsXLSX); err != nil {
			return result, err
		}
	}

	logger := logging.GetFromContext(ctx)
	logger.Info().
		Str("dir", dir).
		Int("images", result.Images).
		Int("readings", result.Readings).
		Msg("dataset exported")

	return result, nil
}

// Images writes one BMP per camera log with a base64 data url, named
// pond{pondId}_{unixms}.bmp, and lists them in image_labels.csv. Payloads that
// do not decode as JPEG or PNG are written as is.
func (e *exporter) Images(ctx context.Context, dir string, limit int) (Result, error) {
	logger := logging.GetFromContext(ctx)
	result := Result{}

	logs, err := e.src.GetCameraLogs(ctx, 0, limitOrDefault(limit))
	if err != nil {
		return result, err
	}

	f, err := os.Create(filepath.Join(dir, ImageLabelsFile))
	if err != nil {
		return result, err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err = w.Write(imageLabelsHeader); err != nil {
		return result, err
	}

	for _, l := range logs {
		raw, err := DecodeDataURL(l.URL)
		if err != nil {
			result.SkippedImages++
			continue
		}

		name := ImageFilename(l)
		if err = os.WriteFile(filepath.Join(dir, name), ToBMP(raw), 0644); err != nil {
			logger.Error().Err(err).Uint("cameraLogID", l.ID).Msg("failed to write image")
			result.SkippedImages++
			continue
		}

		err = w.Write([]string{name, Label(l), strconv.FormatUint(uint64(l.PondID), 10), l.Timestamp.UTC().Format(time.RFC3339)})
		if err != nil {
			return result, err
		}

		result.Images++
	}

	w.Flush()
	if err = w.Error(); err != nil {
		return result, err
	}

	return result, f.Close()
}

func (e *exporter) ReadingsCSV(ctx context.Context, w io.Writer, limit int) (Result, error) {
	rows, result, err := e.readingRows(ctx, limit)
	if err != nil {
		return result, err
	}

	cw := csv.NewWriter(w)
	if err = cw.Write(readingsHeader); err != nil {
		return result, err
	}

	for _, r := range rows {
		err = cw.Write([]string{
			r.Timestamp.UTC().Format(time.RFC3339),
			strconv.FormatUint(uint64(r.PondID), 10),
			formatFloat(r.Temperature),
			formatFloat(r.PH),
			formatFloat(r.DissolvedOxygen),
			formatFloat(r.Turbidity),
			formatFloat(r.Ammonia),
			formatFloat(r.Salinity),
		})
		if err != nil {
			return result, err
		}
	}

	cw.Flush()
	return result, cw.Error()
}

// ReadingsXLSX writes the same rows as ReadingsCSV to a Readings sheet and
// adds a Summary sheet with per metric statistics.
func (e *exporter) ReadingsXLSX(ctx context.Context, w io.Writer, limit int) (Result, error) {
	rows, result, err := e.readingRows(ctx, limit)
	if err != nil {
		return result, err
	}

	f := excelize.NewFile()
	defer f.Close()

	if err = f.SetSheetName("Sheet1", readingsSheet); err != nil {
		return result, err
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E6F3FF"}, Pattern: 1},
	})
	if err != nil {
		return result, fmt.Errorf("failed to create header style: %w", err)
	}

	if err = writeSheetHeader(f, readingsSheet, readingsHeader, headerStyle); err != nil {
		return result, err
	}

	for i, r := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		err = f.SetSheetRow(readingsSheet, cell, &[]any{
			r.Timestamp.UTC().Format(time.RFC3339), r.PondID, r.Temperature, r.PH, r.DissolvedOxygen, r.Turbidity, r.Ammonia, r.Salinity,
		})
		if err != nil {
			return result, fmt.Errorf("failed to write row %d: %w", i+2, err)
		}
	}

	err = f.SetPanes(readingsSheet, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"})
	if err != nil {
		return result, err
	}

	if _, err = f.NewSheet(summarySheet); err != nil {
		return result, err
	}

	if err = writeSheetHeader(f, summarySheet, []string{"metric", "count", "mean", "stdDev", "min", "max"}, headerStyle); err != nil {
		return result, err
	}

	for i, s := range pondmanagement.Statistics(rows) {
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		err = f.SetSheetRow(summarySheet, cell, &[]any{s.Metric, s.Count, round(s.Mean), round(s.StdDev), s.Min, s.Max})
		if err != nil {
			return result, err
		}
	}

	_, err = f.WriteTo(w)
	return result, err
}

func (e *exporter) readingRows(ctx context.Context, limit int) ([]types.SensorReading, Result, error) {
	readings, err := e.src.GetRecentReadings(ctx, limitOrDefault(limit))
	if err != nil {
		return nil, Result{}, err
	}

	rows := lo.Filter(readings, func(r types.SensorReading, _ int) bool { return !hasNaN(r) })

	return rows, Result{Readings: len(rows), SkippedReadings: len(readings) - len(rows)}, nil
}

func writeSheetHeader(f *excelize.File, sheet string, header []string, style int) error {
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return err
	}

	last, _ := excelize.CoordinatesToCellName(len(header), 1)
	return f.SetCellStyle(sheet, "A1", last, style)
}

// DecodeDataURL returns the payload of a data:image...;base64, url.
func DecodeDataURL(url string) ([]byte, error) {
	if !strings.HasPrefix(url, dataURLImagePrefix) {
		return nil, ErrInvalidDataURL
	}

	_, encoded, found := strings.Cut(url, ";base64,")
	if !found || encoded == "" {
		return nil, ErrInvalidDataURL
	}

	b, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidDataURL, err.Error())
	}

	return b, nil
}

// ToBMP converts a JPEG or PNG image to BMP. Anything else is returned unchanged.
func ToBMP(raw []byte) []byte {
	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return raw
	}

	b := &bytes.Buffer{}
	if err := bmp.Encode(b, img); err != nil {
		return raw
	}

	return b.Bytes()
}

func ImageFilename(l types.CameraLog) string {
	return fmt.Sprintf("pond%d_%d.bmp", l.PondID, l.Timestamp.UnixMilli())
}

func Label(l types.CameraLog) string {
	if s := strings.TrimSpace(l.Description); s != "" {
		return s
	}
	return unlabeled
}

func hasNaN(r types.SensorReading) bool {
	return lo.SomeBy([]float64{r.Temperature, r.PH, r.DissolvedOxygen, r.Turbidity, r.Ammonia, r.Salinity}, math.IsNaN)
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func round(v float64) float64 {
	return math.Round(v*1000) / 1000
}

func limitOrDefault(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	return limit
}
