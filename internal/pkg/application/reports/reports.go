// Package reports renders health scan reports as PDF documents.
package reports

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/draw"
	_ "image/jpeg"
	"image/png"
	"io"
	"strings"
	"time"

	"github.com/aquasmart/pond-monitoring/internal/pkg/application/diagnosis"
	"github.com/aquasmart/pond-monitoring/pkg/types"
	"github.com/go-pdf/fpdf"
	"github.com/samber/lo"
)

var ErrEmptyHistory = fmt.Errorf("no health scans to summarise")

const (
	margin       = 15.0
	headerHeight = 25.0
	lineHeight   = 6.0
)

var compressContent = true

type rgb struct{ r, g, b int }

var (
	amber  = rgb{245, 158, 11}
	violet = rgb{124, 58, 237}
)

func DiagnosticFilename(now time.Time) string {
	return fmt.Sprintf("AquaSmart_Diagnostic_%d.pdf", now.UnixMilli())
}

func SummaryFilename(now time.Time) string {
	return fmt.Sprintf("AquaSmart_Population_Summary_%d.pdf", now.UnixMilli())
}

func newDocument() (*fpdf.Fpdf, func(string) string) {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetCompression(compressContent)
	pdf.SetMargins(margin, margin, margin)
	pdf.SetAutoPageBreak(true, margin)
	pdf.AddPage()

	// the core fonts are cp1252 encoded
	return pdf, pdf.UnicodeTranslatorFromDescriptor("")
}

// Diagnostic writes the report of a single scan.
func Diagnostic(w io.Writer, scan types.HealthScan, now time.Time) error {
	pdf, tr := newDocument()

	pageWidth, _ := pdf.GetPageSize()

	header(pdf, amber, "DIAGNOSTIC SCAN REPORT")
	pdf.SetFont("Helvetica", "", 10)
	dateText := "Date: " + now.Format("2006-01-02 15:04:05")
	pdf.Text(pageWidth-margin-pdf.GetStringWidth(dateText), 17, dateText)

	pdf.SetTextColor(0, 0, 0)
	pdf.SetFont("Helvetica", "B", 14)
	pdf.Text(margin, 40, "1. Visual Analysis")

	if !embedImage(pdf, scan.Img) {
		pdf.SetFont("Helvetica", "I", 9)
		pdf.SetTextColor(120, 120, 120)
		pdf.Text(margin+12, 68, "No image available")
		pdf.SetTextColor(0, 0, 0)
	}
	pdf.SetDrawColor(200, 200, 200)
	pdf.Rect(margin, 45, 60, 45, "D")

	condition := diagnosis.ParseCondition(scan.Condition)
	risk := diagnosis.Classify(condition, scan.Confidence, scan.Status)

	pdf.SetFont("Helvetica", "", 12)
	pdf.Text(80, 50, tr("Condition: "+scan.Condition))
	pdf.Text(80, 60, fmt.Sprintf("Confidence: %g%%", scan.Confidence))
	pdf.Text(80, 70, tr("Status: "+strings.ToUpper(scan.Status)))
	pdf.Text(80, 80, fmt.Sprintf("Risk: %s (%s)", risk.Level, risk.Severity))

	pdf.SetFont("Helvetica", "B", 14)
	pdf.Text(margin, 105, "2. Recommended Actions")

	advice := scan.Advice
	if strings.TrimSpace(advice) == "" {
		advice = diagnosis.Advice(condition)
	}

	pdf.SetFont("Helvetica", "", 10)
	pdf.SetTextColor(50, 50, 50)
	pdf.SetXY(margin, 110)
	pdf.MultiCell(pageWidth-2*margin-10, 5, tr(advice), "", "L", false)
	pdf.Ln(2)
	pdf.MultiCell(pageWidth-2*margin-10, 5, tr(risk.Note), "", "L", false)
	pdf.Ln(3)

	pdf.SetFont("Helvetica", "B", 11)
	pdf.SetTextColor(0, 0, 0)
	pdf.CellFormat(0, lineHeight, "Remediation plan", "", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 10)
	for _, step := range diagnosis.Plan(condition) {
		pdf.SetX(margin + 4)
		pdf.MultiCell(pageWidth-2*margin-14, 5, tr("- "+step), "", "L", false)
	}

	return output(pdf, w)
}

// Summary writes an overview of a scan history.
func Summary(w io.Writer, scans []types.HealthScan) error {
	if len(scans) == 0 {
		return ErrEmptyHistory
	}

	pdf, tr := newDocument()

	header(pdf, violet, "POPULATION HEALTH SUMMARY")

	pdf.SetTextColor(0, 0, 0)
	pdf.SetFont("Helvetica", "", 12)
	pdf.Text(margin, 40, fmt.Sprintf("Total Scans: %d", len(scans)))

	pdf.Text(margin, 48, fmt.Sprintf("Infection Rate: %.1f%%", InfectionRate(scans)*100))
	pdf.Text(margin, 56, fmt.Sprintf("Infected Scans: %d", lo.CountBy(scans, infected)))

	pdf.SetFont("Helvetica", "", 10)
	pdf.SetXY(margin, 62)
	for i, s := range scans {
		pdf.CellFormat(0, lineHeight, tr(fmt.Sprintf("%d. %s - %s (%g%%)", i+1, s.Time, s.Condition, s.Confidence)), "", 1, "L", false, 0, "")
	}

	return output(pdf, w)
}

// InfectionRate is the share of scans that were not classified as healthy.
func InfectionRate(scans []types.HealthScan) float64 {
	if len(scans) == 0 {
		return 0
	}
	return float64(lo.CountBy(scans, infected)) / float64(len(scans))
}

func infected(s types.HealthScan) bool {
	return !strings.EqualFold(s.Status, diagnosis.StatusHealthy)
}

func header(pdf *fpdf.Fpdf, c rgb, title string) {
	pageWidth, _ := pdf.GetPageSize()

	pdf.SetFillColor(c.r, c.g, c.b)
	pdf.Rect(0, 0, pageWidth, headerHeight, "F")
	pdf.SetTextColor(255, 255, 255)
	pdf.SetFont("Helvetica", "B", 18)
	pdf.Text(margin, 17, title)
}

// embedImage places the scan image in the report. It reports false, and
// leaves the document usable, when the image cannot be embedded.
func embedImage(pdf *fpdf.Fpdf, dataURL string) bool {
	name, opts, data, ok := decodeImage(dataURL)
	if !ok {
		return false
	}

	pdf.RegisterImageOptionsReader(name, opts, bytes.NewReader(data))
	if pdf.Err() {
		pdf.ClearError()
		return false
	}

	pdf.ImageOptions(name, margin, 45, 60, 45, false, opts, 0, "")
	return true
}

// decodeImage extracts a JPEG or PNG image from a data URL. PNG images are
// re-encoded as 8 bit non-interlaced images, the only kind fpdf can embed.
func decodeImage(dataURL string) (string, fpdf.ImageOptions, []byte, bool) {
	_, encoded, found := strings.Cut(dataURL, ";base64,")
	if !found || !strings.HasPrefix(dataURL, "data:image") {
		return "", fpdf.ImageOptions{}, nil, false
	}

	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fpdf.ImageOptions{}, nil, false
	}

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return "", fpdf.ImageOptions{}, nil, false
	}

	switch format {
	case "jpeg":
		return "scan", fpdf.ImageOptions{ImageType: "JPG"}, data, true
	case "png":
		nrgba := image.NewNRGBA(img.Bounds())
		draw.Draw(nrgba, nrgba.Bounds(), img, img.Bounds().Min, draw.Src)

		buf := &bytes.Buffer{}
		if err := png.Encode(buf, nrgba); err != nil {
			return "", fpdf.ImageOptions{}, nil, false
		}
		return "scan", fpdf.ImageOptions{ImageType: "PNG"}, buf.Bytes(), true
	default:
		return "", fpdf.ImageOptions{}, nil, false
	}
}

func output(pdf *fpdf.Fpdf, w io.Writer) error {
	if err := pdf.Error(); err != nil {
		return fmt.Errorf("failed to render report: %w", err)
	}
	return pdf.Output(w)
}
