package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/tracing"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/aquasmart/pond-monitoring/internal/pkg/application/healthsessions"
	"github.com/aquasmart/pond-monitoring/internal/pkg/application/reports"
	"github.com/aquasmart/pond-monitoring/internal/pkg/infrastructure/logging"
	"github.com/aquasmart/pond-monitoring/internal/pkg/presentation/api/auth"
	"github.com/aquasmart/pond-monitoring/pkg/types"
)

func analyzeHealthHandler(log zerolog.Logger, svc healthsessions.HealthSessions, maxImageBytes int64) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var err error
		defer r.Body.Close()

		ctx, span := tracer.Start(r.Context(), "analyze-health")
		defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()
		_, ctx, requestLogger := logging.AddTraceIDToLoggerAndStoreInContext(span, log, ctx)

		if !isMultipart(r) {
			err = fmt.Errorf("%w: expected multipart/form-data", errBadRequest)
			writeErr(w, requestLogger, err, "")
			return
		}

		r.Body = http.MaxBytesReader(w, r.Body, maxImageBytes+1024*1024)

		values, err := formValues(r, multipartMemory, "pondId", "researcher")
		if err != nil {
			writeErr(w, requestLogger, err, "")
			return
		}

		file, header, err := formFile(r, "prawnImage")
		if err != nil || file == nil {
			err = fmt.Errorf("%w: No image uploaded", errBadRequest)
			writeErr(w, requestLogger, err, "")
			return
		}
		defer file.Close()

		var pondID uint64
		if values["pondId"] != "" {
			pondID, err = strconv.ParseUint(values["pondId"], 10, 0)
			if err != nil {
				err = fmt.Errorf("%w: invalid pondId", errBadRequest)
				writeErr(w, requestLogger, err, "")
				return
			}
		}

		researcher := values["researcher"]
		if user, ok := auth.GetUserFromContext(ctx); ok && researcher == "" {
			researcher = user.Email
		}

		scan, err := svc.Analyze(ctx, uint(pondID), researcher, healthsessions.Image{Filename: header.Filename, Content: file})
		if err != nil {
			writeErr(w, requestLogger, err, "AI Analysis failed")
			return
		}

		requestLogger.Info().Str("scanID", scan.ID).Str("condition", scan.Condition).Msg("health scan analysed")

		writeJSON(w, http.StatusOK, scan)
	}
}

func getHealthSessionHandler(log zerolog.Logger, svc healthsessions.HealthSessions, limit int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var err error
		defer r.Body.Close()

		ctx, span := tracer.Start(r.Context(), "get-health-session")
		defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()
		_, ctx, requestLogger := logging.AddTraceIDToLoggerAndStoreInContext(span, log, ctx)

		logs, err := svc.History(ctx, limit)
		if err != nil {
			writeErr(w, requestLogger, err, "Failed to fetch health session")
			return
		}

		writeJSON(w, http.StatusOK, types.HealthSession{Logs: logs})
	}
}

func saveHealthScanHandler(log zerolog.Logger, svc healthsessions.HealthSessions) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var err error
		defer r.Body.Close()

		ctx, span := tracer.Start(r.Context(), "save-health-scan")
		defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()
		_, ctx, requestLogger := logging.AddTraceIDToLoggerAndStoreInContext(span, log, ctx)

		scan := types.HealthScan{}
		if err = json.NewDecoder(r.Body).Decode(&scan); err != nil {
			writeErr(w, requestLogger, fmt.Errorf("%w: %s", errBadRequest, err.Error()), "")
			return
		}

		saved, err := svc.Save(ctx, scan)
		if err != nil {
			writeErr(w, requestLogger, err, "Failed to save health scan")
			return
		}

		writeJSON(w, http.StatusOK, saved)
	}
}

func syncHealthSessionHandler(log zerolog.Logger, svc healthsessions.HealthSessions) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var err error
		defer r.Body.Close()

		ctx, span := tracer.Start(r.Context(), "sync-health-session")
		defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()
		_, ctx, requestLogger := logging.AddTraceIDToLoggerAndStoreInContext(span, log, ctx)

		req := syncRequest{}
		if err = json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeErr(w, requestLogger, fmt.Errorf("%w: %s", errBadRequest, err.Error()), "")
			return
		}

		merged, err := svc.Sync(ctx, req.Logs)
		if err != nil {
			writeErr(w, requestLogger, err, "Failed to sync health session")
			return
		}

		writeJSON(w, http.StatusOK, types.HealthSession{Logs: merged})
	}
}

func diagnosticReportHandler(log zerolog.Logger, svc healthsessions.HealthSessions) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var err error
		defer r.Body.Close()

		ctx, span := tracer.Start(r.Context(), "diagnostic-report")
		defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()
		_, ctx, requestLogger := logging.AddTraceIDToLoggerAndStoreInContext(span, log, ctx)

		scan, err := svc.Get(ctx, chi.URLParam(r, "id"))
		if err != nil {
			writeErr(w, requestLogger, err, "Failed to fetch health scan")
			return
		}

		now := time.Now()
		b := &bytes.Buffer{}

		err = reports.Diagnostic(b, scan, now)
		if err != nil {
			writeErr(w, requestLogger, err, "Failed to render report")
			return
		}

		writePDF(w, reports.DiagnosticFilename(now), b)
	}
}

func summaryReportHandler(log zerolog.Logger, svc healthsessions.HealthSessions, limit int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var err error
		defer r.Body.Close()

		ctx, span := tracer.Start(r.Context(), "summary-report")
		defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()
		_, ctx, requestLogger := logging.AddTraceIDToLoggerAndStoreInContext(span, log, ctx)

		scans, err := svc.History(ctx, limit)
		if err != nil {
			writeErr(w, requestLogger, err, "Failed to fetch health session")
			return
		}

		b := &bytes.Buffer{}

		err = reports.Summary(b, scans)
		if err != nil {
			writeErr(w, requestLogger, err, "Failed to render report")
			return
		}

		writePDF(w, reports.SummaryFilename(time.Now()), b)
	}
}

func writePDF(w http.ResponseWriter, filename string, b *bytes.Buffer) {
	w.Header().Add("Content-Type", "application/pdf")
	w.Header().Add("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.Header().Add("Content-Length", strconv.Itoa(b.Len()))
	w.WriteHeader(http.StatusOK)
	w.Write(b.Bytes())
}
