package api

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"

	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/tracing"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/aquasmart/pond-monitoring/internal/pkg/application/alarms"
	"github.com/aquasmart/pond-monitoring/internal/pkg/application/export"
	"github.com/aquasmart/pond-monitoring/internal/pkg/application/forecast"
	"github.com/aquasmart/pond-monitoring/internal/pkg/application/pondmanagement"
	"github.com/aquasmart/pond-monitoring/internal/pkg/application/thresholds"
	"github.com/aquasmart/pond-monitoring/internal/pkg/infrastructure/logging"
)

func predictHandler(log zerolog.Logger, ponds pondmanagement.PondManagement, svc forecast.Forecaster) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var err error
		defer r.Body.Close()

		ctx, span := tracer.Start(r.Context(), "predict")
		defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()
		_, ctx, requestLogger := logging.AddTraceIDToLoggerAndStoreInContext(span, log, ctx)

		pondID, err := uintParam(r, "pondId")
		if err != nil {
			writeErr(w, requestLogger, err, "")
			return
		}

		if _, err = ponds.GetPond(ctx, pondID); err != nil {
			writeErr(w, requestLogger, err, "Prediction failed")
			return
		}

		result, err := svc.Predict(ctx, pondID)
		if err != nil {
			writeErr(w, requestLogger, err, "Prediction failed")
			return
		}

		if result.Prediction == nil {
			writeJSON(w, http.StatusOK, warningResponse{Warning: result.Warning})
			return
		}

		writeJSON(w, http.StatusOK, result.Prediction)
	}
}

func forecastHandler(log zerolog.Logger, ponds pondmanagement.PondManagement, svc forecast.Forecaster) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var err error
		defer r.Body.Close()

		ctx, span := tracer.Start(r.Context(), "forecast")
		defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()
		_, ctx, requestLogger := logging.AddTraceIDToLoggerAndStoreInContext(span, log, ctx)

		pondID, err := uintParam(r, "pondId")
		if err != nil {
			writeErr(w, requestLogger, err, "")
			return
		}

		metricName := r.URL.Query().Get("metric")
		if metricName == "" {
			metricName = string(thresholds.MetricDO)
		}

		metric, err := thresholds.ParseMetric(metricName)
		if err != nil {
			writeErr(w, requestLogger, fmt.Errorf("%w: %s", errBadRequest, err.Error()), "")
			return
		}

		steps, err := intQuery(r, "steps", forecast.DefaultSteps, 48)
		if err != nil {
			writeErr(w, requestLogger, err, "")
			return
		}

		if _, err = ponds.GetPond(ctx, pondID); err != nil {
			writeErr(w, requestLogger, err, "Forecast failed")
			return
		}

		points, err := svc.Forecast(ctx, pondID, metric, steps)
		if err != nil {
			writeErr(w, requestLogger, err, "Forecast failed")
			return
		}

		writeJSON(w, http.StatusOK, points)
	}
}

func weatherHandler(log zerolog.Logger, svc forecast.Forecaster) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var err error
		defer r.Body.Close()

		ctx, span := tracer.Start(r.Context(), "weather")
		defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()
		_, ctx, requestLogger := logging.AddTraceIDToLoggerAndStoreInContext(span, log, ctx)

		current, err := svc.Weather(ctx)
		if err != nil {
			writeErr(w, requestLogger, err, "Weather unavailable")
			return
		}

		writeJSON(w, http.StatusOK, current)
	}
}

func getAlarmsHandler(log zerolog.Logger, svc alarms.AlarmService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var err error
		defer r.Body.Close()

		ctx, span := tracer.Start(r.Context(), "get-alarms")
		defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()
		_, ctx, requestLogger := logging.AddTraceIDToLoggerAndStoreInContext(span, log, ctx)

		onlyActive := false
		if s := r.URL.Query().Get("active"); s != "" {
			onlyActive, err = strconv.ParseBool(s)
			if err != nil {
				writeErr(w, requestLogger, fmt.Errorf("%w: active must be true or false", errBadRequest), "")
				return
			}
		}

		var pondID uint64
		if s := r.URL.Query().Get("pondId"); s != "" {
			pondID, err = strconv.ParseUint(s, 10, 0)
			if err != nil {
				writeErr(w, requestLogger, fmt.Errorf("%w: invalid pondId", errBadRequest), "")
				return
			}
		}

		result, err := svc.Get(ctx, onlyActive, uint(pondID))
		if err != nil {
			writeErr(w, requestLogger, err, "Failed to fetch alarms")
			return
		}

		writeJSON(w, http.StatusOK, result)
	}
}

func patchAlarmsHandler(log zerolog.Logger, svc alarms.AlarmService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var err error
		defer r.Body.Close()

		ctx, span := tracer.Start(r.Context(), "close-alarm")
		defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()
		_, ctx, requestLogger := logging.AddTraceIDToLoggerAndStoreInContext(span, log, ctx)

		alarmID := chi.URLParam(r, "alarmID")
		requestLogger = requestLogger.With().Str("alarmID", alarmID).Logger()

		alarm, err := svc.Close(ctx, alarmID)
		if err != nil {
			writeErr(w, requestLogger, err, "Failed to close alarm")
			return
		}

		requestLogger.Info().Msg("alarm closed")

		writeJSON(w, http.StatusOK, alarm)
	}
}

func exportReadingsHandler(log zerolog.Logger, svc export.Exporter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var err error
		defer r.Body.Close()

		ctx, span := tracer.Start(r.Context(), "export-readings")
		defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()
		_, ctx, requestLogger := logging.AddTraceIDToLoggerAndStoreInContext(span, log, ctx)

		limit, err := intQuery(r, "limit", export.DefaultLimit, export.DefaultLimit*10)
		if err != nil {
			writeErr(w, requestLogger, err, "")
			return
		}

		b := &bytes.Buffer{}
		if _, err = svc.ReadingsXLSX(ctx, b, limit); err != nil {
			writeErr(w, requestLogger, err, "Export failed")
			return
		}

		w.Header().Add("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		w.Header().Add("Content-Disposition", fmt.Sprintf("attachment; filename=%q", export.ReadingsXLSXFile))
		w.WriteHeader(http.StatusOK)
		w.Write(b.Bytes())
	}
}
