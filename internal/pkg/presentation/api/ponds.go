package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/tracing"
	"github.com/rs/zerolog"

	"github.com/aquasmart/pond-monitoring/internal/pkg/application/pondmanagement"
	"github.com/aquasmart/pond-monitoring/internal/pkg/application/thresholds"
	"github.com/aquasmart/pond-monitoring/internal/pkg/infrastructure/logging"
	"github.com/aquasmart/pond-monitoring/pkg/types"
)

func getPondsHandler(log zerolog.Logger, svc pondmanagement.PondManagement) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var err error
		defer r.Body.Close()

		ctx, span := tracer.Start(r.Context(), "get-ponds")
		defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()
		_, ctx, requestLogger := logging.AddTraceIDToLoggerAndStoreInContext(span, log, ctx)

		ponds, err := svc.GetPonds(ctx)
		if err != nil {
			writeErr(w, requestLogger, err, "Failed to fetch ponds")
			return
		}

		writeJSON(w, http.StatusOK, ponds)
	}
}

func seedHandler(log zerolog.Logger, svc pondmanagement.PondManagement) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var err error
		defer r.Body.Close()

		ctx, span := tracer.Start(r.Context(), "seed")
		defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()
		_, ctx, requestLogger := logging.AddTraceIDToLoggerAndStoreInContext(span, log, ctx)

		pond, created, err := svc.Seed(ctx)
		if err != nil {
			writeErr(w, requestLogger, err, "Seed failed")
			return
		}

		if !created {
			writeJSON(w, http.StatusOK, messageResponse{Message: "Already seeded."})
			return
		}

		writeJSON(w, http.StatusOK, messageResponse{Message: "Seeded", Pond: pond})
	}
}

func addReadingHandler(log zerolog.Logger, svc pondmanagement.PondManagement) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var err error
		defer r.Body.Close()

		ctx, span := tracer.Start(r.Context(), "add-reading")
		defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()
		_, ctx, requestLogger := logging.AddTraceIDToLoggerAndStoreInContext(span, log, ctx)

		req := types.ReadingRequest{}
		err = json.NewDecoder(r.Body).Decode(&req)
		if err != nil {
			writeErr(w, requestLogger, fmt.Errorf("%w: %s", errBadRequest, err.Error()), "")
			return
		}

		reading, err := req.ToReading(time.Now().UTC())
		if err != nil {
			writeErr(w, requestLogger, err, "")
			return
		}

		stored, err := svc.AddReading(ctx, reading)
		if err != nil {
			writeErr(w, requestLogger, err, "Failed to save reading")
			return
		}

		requestLogger.Debug().Uint("pondID", stored.PondID).Float64("do", stored.DissolvedOxygen).Msg("reading logged")

		writeJSON(w, http.StatusCreated, stored)
	}
}

func getReadingsHandler(log zerolog.Logger, svc pondmanagement.PondManagement) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var err error
		defer r.Body.Close()

		ctx, span := tracer.Start(r.Context(), "get-readings")
		defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()
		_, ctx, requestLogger := logging.AddTraceIDToLoggerAndStoreInContext(span, log, ctx)

		pondID, err := uintParam(r, "pondId")
		if err != nil {
			writeErr(w, requestLogger, err, "")
			return
		}

		if _, err = svc.GetPond(ctx, pondID); err != nil {
			writeErr(w, requestLogger, err, "Failed to fetch history")
			return
		}

		readings, err := svc.GetReadings(ctx, pondID, readingsHistoryLimit)
		if err != nil {
			writeErr(w, requestLogger, err, "Failed to fetch history")
			return
		}

		writeJSON(w, http.StatusOK, readings)
	}
}

func getLatestReadingHandler(log zerolog.Logger, svc pondmanagement.PondManagement) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var err error
		defer r.Body.Close()

		ctx, span := tracer.Start(r.Context(), "get-latest-reading")
		defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()
		_, ctx, requestLogger := logging.AddTraceIDToLoggerAndStoreInContext(span, log, ctx)

		pondID, err := uintParam(r, "pondId")
		if err != nil {
			writeErr(w, requestLogger, err, "")
			return
		}

		reading, err := svc.GetLatestReading(ctx, pondID)
		if err != nil {
			writeErr(w, requestLogger, err, "Failed to fetch latest reading")
			return
		}

		writeJSON(w, http.StatusOK, reading)
	}
}

func getStatisticsHandler(log zerolog.Logger, svc pondmanagement.PondManagement) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var err error
		defer r.Body.Close()

		ctx, span := tracer.Start(r.Context(), "get-statistics")
		defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()
		_, ctx, requestLogger := logging.AddTraceIDToLoggerAndStoreInContext(span, log, ctx)

		pondID, err := uintParam(r, "pondId")
		if err != nil {
			writeErr(w, requestLogger, err, "")
			return
		}

		limit, err := intQuery(r, "limit", readingsHistoryLimit, maxListLimit)
		if err != nil {
			writeErr(w, requestLogger, err, "")
			return
		}

		stats, err := svc.GetStatistics(ctx, pondID, limit)
		if err != nil {
			writeErr(w, requestLogger, err, "Failed to compute statistics")
			return
		}

		writeJSON(w, http.StatusOK, stats)
	}
}

func toggleActuatorHandler(log zerolog.Logger, svc pondmanagement.PondManagement) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var err error
		defer r.Body.Close()

		ctx, span := tracer.Start(r.Context(), "toggle-actuator")
		defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()
		_, ctx, requestLogger := logging.AddTraceIDToLoggerAndStoreInContext(span, log, ctx)

		actuatorID, err := uintParam(r, "id")
		if err != nil {
			writeErr(w, requestLogger, err, "")
			return
		}

		req := toggleRequest{}
		if err = json.NewDecoder(r.Body).Decode(&req); err != nil || req.IsOn == nil {
			err = fmt.Errorf("%w: body must contain isOn", errBadRequest)
			writeErr(w, requestLogger, err, "")
			return
		}

		actuator, err := svc.ToggleActuator(ctx, actuatorID, *req.IsOn)
		if err != nil {
			writeErr(w, requestLogger, err, "Failed to toggle actuator")
			return
		}

		writeJSON(w, http.StatusOK, actuator)
	}
}

func setActuatorModeHandler(log zerolog.Logger, svc pondmanagement.PondManagement) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var err error
		defer r.Body.Close()

		ctx, span := tracer.Start(r.Context(), "set-actuator-mode")
		defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()
		_, ctx, requestLogger := logging.AddTraceIDToLoggerAndStoreInContext(span, log, ctx)

		actuatorID, err := uintParam(r, "id")
		if err != nil {
			writeErr(w, requestLogger, err, "")
			return
		}

		req := modeRequest{}
		if err = json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeErr(w, requestLogger, fmt.Errorf("%w: %s", errBadRequest, err.Error()), "")
			return
		}

		actuator, err := svc.SetActuatorMode(ctx, actuatorID, types.ActuatorMode(strings.ToUpper(req.Mode)))
		if err != nil {
			writeErr(w, requestLogger, err, "Failed to change actuator mode")
			return
		}

		writeJSON(w, http.StatusOK, actuator)
	}
}

func getCameraLogsHandler(log zerolog.Logger, svc pondmanagement.PondManagement) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var err error
		defer r.Body.Close()

		ctx, span := tracer.Start(r.Context(), "get-camera-logs")
		defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()
		_, ctx, requestLogger := logging.AddTraceIDToLoggerAndStoreInContext(span, log, ctx)

		var pondID uint64
		if s := r.URL.Query().Get("pondId"); s != "" {
			pondID, err = strconv.ParseUint(s, 10, 0)
			if err != nil || pondID == 0 {
				err = fmt.Errorf("%w: invalid pondId", errBadRequest)
				writeErr(w, requestLogger, err, "")
				return
			}
		}

		limit, err := intQuery(r, "limit", defaultCameraLogs, maxListLimit)
		if err != nil {
			writeErr(w, requestLogger, err, "")
			return
		}

		logs, err := svc.GetCameraLogs(ctx, uint(pondID), limit)
		if err != nil {
			writeErr(w, requestLogger, err, "Failed to fetch camera logs")
			return
		}

		writeJSON(w, http.StatusOK, logs)
	}
}

func addCameraLogHandler(log zerolog.Logger, svc pondmanagement.PondManagement, maxImageBytes int64) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var err error
		defer r.Body.Close()

		ctx, span := tracer.Start(r.Context(), "add-camera-log")
		defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()
		_, ctx, requestLogger := logging.AddTraceIDToLoggerAndStoreInContext(span, log, ctx)

		// a base64 data url is a third larger than the image it carries
		r.Body = http.MaxBytesReader(w, r.Body, maxImageBytes*4/3+64*1024)

		req := cameraLogRequest{}
		if err = json.NewDecoder(r.Body).Decode(&req); err != nil {
			if statusFor(err) != http.StatusRequestEntityTooLarge {
				err = fmt.Errorf("%w: %s", errBadRequest, err.Error())
			}
			writeErr(w, requestLogger, err, "")
			return
		}

		if !req.PondID.Set || req.PondID.Value < 1 {
			err = fmt.Errorf("%w: pondId is required", errBadRequest)
			writeErr(w, requestLogger, err, "")
			return
		}

		if !validImageURL(req.URL) {
			err = fmt.Errorf("%w: url must be an image data url or an http(s) url", errBadRequest)
			writeErr(w, requestLogger, err, "")
			return
		}

		cameraLog, err := svc.AddCameraLog(ctx, types.CameraLog{
			Timestamp:   time.Now().UTC(),
			PondID:      uint(req.PondID.Value),
			URL:         req.URL,
			Description: req.Description,
		})
		if err != nil {
			writeErr(w, requestLogger, err, "Failed to save camera log")
			return
		}

		writeJSON(w, http.StatusCreated, cameraLog)
	}
}

func validImageURL(url string) bool {
	if strings.HasPrefix(url, "data:image/") {
		return strings.Contains(url, ";base64,")
	}
	return strings.HasPrefix(url, "http://") || strings.HasPrefix(url, "https://")
}

func getSettingsHandler(log zerolog.Logger, ponds pondmanagement.PondManagement, svc thresholds.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var err error
		defer r.Body.Close()

		ctx, span := tracer.Start(r.Context(), "get-settings")
		defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()
		_, ctx, requestLogger := logging.AddTraceIDToLoggerAndStoreInContext(span, log, ctx)

		pondID, err := uintParam(r, "pondId")
		if err != nil {
			writeErr(w, requestLogger, err, "")
			return
		}

		if _, err = ponds.GetPond(ctx, pondID); err != nil {
			writeErr(w, requestLogger, err, "Failed to fetch settings")
			return
		}

		settings, err := svc.Get(ctx, pondID)
		if err != nil {
			writeErr(w, requestLogger, err, "Failed to fetch settings")
			return
		}

		writeJSON(w, http.StatusOK, settings)
	}
}

func putSettingsHandler(log zerolog.Logger, ponds pondmanagement.PondManagement, svc thresholds.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var err error
		defer r.Body.Close()

		ctx, span := tracer.Start(r.Context(), "put-settings")
		defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()
		_, ctx, requestLogger := logging.AddTraceIDToLoggerAndStoreInContext(span, log, ctx)

		pondID, err := uintParam(r, "pondId")
		if err != nil {
			writeErr(w, requestLogger, err, "")
			return
		}

		if _, err = ponds.GetPond(ctx, pondID); err != nil {
			writeErr(w, requestLogger, err, "Failed to save settings")
			return
		}

		// fields left out of the body keep their current values
		settings, err := svc.Get(ctx, pondID)
		if err != nil {
			writeErr(w, requestLogger, err, "Failed to save settings")
			return
		}

		if err = json.NewDecoder(r.Body).Decode(&settings); err != nil {
			writeErr(w, requestLogger, fmt.Errorf("%w: %s", errBadRequest, err.Error()), "")
			return
		}
		settings.PondID = pondID

		saved, err := svc.Save(ctx, settings)
		if err != nil {
			writeErr(w, requestLogger, err, "Failed to save settings")
			return
		}

		requestLogger.Info().Uint("pondID", pondID).Msg("pond settings updated")

		writeJSON(w, http.StatusOK, saved)
	}
}
