package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/jwtauth/v5"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"

	"github.com/aquasmart/pond-monitoring/internal/pkg/application/accounts"
	"github.com/aquasmart/pond-monitoring/internal/pkg/application/alarms"
	"github.com/aquasmart/pond-monitoring/internal/pkg/application/export"
	"github.com/aquasmart/pond-monitoring/internal/pkg/application/forecast"
	"github.com/aquasmart/pond-monitoring/internal/pkg/application/healthsessions"
	"github.com/aquasmart/pond-monitoring/internal/pkg/application/pondmanagement"
	"github.com/aquasmart/pond-monitoring/internal/pkg/application/reports"
	"github.com/aquasmart/pond-monitoring/internal/pkg/application/thresholds"
	"github.com/aquasmart/pond-monitoring/internal/pkg/application/webevents"
	"github.com/aquasmart/pond-monitoring/internal/pkg/infrastructure/classifier"
	"github.com/aquasmart/pond-monitoring/internal/pkg/infrastructure/logging"
	"github.com/aquasmart/pond-monitoring/internal/pkg/infrastructure/weather"
	"github.com/aquasmart/pond-monitoring/internal/pkg/presentation/api/auth"
	"github.com/aquasmart/pond-monitoring/pkg/types"
)

var tracer = otel.Tracer("aquasmart/api")

const (
	readingsHistoryLimit = 50
	defaultCameraLogs    = 20
	maxListLimit         = 1000
	multipartMemory      = 32 << 20
)

type Config struct {
	UploadsDir    string
	MaxImageBytes int64
	HistoryLimit  int
}

type Services struct {
	Ponds     pondmanagement.PondManagement
	Alarms    alarms.AlarmService
	Settings  thresholds.Service
	Health    healthsessions.HealthSessions
	Forecast  forecast.Forecaster
	Accounts  accounts.Accounts
	Export    export.Exporter
	WebEvents webevents.WebEvents
}

func RegisterHandlers(ctx context.Context, router *chi.Mux, policies io.Reader, svc Services, cfg Config) (*chi.Mux, error) {
	if cfg.MaxImageBytes <= 0 {
		cfg.MaxImageBytes = 5 * 1024 * 1024
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = 50
	}

	router.Get("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Add("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("AquaSmart backend is running"))
	})

	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	if cfg.UploadsDir != "" {
		router.Handle("/uploads/*", http.StripPrefix("/uploads/", http.FileServer(http.Dir(cfg.UploadsDir))))
	}

	log := logging.GetFromContext(ctx)

	authenticator, err := auth.NewAuthenticator(ctx, policies)
	if err != nil {
		return nil, fmt.Errorf("failed to create api authenticator: %w", err)
	}

	router.Route("/api", func(r chi.Router) {
		r.Use(jwtauth.Verifier(svc.Accounts.TokenAuth()))
		r.Use(authenticator)

		r.Route("/auth", func(r chi.Router) {
			r.Post("/register", registerHandler(log, svc.Accounts))
			r.Post("/login", loginHandler(log, svc.Accounts))
			r.Post("/forgot-password", forgotPasswordHandler(log, svc.Accounts))
			r.Post("/reset-password", resetPasswordHandler(log, svc.Accounts))
			r.Put("/update-profile", updateProfileHandler(log, svc.Accounts))
			r.Put("/change-password", changePasswordHandler(log, svc.Accounts))
		})

		r.Get("/ponds", getPondsHandler(log, svc.Ponds))
		r.Get("/ponds/{pondId}/settings", getSettingsHandler(log, svc.Ponds, svc.Settings))
		r.Put("/ponds/{pondId}/settings", putSettingsHandler(log, svc.Ponds, svc.Settings))
		r.Post("/seed", seedHandler(log, svc.Ponds))

		r.Route("/readings", func(r chi.Router) {
			r.Post("/", addReadingHandler(log, svc.Ponds))
			r.Get("/{pondId}", getReadingsHandler(log, svc.Ponds))
			r.Get("/{pondId}/latest", getLatestReadingHandler(log, svc.Ponds))
			r.Get("/{pondId}/stats", getStatisticsHandler(log, svc.Ponds))
		})

		r.Post("/actuators/{id}/toggle", toggleActuatorHandler(log, svc.Ponds))
		r.Put("/actuators/{id}/mode", setActuatorModeHandler(log, svc.Ponds))

		r.Get("/camera-logs", getCameraLogsHandler(log, svc.Ponds))
		r.Post("/camera-logs", addCameraLogHandler(log, svc.Ponds, cfg.MaxImageBytes))

		r.Post("/analyze-health", analyzeHealthHandler(log, svc.Health, cfg.MaxImageBytes))
		r.Route("/health-session", func(r chi.Router) {
			r.Get("/", getHealthSessionHandler(log, svc.Health, cfg.HistoryLimit))
			r.Post("/", saveHealthScanHandler(log, svc.Health))
			r.Post("/sync", syncHealthSessionHandler(log, svc.Health))
			r.Get("/summary.pdf", summaryReportHandler(log, svc.Health, cfg.HistoryLimit))
			r.Get("/{id}/report.pdf", diagnosticReportHandler(log, svc.Health))
		})

		r.Get("/predict/{pondId}", predictHandler(log, svc.Ponds, svc.Forecast))
		r.Get("/predict/{pondId}/forecast", forecastHandler(log, svc.Ponds, svc.Forecast))
		r.Get("/weather", weatherHandler(log, svc.Forecast))

		r.Get("/alarms", getAlarmsHandler(log, svc.Alarms))
		r.Patch("/alarms/{alarmID}", patchAlarmsHandler(log, svc.Alarms))

		r.Get("/export/readings.xlsx", exportReadingsHandler(log, svc.Export))

		r.Handle("/events/{pondId}", svc.WebEvents.Server())
	})

	return router, nil
}

func statusFor(err error) int {
	is := func(targets ...error) bool {
		for _, t := range targets {
			if errors.Is(err, t) {
				return true
			}
		}
		return false
	}

	switch {
	case is(errBadRequest, types.ErrInvalidReading, pondmanagement.ErrInvalidMode, thresholds.ErrInvalidThreshold,
		accounts.ErrMissingFields, accounts.ErrUserExists, accounts.ErrInvalidToken, accounts.ErrNotAnImage,
		healthsessions.ErrNotAnImage, healthsessions.ErrMissingID, reports.ErrEmptyHistory):
		return http.StatusBadRequest
	case is(accounts.ErrInvalidPassword):
		return http.StatusUnauthorized
	case is(pondmanagement.ErrPondNotFound, pondmanagement.ErrActuatorNotFound, pondmanagement.ErrNoReadings,
		alarms.ErrAlarmNotFound, healthsessions.ErrScanNotFound, accounts.ErrUserNotFound):
		return http.StatusNotFound
	case is(healthsessions.ErrImageTooLarge, accounts.ErrAvatarTooLarge):
		return http.StatusRequestEntityTooLarge
	case is(classifier.ErrRejected):
		return http.StatusUnprocessableEntity
	case is(classifier.ErrClassifierUnavailable, weather.ErrWeatherUnavailable):
		return http.StatusBadGateway
	}

	var maxBytesErr *http.MaxBytesError
	if errors.As(err, &maxBytesErr) || errors.Is(err, multipart.ErrMessageTooLarge) {
		return http.StatusRequestEntityTooLarge
	}

	return http.StatusInternalServerError
}

// writeErr responds with the status that matches err. Server side failures
// get the fallback message so that internals do not leak to the client.
func writeErr(w http.ResponseWriter, logger zerolog.Logger, err error, fallback string) {
	status := statusFor(err)

	if status >= http.StatusInternalServerError && status != http.StatusBadGateway {
		logger.Error().Err(err).Msg(fallback)
		if errors.Is(err, accounts.ErrMailNotConfigured) {
			fallback = "Server email configuration missing"
		}
		writeError(w, status, fallback)
		return
	}

	logger.Debug().Err(err).Int("status", status).Msg("request failed")
	writeError(w, status, messageFor(err))
}

func messageFor(err error) string {
	switch {
	case errors.Is(err, accounts.ErrMissingFields):
		return "Missing required fields"
	case errors.Is(err, accounts.ErrUserExists):
		return "User already exists."
	case errors.Is(err, accounts.ErrUserNotFound):
		return "User not found"
	case errors.Is(err, accounts.ErrInvalidPassword):
		return "Invalid password"
	case errors.Is(err, accounts.ErrInvalidToken):
		return "Invalid or expired token"
	case errors.Is(err, classifier.ErrClassifierUnavailable):
		return "AI service unavailable"
	}
	return err.Error()
}
