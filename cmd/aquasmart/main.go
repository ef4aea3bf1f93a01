package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"runtime/debug"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/aquasmart/pond-monitoring/internal/pkg/application/accounts"
	"github.com/aquasmart/pond-monitoring/internal/pkg/application/alarms"
	"github.com/aquasmart/pond-monitoring/internal/pkg/application/automation"
	"github.com/aquasmart/pond-monitoring/internal/pkg/application/events"
	"github.com/aquasmart/pond-monitoring/internal/pkg/application/export"
	"github.com/aquasmart/pond-monitoring/internal/pkg/application/forecast"
	"github.com/aquasmart/pond-monitoring/internal/pkg/application/healthsessions"
	"github.com/aquasmart/pond-monitoring/internal/pkg/application/pondmanagement"
	"github.com/aquasmart/pond-monitoring/internal/pkg/application/softsensor"
	"github.com/aquasmart/pond-monitoring/internal/pkg/application/thresholds"
	"github.com/aquasmart/pond-monitoring/internal/pkg/application/watchdog"
	"github.com/aquasmart/pond-monitoring/internal/pkg/application/webevents"
	"github.com/aquasmart/pond-monitoring/internal/pkg/infrastructure/classifier"
	"github.com/aquasmart/pond-monitoring/internal/pkg/infrastructure/kvstore"
	"github.com/aquasmart/pond-monitoring/internal/pkg/infrastructure/logging"
	"github.com/aquasmart/pond-monitoring/internal/pkg/infrastructure/mailer"
	"github.com/aquasmart/pond-monitoring/internal/pkg/infrastructure/messagebus"
	"github.com/aquasmart/pond-monitoring/internal/pkg/infrastructure/mqtt"
	"github.com/aquasmart/pond-monitoring/internal/pkg/infrastructure/repositories/database"
	alarmsdb "github.com/aquasmart/pond-monitoring/internal/pkg/infrastructure/repositories/database/alarms"
	"github.com/aquasmart/pond-monitoring/internal/pkg/infrastructure/repositories/database/healthscans"
	"github.com/aquasmart/pond-monitoring/internal/pkg/infrastructure/repositories/database/ponds"
	"github.com/aquasmart/pond-monitoring/internal/pkg/infrastructure/repositories/database/settings"
	"github.com/aquasmart/pond-monitoring/internal/pkg/infrastructure/repositories/database/users"
	"github.com/aquasmart/pond-monitoring/internal/pkg/infrastructure/router"
	"github.com/aquasmart/pond-monitoring/internal/pkg/infrastructure/tracing"
	"github.com/aquasmart/pond-monitoring/internal/pkg/infrastructure/weather"
	"github.com/aquasmart/pond-monitoring/internal/pkg/presentation/api"
	"github.com/aquasmart/pond-monitoring/internal/pkg/presentation/api/auth"
)

const serviceName string = "aquasmart"

func main() {
	serviceVersion := version()

	ctx, logger := logging.NewLogger(context.Background(), serviceName, serviceVersion, "info")
	ctx, flags := parseExternalConfig(ctx, logger, defaultFlags())

	if lvl, err := zerolog.ParseLevel(strings.ToLower(flags[logLevel])); err == nil {
		zerolog.SetGlobalLevel(lvl)
	}

	logger.Info().Msg("starting up ...")

	cleanup, err := tracing.Init(ctx, logger, serviceName, serviceVersion)
	exitIf(err, logger, "failed to init tracing")
	defer cleanup()

	cfgFile, err := openOptional(flags[configurationFile])
	exitIf(err, logger, "could not open configuration file")

	cfg, err := parseExternalConfigFile(cfgFile)
	exitIf(err, logger, "could not parse configuration file")

	policies, err := openPolicies(flags[policiesFile])
	exitIf(err, logger, "unable to open opa policy file")

	pondsFile, err := openOptional(flags[pondsFile])
	exitIf(err, logger, "could not open ponds file")

	app, err := initialize(ctx, flags, cfg, pondsFile)
	exitIf(err, logger, "failed to initialize application")
	defer app.shutdown()

	r, err := setupRouter(ctx, serviceName, app, policies)
	exitIf(err, logger, "failed to setup router")

	err = app.start(ctx, flags)
	exitIf(err, logger, "failed to start background services")

	addr := fmt.Sprintf("%s:%s", flags[listenAddress], flags[servicePort])
	logger.Info().Str("address", addr).Msg("starting to listen for connections")

	err = http.ListenAndServe(addr, r)
	exitIf(err, logger, "failed to start request router")
}

type application struct {
	services api.Services
	config   api.Config

	bus        messagebus.Bus
	classifier classifier.Client
	watchdog   watchdog.Watchdog
	mqtt       mqtt.Subscriber
}

func initialize(ctx context.Context, flags flagMap, cfg *appConfig, pondsFile io.ReadCloser) (*application, error) {
	log := logging.GetFromContext(ctx)

	connect := database.NewSQLiteConnector(log, flags[sqliteDSN])
	if flags[dbHost] != "" {
		connect = database.NewPostgreSQLConnector(log)
	}

	pondRepo, err := ponds.NewPondRepository(connect)
	if err != nil {
		return nil, fmt.Errorf("failed to create pond repository: %w", err)
	}
	settingsRepo, err := settings.NewSettingsRepository(connect)
	if err != nil {
		return nil, fmt.Errorf("failed to create settings repository: %w", err)
	}
	alarmRepo, err := alarmsdb.NewAlarmRepository(connect)
	if err != nil {
		return nil, fmt.Errorf("failed to create alarm repository: %w", err)
	}
	scanRepo, err := healthscans.NewHealthScanRepository(connect)
	if err != nil {
		return nil, fmt.Errorf("failed to create health scan repository: %w", err)
	}
	userRepo, err := users.NewUserRepository(connect)
	if err != nil {
		return nil, fmt.Errorf("failed to create user repository: %w", err)
	}

	var bus messagebus.Bus
	if flags[rabbitMQHost] != "" {
		bus, err = messagebus.NewRabbitMQ(serviceName, log)
		if err != nil {
			return nil, err
		}
	} else {
		log.Info().Msg("RABBITMQ_HOST not set, using in-process message bus")
		bus = messagebus.NewLocal(log)
	}

	var kv kvstore.Store
	if flags[redisAddr] != "" {
		kv = kvstore.NewRedisStore(kvstore.NewRedisClient(flags[redisAddr], flags[redisPassword], 0), serviceName+":", healthsessions.HistorySchema)
	} else {
		kv = kvstore.NewMemoryStore(healthsessions.HistorySchema)
	}

	loc, err := time.LoadLocation(flags[timeZone])
	if err != nil {
		log.Warn().Err(err).Str("tz", flags[timeZone]).Msg("unknown time zone, using local time")
		loc = time.Local
	}

	estimator := softsensor.New(loc)
	ai := classifier.New(flags[classifierURL], 30*time.Second)

	settingsSvc := thresholds.NewService(settingsRepo, cfg.Defaults)
	pm := pondmanagement.New(pondRepo, bus, estimator)
	alarmSvc := alarms.New(alarmRepo, bus, settingsSvc, estimator)

	automation.Register(bus, pm, settingsSvc, estimator)

	sender, err := events.New(cfg.events())
	if err != nil {
		return nil, fmt.Errorf("failed to create event sender: %w", err)
	}
	events.Register(bus, sender, settingsSvc)

	web := webevents.New(log)
	webevents.Register(bus, web, estimator)

	smtpPortNumber, err := strconv.Atoi(flags[smtpPort])
	if err != nil {
		return nil, fmt.Errorf("invalid smtp port %q: %w", flags[smtpPort], err)
	}

	mail := mailer.New(mailer.Config{
		Host:     flags[smtpHost],
		Port:     smtpPortNumber,
		User:     flags[smtpUser],
		Password: flags[smtpPassword],
	})

	apiConfig := api.Config{
		UploadsDir:    flags[uploadsDir],
		MaxImageBytes: cfg.Camera.MaxImageBytes,
		HistoryLimit:  cfg.Camera.HistoryLimit,
	}

	app := &application{
		services: api.Services{
			Ponds:    pm,
			Alarms:   alarmSvc,
			Settings: settingsSvc,
			Health: healthsessions.New(scanRepo, kv, ai, healthsessions.Config{
				UploadsDir:    apiConfig.UploadsDir,
				MaxImageBytes: apiConfig.MaxImageBytes,
				HistoryLimit:  apiConfig.HistoryLimit,
			}),
			Forecast: forecast.New(pm, ai, weather.New(flags[weatherURL], cfg.Weather, 10*time.Second)),
			Accounts: accounts.New(userRepo, mail, accounts.Config{
				Secret:     flags[jwtSecret],
				ResetURL:   flags[resetURL],
				UploadsDir: apiConfig.UploadsDir,
			}),
			Export:    export.New(pm),
			WebEvents: web,
		},
		config:     apiConfig,
		bus:        bus,
		classifier: ai,
		watchdog:   watchdog.New(pm, bus, ai, web, cfg.Watchdog),
	}

	if pondsFile != nil {
		defer pondsFile.Close()

		err = pm.SeedFromFile(ctx, pondsFile)
		if err != nil {
			return nil, fmt.Errorf("failed to seed ponds: %w", err)
		}
	}

	return app, nil
}

func (a *application) start(ctx context.Context, flags flagMap) error {
	a.watchdog.Start(ctx)

	if flags[mqttBroker] == "" {
		return nil
	}

	sub, err := mqtt.Subscribe(ctx, mqtt.Config{
		Broker:   flags[mqttBroker],
		ClientID: flags[mqttClientID],
		Username: flags[mqttUser],
		Password: flags[mqttPassword],
		QoS:      1,
	}, mqtt.ReadingsTopic, mqtt.NewReadingHandler(a.services.Ponds))
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", mqtt.ReadingsTopic, err)
	}

	a.mqtt = sub

	return nil
}

func (a *application) shutdown() {
	if a.mqtt != nil {
		a.mqtt.Close()
	}
	a.watchdog.Stop()
	a.services.WebEvents.Shutdown()
	a.bus.Close()
}

func setupRouter(ctx context.Context, serviceName string, app *application, policies io.ReadCloser) (*chi.Mux, error) {
	defer policies.Close()

	r := router.New(serviceName)

	return api.RegisterHandlers(ctx, r, policies, app.services, app.config)
}

// openPolicies opens the policy file, or the built in policy when no file is given.
func openPolicies(path string) (io.ReadCloser, error) {
	if path == "" {
		return io.NopCloser(strings.NewReader(auth.DefaultPolicy)), nil
	}
	return os.Open(path)
}

// openOptional returns a nil reader, and no error, when the path is empty or
// the file does not exist.
func openOptional(path string) (io.ReadCloser, error) {
	if path == "" {
		return nil, nil
	}

	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return f, nil
}

func version() string {
	buildInfo, ok := debug.ReadBuildInfo()
	if !ok {
		return "unknown"
	}

	buildSettings := buildInfo.Settings
	infoMap := map[string]string{}
	for _, s := range buildSettings {
		infoMap[s.Key] = s.Value
	}

	sha := infoMap["vcs.revision"]
	if infoMap["vcs.modified"] == "true" {
		sha += "+"
	}

	return sha
}

func exitIf(err error, logger zerolog.Logger, msg string) {
	if err != nil {
		logger.Fatal().Err(err).Msg(msg)
	}
}
