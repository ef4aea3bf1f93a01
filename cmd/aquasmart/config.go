package main

import (
	"context"
	"flag"
	"io"
	"time"

	"github.com/diwise/service-chassis/pkg/infrastructure/env"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v2"

	"github.com/aquasmart/pond-monitoring/internal/pkg/application/events"
	"github.com/aquasmart/pond-monitoring/internal/pkg/application/thresholds"
	"github.com/aquasmart/pond-monitoring/internal/pkg/application/watchdog"
	"github.com/aquasmart/pond-monitoring/internal/pkg/infrastructure/weather"
)

type flagType int
type flagMap map[flagType]string

const (
	listenAddress flagType = iota
	servicePort
	logLevel

	policiesFile
	configurationFile
	pondsFile
	uploadsDir

	dbHost
	sqliteDSN

	redisAddr
	redisPassword

	rabbitMQHost

	mqttBroker
	mqttClientID
	mqttUser
	mqttPassword

	classifierURL
	weatherURL
	timeZone

	jwtSecret
	resetURL
	smtpHost
	smtpPort
	smtpUser
	smtpPassword
)

func defaultFlags() flagMap {
	return flagMap{
		listenAddress: "0.0.0.0",
		servicePort:   "3001",
		logLevel:      "info",

		policiesFile:      "",
		configurationFile: "assets/config/config.yaml",
		pondsFile:         "",
		uploadsDir:        "uploads",

		dbHost:    "",
		sqliteDSN: "aquasmart.db",

		mqttClientID: serviceName,

		classifierURL: "http://localhost:5000",
		weatherURL:    weather.DefaultBaseURL,
		timeZone:      "Local",

		jwtSecret: "aquasmart-dev-secret",
		resetURL:  "http://localhost:5173/reset-password",
		smtpPort:  "465",
	}
}

func parseExternalConfig(ctx context.Context, log zerolog.Logger, flags flagMap) (context.Context, flagMap) {
	// Allow environment variables to override certain defaults
	envOrDef := func(name string, f flagType) {
		flags[f] = env.GetVariableOrDefault(log, name, flags[f])
	}

	envOrDef("LISTEN_ADDRESS", listenAddress)
	envOrDef("SERVICE_PORT", servicePort)
	envOrDef("LOG_LEVEL", logLevel)

	envOrDef("POLICIES_FILE", policiesFile)
	envOrDef("CONFIG_FILE", configurationFile)
	envOrDef("PONDS_FILE", pondsFile)
	envOrDef("UPLOADS_DIR", uploadsDir)

	envOrDef("POSTGRES_HOST", dbHost)
	envOrDef("SQLITE_DSN", sqliteDSN)

	envOrDef("REDIS_ADDR", redisAddr)
	envOrDef("REDIS_PASSWORD", redisPassword)

	envOrDef("RABBITMQ_HOST", rabbitMQHost)

	envOrDef("MQTT_BROKER", mqttBroker)
	envOrDef("MQTT_CLIENT_ID", mqttClientID)
	envOrDef("MQTT_USER", mqttUser)
	envOrDef("MQTT_PASSWORD", mqttPassword)

	envOrDef("CLASSIFIER_URL", classifierURL)
	envOrDef("WEATHER_URL", weatherURL)
	envOrDef("TZ", timeZone)

	envOrDef("JWT_SECRET", jwtSecret)
	envOrDef("RESET_PASSWORD_URL", resetURL)
	envOrDef("SMTP_HOST", smtpHost)
	envOrDef("SMTP_PORT", smtpPort)
	envOrDef("EMAIL_USER", smtpUser)
	envOrDef("EMAIL_PASS", smtpPassword)

	apply := func(f flagType) func(string) error {
		return func(value string) error {
			flags[f] = value
			return nil
		}
	}

	// Allow command line arguments to override defaults and environment variables
	flag.Func("policies", "an authorization policy file", apply(policiesFile))
	flag.Func("config", "service configuration file", apply(configurationFile))
	flag.Func("ponds", "ponds to seed on startup", apply(pondsFile))
	flag.Func("uploads", "directory for uploaded images", apply(uploadsDir))
	flag.Parse()

	return ctx, flags
}

type cameraConfig struct {
	MaxImageBytes int64 `yaml:"maxImageBytes"`
	HistoryLimit  int   `yaml:"historyLimit"`
}

type appConfig struct {
	Defaults      *thresholds.Settings `yaml:"defaults"`
	Notifications []events.Notification `yaml:"notifications"`
	Watchdog      watchdog.Config       `yaml:"watchdog"`
	Weather       weather.Location      `yaml:"weather"`
	Camera        cameraConfig          `yaml:"camera"`
}

func defaultAppConfig() *appConfig {
	defaults := thresholds.DefaultSettings(0)

	return &appConfig{
		Defaults: &defaults,
		Watchdog: watchdog.DefaultConfig(),
		Weather:  weather.DefaultLocation,
		Camera: cameraConfig{
			MaxImageBytes: 5 * 1024 * 1024,
			HistoryLimit:  50,
		},
	}
}

// parseExternalConfigFile reads the yaml configuration on top of the defaults.
// A nil reader leaves the defaults in place.
func parseExternalConfigFile(cfgFile io.ReadCloser) (*appConfig, error) {
	cfg := defaultAppConfig()
	if cfgFile == nil {
		return cfg, nil
	}
	defer cfgFile.Close()

	b, err := io.ReadAll(cfgFile)
	if err != nil {
		return nil, err
	}

	err = yaml.Unmarshal(b, cfg)
	if err != nil {
		return nil, err
	}

	if cfg.Watchdog.Interval <= 0 {
		cfg.Watchdog.Interval = time.Minute
	}
	if cfg.Watchdog.PondSilence <= 0 {
		cfg.Watchdog.PondSilence = 15 * time.Minute
	}
	if cfg.Watchdog.ClassifierInterval <= 0 {
		cfg.Watchdog.ClassifierInterval = 30 * time.Second
	}

	if cfg.Defaults != nil {
		if err := cfg.Defaults.Thresholds.Validate(); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

func (c *appConfig) events() *events.Config {
	return &events.Config{Notifications: c.Notifications}
}
