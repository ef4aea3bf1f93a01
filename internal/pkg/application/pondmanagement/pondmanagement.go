package pondmanagement

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"time"

	"github.com/aquasmart/pond-monitoring/internal/pkg/application/softsensor"
	"github.com/aquasmart/pond-monitoring/internal/pkg/application/thresholds"
	"github.com/aquasmart/pond-monitoring/internal/pkg/infrastructure/logging"
	"github.com/aquasmart/pond-monitoring/internal/pkg/infrastructure/messagebus"
	"github.com/aquasmart/pond-monitoring/internal/pkg/infrastructure/repositories/database/ponds"
	"github.com/aquasmart/pond-monitoring/pkg/types"
	"github.com/samber/lo"
	"go.opentelemetry.io/otel"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

var tracer = otel.Tracer("aquasmart/pondmanagement")

var ErrPondNotFound = fmt.Errorf("pond not found")
var ErrActuatorNotFound = fmt.Errorf("actuator not found")
var ErrNoReadings = fmt.Errorf("no readings found")
var ErrInvalidMode = fmt.Errorf("invalid actuator mode")

const (
	SeedPondName     = "Research Pond 01"
	SeedPondLocation = "Faculty"
)

//go:generate moq -rm -out pondmanagement_mock.go . PondManagement

type PondManagement interface {
	GetPonds(ctx context.Context) ([]types.Pond, error)
	GetPond(ctx context.Context, pondID uint) (types.Pond, error)
	Seed(ctx context.Context) (types.Pond, bool, error)
	SeedFromFile(ctx context.Context, reader io.Reader) error

	AddReading(ctx context.Context, reading types.SensorReading) (types.SensorReading, error)
	GetReadings(ctx context.Context, pondID uint, limit int) ([]types.SensorReading, error)
	GetLatestReading(ctx context.Context, pondID uint) (types.EstimatedReading, error)
	GetRecentReadings(ctx context.Context, limit int) ([]types.SensorReading, error)
	GetStatistics(ctx context.Context, pondID uint, limit int) ([]types.MetricStatistics, error)

	ToggleActuator(ctx context.Context, actuatorID uint, isOn bool) (types.Actuator, error)
	SetActuatorMode(ctx context.Context, actuatorID uint, mode types.ActuatorMode) (types.Actuator, error)
	SwitchAutomatic(ctx context.Context, actuatorID uint, isOn bool, reason string) (types.Actuator, bool, error)

	AddCameraLog(ctx context.Context, log types.CameraLog) (types.CameraLog, error)
	GetCameraLogs(ctx context.Context, pondID uint, limit int) ([]types.CameraLog, error)
}

type pondManagement struct {
	repo      ponds.PondRepository
	bus       messagebus.Bus
	estimator softsensor.Estimator
}

func New(repo ponds.PondRepository, bus messagebus.Bus, estimator softsensor.Estimator) PondManagement {
	return &pondManagement{
		repo:      repo,
		bus:       bus,
		estimator: estimator,
	}
}

func (p *pondManagement) GetPonds(ctx context.Context) ([]types.Pond, error) {
	result, err := p.repo.GetPonds(ctx)
	if err != nil {
		return nil, err
	}

	return lo.Map(result, func(item ponds.Pond, _ int) types.Pond { return MapPond(item) }), nil
}

func (p *pondManagement) GetPond(ctx context.Context, pondID uint) (types.Pond, error) {
	pond, err := p.repo.GetPond(ctx, pondID)
	if err != nil {
		return types.Pond{}, mapErr(err)
	}
	return MapPond(pond), nil
}

// Seed creates the default research pond with an aerator, unless ponds
// already exist. The returned bool reports whether a pond was created.
func (p *pondManagement) Seed(ctx context.Context) (types.Pond, bool, error) {
	count, err := p.repo.CountPonds(ctx)
	if err != nil {
		return types.Pond{}, false, err
	}

	if count > 0 {
		return types.Pond{}, false, nil
	}

	pond := ponds.Pond{
		Name:     SeedPondName,
		Location: SeedPondLocation,
		Actuators: []ponds.Actuator{
			{Name: "Aerator", Kind: types.ActuatorKindAerator, IsOn: false, Mode: string(types.ActuatorModeOff)},
		},
	}

	err = p.repo.CreatePond(ctx, &pond)
	if err != nil {
		return types.Pond{}, false, err
	}

	logger := logging.GetFromContext(ctx)
	logger.Info().Uint("pondID", pond.ID).Msg("seeded default pond")

	return MapPond(pond), true, nil
}

func (p *pondManagement) SeedFromFile(ctx context.Context, reader io.Reader) error {
	return p.repo.Seed(ctx, reader)
}

func (p *pondManagement) AddReading(ctx context.Context, reading types.SensorReading) (types.SensorReading, error) {
	var err error
	ctx, span := tracer.Start(ctx, "add-reading")
	defer span.End()

	if _, err = p.repo.GetPond(ctx, reading.PondID); err != nil {
		return types.SensorReading{}, mapErr(err)
	}

	model := ponds.SensorReading{
		Timestamp:       reading.Timestamp,
		PondID:          reading.PondID,
		Temperature:     reading.Temperature,
		PH:              reading.PH,
		DissolvedOxygen: reading.DissolvedOxygen,
		Turbidity:       reading.Turbidity,
		Ammonia:         reading.Ammonia,
		Salinity:        reading.Salinity,
	}

	err = p.repo.AddReading(ctx, &model)
	if err != nil {
		return types.SensorReading{}, err
	}

	stored := MapReading(model)

	msg := &types.ReadingReceived{
		PondID:    stored.PondID,
		Reading:   stored,
		Timestamp: time.Now().UTC(),
	}

	err = p.bus.PublishOnTopic(ctx, msg)
	if err != nil {
		// the reading is stored even if nobody could be told about it
		logger := logging.GetFromContext(ctx)
		logger.Error().Err(err).Uint("pondID", stored.PondID).Msg("failed to publish reading")
	}

	return stored, nil
}

func (p *pondManagement) GetReadings(ctx context.Context, pondID uint, limit int) ([]types.SensorReading, error) {
	result, err := p.repo.GetReadings(ctx, pondID, limit)
	if err != nil {
		return nil, err
	}
	return lo.Map(result, func(item ponds.SensorReading, _ int) types.SensorReading { return MapReading(item) }), nil
}

func (p *pondManagement) GetLatestReading(ctx context.Context, pondID uint) (types.EstimatedReading, error) {
	r, err := p.repo.GetLatestReading(ctx, pondID)
	if err != nil {
		return types.EstimatedReading{}, mapErr(err)
	}
	return p.estimator.Apply(MapReading(r)), nil
}

func (p *pondManagement) GetRecentReadings(ctx context.Context, limit int) ([]types.SensorReading, error) {
	result, err := p.repo.GetRecentReadings(ctx, limit)
	if err != nil {
		return nil, err
	}
	return lo.Map(result, func(item ponds.SensorReading, _ int) types.SensorReading { return MapReading(item) }), nil
}

// GetStatistics summarises the last limit readings of a pond per metric,
// using soft sensor values where the probes reported nothing.
func (p *pondManagement) GetStatistics(ctx context.Context, pondID uint, limit int) ([]types.MetricStatistics, error) {
	readings, err := p.GetReadings(ctx, pondID, limit)
	if err != nil {
		return nil, err
	}

	if len(readings) == 0 {
		return nil, ErrNoReadings
	}

	estimated := lo.Map(p.estimator.ApplyAll(readings), func(e types.EstimatedReading, _ int) types.SensorReading {
		return e.SensorReading
	})

	return Statistics(estimated), nil
}

// Statistics computes count, mean, standard deviation, min and max for every
// metric. Readings with a NaN value for a metric are left out of that metric.
func Statistics(readings []types.SensorReading) []types.MetricStatistics {
	result := make([]types.MetricStatistics, 0, len(thresholds.Metrics))

	for _, m := range thresholds.Metrics {
		values := []float64{}
		for _, r := range readings {
			if v := thresholds.Value(r, m); !math.IsNaN(v) {
				values = append(values, v)
			}
		}

		s := types.MetricStatistics{Metric: string(m), Count: len(values)}
		if len(values) > 0 {
			s.Mean, s.StdDev = stat.MeanStdDev(values, nil)
			if len(values) == 1 {
				s.StdDev = 0
			}
			s.Min = floats.Min(values)
			s.Max = floats.Max(values)
		}

		result = append(result, s)
	}

	return result
}

// ToggleActuator switches an actuator manually. On maps to mode ON and off to mode OFF.
func (p *pondManagement) ToggleActuator(ctx context.Context, actuatorID uint, isOn bool) (types.Actuator, error) {
	mode := types.ActuatorModeOff
	if isOn {
		mode = types.ActuatorModeOn
	}
	return p.SetActuatorMode(ctx, actuatorID, mode)
}

func (p *pondManagement) SetActuatorMode(ctx context.Context, actuatorID uint, mode types.ActuatorMode) (types.Actuator, error) {
	if !mode.Valid() {
		return types.Actuator{}, fmt.Errorf("%w: %s", ErrInvalidMode, mode)
	}

	a, err := p.repo.GetActuator(ctx, actuatorID)
	if err != nil {
		return types.Actuator{}, mapErr(err)
	}

	a.Mode = string(mode)
	switch mode {
	case types.ActuatorModeOn:
		a.IsOn = true
	case types.ActuatorModeOff:
		a.IsOn = false
	}

	err = p.repo.SaveActuator(ctx, &a)
	if err != nil {
		return types.Actuator{}, err
	}

	result := MapActuator(a)
	p.publishActuatorChanged(ctx, result, "manual", false)

	return result, nil
}

// SwitchAutomatic changes the state of an actuator in AUTO mode. Actuators in
// any other mode are left alone. The returned bool reports whether the state changed.
func (p *pondManagement) SwitchAutomatic(ctx context.Context, actuatorID uint, isOn bool, reason string) (types.Actuator, bool, error) {
	a, err := p.repo.GetActuator(ctx, actuatorID)
	if err != nil {
		return types.Actuator{}, false, mapErr(err)
	}

	if types.ActuatorMode(a.Mode) != types.ActuatorModeAuto || a.IsOn == isOn {
		return MapActuator(a), false, nil
	}

	a.IsOn = isOn
	err = p.repo.SaveActuator(ctx, &a)
	if err != nil {
		return types.Actuator{}, false, err
	}

	result := MapActuator(a)
	p.publishActuatorChanged(ctx, result, reason, false)

	return result, true, nil
}

func (p *pondManagement) publishActuatorChanged(ctx context.Context, a types.Actuator, reason string, simulated bool) {
	err := p.bus.PublishOnTopic(ctx, &types.ActuatorChanged{
		Actuator:  a,
		Reason:    reason,
		Simulated: simulated,
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		logger := logging.GetFromContext(ctx)
		logger.Error().Err(err).Uint("actuatorID", a.ID).Msg("failed to publish actuator change")
	}
}

func (p *pondManagement) AddCameraLog(ctx context.Context, log types.CameraLog) (types.CameraLog, error) {
	if _, err := p.repo.GetPond(ctx, log.PondID); err != nil {
		return types.CameraLog{}, mapErr(err)
	}

	model := ponds.CameraLog{
		Timestamp:   log.Timestamp,
		PondID:      log.PondID,
		URL:         log.URL,
		Description: log.Description,
	}

	err := p.repo.AddCameraLog(ctx, &model)
	if err != nil {
		return types.CameraLog{}, err
	}

	return MapCameraLog(model), nil
}

func (p *pondManagement) GetCameraLogs(ctx context.Context, pondID uint, limit int) ([]types.CameraLog, error) {
	result, err := p.repo.GetCameraLogs(ctx, pondID, limit)
	if err != nil {
		return nil, err
	}
	return lo.Map(result, func(item ponds.CameraLog, _ int) types.CameraLog { return MapCameraLog(item) }), nil
}

func mapErr(err error) error {
	switch {
	case errors.Is(err, ponds.ErrPondNotFound):
		return ErrPondNotFound
	case errors.Is(err, ponds.ErrActuatorNotFound):
		return ErrActuatorNotFound
	case errors.Is(err, ponds.ErrNoReadings):
		return ErrNoReadings
	}
	return err
}
