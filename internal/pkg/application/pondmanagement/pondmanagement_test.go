package pondmanagement

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/aquasmart/pond-monitoring/internal/pkg/application/softsensor"
	"github.com/aquasmart/pond-monitoring/internal/pkg/infrastructure/messagebus"
	"github.com/aquasmart/pond-monitoring/internal/pkg/infrastructure/repositories/database"
	"github.com/aquasmart/pond-monitoring/internal/pkg/infrastructure/repositories/database/ponds"
	"github.com/aquasmart/pond-monitoring/pkg/types"
	"github.com/matryer/is"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

func TestSeedCreatesDefaultPondOnce(t *testing.T) {
	is, ctx, pm, _ := testSetup(t)

	pond, created, err := pm.Seed(ctx)
	is.NoErr(err)
	is.True(created)
	is.Equal(pond.Name, SeedPondName)
	is.Equal(pond.Location, SeedPondLocation)
	is.Equal(len(pond.Actuators), 1)
	is.Equal(pond.Actuators[0].Name, "Aerator")
	is.True(!pond.Actuators[0].IsOn)

	_, created, err = pm.Seed(ctx)
	is.NoErr(err)
	is.True(!created)

	all, err := pm.GetPonds(ctx)
	is.NoErr(err)
	is.Equal(len(all), 1)
}

func TestAddReadingPublishesReadingReceived(t *testing.T) {
	is, ctx, pm, bus := testSetup(t)

	pond, _, _ := pm.Seed(ctx)

	var received types.ReadingReceived
	bus.RegisterTopicMessageHandler("pond.readingReceived", func(ctx context.Context, d amqp.Delivery, l zerolog.Logger) {
		is.NoErr(json.Unmarshal(d.Body, &received))
	})

	stored, err := pm.AddReading(ctx, types.SensorReading{PondID: pond.ID, Temperature: 28, PH: 8, DissolvedOxygen: 6})
	is.NoErr(err)
	is.True(stored.ID != 0)
	is.True(!stored.Timestamp.IsZero())
	is.Equal(received.PondID, pond.ID)
	is.Equal(received.Reading.ID, stored.ID)
}

func TestAddReadingToUnknownPond(t *testing.T) {
	is, ctx, pm, _ := testSetup(t)

	_, err := pm.AddReading(ctx, types.SensorReading{PondID: 42})
	is.True(errors.Is(err, ErrPondNotFound))
}

func TestReadingsAreReturnedNewestFirst(t *testing.T) {
	is, ctx, pm, _ := testSetup(t)

	pond, _, _ := pm.Seed(ctx)
	start := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		_, err := pm.AddReading(ctx, types.SensorReading{PondID: pond.ID, Timestamp: start.Add(time.Duration(i) * time.Minute), Temperature: float64(20 + i)})
		is.NoErr(err)
	}

	readings, err := pm.GetReadings(ctx, pond.ID, 3)
	is.NoErr(err)
	is.Equal(len(readings), 3)
	is.Equal(readings[0].Temperature, 24.0)
	is.Equal(readings[2].Temperature, 22.0)

	latest, err := pm.GetLatestReading(ctx, pond.ID)
	is.NoErr(err)
	is.Equal(latest.Temperature, 24.0)
	is.True(latest.EstimatedDissolvedOxygen)
	is.Equal(latest.Time, "08:04")
}

func TestLatestReadingWithoutReadings(t *testing.T) {
	is, ctx, pm, _ := testSetup(t)

	pond, _, _ := pm.Seed(ctx)

	_, err := pm.GetLatestReading(ctx, pond.ID)
	is.True(errors.Is(err, ErrNoReadings))
}

func TestToggleAndModes(t *testing.T) {
	is, ctx, pm, bus := testSetup(t)

	pond, _, _ := pm.Seed(ctx)
	aeratorID := pond.Actuators[0].ID

	changes := 0
	bus.RegisterTopicMessageHandler("pond.actuatorChanged", func(ctx context.Context, d amqp.Delivery, l zerolog.Logger) {
		changes++
	})

	a, err := pm.ToggleActuator(ctx, aeratorID, true)
	is.NoErr(err)
	is.True(a.IsOn)
	is.Equal(a.Mode, types.ActuatorModeOn)

	// manual mode is not overridden by automation
	_, changed, err := pm.SwitchAutomatic(ctx, aeratorID, false, "test")
	is.NoErr(err)
	is.True(!changed)

	a, err = pm.SetActuatorMode(ctx, aeratorID, types.ActuatorModeAuto)
	is.NoErr(err)
	is.True(a.IsOn)

	a, changed, err = pm.SwitchAutomatic(ctx, aeratorID, false, "DO ok")
	is.NoErr(err)
	is.True(changed)
	is.True(!a.IsOn)
	is.Equal(a.Mode, types.ActuatorModeAuto)

	_, err = pm.SetActuatorMode(ctx, aeratorID, "SOMETIMES")
	is.True(errors.Is(err, ErrInvalidMode))

	_, err = pm.ToggleActuator(ctx, 999, true)
	is.True(errors.Is(err, ErrActuatorNotFound))

	is.Equal(changes, 3)
}

func TestCameraLogs(t *testing.T) {
	is, ctx, pm, _ := testSetup(t)

	pond, _, _ := pm.Seed(ctx)

	_, err := pm.AddCameraLog(ctx, types.CameraLog{PondID: pond.ID, URL: "data:image/png;base64,AAAA", Description: "first"})
	is.NoErr(err)
	_, err = pm.AddCameraLog(ctx, types.CameraLog{PondID: pond.ID, URL: "https://example.org/2.jpg", Description: "second", Timestamp: time.Now().Add(time.Minute)})
	is.NoErr(err)

	logs, err := pm.GetCameraLogs(ctx, 0, 10)
	is.NoErr(err)
	is.Equal(len(logs), 2)
	is.Equal(logs[0].Description, "second")

	_, err = pm.AddCameraLog(ctx, types.CameraLog{PondID: 77})
	is.True(errors.Is(err, ErrPondNotFound))
}

func TestSeedFromFile(t *testing.T) {
	is, ctx, pm, _ := testSetup(t)

	csv := "name;location;actuators\nNorth;Campus;Aerator 1:aerator,Pump:pump\nSouth;Campus;\n"
	is.NoErr(pm.SeedFromFile(ctx, strings.NewReader(csv)))

	all, err := pm.GetPonds(ctx)
	is.NoErr(err)
	is.Equal(len(all), 2)
	is.Equal(len(all[0].Actuators), 2)
	is.Equal(all[0].Actuators[1].Kind, types.ActuatorKindPump)
}

func TestStatistics(t *testing.T) {
	is := is.New(t)

	readings := []types.SensorReading{
		{Temperature: 26, PH: 8, DissolvedOxygen: 5},
		{Temperature: 28, PH: 8, DissolvedOxygen: 7},
		{Temperature: 30, PH: math.NaN(), DissolvedOxygen: 6},
	}

	stats := Statistics(readings)
	is.Equal(len(stats), 6)

	temp := stats[2]
	is.Equal(temp.Metric, "temp")
	is.Equal(temp.Count, 3)
	is.Equal(temp.Mean, 28.0)
	is.Equal(temp.StdDev, 2.0)
	is.Equal(temp.Min, 26.0)
	is.Equal(temp.Max, 30.0)

	ph := stats[1]
	is.Equal(ph.Count, 2)
	is.Equal(ph.StdDev, 0.0)
}

func testSetup(t *testing.T) (*is.I, context.Context, PondManagement, messagebus.Bus) {
	is := is.New(t)

	repo, err := ponds.NewPondRepository(database.NewSQLiteConnector(zerolog.Logger{}, database.InMemoryDSN(t.Name())))
	is.NoErr(err)

	bus := messagebus.NewLocal(zerolog.Nop())

	return is, context.Background(), New(repo, bus, softsensor.New(time.UTC)), bus
}
