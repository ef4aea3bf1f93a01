package ponds

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	. "github.com/aquasmart/pond-monitoring/internal/pkg/infrastructure/repositories/database"
	"github.com/matryer/is"
	"github.com/rs/zerolog"
)

func TestCreateAndGetPonds(t *testing.T) {
	is, ctx, r := testSetupPondRepository(t)

	err := r.CreatePond(ctx, &Pond{
		Name:      "Research Pond 01",
		Location:  "Faculty",
		Actuators: []Actuator{{Name: "Aerator", Kind: "aerator", Mode: "OFF"}},
	})
	is.NoErr(err)

	ponds, err := r.GetPonds(ctx)
	is.NoErr(err)
	is.Equal(len(ponds), 1)
	is.Equal(ponds[0].Name, "Research Pond 01")
	is.Equal(len(ponds[0].Actuators), 1)
	is.Equal(ponds[0].Actuators[0].PondID, ponds[0].ID)

	count, err := r.CountPonds(ctx)
	is.NoErr(err)
	is.Equal(count, int64(1))
}

func TestGetUnknownPond(t *testing.T) {
	is, ctx, r := testSetupPondRepository(t)

	_, err := r.GetPond(ctx, 4711)
	is.True(errors.Is(err, ErrPondNotFound))

	_, err = r.GetActuator(ctx, 4711)
	is.True(errors.Is(err, ErrActuatorNotFound))
}

func TestReadingsAreReturnedNewestFirstAndLimited(t *testing.T) {
	is, ctx, r := testSetupPondRepository(t)

	pond := &Pond{Name: "p", Location: "l"}
	is.NoErr(r.CreatePond(ctx, pond))

	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 60; i++ {
		err := r.AddReading(ctx, &SensorReading{
			PondID:      pond.ID,
			Timestamp:   start.Add(time.Duration(i) * time.Minute),
			Temperature: float64(i),
		})
		is.NoErr(err)
	}

	readings, err := r.GetReadings(ctx, pond.ID, 50)
	is.NoErr(err)
	is.Equal(len(readings), 50)
	is.Equal(readings[0].Temperature, 59.0)
	is.Equal(readings[49].Temperature, 10.0)

	latest, err := r.GetLatestReading(ctx, pond.ID)
	is.NoErr(err)
	is.Equal(latest.Temperature, 59.0)
}

func TestLatestReadingOfEmptyPond(t *testing.T) {
	is, ctx, r := testSetupPondRepository(t)

	pond := &Pond{Name: "empty"}
	is.NoErr(r.CreatePond(ctx, pond))

	_, err := r.GetLatestReading(ctx, pond.ID)
	is.True(errors.Is(err, ErrNoReadings))
}

func TestCameraLogsFilteredByPond(t *testing.T) {
	is, ctx, r := testSetupPondRepository(t)

	is.NoErr(r.AddCameraLog(ctx, &CameraLog{PondID: 1, URL: "data:image/png;base64,AAAA"}))
	is.NoErr(r.AddCameraLog(ctx, &CameraLog{PondID: 2, URL: "data:image/png;base64,BBBB"}))
	is.NoErr(r.AddCameraLog(ctx, &CameraLog{PondID: 2, URL: "data:image/png;base64,CCCC"}))

	all, err := r.GetCameraLogs(ctx, 0, 10)
	is.NoErr(err)
	is.Equal(len(all), 3)

	pond2, err := r.GetCameraLogs(ctx, 2, 10)
	is.NoErr(err)
	is.Equal(len(pond2), 2)
}

func TestSeedIsIdempotent(t *testing.T) {
	is, ctx, r := testSetupPondRepository(t)

	csv := "name;location;actuators\nResearch Pond 01;Faculty;Aerator:aerator,Emergency Exchange:pump\nNursery;Hatchery;\n"

	is.NoErr(r.Seed(ctx, strings.NewReader(csv)))
	is.NoErr(r.Seed(ctx, strings.NewReader(csv)))

	ponds, err := r.GetPonds(ctx)
	is.NoErr(err)
	is.Equal(len(ponds), 2)
	is.Equal(len(ponds[0].Actuators), 2)
	is.Equal(ponds[0].Actuators[1].Kind, "pump")
}

func testSetupPondRepository(t *testing.T) (*is.I, context.Context, PondRepository) {
	is := is.New(t)

	conn := NewSQLiteConnector(zerolog.Logger{}, InMemoryDSN(t.Name()))

	r, err := NewPondRepository(conn)
	is.NoErr(err)

	return is, context.Background(), r
}
