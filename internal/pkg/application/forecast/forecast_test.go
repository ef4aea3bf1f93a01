package forecast

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aquasmart/pond-monitoring/internal/pkg/application/pondmanagement"
	"github.com/aquasmart/pond-monitoring/internal/pkg/application/softsensor"
	"github.com/aquasmart/pond-monitoring/internal/pkg/application/thresholds"
	"github.com/aquasmart/pond-monitoring/internal/pkg/infrastructure/classifier"
	"github.com/aquasmart/pond-monitoring/internal/pkg/infrastructure/messagebus"
	"github.com/aquasmart/pond-monitoring/internal/pkg/infrastructure/repositories/database"
	"github.com/aquasmart/pond-monitoring/internal/pkg/infrastructure/repositories/database/ponds"
	"github.com/aquasmart/pond-monitoring/pkg/types"
	"github.com/matryer/is"
	"github.com/rs/zerolog"
)

var start = time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

func TestPredictNeedsFullWindow(t *testing.T) {
	is, ctx, pm, fake := testSetup(t)

	pond := addReadings(is, ctx, pm, 10)

	f := New(pm, fake, nil)
	result, err := f.Predict(ctx, pond.ID)
	is.NoErr(err)
	is.Equal(result.Warning, "Need 60 readings, got 10")
	is.Equal(fake.calls, 0)
}

func TestPredictSendsReadingsOldestFirst(t *testing.T) {
	is, ctx, pm, fake := testSetup(t)

	pond := addReadings(is, ctx, pm, 70)
	fake.prediction = types.Prediction{DO: 7}

	result, err := New(pm, fake, nil).Predict(ctx, pond.ID)
	is.NoErr(err)
	is.Equal(result.Prediction.DO, 7.0)
	is.Equal(len(fake.features), 60)
	is.Equal(fake.features[0].Temp, 10.0)
	is.Equal(fake.features[59].Temp, 69.0)
}

func TestPredictDegradesWhenModelIsDown(t *testing.T) {
	is, ctx, pm, fake := testSetup(t)

	pond := addReadings(is, ctx, pm, 60)
	fake.err = classifier.ErrClassifierUnavailable

	result, err := New(pm, fake, nil).Predict(ctx, pond.ID)
	is.NoErr(err)
	is.True(result.Prediction == nil)
	is.True(result.Warning != "")
}

func TestForecastInterpolatesTowardsPrediction(t *testing.T) {
	is, ctx, pm, fake := testSetup(t)

	pond := addReadings(is, ctx, pm, 60)
	fake.prediction = types.Prediction{Temp: 65}

	points, err := New(pm, fake, nil).Forecast(ctx, pond.ID, thresholds.MetricTemp, 0)
	is.NoErr(err)
	is.Equal(len(points), DefaultSteps)
	is.Equal(points[0].Value, 59.0+(65.0-59.0)/6)
	is.Equal(points[5].Value, 65.0)
	is.True(points[0].Timestamp.Equal(start.Add(59*time.Minute).Add(time.Hour)))
}

func TestForecastIsFlatWithoutPrediction(t *testing.T) {
	is, ctx, pm, fake := testSetup(t)

	pond := addReadings(is, ctx, pm, 5)

	points, err := New(pm, fake, nil).Forecast(ctx, pond.ID, thresholds.MetricTemp, 3)
	is.NoErr(err)
	is.Equal(len(points), 3)
	for _, p := range points {
		is.Equal(p.Value, 4.0)
	}
}

func TestInterpolateLabelsHours(t *testing.T) {
	is := is.New(t)

	points := Interpolate(time.Date(2024, 6, 1, 22, 30, 0, 0, time.UTC), 1, 3, 2)
	is.Equal(points[0].TimeLabel, "23:30")
	is.Equal(points[1].TimeLabel, "00:30")
	is.Equal(points[1].Value, 3.0)
	is.Equal(points[0].Type, "forecast")
}

func TestPredictedValuePerMetric(t *testing.T) {
	is := is.New(t)

	p := types.Prediction{DO: 1, PH: 2, Temp: 3, Turbidity: 4, Ammonia: 5, Salinity: 6}
	is.Equal(PredictedValue(p, thresholds.MetricPH), 2.0)
	is.Equal(PredictedValue(p, thresholds.MetricSalinity), 6.0)
}

func TestForecastWithoutReadings(t *testing.T) {
	is, ctx, pm, fake := testSetup(t)

	pond, _, _ := pm.Seed(ctx)

	_, err := New(pm, fake, nil).Forecast(ctx, pond.ID, thresholds.MetricDO, 6)
	is.True(errors.Is(err, ErrNoReadings))
}

func addReadings(is *is.I, ctx context.Context, pm pondmanagement.PondManagement, n int) types.Pond {
	pond, _, err := pm.Seed(ctx)
	is.NoErr(err)

	for i := 0; i < n; i++ {
		_, err := pm.AddReading(ctx, types.SensorReading{PondID: pond.ID, Timestamp: start.Add(time.Duration(i) * time.Minute), Temperature: float64(i)})
		is.NoErr(err)
	}

	return pond
}

type fakeClassifier struct {
	prediction types.Prediction
	err        error
	calls      int
	features   []classifier.Features
}

func (f *fakeClassifier) AnalyzeImage(ctx context.Context, imagePath string) (classifier.Analysis, error) {
	return classifier.Analysis{}, f.err
}

func (f *fakeClassifier) Predict(ctx context.Context, readings []classifier.Features) (types.Prediction, error) {
	f.calls++
	f.features = readings
	return f.prediction, f.err
}

func (f *fakeClassifier) Health(ctx context.Context) error {
	return f.err
}

func testSetup(t *testing.T) (*is.I, context.Context, pondmanagement.PondManagement, *fakeClassifier) {
	is := is.New(t)

	repo, err := ponds.NewPondRepository(database.NewSQLiteConnector(zerolog.Logger{}, database.InMemoryDSN(t.Name())))
	is.NoErr(err)

	pm := pondmanagement.New(repo, messagebus.NewLocal(zerolog.Nop()), softsensor.New(time.UTC))

	return is, context.Background(), pm, &fakeClassifier{}
}
