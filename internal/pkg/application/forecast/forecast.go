package forecast

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aquasmart/pond-monitoring/internal/pkg/application/pondmanagement"
	"github.com/aquasmart/pond-monitoring/internal/pkg/application/thresholds"
	"github.com/aquasmart/pond-monitoring/internal/pkg/infrastructure/classifier"
	"github.com/aquasmart/pond-monitoring/internal/pkg/infrastructure/logging"
	"github.com/aquasmart/pond-monitoring/internal/pkg/infrastructure/weather"
	"github.com/aquasmart/pond-monitoring/pkg/types"
	"github.com/samber/lo"
)

const (
	DefaultSteps    = 6
	forecastHistory = 24
	timeLabelLayout = "15:04"
)

var ErrNoReadings = pondmanagement.ErrNoReadings

// Result is either a prediction or a warning explaining why there is none.
type Result struct {
	Prediction *types.Prediction
	Warning    string
}

//go:generate moq -rm -out forecast_mock.go . Forecaster

type Forecaster interface {
	Predict(ctx context.Context, pondID uint) (Result, error)
	Forecast(ctx context.Context, pondID uint, metric thresholds.Metric, steps int) ([]types.ForecastPoint, error)
	Weather(ctx context.Context) (types.Weather, error)
}

type forecaster struct {
	ponds      pondmanagement.PondManagement
	classifier classifier.Client
	weather    weather.Client
}

func New(ponds pondmanagement.PondManagement, c classifier.Client, w weather.Client) Forecaster {
	return &forecaster{ponds: ponds, classifier: c, weather: w}
}

// Predict sends the last window of readings, oldest first, to the prediction
// model. Too few readings or an unreachable model give a warning, not an error.
func (f *forecaster) Predict(ctx context.Context, pondID uint) (Result, error) {
	readings, err := f.ponds.GetReadings(ctx, pondID, classifier.RequiredReadings)
	if err != nil {
		return Result{}, err
	}

	if len(readings) < classifier.RequiredReadings {
		return Result{Warning: fmt.Sprintf("Need %d readings, got %d", classifier.RequiredReadings, len(readings))}, nil
	}

	features := lo.Map(lo.Reverse(readings), func(r types.SensorReading, _ int) classifier.Features {
		return classifier.FeaturesFrom(r)
	})

	p, err := f.classifier.Predict(ctx, features)
	if err != nil {
		if errors.Is(err, classifier.ErrClassifierUnavailable) || errors.Is(err, classifier.ErrRejected) || errors.Is(err, classifier.ErrNotEnoughReadings) {
			logger := logging.GetFromContext(ctx)
			logger.Warn().Err(err).Uint("pondID", pondID).Msg("prediction unavailable")
			return Result{Warning: "AI model unavailable"}, nil
		}
		return Result{}, err
	}

	return Result{Prediction: &p}, nil
}

// Forecast interpolates linearly from the latest reading towards the
// predicted value, one point per hour. Without a prediction the forecast is a
// flat line at the latest value.
func (f *forecaster) Forecast(ctx context.Context, pondID uint, metric thresholds.Metric, steps int) ([]types.ForecastPoint, error) {
	if steps <= 0 {
		steps = DefaultSteps
	}

	readings, err := f.ponds.GetReadings(ctx, pondID, forecastHistory)
	if err != nil {
		return nil, err
	}
	if len(readings) == 0 {
		return nil, ErrNoReadings
	}

	latest := readings[0]
	start := thresholds.Value(latest, metric)
	target := start

	result, err := f.Predict(ctx, pondID)
	if err != nil {
		return nil, err
	}
	if result.Prediction != nil {
		target = PredictedValue(*result.Prediction, metric)
	}

	return Interpolate(latest.Timestamp, start, target, steps), nil
}

func Interpolate(from time.Time, start, target float64, steps int) []types.ForecastPoint {
	points := make([]types.ForecastPoint, 0, steps)

	for i := 1; i <= steps; i++ {
		ts := from.Add(time.Duration(i) * time.Hour)
		points = append(points, types.ForecastPoint{
			Timestamp: ts,
			TimeLabel: ts.Format(timeLabelLayout),
			Type:      "forecast",
			Value:     start + (target-start)*float64(i)/float64(steps),
		})
	}

	return points
}

func PredictedValue(p types.Prediction, metric thresholds.Metric) float64 {
	switch metric {
	case thresholds.MetricDO:
		return p.DO
	case thresholds.MetricPH:
		return p.PH
	case thresholds.MetricTemp:
		return p.Temp
	case thresholds.MetricTurbidity:
		return p.Turbidity
	case thresholds.MetricAmmonia:
		return p.Ammonia
	case thresholds.MetricSalinity:
		return p.Salinity
	}
	return 0
}

func (f *forecaster) Weather(ctx context.Context) (types.Weather, error) {
	return f.weather.Current(ctx)
}
