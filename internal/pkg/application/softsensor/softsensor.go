// Package softsensor derives dissolved oxygen and ammonia values for readings
// where the probe reported nothing.
package softsensor

import (
	"math"
	"time"

	"github.com/aquasmart/pond-monitoring/pkg/types"
)

const TimeLayout = "15:04"

// EstimateDO returns rawDO unless it is zero, in which case an oxygen
// saturation estimate based on temperature and salinity is returned.
func EstimateDO(temperature, salinity, rawDO float64) float64 {
	if rawDO != 0 {
		return rawDO
	}
	return math.Max(0, 14.6-0.37*temperature-0.06*salinity)
}

// EstimateAmmonia returns rawAmmonia unless it is zero, in which case it is
// estimated from turbidity.
func EstimateAmmonia(turbidity, rawAmmonia float64) float64 {
	if rawAmmonia != 0 {
		return rawAmmonia
	}
	return math.Max(0, turbidity*0.002)
}

type Estimator struct {
	location *time.Location
}

func New(location *time.Location) Estimator {
	if location == nil {
		location = time.Local
	}
	return Estimator{location: location}
}

func (e Estimator) Apply(r types.SensorReading) types.EstimatedReading {
	est := types.EstimatedReading{
		SensorReading: r,
		Time:          r.Timestamp.In(e.location).Format(TimeLayout),
	}

	est.DissolvedOxygen = EstimateDO(r.Temperature, r.Salinity, r.DissolvedOxygen)
	est.EstimatedDissolvedOxygen = r.DissolvedOxygen == 0

	est.Ammonia = EstimateAmmonia(r.Turbidity, r.Ammonia)
	est.EstimatedAmmonia = r.Ammonia == 0

	return est
}

func (e Estimator) ApplyAll(readings []types.SensorReading) []types.EstimatedReading {
	result := make([]types.EstimatedReading, 0, len(readings))
	for _, r := range readings {
		result = append(result, e.Apply(r))
	}
	return result
}
