package thresholds

import (
	"errors"
	"testing"

	"github.com/aquasmart/pond-monitoring/pkg/types"
	"github.com/matryer/is"
)

func TestDefaultsAreValid(t *testing.T) {
	is := is.New(t)
	is.NoErr(Defaults().Validate())
	is.Equal(Defaults().DO, Range{4.0, 10.0})
	is.Equal(Defaults().Salinity, Range{23.5, 30})
}

func TestValidateRejectsInvertedAndOutOfBoundsRanges(t *testing.T) {
	is := is.New(t)

	th := Defaults()
	th.PH = Range{8.5, 7.6}
	is.True(errors.Is(th.Validate(), ErrInvalidThreshold))

	th = Defaults()
	th.Temp = Range{20, 55}
	is.True(errors.Is(th.Validate(), ErrInvalidThreshold))
}

func TestEvaluateReportsBreaches(t *testing.T) {
	is := is.New(t)

	r := types.SensorReading{
		DissolvedOxygen: 3.1,
		PH:              7.9,
		Temperature:     33,
		Turbidity:       30,
		Ammonia:         0.2,
		Salinity:        25,
	}

	breaches := Evaluate(Defaults(), r)
	is.Equal(len(breaches), 3)

	is.Equal(breaches[0].Metric, MetricDO)
	is.Equal(breaches[0].Direction, Below)
	is.Equal(breaches[0].Severity, types.AlarmSeverityCritical)

	is.Equal(breaches[1].Metric, MetricTemp)
	is.Equal(breaches[1].Severity, types.AlarmSeverityWarning)
	is.Equal(breaches[1].Bound, 32.0)

	is.Equal(breaches[2].Metric, MetricAmmonia)
	is.Equal(breaches[2].Severity, types.AlarmSeverityCritical)
}

func TestEvaluateWithinRangeIsEmpty(t *testing.T) {
	is := is.New(t)

	r := types.SensorReading{DissolvedOxygen: 6, PH: 8, Temperature: 29, Turbidity: 30, Ammonia: 0.01, Salinity: 25}
	is.Equal(len(Evaluate(Defaults(), r)), 0)
}

func TestDecide(t *testing.T) {
	is := is.New(t)

	th := Defaults()

	d := Decide(th, types.SensorReading{DissolvedOxygen: 6, Temperature: 29, Ammonia: 0.01})
	is.True(!d.Aerator)
	is.True(!d.Pump)

	d = Decide(th, types.SensorReading{DissolvedOxygen: 3.9, Temperature: 29})
	is.True(d.Aerator)

	d = Decide(th, types.SensorReading{DissolvedOxygen: 6, Temperature: 32.5})
	is.True(d.Aerator)

	d = Decide(th, types.SensorReading{DissolvedOxygen: 6, Temperature: 29, Ammonia: 0.06})
	is.True(d.Pump)
	is.True(!d.Aerator)
	is.Equal(len(d.Reasons), 1)
}

func TestNotificationPreferences(t *testing.T) {
	is := is.New(t)

	n := DefaultSettings(1).Notifications
	is.True(n.Wants(types.AlarmSeverityCritical))
	is.True(!n.Wants(types.AlarmSeverityWarning))
}

func TestParseMetric(t *testing.T) {
	is := is.New(t)

	m, err := ParseMetric("turb")
	is.NoErr(err)
	is.Equal(m, MetricTurbidity)

	_, err = ParseMetric("oxygen")
	is.True(err != nil)
}
