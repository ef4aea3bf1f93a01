package thresholds

import (
	"errors"
	"fmt"

	"github.com/aquasmart/pond-monitoring/pkg/types"
)

var ErrInvalidThreshold = errors.New("invalid threshold")

type Metric string

const (
	MetricDO        Metric = "do"
	MetricPH        Metric = "ph"
	MetricTemp      Metric = "temp"
	MetricTurbidity Metric = "turb"
	MetricAmmonia   Metric = "amm"
	MetricSalinity  Metric = "sal"
)

var Metrics = []Metric{MetricDO, MetricPH, MetricTemp, MetricTurbidity, MetricAmmonia, MetricSalinity}

func (m Metric) Label() string {
	switch m {
	case MetricDO:
		return "Dissolved Oxygen"
	case MetricPH:
		return "pH Level"
	case MetricTemp:
		return "Temperature"
	case MetricTurbidity:
		return "Turbidity"
	case MetricAmmonia:
		return "Ammonia"
	case MetricSalinity:
		return "Salinity"
	}
	return string(m)
}

func (m Metric) Unit() string {
	switch m {
	case MetricDO:
		return "mg/L"
	case MetricPH:
		return "pH"
	case MetricTemp:
		return "°C"
	case MetricTurbidity:
		return "NTU"
	case MetricAmmonia:
		return "mg/L"
	case MetricSalinity:
		return "ppt"
	}
	return ""
}

func ParseMetric(s string) (Metric, error) {
	for _, m := range Metrics {
		if string(m) == s {
			return m, nil
		}
	}
	return "", fmt.Errorf("unknown metric %q", s)
}

// Value picks the reading field that corresponds to the metric.
func Value(r types.SensorReading, m Metric) float64 {
	switch m {
	case MetricDO:
		return r.DissolvedOxygen
	case MetricPH:
		return r.PH
	case MetricTemp:
		return r.Temperature
	case MetricTurbidity:
		return r.Turbidity
	case MetricAmmonia:
		return r.Ammonia
	case MetricSalinity:
		return r.Salinity
	}
	return 0
}

type Range struct {
	Min float64 `json:"min" yaml:"min"`
	Max float64 `json:"max" yaml:"max"`
}

func (r Range) Contains(v float64) bool {
	return v >= r.Min && v <= r.Max
}

type Thresholds struct {
	DO        Range `json:"do" yaml:"do"`
	PH        Range `json:"ph" yaml:"ph"`
	Temp      Range `json:"temp" yaml:"temp"`
	Turbidity Range `json:"turb" yaml:"turb"`
	Ammonia   Range `json:"amm" yaml:"amm"`
	Salinity  Range `json:"sal" yaml:"sal"`
}

func (t Thresholds) Range(m Metric) Range {
	switch m {
	case MetricDO:
		return t.DO
	case MetricPH:
		return t.PH
	case MetricTemp:
		return t.Temp
	case MetricTurbidity:
		return t.Turbidity
	case MetricAmmonia:
		return t.Ammonia
	case MetricSalinity:
		return t.Salinity
	}
	return Range{}
}

// Bounds are the absolute limits a configured range must stay within.
var Bounds = Thresholds{
	DO:        Range{0, 20},
	PH:        Range{0, 14},
	Temp:      Range{0, 50},
	Turbidity: Range{0, 100},
	Ammonia:   Range{0, 1},
	Salinity:  Range{0, 40},
}

func Defaults() Thresholds {
	return Thresholds{
		DO:        Range{4.0, 10.0},
		PH:        Range{7.6, 8.5},
		Temp:      Range{26, 32},
		Turbidity: Range{12, 50},
		Ammonia:   Range{0, 0.05},
		Salinity:  Range{23.5, 30},
	}
}

func (t Thresholds) Validate() error {
	for _, m := range Metrics {
		r := t.Range(m)
		b := Bounds.Range(m)

		if r.Min > r.Max {
			return fmt.Errorf("%w: %s min %g is greater than max %g", ErrInvalidThreshold, m, r.Min, r.Max)
		}
		if r.Min < b.Min || r.Max > b.Max {
			return fmt.Errorf("%w: %s range [%g, %g] outside [%g, %g]", ErrInvalidThreshold, m, r.Min, r.Max, b.Min, b.Max)
		}
	}
	return nil
}

type Automation struct {
	AeratorEnabled bool `json:"aerator" yaml:"aerator"`
	PumpEnabled    bool `json:"pump" yaml:"pump"`
	SimulationMode bool `json:"simulationMode" yaml:"simulationMode"`
}

type Notifications struct {
	EmailCritical bool `json:"emailCritical" yaml:"emailCritical"`
	SMSCritical   bool `json:"smsCritical" yaml:"smsCritical"`
	EmailWarning  bool `json:"emailWarning" yaml:"emailWarning"`
	SMSWarning    bool `json:"smsWarning" yaml:"smsWarning"`
}

// Wants reports if alarms of the given severity should be forwarded.
func (n Notifications) Wants(severity int) bool {
	switch severity {
	case types.AlarmSeverityCritical:
		return n.EmailCritical || n.SMSCritical
	case types.AlarmSeverityWarning:
		return n.EmailWarning || n.SMSWarning
	}
	return false
}

type Settings struct {
	PondID        uint          `json:"pondId" yaml:"-"`
	Thresholds    Thresholds    `json:"thresholds" yaml:"thresholds"`
	Automation    Automation    `json:"automation" yaml:"automation"`
	Notifications Notifications `json:"notifications" yaml:"notifications"`
}

func DefaultSettings(pondID uint) Settings {
	return Settings{
		PondID:     pondID,
		Thresholds: Defaults(),
		Automation: Automation{
			AeratorEnabled: true,
			PumpEnabled:    false,
		},
		Notifications: Notifications{
			EmailCritical: true,
		},
	}
}

type Direction string

const (
	Below Direction = "below"
	Above Direction = "above"
)

type Breach struct {
	Metric    Metric
	Value     float64
	Bound     float64
	Direction Direction
	Severity  int
}

func (b Breach) Description() string {
	return fmt.Sprintf("%s %g %s is %s the %s limit of %g", b.Metric.Label(), b.Value, b.Metric.Unit(), b.Direction, limitName(b.Direction), b.Bound)
}

func limitName(d Direction) string {
	if d == Below {
		return "minimum"
	}
	return "maximum"
}

// Evaluate returns a breach for every metric of the reading that falls outside
// its configured range. Low oxygen and high ammonia are critical.
func Evaluate(t Thresholds, r types.SensorReading) []Breach {
	breaches := []Breach{}

	for _, m := range Metrics {
		v := Value(r, m)
		rng := t.Range(m)

		if rng.Contains(v) {
			continue
		}

		b := Breach{Metric: m, Value: v, Severity: types.AlarmSeverityWarning}
		if v < rng.Min {
			b.Direction, b.Bound = Below, rng.Min
		} else {
			b.Direction, b.Bound = Above, rng.Max
		}

		if (m == MetricDO && b.Direction == Below) || (m == MetricAmmonia && b.Direction == Above) {
			b.Severity = types.AlarmSeverityCritical
		}

		breaches = append(breaches, b)
	}

	return breaches
}

type Decision struct {
	Aerator bool
	Pump    bool
	Reasons []string
}

// Decide evaluates the fixed automation rules. The aerator engages when
// oxygen is below its minimum or temperature is above its maximum, and the
// emergency exchange pump engages when ammonia is above its maximum.
func Decide(t Thresholds, r types.SensorReading) Decision {
	d := Decision{Reasons: []string{}}

	if r.DissolvedOxygen < t.DO.Min {
		d.Aerator = true
		d.Reasons = append(d.Reasons, fmt.Sprintf("DO %g < %g", r.DissolvedOxygen, t.DO.Min))
	}
	if r.Temperature > t.Temp.Max {
		d.Aerator = true
		d.Reasons = append(d.Reasons, fmt.Sprintf("temperature %g > %g", r.Temperature, t.Temp.Max))
	}
	if r.Ammonia > t.Ammonia.Max {
		d.Pump = true
		d.Reasons = append(d.Reasons, fmt.Sprintf("ammonia %g > %g", r.Ammonia, t.Ammonia.Max))
	}

	return d
}
