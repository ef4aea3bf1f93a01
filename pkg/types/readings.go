package types

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

var ErrInvalidReading = errors.New("invalid reading")

// Number accepts both JSON numbers and numeric strings. Set is false when the
// value was absent, null or an empty string.
type Number struct {
	Value float64
	Set   bool
}

func NewNumber(v float64) Number {
	return Number{Value: v, Set: true}
}

func (n *Number) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*n = Number{}
		return nil
	}

	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		return n.parse(s)
	}

	var f float64
	if err := json.Unmarshal(b, &f); err != nil {
		return fmt.Errorf("%w: %s is not a number", ErrInvalidReading, string(b))
	}
	*n = NewNumber(f)
	return nil
}

func (n *Number) parse(s string) error {
	s = strings.TrimSpace(s)
	if s == "" {
		*n = Number{}
		return nil
	}

	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return fmt.Errorf("%w: %q is not a number", ErrInvalidReading, s)
	}

	*n = NewNumber(f)
	return nil
}

func (n Number) MarshalJSON() ([]byte, error) {
	if !n.Set {
		return []byte("null"), nil
	}
	return json.Marshal(n.Value)
}

// ReadingRequest is the payload devices send, over HTTP or MQTT.
type ReadingRequest struct {
	PondID    Number `json:"pondId"`
	PH        Number `json:"ph"`
	DO        Number `json:"do"`
	Temp      Number `json:"temp"`
	Turbidity Number `json:"turbidity"`
	Ammonia   Number `json:"ammonia"`
	Salinity  Number `json:"salinity"`
}

// ToReading validates the request. pH, temperature and turbidity are
// required. Missing oxygen, ammonia and salinity values are stored as zero so
// that soft sensor estimates apply.
func (r ReadingRequest) ToReading(ts time.Time) (SensorReading, error) {
	if !r.PondID.Set || r.PondID.Value < 1 || r.PondID.Value != math.Trunc(r.PondID.Value) {
		return SensorReading{}, fmt.Errorf("%w: pondId must be a positive integer", ErrInvalidReading)
	}

	for name, n := range map[string]Number{"ph": r.PH, "temp": r.Temp, "turbidity": r.Turbidity} {
		if !n.Set {
			return SensorReading{}, fmt.Errorf("%w: %s is required", ErrInvalidReading, name)
		}
	}

	return SensorReading{
		Timestamp:       ts,
		PondID:          uint(r.PondID.Value),
		Temperature:     r.Temp.Value,
		PH:              r.PH.Value,
		DissolvedOxygen: r.DO.Value,
		Turbidity:       r.Turbidity.Value,
		Ammonia:         r.Ammonia.Value,
		Salinity:        r.Salinity.Value,
	}, nil
}
