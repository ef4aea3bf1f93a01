package weather

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/matryer/is"
)

func TestCondition(t *testing.T) {
	is := is.New(t)

	is.Equal(Condition(0), "Clear Sky")
	is.Equal(Condition(2), "Partly Cloudy")
	is.Equal(Condition(45), "Foggy")
	is.Equal(Condition(61), "Rainy")
	is.Equal(Condition(71), "Clear Sky")
	is.Equal(Condition(95), "Thunderstorms")
}

func TestCurrentWeather(t *testing.T) {
	is := is.New(t)

	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		is.Equal(r.URL.Path, "/v1/forecast")
		is.Equal(r.URL.Query().Get("latitude"), "6.9271")

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"current": {"temperature_2m": 29.6, "relative_humidity_2m": 78, "precipitation": 0.2, "weather_code": 63, "wind_speed_10m": 11.4},
			"daily": {"precipitation_probability_max": [85]}
		}`))
	}))
	defer s.Close()

	w, err := New(s.URL, DefaultLocation, time.Second).Current(context.Background())
	is.NoErr(err)
	is.Equal(w.Temp, 30)
	is.Equal(w.Condition, "Rainy")
	is.Equal(w.RainChance, 85.0)
	is.Equal(w.Wind, 11)
	is.Equal(w.Humidity, 78.0)
}
