// Package weather reads current conditions from the open-meteo forecast API.
package weather

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"time"

	"github.com/aquasmart/pond-monitoring/pkg/types"
	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const DefaultBaseURL = "https://api.open-meteo.com"

var ErrWeatherUnavailable = fmt.Errorf("weather service unavailable")

type Location struct {
	Latitude  float64 `yaml:"latitude"`
	Longitude float64 `yaml:"longitude"`
}

// Colombo, Sri Lanka.
var DefaultLocation = Location{Latitude: 6.9271, Longitude: 79.8612}

//go:generate moq -rm -out weather_mock.go . Client

type Client interface {
	Current(ctx context.Context) (types.Weather, error)
}

type forecastResponse struct {
	Current struct {
		Temperature   float64 `json:"temperature_2m"`
		Humidity      float64 `json:"relative_humidity_2m"`
		Precipitation float64 `json:"precipitation"`
		WeatherCode   int     `json:"weather_code"`
		WindSpeed     float64 `json:"wind_speed_10m"`
	} `json:"current"`
	Daily struct {
		PrecipitationProbabilityMax []float64 `json:"precipitation_probability_max"`
	} `json:"daily"`
}

type client struct {
	httpClient *resty.Client
	location   Location
}

func New(baseURL string, location Location, timeout time.Duration) Client {
	c := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetRetryCount(2).
		SetTransport(otelhttp.NewTransport(http.DefaultTransport)).
		SetHeader("Accept", "application/json")

	return &client{httpClient: c, location: location}
}

func (c *client) Current(ctx context.Context) (types.Weather, error) {
	var result forecastResponse

	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"latitude":  fmt.Sprintf("%g", c.location.Latitude),
			"longitude": fmt.Sprintf("%g", c.location.Longitude),
			"current":   "temperature_2m,relative_humidity_2m,precipitation,weather_code,wind_speed_10m",
			"daily":     "precipitation_probability_max",
			"timezone":  "auto",
		}).
		SetResult(&result).
		Get("/v1/forecast")

	if err != nil {
		return types.Weather{}, fmt.Errorf("%w: %s", ErrWeatherUnavailable, err.Error())
	}
	if resp.IsError() {
		return types.Weather{}, fmt.Errorf("%w: status %d", ErrWeatherUnavailable, resp.StatusCode())
	}

	w := types.Weather{
		Temp:      int(math.Round(result.Current.Temperature)),
		Condition: Condition(result.Current.WeatherCode),
		Wind:      int(math.Round(result.Current.WindSpeed)),
		Humidity:  result.Current.Humidity,
	}

	if len(result.Daily.PrecipitationProbabilityMax) > 0 {
		w.RainChance = result.Daily.PrecipitationProbabilityMax[0]
	}

	return w, nil
}

// Condition maps a WMO weather code to a label.
func Condition(code int) string {
	switch {
	case code >= 1 && code <= 3:
		return "Partly Cloudy"
	case code >= 45 && code <= 48:
		return "Foggy"
	case code >= 51 && code <= 67:
		return "Rainy"
	case code >= 80 && code <= 99:
		return "Thunderstorms"
	}
	return "Clear Sky"
}
