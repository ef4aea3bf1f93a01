// Package classifier is a client for the external AI service that diagnoses
// prawn images and predicts water quality.
package classifier

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/aquasmart/pond-monitoring/pkg/types"
	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// RequiredReadings is the length of the window the prediction model expects.
const RequiredReadings = 60

var ErrClassifierUnavailable = fmt.Errorf("classifier unavailable")
var ErrNotEnoughReadings = fmt.Errorf("not enough readings")
var ErrRejected = fmt.Errorf("request rejected by classifier")

type Analysis struct {
	Condition  string  `json:"condition"`
	Confidence float64 `json:"confidence"`
	Status     string  `json:"status"`
	Advice     string  `json:"advice"`
}

// Features is one reading expressed with the feature names of the model.
type Features struct {
	DO        float64 `json:"do"`
	PH        float64 `json:"ph"`
	Temp      float64 `json:"temp"`
	Turbidity float64 `json:"turbidity"`
	Ammonia   float64 `json:"ammonia"`
	Salinity  float64 `json:"salinity"`
}

func FeaturesFrom(r types.SensorReading) Features {
	return Features{
		DO:        r.DissolvedOxygen,
		PH:        r.PH,
		Temp:      r.Temperature,
		Turbidity: r.Turbidity,
		Ammonia:   r.Ammonia,
		Salinity:  r.Salinity,
	}
}

//go:generate moq -rm -out classifier_mock.go . Client

type Client interface {
	AnalyzeImage(ctx context.Context, imagePath string) (Analysis, error)
	Predict(ctx context.Context, readings []Features) (types.Prediction, error)
	Health(ctx context.Context) error
}

type errorResponse struct {
	Error string `json:"error"`
}

type client struct {
	httpClient *resty.Client
}

func New(baseURL string, timeout time.Duration) Client {
	c := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetRetryCount(2).
		SetRetryWaitTime(200 * time.Millisecond).
		SetRetryMaxWaitTime(2 * time.Second).
		SetTransport(otelhttp.NewTransport(http.DefaultTransport)).
		SetHeader("Accept", "application/json")

	return &client{httpClient: c}
}

func (c *client) AnalyzeImage(ctx context.Context, imagePath string) (Analysis, error) {
	var result Analysis
	var failure errorResponse

	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetBody(map[string]string{"imagePath": imagePath}).
		SetResult(&result).
		SetError(&failure).
		Post("/analyze-image")

	if err := check(resp, err, failure); err != nil {
		return Analysis{}, err
	}

	return result, nil
}

func (c *client) Predict(ctx context.Context, readings []Features) (types.Prediction, error) {
	if len(readings) < RequiredReadings {
		return types.Prediction{}, fmt.Errorf("%w: need %d readings, got %d", ErrNotEnoughReadings, RequiredReadings, len(readings))
	}

	var result types.Prediction
	var failure errorResponse

	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetBody(map[string]any{"readings": readings}).
		SetResult(&result).
		SetError(&failure).
		Post("/predict")

	if err := check(resp, err, failure); err != nil {
		return types.Prediction{}, err
	}

	return result, nil
}

func (c *client) Health(ctx context.Context) error {
	resp, err := c.httpClient.R().
		SetContext(ctx).
		Get("/")

	if err != nil {
		return fmt.Errorf("%w: %s", ErrClassifierUnavailable, err.Error())
	}
	if resp.IsError() {
		return fmt.Errorf("%w: status %d", ErrClassifierUnavailable, resp.StatusCode())
	}

	return nil
}

func check(resp *resty.Response, err error, failure errorResponse) error {
	if err != nil {
		return fmt.Errorf("%w: %s", ErrClassifierUnavailable, err.Error())
	}

	if resp.StatusCode() >= http.StatusInternalServerError {
		return fmt.Errorf("%w: status %d %s", ErrClassifierUnavailable, resp.StatusCode(), failure.Error)
	}

	if resp.IsError() {
		return fmt.Errorf("%w: %s", ErrRejected, failure.Error)
	}

	return nil
}
