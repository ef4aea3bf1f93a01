// Package client is a Go client for the AquaSmart REST API.
package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/tracing"
	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"

	"github.com/aquasmart/pond-monitoring/internal/pkg/application/scheduler"
	"github.com/aquasmart/pond-monitoring/internal/pkg/infrastructure/logging"
	"github.com/aquasmart/pond-monitoring/pkg/types"
)

var tracer = otel.Tracer("aquasmart-client")

var ErrNotFound = errors.New("not found")
var ErrRequestFailed = errors.New("request failed")

type Client interface {
	Ponds(ctx context.Context) ([]types.Pond, error)
	Readings(ctx context.Context, pondID uint) ([]types.SensorReading, error)
	LatestReading(ctx context.Context, pondID uint) (types.EstimatedReading, error)
	AddReading(ctx context.Context, reading types.ReadingRequest) (types.SensorReading, error)
	Alarms(ctx context.Context, onlyActive bool) ([]types.Alarm, error)
	Login(ctx context.Context, email, password string) error

	WatchReadings(ctx context.Context, pondID uint, interval time.Duration, fn func(types.EstimatedReading)) (stop func())
}

type aquaSmartClient struct {
	httpClient *resty.Client
}

func New(baseURL string) Client {
	c := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(10 * time.Second).
		SetRetryCount(2).
		SetRetryWaitTime(200 * time.Millisecond).
		SetTransport(otelhttp.NewTransport(http.DefaultTransport)).
		SetHeader("Accept", "application/json")

	return &aquaSmartClient{httpClient: c}
}

func (c *aquaSmartClient) Ponds(ctx context.Context) ([]types.Pond, error) {
	var err error
	ctx, span := tracer.Start(ctx, "get-ponds")
	defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()

	result := []types.Pond{}
	err = c.get(ctx, "/api/ponds", &result)

	return result, err
}

func (c *aquaSmartClient) Readings(ctx context.Context, pondID uint) ([]types.SensorReading, error) {
	var err error
	ctx, span := tracer.Start(ctx, "get-readings")
	defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()

	result := []types.SensorReading{}
	err = c.get(ctx, "/api/readings/"+strconv.FormatUint(uint64(pondID), 10), &result)

	return result, err
}

func (c *aquaSmartClient) LatestReading(ctx context.Context, pondID uint) (types.EstimatedReading, error) {
	var err error
	ctx, span := tracer.Start(ctx, "get-latest-reading")
	defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()

	result := types.EstimatedReading{}
	err = c.get(ctx, fmt.Sprintf("/api/readings/%d/latest", pondID), &result)

	return result, err
}

func (c *aquaSmartClient) AddReading(ctx context.Context, reading types.ReadingRequest) (types.SensorReading, error) {
	var err error
	ctx, span := tracer.Start(ctx, "add-reading")
	defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()

	result := types.SensorReading{}

	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetBody(reading).
		SetResult(&result).
		Post("/api/readings")

	err = check(resp, err)

	return result, err
}

func (c *aquaSmartClient) Alarms(ctx context.Context, onlyActive bool) ([]types.Alarm, error) {
	var err error
	ctx, span := tracer.Start(ctx, "get-alarms")
	defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()

	result := []types.Alarm{}
	err = c.get(ctx, "/api/alarms?active="+strconv.FormatBool(onlyActive), &result)

	return result, err
}

// Login exchanges credentials for a token that is sent with every following request.
func (c *aquaSmartClient) Login(ctx context.Context, email, password string) error {
	var err error
	ctx, span := tracer.Start(ctx, "login")
	defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()

	session := struct {
		Token string `json:"token"`
	}{}

	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetBody(map[string]string{"email": email, "password": password}).
		SetResult(&session).
		Post("/api/auth/login")

	if err = check(resp, err); err != nil {
		return err
	}

	c.httpClient.SetAuthToken(session.Token)

	return nil
}

// WatchReadings polls the latest reading of a pond and calls fn with every
// reading that is newer than the previous one. Older responses that arrive
// late are dropped.
func (c *aquaSmartClient) WatchReadings(ctx context.Context, pondID uint, interval time.Duration, fn func(types.EstimatedReading)) func() {
	log := logging.GetFromContext(ctx).With().Uint("pondID", pondID).Logger()

	var last time.Time

	poller := scheduler.New(interval,
		func(ctx context.Context) (types.EstimatedReading, error) {
			return c.LatestReading(ctx, pondID)
		},
		func(seq uint64, r types.EstimatedReading, err error) {
			if err != nil {
				logFailure(log, err)
				return
			}
			if !r.Timestamp.After(last) {
				return
			}
			last = r.Timestamp
			fn(r)
		})

	poller.Start(ctx)

	return poller.Stop
}

func logFailure(log zerolog.Logger, err error) {
	if errors.Is(err, ErrNotFound) {
		log.Debug().Err(err).Msg("no reading yet")
		return
	}
	log.Warn().Err(err).Msg("failed to poll latest reading")
}

func (c *aquaSmartClient) get(ctx context.Context, path string, result any) error {
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetResult(result).
		Get(path)

	return check(resp, err)
}

func check(resp *resty.Response, err error) error {
	if err != nil {
		return fmt.Errorf("%w: %s", ErrRequestFailed, err.Error())
	}

	if resp.StatusCode() == http.StatusNotFound {
		return fmt.Errorf("%w: %s", ErrNotFound, resp.Request.URL)
	}

	if resp.IsError() {
		return fmt.Errorf("%w: status %d", ErrRequestFailed, resp.StatusCode())
	}

	return nil
}
