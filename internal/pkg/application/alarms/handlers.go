package alarms

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aquasmart/pond-monitoring/internal/pkg/application/softsensor"
	"github.com/aquasmart/pond-monitoring/internal/pkg/application/thresholds"
	"github.com/aquasmart/pond-monitoring/internal/pkg/infrastructure/logging"
	"github.com/aquasmart/pond-monitoring/pkg/types"
	"github.com/diwise/messaging-golang/pkg/messaging"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/tracing"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("aquasmart/alarms")

// NewReadingReceivedHandler evaluates every incoming reading against the
// thresholds of its pond. Breached metrics raise or refresh an alarm and
// metrics back within range close theirs. Any reading also closes an open
// PondNotObserved alarm for the pond.
func NewReadingReceivedHandler(svc AlarmService, settings thresholds.Service, estimator softsensor.Estimator) messaging.TopicMessageHandler {
	return func(ctx context.Context, msg amqp.Delivery, l zerolog.Logger) {
		var err error

		ctx, span := tracer.Start(ctx, "reading-received")
		defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()
		_, ctx, logger := logging.AddTraceIDToLoggerAndStoreInContext(span, l, ctx)

		evt := types.ReadingReceived{}
		err = json.Unmarshal(msg.Body, &evt)
		if err != nil {
			logger.Error().Err(err).Msgf("failed to unmarshal message from %s", msg.RoutingKey)
			return
		}

		logger = logger.With().Uint("pondID", evt.PondID).Logger()

		if err = svc.CloseMatching(ctx, evt.PondID, AlarmPondNotObserved, ""); err != nil {
			logger.Error().Err(err).Msg("could not close not observed alarm")
		}

		s, err := settings.Get(ctx, evt.PondID)
		if err != nil {
			logger.Error().Err(err).Msg("could not load pond settings")
			return
		}

		reading := estimator.Apply(evt.Reading).SensorReading
		breaches := thresholds.Evaluate(s.Thresholds, reading)

		breached := map[thresholds.Metric]bool{}
		for _, b := range breaches {
			breached[b.Metric] = true

			_, err = svc.Add(ctx, types.Alarm{
				PondID:      evt.PondID,
				Type:        AlarmThresholdBreach,
				Metric:      string(b.Metric),
				Severity:    b.Severity,
				Description: b.Description(),
				Value:       b.Value,
				ObservedAt:  evt.Reading.Timestamp,
			})
			if err != nil {
				logger.Error().Err(err).Str("metric", string(b.Metric)).Msg("could not raise alarm")
			}
		}

		for _, m := range thresholds.Metrics {
			if breached[m] {
				continue
			}
			if cerr := svc.CloseMatching(ctx, evt.PondID, AlarmThresholdBreach, string(m)); cerr != nil {
				logger.Error().Err(cerr).Str("metric", string(m)).Msg("could not close alarm")
			}
		}

		logger.Debug().Int("breaches", len(breaches)).Msgf("%s handled", msg.RoutingKey)
	}
}

func NewPondNotObservedHandler(svc AlarmService) messaging.TopicMessageHandler {
	return func(ctx context.Context, msg amqp.Delivery, l zerolog.Logger) {
		var err error

		ctx, span := tracer.Start(ctx, "pond-not-observed")
		defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()
		_, ctx, logger := logging.AddTraceIDToLoggerAndStoreInContext(span, l, ctx)

		evt := types.PondNotObserved{}
		err = json.Unmarshal(msg.Body, &evt)
		if err != nil {
			logger.Error().Err(err).Msgf("failed to unmarshal message from %s", msg.RoutingKey)
			return
		}

		description := "no readings received"
		if !evt.LastSeen.IsZero() {
			description = fmt.Sprintf("no readings received since %s", evt.LastSeen.Format("2006-01-02 15:04"))
		}

		_, err = svc.Add(ctx, types.Alarm{
			PondID:      evt.PondID,
			Type:        AlarmPondNotObserved,
			Severity:    types.AlarmSeverityWarning,
			Description: description,
			ObservedAt:  evt.ObservedAt,
		})
		if err != nil {
			logger.Error().Err(err).Uint("pondID", evt.PondID).Msg("could not create alarm")
			return
		}
	}
}
