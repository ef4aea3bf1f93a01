// Package automation switches actuators in AUTO mode based on incoming readings.
package automation

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/aquasmart/pond-monitoring/internal/pkg/application/pondmanagement"
	"github.com/aquasmart/pond-monitoring/internal/pkg/application/softsensor"
	"github.com/aquasmart/pond-monitoring/internal/pkg/application/thresholds"
	"github.com/aquasmart/pond-monitoring/internal/pkg/infrastructure/logging"
	"github.com/aquasmart/pond-monitoring/internal/pkg/infrastructure/messagebus"
	"github.com/aquasmart/pond-monitoring/pkg/types"
	"github.com/diwise/messaging-golang/pkg/messaging"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/tracing"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("aquasmart/automation")

// Register subscribes the automation handler to incoming readings.
func Register(bus messagebus.Bus, pm pondmanagement.PondManagement, settings thresholds.Service, estimator softsensor.Estimator) {
	bus.RegisterTopicMessageHandler("pond.readingReceived", NewReadingReceivedHandler(bus, pm, settings, estimator))
}

func NewReadingReceivedHandler(bus messagebus.Bus, pm pondmanagement.PondManagement, settings thresholds.Service, estimator softsensor.Estimator) messaging.TopicMessageHandler {
	return func(ctx context.Context, msg amqp.Delivery, l zerolog.Logger) {
		var err error

		ctx, span := tracer.Start(ctx, "automation")
		defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()
		_, ctx, logger := logging.AddTraceIDToLoggerAndStoreInContext(span, l, ctx)

		evt := types.ReadingReceived{}
		err = json.Unmarshal(msg.Body, &evt)
		if err != nil {
			logger.Error().Err(err).Msgf("failed to unmarshal message from %s", msg.RoutingKey)
			return
		}

		logger = logger.With().Uint("pondID", evt.PondID).Logger()

		s, err := settings.Get(ctx, evt.PondID)
		if err != nil {
			logger.Error().Err(err).Msg("could not load pond settings")
			return
		}

		pond, err := pm.GetPond(ctx, evt.PondID)
		if err != nil {
			logger.Error().Err(err).Msg("could not load pond")
			return
		}

		decision := thresholds.Decide(s.Thresholds, estimator.Apply(evt.Reading).SensorReading)
		reason := strings.Join(decision.Reasons, ", ")

		for _, a := range pond.Actuators {
			if a.Mode != types.ActuatorModeAuto {
				continue
			}

			var want bool
			switch a.Kind {
			case types.ActuatorKindAerator:
				if !s.Automation.AeratorEnabled {
					continue
				}
				want = decision.Aerator
			case types.ActuatorKindPump:
				if !s.Automation.PumpEnabled {
					continue
				}
				want = decision.Pump
			default:
				continue
			}

			if s.Automation.SimulationMode {
				if a.IsOn != want {
					logger.Info().Uint("actuatorID", a.ID).Bool("isOn", want).Str("reason", reason).Msg("simulation mode, actuator not switched")
					a.IsOn = want
					perr := bus.PublishOnTopic(ctx, &types.ActuatorChanged{Actuator: a, Reason: reason, Simulated: true, Timestamp: time.Now().UTC()})
					if perr != nil {
						logger.Error().Err(perr).Msg("failed to publish simulated change")
					}
				}
				continue
			}

			_, changed, serr := pm.SwitchAutomatic(ctx, a.ID, want, reason)
			if serr != nil {
				err = serr
				logger.Error().Err(serr).Uint("actuatorID", a.ID).Msg("could not switch actuator")
				continue
			}
			if changed {
				logger.Info().Uint("actuatorID", a.ID).Bool("isOn", want).Str("reason", reason).Msg("actuator switched by automation")
			}
		}
	}
}
