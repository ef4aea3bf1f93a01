// Package mqtt ingests device readings published on the broker.
package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"go.opentelemetry.io/otel"

	"github.com/aquasmart/pond-monitoring/internal/pkg/application/pondmanagement"
	"github.com/aquasmart/pond-monitoring/internal/pkg/infrastructure/logging"
	"github.com/aquasmart/pond-monitoring/pkg/types"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/tracing"
)

const ReadingsTopic = "aquasmart/ponds/+/readings"

var tracer = otel.Tracer("aquasmart/mqtt")

var ErrInvalidTopic = errors.New("invalid topic")

type Config struct {
	Broker   string
	ClientID string
	Username string
	Password string
	QoS      byte
}

type MessageHandler func(ctx context.Context, topic string, payload []byte) error

type Subscriber interface {
	Close()
}

type subscriber struct {
	client paho.Client
	topic  string
}

// Subscribe connects to the broker and passes every message on topic to
// handler. Handler errors are logged and the message is dropped.
func Subscribe(ctx context.Context, cfg Config, topic string, handler MessageHandler) (Subscriber, error) {
	logger := logging.GetFromContext(ctx).With().Str("broker", cfg.Broker).Logger()

	opts := paho.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetCleanSession(true)
	opts.SetConnectionLostHandler(func(_ paho.Client, err error) {
		logger.Warn().Err(err).Msg("connection to mqtt broker lost")
	})

	onMessage := func(_ paho.Client, msg paho.Message) {
		msgCtx := logging.NewContextWithLogger(ctx, logger)
		if err := handler(msgCtx, msg.Topic(), msg.Payload()); err != nil {
			logger.Error().Err(err).Str("topic", msg.Topic()).Msg("failed to handle mqtt message")
		}
	}

	// resubscribe after every reconnect, the session is clean
	opts.SetOnConnectHandler(func(c paho.Client) {
		if token := c.Subscribe(topic, cfg.QoS, onMessage); token.Wait() && token.Error() != nil {
			logger.Error().Err(token.Error()).Str("topic", topic).Msg("failed to subscribe")
			return
		}
		logger.Info().Str("topic", topic).Msg("subscribed to mqtt topic")
	})

	client := paho.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("failed to connect to mqtt broker: %w", token.Error())
	}

	return &subscriber{client: client, topic: topic}, nil
}

func (s *subscriber) Close() {
	s.client.Unsubscribe(s.topic).WaitTimeout(time.Second)
	s.client.Disconnect(250)
}

// NewReadingHandler stores readings published on aquasmart/ponds/{pondId}/readings.
// A pondId in the payload must agree with the topic.
func NewReadingHandler(pm pondmanagement.PondManagement) MessageHandler {
	return func(ctx context.Context, topic string, payload []byte) error {
		var err error

		ctx, span := tracer.Start(ctx, "mqtt-reading")
		defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()
		_, ctx, logger := logging.AddTraceIDToLoggerAndStoreInContext(span, logging.GetFromContext(ctx), ctx)

		pondID, err := PondIDFromTopic(topic)
		if err != nil {
			return err
		}

		req := types.ReadingRequest{}
		err = json.Unmarshal(payload, &req)
		if err != nil {
			return err
		}

		if !req.PondID.Set {
			req.PondID = types.NewNumber(float64(pondID))
		} else if req.PondID.Value != float64(pondID) {
			err = fmt.Errorf("%w: payload pondId %v does not match topic", types.ErrInvalidReading, req.PondID.Value)
			return err
		}

		reading, err := req.ToReading(time.Now().UTC())
		if err != nil {
			return err
		}

		stored, err := pm.AddReading(ctx, reading)
		if err != nil {
			return err
		}

		logger.Debug().Uint("pondID", stored.PondID).Uint("readingID", stored.ID).Msg("reading received over mqtt")

		return nil
	}
}

func PondIDFromTopic(topic string) (uint, error) {
	parts := strings.Split(topic, "/")
	if len(parts) != 4 || parts[0] != "aquasmart" || parts[1] != "ponds" || parts[3] != "readings" {
		return 0, fmt.Errorf("%w: %s", ErrInvalidTopic, topic)
	}

	id, err := strconv.ParseUint(parts[2], 10, 0)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("%w: bad pond id in %s", ErrInvalidTopic, topic)
	}

	return uint(id), nil
}

