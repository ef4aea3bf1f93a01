package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/aquasmart/pond-monitoring/internal/pkg/application/thresholds"
	"github.com/aquasmart/pond-monitoring/internal/pkg/infrastructure/logging"
	"github.com/aquasmart/pond-monitoring/internal/pkg/infrastructure/messagebus"
	"github.com/aquasmart/pond-monitoring/pkg/types"
	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/diwise/messaging-golang/pkg/messaging"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
	"golang.org/x/sys/unix"
	yaml "gopkg.in/yaml.v2"
)

const (
	EventSource    = "github.com/aquasmart/pond-monitoring"
	AlarmEventType = "aquasmart.alarm"
)

//go:generate moq -rm -out eventsender_mock.go . EventSender

type EventSender interface {
	Send(ctx context.Context, alarm types.Alarm) error
}

type eventSender struct {
	subscribers map[string][]SubscriberConfig
	client      cloudevents.Client
}

func New(cfg *Config) (EventSender, error) {
	c, err := cloudevents.NewClientHTTP()
	if err != nil {
		return nil, err
	}

	e := &eventSender{
		subscribers: make(map[string][]SubscriberConfig),
		client:      c,
	}

	if cfg != nil {
		for _, s := range cfg.Notifications {
			e.subscribers[s.Type] = append(e.subscribers[s.Type], s.Subscribers...)
		}
	}

	return e, nil
}

func (e *eventSender) Send(ctx context.Context, alarm types.Alarm) error {
	subscribers := e.subscribers[AlarmEventType]
	if len(subscribers) == 0 {
		return nil
	}

	event := cloudevents.NewEvent()
	event.SetID(fmt.Sprintf("%s:%d", alarm.ID, alarm.ObservedAt.Unix()))
	event.SetTime(alarm.ObservedAt)
	event.SetSource(EventSource)
	event.SetType(AlarmEventType)

	err := event.SetData(cloudevents.ApplicationJSON, alarm)
	if err != nil {
		return err
	}

	logger := logging.GetFromContext(ctx)

	for _, s := range subscribers {
		if s.MinSeverity > alarm.Severity {
			continue
		}

		ctxWithTarget := cloudevents.ContextWithTarget(ctx, s.Endpoint)

		result := e.client.Send(ctxWithTarget, event)
		if cloudevents.IsUndelivered(result) || errors.Is(result, unix.ECONNREFUSED) {
			logger.Error().Err(result).Msgf("failed to send event to %s", s.Endpoint)
			err = fmt.Errorf("%w", result)
		}
	}

	return err
}

// NewAlarmCreatedHandler forwards new alarms to the subscribers, if the
// notification settings of the pond ask for alarms of that severity.
func NewAlarmCreatedHandler(sender EventSender, settings thresholds.Service) messaging.TopicMessageHandler {
	return func(ctx context.Context, msg amqp.Delivery, logger zerolog.Logger) {
		evt := types.AlarmCreated{}
		err := json.Unmarshal(msg.Body, &evt)
		if err != nil {
			logger.Error().Err(err).Msgf("failed to unmarshal message from %s", msg.RoutingKey)
			return
		}

		logger = logger.With().Str("alarmID", evt.Alarm.ID).Uint("pondID", evt.Alarm.PondID).Logger()

		s, err := settings.Get(ctx, evt.Alarm.PondID)
		if err != nil {
			logger.Error().Err(err).Msg("could not load notification settings")
			return
		}

		if !s.Notifications.Wants(evt.Alarm.Severity) {
			logger.Debug().Int("severity", evt.Alarm.Severity).Msg("notifications disabled for severity")
			return
		}

		err = sender.Send(logging.NewContextWithLogger(ctx, logger), evt.Alarm)
		if err != nil {
			logger.Error().Err(err).Msg("failed to notify subscribers")
			return
		}

		logger.Debug().Msgf("%s handled", msg.RoutingKey)
	}
}

func Register(bus messagebus.Bus, sender EventSender, settings thresholds.Service) {
	bus.RegisterTopicMessageHandler("alarms.alarmCreated", NewAlarmCreatedHandler(sender, settings))
}

type SubscriberConfig struct {
	Endpoint    string `yaml:"endpoint"`
	MinSeverity int    `yaml:"minSeverity"`
}

type Notification struct {
	ID          string             `yaml:"id"`
	Name        string             `yaml:"name"`
	Type        string             `yaml:"type"`
	Subscribers []SubscriberConfig `yaml:"subscribers"`
}

type Config struct {
	Notifications []Notification `yaml:"notifications"`
}

func LoadConfiguration(data io.Reader) (*Config, error) {
	buf, err := io.ReadAll(data)
	if err != nil {
		return nil, err
	}

	cfg := Config{}
	if err := yaml.Unmarshal(buf, &cfg); err == nil {
		return &cfg, nil
	} else {
		return nil, err
	}
}
