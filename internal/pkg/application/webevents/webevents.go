package webevents

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/aquasmart/pond-monitoring/internal/pkg/application/softsensor"
	"github.com/aquasmart/pond-monitoring/internal/pkg/infrastructure/messagebus"
	"github.com/aquasmart/pond-monitoring/pkg/types"
	gosse "github.com/alexandrevicenzi/go-sse"
	"github.com/diwise/messaging-golang/pkg/messaging"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

const (
	EventReading    = "reading"
	EventAlarm      = "alarm"
	EventActuator   = "actuator"
	EventClassifier = "classifier"
)

//go:generate moq -rm -out webevents_mock.go . WebEvents

type WebEvents interface {
	Server() *gosse.Server
	Shutdown()
	Publish(event string, data any) error
	PublishToPond(pondID uint, event string, data any) error
}

type webEvents struct {
	s *gosse.Server
}

// New creates an SSE server where every pond gets its own channel, named
// after the last segment of the request path, i.e. /api/events/{pondId}.
func New(logger zerolog.Logger) WebEvents {
	return &webEvents{
		s: gosse.NewServer(&gosse.Options{
			Logger: log.New(debugWriter{logger}, "", 0),
			ChannelNameFunc: func(r *http.Request) string {
				path := strings.TrimRight(r.URL.Path, "/")
				return ChannelName(path[strings.LastIndex(path, "/")+1:])
			},
		}),
	}
}

type debugWriter struct {
	logger zerolog.Logger
}

func (w debugWriter) Write(p []byte) (int, error) {
	w.logger.Debug().Msg(strings.TrimSpace(string(p)))
	return len(p), nil
}

func ChannelName(pondID string) string {
	return "pond/" + pondID
}

func (we *webEvents) Server() *gosse.Server {
	return we.s
}

func (we *webEvents) Shutdown() {
	we.s.Shutdown()
}

// Publish broadcasts an event to the subscribers of every pond.
func (we *webEvents) Publish(event string, data any) error {
	b, err := json.Marshal(data)
	if err != nil {
		return err
	}

	message := gosse.NewMessage("", string(b), event)
	we.s.SendMessage("", message)

	return nil
}

func (we *webEvents) PublishToPond(pondID uint, event string, data any) error {
	b, err := json.Marshal(data)
	if err != nil {
		return err
	}

	channel := ChannelName(fmt.Sprintf("%d", pondID))
	if !we.s.HasChannel(channel) {
		return nil
	}

	message := gosse.NewMessage("", string(b), event)
	we.s.SendMessage(channel, message)

	return nil
}

// Register forwards readings, alarms and actuator changes from the bus to the
// SSE subscribers of the affected pond.
func Register(bus messagebus.Bus, we WebEvents, estimator softsensor.Estimator) {
	bus.RegisterTopicMessageHandler("pond.readingReceived", forward(func(body []byte) (uint, string, any, error) {
		evt := types.ReadingReceived{}
		err := json.Unmarshal(body, &evt)
		return evt.PondID, EventReading, estimator.Apply(evt.Reading), err
	}, we))

	bus.RegisterTopicMessageHandler("pond.actuatorChanged", forward(func(body []byte) (uint, string, any, error) {
		evt := types.ActuatorChanged{}
		err := json.Unmarshal(body, &evt)
		return evt.Actuator.PondID, EventActuator, evt, err
	}, we))

	bus.RegisterTopicMessageHandler("alarms.alarmCreated", forward(func(body []byte) (uint, string, any, error) {
		evt := types.AlarmCreated{}
		err := json.Unmarshal(body, &evt)
		return evt.Alarm.PondID, EventAlarm, evt.Alarm, err
	}, we))

	bus.RegisterTopicMessageHandler("alarms.alarmClosed", forward(func(body []byte) (uint, string, any, error) {
		evt := types.AlarmClosed{}
		err := json.Unmarshal(body, &evt)
		return evt.PondID, EventAlarm, evt, err
	}, we))
}

type decodeFunc func(body []byte) (pondID uint, event string, data any, err error)

func forward(decode decodeFunc, we WebEvents) messaging.TopicMessageHandler {
	return func(ctx context.Context, msg amqp.Delivery, logger zerolog.Logger) {
		pondID, event, data, err := decode(msg.Body)
		if err != nil {
			logger.Error().Err(err).Msgf("failed to unmarshal message from %s", msg.RoutingKey)
			return
		}

		err = we.PublishToPond(pondID, event, data)
		if err != nil {
			logger.Error().Err(err).Uint("pondID", pondID).Msg("failed to publish web event")
		}
	}
}
