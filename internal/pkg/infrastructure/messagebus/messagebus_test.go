package messagebus

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/matryer/is"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

type testMessage struct {
	Value int `json:"value"`
	topic string
}

func (m *testMessage) ContentType() string { return "application/json" }
func (m *testMessage) TopicName() string   { return m.topic }

func TestLocalBusDeliversToMatchingHandlers(t *testing.T) {
	is := is.New(t)
	ctx := context.Background()

	bus := NewLocal(zerolog.Nop())

	received := map[string]int{}
	handler := func(name string) func(context.Context, amqp.Delivery, zerolog.Logger) {
		return func(ctx context.Context, d amqp.Delivery, l zerolog.Logger) {
			m := testMessage{}
			is.NoErr(json.Unmarshal(d.Body, &m))
			received[name] += m.Value
		}
	}

	bus.RegisterTopicMessageHandler("pond.readingReceived", handler("exact"))
	bus.RegisterTopicMessageHandler("pond.*", handler("star"))
	bus.RegisterTopicMessageHandler("#", handler("hash"))
	bus.RegisterTopicMessageHandler("alarms.*", handler("other"))

	is.NoErr(bus.PublishOnTopic(ctx, &testMessage{Value: 2, topic: "pond.readingReceived"}))

	is.Equal(received["exact"], 2)
	is.Equal(received["star"], 2)
	is.Equal(received["hash"], 2)
	is.Equal(received["other"], 0)
}

func TestTopicMatching(t *testing.T) {
	is := is.New(t)

	is.True(matches("a.#", "a"))
	is.True(matches("a.#", "a.b.c"))
	is.True(matches("*.b", "a.b"))
	is.True(!matches("*.b", "a.c.b"))
	is.True(!matches("a.b", "a.b.c"))
}
