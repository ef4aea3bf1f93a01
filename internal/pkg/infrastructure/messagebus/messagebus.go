package messagebus

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/aquasmart/pond-monitoring/internal/pkg/infrastructure/logging"
	"github.com/diwise/messaging-golang/pkg/messaging"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

//go:generate moq -rm -out messagebus_mock.go . Bus

// Bus is the part of a messaging context that the application services use.
type Bus interface {
	PublishOnTopic(ctx context.Context, message messaging.TopicMessage) error
	RegisterTopicMessageHandler(routingKey string, handler messaging.TopicMessageHandler)
	Close()
}

type rabbitBus struct {
	m messaging.MsgContext
}

// NewRabbitMQ connects to the broker configured through the RABBITMQ_* environment variables.
func NewRabbitMQ(serviceName string, logger zerolog.Logger) (Bus, error) {
	config := messaging.LoadConfiguration(serviceName, logger)

	m, err := messaging.Initialize(config)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize messaging: %w", err)
	}

	return &rabbitBus{m: m}, nil
}

func (b *rabbitBus) PublishOnTopic(ctx context.Context, message messaging.TopicMessage) error {
	return b.m.PublishOnTopic(ctx, message)
}

func (b *rabbitBus) RegisterTopicMessageHandler(routingKey string, handler messaging.TopicMessageHandler) {
	b.m.RegisterTopicMessageHandler(routingKey, handler)
}

func (b *rabbitBus) Close() {
	b.m.Close()
}

type localBus struct {
	mu       sync.RWMutex
	handlers map[string][]messaging.TopicMessageHandler
	logger   zerolog.Logger
}

// NewLocal returns a bus that delivers topic messages to the registered handlers
// synchronously, in the goroutine of the publisher.
func NewLocal(logger zerolog.Logger) Bus {
	return &localBus{
		handlers: make(map[string][]messaging.TopicMessageHandler),
		logger:   logger,
	}
}

func (b *localBus) PublishOnTopic(ctx context.Context, message messaging.TopicMessage) error {
	body, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", message.TopicName(), err)
	}

	delivery := amqp.Delivery{
		Body:        body,
		RoutingKey:  message.TopicName(),
		ContentType: message.ContentType(),
		Timestamp:   time.Now().UTC(),
	}

	b.mu.RLock()
	handlers := []messaging.TopicMessageHandler{}
	for key, hs := range b.handlers {
		if matches(key, delivery.RoutingKey) {
			handlers = append(handlers, hs...)
		}
	}
	b.mu.RUnlock()

	logger := logging.GetFromContext(ctx)

	for _, h := range handlers {
		h(ctx, delivery, logger.With().Str("topic", delivery.RoutingKey).Logger())
	}

	return nil
}

func (b *localBus) RegisterTopicMessageHandler(routingKey string, handler messaging.TopicMessageHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.handlers[routingKey] = append(b.handlers[routingKey], handler)
	b.logger.Debug().Msgf("registered handler for %s", routingKey)
}

func (b *localBus) Close() {}

// matches implements the AMQP topic wildcards '*' (one word) and '#' (zero or more words).
func matches(pattern, key string) bool {
	return matchWords(strings.Split(pattern, "."), strings.Split(key, "."))
}

func matchWords(pattern, key []string) bool {
	if len(pattern) == 0 {
		return len(key) == 0
	}

	switch pattern[0] {
	case "#":
		for i := 0; i <= len(key); i++ {
			if matchWords(pattern[1:], key[i:]) {
				return true
			}
		}
		return false
	case "*":
		return len(key) > 0 && matchWords(pattern[1:], key[1:])
	default:
		return len(key) > 0 && pattern[0] == key[0] && matchWords(pattern[1:], key[1:])
	}
}
