package cmd

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/seentics/tracker/pkg/channels/gochannel"
	"github.com/seentics/tracker/pkg/channels/kafka"
	"github.com/seentics/tracker/pkg/eventbus"
	"github.com/seentics/tracker/pkg/models"
	"github.com/seentics/tracker/pkg/telemetry"
)

// Event bus providers accepted by NewEventBus.
const (
	EventBusNone      = "none"
	EventBusGoChannel = "gochannel"
	EventBusKafka     = "kafka"
)

var ErrUnsupportedEventBus = errors.New("unsupported event bus provider")

// EventBus is the message bus telemetry batches are mirrored to.
type EventBus struct {
	Publisher  message.Publisher
	Subscriber message.Subscriber
}

// PageSink publishes page analytics batches.
func (b *EventBus) PageSink() telemetry.Sink[models.PageEvent] {
	return eventbus.NewSink[models.PageEvent](b.Publisher, eventbus.TopicPageTelemetry)
}

// WorkflowSink publishes workflow telemetry batches.
func (b *EventBus) WorkflowSink() telemetry.Sink[models.TelemetryEvent] {
	return eventbus.NewSink[models.TelemetryEvent](b.Publisher, eventbus.TopicWorkflowTelemetry)
}

func (b *EventBus) Close() error {
	var errs []error

	if b.Publisher != nil {
		errs = append(errs, b.Publisher.Close())
	}

	if b.Subscriber != nil && any(b.Subscriber) != any(b.Publisher) {
		errs = append(errs, b.Subscriber.Close())
	}

	return errors.Join(errs...)
}

// NewEventBus connects the telemetry bus. It returns nil for the "none"
// provider. The in-memory bus is always consumable in-process; the Kafka bus
// also gets a subscriber when a consumer group is named.
func NewEventBus(provider string, brokers []string, consumerGroup string, logger *slog.Logger) (*EventBus, error) {
	wmLogger := watermill.NewSlogLogger(logger)

	switch provider {
	case "", EventBusNone:
		return nil, nil
	case EventBusGoChannel:
		pub, sub, err := gochannel.CreateChannel(wmLogger)
		if err != nil {
			return nil, err
		}

		return &EventBus{Publisher: pub, Subscriber: sub}, nil
	case EventBusKafka:
		pub, err := kafka.CreatePublisher(wmLogger, brokers)
		if err != nil {
			return nil, fmt.Errorf("failed to create Kafka publisher: %w", err)
		}

		bus := &EventBus{Publisher: pub}

		if consumerGroup == "" {
			return bus, nil
		}

		sub, err := kafka.CreateSubscriber(wmLogger, brokers, consumerGroup)
		if err != nil {
			return nil, errors.Join(fmt.Errorf("failed to create Kafka subscriber: %w", err), pub.Close())
		}

		bus.Subscriber = sub

		return bus, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedEventBus, provider)
	}
}
