package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/seentics/tracker/pkg/models"
)

// Sink publishes every telemetry batch as one Watermill message.
type Sink[T any] struct {
	publisher message.Publisher
	topic     string
}

func NewSink[T any](publisher message.Publisher, topic string) *Sink[T] {
	return &Sink[T]{publisher: publisher, topic: topic}
}

func (s *Sink[T]) Send(ctx context.Context, batch models.Batch[T]) error {
	payload, err := json.Marshal(batch)
	if err != nil {
		return err
	}

	msg := message.NewMessage("msg-"+watermill.NewULID(), payload)
	msg.SetContext(ctx)
	msg.Metadata.Set(SiteIDMetadataKey, batch.SiteID)
	msg.Metadata.Set(EventsMetadataKey, strconv.Itoa(len(batch.Events)))

	if err := s.publisher.Publish(s.topic, msg); err != nil {
		return fmt.Errorf("failed to publish telemetry batch: %w", err)
	}

	return nil
}

// Consume subscribes to topic and hands every decoded batch to handler until
// ctx is done. Undecodable messages and handler failures are nacked.
func Consume[T any](ctx context.Context, subscriber message.Subscriber, topic string, logger *slog.Logger, handler BatchHandler[T]) error {
	messages, err := subscriber.Subscribe(ctx, topic)
	if err != nil {
		return err
	}

	go func() {
		for msg := range messages {
			var batch models.Batch[T]

			err := json.Unmarshal(msg.Payload, &batch)
			if err != nil {
				logger.WarnContext(ctx, "dropping undecodable telemetry message", "message_id", msg.UUID, "error", err)
				msg.Nack()

				continue
			}

			err = handler(ctx, batch)
			if err != nil {
				msg.Nack()

				continue
			}

			msg.Ack()
		}
	}()

	return nil
}
