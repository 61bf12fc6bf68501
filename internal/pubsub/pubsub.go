package pubsub

import (
	"context"

	"github.com/ThreeDotsLabs/watermill/message"
)

// Publisher publishes messages to a topic
type Publisher interface {
	Publish(ctx context.Context, topic string, msg *message.Message) error
	Close() error
}

// Subscriber consumes messages from a topic. Its method set matches
// watermill's message.Subscriber so it can feed a router directly.
type Subscriber interface {
	Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error)
	Close() error
}

// PubSub combines both Publisher and Subscriber interfaces
type PubSub interface {
	Publisher
	Subscriber
}

var _ message.Subscriber = (Subscriber)(nil)

// watermillPublisher adapts a Publisher to watermill's message.Publisher
type watermillPublisher struct {
	publisher Publisher
}

// ToWatermillPublisher lets a Publisher be used where watermill expects
// its own publisher, such as the poison queue middleware
func ToWatermillPublisher(p Publisher) message.Publisher {
	return &watermillPublisher{publisher: p}
}

func (w *watermillPublisher) Publish(topic string, messages ...*message.Message) error {
	for _, msg := range messages {
		ctx := msg.Context()
		if err := w.publisher.Publish(ctx, topic, msg); err != nil {
			return err
		}
	}
	return nil
}

func (w *watermillPublisher) Close() error {
	return nil
}
