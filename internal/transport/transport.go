// Package transport carries wire messages over a message bus. Two bus
// kinds are supported behind the same pair of interfaces: MQTT (the
// default) and Kafka. Connect/reconnect and delivery assurance are the
// client libraries' concern; this package only selects and configures
// them.
package transport

import (
	"context"
	"fmt"
	"time"

	"github.com/openelectricity/emissionfeed/internal/config"
)

// Publisher sends one payload per call to the configured topic. Publish
// blocks until the transport acknowledges the message or the ack timeout
// elapses; a timeout surfaces as an error, never a silent drop.
type Publisher interface {
	Publish(ctx context.Context, payload []byte) error
	Close()
}

// Handler receives raw payloads pushed by a Subscriber. It runs on the
// subscriber's delivery goroutine and must not block for long.
type Handler func(payload []byte)

// Subscriber delivers every payload on the configured topic to a handler.
// Subscribe blocks until ctx is cancelled.
type Subscriber interface {
	Subscribe(ctx context.Context, handler Handler) error
	Close()
}

// NewPublisher creates a publisher for the configured bus kind.
func NewPublisher(cfg config.BusConfig, ackTimeout time.Duration) (Publisher, error) {
	switch cfg.Kind {
	case "mqtt":
		return newMQTTPublisher(cfg, ackTimeout)
	case "kafka":
		return newKafkaPublisher(cfg, ackTimeout)
	default:
		return nil, fmt.Errorf("unknown bus kind %q", cfg.Kind)
	}
}

// NewSubscriber creates a subscriber for the configured bus kind.
func NewSubscriber(cfg config.BusConfig) (Subscriber, error) {
	switch cfg.Kind {
	case "mqtt":
		return newMQTTSubscriber(cfg)
	case "kafka":
		return newKafkaSubscriber(cfg)
	default:
		return nil, fmt.Errorf("unknown bus kind %q", cfg.Kind)
	}
}
