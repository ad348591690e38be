package transport

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/Shopify/sarama"

	"github.com/openelectricity/emissionfeed/internal/config"
)

type kafkaPublisher struct {
	producer sarama.SyncProducer
	topic    string
}

func newKafkaPublisher(cfg config.BusConfig, ackTimeout time.Duration) (*kafkaPublisher, error) {
	saramaConfig := sarama.NewConfig()
	saramaConfig.Producer.Return.Successes = true
	saramaConfig.Producer.Timeout = ackTimeout
	saramaConfig.Producer.RequiredAcks = requiredAcks(cfg.QoS)

	producer, err := sarama.NewSyncProducer(cfg.KafkaBrokers, saramaConfig)
	if err != nil {
		return nil, fmt.Errorf("create kafka producer: %w", err)
	}
	return &kafkaPublisher{producer: producer, topic: cfg.Topic}, nil
}

// requiredAcks maps the QoS level onto Kafka's nearest delivery
// assurance.
func requiredAcks(qos int) sarama.RequiredAcks {
	switch qos {
	case 0:
		return sarama.NoResponse
	case 2:
		return sarama.WaitForAll
	default:
		return sarama.WaitForLocal
	}
}

func (p *kafkaPublisher) Publish(ctx context.Context, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, _, err := p.producer.SendMessage(&sarama.ProducerMessage{
		Topic: p.topic,
		Value: sarama.ByteEncoder(payload),
	})
	if err != nil {
		return fmt.Errorf("publish to %s: %w", p.topic, err)
	}
	return nil
}

func (p *kafkaPublisher) Close() {
	if err := p.producer.Close(); err != nil {
		log.Printf("[transport] kafka producer close: %v", err)
	}
}

type kafkaSubscriber struct {
	group sarama.ConsumerGroup
	topic string
}

func newKafkaSubscriber(cfg config.BusConfig) (*kafkaSubscriber, error) {
	saramaConfig := sarama.NewConfig()
	saramaConfig.Consumer.Return.Errors = true
	saramaConfig.Consumer.Offsets.Initial = sarama.OffsetOldest
	saramaConfig.Consumer.Group.Rebalance.Strategy = sarama.BalanceStrategyRoundRobin

	group, err := sarama.NewConsumerGroup(cfg.KafkaBrokers, cfg.KafkaGroupID, saramaConfig)
	if err != nil {
		return nil, fmt.Errorf("create kafka consumer group: %w", err)
	}
	return &kafkaSubscriber{group: group, topic: cfg.Topic}, nil
}

func (s *kafkaSubscriber) Subscribe(ctx context.Context, handler Handler) error {
	go func() {
		for err := range s.group.Errors() {
			log.Printf("[transport] kafka consumer error: %v", err)
		}
	}()

	h := &groupHandler{ctx: ctx, handler: handler}
	for {
		if err := s.group.Consume(ctx, []string{s.topic}, h); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("consume %s: %w", s.topic, err)
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}

func (s *kafkaSubscriber) Close() {
	if err := s.group.Close(); err != nil {
		log.Printf("[transport] kafka consumer close: %v", err)
	}
}

// groupHandler implements sarama.ConsumerGroupHandler
type groupHandler struct {
	ctx     context.Context
	handler Handler
}

func (h *groupHandler) Setup(_ sarama.ConsumerGroupSession) error   { return nil }
func (h *groupHandler) Cleanup(_ sarama.ConsumerGroupSession) error { return nil }

func (h *groupHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for message := range claim.Messages() {
		if h.ctx.Err() != nil {
			return h.ctx.Err()
		}
		h.handler(message.Value)
		session.MarkMessage(message, "")
	}
	return nil
}
