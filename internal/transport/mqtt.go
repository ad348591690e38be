package transport

import (
	"context"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/openelectricity/emissionfeed/internal/config"
)

const connectTimeout = 10 * time.Second

type mqttPublisher struct {
	client     mqtt.Client
	topic      string
	qos        byte
	retain     bool
	ackTimeout time.Duration
}

func newMQTTPublisher(cfg config.BusConfig, ackTimeout time.Duration) (*mqttPublisher, error) {
	client, err := connectMQTT(cfg, cfg.ClientID)
	if err != nil {
		return nil, err
	}
	return &mqttPublisher{
		client:     client,
		topic:      cfg.Topic,
		qos:        byte(cfg.QoS),
		retain:     cfg.Retain,
		ackTimeout: ackTimeout,
	}, nil
}

func (p *mqttPublisher) Publish(ctx context.Context, payload []byte) error {
	token := p.client.Publish(p.topic, p.qos, p.retain, payload)
	if !token.WaitTimeout(p.ackTimeout) {
		return fmt.Errorf("publish to %s: ack not received within %s", p.topic, p.ackTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish to %s: %w", p.topic, err)
	}
	return ctx.Err()
}

func (p *mqttPublisher) Close() {
	p.client.Disconnect(250)
}

type mqttSubscriber struct {
	client mqtt.Client
	topic  string
	qos    byte
}

func newMQTTSubscriber(cfg config.BusConfig) (*mqttSubscriber, error) {
	client, err := connectMQTT(cfg, cfg.ClientID)
	if err != nil {
		return nil, err
	}
	return &mqttSubscriber{
		client: client,
		topic:  cfg.Topic,
		qos:    byte(cfg.QoS),
	}, nil
}

func (s *mqttSubscriber) Subscribe(ctx context.Context, handler Handler) error {
	token := s.client.Subscribe(s.topic, s.qos, func(_ mqtt.Client, msg mqtt.Message) {
		handler(msg.Payload())
	})
	if !token.WaitTimeout(connectTimeout) {
		return fmt.Errorf("subscribe to %s: timed out", s.topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("subscribe to %s: %w", s.topic, err)
	}

	<-ctx.Done()
	s.client.Unsubscribe(s.topic)
	return nil
}

func (s *mqttSubscriber) Close() {
	s.client.Disconnect(250)
}

func connectMQTT(cfg config.BusConfig, clientID string) (mqtt.Client, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(fmt.Sprintf("tcp://%s:%d", cfg.Host, cfg.Port)).
		SetClientID(clientID).
		SetKeepAlive(60 * time.Second).
		SetAutoReconnect(true)

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return nil, fmt.Errorf("connect to %s:%d: timed out", cfg.Host, cfg.Port)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to %s:%d: %w", cfg.Host, cfg.Port, err)
	}
	return client, nil
}
