package bus

import (
	"context"
	"fmt"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

// MQTTBus fans packet updates out across server processes through an MQTT
// broker. Publishes are QoS 0 fire-and-forget; clients that miss a
// delivery reconcile through the query boundary.
type MQTTBus struct {
	client mqtt.Client
	logger *zap.Logger
}

// MQTTConfig holds broker connection settings.
type MQTTConfig struct {
	Broker   string
	ClientID string
	Username string
	Password string
}

func NewMQTTBus(cfg MQTTConfig, logger *zap.Logger) (*MQTTBus, error) {
	if cfg.Broker == "" {
		return nil, fmt.Errorf("mqtt broker is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	opts.SetUsername(cfg.Username)
	opts.SetPassword(cfg.Password)
	opts.SetAutoReconnect(true)
	opts.OnConnect = func(mqtt.Client) {
		logger.Info("mqtt connected", zap.String("broker", cfg.Broker))
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		logger.Warn("mqtt connection lost", zap.Error(err))
	}

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("mqtt connect: %w", token.Error())
	}
	return &MQTTBus{client: client, logger: logger}, nil
}

// Publish sends the payload without waiting for broker acknowledgment.
func (b *MQTTBus) Publish(_ context.Context, topic string, payload []byte) error {
	if !b.client.IsConnectionOpen() {
		b.logger.Warn("mqtt publish while disconnected", zap.String("topic", topic))
	}
	b.client.Publish(topic, 0, false, payload)
	return nil
}

func (b *MQTTBus) Subscribe(ctx context.Context, topic string, h Handler) error {
	token := b.client.Subscribe(topic, 0, func(_ mqtt.Client, m mqtt.Message) {
		h(m.Topic(), m.Payload())
	})
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("mqtt subscribe %s: %w", topic, token.Error())
	}
	go func() {
		<-ctx.Done()
		b.client.Unsubscribe(topic)
	}()
	return nil
}

func (b *MQTTBus) Close() {
	b.client.Disconnect(250)
}
