package realtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"tableservice-platform/internal/config"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

const (
	mqttConnectTimeout = 10 * time.Second
	mqttPublishTimeout = 5 * time.Second
	mqttQoS            = 1
)

// ConnectMQTT dials the broker with auto-reconnect enabled.
func ConnectMQTT(cfg config.MQTTConfig, log *slog.Logger) (mqtt.Client, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.BrokerURL)
	opts.SetClientID(cfg.ClientID)
	opts.SetUsername(cfg.Username)
	opts.SetPassword(cfg.Password)
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetOnConnectHandler(func(mqtt.Client) {
		log.Info("mqtt connected", "broker", cfg.BrokerURL)
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		log.Warn("mqtt connection lost", "err", err)
	})

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(mqttConnectTimeout) {
		return nil, errors.New("mqtt connect timed out")
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect: %w", err)
	}
	return client, nil
}

// MQTTBroadcaster mirrors channels onto broker topics:
// "waiter:S1" becomes "<prefix>/waiter/S1".
type MQTTBroadcaster struct {
	client  mqtt.Client
	prefix  string
	timeout time.Duration
}

func NewMQTTBroadcaster(client mqtt.Client, prefix string) *MQTTBroadcaster {
	return &MQTTBroadcaster{client: client, prefix: strings.TrimSuffix(prefix, "/"), timeout: mqttPublishTimeout}
}

func (b *MQTTBroadcaster) Name() string { return "mqtt" }

func (b *MQTTBroadcaster) Topic(channel string) string {
	t := strings.ReplaceAll(channel, ":", "/")
	if b.prefix == "" {
		return t
	}
	return b.prefix + "/" + t
}

func (b *MQTTBroadcaster) Publish(ctx context.Context, msg Message) error {
	if !b.client.IsConnectionOpen() {
		return errors.New("mqtt not connected")
	}
	token := b.client.Publish(b.Topic(msg.Channel), mqttQoS, false, msg.Payload)

	timeout := b.timeout
	if dl, ok := ctx.Deadline(); ok {
		if left := time.Until(dl); left < timeout {
			timeout = left
		}
	}
	if !token.WaitTimeout(timeout) {
		return fmt.Errorf("mqtt publish to %s timed out", msg.Channel)
	}
	return token.Error()
}

func (b *MQTTBroadcaster) Close() {
	b.client.Disconnect(250)
}
