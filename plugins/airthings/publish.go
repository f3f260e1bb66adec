package airthings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"
)

const (
	publishTimeout = 10 * time.Second
	connectTimeout = 10 * time.Second
)

// PublisherConfig configures the MQTT state publisher.
type PublisherConfig struct {
	Broker         string
	ClientID       string
	Username       string
	Password       string
	TopicPrefix    string
	// ConnectTimeout bounds the initial connect; zero means 10s.
	ConnectTimeout time.Duration
}

// MQTTPublisher publishes one retained JSON state message per device.
type MQTTPublisher struct {
	client mqtt.Client
	prefix string
	logger zerolog.Logger
}

func NewMQTTPublisher(cfg PublisherConfig, logger zerolog.Logger) (*MQTTPublisher, error) {
	if strings.TrimSpace(cfg.Broker) == "" {
		return nil, fmt.Errorf("mqtt broker is required")
	}

	timeout := cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = connectTimeout
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	opts.SetUsername(cfg.Username)
	opts.SetPassword(cfg.Password)
	opts.SetAutoReconnect(true)
	opts.SetConnectTimeout(timeout)
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		logger.Warn().Err(err).Str("broker", cfg.Broker).Msg("mqtt connection lost")
	}

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(timeout) {
		client.Disconnect(0)
		return nil, fmt.Errorf("mqtt connect %s: timed out after %s", cfg.Broker, timeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect %s: %w", cfg.Broker, err)
	}
	return NewMQTTPublisherWithClient(client, cfg.TopicPrefix, logger), nil
}

func NewMQTTPublisherWithClient(client mqtt.Client, prefix string, logger zerolog.Logger) *MQTTPublisher {
	prefix = strings.Trim(strings.TrimSpace(prefix), "/")
	if prefix == "" {
		prefix = "airthings"
	}
	return &MQTTPublisher{client: client, prefix: prefix, logger: logger}
}

// StateTopic is the topic a device's state is retained on.
func (p *MQTTPublisher) StateTopic(serial string) string {
	return p.prefix + "/" + serial + "/state"
}

// Publish sends the state of every device. Failures for single devices do not
// stop the others; they are joined into the returned error.
func (p *MQTTPublisher) Publish(ctx context.Context, devices map[string]Device) error {
	serials := make([]string, 0, len(devices))
	for serial := range devices {
		serials = append(serials, serial)
	}
	sort.Strings(serials)

	var errs []error
	for _, serial := range serials {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		payload, err := json.Marshal(devices[serial])
		if err != nil {
			errs = append(errs, fmt.Errorf("encode %s: %w", serial, err))
			continue
		}
		topic := p.StateTopic(serial)
		token := p.client.Publish(topic, 1, true, payload)
		if !token.WaitTimeout(publishTimeout) {
			errs = append(errs, fmt.Errorf("publish %s: timed out", topic))
			continue
		}
		if err := token.Error(); err != nil {
			errs = append(errs, fmt.Errorf("publish %s: %w", topic, err))
			continue
		}
		p.logger.Debug().Str("topic", topic).Int("bytes", len(payload)).Msg("published device state")
	}
	return errors.Join(errs...)
}

func (p *MQTTPublisher) Close() {
	p.client.Disconnect(250)
}
