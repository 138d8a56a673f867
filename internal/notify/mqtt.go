package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/saturnino-fabrica-de-software/rollcall/internal/domain"
)

const (
	connectTimeout = 30 * time.Second
	publishTimeout = 10 * time.Second
)

var ErrNotConnected = errors.New("not connected to MQTT broker")

// MQTTPublisher publishes events with QoS 1. Reconnects are left to the
// paho client.
type MQTTPublisher struct {
	config    Config
	newClient func(*mqtt.ClientOptions) mqtt.Client
	logger    *slog.Logger

	mu     sync.Mutex
	client mqtt.Client
}

func newMQTTPublisher(cfg Config, logger *slog.Logger, newClient func(*mqtt.ClientOptions) mqtt.Client) *MQTTPublisher {
	return &MQTTPublisher{
		config:    cfg,
		newClient: newClient,
		logger:    logger.With("component", "mqtt"),
	}
}

func (p *MQTTPublisher) Connect(ctx context.Context) error {
	if _, err := url.Parse(p.config.Broker); err != nil {
		return fmt.Errorf("invalid broker URL: %w", err)
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(p.config.Broker)
	opts.SetClientID(p.config.ClientID)
	opts.SetUsername(p.config.Username)
	opts.SetPassword(p.config.Password)
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetOnConnectHandler(func(mqtt.Client) {
		p.logger.Info("connected to MQTT broker", "broker", p.config.Broker)
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		p.logger.Warn("connection to MQTT broker lost", "broker", p.config.Broker, "error", err)
	})

	client := p.newClient(opts)

	timeout := connectTimeout
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
	}

	token := client.Connect()
	if !token.WaitTimeout(timeout) {
		return fmt.Errorf("connect to %s: timeout", p.config.Broker)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("connect to %s: %w", p.config.Broker, err)
	}

	p.mu.Lock()
	p.client = client
	p.mu.Unlock()

	return nil
}

func (p *MQTTPublisher) PublishAttendance(ctx context.Context, record *domain.AttendanceRecord) error {
	payload, err := json.Marshal(NewAttendanceEvent(record))
	if err != nil {
		return fmt.Errorf("marshal attendance event: %w", err)
	}

	p.mu.Lock()
	client := p.client
	p.mu.Unlock()

	if client == nil || !client.IsConnected() {
		return ErrNotConnected
	}

	timeout := publishTimeout
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
	}

	token := client.Publish(p.config.Topic, 1, false, payload)
	if !token.WaitTimeout(timeout) {
		return fmt.Errorf("publish to %s: timeout", p.config.Topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish to %s: %w", p.config.Topic, err)
	}

	return nil
}

func (p *MQTTPublisher) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.client != nil && p.client.IsConnected() {
		p.client.Disconnect(250)
	}
	p.client = nil
}
