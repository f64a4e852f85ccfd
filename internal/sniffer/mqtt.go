package sniffer

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

var _ Sniffer = (*MQTTSniffer)(nil)

// MQTTConfig configures the broker-fed sighting backend.
type MQTTConfig struct {
	Broker   string // e.g. tcp://broker.local:1883
	Topic    string
	Username string
	Password string
	ClientID string
}

// MQTTSniffer subscribes to a broker topic and treats each JSON message as
// a device sighting. This is the integration point for ESPHome nodes and
// other DIY sensors that already speak MQTT.
type MQTTSniffer struct {
	emitter

	cfg    MQTTConfig
	logger *zap.Logger

	mu     sync.Mutex
	client mqtt.Client
}

// mqttSighting is the expected message payload. Only mac is required.
type mqttSighting struct {
	MAC      string `json:"mac"`
	Signal   int    `json:"signal"`
	SSID     string `json:"ssid"`
	Hostname string `json:"hostname"`
}

// NewMQTTSniffer creates the MQTT subscription backend.
func NewMQTTSniffer(cfg MQTTConfig, logger *zap.Logger) *MQTTSniffer {
	if cfg.ClientID == "" {
		cfg.ClientID = "hearthwatch-sniffer"
	}
	return &MQTTSniffer{cfg: cfg, logger: logger}
}

func (m *MQTTSniffer) Start(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.client != nil {
		return nil
	}

	opts := mqtt.NewClientOptions().
		AddBroker(m.cfg.Broker).
		SetClientID(m.cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectTimeout(10 * time.Second)
	if m.cfg.Username != "" {
		opts.SetUsername(m.cfg.Username)
		opts.SetPassword(m.cfg.Password)
	}
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		m.logger.Warn("mqtt connection lost", zap.Error(err))
	})
	// Resubscribe on every (re)connect; subscriptions do not survive a
	// clean-session reconnect.
	opts.SetOnConnectHandler(func(c mqtt.Client) {
		token := c.Subscribe(m.cfg.Topic, 0, m.handleMessage)
		if token.Wait() && token.Error() != nil {
			m.logger.Error("mqtt subscribe failed",
				zap.String("topic", m.cfg.Topic),
				zap.Error(token.Error()),
			)
			return
		}
		m.logger.Info("mqtt subscribed", zap.String("topic", m.cfg.Topic))
	})

	client := mqtt.NewClient(opts)

	m.logger.Info("starting mqtt sniffer", zap.String("broker", m.cfg.Broker))
	token := client.Connect()
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("connect to broker %s: %w", m.cfg.Broker, token.Error())
	}
	m.client = client
	return nil
}

func (m *MQTTSniffer) Stop(_ context.Context) error {
	m.logger.Info("stopping mqtt sniffer")
	m.mu.Lock()
	client := m.client
	m.client = nil
	m.mu.Unlock()
	if client != nil {
		client.Disconnect(250)
	}
	return nil
}

func (m *MQTTSniffer) handleMessage(_ mqtt.Client, msg mqtt.Message) {
	var sighting mqttSighting
	if err := json.Unmarshal(msg.Payload(), &sighting); err != nil {
		m.logger.Debug("ignoring malformed sighting message",
			zap.String("topic", msg.Topic()),
			zap.Error(err),
		)
		return
	}
	if sighting.MAC == "" {
		return
	}

	m.emit(BeaconEvent{
		MACAddress:     strings.ToUpper(sighting.MAC),
		SignalStrength: sighting.Signal,
		SSID:           sighting.SSID,
		Hostname:       sighting.Hostname,
		Timestamp:      time.Now().UTC(),
		Source:         SourceMQTT,
	})
}
