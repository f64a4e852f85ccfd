package sniffer

import (
	"fmt"

	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// Mode names accepted in sniffer.modes.
const (
	ModeRuckus   = "ruckus"
	ModeOPNsense = "opnsense"
	ModeMonitor  = "monitor"
	ModeGLiNet   = "glinet"
	ModeMQTT     = "mqtt"
	ModeMock     = "mock"
)

// New builds the sniffer backend for a configured mode. Missing required
// settings are an error here, not a silent no-op backend at runtime.
func New(mode string, v *viper.Viper, logger *zap.Logger) (Sniffer, error) {
	log := logger.Named("sniffer." + mode)

	switch mode {
	case ModeRuckus:
		cfg := RuckusConfig{
			Host:         v.GetString("sniffer.ruckus.host"),
			Username:     v.GetString("sniffer.ruckus.username"),
			Password:     v.GetString("sniffer.ruckus.password"),
			PollInterval: v.GetDuration("sniffer.poll_interval"),
		}
		if cfg.Host == "" || cfg.Username == "" || cfg.Password == "" {
			return nil, fmt.Errorf("ruckus sniffer requires sniffer.ruckus.host, username, and password")
		}
		return NewRuckusSniffer(cfg, log), nil

	case ModeOPNsense:
		cfg := OPNsenseConfig{
			Host:         v.GetString("sniffer.opnsense.url"),
			APIKey:       v.GetString("sniffer.opnsense.api_key"),
			APISecret:    v.GetString("sniffer.opnsense.api_secret"),
			PollInterval: v.GetDuration("sniffer.poll_interval"),
		}
		if cfg.Host == "" || cfg.APIKey == "" || cfg.APISecret == "" {
			return nil, fmt.Errorf("opnsense sniffer requires sniffer.opnsense.url, api_key, and api_secret")
		}
		return NewOPNsenseSniffer(cfg, log), nil

	case ModeMonitor:
		cfg := MonitorConfig{Interface: v.GetString("sniffer.monitor.interface")}
		if cfg.Interface == "" {
			return nil, fmt.Errorf("monitor sniffer requires sniffer.monitor.interface")
		}
		return NewMonitorSniffer(cfg, log), nil

	case ModeGLiNet:
		cfg := GLiNetConfig{
			Host:             v.GetString("sniffer.glinet.host"),
			Port:             v.GetInt("sniffer.glinet.port"),
			Username:         v.GetString("sniffer.glinet.username"),
			Password:         v.GetString("sniffer.glinet.password"),
			Interface:        v.GetString("sniffer.glinet.wifi_interface"),
			MonitorInterface: v.GetString("sniffer.glinet.monitor_interface"),
		}
		if cfg.Host == "" || cfg.Password == "" {
			return nil, fmt.Errorf("glinet sniffer requires sniffer.glinet.host and password")
		}
		return NewGLiNetSniffer(cfg, log), nil

	case ModeMQTT:
		cfg := MQTTConfig{
			Broker:   v.GetString("sniffer.mqtt.broker"),
			Topic:    v.GetString("sniffer.mqtt.topic"),
			Username: v.GetString("sniffer.mqtt.username"),
			Password: v.GetString("sniffer.mqtt.password"),
		}
		if cfg.Broker == "" {
			return nil, fmt.Errorf("mqtt sniffer requires sniffer.mqtt.broker")
		}
		return NewMQTTSniffer(cfg, log), nil

	case ModeMock:
		return NewMockSniffer(v.GetDuration("sniffer.mock.poll_interval"), log), nil

	default:
		return nil, fmt.Errorf("unknown sniffer mode %q", mode)
	}
}
