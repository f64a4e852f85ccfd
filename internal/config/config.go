// Package config loads application configuration (dotenv + file + env)
// and builds the shared zap logger from it.
package config

import (
	"fmt"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Load reads configuration from an optional YAML file and the environment.
// A .env file in the working directory is folded into the environment first
// so deployments can keep credentials out of the config file. Environment
// variables use the HEARTHWATCH_ prefix with dots replaced by underscores,
// e.g. HEARTHWATCH_SNIFFER_MODES=ruckus,opnsense.
func Load(configPath string) (*viper.Viper, error) {
	// Best effort: a missing .env is not an error.
	_ = godotenv.Load()

	v := viper.New()

	// Defaults
	v.SetDefault("database.path", "./data/hearthwatch.db")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("metrics.listen", "")

	v.SetDefault("sniffer.modes", []string{})
	v.SetDefault("sniffer.poll_interval", "30s")
	v.SetDefault("presence.grace_period", "180s")

	v.SetDefault("sniffer.ruckus.host", "")
	v.SetDefault("sniffer.ruckus.username", "")
	v.SetDefault("sniffer.ruckus.password", "")
	v.SetDefault("sniffer.opnsense.url", "")
	v.SetDefault("sniffer.opnsense.api_key", "")
	v.SetDefault("sniffer.opnsense.api_secret", "")
	v.SetDefault("sniffer.monitor.interface", "")
	v.SetDefault("sniffer.glinet.host", "")
	v.SetDefault("sniffer.glinet.username", "root")
	v.SetDefault("sniffer.glinet.password", "")
	v.SetDefault("sniffer.glinet.wifi_interface", "wlan0")
	v.SetDefault("sniffer.glinet.monitor_interface", "wlan0mon")
	v.SetDefault("sniffer.mqtt.broker", "")
	v.SetDefault("sniffer.mqtt.topic", "hearthwatch/beacons")
	v.SetDefault("sniffer.mqtt.username", "")
	v.SetDefault("sniffer.mqtt.password", "")
	v.SetDefault("sniffer.glinet.port", 22)
	v.SetDefault("sniffer.mock.poll_interval", "5s")

	v.SetDefault("alerts.timeout", "10s")
	v.SetDefault("alerts.rate_limit", 5.0)
	v.SetDefault("alerts.rate_burst", 10)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("hearthwatch")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/hearthwatch")
	}

	// Environment variable support: HEARTHWATCH_DATABASE_PATH=/var/lib/hw.db
	v.SetEnvPrefix("HEARTHWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config: %w", err)
		}
		// Config file not found is fine -- use defaults
	}

	return v, nil
}

// SnifferModes returns the configured backend modes, accepting either a
// YAML list or a comma-separated string from the environment.
func SnifferModes(v *viper.Viper) []string {
	raw := v.GetStringSlice("sniffer.modes")
	if len(raw) == 1 && strings.Contains(raw[0], ",") {
		raw = strings.Split(raw[0], ",")
	}
	modes := make([]string, 0, len(raw))
	for _, m := range raw {
		if m = strings.TrimSpace(m); m != "" {
			modes = append(modes, m)
		}
	}
	return modes
}
