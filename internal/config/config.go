// Package config loads the typed configuration record external wrappers
// supply to the gateway: networks, the Modbus link, MQTT, and logging.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// NetworkConfig describes one radio network to monitor.
type NetworkConfig struct {
	ID   string `yaml:"id"`
	Port string `yaml:"port"`
	Baud int    `yaml:"baud"`
}

// ModbusConfig describes the shared RS-485 link to the channel controller.
type ModbusConfig struct {
	Port        string `yaml:"port"`
	Baud        int    `yaml:"baud"`
	SlaveID     byte   `yaml:"slave_id"`
	ScanPeriodS uint32 `yaml:"scan_period_s"`
}

// MQTTConfig describes the broker connection and topic namespace.
type MQTTConfig struct {
	Broker      string `yaml:"broker"`
	Port        uint16 `yaml:"port"`
	Username    string `yaml:"username,omitempty"`
	Password    string `yaml:"password,omitempty"`
	UseTLS      bool   `yaml:"use_tls"`
	TopicPrefix string `yaml:"topic_prefix"`
}

// LoggingConfig describes where log output goes.
type LoggingConfig struct {
	File    string `yaml:"file,omitempty"`
	Console bool   `yaml:"console"`
}

// Config is the gateway's full typed configuration record.
type Config struct {
	Networks      []NetworkConfig `yaml:"networks"`
	Modbus        ModbusConfig    `yaml:"modbus"`
	MQTT          MQTTConfig      `yaml:"mqtt"`
	Logging       LoggingConfig   `yaml:"logging"`
	DurationHours uint32          `yaml:"duration_hours,omitempty"`
}

const (
	defaultScanPeriodS = 30
	defaultTopicPrefix = "oi7500"
)

// Load reads and parses a YAML configuration file at path, then validates
// and defaults it.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: reading %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parsing %s: %w", path, err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Modbus.ScanPeriodS == 0 {
		c.Modbus.ScanPeriodS = defaultScanPeriodS
	}
	if c.MQTT.TopicPrefix == "" {
		c.MQTT.TopicPrefix = defaultTopicPrefix
	}
}

// Validate checks the configuration record is complete enough to start the
// gateway. A failure here stops startup before any port is opened. It is not
// the only startup failure: gateway.New also fails when a serial port cannot
// be opened, and Gateway.Run returns an error without starting the monitors
// when the first MQTT connection attempt fails.
func (c Config) Validate() error {
	if len(c.Networks) == 0 {
		return fmt.Errorf("config: at least one network is required")
	}
	seen := make(map[string]bool, len(c.Networks))
	for _, n := range c.Networks {
		if n.ID == "" {
			return fmt.Errorf("config: network missing id")
		}
		if seen[n.ID] {
			return fmt.Errorf("config: duplicate network id %q", n.ID)
		}
		seen[n.ID] = true
		if n.Port == "" {
			return fmt.Errorf("config: network %q missing port", n.ID)
		}
		if n.Baud <= 0 {
			return fmt.Errorf("config: network %q has invalid baud %d", n.ID, n.Baud)
		}
	}
	if c.Modbus.Port == "" {
		return fmt.Errorf("config: modbus.port is required")
	}
	if c.MQTT.Broker == "" {
		return fmt.Errorf("config: mqtt.broker is required")
	}
	return nil
}
