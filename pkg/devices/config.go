package devices

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/goccy/go-yaml"

	"github.com/voicewire/voicewire/pkg/jsontime"
	"github.com/voicewire/voicewire/pkg/realtime"
)

// defaultReconnectDelay applies when a device config omits the delay.
const defaultReconnectDelay = 5 * time.Second

// Device is one configured outbound target. Mutated only by config load,
// never by the connection logic.
type Device struct {
	Name           string                 `yaml:"name" json:"name"`
	Host           string                 `yaml:"host" json:"host"`
	Port           int                    `yaml:"port" json:"port"`
	Voice          string                 `yaml:"voice,omitempty" json:"voice,omitempty"`
	Instructions   *realtime.Instructions `yaml:"instructions,omitempty" json:"instructions,omitempty"`
	AutoReconnect  bool                   `yaml:"auto_reconnect" json:"auto_reconnect"`
	ReconnectDelay jsontime.Duration      `yaml:"reconnect_delay,omitempty" json:"reconnect_delay,omitempty"`
	Enabled        bool                   `yaml:"enabled" json:"enabled"`
}

// URL returns the device's realtime endpoint.
func (d *Device) URL() string {
	return fmt.Sprintf("ws://%s:%d/v1/realtime", d.Host, d.Port)
}

func (d *Device) reconnectDelay() time.Duration {
	if d.ReconnectDelay == 0 {
		return defaultReconnectDelay
	}
	return d.ReconnectDelay.Duration()
}

func (d *Device) validate() error {
	if d.Name == "" {
		return fmt.Errorf("devices: device without a name")
	}
	if d.Host == "" {
		return fmt.Errorf("devices: %s: host is required", d.Name)
	}
	if d.Port <= 0 || d.Port > 65535 {
		return fmt.Errorf("devices: %s: invalid port %d", d.Name, d.Port)
	}
	if d.Instructions != nil {
		if err := d.Instructions.Validate(); err != nil {
			return fmt.Errorf("devices: %s: %w", d.Name, err)
		}
	}
	return nil
}

// Config is the device registry file. YAML and JSON are both accepted;
// the format is chosen by file extension.
type Config struct {
	Devices []Device `yaml:"devices" json:"devices"`
}

// Validate checks every device and rejects duplicate names.
func (c *Config) Validate() error {
	seen := make(map[string]bool, len(c.Devices))
	for i := range c.Devices {
		d := &c.Devices[i]
		if err := d.validate(); err != nil {
			return err
		}
		if seen[d.Name] {
			return fmt.Errorf("devices: duplicate device name %q", d.Name)
		}
		seen[d.Name] = true
	}
	return nil
}

// Enabled returns the devices the manager should connect to.
func (c *Config) Enabled() []Device {
	var out []Device
	for _, d := range c.Devices {
		if d.Enabled {
			out = append(out, d)
		}
	}
	return out
}

// LoadConfig reads and validates a device registry file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("devices: read config: %w", err)
	}
	var cfg Config
	if isYAMLPath(path) {
		err = yaml.Unmarshal(data, &cfg)
	} else {
		err = json.Unmarshal(data, &cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("devices: parse config %s: %w", filepath.Base(path), err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ExampleConfig returns a registry with one device of each instruction
// kind, meant as a starting point for a real config file.
func ExampleConfig() *Config {
	return &Config{Devices: []Device{
		{
			Name:           "kitchen-speaker",
			Host:           "192.168.1.40",
			Port:           8089,
			Voice:          "Watercooler",
			Instructions:   &realtime.Instructions{Type: realtime.InstructionsSmalltalk},
			AutoReconnect:  true,
			ReconnectDelay: jsontime.Duration(5 * time.Second),
			Enabled:        true,
		},
		{
			Name: "workshop-panel",
			Host: "192.168.1.41",
			Port: 8089,
			Voice: "Gertrude",
			Instructions: &realtime.Instructions{
				Type: realtime.InstructionsConstant,
				Text: "You are the workshop assistant. Answer briefly and practically.",
			},
			AutoReconnect:  true,
			ReconnectDelay: jsontime.Duration(10 * time.Second),
			Enabled:        false,
		},
	}}
}

// WriteExampleConfig writes ExampleConfig to path in the format implied
// by its extension. Refuses to overwrite an existing file.
func WriteExampleConfig(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("devices: %s already exists", path)
	}
	cfg := ExampleConfig()
	var data []byte
	var err error
	if isYAMLPath(path) {
		data, err = yaml.Marshal(cfg)
	} else {
		data, err = json.MarshalIndent(cfg, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("devices: marshal example config: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

func isYAMLPath(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}
