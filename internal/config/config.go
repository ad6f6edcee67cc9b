// Package config holds the runtime configuration of btchat.
//
// Precedence (highest wins): CLI flags (cmd/btchat), environment variables
// (LoadFromEnv), the YAML file (Load), defaults (Default).
package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Transport kinds.
const (
	TransportBlueZ  = "bluez"
	TransportMemory = "memory"
)

// Config holds every tuneable of a btchat process.
type Config struct {
	// Transport is "bluez" or "memory".
	Transport string `yaml:"transport"`

	// Adapter is the BlueZ adapter (hci0) or, for the memory transport, the
	// local name other peers dial.
	Adapter string `yaml:"adapter"`

	Service ServiceConfig `yaml:"service"`

	ReadBufferSize int           `yaml:"read_buffer_size"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
	ScanTimeout    time.Duration `yaml:"scan_timeout"`

	Verbose int `yaml:"verbose"`
}

// ServiceConfig is the service record the listener registers and the
// connector targets.
type ServiceConfig struct {
	Name    string `yaml:"name"`
	UUID    string `yaml:"uuid"`
	Channel int    `yaml:"channel"`
}

// Error reports one invalid configuration value.
type Error struct {
	Field   string
	Value   interface{}
	Message string
}

func (e *Error) Error() string {
	if e.Value != nil {
		return fmt.Sprintf("config: %s=%v: %s", e.Field, e.Value, e.Message)
	}
	return fmt.Sprintf("config: %s: %s", e.Field, e.Message)
}

// Load reads a YAML file over the defaults. An empty path or a missing file
// yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}

var uuidPattern = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)

// Validate returns the first invalid field as an *Error.
func (c *Config) Validate() error {
	switch c.Transport {
	case TransportBlueZ, TransportMemory:
	default:
		return &Error{Field: "transport", Value: c.Transport, Message: `must be "bluez" or "memory"`}
	}
	if c.Adapter == "" {
		return &Error{Field: "adapter", Message: "required"}
	}
	if c.Service.Name == "" {
		return &Error{Field: "service.name", Message: "required"}
	}
	if !uuidPattern.MatchString(c.Service.UUID) {
		return &Error{Field: "service.uuid", Value: c.Service.UUID, Message: "not a 128-bit UUID"}
	}
	// RFCOMM channels are 1-30.
	if c.Service.Channel < 1 || c.Service.Channel > 30 {
		return &Error{Field: "service.channel", Value: c.Service.Channel, Message: "must be between 1 and 30"}
	}
	if c.ReadBufferSize <= 0 {
		return &Error{Field: "read_buffer_size", Value: c.ReadBufferSize, Message: "must be positive"}
	}
	if c.ConnectTimeout < 0 {
		return &Error{Field: "connect_timeout", Value: c.ConnectTimeout, Message: "must not be negative"}
	}
	if c.ScanTimeout <= 0 {
		return &Error{Field: "scan_timeout", Value: c.ScanTimeout, Message: "must be positive"}
	}
	return nil
}
