package strip

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultDevicePort      = 4048
	DefaultNumLEDs         = 358
	DefaultFPS             = 60
	LegacyFPS              = 30
	DefaultWriteTimeout    = 100 * time.Millisecond
	DefaultAccuracy        = 0.9999
	DefaultFadeSteps       = 20
	DefaultPollInterval    = 10 * time.Millisecond
	DefaultDecayInterval   = 50 * time.Millisecond
	DefaultPoseTimeout     = 250 * time.Millisecond
	DefaultPublishInterval = time.Second
	DefaultPublishPrefix   = "ledpointer"
	DefaultTrackingPrefix  = "ledpointer/tracking"
	DefaultCatalogPath     = "led_mapping.json"
	DefaultCalibrationPath = "controller_calibration.json"
	DefaultHTTPPort        = 8080
)

// DefaultBaseColor is shown while no button is held
var DefaultBaseColor = Color{R: 255, G: 0, B: 100}

// LoadConfig loads the configuration from a YAML file, applies environment
// overrides and defaults, and validates the result
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", path)
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("parsing config YAML: %w", err)
	}

	config.ApplyEnv()
	config.ApplyDefaults()

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(path string, config *Config) error {
	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("marshaling config YAML: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	return nil
}

// ApplyEnv overrides config values from the environment
func (c *Config) ApplyEnv() {
	if v := os.Getenv("MQTT_BROKER"); v != "" {
		c.MQTT.Broker = v
	}
	if v := os.Getenv("MQTT_CLIENT_ID"); v != "" {
		c.MQTT.ClientID = v
	}
	if v := os.Getenv("MQTT_USERNAME"); v != "" {
		c.MQTT.Username = v
	}
	if v := os.Getenv("MQTT_PASSWORD"); v != "" {
		c.MQTT.Password = v
	}
	if v := os.Getenv("MQTT_PUBLISH_PREFIX"); v != "" {
		c.MQTT.PublishPrefix = v
	}
	if v := os.Getenv("LED_DEVICE_HOST"); v != "" {
		c.Device.Host = v
	}
	if v := os.Getenv("HTTP_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.HTTP.Port = port
		}
	}
}

// ApplyDefaults fills every unset field with its default
func (c *Config) ApplyDefaults() {
	if c.Device.Port == 0 {
		c.Device.Port = DefaultDevicePort
	}
	if c.Device.NumLEDs == 0 {
		c.Device.NumLEDs = DefaultNumLEDs
	}
	if c.Device.FPS == 0 {
		c.Device.FPS = DefaultFPS
	}
	if c.Device.MaxPayload == 0 {
		c.Device.MaxPayload = DefaultMaxPayload
	}
	if c.Device.WriteTimeout == 0 {
		c.Device.WriteTimeout = DefaultWriteTimeout
	}

	if c.Pointer.Accuracy == 0 {
		c.Pointer.Accuracy = DefaultAccuracy
	}
	if c.Pointer.FadeSteps == 0 {
		c.Pointer.FadeSteps = DefaultFadeSteps
	}
	if c.Pointer.PollInterval == 0 {
		c.Pointer.PollInterval = DefaultPollInterval
	}
	if c.Pointer.DecayInterval == 0 {
		c.Pointer.DecayInterval = DefaultDecayInterval
	}
	if c.Pointer.BaseColor == nil {
		base := DefaultBaseColor
		c.Pointer.BaseColor = &base
	}

	if c.MQTT.PublishPrefix == "" {
		c.MQTT.PublishPrefix = DefaultPublishPrefix
	}
	if c.MQTT.TrackingPrefix == "" {
		c.MQTT.TrackingPrefix = DefaultTrackingPrefix
	}
	if c.MQTT.PoseTimeout == 0 {
		c.MQTT.PoseTimeout = DefaultPoseTimeout
	}
	if c.MQTT.PublishInterval == 0 {
		c.MQTT.PublishInterval = DefaultPublishInterval
	}

	if c.Files.Catalog == "" {
		c.Files.Catalog = DefaultCatalogPath
	}
	if c.Files.Calibration == "" {
		c.Files.Calibration = DefaultCalibrationPath
	}
}

// Validate checks the config for faults that must stop startup
func (c *Config) Validate() error {
	if c.Device.Host == "" {
		return fmt.Errorf("device.host is required")
	}
	if c.Device.Port <= 0 || c.Device.Port > 65535 {
		return fmt.Errorf("device.port %d out of range", c.Device.Port)
	}
	if c.Device.NumLEDs <= 0 {
		return fmt.Errorf("device.numLeds must be positive, got %d", c.Device.NumLEDs)
	}
	if c.Device.FPS <= 0 {
		return fmt.Errorf("device.fps must be positive, got %d", c.Device.FPS)
	}
	if c.Device.MaxPayload < 3 || c.Device.MaxPayload%3 != 0 {
		return fmt.Errorf("device.maxPayload must be a positive multiple of 3, got %d", c.Device.MaxPayload)
	}
	if c.Device.MaxPayload > MaxPayloadLimit {
		return fmt.Errorf("device.maxPayload must be at most %d, got %d", MaxPayloadLimit, c.Device.MaxPayload)
	}
	if c.Pointer.Accuracy <= 0 || c.Pointer.Accuracy >= 1 {
		return fmt.Errorf("pointer.accuracy must be in (0,1), got %v", c.Pointer.Accuracy)
	}
	if c.Pointer.FadeSteps < 0 {
		return fmt.Errorf("pointer.fadeSteps must not be negative, got %d", c.Pointer.FadeSteps)
	}
	if c.MQTT.Broker == "" {
		return fmt.Errorf("mqtt.broker is required")
	}
	if len(c.Controllers) == 0 {
		return fmt.Errorf("at least one controller must be defined")
	}

	seen := make(map[int]bool, len(c.Controllers))
	for i, cc := range c.Controllers {
		if cc.Device < 0 {
			return fmt.Errorf("controllers[%d].device must not be negative", i)
		}
		if seen[cc.Device] {
			return fmt.Errorf("controllers[%d]: device %d defined twice", i, cc.Device)
		}
		seen[cc.Device] = true
	}

	if _, err := c.ColorTable(); err != nil {
		return err
	}

	return nil
}

// ColorTable builds the button color table from the pointer section,
// falling back to the default table when no colors are configured
func (c *Config) ColorTable() (ColorTable, error) {
	base := DefaultBaseColor
	if c.Pointer.BaseColor != nil {
		base = *c.Pointer.BaseColor
	}

	if len(c.Pointer.Colors) == 0 {
		table := DefaultColorTable()
		table.Base = base
		table.Latch = c.Pointer.Latch
		return table, nil
	}

	entries := make([]ColorEntry, 0, len(c.Pointer.Colors))
	for i, binding := range c.Pointer.Colors {
		if len(binding.Buttons) == 0 {
			return ColorTable{}, fmt.Errorf("pointer.colors[%d]: at least one button is required", i)
		}
		var set ButtonSet
		for _, name := range binding.Buttons {
			b, err := ParseButton(name)
			if err != nil {
				return ColorTable{}, fmt.Errorf("pointer.colors[%d]: %w", i, err)
			}
			set = set.With(b)
		}
		entries = append(entries, ColorEntry{Buttons: set, Color: binding.Color})
	}

	return NewColorTable(entries, base, c.Pointer.Latch), nil
}
