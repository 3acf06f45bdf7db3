package strip

import (
	"fmt"
	"strings"
	"time"

	"github.com/golang/geo/r3"
	"gopkg.in/yaml.v3"
)

// Color is a raw 8-bit RGB triple in strip channel order
type Color struct {
	R uint8
	G uint8
	B uint8
}

// Black is the color of an unlit LED
var Black = Color{}

// Hex returns the color as "#RRGGBB"
func (c Color) Hex() string {
	return fmt.Sprintf("#%02X%02X%02X", c.R, c.G, c.B)
}

// IsBlack reports whether every channel is zero
func (c Color) IsBlack() bool {
	return c.R == 0 && c.G == 0 && c.B == 0
}

// ParseHexColor parses "#RRGGBB" or "RRGGBB"
func ParseHexColor(s string) (Color, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(s) != 6 {
		return Color{}, fmt.Errorf("invalid color %q: want #RRGGBB", s)
	}
	var c Color
	if _, err := fmt.Sscanf(s, "%02x%02x%02x", &c.R, &c.G, &c.B); err != nil {
		return Color{}, fmt.Errorf("invalid color %q: %w", s, err)
	}
	return c, nil
}

// UnmarshalYAML accepts colors written as hex strings in the config file
func (c *Color) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return fmt.Errorf("color must be a hex string: %w", err)
	}
	parsed, err := ParseHexColor(s)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// MarshalYAML writes colors back as hex strings
func (c Color) MarshalYAML() (interface{}, error) {
	return c.Hex(), nil
}

// MarshalJSON encodes the color as a hex string
func (c Color) MarshalJSON() ([]byte, error) {
	return []byte(`"` + c.Hex() + `"`), nil
}

// UnmarshalJSON decodes a hex string color
func (c *Color) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	parsed, err := ParseHexColor(s)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// LedState is the resident state of one lit LED
type LedState struct {
	Color         Color `json:"color"`
	FadeRemaining int   `json:"fadeRemaining"`
}

// Pose is a single tracking sample for a device
type Pose struct {
	Position  r3.Vector
	Direction r3.Vector
}

// DeviceConfig describes the lighting device endpoint and the strip attached to it
type DeviceConfig struct {
	Host         string        `yaml:"host" json:"host"`
	Port         int           `yaml:"port,omitempty" json:"port,omitempty"`
	NumLEDs      int           `yaml:"numLeds" json:"numLeds"`
	FPS          int           `yaml:"fps,omitempty" json:"fps,omitempty"`
	MaxPayload   int           `yaml:"maxPayload,omitempty" json:"maxPayload,omitempty"` // bytes of pixel data per datagram
	WriteTimeout time.Duration `yaml:"writeTimeout,omitempty" json:"writeTimeout,omitempty"`
}

// ColorBinding maps a button combination to a color in the config file
type ColorBinding struct {
	Buttons []string `yaml:"buttons" json:"buttons"`
	Color   Color    `yaml:"color" json:"color"`
}

// PointerConfig holds the ray and fade tuning
type PointerConfig struct {
	Accuracy      float64        `yaml:"accuracy,omitempty" json:"accuracy,omitempty"` // dot-product threshold, (0,1)
	FadeSteps     int            `yaml:"fadeSteps,omitempty" json:"fadeSteps,omitempty"`
	PollInterval  time.Duration  `yaml:"pollInterval,omitempty" json:"pollInterval,omitempty"`
	DecayInterval time.Duration  `yaml:"decayInterval,omitempty" json:"decayInterval,omitempty"`
	BaseColor     *Color         `yaml:"baseColor,omitempty" json:"baseColor,omitempty"`
	Latch         bool           `yaml:"latch,omitempty" json:"latch,omitempty"` // keep last color when buttons are released
	Colors        []ColorBinding `yaml:"colors,omitempty" json:"colors,omitempty"`
}

// ControllerConfig defines one tracked controller
type ControllerConfig struct {
	Device int    `yaml:"device" json:"device"`
	Name   string `yaml:"name,omitempty" json:"name,omitempty"`
	Topic  string `yaml:"topic,omitempty" json:"topic,omitempty"` // overrides <trackingPrefix>/<device>
}

// MQTTConfig holds MQTT connection settings
type MQTTConfig struct {
	Broker          string        `yaml:"broker" json:"broker"`
	ClientID        string        `yaml:"clientId,omitempty" json:"clientId,omitempty"`
	Username        string        `yaml:"username,omitempty" json:"username,omitempty"`
	Password        string        `yaml:"password,omitempty" json:"password,omitempty"`
	PublishPrefix   string        `yaml:"publishPrefix,omitempty" json:"publishPrefix,omitempty"`
	TrackingPrefix  string        `yaml:"trackingPrefix,omitempty" json:"trackingPrefix,omitempty"`
	PoseTimeout     time.Duration `yaml:"poseTimeout,omitempty" json:"poseTimeout,omitempty"`
	PublishInterval time.Duration `yaml:"publishInterval,omitempty" json:"publishInterval,omitempty"`
}

// FilesConfig holds the paths of the two persisted files
type FilesConfig struct {
	Catalog     string `yaml:"catalog,omitempty" json:"catalog,omitempty"`
	Calibration string `yaml:"calibration,omitempty" json:"calibration,omitempty"`
}

// HTTPConfig configures the status server; port 0 disables it
type HTTPConfig struct {
	Port int `yaml:"port,omitempty" json:"port,omitempty"`
}

// Config represents the full configuration file
type Config struct {
	Device      DeviceConfig       `yaml:"device" json:"device"`
	Pointer     PointerConfig      `yaml:"pointer,omitempty" json:"pointer,omitempty"`
	Controllers []ControllerConfig `yaml:"controllers" json:"controllers"`
	MQTT        MQTTConfig         `yaml:"mqtt" json:"mqtt"`
	Files       FilesConfig        `yaml:"files,omitempty" json:"files,omitempty"`
	HTTP        HTTPConfig         `yaml:"http,omitempty" json:"http,omitempty"`
	Debug       bool               `yaml:"debug,omitempty" json:"debug,omitempty"`
}

// GetController returns the controller config for a device index
func (c *Config) GetController(device int) *ControllerConfig {
	for i := range c.Controllers {
		if c.Controllers[i].Device == device {
			return &c.Controllers[i]
		}
	}
	return nil
}

// Devices returns the configured device indexes in config order
func (c *Config) Devices() []int {
	devices := make([]int, 0, len(c.Controllers))
	for _, cc := range c.Controllers {
		devices = append(devices, cc.Device)
	}
	return devices
}

// DisplayName returns the controller name, or "controller-<device>" when unnamed
func (cc ControllerConfig) DisplayName() string {
	if cc.Name != "" {
		return cc.Name
	}
	return fmt.Sprintf("controller-%d", cc.Device)
}
