package strip

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/golang/geo/r3"
)

// ControllerMessage is published retained per controller
type ControllerMessage struct {
	Device    int       `json:"device"`
	Name      string    `json:"name"`
	Connected bool      `json:"connected"`
	Color     string    `json:"color"`
	Held      string    `json:"held"`
	Lit       int       `json:"lit"`
	Position  []float64 `json:"position,omitempty"`
	Timestamp int64     `json:"timestamp"`
}

// StripMessage is published retained for the whole strip
type StripMessage struct {
	NumLEDs    int    `json:"numLeds"`
	Lit        int    `json:"lit"`
	Frames     uint64 `json:"frames"`
	SendErrors uint64 `json:"sendErrors"`
	Timestamp  int64  `json:"timestamp"`
}

// CalibrationMessage announces a new offset for a controller
type CalibrationMessage struct {
	Device    int       `json:"device"`
	Offset    []float64 `json:"offset"`
	Timestamp int64     `json:"timestamp"`
}

// Publisher publishes controller and strip status to MQTT
type Publisher struct {
	client        mqtt.Client
	publishPrefix string
	qos           byte
	retain        bool
}

// NewPublisher creates a status publisher. An empty prefix uses the default.
func NewPublisher(client mqtt.Client, prefix string) *Publisher {
	if prefix == "" {
		prefix = DefaultPublishPrefix
	}
	return &Publisher{
		client:        client,
		publishPrefix: prefix,
		qos:           0,
		retain:        true,
	}
}

func (p *Publisher) publish(topic string, v interface{}) error {
	if p.client == nil || !p.client.IsConnected() {
		return fmt.Errorf("MQTT client not connected")
	}

	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshaling %s: %w", topic, err)
	}

	token := p.client.Publish(topic, p.qos, p.retain, payload)
	if token.WaitTimeout(2*time.Second) && token.Error() != nil {
		return fmt.Errorf("publishing to %s: %w", topic, token.Error())
	}
	return nil
}

// PublishController publishes one agent's status to <prefix>/controller/<device>
func (p *Publisher) PublishController(status AgentStatus) error {
	msg := ControllerMessage{
		Device:    status.Device,
		Name:      status.Name,
		Connected: status.Connected,
		Color:     status.Color.Hex(),
		Held:      status.Held,
		Lit:       len(status.Lit),
		Timestamp: time.Now().Unix(),
	}
	if status.Connected {
		msg.Position = vectorToSlice(status.Position)
	}
	return p.publish(fmt.Sprintf("%s/controller/%d", p.publishPrefix, status.Device), msg)
}

// PublishStrip publishes strip totals to <prefix>/strip
func (p *Publisher) PublishStrip(numLEDs, lit int, stats TransmitStats) error {
	return p.publish(p.publishPrefix+"/strip", StripMessage{
		NumLEDs:    numLEDs,
		Lit:        lit,
		Frames:     stats.Frames,
		SendErrors: stats.SendErrors,
		Timestamp:  time.Now().Unix(),
	})
}

// PublishCalibration publishes a device offset to <prefix>/calibration/<device>
func (p *Publisher) PublishCalibration(device int, offset r3.Vector) error {
	return p.publish(fmt.Sprintf("%s/calibration/%d", p.publishPrefix, device), CalibrationMessage{
		Device:    device,
		Offset:    vectorToSlice(offset),
		Timestamp: time.Now().Unix(),
	})
}

// StatusSource is what the periodic publisher reports on
type StatusSource struct {
	Agents      []*Agent
	Store       *Store
	Transmitter *Transmitter
	NumLEDs     int
}

// Run publishes status on every interval until ctx is cancelled.
// Publish failures are logged; the broker may simply be reconnecting.
func (p *Publisher) Run(ctx context.Context, interval time.Duration, src StatusSource) error {
	if interval <= 0 {
		interval = DefaultPublishInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	failures := 0
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		if err := p.PublishAll(src); err != nil {
			failures++
			if failures == 1 || failures%60 == 0 {
				log.Printf("Warning: status publish failed: %v", err)
			}
			continue
		}
		failures = 0
	}
}

// PublishAll publishes every controller and the strip once
func (p *Publisher) PublishAll(src StatusSource) error {
	for _, a := range src.Agents {
		if err := p.PublishController(a.Status()); err != nil {
			return err
		}
	}
	var stats TransmitStats
	if src.Transmitter != nil {
		stats = src.Transmitter.Stats()
	}
	return p.PublishStrip(src.NumLEDs, src.Store.Len(), stats)
}
