package strip

import (
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// PoseMessage is the JSON sample a tracking bridge publishes per controller.
// Either matrix (3x4, device to world) or position and direction must be set.
type PoseMessage struct {
	Connected bool            `json:"connected"`
	PoseValid bool            `json:"poseValid"`
	Position  []float64       `json:"position,omitempty"`
	Direction []float64       `json:"direction,omitempty"`
	Matrix    [][]float64     `json:"matrix,omitempty"`
	Buttons   map[string]bool `json:"buttons,omitempty"`
	Timestamp int64           `json:"timestamp,omitempty"`
}

type trackedSample struct {
	pose     Pose
	valid    bool
	buttons  ButtonSet
	received time.Time
}

// MQTTTracker implements Tracker from pose samples received over MQTT.
// A sample older than the pose timeout counts as disconnected.
type MQTTTracker struct {
	topics      map[int]string
	poseTimeout time.Duration
	now         func() time.Time

	mu      sync.RWMutex
	samples map[int]trackedSample
}

// NewMQTTTracker creates a tracker for the configured controllers
func NewMQTTTracker(config *Config) *MQTTTracker {
	t := &MQTTTracker{
		topics:      make(map[int]string, len(config.Controllers)),
		poseTimeout: config.MQTT.PoseTimeout,
		now:         time.Now,
		samples:     make(map[int]trackedSample),
	}
	if t.poseTimeout <= 0 {
		t.poseTimeout = DefaultPoseTimeout
	}
	for _, cc := range config.Controllers {
		topic := cc.Topic
		if topic == "" {
			topic = fmt.Sprintf("%s/%d", config.MQTT.TrackingPrefix, cc.Device)
		}
		t.topics[cc.Device] = topic
	}
	return t
}

// Topic returns the tracking topic of a device
func (t *MQTTTracker) Topic(device int) string {
	return t.topics[device]
}

// Subscribe registers a handler for every controller topic
func (t *MQTTTracker) Subscribe(client mqtt.Client) error {
	var firstErr error
	for device, topic := range t.topics {
		log.Printf("Subscribing to %s for device %d", topic, device)
		token := client.Subscribe(topic, 0, t.messageHandler(device))
		if token.WaitTimeout(5*time.Second) && token.Error() != nil {
			log.Printf("Error subscribing to %s: %v", topic, token.Error())
			if firstErr == nil {
				firstErr = fmt.Errorf("subscribing to %s: %w", topic, token.Error())
			}
		}
	}
	return firstErr
}

func (t *MQTTTracker) messageHandler(device int) mqtt.MessageHandler {
	return func(client mqtt.Client, msg mqtt.Message) {
		if err := t.HandlePayload(device, msg.Payload()); err != nil {
			log.Printf("Warning: bad tracking sample for device %d on %s: %v", device, msg.Topic(), err)
		}
	}
}

// HandlePayload decodes one sample and records it for device
func (t *MQTTTracker) HandlePayload(device int, payload []byte) error {
	var msg PoseMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return fmt.Errorf("decoding pose message: %w", err)
	}

	sample := trackedSample{
		valid:    msg.Connected && msg.PoseValid,
		received: t.now(),
	}

	for name, pressed := range msg.Buttons {
		if !pressed {
			continue
		}
		b, err := ParseButton(name)
		if err != nil {
			continue // bridges may report buttons we do not use
		}
		sample.buttons = sample.buttons.With(b)
	}

	if sample.valid {
		pose, err := poseFromMessage(msg)
		if err != nil {
			return err
		}
		sample.pose = pose
	}

	t.mu.Lock()
	t.samples[device] = sample
	t.mu.Unlock()
	return nil
}

func poseFromMessage(msg PoseMessage) (Pose, error) {
	if len(msg.Matrix) > 0 {
		pose, ok := PoseFromRows(msg.Matrix)
		if !ok {
			return Pose{}, fmt.Errorf("pose matrix must be 3x4")
		}
		return pose, nil
	}

	position, ok := vectorFromSlice(msg.Position)
	if !ok {
		return Pose{}, fmt.Errorf("position must have 3 components")
	}
	direction, ok := vectorFromSlice(msg.Direction)
	if !ok {
		return Pose{}, fmt.Errorf("direction must have 3 components")
	}
	return Pose{Position: position, Direction: direction}, nil
}

func (t *MQTTTracker) fresh(device int) (trackedSample, bool) {
	t.mu.RLock()
	sample, ok := t.samples[device]
	t.mu.RUnlock()
	if !ok || t.now().Sub(sample.received) > t.poseTimeout {
		return trackedSample{}, false
	}
	return sample, true
}

// PollPose implements Tracker
func (t *MQTTTracker) PollPose(device int) (Pose, bool) {
	sample, ok := t.fresh(device)
	if !ok || !sample.valid {
		return Pose{}, false
	}
	return sample.pose, true
}

// IsButtonPressed implements Tracker. Buttons of a stale sample read as released.
func (t *MQTTTracker) IsButtonPressed(device int, b Button) bool {
	sample, ok := t.fresh(device)
	return ok && sample.buttons.Has(b)
}

// LastSeen returns when the last sample for device arrived
func (t *MQTTTracker) LastSeen(device int) (time.Time, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	sample, ok := t.samples[device]
	return sample.received, ok
}

// EncodePoseMessage builds the tracking payload for a pose; used by bridges and tests
func EncodePoseMessage(pose Pose, valid bool, held ButtonSet) ([]byte, error) {
	msg := PoseMessage{
		Connected: true,
		PoseValid: valid,
		Position:  vectorToSlice(pose.Position),
		Direction: vectorToSlice(pose.Direction),
		Buttons:   make(map[string]bool, len(AllButtons)),
		Timestamp: time.Now().UnixMilli(),
	}
	for _, b := range AllButtons {
		msg.Buttons[b.String()] = held.Has(b)
	}
	return json.Marshal(msg)
}

var _ Tracker = (*MQTTTracker)(nil)
var _ Subscriber = (*MQTTTracker)(nil)

