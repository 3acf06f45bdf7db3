package strip

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/golang/geo/r3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPublisher(t *testing.T) {
	publisher := NewPublisher(nil, "")
	if publisher == nil {
		t.Fatal("NewPublisher() returned nil")
	}
	if publisher.publishPrefix != "ledpointer" {
		t.Errorf("Default prefix = %s, want ledpointer", publisher.publishPrefix)
	}
	if publisher.qos != 0 {
		t.Errorf("Default QoS = %d, want 0", publisher.qos)
	}
	if !publisher.retain {
		t.Error("Default retain should be true")
	}
}

func TestPublisher_NotConnected(t *testing.T) {
	if err := NewPublisher(nil, "x").PublishStrip(10, 0, TransmitStats{}); err == nil {
		t.Error("publishing without a client should fail")
	}

	client := NewMockClient()
	if err := NewPublisher(client, "x").PublishStrip(10, 0, TransmitStats{}); err == nil {
		t.Error("publishing on a disconnected client should fail")
	}
}

func TestPublisher_PublishController(t *testing.T) {
	client := NewMockClient()
	client.SetConnected(true)
	p := NewPublisher(client, "lp")

	err := p.PublishController(AgentStatus{
		Device:    2,
		Name:      "right",
		Connected: true,
		Color:     Color{R: 255, G: 255},
		Held:      "trigger+grip",
		Lit:       []int{4, 5},
		Position:  r3.Vector{X: 1, Y: 2, Z: 3},
	})
	require.NoError(t, err)

	msg, ok := client.LastPublished("lp/controller/2")
	require.True(t, ok)
	assert.True(t, msg.Retain)

	var got ControllerMessage
	require.NoError(t, json.Unmarshal(msg.Payload, &got))
	assert.Equal(t, 2, got.Device)
	assert.Equal(t, "right", got.Name)
	assert.Equal(t, "#FFFF00", got.Color)
	assert.Equal(t, "trigger+grip", got.Held)
	assert.Equal(t, 2, got.Lit)
	assert.Equal(t, []float64{1, 2, 3}, got.Position)
}

func TestPublisher_PublishControllerDisconnectedOmitsPosition(t *testing.T) {
	client := NewMockClient()
	client.SetConnected(true)
	p := NewPublisher(client, "lp")

	require.NoError(t, p.PublishController(AgentStatus{Device: 0, Position: r3.Vector{X: 9}}))
	msg, _ := client.LastPublished("lp/controller/0")

	var raw map[string]interface{}
	require.NoError(t, json.Unmarshal(msg.Payload, &raw))
	assert.NotContains(t, raw, "position")
	assert.Equal(t, false, raw["connected"])
}

func TestPublisher_PublishCalibration(t *testing.T) {
	client := NewMockClient()
	client.SetConnected(true)
	p := NewPublisher(client, "lp")

	require.NoError(t, p.PublishCalibration(1, r3.Vector{X: 0.5, Z: -0.25}))
	msg, ok := client.LastPublished("lp/calibration/1")
	require.True(t, ok)

	var got CalibrationMessage
	require.NoError(t, json.Unmarshal(msg.Payload, &got))
	assert.Equal(t, []float64{0.5, 0, -0.25}, got.Offset)
}

func TestPublisher_PublishError(t *testing.T) {
	client := NewMockClient()
	client.SetConnected(true)
	client.SetPublishError(errors.New("quota"))

	err := NewPublisher(client, "lp").PublishStrip(1, 1, TransmitStats{})
	assert.ErrorContains(t, err, "lp/strip")
}

func TestPublisher_Run(t *testing.T) {
	client := NewMockClient()
	client.SetConnected(true)
	p := NewPublisher(client, "lp")

	tr := newFakeTracker()
	tr.set(0, Pose{Position: r3.Vector{X: -1}, Direction: r3.Vector{X: 1}}, true, 0)
	store := NewStore()
	agent := newTestAgent(tr, lineCatalog(3), store)
	agent.Tick()
	tx := NewTransmitter(store, &recordingSender{}, 3, 60, 0)
	require.NoError(t, tx.SendFrame())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- p.Run(ctx, 5*time.Millisecond, StatusSource{
			Agents:      []*Agent{agent},
			Store:       store,
			Transmitter: tx,
			NumLEDs:     3,
		})
	}()

	require.Eventually(t, func() bool {
		_, ok := client.LastPublished("lp/strip")
		return ok
	}, time.Second, time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	msg, _ := client.LastPublished("lp/strip")
	var strip StripMessage
	require.NoError(t, json.Unmarshal(msg.Payload, &strip))
	assert.Equal(t, 3, strip.NumLEDs)
	assert.Equal(t, 3, strip.Lit)
	assert.Equal(t, uint64(1), strip.Frames)

	_, ok := client.LastPublished("lp/controller/0")
	assert.True(t, ok)
}
