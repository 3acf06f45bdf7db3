package main

import (
	"context"
	"encoding/json"
	"os"
	"sync/atomic"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/golang/geo/r3"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kwv/ledpointer/strip"
)

// TestServicePointsOverBroker runs the service against a real broker, feeds
// it a pose aimed at LED 0 and checks the strip and the status topic
func TestServicePointsOverBroker(t *testing.T) {
	// Skip if not running integration tests
	if os.Getenv("RUN_INTEGRATION_TESTS") != "1" {
		t.Skip("Skipping integration test (set RUN_INTEGRATION_TESTS=1 to run)")
	}
	broker := os.Getenv("MQTT_TEST_BROKER")
	if broker == "" {
		broker = "tcp://localhost:1883"
	}

	clearEnv(t)
	t.Setenv("MQTT_BROKER", broker)
	t.Setenv("MQTT_PUBLISH_PREFIX", "ledpointer-test")

	device, port := listenUDP(t)
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	app, _ := testApp(t, ctx, writeServiceFiles(t, port, true))

	done := make(chan error, 1)
	go func() { done <- app.RunService() }()

	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID("ledpointer-it-" + uuid.NewString()[:8])
	client := mqtt.NewClient(opts)
	token := client.Connect()
	require.True(t, token.WaitTimeout(5*time.Second), "connect timeout")
	require.NoError(t, token.Error())
	defer client.Disconnect(100)

	var sawRed atomic.Bool
	sub := client.Subscribe("ledpointer-test/controller/0", 0, func(_ mqtt.Client, m mqtt.Message) {
		var msg strip.ControllerMessage
		if json.Unmarshal(m.Payload(), &msg) == nil && msg.Connected && msg.Color == "#FF0000" {
			sawRed.Store(true)
		}
	})
	require.True(t, sub.WaitTimeout(5*time.Second))
	require.NoError(t, sub.Error())

	// from (0, 1, -1) looking along +Z the ray passes LED 0 and LED 3
	payload, err := strip.EncodePoseMessage(strip.Pose{
		Position:  r3.Vector{Y: 1, Z: -1},
		Direction: r3.Vector{Z: 1},
	}, true, strip.NewButtonSet(strip.ButtonTrigger))
	require.NoError(t, err)

	buf := make([]byte, 2048)
	lit := false
	deadline := time.Now().Add(10 * time.Second)
	for !(lit && sawRed.Load()) && time.Now().Before(deadline) {
		client.Publish("ledpointer/tracking/0", 0, false, payload).Wait()

		_ = device.SetReadDeadline(time.Now().Add(50 * time.Millisecond))
		n, _, err := device.ReadFromUDP(buf)
		if err != nil || n < strip.HeaderSize+12 {
			continue
		}
		px := buf[strip.HeaderSize:n]
		if px[0] == 255 && px[1] == 0 && px[2] == 0 && px[9] == 255 {
			lit = true
		}
	}
	assert.True(t, lit, "LED 0 and LED 3 should be lit red")
	assert.True(t, sawRed.Load(), "status for device 0 should report tracking in red")

	cancel()
	require.NoError(t, <-done)
}
