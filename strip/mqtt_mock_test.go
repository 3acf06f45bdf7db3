package strip

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/golang/geo/r3"
)

func TestMockClient_Connect(t *testing.T) {
	mock := NewMockClient()

	token := mock.Connect()
	if !token.WaitTimeout(1 * time.Second) {
		t.Error("Connect should complete immediately")
	}
	if token.Error() != nil {
		t.Errorf("Connect error = %v, want nil", token.Error())
	}
	if !mock.IsConnected() {
		t.Error("Client should be connected after Connect()")
	}
}

func TestMockClient_ConnectWithError(t *testing.T) {
	mock := NewMockClient()
	expectedErr := errors.New("connection failed")
	mock.SetConnectError(expectedErr)

	token := mock.Connect()
	if token.Error() != expectedErr {
		t.Errorf("Connect error = %v, want %v", token.Error(), expectedErr)
	}
	if mock.IsConnected() {
		t.Error("Client should not be connected after failed Connect()")
	}
}

func TestMockClient_OnConnectSubscribesTracker(t *testing.T) {
	mock := NewMockClient()
	tracker := NewMQTTTracker(trackerConfig())

	subscribed := make(chan struct{})
	mock.SetOnConnect(func(c mqtt.Client) {
		if err := tracker.Subscribe(c); err != nil {
			t.Errorf("Subscribe: %v", err)
		}
		close(subscribed)
	})
	mock.Connect()

	select {
	case <-subscribed:
	case <-time.After(time.Second):
		t.Fatal("onConnect handler not called")
	}

	topics := mock.SubscribedTopics()
	if len(topics) != len(trackerConfig().Controllers) {
		t.Fatalf("SubscribedTopics = %v", topics)
	}

	payload, err := EncodePoseMessage(Pose{Position: r3.Vector{Y: 1}, Direction: r3.Vector{X: 1}}, true, NewButtonSet(ButtonGrip))
	if err != nil {
		t.Fatalf("EncodePoseMessage: %v", err)
	}
	device := trackerConfig().Controllers[0].Device
	mock.SimulateMessage(tracker.Topic(device), payload)

	pose, ok := tracker.PollPose(device)
	if !ok {
		t.Fatal("pose should be valid after a fresh message")
	}
	if pose.Position != (r3.Vector{Y: 1}) {
		t.Errorf("Position = %v", pose.Position)
	}
	if !tracker.IsButtonPressed(device, ButtonGrip) || tracker.IsButtonPressed(device, ButtonTrigger) {
		t.Error("only grip should read as pressed")
	}
}

func TestMockClient_Publish(t *testing.T) {
	mock := NewMockClient()
	mock.SetConnected(true)

	payload := []byte(`{"device": 1}`)
	token := mock.Publish("ledpointer/controller/1", 0, true, payload)

	if !token.WaitTimeout(1 * time.Second) {
		t.Error("Publish should complete immediately")
	}
	if token.Error() != nil {
		t.Errorf("Publish error = %v, want nil", token.Error())
	}

	messages := mock.Published()
	if len(messages) != 1 {
		t.Fatalf("Published messages count = %d, want 1", len(messages))
	}

	msg := messages[0]
	if msg.Topic != "ledpointer/controller/1" {
		t.Errorf("Published topic = %s", msg.Topic)
	}
	if string(msg.Payload) != string(payload) {
		t.Errorf("Published payload = %s, want %s", msg.Payload, payload)
	}
	if !msg.Retain {
		t.Error("Message should be retained")
	}
}

func TestMockClient_RetainedReplayedToLateSubscriber(t *testing.T) {
	mock := NewMockClient()
	mock.SetConnected(true)
	p := NewPublisher(mock, "lp")
	if err := p.PublishCalibration(1, r3.Vector{X: 0.5}); err != nil {
		t.Fatalf("PublishCalibration: %v", err)
	}

	var got []mqtt.Message
	mock.Subscribe("lp/calibration/1", 0, func(_ mqtt.Client, m mqtt.Message) { got = append(got, m) })

	if len(got) != 1 {
		t.Fatalf("replayed %d messages, want 1", len(got))
	}
	if !got[0].Retained() {
		t.Error("replayed message should be flagged retained")
	}
	var msg CalibrationMessage
	if err := json.Unmarshal(got[0].Payload(), &msg); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if msg.Offset[0] != 0.5 {
		t.Errorf("Offset = %v", msg.Offset)
	}
}

func TestMockClient_PublishLoopsBackToTracker(t *testing.T) {
	mock := NewMockClient()
	mock.SetConnected(true)
	tracker := NewMQTTTracker(trackerConfig())
	if err := tracker.Subscribe(mock); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	// a non-retained sample reaches current subscribers only
	payload, err := EncodePoseMessage(Pose{Direction: r3.Vector{X: 1}}, true, NewButtonSet(ButtonTrigger))
	if err != nil {
		t.Fatalf("EncodePoseMessage: %v", err)
	}
	mock.Publish(tracker.Topic(1), 0, false, payload)
	if !tracker.IsButtonPressed(1, ButtonTrigger) {
		t.Error("published sample should reach the tracker")
	}

	other := false
	mock.Subscribe(tracker.Topic(2), 0, func(mqtt.Client, mqtt.Message) { other = true })
	mock.Publish(tracker.Topic(1), 0, false, payload)
	if other {
		t.Error("other topics must not see the sample")
	}
}

func TestMockClient_PublishNotConnected(t *testing.T) {
	mock := NewMockClient()

	token := mock.Publish("ledpointer/strip", 0, false, []byte("data"))
	if token.Error() == nil {
		t.Error("Publish should error when not connected")
	}
}

func TestMockClient_SubscribeError(t *testing.T) {
	mock := NewMockClient()
	mock.SetConnected(true)
	mock.SetSubscribeError(errors.New("not authorized"))

	if err := NewMQTTTracker(trackerConfig()).Subscribe(mock); err == nil {
		t.Error("tracker Subscribe should surface the broker error")
	}
}

func TestMockClient_Unsubscribe(t *testing.T) {
	mock := NewMockClient()
	mock.SetConnected(true)

	called := false
	mock.Subscribe("ledpointer/tracking/0", 0, func(mqtt.Client, mqtt.Message) { called = true })
	mock.Unsubscribe("ledpointer/tracking/0")
	mock.SimulateMessage("ledpointer/tracking/0", []byte("{}"))

	if called {
		t.Error("handler should not run after Unsubscribe")
	}
}

func TestMockClient_Disconnect(t *testing.T) {
	mock := NewMockClient()
	mock.SetConnected(true)

	mock.Disconnect(250)

	if mock.IsConnected() {
		t.Error("Client should not be connected after Disconnect()")
	}
}

func TestMockClient_ConcurrentOperations(t *testing.T) {
	mock := NewMockClient()
	mock.SetConnected(true)

	done := make(chan bool)
	for i := 0; i < 10; i++ {
		go func(n int) {
			for j := 0; j < 50; j++ {
				topic := "ledpointer/tracking/0"
				mock.Publish(topic, 0, false, []byte("test"))

				handler := func(client mqtt.Client, msg mqtt.Message) {}
				mock.Subscribe(topic, 0, handler)

				mock.SimulateMessage(topic, []byte("data"))
			}
			done <- true
		}(i)
	}

	for i := 0; i < 10; i++ {
		<-done
	}
}

func BenchmarkMockClient_Publish(b *testing.B) {
	mock := NewMockClient()
	mock.SetConnected(true)
	payload := []byte(`{"device": 0}`)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		mock.Publish("ledpointer/controller/0", 0, false, payload)
	}
}

func BenchmarkMQTTTracker_HandlePayload(b *testing.B) {
	tracker := NewMQTTTracker(trackerConfig())
	payload, err := EncodePoseMessage(Pose{Position: r3.Vector{Y: 1}, Direction: r3.Vector{Z: 1}}, true, 0)
	if err != nil {
		b.Fatal(err)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if err := tracker.HandlePayload(1, payload); err != nil {
			b.Fatal(err)
		}
	}
}
