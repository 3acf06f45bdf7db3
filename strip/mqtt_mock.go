package strip

import (
	"encoding/json"
	"sort"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// doneToken is an mqtt.Token that has already completed
type doneToken struct{ err error }

func (t doneToken) Wait() bool                     { return true }
func (t doneToken) WaitTimeout(time.Duration) bool { return true }
func (t doneToken) Error() error                   { return t.err }

func (t doneToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

// PublishedMessage is one message sent through a MockClient
type PublishedMessage struct {
	Topic   string
	Payload []byte
	QoS     byte
	Retain  bool
}

// MockClient is an in-process stand-in for a broker connection. Publishes
// are recorded and looped back to matching subscriptions, and retained
// messages are replayed to later subscribers the way a broker would.
type MockClient struct {
	mu           sync.RWMutex
	connected    bool
	connectErr   error
	publishErr   error
	subscribeErr error
	onConnect    mqtt.OnConnectHandler
	handlers     map[string]mqtt.MessageHandler
	retained     map[string]PublishedMessage
	published    []PublishedMessage
}

var _ mqtt.Client = (*MockClient)(nil)

// NewMockClient creates a disconnected mock client
func NewMockClient() *MockClient {
	return &MockClient{
		handlers: make(map[string]mqtt.MessageHandler),
		retained: make(map[string]PublishedMessage),
	}
}

func (c *MockClient) SetConnected(connected bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = connected
}

func (c *MockClient) SetConnectError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connectErr = err
}

func (c *MockClient) SetPublishError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.publishErr = err
}

func (c *MockClient) SetSubscribeError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subscribeErr = err
}

// SetOnConnect sets the handler run after a successful Connect
func (c *MockClient) SetOnConnect(handler mqtt.OnConnectHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onConnect = handler
}

// Published returns a copy of every message published so far
func (c *MockClient) Published() []PublishedMessage {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]PublishedMessage(nil), c.published...)
}

// LastPublished returns the most recent message published on topic
func (c *MockClient) LastPublished(topic string) (PublishedMessage, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for i := len(c.published) - 1; i >= 0; i-- {
		if c.published[i].Topic == topic {
			return c.published[i], true
		}
	}
	return PublishedMessage{}, false
}

// SubscribedTopics returns the topics with a handler, sorted
func (c *MockClient) SubscribedTopics() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	topics := make([]string, 0, len(c.handlers))
	for topic := range c.handlers {
		topics = append(topics, topic)
	}
	sort.Strings(topics)
	return topics
}

// SimulateMessage delivers payload to the handler for topic, if any
func (c *MockClient) SimulateMessage(topic string, payload []byte) {
	c.deliver(PublishedMessage{Topic: topic, Payload: payload})
}

// SimulateJSON marshals v and delivers it on topic
func (c *MockClient) SimulateJSON(topic string, v interface{}) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	c.SimulateMessage(topic, payload)
	return nil
}

func (c *MockClient) deliver(m PublishedMessage) {
	c.mu.RLock()
	handler := c.handlers[m.Topic]
	c.mu.RUnlock()
	if handler != nil {
		handler(c, &mockMessage{m: m})
	}
}

func (c *MockClient) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

func (c *MockClient) IsConnectionOpen() bool { return c.IsConnected() }

func (c *MockClient) Connect() mqtt.Token {
	c.mu.Lock()
	err := c.connectErr
	onConnect := c.onConnect
	if err == nil {
		c.connected = true
	}
	c.mu.Unlock()

	if err == nil && onConnect != nil {
		go onConnect(c)
	}
	return doneToken{err: err}
}

func (c *MockClient) Disconnect(quiesce uint) {
	c.SetConnected(false)
}

func (c *MockClient) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	var body []byte
	switch v := payload.(type) {
	case []byte:
		body = v
	case string:
		body = []byte(v)
	}
	m := PublishedMessage{Topic: topic, Payload: body, QoS: qos, Retain: retained}

	c.mu.Lock()
	if !c.connected {
		c.mu.Unlock()
		return doneToken{err: mqtt.ErrNotConnected}
	}
	if c.publishErr != nil {
		err := c.publishErr
		c.mu.Unlock()
		return doneToken{err: err}
	}
	c.published = append(c.published, m)
	if retained {
		c.retained[topic] = m
	}
	c.mu.Unlock()

	c.deliver(m)
	return doneToken{}
}

func (c *MockClient) Subscribe(topic string, qos byte, callback mqtt.MessageHandler) mqtt.Token {
	return c.SubscribeMultiple(map[string]byte{topic: qos}, callback)
}

// SubscribeMultiple registers callback for every filter and replays any
// retained message on those topics
func (c *MockClient) SubscribeMultiple(filters map[string]byte, callback mqtt.MessageHandler) mqtt.Token {
	c.mu.Lock()
	if !c.connected {
		c.mu.Unlock()
		return doneToken{err: mqtt.ErrNotConnected}
	}
	if c.subscribeErr != nil {
		err := c.subscribeErr
		c.mu.Unlock()
		return doneToken{err: err}
	}
	var replay []PublishedMessage
	for topic := range filters {
		c.handlers[topic] = callback
		if m, ok := c.retained[topic]; ok {
			replay = append(replay, m)
		}
	}
	c.mu.Unlock()

	for _, m := range replay {
		callback(c, &mockMessage{m: m, retained: true})
	}
	return doneToken{}
}

func (c *MockClient) Unsubscribe(topics ...string) mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, topic := range topics {
		delete(c.handlers, topic)
	}
	return doneToken{}
}

func (c *MockClient) AddRoute(topic string, callback mqtt.MessageHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[topic] = callback
}

func (c *MockClient) OptionsReader() mqtt.ClientOptionsReader {
	return mqtt.ClientOptionsReader{}
}

// mockMessage adapts a PublishedMessage to mqtt.Message
type mockMessage struct {
	m        PublishedMessage
	retained bool
}

func (m *mockMessage) Duplicate() bool   { return false }
func (m *mockMessage) Qos() byte         { return m.m.QoS }
func (m *mockMessage) Retained() bool    { return m.retained }
func (m *mockMessage) Topic() string     { return m.m.Topic }
func (m *mockMessage) MessageID() uint16 { return 0 }
func (m *mockMessage) Payload() []byte   { return m.m.Payload }
func (m *mockMessage) Ack()              {}
