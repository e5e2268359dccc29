package telemetry

import (
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"testing"

	"github.com/oi7500/gateway/internal/decoder"
)

// fakeToken is an already-resolved mqtt.Token: Wait returns immediately and
// Error reports whatever the fake client decided.
type fakeToken struct{ err error }

func (f *fakeToken) Wait() bool                     { return true }
func (f *fakeToken) WaitTimeout(time.Duration) bool { return true }
func (f *fakeToken) Done() <-chan struct{}          { ch := make(chan struct{}); close(ch); return ch }
func (f *fakeToken) Error() error                   { return f.err }

// fakeMQTTClient is a minimal mqtt.Client whose IsConnected is toggled by the
// test, recording every topic it was actually asked to publish to.
type fakeMQTTClient struct {
	mu        sync.Mutex
	connected bool
	published []string
}

func (f *fakeMQTTClient) IsConnected() bool       { f.mu.Lock(); defer f.mu.Unlock(); return f.connected }
func (f *fakeMQTTClient) IsConnectionOpen() bool  { return f.IsConnected() }
func (f *fakeMQTTClient) Connect() mqtt.Token     { return &fakeToken{} }
func (f *fakeMQTTClient) Disconnect(quiesce uint) {}

func (f *fakeMQTTClient) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	f.mu.Lock()
	f.published = append(f.published, topic)
	f.mu.Unlock()
	return &fakeToken{}
}

func (f *fakeMQTTClient) Subscribe(topic string, qos byte, callback mqtt.MessageHandler) mqtt.Token {
	return &fakeToken{}
}
func (f *fakeMQTTClient) SubscribeMultiple(filters map[string]byte, callback mqtt.MessageHandler) mqtt.Token {
	return &fakeToken{}
}
func (f *fakeMQTTClient) Unsubscribe(topics ...string) mqtt.Token { return &fakeToken{} }
func (f *fakeMQTTClient) AddRoute(topic string, callback mqtt.MessageHandler) {}
func (f *fakeMQTTClient) OptionsReader() mqtt.ClientOptionsReader {
	return mqtt.ClientOptionsReader{}
}

func (f *fakeMQTTClient) topics() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string{}, f.published...)
}

// TestPublishContinuesWhenDisconnected asserts that a PublishReading call
// while the broker connection is down drops the message rather than
// queuing or blocking, and that a later call after reconnecting succeeds.
func TestPublishContinuesWhenDisconnected(t *testing.T) {
	fc := &fakeMQTTClient{connected: false}
	p := NewPublisher(Config{TopicPrefix: "oi7500"}, nil, nil)
	p.client = fc

	reading := decoder.SensorReading{
		NetworkID:      "netA",
		HasChannelSlot: true,
		ChannelSlot:    5,
	}

	p.PublishReading(reading)
	if got := fc.topics(); len(got) != 0 {
		t.Fatalf("published while disconnected: %v", got)
	}

	fc.mu.Lock()
	fc.connected = true
	fc.mu.Unlock()

	p.PublishReading(reading)
	got := fc.topics()
	if len(got) != 2 {
		t.Fatalf("published %d topics after reconnect, want 2: %v", len(got), got)
	}
}

func TestPublishStatsSkippedWithoutSource(t *testing.T) {
	fc := &fakeMQTTClient{connected: true}
	p := NewPublisher(Config{TopicPrefix: "oi7500"}, nil, nil)
	p.client = fc

	p.PublishStats()
	if got := fc.topics(); len(got) != 0 {
		t.Fatalf("published stats with a nil StatsSource: %v", got)
	}
}
