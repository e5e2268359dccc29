// Package telemetry republishes decoded gas-sensor readings and slot-state
// events to an MQTT broker, keyed by channel and network topic.
package telemetry

import (
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/oi7500/gateway/internal/decoder"
)

const (
	heartbeatInterval = 60 * time.Second
	disconnectWait    = 250 // ms
)

// Config holds the connection and topic settings for a Publisher.
type Config struct {
	Broker       string
	ClientID     string
	Username     string
	Password     string
	UseTLS       bool
	TopicPrefix  string // default "oi7500"
	CommandTopic string // empty disables the command subscription
}

// StatsSource returns the current rolling counters keyed by network id, used
// to populate the periodic monitor/stats heartbeat.
type StatsSource func() map[string]NetworkCounters

// NetworkCounters is the subset of network.Counters the stats heartbeat
// publishes; kept local to telemetry to avoid importing internal/network
// just for a JSON shape.
type NetworkCounters struct {
	FramesReceived int64            `json:"frames_received"`
	BytesIn        int64            `json:"bytes_in"`
	FramesRejected map[string]int64 `json:"frames_rejected"`
}

// CommandHandler processes one Command received on the command topic.
type CommandHandler func(Command) error

// Publisher wraps a paho MQTT client and publishes the gateway's external
// topic table. Publishes while disconnected are dropped, not queued.
type Publisher struct {
	cfg     Config
	client  mqtt.Client
	started time.Time
	stopCh  chan struct{}
	stats   StatsSource
	onCmd   CommandHandler

	mu        sync.Mutex
	connected bool
}

// NewPublisher builds a Publisher that has not yet connected. stats may be
// nil to disable the stats heartbeat; onCmd may be nil to disable command
// handling regardless of whether CommandTopic is set.
func NewPublisher(cfg Config, stats StatsSource, onCmd CommandHandler) *Publisher {
	if cfg.TopicPrefix == "" {
		cfg.TopicPrefix = "oi7500"
	}
	return &Publisher{
		cfg:    cfg,
		stopCh: make(chan struct{}),
		stats:  stats,
		onCmd:  onCmd,
	}
}

// Connect dials the configured broker and, on success, subscribes to the
// command topic and starts the heartbeat loop.
func (p *Publisher) Connect() error {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(p.cfg.Broker)
	opts.SetClientID(p.cfg.ClientID)
	if p.cfg.Username != "" {
		opts.SetUsername(p.cfg.Username)
		opts.SetPassword(p.cfg.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetOnConnectHandler(func(mqtt.Client) {
		log.Println("telemetry: connected to MQTT broker")
		p.setConnected(true)
		p.publishStatus()
		p.subscribeToCommands()
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		log.Printf("telemetry: MQTT connection lost: %v", err)
		p.setConnected(false)
		p.publishStatus()
	})

	p.client = mqtt.NewClient(opts)
	if token := p.client.Connect(); token.Wait() && token.Error() != nil {
		return token.Error()
	}

	p.started = time.Now()
	go p.heartbeatLoop()
	return nil
}

// Disconnect stops the heartbeat loop and closes the broker connection.
func (p *Publisher) Disconnect() {
	close(p.stopCh)
	if p.client != nil && p.client.IsConnected() {
		p.client.Disconnect(disconnectWait)
	}
}

func (p *Publisher) setConnected(v bool) {
	p.mu.Lock()
	p.connected = v
	p.mu.Unlock()
}

func (p *Publisher) isConnected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.connected
}

// PublishReading publishes r to <prefix>/channel<NN> (when it carries a
// channel_slot) and to <prefix>/network/<id>/channel_<n>. Both publishes are
// dropped, not queued, while disconnected.
func (p *Publisher) PublishReading(r decoder.SensorReading) {
	if p.client == nil || !p.client.IsConnected() {
		return
	}

	data, err := json.Marshal(r)
	if err != nil {
		log.Printf("telemetry: marshaling reading: %v", err)
		return
	}

	if r.HasChannelSlot {
		topic := fmt.Sprintf("%s/channel%02d", p.cfg.TopicPrefix, r.ChannelSlot)
		p.publish(topic, data)
	}

	n := r.ChannelSlot
	netTopic := fmt.Sprintf("%s/network/%s/channel_%d", p.cfg.TopicPrefix, r.NetworkID, n)
	p.publish(netTopic, data)
}

// PublishStats publishes the monitor/stats topic with the current per-network
// counters from p.stats.
func (p *Publisher) PublishStats() {
	if p.stats == nil || p.client == nil || !p.client.IsConnected() {
		return
	}
	data, err := json.Marshal(p.stats())
	if err != nil {
		log.Printf("telemetry: marshaling stats: %v", err)
		return
	}
	p.publish(p.cfg.TopicPrefix+"/monitor/stats", data)
}

type statusPayload struct {
	Connected bool  `json:"connected"`
	Uptime    int64 `json:"uptime"`
}

func (p *Publisher) publishStatus() {
	if p.client == nil || !p.client.IsConnected() {
		return
	}
	uptime := time.Since(p.started)
	data, err := json.Marshal(statusPayload{Connected: p.isConnected(), Uptime: int64(uptime.Seconds())})
	if err != nil {
		log.Printf("telemetry: marshaling status: %v", err)
		return
	}
	p.publish(p.cfg.TopicPrefix+"/monitor/status", data)
}

func (p *Publisher) publish(topic string, data []byte) {
	token := p.client.Publish(topic, 0, false, data)
	if token.Wait() && token.Error() != nil {
		log.Printf("telemetry: publishing %s: %v", topic, token.Error())
	}
}

func (p *Publisher) heartbeatLoop() {
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-p.stopCh:
			return
		case <-ticker.C:
			p.PublishStats()
			p.publishStatus()
		}
	}
}

func (p *Publisher) subscribeToCommands() {
	if p.cfg.CommandTopic == "" {
		return
	}
	token := p.client.Subscribe(p.cfg.CommandTopic, 1, p.handleIncomingCommand)
	go func() {
		<-token.Done()
		if token.Error() != nil {
			log.Printf("telemetry: subscribing to %s: %v", p.cfg.CommandTopic, token.Error())
		}
	}()
}

func (p *Publisher) handleIncomingCommand(_ mqtt.Client, msg mqtt.Message) {
	var cmd Command
	if err := json.Unmarshal(msg.Payload(), &cmd); err != nil {
		log.Printf("telemetry: decoding command from %s: %v", msg.Topic(), err)
		return
	}
	if p.onCmd == nil {
		return
	}
	if err := p.onCmd(cmd); err != nil {
		log.Printf("telemetry: handling command %s: %v", cmd.Type, err)
	}
}
