// Package gateway wires the per-network monitors, the shared Modbus client,
// and the telemetry publisher into a single supervised program.
package gateway

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/tarm/serial"

	"github.com/oi7500/gateway/internal/config"
	"github.com/oi7500/gateway/internal/decoder"
	"github.com/oi7500/gateway/internal/modbus"
	"github.com/oi7500/gateway/internal/network"
	"github.com/oi7500/gateway/internal/slots"
	"github.com/oi7500/gateway/internal/telemetry"
)

// Gateway is the single supervisor task owning every per-network monitor,
// the one Modbus client, and the one telemetry publisher.
type Gateway struct {
	cfg       config.Config
	modbus    *modbus.Client
	modbusDev *serial.Port
	slotsMgr  *slots.Manager
	publisher *telemetry.Publisher

	supervisors []*network.Supervisor
	states      map[string]*network.NetworkState
	eventsCh    chan network.Event
}

// New opens the configured serial ports and MQTT publisher and builds a
// Gateway ready to Run. It does not start any goroutines.
func New(cfg config.Config) (*Gateway, error) {
	modbusPort, err := serial.OpenPort(&serial.Config{
		Name:        cfg.Modbus.Port,
		Baud:        cfg.Modbus.Baud,
		ReadTimeout: 100 * time.Millisecond,
	})
	if err != nil {
		return nil, fmt.Errorf("gateway: opening modbus port %s: %w", cfg.Modbus.Port, err)
	}

	client := modbus.NewClient(modbusPort, cfg.Modbus.SlaveID)
	slotsMgr := slots.NewManager(client)

	g := &Gateway{
		cfg:       cfg,
		modbus:    client,
		modbusDev: modbusPort,
		slotsMgr:  slotsMgr,
		states:    make(map[string]*network.NetworkState),
	}

	events := make(chan network.Event, 64)

	for _, nc := range cfg.Networks {
		radioPort, err := serial.OpenPort(&serial.Config{
			Name:        nc.Port,
			Baud:        nc.Baud,
			ReadTimeout: 100 * time.Millisecond,
		})
		if err != nil {
			return nil, fmt.Errorf("gateway: opening network %s port %s: %w", nc.ID, nc.Port, err)
		}

		mon := network.NewMonitor(decoder.NetworkID(nc.ID), radioPort, slotsMgr)
		if cfg.Modbus.ScanPeriodS > 0 {
			mon.ScanPeriod = time.Duration(cfg.Modbus.ScanPeriodS) * time.Second
		}
		g.states[nc.ID] = mon.State
		g.supervisors = append(g.supervisors, network.NewSupervisor(mon, events))
	}

	g.publisher = telemetry.NewPublisher(telemetry.Config{
		Broker:       cfg.MQTT.Broker,
		ClientID:     "oi7500gw-" + randomSuffix(),
		Username:     cfg.MQTT.Username,
		Password:     cfg.MQTT.Password,
		UseTLS:       cfg.MQTT.UseTLS,
		TopicPrefix:  cfg.MQTT.TopicPrefix,
		CommandTopic: cfg.MQTT.TopicPrefix + "/command",
	}, g.statsSnapshot, g.handleCommand)

	g.eventsCh = events
	return g, nil
}

// randomSuffix avoids a hardcoded client id colliding across gateway
// instances on the same broker; it need not be cryptographically random.
func randomSuffix() string {
	return fmt.Sprintf("%d", time.Now().UnixNano()%1_000_000)
}

func (g *Gateway) statsSnapshot() map[string]telemetry.NetworkCounters {
	out := make(map[string]telemetry.NetworkCounters, len(g.states))
	for id, st := range g.states {
		c := st.CountersSnapshot()
		out[id] = telemetry.NetworkCounters{
			FramesReceived: c.FramesReceived,
			BytesIn:        c.BytesIn,
			FramesRejected: c.FramesRejected,
		}
	}
	return out
}

func (g *Gateway) handleCommand(cmd telemetry.Command) error {
	if cmd.Params.NetworkID != "" {
		if _, ok := g.states[cmd.Params.NetworkID]; !ok {
			return fmt.Errorf("gateway: unknown network %q", cmd.Params.NetworkID)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	switch cmd.Type {
	case telemetry.CommandDisableStale:
		scan, err := g.slotsMgr.Scan(ctx)
		if err != nil {
			return err
		}
		for _, err := range g.slotsMgr.DisableStale(ctx, scan) {
			log.Printf("gateway: disable_stale: %v", err)
		}
		return nil
	case telemetry.CommandSetupScanSlot:
		scan, err := g.slotsMgr.Scan(ctx)
		if err != nil {
			return err
		}
		_, err = g.slotsMgr.SetupScanSlot(ctx, scan)
		return err
	case telemetry.CommandAutoAssignRogue:
		if cmd.Params.Address == nil || cmd.Params.Slot == nil {
			return fmt.Errorf("gateway: auto_assign_rogue requires address and slot")
		}
		scan, err := g.slotsMgr.Scan(ctx)
		if err != nil {
			return err
		}
		_, err = g.slotsMgr.AutoAssignRogue(ctx, scan, *cmd.Params.Address, *cmd.Params.Slot)
		return err
	default:
		return fmt.Errorf("gateway: unknown command %q", cmd.Type)
	}
}

// Run starts every monitor supervisor and the publisher's event loop,
// blocking until ctx is cancelled, then closes the Modbus serial port.
func (g *Gateway) Run(ctx context.Context) error {
	if err := g.publisher.Connect(); err != nil {
		return fmt.Errorf("gateway: connecting MQTT: %w", err)
	}
	defer g.publisher.Disconnect()

	for _, sup := range g.supervisors {
		go sup.Run(ctx)
	}

	for {
		select {
		case <-ctx.Done():
			_ = g.modbusDev.Close()
			return nil
		case ev := <-g.eventsCh:
			switch e := ev.(type) {
			case network.ReadingEvent:
				g.publisher.PublishReading(e.Reading)
			case network.SlotScanEvent:
				log.Printf("gateway: network %s slot scan: %d slots changed", e.NetworkID, len(e.Changed))
			}
		}
	}
}
