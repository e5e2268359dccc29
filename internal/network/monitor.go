package network

import (
	"context"
	"io"
	"log"
	"time"

	"github.com/oi7500/gateway/internal/decoder"
	"github.com/oi7500/gateway/internal/radio"
	"github.com/oi7500/gateway/internal/slots"
)

// defaultScanPeriod is the controller cross-check cadence when a network's
// config does not override it.
const defaultScanPeriod = 30 * time.Second

const readBufSize = 256

// Monitor runs one network's ingestion pipeline: read the radio port,
// reassemble frames, decode them, and merge results into State. It
// optionally cross-checks a shared Modbus channel table on a fixed period.
type Monitor struct {
	NetworkID    decoder.NetworkID
	Port         io.Reader
	State        *NetworkState
	Slots        *slots.Manager
	ScanPeriod   time.Duration
	lastScan     slots.ScanResult
	haveLastScan bool
}

// NewMonitor builds a Monitor for one network. slotsMgr may be nil when this
// network has no associated Modbus controller to cross-check.
func NewMonitor(id decoder.NetworkID, port io.Reader, slotsMgr *slots.Manager) *Monitor {
	return &Monitor{
		NetworkID:  id,
		Port:       port,
		State:      NewNetworkState(),
		Slots:      slotsMgr,
		ScanPeriod: defaultScanPeriod,
	}
}

// Run blocks reading Port, decoding frames, and sending events to out until
// ctx is cancelled or the port read fails. A read failure returns an error
// so the owning Supervisor can restart it with backoff; ctx cancellation
// returns nil, the cooperative-shutdown path.
func (m *Monitor) Run(ctx context.Context, out chan<- Event) error {
	reassembler := radio.NewReassembler()
	buf := make([]byte, readBufSize)

	var scanTicker *time.Ticker
	var tickC <-chan time.Time
	if m.Slots != nil {
		scanTicker = time.NewTicker(m.ScanPeriod)
		defer scanTicker.Stop()
		tickC = scanTicker.C
	}

	reads := make(chan readResult, 1)
	go m.readLoop(reads, buf)

	for {
		select {
		case <-ctx.Done():
			reassembler.Reset()
			return nil
		case <-tickC:
			m.runScan(ctx, out)
		case res := <-reads:
			if res.err != nil {
				return res.err
			}
			m.ingest(reassembler, res.chunk, out)
			go m.readLoop(reads, buf)
		}
	}
}

type readResult struct {
	chunk []byte
	err   error
}

func (m *Monitor) readLoop(reads chan<- readResult, buf []byte) {
	n, err := m.Port.Read(buf)
	if n > 0 {
		chunk := make([]byte, n)
		copy(chunk, buf[:n])
		reads <- readResult{chunk: chunk}
		return
	}
	reads <- readResult{err: err}
}

func (m *Monitor) ingest(r *radio.Reassembler, chunk []byte, out chan<- Event) {
	frames, framingErrs := r.Feed(chunk)
	for _, fe := range framingErrs {
		m.State.RecordRejected(fe.Kind.String(), 0)
	}
	m.State.AddBytes(len(chunk))

	for _, f := range frames {
		reading, err := decoder.Decode(m.NetworkID, f)
		if err != nil {
			reason := "decode_error"
			if de, ok := err.(*decoder.DecodeError); ok {
				reason = de.Kind.String()
			}
			m.State.RecordRejected(reason, 0)
			log.Printf("network %s: rejected frame: %v", m.NetworkID, err)
			continue
		}
		m.State.RecordReading(reading)
		out <- ReadingEvent{Reading: reading}
	}
}

func (m *Monitor) runScan(ctx context.Context, out chan<- Event) {
	scan, err := m.Slots.Scan(ctx)
	if err != nil {
		log.Printf("network %s: slot scan failed: %v", m.NetworkID, err)
		return
	}

	var changed []int
	if m.haveLastScan {
		for i := range scan.Slots {
			if scan.Slots[i].State() != m.lastScan.Slots[i].State() {
				changed = append(changed, scan.Slots[i].Index)
			}
		}
	}
	m.lastScan = scan
	m.haveLastScan = true

	out <- SlotScanEvent{NetworkID: string(m.NetworkID), Scan: scan, Changed: changed}
}
