package network

import (
	"github.com/oi7500/gateway/internal/decoder"
	"github.com/oi7500/gateway/internal/slots"
)

// Event is anything a Monitor hands upstream to the telemetry publisher.
type Event interface {
	isEvent()
}

// ReadingEvent wraps one successfully decoded reading.
type ReadingEvent struct {
	Reading decoder.SensorReading
}

func (ReadingEvent) isEvent() {}

// SlotScanEvent carries the result of one periodic channel-table scan, plus
// the slot numbers whose classification changed since the previous scan.
type SlotScanEvent struct {
	NetworkID string
	Scan      slots.ScanResult
	Changed   []int
}

func (SlotScanEvent) isEvent() {}
