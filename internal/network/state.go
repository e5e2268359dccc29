// Package network runs one independent ingestion pipeline per configured
// radio, binding the frame reassembler and packet decoder to a serial port
// and merging decoded readings into shared per-network state.
package network

import (
	"sync"
	"time"

	"github.com/oi7500/gateway/internal/decoder"
)

// readingKey identifies one slot of NetworkState's last-reading table: a
// transmitter address paired with its channel slot (0 when the frame carried
// none, as on raw Gen2 frames with no repeater envelope).
type readingKey struct {
	addr uint16
	slot uint8
}

// Counters are the rolling per-network tallies the monitor reports in its
// heartbeat and diagnostic output.
type Counters struct {
	FramesReceived int64
	BytesIn        int64
	FramesRejected map[string]int64
	LastSeen       time.Time
}

// NetworkState is one network's live view: the latest reading per
// (transmitter_address, channel_slot) pair plus rolling counters. Single
// writer (the owning Monitor), multi-reader (publisher, supervisor); callers
// always receive a copied-out snapshot so a reader never observes a torn
// SensorReading.
type NetworkState struct {
	mu       sync.RWMutex
	readings map[readingKey]decoder.SensorReading
	counters Counters
}

// NewNetworkState returns an empty state for one network.
func NewNetworkState() *NetworkState {
	return &NetworkState{
		readings: make(map[readingKey]decoder.SensorReading),
		counters: Counters{FramesRejected: make(map[string]int64)},
	}
}

// RecordReading stores r as the latest reading for its (address, slot) key
// and advances the packet counter.
func (s *NetworkState) RecordReading(r decoder.SensorReading) {
	key := readingKey{addr: r.TransmitterAddress}
	if r.HasChannelSlot {
		key.slot = r.ChannelSlot
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.readings[key] = r
	s.counters.FramesReceived++
	s.counters.LastSeen = r.CapturedAt
}

// RecordRejected advances the frames_rejected histogram for reason and the
// bytes_in counter.
func (s *NetworkState) RecordRejected(reason string, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counters.FramesRejected[reason]++
	s.counters.BytesIn += int64(n)
}

// AddBytes advances bytes_in without affecting any other counter. The
// monitor calls it with every chunk read from the port, matched or not.
func (s *NetworkState) AddBytes(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counters.BytesIn += int64(n)
}

// Snapshot returns a copy of every currently-held reading.
func (s *NetworkState) Snapshot() []decoder.SensorReading {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]decoder.SensorReading, 0, len(s.readings))
	for _, r := range s.readings {
		out = append(out, r)
	}
	return out
}

// CountersSnapshot returns a copy of the rolling counters, safe to read
// concurrently with the owning monitor's writes.
func (s *NetworkState) CountersSnapshot() Counters {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := Counters{
		FramesReceived: s.counters.FramesReceived,
		BytesIn:        s.counters.BytesIn,
		LastSeen:       s.counters.LastSeen,
		FramesRejected: make(map[string]int64, len(s.counters.FramesRejected)),
	}
	for k, v := range s.counters.FramesRejected {
		out.FramesRejected[k] = v
	}
	return out
}
