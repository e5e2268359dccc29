package slots

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/oi7500/gateway/internal/modbus"
)

// broadcastAddress is the reserved radio address the controller recognizes
// as "listen for anyone", used to open a scan slot.
const broadcastAddress uint16 = 255

// rogueMonitorPeriod is how often MonitorForRogues polls the scan slot,
// before concluding nothing new is transmitting.
const rogueMonitorPeriod = 2 * time.Second

// rogueFreshWindow bounds how recently a rogue must have reported to count
// as "currently transmitting" rather than a stale leftover reading.
const rogueFreshWindow = 5 * time.Second

var (
	ErrNoCapacity      = errors.New("slots: no unused slot available")
	ErrReservedAddress = errors.New("slots: address is reserved for broadcast")
	ErrAlreadyBound    = errors.New("slots: address already bound to a slot")
)

// ScanResult is one full pass over the 32-slot table.
type ScanResult struct {
	Slots [32]ChannelSlot
}

// ByState returns the indices (1-based slot numbers) of every slot in state.
func (r ScanResult) ByState(state State) []int {
	var out []int
	for _, s := range r.Slots {
		if s.State() == state {
			out = append(out, s.Index)
		}
	}
	return out
}

// BoundTo reports the slot number bound to addr, or 0 if none.
func (r ScanResult) BoundTo(addr uint16) int {
	for _, s := range r.Slots {
		if s.RadioAddress == addr {
			return s.Index
		}
	}
	return 0
}

// Manager owns the decision procedures over the channel table: scanning it,
// evicting stale entries, opening a scan slot for new sensors, and binding
// rogue transmitters it discovers there.
type Manager struct {
	client *modbus.Client
}

// NewManager wraps client for slot-table bookkeeping.
func NewManager(client *modbus.Client) *Manager {
	return &Manager{client: client}
}

// Scan reads all 32 slots and classifies each one.
func (m *Manager) Scan(ctx context.Context) (ScanResult, error) {
	raw, err := m.client.ScanAll(ctx)
	if err != nil {
		return ScanResult{}, fmt.Errorf("scanning channel table: %w", err)
	}

	var out ScanResult
	for i := range raw {
		r := raw[i]
		out.Slots[i] = ChannelSlot{
			Index:        i + 1,
			RadioAddress: r.RadioAddress,
			Reading:      r.Reading,
			Mode:         uint8(r.Mode),
			BatteryVolts: r.Battery,
			TimeSince:    time.Duration(r.TimeSince) * time.Second,
			SensorType:   uint8(r.SensorType),
			GasType:      uint8(r.GasType),
		}
	}
	return out, nil
}

// DisableStale writes 0 to the radio-address register of every Inactive
// slot in scan, evicting sensors the controller has stopped hearing from.
// Per-slot write failures are collected rather than aborting the pass.
func (m *Manager) DisableStale(ctx context.Context, scan ScanResult) []error {
	var errs []error
	for _, i := range scan.ByState(Inactive) {
		if err := m.client.WriteRegister(ctx, modbus.RadioAddressAddr(i), 0); err != nil {
			errs = append(errs, fmt.Errorf("disabling stale slot %d: %w", i, err))
		}
	}
	return errs
}

// SetupScanSlot opens the lowest-numbered Unused slot to the broadcast
// address so new or unbound transmitters can be heard on it.
func (m *Manager) SetupScanSlot(ctx context.Context, scan ScanResult) (int, error) {
	unused := scan.ByState(Unused)
	if len(unused) == 0 {
		return 0, ErrNoCapacity
	}
	slot := unused[0]
	if err := m.client.WriteRegister(ctx, modbus.RadioAddressAddr(slot), broadcastAddress); err != nil {
		return 0, fmt.Errorf("opening scan slot %d: %w", slot, err)
	}
	return slot, nil
}

// MonitorForRogues polls the scan slot for duration, collecting every
// distinct radio address observed reporting within rogueFreshWindow of the
// poll — candidates for AutoAssignRogue.
func (m *Manager) MonitorForRogues(ctx context.Context, slot int, duration time.Duration) ([]uint16, error) {
	deadline := time.Now().Add(duration)
	seen := make(map[uint16]struct{})

	ticker := time.NewTicker(rogueMonitorPeriod)
	defer ticker.Stop()

	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return distinctKeys(seen), ctx.Err()
		case <-ticker.C:
		}

		tsRaw, err := m.client.ReadHoldingRegisters(ctx, modbus.TimeSinceAddr(slot), 1)
		if err != nil {
			return distinctKeys(seen), fmt.Errorf("polling scan slot %d time_since: %w", slot, err)
		}
		timeSince := time.Duration(modbus.DecodeU16(tsRaw, 0)) * time.Second
		if timeSince >= rogueFreshWindow {
			continue
		}

		addrRaw, err := m.client.ReadHoldingRegisters(ctx, modbus.RadioAddressAddr(slot), 1)
		if err != nil {
			return distinctKeys(seen), fmt.Errorf("polling scan slot %d radio address: %w", slot, err)
		}
		addr := modbus.DecodeU16(addrRaw, 0)
		if addr != 0 && addr != broadcastAddress {
			seen[addr] = struct{}{}
		}
	}
	return distinctKeys(seen), nil
}

// AutoAssignRogue binds addr to the first Unused slot other than
// excludeSlot (the open scan slot). It refuses the broadcast address and
// skips an address already bound to an Active or Inactive slot.
func (m *Manager) AutoAssignRogue(ctx context.Context, scan ScanResult, addr uint16, excludeSlot int) (int, error) {
	if addr == broadcastAddress {
		return 0, ErrReservedAddress
	}
	if bound := scan.BoundTo(addr); bound != 0 {
		return 0, ErrAlreadyBound
	}

	for _, i := range scan.ByState(Unused) {
		if i == excludeSlot {
			continue
		}
		if err := m.client.WriteRegister(ctx, modbus.RadioAddressAddr(i), addr); err != nil {
			return 0, fmt.Errorf("assigning rogue %d to slot %d: %w", addr, i, err)
		}
		return i, nil
	}
	return 0, ErrNoCapacity
}

func distinctKeys(m map[uint16]struct{}) []uint16 {
	out := make([]uint16, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
