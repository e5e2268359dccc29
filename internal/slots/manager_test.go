package slots

import (
	"context"
	"encoding/binary"
	"sync"
	"testing"
	"time"

	"github.com/oi7500/gateway/internal/modbus"
)

// fakeController is an in-memory Modbus RTU slave backed by a flat register
// map, generic enough to answer any function-3/function-6 request the slot
// manager issues against the 32-slot table.
type fakeController struct {
	mu        sync.Mutex
	busy      bool
	replyCh   chan []byte
	registers map[uint16]uint16
}

func newFakeController() *fakeController {
	return &fakeController{replyCh: make(chan []byte, 1), registers: make(map[uint16]uint16)}
}

func (f *fakeController) Write(p []byte) (int, error) {
	f.mu.Lock()
	if f.busy {
		f.mu.Unlock()
		panic("slots: overlapping requests on a single-flight bus")
	}
	f.busy = true
	f.mu.Unlock()

	f.replyCh <- f.handle(append([]byte{}, p...))
	return len(p), nil
}

func (f *fakeController) Read(p []byte) (int, error) {
	reply := <-f.replyCh
	n := copy(p, reply)
	f.mu.Lock()
	f.busy = false
	f.mu.Unlock()
	return n, nil
}

func (f *fakeController) handle(req []byte) []byte {
	unit := req[0]
	addr := binary.BigEndian.Uint16(req[2:4])

	switch req[1] {
	case modbus.FuncReadHoldingRegisters:
		count := binary.BigEndian.Uint16(req[4:6])
		body := []byte{unit, modbus.FuncReadHoldingRegisters, byte(count * 2)}
		for i := uint16(0); i < count; i++ {
			body = binary.BigEndian.AppendUint16(body, f.registers[addr+i])
		}
		return modbus.AppendCRC(body)
	case modbus.FuncWriteSingleRegister:
		value := binary.BigEndian.Uint16(req[4:6])
		f.mu.Lock()
		f.registers[addr] = value
		f.mu.Unlock()
		body := append([]byte{unit, modbus.FuncWriteSingleRegister}, req[2:6]...)
		return modbus.AppendCRC(body)
	default:
		panic("fakeController: unsupported function code")
	}
}

// seedSlot populates every register backing channel slot i so a Scan reads
// back a slot in the given state.
func (f *fakeController) seedSlot(i int, radioAddress uint16, timeSinceSeconds uint16) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.registers[modbus.RadioAddressAddr(i)] = radioAddress
	f.registers[modbus.TimeSinceAddr(i)] = timeSinceSeconds
}

func TestScanClassification(t *testing.T) {
	fc := newFakeController()
	fc.seedSlot(1, 0, 0)       // Unused
	fc.seedSlot(2, 42, 5)      // Active
	fc.seedSlot(3, 17, 3600)   // Inactive
	for i := 4; i <= 32; i++ { // fill the remainder Unused
		fc.seedSlot(i, 0, 0)
	}

	mgr := NewManager(modbus.NewClient(fc, 1))
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	scan, err := mgr.Scan(ctx)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if got := scan.Slots[0].State(); got != Unused {
		t.Errorf("slot 1 state = %v, want Unused", got)
	}
	if got := scan.Slots[1].State(); got != Active {
		t.Errorf("slot 2 state = %v, want Active", got)
	}
	if got := scan.Slots[2].State(); got != Inactive {
		t.Errorf("slot 3 state = %v, want Inactive", got)
	}
	if unused := scan.ByState(Unused); len(unused) != 30 {
		t.Errorf("len(ByState(Unused)) = %d, want 30", len(unused))
	}
}

func TestDisableStaleWritesZero(t *testing.T) {
	fc := newFakeController()
	fc.seedSlot(1, 42, 5)    // Active, must survive
	fc.seedSlot(2, 17, 3600) // Inactive, must be zeroed
	for i := 3; i <= 32; i++ {
		fc.seedSlot(i, 0, 0)
	}

	mgr := NewManager(modbus.NewClient(fc, 1))
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	scan, err := mgr.Scan(ctx)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if errs := mgr.DisableStale(ctx, scan); len(errs) != 0 {
		t.Fatalf("DisableStale errors: %v", errs)
	}

	rescan, err := mgr.Scan(ctx)
	if err != nil {
		t.Fatalf("rescan: %v", err)
	}
	if rescan.Slots[0].RadioAddress != 42 {
		t.Errorf("active slot 1 radio address = %d, want untouched 42", rescan.Slots[0].RadioAddress)
	}
	if rescan.Slots[1].RadioAddress != 0 {
		t.Errorf("inactive slot 2 radio address = %d, want 0", rescan.Slots[1].RadioAddress)
	}
}

func TestSetupScanSlotPicksLowestUnused(t *testing.T) {
	fc := newFakeController()
	fc.seedSlot(1, 42, 5) // Active, not eligible
	for i := 2; i <= 32; i++ {
		fc.seedSlot(i, 0, 0)
	}

	mgr := NewManager(modbus.NewClient(fc, 1))
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	scan, err := mgr.Scan(ctx)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	slot, err := mgr.SetupScanSlot(ctx, scan)
	if err != nil {
		t.Fatalf("SetupScanSlot: %v", err)
	}
	if slot != 2 {
		t.Errorf("SetupScanSlot picked slot %d, want 2", slot)
	}

	rescan, err := mgr.Scan(ctx)
	if err != nil {
		t.Fatalf("rescan: %v", err)
	}
	if rescan.Slots[1].RadioAddress != broadcastAddress {
		t.Errorf("slot 2 radio address = %d, want broadcast %d", rescan.Slots[1].RadioAddress, broadcastAddress)
	}
}

func TestAutoAssignRogueRejectsBroadcastAndBound(t *testing.T) {
	fc := newFakeController()
	fc.seedSlot(1, 42, 5) // already bound to address 42
	for i := 2; i <= 32; i++ {
		fc.seedSlot(i, 0, 0)
	}

	mgr := NewManager(modbus.NewClient(fc, 1))
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	scan, err := mgr.Scan(ctx)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}

	if _, err := mgr.AutoAssignRogue(ctx, scan, broadcastAddress, 2); err != ErrReservedAddress {
		t.Errorf("AutoAssignRogue(broadcast) = %v, want ErrReservedAddress", err)
	}
	if _, err := mgr.AutoAssignRogue(ctx, scan, 42, 2); err != ErrAlreadyBound {
		t.Errorf("AutoAssignRogue(bound) = %v, want ErrAlreadyBound", err)
	}

	slot, err := mgr.AutoAssignRogue(ctx, scan, 99, 2)
	if err != nil {
		t.Fatalf("AutoAssignRogue(new): %v", err)
	}
	if slot == 2 {
		t.Errorf("AutoAssignRogue bound the excluded scan slot")
	}
}
