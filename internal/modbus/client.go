// Package modbus drives the controller's Modbus RTU register table over a
// shared serial link: CRC-16 framing, function 0x03/0x06 requests, and the
// channel-slot register map (registers.go).
package modbus

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log"
	"time"

	"golang.org/x/sync/semaphore"
)

const (
	requestTimeout  = time.Second
	interRequestGap = 20 * time.Millisecond
	maxAttempts     = 3
)

// Client serializes RTU requests onto a single serial link. The controller
// only tolerates one in-flight request at a time, so every exported method
// takes the bus semaphore before writing and releases it after the reply (or
// timeout) so callers queue FIFO instead of racing each other.
type Client struct {
	port io.ReadWriter
	r    *bufio.Reader
	unit byte
	sem  *semaphore.Weighted
	last time.Time
}

// NewClient wraps an already-open serial port for RTU exchanges with the
// slave at unit.
func NewClient(port io.ReadWriter, unit byte) *Client {
	return &Client{
		port: port,
		r:    bufio.NewReaderSize(port, 256),
		unit: unit,
		sem:  semaphore.NewWeighted(1),
	}
}

// ReadHoldingRegisters reads count holding registers starting at addr,
// returning the raw big-endian register bytes.
func (c *Client) ReadHoldingRegisters(ctx context.Context, addr, count uint16) ([]byte, error) {
	req := BuildReadHoldingRegisters(c.unit, addr, count)
	var raw []byte
	err := c.exchange(ctx, req, func(reply []byte) error {
		data, err := ParseReadHoldingRegisters(c.unit, reply)
		if err != nil {
			return err
		}
		raw = data
		return nil
	})
	return raw, err
}

// WriteRegister writes value to the holding register at addr and confirms
// the slave echoed it back, as Modbus function 0x06 requires.
func (c *Client) WriteRegister(ctx context.Context, addr, value uint16) error {
	req := BuildWriteSingleRegister(c.unit, addr, value)
	return c.exchange(ctx, req, func(reply []byte) error {
		got, err := ParseWriteSingleRegister(c.unit, addr, reply)
		if err != nil {
			return err
		}
		if got != value {
			return &FrameError{Detail: "write-single reply echoed wrong value"}
		}
		return nil
	})
}

// SlotRegisters is the raw register contents of one channel slot, read back
// as a single batch of function-3 requests. It stays in this package (rather
// than returning a slots.ChannelSlot) so modbus has no dependency on the
// slots package's classification logic; slots.Manager converts it.
type SlotRegisters struct {
	RadioAddress uint16
	Reading      float32
	Mode         uint16
	Battery      float32
	TimeSince    uint16
	SensorType   uint16
	GasType      uint16
}

// ReadSlot issues the minimum set of function-3 reads to populate one
// channel slot's registers.
func (c *Client) ReadSlot(ctx context.Context, i int) (SlotRegisters, error) {
	var out SlotRegisters

	raw, err := c.ReadHoldingRegisters(ctx, RadioAddressAddr(i), 1)
	if err != nil {
		return out, fmt.Errorf("slot %d radio address: %w", i, err)
	}
	out.RadioAddress = DecodeU16(raw, 0)

	raw, err = c.ReadHoldingRegisters(ctx, ReadingAddr(i), 2)
	if err != nil {
		return out, fmt.Errorf("slot %d reading: %w", i, err)
	}
	out.Reading = DecodeF32(raw, 0)

	raw, err = c.ReadHoldingRegisters(ctx, ModeAddr(i), 1)
	if err != nil {
		return out, fmt.Errorf("slot %d mode: %w", i, err)
	}
	out.Mode = DecodeU16(raw, 0)

	raw, err = c.ReadHoldingRegisters(ctx, BatteryAddr(i), 2)
	if err != nil {
		return out, fmt.Errorf("slot %d battery: %w", i, err)
	}
	out.Battery = DecodeF32(raw, 0)

	raw, err = c.ReadHoldingRegisters(ctx, TimeSinceAddr(i), 1)
	if err != nil {
		return out, fmt.Errorf("slot %d time since: %w", i, err)
	}
	out.TimeSince = DecodeU16(raw, 0)

	raw, err = c.ReadHoldingRegisters(ctx, SensorTypeAddr(i), 1)
	if err != nil {
		return out, fmt.Errorf("slot %d sensor type: %w", i, err)
	}
	out.SensorType = DecodeU16(raw, 0)

	raw, err = c.ReadHoldingRegisters(ctx, GasTypeAddr(i), 1)
	if err != nil {
		return out, fmt.Errorf("slot %d gas type: %w", i, err)
	}
	out.GasType = DecodeU16(raw, 0)

	return out, nil
}

// ScanAll reads every one of the 32 channel slots in ascending order,
// pausing interRequestGap between requests via the same throttle exchange
// already applies, and returning the first error encountered without
// reading the remaining slots.
func (c *Client) ScanAll(ctx context.Context) ([maxSlot]SlotRegisters, error) {
	var out [maxSlot]SlotRegisters
	for i := minSlot; i <= maxSlot; i++ {
		slot, err := c.ReadSlot(ctx, i)
		if err != nil {
			return out, err
		}
		out[i-1] = slot
	}
	return out, nil
}

// exchange sends req, reads back a reply whose length it determines from
// the RTU header (exceptions are shorter than a normal reply for the same
// function), and hands the raw reply to decode. It retries up to
// maxAttempts times on a transient I/O or framing failure; a Modbus
// Exception is not retried since a retry would get the same answer.
func (c *Client) exchange(ctx context.Context, req []byte, decode func([]byte) error) error {
	if err := c.sem.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("modbus: acquiring bus: %w", err)
	}
	defer c.sem.Release(1)

	if gap := interRequestGap - time.Since(c.last); gap > 0 {
		time.Sleep(gap)
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		reply, err := c.roundTrip(ctx, req)
		c.last = time.Now()
		if err != nil {
			lastErr = err
			log.Printf("modbus: attempt %d/%d failed: %v", attempt, maxAttempts, err)
			continue
		}
		err = decode(reply)
		if _, ok := err.(Exception); ok {
			return err
		}
		if err != nil {
			lastErr = err
			log.Printf("modbus: attempt %d/%d rejected: %v", attempt, maxAttempts, err)
			continue
		}
		return nil
	}
	return fmt.Errorf("modbus: giving up after %d attempts: %w", maxAttempts, lastErr)
}

// roundTrip writes req and reads back exactly the reply RTU frames for it:
// unit + function byte first, then either an exception code + CRC, or the
// function-specific body + CRC, sized from what the header says.
func (c *Client) roundTrip(ctx context.Context, req []byte) ([]byte, error) {
	if _, err := c.port.Write(req); err != nil {
		return nil, fmt.Errorf("writing request: %w", err)
	}

	type result struct {
		reply []byte
		err   error
	}
	done := make(chan result, 1)
	go func() {
		reply, err := c.readReply()
		done <- result{reply, err}
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(requestTimeout):
		return nil, fmt.Errorf("reading reply: timed out after %s", requestTimeout)
	case res := <-done:
		if res.err != nil {
			return nil, fmt.Errorf("reading reply: %w", res.err)
		}
		return res.reply, nil
	}
}

func (c *Client) readReply() ([]byte, error) {
	header := make([]byte, 2)
	if _, err := io.ReadFull(c.r, header); err != nil {
		return nil, err
	}

	var rest []byte
	switch {
	case header[1]&exceptionBit != 0:
		rest = make([]byte, 3) // exception code + 2-byte CRC
	case header[1] == FuncReadHoldingRegisters:
		count := make([]byte, 1)
		if _, err := io.ReadFull(c.r, count); err != nil {
			return nil, err
		}
		header = append(header, count[0])
		rest = make([]byte, int(count[0])+2)
	case header[1] == FuncWriteSingleRegister:
		rest = make([]byte, 4+2) // echoed address + value + 2-byte CRC
	default:
		return nil, &FrameError{Detail: fmt.Sprintf("unrecognized function byte %#x in reply", header[1])}
	}

	if _, err := io.ReadFull(c.r, rest); err != nil {
		return nil, err
	}
	return append(header, rest...), nil
}
