package modbus

import (
	"encoding/binary"
	"math"
)

// DecodeU16 reads the register at index i (0-based, in registers of raw) as
// a plain u16.
func DecodeU16(raw []byte, i int) uint16 {
	return binary.BigEndian.Uint16(raw[2*i : 2*i+2])
}

// DecodeF32 reads the register pair starting at index i as a big-endian
// float32 with the most-significant word first, matching the controller's
// MSW-first register pairing for reading and battery fields.
func DecodeF32(raw []byte, i int) float32 {
	bits := uint32(DecodeU16(raw, i))<<16 | uint32(DecodeU16(raw, i+1))
	return math.Float32frombits(bits)
}

// Enum16 is any small integer enum decoded from a single holding register,
// e.g. decoder.GasType or decoder.SensorType.
type Enum16 interface {
	~uint8 | ~uint16
}

// DecodeEnum16 reads the register at index i and narrows it to T, preserving
// whatever numeric value the controller reports even if T has no name for
// it — enum values are never substituted or clamped at the decode boundary.
func DecodeEnum16[T Enum16](raw []byte, i int) T {
	return T(DecodeU16(raw, i))
}
