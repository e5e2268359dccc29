package modbus

import "encoding/binary"

// Modbus RTU function codes this client needs: read holding registers and
// write a single holding register.
const (
	FuncReadHoldingRegisters byte = 0x03
	FuncWriteSingleRegister  byte = 0x06

	exceptionBit byte = 0x80
)

// BuildReadHoldingRegisters encodes an RTU request frame reading count
// registers starting at addr from unit.
func BuildReadHoldingRegisters(unit byte, addr, count uint16) []byte {
	body := make([]byte, 0, 8)
	body = append(body, unit, FuncReadHoldingRegisters)
	body = binary.BigEndian.AppendUint16(body, addr)
	body = binary.BigEndian.AppendUint16(body, count)
	return AppendCRC(body)
}

// BuildWriteSingleRegister encodes an RTU request frame writing value to the
// holding register at addr on unit.
func BuildWriteSingleRegister(unit byte, addr, value uint16) []byte {
	body := make([]byte, 0, 8)
	body = append(body, unit, FuncWriteSingleRegister)
	body = binary.BigEndian.AppendUint16(body, addr)
	body = binary.BigEndian.AppendUint16(body, value)
	return AppendCRC(body)
}

// ParseReadHoldingRegisters validates a reply to a read-holding-registers
// request and returns the raw register bytes (big-endian u16 per register).
func ParseReadHoldingRegisters(unit byte, reply []byte) ([]byte, error) {
	data, err := parseReply(unit, FuncReadHoldingRegisters, reply)
	if err != nil {
		return nil, err
	}
	if len(data) < 1 {
		return nil, &FrameError{Detail: "read-holding reply missing byte count"}
	}
	byteCount := int(data[0])
	if len(data) != 1+byteCount {
		return nil, &FrameError{Detail: "read-holding reply byte count mismatch"}
	}
	return data[1:], nil
}

// ParseWriteSingleRegister validates a reply to a write-single-register
// request (the slave echoes address and value) and returns the echoed value.
func ParseWriteSingleRegister(unit byte, addr uint16, reply []byte) (uint16, error) {
	data, err := parseReply(unit, FuncWriteSingleRegister, reply)
	if err != nil {
		return 0, err
	}
	if len(data) != 4 {
		return 0, &FrameError{Detail: "write-single reply wrong length"}
	}
	gotAddr := binary.BigEndian.Uint16(data[0:2])
	if gotAddr != addr {
		return 0, &FrameError{Detail: "write-single reply echoed wrong address"}
	}
	return binary.BigEndian.Uint16(data[2:4]), nil
}

// parseReply validates the CRC, unit id, and function code common to every
// RTU reply, returning the payload between the function byte and the CRC.
// A reply whose function byte is the request function OR'd with the
// exception bit is reported as an Exception, not a *FrameError.
func parseReply(unit, wantFunc byte, reply []byte) ([]byte, error) {
	if len(reply) < 4 {
		return nil, &FrameError{Detail: "reply shorter than minimum RTU frame"}
	}
	if !VerifyCRC(reply) {
		return nil, &FrameError{Detail: "reply CRC mismatch"}
	}
	body := reply[:len(reply)-2]
	if body[0] != unit {
		return nil, &FrameError{Detail: "reply echoed wrong unit id"}
	}
	gotFunc := body[1]
	if gotFunc == wantFunc|exceptionBit {
		if len(body) < 3 {
			return nil, &FrameError{Detail: "exception reply missing code"}
		}
		return nil, Exception(body[2])
	}
	if gotFunc != wantFunc {
		return nil, &FrameError{Detail: "reply echoed wrong function code"}
	}
	return body[2:], nil
}
