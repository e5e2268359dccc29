package decoder

import (
	"math"
	"time"
)

// decodeGen2Raw parses a raw Gen2 Protocol-1 frame: a monitor
// radio receiving a sensor transmission directly, with no repeater envelope
// and therefore no channel_slot.
func decodeGen2Raw(netID NetworkID, now time.Time, frame []byte) (SensorReading, error) {
	if len(frame) < 12 {
		return SensorReading{}, newDecodeError(ErrTruncated, len(frame), "gen2 raw frame shorter than 12 bytes")
	}
	if frame[2] != 0x01 {
		return SensorReading{}, newDecodeError(ErrUnsupportedProtocol, len(frame), "")
	}

	status := statusByte(frame[10])
	var checksumIdx int
	var text string
	if status.hasText() {
		if len(frame) < 12 {
			return SensorReading{}, newDecodeError(ErrTruncated, len(frame), "missing text length byte")
		}
		textLen := int(frame[11])
		checksumIdx = 12 + textLen
		if len(frame) <= checksumIdx {
			return SensorReading{}, newDecodeError(ErrTruncated, len(frame), "text block runs past frame end")
		}
		text = sanitizeText(frame[12:checksumIdx])
	} else {
		checksumIdx = 11
		if len(frame) <= checksumIdx {
			return SensorReading{}, newDecodeError(ErrTruncated, len(frame), "missing checksum byte")
		}
	}

	want := checksum8(frame[:checksumIdx])
	got := frame[checksumIdx]
	if want != got {
		return SensorReading{}, newDecodeError(ErrChecksum, len(frame), "")
	}

	addr := uint16(frame[0])<<8 | uint16(frame[1])
	readingBits := uint32(frame[3])<<24 | uint32(frame[4])<<16 | uint32(frame[5])<<8 | uint32(frame[6])
	reading := math.Float32frombits(readingBits)

	info := sensorInfoByte(frame[7])
	batteryRaw := frame[8]
	gas := gasByte(frame[9])

	return SensorReading{
		NetworkID:          netID,
		CapturedAt:         now,
		TransmitterAddress: addr,
		Reading:            reading,
		GasType:            gas.gasType(),
		SensorType:         info.kind(),
		SensorMode:         info.mode(),
		BatteryVoltage:     batteryVoltage(batteryRaw, gas.batteryScale()),
		FaultCode:          status.faultCode(),
		Precision:          status.precision(),
		HasText:            status.hasText(),
		Text:               text,
	}, nil
}

// sanitizeText decodes a best-effort ASCII label: the frame is not required
// to carry printable bytes and must never panic the decoder over them.
func sanitizeText(raw []byte) string {
	out := make([]rune, 0, len(raw))
	for _, b := range raw {
		if b >= 0x20 && b < 0x7f {
			out = append(out, rune(b))
		} else {
			out = append(out, '.')
		}
	}
	return string(out)
}
