package decoder

import (
	"math"
	"time"
)

// gen2ReadingTag is the marker byte observed at payload offset 6 on every
// RM024-envelope frame carrying a forwarded Gen2 reading. Envelopes with a
// different tag carry other protocols the core does not decode.
const gen2ReadingTag = 0x81

// decodeEnvelope parses the interior payload of an RM024 0x81 envelope that
// is forwarding a Gen2 reading: a repeater radio inserted
// routing metadata ahead of the sensor's own fields, including the
// channel_slot the upstream controller assigned. See DESIGN.md for the
// payload-offset placement this implementation chose for gas_type/status
// where the field-position choice below cannot be fully pinned down.
func decodeEnvelope(netID NetworkID, now time.Time, payload, trailer []byte) (SensorReading, error) {
	if len(payload) < 15 {
		return SensorReading{}, newDecodeError(ErrTruncated, len(payload), "envelope payload shorter than 15 bytes")
	}
	if payload[6] != gen2ReadingTag {
		return SensorReading{}, newDecodeError(ErrUnsupportedProtocol, len(payload), "")
	}

	addr := uint16(payload[0])<<8 | uint16(payload[1])

	slot := payload[5]
	if slot < 1 || slot > 32 {
		return SensorReading{}, newDecodeError(ErrBadChannelSlot, len(payload), "")
	}

	readingBits := uint32(payload[7])<<24 | uint32(payload[8])<<16 | uint32(payload[9])<<8 | uint32(payload[10])
	reading := math.Float32frombits(readingBits)

	info := sensorInfoByte(payload[11])
	batteryRaw := payload[12]
	gas := gasByte(payload[13])
	status := statusByte(payload[14])

	out := SensorReading{
		NetworkID:          netID,
		CapturedAt:         now,
		TransmitterAddress: addr,
		ChannelSlot:        slot,
		HasChannelSlot:     true,
		Reading:            reading,
		GasType:            gas.gasType(),
		SensorType:         info.kind(),
		SensorMode:         info.mode(),
		BatteryVoltage:     batteryVoltage(batteryRaw, gas.batteryScale()),
		FaultCode:          status.faultCode(),
		Precision:          status.precision(),
		HasText:            status.hasText(),
	}

	// RSSI offset: trailer byte 0, read as a signed dBm value. No other
	// trailer byte is interpreted.
	if len(trailer) > 0 {
		rssi := int8(trailer[0])
		out.SignalRSSI = &rssi
	}

	return out, nil
}
