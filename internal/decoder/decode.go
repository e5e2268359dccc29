package decoder

import (
	"time"

	"github.com/oi7500/gateway/internal/radio"
)

// Decode converts one reassembled radio frame into a SensorReading, or a
// *DecodeError explaining why it was rejected. No SensorReading is ever
// returned alongside a non-nil error: a reading is only emitted on success.
func Decode(netID NetworkID, f radio.Frame) (SensorReading, error) {
	now := time.Now()
	if f.Envelope {
		return decodeEnvelope(netID, now, f.Payload, f.Trailer)
	}
	return decodeGen2Raw(netID, now, f.Payload)
}
