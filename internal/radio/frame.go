package radio

// Frame is one discrete radio frame recovered from a byte stream, tagged
// with which of the two coexisting framings matched.
type Frame struct {
	// Envelope is true when this frame matched the RM024 0x81 repeater
	// envelope; false for a raw Gen2 Protocol-1 frame straight off a
	// monitor radio.
	Envelope bool

	// Payload is the frame's interior bytes. For a raw Gen2 frame this is
	// the whole frame (address through checksum/text). For an envelope
	// frame this is the LEN-byte interior payload only (the 0x81/LEN/0x00
	// header is not included).
	Payload []byte

	// Trailer holds the envelope's opaque radio-link metadata tail,
	// captured on a best-effort basis (see Reassembler). Empty for raw
	// Gen2 frames.
	Trailer []byte
}
