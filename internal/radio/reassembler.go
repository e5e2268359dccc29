package radio

// maxResyncWindow bounds how many consecutive bytes the reassembler will
// discard while hunting for the next valid frame start before it records a
// no-sync error and resumes scanning.
const maxResyncWindow = 256

// maxEnvelopeTrailer bounds how many trailing bytes past an envelope's
// declared payload the reassembler will opportunistically capture as
// Frame.Trailer (the trailer carries no length field of its own, so its
// end is guessed from where the next frame appears to start). Capturing is
// best-effort and never blocks waiting for more bytes.
const maxEnvelopeTrailer = 8

type frameState int

const (
	frameNo frameState = iota
	frameIncomplete
	frameMatched
	frameBadLength
)

// looksLikeFrameStart is a cheap heuristic used only to decide where an
// envelope's opaque trailer probably ends, not to commit to a decode.
func looksLikeFrameStart(buf []byte) bool {
	if len(buf) >= 1 && buf[0] == 0x81 {
		return true
	}
	if len(buf) >= 3 && buf[2] == 0x01 {
		return true
	}
	return false
}

// tryEnvelope attempts RM024 0x81-envelope framing at the start of buf.
func tryEnvelope(buf []byte) (total, trailerLen int, state frameState) {
	if len(buf) < 1 || buf[0] != 0x81 {
		return 0, 0, frameNo
	}
	if len(buf) < 2 {
		return 0, 0, frameIncomplete
	}
	ln := buf[1]
	if ln == 0 {
		return 0, 0, frameBadLength
	}
	if len(buf) < 3 {
		return 0, 0, frameIncomplete
	}
	if buf[2] != 0x00 {
		return 0, 0, frameNo
	}
	total = 3 + int(ln)
	if len(buf) < total {
		return 0, 0, frameIncomplete
	}
	for trailerLen < maxEnvelopeTrailer && total+trailerLen < len(buf) {
		if looksLikeFrameStart(buf[total+trailerLen:]) {
			break
		}
		trailerLen++
	}
	return total, trailerLen, frameMatched
}

// tryRawGen2 attempts raw Gen2 Protocol-1 framing at the start of buf.
func tryRawGen2(buf []byte) (total int, state frameState) {
	if len(buf) < 3 {
		return 0, frameIncomplete
	}
	if buf[2] != 0x01 {
		return 0, frameNo
	}
	if len(buf) < 11 {
		return 0, frameIncomplete
	}
	hasText := buf[10]&0x01 != 0
	if !hasText {
		if len(buf) < 12 {
			return 0, frameIncomplete
		}
		return 12, frameMatched
	}
	if len(buf) < 12 {
		return 0, frameIncomplete
	}
	textLen := int(buf[11])
	total = 12 + textLen + 1
	if len(buf) < total {
		return 0, frameIncomplete
	}
	return total, frameMatched
}

// Reassembler converts a raw byte stream from one serial port into a
// sequence of discrete radio frames. It is not safe for
// concurrent use; one Reassembler belongs to exactly one network's
// ingestion goroutine.
type Reassembler struct {
	buf     []byte
	garbage int
}

// NewReassembler returns an empty Reassembler.
func NewReassembler() *Reassembler {
	return &Reassembler{}
}

// Feed appends chunk to the accumulator and extracts every whole frame it
// can. It never blocks and never drops a frame silently: framing problems
// come back as FramingErrors alongside any successfully recovered frames.
func (r *Reassembler) Feed(chunk []byte) ([]Frame, []FramingError) {
	r.buf = append(r.buf, chunk...)

	var frames []Frame
	var errs []FramingError

	for len(r.buf) > 0 {
		if total, trailerLen, state := tryEnvelope(r.buf); state == frameMatched {
			payload := append([]byte(nil), r.buf[3:total]...)
			trailer := append([]byte(nil), r.buf[total:total+trailerLen]...)
			frames = append(frames, Frame{Envelope: true, Payload: payload, Trailer: trailer})
			r.buf = r.buf[total+trailerLen:]
			r.garbage = 0
			continue
		} else if state == frameIncomplete {
			break
		} else if state == frameBadLength {
			errs = append(errs, FramingError{Kind: ErrBadLength, Offset: len(r.buf)})
			r.buf = r.buf[1:]
			r.garbage++
			if r.garbage >= maxResyncWindow {
				errs = append(errs, FramingError{Kind: ErrNoSync, Offset: len(r.buf)})
				r.garbage = 0
			}
			continue
		}

		if total, state := tryRawGen2(r.buf); state == frameMatched {
			frame := Frame{Envelope: false, Payload: append([]byte(nil), r.buf[:total]...)}
			frames = append(frames, frame)
			r.buf = r.buf[total:]
			r.garbage = 0
			continue
		} else if state == frameIncomplete {
			break
		}

		// Neither framing matched at this position: one byte of resync
		// garbage, bounded by maxResyncWindow.
		r.buf = r.buf[1:]
		r.garbage++
		if r.garbage >= maxResyncWindow {
			errs = append(errs, FramingError{Kind: ErrNoSync, Offset: len(r.buf)})
			r.garbage = 0
		}
	}

	return frames, errs
}

// Reset discards any partial frame currently buffered. Used on cooperative
// shutdown: partial frames in a reassembler are discarded.
func (r *Reassembler) Reset() {
	r.buf = nil
	r.garbage = 0
}

// Buffered reports how many bytes are currently held waiting for more
// input; used by tests to assert the resync-bound property.
func (r *Reassembler) Buffered() int {
	return len(r.buf)
}
