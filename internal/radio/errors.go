package radio

import "fmt"

// FramingErrorKind classifies why a span of bytes could not be framed.
type FramingErrorKind int

const (
	// ErrBadLength means a length byte produced an inconsistent or impossible
	// total frame length (e.g. an envelope LEN of 0).
	ErrBadLength FramingErrorKind = iota
	// ErrNoSync means no framing matched within the resync window, forcing a
	// truncation from the head of the accumulator.
	ErrNoSync
)

func (k FramingErrorKind) String() string {
	switch k {
	case ErrBadLength:
		return "bad_length"
	case ErrNoSync:
		return "no_sync"
	default:
		return "unknown"
	}
}

// FramingError reports a non-fatal framing problem: the stream continues,
// the offending bytes are discarded, and ingestion resumes.
type FramingError struct {
	Kind   FramingErrorKind
	Offset int
}

func (e *FramingError) Error() string {
	return fmt.Sprintf("framing: %s at offset %d", e.Kind, e.Offset)
}
