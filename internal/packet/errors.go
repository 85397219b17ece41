package packet

import (
	"errors"
	"fmt"
)

var (
	ErrUnexpectedTrailer = errors.New("packet: unexpected trailer byte")
	ErrPayloadTooLong    = errors.New("packet: payload exceeds store capacity")
	ErrOverrun           = errors.New("packet: frame start while previous frame unconsumed")
	ErrFrameTimeout      = errors.New("packet: frame deadline expired")

	ErrStoreFull       = errors.New("packet: store full")
	ErrPayloadLength   = errors.New("packet: invalid payload length")
	ErrInvalidPayload  = errors.New("packet: payload contains frame delimiter")
	ErrIncompleteFrame = errors.New("packet: incomplete frame")
)

// ErrorKind labels a receive-context framing error.
type ErrorKind uint8

const (
	KindUnexpectedTrailer ErrorKind = iota
	KindPayloadTooLong
	KindOverrun
	KindFrameTimeout
	numKinds
)

func (k ErrorKind) String() string {
	switch k {
	case KindUnexpectedTrailer:
		return "unexpected_trailer"
	case KindPayloadTooLong:
		return "payload_too_long"
	case KindOverrun:
		return "overrun"
	case KindFrameTimeout:
		return "frame_timeout"
	default:
		return "unknown"
	}
}

func (k ErrorKind) sentinel() error {
	switch k {
	case KindUnexpectedTrailer:
		return ErrUnexpectedTrailer
	case KindPayloadTooLong:
		return ErrPayloadTooLong
	case KindOverrun:
		return ErrOverrun
	default:
		return ErrFrameTimeout
	}
}

// FramingError is recorded by the receive context. It unwraps to one of the
// ErrUnexpectedTrailer, ErrPayloadTooLong, ErrOverrun, ErrFrameTimeout sentinels.
type FramingError struct {
	Variant Variant
	Kind    ErrorKind
	State   State
	Byte    byte
	// Seq is the error log sequence number assigned on Record.
	Seq uint64
}

func (e *FramingError) Error() string {
	return fmt.Sprintf("%v (variant=%s state=%s byte=0x%02x)", e.Kind.sentinel(), e.Variant, e.State, e.Byte)
}

func (e *FramingError) Unwrap() error {
	return e.Kind.sentinel()
}

// KindOf reports the ErrorKind wrapped by err.
func KindOf(err error) (ErrorKind, bool) {
	var fe *FramingError
	if errors.As(err, &fe) {
		return fe.Kind, true
	}
	return 0, false
}

// SinkError reports a transmit failure at Offset bytes into the wire frame.
type SinkError struct {
	Offset int
	Err    error
}

func (e *SinkError) Error() string {
	return fmt.Sprintf("packet: sink write failed at byte %d: %v", e.Offset, e.Err)
}

func (e *SinkError) Unwrap() error {
	return e.Err
}
