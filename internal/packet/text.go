package packet

import (
	"bytes"
	"fmt"
	"time"
)

const (
	TextStart byte = '@'
	TextCR    byte = '\r'
	TextLF    byte = '\n'

	DefaultTextDeadline = 100 * time.Millisecond
)

// TextReceiver assembles variable-length payloads framed as '@' payload "\r\n".
// The store holds the payload plus a NUL terminator.
type TextReceiver struct {
	machine
}

var _ Receiver = (*TextReceiver)(nil)

func NewTextReceiver(opts ...Option) *TextReceiver {
	o := buildOptions(DefaultTextDeadline, opts)
	r := &TextReceiver{}
	r.variant = VariantText
	r.store = NewStore(o.capacity, true)
	r.errs = o.errs
	r.deadline = o.deadline
	r.now = o.now
	return r
}

// MaxPayload is the longest payload the store accepts.
func (r *TextReceiver) MaxPayload() int {
	return r.store.Cap() - 1
}

func (r *TextReceiver) OnByte(b byte) Event {
	return r.step(b, r.transition)
}

func (r *TextReceiver) transition(b byte) Event {
	switch r.State() {
	case StateWait:
		if b != TextStart {
			return Event{}
		}
		if r.store.Flag() != FlagStart {
			return Event{Kind: EventDropped, Err: r.record(KindOverrun, b)}
		}
		r.store.BeginFrame()
		r.setState(StateReceiving)
		return Event{Kind: EventStarted}
	case StateReceiving:
		if b == TextCR {
			r.setState(StateFinished)
			return Event{}
		}
		if err := r.store.PushByte(b); err != nil {
			ferr := r.record(KindPayloadTooLong, b)
			r.store.BeginFrame()
			r.setState(StateWait)
			return Event{Kind: EventDropped, Err: ferr}
		}
		return Event{}
	case StateFinished:
		if b != TextLF {
			return Event{Err: r.record(KindUnexpectedTrailer, b)}
		}
		// Room always leaves the NUL slot, so Terminate cannot fail.
		_ = r.store.Terminate()
		r.setState(StateWait)
		r.store.Commit()
		return Event{Kind: EventCommitted}
	default:
		r.setState(StateWait)
		return Event{}
	}
}

// EncodeText frames a text payload. The payload must not contain '\r'.
func EncodeText(payload []byte) ([]byte, error) {
	if bytes.IndexByte(payload, TextCR) >= 0 {
		return nil, ErrInvalidPayload
	}
	out := make([]byte, 0, len(payload)+3)
	out = append(out, TextStart)
	out = append(out, payload...)
	out = append(out, TextCR, TextLF)
	return out, nil
}

// DecodeText runs wire bytes through a fresh receiver of the default capacity.
func DecodeText(wire []byte) ([]byte, error) {
	r := NewTextReceiver(WithDeadline(0))
	payload, err := decode(r, wire)
	if err != nil {
		return nil, fmt.Errorf("decode text frame: %w", err)
	}
	return payload, nil
}
