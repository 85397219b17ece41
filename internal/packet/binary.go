package packet

import (
	"fmt"
	"time"
)

const (
	BinaryStart byte = 0xFF
	BinaryEnd   byte = 0xFE
	// BinaryFrameLen is START + 4 payload bytes + END.
	BinaryFrameLen = BinaryPayloadLen + 2

	DefaultBinaryDeadline = 50 * time.Millisecond
)

// BinaryReceiver assembles fixed 4-byte payloads framed as FF p0 p1 p2 p3 FE.
//
// A 0xFF inside the payload is data, not a resync. A 0xFF in Wait while a
// committed frame is still unconsumed is an overrun: the new frame is dropped
// and the pending one is kept. The dropped frame's remaining payload and
// trailer bytes are skipped so its payload is never read as a start byte.
// The skip ends early if the line stalls past the deadline.
type BinaryReceiver struct {
	machine
	// skip counts bytes of a dropped frame still to discard.
	skip int
}

var _ Receiver = (*BinaryReceiver)(nil)

func NewBinaryReceiver(opts ...Option) *BinaryReceiver {
	o := buildOptions(DefaultBinaryDeadline, opts)
	r := &BinaryReceiver{}
	r.variant = VariantBinary
	r.store = NewStore(BinaryPayloadLen, false)
	r.errs = o.errs
	r.deadline = o.deadline
	r.now = o.now
	return r
}

func (r *BinaryReceiver) OnByte(b byte) Event {
	if r.skip > 0 {
		now := r.now()
		if !r.skipExpired(now) {
			r.skip--
			r.lastByte = now
			return Event{}
		}
		r.skip = 0
	}
	return r.step(b, r.transition)
}

func (r *BinaryReceiver) Expire(now time.Time) Event {
	if r.skip > 0 && r.skipExpired(now) {
		r.skip = 0
	}
	return r.machine.Expire(now)
}

// Skipping reports how many bytes of a dropped frame are still discarded.
func (r *BinaryReceiver) Skipping() int {
	return r.skip
}

func (r *BinaryReceiver) skipExpired(now time.Time) bool {
	return r.deadline > 0 && now.Sub(r.lastByte) > r.deadline
}

func (r *BinaryReceiver) transition(b byte) Event {
	switch r.State() {
	case StateWait:
		if b != BinaryStart {
			return Event{}
		}
		if r.store.Flag() == FlagEnd {
			r.skip = BinaryFrameLen - 1
			r.lastByte = r.now()
			return Event{Kind: EventDropped, Err: r.record(KindOverrun, b)}
		}
		r.store.BeginFrame()
		r.setState(StateReceiving)
		return Event{Kind: EventStarted}
	case StateReceiving:
		// The cursor bounds the payload, so the push cannot fail here.
		_ = r.store.PushByte(b)
		if r.store.Len() >= BinaryPayloadLen {
			r.setState(StateFinished)
		}
		return Event{}
	case StateFinished:
		if b != BinaryEnd {
			return Event{Err: r.record(KindUnexpectedTrailer, b)}
		}
		r.setState(StateWait)
		r.store.Commit()
		return Event{Kind: EventCommitted}
	default:
		r.setState(StateWait)
		return Event{}
	}
}

// EncodeBinary frames a 4-byte payload.
func EncodeBinary(payload []byte) ([]byte, error) {
	if len(payload) != BinaryPayloadLen {
		return nil, ErrPayloadLength
	}
	out := make([]byte, 0, BinaryFrameLen)
	out = append(out, BinaryStart)
	out = append(out, payload...)
	out = append(out, BinaryEnd)
	return out, nil
}

// DecodeBinary runs wire bytes through a fresh receiver and returns the
// first committed payload.
func DecodeBinary(wire []byte) ([]byte, error) {
	r := NewBinaryReceiver(WithDeadline(0))
	payload, err := decode(r, wire)
	if err != nil {
		return nil, fmt.Errorf("decode binary frame: %w", err)
	}
	return payload, nil
}

func decode(r Receiver, wire []byte) ([]byte, error) {
	for _, b := range wire {
		ev := r.OnByte(b)
		if ev.Err != nil {
			return nil, ev.Err
		}
		if ev.Kind == EventCommitted {
			f, _ := r.Poll()
			return f.Payload, nil
		}
	}
	return nil, ErrIncompleteFrame
}
