package packet

import (
	"sync/atomic"
	"time"
)

// Receiver is the contract shared by the binary and text machines.
type Receiver interface {
	// OnByte consumes one received byte. Receive context only.
	OnByte(b byte) Event
	// Expire applies the frame deadline without a byte. Receive context only.
	Expire(now time.Time) Event
	// Poll returns the committed frame, if any. Foreground only.
	Poll() (Frame, bool)
	State() State
	Flag() RxFlag
	Variant() Variant
	Errors() *ErrorLog
}

// Option configures a receiver.
type Option func(*options)

type options struct {
	deadline time.Duration
	now      func() time.Time
	errs     *ErrorLog
	capacity int
}

// WithDeadline bounds the gap between bytes inside a frame. Zero disables it.
func WithDeadline(d time.Duration) Option {
	return func(o *options) {
		o.deadline = d
	}
}

// WithClock replaces time.Now for deadline checks.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// WithErrorLog shares an existing error log.
func WithErrorLog(l *ErrorLog) Option {
	return func(o *options) {
		if l != nil {
			o.errs = l
		}
	}
}

// WithCapacity sets the text store capacity, NUL slot included. Ignored by
// the binary receiver.
func WithCapacity(n int) Option {
	return func(o *options) {
		if n > 1 {
			o.capacity = n
		}
	}
}

func buildOptions(deadline time.Duration, opts []Option) options {
	o := options{
		deadline: deadline,
		now:      time.Now,
		capacity: DefaultTextCapacity,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.errs == nil {
		o.errs = &ErrorLog{}
	}
	return o
}

// machine holds what both variants share: state, store, deadline, error log.
type machine struct {
	variant  Variant
	state    atomic.Uint32
	store    *Store
	errs     *ErrorLog
	deadline time.Duration
	now      func() time.Time
	lastByte time.Time
}

func (m *machine) State() State {
	return State(m.state.Load())
}

func (m *machine) setState(s State) {
	m.state.Store(uint32(s))
}

func (m *machine) Flag() RxFlag {
	return m.store.Flag()
}

func (m *machine) Variant() Variant {
	return m.variant
}

func (m *machine) Errors() *ErrorLog {
	return m.errs
}

// Store exposes the packet store for inspection.
func (m *machine) Store() *Store {
	return m.store
}

func (m *machine) Poll() (Frame, bool) {
	payload, ok := m.store.TryTake()
	if !ok {
		return Frame{}, false
	}
	return Frame{Variant: m.variant, Payload: payload}, true
}

func (m *machine) Expire(now time.Time) Event {
	if err := m.expire(now); err != nil {
		return Event{Kind: EventDropped, Err: err}
	}
	return Event{}
}

// expire resets a frame whose last byte is older than the deadline. A frame
// parked in Finished never saw its trailer, so it is reported as one.
func (m *machine) expire(now time.Time) error {
	state := m.State()
	if m.deadline <= 0 || state == StateWait {
		return nil
	}
	if now.Sub(m.lastByte) <= m.deadline {
		return nil
	}
	kind := KindFrameTimeout
	if state == StateFinished {
		kind = KindUnexpectedTrailer
	}
	err := m.record(kind, 0)
	m.setState(StateWait)
	return err
}

func (m *machine) record(kind ErrorKind, b byte) error {
	err := &FramingError{Variant: m.variant, Kind: kind, State: m.State(), Byte: b}
	m.errs.Record(err)
	return err
}

// step runs the deadline check then the variant transition for b.
func (m *machine) step(b byte, transition func(byte) Event) Event {
	now := m.now()
	expired := m.expire(now)
	ev := transition(b)
	if m.State() != StateWait {
		m.lastByte = now
	}
	if ev.Err == nil && expired != nil {
		ev.Err = expired
		if ev.Kind == EventNone {
			ev.Kind = EventDropped
		}
	}
	return ev
}
