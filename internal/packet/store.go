package packet

import (
	"bytes"
	"sync/atomic"
)

const (
	BinaryPayloadLen    = 4
	DefaultTextCapacity = 1024
)

// Store is a fixed-capacity payload buffer with a write cursor and the RxFlag.
//
// BeginFrame, PushByte, Terminate and Commit belong to the receive context.
// TryTake belongs to the foreground. The flag orders the two: Commit publishes
// the buffer, TryTake copies it out before handing it back.
type Store struct {
	buf    []byte
	cursor int
	// nulTerminated stores a NUL after the payload and trims at the first NUL on take.
	nulTerminated bool
	flag          atomic.Uint32
}

// NewStore allocates a store. Capacity counts the NUL slot when nulTerminated.
func NewStore(capacity int, nulTerminated bool) *Store {
	if capacity < 1 {
		capacity = 1
	}
	return &Store{
		buf:           make([]byte, capacity),
		nulTerminated: nulTerminated,
	}
}

func (s *Store) Cap() int {
	return len(s.buf)
}

// Len is the cursor. Receive context only.
func (s *Store) Len() int {
	return s.cursor
}

// Room reports how many payload bytes still fit.
func (s *Store) Room() int {
	room := len(s.buf) - s.cursor
	if s.nulTerminated {
		room--
	}
	if room < 0 {
		return 0
	}
	return room
}

// BeginFrame rewinds the cursor for a new frame.
func (s *Store) BeginFrame() {
	s.cursor = 0
}

// PushByte appends b at the cursor.
func (s *Store) PushByte(b byte) error {
	if s.Room() == 0 {
		return ErrStoreFull
	}
	s.buf[s.cursor] = b
	s.cursor++
	return nil
}

// Terminate writes the NUL terminator at the cursor without advancing it.
func (s *Store) Terminate() error {
	if !s.nulTerminated {
		return nil
	}
	if s.cursor >= len(s.buf) {
		return ErrStoreFull
	}
	s.buf[s.cursor] = 0
	return nil
}

// Commit marks the payload stable until the foreground takes it.
func (s *Store) Commit() {
	s.flag.Store(uint32(FlagEnd))
}

// Flag reads the handoff flag from either context.
func (s *Store) Flag() RxFlag {
	return RxFlag(s.flag.Load())
}

// TryTake copies the committed payload and resets the flag to Start. It
// returns false without side effects when no frame is pending.
func (s *Store) TryTake() ([]byte, bool) {
	if s.Flag() != FlagEnd {
		return nil, false
	}
	payload := s.buf[:s.cursor]
	if s.nulTerminated {
		if i := bytes.IndexByte(payload, 0); i >= 0 {
			payload = payload[:i]
		}
	}
	out := make([]byte, len(payload))
	copy(out, payload)
	s.flag.Store(uint32(FlagStart))
	return out, true
}
