// Package scan provides the double-buffered circular reader used for
// continuously scanned multi-channel samples.
package scan

import (
	"errors"
	"sync"
)

var (
	ErrNotReady = errors.New("scan: no half ready")
	ErrOverrun  = errors.New("scan: producer overran the reader")
	ErrStopped  = errors.New("scan: transfer stopped")
)

// Half names one side of the double buffer.
type Half int

const (
	First Half = iota
	Second
)

func (h Half) String() string {
	if h == Second {
		return "second"
	}
	return "first"
}

// Circular is a two-half buffer filled circularly by one producer. Completing
// a half raises its ready flag; the reader clears it by peeking. If both flags
// are up the reader has fallen a full buffer behind.
type Circular[T any] struct {
	mu      sync.Mutex
	halves  [2][]T
	pos     int
	ready   [2]bool
	latest  Half
	stopped bool
}

func NewCircular[T any](halfLen int) *Circular[T] {
	if halfLen < 1 {
		halfLen = 1
	}
	return &Circular[T]{
		halves: [2][]T{make([]T, halfLen), make([]T, halfLen)},
	}
}

func (c *Circular[T]) HalfLen() int {
	return len(c.halves[0])
}

// Write stores one element at the producer position.
func (c *Circular[T]) Write(v T) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped {
		return ErrStopped
	}
	n := len(c.halves[0])
	h := Half(c.pos / n)
	c.halves[h][c.pos%n] = v
	c.pos++
	if c.pos%n == 0 {
		c.ready[h] = true
		c.latest = h
		c.pos %= 2 * n
	}
	return nil
}

// ReadableHalf returns the half that completed most recently.
func (c *Circular[T]) ReadableHalf() (Half, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.readable()
}

func (c *Circular[T]) readable() (Half, error) {
	if c.ready[First] && c.ready[Second] {
		return c.latest, ErrOverrun
	}
	if !c.ready[c.latest] {
		return 0, ErrNotReady
	}
	return c.latest, nil
}

// Peek runs fn over a copy of the readable half and marks it consumed. On
// overrun both flags are cleared so the reader resynchronizes on the next half.
func (c *Circular[T]) Peek(fn func(half []T, h Half)) error {
	c.mu.Lock()
	h, err := c.readable()
	if errors.Is(err, ErrOverrun) {
		c.ready = [2]bool{}
	}
	if err != nil {
		c.mu.Unlock()
		return err
	}
	snapshot := make([]T, len(c.halves[h]))
	copy(snapshot, c.halves[h])
	c.ready[h] = false
	c.mu.Unlock()

	fn(snapshot, h)
	return nil
}

// Stop ends production and returns copies of both halves.
func (c *Circular[T]) Stop() [2][]T {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopped = true
	var out [2][]T
	for i := range c.halves {
		out[i] = make([]T, len(c.halves[i]))
		copy(out[i], c.halves[i])
	}
	return out
}
