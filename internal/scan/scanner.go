package scan

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/danmuck/uartframe/internal/observability"
)

// Sampler converts one channel.
type Sampler interface {
	Sample(channel int) (uint16, error)
}

// SamplerFunc adapts a function to Sampler.
type SamplerFunc func(channel int) (uint16, error)

func (fn SamplerFunc) Sample(channel int) (uint16, error) {
	return fn(channel)
}

// Scanner converts channels 0..Channels-1 in order, repeatedly, into a
// circular buffer. Each half holds Rounds full scans.
type Scanner struct {
	Name     string
	Channels int
	Rounds   int
	Interval time.Duration
	sampler  Sampler
	buf      *Circular[uint16]
}

func NewScanner(name string, channels, rounds int, sampler Sampler) (*Scanner, error) {
	if channels < 1 || rounds < 1 {
		return nil, fmt.Errorf("scan: channels and rounds must be positive")
	}
	if sampler == nil {
		return nil, fmt.Errorf("scan: sampler is required")
	}
	return &Scanner{
		Name:     name,
		Channels: channels,
		Rounds:   rounds,
		sampler:  sampler,
		buf:      NewCircular[uint16](channels * rounds),
	}, nil
}

func (s *Scanner) Buffer() *Circular[uint16] {
	return s.buf
}

// Run samples until ctx ends, the buffer is stopped, or the sampler fails.
func (s *Scanner) Run(ctx context.Context) error {
	var tick <-chan time.Time
	if s.Interval > 0 {
		t := time.NewTicker(s.Interval)
		defer t.Stop()
		tick = t.C
	}
	for {
		for ch := 0; ch < s.Channels; ch++ {
			if ctx.Err() != nil {
				return nil
			}
			v, ok, err := s.sample(ctx, ch)
			if err != nil {
				return fmt.Errorf("scan: channel %d: %w", ch, err)
			}
			if !ok {
				return nil
			}
			if err := s.buf.Write(v); err != nil {
				if errors.Is(err, ErrStopped) {
					return nil
				}
				return err
			}
		}
		if tick != nil {
			select {
			case <-ctx.Done():
				return nil
			case <-tick:
			}
		}
	}
}

// sample retries ch while the sampler reports ErrNoSample. ok is false once
// ctx ends.
func (s *Scanner) sample(ctx context.Context, ch int) (uint16, bool, error) {
	for {
		if ctx.Err() != nil {
			return 0, false, nil
		}
		v, err := s.sampler.Sample(ch)
		if errors.Is(err, ErrNoSample) {
			continue
		}
		if err != nil {
			return 0, false, err
		}
		return v, true, nil
	}
}

// Latest peeks the readable half and returns it as per-channel columns:
// out[ch][round].
func (s *Scanner) Latest() ([][]uint16, Half, error) {
	var out [][]uint16
	var half Half
	err := s.buf.Peek(func(samples []uint16, h Half) {
		half = h
		out = make([][]uint16, s.Channels)
		for ch := range out {
			out[ch] = make([]uint16, 0, s.Rounds)
		}
		for i, v := range samples {
			out[i%s.Channels] = append(out[i%s.Channels], v)
		}
	})
	if errors.Is(err, ErrOverrun) {
		observability.RecordScanOverrun(s.Name)
	}
	if err != nil {
		return nil, 0, err
	}
	return out, half, nil
}
