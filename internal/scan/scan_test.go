package scan

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/danmuck/uartframe/internal/testutil/testlog"
)

func TestCircularHalves(t *testing.T) {
	testlog.Start(t)
	c := NewCircular[uint16](4)
	if _, err := c.ReadableHalf(); !errors.Is(err, ErrNotReady) {
		t.Fatalf("expected ErrNotReady, got %v", err)
	}
	for v := uint16(0); v < 4; v++ {
		_ = c.Write(v)
	}
	h, err := c.ReadableHalf()
	if err != nil || h != First {
		t.Fatalf("expected first half, got %s err=%v", h, err)
	}
	var got []uint16
	if err := c.Peek(func(half []uint16, _ Half) { got = half }); err != nil {
		t.Fatalf("peek: %v", err)
	}
	if len(got) != 4 || got[0] != 0 || got[3] != 3 {
		t.Fatalf("unexpected first half %v", got)
	}
	if _, err := c.ReadableHalf(); !errors.Is(err, ErrNotReady) {
		t.Fatalf("peek should consume the half, got %v", err)
	}
	for v := uint16(4); v < 8; v++ {
		_ = c.Write(v)
	}
	if h, _ := c.ReadableHalf(); h != Second {
		t.Fatalf("expected second half, got %s", h)
	}
	_ = c.Peek(func(half []uint16, _ Half) { got = half })
	if got[0] != 4 {
		t.Fatalf("unexpected second half %v", got)
	}
	_ = c.Write(8)
	bufs := c.Stop()
	if bufs[0][0] != 8 || bufs[1][3] != 7 {
		t.Fatalf("stop returned %v", bufs)
	}
	if err := c.Write(9); !errors.Is(err, ErrStopped) {
		t.Fatalf("expected ErrStopped, got %v", err)
	}
}

func TestCircularOverrun(t *testing.T) {
	testlog.Start(t)
	c := NewCircular[uint16](2)
	for v := uint16(0); v < 4; v++ {
		_ = c.Write(v)
	}
	if _, err := c.ReadableHalf(); !errors.Is(err, ErrOverrun) {
		t.Fatalf("expected ErrOverrun, got %v", err)
	}
	if err := c.Peek(func([]uint16, Half) { t.Fatalf("peek must not run on overrun") }); !errors.Is(err, ErrOverrun) {
		t.Fatalf("expected ErrOverrun from peek, got %v", err)
	}
	if _, err := c.ReadableHalf(); !errors.Is(err, ErrNotReady) {
		t.Fatalf("overrun peek should resync, got %v", err)
	}
}

func TestScannerColumns(t *testing.T) {
	testlog.Start(t)
	var calls atomic.Int64
	sampler := SamplerFunc(func(ch int) (uint16, error) {
		calls.Add(1)
		return uint16(ch * 100), nil
	})
	s, err := NewScanner("adc1", 4, 2, sampler)
	if err != nil {
		t.Fatalf("new scanner: %v", err)
	}
	s.Interval = time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	var cols [][]uint16
	for time.Now().Before(deadline) {
		cols, _, err = s.Latest()
		if err == nil {
			break
		}
		time.Sleep(time.Millisecond)
	}
	cancel()
	if runErr := <-done; runErr != nil {
		t.Fatalf("run: %v", runErr)
	}
	if err != nil {
		t.Fatalf("no half became readable: %v", err)
	}
	if len(cols) != 4 || len(cols[2]) != 2 || calls.Load() < 8 {
		t.Fatalf("unexpected shape %v", cols)
	}
	for ch, col := range cols {
		for _, v := range col {
			if int(v) != ch*100 {
				t.Fatalf("channel %d holds foreign sample %d", ch, v)
			}
		}
	}
}

func TestScannerStopsOnSamplerError(t *testing.T) {
	testlog.Start(t)
	boom := errors.New("adc fault")
	s, _ := NewScanner("adc1", 2, 1, SamplerFunc(func(ch int) (uint16, error) {
		if ch == 1 {
			return 0, boom
		}
		return 1, nil
	}))
	if err := s.Run(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("expected sampler error, got %v", err)
	}
	if _, err := NewScanner("bad", 0, 1, s.sampler); err == nil {
		t.Fatalf("expected validation error")
	}
}
