package link

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/danmuck/uartframe/internal/config"
	"github.com/danmuck/uartframe/internal/packet"
	"github.com/danmuck/uartframe/internal/testutil/testlog"
	"github.com/rs/zerolog/log"
)

// memPort is an in-memory serial port whose reads time out like a real one.
type memPort struct {
	rx        chan []byte
	pending   []byte
	closed    chan struct{}
	closeOnce sync.Once
	timeout   time.Duration

	mu sync.Mutex
	tx bytes.Buffer
}

func newMemPort() *memPort {
	return &memPort{
		rx:      make(chan []byte, 16),
		closed:  make(chan struct{}),
		timeout: 5 * time.Millisecond,
	}
}

func (p *memPort) Inject(b []byte) {
	p.rx <- append([]byte(nil), b...)
}

func (p *memPort) Read(b []byte) (int, error) {
	if len(p.pending) == 0 {
		timer := time.NewTimer(p.timeout)
		defer timer.Stop()
		select {
		case chunk := <-p.rx:
			p.pending = chunk
		case <-p.closed:
			return 0, io.EOF
		case <-timer.C:
			return 0, nil
		}
	}
	n := copy(b, p.pending)
	p.pending = p.pending[n:]
	return n, nil
}

func (p *memPort) Write(b []byte) (int, error) {
	select {
	case <-p.closed:
		return 0, io.ErrClosedPipe
	default:
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.tx.Write(b)
}

func (p *memPort) Close() error {
	p.closeOnce.Do(func() { close(p.closed) })
	return nil
}

func (p *memPort) Written() []byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]byte(nil), p.tx.Bytes()...)
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func testConfig(mode string) Config {
	cfg := DefaultConfig()
	cfg.Name = "test-link"
	cfg.Mode = mode
	cfg.Backoff = BackoffConfig{InitialDelay: time.Millisecond, Multiplier: 1}
	return cfg
}

func runService(t *testing.T, svc *Service) (cancel func()) {
	t.Helper()
	ctx, stop := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- svc.Run(ctx)
	}()
	return func() {
		stop()
		select {
		case err := <-done:
			if err != nil {
				t.Fatalf("run returned %v", err)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("service did not stop")
		}
	}
}

var ledHandler = HandlerFunc(func(f packet.Frame, tx *packet.Sender) error {
	if f.Text() == "LED_ON" {
		return tx.SendText("LED_ON_OK\r\n")
	}
	return tx.SendText("ERROR_COMMAND\r\n")
})

func TestServiceTextRequestReply(t *testing.T) {
	testlog.Start(t)
	port := newMemPort()
	svc, err := NewService(testConfig(config.ModeText), func() (Port, error) { return port, nil }, ledHandler)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	stop := runService(t, svc)
	defer stop()

	port.Inject([]byte("@LED_ON\r\n"))
	waitFor(t, "LED_ON_OK reply", func() bool {
		return bytes.Equal(port.Written(), []byte("LED_ON_OK\r\n"))
	})
	port.Inject([]byte("@BLINK\r\n"))
	waitFor(t, "ERROR_COMMAND reply", func() bool {
		return bytes.HasSuffix(port.Written(), []byte("ERROR_COMMAND\r\n"))
	})
	waitFor(t, "sent counter", func() bool { return svc.Status().FramesSent == 2 })
	st := svc.Status()
	if st.FramesReceived != 2 || !st.Connected {
		t.Fatalf("unexpected status: %+v", st)
	}
	if st.State != "wait" || st.Flag != "start" {
		t.Fatalf("unexpected machine view: state=%s flag=%s", st.State, st.Flag)
	}
}

func TestServiceHexRecordsFramingErrors(t *testing.T) {
	testlog.Start(t)
	port := newMemPort()
	var got atomic.Value
	handler := HandlerFunc(func(f packet.Frame, tx *packet.Sender) error {
		got.Store(append([]byte(nil), f.Payload...))
		return tx.Send(f.Payload)
	})
	svc, err := NewService(testConfig(config.ModeHex), func() (Port, error) { return port, nil }, handler)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	stop := runService(t, svc)
	defer stop()

	port.Inject([]byte{0xFF, 1, 2, 3, 4, 0x00, 0xFE})
	waitFor(t, "binary echo", func() bool {
		return bytes.Equal(port.Written(), []byte{0xFF, 1, 2, 3, 4, 0xFE})
	})
	if p, _ := got.Load().([]byte); !bytes.Equal(p, []byte{1, 2, 3, 4}) {
		t.Fatalf("unexpected payload % x", p)
	}
	st := svc.Status()
	if st.ErrorCount != 1 || st.ErrorsByKind["unexpected_trailer"] != 1 || st.LastError == "" {
		t.Fatalf("unexpected error status: %+v", st)
	}
	if cleared := svc.ClearError(); !errors.Is(cleared, packet.ErrUnexpectedTrailer) {
		t.Fatalf("unexpected cleared error %v", cleared)
	}
	if st := svc.Status(); st.LastError != "" || st.ErrorCount != 1 {
		t.Fatalf("clear should keep count and drop last: %+v", st)
	}
}

func TestServiceEchoFlushesOnIdle(t *testing.T) {
	testlog.Start(t)
	port := newMemPort()
	svc, err := NewService(testConfig(config.ModeEcho), func() (Port, error) { return port, nil }, nil)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	if svc.Receiver() != nil {
		t.Fatalf("echo mode has no receiver")
	}
	stop := runService(t, svc)
	defer stop()

	port.Inject([]byte("hello"))
	waitFor(t, "echo", func() bool {
		return bytes.Equal(port.Written(), []byte("hello"))
	})
}

func TestServiceReconnectsAfterPortLoss(t *testing.T) {
	testlog.Start(t)
	first, second := newMemPort(), newMemPort()
	var mu sync.Mutex
	opens := 0
	open := func() (Port, error) {
		mu.Lock()
		defer mu.Unlock()
		opens++
		switch opens {
		case 1:
			return first, nil
		case 2:
			return nil, errors.New("device busy")
		default:
			return second, nil
		}
	}
	svc, err := NewService(testConfig(config.ModeText), open, ledHandler)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	stop := runService(t, svc)
	defer stop()

	waitFor(t, "first session", func() bool { return svc.Status().Connected })
	first.Close()
	second.Inject([]byte("@LED_ON\r\n"))
	waitFor(t, "reply on reopened port", func() bool {
		return bytes.Equal(second.Written(), []byte("LED_ON_OK\r\n"))
	})
	mu.Lock()
	defer mu.Unlock()
	if opens != 3 {
		t.Fatalf("expected 3 open attempts, got %d", opens)
	}
}

func TestRunWithoutReconnectReturnsOpenError(t *testing.T) {
	testlog.Start(t)
	cfg := testConfig(config.ModeText)
	cfg.Reconnect = false
	boom := errors.New("no such device")
	svc, err := NewService(cfg, func() (Port, error) { return nil, boom }, ledHandler)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	if err := svc.Run(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("expected open error, got %v", err)
	}
}

func TestNewServiceValidation(t *testing.T) {
	testlog.Start(t)
	open := func() (Port, error) { return newMemPort(), nil }
	if _, err := NewService(testConfig("morse"), open, ledHandler); !errors.Is(err, ErrUnknownMode) {
		t.Fatalf("expected ErrUnknownMode, got %v", err)
	}
	if _, err := NewService(testConfig(config.ModeHex), open, nil); !errors.Is(err, ErrNoHandler) {
		t.Fatalf("expected ErrNoHandler, got %v", err)
	}
	cfg := testConfig(config.ModeText)
	cfg.PollInterval = 0
	if _, err := NewService(cfg, open, ledHandler); !errors.Is(err, ErrInvalidPollInterval) {
		t.Fatalf("expected ErrInvalidPollInterval, got %v", err)
	}
}

func TestTransmitWhileDisconnected(t *testing.T) {
	testlog.Start(t)
	svc, err := NewService(testConfig(config.ModeText), nil, ledHandler)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	if err := svc.SendTextFrame("LED_ON"); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}
}

type recordingConsumer struct {
	bytes   []byte
	expires int
}

func (c *recordingConsumer) OnByte(b byte) packet.Event {
	c.bytes = append(c.bytes, b)
	return packet.Event{}
}

func (c *recordingConsumer) Expire(time.Time) packet.Event {
	c.expires++
	return packet.Event{}
}

func TestTransmitUsesConfiguredTextCapacity(t *testing.T) {
	testlog.Start(t)
	port := newMemPort()
	cfg := testConfig(config.ModeText)
	cfg.TextCapacity = 16
	svc, err := NewService(cfg, func() (Port, error) { return port, nil }, ledHandler)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	stop := runService(t, svc)
	defer stop()
	waitFor(t, "connection", func() bool { return svc.Status().Connected })

	if err := svc.SendTextFrame(strings.Repeat("x", 16)); !errors.Is(err, packet.ErrPayloadTooLong) {
		t.Fatalf("expected ErrPayloadTooLong, got %v", err)
	}
	if err := svc.SendTextFrame(strings.Repeat("x", 15)); err != nil {
		t.Fatalf("payload within capacity: %v", err)
	}
	if got := port.Written(); len(got) != 15+3 {
		t.Fatalf("unexpected wire %q", got)
	}
}

func TestPumpFeedsBytesInOrder(t *testing.T) {
	testlog.Start(t)
	c := &recordingConsumer{}
	wire := bytes.Repeat([]byte{0xFF, 1, 2, 3, 4, 0xFE}, 20)
	pump := NewPump("test-link", "binary", bytes.NewReader(wire), c, log.Logger)
	if err := pump.Run(context.Background()); !errors.Is(err, ErrRxClosed) {
		t.Fatalf("expected ErrRxClosed at EOF, got %v", err)
	}
	if !bytes.Equal(c.bytes, wire) {
		t.Fatalf("bytes reordered or lost: got %d want %d", len(c.bytes), len(wire))
	}
}

func TestPumpStopsOnCancelledContext(t *testing.T) {
	testlog.Start(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	pump := NewPump("test-link", "text", newMemPort(), &recordingConsumer{}, log.Logger)
	if err := pump.Run(ctx); err != nil {
		t.Fatalf("expected nil on cancelled context, got %v", err)
	}
}

func TestPumpExpiresOnIdleRead(t *testing.T) {
	testlog.Start(t)
	port := newMemPort()
	c := &recordingConsumer{}
	pump := NewPump("test-link", "text", port, c, log.Logger)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- pump.Run(ctx) }()
	time.Sleep(30 * time.Millisecond)
	cancel()
	port.Close()
	if err := <-done; err != nil {
		t.Fatalf("pump returned %v", err)
	}
	if c.expires == 0 {
		t.Fatalf("idle reads should drive Expire")
	}
}

type failWriter struct{}

func (failWriter) Write([]byte) (int, error) { return 0, io.ErrClosedPipe }

func TestEchoFlushTriggers(t *testing.T) {
	testlog.Start(t)
	var out bytes.Buffer
	e := NewEcho("test-link", 4, &out, log.Logger)
	for _, b := range []byte("abc") {
		e.OnByte(b)
	}
	if out.String() != "abc" || e.Pending() != 0 {
		t.Fatalf("full flush: out=%q pending=%d", out.String(), e.Pending())
	}
	e.Expire(time.Now())
	if out.String() != "abc" {
		t.Fatalf("idle with empty buffer must not write")
	}
	e.OnByte('d')
	e.Expire(time.Now())
	if out.String() != "abcd" {
		t.Fatalf("idle flush missing: %q", out.String())
	}

	failing := NewEcho("test-link", 4, failWriter{}, log.Logger)
	failing.OnByte('x')
	failing.Expire(time.Now())
	if failing.Pending() != 0 {
		t.Fatalf("failed flush should still drop the buffer")
	}
}
