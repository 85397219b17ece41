package link

import (
	"io"
	"time"

	"github.com/danmuck/uartframe/internal/observability"
	"github.com/danmuck/uartframe/internal/packet"
	"github.com/rs/zerolog"
)

const DefaultEchoCapacity = 4096

// Echo accumulates received bytes and writes them back when the buffer is one
// byte short of full or the line goes idle. It runs in the receive context.
type Echo struct {
	link   string
	buf    []byte
	tx     io.Writer
	logger zerolog.Logger
}

var _ Consumer = (*Echo)(nil)

func NewEcho(link string, capacity int, tx io.Writer, logger zerolog.Logger) *Echo {
	if capacity < 2 {
		capacity = DefaultEchoCapacity
	}
	return &Echo{
		link:   link,
		buf:    make([]byte, 0, capacity),
		tx:     tx,
		logger: logger,
	}
}

func (e *Echo) OnByte(b byte) packet.Event {
	e.buf = append(e.buf, b)
	if len(e.buf) >= cap(e.buf)-1 {
		e.flush("full")
	}
	return packet.Event{}
}

func (e *Echo) Expire(time.Time) packet.Event {
	if len(e.buf) > 0 {
		e.flush("idle")
	}
	return packet.Event{}
}

// Pending is the number of buffered bytes. Receive context only.
func (e *Echo) Pending() int {
	return len(e.buf)
}

func (e *Echo) flush(reason string) {
	if _, err := e.tx.Write(e.buf); err != nil {
		e.logger.Warn().Err(err).Int("bytes", len(e.buf)).Msg("echo_flush_failed")
	} else {
		observability.RecordEchoFlush(e.link, reason)
	}
	e.buf = e.buf[:0]
}
