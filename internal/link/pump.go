package link

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/danmuck/uartframe/internal/observability"
	"github.com/danmuck/uartframe/internal/packet"
	"github.com/rs/zerolog"
)

var ErrRxClosed = errors.New("link: rx closed")

// Consumer is fed every received byte in arrival order. Expire is called when
// a read returns no data, which is how the pump sees an idle line.
type Consumer interface {
	OnByte(b byte) packet.Event
	Expire(now time.Time) packet.Event
}

// Pump is the receive context: it alone reads the rx half and drives the
// consumer. It never blocks on anything but the read.
type Pump struct {
	link     string
	variant  string
	rx       io.Reader
	consumer Consumer
	now      func() time.Time
	logger   zerolog.Logger
}

func NewPump(link, variant string, rx io.Reader, consumer Consumer, logger zerolog.Logger) *Pump {
	return &Pump{
		link:     link,
		variant:  variant,
		rx:       rx,
		consumer: consumer,
		now:      time.Now,
		logger:   logger,
	}
}

// Run reads until ctx ends (nil) or the port fails (ErrRxClosed or the read error).
func (p *Pump) Run(ctx context.Context) error {
	var buf [64]byte
	for {
		if ctx.Err() != nil {
			return nil
		}
		n, err := p.rx.Read(buf[:])
		for _, b := range buf[:n] {
			p.dispatch(p.consumer.OnByte(b))
		}
		observability.AddBytesReceived(p.link, n)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, io.EOF) {
				return ErrRxClosed
			}
			return fmt.Errorf("link: rx read: %w", err)
		}
		if n == 0 {
			p.dispatch(p.consumer.Expire(p.now()))
		}
	}
}

func (p *Pump) dispatch(ev packet.Event) {
	if ev.Err != nil {
		kind := "unknown"
		if k, ok := packet.KindOf(ev.Err); ok {
			kind = k.String()
		}
		observability.RecordFramingError(p.link, p.variant, kind)
		p.logger.Debug().Str("kind", kind).Err(ev.Err).Msg("framing_error")
	}
	if ev.Kind == packet.EventCommitted {
		p.logger.Debug().Str("variant", p.variant).Msg("frame_committed")
	}
}
